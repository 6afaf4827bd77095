package httpchars

var (
	CRLF    = []byte("\r\n")
	COLONSP = []byte(": ")
)

// tchar as defined by RFC 9110, 5.6.2.
var tokenChars = func() (lut [256]bool) {
	for c := '0'; c <= '9'; c++ {
		lut[c] = true
	}
	for c := 'a'; c <= 'z'; c++ {
		lut[c] = true
		lut[c-'a'+'A'] = true
	}
	for _, c := range "!#$%&'*+-.^_`|~" {
		lut[c] = true
	}

	return lut
}()

// IsToken reports whether the string is a non-empty token, which header names and
// methods must be.
func IsToken[T string | []byte](s T) bool {
	if len(s) == 0 {
		return false
	}

	for i := 0; i < len(s); i++ {
		if !tokenChars[s[i]] {
			return false
		}
	}

	return true
}

// IsPrintable reports whether all the chars are visible US-ASCII or obs-text, i.e. there
// are no spaces and control characters.
func IsPrintable(b []byte) bool {
	for _, c := range b {
		if c <= ' ' || c == 0x7f {
			return false
		}
	}

	return true
}

// IsFieldValue reports whether the value carries no CR, LF or NUL, which would otherwise
// let it split the message.
func IsFieldValue(s string) bool {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\r', '\n', 0:
			return false
		}
	}

	return true
}
