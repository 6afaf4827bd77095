package proto

import "github.com/indigo-web/utils/uf"

// Proto is an HTTP protocol version. Only HTTP/1.x is served.
type Proto uint8

const (
	Unknown Proto = 0
	HTTP10  Proto = 1 << iota
	HTTP11

	HTTP1 = HTTP10 | HTTP11
)

func (p Proto) String() string {
	switch p {
	case HTTP10:
		return "HTTP/1.0"
	case HTTP11:
		return "HTTP/1.1"
	default:
		return ""
	}
}

const (
	protoTokenLength   = len("HTTP/x.x")
	majorVersionOffset = len("HTTP/x") - 1
	minorVersionOffset = len("HTTP/x.x") - 1
	httpScheme         = "HTTP/"
)

// FromBytes parses the protocol token of a request line. ok is false if the token isn't
// a well-formed HTTP-version at all; a well-formed but unsupported version results in
// Unknown with ok set.
func FromBytes(raw []byte) (p Proto, ok bool) {
	if len(raw) != protoTokenLength || uf.B2S(raw[:majorVersionOffset]) != httpScheme ||
		raw[majorVersionOffset+1] != '.' {
		return Unknown, false
	}

	major, minor := raw[majorVersionOffset], raw[minorVersionOffset]
	if !isDigit(major) || !isDigit(minor) {
		return Unknown, false
	}

	return Parse(major-'0', minor-'0'), true
}

// Parse returns the protocol by its major and minor version numbers.
func Parse(major, minor uint8) Proto {
	if major != 1 {
		return Unknown
	}

	switch minor {
	case 0:
		return HTTP10
	case 1:
		return HTTP11
	default:
		return Unknown
	}
}

// PersistentByDefault reports whether connections of the protocol are kept alive unless
// told otherwise.
func (p Proto) PersistentByDefault() bool {
	return p == HTTP11
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
