package gateway

import (
	"net"
	"strconv"
	"strings"

	"github.com/indigo-web/fastwsgi/internal/protocol/http1"
	"github.com/indigo-web/fastwsgi/wsgi"
	"github.com/indigo-web/utils/strcomp"
)

// baseVars is the number of CGI variables set regardless of the request headers.
const baseVars = 11

// environ builds a fresh environ for the request. The request strings refer to the parser
// memory, so everything is copied.
func (a *Adapter) environ(request *http1.Request) *wsgi.Environ {
	vars := make(map[string]string, baseVars+request.Headers.Len())
	vars["REQUEST_METHOD"] = request.MethodName
	vars["SCRIPT_NAME"] = ""
	vars["PATH_INFO"] = strings.Clone(request.Path)
	vars["QUERY_STRING"] = strings.Clone(request.Query)
	vars["SERVER_NAME"] = a.serverName
	vars["SERVER_PORT"] = a.serverPort
	vars["SERVER_PROTOCOL"] = request.Proto.String()
	vars["REMOTE_ADDR"] = a.remoteAddr
	vars["REMOTE_PORT"] = a.remotePort

	if request.ContentLength >= 0 && !request.Chunked {
		vars["CONTENT_LENGTH"] = strconv.FormatInt(request.ContentLength, 10)
	}

	for key, value := range request.Headers.Pairs() {
		var name string

		switch {
		case strcomp.EqualFold(key, "content-length"):
			// CONTENT_LENGTH reflects the framing, not the header
			continue
		case strcomp.EqualFold(key, "content-type"):
			name = "CONTENT_TYPE"
		default:
			name = cgiName(key)
		}

		if prev, found := vars[name]; found {
			vars[name] = prev + separator(name) + value
		} else {
			vars[name] = strings.Clone(value)
		}
	}

	return &wsgi.Environ{
		Vars:         vars,
		Headers:      request.Headers.Clone(),
		Input:        a.input,
		Errors:       a.errors,
		Version:      wsgi.Version,
		URLScheme:    "http",
		Multithread:  true,
		Multiprocess: a.multiprocess,
		RunOnce:      false,
	}
}

// cgiName converts a header name into the HTTP_ variable name, e.g. Accept-Encoding becomes
// HTTP_ACCEPT_ENCODING.
func cgiName(key string) string {
	const prefix = "HTTP_"

	var sb strings.Builder
	sb.Grow(len(prefix) + len(key))
	sb.WriteString(prefix)

	for i := 0; i < len(key); i++ {
		switch char := key[i]; {
		case char == '-':
			sb.WriteByte('_')
		case char >= 'a' && char <= 'z':
			sb.WriteByte(char - 'a' + 'A')
		default:
			sb.WriteByte(char)
		}
	}

	return sb.String()
}

// separator joins repeated header fields. Cookies are joined the way a single Cookie
// header would carry them (RFC 6265, 5.4).
func separator(name string) string {
	if name == "HTTP_COOKIE" {
		return "; "
	}

	return ", "
}

// serverAddr returns the SERVER_NAME and SERVER_PORT values. The configured host is
// preferred, unless it's a wildcard, in which case the local address of the connection
// is used.
func serverAddr(host string, local net.Addr) (name, port string) {
	localHost, localPort := splitAddr(local)
	if len(host) == 0 || host == "0.0.0.0" || host == "::" {
		return localHost, localPort
	}

	return host, localPort
}

func splitAddr(addr net.Addr) (host, port string) {
	if addr == nil {
		return "", ""
	}

	if tcpAddr, ok := addr.(*net.TCPAddr); ok {
		return tcpAddr.IP.String(), strconv.Itoa(tcpAddr.Port)
	}

	host, port, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String(), ""
	}

	return host, port
}
