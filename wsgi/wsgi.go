// Package wsgi defines the synchronous application calling convention the server adapts
// HTTP requests to: an application receives the environ and a StartResponse callback, and
// returns the response body.
package wsgi

import (
	"io"

	"github.com/indigo-web/fastwsgi/http/headers"
)

// Header is a response header field. Names are sent verbatim.
type Header = headers.Header

// WriteFunc is the legacy write() callable returned by StartResponse. Every call commits
// the response head, if it wasn't yet, and sends the data immediately.
type WriteFunc func(data []byte) error

// StartResponse must be called by the application exactly once, before the body is
// produced. The status is a status line without the protocol, e.g. "200 OK".
type StartResponse func(status string, headers []Header) (WriteFunc, error)

// Application is the callable the server hands every request to. The returned body is
// consumed after Call returns. Returning an error before anything was sent results in
// 500 Internal Server Error, otherwise the connection is aborted.
type Application interface {
	Call(env *Environ, startResponse StartResponse) (Body, error)
}

// AppFunc adapts an ordinary function to the Application interface.
type AppFunc func(env *Environ, startResponse StartResponse) (Body, error)

func (f AppFunc) Call(env *Environ, startResponse StartResponse) (Body, error) {
	return f(env, startResponse)
}

// Version of the calling convention, exposed as Environ.Version.
var Version = [2]int{1, 0}

// Environ is built fresh for every request and is owned by the application for the time of
// the call. All the strings it carries are copies, so they may be retained.
type Environ struct {
	// Vars are the CGI variables: REQUEST_METHOD, SCRIPT_NAME, PATH_INFO, QUERY_STRING,
	// CONTENT_TYPE, CONTENT_LENGTH, SERVER_NAME, SERVER_PORT, SERVER_PROTOCOL,
	// REMOTE_ADDR, REMOTE_PORT and HTTP_* for every request header.
	Vars map[string]string
	// Headers are the request headers in the order they were received, names verbatim.
	Headers *headers.Headers
	// Input streams the request body. It returns io.EOF once the body is over.
	Input io.Reader
	// Errors is where the application may write its diagnostics to. Lines written
	// end up in the server log.
	Errors       io.Writer
	Version      [2]int
	URLScheme    string
	Multithread  bool
	Multiprocess bool
	RunOnce      bool
}

// Get returns the variable value or an empty string if it isn't set.
func (e *Environ) Get(key string) string {
	return e.Vars[key]
}

// Lookup returns the variable value and whether it was set at all.
func (e *Environ) Lookup(key string) (value string, found bool) {
	value, found = e.Vars[key]
	return value, found
}
