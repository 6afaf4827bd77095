package http1

import (
	"github.com/indigo-web/fastwsgi/http/headers"
	"github.com/indigo-web/fastwsgi/http/method"
	"github.com/indigo-web/fastwsgi/http/proto"
)

// Request is a parsed request head. All the strings refer to the parser's memory and are
// valid only until the next request is parsed, so everything outliving the request must
// be copied.
type Request struct {
	Method method.Method
	// MethodName is the method as received. Unlike the rest, it's owned by the request, as
	// methods unknown to the method package are copied.
	MethodName string
	// Path is the percent-decoded path of the request target.
	Path string
	// RawPath is the path exactly as it was received.
	RawPath string
	// Query is the raw query, without the leading question mark.
	Query   string
	Proto   proto.Proto
	Headers *headers.Headers
	// ContentLength is -1 when not set.
	ContentLength int64
	Chunked       bool
	// HasTrailer is set when the client announces trailer fields after a chunked body.
	HasTrailer bool
	// ConnClose and ConnKeepAlive reflect the tokens of the Connection header.
	ConnClose     bool
	ConnKeepAlive bool
	// Expect100 is set when the client waits for an interim 100 Continue before sending
	// the body.
	Expect100 bool
}

func NewRequest(hdrs *headers.Headers) *Request {
	return &Request{
		Headers:       hdrs,
		ContentLength: -1,
	}
}

// HasBody reports whether the request carries a body per its framing headers.
func (r *Request) HasBody() bool {
	return r.Chunked || r.ContentLength > 0
}

// WantsKeepAlive reports whether the client is willing to reuse the connection.
func (r *Request) WantsKeepAlive() bool {
	if r.ConnClose {
		return false
	}

	switch r.Proto {
	case proto.HTTP11:
		return true
	case proto.HTTP10:
		return r.ConnKeepAlive
	default:
		return false
	}
}

// Reset prepares the request for the next one on the same connection.
func (r *Request) Reset() {
	r.Method = method.Unknown
	r.MethodName = ""
	r.Path, r.RawPath, r.Query = "", "", ""
	r.Proto = proto.Unknown
	r.Headers.Clear()
	r.ContentLength = -1
	r.Chunked = false
	r.HasTrailer = false
	r.ConnClose = false
	r.ConnKeepAlive = false
	r.Expect100 = false
}
