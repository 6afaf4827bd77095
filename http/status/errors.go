package status

// HTTPError is a protocol-level error. The connection is closed after it, preceded by a
// response with the Code if nothing was written yet.
type HTTPError struct {
	Message string
	Code    Code
}

func NewError(code Code, message string) error {
	return HTTPError{
		Code:    code,
		Message: message,
	}
}

func (h HTTPError) Error() string {
	return h.Message
}

var (
	ErrBadRequest              = NewError(BadRequest, "bad request")
	ErrBadRequestLine          = NewError(BadRequest, "malformed request line")
	ErrBadHeaderField          = NewError(BadRequest, "malformed header field")
	ErrObsoleteLineFolding     = NewError(BadRequest, "obsolete line folding is not allowed")
	ErrBadContentLength        = NewError(BadRequest, "invalid Content-Length")
	ErrAmbiguousFraming        = NewError(BadRequest, "both Content-Length and Transfer-Encoding are set")
	ErrURIDecoding             = NewError(BadRequest, "invalid urlencoded sequence")
	ErrBadChunk                = NewError(BadRequest, "malformed chunk-encoded data")
	ErrBadProtocol             = NewError(BadRequest, "malformed protocol version")
	ErrRequestTimeout          = NewError(RequestTimeout, "request timeout")
	ErrBodyTooLarge            = NewError(RequestEntityTooLarge, "request body is too large")
	ErrURITooLong              = NewError(RequestURITooLong, "request URI too long")
	ErrExpectationFailed       = NewError(ExpectationFailed, "expectation failed")
	ErrHeaderFieldsTooLarge    = NewError(RequestHeaderFieldsTooLarge, "too large headers section")
	ErrTooManyHeaders          = NewError(RequestHeaderFieldsTooLarge, "too many headers")
	ErrInternalServerError     = NewError(InternalServerError, "internal server error")
	ErrUnsupportedEncoding     = NewError(NotImplemented, "transfer encoding is not supported")
	ErrHTTPVersionNotSupported = NewError(HTTPVersionNotSupported, "HTTP version not supported")
)
