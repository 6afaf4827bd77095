package http1

import (
	"slices"
	"strconv"
	"strings"

	"github.com/indigo-web/fastwsgi/http/headers"
	"github.com/indigo-web/fastwsgi/http/proto"
	"github.com/indigo-web/fastwsgi/http/status"
	"github.com/indigo-web/fastwsgi/internal/httpchars"
	"github.com/indigo-web/fastwsgi/internal/protocol"
	"github.com/indigo-web/utils/strcomp"
	"github.com/indigo-web/utils/uf"
)

// Framing is how the end of the response body is communicated to the client.
type Framing uint8

const (
	// FramingNone means the response has no body at all: HEAD requests, 1xx, 204 and 304.
	FramingNone Framing = iota
	// FramingLength means the body is exactly Content-Length bytes long.
	FramingLength
	// FramingChunked means the body is sent with the chunked transfer coding.
	FramingChunked
	// FramingClose means the body ends when the connection is closed.
	FramingClose
)

func (f Framing) String() string {
	switch f {
	case FramingNone:
		return "none"
	case FramingLength:
		return "content-length"
	case FramingChunked:
		return "chunked"
	case FramingClose:
		return "close-delimited"
	default:
		return "unknown"
	}
}

// Unambiguous reports whether the client can tell where the body ends without the
// connection being closed.
func (f Framing) Unambiguous() bool {
	return f != FramingClose
}

const (
	contentLength    = "Content-Length: "
	transferEncoding = "Transfer-Encoding: chunked\r\n"
	connectionClose  = "Connection: close\r\n"
	connectionKeep   = "Connection: keep-alive\r\n"
	contentTypePlain = "Content-Type: text/plain; charset=utf-8\r\n"
)

var chunkedFinalizer = []byte("0\r\n\r\n")

// ResponseHead is everything the serializer needs to render a response head.
type ResponseHead struct {
	Proto proto.Proto
	// Status is the status line past the protocol, e.g. "200 OK".
	Status string
	// Headers are rendered as is, so the ones controlling the framing and the connection
	// must be filtered out beforehand.
	Headers []headers.Header
	Framing Framing
	// ContentLength is rendered if the framing is FramingLength, or FramingNone as long
	// as it's not negative. The latter is the case of a response to a HEAD request.
	ContentLength int64
	KeepAlive     bool
}

// Serializer renders the response into the wire format, writing it as soon as possible.
type Serializer struct {
	buff           []byte
	writer         protocol.Writer
	defaultHeaders defaultHeaders
}

func NewSerializer(buff []byte, defHdrs map[string]string, writer protocol.Writer) *Serializer {
	return &Serializer{
		buff:           buff[:0],
		writer:         writer,
		defaultHeaders: processDefaultHeaders(defHdrs),
	}
}

// WriteHead writes the response head along with the first piece of the body, encoded
// according to the framing, in a single write.
func (s *Serializer) WriteHead(head ResponseHead, body []byte) error {
	defer s.clear()

	s.renderProtocol(head.Proto)
	s.buff = append(s.buff, head.Status...)
	s.crlf()
	s.renderHeaders(head.Headers)

	switch head.Framing {
	case FramingLength:
		s.renderContentLength(head.ContentLength)
	case FramingNone:
		if head.ContentLength >= 0 {
			s.renderContentLength(head.ContentLength)
		}
	case FramingChunked:
		s.buff = append(s.buff, transferEncoding...)
	}

	if head.KeepAlive {
		s.buff = append(s.buff, connectionKeep...)
	} else {
		s.buff = append(s.buff, connectionClose...)
	}

	s.crlf()
	if head.Framing != FramingNone {
		s.appendBody(head.Framing, body)
	}

	return s.writer.Write(s.buff)
}

// WriteBody writes a piece of the body encoded according to the framing.
func (s *Serializer) WriteBody(framing Framing, body []byte) error {
	if len(body) == 0 || framing == FramingNone {
		return nil
	}

	if framing != FramingChunked {
		return s.writer.Write(body)
	}

	defer s.clear()
	s.appendBody(framing, body)

	return s.writer.Write(s.buff)
}

// WriteEnd completes the body. Only chunked bodies need it.
func (s *Serializer) WriteEnd(framing Framing) error {
	if framing != FramingChunked {
		return nil
	}

	return s.writer.Write(chunkedFinalizer)
}

// WriteContinue writes the interim 100 Continue response.
func (s *Serializer) WriteContinue(version proto.Proto) error {
	defer s.clear()

	s.renderProtocol(version)
	s.buff = append(s.buff, status.Line(status.Continue)...)
	s.crlf()
	s.crlf()

	return s.writer.Write(s.buff)
}

// WriteError writes a complete response describing the error, closing the connection.
// Errors other than status.HTTPError are reported as 500 Internal Server Error.
func (s *Serializer) WriteError(version proto.Proto, err error) error {
	httpErr, ok := err.(status.HTTPError)
	if !ok {
		httpErr = status.ErrInternalServerError.(status.HTTPError)
	}

	if version == proto.Unknown {
		version = proto.HTTP11
	}

	defer s.clear()

	s.renderProtocol(version)
	s.buff = append(s.buff, status.Line(httpErr.Code)...)
	s.crlf()
	s.renderHeaders(nil)
	s.buff = append(s.buff, contentTypePlain...)
	s.renderContentLength(int64(len(httpErr.Message)))
	s.buff = append(s.buff, connectionClose...)
	s.crlf()
	s.buff = append(s.buff, httpErr.Message...)

	return s.writer.Write(s.buff)
}

func (s *Serializer) appendBody(framing Framing, body []byte) {
	if len(body) == 0 {
		return
	}

	if framing == FramingChunked {
		s.buff = strconv.AppendUint(s.buff, uint64(len(body)), 16)
		s.crlf()
		s.buff = append(s.buff, body...)
		s.crlf()
		return
	}

	s.buff = append(s.buff, body...)
}

func (s *Serializer) renderHeaders(hdrs []headers.Header) {
	for _, header := range hdrs {
		s.renderHeader(header)
		s.defaultHeaders.Exclude(header.Key)
	}

	for _, header := range s.defaultHeaders {
		if header.Excluded {
			continue
		}

		s.buff = append(s.buff, header.Full...)
	}
}

// renderHeader into the buffer. Appends CRLF in the end
func (s *Serializer) renderHeader(header headers.Header) {
	s.buff = append(s.buff, header.Key...)
	s.buff = append(s.buff, httpchars.COLONSP...)
	s.buff = append(s.buff, header.Value...)
	s.crlf()
}

func (s *Serializer) renderContentLength(value int64) {
	s.buff = strconv.AppendInt(append(s.buff, contentLength...), value, 10)
	s.crlf()
}

func (s *Serializer) renderProtocol(version proto.Proto) {
	s.buff = append(s.buff, version.String()...)
	s.buff = append(s.buff, ' ')
}

func (s *Serializer) crlf() {
	s.buff = append(s.buff, httpchars.CRLF...)
}

func (s *Serializer) clear() {
	s.buff = s.buff[:0]
	s.defaultHeaders.Reset()
}

func processDefaultHeaders(hdrs map[string]string) defaultHeaders {
	processed := make(defaultHeaders, 0, len(hdrs))

	for key, value := range hdrs {
		full := key + uf.B2S(httpchars.COLONSP) + value + uf.B2S(httpchars.CRLF)
		processed = append(processed, defaultHeader{
			Key:  full[:len(key)],
			Full: full,
		})
	}

	// maps are unordered, while the responses better be reproducible
	slices.SortFunc(processed, func(a, b defaultHeader) int {
		return strings.Compare(a.Key, b.Key)
	})

	return processed
}

type defaultHeader struct {
	Excluded bool
	Key      string
	Full     string
}

type defaultHeaders []defaultHeader

func (d defaultHeaders) Exclude(key string) {
	for i := range d {
		if strcomp.EqualFold(d[i].Key, key) {
			d[i].Excluded = true
			return
		}
	}
}

func (d defaultHeaders) Reset() {
	for i := range d {
		d[i].Excluded = false
	}
}
