package http1

import (
	"bytes"
	"fmt"
	"iter"
	"strings"

	"github.com/indigo-web/fastwsgi/config"
	"github.com/indigo-web/fastwsgi/http/method"
	"github.com/indigo-web/fastwsgi/http/proto"
	"github.com/indigo-web/fastwsgi/http/status"
	"github.com/indigo-web/fastwsgi/internal/buffer"
	"github.com/indigo-web/fastwsgi/internal/httpchars"
	"github.com/indigo-web/fastwsgi/internal/protocol"
	"github.com/indigo-web/fastwsgi/internal/uridecode"
	"github.com/indigo-web/utils/strcomp"
	"github.com/indigo-web/utils/uf"
)

type parserState uint8

const (
	eMethod parserState = iota + 1
	ePath
	eHeaderKey
	eHeaderValue
	eHeadersEndCR
)

// maxContentLengthDigits keeps the Content-Length value within int64.
const maxContentLengthDigits = 18

var _ protocol.Parser = new(Parser)

// Parser is a stream-based HTTP/1.x request head parser. It modifies the request object
// by pointer and can be fed with the data in arbitrary pieces, down to a single byte.
// When the head is complete, the parser returns protocol.HeadersCompleted, attaching all
// the data past the head as an extra. The body must be processed separately.
//
// The whole head is stored in a single buffer, limited by config.Headers.MaxSize, so
// an unterminated head never takes more memory than that.
type Parser struct {
	request          *Request
	head             *buffer.Buffer
	headerKey        string
	headersNumber    int
	requestLineSize  int
	maxRequestLine   int
	maxHeaders       int
	maxBodySize      uint64
	contentLengthSet bool
	state            parserState
}

func NewParser(request *Request, head *buffer.Buffer, cfg *config.Config) *Parser {
	return &Parser{
		state:          eMethod,
		request:        request,
		head:           head,
		maxRequestLine: cfg.URI.MaxLength,
		maxHeaders:     cfg.Headers.MaxNumber,
		maxBodySize:    cfg.Body.MaxSize,
	}
}

func (p *Parser) Parse(data []byte) (state protocol.RequestState, extra []byte, err error) {
	request := p.request

	switch p.state {
	case eMethod:
		goto method
	case ePath:
		goto path
	case eHeaderKey:
		goto headerKey
	case eHeaderValue:
		goto headerValue
	case eHeadersEndCR:
		goto headersEndCR
	default:
		panic(fmt.Sprintf("BUG: unexpected state: %v", p.state))
	}

method:
	{
		if p.head.SegmentLength() == 0 {
			// empty lines preceding the request line are ignored (RFC 9112, 2.2)
			for len(data) > 0 && (data[0] == '\r' || data[0] == '\n') {
				data = data[1:]
			}

			if len(data) == 0 {
				return protocol.Pending, nil, nil
			}
		}

		sp := bytes.IndexByte(data, ' ')
		if sp == -1 {
			if bytes.IndexByte(data, '\n') != -1 {
				return protocol.Error, nil, status.ErrBadRequestLine
			}

			if err = p.appendRequestLine(data); err != nil {
				return protocol.Error, nil, err
			}

			return protocol.Pending, nil, nil
		}

		var methodValue []byte
		if p.head.SegmentLength() == 0 {
			methodValue = data[:sp]
			p.requestLineSize += sp
		} else {
			if err = p.appendRequestLine(data[:sp]); err != nil {
				return protocol.Error, nil, err
			}

			methodValue = p.head.Finish()
		}

		if !httpchars.IsToken(methodValue) {
			return protocol.Error, nil, status.ErrBadRequestLine
		}

		request.Method = method.Parse(uf.B2S(methodValue))
		if request.Method == method.Unknown {
			// extension methods are up to the application
			request.MethodName = string(methodValue)
		} else {
			request.MethodName = request.Method.String()
		}

		data = data[sp+1:]
		p.state = ePath
		goto path
	}

path:
	{
		lf := bytes.IndexByte(data, '\n')
		if lf == -1 {
			if err = p.appendRequestLine(data); err != nil {
				return protocol.Error, nil, err
			}

			return protocol.Pending, nil, nil
		}

		if err = p.appendRequestLine(data[:lf]); err != nil {
			return protocol.Error, nil, err
		}

		data = data[lf+1:]
		line := p.head.Finish()
		if len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}

		// exactly one space must separate the target and the protocol. Any other amount
		// of whitespace makes the request line ambiguous.
		sp := bytes.IndexByte(line, ' ')
		if sp == -1 || sp != bytes.LastIndexByte(line, ' ') {
			return protocol.Error, nil, status.ErrBadRequestLine
		}

		target, version := line[:sp], line[sp+1:]

		var wellFormed bool
		request.Proto, wellFormed = proto.FromBytes(version)
		switch {
		case !wellFormed:
			return protocol.Error, nil, status.ErrBadProtocol
		case request.Proto == proto.Unknown:
			return protocol.Error, nil, status.ErrHTTPVersionNotSupported
		}

		if err = p.parseTarget(target); err != nil {
			return protocol.Error, nil, err
		}

		p.state = eHeaderKey
		goto headerKey
	}

headerKey:
	{
		if len(data) == 0 {
			return protocol.Pending, nil, nil
		}

		if p.head.SegmentLength() == 0 {
			switch data[0] {
			case '\n':
				data = data[1:]
				goto complete
			case '\r':
				data = data[1:]
				p.state = eHeadersEndCR
				goto headersEndCR
			case ' ', '\t':
				return protocol.Error, nil, status.ErrObsoleteLineFolding
			}
		}

		colon := bytes.IndexByte(data, ':')
		if colon == -1 {
			if bytes.IndexByte(data, '\n') != -1 {
				return protocol.Error, nil, status.ErrBadHeaderField
			}

			if !p.head.Append(data) {
				return protocol.Error, nil, status.ErrHeaderFieldsTooLarge
			}

			return protocol.Pending, nil, nil
		}

		if !p.head.Append(data[:colon]) {
			return protocol.Error, nil, status.ErrHeaderFieldsTooLarge
		}

		// whitespace between the field name and the colon is forbidden (RFC 9112, 5.1),
		// and it's rejected here along with any other non-token character
		key := p.head.Finish()
		if !httpchars.IsToken(key) {
			return protocol.Error, nil, status.ErrBadHeaderField
		}

		if p.headersNumber++; p.headersNumber > p.maxHeaders {
			return protocol.Error, nil, status.ErrTooManyHeaders
		}

		p.headerKey = uf.B2S(key)
		data = data[colon+1:]
		p.state = eHeaderValue
		goto headerValue
	}

headerValue:
	{
		lf := bytes.IndexByte(data, '\n')
		if lf == -1 {
			if !p.head.Append(data) {
				return protocol.Error, nil, status.ErrHeaderFieldsTooLarge
			}

			return protocol.Pending, nil, nil
		}

		if !p.head.Append(data[:lf]) {
			return protocol.Error, nil, status.ErrHeaderFieldsTooLarge
		}

		data = data[lf+1:]
		value := p.head.Finish()
		if len(value) > 0 && value[len(value)-1] == '\r' {
			value = value[:len(value)-1]
		}

		value = trimSpaces(value)
		if bytes.IndexByte(value, '\r') != -1 || bytes.IndexByte(value, 0) != -1 {
			return protocol.Error, nil, status.ErrBadHeaderField
		}

		if err = p.onHeader(p.headerKey, uf.B2S(value)); err != nil {
			return protocol.Error, nil, err
		}

		request.Headers.Add(p.headerKey, uf.B2S(value))
		p.state = eHeaderKey
		goto headerKey
	}

headersEndCR:
	if len(data) == 0 {
		return protocol.Pending, nil, nil
	}

	if data[0] != '\n' {
		return protocol.Error, nil, status.ErrBadRequest
	}

	data = data[1:]

complete:
	if err = p.complete(); err != nil {
		return protocol.Error, nil, err
	}

	p.reset()

	return protocol.HeadersCompleted, data, nil
}

// Reset drops any partially parsed head. Must be called before the parser is reused after
// an error.
func (p *Parser) Reset() {
	p.reset()
}

func (p *Parser) appendRequestLine(data []byte) error {
	if p.requestLineSize += len(data); p.requestLineSize > p.maxRequestLine {
		return status.ErrURITooLong
	}

	if !p.head.Append(data) {
		return status.ErrHeaderFieldsTooLarge
	}

	return nil
}

// parseTarget fills the path and the query of the request. The target must be stored in
// the head buffer, as it's decoded in place.
func (p *Parser) parseTarget(target []byte) error {
	request := p.request

	if len(target) == 0 || !httpchars.IsPrintable(target) {
		return status.ErrBadRequestLine
	}

	switch target[0] {
	case '/':
	case '*':
		if len(target) != 1 || request.Method != method.OPTIONS {
			return status.ErrBadRequestLine
		}

		request.Path, request.RawPath = "*", "*"
		return nil
	default:
		// absolute-form, e.g. http://example.com/index.html. The host part is dropped, as
		// there's nothing the server could do with it.
		schemeEnd := bytes.Index(target, []byte("://"))
		if schemeEnd <= 0 || !httpchars.IsToken(target[:schemeEnd]) {
			return status.ErrBadRequestLine
		}

		authority := target[schemeEnd+len("://"):]
		pathBegin := bytes.IndexAny(authority, "/?")
		switch {
		case pathBegin == -1:
			request.Path, request.RawPath = "/", "/"
			return nil
		case authority[pathBegin] == '?':
			request.Path, request.RawPath = "/", "/"
			request.Query = uf.B2S(authority[pathBegin+1:])
			return nil
		}

		target = authority[pathBegin:]
	}

	if q := bytes.IndexByte(target, '?'); q != -1 {
		request.Query = uf.B2S(target[q+1:])
		target = target[:q]
	}

	if bytes.IndexByte(target, '%') == -1 {
		request.Path = uf.B2S(target)
		request.RawPath = request.Path
		return nil
	}

	request.RawPath = string(target)
	decoded, err := uridecode.Decode(target, target[:0])
	if err != nil {
		return err
	}

	request.Path = uf.B2S(decoded)
	return nil
}

// onHeader interprets the header fields affecting the message framing and the connection.
func (p *Parser) onHeader(key, value string) error {
	request := p.request

	switch len(key) {
	case len("expect"):
		if strcomp.EqualFold(key, "expect") {
			if request.Proto != proto.HTTP11 {
				// expectations of HTTP/1.0 clients must be ignored (RFC 9110, 10.1.1)
				return nil
			}

			if !strcomp.EqualFold(value, "100-continue") {
				return status.ErrExpectationFailed
			}

			request.Expect100 = true
		}
	case len("trailer"):
		if strcomp.EqualFold(key, "trailer") {
			request.HasTrailer = true
		}
	case len("connection"):
		if strcomp.EqualFold(key, "connection") {
			for token := range tokens(value) {
				switch {
				case strcomp.EqualFold(token, "close"):
					request.ConnClose = true
				case strcomp.EqualFold(token, "keep-alive"):
					request.ConnKeepAlive = true
				}
			}
		}
	case len("content-length"):
		if strcomp.EqualFold(key, "content-length") {
			length, ok := parseContentLength(value)
			if !ok || (p.contentLengthSet && length != request.ContentLength) {
				return status.ErrBadContentLength
			}

			request.ContentLength = length
			p.contentLengthSet = true
		}
	case len("transfer-encoding"):
		if strcomp.EqualFold(key, "transfer-encoding") {
			for token := range tokens(value) {
				if !strcomp.EqualFold(token, "chunked") {
					// no codings are supported besides the chunked one
					return status.ErrUnsupportedEncoding
				}

				if request.Chunked {
					// chunked applied twice
					return status.ErrBadRequest
				}

				request.Chunked = true
			}
		}
	}

	return nil
}

func (p *Parser) complete() error {
	request := p.request

	if request.Chunked && p.contentLengthSet {
		return status.ErrAmbiguousFraming
	}

	if p.contentLengthSet && uint64(request.ContentLength) > p.maxBodySize {
		return status.ErrBodyTooLarge
	}

	return nil
}

// reset prepares the parser for the next request. The head buffer is rewound, but its memory
// stays intact until the next request is fed, so the completed request remains valid.
func (p *Parser) reset() {
	p.headersNumber = 0
	p.requestLineSize = 0
	p.contentLengthSet = false
	p.headerKey = ""
	p.state = eMethod
	p.head.Clear()
}

func parseContentLength(value string) (length int64, ok bool) {
	if len(value) == 0 || len(value) > maxContentLengthDigits {
		return 0, false
	}

	for i := 0; i < len(value); i++ {
		char := value[i]
		if char < '0' || char > '9' {
			return 0, false
		}

		length = length*10 + int64(char-'0')
	}

	return length, true
}

// tokens iterates over the non-empty elements of a comma-separated list.
func tokens(value string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for len(value) > 0 {
			var token string
			comma := strings.IndexByte(value, ',')
			if comma == -1 {
				token, value = value, ""
			} else {
				token, value = value[:comma], value[comma+1:]
			}

			token = strings.TrimSpace(token)
			if len(token) == 0 {
				continue
			}

			if !yield(token) {
				return
			}
		}
	}
}

func trimSpaces(b []byte) []byte {
	for len(b) > 0 && (b[0] == ' ' || b[0] == '\t') {
		b = b[1:]
	}

	for len(b) > 0 && (b[len(b)-1] == ' ' || b[len(b)-1] == '\t') {
		b = b[:len(b)-1]
	}

	return b
}
