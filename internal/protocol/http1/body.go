package http1

import (
	"errors"
	"io"
	"math"

	"github.com/indigo-web/chunkedbody"
	"github.com/indigo-web/fastwsgi/config"
	"github.com/indigo-web/fastwsgi/http/status"
	"github.com/indigo-web/fastwsgi/internal/tcp"
)

// ErrDiscardLimit is returned by Body.Discard when the leftover of the body is too big to be
// drained, so the connection cannot be reused.
var ErrDiscardLimit = errors.New("unread request body exceeds the discard limit")

// Body streams the request body right from the connection, bounded by either the
// Content-Length or the chunked framing. The bytes following the body are unread back
// into the client, so they're parsed as the next request.
type Body struct {
	client  tcp.Client
	plain   plainBodyReader
	chunked chunkedBodyReader
	// beforeRead is called once right before the first read from the socket.
	beforeRead func() error
	isChunked  bool
	eof        bool
}

func NewBody(client tcp.Client, chunkedParser *chunkedbody.Parser, cfg config.Body) *Body {
	return &Body{
		client:  client,
		plain:   newPlainBodyReader(client),
		chunked: newChunkedBodyReader(client, cfg.MaxSize, chunkedParser),
	}
}

// Init prepares the body for reading the request's one.
func (b *Body) Init(request *Request) {
	b.isChunked = request.Chunked
	b.beforeRead = nil
	if b.isChunked {
		b.chunked.init()
		b.eof = false
	} else {
		b.plain.init(request.ContentLength)
		b.eof = request.ContentLength <= 0
	}
}

// BeforeRead sets a hook called once, right before the body is first read from the
// socket. It's used to send the interim 100 Continue response lazily.
func (b *Body) BeforeRead(fn func() error) {
	b.beforeRead = fn
}

// Retrieve returns the next piece of the body. The piece is valid until the next call.
// io.EOF marks the end of the body and may come along with the last piece.
func (b *Body) Retrieve() ([]byte, error) {
	if b.eof {
		return nil, io.EOF
	}

	if b.beforeRead != nil {
		hook := b.beforeRead
		b.beforeRead = nil
		if err := hook(); err != nil {
			return nil, err
		}
	}

	var (
		piece []byte
		err   error
	)

	if b.isChunked {
		piece, err = b.chunked.read()
	} else {
		piece, err = b.plain.read()
	}

	if err != nil {
		// both the completion and the failure are final
		b.eof = true
	}

	return piece, err
}

// Done reports whether the body was read until the end.
func (b *Body) Done() bool {
	return b.eof
}

// Discardable reports whether the rest of the body is expected to fit into the discard
// limit. The leftover of a chunked body is unknown until read, so it's assumed to fit.
func (b *Body) Discardable(limit uint64) bool {
	switch {
	case b.eof:
		return true
	case b.beforeRead != nil:
		return false
	case b.isChunked:
		return true
	default:
		return b.plain.bytesLeft <= limit
	}
}

// Discard reads the rest of the body out of the connection, but no more than limit bytes.
// ErrDiscardLimit is returned if the rest is bigger, so the caller must close the connection.
func (b *Body) Discard(limit uint64) error {
	if b.eof {
		return nil
	}

	if b.beforeRead != nil {
		// the client waits for a permission to send the body, which was never granted.
		// It may or may not send the body anyway, so the connection is in unknown state.
		return ErrDiscardLimit
	}

	if !b.isChunked && b.plain.bytesLeft > limit {
		return ErrDiscardLimit
	}

	var drained uint64

	for {
		piece, err := b.Retrieve()
		if drained += uint64(len(piece)); drained > limit {
			return ErrDiscardLimit
		}

		switch err {
		case nil:
		case io.EOF:
			return nil
		default:
			return err
		}
	}
}

type plainBodyReader struct {
	client    tcp.Client
	bytesLeft uint64
}

func newPlainBodyReader(client tcp.Client) plainBodyReader {
	return plainBodyReader{
		client: client,
	}
}

func (p *plainBodyReader) init(contentLength int64) {
	p.bytesLeft = uint64(max(contentLength, 0))
}

func (p *plainBodyReader) read() (body []byte, err error) {
	if p.bytesLeft == 0 {
		return nil, io.EOF
	}

	data, err := p.client.Read()
	if err != nil {
		return nil, unexpectedEOF(err)
	}

	if dataLen := uint64(len(data)); dataLen >= p.bytesLeft {
		body, data = data[:p.bytesLeft], data[p.bytesLeft:]
		p.client.Unread(data)
		p.bytesLeft = 0
		err = io.EOF
	} else {
		p.bytesLeft -= dataLen
		body = data
	}

	return body, err
}

type chunkedBodyReader struct {
	client     tcp.Client
	parser     *chunkedbody.Parser
	maxBodyLen uint64
	received   uint64
}

func newChunkedBodyReader(client tcp.Client, maxBodyLen uint64, parser *chunkedbody.Parser) chunkedBodyReader {
	return chunkedBodyReader{
		client:     client,
		maxBodyLen: maxBodyLen,
		parser:     parser,
	}
}

func (c *chunkedBodyReader) init() {
	c.received = 0
}

func (c *chunkedBodyReader) read() ([]byte, error) {
	for {
		data, err := c.client.Read()
		if err != nil {
			return nil, unexpectedEOF(err)
		}

		// trailer fields are discarded whether announced or not
		chunk, extra, err := c.parser.Parse(data, true)
		switch err {
		case nil, io.EOF:
		default:
			return nil, status.ErrBadChunk
		}

		received, overflows := adduint(c.received, uint64(len(chunk)))
		if overflows || received > c.maxBodyLen {
			return nil, status.ErrBodyTooLarge
		}

		c.received = received
		c.client.Unread(extra)

		if len(chunk) > 0 || err == io.EOF {
			return chunk, err
		}
	}
}

func adduint(x, y uint64) (uint64, bool) {
	return x + y, math.MaxUint64-x < y
}

// unexpectedEOF makes sure a client going away in the middle of the body isn't taken for
// the end of the body.
func unexpectedEOF(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}

	return err
}
