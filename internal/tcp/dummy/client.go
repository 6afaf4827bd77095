package dummy

import (
	"io"
	"net"
	"time"

	"github.com/indigo-web/fastwsgi/internal/tcp"
)

var _ tcp.Client = new(Client)

// Client returns the same data as it was initialised with on every read, unless set to
// shoot once. It also tracks all the written data, making it thereby a universal mock
// suitable for most of the tests.
type Client struct {
	closed  bool
	once    bool
	pointer int
	tmp     []byte
	written []byte
	data    [][]byte
	// WriteErr is returned by every Write, if set.
	WriteErr error
}

func NewMockClient(data ...[]byte) *Client {
	return &Client{
		data: data,
	}
}

// NewMockClientString splits nothing, simply wraps every string as a separate read.
func NewMockClientString(data ...string) *Client {
	pieces := make([][]byte, len(data))
	for i, piece := range data {
		pieces[i] = []byte(piece)
	}

	return NewMockClient(pieces...)
}

func (c *Client) Read() (data []byte, err error) {
	if c.closed {
		return nil, io.EOF
	}

	if len(c.tmp) > 0 {
		data, c.tmp = c.tmp, nil

		return data, nil
	}

	if c.pointer >= len(c.data) {
		if c.once {
			c.closed = true
			return nil, io.EOF
		}

		c.pointer = 0
	}

	piece := c.data[c.pointer]
	c.pointer++

	// hand out a copy, as the consumers are free to mutate the read buffer
	return append([]byte(nil), piece...), nil
}

func (c *Client) Unread(takeback []byte) {
	c.tmp = takeback
}

func (c *Client) Buffered() bool {
	return len(c.tmp) > 0
}

func (c *Client) SetReadTimeout(time.Duration) {}

func (c *Client) Write(p []byte) error {
	if c.WriteErr != nil {
		return c.WriteErr
	}

	c.written = append(c.written, p...)
	return nil
}

func (*Client) Remote() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 51234}
}

func (*Client) Local() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 5000}
}

func (c *Client) Close() error {
	c.closed = true
	return nil
}

// Closed reports whether the client was closed.
func (c *Client) Closed() bool {
	return c.closed
}

// Once makes the client return io.EOF after all the data was read once.
func (c *Client) Once() *Client {
	c.once = true
	return c
}

func (c *Client) Written() string {
	return string(c.written)
}

// Reset forgets all the written data.
func (c *Client) Reset() {
	c.written = c.written[:0]
}
