package tcp

import (
	"net"
	"os"
	"time"

	"github.com/indigo-web/fastwsgi/internal/timer"
	"github.com/indigo-web/fastwsgi/internal/unreader"
)

// Client is an accepted connection as seen by the protocol code: reads return a piece of
// a reusable buffer that is valid until the next read, and every I/O operation is bounded
// by a deadline.
type Client interface {
	Read() ([]byte, error)
	Unread([]byte)
	// Buffered reports whether the next Read returns previously unread data without
	// touching the socket.
	Buffered() bool
	// SetReadTimeout changes the deadline applied to every subsequent read from the socket.
	SetReadTimeout(time.Duration)
	Write([]byte) error
	Remote() net.Addr
	Local() net.Addr
	Close() error
}

type client struct {
	unreader     *unreader.Unreader
	buff         []byte
	conn         net.Conn
	readTimeout  time.Duration
	writeTimeout time.Duration
	interrupted  func() bool
}

// NewClient wraps the connection. interrupted, if not nil, is consulted after the read
// deadline is set: when it reports true, the read fails with os.ErrDeadlineExceeded without
// touching the socket. This way a deadline pushed into the past concurrently can't be lost.
func NewClient(
	conn net.Conn, readTimeout, writeTimeout time.Duration, buff []byte, interrupted func() bool,
) Client {
	return &client{
		unreader:     new(unreader.Unreader),
		buff:         buff,
		conn:         conn,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		interrupted:  interrupted,
	}
}

func (c *client) Read() ([]byte, error) {
	return c.unreader.PendingOr(func() ([]byte, error) {
		if err := c.conn.SetReadDeadline(timer.Deadline(c.readTimeout)); err != nil {
			return nil, err
		}

		if c.interrupted != nil && c.interrupted() {
			return nil, os.ErrDeadlineExceeded
		}

		n, err := c.conn.Read(c.buff)

		return c.buff[:n], err
	})
}

func (c *client) Unread(b []byte) {
	c.unreader.Unread(b)
}

func (c *client) Buffered() bool {
	return c.unreader.Pending()
}

func (c *client) SetReadTimeout(timeout time.Duration) {
	c.readTimeout = timeout
}

func (c *client) Write(b []byte) error {
	if err := c.conn.SetWriteDeadline(timer.Deadline(c.writeTimeout)); err != nil {
		return err
	}

	_, err := c.conn.Write(b)

	return err
}

func (c *client) Remote() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *client) Local() net.Addr {
	return c.conn.LocalAddr()
}

func (c *client) Close() error {
	return c.conn.Close()
}
