package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync/atomic"

	"github.com/indigo-web/fastwsgi/http/status"
	"github.com/indigo-web/fastwsgi/internal/gateway"
	"github.com/indigo-web/fastwsgi/internal/protocol"
	"github.com/indigo-web/fastwsgi/internal/protocol/http1"
	"github.com/indigo-web/fastwsgi/internal/tcp"
	"github.com/indigo-web/fastwsgi/logging"
)

// conn is the per-connection state. Everything here is reused by the requests of the
// connection, so a keep-alive connection allocates nearly nothing per request.
type conn struct {
	server     *Server
	netConn    net.Conn
	client     tcp.Client
	logger     *logging.Logger
	request    *http1.Request
	parser     *http1.Parser
	body       *http1.Body
	serializer *http1.Serializer
	adapter    *gateway.Adapter
	state      connState
	served     int
	// idle is set while waiting for the first byte of the next request.
	idle atomic.Bool
}

// Run serves requests until the connection must be closed, and closes it.
func (c *conn) Run() {
	c.toIdle()

	for c.HandleRequest() {
	}

	c.setState(eClose)
	_ = c.client.Close()
}

// HandleRequest does a single read from the client and processes it. The request is served
// as soon as its head is complete. false means the connection must be closed.
func (c *conn) HandleRequest() (ok bool) {
	if c.idle.Load() && !c.client.Buffered() && c.server.ShuttingDown() {
		c.logger.Trace("closing idle connection due to shutdown")
		return false
	}

	data, err := c.client.Read()
	if err != nil {
		c.onReadError(err)
		return false
	}

	if c.idle.Load() && len(data) > 0 {
		c.idle.Store(false)
		c.client.SetReadTimeout(c.server.cfg.NET.ReadTimeout)
		c.setState(eReadingHeaders)
	}

	state, extra, err := c.parser.Parse(data)
	switch state {
	case protocol.Pending:
		return true
	case protocol.HeadersCompleted:
		c.client.Unread(extra)
		return c.serve()
	case protocol.Error:
		c.logger.WithError(err).Debug("malformed request")
		c.writeError(err)
		return false
	default:
		panic(fmt.Sprintf("BUG: unexpected parser state: %s", state))
	}
}

func (c *conn) serve() (keepAlive bool) {
	cfg := c.server.cfg
	c.served++
	c.body.Init(c.request)

	persist := !c.server.ShuttingDown() &&
		(cfg.NET.MaxRequestsPerConn == 0 || c.served < cfg.NET.MaxRequestsPerConn)

	c.setState(eDispatching)
	keepAlive, err := c.adapter.Serve(c.request, c.body, persist)
	if err != nil {
		if !errors.Is(err, gateway.ErrApplication) {
			c.logger.WithError(err).Debug("failed to serve request")
		}

		return false
	}

	if !keepAlive {
		return false
	}

	c.setState(eReadingBody)
	if err = c.body.Discard(cfg.Body.MaxDiscard); err != nil {
		c.logger.WithError(err).Debug("request body could not be discarded")
		return false
	}

	c.request.Reset()
	c.toIdle()

	return true
}

func (c *conn) toIdle() {
	c.setState(eKeepAlive)
	c.client.SetReadTimeout(c.server.cfg.NET.IdleTimeout)
	c.idle.Store(true)
}

func (c *conn) onReadError(err error) {
	switch {
	case c.idle.Load():
		// the client is gone or didn't send a thing in time, there's nobody to respond to
		c.logger.WithError(err).Trace("idle connection closed")
	case c.server.ShuttingDown():
	case errors.Is(err, os.ErrDeadlineExceeded):
		c.logger.Debug("request timed out")
		c.writeError(status.ErrRequestTimeout)
	case errors.Is(err, io.EOF):
		c.logger.Debug("client disconnected in the middle of a request")
	default:
		c.logger.WithError(err).Debug("failed to read from the client")
	}
}

// writeError responds with the error, if nothing was sent in response to the current
// request yet. The connection is closed afterwards anyway.
func (c *conn) writeError(err error) {
	c.setState(eWritingResponse)
	if writeErr := c.serializer.WriteError(c.request.Proto, err); writeErr != nil {
		c.logger.WithError(writeErr).Trace("failed to write error response")
	}
}

func (c *conn) setState(state connState) {
	c.state = state
	if c.logger.Enabled(logging.Trace) {
		c.logger.With("state", state.String()).Trace("connection state changed")
	}
}
