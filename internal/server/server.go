// Package server runs the request loop of every accepted connection: it reads and parses
// request heads, hands requests to the application through the gateway and decides whether
// the connection is kept alive.
package server

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/indigo-web/chunkedbody"
	"github.com/indigo-web/fastwsgi/config"
	"github.com/indigo-web/fastwsgi/http/headers"
	"github.com/indigo-web/fastwsgi/internal/buffer"
	"github.com/indigo-web/fastwsgi/internal/gateway"
	"github.com/indigo-web/fastwsgi/internal/protocol/http1"
	"github.com/indigo-web/fastwsgi/internal/tcp"
	"github.com/indigo-web/fastwsgi/logging"
	"github.com/indigo-web/fastwsgi/wsgi"
)

// Server holds everything shared by the connections of a single worker.
type Server struct {
	cfg      *config.Config
	app      wsgi.Application
	logger   *logging.Logger
	shutdown atomic.Bool

	mu    sync.Mutex
	conns map[*conn]struct{}
}

func New(cfg *config.Config, app wsgi.Application, logger *logging.Logger) *Server {
	return &Server{
		cfg:    cfg,
		app:    app,
		logger: logger,
		conns:  make(map[*conn]struct{}),
	}
}

// OnConn serves the accepted connection until it's closed. It's meant to be passed as the
// callback to the transport.
func (s *Server) OnConn(netConn net.Conn) {
	var c *conn
	client := tcp.NewClient(
		netConn,
		s.cfg.NET.IdleTimeout,
		s.cfg.NET.WriteTimeout,
		make([]byte, s.cfg.NET.ReadBufferSize),
		func() bool { return c.interrupted() },
	)

	c = s.newConn(client, netConn)
	s.run(c)
}

// Serve runs the request loop over the client until the connection is closed.
func (s *Server) Serve(client tcp.Client) {
	s.run(s.newConn(client, nil))
}

func (s *Server) run(c *conn) {
	s.track(c)
	defer s.untrack(c)

	c.Run()
}

func (s *Server) newConn(client tcp.Client, netConn net.Conn) *conn {
	cfg := s.cfg
	logger := s.logger
	if remote := client.Remote(); remote != nil {
		logger = logger.With("remote", remote.String())
	}

	request := http1.NewRequest(headers.NewPrealloc(cfg.Headers.Prealloc))
	head := buffer.New(min(cfg.NET.ReadBufferSize, cfg.Headers.MaxSize), cfg.Headers.MaxSize)
	serializer := http1.NewSerializer(make([]byte, 0, cfg.NET.WriteBufferSize), cfg.Headers.Default, client)
	chunked := chunkedbody.NewParser(chunkedbody.DefaultSettings())

	return &conn{
		server:     s,
		netConn:    netConn,
		client:     client,
		logger:     logger,
		request:    request,
		parser:     http1.NewParser(request, head, cfg),
		body:       http1.NewBody(client, chunked, cfg.Body),
		serializer: serializer,
		adapter:    gateway.New(s.app, client, serializer, cfg, logger),
	}
}

func (s *Server) track(c *conn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(c *conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

// Shutdown makes every connection close after the request it currently serves. Connections
// waiting idle for the next request are woken up and closed right away.
func (s *Server) Shutdown() {
	s.shutdown.Store(true)

	s.mu.Lock()
	defer s.mu.Unlock()

	for c := range s.conns {
		c.wake()
	}
}

// ShuttingDown reports whether Shutdown was called.
func (s *Server) ShuttingDown() bool {
	return s.shutdown.Load()
}

// Close forcefully closes all the connections, including those in the middle of a request.
func (s *Server) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for c := range s.conns {
		_ = c.client.Close()
	}
}

// Active returns the number of connections currently being served.
func (s *Server) Active() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.conns)
}

// interrupted reports whether the idle connection must not wait for the next request. It's
// checked after every read deadline is set, as the deadline set by wake may be overwritten.
func (c *conn) interrupted() bool {
	return c.idle.Load() && c.server.ShuttingDown()
}

// wake interrupts a read the idle connection is blocked on.
func (c *conn) wake() {
	if c.netConn != nil && c.idle.Load() {
		_ = c.netConn.SetReadDeadline(time.Now())
	}
}
