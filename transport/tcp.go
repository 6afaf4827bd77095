package transport

import (
	"context"
	"errors"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/indigo-web/fastwsgi/config"
	"github.com/indigo-web/fastwsgi/logging"
)

const (
	minAcceptBackoff = 5 * time.Millisecond
	maxAcceptBackoff = time.Second
)

type listener interface {
	net.Listener
	SetDeadline(t time.Time) error
}

var _ Transport = new(TCP)

type TCP struct {
	l      listener
	cfg    config.NET
	logger *logging.Logger
	wg     sync.WaitGroup
	stop   atomic.Bool
}

func NewTCP(cfg config.NET, logger *logging.Logger) *TCP {
	return &TCP{
		cfg:    cfg,
		logger: logger,
	}
}

// Bind creates the listening socket with the backlog of the address. With reusePort set,
// other sockets may be bound to the same address, so the kernel balances the connections
// between them.
func (t *TCP) Bind(addr config.Address, reusePort bool) error {
	l, err := listen(addr, reusePort)
	if err != nil {
		return &BindError{Addr: addr.String(), Err: err}
	}

	return t.use(l, addr.String())
}

// Inherit takes over the listening socket bound by someone else, usually the parent process.
// The file is closed afterwards, as the listener holds its own copy of the descriptor.
func (t *TCP) Inherit(file *os.File) error {
	defer file.Close()

	l, err := net.FileListener(file)
	if err != nil {
		return &BindError{Addr: file.Name(), Err: err}
	}

	return t.use(l, file.Name())
}

func (t *TCP) use(l net.Listener, addr string) error {
	tl, ok := l.(listener)
	if !ok {
		_ = l.Close()
		return &BindError{Addr: addr, Err: errors.New("not a stream socket")}
	}

	t.l = tl
	return nil
}

// Addr returns the address the socket is actually bound to.
func (t *TCP) Addr() net.Addr {
	return t.l.Addr()
}

// File returns a duplicate of the listening socket descriptor, suitable for passing to
// child processes.
func (t *TCP) File() (*os.File, error) {
	fl, ok := t.l.(interface{ File() (*os.File, error) })
	if !ok {
		return nil, errors.New("listener cannot be exported")
	}

	return fl.File()
}

func (t *TCP) Listen(ctx context.Context, cb func(conn net.Conn)) error {
	var backoff time.Duration

	for !t.stop.Load() && ctx.Err() == nil {
		err := t.l.SetDeadline(time.Now().Add(t.cfg.AcceptLoopInterruptPeriod))
		if err != nil {
			return err
		}

		conn, err := t.l.Accept()
		if err != nil {
			switch {
			case errors.Is(err, os.ErrDeadlineExceeded):
				continue
			case errors.Is(err, net.ErrClosed) && t.stop.Load():
				return nil
			case !isTransient(err):
				return err
			}

			backoff = min(max(backoff*2, minAcceptBackoff), maxAcceptBackoff)
			t.logger.WithError(err).With("retry_in", backoff.String()).Warning("failed to accept connection")
			time.Sleep(backoff)
			continue
		}

		backoff = 0
		t.setKeepAlive(conn)

		t.wg.Add(1)
		go func(conn net.Conn) {
			defer t.wg.Done()
			cb(conn)
			_ = conn.Close()
		}(conn)
	}

	return nil
}

func (t *TCP) setKeepAlive(conn net.Conn) {
	tcpConn, ok := conn.(*net.TCPConn)
	if !ok || t.cfg.TCPKeepAlive <= 0 {
		return
	}

	if err := tcpConn.SetKeepAlive(true); err != nil {
		t.logger.WithError(err).Debug("failed to enable TCP keepalive")
		return
	}

	_ = tcpConn.SetKeepAlivePeriod(t.cfg.TCPKeepAlive)
}

func (t *TCP) Stop() {
	t.stop.Store(true)
}

func (t *TCP) Close() {
	if t.l != nil {
		_ = t.l.Close()
	}
}

func (t *TCP) Wait() {
	t.wg.Wait()
}

// isTransient reports whether the accept loop may keep going after the error. Running out
// of descriptors or buffers is usually resolved by closing some connections, and aborted
// connections concern a single client only.
func isTransient(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	for _, errno := range []syscall.Errno{
		syscall.EMFILE, syscall.ENFILE, syscall.ENOBUFS, syscall.ENOMEM,
		syscall.ECONNABORTED, syscall.ECONNRESET, syscall.EINTR,
	} {
		if errors.Is(err, errno) {
			return true
		}
	}

	return false
}
