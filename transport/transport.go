// Package transport owns the listening sockets: it binds them (or takes over the inherited
// ones) and runs the accept loops, handing every accepted connection to a callback.
package transport

import (
	"context"
	"fmt"
	"net"
)

type Transport interface {
	// Listen accepts connections until ctx is done or Stop is called, running cb for each
	// of them in a separate goroutine.
	Listen(ctx context.Context, cb func(conn net.Conn)) error
	// Stop makes Listen return soon.
	Stop()
	// Wait blocks until every callback started by Listen has returned.
	Wait()
	// Close releases the listening socket.
	Close()
}

// BindError is returned when the listening socket cannot be acquired. It's fatal for the
// worker.
type BindError struct {
	Addr string
	Err  error
}

func (b *BindError) Error() string {
	return fmt.Sprintf("bind %s: %s", b.Addr, b.Err)
}

func (b *BindError) Unwrap() error {
	return b.Err
}
