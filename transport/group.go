package transport

import (
	"context"
	"net"
	"sync/atomic"
)

// Group runs several acceptors at once and stops all of them as soon as any stops.
type Group struct {
	stopped atomic.Bool
	ts      []boundTransport
}

func NewGroup() *Group {
	return new(Group)
}

// Add registers an already bound transport.
func (g *Group) Add(transport Transport, cb func(net.Conn)) {
	g.ts = append(g.ts, boundTransport{
		cb: cb,
		t:  transport,
	})
}

// Run accepts connections on every transport until ctx is done or one of them fails. All
// the sockets are closed when Run returns, however the connections accepted before may
// still be served. The first error met is returned.
func (g *Group) Run(ctx context.Context) error {
	if len(g.ts) == 0 {
		return nil
	}

	errch := make(chan error, len(g.ts))

	for _, t := range g.ts {
		go func(t boundTransport) {
			errch <- t.t.Listen(ctx, t.cb)
		}(t)
	}

	err := <-errch
	g.stop()
	for range len(g.ts) - 1 {
		if err2 := <-errch; err == nil {
			err = err2
		}
	}

	g.close()

	return err
}

// Wait blocks until all the accepted connections are served.
func (g *Group) Wait() {
	for _, t := range g.ts {
		t.t.Wait()
	}
}

// Close releases the sockets without running. Used when not every transport could be bound.
func (g *Group) Close() {
	g.close()
}

func (g *Group) stop() {
	if g.stopped.Swap(true) {
		return
	}

	for _, t := range g.ts {
		t.t.Stop()
	}
}

func (g *Group) close() {
	for _, t := range g.ts {
		t.t.Close()
	}
}

type boundTransport struct {
	cb func(conn net.Conn)
	t  Transport
}
