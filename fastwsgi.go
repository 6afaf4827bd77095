// Package fastwsgi serves applications following the WSGI calling convention over HTTP/1.1,
// in a single process or in a pool of pre-forked worker processes.
package fastwsgi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/indigo-web/fastwsgi/config"
	"github.com/indigo-web/fastwsgi/internal/server"
	"github.com/indigo-web/fastwsgi/logging"
	"github.com/indigo-web/fastwsgi/prefork"
	"github.com/indigo-web/fastwsgi/transport"
	"github.com/indigo-web/fastwsgi/wsgi"
)

// App binds the configuration and the application together.
type App struct {
	cfg    *config.Config
	app    wsgi.Application
	logger *logging.Logger
	out    io.Writer
	hooks  hooks
}

// New returns a new App instance. The configuration must not be modified afterwards.
func New(cfg *config.Config, app wsgi.Application) *App {
	return &App{
		cfg:    cfg,
		app:    app,
		logger: logging.Stderr(logging.Level(cfg.Log.Level)),
		out:    os.Stdout,
	}
}

// Logger replaces the default logger, writing to stderr.
func (a *App) Logger(logger *logging.Logger) *App {
	a.logger = logger
	return a
}

// Output sets where the startup banner goes to. Stdout by default.
func (a *App) Output(w io.Writer) *App {
	a.out = w
	return a
}

// NotifyOnStart calls the callback at the moment the process starts accepting connections.
// In the supervisor process it's called after the workers are spawned.
func (a *App) NotifyOnStart(cb func()) *App {
	a.hooks.OnStart = cb
	return a
}

// NotifyOnStop calls the callback at the moment all the connections are closed, or all the
// workers exited.
func (a *App) NotifyOnStop(cb func()) *App {
	a.hooks.OnStop = cb
	return a
}

// Run starts the server in the mode determined by the configuration and the environment:
// as a worker if spawned by the supervisor, as the supervisor if more than one worker is
// configured, and as a standalone server otherwise. It returns after ctx is done and the
// shutdown completes.
func (a *App) Run(ctx context.Context) error {
	if id, ok := prefork.WorkerID(); ok {
		return a.Worker(ctx, id)
	}

	if a.cfg.Workers.Count > 1 {
		return a.Supervise(ctx)
	}

	return a.Serve(ctx)
}

// Serve runs the server in the current process only.
func (a *App) Serve(ctx context.Context) error {
	acceptors, err := a.bind()
	if err != nil {
		return err
	}

	a.banner()
	fmt.Fprintln(a.out, "Running on PID:", os.Getpid())

	return a.serve(ctx, acceptors)
}

// Worker runs the server as the worker with the given id. The listening socket is inherited
// from the supervisor if passed, otherwise a new one is bound.
func (a *App) Worker(ctx context.Context, id int) error {
	a.logger = a.logger.With("worker", id).With("pid", os.Getpid())

	file, err := prefork.InheritedListener()
	if err != nil {
		return &transport.BindError{Addr: a.cfg.Address.String(), Err: err}
	}

	var acceptors []*transport.TCP
	if file != nil {
		tcp := transport.NewTCP(a.cfg.NET, a.logger)
		if err = tcp.Inherit(file); err != nil {
			return err
		}

		acceptors = append(acceptors, tcp)
	} else if acceptors, err = a.bind(); err != nil {
		return err
	}

	onStart := a.hooks.OnStart
	a.hooks.OnStart = func() {
		if err := prefork.NotifyReady(); err != nil {
			a.logger.WithError(err).Warning("failed to report readiness")
		}

		callIfNotNil(onStart)
	}

	return a.serve(ctx, acceptors)
}

// Supervise spawns the workers and watches them until ctx is done. In the shared socket
// mode the socket is bound here once and passed down to every worker.
func (a *App) Supervise(ctx context.Context) error {
	var listener *os.File

	if !a.cfg.Workers.ReusePort {
		tcp := transport.NewTCP(a.cfg.NET, a.logger)
		if err := tcp.Bind(a.cfg.Address, false); err != nil {
			return err
		}

		defer tcp.Close()

		file, err := tcp.File()
		if err != nil {
			return &transport.BindError{Addr: a.cfg.Address.String(), Err: err}
		}

		defer file.Close()
		listener = file
	}

	spawner, err := prefork.NewExecSpawner(listener)
	if err != nil {
		return err
	}

	a.banner()

	supervisor := prefork.New(a.cfg.Workers, spawner, a.logger)
	callIfNotNil(a.hooks.OnStart)
	err = supervisor.Run(ctx)
	callIfNotNil(a.hooks.OnStop)

	return err
}

func (a *App) bind() ([]*transport.TCP, error) {
	n := max(a.cfg.NET.Acceptors, 1)
	reusePort := a.cfg.Workers.ReusePort || n > 1
	acceptors := make([]*transport.TCP, 0, n)

	for range n {
		tcp := transport.NewTCP(a.cfg.NET, a.logger)
		if err := tcp.Bind(a.cfg.Address, reusePort); err != nil {
			for _, acceptor := range acceptors {
				acceptor.Close()
			}

			return nil, err
		}

		acceptors = append(acceptors, tcp)
	}

	return acceptors, nil
}

func (a *App) serve(ctx context.Context, acceptors []*transport.TCP) error {
	srv := server.New(a.cfg, a.app, a.logger)
	group := transport.NewGroup()
	for _, acceptor := range acceptors {
		group.Add(acceptor, srv.OnConn)
	}

	a.logger.With("address", a.cfg.Address.String()).Info("accepting connections")
	callIfNotNil(a.hooks.OnStart)
	err := group.Run(ctx)

	// stop listening to new clients and process till the end all the old ones
	srv.Shutdown()
	if !waitFor(group.Wait, a.cfg.NET.ShutdownGrace) {
		a.logger.Emitf(
			logging.Warning, "%d connections outlived the %s shutdown grace period, closing them",
			srv.Active(), a.cfg.NET.ShutdownGrace,
		)
		srv.Close()
		group.Wait()
	}

	callIfNotNil(a.hooks.OnStop)
	a.logger.Info("server stopped")

	return err
}

func (a *App) banner() {
	addr := a.cfg.Address
	fmt.Fprintf(a.out, "\n==== FastWSGI ==== \nHost: %s\nPort: %d\n==================\n\n", addr.Host, addr.Port)
	fmt.Fprintf(a.out, "Server listening at http://%s\n", addr.String())
}

// Run is a shorthand for New(cfg, app).Run(ctx).
func Run(ctx context.Context, cfg *config.Config, app wsgi.Application) error {
	return New(cfg, app).Run(ctx)
}

// IsBindFailure tells whether the error returned by Run means the listening socket could
// not be acquired.
func IsBindFailure(err error) bool {
	var bindErr *transport.BindError
	return errors.As(err, &bindErr)
}

func waitFor(fn func(), timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		fn()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

type hooks struct {
	OnStart, OnStop func()
}

func callIfNotNil(f func()) {
	if f != nil {
		f()
	}
}
