// Command fastwsgi serves a registered application over HTTP.
//
//	fastwsgi [flags] <module>:<attribute>
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/indigo-web/fastwsgi"
	"github.com/indigo-web/fastwsgi/config"
	_ "github.com/indigo-web/fastwsgi/examples/apps"
	"github.com/indigo-web/fastwsgi/logging"
	"github.com/indigo-web/fastwsgi/prefork"
	"github.com/indigo-web/fastwsgi/wsgi"
)

var version = "dev"

const (
	exitOK      = 0
	exitFailure = 1
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	switch {
	case errors.Is(err, pflag.ErrHelp):
		return exitOK
	case err != nil:
		fmt.Fprintln(stderr, "fastwsgi:", err)
		return exitFailure
	case opts.version:
		fmt.Fprintln(stdout, version)
		return exitOK
	}

	level, err := logging.ParseLevel(opts.cfg.Log.Level)
	if err != nil {
		fmt.Fprintln(stderr, "fastwsgi:", err)
		return exitFailure
	}

	logger := logging.New(level, stderr)

	app, err := wsgi.Resolve(opts.locator)
	if err != nil {
		logger.WithError(err).Fatal("error importing WSGI app")
		return exitFailure
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = fastwsgi.New(opts.cfg, app).
		Logger(logger).
		Output(stdout).
		Run(ctx)
	switch {
	case err == nil:
		return exitOK
	case fastwsgi.IsBindFailure(err):
		logger.WithError(err).Fatal("failed to bind the listening socket")
		return prefork.ExitBindFailure
	default:
		logger.WithError(err).Fatal("server failed")
		return exitFailure
	}
}

type options struct {
	cfg     *config.Config
	locator string
	version bool
}

func parseArgs(args []string, stderr io.Writer) (options, error) {
	var (
		opts       options
		configPath string
		restart    string
		defaults   = config.Default()
	)

	flags := pflag.NewFlagSet("fastwsgi", pflag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() {
		fmt.Fprintln(stderr, "Usage: fastwsgi [flags] <module>:<attribute>")
		flags.PrintDefaults()
	}

	host := flags.String("host", defaults.Address.Host, "Host the socket is bound to.")
	port := flags.Uint16P("port", "p", defaults.Address.Port, "Port the socket is bound to.")
	backlog := flags.IntP("backlog", "b", defaults.Address.Backlog, "Maximal number of pending connections.")
	logLevel := flags.IntP("loglevel", "l", defaults.Log.Level, "Logging level, from 0 (disabled) to 8 (trace).")
	workers := flags.IntP("workers", "w", defaults.Workers.Count, "Number of worker processes.")
	reusePort := flags.Bool("reuse-port", defaults.Workers.ReusePort, "Bind a separate socket in every worker.")
	flags.StringVar(&restart, "restart", string(defaults.Workers.Restart), "Worker restart policy: never or on-failure.")
	flags.StringVarP(&configPath, "config", "c", "", "YAML configuration file. Flags override its values.")
	flags.BoolVar(&opts.version, "version", false, "Print the version and exit.")

	if err := flags.Parse(args); err != nil {
		return opts, err
	}

	if opts.version {
		return opts, nil
	}

	if flags.NArg() != 1 {
		flags.Usage()
		return opts, errors.New("exactly one application locator is expected")
	}

	opts.locator = flags.Arg(0)
	opts.cfg = defaults
	if len(configPath) > 0 {
		cfg, err := config.Load(configPath)
		if err != nil {
			return opts, err
		}

		opts.cfg = cfg
	}

	cfg := opts.cfg
	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	set("host", func() { cfg.Address.Host = *host })
	set("port", func() { cfg.Address.Port = *port })
	set("backlog", func() { cfg.Address.Backlog = *backlog })
	set("loglevel", func() { cfg.Log.Level = *logLevel })
	set("workers", func() { cfg.Workers.Count = *workers })
	set("reuse-port", func() { cfg.Workers.ReusePort = *reusePort })
	set("restart", func() { cfg.Workers.Restart = config.RestartPolicy(restart) })

	return opts, cfg.Validate()
}
