package config

import (
	"net"
	"strconv"
	"time"
)

type (
	// Address is where the server listens. It's never mutated after the server is started,
	// so all the workers share it read-only.
	Address struct {
		// Host is an interface to bind to. Empty string and 0.0.0.0 both mean all interfaces.
		Host string `yaml:"host"`
		// Port is a TCP port to bind to.
		Port uint16 `yaml:"port"`
		// Backlog is the maximal length of the queue of pending, not yet accepted connections.
		Backlog int `yaml:"backlog"`
	}

	URI struct {
		// MaxLength limits the whole request line (method, target and protocol). Exceeding
		// it results in 414 Request URI Too Long.
		MaxLength int `yaml:"max_length"`
	}

	Headers struct {
		// MaxSize is the maximal size of the whole request head, including the request line.
		// Exceeding it results in 431 Request Header Fields Too Large. This is what bounds the
		// memory a slow or malicious client may make us hold.
		MaxSize int `yaml:"max_size"`
		// MaxNumber is the maximal number of header fields in a single request.
		MaxNumber int `yaml:"max_number"`
		// Prealloc is the initial capacity of the headers storage.
		Prealloc int `yaml:"prealloc"`
		// Default headers are included into every response, unless the application sets
		// them explicitly.
		Default map[string]string `yaml:"default" test:"nullable"`
	}

	Body struct {
		// MaxSize is the maximal size of a request body. Declared Content-Length above it is
		// rejected with 413 before the application is called, chunked bodies are cut off
		// as soon as they cross it.
		MaxSize uint64 `yaml:"max_size"`
		// MaxDiscard is how many bytes of an unread request body the server is ready to
		// drain in order to keep the connection alive. Bigger leftovers close the connection.
		MaxDiscard uint64 `yaml:"max_discard"`
	}

	NET struct {
		// ReadBufferSize is the size of the per-connection buffer for reading from the socket.
		ReadBufferSize int `yaml:"read_buffer_size"`
		// WriteBufferSize is the initial size of the buffer the response head is rendered into.
		WriteBufferSize int `yaml:"write_buffer_size"`
		// ReadTimeout bounds every single read once a request has been started.
		ReadTimeout time.Duration `yaml:"read_timeout"`
		// IdleTimeout controls the maximal lifetime of idle keep-alive connections. If no data
		// was received in this period of time, the connection is closed.
		IdleTimeout time.Duration `yaml:"idle_timeout"`
		// WriteTimeout bounds every single write to the socket.
		WriteTimeout time.Duration `yaml:"write_timeout"`
		// MaxRequestsPerConn forces the connection to be closed after serving the number of
		// requests. Zero disables the limit.
		MaxRequestsPerConn int `yaml:"max_requests_per_conn" test:"nullable"`
		// TCPKeepAlive is the keep-alive period set on every accepted socket.
		TCPKeepAlive time.Duration `yaml:"tcp_keepalive"`
		// AcceptLoopInterruptPeriod controls how often the Accept() call is interrupted
		// in order to check whether it's time to stop.
		AcceptLoopInterruptPeriod time.Duration `yaml:"accept_loop_interrupt_period"`
		// ShutdownGrace is how long in-flight connections are waited for after the listener
		// stopped accepting. Connections still alive afterwards are closed forcefully.
		ShutdownGrace time.Duration `yaml:"shutdown_grace"`
		// Acceptors is the number of listening sockets (and accept loops) within a single
		// process. Values above 1 require ReusePort.
		Acceptors int `yaml:"acceptors"`
	}

	Workers struct {
		// Count is the number of worker processes. 1 runs everything in a single process.
		Count int `yaml:"count"`
		// ReusePort makes every worker bind the address by its own with SO_REUSEPORT instead
		// of inheriting a single socket bound by the supervisor.
		ReusePort bool `yaml:"reuse_port" test:"nullable"`
		// Restart is the policy applied to the workers exiting unexpectedly.
		Restart RestartPolicy `yaml:"restart"`
		// MaxRestarts limits the total number of restarts the supervisor does during its lifetime.
		MaxRestarts int `yaml:"max_restarts"`
		// GracePeriod is how long the supervisor waits for workers after propagating the
		// shutdown signal, before killing them.
		GracePeriod time.Duration `yaml:"grace_period"`
		// ReadyTimeout is how long a spawned worker may stay in Starting state.
		ReadyTimeout time.Duration `yaml:"ready_timeout"`
		// StatusFile, if set, is rewritten with a JSON snapshot of the workers on every change.
		StatusFile string `yaml:"status_file" test:"nullable"`
	}

	Log struct {
		// Level is the diagnostics threshold, 0 (disabled) to 8 (trace).
		Level int `yaml:"level"`
	}
)

// RestartPolicy tells the supervisor what to do when a worker exits without being asked to.
type RestartPolicy string

const (
	// RestartNever only logs the exit.
	RestartNever RestartPolicy = "never"
	// RestartOnFailure spawns a replacement, unless the worker failed to bind the address.
	RestartOnFailure RestartPolicy = "on-failure"
)

// Config holds settings used across all the parts of the server, mainly restrictions,
// limitations and pre-allocations.
//
// You must ALWAYS modify defaults (returned via Default()) and NEVER try to initialize the
// config manually. The config is never mutated once the server started.
type Config struct {
	Address Address `yaml:"address"`
	URI     URI     `yaml:"uri"`
	Headers Headers `yaml:"headers"`
	Body    Body    `yaml:"body"`
	NET     NET     `yaml:"net"`
	Workers Workers `yaml:"workers"`
	Log     Log     `yaml:"log"`
}

// Default returns default config.
func Default() *Config {
	return &Config{
		Address: Address{
			Host:    "0.0.0.0",
			Port:    5000,
			Backlog: 1024,
		},
		URI: URI{
			MaxLength: 8 * 1024,
		},
		Headers: Headers{
			MaxSize:   16 * 1024,
			MaxNumber: 100,
			Prealloc:  16,
			Default: map[string]string{
				"Server": "fastwsgi",
			},
		},
		Body: Body{
			MaxSize:    512 * 1024 * 1024, // 512 megabytes
			MaxDiscard: 256 * 1024,
		},
		NET: NET{
			ReadBufferSize:            4 * 1024,
			WriteBufferSize:           1024,
			ReadTimeout:               30 * time.Second,
			IdleTimeout:               90 * time.Second,
			WriteTimeout:              30 * time.Second,
			TCPKeepAlive:              60 * time.Second,
			AcceptLoopInterruptPeriod: 1 * time.Second,
			ShutdownGrace:             10 * time.Second,
			Acceptors:                 1,
		},
		Workers: Workers{
			Count:        1,
			Restart:      RestartNever,
			MaxRestarts:  16,
			GracePeriod:  15 * time.Second,
			ReadyTimeout: 10 * time.Second,
		},
		Log: Log{
			Level: 3,
		},
	}
}

// String returns host:port.
func (a Address) String() string {
	return net.JoinHostPort(a.Host, strconv.Itoa(int(a.Port)))
}
