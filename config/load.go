package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// MaxLogLevel is the most verbose log level.
const MaxLogLevel = 8

// Load reads the YAML file at path over the defaults, so the file needs to list only the
// values it overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err = dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}

	return cfg, cfg.Validate()
}

// Validate rejects values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Address.Port == 0 {
		errs = append(errs, errors.New("address.port: must be non-zero"))
	}
	if c.Address.Backlog <= 0 {
		errs = append(errs, errors.New("address.backlog: must be positive"))
	}
	if c.NET.ReadBufferSize <= 0 {
		errs = append(errs, errors.New("net.read_buffer_size: must be positive"))
	}
	if c.Headers.MaxSize < c.URI.MaxLength {
		errs = append(errs, errors.New("headers.max_size: must not be less than uri.max_length"))
	}
	if c.NET.Acceptors < 1 {
		errs = append(errs, errors.New("net.acceptors: must be at least 1"))
	}
	if c.NET.Acceptors > 1 && !c.Workers.ReusePort {
		errs = append(errs, errors.New("net.acceptors: multiple acceptors require workers.reuse_port"))
	}
	if c.Workers.Count < 1 {
		errs = append(errs, errors.New("workers.count: must be at least 1"))
	}

	switch c.Workers.Restart {
	case RestartNever, RestartOnFailure:
	default:
		errs = append(errs, fmt.Errorf("workers.restart: unknown policy %q", c.Workers.Restart))
	}

	if c.Log.Level < 0 || c.Log.Level > MaxLogLevel {
		errs = append(errs, fmt.Errorf("log.level: must be within 0..%d", MaxLogLevel))
	}

	return errors.Join(errs...)
}
