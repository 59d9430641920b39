// Package config defines the runtime configuration for echosock and the
// validation rules applied before any socket is opened.
package config

import (
	errs "echosock/internal/errors"
	"echosock/util"
)

// Spawner names accepted by --spawner.
const (
	SpawnerPool      = "pool"
	SpawnerGoroutine = "go"
)

// Config holds every tuneable for a single echosock process.
type Config struct {
	// ── Connection ───────────────────────────────────────────────────
	Listen bool
	Host   string // bind address (listen) or target address (connect)
	Port   int

	// ── Server ───────────────────────────────────────────────────────
	Backlog   int
	ChunkSize int
	Spawner   string // "pool" or "go"
	AdminAddr string // host:port for /metrics, /live, /ready; empty disables

	// ── Client ───────────────────────────────────────────────────────
	Message string // payload sent in connect mode; stdin when empty

	// ── Sources ──────────────────────────────────────────────────────
	ConfigFile string

	// ── Output ───────────────────────────────────────────────────────
	Verbose int
}

// Defaults returns a Config populated from defaults.go.
func Defaults() *Config {
	return &Config{
		Backlog:   DefaultBacklog,
		ChunkSize: DefaultChunkSize,
		Spawner:   DefaultSpawner,
		Verbose:   DefaultVerbosity,
	}
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Listen {
		if c.Port < 0 || c.Port > 65535 {
			return &errs.ConfigError{
				Field:   "port",
				Value:   c.Port,
				Message: "out of range 0-65535",
				Hint:    "use 0 to let the kernel pick a free port",
			}
		}
	} else {
		if c.Host == "" {
			return &errs.ConfigError{
				Field:   "host",
				Message: "required in connect mode",
				Hint:    "echosock <host> <port>, or -l to listen",
			}
		}
		if c.Port < 1 || c.Port > 65535 {
			return &errs.ConfigError{
				Field:   "port",
				Value:   c.Port,
				Message: "out of range 1-65535",
			}
		}
	}

	if _, err := util.ParseIPv4(c.Host); err != nil {
		return &errs.ConfigError{
			Field:   "host",
			Value:   c.Host,
			Message: err.Error(),
			Hint:    "hostnames are not resolved; give a numeric IPv4 address",
		}
	}

	if c.Backlog < 1 {
		return &errs.ConfigError{
			Field:   "backlog",
			Value:   c.Backlog,
			Message: "must be at least 1",
		}
	}

	if c.ChunkSize < 1 || c.ChunkSize > MaxChunkSize {
		return &errs.ConfigError{
			Field:   "chunk",
			Value:   c.ChunkSize,
			Message: "out of range",
			Hint:    "use a size between 1 and 1048576 bytes",
		}
	}

	switch c.Spawner {
	case SpawnerPool, SpawnerGoroutine:
	default:
		return &errs.ConfigError{
			Field:   "spawner",
			Value:   c.Spawner,
			Message: "unknown worker spawner",
			Hint:    `use "pool" or "go"`,
		}
	}

	if c.AdminAddr != "" && !c.Listen {
		return &errs.ConfigError{
			Field:   "admin",
			Value:   c.AdminAddr,
			Message: "only available in listen mode",
		}
	}

	return nil
}
