package config

// loader.go - configuration loading from an ini file and the environment.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables
//   3. Config file (--config / ECHOSOCK_CONFIG)
//   4. Defaults   (defaults.go)

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/ini.v1"

	errs "echosock/internal/errors"
)

// ── Config file ──────────────────────────────────────────────────────
//
// Recognised keys:
//
//	[server]
//	listen     = true
//	address    = 127.0.0.1
//	port       = 4000
//	backlog    = 5
//	chunk_size = 4096
//	spawner    = pool
//
//	[admin]
//	address = 127.0.0.1:9100
//
//	[log]
//	verbose = 2

// LoadFile overlays the keys present in the ini file at path onto cfg.
// Missing keys leave the existing value untouched.
func LoadFile(cfg *Config, path string) error {
	f, err := ini.Load(path)
	if err != nil {
		return fmt.Errorf("config file %s: %w", path, err)
	}

	server := f.Section("server")
	if err := fileBool(server, "listen", &cfg.Listen); err != nil {
		return err
	}
	if k, err := server.GetKey("address"); err == nil {
		cfg.Host = k.String()
	}
	for name, dst := range map[string]*int{
		"port":       &cfg.Port,
		"backlog":    &cfg.Backlog,
		"chunk_size": &cfg.ChunkSize,
	} {
		if err := fileInt(server, name, dst); err != nil {
			return err
		}
	}
	if k, err := server.GetKey("spawner"); err == nil {
		cfg.Spawner = k.String()
	}

	if k, err := f.Section("admin").GetKey("address"); err == nil {
		cfg.AdminAddr = k.String()
	}
	return fileInt(f.Section("log"), "verbose", &cfg.Verbose)
}

func fileInt(sec *ini.Section, name string, dst *int) error {
	k, err := sec.GetKey(name)
	if err != nil {
		return nil
	}
	v, err := k.Int()
	if err != nil {
		return &errs.ConfigError{
			Field:   name,
			Value:   k.String(),
			Message: fmt.Sprintf("[%s] %s is not an integer", sec.Name(), name),
		}
	}
	*dst = v
	return nil
}

func fileBool(sec *ini.Section, name string, dst *bool) error {
	k, err := sec.GetKey(name)
	if err != nil {
		return nil
	}
	v, err := k.Bool()
	if err != nil {
		return &errs.ConfigError{
			Field:   name,
			Value:   k.String(),
			Message: fmt.Sprintf("[%s] %s is not a boolean", sec.Name(), name),
		}
	}
	*dst = v
	return nil
}

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the ECHOSOCK_ prefix.  Boolean values
// accept "1", "true", "yes" (case-insensitive).

// ConfigFileFromEnv returns ECHOSOCK_CONFIG.
func ConfigFileFromEnv() string {
	return os.Getenv("ECHOSOCK_CONFIG")
}

// LoadFromEnv overlays environment variables onto cfg.  Only non-empty
// env vars override the existing value.  This should be called BEFORE
// CLI flags are applied so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("ECHOSOCK_HOST"); v != "" {
		cfg.Host = v
	}
	if v := envInt("ECHOSOCK_PORT"); v > 0 {
		cfg.Port = v
	}
	if envBool("ECHOSOCK_LISTEN") {
		cfg.Listen = true
	}
	if v := envInt("ECHOSOCK_BACKLOG"); v > 0 {
		cfg.Backlog = v
	}
	if v := envInt("ECHOSOCK_CHUNK"); v > 0 {
		cfg.ChunkSize = v
	}
	if v := os.Getenv("ECHOSOCK_SPAWNER"); v != "" {
		cfg.Spawner = v
	}
	if v := os.Getenv("ECHOSOCK_ADMIN"); v != "" {
		cfg.AdminAddr = v
	}
	if v := envInt("ECHOSOCK_VERBOSE"); v > 0 {
		cfg.Verbose = v
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) int {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func envBool(key string) bool {
	v := strings.ToLower(os.Getenv(key))
	return v == "1" || v == "true" || v == "yes"
}
