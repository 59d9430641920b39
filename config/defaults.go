package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags, config file parsing, and environment variable
// loading.

const (
	// DefaultBacklog is the listen queue length.
	DefaultBacklog = 5

	// DefaultChunkSize is the largest single read a worker echoes.
	DefaultChunkSize = 4096

	// MaxChunkSize bounds --chunk.
	MaxChunkSize = 1 << 20

	// DefaultSpawner selects the ants-backed worker pool.
	DefaultSpawner = SpawnerPool

	// DefaultVerbosity prints connection and error lines.
	DefaultVerbosity = 1

	// DefaultAdminShutdown is how long the admin HTTP server gets to
	// finish in-flight requests on exit.
	DefaultAdminShutdown = 2 * time.Second
)
