// Package core is the orchestration layer.  It composes sockets, the
// dispatcher and the admin endpoint into complete operational modes and
// provides a builder that selects the right mode from a Config.
//
// Architecture layers (bottom → top):
//
//	socket  →  dispatch  →  core  →  cmd (CLI)
//
// The builder in this package is the single dispatch point between
// parsed configuration and a running mode.
package core

import "context"

// Mode represents a complete operational mode of echosock (serve or
// connect).  Each mode owns its full lifecycle from socket creation to
// teardown.
type Mode interface {
	Run(ctx context.Context) error
}
