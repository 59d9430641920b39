// Package admin serves the operational HTTP endpoints of an echosock
// server: Prometheus metrics on /metrics, liveness on /live and
// readiness on /ready.
package admin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"echosock/util"
)

// Checks configures the health endpoints.  Neither check opens a
// connection to the echo listener, so probes never show up as echo
// traffic.
type Checks struct {
	// Listening reports whether the echo listener still owns its
	// descriptor.  It backs /ready.
	Listening func() bool

	// Serving reports whether the accept loop is running.  It backs
	// /live.
	Serving func() bool
}

// Handler builds the admin mux.  Health check results are exported on
// reg alongside everything already registered there.
func Handler(reg *prometheus.Registry, checks Checks) http.Handler {
	health := healthcheck.NewMetricsHandler(reg, "echosock")

	if checks.Serving != nil {
		health.AddLivenessCheck("accept-loop", func() error {
			if !checks.Serving() {
				return errors.New("accept loop is not running")
			}
			return nil
		})
	}
	if checks.Listening != nil {
		health.AddReadinessCheck("echo-listener", func() error {
			if !checks.Listening() {
				return errors.New("echo listener is closed")
			}
			return nil
		})
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	mux.HandleFunc("/live", health.LiveEndpoint)
	mux.HandleFunc("/ready", health.ReadyEndpoint)
	return mux
}

// Server is a started admin HTTP listener.
type Server struct {
	ln     net.Listener
	srv    *http.Server
	logger *util.Logger
	grace  time.Duration
}

// Listen binds addr.  Serve must be called to start answering.
func Listen(addr string, h http.Handler, grace time.Duration, logger *util.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("admin listen on %s: %w", addr, err)
	}
	return &Server{
		ln:     ln,
		srv:    &http.Server{Handler: h, ReadHeaderTimeout: 5 * time.Second},
		logger: logger,
		grace:  grace,
	}, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string { return s.ln.Addr().String() }

// Serve answers requests until ctx is cancelled, then shuts down,
// giving in-flight requests up to the grace period.
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		sctx, cancel := context.WithTimeout(context.Background(), s.grace)
		defer cancel()
		if err := s.srv.Shutdown(sctx); err != nil {
			s.logger.Warn("admin shutdown: %v", err)
		}
	})
	defer stop()

	s.logger.Verbose("admin endpoint on http://%s", s.Addr())
	err := s.srv.Serve(s.ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
