package core

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"echosock/config"
	"echosock/internal/admin"
	"echosock/internal/dispatch"
	"echosock/internal/metrics"
	"echosock/util"
)

// ServeMode binds a listening socket and runs the echo dispatcher on it
// until the context is cancelled.  A bind or listen failure is returned
// before the accept loop is ever entered.
type ServeMode struct {
	Address   string // bind address; "" binds every IPv4 address
	Port      uint16 // 0 lets the kernel choose
	Backlog   int
	ChunkSize int
	Spawner   string // config.SpawnerPool or config.SpawnerGoroutine
	AdminAddr string // optional admin HTTP endpoint
	Logger    *util.Logger
	Metrics   *metrics.Collector

	// Bound, when set, receives the listener's "ip:port" once the
	// socket is listening.
	Bound func(addr string)
}

// Run listens and serves until ctx is cancelled.
func (m *ServeMode) Run(ctx context.Context) error {
	ln, err := dispatch.Listen(m.Address, m.Port, m.Backlog)
	if err != nil {
		return err
	}
	defer ln.Close()

	local := ln.LocalAddressText()
	m.Logger.Info("listening on %s", local)
	if m.Bound != nil {
		m.Bound(local)
	}

	spawner, release, err := m.spawner()
	if err != nil {
		return err
	}
	defer release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		serving atomic.Bool
		wg      sync.WaitGroup
	)
	if m.AdminAddr != "" {
		srv, err := m.startAdmin(ln.IsValid, serving.Load)
		if err != nil {
			return err
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Serve(ctx); err != nil {
				m.Logger.Error("admin: %v", err)
			}
		}()
	}

	d := &dispatch.Dispatcher{
		Listener:  ln,
		ChunkSize: m.ChunkSize,
		Spawner:   spawner,
		Logger:    m.Logger,
		Metrics:   m.Metrics,
	}

	serving.Store(true)
	err = d.Serve(ctx)
	serving.Store(false)

	cancel()
	wg.Wait()
	snap := m.Metrics.Snapshot()
	m.Logger.Verbose("stopped after %d connections, %d bytes echoed", snap.ConnectionsTotal, snap.BytesOut)
	m.Logger.Debug("final metrics: %s", m.Metrics.JSON())
	return err
}

// spawner returns the configured worker spawner and its release func.
func (m *ServeMode) spawner() (dispatch.Spawner, func(), error) {
	switch m.Spawner {
	case config.SpawnerGoroutine:
		return dispatch.GoSpawner{}, func() {}, nil
	case config.SpawnerPool, "":
		p, err := dispatch.NewPoolSpawner(func(v any) {
			m.Logger.Error("worker panic: %v", v)
			m.Metrics.WorkerPanicked(fmt.Sprint(v))
		})
		if err != nil {
			return nil, nil, err
		}
		return p, p.Release, nil
	default:
		return nil, nil, fmt.Errorf("unknown spawner %q", m.Spawner)
	}
}

// startAdmin binds the admin endpoint.  Readiness follows listening and
// liveness follows serving.
func (m *ServeMode) startAdmin(listening, serving func() bool) (*admin.Server, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if m.Metrics != nil {
		if err := reg.Register(m.Metrics); err != nil {
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}

	h := admin.Handler(reg, admin.Checks{
		Listening: listening,
		Serving:   serving,
	})
	return admin.Listen(m.AdminAddr, h, config.DefaultAdminShutdown, m.Logger)
}
