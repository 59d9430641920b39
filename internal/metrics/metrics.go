// Package metrics provides lightweight, lock-free counters and gauges
// for tracking runtime statistics of an echosock server.
//
// All methods are safe for concurrent use.  A nil *Collector is a
// valid no-op receiver, so callers never need to nil-check.  A Collector
// also implements prometheus.Collector and can be registered directly.
package metrics

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector tracks runtime metrics for an echosock server.
// A nil Collector is safe to use; all methods become no-ops.
type Collector struct {
	connectionsActive atomic.Int64
	connectionsTotal  atomic.Int64
	acceptErrors      atomic.Int64
	workerErrors      atomic.Int64
	workerPanics      atomic.Int64
	shortWrites       atomic.Int64
	bytesIn           atomic.Int64
	bytesOut          atomic.Int64

	mu           sync.RWMutex
	startTime    time.Time
	lastError    time.Time
	lastErrorMsg string
}

// New creates a metrics collector with the start time set to now.
func New() *Collector {
	return &Collector{startTime: time.Now()}
}

// ── Connection metrics ───────────────────────────────────────────────

// ConnectionOpened increments both the active and total counters.
func (c *Collector) ConnectionOpened() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(1)
	c.connectionsTotal.Add(1)
}

// ConnectionClosed decrements the active connection counter.
func (c *Collector) ConnectionClosed() {
	if c == nil {
		return
	}
	c.connectionsActive.Add(-1)
}

// ActiveConnections returns the number of workers still running.
func (c *Collector) ActiveConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsActive.Load()
}

// TotalConnections returns the lifetime accepted-connection count.
func (c *Collector) TotalConnections() int64 {
	if c == nil {
		return 0
	}
	return c.connectionsTotal.Load()
}

// ── I/O metrics ──────────────────────────────────────────────────────

// BytesReceived records n bytes read from the network.
func (c *Collector) BytesReceived(n int64) {
	if c == nil {
		return
	}
	c.bytesIn.Add(n)
}

// BytesSent records n bytes written to the network.
func (c *Collector) BytesSent(n int64) {
	if c == nil {
		return
	}
	c.bytesOut.Add(n)
}

// ShortWrite records a send that transmitted fewer bytes than requested.
func (c *Collector) ShortWrite() {
	if c == nil {
		return
	}
	c.shortWrites.Add(1)
}

// TotalBytesIn returns total bytes received.
func (c *Collector) TotalBytesIn() int64 {
	if c == nil {
		return 0
	}
	return c.bytesIn.Load()
}

// TotalBytesOut returns total bytes sent.
func (c *Collector) TotalBytesOut() int64 {
	if c == nil {
		return 0
	}
	return c.bytesOut.Load()
}

// ── Error metrics ────────────────────────────────────────────────────

// AcceptFailed records a failed accept and stores the message.
func (c *Collector) AcceptFailed(msg string) {
	if c == nil {
		return
	}
	c.acceptErrors.Add(1)
	c.recordError(msg)
}

// WorkerFailed records a send/receive failure inside a worker.
func (c *Collector) WorkerFailed(msg string) {
	if c == nil {
		return
	}
	c.workerErrors.Add(1)
	c.recordError(msg)
}

// WorkerPanicked records a worker that panicked.
func (c *Collector) WorkerPanicked(msg string) {
	if c == nil {
		return
	}
	c.workerPanics.Add(1)
	c.recordError(msg)
}

func (c *Collector) recordError(msg string) {
	c.mu.Lock()
	c.lastError = time.Now()
	c.lastErrorMsg = msg
	c.mu.Unlock()
}

// AcceptErrors returns the number of failed accepts.
func (c *Collector) AcceptErrors() int64 {
	if c == nil {
		return 0
	}
	return c.acceptErrors.Load()
}

// WorkerErrors returns the number of failed workers.
func (c *Collector) WorkerErrors() int64 {
	if c == nil {
		return 0
	}
	return c.workerErrors.Load()
}

// ── Snapshot ─────────────────────────────────────────────────────────

// Snapshot is a point-in-time view of all metrics.
type Snapshot struct {
	Uptime            string `json:"uptime"`
	ConnectionsActive int64  `json:"connections_active"`
	ConnectionsTotal  int64  `json:"connections_total"`
	AcceptErrors      int64  `json:"accept_errors"`
	WorkerErrors      int64  `json:"worker_errors"`
	WorkerPanics      int64  `json:"worker_panics"`
	ShortWrites       int64  `json:"short_writes"`
	BytesIn           int64  `json:"bytes_in"`
	BytesOut          int64  `json:"bytes_out"`
	LastError         string `json:"last_error,omitempty"`
	LastErrorMessage  string `json:"last_error_message,omitempty"`
}

// Snapshot returns a copy of all current metrics.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Snapshot{
		Uptime:            time.Since(c.startTime).Truncate(time.Second).String(),
		ConnectionsActive: c.connectionsActive.Load(),
		ConnectionsTotal:  c.connectionsTotal.Load(),
		AcceptErrors:      c.acceptErrors.Load(),
		WorkerErrors:      c.workerErrors.Load(),
		WorkerPanics:      c.workerPanics.Load(),
		ShortWrites:       c.shortWrites.Load(),
		BytesIn:           c.bytesIn.Load(),
		BytesOut:          c.bytesOut.Load(),
	}
	if !c.lastError.IsZero() {
		s.LastError = c.lastError.Format(time.RFC3339)
		s.LastErrorMessage = c.lastErrorMsg
	}
	return s
}

// JSON returns the snapshot as an indented JSON string.
func (c *Collector) JSON() string {
	s := c.Snapshot()
	data, _ := json.MarshalIndent(s, "", "  ")
	return string(data)
}

// ── Prometheus ───────────────────────────────────────────────────────

const namespace = "echosock"

var (
	descActive       = prometheus.NewDesc(namespace+"_connections_active", "Workers currently handling a connection.", nil, nil)
	descAccepted     = prometheus.NewDesc(namespace+"_connections_total", "Connections accepted.", nil, nil)
	descAcceptErrors = prometheus.NewDesc(namespace+"_accept_errors_total", "Failed accept calls.", nil, nil)
	descWorkerErrors = prometheus.NewDesc(namespace+"_worker_errors_total", "Workers that ended with a send or receive error.", nil, nil)
	descWorkerPanics = prometheus.NewDesc(namespace+"_worker_panics_total", "Workers that panicked.", nil, nil)
	descShortWrites  = prometheus.NewDesc(namespace+"_short_writes_total", "Echo sends that transmitted fewer bytes than received.", nil, nil)
	descBytes        = prometheus.NewDesc(namespace+"_bytes_total", "Bytes moved by workers.", []string{"direction"}, nil)
	descUptime       = prometheus.NewDesc(namespace+"_uptime_seconds", "Seconds since the collector was created.", nil, nil)
)

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- descActive
	ch <- descAccepted
	ch <- descAcceptErrors
	ch <- descWorkerErrors
	ch <- descWorkerPanics
	ch <- descShortWrites
	ch <- descBytes
	ch <- descUptime
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	if c == nil {
		return
	}
	ch <- prometheus.MustNewConstMetric(descActive, prometheus.GaugeValue, float64(c.connectionsActive.Load()))
	ch <- prometheus.MustNewConstMetric(descAccepted, prometheus.CounterValue, float64(c.connectionsTotal.Load()))
	ch <- prometheus.MustNewConstMetric(descAcceptErrors, prometheus.CounterValue, float64(c.acceptErrors.Load()))
	ch <- prometheus.MustNewConstMetric(descWorkerErrors, prometheus.CounterValue, float64(c.workerErrors.Load()))
	ch <- prometheus.MustNewConstMetric(descWorkerPanics, prometheus.CounterValue, float64(c.workerPanics.Load()))
	ch <- prometheus.MustNewConstMetric(descShortWrites, prometheus.CounterValue, float64(c.shortWrites.Load()))
	ch <- prometheus.MustNewConstMetric(descBytes, prometheus.CounterValue, float64(c.bytesIn.Load()), "in")
	ch <- prometheus.MustNewConstMetric(descBytes, prometheus.CounterValue, float64(c.bytesOut.Load()), "out")

	c.mu.RLock()
	start := c.startTime
	c.mu.RUnlock()
	ch <- prometheus.MustNewConstMetric(descUptime, prometheus.GaugeValue, time.Since(start).Seconds())
}
