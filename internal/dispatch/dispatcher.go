// Package dispatch runs the accept loop of an echo server.
//
// The Dispatcher owns one listening handle and accepts connections
// strictly one after another.  Each accepted handle is moved into its
// own worker, which performs a single bounded echo and closes the
// connection.  Workers are fire-and-forget: the dispatcher never waits
// for, counts against a limit, or joins them.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"echosock/internal/metrics"
	"echosock/internal/socket"
	"echosock/util"
)

// DefaultChunkSize is the largest single read a worker echoes back.
const DefaultChunkSize = 4096

// Acceptor yields accepted connections.  *socket.Handle satisfies it.
type Acceptor interface {
	Accept() (*socket.Handle, error)
}

// shutdowner is implemented by acceptors whose blocked Accept can be
// woken from another goroutine.
type shutdowner interface {
	Shutdown()
}

// Listen builds a listening handle: create, bind, listen.  If any step
// fails the descriptor allocated by create is released before the error
// is returned.
func Listen(address string, port uint16, backlog int) (_ *socket.Handle, err error) {
	h := socket.New()
	if err := h.Create(); err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			h.Close()
		}
	}()

	if err = h.Bind(address, port); err != nil {
		return nil, err
	}
	if err = h.Listen(backlog); err != nil {
		return nil, err
	}
	return h, nil
}

// Dispatcher accepts connections and hands each one to a worker.
type Dispatcher struct {
	Listener  Acceptor
	ChunkSize int     // bytes per echo; DefaultChunkSize when <= 0
	Spawner   Spawner // GoSpawner when nil
	Logger    *util.Logger
	Metrics   *metrics.Collector

	// BackOff paces retries after consecutive accept failures.  It is
	// reset after every successful accept.  Nil selects an exponential
	// policy from 5ms to 1s.
	BackOff backoff.BackOff
}

// Serve runs the accept loop until ctx is cancelled.  Accept failures
// are logged and retried; they never end the loop.  When ctx is done the
// listener is shut down to wake a blocked Accept and Serve returns nil.
func (d *Dispatcher) Serve(ctx context.Context) error {
	if d.Listener == nil {
		return fmt.Errorf("dispatch: no listener")
	}
	spawner := d.Spawner
	if spawner == nil {
		spawner = GoSpawner{}
	}
	chunk := d.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	b := d.BackOff
	if b == nil {
		b = defaultBackOff()
	}
	b.Reset()

	if s, ok := d.Listener.(shutdowner); ok {
		stop := context.AfterFunc(ctx, s.Shutdown)
		defer stop()
	}

	for {
		conn, err := d.Listener.Accept()
		if ctx.Err() != nil {
			conn.Close()
			return nil
		}
		if err != nil {
			d.logger().Error("%v", err)
			d.Metrics.AcceptFailed(err.Error())
			if !d.pause(ctx, b.NextBackOff()) {
				return nil
			}
			continue
		}
		b.Reset()

		if !conn.IsValid() {
			d.logger().Error("accept returned an invalid connection handle")
			continue
		}
		d.dispatch(spawner, conn, chunk)
	}
}

// dispatch moves conn into a new worker.  It never blocks on the worker.
func (d *Dispatcher) dispatch(spawner Spawner, conn *socket.Handle, chunk int) {
	id := uuid.NewString()
	peer := conn.PeerAddressText()
	d.logger().Info("new connection: %s (conn %s)", peer, id)

	owned := conn.Take()
	d.Metrics.ConnectionOpened()
	err := spawner.Go(func() {
		defer d.Metrics.ConnectionClosed()
		d.work(id, owned, chunk)
	})
	if err != nil {
		d.logger().Error("conn %s: start worker: %v", id, err)
		owned.Close()
		d.Metrics.ConnectionClosed()
	}
}

func (d *Dispatcher) work(id string, h *socket.Handle, chunk int) {
	in, out, err := Echo(h, chunk)
	d.Metrics.BytesReceived(int64(in))
	d.Metrics.BytesSent(int64(out))
	switch {
	case err != nil:
		d.logger().Warn("conn %s: %v", id, err)
		d.Metrics.WorkerFailed(err.Error())
	case out < in:
		d.logger().Warn("conn %s: short write, sent %d of %d bytes", id, out, in)
		d.Metrics.ShortWrite()
	case in == 0:
		d.logger().Verbose("conn %s: peer closed without data", id)
	default:
		d.logger().Verbose("conn %s: echoed %d bytes", id, out)
	}
}

// Echo reads once, up to chunk bytes, sends exactly what was read in a
// single attempt and closes h.  An empty read (peer shutdown) is echoed
// as an empty send.  It reports the bytes received and sent.
func Echo(h *socket.Handle, chunk int) (received, sent int, err error) {
	defer h.Close()

	data, err := h.Receive(chunk)
	if err != nil {
		return 0, 0, err
	}
	n, err := h.Send(data)
	return len(data), n, err
}

// quietLogger prints errors only.  It stands in for a nil Logger.
var quietLogger = util.NewLogger(int(util.LogQuiet))

func (d *Dispatcher) logger() *util.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return quietLogger
}

// pause sleeps for wait, returning false if ctx ends first.
func (d *Dispatcher) pause(ctx context.Context, wait time.Duration) bool {
	if wait == backoff.Stop {
		wait = maxAcceptDelay
	}
	if wait <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = minAcceptDelay
	b.MaxInterval = maxAcceptDelay
	b.MaxElapsedTime = 0
	return b
}
