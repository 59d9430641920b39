package core

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"echosock/config"
	errs "echosock/internal/errors"
	"echosock/internal/metrics"
	"echosock/util"
)

// startServe runs m in the background and returns the bound address and
// a stop func that cancels the mode and returns its error.
func startServe(t *testing.T, m *ServeMode) (string, func() error) {
	t.Helper()
	bound := make(chan string, 1)
	m.Bound = func(addr string) { bound <- addr }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	var addr string
	select {
	case addr = <-bound:
	case err := <-done:
		cancel()
		t.Fatalf("serve exited early: %v", err)
	case <-time.After(3 * time.Second):
		cancel()
		t.Fatal("server never bound")
	}

	stop := func() error {
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(3 * time.Second):
			t.Fatal("server did not shut down in time")
			return nil
		}
	}
	return addr, stop
}

func newServe(spawner string) *ServeMode {
	return &ServeMode{
		Address:   "127.0.0.1",
		Backlog:   8,
		ChunkSize: 4096,
		Spawner:   spawner,
		Logger:    util.NewLogger(0),
		Metrics:   metrics.New(),
	}
}

func roundTrip(t *testing.T, addr, msg string) string {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(3 * time.Second)) //nolint:errcheck

	if _, err := conn.Write([]byte(msg)); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := io.ReadAll(conn)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return string(got)
}

// TestServeMode_Echo verifies end-to-end echo with both spawners.
func TestServeMode_Echo(t *testing.T) {
	for _, spawner := range []string{config.SpawnerPool, config.SpawnerGoroutine} {
		t.Run(spawner, func(t *testing.T) {
			m := newServe(spawner)
			addr, stop := startServe(t, m)

			if got := roundTrip(t, addr, "hello"); got != "hello" {
				t.Errorf("echo = %q, want %q", got, "hello")
			}
			if err := stop(); err != nil {
				t.Errorf("Run: %v", err)
			}
			if n := m.Metrics.TotalConnections(); n != 1 {
				t.Errorf("TotalConnections = %d, want 1", n)
			}
		})
	}
}

// TestServeMode_BindInUse verifies that a bind failure is returned as an
// address error and the server never reports itself as listening.
func TestServeMode_BindInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	m := newServe(config.SpawnerGoroutine)
	m.Port = uint16(port)
	m.Bound = func(string) { t.Error("server reported listening on a busy port") }

	err = m.Run(context.Background())
	if err == nil {
		t.Fatal("expected bind error")
	}
	if !errs.Is(err, errs.ErrAddress) {
		t.Errorf("got %v, want address error", err)
	}
	if n := m.Metrics.TotalConnections(); n != 0 {
		t.Errorf("TotalConnections = %d, want 0", n)
	}
}

// TestServeMode_Admin verifies the admin endpoint comes up alongside the
// echo listener and reports it ready without connecting to it.
func TestServeMode_Admin(t *testing.T) {
	adminPort, err := util.FindFreePort()
	if err != nil {
		t.Fatal(err)
	}
	m := newServe(config.SpawnerPool)
	m.AdminAddr = fmt.Sprintf("127.0.0.1:%d", adminPort)
	addr, stop := startServe(t, m)
	defer stop() //nolint:errcheck

	if got := roundTrip(t, addr, "ping"); got != "ping" {
		t.Fatalf("echo = %q", got)
	}

	base := "http://" + m.AdminAddr
	body := waitGet(t, base+"/metrics", http.StatusOK)
	for _, want := range []string{"echosock_connections_total", "go_goroutines"} {
		if !strings.Contains(body, want) {
			t.Errorf("/metrics missing %s", want)
		}
	}
	waitGet(t, base+"/live", http.StatusOK)
	for i := 0; i < 3; i++ {
		waitGet(t, base+"/ready", http.StatusOK)
	}
	if n := m.Metrics.TotalConnections(); n != 1 {
		t.Errorf("TotalConnections = %d, want 1; health checks must not reach the echo listener", n)
	}
}

// waitGet polls url until it answers with want, returning the body.
func waitGet(t *testing.T, url string, want int) string {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			if resp.StatusCode == want {
				return string(body)
			}
			err = fmt.Errorf("status %d: %s", resp.StatusCode, body)
		}
		if time.Now().After(deadline) {
			t.Fatalf("GET %s: %v", url, err)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
