package cmd

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	errs "echosock/internal/errors"
)

// capture redirects the package stdout for the duration of a test.
func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = old })
	return &buf
}

// clearEnv unsets every ECHOSOCK_ variable for the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, kv := range os.Environ() {
		if k, _, _ := strings.Cut(kv, "="); strings.HasPrefix(k, "ECHOSOCK_") {
			t.Setenv(k, "")
		}
	}
}

// TestExecute_Version verifies --version prints a version string.
func TestExecute_Version(t *testing.T) {
	out := capture(t)
	if err := Execute(context.Background(), []string{"--version"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(out.String(), "echosock ") {
		t.Errorf("version output = %q", out.String())
	}
}

// TestExecute_Help verifies --help (and no args) returns without error.
func TestExecute_Help(t *testing.T) {
	for _, args := range [][]string{{"--help"}, {}} {
		name := "no-args"
		if len(args) > 0 {
			name = args[0]
		}
		t.Run(name, func(t *testing.T) {
			out := capture(t)
			if err := Execute(context.Background(), args); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(out.String(), "--spawner") {
				t.Errorf("usage does not list flags:\n%s", out.String())
			}
		})
	}
}

// TestExecute_DryRun verifies --dry-run validates and exits cleanly.
func TestExecute_DryRun(t *testing.T) {
	clearEnv(t)
	out := capture(t)
	err := Execute(context.Background(), []string{"-l", "-p", "8080", "--dry-run"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"mode:    listen", "address: 0.0.0.0:8080", "backlog: 5", "spawner: pool"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("dry-run output missing %q:\n%s", want, out.String())
		}
	}
}

// TestExecute_DryRunInvalid verifies --dry-run still catches bad configs.
func TestExecute_DryRunInvalid(t *testing.T) {
	clearEnv(t)
	capture(t)
	tests := [][]string{
		{"-l", "-s", "localhost", "-p", "80", "--dry-run"},
		{"-l", "-p", "80", "--chunk", "0", "--dry-run"},
		{"-l", "-p", "80", "--spawner", "threads", "--dry-run"},
		{"127.0.0.1", "80", "--admin", ":9100", "--dry-run"},
	}
	for _, args := range tests {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			err := Execute(context.Background(), args)
			var ce *errs.ConfigError
			if !errs.As(err, &ce) {
				t.Fatalf("got %v, want ConfigError", err)
			}
		})
	}
}

// TestExecute_InvalidFlags verifies unknown flags produce an error.
func TestExecute_InvalidFlags(t *testing.T) {
	capture(t)
	if err := Execute(context.Background(), []string{"--nonexistent-flag"}); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}

// TestExecute_Positional covers the positional forms.
func TestExecute_Positional(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		args    []string
		want    string
		wantErr bool
	}{
		{[]string{"-l", "4000", "--dry-run"}, "address: 0.0.0.0:4000", false},
		{[]string{"-l", "127.0.0.1", "4000", "--dry-run"}, "address: 127.0.0.1:4000", false},
		{[]string{"127.0.0.1", "4000", "--dry-run"}, "mode:    connect", false},
		{[]string{"127.0.0.1", "--dry-run"}, "", true},
		{[]string{"127.0.0.1", "http", "--dry-run"}, "", true},
		{[]string{"-l", "a", "b", "c", "--dry-run"}, "", true},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			out := capture(t)
			err := Execute(context.Background(), tt.args)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(out.String(), tt.want) {
				t.Errorf("output missing %q:\n%s", tt.want, out.String())
			}
		})
	}
}

// TestExecute_Precedence verifies flags beat env, and env beats the
// config file.
func TestExecute_Precedence(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "echosock.ini")
	body := "[server]\nlisten = true\nport = 1111\nbacklog = 11\nspawner = go\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("ECHOSOCK_CONFIG", path)
	t.Setenv("ECHOSOCK_PORT", "2222")
	t.Setenv("ECHOSOCK_BACKLOG", "22")

	out := capture(t)
	if err := Execute(context.Background(), []string{"-b", "33", "--dry-run"}); err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"mode:    listen",       // file
		"address: 0.0.0.0:2222", // env over file
		"backlog: 33",           // flag over env
		"spawner: go",           // file over default
		"config:  " + path,
	} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("output missing %q:\n%s", want, out.String())
		}
	}
}

// TestExecute_ConnectOneShot runs the client against a loopback echo.
func TestExecute_ConnectOneShot(t *testing.T) {
	clearEnv(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	got := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetDeadline(time.Now().Add(3 * time.Second)) //nolint:errcheck
		buf := make([]byte, 64)
		n, _ := conn.Read(buf)
		got <- string(buf[:n])
		conn.Write(buf[:n]) //nolint:errcheck
	}()

	port := ln.Addr().(*net.TCPAddr).Port
	err = Execute(context.Background(), []string{"-q", "127.0.0.1", fmt.Sprint(port), "-m", "ping"})
	if err != nil {
		t.Fatal(err)
	}
	select {
	case msg := <-got:
		if msg != "ping" {
			t.Errorf("server got %q", msg)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("server never received the message")
	}
}
