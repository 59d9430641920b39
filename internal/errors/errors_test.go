package errors

import (
	"fmt"
	"io"
	"syscall"
	"testing"
)

func TestSocketError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  SocketError
		want string
	}{
		{
			name: "retryable",
			err:  SocketError{Kind: KindResource, Op: "accept", Addr: "0.0.0.0:4000", Err: syscall.EMFILE, Retryable: true},
			want: "accept 0.0.0.0:4000 failed: too many open files (retryable)",
		},
		{
			name: "non-retryable",
			err:  SocketError{Kind: KindAddress, Op: "bind", Addr: "127.0.0.1:80", Err: syscall.EADDRINUSE},
			want: "bind 127.0.0.1:80 failed: address already in use",
		},
		{
			name: "no address",
			err:  SocketError{Kind: KindIO, Op: "recv", Err: io.EOF},
			want: "recv failed: EOF",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSocketError_KindSentinels(t *testing.T) {
	tests := []struct {
		kind Kind
		want error
	}{
		{KindResource, ErrResource},
		{KindAddress, ErrAddress},
		{KindConnect, ErrConnect},
		{KindIO, ErrIO},
	}
	all := []error{ErrResource, ErrAddress, ErrConnect, ErrIO}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			err := fmt.Errorf("startup: %w", Wrap(tt.kind, "op", "", syscall.EINVAL))
			for _, s := range all {
				if got := Is(err, s); got != (s == tt.want) {
					t.Errorf("Is(%v) = %v", s, got)
				}
			}
			if KindOf(err) != tt.kind {
				t.Errorf("KindOf = %v, want %v", KindOf(err), tt.kind)
			}
		})
	}
}

func TestSocketError_Unwrap(t *testing.T) {
	err := IO("send", "", syscall.EPIPE)
	if !Is(err, syscall.EPIPE) {
		t.Error("should unwrap to the errno")
	}
	err = Resource("listen", "", ErrClosed)
	if !Is(err, ErrClosed) || !Is(err, ErrResource) {
		t.Error("should match both ErrClosed and ErrResource")
	}
}

func TestConfigError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  ConfigError
		want string
	}{
		{
			name: "with value and hint",
			err: ConfigError{
				Field:   "port",
				Value:   99999,
				Message: "out of range 1-65535",
				Hint:    "use a port between 1 and 65535",
			},
			want: "config: --port=99999: out of range 1-65535\n  hint: use a port between 1 and 65535",
		},
		{
			name: "missing value no hint",
			err: ConfigError{
				Field:   "port",
				Message: "required with -l",
			},
			want: "config: --port: required with -l",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("got:\n%s\nwant:\n%s", got, tt.want)
			}
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"fd exhaustion", Resource("accept", "", syscall.EMFILE), true},
		{"aborted", Resource("accept", "", syscall.ECONNABORTED), true},
		{"in use", Address("bind", "", syscall.EADDRINUSE), false},
		{"bare errno", syscall.ENFILE, true},
		{"plain error", fmt.Errorf("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSentinels(t *testing.T) {
	sentinels := []error{
		ErrResource, ErrAddress, ErrConnect, ErrIO,
		ErrClosed, ErrAlreadyOpen, ErrInvalidSize,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j && Is(a, b) {
				t.Errorf("sentinel %d and %d should not match", i, j)
			}
		}
	}
}
