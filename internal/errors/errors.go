// Package errors provides domain-specific error types for echosock.
//
// Every socket failure is a *SocketError tagged with one of four kinds
// (resource, address, connect, I/O).  Callers match the kind with
// errors.Is against the sentinel of the same name, and inspect Op, Addr
// and the wrapped OS error for diagnostics.
package errors

import (
	"errors"
	"fmt"
	"syscall"
)

// ── Sentinel errors ──────────────────────────────────────────────────

var (
	ErrResource = errors.New("resource error")
	ErrAddress  = errors.New("address error")
	ErrConnect  = errors.New("connect error")
	ErrIO       = errors.New("i/o error")

	ErrClosed      = errors.New("use of closed handle")
	ErrAlreadyOpen = errors.New("handle already open")
	ErrInvalidSize = errors.New("invalid buffer size")
)

// Kind classifies a SocketError.
type Kind int

const (
	KindResource Kind = iota + 1 // descriptor allocation, listen queue, accept
	KindAddress                  // bind-time address or port problems
	KindConnect                  // outbound connect failures
	KindIO                       // send / receive failures
)

func (k Kind) String() string {
	switch k {
	case KindResource:
		return "resource"
	case KindAddress:
		return "address"
	case KindConnect:
		return "connect"
	case KindIO:
		return "io"
	default:
		return "unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindResource:
		return ErrResource
	case KindAddress:
		return ErrAddress
	case KindConnect:
		return ErrConnect
	case KindIO:
		return ErrIO
	default:
		return nil
	}
}

// ── Structured error types ───────────────────────────────────────────

// SocketError represents a failed operation on a transport handle.
type SocketError struct {
	Kind      Kind
	Op        string // "socket", "bind", "listen", "accept", "connect", "send", "recv"
	Addr      string // address involved, if any
	Err       error  // underlying error (usually a syscall.Errno)
	Retryable bool   // whether the same operation may succeed if repeated
}

func (e *SocketError) Error() string {
	s := e.Op
	if e.Addr != "" {
		s += " " + e.Addr
	}
	s += " failed: " + e.Err.Error()
	if e.Retryable {
		s += " (retryable)"
	}
	return s
}

func (e *SocketError) Unwrap() error { return e.Err }

// Is matches the sentinel that corresponds to the error's Kind, so that
// errors.Is(err, ErrAddress) works without unwrapping by hand.
func (e *SocketError) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field   string      // config field name
	Value   interface{} // the invalid value (nil if missing)
	Message string      // human-readable explanation
	Hint    string      // suggestion for the user (optional)
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("config: --%s", e.Field)
	if e.Value != nil {
		msg += fmt.Sprintf("=%v", e.Value)
	}
	msg += ": " + e.Message
	if e.Hint != "" {
		msg += "\n  hint: " + e.Hint
	}
	return msg
}

// ── Constructors ─────────────────────────────────────────────────────

// Wrap creates a SocketError of the given kind, detecting retryability
// from the underlying error.
func Wrap(kind Kind, op, addr string, err error) *SocketError {
	return &SocketError{
		Kind:      kind,
		Op:        op,
		Addr:      addr,
		Err:       err,
		Retryable: classifyRetryable(err),
	}
}

// Resource is shorthand for Wrap(KindResource, ...).
func Resource(op, addr string, err error) *SocketError {
	return Wrap(KindResource, op, addr, err)
}

// Address is shorthand for Wrap(KindAddress, ...).
func Address(op, addr string, err error) *SocketError {
	return Wrap(KindAddress, op, addr, err)
}

// Connect is shorthand for Wrap(KindConnect, ...).
func Connect(op, addr string, err error) *SocketError {
	return Wrap(KindConnect, op, addr, err)
}

// IO is shorthand for Wrap(KindIO, ...).
func IO(op, addr string, err error) *SocketError {
	return Wrap(KindIO, op, addr, err)
}

// ── Classification helpers ───────────────────────────────────────────

// KindOf returns the Kind of the first SocketError in err's chain, or 0.
func KindOf(err error) Kind {
	var se *SocketError
	if errors.As(err, &se) {
		return se.Kind
	}
	return 0
}

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var se *SocketError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return classifyRetryable(err)
}

// classifyRetryable inspects the errno behind err.  Descriptor and
// buffer exhaustion clear up on their own once other connections close,
// so they count as retryable alongside the errno's own Temporary hint.
func classifyRetryable(err error) bool {
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return false
	}
	switch errno {
	case syscall.EMFILE, syscall.ENFILE, syscall.ENOBUFS, syscall.ENOMEM,
		syscall.ECONNABORTED, syscall.EINTR, syscall.EAGAIN:
		return true
	}
	return errno.Temporary()
}

// ── Re-exports for convenience ───────────────────────────────────────
//
// These allow callers to use echosock/internal/errors as a drop-in
// replacement for the standard library in common operations.

// As is [errors.As].
func As(err error, target interface{}) bool { return errors.As(err, target) }

// Is is [errors.Is].
func Is(err, target error) bool { return errors.Is(err, target) }

// New is [errors.New].
func New(text string) error { return errors.New(text) }

// Unwrap is [errors.Unwrap].
func Unwrap(err error) error { return errors.Unwrap(err) }

// Join is [errors.Join].
func Join(errs ...error) error { return errors.Join(errs...) }
