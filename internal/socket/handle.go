// Package socket wraps a single OS stream-socket descriptor in a Handle
// with exclusive ownership.
//
// A Handle is either OPEN (it owns a valid descriptor) or CLOSED.  The
// zero value, including one embedded in another struct, and the result
// of New are CLOSED; Create and Accept produce
// OPEN handles.  Exactly one Handle owns a descriptor at any time:
// ownership moves with Take, which leaves the source CLOSED, and a
// Handle must never be copied by value (go vet reports copies through
// the embedded noCopy marker).
//
// Close is idempotent and never fails.  If an OPEN handle becomes
// unreachable without being closed, a finalizer closes it, so no exit
// path leaks the descriptor.  Send and Receive perform exactly one
// syscall each; callers that need every byte delivered use SendAll.
package socket

import (
	"net/netip"
	"runtime"
	"sync/atomic"
	"syscall"

	errs "echosock/internal/errors"
)

// DefaultBacklog is the listen queue length used when Listen is given a
// non-positive value.
const DefaultBacklog = 5

// noCopy may be embedded into structs which must not be copied after
// first use.  See https://golang.org/issues/8005#issuecomment-190753527.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Handle owns at most one socket descriptor.
type Handle struct {
	_ noCopy

	// own is nil when CLOSED.  The descriptor lives in its own heap
	// object so the finalizer can be attached wherever the Handle is
	// allocated, including inside another struct.
	own atomic.Pointer[owner]

	local netip.AddrPort // set by Bind
	peer  netip.AddrPort // set only on accepted handles
}

// owner holds one descriptor and one subsystem reference.  It is
// released exactly once: by release, or by its finalizer when it
// becomes unreachable.
type owner struct {
	fd int
}

// newOwner wraps fd.  The subsystem reference for fd must already be
// held.
func newOwner(fd int) *owner {
	o := &owner{fd: fd}
	runtime.SetFinalizer(o, (*owner).release)
	return o
}

func (o *owner) release() {
	runtime.SetFinalizer(o, nil)
	closeFD(o.fd)
	subsystem.release()
}

// New returns a CLOSED handle.  Call Create to allocate a descriptor.
func New() *Handle {
	return &Handle{}
}

// Wrap returns an OPEN handle that takes ownership of fd, recording peer
// as its remote endpoint (the zero AddrPort when unknown).  The caller
// must not use or close fd afterwards.  A negative fd is rejected
// without touching the subsystem.
func Wrap(fd int, peer netip.AddrPort) (*Handle, error) {
	if fd < 0 {
		return nil, errs.Resource("wrap", "", syscall.EBADF)
	}
	if err := subsystem.acquire(); err != nil {
		return nil, err
	}
	h := &Handle{peer: peer}
	h.own.Store(newOwner(fd))
	return h, nil
}

// load returns the owner of the descriptor, or ok=false when CLOSED.
// Callers keep the owner alive with runtime.KeepAlive until their
// syscall returns.
func (h *Handle) load() (o *owner, ok bool) {
	if h == nil {
		return nil, false
	}
	o = h.own.Load()
	return o, o != nil
}

// IsValid reports whether the handle is OPEN.
func (h *Handle) IsValid() bool {
	_, ok := h.load()
	return ok
}

// Fd returns the raw descriptor, or -1 when CLOSED.  Ownership stays
// with the handle.
func (h *Handle) Fd() int {
	if o, ok := h.load(); ok {
		return o.fd
	}
	return -1
}

// Take moves ownership of the descriptor and its addresses into a new
// handle and leaves h CLOSED.  Taking from a CLOSED handle returns a
// CLOSED handle.
func (h *Handle) Take() *Handle {
	t := &Handle{}
	if h == nil {
		return t
	}
	if o := h.own.Swap(nil); o != nil {
		t.own.Store(o)
	}
	t.local, t.peer = h.local, h.peer
	h.local, h.peer = netip.AddrPort{}, netip.AddrPort{}
	return t
}

// Close releases the descriptor if the handle is OPEN and marks it
// CLOSED.  It is safe to call any number of times, from any goroutine;
// the descriptor is released exactly once.  Errors from the OS are
// discarded.
func (h *Handle) Close() {
	if h == nil {
		return
	}
	if o := h.own.Swap(nil); o != nil {
		o.release()
	}
}

// PeerAddr returns the remote endpoint of an accepted handle.
func (h *Handle) PeerAddr() (netip.AddrPort, bool) {
	if h == nil || !h.peer.IsValid() {
		return netip.AddrPort{}, false
	}
	return h.peer, true
}

// PeerAddressText returns the remote IP of an accepted handle, or "".
func (h *Handle) PeerAddressText() string {
	if p, ok := h.PeerAddr(); ok {
		return p.Addr().String()
	}
	return ""
}

// LocalAddressText returns "ip:port" of the bound address, or "".
func (h *Handle) LocalAddressText() string {
	if h == nil || !h.local.IsValid() {
		return ""
	}
	return h.local.String()
}

// LocalPort returns the bound port, which is the kernel-chosen port when
// Bind was given 0.
func (h *Handle) LocalPort() uint16 {
	if h == nil {
		return 0
	}
	return h.local.Port()
}

// SendAll calls Send until every byte of p has been transmitted.
func SendAll(h *Handle, p []byte) error {
	for len(p) > 0 {
		n, err := h.Send(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}
