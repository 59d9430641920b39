//go:build unix

package socket

import (
	"net/netip"
	"runtime"
	"syscall"

	"golang.org/x/sys/unix"

	errs "echosock/internal/errors"
	"echosock/util"
)

// No per-process initialisation is required on Unix.
func platformStartup() error { return nil }
func platformCleanup()       {}

func closeFD(fd int) {
	_ = unix.Close(fd)
}

// Create allocates a new IPv4 stream descriptor.  The handle must be
// CLOSED.
func (h *Handle) Create() error {
	if h.IsValid() {
		return errs.Resource("socket", "", errs.ErrAlreadyOpen)
	}
	if err := subsystem.acquire(); err != nil {
		return err
	}

	// Hold ForkLock so a concurrent fork cannot inherit fd before
	// close-on-exec is set.
	syscall.ForkLock.RLock()
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err == nil {
		unix.CloseOnExec(fd)
	}
	syscall.ForkLock.RUnlock()
	if err != nil {
		subsystem.release()
		return errs.Resource("socket", "", err)
	}

	o := newOwner(fd)
	if !h.own.CompareAndSwap(nil, o) {
		o.release()
		return errs.Resource("socket", "", errs.ErrAlreadyOpen)
	}
	return nil
}

// Bind assigns the local address.  An empty address binds every local
// IPv4 address; otherwise it must be a numeric IPv4 literal.  Port 0
// asks the kernel for an ephemeral port, readable from LocalPort.
func (h *Handle) Bind(address string, port uint16) error {
	where := util.FormatAddr(address, int(port))
	o, ok := h.load()
	if !ok {
		return errs.Address("bind", where, errs.ErrClosed)
	}
	ip, err := util.ParseIPv4(address)
	if err != nil {
		return errs.Address("bind", where, err)
	}

	err = unix.Bind(o.fd, &unix.SockaddrInet4{Port: int(port), Addr: ip.As4()})
	if err != nil {
		runtime.KeepAlive(o)
		return errs.Address("bind", where, err)
	}

	h.local = netip.AddrPortFrom(ip, port)
	if sa, err := unix.Getsockname(o.fd); err == nil {
		if ap, ok := addrPortOf(sa); ok {
			h.local = ap
		}
	}
	runtime.KeepAlive(o)
	return nil
}

// Listen marks the handle as passive.  backlog <= 0 uses DefaultBacklog.
func (h *Handle) Listen(backlog int) error {
	o, ok := h.load()
	if !ok {
		return errs.Resource("listen", "", errs.ErrClosed)
	}
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	err := unix.Listen(o.fd, backlog)
	runtime.KeepAlive(o)
	if err != nil {
		return errs.Resource("listen", h.LocalAddressText(), err)
	}
	return nil
}

// Accept blocks until a peer connects and returns a new OPEN handle that
// owns the connection.  The listening handle is left untouched, even on
// failure.  A blocked Accept holds no subsystem reference of its own.
func (h *Handle) Accept() (*Handle, error) {
	o, ok := h.load()
	if !ok {
		return nil, errs.Resource("accept", "", errs.ErrClosed)
	}

	var (
		nfd int
		sa  unix.Sockaddr
		err error
	)
	for {
		syscall.ForkLock.RLock()
		nfd, sa, err = unix.Accept(o.fd)
		if err == nil {
			unix.CloseOnExec(nfd)
		}
		syscall.ForkLock.RUnlock()
		if err != unix.EINTR {
			break
		}
	}
	runtime.KeepAlive(o)
	if err != nil {
		return nil, errs.Resource("accept", h.LocalAddressText(), err)
	}

	peer, _ := addrPortOf(sa)
	c, err := Wrap(nfd, peer)
	if err != nil {
		closeFD(nfd)
		return nil, err
	}
	if lsa, err := unix.Getsockname(nfd); err == nil {
		c.local, _ = addrPortOf(lsa)
	}
	return c, nil
}

// Connect blocks until a connection to address:port is established.  On
// failure the handle stays OPEN but must not be reused.
func (h *Handle) Connect(address string, port uint16) error {
	where := util.FormatAddr(address, int(port))
	o, ok := h.load()
	if !ok {
		return errs.Connect("connect", where, errs.ErrClosed)
	}
	ip, err := util.ParseIPv4(address)
	if err != nil {
		return errs.Connect("connect", where, err)
	}

	err = unix.Connect(o.fd, &unix.SockaddrInet4{Port: int(port), Addr: ip.As4()})
	switch err {
	case nil:
	case unix.EINTR, unix.EINPROGRESS:
		// An interrupted connect keeps going in the kernel; wait for it.
		err = waitConnected(o.fd)
	}
	if err != nil {
		runtime.KeepAlive(o)
		return errs.Connect("connect", where, err)
	}
	if sa, err := unix.Getsockname(o.fd); err == nil {
		h.local, _ = addrPortOf(sa)
	}
	runtime.KeepAlive(o)
	return nil
}

func waitConnected(fd int) error {
	pfd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	for {
		_, err := unix.Poll(pfd, -1)
		if err == nil {
			break
		}
		if err != unix.EINTR {
			return err
		}
	}
	soErr, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if soErr != 0 {
		return unix.Errno(soErr)
	}
	return nil
}

// Send makes one transmit attempt and returns how many bytes the kernel
// accepted, which may be fewer than len(p).
func (h *Handle) Send(p []byte) (int, error) {
	o, ok := h.load()
	if !ok {
		return 0, errs.IO("send", "", errs.ErrClosed)
	}
	if len(p) == 0 {
		return 0, nil
	}
	var (
		n   int
		err error
	)
	for {
		n, err = unix.SendmsgN(o.fd, p, nil, nil, unix.MSG_NOSIGNAL)
		if err != unix.EINTR {
			break
		}
	}
	runtime.KeepAlive(o)
	if err != nil {
		return 0, errs.IO("send", h.PeerAddressText(), err)
	}
	return n, nil
}

// Receive makes one receive attempt into a buffer of maxSize bytes.  It
// blocks until data arrives, the peer shuts down or an error occurs.  A
// non-nil empty slice with a nil error means the peer closed its side.
func (h *Handle) Receive(maxSize int) ([]byte, error) {
	o, ok := h.load()
	if !ok {
		return nil, errs.IO("recv", "", errs.ErrClosed)
	}
	if maxSize <= 0 {
		return nil, errs.IO("recv", "", errs.ErrInvalidSize)
	}
	buf := make([]byte, maxSize)
	var (
		n   int
		err error
	)
	for {
		n, _, err = unix.Recvfrom(o.fd, buf, 0)
		if err != unix.EINTR {
			break
		}
	}
	runtime.KeepAlive(o)
	if err != nil {
		return nil, errs.IO("recv", h.PeerAddressText(), err)
	}
	return buf[:n], nil
}

// Shutdown disables further sends and receives without releasing the
// descriptor.  On a listening handle it wakes a goroutine blocked in
// Accept.  Errors are discarded.
func (h *Handle) Shutdown() {
	o, ok := h.load()
	if !ok {
		return
	}
	_ = unix.Shutdown(o.fd, unix.SHUT_RDWR)
	runtime.KeepAlive(o)
}

func addrPortOf(sa unix.Sockaddr) (netip.AddrPort, bool) {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(sa.Addr), uint16(sa.Port)), true
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(sa.Addr).Unmap(), uint16(sa.Port)), true
	default:
		return netip.AddrPort{}, false
	}
}
