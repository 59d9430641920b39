package util

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"
)

// ParseIPv4 parses a numeric dotted-quad address.  The empty string
// means "any local address" and yields 0.0.0.0.  Hostnames are rejected:
// nothing in echosock performs DNS resolution.
func ParseIPv4(host string) (netip.Addr, error) {
	if host == "" {
		return netip.IPv4Unspecified(), nil
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("cannot parse %q as an IPv4 address", host)
	}
	if addr.Is4In6() {
		addr = addr.Unmap()
	}
	if !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("%q is not an IPv4 address", host)
	}
	return addr, nil
}

// FormatAddr returns "host:port".  An empty host is shown as 0.0.0.0.
func FormatAddr(host string, port int) string {
	if host == "" {
		host = "0.0.0.0"
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// FindFreePort returns an available TCP port on 127.0.0.1.
func FindFreePort() (int, error) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("finding free port: %w", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
