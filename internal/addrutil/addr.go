package addrutil

import (
	"net"
	"strconv"
	"strings"
)

// DefaultSSHPort is used when the router address carries no port.
const DefaultSSHPort = 22

// DialAddr builds a "host:port" address for the router's shell service.
//
// The configured host may already include a port ("192.168.8.1:2222"), be a
// bracketed or bare IPv6 literal, or be a plain hostname. An explicit port in
// the host wins over port; port <= 0 falls back to DefaultSSHPort.
func DialAddr(host string, port int) (string, bool) {
	h, p := splitHostPort(host)
	if h == "" {
		return "", false
	}
	if p == 0 {
		p = port
	}
	if p <= 0 {
		p = DefaultSSHPort
	}
	return net.JoinHostPort(h, strconv.Itoa(p)), true
}

func splitHostPort(addr string) (string, int) {
	a := strings.TrimSpace(addr)
	if a == "" {
		return "", 0
	}

	if h, p, err := net.SplitHostPort(a); err == nil {
		port, err := strconv.Atoi(p)
		if err != nil {
			return h, 0
		}
		return h, port
	}

	// A bare IPv6 literal has several colons and no brackets; never treat its
	// last group as a port.
	if strings.Count(a, ":") > 1 {
		return strings.Trim(a, "[]"), 0
	}
	return a, 0
}
