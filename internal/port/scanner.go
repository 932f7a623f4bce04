package port

import (
	"fmt"
	"net"
	"strconv"
)

// Scanner checks whether TCP ports are free on the host.
//
// It binds the port with net.Listen and closes the listener immediately.
// Asking the OS is more reliable than parsing /proc/net/* or shelling out
// to lsof/ss, neither of which works everywhere without extra privileges.
type Scanner struct {
	// host is the bind address probed. Empty means all interfaces, which
	// is where Docker publishes ports by default.
	host string
}

// NewScanner creates a Scanner that probes host. Pass "" (or "0.0.0.0")
// to probe all interfaces.
func NewScanner(host string) *Scanner {
	if host == "0.0.0.0" {
		host = ""
	}
	return &Scanner{host: host}
}

// IsPortAvailable reports whether port can be bound. Ports outside
// 1-65535 are never available.
func (s *Scanner) IsPortAvailable(port int) bool {
	if port < 1 || port > maxPort {
		return false
	}
	listener, err := net.Listen("tcp", net.JoinHostPort(s.host, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	_ = listener.Close()
	return true
}

// FindAvailablePort returns the first free port in [startPort, endPort].
//
// The search is sequential so the same free port is picked consistently,
// which keeps behaviour reproducible in tests and when debugging.
func (s *Scanner) FindAvailablePort(startPort, endPort int) (int, error) {
	for port := startPort; port <= endPort; port++ {
		if s.IsPortAvailable(port) {
			return port, nil
		}
	}
	return 0, fmt.Errorf("no available tcp port found in range %d-%d", startPort, endPort)
}
