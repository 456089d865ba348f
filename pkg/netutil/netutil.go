// Package netutil provides network utility helpers used across agentdeck.
package netutil

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

// nodeIDRegex enforces identifiers the managed cloud accepts (e.g. node-123, node_abc).
var nodeIDRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_\-]{0,62}$`)

// IsValidNodeID returns true if id is an acceptable node identifier.
func IsValidNodeID(id string) bool {
	return nodeIDRegex.MatchString(id)
}

// IsValidPort returns true if port is in the user-space range (1024–65535).
func IsValidPort(port int) bool {
	return port >= 1024 && port <= 65535
}

// AgentEndpoint is a parsed agent address.
type AgentEndpoint struct {
	// Proto is "tcp" for http(s) URLs or "unix" for socket paths.
	Proto string
	// Addr is host:port for tcp or the socket path for unix.
	Addr string
	// BaseURL is the URL requests are issued against.
	BaseURL string
}

// ParseAgentURL accepts http://host:port, https://host:port or unix:///path.sock.
func ParseAgentURL(raw string) (AgentEndpoint, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return AgentEndpoint{}, fmt.Errorf("parse agent url %q: %w", raw, err)
	}
	switch u.Scheme {
	case "http", "https":
		if u.Host == "" {
			return AgentEndpoint{}, fmt.Errorf("agent url %q: host is required", raw)
		}
		return AgentEndpoint{
			Proto:   "tcp",
			Addr:    u.Host,
			BaseURL: strings.TrimRight(u.Scheme+"://"+u.Host+u.Path, "/"),
		}, nil
	case "unix":
		if u.Path == "" {
			return AgentEndpoint{}, fmt.Errorf("agent url %q: socket path is required", raw)
		}
		// The host part is ignored by the socket dialer.
		return AgentEndpoint{Proto: "unix", Addr: u.Path, BaseURL: "http://agent"}, nil
	default:
		return AgentEndpoint{}, fmt.Errorf("agent url %q: unsupported scheme %q", raw, u.Scheme)
	}
}

// SplitHostPort wraps net.SplitHostPort with a default port fallback.
func SplitHostPort(addr string, defaultPort int) (host string, port string, err error) {
	host, port, err = net.SplitHostPort(addr)
	if err != nil {
		// No port in addr: treat entire string as host
		return addr, fmt.Sprintf("%d", defaultPort), nil
	}
	return host, port, nil
}
