// Package health: TCP probe implementation.
package health

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// CheckTCP dials host:port and returns nil if the connection succeeds.
func CheckTCP(ctx context.Context, host string, port int, timeout time.Duration) error {
	if port == 0 {
		return fmt.Errorf("tcp probe: port is required")
	}
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	addr := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := &net.Dialer{Timeout: timeout}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("tcp dial %q: %w", addr, err)
	}
	conn.Close()
	return nil
}
