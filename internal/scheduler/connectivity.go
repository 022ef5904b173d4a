package scheduler

import (
	"context"
	"net"
	"net/url"
	"time"
)

// Connectivity reports whether the backend is reachable. Jobs wait for
// connectivity before each attempt.
type Connectivity interface {
	Online(ctx context.Context) bool
}

// DialChecker probes reachability with a TCP dial against the API host.
type DialChecker struct {
	host    string
	timeout time.Duration
}

// NewDialChecker builds a checker for the host of the given base URL.
func NewDialChecker(baseURL string) *DialChecker {
	host := "example.com:443"
	if u, err := url.Parse(baseURL); err == nil && u.Host != "" {
		host = u.Host
		if u.Port() == "" {
			switch u.Scheme {
			case "http":
				host += ":80"
			default:
				host += ":443"
			}
		}
	}
	return &DialChecker{host: host, timeout: 5 * time.Second}
}

// Online implements Connectivity.
func (d *DialChecker) Online(ctx context.Context) bool {
	dialer := net.Dialer{Timeout: d.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", d.host)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
