package pool

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/Sternrassler/go-fetch/pkg/locator"
)

// Dialer opens new transport streams for an origin. Implementations must
// not keep connection state; pooling is the Pool's job.
type Dialer interface {
	Dial(ctx context.Context, origin locator.Origin) (net.Conn, error)
}

// NetDialer dials TCP and, for https origins, wraps the stream in TLS
// using the system trust roots and the origin host as the verification
// name.
type NetDialer struct {
	// Timeout bounds TCP connect and TLS handshake together.
	Timeout time.Duration

	// KeepAlive is the TCP keep-alive period.
	KeepAlive time.Duration
}

// DefaultNetDialer returns a NetDialer with conservative timeouts.
func DefaultNetDialer() *NetDialer {
	return &NetDialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}
}

// Dial implements Dialer.
func (d *NetDialer) Dial(ctx context.Context, origin locator.Origin) (net.Conn, error) {
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	nd := &net.Dialer{KeepAlive: d.KeepAlive}
	raw, err := nd.DialContext(ctx, "tcp", origin.Addr())
	if err != nil {
		DialErrors.WithLabelValues("connect").Inc()
		return nil, fmt.Errorf("dial %s: %w", origin.Addr(), err)
	}
	Dials.WithLabelValues(string(origin.Scheme)).Inc()

	if origin.Scheme != locator.SchemeHTTPS {
		return raw, nil
	}

	conn := tls.Client(raw, &tls.Config{ServerName: origin.Host})
	if err := conn.HandshakeContext(ctx); err != nil {
		raw.Close()
		DialErrors.WithLabelValues("tls").Inc()
		return nil, fmt.Errorf("tls handshake with %s: %w", origin.Host, err)
	}
	return conn, nil
}
