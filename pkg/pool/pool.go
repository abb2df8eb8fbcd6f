package pool

import (
	"errors"
	"net"
	"os"
	"sync"
	"time"

	"github.com/Sternrassler/go-fetch/pkg/locator"
	"github.com/rs/zerolog"
)

// DefaultLivenessTimeout bounds the liveness check run on checkout.
const DefaultLivenessTimeout = time.Millisecond

// Pool retains at most one idle connection per origin.
//
// Checkout is exclusive: Acquire removes the entry under the lock before
// checking it, so no two transactions ever share a connection. The lock is
// never held across network I/O.
type Pool struct {
	mu              sync.Mutex
	idle            map[locator.Origin]*Conn
	livenessTimeout time.Duration
	logger          zerolog.Logger
}

// New creates an empty pool. A non-positive livenessTimeout selects
// DefaultLivenessTimeout.
func New(livenessTimeout time.Duration, logger zerolog.Logger) *Pool {
	if livenessTimeout <= 0 {
		livenessTimeout = DefaultLivenessTimeout
	}
	return &Pool{
		idle:            make(map[locator.Origin]*Conn),
		livenessTimeout: livenessTimeout,
		logger:          logger.With().Str("component", "pool").Logger(),
	}
}

// Acquire checks out the idle connection for origin. It returns nil when
// no connection is idle or the idle one turned out to be dead; dead
// connections are closed and dropped.
func (p *Pool) Acquire(origin locator.Origin) *Conn {
	p.mu.Lock()
	c, ok := p.idle[origin]
	if ok {
		delete(p.idle, origin)
		IdleConnections.Dec()
	}
	p.mu.Unlock()

	if !ok {
		Acquires.WithLabelValues("miss").Inc()
		return nil
	}

	if !p.alive(c) {
		c.Close()
		Acquires.WithLabelValues("dead").Inc()
		p.logger.Debug().
			Str("origin", origin.String()).
			Int("uses", c.Uses()).
			Dur("age", c.Age()).
			Msg("Discarded dead idle connection")
		return nil
	}

	Acquires.WithLabelValues("reuse").Inc()
	p.logger.Debug().
		Str("origin", origin.String()).
		Int("uses", c.Uses()).
		Msg("Reusing idle connection")
	return c
}

// Release hands a connection back after a transaction. Connections that
// are not reusable are closed. A reusable connection replaces, and
// closes, any connection already idle for the same origin.
func (p *Pool) Release(origin locator.Origin, c *Conn, reusable bool) {
	if c == nil {
		return
	}
	if !reusable {
		c.Close()
		Releases.WithLabelValues("closed").Inc()
		return
	}

	p.mu.Lock()
	displaced, had := p.idle[origin]
	p.idle[origin] = c
	if !had {
		IdleConnections.Inc()
	}
	p.mu.Unlock()

	Releases.WithLabelValues("pooled").Inc()
	if had && displaced != c {
		displaced.Close()
		p.logger.Debug().
			Str("origin", origin.String()).
			Msg("Closed displaced idle connection")
	}
}

// Len returns the number of idle connections.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.idle)
}

// Close closes every idle connection and empties the pool.
func (p *Pool) Close() error {
	p.mu.Lock()
	idle := p.idle
	p.idle = make(map[locator.Origin]*Conn)
	p.mu.Unlock()

	var errs []error
	for _, c := range idle {
		IdleConnections.Dec()
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// alive checks an idle connection. Unread bytes or a readable EOF mean the
// peer either sent something unsolicited or hung up; only a read timeout
// means the stream is quietly waiting for the next request.
func (p *Pool) alive(c *Conn) bool {
	if c.reader.Buffered() > 0 {
		return false
	}
	if err := c.SetReadDeadline(time.Now().Add(p.livenessTimeout)); err != nil {
		return false
	}
	_, err := c.reader.Peek(1)
	if resetErr := c.SetReadDeadline(time.Time{}); resetErr != nil {
		return false
	}
	if err == nil {
		return false
	}
	return isTimeout(err)
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
