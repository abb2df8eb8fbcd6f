// Package pool keeps idle HTTP/1.1 connections keyed by origin so that
// consecutive requests to the same server can reuse a transport stream.
package pool

import (
	"bufio"
	"net"
	"time"

	"github.com/Sternrassler/go-fetch/pkg/locator"
)

// Conn is a transport stream together with the buffered reader that owns
// any bytes already pulled off the wire.
type Conn struct {
	net.Conn

	reader  *bufio.Reader
	origin  locator.Origin
	created time.Time
	uses    int
}

// Wrap attaches a buffered reader to a freshly dialed connection.
func Wrap(origin locator.Origin, c net.Conn) *Conn {
	return &Conn{
		Conn:    c,
		reader:  bufio.NewReader(c),
		origin:  origin,
		created: time.Now(),
	}
}

// Reader returns the buffered reader for response parsing. All reads from
// the connection must go through it.
func (c *Conn) Reader() *bufio.Reader {
	return c.reader
}

// Origin returns the origin the connection was dialed for.
func (c *Conn) Origin() locator.Origin {
	return c.origin
}

// Uses returns how many transactions have been started on the connection.
func (c *Conn) Uses() int {
	return c.uses
}

// Reused reports whether the connection carried an earlier transaction.
func (c *Conn) Reused() bool {
	return c.uses > 1
}

// MarkUsed records the start of a transaction.
func (c *Conn) MarkUsed() {
	c.uses++
}

// Age returns the time since the connection was dialed.
func (c *Conn) Age() time.Duration {
	return time.Since(c.created)
}
