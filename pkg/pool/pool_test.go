package pool

import (
	"net"
	"os"
	"testing"
	"time"

	"github.com/Sternrassler/go-fetch/pkg/locator"
	"github.com/rs/zerolog"
)

var testOrigin = locator.Origin{Scheme: locator.SchemeHTTP, Host: "example.org", Port: 80}

func newTestPool(timeout time.Duration) *Pool {
	return New(timeout, zerolog.New(os.Stderr).Level(zerolog.Disabled))
}

// pipeConn returns a pooled client end and the raw server end of a pipe.
func pipeConn(t *testing.T) (*Conn, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return Wrap(testOrigin, client), server
}

func TestPool_AcquireEmpty(t *testing.T) {
	p := newTestPool(0)
	if c := p.Acquire(testOrigin); c != nil {
		t.Errorf("Acquire on empty pool = %v, want nil", c)
	}
}

func TestPool_ReleaseAndAcquire(t *testing.T) {
	p := newTestPool(20 * time.Millisecond)
	c, _ := pipeConn(t)

	p.Release(testOrigin, c, true)
	if p.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", p.Len())
	}

	got := p.Acquire(testOrigin)
	if got != c {
		t.Fatalf("Acquire returned %v, want pooled conn", got)
	}
	if p.Len() != 0 {
		t.Errorf("checkout must remove the entry, Len() = %d", p.Len())
	}
	if again := p.Acquire(testOrigin); again != nil {
		t.Error("second Acquire must not return the checked-out conn")
	}
}

func TestPool_ReleaseNotReusable(t *testing.T) {
	p := newTestPool(0)
	c, server := pipeConn(t)

	p.Release(testOrigin, c, false)
	if p.Len() != 0 {
		t.Errorf("Len() = %d, want 0", p.Len())
	}

	// The client end must be closed: the server sees EOF.
	server.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := server.Read(make([]byte, 1)); err == nil {
		t.Error("expected closed connection")
	}
}

func TestPool_ReleaseDisplaces(t *testing.T) {
	p := newTestPool(20 * time.Millisecond)
	first, firstServer := pipeConn(t)
	second, _ := pipeConn(t)

	p.Release(testOrigin, first, true)
	p.Release(testOrigin, second, true)

	if p.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", p.Len())
	}
	if got := p.Acquire(testOrigin); got != second {
		t.Error("newest release must win")
	}

	firstServer.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := firstServer.Read(make([]byte, 1)); err == nil {
		t.Error("displaced connection must be closed")
	}
}

func TestPool_AcquireDiscardsClosedPeer(t *testing.T) {
	p := newTestPool(50 * time.Millisecond)
	c, server := pipeConn(t)

	p.Release(testOrigin, c, true)
	server.Close()

	if got := p.Acquire(testOrigin); got != nil {
		t.Error("connection with closed peer must be discarded")
	}
	if p.Len() != 0 {
		t.Errorf("Len() = %d, want 0", p.Len())
	}
}

func TestPool_AcquireDiscardsUnsolicitedData(t *testing.T) {
	p := newTestPool(500 * time.Millisecond)
	c, server := pipeConn(t)

	p.Release(testOrigin, c, true)
	go server.Write([]byte("HTTP/1.1 408 Request Timeout\r\n\r\n"))

	if got := p.Acquire(testOrigin); got != nil {
		t.Error("connection with unsolicited bytes must be discarded")
	}
}

func TestPool_OriginsAreIndependent(t *testing.T) {
	p := newTestPool(20 * time.Millisecond)
	c, _ := pipeConn(t)
	p.Release(testOrigin, c, true)

	other := locator.Origin{Scheme: locator.SchemeHTTPS, Host: "example.org", Port: 443}
	if got := p.Acquire(other); got != nil {
		t.Error("Acquire must not cross origins")
	}
	if p.Len() != 1 {
		t.Errorf("Len() = %d, want 1", p.Len())
	}
}

func TestPool_Close(t *testing.T) {
	p := newTestPool(0)
	c, server := pipeConn(t)
	p.Release(testOrigin, c, true)

	if err := p.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if p.Len() != 0 {
		t.Errorf("Len() = %d, want 0", p.Len())
	}
	server.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := server.Read(make([]byte, 1)); err == nil {
		t.Error("pooled connection must be closed")
	}
}

func TestConn_Uses(t *testing.T) {
	c, _ := pipeConn(t)
	if c.Reused() {
		t.Error("fresh connection must not be reused")
	}
	c.MarkUsed()
	if c.Reused() {
		t.Error("one use is not a reuse")
	}
	c.MarkUsed()
	if !c.Reused() || c.Uses() != 2 {
		t.Errorf("Uses() = %d, Reused() = %v", c.Uses(), c.Reused())
	}
	if c.Origin() != testOrigin {
		t.Errorf("Origin() = %v", c.Origin())
	}
}
