// Package testutil provides testing utilities for the fetch engine: a
// scripted HTTP/1.1 server speaking raw TCP, and a dialer that routes every
// origin to it while counting connects.
package testutil

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Sternrassler/go-fetch/pkg/locator"
)

// MockRequest is a request as seen by the mock server.
type MockRequest struct {
	Method  string
	Path    string
	Version string
	Header  map[string]string
}

// MockResponse defines the bytes the server writes for one request.
type MockResponse struct {
	// Raw is written verbatim, status line and headers included.
	Raw string

	// CloseAfter closes the connection once Raw has been written.
	CloseAfter bool

	// ChunkSize, when positive, splits Raw into writes of this size.
	ChunkSize int

	// Delay is slept before writing.
	Delay time.Duration
}

// MockServer is a configurable HTTP/1.1 server for testing. Responses are
// scripted byte for byte so tests can produce framing no real server
// library would.
type MockServer struct {
	listener net.Listener
	mu       sync.RWMutex
	handlers map[string]func(req *MockRequest) MockResponse
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup

	// Tracking
	connectCount int
	requestCount int
	lastRequest  *MockRequest
}

// NewMockServer starts a mock server on a loopback port.
func NewMockServer() *MockServer {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		panic(fmt.Sprintf("testutil: listen: %v", err))
	}

	mock := &MockServer{
		listener: ln,
		handlers: make(map[string]func(req *MockRequest) MockResponse),
		conns:    make(map[net.Conn]struct{}),
	}

	mock.wg.Add(1)
	go mock.acceptLoop()
	return mock
}

// Addr returns the host:port the server listens on.
func (m *MockServer) Addr() string {
	return m.listener.Addr().String()
}

// Port returns the listening port.
func (m *MockServer) Port() int {
	return m.listener.Addr().(*net.TCPAddr).Port
}

// URL returns an http locator string for path on the server.
func (m *MockServer) URL(path string) string {
	return "http://" + m.Addr() + path
}

// Close shuts down the server and every open connection.
func (m *MockServer) Close() {
	m.listener.Close()
	m.DropConnections()
	m.wg.Wait()
}

// DropConnections closes every open server-side connection, simulating a
// server that hangs up on idle clients.
func (m *MockServer) DropConnections() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for c := range m.conns {
		c.Close()
	}
}

// Reset clears all tracking counters.
func (m *MockServer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connectCount = 0
	m.requestCount = 0
	m.lastRequest = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockServer) SetHandler(path string, handler func(req *MockRequest) MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetResponse configures a fixed response for a path.
func (m *MockServer) SetResponse(path string, resp MockResponse) {
	m.SetHandler(path, func(*MockRequest) MockResponse { return resp })
}

// GetConnectCount returns the number of accepted connections.
func (m *MockServer) GetConnectCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.connectCount
}

// GetRequestCount returns the number of requests served.
func (m *MockServer) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.requestCount
}

// LastRequest returns the most recent request, or nil.
func (m *MockServer) LastRequest() *MockRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastRequest
}

func (m *MockServer) acceptLoop() {
	defer m.wg.Done()
	for {
		c, err := m.listener.Accept()
		if err != nil {
			return
		}
		m.mu.Lock()
		m.connectCount++
		m.conns[c] = struct{}{}
		m.mu.Unlock()

		m.wg.Add(1)
		go m.serveConn(c)
	}
}

func (m *MockServer) serveConn(c net.Conn) {
	defer m.wg.Done()
	defer func() {
		m.mu.Lock()
		delete(m.conns, c)
		m.mu.Unlock()
		c.Close()
	}()

	br := bufio.NewReader(c)
	for {
		req, err := readRequest(br)
		if err != nil {
			return
		}

		m.mu.Lock()
		m.requestCount++
		m.lastRequest = req
		handler, exists := m.handlers[req.Path]
		m.mu.Unlock()

		resp := notFound()
		if exists {
			resp = handler(req)
		}

		if resp.Delay > 0 {
			time.Sleep(resp.Delay)
		}
		if err := writeChunked(c, resp.Raw, resp.ChunkSize); err != nil {
			return
		}
		if resp.CloseAfter {
			return
		}
	}
}

func readRequest(br *bufio.Reader) (*MockRequest, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		return nil, err
	}
	parts := strings.SplitN(strings.TrimRight(line, "\r\n"), " ", 3)
	if len(parts) != 3 {
		return nil, fmt.Errorf("bad request line %q", line)
	}

	req := &MockRequest{Method: parts[0], Path: parts[1], Version: parts[2], Header: make(map[string]string)}
	for {
		line, err := br.ReadString('\n')
		if err != nil {
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			return req, nil
		}
		name, value, _ := strings.Cut(line, ":")
		req.Header[strings.ToLower(name)] = strings.TrimSpace(value)
	}
}

func writeChunked(c net.Conn, raw string, size int) error {
	if size <= 0 {
		_, err := c.Write([]byte(raw))
		return err
	}
	for i := 0; i < len(raw); i += size {
		end := i + size
		if end > len(raw) {
			end = len(raw)
		}
		if _, err := c.Write([]byte(raw[i:end])); err != nil {
			return err
		}
	}
	return nil
}

// BuildResponse frames a response. Content-Length is added unless headers
// already carry a framing header or include NoLength.
func BuildResponse(status string, headers []string, body string) string {
	var b strings.Builder
	b.WriteString("HTTP/1.1 ")
	b.WriteString(status)
	b.WriteString("\r\n")

	framed := false
	for _, h := range headers {
		lower := strings.ToLower(h)
		if strings.HasPrefix(lower, "content-length:") || strings.HasPrefix(lower, "transfer-encoding:") || h == NoLength {
			framed = true
		}
		if h == NoLength {
			continue
		}
		b.WriteString(h)
		b.WriteString("\r\n")
	}
	if !framed {
		b.WriteString("Content-Length: ")
		b.WriteString(strconv.Itoa(len(body)))
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	b.WriteString(body)
	return b.String()
}

// NoLength passed as a header to BuildResponse suppresses Content-Length.
const NoLength = "\x00no-length"

// NewOKResponse creates a 200 response with a Content-Length framed body.
func NewOKResponse(body string, headers ...string) MockResponse {
	return MockResponse{Raw: BuildResponse("200 OK", headers, body)}
}

// NewRedirectResponse creates a redirect to location with a short body.
func NewRedirectResponse(code int, location string) MockResponse {
	status := strconv.Itoa(code) + " Redirect"
	return MockResponse{Raw: BuildResponse(status, []string{"Location: " + location}, "moved")}
}

// NewCloseDelimitedResponse creates a 200 response without Content-Length
// whose body ends when the server closes the connection.
func NewCloseDelimitedResponse(body string) MockResponse {
	return MockResponse{
		Raw:        BuildResponse("200 OK", []string{NoLength}, body),
		CloseAfter: true,
	}
}

func notFound() MockResponse {
	return MockResponse{Raw: BuildResponse("404 Not Found", []string{"Content-Type: text/plain"}, "not found")}
}

// CountingDialer routes every origin to one address and counts dials.
type CountingDialer struct {
	// Target is the host:port actually dialed.
	Target string

	// OneByteReads makes every Read on dialed connections return at most
	// one byte.
	OneByteReads bool

	dials atomic.Int64
}

// NewCountingDialer returns a dialer for the mock server.
func NewCountingDialer(m *MockServer) *CountingDialer {
	return &CountingDialer{Target: m.Addr()}
}

// Dial implements pool.Dialer.
func (d *CountingDialer) Dial(ctx context.Context, _ locator.Origin) (net.Conn, error) {
	var nd net.Dialer
	c, err := nd.DialContext(ctx, "tcp", d.Target)
	if err != nil {
		return nil, err
	}
	d.dials.Add(1)
	if d.OneByteReads {
		return &oneByteConn{Conn: c}, nil
	}
	return c, nil
}

// Dials returns the number of successful dials.
func (d *CountingDialer) Dials() int {
	return int(d.dials.Load())
}

type oneByteConn struct {
	net.Conn
}

func (c *oneByteConn) Read(p []byte) (int, error) {
	if len(p) > 1 {
		p = p[:1]
	}
	return c.Conn.Read(p)
}
