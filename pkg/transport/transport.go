// Package transport performs single HTTP/1.1 GET transactions over pooled
// connections and feeds cacheable responses to the response cache.
package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/go-fetch/pkg/cache"
	"github.com/Sternrassler/go-fetch/pkg/locator"
	"github.com/Sternrassler/go-fetch/pkg/pool"
	"github.com/rs/zerolog"
)

// Result is the outcome of a transaction: either a final response or a
// redirect signal carrying the raw Location value.
type Result struct {
	Version string
	Status  int
	Reason  string
	Header  Header
	Body    string

	// Redirect is set for 3xx responses (other than 304) with a Location
	// header; Body is empty in that case.
	Redirect bool
	Location string

	// Complete is false when the body was cut short by the server closing
	// the stream before Content-Length bytes arrived.
	Complete bool

	// Reused reports whether the response came over a pooled connection.
	Reused bool

	// Cached reports whether the response was written to the cache.
	Cached bool
}

// Transport executes HTTP transactions.
type Transport struct {
	pool      *pool.Pool
	dialer    pool.Dialer
	cache     *cache.ResponseCache
	userAgent string
	logger    zerolog.Logger
}

// New creates a transport. rc may be nil to disable response caching.
func New(p *pool.Pool, dialer pool.Dialer, rc *cache.ResponseCache, userAgent string, logger zerolog.Logger) *Transport {
	if p == nil {
		panic("connection pool cannot be nil")
	}
	if dialer == nil {
		dialer = pool.DefaultNetDialer()
	}
	return &Transport{
		pool:      p,
		dialer:    dialer,
		cache:     rc,
		userAgent: userAgent,
		logger:    logger.With().Str("component", "transport").Logger(),
	}
}

// Execute sends a GET for loc and parses the response.
//
// A pooled connection that turns out to be dead before any response byte
// arrives is dropped and the request is sent once more on a fresh
// connection. Every other failure is returned as an *Error.
func (t *Transport) Execute(ctx context.Context, loc locator.Locator) (*Result, error) {
	if !loc.IsNetwork() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedScheme, loc.Scheme)
	}

	origin := loc.Origin()
	start := time.Now()
	defer func() {
		transactionDuration.WithLabelValues(string(origin.Scheme)).Observe(time.Since(start).Seconds())
	}()

	conn := t.pool.Acquire(origin)
	if conn == nil {
		var err error
		if conn, err = t.dial(ctx, origin); err != nil {
			return nil, t.fail(err)
		}
	}

	res, err := t.roundTrip(ctx, loc, conn)
	if err != nil && errors.Is(err, errStale) {
		staleRetries.Inc()
		t.logger.Debug().
			Err(err).
			Str("origin", origin.String()).
			Msg("Pooled connection went stale, retrying on a fresh connection")

		if conn, err = t.dial(ctx, origin); err != nil {
			return nil, t.fail(err)
		}
		res, err = t.roundTrip(ctx, loc, conn)
	}
	if err != nil {
		return nil, t.fail(err)
	}

	transactionsTotal.WithLabelValues(string(origin.Scheme), strconv.Itoa(res.Status)).Inc()
	return res, nil
}

func (t *Transport) fail(err error) error {
	var txErr *Error
	if errors.As(err, &txErr) {
		transactionErrors.WithLabelValues(string(txErr.Class)).Inc()
	}
	return err
}

func (t *Transport) dial(ctx context.Context, origin locator.Origin) (*pool.Conn, error) {
	raw, err := t.dialer.Dial(ctx, origin)
	if err != nil {
		return nil, &Error{Class: ErrorClassTransport, Origin: origin.String(), Message: "connect", Err: err}
	}
	t.logger.Debug().Str("origin", origin.String()).Msg("Opened new connection")
	return pool.Wrap(origin, raw), nil
}

// roundTrip runs one request/response exchange on conn. It owns conn: on
// return the connection has been released to the pool or closed.
func (t *Transport) roundTrip(ctx context.Context, loc locator.Locator, conn *pool.Conn) (*Result, error) {
	origin := loc.Origin()
	conn.MarkUsed()
	reused := conn.Reused()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() {
		conn.SetDeadline(time.Unix(1, 0))
	})

	res, reusable, err := t.exchange(loc, conn)

	if !stop() {
		// The context fired during the exchange; whatever the stream
		// state is now, it cannot be trusted.
		reusable = false
		if err != nil {
			err = &Error{Class: ErrorClassTransport, Origin: origin.String(), Message: "request cancelled", Err: ctx.Err()}
		}
	}

	if err != nil {
		conn.Close()
		if reused && (errors.Is(err, errNoResponse) || errors.Is(err, errWriteRequest)) {
			return nil, &staleError{err: err}
		}
		return nil, err
	}

	if reusable {
		if derr := conn.SetDeadline(time.Time{}); derr != nil {
			reusable = false
		}
	}
	t.pool.Release(origin, conn, reusable)

	res.Reused = reused
	if res.Status == 200 && res.Complete && t.cache != nil {
		res.Cached = t.cache.Store(ctx, loc.Key(), res.Body, res.Header, t.cache.Now())
	}

	t.logger.Debug().
		Str("locator", loc.Key()).
		Int("status", res.Status).
		Bool("reused", reused).
		Bool("keep_alive", reusable).
		Int("bytes", len(res.Body)).
		Msg("Transaction complete")

	return res, nil
}

var errWriteRequest = errors.New("write request")

// exchange writes the request and reads one response. It reports whether
// the connection is positioned for another request afterwards.
func (t *Transport) exchange(loc locator.Locator, conn *pool.Conn) (*Result, bool, error) {
	origin := loc.Origin().String()
	transportErr := func(msg string, err error) error {
		return &Error{Class: ErrorClassTransport, Origin: origin, Message: msg, Err: err}
	}
	protocolErr := func(err error) error {
		return &Error{Class: ErrorClassProtocol, Origin: origin, Message: "parse response", Err: err}
	}

	if _, err := io.WriteString(conn, t.requestText(loc)); err != nil {
		return nil, false, transportErr("write request", errors.Join(errWriteRequest, err))
	}

	br := conn.Reader()
	budget := maxHeaderBytes

	var (
		status statusLine
		header Header
	)
	for {
		line, err := readLine(br, &budget)
		if err != nil {
			switch {
			case errors.Is(err, errHeaderTooLarge):
				return nil, false, protocolErr(err)
			case err == io.EOF:
				return nil, false, transportErr("read status line", errNoResponse)
			default:
				return nil, false, transportErr("read status line", err)
			}
		}
		if status, err = parseStatusLine(line); err != nil {
			return nil, false, protocolErr(err)
		}

		header = make(Header)
		for {
			line, err := readLine(br, &budget)
			if err != nil {
				if errors.Is(err, errHeaderTooLarge) {
					return nil, false, protocolErr(err)
				}
				return nil, false, transportErr("read headers", err)
			}
			if line == "" {
				break
			}
			name, value, err := parseHeaderLine(line)
			if err != nil {
				return nil, false, protocolErr(err)
			}
			header[name] = value
		}

		// Interim responses (103 Early Hints and friends) precede the
		// real one on the same stream.
		if status.Code < 100 || status.Code >= 200 || status.Code == 101 {
			break
		}
	}

	for _, name := range []string{"transfer-encoding", "content-encoding"} {
		if value, ok := header[name]; ok {
			return nil, false, &Error{
				Class:   ErrorClassUnsupportedEncoding,
				Origin:  origin,
				Message: fmt.Sprintf("%s: %s", name, value),
			}
		}
	}

	length, hasLength, err := contentLength(header)
	if err != nil {
		return nil, false, protocolErr(err)
	}

	res := &Result{
		Version:  status.Version,
		Status:   status.Code,
		Reason:   status.Reason,
		Header:   header,
		Complete: true,
	}
	reusable := keepAlive(status.Version, header)

	if isRedirect(status.Code, header) {
		if !drainBody(br, length, hasLength) {
			reusable = false
		}
		res.Redirect = true
		res.Location = header["location"]
		return res, reusable, nil
	}

	if bodyless(status.Code) {
		return res, reusable, nil
	}

	body, complete, err := readBody(br, length, hasLength)
	if err != nil {
		return nil, false, transportErr("read body", err)
	}
	if !complete {
		reusable = false
	}
	if hasLength && !complete {
		res.Complete = false
		t.logger.Warn().
			Str("locator", loc.Key()).
			Int64("content_length", length).
			Int("received", len(body)).
			Msg("Connection closed before full body, returning partial content")
	}
	res.Body = string(body)
	return res, reusable, nil
}

// requestText frames the GET request. No Connection header is sent so the
// server may keep the stream open for reuse.
func (t *Transport) requestText(loc locator.Locator) string {
	var b strings.Builder
	b.WriteString("GET ")
	b.WriteString(loc.Path)
	b.WriteString(" HTTP/1.1\r\n")
	b.WriteString("Host: ")
	b.WriteString(loc.HostHeader())
	b.WriteString("\r\n")
	if t.userAgent != "" {
		b.WriteString("User-Agent: ")
		b.WriteString(t.userAgent)
		b.WriteString("\r\n")
	}
	b.WriteString("\r\n")
	return b.String()
}
