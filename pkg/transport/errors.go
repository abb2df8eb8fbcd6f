package transport

import (
	"errors"
	"fmt"
)

// ErrorClass classifies transaction failures for errors.Is and metrics.
type ErrorClass string

const (
	// ErrorClassTransport covers connect, TLS and stream I/O failures.
	ErrorClassTransport ErrorClass = "transport"

	// ErrorClassProtocol covers malformed status lines, header lines and
	// framing headers.
	ErrorClassProtocol ErrorClass = "protocol"

	// ErrorClassUnsupportedEncoding is a response using Transfer-Encoding
	// or Content-Encoding.
	ErrorClassUnsupportedEncoding ErrorClass = "unsupported_encoding"
)

// Sentinel errors matched by *Error through errors.Is.
var (
	ErrTransport           = errors.New("transport error")
	ErrProtocol            = errors.New("protocol error")
	ErrUnsupportedEncoding = errors.New("unsupported encoding")

	// ErrUnsupportedScheme is returned for locators that are not fetched
	// over HTTP.
	ErrUnsupportedScheme = errors.New("unsupported scheme")
)

// Error is a failed HTTP transaction.
type Error struct {
	Class   ErrorClass
	Origin  string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error (%s): %s: %v", e.Class, e.Origin, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error (%s): %s", e.Class, e.Origin, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the sentinel for the error's class.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrTransport:
		return e.Class == ErrorClassTransport
	case ErrProtocol:
		return e.Class == ErrorClassProtocol
	case ErrUnsupportedEncoding:
		return e.Class == ErrorClassUnsupportedEncoding
	default:
		return false
	}
}

// errStale marks a failure on a reused connection before any response
// byte arrived; the request is safe to send again on a fresh connection.
var errStale = errors.New("stale pooled connection")

type staleError struct {
	err error
}

func (s *staleError) Error() string { return s.err.Error() }

func (s *staleError) Unwrap() []error { return []error{errStale, s.err} }
