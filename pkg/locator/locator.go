// Package locator parses resource addresses into structured locators and
// resolves redirect targets against them.
package locator

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformed is returned when a string cannot be parsed as a locator.
var ErrMalformed = errors.New("malformed locator")

const viewSourcePrefix = "view-source:"

// Scheme identifies how a locator is retrieved.
type Scheme string

const (
	// SchemeHTTP is plain-text HTTP/1.1.
	SchemeHTTP Scheme = "http"

	// SchemeHTTPS is HTTP/1.1 over TLS.
	SchemeHTTPS Scheme = "https"

	// SchemeFile is a path on the local filesystem.
	SchemeFile Scheme = "file"

	// SchemeData is an inline data: payload.
	SchemeData Scheme = "data"
)

// DefaultPort returns the port implied by the scheme, or 0 for local schemes.
func (s Scheme) DefaultPort() int {
	switch s {
	case SchemeHTTP:
		return 80
	case SchemeHTTPS:
		return 443
	default:
		return 0
	}
}

// IsNetwork reports whether the scheme is fetched over the network.
func (s Scheme) IsNetwork() bool {
	return s == SchemeHTTP || s == SchemeHTTPS
}

func parseScheme(raw string) (Scheme, bool) {
	switch Scheme(raw) {
	case SchemeHTTP, SchemeHTTPS, SchemeFile, SchemeData:
		return Scheme(raw), true
	default:
		return "", false
	}
}

// Locator is an immutable, parsed resource address.
//
// Host and Port are set iff the scheme is http or https. For data: locators
// Path holds everything after the "data:" marker.
type Locator struct {
	Scheme     Scheme
	Host       string
	Port       int
	Path       string
	ViewSource bool
}

// Origin identifies the reusable transport endpoint of a network locator.
type Origin struct {
	Scheme Scheme
	Host   string
	Port   int
}

// String formats the origin as scheme://host:port.
func (o Origin) String() string {
	return fmt.Sprintf("%s://%s:%d", o.Scheme, o.Host, o.Port)
}

// Addr returns the host:port dial address.
func (o Origin) Addr() string {
	return o.Host + ":" + strconv.Itoa(o.Port)
}

// Parse parses raw into a Locator.
//
// A leading "view-source:" marker is stripped and recorded. The scheme is
// taken from the text before "://"; the "data:" form is accepted without
// slashes. For http and https an implicit "/" path is added when the
// remainder has none, and the authority is split into host and port on
// its first ':'.
func Parse(raw string) (Locator, error) {
	var loc Locator
	rest := raw
	if strings.HasPrefix(rest, viewSourcePrefix) {
		loc.ViewSource = true
		rest = rest[len(viewSourcePrefix):]
	}

	// data: payloads may themselves contain "://".
	if strings.HasPrefix(rest, "data:") && !strings.HasPrefix(rest, "data://") {
		loc.Scheme = SchemeData
		loc.Path = rest[len("data:"):]
		return loc, nil
	}

	schemeText, remainder, found := strings.Cut(rest, "://")
	if !found {
		return Locator{}, fmt.Errorf("%w: %q has no scheme delimiter", ErrMalformed, raw)
	}

	scheme, ok := parseScheme(schemeText)
	if !ok {
		return Locator{}, fmt.Errorf("%w: unsupported scheme %q", ErrMalformed, schemeText)
	}
	loc.Scheme = scheme

	if scheme == SchemeData {
		loc.Path = remainder
		return loc, nil
	}

	if !strings.Contains(remainder, "/") {
		remainder += "/"
	}
	authority, path, _ := strings.Cut(remainder, "/")
	loc.Path = "/" + path

	if scheme == SchemeFile {
		// The authority of a file: locator is ignored (file:///etc/hosts).
		return loc, nil
	}

	host, portText, hasPort := strings.Cut(authority, ":")
	if host == "" {
		return Locator{}, fmt.Errorf("%w: %q has no host", ErrMalformed, raw)
	}
	if hasControlOrSpace(host) || hasControlOrSpace(loc.Path) {
		return Locator{}, fmt.Errorf("%w: %q contains spaces or control characters", ErrMalformed, raw)
	}
	loc.Host = host
	loc.Port = scheme.DefaultPort()
	if hasPort {
		port, err := strconv.Atoi(portText)
		if err != nil || port < 1 || port > 65535 {
			return Locator{}, fmt.Errorf("%w: invalid port %q", ErrMalformed, portText)
		}
		loc.Port = port
	}

	return loc, nil
}

// IsNetwork reports whether the locator is fetched over HTTP(S).
func (l Locator) IsNetwork() bool {
	return l.Scheme.IsNetwork()
}

// Origin returns the (scheme, host, port) triple of the locator.
func (l Locator) Origin() Origin {
	return Origin{Scheme: l.Scheme, Host: l.Host, Port: l.Port}
}

// HostHeader returns the value sent in the Host request header.
func (l Locator) HostHeader() string {
	if l.Port == l.Scheme.DefaultPort() {
		return l.Host
	}
	return l.Host + ":" + strconv.Itoa(l.Port)
}

// Key returns the response cache key: the full locator without the
// view-source marker.
func (l Locator) Key() string {
	switch l.Scheme {
	case SchemeData:
		return "data:" + l.Path
	case SchemeFile:
		return "file://" + l.Path
	default:
		return string(l.Scheme) + "://" + l.HostHeader() + l.Path
	}
}

// String re-serialises the locator, including the view-source marker.
func (l Locator) String() string {
	if l.ViewSource {
		return viewSourcePrefix + l.Key()
	}
	return l.Key()
}

// Resolve resolves a Location header value against l.
//
// "//host/path" inherits the scheme, "/path" inherits scheme, host and
// port, values starting with a scheme followed by "://" (or "data:") are
// parsed as-is, and anything else is appended to the directory of l's
// path. The result carries l's ViewSource flag.
func (l Locator) Resolve(location string) (Locator, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return Locator{}, fmt.Errorf("%w: empty redirect location", ErrMalformed)
	}

	var (
		next Locator
		err  error
	)
	switch {
	case strings.HasPrefix(location, "//"):
		next, err = Parse(string(l.Scheme) + ":" + location)
	case isAbsolute(location):
		next, err = Parse(location)
	case !l.IsNetwork():
		return Locator{}, fmt.Errorf("%w: relative location %q against %s locator", ErrMalformed, location, l.Scheme)
	case hasControlOrSpace(location):
		return Locator{}, fmt.Errorf("%w: location %q contains spaces or control characters", ErrMalformed, location)
	case strings.HasPrefix(location, "/"):
		next = Locator{Scheme: l.Scheme, Host: l.Host, Port: l.Port, Path: location}
	default:
		dir := l.Path[:strings.LastIndex(l.Path, "/")+1]
		next = Locator{Scheme: l.Scheme, Host: l.Host, Port: l.Port, Path: dir + location}
	}
	if err != nil {
		return Locator{}, err
	}

	next.ViewSource = l.ViewSource
	return next, nil
}

// isAbsolute reports whether location names its own scheme. The text
// before "://" must be a bare token, so "/login?next=http://x/" is not
// absolute.
func isAbsolute(location string) bool {
	if strings.HasPrefix(location, "data:") {
		return true
	}
	scheme, _, found := strings.Cut(location, "://")
	return found && scheme != "" && !strings.ContainsAny(scheme, "/?#")
}

// hasControlOrSpace reports bytes that would break the request line.
func hasControlOrSpace(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] <= ' ' || s[i] == 0x7f {
			return true
		}
	}
	return false
}
