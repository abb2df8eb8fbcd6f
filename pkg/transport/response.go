package transport

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/net/http/httpguts"
)

// maxHeaderBytes bounds the status line plus header section.
const maxHeaderBytes = 64 << 10

var (
	errHeaderTooLarge = errors.New("response header section too large")
	errNoResponse     = errors.New("connection closed before response")
)

// Header holds response headers keyed by case-folded name. A repeated
// header keeps its last value.
type Header map[string]string

// Get returns the value for name, matched case-insensitively.
func (h Header) Get(name string) string {
	return h[strings.ToLower(name)]
}

// Has reports whether name is present.
func (h Header) Has(name string) bool {
	_, ok := h[strings.ToLower(name)]
	return ok
}

// statusLine is a parsed "HTTP/<ver> <code> <reason>" line.
type statusLine struct {
	Version string
	Code    int
	Reason  string
}

// readLine reads one CRLF- or LF-terminated line, charging its length
// against budget.
func readLine(br *bufio.Reader, budget *int) (string, error) {
	var line []byte
	for {
		frag, err := br.ReadSlice('\n')
		*budget -= len(frag)
		if *budget < 0 {
			return "", errHeaderTooLarge
		}
		line = append(line, frag...)
		if err == nil {
			break
		}
		if err != bufio.ErrBufferFull {
			if err == io.EOF && len(line) > 0 {
				err = io.ErrUnexpectedEOF
			}
			return "", err
		}
	}

	line = bytes.TrimSuffix(line, []byte("\n"))
	line = bytes.TrimSuffix(line, []byte("\r"))
	return string(line), nil
}

// parseStatusLine splits a status line into version, code and reason.
func parseStatusLine(line string) (statusLine, error) {
	parts := strings.SplitN(line, " ", 3)
	if len(parts) < 3 {
		return statusLine{}, fmt.Errorf("malformed status line %q", line)
	}
	if !strings.HasPrefix(parts[0], "HTTP/") {
		return statusLine{}, fmt.Errorf("malformed protocol version %q", parts[0])
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil || code < 100 || code > 999 {
		return statusLine{}, fmt.Errorf("malformed status code %q", parts[1])
	}
	return statusLine{Version: parts[0], Code: code, Reason: parts[2]}, nil
}

// parseHeaderLine splits a header line on its first colon.
func parseHeaderLine(line string) (string, string, error) {
	if line[0] == ' ' || line[0] == '\t' {
		return "", "", fmt.Errorf("obsolete header line folding %q", line)
	}
	name, value, ok := strings.Cut(line, ":")
	if !ok {
		return "", "", fmt.Errorf("malformed header line %q", line)
	}
	if !httpguts.ValidHeaderFieldName(name) {
		return "", "", fmt.Errorf("invalid header name %q", name)
	}
	value = strings.TrimSpace(value)
	if !httpguts.ValidHeaderFieldValue(value) {
		return "", "", fmt.Errorf("invalid value for header %q", name)
	}
	return strings.ToLower(name), value, nil
}

// contentLength returns the declared body length, if any.
func contentLength(h Header) (int64, bool, error) {
	raw, ok := h["content-length"]
	if !ok {
		return 0, false, nil
	}
	n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || n < 0 {
		return 0, false, fmt.Errorf("invalid Content-Length %q", raw)
	}
	return n, true, nil
}

// keepAlive reports whether the response lets the connection be reused.
// HTTP/1.1 connections persist unless Connection carries "close"; HTTP/1.0
// ones only with an explicit "keep-alive".
func keepAlive(version string, h Header) bool {
	values := []string{h["connection"]}
	if httpguts.HeaderValuesContainsToken(values, "close") {
		return false
	}
	if version == "HTTP/1.0" {
		return httpguts.HeaderValuesContainsToken(values, "keep-alive")
	}
	return true
}

// bodyless reports statuses that never carry a message body.
func bodyless(code int) bool {
	return (code >= 100 && code < 200) || code == 204 || code == 304
}

// isRedirect reports whether a response asks the client to go elsewhere.
func isRedirect(code int, h Header) bool {
	if code < 300 || code >= 400 || code == 304 {
		return false
	}
	return h["location"] != ""
}

// readBody reads a length-framed body, or everything up to EOF when no
// length was declared. complete is false when the stream ended early or
// the body was close-delimited; either way the connection is spent.
// A short read is not an error: the bytes received so far are returned.
func readBody(br *bufio.Reader, length int64, hasLength bool) (body []byte, complete bool, err error) {
	var buf bytes.Buffer
	if !hasLength {
		if _, err := buf.ReadFrom(br); err != nil {
			return buf.Bytes(), false, err
		}
		return buf.Bytes(), false, nil
	}

	n, err := io.CopyN(&buf, br, length)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return buf.Bytes(), false, nil
		}
		return buf.Bytes(), false, err
	}
	return buf.Bytes(), n == length, nil
}

// drainBody discards a length-framed body. It reports whether the stream
// is positioned at the next response afterwards.
func drainBody(br *bufio.Reader, length int64, hasLength bool) bool {
	if !hasLength {
		return false
	}
	n, err := io.CopyN(io.Discard, br, length)
	return err == nil && n == length
}
