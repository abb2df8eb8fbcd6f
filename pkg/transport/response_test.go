package transport

import (
	"bufio"
	"errors"
	"io"
	"strings"
	"testing"
)

func TestParseStatusLine(t *testing.T) {
	tests := []struct {
		line    string
		want    statusLine
		wantErr bool
	}{
		{"HTTP/1.1 200 OK", statusLine{"HTTP/1.1", 200, "OK"}, false},
		{"HTTP/1.0 404 Not Found", statusLine{"HTTP/1.0", 404, "Not Found"}, false},
		{"HTTP/1.1 302 ", statusLine{"HTTP/1.1", 302, ""}, false},
		{"HTTP/1.1 200", statusLine{}, true},
		{"HTTP/1.1", statusLine{}, true},
		{"FTP/1.1 200 OK", statusLine{}, true},
		{"HTTP/1.1 20x OK", statusLine{}, true},
		{"HTTP/1.1 99 Low", statusLine{}, true},
		{"HTTP/1.1 1000 High", statusLine{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := parseStatusLine(tt.line)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseStatusLine(%q) error = %v, wantErr %v", tt.line, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("parseStatusLine(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestParseHeaderLine(t *testing.T) {
	tests := []struct {
		line      string
		wantName  string
		wantValue string
		wantErr   bool
	}{
		{"Content-Length: 11", "content-length", "11", false},
		{"X-Empty:", "x-empty", "", false},
		{"Location:   http://x.com/a:b  ", "location", "http://x.com/a:b", false},
		{"NoColon", "", "", true},
		{": value", "", "", true},
		{"Bad Name: v", "", "", true},
		{"\tfolded", "", "", true},
		{"X-Ctl: a\x01b", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			name, value, err := parseHeaderLine(tt.line)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseHeaderLine(%q) error = %v, wantErr %v", tt.line, err, tt.wantErr)
			}
			if name != tt.wantName || value != tt.wantValue {
				t.Errorf("parseHeaderLine(%q) = %q, %q", tt.line, name, value)
			}
		})
	}
}

func TestReadLine(t *testing.T) {
	br := bufio.NewReaderSize(strings.NewReader("first\r\nsecond\nthird"), 16)
	budget := maxHeaderBytes

	for _, want := range []string{"first", "second"} {
		got, err := readLine(br, &budget)
		if err != nil || got != want {
			t.Fatalf("readLine() = %q, %v, want %q", got, err, want)
		}
	}

	// An unterminated final line is a truncated stream.
	if _, err := readLine(br, &budget); !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Errorf("readLine() error = %v, want io.ErrUnexpectedEOF", err)
	}
	if _, err := readLine(br, &budget); err != io.EOF {
		t.Errorf("readLine() at end error = %v, want io.EOF", err)
	}
}

func TestReadLine_Budget(t *testing.T) {
	long := strings.Repeat("x", 100) + "\r\n"
	br := bufio.NewReaderSize(strings.NewReader(long), 16)
	budget := 50

	if _, err := readLine(br, &budget); !errors.Is(err, errHeaderTooLarge) {
		t.Errorf("readLine() error = %v, want errHeaderTooLarge", err)
	}
}

func TestKeepAlive(t *testing.T) {
	tests := []struct {
		name    string
		version string
		conn    string
		want    bool
	}{
		{"1.1 default", "HTTP/1.1", "", true},
		{"1.1 close", "HTTP/1.1", "close", false},
		{"1.1 close mixed case", "HTTP/1.1", "Upgrade, Close", false},
		{"1.0 default", "HTTP/1.0", "", false},
		{"1.0 keep-alive", "HTTP/1.0", "Keep-Alive", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Header{}
			if tt.conn != "" {
				h["connection"] = tt.conn
			}
			if got := keepAlive(tt.version, h); got != tt.want {
				t.Errorf("keepAlive() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsRedirect(t *testing.T) {
	withLocation := Header{"location": "/next"}
	tests := []struct {
		code int
		h    Header
		want bool
	}{
		{301, withLocation, true},
		{302, withLocation, true},
		{307, withLocation, true},
		{308, withLocation, true},
		{304, withLocation, false},
		{302, Header{}, false},
		{200, withLocation, false},
		{404, withLocation, false},
	}

	for _, tt := range tests {
		if got := isRedirect(tt.code, tt.h); got != tt.want {
			t.Errorf("isRedirect(%d, %v) = %v, want %v", tt.code, tt.h, got, tt.want)
		}
	}
}

func TestReadBody(t *testing.T) {
	tests := []struct {
		name         string
		input        string
		length       int64
		hasLength    bool
		wantBody     string
		wantComplete bool
	}{
		{"exact", "hello world", 11, true, "hello world", true},
		{"stops at length", "hello worldEXTRA", 11, true, "hello world", true},
		{"short read", "hello", 11, true, "hello", false},
		{"zero length", "ignored", 0, true, "", true},
		{"close delimited", "until eof", 0, false, "until eof", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			br := bufio.NewReader(strings.NewReader(tt.input))
			body, complete, err := readBody(br, tt.length, tt.hasLength)
			if err != nil {
				t.Fatalf("readBody() error = %v", err)
			}
			if string(body) != tt.wantBody || complete != tt.wantComplete {
				t.Errorf("readBody() = %q, %v, want %q, %v", body, complete, tt.wantBody, tt.wantComplete)
			}
		})
	}
}
