package local

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/Sternrassler/go-fetch/pkg/locator"
	"github.com/rs/zerolog"
)

// deniedFS refuses every open.
type deniedFS struct{}

func (deniedFS) Open(name string) (fs.File, error) {
	return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrPermission}
}

func mustParse(t *testing.T, raw string) locator.Locator {
	t.Helper()
	loc, err := locator.Parse(raw)
	if err != nil {
		t.Fatalf("Parse(%q) error = %v", raw, err)
	}
	return loc
}

func TestRead_File(t *testing.T) {
	fsys := fstest.MapFS{
		"home/user/notes.txt": {Data: []byte("<b>bold</b> notes")},
	}
	r := NewReaderFS(fsys, zerolog.Nop())

	tests := []struct {
		name     string
		raw      string
		outcome  Outcome
		contains string
	}{
		{"existing file", "file:///home/user/notes.txt", OutcomeOK, "<b>bold</b> notes"},
		{"missing file", "file:///home/user/missing.txt", OutcomeNotFound, "could not be found"},
		{"path in page", "file:///nope", OutcomeNotFound, "The file /nope could not be found."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Read(context.Background(), mustParse(t, tt.raw))
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			if res.Outcome != tt.outcome {
				t.Errorf("Outcome = %s, want %s", res.Outcome, tt.outcome)
			}
			if !strings.Contains(res.Content, tt.contains) {
				t.Errorf("Content = %q, want it to contain %q", res.Content, tt.contains)
			}
		})
	}
}

func TestRead_FilePermissionDenied(t *testing.T) {
	r := NewReaderFS(deniedFS{}, zerolog.Nop())

	res, err := r.Read(context.Background(), mustParse(t, "file:///etc/shadow"))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if res.Outcome != OutcomePermissionDenied {
		t.Errorf("Outcome = %s, want %s", res.Outcome, OutcomePermissionDenied)
	}
	if !strings.HasPrefix(res.Content, "<html><body><h1>Error: Permission denied</h1>") {
		t.Errorf("Content = %q", res.Content)
	}
}

func TestRead_HostFilesystem(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "page.html")
	if err := os.WriteFile(path, []byte("on disk"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	r := NewReader(zerolog.Nop())
	res, err := r.Read(context.Background(), mustParse(t, "file://"+filepath.ToSlash(path)))
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if res.Outcome != OutcomeOK || res.Content != "on disk" {
		t.Errorf("Read() = %+v", res)
	}
}

func TestRead_Data(t *testing.T) {
	r := NewReaderFS(fstest.MapFS{}, zerolog.Nop())

	tests := []struct {
		name      string
		raw       string
		outcome   Outcome
		content   string
		mediaType string
	}{
		{"plain", "data:,Hello%2C%20World", OutcomeOK, "Hello, World", "text/plain"},
		{"media type", "data:text/html,<h1>hi</h1>", OutcomeOK, "<h1>hi</h1>", "text/html"},
		{"base64", "data:text/plain;base64,aGVsbG8gd29ybGQ=", OutcomeOK, "hello world", "text/plain"},
		{"base64 without media type", "data:;base64,aGk=", OutcomeOK, "hi", "text/plain"},
		{"comma in payload", "data:,a,b", OutcomeOK, "a,b", "text/plain"},
		{"missing comma", "data:text/plain", OutcomeInvalid, "", "text/html"},
		{"bad base64", "data:;base64,!!!", OutcomeInvalid, "", "text/html"},
		{"bad escape", "data:,100%", OutcomeInvalid, "", "text/html"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Read(context.Background(), mustParse(t, tt.raw))
			if err != nil {
				t.Fatalf("Read() error = %v", err)
			}
			if res.Outcome != tt.outcome {
				t.Errorf("Outcome = %s, want %s", res.Outcome, tt.outcome)
			}
			if res.MediaType != tt.mediaType {
				t.Errorf("MediaType = %q, want %q", res.MediaType, tt.mediaType)
			}
			if tt.outcome == OutcomeOK && res.Content != tt.content {
				t.Errorf("Content = %q, want %q", res.Content, tt.content)
			}
			if tt.outcome != OutcomeOK && !strings.HasPrefix(res.Content, "<html>") {
				t.Errorf("error Content = %q, want an HTML page", res.Content)
			}
		})
	}
}

func TestRead_NetworkLocator(t *testing.T) {
	r := NewReaderFS(fstest.MapFS{}, zerolog.Nop())

	_, err := r.Read(context.Background(), mustParse(t, "http://example.com/"))
	if !errors.Is(err, ErrNotLocal) {
		t.Errorf("Read() error = %v, want ErrNotLocal", err)
	}
}

func TestRead_CancelledContext(t *testing.T) {
	r := NewReaderFS(fstest.MapFS{}, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.Read(ctx, mustParse(t, "data:,x")); !errors.Is(err, context.Canceled) {
		t.Errorf("Read() error = %v, want context.Canceled", err)
	}
}

func TestErrorPage_EscapesMarkup(t *testing.T) {
	res := errorPage(OutcomeError, "Error", "bad <path> & more")
	want := "<html><body><h1>Error</h1><p>bad &lt;path&gt; &amp; more</p></body></html>"
	if res.Content != want {
		t.Errorf("Content = %q, want %q", res.Content, want)
	}
}
