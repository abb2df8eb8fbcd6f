// Package local reads file: and data: locators. Failures are rendered as
// small HTML error pages rather than returned as errors, so callers can
// display them like any other content.
package local

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"

	"github.com/Sternrassler/go-fetch/pkg/locator"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// ErrNotLocal is returned for locators that must be fetched over the network.
var ErrNotLocal = errors.New("locator is not local")

// Outcome classifies a local read.
type Outcome string

const (
	// OutcomeOK means Content holds the resource.
	OutcomeOK Outcome = "ok"

	// OutcomeNotFound means the file does not exist.
	OutcomeNotFound Outcome = "not_found"

	// OutcomePermissionDenied means the file could not be opened for reading.
	OutcomePermissionDenied Outcome = "permission_denied"

	// OutcomeInvalid means a data: payload could not be decoded.
	OutcomeInvalid Outcome = "invalid"

	// OutcomeError covers every other failure.
	OutcomeError Outcome = "error"
)

var localReads = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fetch_local_reads_total",
	Help: "Total file: and data: reads by scheme and outcome",
}, []string{"scheme", "outcome"})

// Resource is the result of a local read. For every outcome other than
// OutcomeOK, Content is a renderable HTML error page.
type Resource struct {
	Content   string
	MediaType string
	Outcome   Outcome
}

// Reader reads local resources.
type Reader struct {
	fsys   fs.FS
	logger zerolog.Logger
}

// NewReader creates a reader over the host filesystem.
func NewReader(logger zerolog.Logger) *Reader {
	return &Reader{
		fsys:   os.DirFS("/"),
		logger: logger.With().Str("component", "local").Logger(),
	}
}

// NewReaderFS creates a reader that resolves file: paths inside fsys.
func NewReaderFS(fsys fs.FS, logger zerolog.Logger) *Reader {
	return &Reader{
		fsys:   fsys,
		logger: logger.With().Str("component", "local").Logger(),
	}
}

// Read returns the content behind loc.
func (r *Reader) Read(ctx context.Context, loc locator.Locator) (*Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var res *Resource
	switch loc.Scheme {
	case locator.SchemeFile:
		res = r.readFile(loc.Path)
	case locator.SchemeData:
		res = decodeData(loc.Path)
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotLocal, loc.Scheme)
	}

	localReads.WithLabelValues(string(loc.Scheme), string(res.Outcome)).Inc()
	if res.Outcome != OutcomeOK {
		r.logger.Warn().
			Str("locator", loc.Key()).
			Str("outcome", string(res.Outcome)).
			Msg("Local read failed, rendering error page")
	}
	return res, nil
}

func (r *Reader) readFile(path string) *Resource {
	name := strings.TrimPrefix(path, "/")
	if name == "" {
		name = "."
	}

	data, err := fs.ReadFile(r.fsys, name)
	switch {
	case err == nil:
		return &Resource{Content: string(data), MediaType: "text/plain", Outcome: OutcomeOK}
	case errors.Is(err, fs.ErrNotExist):
		return errorPage(OutcomeNotFound, "Error: File not found",
			fmt.Sprintf("The file %s could not be found.", path))
	case errors.Is(err, fs.ErrPermission):
		return errorPage(OutcomePermissionDenied, "Error: Permission denied",
			fmt.Sprintf("You don't have permission to read %s.", path))
	default:
		return errorPage(OutcomeError, "Error", fmt.Sprintf("An error occurred: %v", err))
	}
}

// decodeData decodes "[<mediatype>][;base64],<data>". The media type
// defaults to text/plain. Non-base64 payloads are percent-decoded.
func decodeData(payload string) *Resource {
	meta, data, ok := strings.Cut(payload, ",")
	if !ok {
		return errorPage(OutcomeInvalid, "Error", "Invalid data URL format")
	}

	isBase64 := false
	if strings.HasSuffix(meta, ";base64") {
		isBase64 = true
		meta = strings.TrimSuffix(meta, ";base64")
	}
	mediaType := meta
	if mediaType == "" {
		mediaType = "text/plain"
	}

	if isBase64 {
		decoded, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return errorPage(OutcomeInvalid, "Error", "Invalid base64 encoding")
		}
		return &Resource{Content: string(decoded), MediaType: mediaType, Outcome: OutcomeOK}
	}

	decoded, err := url.PathUnescape(data)
	if err != nil {
		return errorPage(OutcomeInvalid, "Error", fmt.Sprintf("Error processing data URL: %v", err))
	}
	return &Resource{Content: decoded, MediaType: mediaType, Outcome: OutcomeOK}
}

// markup escapes text placed inside error pages. Quotes are left alone
// since the pages carry no attributes.
var markup = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func errorPage(outcome Outcome, title, message string) *Resource {
	return &Resource{
		Content: fmt.Sprintf("<html><body><h1>%s</h1><p>%s</p></body></html>",
			markup.Replace(title), markup.Replace(message)),
		MediaType: "text/html",
		Outcome:   outcome,
	}
}
