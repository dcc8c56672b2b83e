// =============================================================================
// Freight Reconciler - Extraction Boundary
// =============================================================================
//
// This package turns input documents into raw field maps. It does not parse
// numbers or dates; that is the normalizer's job.
//
// SOURCES:
//   - csv.go:  delimited files, one record per data row
//   - xlsx.go: spreadsheets, one record per data row of the first sheet
//   - text.go: labeled plain text, records found by regular expressions
//
// A document that cannot be read at all yields one failed Document carrying
// an *ExtractionError. It is counted by the pipeline and never normalized.
//
// =============================================================================

package extraction

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// Document is one raw record produced by an extractor.
type Document struct {
	// Source is the path of the file the record came from.
	Source string

	// Line is the one-based position of the record within its source.
	Line int

	// Fields maps raw field names to raw values.
	Fields map[string]string

	// Headers lists the field names in source column order. Sources without
	// columns leave it nil.
	Headers []string

	// Err is set when the source could not be read. Fields is empty then.
	Err error
}

// Failed reports whether the document is an extraction failure.
func (d Document) Failed() bool {
	return d.Err != nil
}

// Get looks up a field by name, ignoring case and surrounding whitespace of
// the key. Empty values count as missing. An exact key wins; otherwise the
// first non-empty match in column order (or sorted key order) is returned.
func (d Document) Get(name string) (string, bool) {
	if v, ok := d.Fields[name]; ok {
		v = strings.TrimSpace(v)
		return v, v != ""
	}
	for _, k := range d.keys() {
		if !strings.EqualFold(strings.TrimSpace(k), name) {
			continue
		}
		if v := strings.TrimSpace(d.Fields[k]); v != "" {
			return v, true
		}
	}
	return "", false
}

func (d Document) keys() []string {
	if d.Headers != nil {
		return d.Headers
	}
	keys := make([]string, 0, len(d.Fields))
	for k := range d.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Lookup returns the value of the first alias present in the document along
// with the alias that matched.
func (d Document) Lookup(aliases []string) (value, field string, ok bool) {
	for _, alias := range aliases {
		if v, found := d.Get(alias); found {
			return v, alias, true
		}
	}
	return "", "", false
}

// Label is a short human readable reference to the record ("file.csv:3").
func (d Document) Label() string {
	if d.Line == 0 {
		return filepath.Base(d.Source)
	}
	return fmt.Sprintf("%s:%d", filepath.Base(d.Source), d.Line)
}

// ExtractionError reports a document that could not be read.
type ExtractionError struct {
	Source string
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction of %s failed: %s: %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("extraction of %s failed: %s", e.Source, e.Reason)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// FieldExtractor reads one source file into raw records.
//
//go:generate mockgen -destination=mocks/mock_extractor.go -package=mocks -source=document.go FieldExtractor
type FieldExtractor interface {
	Extract(ctx context.Context, path string) ([]Document, error)
}

// Load runs the extractor over every path in order. A failing path becomes a
// single failed Document so that the run goes on with the remaining files.
//
// RETURNS:
//   - All records in input order, failed documents included. Processing
//     stops early only when ctx is cancelled.
func Load(ctx context.Context, ex FieldExtractor, paths []string, log zerolog.Logger) []Document {
	var docs []Document

	for _, path := range paths {
		if ctx.Err() != nil {
			log.Warn().Err(ctx.Err()).Str("source", path).Msg("extraction cancelled")
			break
		}

		records, err := ex.Extract(ctx, path)
		if err != nil {
			log.Error().Err(err).Str("source", path).Msg("document could not be read")
			docs = append(docs, Document{Source: path, Err: asExtractionError(path, err)})
			continue
		}

		log.Debug().Str("source", path).Int("records", len(records)).Msg("document extracted")
		docs = append(docs, records...)
	}

	return docs
}

func asExtractionError(path string, err error) error {
	var ee *ExtractionError
	if errors.As(err, &ee) {
		return err
	}
	return &ExtractionError{Source: path, Reason: "unreadable document", Err: err}
}

// =============================================================================
// ROUTER
// =============================================================================

// Router dispatches a path to the extractor registered for its extension.
type Router struct {
	byExt map[string]FieldExtractor
}

// NewRouter creates an empty router.
func NewRouter() *Router {
	return &Router{byExt: make(map[string]FieldExtractor)}
}

// Register binds an extension such as ".csv" to an extractor.
func (r *Router) Register(ext string, ex FieldExtractor) *Router {
	r.byExt[strings.ToLower(ext)] = ex
	return r
}

// Extract implements FieldExtractor.
func (r *Router) Extract(ctx context.Context, path string) ([]Document, error) {
	ext := strings.ToLower(filepath.Ext(path))
	ex, ok := r.byExt[ext]
	if !ok {
		return nil, &ExtractionError{Source: path, Reason: fmt.Sprintf("no extractor for extension %q", ext)}
	}
	return ex.Extract(ctx, path)
}
