// =============================================================================
// Freight Reconciler - Labeled Text Source
// =============================================================================
//
// Reads plain text renditions of orders and credit notes (for example the
// output of a PDF-to-text tool) by matching labeled values.
//
// HOW RECORDS ARE FOUND:
//   1. Header patterns run against the whole text (e.g. "Nr.: 4711").
//   2. The text is split into blocks at every match of the separator
//      (e.g. "Transp.A." starts a settlement line). Without a separator, or
//      when it never matches, the whole text is one block.
//   3. Record patterns run against each block. A block where no record
//      pattern matches is skipped.
//   4. Header values are copied into every record; record values win.
//
// =============================================================================

package extraction

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/ginjaninja78/freight-reconciler/internal/config"
)

// TextExtractor reads labeled plain text.
type TextExtractor struct {
	separator *regexp.Regexp
	header    []fieldPattern
	record    []fieldPattern
	required  string
}

type fieldPattern struct {
	field string
	re    *regexp.Regexp
}

// NewTextExtractor compiles a text layout.
//
// RETURNS:
//   - The extractor.
//   - A *config.ConfigError if a pattern does not compile.
func NewTextExtractor(layout config.TextLayout) (*TextExtractor, error) {
	t := &TextExtractor{required: layout.Required}

	if layout.Separator != "" {
		re, err := regexp.Compile(layout.Separator)
		if err != nil {
			return nil, &config.ConfigError{Field: "separator", Value: layout.Separator, Reason: err.Error()}
		}
		t.separator = re
	}

	var err error
	if t.header, err = compilePatterns(layout.Header); err != nil {
		return nil, err
	}
	if t.record, err = compilePatterns(layout.Record); err != nil {
		return nil, err
	}

	return t, nil
}

// compilePatterns compiles a field→pattern map in field order, so that
// extraction does not depend on map iteration.
func compilePatterns(patterns map[string]string) ([]fieldPattern, error) {
	fields := make([]string, 0, len(patterns))
	for field := range patterns {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	compiled := make([]fieldPattern, 0, len(fields))
	for _, field := range fields {
		re, err := regexp.Compile(patterns[field])
		if err != nil {
			return nil, &config.ConfigError{Field: field, Value: patterns[field], Reason: err.Error()}
		}
		if re.NumSubexp() < 1 {
			return nil, &config.ConfigError{Field: field, Value: patterns[field], Reason: "needs a capture group"}
		}
		compiled = append(compiled, fieldPattern{field: field, re: re})
	}
	return compiled, nil
}

// Extract implements FieldExtractor.
func (t *TextExtractor) Extract(ctx context.Context, path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ExtractionError{Source: path, Reason: "failed to read file", Err: err}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	return t.Parse(path, string(data))
}

// Parse extracts records from text. source is used for labels only.
func (t *TextExtractor) Parse(source, text string) ([]Document, error) {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	header := matchAll(t.header, text)

	var docs []Document
	for _, block := range t.blocks(text) {
		found := matchAll(t.record, block)
		if len(found) == 0 {
			continue
		}

		fields := make(map[string]string, len(header)+len(found))
		for k, v := range header {
			fields[k] = v
		}
		for k, v := range found {
			fields[k] = v
		}

		if t.required != "" && fields[t.required] == "" {
			return nil, &ExtractionError{
				Source: source,
				Reason: fmt.Sprintf("required field %q not found in record %d", t.required, len(docs)+1),
			}
		}

		docs = append(docs, Document{Source: source, Line: len(docs) + 1, Fields: fields})
	}

	if len(docs) == 0 {
		return nil, &ExtractionError{Source: source, Reason: "no records found"}
	}

	return docs, nil
}

// blocks splits text at every separator match. Text before the first match
// belongs to the header only.
func (t *TextExtractor) blocks(text string) []string {
	if t.separator == nil {
		return []string{text}
	}

	idx := t.separator.FindAllStringIndex(text, -1)
	if len(idx) == 0 {
		return []string{text}
	}

	blocks := make([]string, len(idx))
	for i, loc := range idx {
		end := len(text)
		if i+1 < len(idx) {
			end = idx[i+1][0]
		}
		blocks[i] = text[loc[0]:end]
	}
	return blocks
}

// matchAll returns the first capture of every pattern that matches, with
// whitespace collapsed.
func matchAll(patterns []fieldPattern, text string) map[string]string {
	out := make(map[string]string)
	for _, p := range patterns {
		m := p.re.FindStringSubmatch(text)
		if len(m) < 2 {
			continue
		}
		if v := strings.Join(strings.Fields(m[1]), " "); v != "" {
			out[p.field] = v
		}
	}
	return out
}
