// =============================================================================
// Freight Reconciler - CSV Source
// =============================================================================
//
// Reads delimited exports of orders or credit notes.
//
// FORMAT:
//   - The first non-empty row holds the headers.
//   - Every following non-empty row is one record.
//   - The delimiter is detected from the header row unless configured.
//     German exports usually use ';'.
//
// =============================================================================

package extraction

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// CSVExtractor reads delimited files.
type CSVExtractor struct {
	// Delimiter forces a separator. Zero means detect.
	Delimiter rune
}

// NewCSVExtractor creates a CSV extractor. delimiter accepts the same
// spellings as the config file ("tab", "pipe", ";" ...); empty detects.
func NewCSVExtractor(delimiter string) *CSVExtractor {
	return &CSVExtractor{Delimiter: parseDelimiter(delimiter)}
}

// Extract implements FieldExtractor.
func (c *CSVExtractor) Extract(ctx context.Context, path string) ([]Document, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, &ExtractionError{Source: path, Reason: "failed to open file", Err: err}
	}
	defer file.Close()

	return c.Read(ctx, path, file)
}

// Read extracts records from r. source is used for labels only.
func (c *CSVExtractor) Read(ctx context.Context, source string, r io.Reader) ([]Document, error) {
	reader := bufio.NewReader(r)

	// Detect the delimiter from the first line without consuming it.
	comma := c.Delimiter
	if comma == 0 {
		head, _ := reader.Peek(4096)
		comma = detectDelimiter(string(head))
	}

	csvReader := csv.NewReader(reader)
	csvReader.Comma = comma
	// Rows may be ragged in hand-edited exports.
	csvReader.FieldsPerRecord = -1
	csvReader.LazyQuotes = true
	csvReader.TrimLeadingSpace = true

	allRows, err := csvReader.ReadAll()
	if err != nil {
		return nil, &ExtractionError{Source: source, Reason: "failed to read CSV", Err: err}
	}

	var headers []string
	var docs []Document
	line := 0

	for _, row := range allRows {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if isRowEmpty(row) {
			continue
		}
		if headers == nil {
			headers = cleanHeaders(row)
			continue
		}

		line++
		docs = append(docs, Document{
			Source:  source,
			Line:    line,
			Fields:  rowToFields(headers, row),
			Headers: headers,
		})
	}

	if headers == nil {
		return nil, &ExtractionError{Source: source, Reason: "CSV file is empty"}
	}

	return docs, nil
}

// parseDelimiter maps a configured delimiter name to a rune.
func parseDelimiter(s string) rune {
	switch s {
	case "":
		return 0
	case "\\t", "tab", "TAB":
		return '\t'
	case "pipe", "PIPE":
		return '|'
	case "semicolon":
		return ';'
	case "comma":
		return ','
	default:
		return []rune(s)[0]
	}
}

// detectDelimiter picks the most frequent candidate in the first line.
func detectDelimiter(head string) rune {
	if i := strings.IndexByte(head, '\n'); i >= 0 {
		head = head[:i]
	}

	best, bestCount := ',', 0
	for _, candidate := range []rune{';', ',', '\t', '|'} {
		if n := strings.Count(head, string(candidate)); n > bestCount {
			best, bestCount = candidate, n
		}
	}
	return best
}

// cleanHeaders trims headers and names blank ones by position.
func cleanHeaders(headers []string) []string {
	cleaned := make([]string, len(headers))
	for i, header := range headers {
		header = strings.TrimSpace(strings.TrimPrefix(header, "\ufeff"))
		if header == "" {
			header = fmt.Sprintf("Column_%d", i+1)
		}
		cleaned[i] = header
	}
	return cleaned
}

func rowToFields(headers, row []string) map[string]string {
	fields := make(map[string]string, len(headers))
	for i, header := range headers {
		if i < len(row) {
			fields[header] = strings.TrimSpace(row[i])
		} else {
			fields[header] = ""
		}
	}
	return fields
}

func isRowEmpty(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
