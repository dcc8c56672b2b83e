// =============================================================================
// Freight Reconciler - XLSX Source
// =============================================================================
//
// Reads spreadsheet exports of orders or credit notes using excelize.
//
// LAYOUT:
//   - The configured sheet (default: the first sheet) is read.
//   - The first non-empty row holds the headers, every following non-empty
//     row is one record.
//   - Cells are read as formatted text, so "1.234,50" stays a string and is
//     parsed by the normalizer like any other raw value.
//
// =============================================================================

package extraction

import (
	"context"
	"io"

	"github.com/xuri/excelize/v2"
)

// XLSXExtractor reads spreadsheets.
type XLSXExtractor struct {
	// Sheet names the worksheet to read. Empty reads the first sheet.
	Sheet string
}

// NewXLSXExtractor creates a spreadsheet extractor for the given sheet.
func NewXLSXExtractor(sheet string) *XLSXExtractor {
	return &XLSXExtractor{Sheet: sheet}
}

// Extract implements FieldExtractor.
func (x *XLSXExtractor) Extract(ctx context.Context, path string) ([]Document, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, &ExtractionError{Source: path, Reason: "failed to open spreadsheet", Err: err}
	}
	defer f.Close()

	return x.read(ctx, path, f)
}

// Read extracts records from a spreadsheet stream.
func (x *XLSXExtractor) Read(ctx context.Context, source string, r io.Reader) ([]Document, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &ExtractionError{Source: source, Reason: "failed to open spreadsheet", Err: err}
	}
	defer f.Close()

	return x.read(ctx, source, f)
}

func (x *XLSXExtractor) read(ctx context.Context, source string, f *excelize.File) ([]Document, error) {
	sheetName := x.Sheet
	if sheetName == "" {
		sheetName = f.GetSheetName(0)
	}
	if sheetName == "" {
		return nil, &ExtractionError{Source: source, Reason: "spreadsheet has no sheets"}
	}

	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, &ExtractionError{Source: source, Reason: "failed to read sheet " + sheetName, Err: err}
	}

	var headers []string
	var docs []Document
	line := 0

	for _, row := range rows {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if len(row) == 0 || isRowEmpty(row) {
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
		return nil, &ExtractionError{Source: source, Reason: "sheet " + sheetName + " is empty"}
	}

	return docs, nil
}
