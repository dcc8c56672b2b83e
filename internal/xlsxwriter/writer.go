// =============================================================================
// Freight Reconciler - Excel Report Writer
// =============================================================================
//
// Renders a report.Model into a single .xlsx workbook, one sheet per table,
// in report.SheetOrder.
//
// LAYOUT:
//   Row 1         bold header, frozen
//   Rows 2..n     data rows, filled by severity
//   Footer        bold totals row directly below the data (if present)
//
//   The Statistik sheet additionally carries the run ID, the creation time
//   and the error side-list below its table.
//
// FILLS:
//   Each cell is filled with the worse of its own tag and its row's tag, so a
//   flagged value stays visible in an otherwise OK row. Severities without a
//   configured color stay unfilled.
//
// =============================================================================

package xlsxwriter

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/freight-reconciler/internal/report"
	"github.com/ginjaninja78/freight-reconciler/internal/types"
)

const (
	maxColumnWidth = 50
	percentFormat  = "0.0%"
	timestampFmt   = "02.01.2006 15:04:05"
)

// DefaultColors returns the fills used when no colors are configured.
func DefaultColors() map[types.Severity]string {
	return map[types.Severity]string{
		types.SeverityCritical: "FFE6E6",
		types.SeverityWarning:  "FFF9E6",
	}
}

// ColorsFromConfig converts the severity_colors section of the config.
func ColorsFromConfig(colors map[string]string) map[types.Severity]string {
	if len(colors) == 0 {
		return DefaultColors()
	}
	out := make(map[types.Severity]string, len(colors))
	for tag, color := range colors {
		out[types.Severity(strings.ToUpper(tag))] = strings.TrimPrefix(color, "#")
	}
	return out
}

// Writer renders report models. A Writer is stateless between calls.
type Writer struct {
	colors map[types.Severity]string
}

// New creates a writer. A nil map selects DefaultColors.
func New(colors map[types.Severity]string) *Writer {
	if colors == nil {
		colors = DefaultColors()
	}
	return &Writer{colors: colors}
}

// Write renders m as a workbook to out.
func (w *Writer) Write(m *report.Model, out io.Writer) error {
	f, err := w.render(m)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(out); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

// WriteFile renders m and saves it at path.
func (w *Writer) WriteFile(m *report.Model, path string) error {
	f, err := w.render(m)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook %s: %w", path, err)
	}
	return nil
}

// =============================================================================
// RENDERING
// =============================================================================

// sheet is the per-sheet state of one render.
type sheet struct {
	f      *excelize.File
	name   string
	styles *styleCache
	widths []int
}

func (w *Writer) render(m *report.Model) (*excelize.File, error) {
	f := excelize.NewFile()
	styles := &styleCache{f: f, colors: w.colors, ids: make(map[styleKey]int)}

	var first string
	for _, name := range report.SheetOrder {
		tbl := m.Table(name)
		if tbl == nil {
			continue
		}

		if _, err := f.NewSheet(name); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
		if first == "" {
			first = name
		}

		s := &sheet{f: f, name: name, styles: styles}
		if err := s.writeTable(tbl); err != nil {
			f.Close()
			return nil, fmt.Errorf("sheet %s: %w", name, err)
		}
		if name == report.SheetStatistics {
			if err := s.writeRunInfo(m, len(tbl.Rows)+3); err != nil {
				f.Close()
				return nil, fmt.Errorf("sheet %s: %w", name, err)
			}
		}
		if err := s.applyWidths(); err != nil {
			f.Close()
			return nil, fmt.Errorf("sheet %s: %w", name, err)
		}
	}

	if err := f.DeleteSheet("Sheet1"); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to remove default sheet: %w", err)
	}
	if idx, err := f.GetSheetIndex(first); err == nil && idx >= 0 {
		f.SetActiveSheet(idx)
	}
	return f, nil
}

func (s *sheet) writeTable(tbl *report.Table) error {
	headers := make([]report.Cell, len(tbl.Columns))
	for i, c := range tbl.Columns {
		headers[i] = report.Cell{Value: c.Header}
	}
	if err := s.writeRow(1, headers, types.SeverityNone, true); err != nil {
		return err
	}

	if err := s.f.SetPanes(s.name, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze header: %w", err)
	}

	for i, row := range tbl.Rows {
		if err := s.writeRow(i+2, row.Cells, row.Severity, false); err != nil {
			return err
		}
	}

	if tbl.Footer != nil {
		if err := s.writeRow(len(tbl.Rows)+2, tbl.Footer.Cells, tbl.Footer.Severity, true); err != nil {
			return err
		}
	}
	return nil
}

// writeRunInfo places the run identity and the error side-list below the
// statistics table, starting at row start.
func (s *sheet) writeRunInfo(m *report.Model, start int) error {
	info := [][]report.Cell{
		{{Value: "Lauf-ID"}, {Value: m.RunID}},
		{{Value: "Erstellt"}, {Value: m.GeneratedAt.Format(timestampFmt)}},
	}
	row := start
	for _, cells := range info {
		if err := s.writeRow(row, cells, types.SeverityNone, false); err != nil {
			return err
		}
		row++
	}

	if len(m.Errors) == 0 {
		return nil
	}

	row++
	header := []report.Cell{{Value: "Fehlerart"}, {Value: "Quelle"}, {Value: "Feld"}, {Value: "Wert"}, {Value: "Meldung"}}
	if err := s.writeRow(row, header, types.SeverityNone, true); err != nil {
		return err
	}
	for _, e := range m.Errors {
		row++
		cells := []report.Cell{{Value: e.Kind}, {Value: e.Source}, {Value: e.Field}, {Value: e.Raw}, {Value: e.Message}}
		if err := s.writeRow(row, cells, types.SeverityNone, false); err != nil {
			return err
		}
	}
	return nil
}

func (s *sheet) writeRow(row int, cells []report.Cell, rowSeverity types.Severity, bold bool) error {
	for i, c := range cells {
		ref, err := excelize.CoordinatesToCellName(i+1, row)
		if err != nil {
			return err
		}

		if err := s.f.SetCellValue(s.name, ref, value(c)); err != nil {
			return fmt.Errorf("failed to set %s: %w", ref, err)
		}

		sev := types.Worst(c.Severity, rowSeverity)
		style, err := s.styles.get(styleKey{kind: c.Kind, severity: sev, bold: bold})
		if err != nil {
			return err
		}
		if style != 0 {
			if err := s.f.SetCellStyle(s.name, ref, ref, style); err != nil {
				return fmt.Errorf("failed to style %s: %w", ref, err)
			}
		}

		s.measure(i, display(c))
	}
	return nil
}

// value converts a cell to what excelize stores. Numeric kinds become
// numbers so that spreadsheet formulas work on them.
func value(c report.Cell) interface{} {
	d, ok := c.Decimal()
	if !ok {
		return c.Value
	}
	if c.Kind == report.KindInteger && d.IsInteger() {
		return d.IntPart()
	}
	return d.InexactFloat64()
}

// display approximates the rendered text for column sizing.
func display(c report.Cell) string {
	if c.Kind == report.KindPercent {
		if d, ok := c.Decimal(); ok {
			return d.Shift(2).StringFixed(1) + "%"
		}
	}
	return c.Value
}

func (s *sheet) measure(col int, text string) {
	for len(s.widths) <= col {
		s.widths = append(s.widths, 0)
	}
	if n := utf8.RuneCountInString(text); n > s.widths[col] {
		s.widths[col] = n
	}
}

func (s *sheet) applyWidths() error {
	for i, w := range s.widths {
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return err
		}
		width := w + 2
		if width > maxColumnWidth {
			width = maxColumnWidth
		}
		if err := s.f.SetColWidth(s.name, name, name, float64(width)); err != nil {
			return fmt.Errorf("failed to size column %s: %w", name, err)
		}
	}
	return nil
}

// =============================================================================
// STYLES
// =============================================================================

type styleKey struct {
	kind     report.CellKind
	severity types.Severity
	bold     bool
}

// styleCache creates each distinct style once per workbook.
type styleCache struct {
	f      *excelize.File
	colors map[types.Severity]string
	ids    map[styleKey]int
}

func (c *styleCache) get(key styleKey) (int, error) {
	if id, ok := c.ids[key]; ok {
		return id, nil
	}

	style := &excelize.Style{}
	plain := true

	if key.bold {
		style.Font = &excelize.Font{Bold: true}
		plain = false
	}
	if color, ok := c.colors[key.severity]; ok && color != "" {
		style.Fill = excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{color}}
		plain = false
	}
	switch key.kind {
	case report.KindInteger:
		style.NumFmt = 3 // #,##0
		plain = false
	case report.KindNumber:
		style.NumFmt = 4 // #,##0.00
		plain = false
	case report.KindMoney:
		style.NumFmt = 4
		plain = false
	case report.KindPercent:
		format := percentFormat
		style.CustomNumFmt = &format
		plain = false
	}

	if plain {
		c.ids[key] = 0
		return 0, nil
	}

	id, err := c.f.NewStyle(style)
	if err != nil {
		return 0, fmt.Errorf("failed to create style: %w", err)
	}
	c.ids[key] = id
	return id, nil
}
