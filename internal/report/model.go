// =============================================================================
// Freight Reconciler - Report Model
// =============================================================================
//
// The report model is the renderer-neutral result of a run: five named
// tables with per-row and per-cell severity tags plus summary counters.
//
// CELL VALUES:
//   Values are stored as canonical strings so that two builds from the same
//   input are identical:
//     KindText     as is
//     KindInteger  "24"
//     KindNumber   "520.5"  (at most two decimals, period separator)
//     KindMoney    "1000.00"
//     KindPercent  "0.9167" (a fraction; renderers show it as 91.7%)
//   An empty Value is an empty cell regardless of kind.
//
// =============================================================================

package report

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/freight-reconciler/internal/types"
)

// Sheet names in rendering order.
const (
	SheetMain       = "Hauptbericht"
	SheetNotes      = "Gutschriften"
	SheetDetails    = "GS_Details"
	SheetStatistics = "Statistik"
	SheetUnmatched  = "Nicht_zugeordnet"
)

// SheetOrder lists the tables in the order they are rendered.
var SheetOrder = []string{SheetMain, SheetNotes, SheetDetails, SheetStatistics, SheetUnmatched}

// Reason tags of the Nicht_zugeordnet table.
const (
	ReasonNoCandidate = "NO_CANDIDATE"
	ReasonAmbiguous   = "AMBIGUOUS"
)

// CellKind tells the renderer how to present a value.
type CellKind int

const (
	KindText CellKind = iota
	KindInteger
	KindNumber
	KindMoney
	KindPercent
)

// Cell is one annotated value.
type Cell struct {
	Value    string
	Kind     CellKind
	Severity types.Severity
}

// Decimal returns the numeric value of a non-text cell.
func (c Cell) Decimal() (decimal.Decimal, bool) {
	if c.Kind == KindText || c.Value == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(c.Value)
	return d, err == nil
}

// Row is one record of a table.
type Row struct {
	Cells    []Cell
	Severity types.Severity
}

// Column describes a table column.
type Column struct {
	Header string
	Kind   CellKind
}

// Table is an ordered sequence of rows with a fixed schema. Footer holds
// totals and is not a data row.
type Table struct {
	Name    string
	Columns []Column
	Rows    []Row
	Footer  *Row
}

// Index returns the position of a column by header, or -1.
func (t *Table) Index(header string) int {
	for i, c := range t.Columns {
		if c.Header == header {
			return i
		}
	}
	return -1
}

// Summary holds the counters of a run.
type Summary struct {
	TotalOrders int
	Matched     int
	Unmatched   int
	Ambiguous   int

	MatchedByID       int
	MatchedByFallback int

	OK       int
	Warning  int
	Critical int

	CreditNotes        int
	UnclaimedNotes     int
	ExtractionFailures int
	SkippedOrders      int
	SkippedNotes       int

	// OrderRecords and NoteRecords count the extracted records before
	// normalization, failed documents included.
	OrderRecords int
	NoteRecords  int

	// Totals. Order values cover every order, note values and the payment
	// difference cover matched pairs only.
	OrderKm        decimal.Decimal
	NoteKm         decimal.Decimal
	PlannedAmount  decimal.Decimal
	CreditedAmount decimal.Decimal
	PaymentDelta   decimal.Decimal

	// MatchRate is Matched / TotalOrders, zero for an empty run.
	MatchRate decimal.Decimal
}

// NormalizationFailures is the number of records excluded by the normalizer.
func (s Summary) NormalizationFailures() int {
	return s.SkippedOrders + s.SkippedNotes
}

// MatchRatePercent formats the match rate for humans ("91.7%").
func (s Summary) MatchRatePercent() string {
	return s.MatchRate.Mul(decimal.NewFromInt(100)).StringFixed(1) + "%"
}

// Model is built once per run and not mutated afterwards.
type Model struct {
	// RunID and GeneratedAt identify the run. They are not part of the
	// tables, so equal inputs give equal tables.
	RunID       string
	GeneratedAt time.Time

	Tables  []Table
	Summary Summary

	// Errors is the side-list of excluded documents and records.
	Errors []types.RecordError
}

// Table returns a table by name, or nil.
func (m *Model) Table(name string) *Table {
	for i := range m.Tables {
		if m.Tables[i].Name == name {
			return &m.Tables[i]
		}
	}
	return nil
}
