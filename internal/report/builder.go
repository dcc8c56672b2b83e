// =============================================================================
// Freight Reconciler - Report Model Builder
// =============================================================================
//
// Aggregates classified match results into the five report tables.
//
// TABLES:
//   Hauptbericht      one row per order, input order, GESAMT footer
//   Gutschriften      one row per matched credit note with the line count
//                     and total of its credit note document, GESAMT footer
//   GS_Details        one row per matched pair, order and note side by side
//   Statistik         fixed rows of counters and km/amount totals
//   Nicht_zugeordnet  one row per unmatched or ambiguous order
//
// The builder only assigns severity tags. Colors and widths belong to the
// renderer.
//
// =============================================================================

package report

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/freight-reconciler/internal/types"
)

var hundred = decimal.NewFromInt(100)

// Build creates the report model of a run. results must be classified and in
// input order; notes are all normalized credit notes of the run.
func Build(results []types.MatchResult, notes []types.CreditNote, rc *types.RunContext) *Model {
	m := &Model{
		RunID:       rc.RunID,
		GeneratedAt: rc.StartedAt,
		Summary:     summarize(results, notes, rc),
		Errors:      append([]types.RecordError(nil), rc.Errors...),
	}

	m.Tables = []Table{
		mainTable(results),
		notesTable(results, notes),
		detailsTable(results),
		statisticsTable(m.Summary),
		unmatchedTable(results),
	}

	return m
}

// =============================================================================
// SUMMARY
// =============================================================================

func summarize(results []types.MatchResult, notes []types.CreditNote, rc *types.RunContext) Summary {
	s := Summary{
		TotalOrders:        len(results),
		CreditNotes:        len(notes),
		ExtractionFailures: rc.ExtractionFailures,
		SkippedOrders:      rc.SkippedOrders,
		SkippedNotes:       rc.SkippedNotes,
		OrderRecords:       rc.OrderRecords,
		NoteRecords:        rc.NoteRecords,
	}

	for _, r := range results {
		s.OrderKm = s.OrderKm.Add(r.Order.DistanceKm)
		s.PlannedAmount = s.PlannedAmount.Add(r.Order.ExpectedPayment)
		if r.Status == types.StatusMatched && r.Note != nil {
			s.NoteKm = s.NoteKm.Add(r.Note.DistanceKm)
			s.CreditedAmount = s.CreditedAmount.Add(r.Note.PaidAmount)
			if r.Discrepancy != nil {
				s.PaymentDelta = s.PaymentDelta.Add(r.Discrepancy.PaymentDelta)
			}
		}

		switch r.Status {
		case types.StatusMatched:
			s.Matched++
			if r.Method == types.MethodFallback {
				s.MatchedByFallback++
			} else {
				s.MatchedByID++
			}
		case types.StatusAmbiguous:
			s.Ambiguous++
		default:
			s.Unmatched++
		}

		switch r.Severity() {
		case types.SeverityCritical:
			s.Critical++
		case types.SeverityWarning:
			s.Warning++
		default:
			s.OK++
		}
	}

	s.UnclaimedNotes = s.CreditNotes - s.Matched
	if s.TotalOrders > 0 {
		s.MatchRate = decimal.NewFromInt(int64(s.Matched)).Div(decimal.NewFromInt(int64(s.TotalOrders)))
	}

	return s
}

// =============================================================================
// HAUPTBERICHT
// =============================================================================

var mainColumns = []Column{
	{"Tournummer", KindText},
	{"Datum", KindText},
	{"Tour", KindText},
	{"LKW", KindText},
	{"Auftrag_km", KindNumber},
	{"GS_km", KindNumber},
	{"Differenz_km", KindNumber},
	{"Differenz_km_%", KindPercent},
	{"Preis_Plan", KindMoney},
	{"Prozent", KindNumber},
	{"Preis_GS", KindMoney},
	{"Differenz_Preis", KindMoney},
	{"Zahlungsquote", KindPercent},
	{"Status", KindText},
	{"Methode", KindText},
	{"GS_ID", KindText},
	{"Gründe", KindText},
	{"Bewertung", KindText},
}

func mainTable(results []types.MatchResult) Table {
	t := Table{Name: SheetMain, Columns: mainColumns}

	var orderKm, noteKm, expected, paid, delta decimal.Decimal

	for _, r := range results {
		o := r.Order
		sev := r.Severity()

		percent := number(o.PaymentPercent)
		if o.PaymentPercent.LessThan(hundred) {
			percent.Severity = types.SeverityWarning
		}

		row := Row{Severity: sev, Cells: []Cell{
			text(o.ID),
			date(o.IssueDate, o.HasDate),
			text(o.Route()),
			text(o.Vehicle),
			number(o.DistanceKm),
			{}, {}, {},
			money(o.ExpectedPayment),
			percent,
			{}, {}, {},
			text(string(r.Status)),
			text(string(r.Method)),
			{},
			text(reasons(r)),
			tagged(string(sev), sev),
		}}

		orderKm = orderKm.Add(o.DistanceKm)
		expected = expected.Add(o.ExpectedPayment)

		if r.Status == types.StatusMatched && r.Note != nil {
			n := r.Note
			row.Cells[5] = number(n.DistanceKm)
			row.Cells[10] = money(n.PaidAmount)
			row.Cells[15] = text(n.ID)
			noteKm = noteKm.Add(n.DistanceKm)
			paid = paid.Add(n.PaidAmount)

			if d := r.Discrepancy; d != nil {
				row.Cells[6] = tagged(formatNumber(d.KmDelta), d.KmSeverity)
				row.Cells[6].Kind = KindNumber
				row.Cells[7] = percentCell(d.KmDeltaPct, d.KmDeltaPctDefined, d.KmSeverity)
				row.Cells[11] = tagged(d.PaymentDelta.StringFixed(2), d.PaymentSeverity)
				row.Cells[11].Kind = KindMoney
				row.Cells[12] = percentCell(d.PaymentRatio, d.PaymentRatioDefined, d.PaymentSeverity)
				delta = delta.Add(d.PaymentDelta)
			}
		}

		t.Rows = append(t.Rows, row)
	}

	t.Footer = &Row{Cells: []Cell{
		text("GESAMT"), {}, {}, {},
		number(orderKm), number(noteKm), {}, {},
		money(expected), {}, money(paid), money(delta), {},
		{}, {}, {}, {}, {},
	}}

	return t
}

// =============================================================================
// GUTSCHRIFTEN
// =============================================================================

var notesColumns = []Column{
	{"GS_ID", KindText},
	{"GS_Nummer", KindText},
	{"Tournummer", KindText},
	{"Datum", KindText},
	{"Tour", KindText},
	{"LKW", KindText},
	{"GS_km", KindNumber},
	{"Betrag", KindMoney},
	{"GS_Positionen", KindInteger},
	{"GS_Summe", KindMoney},
	{"Methode", KindText},
	{"Bewertung", KindText},
}

// noteDocument aggregates the detail lines sharing one document number.
type noteDocument struct {
	lines  int
	amount decimal.Decimal
}

// noteDocuments groups every normalized credit note, matched or not, by
// document number. Notes without a number are left out.
func noteDocuments(notes []types.CreditNote) map[string]*noteDocument {
	docs := make(map[string]*noteDocument)
	for _, n := range notes {
		if n.DocumentNumber == "" {
			continue
		}
		d, ok := docs[n.DocumentNumber]
		if !ok {
			d = &noteDocument{}
			docs[n.DocumentNumber] = d
		}
		d.lines++
		d.amount = d.amount.Add(n.PaidAmount)
	}
	return docs
}

func notesTable(results []types.MatchResult, notes []types.CreditNote) Table {
	t := Table{Name: SheetNotes, Columns: notesColumns}
	docs := noteDocuments(notes)

	var km, amount decimal.Decimal
	for _, r := range matched(results) {
		n := r.Note
		sev := r.Severity()

		var lines, docAmount Cell
		if d, ok := docs[n.DocumentNumber]; ok {
			lines, docAmount = integer(d.lines), money(d.amount)
		}
		t.Rows = append(t.Rows, Row{Severity: sev, Cells: []Cell{
			text(n.ID),
			text(n.DocumentNumber),
			text(r.Order.ID),
			date(n.IssueDate, n.HasDate),
			text(n.Route()),
			text(n.Vehicle),
			number(n.DistanceKm),
			money(n.PaidAmount),
			lines,
			docAmount,
			text(string(r.Method)),
			tagged(string(sev), sev),
		}})
		km = km.Add(n.DistanceKm)
		amount = amount.Add(n.PaidAmount)
	}

	t.Footer = &Row{Cells: []Cell{
		text("GESAMT"), {}, {}, {}, {}, {},
		number(km), money(amount), {}, {}, {}, {},
	}}

	return t
}

// =============================================================================
// GS_DETAILS
// =============================================================================

var detailsColumns = []Column{
	{"Tournummer", KindText},
	{"Auftrag_Datum", KindText},
	{"Auftrag_Tour", KindText},
	{"Auftrag_LKW", KindText},
	{"Auftrag_km", KindNumber},
	{"Preis_Plan", KindMoney},
	{"GS_ID", KindText},
	{"GS_Nummer", KindText},
	{"GS_Referenz", KindText},
	{"GS_Datum", KindText},
	{"GS_Tour", KindText},
	{"GS_LKW", KindText},
	{"GS_km", KindNumber},
	{"Preis_GS", KindMoney},
	{"Differenz_km", KindNumber},
	{"Differenz_km_%", KindPercent},
	{"Differenz_Preis", KindMoney},
	{"Zahlungsquote", KindPercent},
	{"Methode", KindText},
	{"Gründe", KindText},
	{"Bewertung", KindText},
}

func detailsTable(results []types.MatchResult) Table {
	t := Table{Name: SheetDetails, Columns: detailsColumns}

	for _, r := range matched(results) {
		o, n := r.Order, r.Note
		sev := r.Severity()

		var kmDelta, kmPct, payDelta, ratio Cell
		if d := r.Discrepancy; d != nil {
			kmDelta = Cell{Value: formatNumber(d.KmDelta), Kind: KindNumber, Severity: d.KmSeverity}
			kmPct = percentCell(d.KmDeltaPct, d.KmDeltaPctDefined, d.KmSeverity)
			payDelta = Cell{Value: d.PaymentDelta.StringFixed(2), Kind: KindMoney, Severity: d.PaymentSeverity}
			ratio = percentCell(d.PaymentRatio, d.PaymentRatioDefined, d.PaymentSeverity)
		}

		t.Rows = append(t.Rows, Row{Severity: sev, Cells: []Cell{
			text(o.ID),
			date(o.IssueDate, o.HasDate),
			text(o.Route()),
			text(o.Vehicle),
			number(o.DistanceKm),
			money(o.ExpectedPayment),
			text(n.ID),
			text(n.DocumentNumber),
			text(n.ReferencedOrderID),
			date(n.IssueDate, n.HasDate),
			text(n.Route()),
			text(n.Vehicle),
			number(n.DistanceKm),
			money(n.PaidAmount),
			kmDelta,
			kmPct,
			payDelta,
			ratio,
			text(string(r.Method)),
			text(reasons(r)),
			tagged(string(sev), sev),
		}})
	}

	return t
}

// =============================================================================
// STATISTIK
// =============================================================================

var statisticsColumns = []Column{
	{"Kennzahl", KindText},
	{"Wert", KindText},
}

func statisticsTable(s Summary) Table {
	t := Table{Name: SheetStatistics, Columns: statisticsColumns}

	add := func(label string, value Cell, sev types.Severity) {
		t.Rows = append(t.Rows, Row{Severity: sev, Cells: []Cell{text(label), value}})
	}
	count := func(label string, n int, sev types.Severity) {
		if n == 0 {
			sev = types.SeverityNone
		}
		add(label, integer(n), sev)
	}

	count("Auftragsdatensätze gelesen", s.OrderRecords, types.SeverityNone)
	count("Gutschriftdatensätze gelesen", s.NoteRecords, types.SeverityNone)
	count("Aufträge gesamt", s.TotalOrders, types.SeverityNone)
	count("Zugeordnet", s.Matched, types.SeverityNone)
	count("davon über Tournummer", s.MatchedByID, types.SeverityNone)
	count("davon über Ersatzabgleich", s.MatchedByFallback, types.SeverityNone)
	count("Nicht zugeordnet", s.Unmatched, types.SeverityCritical)
	count("Mehrdeutig", s.Ambiguous, types.SeverityWarning)
	add("Zuordnungsquote", Cell{Value: s.MatchRate.Round(4).StringFixed(4), Kind: KindPercent}, types.SeverityNone)
	count("OK", s.OK, types.SeverityOK)
	count("WARNING", s.Warning, types.SeverityWarning)
	count("CRITICAL", s.Critical, types.SeverityCritical)
	count("Gutschriften gesamt", s.CreditNotes, types.SeverityNone)
	count("Gutschriften ohne Auftrag", s.UnclaimedNotes, types.SeverityWarning)
	count("Extraktionsfehler", s.ExtractionFailures, types.SeverityWarning)
	count("Normalisierungsfehler", s.NormalizationFailures(), types.SeverityWarning)
	count("Aufträge übersprungen", s.SkippedOrders, types.SeverityNone)
	count("Gutschriften übersprungen", s.SkippedNotes, types.SeverityNone)

	deltaSev := types.SeverityNone
	if s.PaymentDelta.IsNegative() {
		deltaSev = types.SeverityWarning
	}
	add("Kilometer laut Aufträgen", number(s.OrderKm), types.SeverityNone)
	add("Kilometer laut Gutschriften", number(s.NoteKm), types.SeverityNone)
	add("Sollbetrag gesamt", money(s.PlannedAmount), types.SeverityNone)
	add("Gutschriftbetrag gesamt", money(s.CreditedAmount), types.SeverityNone)
	add("Differenz gesamt", money(s.PaymentDelta), deltaSev)

	return t
}

// =============================================================================
// NICHT_ZUGEORDNET
// =============================================================================

var unmatchedColumns = []Column{
	{"Tournummer", KindText},
	{"Datum", KindText},
	{"Tour", KindText},
	{"LKW", KindText},
	{"Auftrag_km", KindNumber},
	{"Preis_Plan", KindMoney},
	{"Status", KindText},
	{"Grund", KindText},
	{"Kandidaten", KindText},
	{"Bewertung", KindText},
}

func unmatchedTable(results []types.MatchResult) Table {
	t := Table{Name: SheetUnmatched, Columns: unmatchedColumns}

	for _, r := range results {
		if r.Status == types.StatusMatched {
			continue
		}
		o := r.Order
		sev := r.Severity()
		t.Rows = append(t.Rows, Row{Severity: sev, Cells: []Cell{
			text(o.ID),
			date(o.IssueDate, o.HasDate),
			text(o.Route()),
			text(o.Vehicle),
			number(o.DistanceKm),
			money(o.ExpectedPayment),
			text(string(r.Status)),
			tagged(reasons(r), sev),
			text(strings.Join(r.CandidateIDs(), ", ")),
			tagged(string(sev), sev),
		}})
	}

	return t
}

// =============================================================================
// CELL HELPERS
// =============================================================================

func matched(results []types.MatchResult) []types.MatchResult {
	var out []types.MatchResult
	for _, r := range results {
		if r.Status == types.StatusMatched && r.Note != nil {
			out = append(out, r)
		}
	}
	return out
}

// reasons is the reason column of a result: the discrepancy reasons of a
// matched order, NO_CANDIDATE or AMBIGUOUS otherwise.
func reasons(r types.MatchResult) string {
	switch r.Status {
	case types.StatusUnmatched:
		return ReasonNoCandidate
	case types.StatusAmbiguous:
		return ReasonAmbiguous
	}
	if r.Discrepancy == nil {
		return ""
	}
	parts := make([]string, len(r.Discrepancy.Reasons))
	for i, reason := range r.Discrepancy.Reasons {
		parts[i] = string(reason)
	}
	return strings.Join(parts, ", ")
}

func text(s string) Cell {
	return Cell{Value: s, Kind: KindText}
}

func tagged(s string, sev types.Severity) Cell {
	return Cell{Value: s, Kind: KindText, Severity: sev}
}

func integer(n int) Cell {
	return Cell{Value: strconv.Itoa(n), Kind: KindInteger}
}

func number(d decimal.Decimal) Cell {
	return Cell{Value: formatNumber(d), Kind: KindNumber}
}

func money(d decimal.Decimal) Cell {
	return Cell{Value: d.StringFixed(2), Kind: KindMoney}
}

func percentCell(d decimal.Decimal, defined bool, sev types.Severity) Cell {
	if !defined {
		return Cell{Value: "", Kind: KindPercent, Severity: sev}
	}
	return Cell{Value: d.Round(4).StringFixed(4), Kind: KindPercent, Severity: sev}
}

func date(t time.Time, ok bool) Cell {
	if !ok {
		return text("")
	}
	return text(t.Format("02.01.2006"))
}

// formatNumber rounds to two decimals and drops trailing zeros.
func formatNumber(d decimal.Decimal) string {
	return d.Round(2).String()
}
