package report_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/freight-reconciler/internal/classifier"
	"github.com/ginjaninja78/freight-reconciler/internal/config"
	"github.com/ginjaninja78/freight-reconciler/internal/matcher"
	"github.com/ginjaninja78/freight-reconciler/internal/report"
	"github.com/ginjaninja78/freight-reconciler/internal/types"
)

func order(id string, km, expected int64) types.TransportOrder {
	return types.TransportOrder{
		ID:              id,
		Key:             id,
		Origin:          "Berlin",
		Destination:     "Hamburg",
		DistanceKm:      decimal.NewFromInt(km),
		ExpectedPayment: decimal.NewFromInt(expected),
		PaymentPercent:  decimal.NewFromInt(100),
	}
}

func note(id, ref string, km, paid int64) types.CreditNote {
	return types.CreditNote{
		ID:                id,
		DocumentNumber:    "GS-" + id,
		ReferencedOrderID: ref,
		ReferenceKey:      ref,
		DistanceKm:        decimal.NewFromInt(km),
		PaidAmount:        decimal.NewFromInt(paid),
	}
}

func build(orders []types.TransportOrder, notes []types.CreditNote, rc *types.RunContext) *report.Model {
	th := config.DefaultThresholds()
	results := matcher.New(th, zerolog.Nop()).Match(orders, notes)
	results = classifier.New(th).Apply(results)
	return report.Build(results, notes, rc)
}

func cell(t *testing.T, tbl *report.Table, row int, header string) report.Cell {
	t.Helper()
	col := tbl.Index(header)
	require.GreaterOrEqual(t, col, 0, "column %s", header)
	require.Less(t, row, len(tbl.Rows))
	return tbl.Rows[row].Cells[col]
}

func stat(t *testing.T, m *report.Model, label string) report.Row {
	t.Helper()
	stats := m.Table(report.SheetStatistics)
	require.NotNil(t, stats)
	for _, row := range stats.Rows {
		if row.Cells[0].Value == label {
			return row
		}
	}
	require.Failf(t, "statistics row not found", "label %q", label)
	return report.Row{}
}

func TestBuild_MatchRate(t *testing.T) {
	var orders []types.TransportOrder
	var notes []types.CreditNote
	for i := 1; i <= 24; i++ {
		id := fmt.Sprintf("O%02d", i)
		orders = append(orders, order(id, 500, 1000))
		if i <= 22 {
			notes = append(notes, note(fmt.Sprintf("N%02d", i), id, 500, 1000))
		}
	}

	m := build(orders, notes, types.NewRunContext("run-1", time.Now()))

	assert.Equal(t, 24, m.Summary.TotalOrders)
	assert.Equal(t, 22, m.Summary.Matched)
	assert.Equal(t, 2, m.Summary.Unmatched)
	assert.Equal(t, "91.7%", m.Summary.MatchRatePercent())
	assert.Equal(t, 22, m.Summary.OK)
	assert.Equal(t, 2, m.Summary.Critical)

	rate := stat(t, m, "Zuordnungsquote").Cells[1]
	assert.Equal(t, "0.9167", rate.Value)
	assert.Equal(t, report.KindPercent, rate.Kind)

	assert.Len(t, m.Table(report.SheetMain).Rows, 24)
	assert.Len(t, m.Table(report.SheetNotes).Rows, 22)
	assert.Len(t, m.Table(report.SheetDetails).Rows, 22)
	assert.Len(t, m.Table(report.SheetUnmatched).Rows, 2)
}

func TestBuild_Tables(t *testing.T) {
	o5 := order("O5", 500, 1000)
	o5.PaymentPercent = decimal.NewFromInt(80)

	orders := []types.TransportOrder{
		order("O1", 500, 1000),
		order("O2", 500, 1000),
		order("O3", 500, 1000),
		order("O4", 500, 1000),
		o5,
	}
	notes := []types.CreditNote{
		note("N1", "O1", 520, 1000),
		note("N2", "O2", 600, 1000),
		note("N4a", "O4", 500, 1000),
		note("N4b", "O4", 500, 1000),
		note("N5", "O5", 500, 940),
	}

	rc := types.NewRunContext("run-1", time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC))
	rc.OrderRecords, rc.NoteRecords = 5, 7
	rc.AddExtractionFailure("scan.txt", "no records found")
	rc.SkippedNotes++
	rc.AddFieldError("gs.csv:4", "paid_amount", "abc", "not a number")

	m := build(orders, notes, rc)

	require.Len(t, m.Tables, 5)
	for i, name := range report.SheetOrder {
		assert.Equal(t, name, m.Tables[i].Name)
	}

	hb := m.Table(report.SheetMain)
	require.Len(t, hb.Rows, 5)
	for i, o := range orders {
		assert.Equal(t, o.ID, cell(t, hb, i, "Tournummer").Value, "one row per order in input order")
	}

	assert.Equal(t, types.SeverityOK, hb.Rows[0].Severity)
	assert.Equal(t, "0.0400", cell(t, hb, 0, "Differenz_km_%").Value)
	assert.Equal(t, "N1", cell(t, hb, 0, "GS_ID").Value)

	assert.Equal(t, types.SeverityCritical, hb.Rows[1].Severity)
	assert.Equal(t, types.SeverityCritical, cell(t, hb, 1, "Differenz_km").Severity)
	assert.Equal(t, "100", cell(t, hb, 1, "Differenz_km").Value)
	assert.Equal(t, types.SeverityOK, cell(t, hb, 1, "Differenz_Preis").Severity)
	assert.Equal(t, "KM_DEVIATION", cell(t, hb, 1, "Gründe").Value)

	assert.Equal(t, "UNMATCHED", cell(t, hb, 2, "Status").Value)
	assert.Equal(t, "", cell(t, hb, 2, "GS_km").Value)
	assert.Equal(t, "AMBIGUOUS", cell(t, hb, 3, "Status").Value)
	assert.Equal(t, types.SeverityWarning, hb.Rows[3].Severity)

	assert.Equal(t, types.SeverityWarning, cell(t, hb, 4, "Prozent").Severity, "percentage below 100")
	assert.Equal(t, types.SeverityNone, cell(t, hb, 0, "Prozent").Severity)
	assert.Equal(t, "-60.00", cell(t, hb, 4, "Differenz_Preis").Value)
	assert.Equal(t, types.SeverityCritical, hb.Rows[4].Severity)

	require.NotNil(t, hb.Footer)
	footer := hb.Footer.Cells
	assert.Equal(t, "GESAMT", footer[0].Value)
	assert.Equal(t, "2500", footer[hb.Index("Auftrag_km")].Value)
	assert.Equal(t, "1620", footer[hb.Index("GS_km")].Value)
	assert.Equal(t, "5000.00", footer[hb.Index("Preis_Plan")].Value)
	assert.Equal(t, "2940.00", footer[hb.Index("Preis_GS")].Value)
	assert.Equal(t, "-60.00", footer[hb.Index("Differenz_Preis")].Value)

	gs := m.Table(report.SheetNotes)
	require.Len(t, gs.Rows, 3)
	assert.Equal(t, "N1", cell(t, gs, 0, "GS_ID").Value)
	assert.Equal(t, "O5", cell(t, gs, 2, "Tournummer").Value)
	assert.Equal(t, "2940.00", gs.Footer.Cells[gs.Index("Betrag")].Value)

	details := m.Table(report.SheetDetails)
	require.Len(t, details.Rows, 3)
	assert.Equal(t, "O2", cell(t, details, 1, "Tournummer").Value)
	assert.Equal(t, "N2", cell(t, details, 1, "GS_ID").Value)
	assert.Equal(t, "0.2000", cell(t, details, 1, "Differenz_km_%").Value)
	assert.Equal(t, "1.0000", cell(t, details, 1, "Zahlungsquote").Value)

	unmatched := m.Table(report.SheetUnmatched)
	require.Len(t, unmatched.Rows, 2)
	assert.Equal(t, "O3", cell(t, unmatched, 0, "Tournummer").Value)
	assert.Equal(t, report.ReasonNoCandidate, cell(t, unmatched, 0, "Grund").Value)
	assert.Equal(t, types.SeverityCritical, unmatched.Rows[0].Severity)
	assert.Equal(t, "O4", cell(t, unmatched, 1, "Tournummer").Value)
	assert.Equal(t, report.ReasonAmbiguous, cell(t, unmatched, 1, "Grund").Value)
	assert.Equal(t, "N4a, N4b", cell(t, unmatched, 1, "Kandidaten").Value)
	assert.Equal(t, types.SeverityWarning, unmatched.Rows[1].Severity)

	s := m.Summary
	assert.Equal(t, 3, s.Matched)
	assert.Equal(t, 1, s.Unmatched)
	assert.Equal(t, 1, s.Ambiguous)
	assert.Equal(t, 2, s.UnclaimedNotes)
	assert.Equal(t, 1, s.ExtractionFailures)
	assert.Equal(t, 1, s.NormalizationFailures())

	totals := []struct {
		label string
		value string
		kind  report.CellKind
	}{
		{"Auftragsdatensätze gelesen", "5", report.KindInteger},
		{"Gutschriftdatensätze gelesen", "7", report.KindInteger},
		{"Kilometer laut Aufträgen", "2500", report.KindNumber},
		{"Kilometer laut Gutschriften", "1620", report.KindNumber},
		{"Sollbetrag gesamt", "5000.00", report.KindMoney},
		{"Gutschriftbetrag gesamt", "2940.00", report.KindMoney},
		{"Differenz gesamt", "-60.00", report.KindMoney},
	}
	for _, tt := range totals {
		c := stat(t, m, tt.label).Cells[1]
		assert.Equal(t, tt.value, c.Value, tt.label)
		assert.Equal(t, tt.kind, c.Kind, tt.label)
	}
	assert.Equal(t, types.SeverityWarning, stat(t, m, "Differenz gesamt").Severity, "underpaid overall")
	assert.True(t, s.PaymentDelta.Equal(decimal.NewFromInt(-60)))

	assert.Equal(t, "run-1", m.RunID)
	require.Len(t, m.Errors, 2)
	assert.Equal(t, types.ErrorKindExtraction, m.Errors[0].Kind)
	assert.Equal(t, "abc", m.Errors[1].Raw)
}

func TestBuild_CreditNoteDocuments(t *testing.T) {
	orders := []types.TransportOrder{order("O1", 500, 1000), order("O2", 400, 900), order("O3", 300, 800)}

	n1 := note("N1", "O1", 500, 1000)
	n2 := note("N2", "O2", 400, 900)
	n3 := note("N3", "O3", 300, 800)
	n4 := note("N4", "X9", 10, 50)
	n1.DocumentNumber, n2.DocumentNumber, n4.DocumentNumber = "GS-100", "GS-100", "GS-100"
	n3.DocumentNumber = ""

	m := build(orders, []types.CreditNote{n1, n2, n3, n4}, types.NewRunContext("run-1", time.Now()))

	gs := m.Table(report.SheetNotes)
	require.Len(t, gs.Rows, 3, "one row per matched note")

	assert.Equal(t, "3", cell(t, gs, 0, "GS_Positionen").Value, "unclaimed lines of the document count too")
	assert.Equal(t, report.KindInteger, cell(t, gs, 0, "GS_Positionen").Kind)
	assert.Equal(t, "1950.00", cell(t, gs, 0, "GS_Summe").Value)
	assert.Equal(t, "3", cell(t, gs, 1, "GS_Positionen").Value)
	assert.Equal(t, "1950.00", cell(t, gs, 1, "GS_Summe").Value)

	assert.Equal(t, "", cell(t, gs, 2, "GS_Positionen").Value, "no document number")
	assert.Equal(t, "", cell(t, gs, 2, "GS_Summe").Value)

	require.NotNil(t, gs.Footer)
	assert.Len(t, gs.Footer.Cells, len(gs.Columns))
	assert.Equal(t, "2700.00", gs.Footer.Cells[gs.Index("Betrag")].Value)
}

func TestBuild_Idempotent(t *testing.T) {
	orders := []types.TransportOrder{order("O1", 500, 1000), order("O2", 0, 1000), order("O3", 500, 1000)}
	notes := []types.CreditNote{note("N1", "O1", 480, 990), note("N2", "O2", 10, 1000)}

	first := build(orders, notes, types.NewRunContext("a", time.Now()))
	second := build(orders, notes, types.NewRunContext("b", time.Now().Add(time.Hour)))

	assert.Equal(t, first.Tables, second.Tables)
	assert.Equal(t, first.Summary, second.Summary)
}

func TestBuild_Empty(t *testing.T) {
	m := report.Build(nil, nil, types.NewRunContext("empty", time.Now()))

	assert.Equal(t, 0, m.Summary.TotalOrders)
	assert.Equal(t, "0.0%", m.Summary.MatchRatePercent())
	assert.Empty(t, m.Table(report.SheetMain).Rows)
	assert.NotNil(t, m.Table(report.SheetMain).Footer)
	assert.Nil(t, m.Table("missing"))
}
