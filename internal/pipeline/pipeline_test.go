package pipeline_test

import (
	"bytes"
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/freight-reconciler/internal/config"
	"github.com/ginjaninja78/freight-reconciler/internal/extraction"
	"github.com/ginjaninja78/freight-reconciler/internal/logging"
	"github.com/ginjaninja78/freight-reconciler/internal/pipeline"
	"github.com/ginjaninja78/freight-reconciler/internal/report"
	"github.com/ginjaninja78/freight-reconciler/internal/types"
)

func orderDoc(line int, id, km, expected string) extraction.Document {
	return extraction.Document{
		Source: "/in/orders.csv",
		Line:   line,
		Fields: map[string]string{"id": id, "distance_km": km, "expected_payment": expected},
	}
}

func noteDoc(line int, id, ref, km, paid string) extraction.Document {
	return extraction.Document{
		Source: "/in/notes.csv",
		Line:   line,
		Fields: map[string]string{"id": id, "order_ref": ref, "distance_km": km, "paid_amount": paid},
	}
}

func fixture() (orders, notes []extraction.Document) {
	orders = []extraction.Document{
		orderDoc(1, "T-1", "500", "1000,00"),
		orderDoc(2, "T-2", "500", "1000,00"),
		orderDoc(3, "T-3", "300", "600,00"),
		{Source: "/in/scan.txt", Err: &extraction.ExtractionError{Source: "/in/scan.txt", Reason: "no records found"}},
	}
	notes = []extraction.Document{
		noteDoc(1, "G-1", "t-1", "520", "1000,00"),
		noteDoc(2, "G-2", "T-2", "600", "1000,00"),
		noteDoc(3, "G-3", "T-3", "300", "abc"),
	}
	return orders, notes
}

func TestProcess(t *testing.T) {
	orders, notes := fixture()

	var logs bytes.Buffer
	log, err := logging.NewWriter(&logs, "info")
	require.NoError(t, err)

	m, err := pipeline.Process(orders, notes, config.Default(), log)
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Contains(t, logs.String(), `"run_id":"`+m.RunID+`"`)

	_, err = uuid.Parse(m.RunID)
	assert.NoError(t, err, "run id is a uuid")

	s := m.Summary
	assert.Equal(t, 3, s.TotalOrders)
	assert.Equal(t, 2, s.Matched)
	assert.Equal(t, 1, s.Unmatched)
	assert.Equal(t, 2, s.CreditNotes)
	assert.Equal(t, 1, s.ExtractionFailures)
	assert.Equal(t, 1, s.SkippedNotes)
	assert.Equal(t, 4, s.OrderRecords, "failed documents are counted as read")
	assert.Equal(t, 3, s.NoteRecords)
	assert.Equal(t, 1, s.OK)
	assert.Equal(t, 2, s.Critical)
	assert.Equal(t, "66.7%", s.MatchRatePercent())

	require.Len(t, m.Errors, 2)
	assert.Equal(t, types.ErrorKindExtraction, m.Errors[0].Kind)
	assert.Equal(t, "/in/scan.txt", m.Errors[0].Source)
	assert.Equal(t, types.ErrorKindFieldParse, m.Errors[1].Kind)
	assert.Equal(t, "abc", m.Errors[1].Raw)

	hb := m.Table(report.SheetMain)
	require.Len(t, hb.Rows, 3)
	assert.Equal(t, types.SeverityOK, hb.Rows[0].Severity)
	assert.Equal(t, types.SeverityCritical, hb.Rows[1].Severity)
	assert.Equal(t, "UNMATCHED", hb.Rows[2].Cells[hb.Index("Status")].Value)
}

func TestProcess_ConfigError(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*config.Config)
	}{
		{name: "warning above critical", modify: func(c *config.Config) { c.Thresholds.KmDeltaWarningPct = 0.2 }},
		{name: "negative loss limit", modify: func(c *config.Config) { c.Thresholds.PaymentLossCriticalAbs = -1 }},
		{name: "NaN tolerance", modify: func(c *config.Config) { c.Thresholds.FallbackDistanceTolerancePct = math.NaN() }},
		{name: "zero epsilon", modify: func(c *config.Config) { c.Thresholds.Epsilon = 0 }},
		{name: "unknown log level", modify: func(c *config.Config) { c.LogLevel = "loud" }},
	}

	orders, notes := fixture()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.modify(cfg)

			m, err := pipeline.Process(orders, notes, cfg, zerolog.Nop())
			require.Error(t, err)
			assert.Nil(t, m)
			assert.True(t, config.IsConfigError(err))

			var pe *pipeline.ProcessingError
			assert.False(t, errors.As(err, &pe))
		})
	}
}

func TestProcess_NilConfig(t *testing.T) {
	m, err := pipeline.Process(nil, nil, nil, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 0, m.Summary.TotalOrders)
	assert.Len(t, m.Tables, len(report.SheetOrder))
}

func TestProcess_ConcurrentRuns(t *testing.T) {
	orders, notes := fixture()
	cfg := config.Default()

	const runs = 4
	models := make([]*report.Model, runs)
	var wg sync.WaitGroup
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := pipeline.Process(orders, notes, cfg, zerolog.Nop())
			if assert.NoError(t, err) {
				models[i] = m
			}
		}(i)
	}
	wg.Wait()

	ids := make(map[string]bool)
	for _, m := range models {
		require.NotNil(t, m)
		ids[m.RunID] = true
		assert.Equal(t, models[0].Tables, m.Tables)
		assert.Equal(t, models[0].Summary, m.Summary)
	}
	assert.Len(t, ids, runs)
}

func TestProcessingError(t *testing.T) {
	cause := errors.New("boom")
	err := error(&pipeline.ProcessingError{Stage: pipeline.StageMatch, Err: cause})

	assert.EqualError(t, err, "match stage failed: boom")
	assert.ErrorIs(t, err, cause)
}
