// =============================================================================
// Freight Reconciler - Pipeline
// =============================================================================
//
// Process runs one reconciliation over already extracted documents.
//
// STAGES:
//   1. Validate the configuration (ConfigError is the only fatal error)
//   2. Count extraction failures
//   3. Normalize orders and credit notes
//   4. Match orders to credit notes
//   5. Classify matched pairs
//   6. Build the report model
//
// A RunContext is created per call and threaded through the stages, so
// concurrent calls share no state.
//
// =============================================================================

package pipeline

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ginjaninja78/freight-reconciler/internal/classifier"
	"github.com/ginjaninja78/freight-reconciler/internal/config"
	"github.com/ginjaninja78/freight-reconciler/internal/extraction"
	"github.com/ginjaninja78/freight-reconciler/internal/matcher"
	"github.com/ginjaninja78/freight-reconciler/internal/normalizer"
	"github.com/ginjaninja78/freight-reconciler/internal/report"
	"github.com/ginjaninja78/freight-reconciler/internal/types"
)

// Stage names used in ProcessingError.
const (
	StageMatch    = "match"
	StageClassify = "classify"
)

// ProcessingError wraps an unexpected failure inside a stage.
type ProcessingError struct {
	Stage string
	Err   error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// Process reconciles order documents against credit note documents.
//
// PARAMETERS:
//   - orders: extracted transport order documents, in input order.
//   - notes: extracted credit note documents, in input order.
//   - cfg: the loaded configuration. Invalid thresholds abort the run.
//   - log: the logger every stage reports to.
//
// RETURNS:
//   - The report model of the run.
//   - A *config.ConfigError before any record is touched, or a
//     *ProcessingError if a stage breaks one of its guarantees.
//
// Documents that failed extraction and records that fail normalization
// are counted and listed in the model; they never abort the run.
func Process(orders, notes []extraction.Document, cfg *config.Config, log zerolog.Logger) (*report.Model, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rc := types.NewRunContext(uuid.NewString(), time.Now())
	rc.OrderRecords = len(orders)
	rc.NoteRecords = len(notes)
	log = log.With().Str("run_id", rc.RunID).Logger()

	log.Info().
		Int("order_documents", len(orders)).
		Int("note_documents", len(notes)).
		Msg("reconciliation started")

	countFailures(orders, rc, log)
	countFailures(notes, rc, log)

	norm := normalizer.New(cfg.Fields, cfg.DateFormats).
		WithDecimalSeparator(cfg.DecimalSeparator).
		WithLogger(log)
	transportOrders := norm.Orders(orders, rc)
	creditNotes := norm.CreditNotes(notes, rc)

	results := matcher.New(cfg.Thresholds, log).Match(transportOrders, creditNotes)
	if len(results) != len(transportOrders) {
		return nil, &ProcessingError{
			Stage: StageMatch,
			Err:   fmt.Errorf("%d results for %d orders", len(results), len(transportOrders)),
		}
	}

	results = classifier.New(cfg.Thresholds).Apply(results)
	for _, r := range results {
		if r.Status == types.StatusMatched && r.Discrepancy == nil {
			return nil, &ProcessingError{
				Stage: StageClassify,
				Err:   fmt.Errorf("order %s matched without classification", r.Order.ID),
			}
		}
	}

	model := report.Build(results, creditNotes, rc)

	s := model.Summary
	log.Info().
		Int("orders", s.TotalOrders).
		Int("matched", s.Matched).
		Int("unmatched", s.Unmatched).
		Int("ambiguous", s.Ambiguous).
		Int("critical", s.Critical).
		Int("warning", s.Warning).
		Int("extraction_failures", s.ExtractionFailures).
		Int("normalization_failures", s.NormalizationFailures()).
		Str("match_rate", s.MatchRatePercent()).
		Msg("reconciliation finished")

	return model, nil
}

// countFailures records every document that failed extraction.
func countFailures(docs []extraction.Document, rc *types.RunContext, log zerolog.Logger) {
	for _, doc := range docs {
		if !doc.Failed() {
			continue
		}
		rc.AddExtractionFailure(doc.Source, doc.Err.Error())
		log.Warn().Err(doc.Err).Str("source", doc.Source).Msg("document skipped")
	}
}
