// =============================================================================
// Freight Reconciler - Discrepancy Classifier
// =============================================================================
//
// Computes deviation metrics for a matched order/note pair and assigns a
// severity. Pure: the same pair always yields the same record.
//
// RULES (evaluated with decimal arithmetic, every comparison with epsilon):
//
//   Distance
//     order distance is zero                   → CRITICAL  ZERO_DISTANCE
//     km_delta_pct >  km_delta_critical_pct    → CRITICAL  KM_DEVIATION
//     km_delta_pct >  km_delta_warning_pct     → WARNING   KM_NOTABLE
//
//   Payment
//     expected payment is zero                 → CRITICAL  ZERO_EXPECTED
//     expected − paid > payment_loss_critical  → CRITICAL  PAYMENT_LOSS
//     paid / expected < 1                      → WARNING   UNDERPAYMENT
//
//   The record takes the worse of the two tags. CRITICAL always wins and is
//   counted once even when both concerns qualify.
//
// =============================================================================

package classifier

import (
	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/freight-reconciler/internal/config"
	"github.com/ginjaninja78/freight-reconciler/internal/types"
)

// Classifier holds the thresholds as decimals.
type Classifier struct {
	kmCritical  decimal.Decimal
	kmWarning   decimal.Decimal
	lossLimit   decimal.Decimal
	fullPayment decimal.Decimal
}

// New creates a classifier from validated thresholds.
func New(t config.Thresholds) *Classifier {
	eps := decimal.NewFromFloat(t.Epsilon)
	return &Classifier{
		kmCritical:  decimal.NewFromFloat(t.KmDeltaCriticalPct).Add(eps),
		kmWarning:   decimal.NewFromFloat(t.KmDeltaWarningPct).Add(eps),
		lossLimit:   decimal.NewFromFloat(t.PaymentLossCriticalAbs).Add(eps),
		fullPayment: decimal.NewFromInt(1).Sub(eps),
	}
}

// Classify computes the discrepancy of a matched pair.
func (c *Classifier) Classify(order types.TransportOrder, note types.CreditNote) types.DiscrepancyRecord {
	rec := types.DiscrepancyRecord{
		KmDelta:      order.DistanceKm.Sub(note.DistanceKm).Abs(),
		PaymentDelta: note.PaidAmount.Sub(order.ExpectedPayment),
	}

	c.classifyDistance(&rec, order)
	c.classifyPayment(&rec, order, note)

	rec.Severity = types.Worst(rec.KmSeverity, rec.PaymentSeverity)
	return rec
}

func (c *Classifier) classifyDistance(rec *types.DiscrepancyRecord, order types.TransportOrder) {
	if order.DistanceKm.IsZero() {
		rec.KmSeverity = types.SeverityCritical
		rec.Reasons = append(rec.Reasons, types.ReasonZeroDistance)
		return
	}

	rec.KmDeltaPct = rec.KmDelta.Div(order.DistanceKm)
	rec.KmDeltaPctDefined = true

	switch {
	case rec.KmDeltaPct.GreaterThan(c.kmCritical):
		rec.KmSeverity = types.SeverityCritical
		rec.Reasons = append(rec.Reasons, types.ReasonKmDeviation)
	case rec.KmDeltaPct.GreaterThan(c.kmWarning):
		rec.KmSeverity = types.SeverityWarning
		rec.Reasons = append(rec.Reasons, types.ReasonKmNotable)
	default:
		rec.KmSeverity = types.SeverityOK
	}
}

func (c *Classifier) classifyPayment(rec *types.DiscrepancyRecord, order types.TransportOrder, note types.CreditNote) {
	if order.ExpectedPayment.IsZero() {
		rec.PaymentSeverity = types.SeverityCritical
		rec.Reasons = append(rec.Reasons, types.ReasonZeroExpected)
		return
	}

	rec.PaymentRatio = note.PaidAmount.Div(order.ExpectedPayment)
	rec.PaymentRatioDefined = true

	loss := rec.PaymentDelta.Neg()

	switch {
	case loss.GreaterThan(c.lossLimit):
		rec.PaymentSeverity = types.SeverityCritical
		rec.Reasons = append(rec.Reasons, types.ReasonPaymentLoss)
	case rec.PaymentRatio.LessThan(c.fullPayment):
		rec.PaymentSeverity = types.SeverityWarning
		rec.Reasons = append(rec.Reasons, types.ReasonUnderpayment)
	default:
		rec.PaymentSeverity = types.SeverityOK
	}
}

// Apply returns a copy of results with every Matched result classified.
// The input slice is not modified.
func (c *Classifier) Apply(results []types.MatchResult) []types.MatchResult {
	out := make([]types.MatchResult, len(results))
	copy(out, results)

	for i := range out {
		if out[i].Status != types.StatusMatched || out[i].Note == nil {
			continue
		}
		rec := c.Classify(out[i].Order, *out[i].Note)
		out[i].Discrepancy = &rec
	}
	return out
}
