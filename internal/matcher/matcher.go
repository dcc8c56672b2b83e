// =============================================================================
// Freight Reconciler - Matcher
// =============================================================================
//
// Pairs every transport order with at most one credit note.
//
// ALGORITHM:
//   1. Index credit notes by normalized order reference, keeping input order.
//   2. Walk orders in input order:
//      - one open candidate    → Matched (ID), the note is claimed
//      - several open          → Ambiguous, nothing is claimed
//      - none                  → fallback heuristic over unreferenced notes
//   3. Fallback accepts a note without any reference when the dates are
//      within the window, the route agrees and the distance is within
//      tolerance. Exactly one such note → Matched (FALLBACK), else Unmatched.
//
// A claimed note is never offered again, so when two orders compete for one
// note the earlier order wins. The claim step is sequential by contract; do
// not parallelize it.
//
// =============================================================================

package matcher

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/freight-reconciler/internal/config"
	"github.com/ginjaninja78/freight-reconciler/internal/normalizer"
	"github.com/ginjaninja78/freight-reconciler/internal/types"
)

// Matcher holds the fallback parameters of a run.
type Matcher struct {
	tolerance decimal.Decimal
	epsilon   decimal.Decimal
	window    time.Duration
	log       zerolog.Logger
}

// New creates a matcher from validated thresholds.
func New(t config.Thresholds, log zerolog.Logger) *Matcher {
	return &Matcher{
		tolerance: decimal.NewFromFloat(t.FallbackDistanceTolerancePct),
		epsilon:   decimal.NewFromFloat(t.Epsilon),
		window:    time.Duration(t.FallbackDateWindowDays) * 24 * time.Hour,
		log:       log,
	}
}

// run is the mutable state of one Match call.
type run struct {
	notes        []types.CreditNote
	byReference  map[string][]int
	unreferenced []int
	claimed      []bool
}

// Match produces one result per order, preserving the order input order.
func (m *Matcher) Match(orders []types.TransportOrder, notes []types.CreditNote) []types.MatchResult {
	r := &run{
		notes:       notes,
		byReference: make(map[string][]int),
		claimed:     make([]bool, len(notes)),
	}
	for i, n := range notes {
		if n.HasReference() {
			r.byReference[n.ReferenceKey] = append(r.byReference[n.ReferenceKey], i)
		} else {
			r.unreferenced = append(r.unreferenced, i)
		}
	}

	results := make([]types.MatchResult, 0, len(orders))
	for _, order := range orders {
		results = append(results, m.matchOrder(r, order))
	}

	m.log.Info().
		Int("orders", len(orders)).
		Int("credit_notes", len(notes)).
		Int("claimed", countTrue(r.claimed)).
		Msg("matching finished")

	return results
}

func (m *Matcher) matchOrder(r *run, order types.TransportOrder) types.MatchResult {
	var open []int
	for _, i := range r.byReference[order.Key] {
		if !r.claimed[i] {
			open = append(open, i)
		}
	}

	switch {
	case len(open) == 1:
		return r.claim(order, open[0], types.MethodIdentifier)

	case len(open) > 1:
		candidates := make([]types.CreditNote, len(open))
		for k, i := range open {
			candidates[k] = r.notes[i]
		}
		m.log.Debug().Str("order", order.ID).Int("candidates", len(open)).Msg("ambiguous reference")
		return types.MatchResult{Order: order, Status: types.StatusAmbiguous, Candidates: candidates}
	}

	var fallback []int
	for _, i := range r.unreferenced {
		if !r.claimed[i] && m.plausible(order, r.notes[i]) {
			fallback = append(fallback, i)
		}
	}

	if len(fallback) == 1 {
		m.log.Debug().Str("order", order.ID).Str("note", r.notes[fallback[0]].ID).Msg("fallback match")
		return r.claim(order, fallback[0], types.MethodFallback)
	}

	m.log.Debug().Str("order", order.ID).Int("fallback_candidates", len(fallback)).Msg("no match")
	return types.MatchResult{Order: order, Status: types.StatusUnmatched}
}

func (r *run) claim(order types.TransportOrder, i int, method types.MatchMethod) types.MatchResult {
	r.claimed[i] = true
	note := r.notes[i]
	return types.MatchResult{Order: order, Status: types.StatusMatched, Method: method, Note: &note}
}

// plausible reports whether an unreferenced note could settle the order.
func (m *Matcher) plausible(order types.TransportOrder, note types.CreditNote) bool {
	if !order.HasDate || !note.HasDate {
		return false
	}
	gap := order.IssueDate.Sub(note.IssueDate)
	if gap < 0 {
		gap = -gap
	}
	if gap > m.window {
		return false
	}

	// Only the route ends the note states are compared.
	if note.Origin != "" && !samePlace(note.Origin, order.Origin) {
		return false
	}
	if note.Destination != "" && !samePlace(note.Destination, order.Destination) {
		return false
	}

	if !order.DistanceKm.IsPositive() {
		return false
	}
	deviation := order.DistanceKm.Sub(note.DistanceKm).Abs().Div(order.DistanceKm)
	return deviation.LessThanOrEqual(m.tolerance.Add(m.epsilon))
}

func countTrue(bs []bool) int {
	n := 0
	for _, b := range bs {
		if b {
			n++
		}
	}
	return n
}

func samePlace(a, b string) bool {
	return normalizer.NormalizeRoute(a) == normalizer.NormalizeRoute(b)
}
