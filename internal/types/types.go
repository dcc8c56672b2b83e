// =============================================================================
// Freight Reconciler - Shared Types
// =============================================================================
//
// This package contains the data model shared by every pipeline stage. Types
// are defined here to avoid import cycles between:
//   - normalizer
//   - matcher
//   - classifier
//   - report
//
// LIFECYCLE:
//   All records are created once per run by the normalizer and are treated as
//   immutable afterwards. Nothing in this package survives a run.
//
// =============================================================================

package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SEVERITY
// =============================================================================

// Severity is the tag that drives both filtering and the fill color chosen by
// the renderer.
type Severity string

const (
	// SeverityNone marks a cell that carries no annotation of its own.
	SeverityNone Severity = ""

	// SeverityOK means the settlement agrees with the order.
	SeverityOK Severity = "OK"

	// SeverityWarning needs a look but is not a loss.
	SeverityWarning Severity = "WARNING"

	// SeverityCritical needs manual review.
	SeverityCritical Severity = "CRITICAL"
)

// Rank orders severities so that callers can pick the worst one.
func (s Severity) Rank() int {
	switch s {
	case SeverityOK:
		return 1
	case SeverityWarning:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 0
	}
}

// Worst returns the more severe of two tags.
func Worst(a, b Severity) Severity {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// =============================================================================
// DOCUMENT RECORDS
// =============================================================================

// TransportOrder is a carrier-issued record of a single delivery.
type TransportOrder struct {
	// ID is the order number as printed on the document (original casing).
	ID string

	// Key is the normalized identifier used for comparisons.
	Key string

	// Origin and Destination describe the route.
	Origin      string
	Destination string

	// Vehicle is the license plate of the truck (LKW).
	Vehicle string

	// DistanceKm is the ordered distance. Never negative.
	DistanceKm decimal.Decimal

	// ExpectedPayment is the amount the carrier expects to be paid, already
	// scaled by PaymentPercent. Never negative.
	ExpectedPayment decimal.Decimal

	// PaymentPercent is the share of the price agreed on the order (100 when
	// the document does not state one).
	PaymentPercent decimal.Decimal

	// IssueDate is informational; HasDate is false when the document had none.
	IssueDate time.Time
	HasDate   bool

	// Source names the document the record was extracted from.
	Source string

	// Seq is the zero-based position in the input sequence.
	Seq int
}

// Route returns the display form of the route ("origin-destination").
func (o TransportOrder) Route() string {
	return FormatRoute(o.Origin, o.Destination)
}

// CreditNote is a payer-issued settlement line referencing a transport order.
type CreditNote struct {
	// ID identifies this settlement line.
	ID string

	// DocumentNumber is the number of the Gutschrift the line belongs to.
	// Several lines may share one document number.
	DocumentNumber string

	// ReferencedOrderID is the order number printed on the note (original
	// casing); ReferenceKey is its normalized form. Both are empty when the
	// note carries no usable reference.
	ReferencedOrderID string
	ReferenceKey      string

	// Origin and Destination are optional; used by the fallback heuristic.
	Origin      string
	Destination string

	Vehicle string

	DistanceKm decimal.Decimal
	PaidAmount decimal.Decimal

	IssueDate time.Time
	HasDate   bool

	Source string
	Seq    int
}

// Route returns the display form of the route.
func (n CreditNote) Route() string {
	return FormatRoute(n.Origin, n.Destination)
}

// HasReference reports whether the note names an order at all.
func (n CreditNote) HasReference() bool {
	return n.ReferenceKey != ""
}

// FormatRoute joins origin and destination, dropping empty or duplicate ends.
func FormatRoute(origin, destination string) string {
	switch {
	case origin == "" && destination == "":
		return ""
	case origin == "":
		return destination
	case destination == "" || destination == origin:
		return origin
	default:
		return origin + "-" + destination
	}
}

// =============================================================================
// MATCH RESULTS
// =============================================================================

// MatchStatus is the state of a MatchResult.
type MatchStatus string

const (
	StatusMatched   MatchStatus = "MATCHED"
	StatusUnmatched MatchStatus = "UNMATCHED"
	StatusAmbiguous MatchStatus = "AMBIGUOUS"
)

// MatchMethod records how a Matched result was found.
type MatchMethod string

const (
	MethodNone       MatchMethod = ""
	MethodIdentifier MatchMethod = "ID"
	MethodFallback   MatchMethod = "FALLBACK"
)

// MatchResult relates exactly one order to at most one credit note.
//
// INVARIANTS:
//   - Status == StatusMatched   => Note != nil, Candidates empty
//   - Status == StatusUnmatched => Note == nil, Candidates empty
//   - Status == StatusAmbiguous => Note == nil, len(Candidates) >= 2
type MatchResult struct {
	Order      TransportOrder
	Status     MatchStatus
	Method     MatchMethod
	Note       *CreditNote
	Candidates []CreditNote

	// Discrepancy is set by the classifier for Matched results only.
	Discrepancy *DiscrepancyRecord
}

// Severity returns the tag the result carries in the report. Unmatched orders
// are forced to CRITICAL and ambiguous ones to WARNING.
func (r MatchResult) Severity() Severity {
	switch r.Status {
	case StatusMatched:
		if r.Discrepancy != nil {
			return r.Discrepancy.Severity
		}
		return SeverityOK
	case StatusAmbiguous:
		return SeverityWarning
	default:
		return SeverityCritical
	}
}

// CandidateIDs lists the identifiers of the candidate notes in input order.
func (r MatchResult) CandidateIDs() []string {
	ids := make([]string, len(r.Candidates))
	for i, c := range r.Candidates {
		ids[i] = c.ID
	}
	return ids
}

// =============================================================================
// DISCREPANCY
// =============================================================================

// Reason names a condition that contributed to a severity.
type Reason string

const (
	ReasonKmDeviation  Reason = "KM_DEVIATION"
	ReasonKmNotable    Reason = "KM_NOTABLE"
	ReasonZeroDistance Reason = "ZERO_DISTANCE"
	ReasonPaymentLoss  Reason = "PAYMENT_LOSS"
	ReasonUnderpayment Reason = "UNDERPAYMENT"
	ReasonZeroExpected Reason = "ZERO_EXPECTED"
)

// DiscrepancyRecord is derived from a Matched pair.
type DiscrepancyRecord struct {
	KmDelta decimal.Decimal

	// KmDeltaPct is valid only when KmDeltaPctDefined is true (the order has a
	// non-zero distance).
	KmDeltaPct        decimal.Decimal
	KmDeltaPctDefined bool

	// PaymentDelta is paid minus expected (negative means underpaid).
	PaymentDelta decimal.Decimal

	// PaymentRatio is valid only when PaymentRatioDefined is true.
	PaymentRatio        decimal.Decimal
	PaymentRatioDefined bool

	Severity Severity
	Reasons  []Reason

	// KmSeverity and PaymentSeverity are the per-concern tags used to
	// annotate individual cells.
	KmSeverity      Severity
	PaymentSeverity Severity
}

// =============================================================================
// RUN CONTEXT
// =============================================================================

// RecordError is one entry of the error side-list shown in the statistics.
type RecordError struct {
	// Kind is "EXTRACTION" or "FIELD_PARSE".
	Kind    string
	Source  string
	Field   string
	Raw     string
	Message string
}

const (
	ErrorKindExtraction = "EXTRACTION"
	ErrorKindFieldParse = "FIELD_PARSE"
)

// RunContext accumulates counts for one run. It is created by the pipeline,
// threaded through the stages and never shared between runs.
type RunContext struct {
	RunID     string
	StartedAt time.Time

	// OrderRecords and NoteRecords count what extraction delivered,
	// failed documents included.
	OrderRecords int
	NoteRecords  int

	ExtractionFailures int
	SkippedOrders      int
	SkippedNotes       int

	Errors []RecordError
}

// NewRunContext creates an empty context for a run.
func NewRunContext(runID string, startedAt time.Time) *RunContext {
	return &RunContext{RunID: runID, StartedAt: startedAt}
}

// AddExtractionFailure records a document that could not be read.
func (rc *RunContext) AddExtractionFailure(source, message string) {
	rc.ExtractionFailures++
	rc.Errors = append(rc.Errors, RecordError{
		Kind:    ErrorKindExtraction,
		Source:  source,
		Message: message,
	})
}

// AddFieldError records a record excluded by normalization.
func (rc *RunContext) AddFieldError(source, field, raw, message string) {
	rc.Errors = append(rc.Errors, RecordError{
		Kind:    ErrorKindFieldParse,
		Source:  source,
		Field:   field,
		Raw:     raw,
		Message: message,
	})
}

