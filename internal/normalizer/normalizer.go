// =============================================================================
// Freight Reconciler - Document Record Normalizer
// =============================================================================
//
// Converts raw extracted field maps into typed, validated records. Nothing
// untyped leaves this package.
//
// FAILURE HANDLING:
//   A record with a missing or unparseable required field is excluded and a
//   FieldParseError is added to the run's error side-list. The remaining
//   records are processed normally.
//
// REQUIRED FIELDS:
//   Orders:       id, distance (direct or empty+loaded km), expected payment
//                 (direct or freight+toll)
//   Credit notes: distance, paid amount (direct or freight+toll)
//
// =============================================================================

package normalizer

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/freight-reconciler/internal/config"
	"github.com/ginjaninja78/freight-reconciler/internal/extraction"
	"github.com/ginjaninja78/freight-reconciler/internal/types"
)

var hundred = decimal.NewFromInt(100)

// FieldParseError reports a record excluded because of one field.
type FieldParseError struct {
	Source   string
	Field    string
	RawValue string
	Reason   string
}

// Error implements the error interface.
func (e *FieldParseError) Error() string {
	return fmt.Sprintf("%s: field '%s': %s (value: '%s')", e.Source, e.Field, e.Reason, e.RawValue)
}

// Normalizer turns extraction documents into typed records.
type Normalizer struct {
	fields      config.FieldsConfig
	dateFormats []string
	decimalSep  string
	log         zerolog.Logger
}

// New creates a normalizer for the given field aliases and date layouts.
func New(fields config.FieldsConfig, dateFormats []string) *Normalizer {
	return &Normalizer{
		fields:      fields,
		dateFormats: dateFormats,
		log:         zerolog.Nop(),
	}
}

// WithDecimalSeparator fixes the decimal separator of every numeric field
// ("," or "."). Empty detects the notation per value.
func (n *Normalizer) WithDecimalSeparator(sep string) *Normalizer {
	n.decimalSep = sep
	return n
}

// WithLogger sets the logger used for per-record diagnostics.
func (n *Normalizer) WithLogger(log zerolog.Logger) *Normalizer {
	n.log = log
	return n
}

// =============================================================================
// TRANSPORT ORDERS
// =============================================================================

// Orders normalizes order documents in input order. Failed documents are
// ignored here; the pipeline counts them as extraction failures.
func (n *Normalizer) Orders(docs []extraction.Document, rc *types.RunContext) []types.TransportOrder {
	orders := make([]types.TransportOrder, 0, len(docs))
	seen := make(map[string]string)

	for _, doc := range docs {
		if doc.Failed() {
			continue
		}

		order, err := n.order(doc)
		if err == nil {
			if first, dup := seen[order.Key]; dup {
				err = &FieldParseError{
					Source:   doc.Label(),
					Field:    "id",
					RawValue: order.ID,
					Reason:   "duplicate order identifier (first seen in " + first + ")",
				}
			}
		}
		if err != nil {
			n.reject(rc, err, &rc.SkippedOrders)
			continue
		}

		seen[order.Key] = doc.Label()
		order.Seq = len(orders)
		orders = append(orders, order)
	}

	n.log.Info().Int("documents", len(docs)).Int("orders", len(orders)).Int("skipped", rc.SkippedOrders).Msg("orders normalized")
	return orders
}

func (n *Normalizer) order(doc extraction.Document) (types.TransportOrder, error) {
	f := n.fields.Orders
	src := doc.Label()

	id, _, ok := doc.Lookup(f.ID)
	if !ok || NormalizeID(id) == "" {
		return types.TransportOrder{}, missing(src, f.ID)
	}

	distance, err := n.sum(doc, f.DistanceKm, [][]string{f.EmptyKm, f.LoadedKm})
	if err != nil {
		return types.TransportOrder{}, err
	}

	percent := hundred
	if raw, field, ok := doc.Lookup(f.PaymentPercent); ok {
		if percent, err = n.nonNegative(src, field, raw); err != nil {
			return types.TransportOrder{}, err
		}
	}

	// An explicit expected payment is final. A composed price is scaled by
	// the agreed percentage.
	var expected decimal.Decimal
	if raw, field, ok := doc.Lookup(f.ExpectedPayment); ok {
		if expected, err = n.nonNegative(src, field, raw); err != nil {
			return types.TransportOrder{}, err
		}
	} else {
		base, err := n.sum(doc, nil, [][]string{f.Freight, f.Toll})
		if err != nil {
			return types.TransportOrder{}, relabel(err, f.ExpectedPayment)
		}
		expected = base.Mul(percent).Div(hundred)
	}

	order := types.TransportOrder{
		ID:              id,
		Key:             NormalizeID(id),
		DistanceKm:      distance,
		ExpectedPayment: expected,
		PaymentPercent:  percent,
		Source:          doc.Source,
	}
	order.Origin, _, _ = doc.Lookup(f.Origin)
	order.Destination, _, _ = doc.Lookup(f.Destination)
	order.Vehicle, _, _ = doc.Lookup(f.Vehicle)
	order.IssueDate, order.HasDate = n.date(doc, f.Date)

	return order, nil
}

// =============================================================================
// CREDIT NOTES
// =============================================================================

// CreditNotes normalizes credit note documents in input order.
func (n *Normalizer) CreditNotes(docs []extraction.Document, rc *types.RunContext) []types.CreditNote {
	notes := make([]types.CreditNote, 0, len(docs))

	for _, doc := range docs {
		if doc.Failed() {
			continue
		}

		note, err := n.creditNote(doc)
		if err != nil {
			n.reject(rc, err, &rc.SkippedNotes)
			continue
		}

		note.Seq = len(notes)
		notes = append(notes, note)
	}

	n.log.Info().Int("documents", len(docs)).Int("credit_notes", len(notes)).Int("skipped", rc.SkippedNotes).Msg("credit notes normalized")
	return notes
}

func (n *Normalizer) creditNote(doc extraction.Document) (types.CreditNote, error) {
	f := n.fields.CreditNotes
	src := doc.Label()

	distance, err := n.sum(doc, f.DistanceKm, nil)
	if err != nil {
		return types.CreditNote{}, err
	}

	var paid decimal.Decimal
	if raw, field, ok := doc.Lookup(f.PaidAmount); ok {
		if paid, err = n.nonNegative(src, field, raw); err != nil {
			return types.CreditNote{}, err
		}
	} else {
		if paid, err = n.sum(doc, nil, [][]string{f.Freight, f.Toll}); err != nil {
			return types.CreditNote{}, relabel(err, f.PaidAmount)
		}
	}

	docNumber, _, _ := doc.Lookup(f.DocumentNumber)

	id, _, ok := doc.Lookup(f.ID)
	if !ok {
		if docNumber != "" {
			id = fmt.Sprintf("%s/%d", docNumber, doc.Line)
		} else {
			id = src
		}
	}

	note := types.CreditNote{
		ID:             id,
		DocumentNumber: docNumber,
		DistanceKm:     distance,
		PaidAmount:     paid,
		Source:         doc.Source,
	}

	if ref, _, ok := doc.Lookup(f.OrderRef); ok {
		if key := NormalizeID(ref); key != "" {
			note.ReferencedOrderID = ref
			note.ReferenceKey = key
		}
	}

	note.Origin, _, _ = doc.Lookup(f.Origin)
	note.Destination, _, _ = doc.Lookup(f.Destination)
	note.Vehicle, _, _ = doc.Lookup(f.Vehicle)
	note.IssueDate, note.HasDate = n.date(doc, f.Date)

	return note, nil
}

// =============================================================================
// HELPERS
// =============================================================================

// sum reads a direct field, or failing that adds up the component fields.
// At least the first component must be present; later ones default to zero.
func (n *Normalizer) sum(doc extraction.Document, direct []string, components [][]string) (decimal.Decimal, error) {
	src := doc.Label()

	if raw, field, ok := doc.Lookup(direct); ok {
		return n.nonNegative(src, field, raw)
	}
	if len(components) == 0 {
		return decimal.Zero, missing(src, direct)
	}

	total := decimal.Zero
	for i, aliases := range components {
		raw, field, ok := doc.Lookup(aliases)
		if !ok {
			if i == 0 {
				name := direct
				if len(name) == 0 {
					name = aliases
				}
				return decimal.Zero, missing(src, name)
			}
			continue
		}
		v, err := n.nonNegative(src, field, raw)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(v)
	}
	return total, nil
}

func (n *Normalizer) date(doc extraction.Document, aliases []string) (t time.Time, ok bool) {
	raw, field, found := doc.Lookup(aliases)
	if !found {
		return t, false
	}
	if t, ok = ParseDate(raw, n.dateFormats); !ok {
		n.log.Debug().Str("source", doc.Label()).Str("field", field).Str("raw", raw).Msg("date ignored")
	}
	return t, ok
}

func (n *Normalizer) reject(rc *types.RunContext, err error, counter *int) {
	*counter++

	var fpe *FieldParseError
	if errors.As(err, &fpe) {
		rc.AddFieldError(fpe.Source, fpe.Field, fpe.RawValue, fpe.Reason)
	} else {
		rc.AddFieldError("", "", "", err.Error())
	}
	n.log.Warn().Err(err).Msg("record skipped")
}

func (n *Normalizer) nonNegative(src, field, raw string) (decimal.Decimal, error) {
	v, err := ParseDecimalWith(raw, n.decimalSep)
	if err != nil {
		return decimal.Zero, &FieldParseError{Source: src, Field: field, RawValue: raw, Reason: err.Error()}
	}
	if v.IsNegative() {
		return decimal.Zero, &FieldParseError{Source: src, Field: field, RawValue: raw, Reason: "negative value"}
	}
	return v, nil
}

func missing(src string, aliases []string) error {
	return &FieldParseError{Source: src, Field: firstOf(aliases), Reason: "missing value"}
}

// relabel reports a missing composed value under the name of the direct
// field, which is what a reader of the error list looks for.
func relabel(err error, direct []string) error {
	var fpe *FieldParseError
	if errors.As(err, &fpe) && fpe.Reason == "missing value" {
		return &FieldParseError{Source: fpe.Source, Field: firstOf(direct), Reason: fpe.Reason}
	}
	return err
}

func firstOf(lists ...[]string) string {
	for _, l := range lists {
		if len(l) > 0 {
			return l[0]
		}
	}
	return ""
}
