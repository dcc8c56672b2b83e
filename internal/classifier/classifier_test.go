package classifier_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/freight-reconciler/internal/classifier"
	"github.com/ginjaninja78/freight-reconciler/internal/config"
	"github.com/ginjaninja78/freight-reconciler/internal/types"
)

func pair(orderKm, expected, noteKm, paid string) (types.TransportOrder, types.CreditNote) {
	return types.TransportOrder{
			ID:              "O",
			DistanceKm:      decimal.RequireFromString(orderKm),
			ExpectedPayment: decimal.RequireFromString(expected),
		}, types.CreditNote{
			ID:         "N",
			DistanceKm: decimal.RequireFromString(noteKm),
			PaidAmount: decimal.RequireFromString(paid),
		}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		orderKm  string
		expected string
		noteKm   string
		paid     string
		severity types.Severity
		reasons  []types.Reason
	}{
		{name: "4% distance deviation", orderKm: "500", expected: "1000", noteKm: "520", paid: "1000", severity: types.SeverityOK},
		{name: "20% distance deviation", orderKm: "500", expected: "1000", noteKm: "600", paid: "1000", severity: types.SeverityCritical, reasons: []types.Reason{types.ReasonKmDeviation}},
		{name: "exactly 10% is not critical", orderKm: "500", expected: "1000", noteKm: "550", paid: "1000", severity: types.SeverityWarning, reasons: []types.Reason{types.ReasonKmNotable}},
		{name: "10% within epsilon", orderKm: "500", expected: "1000", noteKm: "550.0001", paid: "1000", severity: types.SeverityWarning, reasons: []types.Reason{types.ReasonKmNotable}},
		{name: "10% beyond epsilon", orderKm: "500", expected: "1000", noteKm: "550.001", paid: "1000", severity: types.SeverityCritical, reasons: []types.Reason{types.ReasonKmDeviation}},
		{name: "shorter distance counts too", orderKm: "500", expected: "1000", noteKm: "400", paid: "1000", severity: types.SeverityCritical, reasons: []types.Reason{types.ReasonKmDeviation}},
		{name: "exactly 5% is ok", orderKm: "500", expected: "1000", noteKm: "525", paid: "1000", severity: types.SeverityOK},
		{name: "small underpayment", orderKm: "500", expected: "1000", noteKm: "500", paid: "990", severity: types.SeverityWarning, reasons: []types.Reason{types.ReasonUnderpayment}},
		{name: "loss of exactly 50", orderKm: "500", expected: "1000", noteKm: "500", paid: "950", severity: types.SeverityWarning, reasons: []types.Reason{types.ReasonUnderpayment}},
		{name: "loss above 50", orderKm: "500", expected: "1000", noteKm: "500", paid: "949.99", severity: types.SeverityCritical, reasons: []types.Reason{types.ReasonPaymentLoss}},
		{name: "overpayment", orderKm: "500", expected: "1000", noteKm: "500", paid: "1200", severity: types.SeverityOK},
		{name: "both critical counted once", orderKm: "500", expected: "1000", noteKm: "700", paid: "100", severity: types.SeverityCritical, reasons: []types.Reason{types.ReasonKmDeviation, types.ReasonPaymentLoss}},
		{name: "critical distance beats payment warning", orderKm: "500", expected: "1000", noteKm: "700", paid: "990", severity: types.SeverityCritical, reasons: []types.Reason{types.ReasonKmDeviation, types.ReasonUnderpayment}},
		{name: "zero order distance", orderKm: "0", expected: "1000", noteKm: "0", paid: "1000", severity: types.SeverityCritical, reasons: []types.Reason{types.ReasonZeroDistance}},
		{name: "zero expected payment", orderKm: "500", expected: "0", noteKm: "500", paid: "0", severity: types.SeverityCritical, reasons: []types.Reason{types.ReasonZeroExpected}},
	}

	c := classifier.New(config.DefaultThresholds())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := c.Classify(pair(tt.orderKm, tt.expected, tt.noteKm, tt.paid))
			assert.Equal(t, tt.severity, rec.Severity)
			assert.Equal(t, tt.reasons, rec.Reasons)
		})
	}
}

func TestClassify_Metrics(t *testing.T) {
	c := classifier.New(config.DefaultThresholds())

	rec := c.Classify(pair("500", "1000", "520", "950"))

	assert.True(t, decimal.NewFromInt(20).Equal(rec.KmDelta))
	require.True(t, rec.KmDeltaPctDefined)
	assert.True(t, decimal.RequireFromString("0.04").Equal(rec.KmDeltaPct))
	assert.True(t, decimal.NewFromInt(-50).Equal(rec.PaymentDelta))
	require.True(t, rec.PaymentRatioDefined)
	assert.True(t, decimal.RequireFromString("0.95").Equal(rec.PaymentRatio))
	assert.Equal(t, types.SeverityOK, rec.KmSeverity)
	assert.Equal(t, types.SeverityWarning, rec.PaymentSeverity)

	undefined := c.Classify(pair("0", "0", "10", "10"))
	assert.False(t, undefined.KmDeltaPctDefined)
	assert.False(t, undefined.PaymentRatioDefined)
}

func TestClassify_Monotonic(t *testing.T) {
	c := classifier.New(config.DefaultThresholds())

	for _, paid := range []string{"1000", "990", "900"} {
		prev := 0
		for km := 500; km <= 700; km += 5 {
			order, note := pair("500", "1000", decimal.NewFromInt(int64(km)).String(), paid)
			rank := c.Classify(order, note).Severity.Rank()
			assert.GreaterOrEqual(t, rank, prev, "paid %s, note km %d", paid, km)
			prev = rank
		}
		assert.Equal(t, types.SeverityCritical.Rank(), prev)
	}
}

func TestClassify_CustomThresholds(t *testing.T) {
	th := config.DefaultThresholds()
	th.PaymentLossCriticalAbs = 100
	th.KmDeltaCriticalPct = 0.25
	th.KmDeltaWarningPct = 0.25

	rec := classifier.New(th).Classify(pair("500", "1000", "600", "920"))
	assert.Equal(t, types.SeverityWarning, rec.Severity)
	assert.Equal(t, []types.Reason{types.ReasonUnderpayment}, rec.Reasons)
}

func TestApply(t *testing.T) {
	order, note := pair("500", "1000", "600", "1000")
	results := []types.MatchResult{
		{Order: order, Status: types.StatusMatched, Method: types.MethodIdentifier, Note: &note},
		{Order: order, Status: types.StatusUnmatched},
	}

	out := classifier.New(config.DefaultThresholds()).Apply(results)

	require.Len(t, out, 2)
	require.NotNil(t, out[0].Discrepancy)
	assert.Equal(t, types.SeverityCritical, out[0].Severity())
	assert.Nil(t, out[1].Discrepancy)
	assert.Nil(t, results[0].Discrepancy, "input is not modified")
}
