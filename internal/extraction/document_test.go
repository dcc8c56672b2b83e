package extraction_test

import (
	"context"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/freight-reconciler/internal/extraction"
	"github.com/ginjaninja78/freight-reconciler/internal/extraction/mocks"
)

func TestLoad(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	ex := mocks.NewMockFieldExtractor(ctrl)

	gomock.InOrder(
		ex.EXPECT().Extract(ctx, "a.csv").Return([]extraction.Document{
			{Source: "a.csv", Line: 1, Fields: map[string]string{"id": "1"}},
			{Source: "a.csv", Line: 2, Fields: map[string]string{"id": "2"}},
		}, nil),
		ex.EXPECT().Extract(ctx, "b.pdf.txt").Return(nil, errors.New("permission denied")),
		ex.EXPECT().Extract(ctx, "c.csv").Return([]extraction.Document{
			{Source: "c.csv", Line: 1, Fields: map[string]string{"id": "3"}},
		}, nil),
	)

	docs := extraction.Load(ctx, ex, []string{"a.csv", "b.pdf.txt", "c.csv"}, zerolog.Nop())

	require.Len(t, docs, 4)
	assert.Equal(t, "1", docs[0].Fields["id"])
	assert.Equal(t, "2", docs[1].Fields["id"])
	assert.True(t, docs[2].Failed())
	assert.Equal(t, "3", docs[3].Fields["id"])

	var ee *extraction.ExtractionError
	require.ErrorAs(t, docs[2].Err, &ee)
	assert.Equal(t, "b.pdf.txt", ee.Source)
	assert.EqualError(t, errors.Unwrap(ee), "permission denied")
}

func TestLoad_KeepsExtractionError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	orig := &extraction.ExtractionError{Source: "x.txt", Reason: "no records found"}
	ex := mocks.NewMockFieldExtractor(ctrl)
	ex.EXPECT().Extract(gomock.Any(), "x.txt").Return(nil, orig)

	docs := extraction.Load(context.Background(), ex, []string{"x.txt"}, zerolog.Nop())

	require.Len(t, docs, 1)
	assert.Same(t, orig, docs[0].Err)
}

func TestLoad_CancelledContext(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ex := mocks.NewMockFieldExtractor(ctrl)
	ex.EXPECT().Extract(gomock.Any(), gomock.Any()).Times(0)

	docs := extraction.Load(ctx, ex, []string{"a.csv"}, zerolog.Nop())
	assert.Empty(t, docs)
}

func TestRouter(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	csv := mocks.NewMockFieldExtractor(ctrl)
	csv.EXPECT().Extract(gomock.Any(), "orders/A.CSV").Return([]extraction.Document{{Source: "orders/A.CSV", Line: 1}}, nil)

	router := extraction.NewRouter().Register(".csv", csv)

	docs, err := router.Extract(context.Background(), "orders/A.CSV")
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	_, err = router.Extract(context.Background(), "orders/a.doc")
	var ee *extraction.ExtractionError
	require.ErrorAs(t, err, &ee)
	assert.Contains(t, ee.Reason, ".doc")
}

func TestDocument_Lookup(t *testing.T) {
	doc := extraction.Document{
		Source: "/in/orders.csv",
		Line:   3,
		Fields: map[string]string{"Tournummer": " 123456 ", "Maut": "", "Fracht": "850,00"},
	}

	v, field, ok := doc.Lookup([]string{"id", "tournummer"})
	assert.True(t, ok)
	assert.Equal(t, "123456", v)
	assert.Equal(t, "tournummer", field)

	_, _, ok = doc.Lookup([]string{"maut"})
	assert.False(t, ok, "empty values count as missing")

	assert.Equal(t, "orders.csv:3", doc.Label())
	assert.False(t, doc.Failed())
}

func TestDocument_GetCaseVariants(t *testing.T) {
	fields := map[string]string{"ID": "", "id ": "7", " Id": "9"}

	byColumn := extraction.Document{Fields: fields, Headers: []string{"ID", "id ", " Id"}}
	byKey := extraction.Document{Fields: fields}

	for i := 0; i < 50; i++ {
		v, ok := byColumn.Get("iD")
		require.True(t, ok)
		assert.Equal(t, "7", v, "first non-empty column wins")

		v, ok = byKey.Get("iD")
		require.True(t, ok)
		assert.Equal(t, "9", v, "sorted key order without headers")
	}

	_, ok := byColumn.Get("ID")
	assert.False(t, ok, "an exact key wins even when empty")
}
