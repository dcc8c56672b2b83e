package utils

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginjaninja78/freight-reconciler/internal/types"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0644))
}

func TestDiscoverInputFiles(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "b.CSV"))
	touch(t, filepath.Join(dir, "a.xlsx"))
	touch(t, filepath.Join(dir, "sub", "c.txt"))
	touch(t, filepath.Join(dir, "notes.pdf"))
	touch(t, filepath.Join(dir, ".hidden.csv"))

	fm := NewFileManager(t.TempDir(), "", []string{".csv", "xlsx", " .TXT "})
	files, err := fm.DiscoverInputFiles(dir)
	require.NoError(t, err)

	assert.Equal(t, []string{
		filepath.Join(dir, "a.xlsx"),
		filepath.Join(dir, "b.CSV"),
		filepath.Join(dir, "sub", "c.txt"),
	}, files)

	_, err = fm.DiscoverInputFiles(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestGenerateOutputFileName(t *testing.T) {
	now := time.Date(2024, 3, 1, 8, 30, 5, 0, time.UTC)

	tests := []struct {
		format string
		want   string
	}{
		{format: "abgleich_{timestamp}.xlsx", want: `^abgleich_20240301_083005\.xlsx$`},
		{format: "abgleich_{date}", want: `^abgleich_20240301\.xlsx$`},
		{format: "{uuid}.XLSX", want: `^[0-9a-f-]{36}\.XLSX$`},
		{format: "report_{run}_{time}.xlsx", want: `^report_r1_083005\.xlsx$`},
		{format: "", want: `^abgleich_20240301_083005\.xlsx$`},
	}

	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			got := generateOutputFileName(tt.format, map[string]string{"run": "r1"}, now)
			assert.Regexp(t, regexp.MustCompile(tt.want), got)
		})
	}

	assert.NotEqual(t, GenerateOutputFileName("{uuid}", nil), GenerateOutputFileName("{uuid}", nil))
}

func TestArchiveInputFile(t *testing.T) {
	in := t.TempDir()
	archive := filepath.Join(t.TempDir(), "archive")

	fm := NewFileManager(t.TempDir(), archive, nil)
	fm.UseTimestampSubdirs = true
	fm.now = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }

	src := filepath.Join(in, "orders.csv")
	touch(t, src)
	got, err := fm.ArchiveInputFile(src, "orders")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(archive, "orders", "2024", "03", "01", "orders.csv"), got)
	assert.False(t, FileExists(src))
	assert.True(t, FileExists(got))

	touch(t, src)
	again, err := fm.ArchiveInputFile(src, "orders")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(archive, "orders", "2024", "03", "01", "orders_1.csv"), again)
}

func TestArchiveInputFile_Disabled(t *testing.T) {
	src := filepath.Join(t.TempDir(), "orders.csv")
	touch(t, src)

	got, err := NewFileManager(t.TempDir(), "", nil).ArchiveInputFile(src, "orders")
	require.NoError(t, err)
	assert.Equal(t, src, got)
	assert.True(t, FileExists(src))
}

func TestEnsureDirectories(t *testing.T) {
	root := t.TempDir()
	fm := NewFileManager(filepath.Join(root, "out"), filepath.Join(root, "archive"), nil)

	require.NoError(t, fm.EnsureDirectories())
	assert.DirExists(t, fm.OutputDir)
	assert.DirExists(t, fm.ArchiveDir)
}

func TestWriteErrorLog(t *testing.T) {
	workbook := filepath.Join(t.TempDir(), "abgleich.xlsx")

	path, err := WriteErrorLog(nil, workbook, "run-1")
	require.NoError(t, err)
	assert.Empty(t, path)

	path, err = WriteErrorLog([]types.RecordError{
		{Kind: types.ErrorKindExtraction, Source: "scan.txt", Message: "no records found"},
		{Kind: types.ErrorKindFieldParse, Source: "gs.csv:4", Field: "paid_amount", Raw: "abc", Message: "not a number"},
	}, workbook, "run-1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(filepath.Dir(workbook), "abgleich_fehler.txt"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.Contains(t, content, "Run:          run-1")
	assert.Contains(t, content, "Total Errors: 2")
	assert.Contains(t, content, "Value:   abc")
	assert.Contains(t, content, "Message: no records found")
}
