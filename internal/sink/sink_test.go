package sink

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/davuth-chan/khmerscribe/constants"
	"github.com/davuth-chan/khmerscribe/internal/entity"
)

func record(url string, page int, status constants.RecordStatus) entity.ExtractionRecord {
	return entity.ExtractionRecord{
		DocumentURL: url,
		PageIndex:   page,
		KhmerText:   "អត្ថបទខ្មែរ",
		EnglishText: "english text",
		Model:       "m",
		Status:      status,
	}
}

func readRows(t *testing.T, path string) [][]string {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	rows, err := csv.NewReader(bytes.NewReader(raw)).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestAppendFlushesEachRow(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.csv")
	s, err := Open(path, "", nil, nil)
	require.NoError(t, err)

	require.NoError(t, s.Append(context.Background(), record("doc.pdf", 0, constants.StatusSuccess)))
	require.NoError(t, s.Append(context.Background(), record("doc.pdf", 1, constants.StatusSkipped)))

	// Rows must be durable BEFORE close: read the file while the sink is
	// still open.
	rows := readRows(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"document_url", "page", "khmer_text", "english_text", "model", "status"}, rows[0])
	assert.Equal(t, "1", rows[1][1], "page is 1-based for display")
	assert.Equal(t, "អត្ថបទខ្មែរ", rows[1][2], "khmer script survives the round trip")
	assert.Equal(t, "SKIPPED", rows[2][5])

	_, err = s.SnapshotAndClose(context.Background())
	require.NoError(t, err)
}

func TestSnapshotCountsByStatus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	s, err := Open(path, "", nil, nil)
	require.NoError(t, err)

	require.NoError(t, s.Append(context.Background(), record("d.pdf", 0, constants.StatusSuccess)))
	require.NoError(t, s.Append(context.Background(), record("d.pdf", 1, constants.StatusSuccess)))
	require.NoError(t, s.Append(context.Background(), record("d.pdf", 2, constants.StatusSkipped)))
	require.NoError(t, s.Append(context.Background(), record("d.pdf", 3, constants.StatusFailed)))

	counts, err := s.SnapshotAndClose(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Counts{Success: 2, Skipped: 1, Failed: 1}, counts)
	assert.Equal(t, 4, counts.Total())
}

func TestReopenAppendsWithoutSecondHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")

	s, err := Open(path, "", nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Append(context.Background(), record("d.pdf", 0, constants.StatusSuccess)))
	_, err = s.SnapshotAndClose(context.Background())
	require.NoError(t, err)

	s2, err := Open(path, "", nil, nil)
	require.NoError(t, err)
	require.NoError(t, s2.Append(context.Background(), record("d.pdf", 1, constants.StatusSuccess)))
	_, err = s2.SnapshotAndClose(context.Background())
	require.NoError(t, err)

	rows := readRows(t, path)
	require.Len(t, rows, 3)
	assert.Equal(t, "document_url", rows[0][0])
	assert.Equal(t, "1", rows[1][1])
	assert.Equal(t, "2", rows[2][1])
}

func TestAppendAfterCloseFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	s, err := Open(path, "", nil, nil)
	require.NoError(t, err)
	_, err = s.SnapshotAndClose(context.Background())
	require.NoError(t, err)

	assert.Error(t, s.Append(context.Background(), record("d.pdf", 0, constants.StatusSuccess)))
}

func TestSnapshotWritesWorkbook(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "out.csv")
	xlsxPath := filepath.Join(dir, "out.xlsx")
	s, err := Open(csvPath, xlsxPath, nil, nil)
	require.NoError(t, err)

	require.NoError(t, s.Append(context.Background(), record("d.pdf", 0, constants.StatusSuccess)))
	_, err = s.SnapshotAndClose(context.Background())
	require.NoError(t, err)

	info, err := os.Stat(xlsxPath)
	require.NoError(t, err)
	assert.Positive(t, info.Size())
}

func TestSnapshotIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.csv")
	s, err := Open(path, "", nil, nil)
	require.NoError(t, err)
	require.NoError(t, s.Append(context.Background(), record("d.pdf", 0, constants.StatusSuccess)))

	first, err := s.SnapshotAndClose(context.Background())
	require.NoError(t, err)
	second, err := s.SnapshotAndClose(context.Background())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
