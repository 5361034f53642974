package validation

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adaptiveclean/internal/ingest"
	"adaptiveclean/internal/shared/testutil"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestValidateInput(t *testing.T) {
	dir := t.TempDir()
	csvPath := writeFile(t, dir, "prices.csv", "ticker,price\nBBOB,1.5\n")
	bigPath := writeFile(t, dir, "big.json", `[{"a":"0123456789012345678901234567890123456789"}]`)

	tests := []struct {
		name       string
		path       string
		wantFormat ingest.Format
		wantErr    string
		wantIs     error
	}{
		{name: "csv", path: csvPath, wantFormat: ingest.FormatCSV},
		{name: "missing", path: filepath.Join(dir, "nope.csv"), wantErr: "no such file"},
		{name: "directory", path: dir, wantErr: "is a directory"},
		{name: "lock file", path: writeFile(t, dir, "~$book.xlsx", "x"), wantErr: "temporary office lock file"},
		{name: "unsupported", path: writeFile(t, dir, "report.pdf", "%PDF"), wantIs: ingest.ErrUnsupportedFormat},
		{name: "too large", path: bigPath, wantIs: ErrTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, _ := testutil.NewTestLogger(t)
			v := NewFileValidator(logger, 32)

			format, err := v.ValidateInput(tt.path)
			switch {
			case tt.wantIs != nil:
				assert.ErrorIs(t, err, tt.wantIs)
			case tt.wantErr != "":
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.wantFormat, format)
			}
		})
	}
}

func TestValidateInputLogsRejection(t *testing.T) {
	logger, h := testutil.NewTestLogger(t)
	path := writeFile(t, t.TempDir(), "notes.doc", "x")

	_, err := NewFileValidator(logger, 0).ValidateInput(path)
	require.Error(t, err)
	testutil.AssertLogContains(t, h, slog.LevelError, "input_format_rejected")
	testutil.AssertLogAttr(t, h, "input_format_rejected", "extension", ".doc")
}

func TestValidateOutput(t *testing.T) {
	logger, h := testutil.NewTestLogger(t)
	v := NewFileValidator(logger, 0)
	dir := t.TempDir()

	nested := filepath.Join(dir, "out", "2024", "cleaned.csv")
	require.NoError(t, v.ValidateOutput(nested))
	assert.DirExists(t, filepath.Dir(nested))
	entries, err := os.ReadDir(filepath.Dir(nested))
	require.NoError(t, err)
	assert.Empty(t, entries, "write-check file is removed")
	testutil.AssertNoErrors(t, h)

	err = v.ValidateOutput(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "is a directory")

	blocker := writeFile(t, dir, "blocker", "x")
	err = v.ValidateOutput(filepath.Join(blocker, "cleaned.csv"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create output directory")
}
