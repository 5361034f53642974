package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const pricesCSV = "ticker;price;volume\nBBOB;1.5;100\nTASC;2.25;250\nTASC;2.25;250\nBMFI;;90\nIBSD;3.75;120\n"

func writeInput(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRun(t *testing.T) {
	color.NoColor = true
	in := writeInput(t, "prices.csv", pricesCSV)

	tests := []struct {
		name       string
		args       []string
		wantCode   int
		wantStdout []string
		wantStderr string
	}{
		{
			name:       "duplicates",
			args:       []string{"-in", in, "-delimiter", ";", "-algorithm", "duplicates"},
			wantCode:   exitOK,
			wantStdout: []string{"▶ duplicates", "[1/1]", "rows=4", "done 4 rows × 3 columns"},
		},
		{
			name:       "missing input flag",
			args:       []string{"-algorithm", "duplicates"},
			wantCode:   exitUsage,
			wantStderr: "-in is required",
		},
		{
			name:       "bad delimiter",
			args:       []string{"-in", in, "-delimiter", ";;"},
			wantCode:   exitUsage,
			wantStderr: "single character",
		},
		{
			name:       "unknown algorithm",
			args:       []string{"-in", in, "-delimiter", ";", "-algorithm", "magic"},
			wantCode:   exitUsage,
			wantStderr: "unsupported algorithm",
		},
		{
			name:       "missing file",
			args:       []string{"-in", filepath.Join(t.TempDir(), "nope.csv")},
			wantCode:   exitError,
			wantStderr: "no such file",
		},
		{
			name:       "output is a directory",
			args:       []string{"-in", in, "-delimiter", ";", "-out", t.TempDir()},
			wantCode:   exitError,
			wantStderr: "is a directory",
		},
		{
			name:       "unsupported format",
			args:       []string{"-in", writeInput(t, "report.pdf", "%PDF")},
			wantCode:   exitError,
			wantStderr: "unsupported file format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			code := run(context.Background(), tt.args, &stdout, &stderr)

			assert.Equal(t, tt.wantCode, code, stderr.String())
			for _, want := range tt.wantStdout {
				assert.Contains(t, stdout.String(), want)
			}
			if tt.wantStderr != "" {
				assert.Contains(t, stderr.String(), tt.wantStderr)
			}
		})
	}
}

func TestRunWritesCSV(t *testing.T) {
	color.NoColor = true
	in := writeInput(t, "prices.csv", pricesCSV)
	out := filepath.Join(t.TempDir(), "cleaned.csv")

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-in", in, "-delimiter", ";", "-algorithm", "duplicates", "-out", out, "-bom"}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())
	assert.Contains(t, stdout.String(), "wrote "+out)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Equal(t, "\ufeffticker,price,volume", lines[0])
	assert.Len(t, lines, 5)
}

func TestRunPersists(t *testing.T) {
	color.NoColor = true
	dsn := filepath.Join(t.TempDir(), "store", "clean.db")
	t.Setenv("CLEAN_STORAGE_KIND", "sqlite")
	t.Setenv("CLEAN_STORAGE_DSN", dsn)
	in := writeInput(t, "prices.csv", pricesCSV)

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-in", in, "-delimiter", ";", "-algorithm", "duplicates", "-persist"}, &stdout, &stderr)
	require.Equal(t, exitOK, code, stderr.String())
	assert.FileExists(t, dsn)
}

func TestScoreColor(t *testing.T) {
	color.NoColor = true
	assert.Equal(t, "0.913", scoreColor(0.9131))
	assert.Equal(t, "0.500", scoreColor(0.5))
}
