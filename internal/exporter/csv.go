package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"adaptiveclean/internal/dataset"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVWriter provides CSV export functionality
type CSVWriter struct {
	baseDir string
}

// NewCSVWriter creates a writer rooted at baseDir
func NewCSVWriter(baseDir string) *CSVWriter {
	return &CSVWriter{baseDir: baseDir}
}

// WriteOptions configures CSV writing behavior
type WriteOptions struct {
	BOMPrefix bool // Add UTF-8 BOM for Excel compatibility
	Comma     rune
}

// Write writes the header and every row of d to out.
func Write(out io.Writer, d *dataset.Dataset, options WriteOptions) error {
	if options.BOMPrefix {
		if _, err := out.Write(utf8BOM); err != nil {
			return fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	writer := csv.NewWriter(out)
	if options.Comma != 0 {
		writer.Comma = options.Comma
	}
	if err := writer.Write(d.Schema().Names()); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}

	record := make([]string, d.Width())
	for i, row := range d.Rows() {
		for j, v := range row {
			record[j] = formatValue(v)
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteFile writes d to name, creating parent directories. Relative names
// resolve against the base directory. It returns the full path.
func (w *CSVWriter) WriteFile(name string, d *dataset.Dataset, options WriteOptions) (string, error) {
	fullPath := w.resolvePath(name)

	slog.Info("csv_export",
		slog.String("file_path", fullPath),
		slog.Int("record_count", d.Len()))

	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}
	file, err := os.Create(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	if err := Write(file, d, options); err != nil {
		file.Close()
		return "", err
	}
	return fullPath, file.Close()
}

// resolvePath resolves a path to the export directory
func (w *CSVWriter) resolvePath(name string) string {
	if filepath.IsAbs(name) || w.baseDir == "" {
		return name
	}
	return filepath.Join(w.baseDir, name)
}
