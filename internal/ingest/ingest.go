package ingest

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"

	"adaptiveclean/internal/dataset"
)

// Format is an input file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
	FormatHTML Format = "html"
)

// ErrUnsupportedFormat is returned for file types without a loader.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// ErrEmptyInput is returned when a file holds no header row.
var ErrEmptyInput = errors.New("input has no data")

// DetectFormat picks the format from a file name's extension.
func DetectFormat(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".txt":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".html", ".htm":
		return FormatHTML, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(name))
}

// Options tune the loaders.
type Options struct {
	// Sheet selects a workbook sheet. Empty picks the first sheet with data.
	Sheet string
	// Table selects the n-th HTML table, starting at 0.
	Table int
	// Comma overrides the CSV field delimiter.
	Comma rune
}

// Upload is a parsed file.
type Upload struct {
	Name     string
	Format   Format
	Checksum string
	Size     int
	Data     *dataset.Dataset
}

// Checksum returns the hex BLAKE2b-256 digest of b.
func Checksum(b []byte) string {
	sum := blake2b.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Load reads r completely and parses it according to the extension of name.
func Load(name string, r io.Reader, opts Options) (*Upload, error) {
	format, err := DetectFormat(name)
	if err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	d, err := Parse(format, bytes.NewReader(raw), opts)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", name, err)
	}
	return &Upload{
		Name:     filepath.Base(name),
		Format:   format,
		Checksum: Checksum(raw),
		Size:     len(raw),
		Data:     d,
	}, nil
}

// LoadFile opens path and calls Load.
func LoadFile(path string, opts Options) (*Upload, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Load(path, f, opts)
}

// Parse dispatches to the loader for format.
func Parse(format Format, r io.Reader, opts Options) (*dataset.Dataset, error) {
	switch format {
	case FormatCSV:
		return ParseCSV(r, opts.Comma)
	case FormatJSON:
		return ParseJSON(r)
	case FormatXLSX:
		return ParseXLSX(r, opts.Sheet)
	case FormatHTML:
		return ParseHTML(r, opts.Table)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

var nullMarkers = map[string]bool{
	"": true, "na": true, "n/a": true, "nan": true, "null": true, "none": true, "-": true,
}

// FromStrings builds a dataset from a header and string rows. Headers are
// made unique and non-empty; short rows are padded with nulls and extra
// cells are dropped.
func FromStrings(header []string, rows [][]string) (*dataset.Dataset, error) {
	if len(header) == 0 {
		return nil, ErrEmptyInput
	}
	names := uniqueHeaders(header)
	cols := make([][]dataset.Value, len(names))
	for j := range names {
		raw := make([]string, len(rows))
		for i, r := range rows {
			if j < len(r) {
				raw[i] = r[j]
			}
		}
		cols[j] = inferColumn(raw)
	}
	return dataset.FromColumns(names, cols)
}

func uniqueHeaders(header []string) []string {
	names := make([]string, len(header))
	seen := map[string]int{}
	for j, h := range header {
		name := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if name == "" {
			name = fmt.Sprintf("column_%d", j+1)
		}
		base := name
		for seen[name] > 0 {
			seen[base]++
			name = fmt.Sprintf("%s_%d", base, seen[base])
		}
		seen[name]++
		names[j] = name
	}
	return names
}

func inferColumn(raw []string) []dataset.Value {
	out := make([]dataset.Value, len(raw))
	numeric := true
	nums := make([]float64, len(raw))
	for i, s := range raw {
		s = strings.TrimSpace(s)
		if nullMarkers[strings.ToLower(s)] {
			continue
		}
		f, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
		if err != nil {
			numeric = false
			break
		}
		nums[i] = f
	}
	for i, s := range raw {
		trimmed := strings.TrimSpace(s)
		switch {
		case nullMarkers[strings.ToLower(trimmed)]:
			out[i] = dataset.Null()
		case numeric:
			out[i] = dataset.Number(nums[i])
		default:
			out[i] = dataset.Text(trimmed)
		}
	}
	return out
}
