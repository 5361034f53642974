package ingest

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/xuri/excelize/v2"

	"adaptiveclean/internal/dataset"
)

// headerScanRows bounds how far down a sheet the header row is searched.
const headerScanRows = 20

// ParseXLSX reads one sheet of a workbook. Title rows above the table are
// skipped: the header is the first row that fills at least half of the
// widest row near the top of the sheet. Trailing empty rows are dropped.
func ParseXLSX(r io.Reader, sheet string) (*dataset.Dataset, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	rows, name, err := selectSheet(f, sheet)
	if err != nil {
		return nil, err
	}
	slog.Debug("sheet_selected", slog.String("sheet", name), slog.Int("rows", len(rows)))

	rows = trimTrailingEmpty(rows)
	header := findHeaderRow(rows)
	if header < 0 {
		return nil, ErrEmptyInput
	}
	return FromStrings(rows[header], rows[header+1:])
}

func selectSheet(f *excelize.File, want string) ([][]string, string, error) {
	if want != "" {
		rows, err := f.GetRows(want)
		if err != nil {
			return nil, "", fmt.Errorf("sheet %q: %w", want, err)
		}
		return rows, want, nil
	}
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err == nil && len(trimTrailingEmpty(rows)) > 0 {
			return rows, name, nil
		}
	}
	return nil, "", ErrEmptyInput
}

func filled(row []string) int {
	n := 0
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			n++
		}
	}
	return n
}

func trimTrailingEmpty(rows [][]string) [][]string {
	last := len(rows) - 1
	for last >= 0 && filled(rows[last]) == 0 {
		last--
	}
	return rows[:last+1]
}

func findHeaderRow(rows [][]string) int {
	limit := min(len(rows), headerScanRows)
	widest := 0
	for _, r := range rows[:limit] {
		widest = max(widest, filled(r))
	}
	if widest == 0 {
		return -1
	}
	need := max(1, (widest+1)/2)
	for i, r := range rows[:limit] {
		if filled(r) >= need {
			return i
		}
	}
	return -1
}
