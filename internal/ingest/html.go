package ingest

import (
	"fmt"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"adaptiveclean/internal/dataset"
)

// ParseHTML reads the index-th <table> of a document. Its first non-empty
// row is the header.
func ParseHTML(r io.Reader, index int) (*dataset.Dataset, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	tables := doc.Find("table")
	if tables.Length() == 0 {
		return nil, ErrEmptyInput
	}
	if index < 0 || index >= tables.Length() {
		return nil, fmt.Errorf("table %d out of range (document has %d)", index, tables.Length())
	}

	var (
		header []string
		rows   [][]string
	)
	table := tables.Eq(index)
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		// nested tables belong to their own parent
		if tr.ParentsFiltered("table").First().Get(0) != table.Get(0) {
			return
		}
		var cells []string
		tr.ChildrenFiltered("th, td").Each(func(_ int, cell *goquery.Selection) {
			cells = append(cells, strings.Join(strings.Fields(cell.Text()), " "))
		})
		if len(cells) == 0 {
			return
		}
		if header == nil {
			header = cells
			return
		}
		rows = append(rows, cells)
	})
	if header == nil {
		return nil, ErrEmptyInput
	}
	return FromStrings(header, rows)
}
