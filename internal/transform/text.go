package transform

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"

	"adaptiveclean/internal/dataset"
)

// CleanText lowercases text cells, strips every rune that is not a letter,
// digit, underscore or whitespace, and trims the result. Non-text cells and
// nulls are kept as they are.
func CleanText(in *dataset.Dataset) (*dataset.Dataset, Details, error) {
	cols := in.ColumnsOfKind(dataset.KindText, dataset.KindMixed)
	replace := map[int][]dataset.Value{}
	for _, j := range cols {
		col := in.Column(j)
		for i, v := range col {
			if s, ok := v.Str(); ok {
				col[i] = dataset.Text(NormalizeText(s))
			}
		}
		replace[j] = col
	}
	return in.WithColumns(replace), Details{"columns_affected": len(cols)}, nil
}

// NormalizeText applies the text-cleaning rules to a single string.
func NormalizeText(s string) string {
	lower := cases.Lower(language.Und).String(norm.NFC.String(s))
	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}
