// Package exporter writes datasets as CSV.
//
// CSVWriter resolves relative file names against a base directory and can
// prefix a UTF-8 BOM so that spreadsheet tools detect the encoding. Write
// serves HTTP downloads and anything else that already holds a writer.
//
// Example usage:
//
//	w := exporter.NewCSVWriter("exports")
//	path, err := w.WriteFile("cleaned.csv", variant.Data, exporter.WriteOptions{BOMPrefix: true})
package exporter
