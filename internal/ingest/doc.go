// Package ingest turns uploaded files into datasets.
//
// Supported formats are CSV, JSON (an array of objects or the
// {"columns": [...], "rows": [[...]]} form), XLSX workbooks and HTML
// tables. Google Sheets ranges are imported through the Sheets API.
//
// Text formats carry no types, so each column is inferred: empty cells and
// null markers become null, and a column whose remaining cells all parse as
// numbers becomes numeric. Everything else stays text for the
// data_type_correction step to refine.
//
// Every upload is fingerprinted with a BLAKE2b-256 checksum of its raw bytes.
package ingest
