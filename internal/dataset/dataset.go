// Package dataset is the typed in-memory tabular model shared by every
// pipeline stage.
//
// A Dataset is an explicit Schema plus an ordered list of rows. Datasets are
// treated as immutable values: transforms build a new Dataset rather than
// editing the one they were given, so before/after comparisons stay valid.
package dataset

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// Kind is the inferred type of a column.
type Kind string

const (
	KindEmpty     Kind = "empty"
	KindNumeric   Kind = "numeric"
	KindText      Kind = "text"
	KindBool      Kind = "bool"
	KindTimestamp Kind = "timestamp"
	KindRecord    Kind = "record"
	KindList      Kind = "list"
	KindMixed     Kind = "mixed"
)

// IsCategorical reports whether the column is filled by most-frequent
// imputation rather than a numeric strategy.
func (k Kind) IsCategorical() bool {
	return k == KindText || k == KindBool || k == KindMixed
}

// Column describes one column of a Schema.
type Column struct {
	Name string `json:"name"`
	Kind Kind   `json:"kind"`
}

// Schema is the ordered column descriptor of a Dataset.
type Schema []Column

// Names returns the column names in order.
func (s Schema) Names() []string {
	out := make([]string, len(s))
	for i, c := range s {
		out[i] = c.Name
	}
	return out
}

// Index returns the position of the named column, or -1.
func (s Schema) Index(name string) int {
	for i, c := range s {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Row is one ordered sequence of values, positionally aligned with the Schema.
type Row []Value

// Dataset is a schema plus rows.
type Dataset struct {
	schema Schema
	rows   []Row
}

// New builds a dataset from a schema and rows. Every row must match the
// schema width.
func New(schema Schema, rows []Row) (*Dataset, error) {
	for i, r := range rows {
		if len(r) != len(schema) {
			return nil, fmt.Errorf("row %d has %d values, schema has %d columns", i, len(r), len(schema))
		}
	}
	s := make(Schema, len(schema))
	copy(s, schema)
	return &Dataset{schema: s, rows: rows}, nil
}

// FromColumns builds a dataset from column-major data and infers each
// column kind. All columns must have the same length.
func FromColumns(names []string, cols [][]Value) (*Dataset, error) {
	if len(names) != len(cols) {
		return nil, fmt.Errorf("%d names for %d columns", len(names), len(cols))
	}
	n := 0
	if len(cols) > 0 {
		n = len(cols[0])
	}
	schema := make(Schema, len(names))
	for j, name := range names {
		if len(cols[j]) != n {
			return nil, fmt.Errorf("column %q has %d values, expected %d", name, len(cols[j]), n)
		}
		schema[j] = Column{Name: name, Kind: InferKind(cols[j])}
	}
	rows := make([]Row, n)
	for i := 0; i < n; i++ {
		r := make(Row, len(cols))
		for j := range cols {
			r[j] = cols[j][i]
		}
		rows[i] = r
	}
	return &Dataset{schema: schema, rows: rows}, nil
}

// FromRecords builds a dataset from loosely typed records such as decoded
// JSON objects. Column order follows first appearance across records; keys
// missing from a record become null.
func FromRecords(records []map[string]any) *Dataset {
	var names []string
	seen := map[string]bool{}
	for _, rec := range records {
		for _, k := range sortedKeys(rec) {
			if !seen[k] {
				seen[k] = true
				names = append(names, k)
			}
		}
	}
	cols := make([][]Value, len(names))
	for j, name := range names {
		col := make([]Value, len(records))
		for i, rec := range records {
			col[i] = FromAny(rec[name])
		}
		cols[j] = col
	}
	ds, _ := FromColumns(names, cols)
	return ds
}

// Empty returns a dataset with no columns and no rows.
func Empty() *Dataset { return &Dataset{} }

// Schema returns a copy of the schema.
func (d *Dataset) Schema() Schema {
	s := make(Schema, len(d.schema))
	copy(s, d.schema)
	return s
}

// Rows exposes the rows. Callers must not modify them.
func (d *Dataset) Rows() []Row { return d.rows }

// Len is the number of rows.
func (d *Dataset) Len() int { return len(d.rows) }

// Width is the number of columns.
func (d *Dataset) Width() int { return len(d.schema) }

// Cell returns the value at row i, column j.
func (d *Dataset) Cell(i, j int) Value { return d.rows[i][j] }

// Column copies out column j.
func (d *Dataset) Column(j int) []Value {
	out := make([]Value, len(d.rows))
	for i, r := range d.rows {
		out[i] = r[j]
	}
	return out
}

// Columns copies the dataset out in column-major form.
func (d *Dataset) Columns() [][]Value {
	cols := make([][]Value, len(d.schema))
	for j := range d.schema {
		cols[j] = d.Column(j)
	}
	return cols
}

// ColumnsOfKind returns the indices of columns whose kind matches any of kinds.
func (d *Dataset) ColumnsOfKind(kinds ...Kind) []int {
	var out []int
	for j, c := range d.schema {
		for _, k := range kinds {
			if c.Kind == k {
				out = append(out, j)
				break
			}
		}
	}
	return out
}

// NumericColumns returns the indices of numeric columns.
func (d *Dataset) NumericColumns() []int { return d.ColumnsOfKind(KindNumeric) }

// TextColumns returns the indices of text columns.
func (d *Dataset) TextColumns() []int { return d.ColumnsOfKind(KindText) }

// WithColumns returns a new dataset where the listed columns are replaced.
// Kinds of replaced columns are re-inferred.
func (d *Dataset) WithColumns(replace map[int][]Value) *Dataset {
	schema := d.Schema()
	rows := make([]Row, len(d.rows))
	for i, r := range d.rows {
		nr := make(Row, len(r))
		copy(nr, r)
		for j, col := range replace {
			nr[j] = col[i]
		}
		rows[i] = nr
	}
	for j, col := range replace {
		schema[j].Kind = InferKind(col)
	}
	return &Dataset{schema: schema, rows: rows}
}

// Filter returns a new dataset with the rows for which keep returns true.
// Row values are shared with the receiver, which is safe because rows are
// never modified in place.
func (d *Dataset) Filter(keep func(i int, r Row) bool) *Dataset {
	rows := make([]Row, 0, len(d.rows))
	for i, r := range d.rows {
		if keep(i, r) {
			rows = append(rows, r)
		}
	}
	return &Dataset{schema: d.Schema(), rows: rows}
}

// Clone returns a deep copy of the row slices.
func (d *Dataset) Clone() *Dataset {
	rows := make([]Row, len(d.rows))
	for i, r := range d.rows {
		nr := make(Row, len(r))
		copy(nr, r)
		rows[i] = nr
	}
	return &Dataset{schema: d.Schema(), rows: rows}
}

// Records converts the dataset into plain maps keyed by column name.
func (d *Dataset) Records() []map[string]any {
	out := make([]map[string]any, len(d.rows))
	for i, r := range d.rows {
		m := make(map[string]any, len(r))
		for j, c := range d.schema {
			m[c.Name] = r[j].Any()
		}
		out[i] = m
	}
	return out
}

// InferKind derives a column kind from its non-null values.
func InferKind(vals []Value) Kind {
	kind := KindEmpty
	for _, v := range vals {
		var k Kind
		switch v.Kind() {
		case ValueNull:
			continue
		case ValueNumber:
			k = KindNumeric
		case ValueText:
			k = KindText
		case ValueBool:
			k = KindBool
		case ValueTimestamp:
			k = KindTimestamp
		case ValueRecord:
			k = KindRecord
		case ValueList:
			k = KindList
		}
		if kind == KindEmpty {
			kind = k
		} else if kind != k {
			return KindMixed
		}
	}
	return kind
}

type wireDataset struct {
	Columns Schema  `json:"columns"`
	Rows    [][]any `json:"rows"`
}

// MarshalJSON encodes the dataset as {"columns": [...], "rows": [[...]]}.
func (d *Dataset) MarshalJSON() ([]byte, error) {
	rows := make([][]json.RawMessage, len(d.rows))
	for i, r := range d.rows {
		enc := make([]json.RawMessage, len(r))
		for j, v := range r {
			b, err := v.MarshalJSON()
			if err != nil {
				return nil, err
			}
			enc[j] = b
		}
		rows[i] = enc
	}
	return json.Marshal(struct {
		Columns Schema              `json:"columns"`
		Rows    [][]json.RawMessage `json:"rows"`
	}{Columns: d.schema, Rows: rows})
}

// UnmarshalJSON restores a dataset encoded by MarshalJSON. Timestamp columns
// are parsed back from their RFC 3339 text.
func (d *Dataset) UnmarshalJSON(b []byte) error {
	var w wireDataset
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	rows := make([]Row, len(w.Rows))
	for i, raw := range w.Rows {
		if len(raw) != len(w.Columns) {
			return fmt.Errorf("row %d has %d values, schema has %d columns", i, len(raw), len(w.Columns))
		}
		r := make(Row, len(raw))
		for j, x := range raw {
			r[j] = decodeCell(w.Columns[j].Kind, x)
		}
		rows[i] = r
	}
	if w.Columns == nil {
		w.Columns = Schema{}
	}
	d.schema = w.Columns
	d.rows = rows
	return nil
}

func decodeCell(kind Kind, x any) Value {
	if s, ok := x.(string); ok && kind == KindTimestamp {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return Timestamp(t)
		}
	}
	return FromAny(x)
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
