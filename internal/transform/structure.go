package transform

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"adaptiveclean/internal/dataset"
)

// Structure flattens record-valued columns into {column}_{key} columns,
// serializes list values to canonical JSON text and canonicalizes every
// column name. The returned dataset carries the new schema.
//
// A column is expanded when every non-null value is a record, either native
// or JSON object text. Other columns holding records or lists keep their
// position and have those values serialized.
func Structure(in *dataset.Dataset) (*dataset.Dataset, Details, error) {
	schema := in.Schema()
	var names []string
	var cols [][]dataset.Value
	var expanded, serialized []string

	for j, c := range schema {
		col := in.Column(j)
		parsed, isRecords := asRecords(col)
		if keys := recordKeys(parsed); isRecords && len(keys) > 0 {
			for _, k := range keys {
				out := make([]dataset.Value, len(parsed))
				for i, v := range parsed {
					out[i] = scalarize(lookup(v, k))
				}
				names = append(names, c.Name+"_"+k)
				cols = append(cols, out)
			}
			expanded = append(expanded, c.Name)
			continue
		}
		changed := false
		for i, v := range col {
			s := scalarize(parseJSONText(v))
			if !s.Equal(v) {
				col[i] = s
				changed = true
			}
		}
		if changed {
			serialized = append(serialized, c.Name)
		}
		names = append(names, c.Name)
		cols = append(cols, col)
	}

	canon := CanonicalNames(names)
	out, err := dataset.FromColumns(canon, cols)
	if err != nil {
		return nil, nil, err
	}
	return out, Details{
		"expanded_columns":   expanded,
		"serialized_columns": serialized,
		"columns_before":     len(schema),
		"columns_after":      len(canon),
	}, nil
}

// CanonicalNames lowercases names, collapses runs of non-alphanumerics into
// a single underscore and suffixes collisions with _2, _3 and so on.
func CanonicalNames(names []string) []string {
	out := make([]string, len(names))
	used := map[string]bool{}
	for i, n := range names {
		base := CanonicalName(n)
		name := base
		for k := 2; used[name]; k++ {
			name = base + "_" + strconv.Itoa(k)
		}
		used[name] = true
		out[i] = name
	}
	return out
}

// CanonicalName returns the canonical form of a single name. An empty result
// becomes "column".
func CanonicalName(s string) string {
	var b strings.Builder
	sep := false
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if sep && b.Len() > 0 {
				b.WriteByte('_')
			}
			sep = false
			b.WriteRune(r)
			continue
		}
		sep = true
	}
	if b.Len() == 0 {
		return "column"
	}
	return b.String()
}

// asRecords reports whether every non-null value is a record (native or JSON
// object text) and returns the parsed column.
func asRecords(col []dataset.Value) ([]dataset.Value, bool) {
	out := make([]dataset.Value, len(col))
	seen := false
	for i, v := range col {
		if v.IsNull() {
			continue
		}
		p := parseJSONText(v)
		if p.Kind() != dataset.ValueRecord {
			return nil, false
		}
		out[i] = p
		seen = true
	}
	return out, seen
}

// parseJSONText turns object or array text into a record or list value.
func parseJSONText(v dataset.Value) dataset.Value {
	s, ok := v.Str()
	if !ok {
		return v
	}
	t := strings.TrimSpace(s)
	if len(t) < 2 || !((t[0] == '{' && t[len(t)-1] == '}') || (t[0] == '[' && t[len(t)-1] == ']')) {
		return v
	}
	var x any
	if err := json.Unmarshal([]byte(t), &x); err != nil {
		return v
	}
	return dataset.FromAny(x)
}

func recordKeys(col []dataset.Value) []string {
	var keys []string
	seen := map[string]bool{}
	for _, v := range col {
		for _, f := range v.Fields() {
			if !seen[f.Key] {
				seen[f.Key] = true
				keys = append(keys, f.Key)
			}
		}
	}
	return keys
}

func lookup(v dataset.Value, key string) dataset.Value {
	for _, f := range v.Fields() {
		if f.Key == key {
			return f.Value
		}
	}
	return dataset.Null()
}

// scalarize serializes nested values to canonical JSON text.
func scalarize(v dataset.Value) dataset.Value {
	switch v.Kind() {
	case dataset.ValueRecord, dataset.ValueList:
		return dataset.Text(CanonicalJSON(v))
	default:
		return v
	}
}

// CanonicalJSON encodes a value with record keys sorted.
func CanonicalJSON(v dataset.Value) string {
	b, err := json.Marshal(sortRecord(v))
	if err != nil {
		return v.String()
	}
	return string(b)
}

func sortRecord(v dataset.Value) dataset.Value {
	switch v.Kind() {
	case dataset.ValueRecord:
		fields := make([]dataset.Field, len(v.Fields()))
		for i, f := range v.Fields() {
			fields[i] = dataset.Field{Key: f.Key, Value: sortRecord(f.Value)}
		}
		sort.SliceStable(fields, func(a, b int) bool { return fields[a].Key < fields[b].Key })
		return dataset.Record(fields...)
	case dataset.ValueList:
		items := make([]dataset.Value, len(v.Items()))
		for i, it := range v.Items() {
			items[i] = sortRecord(it)
		}
		return dataset.List(items...)
	default:
		return v
	}
}
