package transform

import (
	"strings"

	"adaptiveclean/internal/dataset"
)

// AllGroup is the key of the unsplit group.
const AllGroup = "all"

// groupingNames are the column names recognized as grouping columns.
var groupingNames = []string{"sector", "department", "division"}

// Group is one partition of a dataset.
type Group struct {
	Key    string           `json:"key"`
	Column string           `json:"column,omitempty"`
	Value  string           `json:"value,omitempty"`
	Data   *dataset.Dataset `json:"-"`
}

// DetectGroupColumn returns the index of the grouping column, or -1. An
// exact canonical-name match wins over a substring match; among equals the
// leftmost column wins.
func DetectGroupColumn(schema dataset.Schema) int {
	for j, c := range schema {
		name := CanonicalName(c.Name)
		for _, g := range groupingNames {
			if name == g {
				return j
			}
		}
	}
	for j, c := range schema {
		name := CanonicalName(c.Name)
		for _, g := range groupingNames {
			if strings.Contains(name, g) {
				return j
			}
		}
	}
	return -1
}

// Split always returns the "all" group first. When a grouping column exists
// and its non-null values sanitize to more than one key, one group per key
// follows in order of first appearance. Values that sanitize to the same key
// share a group; rows with a null group value appear only in "all".
func Split(in *dataset.Dataset) []Group {
	groups := []Group{{Key: AllGroup, Data: in}}
	j := DetectGroupColumn(in.Schema())
	if j < 0 {
		return groups
	}

	var order []string
	raw := map[string]string{}
	for _, r := range in.Rows() {
		v := r[j]
		if v.IsNull() {
			continue
		}
		key := CanonicalName(v.String())
		if key == "column" {
			key = "group"
		}
		if _, ok := raw[key]; !ok {
			raw[key] = v.String()
			order = append(order, key)
		}
	}
	if len(order) <= 1 {
		return groups
	}

	column := in.Schema()[j].Name
	for _, key := range order {
		key := key
		part := in.Filter(func(_ int, r dataset.Row) bool {
			v := r[j]
			if v.IsNull() {
				return false
			}
			k := CanonicalName(v.String())
			if k == "column" {
				k = "group"
			}
			return k == key
		})
		groups = append(groups, Group{Key: key, Column: column, Value: raw[key], Data: part})
	}
	return groups
}
