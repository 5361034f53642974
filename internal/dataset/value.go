package dataset

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// ValueKind identifies the dynamic type held by a Value.
type ValueKind uint8

const (
	ValueNull ValueKind = iota
	ValueNumber
	ValueText
	ValueBool
	ValueTimestamp
	ValueRecord
	ValueList
)

func (k ValueKind) String() string {
	switch k {
	case ValueNull:
		return "null"
	case ValueNumber:
		return "number"
	case ValueText:
		return "text"
	case ValueBool:
		return "bool"
	case ValueTimestamp:
		return "timestamp"
	case ValueRecord:
		return "record"
	case ValueList:
		return "list"
	default:
		return "unknown"
	}
}

// Field is one key/value pair of a record value. Records keep key order.
type Field struct {
	Key   string
	Value Value
}

// Value is a single typed cell. The zero Value is null.
type Value struct {
	kind   ValueKind
	num    float64
	str    string
	b      bool
	ts     time.Time
	fields []Field
	items  []Value
}

// Null returns the null value.
func Null() Value { return Value{} }

// Number returns a numeric value. NaN and infinities are stored as null.
func Number(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}
	}
	return Value{kind: ValueNumber, num: f}
}

// Text returns a text value.
func Text(s string) Value { return Value{kind: ValueText, str: s} }

// Bool returns a boolean value.
func Bool(b bool) Value { return Value{kind: ValueBool, b: b} }

// Timestamp returns a timestamp value normalized to UTC.
func Timestamp(t time.Time) Value { return Value{kind: ValueTimestamp, ts: t.UTC()} }

// Record returns a nested key/value value.
func Record(fields ...Field) Value {
	cp := make([]Field, len(fields))
	copy(cp, fields)
	return Value{kind: ValueRecord, fields: cp}
}

// List returns a list value.
func List(items ...Value) Value {
	cp := make([]Value, len(items))
	copy(cp, items)
	return Value{kind: ValueList, items: cp}
}

func (v Value) Kind() ValueKind { return v.kind }
func (v Value) IsNull() bool    { return v.kind == ValueNull }

// Float returns the numeric payload and whether v is a number.
func (v Value) Float() (float64, bool) { return v.num, v.kind == ValueNumber }

// Str returns the text payload and whether v is text.
func (v Value) Str() (string, bool) { return v.str, v.kind == ValueText }

// BoolVal returns the boolean payload and whether v is a bool.
func (v Value) BoolVal() (bool, bool) { return v.b, v.kind == ValueBool }

// Time returns the timestamp payload and whether v is a timestamp.
func (v Value) Time() (time.Time, bool) { return v.ts, v.kind == ValueTimestamp }

// Fields returns the record fields, or nil for non-records.
func (v Value) Fields() []Field { return v.fields }

// Items returns the list items, or nil for non-lists.
func (v Value) Items() []Value { return v.items }

// Equal reports deep equality. Null equals null.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case ValueNull:
		return true
	case ValueNumber:
		return v.num == o.num
	case ValueText:
		return v.str == o.str
	case ValueBool:
		return v.b == o.b
	case ValueTimestamp:
		return v.ts.Equal(o.ts)
	case ValueRecord:
		if len(v.fields) != len(o.fields) {
			return false
		}
		for i := range v.fields {
			if v.fields[i].Key != o.fields[i].Key || !v.fields[i].Value.Equal(o.fields[i].Value) {
				return false
			}
		}
		return true
	case ValueList:
		if len(v.items) != len(o.items) {
			return false
		}
		for i := range v.items {
			if !v.items[i].Equal(o.items[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// String renders the value as text. Null renders as the empty string.
func (v Value) String() string {
	switch v.kind {
	case ValueNull:
		return ""
	case ValueNumber:
		return strconv.FormatFloat(v.num, 'f', -1, 64)
	case ValueText:
		return v.str
	case ValueBool:
		return strconv.FormatBool(v.b)
	case ValueTimestamp:
		return v.ts.Format(time.RFC3339Nano)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v.Any())
		}
		return string(b)
	}
}

// Any converts the value into plain Go data suitable for encoding/json.
// Records become ordered maps only in MarshalJSON; Any returns map[string]any.
func (v Value) Any() any {
	switch v.kind {
	case ValueNumber:
		return v.num
	case ValueText:
		return v.str
	case ValueBool:
		return v.b
	case ValueTimestamp:
		return v.ts.Format(time.RFC3339Nano)
	case ValueRecord:
		m := make(map[string]any, len(v.fields))
		for _, f := range v.fields {
			m[f.Key] = f.Value.Any()
		}
		return m
	case ValueList:
		out := make([]any, len(v.items))
		for i, it := range v.items {
			out[i] = it.Any()
		}
		return out
	default:
		return nil
	}
}

// MarshalJSON keeps record key order so serialized lists and records are canonical.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case ValueRecord:
		buf := []byte{'{'}
		for i, f := range v.fields {
			if i > 0 {
				buf = append(buf, ',')
			}
			k, err := json.Marshal(f.Key)
			if err != nil {
				return nil, err
			}
			buf = append(buf, k...)
			buf = append(buf, ':')
			val, err := f.Value.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf = append(buf, val...)
		}
		return append(buf, '}'), nil
	case ValueList:
		buf := []byte{'['}
		for i, it := range v.items {
			if i > 0 {
				buf = append(buf, ',')
			}
			val, err := it.MarshalJSON()
			if err != nil {
				return nil, err
			}
			buf = append(buf, val...)
		}
		return append(buf, ']'), nil
	default:
		return json.Marshal(v.Any())
	}
}

// FromAny converts decoded JSON (or other plain Go data) into a Value.
// Map keys are sorted so the resulting record is deterministic.
func FromAny(x any) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case float64:
		return Number(t)
	case float32:
		return Number(float64(t))
	case int:
		return Number(float64(t))
	case int64:
		return Number(float64(t))
	case int32:
		return Number(float64(t))
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return Text(t.String())
		}
		return Number(f)
	case string:
		return Text(t)
	case bool:
		return Bool(t)
	case time.Time:
		return Timestamp(t)
	case map[string]any:
		keys := sortedKeys(t)
		fields := make([]Field, 0, len(keys))
		for _, k := range keys {
			fields = append(fields, Field{Key: k, Value: FromAny(t[k])})
		}
		return Value{kind: ValueRecord, fields: fields}
	case []any:
		items := make([]Value, len(t))
		for i, it := range t {
			items[i] = FromAny(it)
		}
		return Value{kind: ValueList, items: items}
	default:
		return Text(fmt.Sprintf("%v", t))
	}
}
