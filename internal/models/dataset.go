package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// Table is an ordered set of columns and rows. Each row holds one value per
// column: string, float64, bool or nil.
type Table struct {
	Columns []string
	Rows    [][]any
}

// ColumnIndex returns the position of a column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Record returns row i as an ordered record.
func (t *Table) Record(i int) Record {
	values := make([]any, len(t.Columns))
	copy(values, t.Rows[i])
	return Record{Columns: t.Columns, Values: values}
}

// Head returns the first n rows as records, in schema column order.
func (t *Table) Head(n int) []Record {
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	out := make([]Record, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, t.Record(i))
	}
	return out
}

// Dataset is an uploaded table. A Dataset is never mutated after it has
// been published to the registry.
type Dataset struct {
	Table
	Key         string
	FileName    string
	Types       []string
	Fingerprint string
	LoadedAt    time.Time
}

// Record is one result row. It keeps its column order when encoded.
type Record struct {
	Columns []string
	Values  []any
}

// Get returns the value of a column and whether it exists.
func (r Record) Get(column string) (any, bool) {
	for i, c := range r.Columns {
		if c == column {
			return r.Values[i], true
		}
	}
	return nil, false
}

func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range r.Columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(c)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		val, err := json.Marshal(r.Values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Stringify renders a cell the way the rule-based matcher and the keyword
// fallback compare it. Null renders as the empty string.
func Stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case bool:
		if x {
			return "True"
		}
		return "False"
	default:
		b, err := json.Marshal(x)
		if err != nil {
			return ""
		}
		return string(b)
	}
}
