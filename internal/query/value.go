package query

import (
	"math"
	"strings"

	"github.com/pkg/errors"

	"github.com/poornimagithubrit/Agentic-RAG/internal/models"
)

// Frame is a table value. Rows are shared with the source table and are
// never written to; every operation builds a new Frame.
type Frame struct {
	Columns []string
	Rows    [][]any
	Index   []any
	// IndexNames is set when the index carries data, e.g. groupby keys.
	// With more than one name each Index entry is a []any.
	IndexNames []string
}

// Series is a labelled column of values.
type Series struct {
	Name       string
	IndexNames []string
	Index      []any
	Values     []any
	// FromRow marks a row taken out of a frame: the index holds column names.
	FromRow bool
}

// NewFrame wraps a table with a positional index.
func NewFrame(t *models.Table) *Frame {
	index := make([]any, len(t.Rows))
	for i := range index {
		index[i] = float64(i)
	}
	return &Frame{Columns: t.Columns, Rows: t.Rows, Index: index}
}

func (f *Frame) Len() int {
	return len(f.Rows)
}

func (f *Frame) columnIndex(name string) int {
	for i, c := range f.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// column returns a column as a series aligned with the frame index.
func (f *Frame) column(name string) (*Series, error) {
	i := f.columnIndex(name)
	if i < 0 {
		if len(f.IndexNames) == 1 && f.IndexNames[0] == name {
			values := make([]any, len(f.Index))
			copy(values, f.Index)
			return &Series{Name: name, Index: values, Values: values}, nil
		}
		return nil, keyError(name)
	}
	values := make([]any, len(f.Rows))
	for r, row := range f.Rows {
		values[r] = row[i]
	}
	return &Series{Name: name, IndexNames: f.IndexNames, Index: f.Index, Values: values}, nil
}

// take returns the rows at the given positions, keeping their index labels.
func (f *Frame) take(positions []int) *Frame {
	rows := make([][]any, len(positions))
	index := make([]any, len(positions))
	for i, p := range positions {
		rows[i] = f.Rows[p]
		index[i] = f.Index[p]
	}
	return &Frame{Columns: f.Columns, Rows: rows, Index: index, IndexNames: f.IndexNames}
}

func (f *Frame) selectColumns(names []string) (*Frame, error) {
	idx := make([]int, len(names))
	for i, n := range names {
		idx[i] = f.columnIndex(n)
		if idx[i] < 0 {
			return nil, keyError(n)
		}
	}
	rows := make([][]any, len(f.Rows))
	for r, row := range f.Rows {
		out := make([]any, len(idx))
		for i, c := range idx {
			out[i] = row[c]
		}
		rows[r] = out
	}
	return &Frame{Columns: names, Rows: rows, Index: f.Index, IndexNames: f.IndexNames}, nil
}

func (f *Frame) row(pos int) *Series {
	values := make([]any, len(f.Columns))
	copy(values, f.Rows[pos])
	index := make([]any, len(f.Columns))
	for i, c := range f.Columns {
		index[i] = c
	}
	return &Series{Name: models.Stringify(f.Index[pos]), Index: index, Values: values, FromRow: true}
}

// Records converts at most limit rows into ordered records. Named index
// levels become leading columns; a positional index is dropped.
func (f *Frame) Records(limit int) []models.Record {
	n := len(f.Rows)
	if limit >= 0 && n > limit {
		n = limit
	}
	columns := append(append([]string{}, f.IndexNames...), f.Columns...)
	out := make([]models.Record, n)
	for r := 0; r < n; r++ {
		values := make([]any, 0, len(columns))
		values = append(values, indexParts(f.Index[r], len(f.IndexNames))...)
		for _, v := range f.Rows[r] {
			values = append(values, exportValue(v))
		}
		out[r] = models.Record{Columns: columns, Values: values}
	}
	return out
}

func (s *Series) Len() int {
	return len(s.Values)
}

func (s *Series) withValues(values []any) *Series {
	return &Series{Name: s.Name, IndexNames: s.IndexNames, Index: s.Index, Values: values, FromRow: s.FromRow}
}

func (s *Series) take(positions []int) *Series {
	values := make([]any, len(positions))
	index := make([]any, len(positions))
	for i, p := range positions {
		values[i] = s.Values[p]
		index[i] = s.Index[p]
	}
	return &Series{Name: s.Name, IndexNames: s.IndexNames, Index: index, Values: values, FromRow: s.FromRow}
}

// Records converts a series into records. A row series becomes a single
// record keyed by column; any other series becomes one record per entry
// holding the index label(s) and the value.
func (s *Series) Records(limit int) []models.Record {
	if s.FromRow {
		columns := make([]string, len(s.Index))
		values := make([]any, len(s.Index))
		for i, label := range s.Index {
			columns[i] = models.Stringify(label)
			values[i] = exportValue(s.Values[i])
		}
		return []models.Record{{Columns: columns, Values: values}}
	}

	indexNames := s.IndexNames
	if len(indexNames) == 0 {
		indexNames = []string{"index"}
	}
	name := s.Name
	if name == "" {
		name = "value"
	}
	for _, n := range indexNames {
		if n == name {
			name = "value"
		}
	}
	columns := append(append([]string{}, indexNames...), name)

	n := len(s.Values)
	if limit >= 0 && n > limit {
		n = limit
	}
	out := make([]models.Record, n)
	for i := 0; i < n; i++ {
		values := make([]any, 0, len(columns))
		values = append(values, indexParts(s.Index[i], len(indexNames))...)
		values = append(values, exportValue(s.Values[i]))
		out[i] = models.Record{Columns: columns, Values: values}
	}
	return out
}

func indexParts(label any, levels int) []any {
	if levels <= 1 {
		if levels == 0 {
			return nil
		}
		return []any{exportValue(label)}
	}
	parts, _ := label.([]any)
	out := make([]any, levels)
	for i := range out {
		if i < len(parts) {
			out[i] = exportValue(parts[i])
		}
	}
	return out
}

// exportValue maps values that have no JSON form (NaN, infinities) to null.
func exportValue(v any) any {
	if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return nil
	}
	return v
}

// Internal values. None of them can leave a program as a result.
type (
	method struct {
		recv any
		name string
	}

	builtin struct {
		name string
		fn   func(a *arguments) (any, error)
	}

	pandasModule struct{}

	strAccessor struct{ s *Series }

	ilocIndexer struct{ x any }

	locIndexer struct{ x any }

	sliceValue struct{ lo, hi *int }

	tupleValue []any
)

func typeName(v any) string {
	switch x := v.(type) {
	case nil:
		return "NoneType"
	case string:
		return "str"
	case bool:
		return "bool"
	case float64:
		if x == math.Trunc(x) {
			return "int"
		}
		return "float"
	case []any:
		return "list"
	case *Frame:
		return "DataFrame"
	case *Series:
		return "Series"
	case *method:
		return "method"
	case *builtin:
		return "builtin_function_or_method"
	case pandasModule:
		return "module"
	case strAccessor:
		return "StringMethods"
	case ilocIndexer:
		return "iLocIndexer"
	case locIndexer:
		return "LocIndexer"
	case *groupBy:
		return "DataFrameGroupBy"
	case sliceValue:
		return "slice"
	case tupleValue:
		return "tuple"
	}
	return "object"
}

func isScalar(v any) bool {
	switch v.(type) {
	case nil, string, bool, float64:
		return true
	}
	return false
}

func keyError(name string) error {
	return errors.Errorf("KeyError: '%s'", name)
}

func typeErrorf(format string, args ...any) error {
	return errors.Errorf("TypeError: "+format, args...)
}

// asNumber reads numbers and bools, the way pandas treats bools in
// arithmetic and aggregation.
func asNumber(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func asInt(v any, what string) (int, error) {
	f, ok := v.(float64)
	if !ok {
		if b, isBool := v.(bool); isBool {
			if b {
				return 1, nil
			}
			return 0, nil
		}
		return 0, typeErrorf("%s must be an integer, not %s", what, typeName(v))
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, typeErrorf("%s must be an integer, not float", what)
	}
	return int(f), nil
}

func truthy(v any) (bool, error) {
	switch x := v.(type) {
	case nil:
		return false, nil
	case bool:
		return x, nil
	case float64:
		return x != 0, nil
	case string:
		return x != "", nil
	case []any:
		return len(x) > 0, nil
	case *Series:
		return false, errors.New("ValueError: The truth value of a Series is ambiguous. Use a.any() or a.all(), and & or | for element-wise logic")
	case *Frame:
		return false, errors.New("ValueError: The truth value of a DataFrame is ambiguous. Use a.empty, a.any() or a.all()")
	}
	return true, nil
}

// compareScalars orders two non-null scalars. ok is false when the types
// cannot be ordered against each other.
func compareScalars(a, b any) (int, bool) {
	if x, ok := asNumber(a); ok {
		if y, ok := asNumber(b); ok {
			switch {
			case x < y:
				return -1, true
			case x > y:
				return 1, true
			}
			return 0, true
		}
		return 0, false
	}
	if x, ok := a.(string); ok {
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), true
		}
	}
	return 0, false
}

// orderValues compares for sorting: nulls last, then incomparable types by
// their string form so sorting never fails.
func orderValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	if c, ok := compareScalars(a, b); ok {
		return c
	}
	if ka, kb := typeName(a), typeName(b); ka != kb {
		return strings.Compare(ka, kb)
	}
	return strings.Compare(models.Stringify(a), models.Stringify(b))
}

// valueKey identifies a scalar for grouping and de-duplication. Numbers and
// bools keep separate keys from strings with the same text.
func valueKey(v any) string {
	switch x := v.(type) {
	case nil:
		return "n:"
	case string:
		return "s:" + x
	case bool:
		return "b:" + models.Stringify(v)
	}
	return "f:" + models.Stringify(v)
}

func tupleKey(values []any) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = valueKey(v)
	}
	return strings.Join(parts, "\x00")
}
