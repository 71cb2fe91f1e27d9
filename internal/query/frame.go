package query

import (
	"sort"

	"github.com/pkg/errors"
)

var frameMethods = setOf(
	"head", "tail", "sort_values", "nlargest", "nsmallest", "reset_index",
	"copy", "dropna", "drop_duplicates", "drop", "groupby",
	"count", "sum", "mean", "median", "std", "min", "max", "nunique",
)

func frameMethod(f *Frame, name string, a *arguments) (any, error) {
	switch name {
	case "head", "tail":
		if err := a.accept(1, "n"); err != nil {
			return nil, err
		}
		n, err := a.intArg(0, "n", 5)
		if err != nil {
			return nil, err
		}
		return f.take(headTail(f.Len(), n, name == "tail")), nil

	case "sort_values":
		if err := a.accept(2, "by", "ascending", "na_position", "kind", "ignore_index"); err != nil {
			return nil, err
		}
		by, ok, err := a.stringsArg(0, "by")
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, typeErrorf("sort_values() missing required argument: 'by'")
		}
		asc, err := ascendingArg(a, 1, len(by))
		if err != nil {
			return nil, err
		}
		return f.sortBy(by, asc, false)

	case "nlargest", "nsmallest":
		if err := a.accept(2, "n", "columns", "keep"); err != nil {
			return nil, err
		}
		n, err := a.intArg(0, "n", 5)
		if err != nil {
			return nil, err
		}
		cols, ok, err := a.stringsArg(1, "columns")
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, typeErrorf("%s() missing required argument: 'columns'", name)
		}
		asc := make([]bool, len(cols))
		for i := range asc {
			asc[i] = name == "nsmallest"
		}
		sorted, err := f.sortBy(cols, asc, true)
		if err != nil {
			return nil, err
		}
		return sorted.take(headTail(sorted.Len(), n, false)), nil

	case "reset_index":
		if err := a.accept(1, "drop"); err != nil {
			return nil, err
		}
		drop, err := a.boolArg(0, "drop", false)
		if err != nil {
			return nil, err
		}
		return f.resetIndex(drop), nil

	case "copy":
		if err := a.accept(1, "deep"); err != nil {
			return nil, err
		}
		c := *f
		return &c, nil

	case "dropna":
		if err := a.accept(0, "subset", "how"); err != nil {
			return nil, err
		}
		return f.dropna(a)

	case "drop_duplicates":
		if err := a.accept(1, "subset", "keep", "ignore_index"); err != nil {
			return nil, err
		}
		return f.dropDuplicates(a)

	case "drop":
		if err := a.accept(1, "labels", "columns", "axis"); err != nil {
			return nil, err
		}
		return f.dropColumns(a)

	case "groupby":
		if err := a.accept(1, "by", "as_index", "sort", "dropna"); err != nil {
			return nil, err
		}
		keys, ok, err := a.stringsArg(0, "by")
		if err != nil {
			return nil, err
		}
		if !ok || len(keys) == 0 {
			return nil, typeErrorf("You have to supply one of 'by' and 'level'")
		}
		for _, k := range keys {
			if f.columnIndex(k) < 0 {
				return nil, keyError(k)
			}
		}
		asIndex, err := a.boolArg(-1, "as_index", true)
		if err != nil {
			return nil, err
		}
		return &groupBy{f: f, keys: keys, asIndex: asIndex}, nil

	case "count", "sum", "mean", "median", "std", "min", "max", "nunique":
		if err := a.accept(0, "numeric_only", "skipna"); err != nil {
			return nil, err
		}
		numericOnly, err := a.boolArg(-1, "numeric_only", false)
		if err != nil {
			return nil, err
		}
		return f.aggregate(name, numericOnly)
	}
	return nil, errors.Errorf("AttributeError: 'DataFrame' object has no supported method '%s'", name)
}

// headTail returns the positions kept by head(n) or tail(n). A negative n
// drops that many rows from the other end.
func headTail(length, n int, tail bool) []int {
	if n < 0 {
		n += length
		if n < 0 {
			n = 0
		}
	}
	if n > length {
		n = length
	}
	if tail {
		return rangeInts(length-n, length)
	}
	return rangeInts(0, n)
}

func ascendingArg(a *arguments, i, n int) ([]bool, error) {
	out := make([]bool, n)
	for j := range out {
		out[j] = true
	}
	v, ok := a.get(i, "ascending")
	if !ok || v == nil {
		return out, nil
	}
	if list, isList := v.([]any); isList {
		if len(list) != n {
			return nil, errors.Errorf("ValueError: Length of ascending (%d) != length of by (%d)", len(list), n)
		}
		for j, e := range list {
			b, err := truthy(e)
			if err != nil {
				return nil, err
			}
			out[j] = b
		}
		return out, nil
	}
	b, err := truthy(v)
	if err != nil {
		return nil, err
	}
	for j := range out {
		out[j] = b
	}
	return out, nil
}

// sortBy is a stable multi-key sort with nulls last in either direction.
// With dropNulls rows with a null key are removed first.
func (f *Frame) sortBy(by []string, asc []bool, dropNulls bool) (*Frame, error) {
	keys := make([]*Series, len(by))
	for i, name := range by {
		s, err := f.column(name)
		if err != nil {
			return nil, err
		}
		keys[i] = s
	}

	pos := make([]int, 0, f.Len())
	for r := 0; r < f.Len(); r++ {
		if dropNulls && hasNull(keys, r) {
			continue
		}
		pos = append(pos, r)
	}
	sort.SliceStable(pos, func(i, j int) bool {
		for k, s := range keys {
			if c := sortOrder(s.Values[pos[i]], s.Values[pos[j]], asc[k]); c != 0 {
				return c < 0
			}
		}
		return false
	})
	return f.take(pos), nil
}

func hasNull(keys []*Series, r int) bool {
	for _, s := range keys {
		if s.Values[r] == nil {
			return true
		}
	}
	return false
}

func sortOrder(a, b any, ascending bool) int {
	if a == nil || b == nil {
		return orderValues(a, b)
	}
	c := orderValues(a, b)
	if !ascending {
		c = -c
	}
	return c
}

func (f *Frame) resetIndex(drop bool) *Frame {
	index := make([]any, f.Len())
	for i := range index {
		index[i] = float64(i)
	}
	if drop {
		return &Frame{Columns: f.Columns, Rows: f.Rows, Index: index}
	}

	names := f.IndexNames
	if len(names) == 0 {
		names = []string{"index"}
		if f.columnIndex("index") >= 0 {
			names = []string{"level_0"}
		}
	}
	columns := append(append([]string{}, names...), f.Columns...)
	rows := make([][]any, f.Len())
	for r, row := range f.Rows {
		out := make([]any, 0, len(columns))
		out = append(out, indexParts(f.Index[r], len(names))...)
		rows[r] = append(out, row...)
	}
	return &Frame{Columns: columns, Rows: rows, Index: index}
}

func (f *Frame) subsetColumns(a *arguments, i int) ([]int, error) {
	names, ok, err := a.stringsArg(i, "subset")
	if err != nil {
		return nil, err
	}
	if !ok {
		return rangeInts(0, len(f.Columns)), nil
	}
	idx := make([]int, len(names))
	for j, n := range names {
		if idx[j] = f.columnIndex(n); idx[j] < 0 {
			return nil, keyError(n)
		}
	}
	return idx, nil
}

func (f *Frame) dropna(a *arguments) (*Frame, error) {
	cols, err := f.subsetColumns(a, -1)
	if err != nil {
		return nil, err
	}
	how := "any"
	if v, ok := a.kw["how"]; ok {
		if how, _ = v.(string); how != "any" && how != "all" {
			return nil, errors.Errorf("ValueError: invalid how option: %s", displayValue(v))
		}
	}

	var keep []int
	for r, row := range f.Rows {
		nulls := 0
		for _, c := range cols {
			if row[c] == nil {
				nulls++
			}
		}
		if (how == "any" && nulls == 0) || (how == "all" && nulls < len(cols)) {
			keep = append(keep, r)
		}
	}
	return f.take(keep), nil
}

func (f *Frame) dropDuplicates(a *arguments) (*Frame, error) {
	cols, err := f.subsetColumns(a, 0)
	if err != nil {
		return nil, err
	}
	keepMode := "first"
	if v, ok := a.kw["keep"]; ok {
		switch k := v.(type) {
		case string:
			keepMode = k
		case bool:
			if !k {
				keepMode = "none"
			}
		}
		if keepMode != "first" && keepMode != "last" && keepMode != "none" {
			return nil, errors.Errorf("ValueError: keep must be either \"first\", \"last\" or False")
		}
	}

	keys := make([]string, f.Len())
	counts := map[string]int{}
	for r, row := range f.Rows {
		parts := make([]any, len(cols))
		for j, c := range cols {
			parts[j] = row[c]
		}
		keys[r] = tupleKey(parts)
		counts[keys[r]]++
	}

	var keep []int
	seen := map[string]int{}
	for r, k := range keys {
		seen[k]++
		switch keepMode {
		case "first":
			if seen[k] == 1 {
				keep = append(keep, r)
			}
		case "last":
			if seen[k] == counts[k] {
				keep = append(keep, r)
			}
		default:
			if counts[k] == 1 {
				keep = append(keep, r)
			}
		}
	}
	return f.take(keep), nil
}

func (f *Frame) dropColumns(a *arguments) (*Frame, error) {
	v, ok := a.kw["columns"]
	if !ok {
		if v, ok = a.get(0, "labels"); !ok {
			return nil, typeErrorf("drop() needs 'columns' or 'labels'")
		}
		axis, hasAxis := a.kw["axis"]
		if !hasAxis || !(axis == any(float64(1)) || axis == any("columns")) {
			return nil, errors.New("only dropping columns is supported, pass columns= or axis=1")
		}
	}
	names, err := toStrings(v, "drop")
	if err != nil {
		return nil, err
	}
	drop := setOf(names...)
	for _, n := range names {
		if f.columnIndex(n) < 0 {
			return nil, errors.Errorf("KeyError: \"['%s'] not found in axis\"", n)
		}
	}
	var keep []string
	for _, c := range f.Columns {
		if !drop[c] {
			keep = append(keep, c)
		}
	}
	return f.selectColumns(keep)
}

// aggregate reduces every column to one value. The result is a row-like
// series keyed by column name. Numeric reductions skip text columns.
func (f *Frame) aggregate(name string, numericOnly bool) (*Series, error) {
	numeric := numericAggregates[name] || numericOnly
	var index, values []any
	for i, c := range f.Columns {
		col := f.columnValues(i)
		if numeric && !isNumericColumn(col) {
			continue
		}
		v, err := aggregate(name, col, 1)
		if err != nil {
			if name == "min" || name == "max" {
				continue
			}
			return nil, err
		}
		index = append(index, c)
		values = append(values, v)
	}
	return &Series{Index: index, Values: values, FromRow: true}, nil
}

func (f *Frame) columnValues(i int) []any {
	out := make([]any, len(f.Rows))
	for r, row := range f.Rows {
		out[r] = row[i]
	}
	return out
}

func isNumericColumn(values []any) bool {
	for _, v := range values {
		if v == nil {
			continue
		}
		if _, ok := asNumber(v); !ok {
			return false
		}
	}
	return true
}
