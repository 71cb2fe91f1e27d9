package query

import (
	"strings"
	"unicode/utf8"

	"github.com/pkg/errors"
)

func setOf(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

func attributeError(x any, name string) error {
	return errors.Errorf("AttributeError: '%s' object has no attribute '%s'", typeName(x), name)
}

func getAttr(x any, name string) (any, error) {
	switch v := x.(type) {
	case *Frame:
		if frameMethods[name] {
			return &method{recv: v, name: name}, nil
		}
		switch name {
		case "shape":
			return []any{float64(v.Len()), float64(len(v.Columns))}, nil
		case "columns":
			return stringsToList(v.Columns), nil
		case "iloc":
			return ilocIndexer{x: v}, nil
		case "loc":
			return locIndexer{x: v}, nil
		case "empty":
			return v.Len() == 0 || len(v.Columns) == 0, nil
		case "size":
			return float64(v.Len() * len(v.Columns)), nil
		case "index":
			return append([]any{}, v.Index...), nil
		case "ndim":
			return float64(2), nil
		}
		if v.columnIndex(name) >= 0 {
			return v.column(name)
		}

	case *Series:
		if seriesMethods[name] {
			return &method{recv: v, name: name}, nil
		}
		switch name {
		case "str":
			return strAccessor{s: v}, nil
		case "iloc":
			return ilocIndexer{x: v}, nil
		case "loc":
			return locIndexer{x: v}, nil
		case "shape":
			return []any{float64(v.Len())}, nil
		case "size":
			return float64(v.Len()), nil
		case "empty":
			return v.Len() == 0, nil
		case "name":
			if v.Name == "" {
				return nil, nil
			}
			return v.Name, nil
		case "index":
			return append([]any{}, v.Index...), nil
		case "values":
			return append([]any{}, v.Values...), nil
		case "ndim":
			return float64(1), nil
		}
		if v.FromRow {
			if i := labelPosition(v.Index, name); i >= 0 {
				return v.Values[i], nil
			}
		}

	case strAccessor:
		if strMethods[name] {
			return &method{recv: v, name: name}, nil
		}

	case *groupBy:
		if groupMethods[name] {
			return &method{recv: v, name: name}, nil
		}
		if v.f.columnIndex(name) >= 0 {
			return v.selectItem(name)
		}

	case string:
		if stringMethods[name] {
			return &method{recv: v, name: name}, nil
		}

	case pandasModule:
		return nil, errors.Errorf("AttributeError: module 'pandas' has no attribute '%s'", name)
	}
	return nil, attributeError(x, name)
}

func callMethod(recv any, name string, a *arguments) (any, error) {
	switch r := recv.(type) {
	case *Frame:
		return frameMethod(r, name, a)
	case *Series:
		return seriesMethod(r, name, a)
	case strAccessor:
		return strMethod(r.s, name, a)
	case *groupBy:
		return r.call(name, a)
	case string:
		return stringMethod(r, name, a)
	}
	return nil, attributeError(recv, name)
}

func getItem(x, key any) (any, error) {
	switch v := x.(type) {
	case *Frame:
		return frameItem(v, key)
	case *Series:
		return seriesItem(v, key)
	case ilocIndexer:
		return ilocItem(v.x, key)
	case locIndexer:
		return locItem(v.x, key)
	case *groupBy:
		return v.selectItem(key)
	case []any:
		return listItem(v, key)
	case string:
		runes := []any{}
		for _, r := range v {
			runes = append(runes, string(r))
		}
		item, err := listItem(runes, key)
		if err != nil {
			return nil, err
		}
		if parts, ok := item.([]any); ok {
			var sb strings.Builder
			for _, p := range parts {
				sb.WriteString(p.(string))
			}
			return sb.String(), nil
		}
		return item, nil
	}
	return nil, typeErrorf("'%s' object is not subscriptable", typeName(x))
}

func frameItem(f *Frame, key any) (any, error) {
	switch k := key.(type) {
	case string:
		return f.column(k)
	case []any:
		names, err := toStrings(k, "__getitem__")
		if err != nil {
			return nil, err
		}
		return f.selectColumns(names)
	case *Series:
		pos, err := maskPositions(k, f.Len())
		if err != nil {
			return nil, err
		}
		return f.take(pos), nil
	case sliceValue:
		lo, hi := k.bounds(f.Len())
		return f.take(rangeInts(lo, hi)), nil
	}
	return nil, errors.Errorf("KeyError: %s", displayValue(key))
}

func seriesItem(s *Series, key any) (any, error) {
	switch k := key.(type) {
	case *Series:
		pos, err := maskPositions(k, s.Len())
		if err != nil {
			return nil, err
		}
		return s.take(pos), nil
	case sliceValue:
		lo, hi := k.bounds(s.Len())
		return s.take(rangeInts(lo, hi)), nil
	case []any:
		pos := make([]int, len(k))
		for i, label := range k {
			pos[i] = labelPosition(s.Index, label)
			if pos[i] < 0 {
				return nil, errors.Errorf("KeyError: %s", displayValue(label))
			}
		}
		return s.take(pos), nil
	}
	if i := labelPosition(s.Index, key); i >= 0 {
		return s.Values[i], nil
	}
	return nil, errors.Errorf("KeyError: %s", displayValue(key))
}

func ilocItem(x, key any) (any, error) {
	switch v := x.(type) {
	case *Frame:
		if t, ok := key.(tupleValue); ok {
			rows, rowSingle, err := positional(t[0], v.Len())
			if err != nil {
				return nil, err
			}
			cols, colSingle, err := positional(t[1], len(v.Columns))
			if err != nil {
				return nil, err
			}
			names := make([]string, len(cols))
			for i, c := range cols {
				names[i] = v.Columns[c]
			}
			return frameAxes(v, rows, rowSingle, names, colSingle)
		}
		rows, single, err := positional(key, v.Len())
		if err != nil {
			return nil, err
		}
		if single {
			return v.row(rows[0]), nil
		}
		return v.take(rows), nil

	case *Series:
		pos, single, err := positional(key, v.Len())
		if err != nil {
			return nil, err
		}
		if single {
			return v.Values[pos[0]], nil
		}
		return v.take(pos), nil
	}
	return nil, typeErrorf("'%s' object is not subscriptable", typeName(x))
}

func locItem(x, key any) (any, error) {
	switch v := x.(type) {
	case *Frame:
		rowKey, colKey := key, any(sliceValue{})
		if t, ok := key.(tupleValue); ok {
			rowKey, colKey = t[0], t[1]
		}
		rows, rowSingle, err := labelled(rowKey, v.Index)
		if err != nil {
			return nil, err
		}

		var names []string
		colSingle := false
		switch c := colKey.(type) {
		case string:
			if v.columnIndex(c) < 0 {
				return nil, keyError(c)
			}
			names, colSingle = []string{c}, true
		case []any:
			if names, err = toStrings(c, "loc"); err != nil {
				return nil, err
			}
			for _, n := range names {
				if v.columnIndex(n) < 0 {
					return nil, keyError(n)
				}
			}
		case sliceValue:
			if c.lo != nil || c.hi != nil {
				return nil, errors.New("label slicing of columns is not supported")
			}
			names = v.Columns
		default:
			return nil, errors.Errorf("KeyError: %s", displayValue(colKey))
		}
		return frameAxes(v, rows, rowSingle, names, colSingle)

	case *Series:
		pos, single, err := labelled(key, v.Index)
		if err != nil {
			return nil, err
		}
		if single {
			return v.Values[pos[0]], nil
		}
		return v.take(pos), nil
	}
	return nil, typeErrorf("'%s' object is not subscriptable", typeName(x))
}

// frameAxes selects rows and named columns, collapsing single axes the way
// pandas does: a cell, a row series, a column series or a frame.
func frameAxes(f *Frame, rows []int, rowSingle bool, names []string, colSingle bool) (any, error) {
	switch {
	case rowSingle && colSingle:
		return f.Rows[rows[0]][f.columnIndex(names[0])], nil
	case rowSingle:
		sub, err := f.take(rows).selectColumns(names)
		if err != nil {
			return nil, err
		}
		return sub.row(0), nil
	case colSingle:
		return f.take(rows).column(names[0])
	}
	return f.take(rows).selectColumns(names)
}

// positional resolves an integer, slice, integer list or boolean mask
// against n positions. single is true for a lone integer.
func positional(key any, n int) ([]int, bool, error) {
	switch k := key.(type) {
	case float64, bool:
		i, err := asInt(k, "positional indexer")
		if err != nil {
			return nil, false, err
		}
		if i < 0 {
			i += n
		}
		if i < 0 || i >= n {
			return nil, false, errors.New("IndexError: single positional indexer is out-of-bounds")
		}
		return []int{i}, true, nil
	case sliceValue:
		lo, hi := k.bounds(n)
		return rangeInts(lo, hi), false, nil
	case []any:
		out := make([]int, len(k))
		for j, e := range k {
			i, err := asInt(e, "positional indexer")
			if err != nil {
				return nil, false, err
			}
			if i < 0 {
				i += n
			}
			if i < 0 || i >= n {
				return nil, false, errors.New("IndexError: positional indexers are out-of-bounds")
			}
			out[j] = i
		}
		return out, false, nil
	case *Series:
		pos, err := maskPositions(k, n)
		return pos, false, err
	}
	return nil, false, typeErrorf("cannot index by location with %s", typeName(key))
}

// labelled resolves a label, label list, boolean mask or full slice
// against an index.
func labelled(key any, index []any) ([]int, bool, error) {
	switch k := key.(type) {
	case *Series:
		pos, err := maskPositions(k, len(index))
		return pos, false, err
	case sliceValue:
		if k.lo != nil || k.hi != nil {
			return nil, false, errors.New("label slicing of rows is not supported, use iloc")
		}
		return rangeInts(0, len(index)), false, nil
	case []any:
		out := make([]int, len(k))
		for j, label := range k {
			out[j] = labelPosition(index, label)
			if out[j] < 0 {
				return nil, false, errors.Errorf("KeyError: %s", displayValue(label))
			}
		}
		return out, false, nil
	}
	i := labelPosition(index, key)
	if i < 0 {
		return nil, false, errors.Errorf("KeyError: %s", displayValue(key))
	}
	return []int{i}, true, nil
}

func maskPositions(mask *Series, n int) ([]int, error) {
	if mask.Len() != n {
		return nil, errors.Errorf("IndexError: Boolean index has wrong length: %d instead of %d", mask.Len(), n)
	}
	var out []int
	for i, v := range mask.Values {
		switch b := v.(type) {
		case nil:
		case bool:
			if b {
				out = append(out, i)
			}
		default:
			return nil, errors.Errorf("KeyError: cannot index with a non-boolean Series (found %s)", typeName(v))
		}
	}
	return out, nil
}

func labelPosition(index []any, label any) int {
	for i, l := range index {
		if l == nil || label == nil {
			continue
		}
		if c, ok := compareScalars(l, label); ok && c == 0 {
			if _, isBool := label.(bool); isBool != isBoolValue(l) {
				continue
			}
			return i
		}
	}
	return -1
}

func isBoolValue(v any) bool {
	_, ok := v.(bool)
	return ok
}

func listItem(l []any, key any) (any, error) {
	switch k := key.(type) {
	case sliceValue:
		lo, hi := k.bounds(len(l))
		return append([]any{}, l[lo:hi]...), nil
	case float64, bool:
		i, err := asInt(k, "list indices")
		if err != nil {
			return nil, err
		}
		if i < 0 {
			i += len(l)
		}
		if i < 0 || i >= len(l) {
			return nil, errors.New("IndexError: list index out of range")
		}
		return l[i], nil
	}
	return nil, typeErrorf("list indices must be integers or slices, not %s", typeName(key))
}

// bounds clamps the slice to [0, n] with Python semantics.
func (s sliceValue) bounds(n int) (int, int) {
	clamp := func(p *int, def int) int {
		if p == nil {
			return def
		}
		i := *p
		if i < 0 {
			i += n
		}
		if i < 0 {
			return 0
		}
		if i > n {
			return n
		}
		return i
	}
	lo, hi := clamp(s.lo, 0), clamp(s.hi, n)
	if lo > hi {
		lo = hi
	}
	return lo, hi
}

func rangeInts(lo, hi int) []int {
	out := make([]int, 0, hi-lo)
	for i := lo; i < hi; i++ {
		out = append(out, i)
	}
	return out
}

func stringsToList(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}

func displayValue(v any) string {
	if s, ok := v.(string); ok {
		return "'" + s + "'"
	}
	if isScalar(v) {
		return pyString(v)
	}
	return typeName(v)
}

var stringMethods = setOf("lower", "upper", "strip", "lstrip", "rstrip", "startswith", "endswith", "replace")

func stringMethod(s, name string, a *arguments) (any, error) {
	switch name {
	case "lower", "upper", "strip", "lstrip", "rstrip":
		if err := a.accept(0); err != nil {
			return nil, err
		}
		return transformString(name, s), nil
	case "startswith", "endswith":
		if err := a.accept(1); err != nil {
			return nil, err
		}
		prefix, err := a.stringArg(0, "prefix")
		if err != nil {
			return nil, err
		}
		if name == "startswith" {
			return strings.HasPrefix(s, prefix), nil
		}
		return strings.HasSuffix(s, prefix), nil
	case "replace":
		if err := a.accept(2); err != nil {
			return nil, err
		}
		old, err := a.stringArg(0, "old")
		if err != nil {
			return nil, err
		}
		repl, err := a.stringArg(1, "new")
		if err != nil {
			return nil, err
		}
		return strings.ReplaceAll(s, old, repl), nil
	}
	return nil, attributeError(s, name)
}

func transformString(name, s string) any {
	switch name {
	case "lower":
		return strings.ToLower(s)
	case "upper":
		return strings.ToUpper(s)
	case "strip":
		return strings.TrimSpace(s)
	case "lstrip":
		return strings.TrimLeft(s, " \t\r\n")
	case "rstrip":
		return strings.TrimRight(s, " \t\r\n")
	case "len":
		return float64(utf8.RuneCountInString(s))
	}
	return s
}
