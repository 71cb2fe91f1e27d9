package query

import (
	"math"
	"sort"
	"unicode/utf8"

	"github.com/pkg/errors"
)

var builtins = map[string]*builtin{}

func init() {
	for _, b := range []*builtin{
		{name: "len", fn: builtinLen},
		{name: "round", fn: builtinRound},
		{name: "abs", fn: builtinAbs},
		{name: "min", fn: builtinExtreme},
		{name: "max", fn: builtinExtreme},
		{name: "sum", fn: builtinSum},
		{name: "sorted", fn: builtinSorted},
		{name: "list", fn: builtinList},
		{name: "str", fn: builtinConvert},
		{name: "int", fn: builtinConvert},
		{name: "float", fn: builtinConvert},
		{name: "bool", fn: builtinConvert},
	} {
		builtins[b.name] = b
	}
}

func builtinLen(a *arguments) (any, error) {
	if err := a.accept(1); err != nil {
		return nil, err
	}
	x, err := a.require(0, "obj")
	if err != nil {
		return nil, err
	}
	switch v := x.(type) {
	case *Frame:
		return float64(v.Len()), nil
	case *Series:
		return float64(v.Len()), nil
	case []any:
		return float64(len(v)), nil
	case string:
		return float64(utf8.RuneCountInString(v)), nil
	case *groupBy:
		return float64(len(v.groups())), nil
	}
	return nil, typeErrorf("object of type '%s' has no len()", typeName(x))
}

func builtinRound(a *arguments) (any, error) {
	if err := a.accept(2, "ndigits"); err != nil {
		return nil, err
	}
	x, err := a.require(0, "number")
	if err != nil {
		return nil, err
	}
	places, err := a.intArg(1, "ndigits", 0)
	if err != nil {
		return nil, err
	}
	if s, ok := x.(*Series); ok {
		return seriesMethod(s, "round", &arguments{fn: "round", pos: []any{float64(places)}})
	}
	f, ok := asNumber(x)
	if !ok {
		return nil, typeErrorf("type %s doesn't define __round__ method", typeName(x))
	}
	return roundHalfEven(f, places), nil
}

func builtinAbs(a *arguments) (any, error) {
	if err := a.accept(1); err != nil {
		return nil, err
	}
	x, err := a.require(0, "x")
	if err != nil {
		return nil, err
	}
	if s, ok := x.(*Series); ok {
		return s.mapNumbers(math.Abs)
	}
	f, ok := asNumber(x)
	if !ok {
		return nil, typeErrorf("bad operand type for abs(): '%s'", typeName(x))
	}
	return math.Abs(f), nil
}

// iterable returns the items of a list, series or string.
func iterable(x any) ([]any, error) {
	switch v := x.(type) {
	case []any:
		return v, nil
	case *Series:
		return v.Values, nil
	case *Frame:
		return stringsToList(v.Columns), nil
	case string:
		out := []any{}
		for _, r := range v {
			out = append(out, string(r))
		}
		return out, nil
	}
	return nil, typeErrorf("'%s' object is not iterable", typeName(x))
}

func builtinExtreme(a *arguments) (any, error) {
	if err := a.accept(math.MaxInt32); err != nil {
		return nil, err
	}
	source := a.pos
	if len(source) == 1 {
		var err error
		if source, err = iterable(source[0]); err != nil {
			return nil, err
		}
	}
	var items []any
	for _, v := range source {
		if v == nil {
			continue
		}
		if !isScalar(v) {
			return nil, typeErrorf("'<' not supported for %s", typeName(v))
		}
		items = append(items, v)
	}
	if len(items) == 0 {
		return nil, errors.Errorf("ValueError: %s() arg is an empty sequence", a.fn)
	}
	return extreme(a.fn, items)
}

func builtinSum(a *arguments) (any, error) {
	if err := a.accept(2, "start"); err != nil {
		return nil, err
	}
	x, err := a.require(0, "iterable")
	if err != nil {
		return nil, err
	}
	items, err := iterable(x)
	if err != nil {
		return nil, err
	}
	start, ok := a.get(1, "start")
	if !ok {
		start = float64(0)
	}
	nums := make([]float64, 0, len(items)+1)
	for _, v := range append([]any{start}, items...) {
		if _, isSeries := x.(*Series); isSeries && v == nil {
			continue
		}
		f, ok := asNumber(v)
		if !ok {
			return nil, typeErrorf("unsupported operand type(s) for +: 'int' and '%s'", typeName(v))
		}
		nums = append(nums, f)
	}
	return exactSum(nums), nil
}

func builtinSorted(a *arguments) (any, error) {
	if err := a.accept(1, "reverse"); err != nil {
		return nil, err
	}
	x, err := a.require(0, "iterable")
	if err != nil {
		return nil, err
	}
	reverse, err := a.boolArg(-1, "reverse", false)
	if err != nil {
		return nil, err
	}
	items, err := iterable(x)
	if err != nil {
		return nil, err
	}
	out := append([]any{}, items...)
	for i := 1; i < len(out); i++ {
		if out[i] == nil || out[0] == nil {
			return nil, typeErrorf("'<' not supported between instances of '%s' and '%s'", typeName(out[i]), typeName(out[0]))
		}
		if _, ok := compareScalars(out[i], out[0]); !ok {
			return nil, typeErrorf("'<' not supported between instances of '%s' and '%s'", typeName(out[i]), typeName(out[0]))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if reverse {
			return orderValues(out[i], out[j]) > 0
		}
		return orderValues(out[i], out[j]) < 0
	})
	return out, nil
}

func builtinList(a *arguments) (any, error) {
	if err := a.accept(1); err != nil {
		return nil, err
	}
	x, ok := a.get(0, "iterable")
	if !ok {
		return []any{}, nil
	}
	items, err := iterable(x)
	if err != nil {
		return nil, err
	}
	return append([]any{}, items...), nil
}

// builtinConvert implements str(), int(), float() and bool(). The same
// values double as dtype markers for astype.
func builtinConvert(a *arguments) (any, error) {
	if err := a.accept(1); err != nil {
		return nil, err
	}
	x, ok := a.get(0, "x")
	if !ok {
		switch a.fn {
		case "str":
			return "", nil
		case "bool":
			return false, nil
		}
		return float64(0), nil
	}
	if !isScalar(x) {
		if a.fn == "str" || a.fn == "bool" {
			if _, isList := x.([]any); isList {
				if a.fn == "bool" {
					return truthy(x)
				}
				return pyString(x), nil
			}
		}
		return nil, typeErrorf("%s() argument must be a string or a number, not '%s'", a.fn, typeName(x))
	}
	if x == nil && a.fn != "str" && a.fn != "bool" {
		return nil, typeErrorf("%s() argument must be a string or a number, not 'NoneType'", a.fn)
	}
	return convert(a.fn, x)
}
