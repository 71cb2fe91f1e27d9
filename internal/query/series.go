package query

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/poornimagithubrit/Agentic-RAG/internal/models"
)

var seriesMethods = setOf(
	"sum", "mean", "median", "min", "max", "std", "count", "nunique",
	"unique", "tolist", "to_list", "value_counts", "head", "tail",
	"sort_values", "sort_index", "nlargest", "nsmallest", "reset_index",
	"isin", "isna", "isnull", "notna", "notnull", "between", "astype",
	"abs", "round", "fillna", "dropna", "copy", "idxmax", "idxmin",
	"any", "all", "to_frame", "drop_duplicates",
)

func seriesMethod(s *Series, name string, a *arguments) (any, error) {
	switch name {
	case "sum", "mean", "median", "min", "max", "count", "nunique":
		if err := a.accept(0, "skipna", "numeric_only"); err != nil {
			return nil, err
		}
		return aggregate(name, s.Values, 1)

	case "std":
		if err := a.accept(0, "skipna", "numeric_only", "ddof"); err != nil {
			return nil, err
		}
		ddof, err := a.intArg(-1, "ddof", 1)
		if err != nil {
			return nil, err
		}
		return aggregate(name, s.Values, ddof)

	case "unique":
		if err := a.accept(0); err != nil {
			return nil, err
		}
		seen := map[string]bool{}
		out := []any{}
		for _, v := range s.Values {
			if k := valueKey(v); !seen[k] {
				seen[k] = true
				out = append(out, v)
			}
		}
		return out, nil

	case "tolist", "to_list":
		if err := a.accept(0); err != nil {
			return nil, err
		}
		return append([]any{}, s.Values...), nil

	case "value_counts":
		if err := a.accept(0, "normalize", "sort", "ascending", "dropna"); err != nil {
			return nil, err
		}
		return s.valueCounts(a)

	case "head", "tail":
		if err := a.accept(1, "n"); err != nil {
			return nil, err
		}
		n, err := a.intArg(0, "n", 5)
		if err != nil {
			return nil, err
		}
		return s.take(headTail(s.Len(), n, name == "tail")), nil

	case "sort_values", "sort_index":
		if err := a.accept(0, "ascending", "na_position", "kind", "ignore_index"); err != nil {
			return nil, err
		}
		asc, err := a.boolArg(-1, "ascending", true)
		if err != nil {
			return nil, err
		}
		keys := s.Values
		if name == "sort_index" {
			keys = s.Index
		}
		return s.sorted(keys, asc, false), nil

	case "nlargest", "nsmallest":
		if err := a.accept(1, "n", "keep"); err != nil {
			return nil, err
		}
		n, err := a.intArg(0, "n", 5)
		if err != nil {
			return nil, err
		}
		sorted := s.sorted(s.Values, name == "nsmallest", true)
		return sorted.take(headTail(sorted.Len(), n, false)), nil

	case "reset_index":
		if err := a.accept(0, "drop", "name"); err != nil {
			return nil, err
		}
		drop, err := a.boolArg(-1, "drop", false)
		if err != nil {
			return nil, err
		}
		return s.resetIndex(drop), nil

	case "isin":
		if err := a.accept(1, "values"); err != nil {
			return nil, err
		}
		v, err := a.require(0, "values")
		if err != nil {
			return nil, err
		}
		return s.isin(v)

	case "isna", "isnull", "notna", "notnull":
		if err := a.accept(0); err != nil {
			return nil, err
		}
		want := name == "isna" || name == "isnull"
		out := make([]any, s.Len())
		for i, v := range s.Values {
			out[i] = (v == nil) == want
		}
		return s.withValues(out), nil

	case "between":
		if err := a.accept(3, "left", "right", "inclusive"); err != nil {
			return nil, err
		}
		return s.between(a)

	case "astype":
		if err := a.accept(1, "dtype", "errors"); err != nil {
			return nil, err
		}
		t, err := a.require(0, "dtype")
		if err != nil {
			return nil, err
		}
		return s.astype(t)

	case "abs":
		if err := a.accept(0); err != nil {
			return nil, err
		}
		return s.mapNumbers(math.Abs)

	case "round":
		if err := a.accept(1, "decimals"); err != nil {
			return nil, err
		}
		places, err := a.intArg(0, "decimals", 0)
		if err != nil {
			return nil, err
		}
		out := make([]any, s.Len())
		for i, v := range s.Values {
			if v == nil {
				continue
			}
			f, ok := asNumber(v)
			if !ok {
				return nil, typeErrorf("cannot round %s", typeName(v))
			}
			out[i] = roundHalfEven(f, places)
		}
		return s.withValues(out), nil

	case "fillna":
		if err := a.accept(1, "value"); err != nil {
			return nil, err
		}
		fill, err := a.require(0, "value")
		if err != nil {
			return nil, err
		}
		if !isScalar(fill) {
			return nil, typeErrorf("fillna() value must be a scalar, not %s", typeName(fill))
		}
		out := make([]any, s.Len())
		for i, v := range s.Values {
			if v == nil {
				v = fill
			}
			out[i] = v
		}
		return s.withValues(out), nil

	case "dropna":
		if err := a.accept(0); err != nil {
			return nil, err
		}
		var keep []int
		for i, v := range s.Values {
			if v != nil {
				keep = append(keep, i)
			}
		}
		return s.take(keep), nil

	case "drop_duplicates":
		if err := a.accept(0, "keep"); err != nil {
			return nil, err
		}
		seen := map[string]bool{}
		var keep []int
		for i, v := range s.Values {
			if k := valueKey(v); !seen[k] {
				seen[k] = true
				keep = append(keep, i)
			}
		}
		return s.take(keep), nil

	case "copy":
		if err := a.accept(1, "deep"); err != nil {
			return nil, err
		}
		c := *s
		return &c, nil

	case "idxmax", "idxmin":
		if err := a.accept(0, "skipna"); err != nil {
			return nil, err
		}
		return s.argExtreme(name)

	case "any", "all":
		if err := a.accept(0, "skipna"); err != nil {
			return nil, err
		}
		for _, v := range s.Values {
			if v == nil {
				continue
			}
			b, err := truthy(v)
			if err != nil {
				return nil, err
			}
			if name == "any" && b {
				return true, nil
			}
			if name == "all" && !b {
				return false, nil
			}
		}
		return name == "all", nil

	case "to_frame":
		if err := a.accept(1, "name"); err != nil {
			return nil, err
		}
		col := s.Name
		if v, ok := a.get(0, "name"); ok {
			if col, ok = v.(string); !ok {
				return nil, typeErrorf("to_frame() name must be str")
			}
		}
		if col == "" {
			col = "value"
		}
		rows := make([][]any, s.Len())
		for i, v := range s.Values {
			rows[i] = []any{v}
		}
		return &Frame{Columns: []string{col}, Rows: rows, Index: s.Index, IndexNames: s.IndexNames}, nil
	}
	return nil, errors.Errorf("AttributeError: 'Series' object has no supported method '%s'", name)
}

// sorted orders entries by keys (the values or the index), nulls last.
func (s *Series) sorted(keys []any, ascending, dropNulls bool) *Series {
	pos := make([]int, 0, s.Len())
	for i := range s.Values {
		if dropNulls && keys[i] == nil {
			continue
		}
		pos = append(pos, i)
	}
	sort.SliceStable(pos, func(i, j int) bool {
		return sortOrder(keys[pos[i]], keys[pos[j]], ascending) < 0
	})
	return s.take(pos)
}

func (s *Series) resetIndex(drop bool) any {
	if drop {
		index := make([]any, s.Len())
		for i := range index {
			index[i] = float64(i)
		}
		return &Series{Name: s.Name, Index: index, Values: s.Values}
	}

	names := s.IndexNames
	if len(names) == 0 {
		names = []string{"index"}
	}
	name := s.Name
	if name == "" {
		name = "value"
	}
	f := &Frame{Columns: []string{name}, Index: s.Index, IndexNames: names}
	f.Rows = make([][]any, s.Len())
	for i, v := range s.Values {
		f.Rows[i] = []any{v}
	}
	return f.resetIndex(false)
}

func (s *Series) valueCounts(a *arguments) (*Series, error) {
	normalize, err := a.boolArg(-1, "normalize", false)
	if err != nil {
		return nil, err
	}
	ascending, err := a.boolArg(-1, "ascending", false)
	if err != nil {
		return nil, err
	}
	dropna, err := a.boolArg(-1, "dropna", true)
	if err != nil {
		return nil, err
	}

	var labels []any
	counts := map[string]int{}
	total := 0
	for _, v := range s.Values {
		if v == nil && dropna {
			continue
		}
		k := valueKey(v)
		if counts[k] == 0 {
			labels = append(labels, v)
		}
		counts[k]++
		total++
	}

	sort.SliceStable(labels, func(i, j int) bool {
		ci, cj := counts[valueKey(labels[i])], counts[valueKey(labels[j])]
		if ascending {
			return ci < cj
		}
		return ci > cj
	})

	values := make([]any, len(labels))
	for i, l := range labels {
		n := float64(counts[valueKey(l)])
		if normalize {
			n /= float64(total)
		}
		values[i] = n
	}
	name := "count"
	if normalize {
		name = "proportion"
	}
	indexName := s.Name
	if indexName == "" {
		indexName = "index"
	}
	return &Series{Name: name, IndexNames: []string{indexName}, Index: labels, Values: values}, nil
}

func (s *Series) isin(v any) (*Series, error) {
	var candidates []any
	switch x := v.(type) {
	case []any:
		candidates = x
	case *Series:
		candidates = x.Values
	default:
		return nil, typeErrorf("only list-like objects are allowed to be passed to isin(), you passed a '%s'", typeName(v))
	}
	set := map[string]bool{}
	for _, c := range candidates {
		if c != nil {
			set[matchKey(c)] = true
		}
	}
	out := make([]any, s.Len())
	for i, e := range s.Values {
		out[i] = e != nil && set[matchKey(e)]
	}
	return s.withValues(out), nil
}

// matchKey is valueKey with bools folded into numbers, so 1 matches True.
func matchKey(v any) string {
	if f, ok := asNumber(v); ok {
		return valueKey(f)
	}
	return valueKey(v)
}

func (s *Series) between(a *arguments) (*Series, error) {
	left, err := a.require(0, "left")
	if err != nil {
		return nil, err
	}
	right, err := a.require(1, "right")
	if err != nil {
		return nil, err
	}
	inclusive := "both"
	if v, ok := a.get(2, "inclusive"); ok {
		inclusive, _ = v.(string)
	}
	loOp, hiOp := ">=", "<="
	switch inclusive {
	case "both":
	case "neither":
		loOp, hiOp = ">", "<"
	case "left":
		hiOp = "<"
	case "right":
		loOp = ">"
	default:
		return nil, errors.New("ValueError: Inclusive has to be either string of 'both','left', 'right', or 'neither'.")
	}

	out := make([]any, s.Len())
	for i, v := range s.Values {
		lo, err := compareOp(loOp, v, left, true)
		if err != nil {
			return nil, err
		}
		hi, err := compareOp(hiOp, v, right, true)
		if err != nil {
			return nil, err
		}
		out[i] = lo.(bool) && hi.(bool)
	}
	return s.withValues(out), nil
}

func (s *Series) astype(t any) (*Series, error) {
	target := ""
	switch x := t.(type) {
	case *builtin:
		target = x.name
	case string:
		target = x
	}
	switch target {
	case "str", "string", "object":
		target = "str"
	case "int", "int64", "int32", "Int64":
		target = "int"
	case "float", "float64", "float32":
		target = "float"
	case "bool", "boolean":
		target = "bool"
	default:
		return nil, typeErrorf("data type %s not understood", displayValue(t))
	}

	out := make([]any, s.Len())
	for i, v := range s.Values {
		if v == nil {
			continue
		}
		c, err := convert(target, v)
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return s.withValues(out), nil
}

// convert implements the str/int/float/bool conversions shared by astype
// and the builtins.
func convert(target string, v any) (any, error) {
	switch target {
	case "str":
		return pyString(v), nil
	case "bool":
		return truthy(v)
	}

	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case bool:
		f, _ = asNumber(x)
	case string:
		text := strings.TrimSpace(x)
		var err error
		if target == "int" {
			var n int64
			n, err = strconv.ParseInt(text, 10, 64)
			f = float64(n)
		} else {
			f, err = strconv.ParseFloat(text, 64)
		}
		if err != nil {
			return nil, errors.Errorf("ValueError: invalid literal for %s(): %s", target, displayValue(v))
		}
	default:
		return nil, typeErrorf("%s() argument must be a string or a number, not '%s'", target, typeName(v))
	}
	if target == "int" {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, errors.New("ValueError: cannot convert float NaN or infinity to integer")
		}
		return math.Trunc(f), nil
	}
	return finite(f), nil
}

func (s *Series) mapNumbers(fn func(float64) float64) (*Series, error) {
	out := make([]any, s.Len())
	for i, v := range s.Values {
		if v == nil {
			continue
		}
		f, ok := asNumber(v)
		if !ok {
			return nil, typeErrorf("bad operand type: '%s'", typeName(v))
		}
		out[i] = fn(f)
	}
	return s.withValues(out), nil
}

func (s *Series) argExtreme(name string) (any, error) {
	best := -1
	for i, v := range s.Values {
		if v == nil {
			continue
		}
		if best < 0 {
			best = i
			continue
		}
		c, ok := compareScalars(v, s.Values[best])
		if !ok {
			return nil, typeErrorf("'%s' not supported between instances of '%s' and '%s'", "<", typeName(v), typeName(s.Values[best]))
		}
		if (name == "idxmax" && c > 0) || (name == "idxmin" && c < 0) {
			best = i
		}
	}
	if best < 0 {
		return nil, errors.Errorf("ValueError: attempt to get %s of an empty sequence", strings.TrimPrefix(name, "idx"))
	}
	return s.Index[best], nil
}

var strMethods = setOf(
	"contains", "lower", "upper", "strip", "lstrip", "rstrip",
	"startswith", "endswith", "len", "replace",
)

func strMethod(s *Series, name string, a *arguments) (any, error) {
	out := make([]any, s.Len())
	each := func(fn func(string) (any, error)) (any, error) {
		for i, v := range s.Values {
			str, ok := v.(string)
			if !ok {
				continue
			}
			r, err := fn(str)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return s.withValues(out), nil
	}

	switch name {
	case "lower", "upper", "strip", "lstrip", "rstrip", "len":
		if err := a.accept(0); err != nil {
			return nil, err
		}
		return each(func(str string) (any, error) { return transformString(name, str), nil })

	case "contains":
		if err := a.accept(2, "pat", "case", "flags", "na", "regex"); err != nil {
			return nil, err
		}
		pat, err := a.stringArg(0, "pat")
		if err != nil {
			return nil, err
		}
		caseSensitive, err := a.boolArg(1, "case", true)
		if err != nil {
			return nil, err
		}
		useRegex, err := a.boolArg(-1, "regex", true)
		if err != nil {
			return nil, err
		}
		match, err := matcher(pat, caseSensitive, useRegex)
		if err != nil {
			return nil, err
		}
		if na, ok := a.kw["na"]; ok {
			for i, v := range s.Values {
				if _, isStr := v.(string); !isStr {
					out[i] = na
				}
			}
		}
		return each(func(str string) (any, error) { return match(str), nil })

	case "startswith", "endswith":
		if err := a.accept(1, "pat", "na"); err != nil {
			return nil, err
		}
		pat, err := a.stringArg(0, "pat")
		if err != nil {
			return nil, err
		}
		return each(func(str string) (any, error) {
			if name == "startswith" {
				return strings.HasPrefix(str, pat), nil
			}
			return strings.HasSuffix(str, pat), nil
		})

	case "replace":
		if err := a.accept(2, "pat", "repl", "regex", "case"); err != nil {
			return nil, err
		}
		pat, err := a.stringArg(0, "pat")
		if err != nil {
			return nil, err
		}
		repl, err := a.stringArg(1, "repl")
		if err != nil {
			return nil, err
		}
		useRegex, err := a.boolArg(-1, "regex", false)
		if err != nil {
			return nil, err
		}
		if !useRegex {
			return each(func(str string) (any, error) { return strings.ReplaceAll(str, pat, repl), nil })
		}
		re, err := regexp.Compile(pat)
		if err != nil {
			return nil, errors.Errorf("re.error: %v", err)
		}
		return each(func(str string) (any, error) { return re.ReplaceAllString(str, repl), nil })
	}
	return nil, errors.Errorf("AttributeError: 'StringMethods' object has no supported method '%s'", name)
}

func matcher(pat string, caseSensitive, useRegex bool) (func(string) bool, error) {
	if !useRegex {
		if caseSensitive {
			return func(s string) bool { return strings.Contains(s, pat) }, nil
		}
		lower := strings.ToLower(pat)
		return func(s string) bool { return strings.Contains(strings.ToLower(s), lower) }, nil
	}
	expr := pat
	if !caseSensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, errors.Errorf("re.error: %v", err)
	}
	return re.MatchString, nil
}

// pyString renders a scalar the way str() does.
func pyString(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < 1e16 {
			return strconv.FormatFloat(x, 'f', -1, 64)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			if s, ok := e.(string); ok {
				parts[i] = "'" + s + "'"
			} else {
				parts[i] = pyString(e)
			}
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	return models.Stringify(v)
}
