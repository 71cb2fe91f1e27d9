package query

import (
	"sort"

	"github.com/pkg/errors"
)

type groupBy struct {
	f        *Frame
	keys     []string
	selected []string
	// single is set by df.groupby(k)["col"]: results are a Series.
	single  bool
	asIndex bool
}

var groupMethods = setOf(
	"sum", "mean", "median", "min", "max", "count", "size", "nunique",
	"std", "first", "last", "agg", "aggregate",
)

type group struct {
	key  []any
	rows []int
}

func (g *groupBy) selectItem(key any) (any, error) {
	var names []string
	single := false
	switch k := key.(type) {
	case string:
		names, single = []string{k}, true
	case []any:
		var err error
		if names, err = toStrings(k, "groupby"); err != nil {
			return nil, err
		}
	default:
		return nil, typeErrorf("cannot select %s from a groupby", typeName(key))
	}
	for _, n := range names {
		if g.f.columnIndex(n) < 0 {
			return nil, errors.Errorf("KeyError: 'Column not found: %s'", n)
		}
	}
	return &groupBy{f: g.f, keys: g.keys, selected: names, single: single, asIndex: g.asIndex}, nil
}

// groups partitions rows by key, dropping rows with a null key, and returns
// the groups in sorted key order.
func (g *groupBy) groups() []*group {
	keyCols := make([]int, len(g.keys))
	for i, k := range g.keys {
		keyCols[i] = g.f.columnIndex(k)
	}

	byKey := map[string]*group{}
	var out []*group
rows:
	for r, row := range g.f.Rows {
		key := make([]any, len(keyCols))
		for i, c := range keyCols {
			if row[c] == nil {
				continue rows
			}
			key[i] = row[c]
		}
		k := tupleKey(key)
		grp, ok := byKey[k]
		if !ok {
			grp = &group{key: key}
			byKey[k] = grp
			out = append(out, grp)
		}
		grp.rows = append(grp.rows, r)
	}

	sort.SliceStable(out, func(i, j int) bool {
		for k := range g.keys {
			if c := orderValues(out[i].key[k], out[j].key[k]); c != 0 {
				return c < 0
			}
		}
		return false
	})
	return out
}

func (g *groupBy) label(grp *group) any {
	if len(grp.key) == 1 {
		return grp.key[0]
	}
	return append([]any{}, grp.key...)
}

// valueColumns lists the aggregated columns: the selection, or every
// non-key column (numeric ones only for numeric reductions).
func (g *groupBy) valueColumns(name string) []string {
	if g.selected != nil {
		return g.selected
	}
	isKey := setOf(g.keys...)
	var cols []string
	for i, c := range g.f.Columns {
		if isKey[c] {
			continue
		}
		if numericAggregates[name] && !isNumericColumn(g.f.columnValues(i)) {
			continue
		}
		cols = append(cols, c)
	}
	return cols
}

func (g *groupBy) call(name string, a *arguments) (any, error) {
	if name == "agg" || name == "aggregate" {
		if err := a.accept(1, "func"); err != nil {
			return nil, err
		}
		fn, err := a.stringArg(0, "func")
		if err != nil {
			return nil, err
		}
		if !aggregateNames[fn] && fn != "size" {
			return nil, errors.Errorf("AttributeError: '%s' is not a supported aggregation", fn)
		}
		name = fn
	} else if err := a.accept(0, "numeric_only", "skipna", "ddof"); err != nil {
		return nil, err
	}
	ddof, err := a.intArg(-1, "ddof", 1)
	if err != nil {
		return nil, err
	}

	groups := g.groups()
	labels := make([]any, len(groups))
	for i, grp := range groups {
		labels[i] = g.label(grp)
	}

	if name == "size" {
		sizes := make([]any, len(groups))
		for i, grp := range groups {
			sizes[i] = float64(len(grp.rows))
		}
		if g.asIndex {
			return &Series{Name: "size", IndexNames: g.keys, Index: labels, Values: sizes}, nil
		}
		return g.frame([]string{"size"}, groups, labels, [][]any{sizes}), nil
	}

	cols := g.valueColumns(name)
	results := make([][]any, len(cols))
	for c, col := range cols {
		idx := g.f.columnIndex(col)
		results[c] = make([]any, len(groups))
		for i, grp := range groups {
			values := make([]any, len(grp.rows))
			for j, r := range grp.rows {
				values[j] = g.f.Rows[r][idx]
			}
			v, err := aggregate(name, values, ddof)
			if err != nil {
				return nil, err
			}
			results[c][i] = v
		}
	}

	if g.single && g.asIndex {
		return &Series{Name: cols[0], IndexNames: g.keys, Index: labels, Values: results[0]}, nil
	}
	return g.frame(cols, groups, labels, results), nil
}

// frame assembles per-column results. With as_index the keys stay in the
// index; otherwise they become leading columns.
func (g *groupBy) frame(cols []string, groups []*group, labels []any, results [][]any) *Frame {
	rows := make([][]any, len(groups))
	for i, grp := range groups {
		row := make([]any, 0, len(g.keys)+len(cols))
		if !g.asIndex {
			row = append(row, grp.key...)
		}
		for c := range cols {
			row = append(row, results[c][i])
		}
		rows[i] = row
	}
	if g.asIndex {
		return &Frame{Columns: cols, Rows: rows, Index: labels, IndexNames: g.keys}
	}
	index := make([]any, len(groups))
	for i := range index {
		index[i] = float64(i)
	}
	columns := append(append([]string{}, g.keys...), cols...)
	return &Frame{Columns: columns, Rows: rows, Index: index}
}
