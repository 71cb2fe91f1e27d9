package query

import "sort"

// arguments holds evaluated call arguments.
type arguments struct {
	fn  string
	pos []any
	kw  map[string]any
}

// accept fails when more than maxPos positional arguments are given or a
// keyword outside names is used.
func (a *arguments) accept(maxPos int, names ...string) error {
	if len(a.pos) > maxPos {
		return typeErrorf("%s() takes at most %d positional arguments but %d were given", a.fn, maxPos, len(a.pos))
	}
	allowed := make(map[string]bool, len(names))
	for _, n := range names {
		allowed[n] = true
	}
	keys := make([]string, 0, len(a.kw))
	for k := range a.kw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !allowed[k] {
			return typeErrorf("%s() got an unexpected keyword argument '%s'", a.fn, k)
		}
	}
	return nil
}

// get returns positional argument i, or the keyword argument name.
func (a *arguments) get(i int, name string) (any, bool) {
	if i >= 0 && i < len(a.pos) {
		return a.pos[i], true
	}
	v, ok := a.kw[name]
	return v, ok
}

func (a *arguments) require(i int, name string) (any, error) {
	v, ok := a.get(i, name)
	if !ok {
		return nil, typeErrorf("%s() missing required argument: '%s'", a.fn, name)
	}
	return v, nil
}

func (a *arguments) intArg(i int, name string, def int) (int, error) {
	v, ok := a.get(i, name)
	if !ok || v == nil {
		return def, nil
	}
	return asInt(v, name)
}

func (a *arguments) boolArg(i int, name string, def bool) (bool, error) {
	v, ok := a.get(i, name)
	if !ok || v == nil {
		return def, nil
	}
	b, ok := v.(bool)
	if !ok {
		return truthy(v)
	}
	return b, nil
}

func (a *arguments) stringArg(i int, name string) (string, error) {
	v, err := a.require(i, name)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", typeErrorf("%s() argument '%s' must be str, not %s", a.fn, name, typeName(v))
	}
	return s, nil
}

// stringsArg reads a column name or a list of column names. ok is false
// when the argument is absent or None.
func (a *arguments) stringsArg(i int, name string) ([]string, bool, error) {
	v, ok := a.get(i, name)
	if !ok || v == nil {
		return nil, false, nil
	}
	out, err := toStrings(v, a.fn)
	return out, err == nil, err
}

func toStrings(v any, fn string) ([]string, error) {
	switch x := v.(type) {
	case string:
		return []string{x}, nil
	case []any:
		out := make([]string, len(x))
		for i, e := range x {
			s, ok := e.(string)
			if !ok {
				return nil, typeErrorf("%s() expects column names, got %s", fn, typeName(e))
			}
			out[i] = s
		}
		return out, nil
	}
	return nil, typeErrorf("%s() expects a column name or a list of names, got %s", fn, typeName(v))
}
