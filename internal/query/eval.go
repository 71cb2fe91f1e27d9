package query

import (
	"fmt"
	"math"

	"github.com/pkg/errors"

	"github.com/poornimagithubrit/Agentic-RAG/internal/models"
)

const (
	// DatasetName is the name the dataset is bound to.
	DatasetName = "df"
	// ResultName is the name a statement sequence must bind.
	ResultName = "result"
)

// ErrNoResult is returned when a program assigns names but never binds
// the result name.
var ErrNoResult = errors.New("code did not assign a value to 'result'")

// RuntimeError is an evaluation failure at a given line.
type RuntimeError struct {
	Line int
	Err  error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// Run parses src and evaluates it against t.
func Run(src string, t *models.Table) (any, error) {
	prog, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return Execute(prog, t)
}

// Execute evaluates a parsed program. The only names in scope are the
// dataset, the pandas marker, the builtins and names the program assigns.
// A panic during evaluation is returned as an error.
func Execute(prog *Program, t *models.Table) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			v, err = nil, errors.Errorf("evaluation failed: %v", r)
		}
	}()

	in := &interpreter{vars: map[string]any{
		DatasetName: NewFrame(t),
		"pd":        pandasModule{},
	}}

	var last any
	for _, stmt := range prog.Stmts {
		val, err := in.eval(stmt.Value)
		if err != nil {
			return nil, &RuntimeError{Line: stmt.Value.Line(), Err: err}
		}
		if stmt.Target != "" {
			in.vars[stmt.Target] = val
			continue
		}
		last = val
	}

	if prog.Assigns() {
		result, ok := in.vars[ResultName]
		if !ok {
			return nil, ErrNoResult
		}
		last = result
	}
	if err := checkResult(last); err != nil {
		return nil, err
	}
	return last, nil
}

func checkResult(v any) error {
	switch v.(type) {
	case nil, string, bool, float64, []any, *Frame, *Series:
		return nil
	}
	return errors.Errorf("result has unsupported type %s", typeName(v))
}

type interpreter struct {
	vars map[string]any
}

func (in *interpreter) eval(n Node) (any, error) {
	switch n := n.(type) {
	case *Literal:
		return n.Value, nil
	case *Name:
		return in.lookup(n.Name)
	case *ListLit:
		out := make([]any, len(n.Elems))
		for i, e := range n.Elems {
			v, err := in.eval(e)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case *Unary:
		x, err := in.eval(n.X)
		if err != nil {
			return nil, err
		}
		return unaryOp(n.Op, x)
	case *Binary:
		return in.binary(n)
	case *Attr:
		x, err := in.eval(n.X)
		if err != nil {
			return nil, err
		}
		return getAttr(x, n.Name)
	case *Index:
		x, err := in.eval(n.X)
		if err != nil {
			return nil, err
		}
		key, err := in.eval(n.Key)
		if err != nil {
			return nil, err
		}
		return getItem(x, key)
	case *Slice:
		lo, err := in.sliceBound(n.Lo)
		if err != nil {
			return nil, err
		}
		hi, err := in.sliceBound(n.Hi)
		if err != nil {
			return nil, err
		}
		return sliceValue{lo: lo, hi: hi}, nil
	case *Tuple:
		out := make(tupleValue, len(n.Elems))
		for i, e := range n.Elems {
			v, err := in.eval(e)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case *Call:
		return in.call(n)
	}
	return nil, errors.Errorf("unsupported expression %T", n)
}

func (in *interpreter) lookup(name string) (any, error) {
	if v, ok := in.vars[name]; ok {
		return v, nil
	}
	if b, ok := builtins[name]; ok {
		return b, nil
	}
	return nil, errors.Errorf("NameError: name '%s' is not defined", name)
}

func (in *interpreter) sliceBound(n Node) (*int, error) {
	if n == nil {
		return nil, nil
	}
	v, err := in.eval(n)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	i, err := asInt(v, "slice index")
	if err != nil {
		return nil, err
	}
	return &i, nil
}

func (in *interpreter) binary(n *Binary) (any, error) {
	left, err := in.eval(n.L)
	if err != nil {
		return nil, err
	}

	// and/or short-circuit like Python and return an operand.
	switch n.Op {
	case "and", "or":
		ok, err := truthy(left)
		if err != nil {
			return nil, err
		}
		if (n.Op == "and" && !ok) || (n.Op == "or" && ok) {
			return left, nil
		}
		right, err := in.eval(n.R)
		if err != nil {
			return nil, err
		}
		if _, err := truthy(right); err != nil {
			return nil, err
		}
		return right, nil
	}

	right, err := in.eval(n.R)
	if err != nil {
		return nil, err
	}
	return binaryOp(n.Op, left, right)
}

func (in *interpreter) call(n *Call) (any, error) {
	fn, err := in.eval(n.Fn)
	if err != nil {
		return nil, err
	}

	args := &arguments{kw: map[string]any{}}
	for _, a := range n.Args {
		v, err := in.eval(a)
		if err != nil {
			return nil, err
		}
		args.pos = append(args.pos, v)
	}
	for _, kw := range n.Kwargs {
		if _, dup := args.kw[kw.Name]; dup {
			return nil, errors.Errorf("SyntaxError: keyword argument repeated: %s", kw.Name)
		}
		v, err := in.eval(kw.Value)
		if err != nil {
			return nil, err
		}
		args.kw[kw.Name] = v
	}

	switch f := fn.(type) {
	case *method:
		args.fn = f.name
		return callMethod(f.recv, f.name, args)
	case *builtin:
		args.fn = f.name
		return f.fn(args)
	}
	return nil, typeErrorf("'%s' object is not callable", typeName(fn))
}

func unaryOp(op string, x any) (any, error) {
	if s, ok := x.(*Series); ok {
		if op == "not" {
			_, err := truthy(s)
			return nil, err
		}
		out := make([]any, len(s.Values))
		for i, v := range s.Values {
			if v == nil {
				continue
			}
			r, err := unaryOp(op, v)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return s.withValues(out), nil
	}

	switch op {
	case "not":
		ok, err := truthy(x)
		if err != nil {
			return nil, err
		}
		return !ok, nil
	case "~":
		switch v := x.(type) {
		case bool:
			return !v, nil
		case float64:
			if v == math.Trunc(v) {
				return float64(^int64(v)), nil
			}
		}
	case "-":
		if f, ok := asNumber(x); ok {
			return -f, nil
		}
	case "+":
		if f, ok := asNumber(x); ok {
			return f, nil
		}
	}
	return nil, typeErrorf("bad operand type for unary %s: '%s'", op, typeName(x))
}

func binaryOp(op string, left, right any) (any, error) {
	for _, v := range []any{left, right} {
		if _, ok := v.(*Series); !ok && !isScalar(v) {
			if op == "==" || op == "!=" {
				return op == "!=", nil
			}
			return nil, typeErrorf("unsupported operand type(s) for %s: '%s' and '%s'", op, typeName(left), typeName(right))
		}
	}

	ls, lok := left.(*Series)
	rs, rok := right.(*Series)
	elementwise := lok || rok

	apply := func(a, b any) (any, error) {
		switch op {
		case "==", "!=", "<", "<=", ">", ">=":
			return compareOp(op, a, b, elementwise)
		case "&", "|":
			return logicalOp(op, a, b, elementwise)
		}
		return arith(op, a, b, elementwise)
	}

	switch {
	case lok && rok:
		if len(ls.Values) != len(rs.Values) {
			return nil, errors.New("ValueError: Can only compare identically-labeled Series objects")
		}
		out := make([]any, len(ls.Values))
		for i := range ls.Values {
			v, err := apply(ls.Values[i], rs.Values[i])
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return ls.withValues(out), nil
	case lok:
		out := make([]any, len(ls.Values))
		for i, a := range ls.Values {
			v, err := apply(a, right)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return ls.withValues(out), nil
	case rok:
		out := make([]any, len(rs.Values))
		for i, b := range rs.Values {
			v, err := apply(left, b)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return rs.withValues(out), nil
	}
	return apply(left, right)
}

// compareOp compares two scalars. Inside a series a null never compares
// equal to anything, matching NaN.
func compareOp(op string, a, b any, elementwise bool) (any, error) {
	if a == nil || b == nil {
		if !elementwise && a == nil && b == nil {
			return op == "==" || op == "<=" || op == ">=", nil
		}
		return op == "!=", nil
	}

	c, ok := compareScalars(a, b)
	if !ok {
		switch op {
		case "==":
			return false, nil
		case "!=":
			return true, nil
		}
		return nil, typeErrorf("'%s' not supported between instances of '%s' and '%s'", op, typeName(a), typeName(b))
	}
	switch op {
	case "==":
		return c == 0, nil
	case "!=":
		return c != 0, nil
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	}
	return c >= 0, nil
}

func logicalOp(op string, a, b any, elementwise bool) (any, error) {
	if elementwise {
		// Nulls in a mask count as false.
		if a == nil {
			a = false
		}
		if b == nil {
			b = false
		}
	}
	x, xok := a.(bool)
	y, yok := b.(bool)
	if xok && yok {
		if op == "&" {
			return x && y, nil
		}
		return x || y, nil
	}

	xi, err1 := asInt(a, "operand")
	yi, err2 := asInt(b, "operand")
	if err1 != nil || err2 != nil {
		return nil, typeErrorf("unsupported operand type(s) for %s: '%s' and '%s'", op, typeName(a), typeName(b))
	}
	if op == "&" {
		return float64(xi & yi), nil
	}
	return float64(xi | yi), nil
}

// arith applies an arithmetic operator. Inside a series a null propagates
// and division by zero yields null instead of failing.
func arith(op string, a, b any, elementwise bool) (any, error) {
	if a == nil || b == nil {
		if elementwise {
			return nil, nil
		}
		return nil, typeErrorf("unsupported operand type(s) for %s: '%s' and '%s'", op, typeName(a), typeName(b))
	}
	if op == "+" {
		if x, ok := a.(string); ok {
			if y, ok := b.(string); ok {
				return x + y, nil
			}
		}
	}

	x, xok := asNumber(a)
	y, yok := asNumber(b)
	if !xok || !yok {
		return nil, typeErrorf("unsupported operand type(s) for %s: '%s' and '%s'", op, typeName(a), typeName(b))
	}

	switch op {
	case "+":
		return checked(x+y, elementwise)
	case "-":
		return checked(x-y, elementwise)
	case "*":
		return checked(x*y, elementwise)
	case "**":
		return checked(math.Pow(x, y), elementwise)
	}

	if y == 0 {
		if elementwise {
			return nil, nil
		}
		return nil, errors.New("ZeroDivisionError: division by zero")
	}
	switch op {
	case "/":
		return x / y, nil
	case "//":
		return math.Floor(x / y), nil
	case "%":
		m := math.Mod(x, y)
		if m != 0 && (m < 0) != (y < 0) {
			m += y
		}
		return m, nil
	}
	return nil, errors.Errorf("unsupported operator %s", op)
}

// checked rejects a non-finite scalar result. Inside a series it becomes
// null instead.
func checked(f float64, elementwise bool) (any, error) {
	switch {
	case elementwise:
		return finite(f), nil
	case math.IsInf(f, 0):
		return nil, errors.New("OverflowError: result is not finite")
	case math.IsNaN(f):
		return nil, errors.New("ValueError: math domain error")
	}
	return f, nil
}

// finite maps NaN and infinities to null.
func finite(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}
