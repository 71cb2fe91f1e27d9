package query

import (
	"fmt"
	"strings"
)

const (
	maxSourceLen = 8192
	maxDepth     = 64
)

// Statement keywords that have no meaning in the language. They are
// rejected up front with a specific message.
var forbiddenKeywords = map[string]string{
	"import":   "import statements are not allowed",
	"from":     "import statements are not allowed",
	"def":      "function definitions are not allowed",
	"class":    "class definitions are not allowed",
	"lambda":   "lambda expressions are not allowed",
	"for":      "loops are not allowed",
	"while":    "loops are not allowed",
	"with":     "with statements are not allowed",
	"try":      "try statements are not allowed",
	"except":   "try statements are not allowed",
	"raise":    "raise statements are not allowed",
	"global":   "global statements are not allowed",
	"nonlocal": "nonlocal statements are not allowed",
	"del":      "del statements are not allowed",
	"return":   "return statements are not allowed",
	"yield":    "yield is not allowed",
	"async":    "async code is not allowed",
	"await":    "async code is not allowed",
	"assert":   "assert statements are not allowed",
	"if":       "conditional statements are not supported",
	"else":     "conditional statements are not supported",
	"elif":     "conditional statements are not supported",
	"print":    "print is not allowed",
	"exec":     "exec is not allowed",
	"eval":     "eval is not allowed",
	"is":       "identity comparisons are not supported",
	"in":       "membership tests are not supported, use .isin()",
}

var comparisonOps = map[string]bool{
	"==": true, "!=": true, "<": true, "<=": true, ">": true, ">=": true,
}

type parser struct {
	toks  []token
	pos   int
	depth int
}

// Parse turns source text into a program.
func Parse(src string) (*Program, error) {
	if len(src) > maxSourceLen {
		return nil, &SyntaxError{Line: 1, Msg: fmt.Sprintf("program longer than %d bytes", maxSourceLen)}
	}
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}

	p := &parser{toks: toks}
	prog := &Program{}
	for {
		p.skipNewlines()
		if p.peek().kind == tokEOF {
			break
		}
		stmt, err := p.statement()
		if err != nil {
			return nil, err
		}
		prog.Stmts = append(prog.Stmts, stmt)
		if t := p.peek(); t.kind != tokNewline && t.kind != tokEOF {
			return nil, p.errorf("unexpected %s after statement", t)
		}
	}
	if len(prog.Stmts) == 0 {
		return nil, &SyntaxError{Line: 1, Msg: "empty program"}
	}
	return prog, nil
}

func (p *parser) peek() token {
	return p.toks[p.pos]
}

func (p *parser) peekAt(n int) token {
	if p.pos+n >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[p.pos+n]
}

func (p *parser) advance() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) isOp(text string) bool {
	t := p.peek()
	return t.kind == tokOp && t.text == text
}

func (p *parser) isKeyword(word string) bool {
	t := p.peek()
	return t.kind == tokIdent && t.text == word
}

func (p *parser) expectOp(text string) error {
	if !p.isOp(text) {
		return p.errorf("expected %q, found %s", text, p.peek())
	}
	p.advance()
	return nil
}

func (p *parser) skipNewlines() {
	for p.peek().kind == tokNewline {
		p.advance()
	}
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Line: p.peek().line, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) statement() (Stmt, error) {
	t := p.peek()
	if t.kind == tokIdent {
		if msg, ok := forbiddenKeywords[t.text]; ok {
			return Stmt{}, p.errorf("%s", msg)
		}
		next := p.peekAt(1)
		if next.kind == tokOp && next.text == "=" {
			if err := checkName(t.text); err != nil {
				return Stmt{}, p.errorf("%s", err)
			}
			p.advance()
			p.advance()
			value, err := p.expr()
			if err != nil {
				return Stmt{}, err
			}
			return Stmt{Target: t.text, Value: value}, nil
		}
	}

	value, err := p.expr()
	if err != nil {
		return Stmt{}, err
	}
	if p.isOp("=") {
		return Stmt{}, p.errorf("only assignments to plain names are supported")
	}
	return Stmt{Value: value}, nil
}

func checkName(name string) error {
	if strings.HasPrefix(name, "_") {
		return fmt.Errorf("names starting with an underscore are not allowed: %q", name)
	}
	switch name {
	case "True", "False", "None":
		return fmt.Errorf("cannot assign to %s", name)
	}
	return nil
}

func (p *parser) enter() error {
	p.depth++
	if p.depth > maxDepth {
		return p.errorf("expression nested too deeply")
	}
	return nil
}

func (p *parser) leave() {
	p.depth--
}

func (p *parser) expr() (Node, error) {
	if err := p.enter(); err != nil {
		return nil, err
	}
	defer p.leave()
	return p.or()
}

func (p *parser) or() (Node, error) {
	left, err := p.and()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("or") {
		line := p.advance().line
		right, err := p.and()
		if err != nil {
			return nil, err
		}
		left = &Binary{line: line, Op: "or", L: left, R: right}
	}
	return left, nil
}

func (p *parser) and() (Node, error) {
	left, err := p.not()
	if err != nil {
		return nil, err
	}
	for p.isKeyword("and") {
		line := p.advance().line
		right, err := p.not()
		if err != nil {
			return nil, err
		}
		left = &Binary{line: line, Op: "and", L: left, R: right}
	}
	return left, nil
}

func (p *parser) not() (Node, error) {
	if p.isKeyword("not") {
		if err := p.enter(); err != nil {
			return nil, err
		}
		defer p.leave()
		line := p.advance().line
		x, err := p.not()
		if err != nil {
			return nil, err
		}
		return &Unary{line: line, Op: "not", X: x}, nil
	}
	return p.comparison()
}

func (p *parser) comparison() (Node, error) {
	left, err := p.bitOr()
	if err != nil {
		return nil, err
	}
	t := p.peek()
	if t.kind == tokOp && comparisonOps[t.text] {
		p.advance()
		right, err := p.bitOr()
		if err != nil {
			return nil, err
		}
		if n := p.peek(); n.kind == tokOp && comparisonOps[n.text] {
			return nil, p.errorf("chained comparisons are not supported")
		}
		return &Binary{line: t.line, Op: t.text, L: left, R: right}, nil
	}
	if t.kind == tokIdent && (t.text == "in" || t.text == "is") {
		return nil, p.errorf("%s", forbiddenKeywords[t.text])
	}
	return left, nil
}

func (p *parser) bitOr() (Node, error) {
	left, err := p.bitAnd()
	if err != nil {
		return nil, err
	}
	for p.isOp("|") {
		line := p.advance().line
		right, err := p.bitAnd()
		if err != nil {
			return nil, err
		}
		left = &Binary{line: line, Op: "|", L: left, R: right}
	}
	return left, nil
}

func (p *parser) bitAnd() (Node, error) {
	left, err := p.additive()
	if err != nil {
		return nil, err
	}
	for p.isOp("&") {
		line := p.advance().line
		right, err := p.additive()
		if err != nil {
			return nil, err
		}
		left = &Binary{line: line, Op: "&", L: left, R: right}
	}
	return left, nil
}

func (p *parser) additive() (Node, error) {
	left, err := p.multiplicative()
	if err != nil {
		return nil, err
	}
	for p.isOp("+") || p.isOp("-") {
		t := p.advance()
		right, err := p.multiplicative()
		if err != nil {
			return nil, err
		}
		left = &Binary{line: t.line, Op: t.text, L: left, R: right}
	}
	return left, nil
}

func (p *parser) multiplicative() (Node, error) {
	left, err := p.unary()
	if err != nil {
		return nil, err
	}
	for p.isOp("*") || p.isOp("/") || p.isOp("//") || p.isOp("%") {
		t := p.advance()
		right, err := p.unary()
		if err != nil {
			return nil, err
		}
		left = &Binary{line: t.line, Op: t.text, L: left, R: right}
	}
	return left, nil
}

func (p *parser) unary() (Node, error) {
	if p.isOp("-") || p.isOp("+") || p.isOp("~") {
		if err := p.enter(); err != nil {
			return nil, err
		}
		defer p.leave()
		t := p.advance()
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &Unary{line: t.line, Op: t.text, X: x}, nil
	}
	return p.power()
}

func (p *parser) power() (Node, error) {
	base, err := p.postfix()
	if err != nil {
		return nil, err
	}
	if p.isOp("**") {
		line := p.advance().line
		exp, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &Binary{line: line, Op: "**", L: base, R: exp}, nil
	}
	return base, nil
}

func (p *parser) postfix() (Node, error) {
	x, err := p.primary()
	if err != nil {
		return nil, err
	}
	for {
		t := p.peek()
		switch {
		case t.kind == tokOp && t.text == ".":
			p.advance()
			name := p.peek()
			if name.kind != tokIdent {
				return nil, p.errorf("expected attribute name, found %s", name)
			}
			if strings.HasPrefix(name.text, "_") {
				return nil, p.errorf("access to attribute %q is not allowed", name.text)
			}
			p.advance()
			x = &Attr{line: t.line, X: x, Name: name.text}
		case t.kind == tokOp && t.text == "[":
			p.advance()
			key, err := p.subscript()
			if err != nil {
				return nil, err
			}
			if err := p.expectOp("]"); err != nil {
				return nil, err
			}
			x = &Index{line: t.line, X: x, Key: key}
		case t.kind == tokOp && t.text == "(":
			p.advance()
			call, err := p.arguments(x, t.line)
			if err != nil {
				return nil, err
			}
			x = call
		default:
			return x, nil
		}
	}
}

func (p *parser) subscript() (Node, error) {
	line := p.peek().line
	first, err := p.subscriptElem()
	if err != nil {
		return nil, err
	}
	if !p.isOp(",") {
		return first, nil
	}
	p.advance()
	second, err := p.subscriptElem()
	if err != nil {
		return nil, err
	}
	if p.isOp(",") {
		return nil, p.errorf("at most two subscript axes are supported")
	}
	return &Tuple{line: line, Elems: []Node{first, second}}, nil
}

func (p *parser) subscriptElem() (Node, error) {
	line := p.peek().line
	var lo Node
	if !p.isOp(":") {
		x, err := p.expr()
		if err != nil {
			return nil, err
		}
		if !p.isOp(":") {
			return x, nil
		}
		lo = x
	}
	p.advance()
	slice := &Slice{line: line, Lo: lo}
	if !p.isOp("]") && !p.isOp(",") {
		hi, err := p.expr()
		if err != nil {
			return nil, err
		}
		slice.Hi = hi
	}
	if p.isOp(":") {
		return nil, p.errorf("slice steps are not supported")
	}
	return slice, nil
}

func (p *parser) arguments(fn Node, line int) (Node, error) {
	call := &Call{line: line, Fn: fn}
	for !p.isOp(")") {
		if p.isOp("*") || p.isOp("**") {
			return nil, p.errorf("argument unpacking is not supported")
		}
		t := p.peek()
		next := p.peekAt(1)
		if t.kind == tokIdent && next.kind == tokOp && next.text == "=" {
			p.advance()
			p.advance()
			value, err := p.expr()
			if err != nil {
				return nil, err
			}
			call.Kwargs = append(call.Kwargs, Kwarg{Name: t.text, Value: value})
		} else {
			if len(call.Kwargs) > 0 {
				return nil, p.errorf("positional argument follows keyword argument")
			}
			arg, err := p.expr()
			if err != nil {
				return nil, err
			}
			call.Args = append(call.Args, arg)
		}
		if !p.isOp(",") {
			break
		}
		p.advance()
	}
	if err := p.expectOp(")"); err != nil {
		return nil, err
	}
	return call, nil
}

func (p *parser) primary() (Node, error) {
	t := p.peek()
	switch t.kind {
	case tokNumber:
		p.advance()
		return &Literal{line: t.line, Value: t.num}, nil
	case tokString:
		p.advance()
		s := t.str
		// Adjacent literals concatenate.
		for p.peek().kind == tokString {
			s += p.advance().str
		}
		return &Literal{line: t.line, Value: s}, nil
	case tokIdent:
		if msg, ok := forbiddenKeywords[t.text]; ok {
			return nil, p.errorf("%s", msg)
		}
		p.advance()
		switch t.text {
		case "True":
			return &Literal{line: t.line, Value: true}, nil
		case "False":
			return &Literal{line: t.line, Value: false}, nil
		case "None":
			return &Literal{line: t.line, Value: nil}, nil
		}
		if strings.HasPrefix(t.text, "__") {
			return nil, p.errorf("name %q is not allowed", t.text)
		}
		return &Name{line: t.line, Name: t.text}, nil
	case tokOp:
		switch t.text {
		case "(":
			p.advance()
			x, err := p.expr()
			if err != nil {
				return nil, err
			}
			if p.isOp(",") {
				return nil, p.errorf("tuples are not supported, use a list")
			}
			if err := p.expectOp(")"); err != nil {
				return nil, err
			}
			return x, nil
		case "[":
			return p.list()
		case "{":
			return nil, p.errorf("dict and set literals are not supported")
		}
	}
	return nil, p.errorf("unexpected %s", t)
}

func (p *parser) list() (Node, error) {
	line := p.advance().line
	list := &ListLit{line: line}
	for !p.isOp("]") {
		elem, err := p.expr()
		if err != nil {
			return nil, err
		}
		if p.isKeyword("for") {
			return nil, p.errorf("comprehensions are not supported")
		}
		list.Elems = append(list.Elems, elem)
		if !p.isOp(",") {
			break
		}
		p.advance()
	}
	if err := p.expectOp("]"); err != nil {
		return nil, err
	}
	return list, nil
}
