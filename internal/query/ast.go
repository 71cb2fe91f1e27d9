package query

// Node is an expression in a parsed program.
type Node interface {
	Line() int
}

type (
	Name struct {
		line int
		Name string
	}

	Literal struct {
		line  int
		Value any
	}

	ListLit struct {
		line  int
		Elems []Node
	}

	Unary struct {
		line int
		Op   string
		X    Node
	}

	Binary struct {
		line int
		Op   string
		L, R Node
	}

	// Attr is x.name.
	Attr struct {
		line int
		X    Node
		Name string
	}

	// Index is x[key].
	Index struct {
		line int
		X    Node
		Key  Node
	}

	// Slice is lo:hi inside a subscript; either bound may be nil.
	Slice struct {
		line   int
		Lo, Hi Node
	}

	// Tuple only appears as a two-axis subscript, e.g. df.loc[mask, "col"].
	Tuple struct {
		line  int
		Elems []Node
	}

	Call struct {
		line   int
		Fn     Node
		Args   []Node
		Kwargs []Kwarg
	}
)

type Kwarg struct {
	Name  string
	Value Node
}

func (n *Name) Line() int    { return n.line }
func (n *Literal) Line() int { return n.line }
func (n *ListLit) Line() int { return n.line }
func (n *Unary) Line() int   { return n.line }
func (n *Binary) Line() int  { return n.line }
func (n *Attr) Line() int    { return n.line }
func (n *Index) Line() int   { return n.line }
func (n *Slice) Line() int   { return n.line }
func (n *Tuple) Line() int   { return n.line }
func (n *Call) Line() int    { return n.line }

// Stmt is either an assignment to a plain name or a bare expression.
type Stmt struct {
	Target string
	Value  Node
}

// Program is a parsed statement sequence.
type Program struct {
	Stmts []Stmt
}

// Assigns reports whether the program binds any name.
func (p *Program) Assigns() bool {
	for _, s := range p.Stmts {
		if s.Target != "" {
			return true
		}
	}
	return false
}
