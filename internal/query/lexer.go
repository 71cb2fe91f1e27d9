// Package query implements the closed expression language that generated
// query code is executed in. Source text is lexed and parsed into an AST and
// evaluated against an in-memory table; the only reachable names are the
// dataset, previously assigned variables and a fixed set of builtins, and
// the only reachable operations are filter, select, aggregate, sort and
// limit in their pandas spelling.
package query

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokNewline
	tokIdent
	tokNumber
	tokString
	tokOp
)

type token struct {
	kind tokenKind
	text string
	str  string
	num  float64
	line int
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokNewline:
		return "end of line"
	case tokString:
		return strconv.Quote(t.str)
	}
	return fmt.Sprintf("%q", t.text)
}

// SyntaxError reports a lexing or parsing failure.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at line %d: %s", e.Line, e.Msg)
}

var twoCharOps = []string{"==", "!=", "<=", ">=", "**", "//"}

const singleCharOps = "+-*/%&|~<>=()[]{},.:"

type lexer struct {
	src    string
	pos    int
	line   int
	depth  int
	tokens []token
}

func lex(src string) ([]token, error) {
	l := &lexer{src: src, line: 1}
	for l.pos < len(l.src) {
		if err := l.next(); err != nil {
			return nil, err
		}
	}
	l.emit(token{kind: tokNewline})
	l.emit(token{kind: tokEOF})
	return l.tokens, nil
}

func (l *lexer) emit(t token) {
	t.line = l.line
	l.tokens = append(l.tokens, t)
}

func (l *lexer) errorf(format string, args ...any) error {
	return &SyntaxError{Line: l.line, Msg: fmt.Sprintf(format, args...)}
}

func (l *lexer) next() error {
	c := l.src[l.pos]
	switch {
	case c == '#':
		for l.pos < len(l.src) && l.src[l.pos] != '\n' {
			l.pos++
		}
		return nil
	case c == '\\' && l.pos+1 < len(l.src) && l.src[l.pos+1] == '\n':
		l.pos += 2
		l.line++
		return nil
	case c == '\n':
		l.pos++
		if l.depth == 0 {
			l.emit(token{kind: tokNewline})
		}
		l.line++
		return nil
	case c == ' ' || c == '\t' || c == '\r':
		l.pos++
		return nil
	case c == ';':
		l.pos++
		l.emit(token{kind: tokNewline})
		return nil
	case c >= '0' && c <= '9', c == '.' && l.pos+1 < len(l.src) && isDigit(l.src[l.pos+1]):
		return l.number()
	case c == '"' || c == '\'':
		return l.string(false)
	case c == '_' || c < utf8.RuneSelf && unicode.IsLetter(rune(c)):
		return l.ident()
	}

	for _, op := range twoCharOps {
		if strings.HasPrefix(l.src[l.pos:], op) {
			l.pos += 2
			l.emit(token{kind: tokOp, text: op})
			return nil
		}
	}
	if strings.IndexByte(singleCharOps, c) >= 0 {
		l.pos++
		switch c {
		case '(', '[', '{':
			l.depth++
		case ')', ']', '}':
			if l.depth > 0 {
				l.depth--
			}
		}
		l.emit(token{kind: tokOp, text: string(c)})
		return nil
	}

	r, _ := utf8.DecodeRuneInString(l.src[l.pos:])
	return l.errorf("unexpected character %q", r)
}

func (l *lexer) number() error {
	start := l.pos
	for l.pos < len(l.src) && (isDigit(l.src[l.pos]) || l.src[l.pos] == '_') {
		l.pos++
	}
	if l.pos < len(l.src) && l.src[l.pos] == '.' {
		l.pos++
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
	}
	if l.pos < len(l.src) && (l.src[l.pos] == 'e' || l.src[l.pos] == 'E') {
		l.pos++
		if l.pos < len(l.src) && (l.src[l.pos] == '+' || l.src[l.pos] == '-') {
			l.pos++
		}
		for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
			l.pos++
		}
	}
	text := l.src[start:l.pos]
	f, err := strconv.ParseFloat(strings.ReplaceAll(text, "_", ""), 64)
	if err != nil {
		return l.errorf("invalid number %q", text)
	}
	l.emit(token{kind: tokNumber, text: text, num: f})
	return nil
}

func (l *lexer) ident() error {
	start := l.pos
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == '_' || isDigit(c) || c < utf8.RuneSelf && unicode.IsLetter(rune(c)) {
			l.pos++
			continue
		}
		break
	}
	text := l.src[start:l.pos]

	// String prefixes: r'' is accepted, f'' and b'' are not.
	if l.pos < len(l.src) && (l.src[l.pos] == '"' || l.src[l.pos] == '\'') {
		switch strings.ToLower(text) {
		case "r":
			return l.string(true)
		case "u":
			return l.string(false)
		case "f", "rf", "fr":
			return l.errorf("f-strings are not supported")
		default:
			return l.errorf("string prefix %q is not supported", text)
		}
	}
	l.emit(token{kind: tokIdent, text: text})
	return nil
}

func (l *lexer) string(raw bool) error {
	quote := l.src[l.pos]
	if strings.HasPrefix(l.src[l.pos:], strings.Repeat(string(quote), 3)) {
		return l.errorf("triple-quoted strings are not supported")
	}
	l.pos++

	var sb strings.Builder
	for {
		if l.pos >= len(l.src) || l.src[l.pos] == '\n' {
			return l.errorf("unterminated string literal")
		}
		c := l.src[l.pos]
		if c == quote {
			l.pos++
			break
		}
		if c == '\\' && !raw && l.pos+1 < len(l.src) {
			l.pos++
			switch e := l.src[l.pos]; e {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case 'r':
				sb.WriteByte('\r')
			case '\\', '\'', '"':
				sb.WriteByte(e)
			default:
				sb.WriteByte('\\')
				sb.WriteByte(e)
			}
			l.pos++
			continue
		}
		sb.WriteByte(c)
		l.pos++
	}
	l.emit(token{kind: tokString, text: sb.String(), str: sb.String()})
	return nil
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
