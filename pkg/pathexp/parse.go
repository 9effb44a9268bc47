package pathexp

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ExpressionError reports a malformed path expression.
type ExpressionError struct {
	Expr string
	Pos  int
	Msg  string
}

func (e *ExpressionError) Error() string {
	return fmt.Sprintf("invalid path expression %q at offset %d: %s", e.Expr, e.Pos, e.Msg)
}

// MustParse is like Parse but panics on error. Intended for literals.
func MustParse(expr string) Path {
	p, err := Parse(expr)
	if err != nil {
		panic(err)
	}
	return p
}

// Parse parses a path expression.
func Parse(expr string) (Path, error) {
	ps := &parser{expr: expr}
	return ps.parse()
}

type parser struct {
	expr string
	pos  int
}

func (ps *parser) fail(pos int, format string, args ...any) error {
	return &ExpressionError{Expr: ps.expr, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func (ps *parser) peek() (rune, int) {
	if ps.pos >= len(ps.expr) {
		return 0, 0
	}
	return utf8.DecodeRuneInString(ps.expr[ps.pos:])
}

func (ps *parser) parse() (Path, error) {
	if strings.TrimSpace(ps.expr) == "" {
		return nil, ps.fail(0, "empty expression")
	}
	if ps.expr[0] != '$' {
		return nil, ps.fail(0, "expression must start with '$'")
	}
	ps.pos = 1
	path := Root()

	for ps.pos < len(ps.expr) {
		switch ps.expr[ps.pos] {
		case '.':
			tok, err := ps.parseDotted()
			if err != nil {
				return nil, err
			}
			path = append(path, tok)
		case '[':
			tok, err := ps.parseBracket()
			if err != nil {
				return nil, err
			}
			path = append(path, tok)
		case ']':
			return nil, ps.fail(ps.pos, "unbalanced ']'")
		default:
			return nil, ps.fail(ps.pos, "expected '.' or '[', found %q", ps.expr[ps.pos])
		}
	}
	return path, nil
}

// parseDotted handles ".name" and ".*".
func (ps *parser) parseDotted() (Token, error) {
	start := ps.pos
	ps.pos++ // '.'
	r, size := ps.peek()
	switch {
	case size == 0:
		return Token{}, ps.fail(start, "empty segment after '.'")
	case r == '*':
		ps.pos += size
		return Token{Kind: TokenWildcard}, nil
	case !isIdentChar(r):
		return Token{}, ps.fail(ps.pos, "empty segment: expected field name, found %q", r)
	}

	nameStart := ps.pos
	for {
		r, size := ps.peek()
		if size == 0 || !isIdentChar(r) {
			break
		}
		ps.pos += size
	}
	return Token{Kind: TokenField, Name: ps.expr[nameStart:ps.pos]}, nil
}

// parseBracket handles "[0]", "[*]" and "['name']".
func (ps *parser) parseBracket() (Token, error) {
	start := ps.pos
	ps.pos++ // '['
	if ps.pos >= len(ps.expr) {
		return Token{}, ps.fail(start, "unbalanced '['")
	}

	var tok Token
	switch c := ps.expr[ps.pos]; {
	case c == ']':
		return Token{}, ps.fail(start, "empty brackets")
	case c == '*':
		ps.pos++
		tok = Token{Kind: TokenIndexWildcard}
	case c == '\'' || c == '"':
		name, err := ps.parseQuoted(c)
		if err != nil {
			return Token{}, err
		}
		tok = Token{Kind: TokenField, Name: name}
	case c == '-' || (c >= '0' && c <= '9'):
		numStart := ps.pos
		ps.pos++
		for ps.pos < len(ps.expr) && ps.expr[ps.pos] >= '0' && ps.expr[ps.pos] <= '9' {
			ps.pos++
		}
		idx, err := strconv.Atoi(ps.expr[numStart:ps.pos])
		if err != nil || idx < 0 {
			return Token{}, ps.fail(numStart, "invalid index %q", ps.expr[numStart:ps.pos])
		}
		tok = Token{Kind: TokenIndex, Index: idx}
	default:
		return Token{}, ps.fail(ps.pos, "expected index, '*' or quoted name inside brackets")
	}

	if ps.pos >= len(ps.expr) {
		return Token{}, ps.fail(start, "unbalanced '['")
	}
	if ps.expr[ps.pos] != ']' {
		return Token{}, ps.fail(ps.pos, "expected ']', found %q", ps.expr[ps.pos])
	}
	ps.pos++
	return tok, nil
}

func (ps *parser) parseQuoted(quote byte) (string, error) {
	start := ps.pos
	ps.pos++ // opening quote
	var b strings.Builder
	for ps.pos < len(ps.expr) {
		c := ps.expr[ps.pos]
		switch {
		case c == '\\' && ps.pos+1 < len(ps.expr):
			b.WriteByte(ps.expr[ps.pos+1])
			ps.pos += 2
		case c == quote:
			ps.pos++
			return b.String(), nil
		default:
			b.WriteByte(c)
			ps.pos++
		}
	}
	return "", ps.fail(start, "unterminated quoted name")
}
