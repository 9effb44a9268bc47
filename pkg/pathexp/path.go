package pathexp

import (
	"strconv"
	"strings"
	"unicode"
)

// TokenKind identifies a single path segment.
type TokenKind int

// Token kinds.
const (
	TokenRoot TokenKind = iota
	TokenField
	TokenIndex
	TokenWildcard
	TokenIndexWildcard
)

// String returns the token kind name.
func (k TokenKind) String() string {
	switch k {
	case TokenRoot:
		return "root"
	case TokenField:
		return "field"
	case TokenIndex:
		return "index"
	case TokenWildcard:
		return "wildcard"
	case TokenIndexWildcard:
		return "index-wildcard"
	default:
		return "unknown"
	}
}

// Token is one segment of a path.
type Token struct {
	Kind  TokenKind
	Name  string
	Index int
}

// Path is an ordered sequence of tokens. Parsed paths always start with a
// TokenRoot.
type Path []Token

// Root returns the path "$".
func Root() Path {
	return Path{{Kind: TokenRoot}}
}

// Field returns the path "$.name", quoting the name if needed.
func Field(name string) Path {
	return Root().Child(name)
}

// Child returns a copy of p extended with a field segment.
func (p Path) Child(name string) Path {
	return p.with(Token{Kind: TokenField, Name: name})
}

// Index returns a copy of p extended with an index segment.
func (p Path) Index(i int) Path {
	return p.with(Token{Kind: TokenIndex, Index: i})
}

// Wildcard returns a copy of p extended with a "*" segment.
func (p Path) Wildcard() Path {
	return p.with(Token{Kind: TokenWildcard})
}

func (p Path) with(t Token) Path {
	out := make(Path, len(p), len(p)+1)
	copy(out, p)
	return append(out, t)
}

// Parent returns p without its last segment. The root is its own parent.
func (p Path) Parent() Path {
	if len(p) <= 1 {
		return p
	}
	return p[:len(p)-1:len(p)-1]
}

// Last returns the final segment of p.
func (p Path) Last() Token {
	if len(p) == 0 {
		return Token{Kind: TokenRoot}
	}
	return p[len(p)-1]
}

// IsConcrete reports whether p contains no wildcards.
func (p Path) IsConcrete() bool {
	for _, t := range p {
		if t.Kind == TokenWildcard || t.Kind == TokenIndexWildcard {
			return false
		}
	}
	return true
}

// Equal reports whether two paths have identical segments.
func (p Path) Equal(o Path) bool {
	if len(p) != len(o) {
		return false
	}
	for i := range p {
		if p[i] != o[i] {
			return false
		}
	}
	return true
}

// String renders the canonical form of the path. Parse(p.String()) yields a
// path equal to p.
func (p Path) String() string {
	if len(p) == 0 {
		return "$"
	}
	var b strings.Builder
	if p[0].Kind != TokenRoot {
		b.WriteByte('$')
	}
	for _, t := range p {
		switch t.Kind {
		case TokenRoot:
			b.WriteByte('$')
		case TokenField:
			if isIdentifier(t.Name) {
				b.WriteByte('.')
				b.WriteString(t.Name)
			} else {
				b.WriteString("['")
				b.WriteString(escapeQuoted(t.Name))
				b.WriteString("']")
			}
		case TokenIndex:
			b.WriteByte('[')
			b.WriteString(strconv.Itoa(t.Index))
			b.WriteByte(']')
		case TokenWildcard:
			b.WriteString(".*")
		case TokenIndexWildcard:
			b.WriteString("[*]")
		}
	}
	return b.String()
}

func isIdentChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) ||
		r == '_' || r == '-' || r == ':' || r == '#' || r == '@'
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !isIdentChar(r) {
			return false
		}
	}
	return true
}

func escapeQuoted(s string) string {
	if !strings.ContainsAny(s, `'\`) {
		return s
	}
	var b strings.Builder
	for _, r := range s {
		if r == '\'' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
