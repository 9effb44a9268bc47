package pathexp

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================================
// Parse
// ============================================================================

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		expr string
		want Path
	}{
		{"root", "$", Root()},
		{"field", "$.name", Root().Child("name")},
		{"nested", "$.user.address.city", Root().Child("user").Child("address").Child("city")},
		{"index", "$.items[2]", Root().Child("items").Index(2)},
		{"wildcard", "$.items.*", Root().Child("items").Wildcard()},
		{"index wildcard", "$.items[*].id", Path{{Kind: TokenRoot}, {Kind: TokenField, Name: "items"}, {Kind: TokenIndexWildcard}, {Kind: TokenField, Name: "id"}}},
		{"quoted single", "$['first name']", Root().Child("first name")},
		{"quoted double", `$["a.b"]`, Root().Child("a.b")},
		{"escaped quote", `$['it\'s']`, Root().Child("it's")},
		{"xml attribute", "$.root.item['@id']", Root().Child("root").Child("item").Child("@id")},
		{"xml attribute dotted", "$.root.item.@id", Root().Child("root").Child("item").Child("@id")},
		{"hyphen and colon", "$.content-type.ns:tag", Root().Child("content-type").Child("ns:tag")},
		{"numeric field", "$.items.0", Root().Child("items").Child("0")},
		{"empty quoted name", "$['']", Root().Child("")},
		{"empty double quoted name", `$[""].a`, Root().Child("").Child("a")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := Parse(tt.expr)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		expr string
	}{
		{"empty", ""},
		{"missing root", "name"},
		{"double dot", "$..a"},
		{"trailing dot", "$.a."},
		{"empty brackets", "$.a[]"},
		{"unbalanced open", "$.a[1"},
		{"unbalanced close", "$.a]"},
		{"unterminated quote", "$['abc]"},
		{"negative index", "$.a[-1]"},
		{"garbage in brackets", "$.a[x]"},
		{"stray character", "$a"},
		{"missing close after index", "$.a[1x]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse(tt.expr)
			require.Error(t, err)
			var exprErr *ExpressionError
			require.ErrorAs(t, err, &exprErr)
			assert.Equal(t, tt.expr, exprErr.Expr)
		})
	}
}

func TestPath_StringRoundTrip(t *testing.T) {
	t.Parallel()

	exprs := []string{
		"$",
		"$.a",
		"$.a.b[3].c",
		"$.items[*].id",
		"$.map.*",
		"$['first name']",
		"$['a.b'].c",
		"$['*']",
		`$['it\'s']`,
		"$.root.item.@id",
		"$.root.item.#text",
		"$['']",
		"$[''][0]",
	}

	for _, expr := range exprs {
		p, err := Parse(expr)
		require.NoError(t, err, expr)

		again, err := Parse(p.String())
		require.NoError(t, err, p.String())
		assert.True(t, p.Equal(again), "round trip of %s via %s", expr, p.String())
	}
}

func TestPath_ChildDoesNotAlias(t *testing.T) {
	t.Parallel()

	base := make(Path, 0, 8)
	base = append(base, Token{Kind: TokenRoot})
	a := base.Child("a")
	b := base.Child("b")

	assert.Equal(t, "$.a", a.String())
	assert.Equal(t, "$.b", b.String())
}

// ============================================================================
// Match
// ============================================================================

func TestMatch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		pattern  string
		concrete Path
		ok       bool
		literals int
	}{
		{"exact", "$.a.b", Root().Child("a").Child("b"), true, 3},
		{"prefix applies to descendant", "$.a", Root().Child("a").Child("b"), true, 2},
		{"root applies to everything", "$", Root().Child("a"), true, 1},
		{"wildcard field", "$.a.*", Root().Child("a").Child("x"), true, 2},
		{"wildcard index", "$.a.*", Root().Child("a").Index(3), true, 2},
		{"index wildcard on index", "$.a[*]", Root().Child("a").Index(0), true, 2},
		{"index wildcard on field", "$.a[*]", Root().Child("a").Child("x"), false, 0},
		{"literal index", "$.a[1]", Root().Child("a").Index(1), true, 3},
		{"literal index mismatch", "$.a[1]", Root().Child("a").Index(2), false, 0},
		{"numeric field addresses index", "$.a.1", Root().Child("a").Index(1), true, 3},
		{"different literal", "$.a.b", Root().Child("a").Child("c"), false, 0},
		{"pattern longer", "$.a.b.c", Root().Child("a").Child("b"), false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			spec, ok := Match(MustParse(tt.pattern), tt.concrete)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.literals, spec.Literals)
			}
		})
	}
}

func TestMatch_MoreSpecificWins(t *testing.T) {
	t.Parallel()

	concrete := Root().Child("animals").Index(0)

	parent, ok := Match(MustParse("$.animals"), concrete)
	require.True(t, ok)
	wild, ok := Match(MustParse("$.animals.*"), concrete)
	require.True(t, ok)
	literal, ok := Match(MustParse("$.animals[0]"), concrete)
	require.True(t, ok)

	// Same literal count, deeper pattern wins.
	assert.Equal(t, 1, wild.Compare(parent))
	// More literals win.
	assert.Equal(t, 1, literal.Compare(wild))
	assert.Equal(t, 0, literal.Compare(literal))
	assert.Equal(t, -1, parent.Compare(literal))
}

func TestMatchExact(t *testing.T) {
	t.Parallel()

	_, ok := MatchExact(MustParse("$.a"), Root().Child("a").Child("b"))
	assert.False(t, ok)

	_, ok = MatchExact(MustParse("$.a.*"), Root().Child("a").Child("b"))
	assert.True(t, ok)
}

// ============================================================================
// Get / Select
// ============================================================================

func TestGet(t *testing.T) {
	t.Parallel()

	doc := map[string]any{
		"user": map[string]any{
			"name":  "ada",
			"tags":  []any{"a", "b"},
			"email": nil,
		},
	}

	v, err := Get(doc, MustParse("$.user.name"))
	require.NoError(t, err)
	assert.Equal(t, "ada", v)

	v, err = Get(doc, MustParse("$.user.tags[1]"))
	require.NoError(t, err)
	assert.Equal(t, "b", v)

	v, err = Get(doc, MustParse("$.user.email"))
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = Get(doc, MustParse("$.user.phone"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = Get(doc, MustParse("$.user.tags[5]"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = Get(doc, MustParse("$.user.name.first"))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = Get(doc, MustParse("$.user.*"))
	assert.Error(t, err)
}

func TestSelect(t *testing.T) {
	t.Parallel()

	doc := map[string]any{
		"items": []any{
			map[string]any{"id": int64(1)},
			map[string]any{"id": int64(2)},
		},
	}

	got := Select(doc, MustParse("$.items[*].id"))
	assert.ElementsMatch(t, []any{int64(1), int64(2)}, got)

	assert.Empty(t, Select(doc, MustParse("$.missing[*]")))
}
