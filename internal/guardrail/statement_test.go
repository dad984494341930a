package guardrail

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clauseKinds(st *Statement) []ClauseKind {
	kinds := make([]ClauseKind, len(st.Clauses))
	for i, c := range st.Clauses {
		kinds[i] = c.Kind
	}
	return kinds
}

func TestParse_Clauses(t *testing.T) {
	st := Parse(`SELECT s.city, SUM(o.amount) AS revenue
		FROM orders o
		LEFT OUTER JOIN stores s ON o.store_id = s.store_id
		WHERE o.amount > 0
		GROUP BY s.city
		HAVING SUM(o.amount) > 100
		ORDER BY revenue DESC
		LIMIT 10 OFFSET 5`)

	require.Equal(t, StatementSelect, st.Kind)
	assert.Equal(t, []ClauseKind{
		ClauseSelect, ClauseFrom, ClauseJoin, ClauseWhere, ClauseGroupBy, ClauseHaving, ClauseOrderBy, ClauseLimit,
	}, clauseKinds(st))
	assert.Equal(t, "LIMIT 10 OFFSET 5", st.ClausesOf(ClauseLimit)[0].Text)
	assert.Equal(t, []string{"revenue"}, st.SelectAliases)

	require.Len(t, st.Relations, 2)
	assert.Equal(t, "orders", st.Relations[0].Table)
	assert.Equal(t, "o", st.Relations[0].Alias)
	assert.Equal(t, "stores", st.Relations[1].Table)
	assert.Equal(t, "s", st.Relations[1].Alias)
}

func TestParse_NestedLimitIsNotTopLevel(t *testing.T) {
	st := Parse("SELECT * FROM (SELECT amount FROM orders LIMIT 5) t")

	assert.False(t, st.HasClause(ClauseLimit))
	require.Len(t, st.Subqueries(), 1)
	assert.True(t, st.Subqueries()[0].HasClause(ClauseLimit))
}

func TestParse_CTEs(t *testing.T) {
	st := Parse(`WITH RECURSIVE a (x) AS (SELECT 1), b AS MATERIALIZED (SELECT x FROM a)
		SELECT x FROM b`)

	require.Equal(t, StatementSelect, st.Kind)
	require.Len(t, st.CTEs, 2)
	assert.Equal(t, "a", st.CTEs[0].Name)
	assert.Equal(t, []string{"x"}, st.CTEs[0].Columns)
	assert.True(t, st.CTEs[0].Recursive)
	assert.Equal(t, "b", st.CTEs[1].Name)
	require.NotNil(t, st.CTEs[1].Body)
	assert.Equal(t, StatementSelect, st.CTEs[1].Body.Kind)

	require.Len(t, st.Relations, 1)
	assert.Equal(t, "b", st.Relations[0].Table)
}

func TestParse_NonSelect(t *testing.T) {
	for _, sql := range []string{"", "EXPLAIN SELECT 1", "WITH x AS (SELECT 1)", "(SELECT 1)"} {
		assert.Equal(t, StatementOther, Parse(sql).Kind, sql)
	}
}

func TestParse_Trailing(t *testing.T) {
	st := Parse("SELECT 1; SELECT 2")
	assert.Len(t, st.Trailing, 2)

	st = Parse("SELECT ';' AS s;")
	assert.Empty(t, st.Trailing)
}

func TestParse_DerivedRelations(t *testing.T) {
	st := Parse(`SELECT * FROM (SELECT id, amount AS amt, 1 AS one FROM orders) AS d,
		(SELECT * FROM stores) e,
		(SELECT a FROM t) f(renamed),
		LATERAL generate_series(1, 3) g`)

	require.Len(t, st.Relations, 4)

	d := st.Relations[0]
	assert.True(t, d.Derived)
	assert.Equal(t, "d", d.Alias)
	assert.Equal(t, []string{"id", "amt", "one"}, d.Columns)
	assert.False(t, d.Opaque)

	e := st.Relations[1]
	assert.True(t, e.Opaque, "a star select exposes unknown columns")

	f := st.Relations[2]
	assert.Equal(t, []string{"renamed"}, f.Columns)

	assert.True(t, f.Renamed)
	assert.False(t, d.Renamed)

	g := st.Relations[3]
	assert.True(t, g.Derived)
	assert.True(t, g.Opaque)
	assert.True(t, g.Lateral)
	assert.Equal(t, "g", g.Alias)
}

func TestParse_DistinctFromIsNotAClause(t *testing.T) {
	for _, sql := range []string{
		"SELECT a FROM t WHERE a IS DISTINCT FROM b",
		"SELECT a FROM t WHERE a IS NOT DISTINCT FROM b",
	} {
		st := Parse(sql)
		assert.Equal(t, []ClauseKind{ClauseSelect, ClauseFrom, ClauseWhere}, clauseKinds(st), sql)
		require.Len(t, st.Relations, 1, sql)
		assert.Equal(t, "t", st.Relations[0].Table)
	}
}

func TestStatement_Balanced(t *testing.T) {
	tests := map[string]bool{
		"SELECT COUNT(*) FROM t":         true,
		"SELECT ')' FROM t":              true,
		"SELECT (":                       false,
		"SELECT a FROM (SELECT b":        false,
		"SELECT a FROM t)":               false,
		"SELECT COALESCE((a), 0) FROM t": true,
	}
	for sql, want := range tests {
		assert.Equal(t, want, Parse(sql).Balanced(), sql)
	}
}

func TestStatement_EmptySelect(t *testing.T) {
	assert.True(t, Parse("SELECT").EmptySelect())
	assert.True(t, Parse("SELECT DISTINCT FROM t").EmptySelect())
	assert.True(t, Parse("SELECT a FROM t UNION SELECT").EmptySelect())
	assert.False(t, Parse("SELECT 1").EmptySelect())
	assert.False(t, Parse("SELECT DISTINCT a FROM t").EmptySelect())
}

func TestParse_SchemaQualifiedRelation(t *testing.T) {
	st := Parse("SELECT 1 FROM analytics.public.orders")
	require.Len(t, st.Relations, 1)
	assert.Equal(t, "analytics.public", st.Relations[0].Schema)
	assert.Equal(t, "orders", st.Relations[0].Table)
	assert.Equal(t, "orders", st.Relations[0].Alias)
}

func TestParse_AliasNotConfusedWithKeyword(t *testing.T) {
	st := Parse("SELECT amount FROM orders WHERE amount > 1")
	require.Len(t, st.Relations, 1)
	assert.Equal(t, "orders", st.Relations[0].Alias)
}

func TestStatement_OutputColumns(t *testing.T) {
	tests := []struct {
		sql   string
		cols  []string
		known bool
	}{
		{"SELECT a, t.b, c AS d FROM t", []string{"a", "b", "d"}, true},
		{"SELECT DISTINCT a FROM t", []string{"a"}, true},
		{"SELECT COUNT(*) n FROM t", []string{"n"}, true},
		{"SELECT amount::int total FROM t", []string{"total"}, true},
		{"SELECT * FROM t", nil, false},
		{"SELECT a + 1 FROM t", nil, false},
	}
	for _, tt := range tests {
		cols, known := Parse(tt.sql).OutputColumns()
		assert.Equal(t, tt.known, known, tt.sql)
		if tt.known {
			assert.Equal(t, tt.cols, cols, tt.sql)
		}
	}
}

func TestClauseKind_String(t *testing.T) {
	assert.Equal(t, "group_by", ClauseGroupBy.String())
	assert.Equal(t, "unknown", ClauseKind(42).String())
}
