package guardrail

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanankenbruck/analytics-sql-ai/internal/errors"
	"github.com/seanankenbruck/analytics-sql-ai/internal/schema"
)

func retailCatalog(t *testing.T) *schema.Catalog {
	t.Helper()
	c, err := schema.FromMap(map[string]schema.TableSpec{
		"customers": {
			Columns:    map[string]string{"customer_id": "INT", "name": "VARCHAR", "city": "VARCHAR", "age": "INT"},
			PrimaryKey: []string{"customer_id"},
		},
		"orders": {
			Columns: map[string]string{
				"order_id": "INT", "customer_id": "INT", "store_id": "INT",
				"order_date": "DATE", "amount": "DECIMAL", "returned": "BOOLEAN",
			},
			PrimaryKey:  []string{"order_id"},
			ForeignKeys: []string{"customer_id → customers.customer_id", "store_id → stores.store_id"},
		},
		"stores": {
			Columns:    map[string]string{"store_id": "INT", "city": "VARCHAR"},
			PrimaryKey: []string{"store_id"},
		},
	})
	require.NoError(t, err)
	return c
}

func catalogOf(t *testing.T, tables map[string][]string) *schema.Catalog {
	t.Helper()
	specs := make(map[string]schema.TableSpec, len(tables))
	for name, cols := range tables {
		columns := make(map[string]string, len(cols))
		for _, c := range cols {
			columns[c] = "TEXT"
		}
		specs[name] = schema.TableSpec{Columns: columns}
	}
	c, err := schema.FromMap(specs)
	require.NoError(t, err)
	return c
}

func TestValidate_AcceptsGroundedQueries(t *testing.T) {
	catalog := retailCatalog(t)

	tests := []struct {
		name string
		sql  string
	}{
		{"simple", "SELECT amount FROM orders LIMIT 100"},
		{"star", "SELECT * FROM orders"},
		{"qualified star", "SELECT o.* FROM orders o"},
		{"alias join", `SELECT s.city, SUM(o.amount) AS total_revenue
			FROM orders o JOIN stores s ON o.store_id = s.store_id
			WHERE o.order_date >= DATE '2024-01-01'
			GROUP BY s.city ORDER BY total_revenue DESC LIMIT 10`},
		{"bare column on joined table", "SELECT city FROM orders JOIN stores ON orders.store_id = stores.store_id"},
		{"implicit alias", "SELECT SUM(amount) revenue FROM orders ORDER BY revenue"},
		{"functions", "SELECT COUNT(*), MAX(amount), strftime('%Y', order_date) FROM orders"},
		{"extract", "SELECT EXTRACT(YEAR FROM order_date) AS yr FROM orders GROUP BY yr"},
		{"cast", "SELECT CAST(amount AS DECIMAL) FROM orders"},
		{"postgres cast", "SELECT amount::numeric FROM orders"},
		{"interval", "SELECT amount FROM orders WHERE order_date >= CURRENT_DATE - INTERVAL '30 days'"},
		{"string literal", "SELECT name FROM customers WHERE city = 'not_a_column'"},
		{"schema qualified", "SELECT public.orders.amount FROM public.orders"},
		{"in subquery", "SELECT name FROM customers WHERE customer_id IN (SELECT customer_id FROM orders)"},
		{"correlated subquery", `SELECT c.name FROM customers c
			WHERE EXISTS (SELECT 1 FROM orders o WHERE o.customer_id = c.customer_id)`},
		{"derived table", "SELECT t.total FROM (SELECT SUM(amount) AS total FROM orders) t"},
		{"derived bare column", "SELECT total FROM (SELECT SUM(amount) AS total FROM orders) AS t"},
		{"cte", `WITH revenue AS (SELECT store_id, SUM(amount) AS total FROM orders GROUP BY store_id)
			SELECT s.city, r.total FROM revenue r JOIN stores s ON s.store_id = r.store_id`},
		{"cte column list", "WITH r(sid, t) AS (SELECT store_id, amount FROM orders) SELECT sid, t FROM r"},
		{"window", "SELECT amount, RANK() OVER (PARTITION BY store_id ORDER BY amount DESC) AS rnk FROM orders"},
		{"union", "SELECT city FROM stores UNION SELECT city FROM customers"},
		{"case", "SELECT CASE WHEN returned THEN 'yes' ELSE 'no' END AS flag FROM orders"},
		{"case insensitive names", "SELECT AMOUNT FROM Orders"},
		{"quoted identifiers", `SELECT "amount" FROM "orders"`},
		{"trailing semicolon", "SELECT amount FROM orders;"},
		{"parameters", "SELECT amount FROM orders WHERE store_id = $1 OR customer_id = ?"},
		{"comment", "SELECT amount -- daily total\nFROM orders"},
		{"table function column list", "SELECT g.x FROM generate_series(1, 10) AS g(x)"},
		{"table function alias column", "SELECT g FROM orders, generate_series(1, 3) g"},
		{"star subquery", "SELECT amount FROM (SELECT * FROM orders) x"},
		{"qualified star subquery", "SELECT x.city FROM (SELECT s.* FROM stores s) x"},
		{"star cte", "WITH t AS (SELECT * FROM orders) SELECT t.amount, store_id FROM t"},
		{"lateral subquery", "SELECT l.n FROM orders o, LATERAL (SELECT o.amount AS n) l"},
		{"recursive cte", "WITH RECURSIVE t(n) AS (SELECT 1 UNION ALL SELECT n + 1 FROM t WHERE n < 5) SELECT n FROM t"},
		{"cte shadowing a table", "WITH orders AS (SELECT * FROM orders WHERE returned) SELECT amount FROM orders"},
		{"is distinct from", "SELECT amount FROM orders WHERE returned IS DISTINCT FROM TRUE"},
		{"is not distinct from", "SELECT amount FROM orders o WHERE o.returned IS NOT DISTINCT FROM FALSE ORDER BY amount"},
		{"updated_at is not forbidden", "SELECT amount AS updated_at FROM orders"},
		{"no from", "SELECT 1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Validate(tt.sql, catalog)
			assert.True(t, out.Valid(), "unexpected violation: %s", out.Message)
			assert.NoError(t, out.Err())
		})
	}
}

func TestValidate_HallucinatedQualifiedColumn(t *testing.T) {
	catalog := catalogOf(t, map[string][]string{"orders": {"id", "amount"}})

	out := Validate("SELECT orders.total FROM orders", catalog)

	assert.Equal(t, HallucinatedColumn, out.Kind)
	assert.Equal(t, "orders.total", out.Identifier)
	assert.Contains(t, out.Message, "Hallucinated column: orders.total")
}

func TestValidate_MissingJoinHint(t *testing.T) {
	catalog := catalogOf(t, map[string][]string{
		"orders": {"amount"},
		"stores": {"city"},
	})

	out := Validate("SELECT city FROM orders", catalog)

	assert.Equal(t, HallucinatedColumn, out.Kind)
	assert.Equal(t, "stores", out.Suggestion)
	assert.Equal(t,
		"Hallucinated column: city. Column 'city' exists in table 'stores'. Did you mean to JOIN that table?",
		out.Message)
}

func TestValidate_Violations(t *testing.T) {
	catalog := retailCatalog(t)

	tests := []struct {
		name       string
		sql        string
		kind       ViolationKind
		identifier string
		suggestion string
	}{
		{"unknown table", "SELECT * FROM ordrs", HallucinatedTable, "ordrs", "orders"},
		{"unknown joined table", "SELECT o.amount FROM orders o JOIN regions r ON r.id = o.store_id", HallucinatedTable, "regions", ""},
		{"unknown qualifier", "SELECT x.amount FROM orders o", HallucinatedTable, "x", ""},
		{"typo column", "SELECT o.amout FROM orders o", HallucinatedColumn, "o.amout", "amount"},
		{"bare unknown column", "SELECT revenue FROM orders", HallucinatedColumn, "revenue", ""},
		{"column of wrong table", "SELECT s.amount FROM stores s", HallucinatedColumn, "s.amount", ""},
		{"unjoined table column", "SELECT name FROM orders", HallucinatedColumn, "name", "customers"},
		{"inside subquery", "SELECT name FROM customers WHERE customer_id IN (SELECT buyer_id FROM orders)", HallucinatedColumn, "buyer_id", ""},
		{"inside cte", "WITH r AS (SELECT profit FROM orders) SELECT * FROM r", HallucinatedColumn, "profit", ""},
		{"derived column not exposed", "SELECT t.amount FROM (SELECT SUM(amount) AS total FROM orders) t", HallucinatedColumn, "t.amount", ""},
		{"inside derived table", "SELECT * FROM (SELECT profit FROM orders) t", HallucinatedColumn, "profit", ""},
		{"derived table selecting itself", "SELECT t.profit FROM (SELECT profit FROM orders) t", HallucinatedColumn, "profit", ""},
		{"star subquery", "SELECT bogus FROM (SELECT * FROM orders) x", HallucinatedColumn, "bogus", ""},
		{"qualified star subquery", "SELECT x.bogus FROM (SELECT * FROM orders) x", HallucinatedColumn, "x.bogus", ""},
		{"star cte", "WITH t AS (SELECT * FROM orders) SELECT invented_col FROM t", HallucinatedColumn, "invented_col", ""},
		{"table function", "SELECT totally_invented FROM orders, generate_series(1, 3) g", HallucinatedColumn, "totally_invented", ""},
		{"joined star subquery", "SELECT invented FROM orders o JOIN (SELECT * FROM stores) s ON s.store_id = o.store_id", HallucinatedColumn, "invented", ""},
		{"derived table sees no siblings", "SELECT o.amount FROM orders o, (SELECT o.store_id FROM stores) s", HallucinatedTable, "o", ""},
		{"non-recursive cte reading itself", "WITH r AS (SELECT * FROM r) SELECT * FROM r", HallucinatedTable, "r", ""},
		{"in where", "SELECT amount FROM orders WHERE region = 'west'", HallucinatedColumn, "region", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Validate(tt.sql, catalog)
			require.False(t, out.Valid())
			assert.Equal(t, tt.kind, out.Kind, out.Message)
			assert.Equal(t, tt.identifier, out.Identifier)
			if tt.suggestion != "" {
				assert.Equal(t, tt.suggestion, out.Suggestion)
			}
			assert.True(t, out.Kind.Retryable())
		})
	}
}

func TestValidate_ForbiddenKeywords(t *testing.T) {
	catalog := retailCatalog(t)

	for _, kw := range ForbiddenKeywords() {
		variants := []string{
			kw + " orders SET amount = 0",
			"SELECT amount FROM orders; " + strings.ToLower(kw) + " TABLE orders",
			"SELECT amount FROM orders WHERE note = '" + kw + " me'",
			"SELECT amount FROM orders /* " + kw + " */",
			"SELECT amount FROM orders WHERE order_id IN (SELECT 1 FROM x WHERE y = 1 " + kw + ")",
			"SELECT amount\n\t" + kw[:1] + strings.ToLower(kw[1:]) + "\nFROM orders",
		}
		for _, sql := range variants {
			out := Validate(sql, catalog)
			assert.Equal(t, ForbiddenOperation, out.Kind, sql)
			assert.Equal(t, "Forbidden SQL keyword detected: "+kw, out.Message, sql)
			assert.False(t, out.Kind.Retryable())
		}
	}
}

func TestValidate_ForbiddenRequiresWholeWord(t *testing.T) {
	catalog := catalogOf(t, map[string][]string{"orders": {"updated_at", "created_by", "dropped"}})

	out := Validate("SELECT updated_at, created_by, dropped FROM orders", catalog)
	assert.True(t, out.Valid(), out.Message)
}

func TestValidate_OnlySelect(t *testing.T) {
	catalog := retailCatalog(t)

	tests := []struct {
		name    string
		sql     string
		message string
	}{
		{"empty", "", "Only SELECT queries are allowed"},
		{"show", "SHOW TABLES", "Only SELECT queries are allowed"},
		{"values", "VALUES (1)", "Only SELECT queries are allowed"},
		{"pragma", "PRAGMA table_info(orders)", "Only SELECT queries are allowed"},
		{"two selects", "SELECT amount FROM orders; SELECT city FROM stores", "Only a single SELECT statement is allowed"},
		{"bare select", "SELECT", "SELECT list is empty"},
		{"distinct only", "SELECT DISTINCT FROM orders", "SELECT list is empty"},
		{"empty subquery", "SELECT amount FROM orders WHERE order_id IN (SELECT)", "SELECT list is empty"},
		{"unclosed paren", "SELECT (", "Unbalanced parentheses in SELECT statement"},
		{"unclosed subquery", "SELECT a FROM (", "Unbalanced parentheses in SELECT statement"},
		{"stray paren", "SELECT amount FROM orders)", "Unbalanced parentheses in SELECT statement"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Validate(tt.sql, catalog)
			assert.Equal(t, ForbiddenOperation, out.Kind)
			assert.Equal(t, tt.message, out.Message)
		})
	}
}

func TestValidate_Deterministic(t *testing.T) {
	catalog := retailCatalog(t)
	inputs := []string{
		"SELECT city FROM orders",
		"SELECT o.amout FROM orders o",
		"DELETE FROM orders",
		"SELECT s.city FROM orders o JOIN stores s ON o.store_id = s.store_id",
	}
	for _, sql := range inputs {
		first := Validate(sql, catalog)
		for i := 0; i < 20; i++ {
			assert.Equal(t, first, Validate(sql, catalog))
		}
	}
}

func TestValidate_NilCatalog(t *testing.T) {
	out := Validate("SELECT amount FROM orders", nil)
	assert.False(t, out.Valid())

	// forbidden keywords are still detected first
	out = Validate("DROP TABLE orders", nil)
	assert.Equal(t, ForbiddenOperation, out.Kind)
}

func TestNewValidator_ExtraForbidden(t *testing.T) {
	catalog := retailCatalog(t)
	v := NewValidator("grant ", "")

	out := v.Validate("SELECT amount FROM orders WHERE 1 = 1 GRANT", catalog)
	assert.Equal(t, ForbiddenOperation, out.Kind)
	assert.Equal(t, "GRANT", out.Identifier)

	assert.True(t, Validate("SELECT amount AS grant_total FROM orders", catalog).Valid())
}

func TestOutcome_Err(t *testing.T) {
	catalog := retailCatalog(t)

	err := Validate("SELECT o.amout FROM orders o", catalog).Err()
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeHallucinatedColumn, errors.CodeOf(err))

	var enhanced *errors.EnhancedError
	require.ErrorAs(t, err, &enhanced)
	assert.Equal(t, "o.amout", enhanced.Metadata["identifier"])
	assert.Equal(t, "amount", enhanced.Metadata["did_you_mean"])

	err = Validate("TRUNCATE orders", catalog).Err()
	assert.Equal(t, errors.ErrCodeForbiddenOperation, errors.CodeOf(err))
}

func TestViolationKind_String(t *testing.T) {
	assert.Equal(t, "none", None.String())
	assert.Equal(t, "forbidden_operation", ForbiddenOperation.String())
	assert.Equal(t, "hallucinated_table", HallucinatedTable.String())
	assert.Equal(t, "hallucinated_column", HallucinatedColumn.String())
}
