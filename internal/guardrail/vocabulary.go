package guardrail

import "sort"

// forbiddenKeywords are rejected wherever they appear as a whole word,
// including inside literals, comments and subqueries.
var forbiddenKeywords = map[string]bool{
	"INSERT":   true,
	"UPDATE":   true,
	"DELETE":   true,
	"DROP":     true,
	"ALTER":    true,
	"CREATE":   true,
	"TRUNCATE": true,
	"REPLACE":  true,
}

// ForbiddenKeywords returns the forbidden word list in sorted order
func ForbiddenKeywords() []string {
	words := make([]string, 0, len(forbiddenKeywords))
	for w := range forbiddenKeywords {
		words = append(words, w)
	}
	sort.Strings(words)
	return words
}

// sqlKeywords never count as column references. Date parts and type names
// are included since they appear bare inside EXTRACT, INTERVAL and CAST.
var sqlKeywords = setOf(
	"SELECT", "FROM", "WHERE", "GROUP", "BY", "ORDER", "HAVING", "LIMIT", "OFFSET",
	"AS", "ON", "USING", "JOIN", "LEFT", "RIGHT", "INNER", "OUTER", "FULL", "CROSS", "NATURAL", "LATERAL",
	"AND", "OR", "NOT", "XOR", "NULL", "IS", "IN", "LIKE", "ILIKE", "BETWEEN", "EXISTS", "ESCAPE",
	"REGEXP", "RLIKE", "SIMILAR", "TO", "DIV", "MOD",
	"CASE", "WHEN", "THEN", "ELSE", "END",
	"DISTINCT", "ALL", "ANY", "SOME", "ASC", "DESC", "NULLS", "FIRST", "LAST",
	"TRUE", "FALSE", "UNKNOWN",
	"UNION", "INTERSECT", "EXCEPT", "WITH", "RECURSIVE",
	"OVER", "PARTITION", "WINDOW", "ROWS", "RANGE", "UNBOUNDED", "PRECEDING", "FOLLOWING", "CURRENT", "ROW",
	"FILTER", "WITHIN", "SEPARATOR", "FETCH", "NEXT", "ONLY", "COLLATE",
	"INTERVAL", "AT", "ZONE",
	"MICROSECOND", "MILLISECOND", "SECOND", "SECONDS", "MINUTE", "MINUTES", "HOUR", "HOURS",
	"DAY", "DAYS", "WEEK", "WEEKS", "MONTH", "MONTHS", "QUARTER", "YEAR", "YEARS", "EPOCH", "DOW", "DOY",
	"CURRENT_DATE", "CURRENT_TIME", "CURRENT_TIMESTAMP", "LOCALTIME", "LOCALTIMESTAMP",
	"DATE", "TIME", "TIMESTAMP", "DATETIME",
	"INT", "INTEGER", "BIGINT", "SMALLINT", "TINYINT", "DECIMAL", "NUMERIC", "REAL", "FLOAT", "DOUBLE", "PRECISION",
	"CHAR", "VARCHAR", "TEXT", "BOOLEAN", "BOOL", "SIGNED", "UNSIGNED",
)

// sqlFunctions are built-in function names. Any identifier directly followed
// by "(" is treated as a call anyway; this list also covers the ones that can
// appear without parentheses or that double as date parts.
var sqlFunctions = setOf(
	"SUM", "COUNT", "MAX", "MIN", "AVG",
	"DATE", "DATE_SUB", "DATE_ADD", "DATEDIFF", "DATE_FORMAT", "DATE_TRUNC", "DATE_PART",
	"STRFTIME", "JULIANDAY", "CURDATE", "NOW", "MONTH", "YEAR", "DAY",
	"EXTRACT", "TIMESTAMPDIFF", "COALESCE", "IFNULL", "NULLIF", "CAST",
	"CONCAT", "SUBSTRING", "ROUND", "LOWER", "UPPER", "INTERVAL",
	"LENGTH", "TRIM", "ABS", "CEIL", "FLOOR", "GREATEST", "LEAST",
	"ROW_NUMBER", "RANK", "DENSE_RANK", "LAG", "LEAD",
)

// valueKeywords end an expression, so an identifier after one is an alias
var valueKeywords = setOf(
	"END", "NULL", "TRUE", "FALSE",
	"CURRENT_DATE", "CURRENT_TIME", "CURRENT_TIMESTAMP", "LOCALTIME", "LOCALTIMESTAMP",
)

// joinModifiers may precede JOIN
var joinModifiers = setOf("LEFT", "RIGHT", "FULL", "INNER", "OUTER", "CROSS", "NATURAL")

// compoundOperators combine two SELECTs into one statement
var compoundOperators = setOf("UNION", "INTERSECT", "EXCEPT")

// aliasStopWords end a relation and can never be its alias
var aliasStopWords = setOf(
	"ON", "USING", "WHERE", "GROUP", "ORDER", "HAVING", "LIMIT", "OFFSET", "JOIN",
	"LEFT", "RIGHT", "FULL", "INNER", "OUTER", "CROSS", "NATURAL", "UNION", "INTERSECT", "EXCEPT",
	"WINDOW", "FETCH",
)

func setOf(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}
