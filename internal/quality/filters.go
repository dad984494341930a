package quality

import (
	"sort"
	"strings"

	"github.com/seanankenbruck/analytics-sql-ai/internal/guardrail"
)

// DefaultAllowedFilterColumns may be filtered on when query defaults are applied
var DefaultAllowedFilterColumns = []string{"order_date", "amount"}

var comparisonOperators = map[string]bool{
	"=": true, "<": true, ">": true, "<=": true, ">=": true,
}

// UnrequestedFilters returns the columns that the statement's WHERE clauses
// compare to a literal although the user's question never mentions them and
// they are not in allowed. The result is sorted.
func UnrequestedFilters(sql, question string, allowed []string) []string {
	st := guardrail.Parse(sql)
	if st.Kind != guardrail.StatementSelect {
		return nil
	}

	lowerQuestion := strings.ToLower(question)
	allow := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		allow[strings.ToLower(a)] = true
	}

	found := make(map[string]bool)
	for _, c := range st.ClausesOf(guardrail.ClauseWhere) {
		tokens := st.Tokens[c.Start:c.End]
		for i := 0; i+2 < len(tokens); i++ {
			col, op, lit := tokens[i], tokens[i+1], tokens[i+2]
			if col.Type != guardrail.Ident || op.Type != guardrail.Operator || !comparisonOperators[op.Literal] {
				continue
			}
			if col.Keyword() != "" && nonColumnWord(col.Keyword()) {
				continue
			}
			switch {
			case op.Literal == "=" && lit.Type == guardrail.String:
			case op.Literal != "=" && lit.Type == guardrail.Number:
			default:
				continue
			}

			name := strings.ToLower(col.Literal)
			if allow[name] || strings.Contains(lowerQuestion, name) {
				continue
			}
			found[name] = true
		}
	}

	out := make([]string, 0, len(found))
	for name := range found {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func nonColumnWord(kw string) bool {
	switch kw {
	case "CURRENT_DATE", "CURRENT_TIMESTAMP", "NULL", "TRUE", "FALSE":
		return true
	}
	return false
}
