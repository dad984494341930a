// Package quality holds the structural checks applied to SQL that has already
// passed the guardrail, and the LIMIT repair step.
package quality

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/seanankenbruck/analytics-sql-ai/internal/errors"
	"github.com/seanankenbruck/analytics-sql-ai/internal/guardrail"
)

// DefaultLimit is appended to statements that have no row limit
const DefaultLimit = 100

// IssueCode identifies a quality problem
type IssueCode string

const (
	IssueNotSelect      IssueCode = "not_select"
	IssueMissingLimit   IssueCode = "missing_limit"
	IssueMissingOrderBy IssueCode = "missing_order_by"
)

// Issue is a quality problem found in a statement
type Issue struct {
	Code    IssueCode `json:"code"`
	Message string    `json:"message"`
}

func (i *Issue) Error() string {
	return i.Message
}

// DefaultRankingMarkers are question words that imply a top-N ordering
var DefaultRankingMarkers = []string{"top", "highest", "best", "most", "lowest", "least", "worst", "bottom"}

// Gate checks statements for the production constraints every executed query
// must satisfy.
type Gate struct {
	markers map[string]bool
}

// NewGate creates a gate. With no markers the defaults are used.
func NewGate(rankingMarkers ...string) *Gate {
	if len(rankingMarkers) == 0 {
		rankingMarkers = DefaultRankingMarkers
	}
	markers := make(map[string]bool, len(rankingMarkers))
	for _, m := range rankingMarkers {
		markers[strings.ToLower(m)] = true
	}
	return &Gate{markers: markers}
}

// Check returns an *Issue when sql is not a SELECT, has no row limit, or lacks
// an ORDER BY although question asks for a ranking.
func (g *Gate) Check(sql, question string) error {
	st := guardrail.Parse(sql)
	if st.Kind != guardrail.StatementSelect {
		return &Issue{Code: IssueNotSelect, Message: "Not a SELECT query"}
	}
	if !hasRowLimit(st) {
		return &Issue{Code: IssueMissingLimit, Message: "Missing LIMIT clause"}
	}
	if g.impliesRanking(question) && !st.HasClause(guardrail.ClauseOrderBy) {
		return &Issue{Code: IssueMissingOrderBy, Message: "Top query without ORDER BY"}
	}
	return nil
}

func (g *Gate) impliesRanking(question string) bool {
	for _, word := range strings.Fields(strings.ToLower(question)) {
		if g.markers[strings.Trim(word, ".,;:!?\"'()")] {
			return true
		}
	}
	return false
}

// HasLimit reports whether the top-level statement is row-limited
func HasLimit(sql string) bool {
	return hasRowLimit(guardrail.Parse(sql))
}

func hasRowLimit(st *guardrail.Statement) bool {
	for _, c := range st.ClausesOf(guardrail.ClauseLimit) {
		for _, t := range st.Tokens[c.Start:c.End] {
			if t.Is("LIMIT") || t.Is("FETCH") {
				return true
			}
		}
	}
	return false
}

// EnsureLimit appends "LIMIT n" to a statement without a top-level row limit
// and reports whether it changed anything. A trailing semicolon and trailing
// comments are dropped. Applying it twice is the same as applying it once.
func EnsureLimit(sql string, n int) (string, bool) {
	if n <= 0 {
		n = DefaultLimit
	}
	st := guardrail.Parse(sql)
	if len(st.Tokens) == 0 || len(st.Trailing) > 0 || hasRowLimit(st) {
		return sql, false
	}

	src := []rune(sql)
	limit := "LIMIT " + strconv.Itoa(n)
	body := string(src[:st.Tokens[len(st.Tokens)-1].End])

	// An OFFSET-only clause needs the LIMIT in front of it
	if offsets := st.ClausesOf(guardrail.ClauseLimit); len(offsets) > 0 {
		at := st.Tokens[offsets[0].Start].Pos
		return strings.TrimRight(string(src[:at]), " \t\r\n") + " " + limit + " " + string([]rune(body)[at:]), true
	}
	return body + " " + limit, true
}

// RegressionCheck re-checks the SQL of a successful response. Non-success
// statuses always pass.
func RegressionCheck(status, sql string) error {
	if status != "success" {
		return nil
	}
	if err := NewGate().Check(sql, ""); err != nil {
		snippet := sql
		if len(snippet) > 200 {
			snippet = snippet[:200] + "..."
		}
		return errors.New(errors.ErrCodeQualityCheck, "Regression detected").
			WithDetails(fmt.Sprintf("%s. Offending SQL: %q", err.Error(), snippet))
	}
	return nil
}
