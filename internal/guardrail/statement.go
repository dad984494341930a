package guardrail

import "strings"

// StatementKind is the coarse type of a parsed statement
type StatementKind int

const (
	StatementOther StatementKind = iota
	StatementSelect
)

// ClauseKind names one clause span of a SELECT
type ClauseKind int

const (
	ClauseSelect ClauseKind = iota
	ClauseFrom
	ClauseJoin
	ClauseWhere
	ClauseGroupBy
	ClauseHaving
	ClauseOrderBy
	ClauseLimit
	ClauseCompound
)

var clauseNames = map[ClauseKind]string{
	ClauseSelect:   "select",
	ClauseFrom:     "from",
	ClauseJoin:     "join",
	ClauseWhere:    "where",
	ClauseGroupBy:  "group_by",
	ClauseHaving:   "having",
	ClauseOrderBy:  "order_by",
	ClauseLimit:    "limit",
	ClauseCompound: "compound",
}

func (k ClauseKind) String() string {
	if name, ok := clauseNames[k]; ok {
		return name
	}
	return "unknown"
}

// Clause is a span of tokens [Start, End) of its statement, keyword included
type Clause struct {
	Kind  ClauseKind
	Start int
	End   int
	Text  string
}

// Relation is one entry of a FROM or JOIN clause. Derived relations are
// subqueries or table functions; Columns lists what a derived relation exposes
// and Opaque is set when that cannot be determined. Renamed is set when the
// alias carries its own column list.
type Relation struct {
	Schema   string
	Table    string
	Alias    string
	Derived  bool
	Lateral  bool
	Subquery *Statement
	Columns  []string
	Opaque   bool
	Renamed  bool
}

// CTE is one WITH-clause entry
type CTE struct {
	Name      string
	Columns   []string
	Body      *Statement
	Recursive bool
}

type subquery struct {
	start int // index of the opening parenthesis
	end   int // index of the closing parenthesis
	stmt  *Statement
}

// Statement is the clause-level structure of one SQL statement. Nested SELECTs
// are parsed into their own statements and are opaque to the enclosing one.
type Statement struct {
	Kind          StatementKind
	Tokens        []Token
	Clauses       []Clause
	Relations     []Relation
	CTEs          []CTE
	SelectAliases []string
	// Trailing holds anything after the first top-level semicolon
	Trailing []Token

	src            []rune
	match          []int
	subqueries     []subquery
	relationTokens map[int]bool
	aliasTokens    map[int]bool
	balanced       bool
}

// Parse splits SQL into clauses and relations. It never fails; input that is
// not a SELECT yields StatementOther.
func Parse(sql string) *Statement {
	body, trailing := splitStatement(Tokenize(sql))
	st := parseTokens([]rune(sql), body)
	st.Trailing = trailing
	return st
}

// splitStatement cuts the token stream at the first semicolon outside parentheses
func splitStatement(tokens []Token) (body, rest []Token) {
	depth := 0
	for i, t := range tokens {
		switch t.Type {
		case LParen:
			depth++
		case RParen:
			if depth > 0 {
				depth--
			}
		case Semicolon:
			if depth == 0 {
				return tokens[:i], tokens[i+1:]
			}
		}
	}
	return tokens, nil
}

func parseTokens(src []rune, tokens []Token) *Statement {
	match, balanced := matchParens(tokens)
	st := &Statement{
		Tokens:         tokens,
		src:            src,
		match:          match,
		relationTokens: make(map[int]bool),
		aliasTokens:    make(map[int]bool),
		balanced:       balanced,
	}

	i := 0
	if i < len(tokens) && tokens[i].Is("WITH") {
		i = st.parseCTEs(i + 1)
	}
	if i >= len(tokens) || !tokens[i].Is("SELECT") {
		st.Kind = StatementOther
		return st
	}
	st.Kind = StatementSelect

	st.splitClauses(i)
	st.collectRelations()
	st.collectSelectAliases()
	return st
}

// matchParens maps each "(" to its closing ")"; an unclosed one maps to
// len(tokens). balanced is false when any parenthesis is left unmatched.
func matchParens(tokens []Token) (match []int, balanced bool) {
	match = make([]int, len(tokens))
	balanced = true
	var stack []int
	for i, t := range tokens {
		match[i] = -1
		switch t.Type {
		case LParen:
			stack = append(stack, i)
		case RParen:
			if len(stack) == 0 {
				balanced = false
				continue
			}
			open := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			match[open] = i
		}
	}
	for _, open := range stack {
		match[open] = len(tokens)
		balanced = false
	}
	return match, balanced
}

// Balanced reports whether every parenthesis in the statement is matched
func (st *Statement) Balanced() bool {
	return st.balanced
}

func (st *Statement) closing(i int) int {
	if i < 0 || i >= len(st.match) || st.match[i] < 0 {
		return i
	}
	return st.match[i]
}

func (st *Statement) inner(open int) []Token {
	end := st.closing(open)
	if end > len(st.Tokens) {
		end = len(st.Tokens)
	}
	if open+1 > end {
		return nil
	}
	return st.Tokens[open+1 : end]
}

func (st *Statement) opensSubquery(i int) bool {
	if i >= len(st.Tokens) || st.Tokens[i].Type != LParen || i+1 >= len(st.Tokens) {
		return false
	}
	next := st.Tokens[i+1]
	return next.Is("SELECT") || next.Is("WITH")
}

func (st *Statement) parseCTEs(i int) int {
	n := len(st.Tokens)
	recursive := false
	if i < n && st.Tokens[i].Is("RECURSIVE") {
		recursive = true
		i++
	}
	for i < n && st.Tokens[i].Type == Ident {
		cte := CTE{Name: st.Tokens[i].Literal, Recursive: recursive}
		st.aliasTokens[i] = true
		i++

		if i < n && st.Tokens[i].Type == LParen && !st.opensSubquery(i) {
			for _, t := range st.inner(i) {
				if t.Type == Ident {
					cte.Columns = append(cte.Columns, t.Literal)
				}
			}
			i = st.closing(i) + 1
		}
		if i < n && st.Tokens[i].Is("AS") {
			i++
		}
		for i < n && (st.Tokens[i].Is("NOT") || st.Tokens[i].Is("MATERIALIZED")) {
			i++
		}
		if i >= n || st.Tokens[i].Type != LParen {
			return i
		}
		cte.Body = parseTokens(st.src, st.inner(i))
		st.CTEs = append(st.CTEs, cte)
		i = st.closing(i) + 1

		if i < n && st.Tokens[i].Type == Comma {
			i++
			continue
		}
		break
	}
	return i
}

func (st *Statement) splitClauses(start int) {
	n := len(st.Tokens)
	open := func(kind ClauseKind, at int) {
		st.closeClause(at)
		st.Clauses = append(st.Clauses, Clause{Kind: kind, Start: at, End: -1})
	}

	depth := 0
	for i := start; i < n; i++ {
		t := st.Tokens[i]
		switch t.Type {
		case LParen:
			if st.opensSubquery(i) {
				end := st.closing(i)
				st.subqueries = append(st.subqueries, subquery{
					start: i,
					end:   end,
					stmt:  parseTokens(st.src, st.inner(i)),
				})
				i = end
				continue
			}
			depth++
			continue
		case RParen:
			if depth > 0 {
				depth--
			}
			continue
		}
		if depth > 0 {
			continue
		}

		kw := t.Keyword()
		switch {
		case kw == "SELECT":
			if cur := st.current(); cur == nil || cur.Kind == ClauseCompound {
				open(ClauseSelect, i)
			}
		case kw == "FROM":
			if st.distinctFrom(i) {
				continue
			}
			open(ClauseFrom, i)
		case kw == "WHERE":
			open(ClauseWhere, i)
		case kw == "GROUP" && st.nextIs(i, "BY"):
			open(ClauseGroupBy, i)
			i++
		case kw == "ORDER" && st.nextIs(i, "BY"):
			open(ClauseOrderBy, i)
			i++
		case kw == "HAVING":
			open(ClauseHaving, i)
		case kw == "LIMIT":
			open(ClauseLimit, i)
		case kw == "OFFSET" || kw == "FETCH":
			if cur := st.current(); cur == nil || cur.Kind != ClauseLimit {
				open(ClauseLimit, i)
			}
		case kw == "JOIN":
			open(ClauseJoin, i)
		case joinModifiers[kw] && st.joinAhead(i):
			open(ClauseJoin, i)
			for i < n && !st.Tokens[i].Is("JOIN") {
				i++
			}
		case compoundOperators[kw]:
			open(ClauseCompound, i)
		}
	}
	st.closeClause(n)
}

func (st *Statement) current() *Clause {
	if len(st.Clauses) == 0 {
		return nil
	}
	return &st.Clauses[len(st.Clauses)-1]
}

func (st *Statement) closeClause(at int) {
	cur := st.current()
	if cur == nil || cur.End >= 0 {
		return
	}
	cur.End = at
	cur.Text = st.spanText(cur.Start, cur.End)
}

func (st *Statement) nextIs(i int, keyword string) bool {
	return i+1 < len(st.Tokens) && st.Tokens[i+1].Is(keyword)
}

// distinctFrom reports whether the FROM at i belongs to IS [NOT] DISTINCT FROM
func (st *Statement) distinctFrom(i int) bool {
	if i < 2 || !st.Tokens[i-1].Is("DISTINCT") {
		return false
	}
	prev := st.Tokens[i-2]
	return prev.Is("IS") || (prev.Is("NOT") && i >= 3 && st.Tokens[i-3].Is("IS"))
}

func (st *Statement) joinAhead(i int) bool {
	for i < len(st.Tokens) && joinModifiers[st.Tokens[i].Keyword()] {
		i++
	}
	return i < len(st.Tokens) && st.Tokens[i].Is("JOIN")
}

// spanText returns the source text covered by tokens [from, to)
func (st *Statement) spanText(from, to int) string {
	if from >= to || from >= len(st.Tokens) {
		return ""
	}
	if to > len(st.Tokens) {
		to = len(st.Tokens)
	}
	start := st.Tokens[from].Pos
	end := st.Tokens[to-1].End
	if end > len(st.src) {
		end = len(st.src)
	}
	return string(st.src[start:end])
}

// splitTopLevel splits [from, to) on commas outside parentheses
func (st *Statement) splitTopLevel(from, to int) [][2]int {
	var parts [][2]int
	depth := 0
	itemStart := from
	for i := from; i < to; i++ {
		switch st.Tokens[i].Type {
		case LParen:
			depth++
		case RParen:
			if depth > 0 {
				depth--
			}
		case Comma:
			if depth == 0 {
				parts = append(parts, [2]int{itemStart, i})
				itemStart = i + 1
			}
		}
	}
	if itemStart < to {
		parts = append(parts, [2]int{itemStart, to})
	}
	return parts
}

func (st *Statement) collectRelations() {
	for _, c := range st.Clauses {
		switch c.Kind {
		case ClauseFrom:
			for _, item := range st.splitTopLevel(c.Start+1, c.End) {
				st.parseRelation(item[0], item[1])
			}
		case ClauseJoin:
			i := c.Start
			for i < c.End && !st.Tokens[i].Is("JOIN") {
				i++
			}
			i++
			end := i
			depth := 0
			for end < c.End {
				t := st.Tokens[end]
				if t.Type == LParen {
					depth++
				} else if t.Type == RParen && depth > 0 {
					depth--
				} else if depth == 0 && (t.Is("ON") || t.Is("USING")) {
					break
				}
				end++
			}
			st.parseRelation(i, end)
		}
	}
}

func (st *Statement) parseRelation(from, to int) {
	var rel Relation
	i := from
	if i < to && st.Tokens[i].Is("LATERAL") {
		rel.Lateral = true
		i++
	}
	if i >= to {
		return
	}

	t := st.Tokens[i]
	switch t.Type {
	case LParen:
		rel.Derived = true
		if sub := st.subqueryAt(i); sub != nil {
			rel.Subquery = sub
		} else {
			rel.Opaque = true
		}
		i = st.closing(i) + 1
	case Ident:
		var parts []string
		for i < to && st.Tokens[i].Type == Ident {
			parts = append(parts, st.Tokens[i].Literal)
			st.relationTokens[i] = true
			if i+2 < to && st.Tokens[i+1].Type == Dot {
				st.relationTokens[i+1] = true
				i += 2
				continue
			}
			i++
			break
		}
		if i < to && st.Tokens[i].Type == LParen {
			// Table function such as generate_series(...)
			rel.Derived = true
			rel.Opaque = true
			i = st.closing(i) + 1
		} else {
			rel.Table = parts[len(parts)-1]
			rel.Schema = strings.Join(parts[:len(parts)-1], ".")
		}
	default:
		return
	}

	if i < to && st.Tokens[i].Is("AS") {
		i++
	}
	if i < to && st.Tokens[i].Type == Ident {
		alias := st.Tokens[i]
		if alias.Quoted || !aliasStopWords[alias.Keyword()] {
			rel.Alias = alias.Literal
			st.relationTokens[i] = true
			i++
			if i < to && st.Tokens[i].Type == LParen {
				var cols []string
				for _, ct := range st.inner(i) {
					if ct.Type == Ident {
						cols = append(cols, ct.Literal)
					}
				}
				rel.Columns = cols
				rel.Opaque = false
				rel.Renamed = true
			}
		}
	}
	if rel.Alias == "" {
		rel.Alias = rel.Table
	}
	if rel.Derived && rel.Subquery != nil && rel.Columns == nil {
		cols, known := rel.Subquery.OutputColumns()
		rel.Columns = cols
		rel.Opaque = !known
	}

	st.Relations = append(st.Relations, rel)
}

func (st *Statement) subqueryAt(open int) *Statement {
	for _, sq := range st.subqueries {
		if sq.start == open {
			return sq.stmt
		}
	}
	return nil
}

// EmptySelect reports whether any SELECT clause of the statement has no
// select list
func (st *Statement) EmptySelect() bool {
	for _, c := range st.ClausesOf(ClauseSelect) {
		from := c.Start + 1
		for from < c.End && (st.Tokens[from].Is("DISTINCT") || st.Tokens[from].Is("ALL")) {
			from++
		}
		if from >= c.End {
			return true
		}
	}
	return false
}

// Subqueries returns the nested SELECT statements in source order
func (st *Statement) Subqueries() []*Statement {
	out := make([]*Statement, 0, len(st.subqueries))
	for _, sq := range st.subqueries {
		out = append(out, sq.stmt)
	}
	return out
}

// ClausesOf returns the clauses of one kind in source order
func (st *Statement) ClausesOf(kind ClauseKind) []Clause {
	var out []Clause
	for _, c := range st.Clauses {
		if c.Kind == kind {
			out = append(out, c)
		}
	}
	return out
}

// HasClause reports whether the statement has a top-level clause of this kind
func (st *Statement) HasClause(kind ClauseKind) bool {
	return len(st.ClausesOf(kind)) > 0
}

func (st *Statement) collectSelectAliases() {
	for _, c := range st.ClausesOf(ClauseSelect) {
		for _, item := range st.splitTopLevel(c.Start+1, c.End) {
			if idx, ok := st.itemAlias(item[0], item[1]); ok {
				st.aliasTokens[idx] = true
				st.SelectAliases = append(st.SelectAliases, st.Tokens[idx].Literal)
			}
		}
	}
}

// itemAlias finds the alias token of a select item: "expr AS x" or an
// implicit "expr x" where expr ends in a value-like token.
func (st *Statement) itemAlias(from, to int) (int, bool) {
	if to-from < 2 {
		return 0, false
	}
	last := st.Tokens[to-1]
	prev := st.Tokens[to-2]
	if last.Type != Ident {
		return 0, false
	}
	if prev.Is("AS") {
		return to - 1, true
	}
	if !last.Quoted && (sqlKeywords[last.Keyword()] || sqlFunctions[last.Keyword()]) {
		return 0, false
	}
	switch prev.Type {
	case RParen, Number, String:
		return to - 1, true
	case Ident:
		kw := prev.Keyword()
		if prev.Quoted || !sqlKeywords[kw] || valueKeywords[kw] {
			return to - 1, true
		}
		// "expr::type alias"
		if to-from >= 3 && st.Tokens[to-3].Type == Operator && st.Tokens[to-3].Literal == "::" {
			return to - 1, true
		}
	}
	return 0, false
}

// OutputColumns lists the column names the statement's first SELECT exposes.
// known is false when a star or an unnamed expression makes the set
// undeterminable.
func (st *Statement) OutputColumns() (cols []string, known bool) {
	selects := st.ClausesOf(ClauseSelect)
	if len(selects) == 0 {
		return nil, false
	}
	c := selects[0]
	for _, item := range st.splitTopLevel(c.Start+1, c.End) {
		from, to := item[0], item[1]
		if from < to && (st.Tokens[from].Is("DISTINCT") || st.Tokens[from].Is("ALL")) {
			from++
		}
		if from >= to {
			continue
		}
		if idx, ok := st.itemAlias(from, to); ok {
			cols = append(cols, st.Tokens[idx].Literal)
			continue
		}
		last := st.Tokens[to-1]
		switch {
		case last.Type == Star:
			return nil, false
		case last.Type == Ident && (to-from == 1 || st.Tokens[to-2].Type == Dot):
			cols = append(cols, last.Literal)
		default:
			return nil, false
		}
	}
	return cols, true
}
