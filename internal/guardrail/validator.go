// Package guardrail checks generated SQL before it may run: read-only SELECT
// statements only, and every table and column must exist in the catalog.
package guardrail

import (
	"fmt"
	"strings"

	"github.com/seanankenbruck/analytics-sql-ai/internal/schema"
)

// Validator checks candidate SQL against a schema catalog. It holds no
// per-call state and is safe for concurrent use.
type Validator struct {
	forbidden map[string]bool
}

// NewValidator creates a validator with the standard forbidden keyword set
// plus any extra words given.
func NewValidator(extraForbidden ...string) *Validator {
	forbidden := make(map[string]bool, len(forbiddenKeywords)+len(extraForbidden))
	for w := range forbiddenKeywords {
		forbidden[w] = true
	}
	for _, w := range extraForbidden {
		if w = strings.ToUpper(strings.TrimSpace(w)); w != "" {
			forbidden[w] = true
		}
	}
	return &Validator{forbidden: forbidden}
}

var defaultValidator = NewValidator()

// Validate checks sql with the default validator
func Validate(sql string, catalog *schema.Catalog) Outcome {
	return defaultValidator.Validate(sql, catalog)
}

// Validate runs every check in order and returns the first violation found.
// The same input always produces the same outcome.
func (v *Validator) Validate(sql string, catalog *schema.Catalog) Outcome {
	if word, ok := v.firstForbiddenWord(sql); ok {
		return forbidden(fmt.Sprintf("Forbidden SQL keyword detected: %s", word), word)
	}

	st := Parse(sql)
	if st.Kind != StatementSelect {
		return forbidden("Only SELECT queries are allowed", "")
	}
	if len(st.Trailing) > 0 {
		return forbidden("Only a single SELECT statement is allowed", "")
	}
	if !st.Balanced() {
		return forbidden("Unbalanced parentheses in SELECT statement", "")
	}
	if catalog == nil {
		return Outcome{Kind: HallucinatedTable, Message: "No schema catalog is loaded"}
	}

	scopes := buildScopes(st, nil, false)
	for _, sc := range scopes {
		if sc.stmt.EmptySelect() {
			return forbidden("SELECT list is empty", "")
		}
	}
	for _, sc := range scopes {
		if out := sc.resolveRelations(catalog); !out.Valid() {
			return out
		}
	}
	for _, sc := range scopes {
		if out := sc.checkQualified(catalog); !out.Valid() {
			return out
		}
	}
	for _, sc := range scopes {
		if out := sc.checkBare(catalog); !out.Valid() {
			return out
		}
	}
	return valid()
}

// firstForbiddenWord scans the raw text, literals and comments included, for
// whole-word forbidden keywords.
func (v *Validator) firstForbiddenWord(sql string) (string, bool) {
	start := -1
	for i := 0; i <= len(sql); i++ {
		if i < len(sql) && isWordByte(sql[i]) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			word := strings.ToUpper(sql[start:i])
			if v.forbidden[word] {
				return word, true
			}
			start = -1
		}
	}
	return "", false
}

func isWordByte(b byte) bool {
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}

// scope is one statement in the nesting tree. Names resolve through the
// enclosing scopes so correlated subqueries see outer aliases. An isolated
// scope is the body of a CTE or a non-lateral derived table; it does not see
// the relations or select aliases of the statement that defines it.
type scope struct {
	parent    *scope
	isolated  bool
	stmt      *Statement
	relations []resolvedRelation
	ctes      map[string]CTE
	aliases   map[string]bool
	index     map[*Statement]*scope
}

// maxDerivedDepth bounds column derivation through nested and recursive bodies
const maxDerivedDepth = 16

type resolvedRelation struct {
	Relation
	table *schema.Table

	// body is the scope a derived relation selects from; nil for table functions
	body     *scope
	declared []string

	columns  map[string]bool
	known    bool
	resolved bool
}

// exposed returns the columns a relation makes visible and whether that list
// is complete
func (r *resolvedRelation) exposed(catalog *schema.Catalog, depth int) (map[string]bool, bool) {
	if r.table != nil {
		return columnSet(r.table.Columns()), true
	}
	if !r.resolved {
		r.columns, r.known = r.deriveColumns(catalog, depth)
		r.resolved = true
	}
	return r.columns, r.known
}

func (r *resolvedRelation) deriveColumns(catalog *schema.Catalog, depth int) (map[string]bool, bool) {
	switch {
	case len(r.declared) > 0:
		return columnSet(r.declared), true
	case r.body != nil && depth < maxDerivedDepth:
		return r.body.outputColumns(catalog, depth+1)
	case r.body == nil && r.Alias != "":
		// a scalar table function exposes one column named after its alias
		return columnSet([]string{r.Alias}), false
	}
	return map[string]bool{}, false
}

// has reports whether a derived relation supplies column. When its column
// list is incomplete only names the catalog knows are let through.
func (r *resolvedRelation) has(column string, catalog *schema.Catalog) bool {
	cols, known := r.exposed(catalog, 0)
	if cols[strings.ToLower(column)] {
		return true
	}
	return !known && catalog.HasColumn(column)
}

// definedBy reports whether r is the relation whose body is the scope from
func (r *resolvedRelation) definedBy(from *scope) bool {
	return from != nil && r.body == from
}

func columnSet(cols []string) map[string]bool {
	set := make(map[string]bool, len(cols))
	for _, c := range cols {
		set[strings.ToLower(c)] = true
	}
	return set
}

func buildScopes(st *Statement, parent *scope, isolated bool) []*scope {
	sc := &scope{
		parent:   parent,
		isolated: isolated,
		stmt:     st,
		ctes:     make(map[string]CTE),
		aliases:  make(map[string]bool),
	}
	if parent != nil {
		sc.index = parent.index
	} else {
		sc.index = make(map[*Statement]*scope)
	}
	sc.index[st] = sc

	for _, cte := range st.CTEs {
		sc.ctes[strings.ToLower(cte.Name)] = cte
	}
	for _, a := range st.SelectAliases {
		sc.aliases[strings.ToLower(a)] = true
	}

	scopes := []*scope{sc}
	for _, cte := range st.CTEs {
		if cte.Body != nil && cte.Body.Kind == StatementSelect {
			scopes = append(scopes, buildScopes(cte.Body, sc, true)...)
		}
	}
	for _, sub := range st.Subqueries() {
		if sub.Kind == StatementSelect {
			scopes = append(scopes, buildScopes(sub, sc, st.isolates(sub))...)
		}
	}
	return scopes
}

// isolates reports whether sub is the body of a non-lateral derived table
func (st *Statement) isolates(sub *Statement) bool {
	for _, rel := range st.Relations {
		if rel.Subquery == sub {
			return !rel.Lateral
		}
	}
	return false
}

// reachable walks sc and its enclosing scopes. from is the child scope the
// walk arrived through, nil at sc itself.
func (sc *scope) reachable(fn func(s, from *scope) bool) {
	var from *scope
	for s := sc; s != nil; from, s = s, s.parent {
		if !fn(s, from) {
			return
		}
	}
}

func sees(from *scope) bool {
	return from == nil || !from.isolated
}

func (sc *scope) lookupCTE(name string) (CTE, bool) {
	key := strings.ToLower(name)
	var (
		found CTE
		ok    bool
	)
	sc.reachable(func(s, from *scope) bool {
		cte, exists := s.ctes[key]
		if !exists {
			return true
		}
		// only a recursive CTE may read from itself
		if from != nil && cte.Body == from.stmt && !cte.Recursive {
			return true
		}
		found, ok = cte, true
		return false
	})
	return found, ok
}

func (sc *scope) lookupRelation(alias string) *resolvedRelation {
	var found *resolvedRelation
	sc.reachable(func(s, from *scope) bool {
		if !sees(from) {
			return true
		}
		for i := range s.relations {
			r := &s.relations[i]
			if strings.EqualFold(r.Alias, alias) && !r.definedBy(from) {
				found = r
				return false
			}
		}
		return true
	})
	return found
}

// ownRelation finds a relation of this statement only
func (sc *scope) ownRelation(alias string) *resolvedRelation {
	for i := range sc.relations {
		if strings.EqualFold(sc.relations[i].Alias, alias) {
			return &sc.relations[i]
		}
	}
	return nil
}

func (sc *scope) isAlias(name string) bool {
	key := strings.ToLower(name)
	found := false
	sc.reachable(func(s, from *scope) bool {
		if !sees(from) {
			return true
		}
		if s.aliases[key] {
			found = true
			return false
		}
		for i := range s.relations {
			if strings.ToLower(s.relations[i].Alias) == key && !s.relations[i].definedBy(from) {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

func (sc *scope) visibleRelations() []*resolvedRelation {
	var out []*resolvedRelation
	sc.reachable(func(s, from *scope) bool {
		if !sees(from) {
			return true
		}
		for i := range s.relations {
			if !s.relations[i].definedBy(from) {
				out = append(out, &s.relations[i])
			}
		}
		return true
	})
	return out
}

// outputColumns lists the columns the statement's first SELECT exposes, with
// stars expanded through the statement's own relations
func (sc *scope) outputColumns(catalog *schema.Catalog, depth int) (map[string]bool, bool) {
	st := sc.stmt
	cols := make(map[string]bool)
	selects := st.ClausesOf(ClauseSelect)
	if len(selects) == 0 {
		return cols, false
	}

	known := true
	merge := func(r *resolvedRelation) {
		rc, ok := r.exposed(catalog, depth)
		for c := range rc {
			cols[c] = true
		}
		known = known && ok
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
			cols[strings.ToLower(st.Tokens[idx].Literal)] = true
			continue
		}

		last := st.Tokens[to-1]
		switch {
		case last.Type == Star && to-from == 1:
			for i := range sc.relations {
				merge(&sc.relations[i])
			}
		case last.Type == Star && to-from >= 3 && st.Tokens[to-2].Type == Dot && st.Tokens[to-3].Type == Ident:
			if r := sc.ownRelation(st.Tokens[to-3].Literal); r != nil {
				merge(r)
			} else {
				known = false
			}
		case last.Type == Ident && (to-from == 1 || st.Tokens[to-2].Type == Dot):
			cols[strings.ToLower(last.Literal)] = true
		default:
			known = false
		}
	}
	return cols, known
}

// cteRelation binds a CTE reference to the body it reads from
func (sc *scope) cteRelation(rel Relation, cte CTE) resolvedRelation {
	r := resolvedRelation{Relation: rel, body: sc.index[cte.Body], declared: cte.Columns}
	r.Derived = true
	if rel.Renamed {
		r.declared = rel.Columns
	}
	return r
}

// resolveRelations binds every FROM/JOIN entry to a catalog table, a CTE or
// a derived table, rejecting unknown tables.
func (sc *scope) resolveRelations(catalog *schema.Catalog) Outcome {
	for _, rel := range sc.stmt.Relations {
		r := resolvedRelation{Relation: rel}
		switch {
		case rel.Derived:
			if rel.Renamed {
				r.declared = rel.Columns
			}
			if rel.Subquery != nil {
				r.body = sc.index[rel.Subquery]
			}
		default:
			if cte, ok := sc.lookupCTE(rel.Table); ok && rel.Schema == "" {
				r = sc.cteRelation(rel, cte)
				break
			}
			t, ok := catalog.LookupTable(rel.Table)
			if !ok {
				return hallucinatedTable(rel.Table, catalog)
			}
			r.table = t
		}
		sc.relations = append(sc.relations, r)
	}
	return valid()
}

func hallucinatedTable(name string, catalog *schema.Catalog) Outcome {
	out := Outcome{
		Kind:       HallucinatedTable,
		Message:    fmt.Sprintf("Hallucinated table: %s", name),
		Identifier: name,
	}
	if match, ok := closestMatch(name, catalog.TableNames()); ok {
		out.Suggestion = match
		out.Message += fmt.Sprintf(". Did you mean: %s?", match)
	}
	return out
}

func hallucinatedColumn(ref string, column string, candidates []string) Outcome {
	out := Outcome{
		Kind:       HallucinatedColumn,
		Message:    fmt.Sprintf("Hallucinated column: %s", ref),
		Identifier: ref,
	}
	if match, ok := closestMatch(column, candidates); ok {
		out.Suggestion = match
		out.Message += fmt.Sprintf(". Did you mean: %s?", match)
	}
	return out
}

// eachToken visits token indices of a clause, skipping nested subqueries
func (st *Statement) eachToken(c Clause, fn func(i int) bool) {
	for i := c.Start; i < c.End && i < len(st.Tokens); i++ {
		if st.Tokens[i].Type == LParen {
			if sub := st.subqueryAt(i); sub != nil {
				i = st.closing(i)
				continue
			}
		}
		if !fn(i) {
			return
		}
	}
}

// checkQualified validates every alias.column and table.column reference
func (sc *scope) checkQualified(catalog *schema.Catalog) Outcome {
	st := sc.stmt
	result := valid()

	for _, c := range st.Clauses {
		st.eachToken(c, func(i int) bool {
			parts, next, ok := st.qualifiedChain(i, c.End)
			if !ok {
				return true
			}
			if next < len(st.Tokens) && st.Tokens[next].Type == LParen {
				// schema-qualified function call
				return true
			}
			result = sc.checkReference(parts[len(parts)-2], parts[len(parts)-1], catalog)
			return result.Valid()
		})
		if !result.Valid() {
			return result
		}
	}
	return result
}

// qualifiedChain reads "a.b" or "a.b.c" (the last part may be "*") starting at
// i. It returns the parts and the index just past the chain.
func (st *Statement) qualifiedChain(i, end int) ([]string, int, bool) {
	t := st.Tokens[i]
	if t.Type != Ident || st.relationTokens[i] {
		return nil, 0, false
	}
	if i > 0 && st.Tokens[i-1].Type == Dot {
		return nil, 0, false
	}

	parts := []string{t.Literal}
	j := i
	for j+2 < end && st.Tokens[j+1].Type == Dot {
		nt := st.Tokens[j+2]
		if nt.Type == Star {
			parts = append(parts, "*")
			j += 2
			break
		}
		if nt.Type != Ident {
			break
		}
		parts = append(parts, nt.Literal)
		j += 2
	}
	if len(parts) < 2 {
		return nil, 0, false
	}
	return parts, j + 1, true
}

func (sc *scope) checkReference(qualifier, column string, catalog *schema.Catalog) Outcome {
	ref := qualifier + "." + column

	if rel := sc.lookupRelation(qualifier); rel != nil {
		if rel.table == nil {
			return checkDerivedColumn(rel, ref, column, catalog)
		}
		return checkTableColumn(rel.table, ref, column, catalog)
	}

	if cte, ok := sc.lookupCTE(qualifier); ok {
		r := sc.cteRelation(Relation{Table: cte.Name, Alias: cte.Name}, cte)
		return checkDerivedColumn(&r, ref, column, catalog)
	}

	t, ok := catalog.LookupTable(qualifier)
	if !ok {
		return hallucinatedTable(qualifier, catalog)
	}
	return checkTableColumn(t, ref, column, catalog)
}

func checkDerivedColumn(r *resolvedRelation, ref, column string, catalog *schema.Catalog) Outcome {
	if column == "*" || r.has(column, catalog) {
		return valid()
	}
	cols, _ := r.exposed(catalog, 0)
	return hallucinatedColumn(ref, column, keys(cols))
}

func checkTableColumn(t *schema.Table, ref, column string, catalog *schema.Catalog) Outcome {
	if column == "*" || t.HasColumn(column) {
		return valid()
	}
	return hallucinatedColumn(ref, column, catalog.AllColumns())
}

var bareColumnClauses = map[ClauseKind]bool{
	ClauseSelect:  true,
	ClauseWhere:   true,
	ClauseGroupBy: true,
	ClauseHaving:  true,
	ClauseOrderBy: true,
}

// checkBare validates unqualified identifiers that can only be columns
func (sc *scope) checkBare(catalog *schema.Catalog) Outcome {
	st := sc.stmt
	result := valid()

	for _, c := range st.Clauses {
		if !bareColumnClauses[c.Kind] {
			continue
		}
		st.eachToken(c, func(i int) bool {
			if !st.isBareColumn(i) {
				return true
			}
			result = sc.checkBareColumn(st.Tokens[i].Literal, catalog)
			return result.Valid()
		})
		if !result.Valid() {
			return result
		}
	}
	return result
}

// isBareColumn filters out keywords, functions, aliases and qualified parts
func (st *Statement) isBareColumn(i int) bool {
	t := st.Tokens[i]
	if t.Type != Ident || st.aliasTokens[i] || st.relationTokens[i] {
		return false
	}
	if i > 0 {
		prev := st.Tokens[i-1]
		if prev.Type == Dot || prev.Is("AS") || prev.Is("OVER") {
			return false
		}
		if prev.Type == Operator && prev.Literal == "::" {
			return false
		}
	}
	if i+1 < len(st.Tokens) {
		next := st.Tokens[i+1]
		if next.Type == Dot || next.Type == LParen {
			return false
		}
	}
	if !t.Quoted {
		kw := t.Keyword()
		if sqlKeywords[kw] || sqlFunctions[kw] {
			return false
		}
	}
	return true
}

func (sc *scope) checkBareColumn(name string, catalog *schema.Catalog) Outcome {
	if catalog.HasTable(name) || sc.isAlias(name) {
		return valid()
	}
	if _, ok := sc.lookupCTE(name); ok {
		return valid()
	}

	rels := sc.visibleRelations()
	for _, r := range rels {
		if r.table == nil && r.has(name, catalog) {
			return valid()
		}
	}

	if !catalog.HasColumn(name) {
		return hallucinatedColumn(name, name, catalog.AllColumns())
	}
	if len(rels) == 0 {
		return valid()
	}
	for _, r := range rels {
		if r.table != nil && r.table.HasColumn(name) {
			return valid()
		}
	}

	owners := catalog.TablesContaining(name)
	return Outcome{
		Kind: HallucinatedColumn,
		Message: fmt.Sprintf("Hallucinated column: %s. Column '%s' exists in table '%s'. Did you mean to JOIN that table?",
			name, name, owners[0]),
		Identifier: name,
		Suggestion: owners[0],
	}
}

func keys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
