package cypher

import (
	"fmt"
	"strings"

	"github.com/saulfrancisco-ruizacevedo/go-neograph/model"
)

const (
	and = "AND"
	or  = "OR"
)

var operators = map[string]string{
	"=":           "=",
	"<>":          "<>",
	"!=":          "<>",
	"<":           "<",
	"<=":          "<=",
	">":           ">",
	">=":          ">=",
	"=~":          "=~",
	"starts with": "STARTS WITH",
	"ends with":   "ENDS WITH",
	"contains":    "CONTAINS",
}

// NormalizeOperator returns the Cypher spelling of op, or false if op is unknown.
func NormalizeOperator(op string) (string, bool) {
	o, ok := operators[strings.ToLower(strings.TrimSpace(op))]
	return o, ok
}

type whereKind int

const (
	whereBasic whereKind = iota
	whereIn
	whereNull
	whereNested
	whereElementID
)

type where struct {
	kind    whereKind
	boolean string
	column  string
	op      string
	param   string
	not     bool
	nested  []*where
	refs    []string
}

type pattern struct {
	text string
	refs []string
	root bool
}

type aggregate struct {
	expr  string
	alias string
	refs  []string
}

// part is either a MATCH clause or, when aggregates is non-empty, a WITH stage.
type part struct {
	optional   bool
	patterns   []pattern
	wheres     []*where
	aggregates []aggregate
	// gate names the placeholder a nested count stage filters by projection.
	gate string
}

func (p *part) isStage() bool { return len(p.aggregates) > 0 }

type expr struct {
	text string
	refs []string
}

type orderBy struct {
	expr
	dir string
}

// namespace hands out unique names. Sub queries share the namespace of the
// query they will be merged into.
type namespace struct {
	used map[string]struct{}
}

func (n *namespace) claim(name string) string {
	candidate := name
	for i := 1; ; i++ {
		if _, ok := n.used[candidate]; !ok {
			n.used[candidate] = struct{}{}
			return candidate
		}
		candidate = fmt.Sprintf("%s_%d", name, i)
	}
}

func (n *namespace) peek(name string) string {
	candidate := name
	for i := 1; ; i++ {
		if _, ok := n.used[candidate]; !ok {
			return candidate
		}
		candidate = fmt.Sprintf("%s_%d", name, i)
	}
}

type bindings struct {
	names  namespace
	values map[string]any
}

func (b *bindings) bind(name string, value any) string {
	name = b.names.claim(sanitize(name))
	b.values[name] = value
	return name
}

// Query is a pattern query under construction. Unqualified columns refer to the
// primary placeholder; qualified ones must name a declared placeholder.
type Query struct {
	grammar  Grammar
	node     string
	labels   []string
	parts    []*part
	decl     map[string]*part
	order    []string
	ns       *namespace
	params   *bindings
	columns  []expr
	orders   []orderBy
	limit    int
	skip     int
	distinct bool
	err      error

	// group collects the wheres of a nested group instead of placing them.
	group *[]*where
}

// New starts a query matching (node:labels).
func New(node string, labels []string) *Query {
	q := &Query{
		node:   node,
		labels: append([]string(nil), labels...),
		decl:   make(map[string]*part),
		ns:     &namespace{used: make(map[string]struct{})},
		params: &bindings{names: namespace{used: make(map[string]struct{})}, values: make(map[string]any)},
		limit:  -1,
	}
	root := &part{}
	q.parts = []*part{root}
	root.patterns = append(root.patterns, pattern{text: q.grammar.NodePattern(node, labels), refs: []string{node}, root: true})
	q.declare(node, root)
	return q
}

// Node returns the primary placeholder.
func (q *Query) Node() string { return q.node }

// Labels returns the labels of the primary placeholder as the query was created.
func (q *Query) Labels() []string { return append([]string(nil), q.labels...) }

func (q *Query) Grammar() Grammar { return q.grammar }

// Err returns the first error recorded while building.
func (q *Query) Err() error { return q.err }

func (q *Query) fail(err error) {
	if q.err == nil {
		q.err = err
	}
}

// IsDeclared reports whether placeholder is visible to the query.
func (q *Query) IsDeclared(placeholder string) bool {
	_, ok := q.decl[q.grammar.CropLabelIdentifier(placeholder)]
	return ok
}

// Placeholders returns the declared placeholders in declaration order.
func (q *Query) Placeholders() []string {
	return append([]string(nil), q.order...)
}

// Unique returns name, or name suffixed with a counter when name is taken.
// The name is not reserved until it is declared.
func (q *Query) Unique(name string) string {
	return q.ns.peek(name)
}

func (q *Query) declare(name string, p *part) bool {
	if _, ok := q.decl[name]; ok {
		q.fail(&ReferenceError{Identifier: name, Duplicate: true})
		return false
	}
	q.ns.claim(name)
	q.decl[name] = p
	q.order = append(q.order, name)
	return true
}

func (q *Query) undeclare(name string) {
	delete(q.decl, name)
	for i, n := range q.order {
		if n == name {
			q.order = append(q.order[:i:i], q.order[i+1:]...)
			break
		}
	}
}

// From rebinds the primary placeholder and returns the previous one.
func (q *Query) From(node string) string {
	prev := q.node
	node = q.grammar.CropLabelIdentifier(node)
	if _, ok := q.decl[node]; !ok {
		q.fail(&ReferenceError{Identifier: node})
		return prev
	}
	q.node = node
	return prev
}

func (q *Query) indexOf(p *part) int {
	for i, candidate := range q.parts {
		if candidate == p {
			return i
		}
	}
	return -1
}

// qualify namespaces column and returns the referenced placeholders.
func (q *Query) qualify(column string) (string, []string, bool) {
	column = strings.TrimSpace(column)
	if strings.ContainsAny(column, "( ") {
		return q.expression(column)
	}
	if i := strings.Index(column, "."); i > 0 {
		node := q.grammar.CropLabelIdentifier(column[:i])
		if _, ok := q.decl[node]; !ok {
			q.fail(&ReferenceError{Identifier: node})
			return "", nil, false
		}
		return node + column[i:], []string{node}, true
	}
	if p, ok := q.decl[column]; ok && p.isStage() {
		return column, []string{column}, true
	}
	return q.node + "." + column, []string{q.node}, true
}

// expression collects the declared placeholders an expression refers to and
// fails on qualified references to unknown ones.
func (q *Query) expression(text string) (string, []string, bool) {
	var refs []string
	seen := make(map[string]bool)
	for _, m := range qualified.FindAllStringSubmatch(text, -1) {
		if _, ok := q.decl[m[2]]; !ok {
			q.fail(&ReferenceError{Identifier: m[2]})
			return "", nil, false
		}
	}
	for _, id := range identifier.FindAllString(text, -1) {
		if _, ok := q.decl[id]; ok && !seen[id] {
			seen[id] = true
			refs = append(refs, id)
		}
	}
	return text, refs, true
}

func (q *Query) addWhere(w *where) {
	if q.group != nil {
		*q.group = append(*q.group, w)
		return
	}
	target, idx := q.parts[0], 0
	for _, ref := range w.refs {
		if i := q.indexOf(q.decl[ref]); i > idx {
			target, idx = q.parts[i], i
		}
	}
	target.wheres = append(target.wheres, w)
}

func (q *Query) where(column, op string, value any, boolean string) *Query {
	operator, ok := NormalizeOperator(op)
	if !ok {
		q.fail(&OperatorError{Operator: op})
		return q
	}
	if value == nil {
		switch operator {
		case "=":
			return q.whereNull(column, false, boolean)
		case "<>":
			return q.whereNull(column, true, boolean)
		}
	}
	col, refs, ok := q.qualify(column)
	if !ok {
		return q
	}
	q.addWhere(&where{kind: whereBasic, boolean: boolean, column: col, op: operator, param: q.params.bind(col, value), refs: refs})
	return q
}

// Where adds `column op value` joined with AND. A nil value compares with IS NULL.
func (q *Query) Where(column, op string, value any) *Query {
	return q.where(column, op, value, and)
}

// OrWhere adds `column op value` joined with OR.
func (q *Query) OrWhere(column, op string, value any) *Query {
	return q.where(column, op, value, or)
}

func (q *Query) whereIn(column string, values any, not bool, boolean string) *Query {
	col, refs, ok := q.qualify(column)
	if !ok {
		return q
	}
	q.addWhere(&where{kind: whereIn, boolean: boolean, column: col, not: not, param: q.params.bind(col, values), refs: refs})
	return q
}

func (q *Query) WhereIn(column string, values any) *Query {
	return q.whereIn(column, values, false, and)
}

func (q *Query) OrWhereIn(column string, values any) *Query {
	return q.whereIn(column, values, false, or)
}

func (q *Query) WhereNotIn(column string, values any) *Query {
	return q.whereIn(column, values, true, and)
}

func (q *Query) whereNull(column string, not bool, boolean string) *Query {
	col, refs, ok := q.qualify(column)
	if !ok {
		return q
	}
	q.addWhere(&where{kind: whereNull, boolean: boolean, column: col, not: not, refs: refs})
	return q
}

func (q *Query) WhereNull(column string) *Query {
	return q.whereNull(column, false, and)
}

func (q *Query) WhereNotNull(column string) *Query {
	return q.whereNull(column, true, and)
}

func (q *Query) OrWhereNull(column string) *Query {
	return q.whereNull(column, false, or)
}

func (q *Query) whereNested(fn func(*Query), boolean string) *Query {
	var collected []*where
	g := *q
	g.group = &collected
	fn(&g)
	q.fail(g.err)
	if len(collected) == 0 {
		return q
	}
	var refs []string
	seen := make(map[string]bool)
	for _, w := range collected {
		for _, r := range w.refs {
			if !seen[r] {
				seen[r] = true
				refs = append(refs, r)
			}
		}
	}
	q.addWhere(&where{kind: whereNested, boolean: boolean, nested: collected, refs: refs})
	return q
}

// WhereNested groups the conditions added by fn in parentheses.
func (q *Query) WhereNested(fn func(*Query)) *Query {
	return q.whereNested(fn, and)
}

func (q *Query) OrWhereNested(fn func(*Query)) *Query {
	return q.whereNested(fn, or)
}

// WhereElementID filters placeholder, or the primary one when empty, on its graph identity.
func (q *Query) WhereElementID(placeholder, id string) *Query {
	if placeholder == "" {
		placeholder = q.node
	}
	placeholder = q.grammar.CropLabelIdentifier(placeholder)
	if _, ok := q.decl[placeholder]; !ok {
		q.fail(&ReferenceError{Identifier: placeholder})
		return q
	}
	q.addWhere(&where{
		kind:    whereElementID,
		boolean: and,
		column:  placeholder,
		param:   q.params.bind(placeholder+"_element_id", id),
		refs:    []string{placeholder},
	})
	return q
}

// Match describes a relation pattern between two placeholders. An empty
// RelatedLabels leaves the related node untyped, as polymorphic targets are,
// and an empty EdgeType matches edges of any type.
type Match struct {
	Parent        string
	ParentLabels  []string
	Related       string
	RelatedLabels []string
	Edge          string
	EdgeType      string
	Direction     model.Direction
}

func (q *Query) relationPattern(m Match) pattern {
	related := "(" + m.Related + q.grammar.WrapLabels(m.RelatedLabels) + ")"
	edge := "[" + m.Edge + "]"
	if m.EdgeType != "" {
		edge = "[" + m.Edge + ":`" + strings.ReplaceAll(m.EdgeType, "`", "``") + "`]"
	}
	text := "(" + m.Parent + ")-" + edge + "->" + related
	if m.Direction == model.In {
		text = "(" + m.Parent + ")<-" + edge + "-" + related
	}
	return pattern{text: text, refs: []string{m.Parent, m.Related, m.Edge}}
}

// rootReplaceable reports whether the root pattern is unused, so a relation
// match may start from its parent instead.
func (q *Query) rootReplaceable() bool {
	if len(q.parts) != 1 || len(q.parts[0].patterns) != 1 || !q.parts[0].patterns[0].root {
		return false
	}
	return len(q.parts[0].wheres) == 0 && len(q.columns) == 0 && len(q.orders) == 0
}

// Relate adds the pattern of m to the query. When the parent placeholder is
// not declared yet it becomes the root of the query, replacing the unused root
// node pattern; a primary placeholder bound to that root moves to m.Related.
func (q *Query) Relate(m Match) *Query {
	if m.Edge == "" {
		m.Edge = q.grammar.EdgePlaceholder(m.EdgeType, m.Related)
	}
	if _, ok := q.decl[m.Parent]; !ok {
		root := q.parts[0]
		parentPattern := pattern{text: q.grammar.NodePattern(m.Parent, m.ParentLabels), refs: []string{m.Parent}, root: true}
		if q.rootReplaceable() {
			old := root.patterns[0].refs[0]
			q.undeclare(old)
			root.patterns[0] = parentPattern
			if q.node == old {
				q.node = m.Related
			}
		} else {
			root.patterns = append(root.patterns, parentPattern)
		}
		q.declare(m.Parent, root)
	}

	target := q.parts[len(q.parts)-1]
	if target.optional || target.isStage() {
		target = &part{}
		q.parts = append(q.parts, target)
	}
	target.patterns = append(target.patterns, q.relationPattern(m))
	q.declare(m.Related, target)
	q.declare(m.Edge, target)
	return q
}

// Sub starts a query on node that shares names and parameters with q, so it can
// later be merged into q by Has without collisions. Placeholders of q remain
// visible to it.
func (q *Query) Sub(node string, labels []string) *Query {
	sub := &Query{
		node:   node,
		labels: append([]string(nil), labels...),
		decl:   make(map[string]*part, len(q.decl)+1),
		ns:     q.ns,
		params: q.params,
		limit:  -1,
	}
	for k, v := range q.decl {
		sub.decl[k] = v
	}
	sub.order = append(sub.order, q.order...)
	root := &part{}
	sub.parts = []*part{root}
	root.patterns = append(root.patterns, pattern{text: q.grammar.NodePattern(node, labels), refs: []string{node}, root: true})
	sub.declare(node, root)
	return sub
}

// Has adds an OPTIONAL MATCH over m, merges the constraints of sub (which may be
// nil) into it and keeps only the rows whose distinct count of m.Related
// compares to count with op. Consecutive OR conditions share one WITH stage.
// Count stages merged from sub project m.Related to null on failing rows
// instead of dropping them.
func (q *Query) Has(m Match, sub *Query, op string, count int, boolean string) *Query {
	operator, ok := NormalizeOperator(op)
	if !ok {
		q.fail(&OperatorError{Operator: op})
		return q
	}
	if _, ok := q.decl[m.Parent]; !ok {
		q.fail(&ReferenceError{Identifier: m.Parent})
		return q
	}
	if m.Edge == "" {
		m.Edge = q.grammar.EdgePlaceholder(m.EdgeType, m.Related)
	}
	boolean = strings.ToUpper(boolean)
	if boolean != or {
		boolean = and
	}

	clause := &part{optional: true, patterns: []pattern{q.relationPattern(m)}}
	added := []*part{clause}
	if !q.declare(m.Related, clause) || !q.declare(m.Edge, clause) {
		return q
	}

	if sub != nil {
		q.fail(sub.err)
		subRoot := sub.parts[0]
		for _, p := range subRoot.patterns {
			if !p.root {
				clause.patterns = append(clause.patterns, p)
			}
		}
		if len(subRoot.wheres) > 0 {
			refs := []string{m.Related}
			for _, w := range subRoot.wheres {
				refs = append(refs, w.refs...)
			}
			clause.wheres = append(clause.wheres, &where{kind: whereNested, boolean: and, nested: subRoot.wheres, refs: refs})
		}
		for _, p := range sub.parts[1:] {
			if p.isStage() && p.gate == "" {
				p.gate = m.Related
			}
		}
		added = append(added, sub.parts[1:]...)
		for _, name := range sub.order {
			if _, outer := q.decl[name]; outer {
				continue
			}
			p := sub.decl[name]
			if p == subRoot {
				p = clause
			}
			q.decl[name] = p
			q.order = append(q.order, name)
		}
	}

	alias := q.ns.claim(m.Related + "_count")
	cond := &where{kind: whereBasic, boolean: boolean, column: alias, op: operator, refs: []string{alias}}
	cond.param = q.params.bind(alias, count)
	agg := aggregate{expr: "count(DISTINCT " + m.Related + ")", alias: alias, refs: []string{m.Related}}

	last := q.parts[len(q.parts)-1]
	if boolean == or && last.isStage() {
		rest := append([]*part(nil), q.parts[:len(q.parts)-1]...)
		q.parts = append(append(rest, added...), last)
		last.aggregates = append(last.aggregates, agg)
		last.wheres = append(last.wheres, cond)
	} else {
		cond.boolean = and
		stage := &part{aggregates: []aggregate{agg}, wheres: []*where{cond}}
		q.parts = append(append(q.parts, added...), stage)
		last = stage
	}
	q.decl[alias] = last
	q.order = append(q.order, alias)
	return q
}

// Select replaces the projection. Columns are placeholders or expressions.
func (q *Query) Select(columns ...string) *Query {
	q.columns = nil
	return q.AddSelect(columns...)
}

// AddSelect appends to the projection.
func (q *Query) AddSelect(columns ...string) *Query {
	for _, c := range columns {
		c = strings.TrimSpace(c)
		if !strings.ContainsAny(c, "(.{ ") {
			c = q.grammar.CropLabelIdentifier(c)
			if _, ok := q.decl[c]; !ok {
				q.fail(&ReferenceError{Identifier: c})
				return q
			}
		}
		text, refs, ok := q.expression(c)
		if !ok {
			return q
		}
		q.columns = append(q.columns, expr{text: text, refs: refs})
	}
	return q
}

// Columns returns the projection, which defaults to the primary placeholder.
func (q *Query) Columns() []string {
	if len(q.columns) == 0 {
		return []string{q.node}
	}
	out := make([]string, 0, len(q.columns))
	for _, c := range q.columns {
		out = append(out, c.text)
	}
	return out
}

// OrderBy sorts by column, namespaced like a filter. direction is ASC or DESC.
func (q *Query) OrderBy(column, direction string) *Query {
	col, refs, ok := q.qualify(column)
	if !ok {
		return q
	}
	dir := "ASC"
	if strings.EqualFold(direction, "desc") {
		dir = "DESC"
	}
	q.orders = append(q.orders, orderBy{expr: expr{text: col, refs: refs}, dir: dir})
	return q
}

func (q *Query) Limit(n int) *Query {
	q.limit = n
	return q
}

func (q *Query) Skip(n int) *Query {
	if n < 0 {
		n = 0
	}
	q.skip = n
	return q
}

// ForPage sets skip and limit for the 1-based page.
func (q *Query) ForPage(page, perPage int) *Query {
	if page < 1 {
		page = 1
	}
	return q.Skip((page - 1) * perPage).Limit(perPage)
}

// Distinct returns distinct rows.
func (q *Query) Distinct() *Query {
	q.distinct = true
	return q
}

// Params returns a copy of the bound parameters.
func (q *Query) Params() map[string]any {
	out := make(map[string]any, len(q.params.values))
	for k, v := range q.params.values {
		out[k] = v
	}
	return out
}

// Clone deep copies the query. The clone has its own patterns, filters, stages
// and parameters.
func (q *Query) Clone() *Query {
	c := *q
	c.group = nil
	remap := make(map[*part]*part, len(q.parts))
	c.parts = make([]*part, 0, len(q.parts))
	for _, p := range q.parts {
		np := &part{
			optional:   p.optional,
			patterns:   append([]pattern(nil), p.patterns...),
			wheres:     cloneWheres(p.wheres),
			aggregates: append([]aggregate(nil), p.aggregates...),
			gate:       p.gate,
		}
		remap[p] = np
		c.parts = append(c.parts, np)
	}
	c.decl = make(map[string]*part, len(q.decl))
	for k, p := range q.decl {
		if np, ok := remap[p]; ok {
			c.decl[k] = np
		} else {
			c.decl[k] = p
		}
	}
	c.order = append([]string(nil), q.order...)
	c.labels = append([]string(nil), q.labels...)
	c.columns = append([]expr(nil), q.columns...)
	c.orders = append([]orderBy(nil), q.orders...)
	c.ns = &namespace{used: make(map[string]struct{}, len(q.ns.used))}
	for k := range q.ns.used {
		c.ns.used[k] = struct{}{}
	}
	c.params = &bindings{
		names:  namespace{used: make(map[string]struct{}, len(q.params.names.used))},
		values: q.Params(),
	}
	for k := range q.params.names.used {
		c.params.names.used[k] = struct{}{}
	}
	return &c
}

func cloneWheres(ws []*where) []*where {
	if ws == nil {
		return nil
	}
	out := make([]*where, 0, len(ws))
	for _, w := range ws {
		nw := *w
		nw.refs = append([]string(nil), w.refs...)
		nw.nested = cloneWheres(w.nested)
		out = append(out, &nw)
	}
	return out
}
