package cypher

import (
	"sort"
	"strconv"
	"strings"
)

// AggregateColumn is the column holding the result of count, update and delete queries.
const AggregateColumn = "aggregate"

// Compile renders the query with its projection, order and window.
func (q *Query) Compile() (string, map[string]any, error) {
	if q.err != nil {
		return "", nil, q.err
	}
	cols := q.projection()
	final := make(map[string]bool)
	for _, c := range cols {
		mark(final, c.refs)
	}
	for _, o := range q.orders {
		mark(final, o.refs)
	}

	var b strings.Builder
	q.writeBody(&b, final)
	b.WriteString("RETURN ")
	if q.distinct {
		b.WriteString("DISTINCT ")
	}
	texts := make([]string, 0, len(cols))
	for _, c := range cols {
		texts = append(texts, c.text)
	}
	b.WriteString(strings.Join(texts, ", "))
	if len(q.orders) > 0 {
		parts := make([]string, 0, len(q.orders))
		for _, o := range q.orders {
			parts = append(parts, o.text+" "+o.dir)
		}
		b.WriteString(" ORDER BY " + strings.Join(parts, ", "))
	}
	if q.skip > 0 {
		b.WriteString(" SKIP " + strconv.Itoa(q.skip))
	}
	if q.limit >= 0 {
		b.WriteString(" LIMIT " + strconv.Itoa(q.limit))
	}
	return b.String(), q.Params(), nil
}

// CompileCount renders the number of distinct primary nodes matched, ignoring
// projection, order and window.
func (q *Query) CompileCount() (string, map[string]any, error) {
	if q.err != nil {
		return "", nil, q.err
	}
	var b strings.Builder
	q.writeBody(&b, map[string]bool{q.node: true})
	b.WriteString("RETURN count(DISTINCT " + q.node + ") AS " + AggregateColumn)
	return b.String(), q.Params(), nil
}

// CompileUpdate renders a SET of values on the primary node.
func (q *Query) CompileUpdate(values map[string]any) (string, map[string]any, error) {
	if q.err != nil {
		return "", nil, q.err
	}
	c := q.Clone()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	sets := make([]string, 0, len(keys))
	for _, k := range keys {
		col := c.node + "." + k
		sets = append(sets, col+" = $"+c.params.bind(col, values[k]))
	}

	var b strings.Builder
	c.writeBody(&b, map[string]bool{c.node: true})
	if len(sets) > 0 {
		b.WriteString("SET " + strings.Join(sets, ", ") + " ")
	}
	b.WriteString("RETURN count(DISTINCT " + c.node + ") AS " + AggregateColumn)
	return b.String(), c.Params(), nil
}

// CompileDelete renders a DETACH DELETE of the primary node.
func (q *Query) CompileDelete() (string, map[string]any, error) {
	if q.err != nil {
		return "", nil, q.err
	}
	var b strings.Builder
	q.writeBody(&b, map[string]bool{q.node: true})
	b.WriteString("DETACH DELETE " + q.node + " RETURN count(*) AS " + AggregateColumn)
	return b.String(), q.Params(), nil
}

// CompileDeleteEdge renders a DELETE of the edges bound to the edge placeholder.
func (q *Query) CompileDeleteEdge(edge string) (string, map[string]any, error) {
	if q.err != nil {
		return "", nil, q.err
	}
	edge = q.grammar.CropLabelIdentifier(edge)
	if _, ok := q.decl[edge]; !ok {
		return "", nil, &ReferenceError{Identifier: edge}
	}
	var b strings.Builder
	q.writeBody(&b, map[string]bool{edge: true})
	b.WriteString("DELETE " + edge + " RETURN count(*) AS " + AggregateColumn)
	return b.String(), q.Params(), nil
}

func (q *Query) projection() []expr {
	if len(q.columns) == 0 {
		return []expr{{text: q.node, refs: []string{q.node}}}
	}
	return q.columns
}

// writeBody renders MATCH clauses and WITH stages. Each stage carries the
// placeholders declared before it that are still needed afterwards or by final.
func (q *Query) writeBody(b *strings.Builder, final map[string]bool) {
	n := len(q.parts)
	after := make([]map[string]bool, n+1)
	after[n] = final
	for i := n - 1; i >= 0; i-- {
		set := make(map[string]bool, len(after[i+1]))
		for k := range after[i+1] {
			set[k] = true
		}
		p := q.parts[i]
		for _, pt := range p.patterns {
			mark(set, pt.refs)
		}
		for _, a := range p.aggregates {
			mark(set, a.refs)
		}
		markWheres(set, p.wheres)
		if p.gate != "" {
			set[p.gate] = true
		}
		after[i] = set
	}

	for i, p := range q.parts {
		if p.isStage() {
			needed := after[i+1]
			if p.gate != "" {
				needed = withKey(needed, p.gate)
			}
			keys := q.carry(i, needed)
			items := append([]string(nil), keys...)
			for _, a := range p.aggregates {
				items = append(items, a.expr+" AS "+a.alias)
			}
			b.WriteString("WITH " + strings.Join(items, ", ") + " ")
			if p.gate != "" {
				q.writeGate(b, p, keys, after[i+1])
				continue
			}
		} else {
			if len(p.patterns) == 0 {
				continue
			}
			if p.optional {
				b.WriteString("OPTIONAL ")
			}
			texts := make([]string, 0, len(p.patterns))
			for _, pt := range p.patterns {
				texts = append(texts, pt.text)
			}
			b.WriteString("MATCH " + strings.Join(texts, ", ") + " ")
		}
		if cond := compileWheres(p.wheres); cond != "" {
			b.WriteString("WHERE " + cond + " ")
		}
	}
}

// writeGate nulls the gated placeholder on rows failing the stage condition
// instead of filtering them, so the enclosing count sees zero for them.
func (q *Query) writeGate(b *strings.Builder, p *part, keys []string, needed map[string]bool) {
	cond := compileWheres(p.wheres)
	items := make([]string, 0, len(keys)+len(p.aggregates))
	for _, k := range keys {
		if k == p.gate && cond != "" {
			items = append(items, "CASE WHEN "+cond+" THEN "+k+" END AS "+k)
			continue
		}
		items = append(items, k)
	}
	for _, a := range p.aggregates {
		if needed[a.alias] {
			items = append(items, a.alias)
		}
	}
	b.WriteString("WITH " + strings.Join(items, ", ") + " ")
}

func withKey(set map[string]bool, name string) map[string]bool {
	out := make(map[string]bool, len(set)+1)
	for k := range set {
		out[k] = true
	}
	out[name] = true
	return out
}

func (q *Query) carry(stage int, needed map[string]bool) []string {
	var keys []string
	for _, name := range q.order {
		idx := q.indexOf(q.decl[name])
		if idx >= 0 && idx < stage && needed[name] {
			keys = append(keys, name)
		}
	}
	return keys
}

func compileWheres(ws []*where) string {
	var b strings.Builder
	for _, w := range ws {
		s := compileWhere(w)
		if s == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString(" " + w.boolean + " ")
		}
		b.WriteString(s)
	}
	return b.String()
}

func compileWhere(w *where) string {
	switch w.kind {
	case whereIn:
		s := w.column + " IN $" + w.param
		if w.not {
			return "NOT " + s
		}
		return s
	case whereNull:
		if w.not {
			return w.column + " IS NOT NULL"
		}
		return w.column + " IS NULL"
	case whereNested:
		inner := compileWheres(w.nested)
		if inner == "" {
			return ""
		}
		return "(" + inner + ")"
	case whereElementID:
		return "elementId(" + w.column + ") = $" + w.param
	default:
		return w.column + " " + w.op + " $" + w.param
	}
}

func mark(set map[string]bool, refs []string) {
	for _, r := range refs {
		set[r] = true
	}
}

func markWheres(set map[string]bool, ws []*where) {
	for _, w := range ws {
		mark(set, w.refs)
		markWheres(set, w.nested)
	}
}
