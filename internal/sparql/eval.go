package sparql

import (
	"sort"
	"strconv"
	"strings"
)

type binding map[string]Term

func (b binding) extend(name string, t Term) binding {
	out := make(binding, len(b)+1)
	for k, v := range b {
		out[k] = v
	}
	out[name] = t
	return out
}

// Result is the table produced by a query. Unbound cells hold the zero Term.
type Result struct {
	Vars    []string
	Rows    [][]Term
	Ask     bool
	Boolean bool
}

// Values flattens the table row by row. An ASK result flattens to a single
// "true" or "false".
func (r *Result) Values() []string {
	if r.Ask {
		return []string{strconv.FormatBool(r.Boolean)}
	}
	out := make([]string, 0, len(r.Rows)*len(r.Vars))
	for _, row := range r.Rows {
		for _, cell := range row {
			// unbound cells are omitted, so a table of only unbound cells is empty
			if cell.IsZero() {
				continue
			}
			out = append(out, cell.String())
		}
	}
	return out
}

// Query parses src and evaluates it against the store.
func (s *Store) Query(src string) (*Result, error) {
	q, err := Parse(src)
	if err != nil {
		return nil, err
	}
	return q.Eval(s), nil
}

func (q *Query) Eval(s *Store) *Result {
	sols := q.Where.eval(s, []binding{{}})
	if q.Values != nil {
		sols = q.Values.eval(s, sols)
	}
	if q.Ask {
		return &Result{Ask: true, Boolean: len(sols) > 0}
	}

	if q.aggregating() {
		sols = q.having(s, q.aggregate(sols))
	}
	sols = q.extend(s, sols)
	if len(q.OrderBy) > 0 {
		sort.SliceStable(sols, func(i, j int) bool {
			for _, k := range q.OrderBy {
				c := compareTerms(sols[i][k.Var], sols[j][k.Var])
				if c == 0 {
					continue
				}
				if k.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}

	vars := q.projectedVars()
	rows := make([][]Term, 0, len(sols))
	seen := map[string]struct{}{}
	for _, sol := range sols {
		row := make([]Term, len(vars))
		var key strings.Builder
		for i, v := range vars {
			row[i] = sol[v]
			key.WriteString(row[i].key())
			key.WriteByte('|')
		}
		if q.Distinct {
			if _, dup := seen[key.String()]; dup {
				continue
			}
			seen[key.String()] = struct{}{}
		}
		rows = append(rows, row)
	}

	if q.Offset > 0 {
		if q.Offset >= len(rows) {
			rows = rows[:0]
		} else {
			rows = rows[q.Offset:]
		}
	}
	if q.Limit >= 0 && q.Limit < len(rows) {
		rows = rows[:q.Limit]
	}
	return &Result{Vars: vars, Rows: rows}
}

func (q *Query) projectedVars() []string {
	if q.Star {
		return append([]string(nil), q.vars...)
	}
	out := make([]string, len(q.Projection))
	for i, p := range q.Projection {
		out[i] = p.Var
	}
	return out
}

func (q *Query) aggregating() bool {
	return len(q.GroupBy) > 0 || len(q.aggs) > 0
}

// aggregate collapses sols into one row per group. Aggregate values are
// stored under their hidden names for projection and HAVING to read.
func (q *Query) aggregate(sols []binding) []binding {
	type group struct {
		first binding
		rows  []binding
	}
	var order []string
	groups := map[string]*group{}
	for _, sol := range sols {
		var key strings.Builder
		for _, v := range q.GroupBy {
			key.WriteString(sol[v].key())
			key.WriteByte('|')
		}
		g, ok := groups[key.String()]
		if !ok {
			g = &group{first: sol}
			groups[key.String()] = g
			order = append(order, key.String())
		}
		g.rows = append(g.rows, sol)
	}
	// an ungrouped aggregate over no solutions still yields one row
	if len(sols) == 0 && len(q.GroupBy) == 0 {
		groups[""] = &group{first: binding{}}
		order = append(order, "")
	}

	out := make([]binding, 0, len(order))
	for _, k := range order {
		g := groups[k]
		row := binding{}
		for _, v := range q.GroupBy {
			if t, ok := g.first[v]; ok {
				row[v] = t
			}
		}
		for _, p := range q.Projection {
			if p.Expr != nil {
				continue
			}
			if t, ok := g.first[p.Var]; ok {
				row[p.Var] = t
			}
		}
		for _, a := range q.aggs {
			if t, ok := a.agg.apply(g.rows); ok {
				row[a.name] = t
			}
		}
		out = append(out, row)
	}
	return out
}

func (q *Query) having(s *Store, rows []binding) []binding {
	if len(q.Having) == 0 {
		return rows
	}
	return filter(q.Having, s, rows)
}

// extend binds every (expr AS ?var) projection. A failing expression leaves
// its variable unbound.
func (q *Query) extend(s *Store, sols []binding) []binding {
	var exprs []Projection
	for _, p := range q.Projection {
		if p.Expr != nil {
			exprs = append(exprs, p)
		}
	}
	if len(exprs) == 0 {
		return sols
	}
	out := make([]binding, len(sols))
	for i, sol := range sols {
		for _, p := range exprs {
			if t, err := p.Expr.eval(sol, s); err == nil {
				sol = sol.extend(p.Var, t)
			}
		}
		out[i] = sol
	}
	return out
}

func (a *Aggregate) apply(rows []binding) (Term, bool) {
	var vals []Term
	seen := map[string]struct{}{}
	for _, r := range rows {
		var t Term
		var key string
		if a.Arg == "" {
			names := make([]string, 0, len(r))
			for k := range r {
				names = append(names, k)
			}
			sort.Strings(names)
			var b strings.Builder
			for _, k := range names {
				b.WriteString(k + "=" + r[k].key() + "|")
			}
			key = b.String()
		} else {
			var ok bool
			if t, ok = r[a.Arg]; !ok {
				continue
			}
			key = t.key()
		}
		if a.Distinct {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		vals = append(vals, t)
	}

	switch a.Func {
	case "SAMPLE":
		if len(vals) == 0 {
			return Term{}, false
		}
		return vals[0], true
	case "GROUP_CONCAT":
		parts := make([]string, len(vals))
		for i, v := range vals {
			parts[i] = v.Value
		}
		return NewLiteral(strings.Join(parts, a.Separator), "", ""), true
	case "COUNT":
		return intLiteral(len(vals)), true
	case "SUM", "AVG":
		sum := 0.0
		for _, v := range vals {
			f, ok := v.numeric()
			if !ok {
				return Term{}, false
			}
			sum += f
		}
		if a.Func == "SUM" {
			return floatLiteral(sum), true
		}
		if len(vals) == 0 {
			return intLiteral(0), true
		}
		return floatLiteral(sum / float64(len(vals))), true
	case "MIN", "MAX":
		if len(vals) == 0 {
			return Term{}, false
		}
		best := vals[0]
		for _, v := range vals[1:] {
			c := compareTerms(v, best)
			if (a.Func == "MIN" && c < 0) || (a.Func == "MAX" && c > 0) {
				best = v
			}
		}
		return best, true
	}
	return Term{}, false
}

func (g *Group) eval(s *Store, input []binding) []binding {
	sols := input
	for _, e := range g.Elements {
		sols = e.eval(s, sols)
		if len(sols) == 0 {
			break
		}
	}
	if len(g.Filters) == 0 {
		return sols
	}
	return filter(g.Filters, s, sols)
}

// filter keeps the solutions for which every expression is true. An
// evaluation error counts as false.
func filter(exprs []Expr, s *Store, sols []binding) []binding {
	kept := sols[:0:0]
	for _, sol := range sols {
		ok := true
		for _, f := range exprs {
			if v, err := ebv(f, sol, s); err != nil || !v {
				ok = false
				break
			}
		}
		if ok {
			kept = append(kept, sol)
		}
	}
	return kept
}

func (p Pattern) eval(s *Store, sols []binding) []binding {
	if p.Path != nil {
		return joinPath(p, s, sols)
	}
	return joinPattern(p, s, sols)
}

func (o OptionalElement) eval(s *Store, sols []binding) []binding {
	next := make([]binding, 0, len(sols))
	for _, sol := range sols {
		ext := o.Group.eval(s, []binding{sol})
		if len(ext) == 0 {
			next = append(next, sol)
			continue
		}
		next = append(next, ext...)
	}
	return next
}

func (u UnionElement) eval(s *Store, sols []binding) []binding {
	var out []binding
	for _, b := range u.Branches {
		out = append(out, b.eval(s, sols)...)
	}
	return out
}

// eval drops every solution that is compatible with, and shares at least one
// variable with, a solution of the MINUS group.
func (m MinusElement) eval(s *Store, sols []binding) []binding {
	minus := m.Group.eval(s, []binding{{}})
	kept := sols[:0:0]
	for _, sol := range sols {
		drop := false
		for _, r := range minus {
			if shared, compatible := compare(sol, r); shared && compatible {
				drop = true
				break
			}
		}
		if !drop {
			kept = append(kept, sol)
		}
	}
	return kept
}

func compare(a, b binding) (shared, compatible bool) {
	for k, v := range a {
		w, ok := b[k]
		if !ok {
			continue
		}
		shared = true
		if !sameTerm(v, w) {
			return shared, false
		}
	}
	return shared, true
}

func (e BindElement) eval(s *Store, sols []binding) []binding {
	out := make([]binding, len(sols))
	for i, sol := range sols {
		out[i] = sol
		if _, bound := sol[e.Var]; bound {
			continue
		}
		if t, err := e.Expr.eval(sol, s); err == nil {
			out[i] = sol.extend(e.Var, t)
		}
	}
	return out
}

func (v *ValuesElement) eval(_ *Store, sols []binding) []binding {
	var out []binding
	for _, sol := range sols {
	rows:
		for _, row := range v.Rows {
			b := sol
			for i, name := range v.Vars {
				if row[i].IsZero() {
					continue
				}
				if cur, ok := b[name]; ok {
					if !sameTerm(cur, row[i]) {
						continue rows
					}
					continue
				}
				b = b.extend(name, row[i])
			}
			out = append(out, b)
		}
	}
	return out
}

func joinPattern(p Pattern, s *Store, sols []binding) []binding {
	var out []binding
	for _, sol := range sols {
		subj, pred, obj := p.S.resolve(sol), p.P.resolve(sol), p.O.resolve(sol)
		s.match(subj, pred, obj, func(t Triple) {
			b := sol
			var ok bool
			if b, ok = bindNode(p.S, t.S, b); !ok {
				return
			}
			if b, ok = bindNode(p.P, t.P, b); !ok {
				return
			}
			if b, ok = bindNode(p.O, t.O, b); !ok {
				return
			}
			out = append(out, b)
		})
	}
	return out
}

func (n Node) resolve(b binding) Term {
	if n.Var == "" {
		return n.Term
	}
	return b[n.Var]
}

// bindNode binds n to t, rejecting a conflicting earlier binding of the same
// variable within one pattern such as ?x ?p ?x.
func bindNode(n Node, t Term, b binding) (binding, bool) {
	if n.Var == "" {
		return b, true
	}
	if cur, ok := b[n.Var]; ok {
		return b, sameTerm(cur, t)
	}
	return b.extend(n.Var, t), true
}
