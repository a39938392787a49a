package sparql

// path is a property path in predicate position. from lists the nodes
// reachable from n, to the nodes from which n is reachable. Link, sequence
// and alternative paths keep duplicates; closures are distinct.
type path interface {
	from(s *Store, n Term) []Term
	to(s *Store, n Term) []Term
}

type linkPath struct{ iri Term }

type inversePath struct{ p path }

type seqPath struct{ parts []path }

type altPath struct{ alts []path }

// modPath is p?, p* or p+.
type modPath struct {
	p    path
	zero bool
	many bool
}

func (l linkPath) from(s *Store, n Term) []Term {
	var out []Term
	s.match(n, l.iri, Term{}, func(t Triple) { out = append(out, t.O) })
	return out
}

func (l linkPath) to(s *Store, n Term) []Term {
	var out []Term
	s.match(Term{}, l.iri, n, func(t Triple) { out = append(out, t.S) })
	return out
}

func (i inversePath) from(s *Store, n Term) []Term { return i.p.to(s, n) }

func (i inversePath) to(s *Store, n Term) []Term { return i.p.from(s, n) }

func (q seqPath) from(s *Store, n Term) []Term {
	cur := []Term{n}
	for _, part := range q.parts {
		var next []Term
		for _, c := range cur {
			next = append(next, part.from(s, c)...)
		}
		cur = next
	}
	return cur
}

func (q seqPath) to(s *Store, n Term) []Term {
	cur := []Term{n}
	for i := len(q.parts) - 1; i >= 0; i-- {
		var next []Term
		for _, c := range cur {
			next = append(next, q.parts[i].to(s, c)...)
		}
		cur = next
	}
	return cur
}

func (a altPath) from(s *Store, n Term) []Term {
	var out []Term
	for _, p := range a.alts {
		out = append(out, p.from(s, n)...)
	}
	return out
}

func (a altPath) to(s *Store, n Term) []Term {
	var out []Term
	for _, p := range a.alts {
		out = append(out, p.to(s, n)...)
	}
	return out
}

func (m modPath) from(s *Store, n Term) []Term { return m.closure(s, n, m.p.from) }

func (m modPath) to(s *Store, n Term) []Term { return m.closure(s, n, m.p.to) }

func (m modPath) closure(s *Store, n Term, step func(*Store, Term) []Term) []Term {
	var out []Term
	seen := map[string]struct{}{}
	if m.zero {
		seen[n.key()] = struct{}{}
		out = append(out, n)
	}
	frontier := []Term{n}
	for len(frontier) > 0 {
		var next []Term
		for _, f := range frontier {
			for _, t := range step(s, f) {
				if _, ok := seen[t.key()]; ok {
					continue
				}
				seen[t.key()] = struct{}{}
				out = append(out, t)
				next = append(next, t)
			}
		}
		if !m.many {
			break
		}
		frontier = next
	}
	return out
}

// joinPath evaluates a path pattern. With both ends unbound every node of
// the store is tried as a start, which also yields the zero-length matches
// of ? and * paths.
func joinPath(p Pattern, s *Store, sols []binding) []binding {
	var out []binding
	emit := func(sol binding, subj, obj Term) {
		b, ok := bindNode(p.S, subj, sol)
		if !ok {
			return
		}
		if b, ok = bindNode(p.O, obj, b); ok {
			out = append(out, b)
		}
	}
	for _, sol := range sols {
		subj, obj := p.S.resolve(sol), p.O.resolve(sol)
		switch {
		case !subj.IsZero():
			for _, end := range p.Path.from(s, subj) {
				emit(sol, subj, end)
			}
		case !obj.IsZero():
			for _, start := range p.Path.to(s, obj) {
				emit(sol, start, obj)
			}
		default:
			for _, n := range s.nodes() {
				for _, end := range p.Path.from(s, n) {
					emit(sol, n, end)
				}
			}
		}
	}
	return out
}
