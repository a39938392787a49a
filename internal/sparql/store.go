package sparql

// Triple is one statement of a Store.
type Triple struct {
	S, P, O Term
}

// Store is an in-memory triple set indexed by subject and predicate. It is
// built once and only read afterwards, so concurrent queries need no locking.
type Store struct {
	triples []Triple
	seen    map[string]struct{}
	bySubj  map[string][]int
	byPred  map[string][]int
}

func NewStore() *Store {
	return &Store{
		seen:   map[string]struct{}{},
		bySubj: map[string][]int{},
		byPred: map[string][]int{},
	}
}

// Add inserts t unless an identical triple is already present.
func (s *Store) Add(t Triple) {
	k := t.S.key() + "|" + t.P.key() + "|" + t.O.key()
	if _, ok := s.seen[k]; ok {
		return
	}
	s.seen[k] = struct{}{}
	idx := len(s.triples)
	s.triples = append(s.triples, t)
	s.bySubj[t.S.key()] = append(s.bySubj[t.S.key()], idx)
	s.byPred[t.P.key()] = append(s.byPred[t.P.key()], idx)
}

func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.triples)
}

// match calls fn for each triple compatible with the bound positions.
// Zero-valued terms act as wildcards.
func (s *Store) match(subj, pred, obj Term, fn func(Triple)) {
	var candidates []int
	switch {
	case !subj.IsZero():
		candidates = s.bySubj[subj.key()]
	case !pred.IsZero():
		candidates = s.byPred[pred.key()]
	default:
		for _, t := range s.triples {
			if obj.IsZero() || sameTerm(t.O, obj) {
				fn(t)
			}
		}
		return
	}
	for _, i := range candidates {
		t := s.triples[i]
		if !subj.IsZero() && !sameTerm(t.S, subj) {
			continue
		}
		if !pred.IsZero() && !sameTerm(t.P, pred) {
			continue
		}
		if !obj.IsZero() && !sameTerm(t.O, obj) {
			continue
		}
		fn(t)
	}
}

// nodes lists every distinct subject and object in insertion order.
func (s *Store) nodes() []Term {
	seen := make(map[string]struct{}, len(s.bySubj))
	var out []Term
	for _, t := range s.triples {
		for _, n := range [2]Term{t.S, t.O} {
			if _, ok := seen[n.key()]; ok {
				continue
			}
			seen[n.key()] = struct{}{}
			out = append(out, n)
		}
	}
	return out
}
