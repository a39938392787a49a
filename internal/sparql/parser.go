package sparql

import (
	"fmt"
	"strconv"
	"strings"
)

// Query is a parsed SELECT or ASK query.
type Query struct {
	Ask        bool
	Distinct   bool
	Star       bool
	Projection []Projection
	Where      *Group
	GroupBy    []string
	Having     []Expr
	OrderBy    []OrderKey
	Limit      int
	Offset     int
	// Values is a trailing VALUES block joined with the WHERE solutions.
	Values *ValuesElement

	vars []string
	aggs []*aggExpr
}

// Projection is a selected variable, or (Expr AS ?Var) when Expr is set.
type Projection struct {
	Var  string
	Expr Expr
}

type Aggregate struct {
	Func     string
	Distinct bool
	// Arg is the aggregated variable; empty means '*'.
	Arg       string
	Separator string
}

type OrderKey struct {
	Var  string
	Desc bool
}

// Element is one part of a group graph pattern. Elements are evaluated in
// order, each extending or filtering the solutions of the previous ones.
type Element interface {
	eval(s *Store, sols []binding) []binding
}

// Group is a group graph pattern. Its filters apply to the whole group after
// every element has been evaluated.
type Group struct {
	Elements []Element
	Filters  []Expr
}

// Pattern is a triple pattern. Path is set when the predicate is a property
// path rather than a single IRI or variable.
type Pattern struct {
	S, P, O Node
	Path    path
}

type OptionalElement struct{ Group *Group }

type UnionElement struct{ Branches []*Group }

type MinusElement struct{ Group *Group }

type BindElement struct {
	Expr Expr
	Var  string
}

// ValuesElement is inline data. A zero Term in a row is UNDEF.
type ValuesElement struct {
	Vars []string
	Rows [][]Term
}

// Node is either a variable (Var set) or a constant term.
type Node struct {
	Var  string
	Term Term
}

var defaultPrefixes = map[string]string{
	"rdf":     "http://www.w3.org/1999/02/22-rdf-syntax-ns#",
	"rdfs":    "http://www.w3.org/2000/01/rdf-schema#",
	"xsd":     xsdNS,
	"owl":     "http://www.w3.org/2002/07/owl#",
	"foaf":    "http://xmlns.com/foaf/0.1/",
	"skos":    "http://www.w3.org/2004/02/skos/core#",
	"dc":      "http://purl.org/dc/elements/1.1/",
	"dcterms": "http://purl.org/dc/terms/",
	"schema":  "https://schema.org/",
}

var aggregateFuncs = map[string]bool{
	"COUNT": true, "SUM": true, "AVG": true, "MIN": true, "MAX": true, "SAMPLE": true, "GROUP_CONCAT": true,
}

// Parse parses the supported SPARQL subset. Constructs outside it
// (sub-queries, SERVICE, GRAPH, negated property sets, blank node property
// lists, CONSTRUCT, DESCRIBE) are rejected with a SyntaxError.
func Parse(src string) (*Query, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{
		toks:     toks,
		prefixes: map[string]string{},
		seenVars: map[string]bool{},
	}
	for k, v := range defaultPrefixes {
		p.prefixes[k] = v
	}
	q, err := p.parseQuery()
	if err != nil {
		return nil, err
	}
	q.vars = p.varOrder
	q.aggs = p.aggs
	return q, nil
}

type parser struct {
	toks     []token
	pos      int
	prefixes map[string]string
	base     string
	varOrder []string
	seenVars map[string]bool
	aggs     []*aggExpr
	allowAgg bool
}

func (p *parser) cur() token { return p.toks[p.pos] }

func (p *parser) peek() token {
	if p.pos+1 < len(p.toks) {
		return p.toks[p.pos+1]
	}
	return p.toks[len(p.toks)-1]
}

func (p *parser) advance() token {
	t := p.toks[p.pos]
	if t.kind != tEOF {
		p.pos++
	}
	return t
}

func (p *parser) accept(kind tokenKind, val string) bool {
	if p.cur().is(kind, val) {
		p.advance()
		return true
	}
	return false
}

func (p *parser) expect(kind tokenKind, val string) error {
	if !p.accept(kind, val) {
		return p.errorf("expected %s, found %s", val, p.cur())
	}
	return nil
}

func (p *parser) errorf(format string, args ...any) error {
	return &SyntaxError{Pos: p.cur().pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) noteVar(name string) {
	if strings.HasPrefix(name, "_:") || p.seenVars[name] {
		return
	}
	p.seenVars[name] = true
	p.varOrder = append(p.varOrder, name)
}

func (p *parser) parseQuery() (*Query, error) {
	if err := p.parsePrologue(); err != nil {
		return nil, err
	}
	q := &Query{Limit: -1}
	switch {
	case p.accept(tIdent, "SELECT"):
		if err := p.parseSelectClause(q); err != nil {
			return nil, err
		}
	case p.accept(tIdent, "ASK"):
		q.Ask = true
	default:
		return nil, p.errorf("expected SELECT or ASK, found %s", p.cur())
	}
	p.accept(tIdent, "WHERE")
	where, err := p.parseGroup()
	if err != nil {
		return nil, err
	}
	q.Where = where
	if err := p.parseModifiers(q); err != nil {
		return nil, err
	}
	if p.cur().kind != tEOF {
		return nil, p.errorf("unexpected %s after query", p.cur())
	}
	return q, nil
}

func (p *parser) parsePrologue() error {
	for {
		switch {
		case p.accept(tIdent, "PREFIX"):
			name := p.advance()
			if name.kind != tPName || !strings.HasSuffix(name.val, ":") {
				return p.errorf("expected prefix name, found %s", name)
			}
			iri := p.advance()
			if iri.kind != tIRI {
				return p.errorf("expected IRI for prefix %s, found %s", name.val, iri)
			}
			p.prefixes[strings.TrimSuffix(name.val, ":")] = p.resolve(iri.val)
		case p.accept(tIdent, "BASE"):
			iri := p.advance()
			if iri.kind != tIRI {
				return p.errorf("expected IRI after BASE, found %s", iri)
			}
			p.base = iri.val
		default:
			return nil
		}
	}
}

func (p *parser) parseSelectClause(q *Query) error {
	if p.accept(tIdent, "DISTINCT") {
		q.Distinct = true
	} else {
		p.accept(tIdent, "REDUCED")
	}
	if p.accept(tPunct, "*") {
		q.Star = true
		return nil
	}
	for {
		switch t := p.cur(); {
		case t.kind == tVar:
			p.advance()
			q.Projection = append(q.Projection, Projection{Var: t.val})
		case t.is(tPunct, "("):
			p.advance()
			proj, err := p.parseProjectionExpr()
			if err != nil {
				return err
			}
			q.Projection = append(q.Projection, proj)
		default:
			if len(q.Projection) == 0 {
				return p.errorf("expected projection, found %s", t)
			}
			return nil
		}
	}
}

// parseProjectionExpr parses "expr AS ?var)" after the opening parenthesis.
func (p *parser) parseProjectionExpr() (Projection, error) {
	p.allowAgg = true
	e, err := p.parseOr()
	p.allowAgg = false
	if err != nil {
		return Projection{}, err
	}
	if err := p.expect(tIdent, "AS"); err != nil {
		return Projection{}, err
	}
	alias := p.advance()
	if alias.kind != tVar {
		return Projection{}, p.errorf("expected variable after AS, found %s", alias)
	}
	if err := p.expect(tPunct, ")"); err != nil {
		return Projection{}, err
	}
	return Projection{Var: alias.val, Expr: e}, nil
}

func (p *parser) parseModifiers(q *Query) error {
	if p.accept(tIdent, "GROUP") {
		if err := p.expect(tIdent, "BY"); err != nil {
			return err
		}
		for p.cur().kind == tVar {
			q.GroupBy = append(q.GroupBy, p.advance().val)
		}
		if len(q.GroupBy) == 0 {
			return p.errorf("expected variable after GROUP BY, found %s", p.cur())
		}
	}
	if p.accept(tIdent, "HAVING") {
		p.allowAgg = true
		for first := true; first || p.cur().is(tPunct, "("); first = false {
			e, err := p.parseConstraint()
			if err != nil {
				p.allowAgg = false
				return err
			}
			q.Having = append(q.Having, e)
		}
		p.allowAgg = false
	}
	if p.accept(tIdent, "ORDER") {
		if err := p.expect(tIdent, "BY"); err != nil {
			return err
		}
		for {
			key, ok, err := p.parseOrderKey()
			if err != nil {
				return err
			}
			if !ok {
				break
			}
			q.OrderBy = append(q.OrderBy, key)
		}
		if len(q.OrderBy) == 0 {
			return p.errorf("expected ordering after ORDER BY, found %s", p.cur())
		}
	}
	for {
		switch {
		case p.accept(tIdent, "LIMIT"):
			n, err := p.parseCount()
			if err != nil {
				return err
			}
			q.Limit = n
		case p.accept(tIdent, "OFFSET"):
			n, err := p.parseCount()
			if err != nil {
				return err
			}
			q.Offset = n
		case p.accept(tIdent, "VALUES"):
			v, err := p.parseValues()
			if err != nil {
				return err
			}
			q.Values = v
		default:
			return nil
		}
	}
}

func (p *parser) parseOrderKey() (OrderKey, bool, error) {
	t := p.cur()
	if t.kind == tVar {
		p.advance()
		return OrderKey{Var: t.val}, true, nil
	}
	if !t.is(tIdent, "ASC") && !t.is(tIdent, "DESC") {
		return OrderKey{}, false, nil
	}
	p.advance()
	desc := strings.EqualFold(t.val, "DESC")
	paren := p.accept(tPunct, "(")
	v := p.advance()
	if v.kind != tVar {
		return OrderKey{}, false, p.errorf("expected variable in ORDER BY, found %s", v)
	}
	if paren {
		if err := p.expect(tPunct, ")"); err != nil {
			return OrderKey{}, false, err
		}
	}
	return OrderKey{Var: v.val, Desc: desc}, true, nil
}

func (p *parser) parseCount() (int, error) {
	t := p.advance()
	if t.kind != tNumber {
		return 0, p.errorf("expected integer, found %s", t)
	}
	n, err := strconv.Atoi(t.val)
	if err != nil || n < 0 {
		return 0, p.errorf("invalid count %s", t.val)
	}
	return n, nil
}

func (p *parser) parseGroup() (*Group, error) {
	if err := p.expect(tPunct, "{"); err != nil {
		return nil, err
	}
	g := &Group{}
	for {
		switch t := p.cur(); {
		case t.is(tPunct, "}"):
			p.advance()
			return g, nil
		case t.kind == tEOF:
			return nil, p.errorf("unterminated group pattern")
		case t.is(tPunct, "."):
			p.advance()
		case t.is(tIdent, "OPTIONAL"):
			p.advance()
			opt, err := p.parseGroup()
			if err != nil {
				return nil, err
			}
			g.Elements = append(g.Elements, OptionalElement{Group: opt})
		case t.is(tIdent, "MINUS"):
			p.advance()
			m, err := p.parseGroup()
			if err != nil {
				return nil, err
			}
			g.Elements = append(g.Elements, MinusElement{Group: m})
		case t.is(tIdent, "FILTER"):
			p.advance()
			f, err := p.parseConstraint()
			if err != nil {
				return nil, err
			}
			g.Filters = append(g.Filters, f)
		case t.is(tIdent, "BIND"):
			p.advance()
			b, err := p.parseBind()
			if err != nil {
				return nil, err
			}
			g.Elements = append(g.Elements, b)
		case t.is(tIdent, "VALUES"):
			p.advance()
			v, err := p.parseValues()
			if err != nil {
				return nil, err
			}
			g.Elements = append(g.Elements, v)
		case t.is(tPunct, "{"):
			inner, err := p.parseGroup()
			if err != nil {
				return nil, err
			}
			if !p.cur().is(tIdent, "UNION") {
				g.Elements = append(g.Elements, inner)
				continue
			}
			u := UnionElement{Branches: []*Group{inner}}
			for p.accept(tIdent, "UNION") {
				next, err := p.parseGroup()
				if err != nil {
					return nil, err
				}
				u.Branches = append(u.Branches, next)
			}
			g.Elements = append(g.Elements, u)
		case t.kind == tIdent && !t.is(tIdent, "a") && !t.is(tIdent, "true") && !t.is(tIdent, "false"):
			return nil, p.errorf("%s is not supported", strings.ToUpper(t.val))
		default:
			if err := p.parseTriples(g); err != nil {
				return nil, err
			}
		}
	}
}

func (p *parser) parseBind() (Element, error) {
	if err := p.expect(tPunct, "("); err != nil {
		return nil, err
	}
	e, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if err := p.expect(tIdent, "AS"); err != nil {
		return nil, err
	}
	v := p.advance()
	if v.kind != tVar {
		return nil, p.errorf("expected variable after AS, found %s", v)
	}
	p.noteVar(v.val)
	if err := p.expect(tPunct, ")"); err != nil {
		return nil, err
	}
	return BindElement{Expr: e, Var: v.val}, nil
}

// parseValues parses "?x { v ... }" or "(?x ?y) { (v v) ... }".
func (p *parser) parseValues() (*ValuesElement, error) {
	ve := &ValuesElement{}
	multi := p.accept(tPunct, "(")
	for {
		t := p.cur()
		if t.kind != tVar {
			break
		}
		p.advance()
		p.noteVar(t.val)
		ve.Vars = append(ve.Vars, t.val)
		if !multi {
			break
		}
	}
	if len(ve.Vars) == 0 {
		return nil, p.errorf("expected variable after VALUES, found %s", p.cur())
	}
	if multi {
		if err := p.expect(tPunct, ")"); err != nil {
			return nil, err
		}
	}
	if err := p.expect(tPunct, "{"); err != nil {
		return nil, err
	}
	for !p.accept(tPunct, "}") {
		if multi {
			if err := p.expect(tPunct, "("); err != nil {
				return nil, err
			}
		}
		row := make([]Term, 0, len(ve.Vars))
		for len(row) < len(ve.Vars) {
			v, err := p.parseDataValue()
			if err != nil {
				return nil, err
			}
			row = append(row, v)
		}
		if multi {
			if err := p.expect(tPunct, ")"); err != nil {
				return nil, err
			}
		}
		ve.Rows = append(ve.Rows, row)
	}
	return ve, nil
}

func (p *parser) parseDataValue() (Term, error) {
	if p.accept(tIdent, "UNDEF") {
		return Term{}, nil
	}
	n, err := p.parseNode()
	if err != nil {
		return Term{}, err
	}
	if n.Var != "" {
		return Term{}, p.errorf("variable %s in VALUES data", n.Var)
	}
	return n.Term, nil
}

func (p *parser) parseTriples(g *Group) error {
	subj, err := p.parseNode()
	if err != nil {
		return err
	}
	for {
		verb, pp, err := p.parseVerb()
		if err != nil {
			return err
		}
		for {
			obj, err := p.parseNode()
			if err != nil {
				return err
			}
			g.Elements = append(g.Elements, Pattern{S: subj, P: verb, O: obj, Path: pp})
			if !p.accept(tPunct, ",") {
				break
			}
		}
		if !p.accept(tPunct, ";") {
			return nil
		}
		// a trailing ';' before '.' or '}' is legal
		if c := p.cur(); c.is(tPunct, ".") || c.is(tPunct, "}") {
			return nil
		}
	}
}

// parseVerb returns a variable or IRI predicate, or a property path when the
// predicate is anything more than a single IRI.
func (p *parser) parseVerb() (Node, path, error) {
	if t := p.cur(); t.kind == tVar {
		p.advance()
		p.noteVar(t.val)
		return Node{Var: t.val}, nil, nil
	}
	pp, err := p.parsePathAlt()
	if err != nil {
		return Node{}, nil, err
	}
	if l, ok := pp.(linkPath); ok {
		return Node{Term: l.iri}, nil, nil
	}
	return Node{}, pp, nil
}

func (p *parser) parsePathAlt() (path, error) {
	first, err := p.parsePathSeq()
	if err != nil {
		return nil, err
	}
	alts := []path{first}
	for p.accept(tPunct, "|") {
		next, err := p.parsePathSeq()
		if err != nil {
			return nil, err
		}
		alts = append(alts, next)
	}
	if len(alts) == 1 {
		return first, nil
	}
	return altPath{alts: alts}, nil
}

func (p *parser) parsePathSeq() (path, error) {
	first, err := p.parsePathElt()
	if err != nil {
		return nil, err
	}
	parts := []path{first}
	for p.accept(tPunct, "/") {
		next, err := p.parsePathElt()
		if err != nil {
			return nil, err
		}
		parts = append(parts, next)
	}
	if len(parts) == 1 {
		return first, nil
	}
	return seqPath{parts: parts}, nil
}

func (p *parser) parsePathElt() (path, error) {
	inverse := p.accept(tPunct, "^")
	var elt path
	switch t := p.advance(); {
	case t.kind == tIRI:
		elt = linkPath{iri: NewIRI(p.resolve(t.val))}
	case t.kind == tPName && !strings.HasPrefix(t.val, "_:"):
		iri, err := p.expand(t)
		if err != nil {
			return nil, err
		}
		elt = linkPath{iri: NewIRI(iri)}
	case t.is(tIdent, "a"):
		elt = linkPath{iri: NewIRI(rdfType)}
	case t.is(tPunct, "("):
		inner, err := p.parsePathAlt()
		if err != nil {
			return nil, err
		}
		if err := p.expect(tPunct, ")"); err != nil {
			return nil, err
		}
		elt = inner
	default:
		return nil, &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf("unexpected %s in property path", t)}
	}
	switch {
	case p.accept(tPunct, "*"):
		elt = modPath{p: elt, zero: true, many: true}
	case p.accept(tPunct, "+"):
		elt = modPath{p: elt, many: true}
	case p.accept(tPunct, "?"):
		elt = modPath{p: elt, zero: true}
	}
	if inverse {
		elt = inversePath{p: elt}
	}
	return elt, nil
}

func (p *parser) parseNode() (Node, error) {
	t := p.advance()
	switch t.kind {
	case tVar:
		p.noteVar(t.val)
		return Node{Var: t.val}, nil
	case tIRI:
		return Node{Term: NewIRI(p.resolve(t.val))}, nil
	case tPName:
		if strings.HasPrefix(t.val, "_:") {
			return Node{Var: t.val}, nil
		}
		iri, err := p.expand(t)
		if err != nil {
			return Node{}, err
		}
		return Node{Term: NewIRI(iri)}, nil
	case tIdent:
		if t.is(tIdent, "true") || t.is(tIdent, "false") {
			return Node{Term: boolLiteral(strings.EqualFold(t.val, "true"))}, nil
		}
	case tString, tNumber:
		p.pos--
		lit, err := p.parseLiteral()
		if err != nil {
			return Node{}, err
		}
		return Node{Term: lit}, nil
	case tPunct:
		if t.val == "[" || t.val == "(" {
			return Node{}, p.errorf("collections and anonymous blank nodes are not supported")
		}
		if t.val == "-" && p.cur().kind == tNumber {
			n := p.advance()
			return Node{Term: numberLiteral("-" + n.val)}, nil
		}
	}
	return Node{}, &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf("unexpected %s in triple pattern", t)}
}

func (p *parser) parseLiteral() (Term, error) {
	t := p.advance()
	if t.kind == tNumber {
		return numberLiteral(t.val), nil
	}
	switch {
	case p.cur().kind == tLang:
		return NewLiteral(t.val, p.advance().val, ""), nil
	case p.accept(tPunct, "^^"):
		dt := p.advance()
		switch dt.kind {
		case tIRI:
			return NewLiteral(t.val, "", p.resolve(dt.val)), nil
		case tPName:
			iri, err := p.expand(dt)
			if err != nil {
				return Term{}, err
			}
			return NewLiteral(t.val, "", iri), nil
		default:
			return Term{}, p.errorf("expected datatype IRI, found %s", dt)
		}
	}
	return NewLiteral(t.val, "", ""), nil
}

func numberLiteral(v string) Term {
	switch {
	case strings.ContainsAny(v, "eE"):
		return NewLiteral(v, "", xsdDouble)
	case strings.Contains(v, "."):
		return NewLiteral(v, "", xsdDecimal)
	default:
		return NewLiteral(v, "", xsdInteger)
	}
}

func (p *parser) expand(t token) (string, error) {
	prefix, local, _ := strings.Cut(t.val, ":")
	ns, ok := p.prefixes[prefix]
	if !ok {
		return "", &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf("unknown prefix %q", prefix)}
	}
	return ns + local, nil
}

func (p *parser) resolve(iri string) string {
	if p.base == "" || strings.Contains(iri, ":") {
		return iri
	}
	return p.base + iri
}
