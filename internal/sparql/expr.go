package sparql

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Expr is a FILTER, BIND, HAVING or projection expression.
type Expr interface {
	eval(b binding, s *Store) (Term, error)
}

var (
	errUnbound  = errors.New("unbound variable")
	errTypeErr  = errors.New("type error")
	errDivZero  = errors.New("division by zero")
	errBadRegex = errors.New("invalid regular expression")
)

type varExpr struct{ name string }

type constExpr struct{ term Term }

type unaryExpr struct {
	op string
	x  Expr
}

type binaryExpr struct {
	op   string
	l, r Expr
}

type callExpr struct {
	name string
	args []Expr
}

// aggExpr reads an aggregate computed per group under a hidden name that no
// query variable can take.
type aggExpr struct {
	agg  *Aggregate
	name string
}

type inExpr struct {
	x    Expr
	list []Expr
	not  bool
}

type existsExpr struct {
	group *Group
	not   bool
}

func (e varExpr) eval(b binding, _ *Store) (Term, error) {
	t, ok := b[e.name]
	if !ok {
		return Term{}, errUnbound
	}
	return t, nil
}

func (e constExpr) eval(binding, *Store) (Term, error) { return e.term, nil }

func (e aggExpr) eval(b binding, _ *Store) (Term, error) {
	t, ok := b[e.name]
	if !ok {
		return Term{}, errUnbound
	}
	return t, nil
}

func (e inExpr) eval(b binding, s *Store) (Term, error) {
	v, err := e.x.eval(b, s)
	if err != nil {
		return Term{}, err
	}
	var firstErr error
	for _, item := range e.list {
		t, err := item.eval(b, s)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if equalTerms(v, t) {
			return boolLiteral(!e.not), nil
		}
	}
	if firstErr != nil {
		return Term{}, firstErr
	}
	return boolLiteral(e.not), nil
}

func (e existsExpr) eval(b binding, s *Store) (Term, error) {
	found := len(e.group.eval(s, []binding{b})) > 0
	return boolLiteral(found != e.not), nil
}

func (e unaryExpr) eval(b binding, s *Store) (Term, error) {
	switch e.op {
	case "!":
		v, err := ebv(e.x, b, s)
		if err != nil {
			return Term{}, err
		}
		return boolLiteral(!v), nil
	case "-":
		t, err := e.x.eval(b, s)
		if err != nil {
			return Term{}, err
		}
		f, ok := t.numeric()
		if !ok {
			return Term{}, errTypeErr
		}
		return floatLiteral(-f), nil
	}
	return Term{}, fmt.Errorf("unknown operator %s", e.op)
}

func (e binaryExpr) eval(b binding, s *Store) (Term, error) {
	switch e.op {
	case "||":
		lv, lerr := ebv(e.l, b, s)
		if lerr == nil && lv {
			return boolLiteral(true), nil
		}
		rv, rerr := ebv(e.r, b, s)
		if rerr == nil && rv {
			return boolLiteral(true), nil
		}
		if lerr != nil {
			return Term{}, lerr
		}
		if rerr != nil {
			return Term{}, rerr
		}
		return boolLiteral(false), nil
	case "&&":
		lv, lerr := ebv(e.l, b, s)
		if lerr == nil && !lv {
			return boolLiteral(false), nil
		}
		rv, rerr := ebv(e.r, b, s)
		if rerr == nil && !rv {
			return boolLiteral(false), nil
		}
		if lerr != nil {
			return Term{}, lerr
		}
		if rerr != nil {
			return Term{}, rerr
		}
		return boolLiteral(true), nil
	}

	l, err := e.l.eval(b, s)
	if err != nil {
		return Term{}, err
	}
	r, err := e.r.eval(b, s)
	if err != nil {
		return Term{}, err
	}
	switch e.op {
	case "=":
		return boolLiteral(equalTerms(l, r)), nil
	case "!=":
		return boolLiteral(!equalTerms(l, r)), nil
	case "<", ">", "<=", ">=":
		c, err := compareValues(l, r)
		if err != nil {
			return Term{}, err
		}
		switch e.op {
		case "<":
			return boolLiteral(c < 0), nil
		case ">":
			return boolLiteral(c > 0), nil
		case "<=":
			return boolLiteral(c <= 0), nil
		default:
			return boolLiteral(c >= 0), nil
		}
	case "+", "-", "*", "/":
		lf, lok := l.numeric()
		rf, rok := r.numeric()
		if !lok || !rok {
			return Term{}, errTypeErr
		}
		switch e.op {
		case "+":
			return floatLiteral(lf + rf), nil
		case "-":
			return floatLiteral(lf - rf), nil
		case "*":
			return floatLiteral(lf * rf), nil
		default:
			if rf == 0 {
				return Term{}, errDivZero
			}
			return floatLiteral(lf / rf), nil
		}
	}
	return Term{}, fmt.Errorf("unknown operator %s", e.op)
}

func (e callExpr) eval(b binding, s *Store) (Term, error) {
	switch e.name {
	case "BOUND":
		v, ok := e.args[0].(varExpr)
		if !ok {
			return Term{}, errTypeErr
		}
		_, bound := b[v.name]
		return boolLiteral(bound), nil
	case "COALESCE":
		for _, a := range e.args {
			if t, err := a.eval(b, s); err == nil {
				return t, nil
			}
		}
		return Term{}, errUnbound
	case "IF":
		cond, err := ebv(e.args[0], b, s)
		if err != nil {
			return Term{}, err
		}
		if cond {
			return e.args[1].eval(b, s)
		}
		return e.args[2].eval(b, s)
	}

	args := make([]Term, len(e.args))
	for i, a := range e.args {
		t, err := a.eval(b, s)
		if err != nil {
			return Term{}, err
		}
		args[i] = t
	}
	switch e.name {
	case "STR":
		return NewLiteral(args[0].Value, "", ""), nil
	case "CONCAT":
		var sb strings.Builder
		for _, a := range args {
			sb.WriteString(a.Value)
		}
		return NewLiteral(sb.String(), "", ""), nil
	case "DATATYPE":
		switch {
		case args[0].Kind != KindLiteral:
			return Term{}, errTypeErr
		case args[0].Lang != "":
			return NewIRI(rdfLangString), nil
		case args[0].Datatype == "":
			return NewIRI(xsdString), nil
		}
		return NewIRI(args[0].Datatype), nil
	case "SAMETERM":
		return boolLiteral(sameTerm(args[0], args[1])), nil
	case "ABS", "ROUND":
		f, ok := args[0].numeric()
		if !ok {
			return Term{}, errTypeErr
		}
		if e.name == "ABS" {
			return floatLiteral(math.Abs(f)), nil
		}
		return floatLiteral(math.Floor(f + 0.5)), nil
	case "LANG":
		return NewLiteral(args[0].Lang, "", ""), nil
	case "LCASE":
		return NewLiteral(strings.ToLower(args[0].Value), args[0].Lang, args[0].Datatype), nil
	case "UCASE":
		return NewLiteral(strings.ToUpper(args[0].Value), args[0].Lang, args[0].Datatype), nil
	case "STRLEN":
		return intLiteral(len([]rune(args[0].Value))), nil
	case "CONTAINS":
		return boolLiteral(strings.Contains(args[0].Value, args[1].Value)), nil
	case "STRSTARTS":
		return boolLiteral(strings.HasPrefix(args[0].Value, args[1].Value)), nil
	case "STRENDS":
		return boolLiteral(strings.HasSuffix(args[0].Value, args[1].Value)), nil
	case "ISIRI", "ISURI":
		return boolLiteral(args[0].Kind == KindIRI), nil
	case "ISLITERAL":
		return boolLiteral(args[0].Kind == KindLiteral), nil
	case "ISBLANK":
		return boolLiteral(args[0].Kind == KindBlank), nil
	case "LANGMATCHES":
		return boolLiteral(langMatches(args[0].Value, args[1].Value)), nil
	case "YEAR":
		v := strings.TrimSpace(args[0].Value)
		if len(v) < 4 {
			return Term{}, errTypeErr
		}
		y, err := strconv.Atoi(v[:4])
		if err != nil {
			return Term{}, errTypeErr
		}
		return intLiteral(y), nil
	case "REGEX":
		pattern := args[1].Value
		if len(args) == 3 && strings.Contains(args[2].Value, "i") {
			pattern = "(?i)" + pattern
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return Term{}, errBadRegex
		}
		return boolLiteral(re.MatchString(args[0].Value)), nil
	}
	return Term{}, fmt.Errorf("unknown function %s", e.name)
}

// functionArity lists supported builtins with their min and max arity.
var functionArity = map[string][2]int{
	"BOUND": {1, 1}, "STR": {1, 1}, "LANG": {1, 1}, "LCASE": {1, 1}, "UCASE": {1, 1},
	"STRLEN": {1, 1}, "CONTAINS": {2, 2}, "STRSTARTS": {2, 2}, "STRENDS": {2, 2},
	"ISIRI": {1, 1}, "ISURI": {1, 1}, "ISLITERAL": {1, 1}, "ISBLANK": {1, 1},
	"LANGMATCHES": {2, 2}, "YEAR": {1, 1}, "REGEX": {2, 3},
	"CONCAT": {1, 32}, "COALESCE": {1, 32}, "IF": {3, 3}, "DATATYPE": {1, 1}, "SAMETERM": {2, 2},
	"ABS": {1, 1}, "ROUND": {1, 1},
}

func ebv(e Expr, b binding, s *Store) (bool, error) {
	t, err := e.eval(b, s)
	if err != nil {
		return false, err
	}
	if t.Kind != KindLiteral {
		return false, errTypeErr
	}
	if t.Datatype == xsdBoolean {
		return t.Value == "true" || t.Value == "1", nil
	}
	if t.Datatype != "" && t.Datatype != xsdString {
		if f, ok := t.numeric(); ok {
			return f != 0 && !math.IsNaN(f), nil
		}
	}
	return t.Value != "", nil
}

func equalTerms(a, b Term) bool {
	if af, ok := a.numeric(); ok {
		if bf, ok := b.numeric(); ok && a.Datatype != "" && b.Datatype != "" {
			return af == bf
		}
	}
	if a.Kind == KindLiteral && b.Kind == KindLiteral {
		plain := func(dt string) bool { return dt == "" || dt == xsdString }
		if plain(a.Datatype) && plain(b.Datatype) {
			return a.Value == b.Value && a.Lang == b.Lang
		}
	}
	return sameTerm(a, b)
}

func compareValues(a, b Term) (int, error) {
	if af, ok := a.numeric(); ok {
		if bf, ok := b.numeric(); ok {
			return compareFloats(af, bf), nil
		}
	}
	if a.Kind == KindLiteral && b.Kind == KindLiteral {
		return strings.Compare(a.Value, b.Value), nil
	}
	return 0, errTypeErr
}

// compareTerms is a total order used by ORDER BY, MIN and MAX.
// Unbound sorts first, then blank nodes, IRIs and literals.
func compareTerms(a, b Term) int {
	if a.Kind != b.Kind {
		rank := func(k TermKind) int {
			switch k {
			case KindBlank:
				return 1
			case KindIRI:
				return 2
			case KindLiteral:
				return 3
			}
			return 0
		}
		return rank(a.Kind) - rank(b.Kind)
	}
	if c, err := compareValues(a, b); err == nil {
		return c
	}
	return strings.Compare(a.Value, b.Value)
}

func compareFloats(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

func floatLiteral(f float64) Term {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return NewLiteral(strconv.FormatInt(int64(f), 10), "", xsdInteger)
	}
	return NewLiteral(strconv.FormatFloat(f, 'f', -1, 64), "", xsdDecimal)
}

func langMatches(tag, rng string) bool {
	tag, rng = strings.ToLower(tag), strings.ToLower(rng)
	if rng == "*" {
		return tag != ""
	}
	return tag == rng || strings.HasPrefix(tag, rng+"-")
}

// Expression grammar, lowest precedence first:
// or: and ('||' and)*; and: rel ('&&' rel)*;
// rel: add (op add | [NOT] IN '(' list ')')?;
// add: mul (('+'|'-') mul)*; mul: unary (('*'|'/') unary)*;
// unary: ('!'|'-')? primary.

func (p *parser) parseConstraint() (Expr, error) {
	if p.cur().is(tPunct, "(") {
		p.advance()
		e, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		return e, p.expect(tPunct, ")")
	}
	if p.cur().kind == tIdent {
		return p.parsePrimary()
	}
	return nil, p.errorf("expected constraint after FILTER, found %s", p.cur())
}

func (p *parser) parseOr() (Expr, error) {
	l, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.accept(tPunct, "||") {
		r, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		l = binaryExpr{op: "||", l: l, r: r}
	}
	return l, nil
}

func (p *parser) parseAnd() (Expr, error) {
	l, err := p.parseRel()
	if err != nil {
		return nil, err
	}
	for p.accept(tPunct, "&&") {
		r, err := p.parseRel()
		if err != nil {
			return nil, err
		}
		l = binaryExpr{op: "&&", l: l, r: r}
	}
	return l, nil
}

func (p *parser) parseRel() (Expr, error) {
	l, err := p.parseAdd()
	if err != nil {
		return nil, err
	}
	if p.cur().is(tIdent, "IN") || (p.cur().is(tIdent, "NOT") && p.peek().is(tIdent, "IN")) {
		not := p.accept(tIdent, "NOT")
		p.advance()
		list, err := p.parseArgList()
		if err != nil {
			return nil, err
		}
		return inExpr{x: l, list: list, not: not}, nil
	}
	for _, op := range []string{"=", "!=", "<", ">", "<=", ">="} {
		if p.accept(tPunct, op) {
			r, err := p.parseAdd()
			if err != nil {
				return nil, err
			}
			return binaryExpr{op: op, l: l, r: r}, nil
		}
	}
	return l, nil
}

func (p *parser) parseAdd() (Expr, error) {
	l, err := p.parseMul()
	if err != nil {
		return nil, err
	}
	for {
		op := p.cur()
		if !op.is(tPunct, "+") && !op.is(tPunct, "-") {
			return l, nil
		}
		p.advance()
		r, err := p.parseMul()
		if err != nil {
			return nil, err
		}
		l = binaryExpr{op: op.val, l: l, r: r}
	}
}

func (p *parser) parseMul() (Expr, error) {
	l, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	for {
		op := p.cur()
		if !op.is(tPunct, "*") && !op.is(tPunct, "/") {
			return l, nil
		}
		p.advance()
		r, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		l = binaryExpr{op: op.val, l: l, r: r}
	}
}

func (p *parser) parseUnary() (Expr, error) {
	if p.accept(tPunct, "!") {
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unaryExpr{op: "!", x: x}, nil
	}
	if p.accept(tPunct, "-") {
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return unaryExpr{op: "-", x: x}, nil
	}
	return p.parsePrimary()
}

func (p *parser) parsePrimary() (Expr, error) {
	t := p.cur()
	switch t.kind {
	case tPunct:
		if t.val == "(" {
			p.advance()
			e, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			return e, p.expect(tPunct, ")")
		}
	case tVar:
		p.advance()
		return varExpr{name: t.val}, nil
	case tIRI:
		p.advance()
		return constExpr{term: NewIRI(p.resolve(t.val))}, nil
	case tPName:
		p.advance()
		iri, err := p.expand(t)
		if err != nil {
			return nil, err
		}
		return constExpr{term: NewIRI(iri)}, nil
	case tString, tNumber:
		lit, err := p.parseLiteral()
		if err != nil {
			return nil, err
		}
		return constExpr{term: lit}, nil
	case tIdent:
		if t.is(tIdent, "true") || t.is(tIdent, "false") {
			p.advance()
			return constExpr{term: boolLiteral(strings.EqualFold(t.val, "true"))}, nil
		}
		if t.is(tIdent, "EXISTS") || t.is(tIdent, "NOT") {
			return p.parseExists()
		}
		return p.parseCall()
	}
	return nil, p.errorf("unexpected %s in expression", t)
}

func (p *parser) parseExists() (Expr, error) {
	not := p.accept(tIdent, "NOT")
	if err := p.expect(tIdent, "EXISTS"); err != nil {
		return nil, err
	}
	allow := p.allowAgg
	p.allowAgg = false
	g, err := p.parseGroup()
	p.allowAgg = allow
	if err != nil {
		return nil, err
	}
	return existsExpr{group: g, not: not}, nil
}

func (p *parser) parseCall() (Expr, error) {
	t := p.advance()
	name := strings.ToUpper(t.val)
	if aggregateFuncs[name] {
		return p.parseAggregate(t, name)
	}
	arity, ok := functionArity[name]
	if !ok {
		return nil, &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf("unsupported function %s", t.val)}
	}
	args, err := p.parseArgList()
	if err != nil {
		return nil, err
	}
	if len(args) < arity[0] || len(args) > arity[1] {
		return nil, &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf("%s expects %d to %d arguments, got %d", name, arity[0], arity[1], len(args))}
	}
	return callExpr{name: name, args: args}, nil
}

// parseArgList parses "(" [expr ("," expr)*] ")".
func (p *parser) parseArgList() ([]Expr, error) {
	if err := p.expect(tPunct, "("); err != nil {
		return nil, err
	}
	var args []Expr
	if !p.cur().is(tPunct, ")") {
		for {
			a, err := p.parseOr()
			if err != nil {
				return nil, err
			}
			args = append(args, a)
			if !p.accept(tPunct, ",") {
				break
			}
		}
	}
	if err := p.expect(tPunct, ")"); err != nil {
		return nil, err
	}
	return args, nil
}

// parseAggregate parses FUNC "(" [DISTINCT] ("*" | ?var) [";" SEPARATOR "=" str] ")".
// Aggregates are only legal in projections and HAVING.
func (p *parser) parseAggregate(t token, name string) (Expr, error) {
	if !p.allowAgg {
		return nil, &SyntaxError{Pos: t.pos, Msg: fmt.Sprintf("aggregate %s is not allowed here", name)}
	}
	agg := &Aggregate{Func: name, Separator: " "}
	if err := p.expect(tPunct, "("); err != nil {
		return nil, err
	}
	agg.Distinct = p.accept(tIdent, "DISTINCT")
	switch a := p.advance(); {
	case a.is(tPunct, "*") && name == "COUNT":
	case a.kind == tVar:
		agg.Arg = a.val
	default:
		return nil, &SyntaxError{Pos: a.pos, Msg: fmt.Sprintf("unsupported aggregate argument %s", a)}
	}
	if name == "GROUP_CONCAT" && p.accept(tPunct, ";") {
		if err := p.expect(tIdent, "SEPARATOR"); err != nil {
			return nil, err
		}
		if err := p.expect(tPunct, "="); err != nil {
			return nil, err
		}
		sep := p.advance()
		if sep.kind != tString {
			return nil, p.errorf("expected separator string, found %s", sep)
		}
		agg.Separator = sep.val
	}
	if err := p.expect(tPunct, ")"); err != nil {
		return nil, err
	}
	e := &aggExpr{agg: agg, name: fmt.Sprintf(".agg%d", len(p.aggs))}
	p.aggs = append(p.aggs, e)
	return e, nil
}
