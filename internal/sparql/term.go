package sparql

import (
	"strconv"
	"strings"
)

const (
	xsdNS         = "http://www.w3.org/2001/XMLSchema#"
	xsdString     = xsdNS + "string"
	xsdInteger    = xsdNS + "integer"
	xsdDecimal    = xsdNS + "decimal"
	xsdDouble     = xsdNS + "double"
	xsdBoolean    = xsdNS + "boolean"
	rdfType       = "http://www.w3.org/1999/02/22-rdf-syntax-ns#type"
	rdfLangString = "http://www.w3.org/1999/02/22-rdf-syntax-ns#langString"
)

type TermKind uint8

const (
	KindIRI TermKind = iota + 1
	KindLiteral
	KindBlank
)

// Term is an RDF term. For literals Value holds the lexical form.
type Term struct {
	Kind     TermKind
	Value    string
	Lang     string
	Datatype string
}

func NewIRI(v string) Term { return Term{Kind: KindIRI, Value: v} }

func NewBlank(id string) Term { return Term{Kind: KindBlank, Value: id} }

func NewLiteral(v, lang, datatype string) Term {
	if lang != "" || datatype == xsdString {
		datatype = ""
	}
	return Term{Kind: KindLiteral, Value: v, Lang: strings.ToLower(lang), Datatype: datatype}
}

func intLiteral(n int) Term {
	return Term{Kind: KindLiteral, Value: strconv.Itoa(n), Datatype: xsdInteger}
}

func boolLiteral(b bool) Term {
	return Term{Kind: KindLiteral, Value: strconv.FormatBool(b), Datatype: xsdBoolean}
}

// String renders the term the way result values are reported: IRIs and
// literals as their bare value, blank nodes as their label.
func (t Term) String() string { return t.Value }

func (t Term) IsZero() bool { return t.Kind == 0 }

func (t Term) key() string {
	return string(rune('0'+t.Kind)) + t.Value + "\x00" + t.Lang + "\x00" + t.Datatype
}

func (t Term) numeric() (float64, bool) {
	if t.Kind != KindLiteral || t.Lang != "" || t.Datatype == xsdBoolean {
		return 0, false
	}
	// untyped literals that parse as numbers compare numerically
	f, err := strconv.ParseFloat(strings.TrimSpace(t.Value), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func sameTerm(a, b Term) bool {
	return a.Kind == b.Kind && a.Value == b.Value && a.Lang == b.Lang && a.Datatype == b.Datatype
}
