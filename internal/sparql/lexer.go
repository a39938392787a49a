package sparql

import (
	"fmt"
	"strings"
	"unicode"
)

type tokenKind uint8

const (
	tEOF tokenKind = iota
	tIRI
	tPName
	tVar
	tString
	tLang
	tNumber
	tIdent
	tPunct
)

type token struct {
	kind tokenKind
	val  string
	pos  int
}

func (t token) is(kind tokenKind, val string) bool {
	if t.kind != kind {
		return false
	}
	if kind == tIdent {
		return strings.EqualFold(t.val, val)
	}
	return t.val == val
}

func (t token) String() string {
	switch t.kind {
	case tEOF:
		return "end of query"
	case tIRI:
		return "<" + t.val + ">"
	case tVar:
		return "?" + t.val
	case tString:
		return fmt.Sprintf("%q", t.val)
	case tLang:
		return "@" + t.val
	default:
		return t.val
	}
}

// SyntaxError reports the byte offset of the offending token.
type SyntaxError struct {
	Pos int
	Msg string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("sparql syntax error at offset %d: %s", e.Pos, e.Msg)
}

func lex(src string) ([]token, error) {
	l := &lexer{src: []rune(src)}
	var out []token
	for {
		t, err := l.next()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
		if t.kind == tEOF {
			return out, nil
		}
	}
}

type lexer struct {
	src []rune
	pos int
}

func (l *lexer) peek(off int) rune {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func (l *lexer) errorf(format string, args ...any) error {
	return &SyntaxError{Pos: l.pos, Msg: fmt.Sprintf(format, args...)}
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) {
		r := l.src[l.pos]
		switch {
		case unicode.IsSpace(r):
			l.pos++
		case r == '#':
			for l.pos < len(l.src) && l.src[l.pos] != '\n' {
				l.pos++
			}
		default:
			return
		}
	}
}

func (l *lexer) next() (token, error) {
	l.skipSpace()
	start := l.pos
	if l.pos >= len(l.src) {
		return token{kind: tEOF, pos: start}, nil
	}
	r := l.src[l.pos]
	switch {
	case r == '<':
		if iri, ok := l.scanIRI(); ok {
			return token{kind: tIRI, val: iri, pos: start}, nil
		}
		if l.peek(1) == '=' {
			l.pos += 2
			return token{kind: tPunct, val: "<=", pos: start}, nil
		}
		l.pos++
		return token{kind: tPunct, val: "<", pos: start}, nil
	case r == '?' || r == '$':
		l.pos++
		name := l.scanWhile(isNameRune)
		if name == "" {
			if r == '?' {
				// zero-or-one path modifier
				return token{kind: tPunct, val: "?", pos: start}, nil
			}
			return token{}, l.errorf("empty variable name")
		}
		return token{kind: tVar, val: name, pos: start}, nil
	case r == '"' || r == '\'':
		s, err := l.scanString(r)
		if err != nil {
			return token{}, err
		}
		return token{kind: tString, val: s, pos: start}, nil
	case r == '@':
		l.pos++
		tag := l.scanWhile(func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' })
		if tag == "" {
			return token{}, l.errorf("empty language tag")
		}
		return token{kind: tLang, val: tag, pos: start}, nil
	case unicode.IsDigit(r):
		return token{kind: tNumber, val: l.scanNumber(), pos: start}, nil
	case unicode.IsLetter(r) || r == '_' || r == ':':
		word := l.scanWhile(func(r rune) bool { return isNameRune(r) || r == ':' || r == '.' })
		for strings.HasSuffix(word, ".") {
			word = word[:len(word)-1]
			l.pos--
		}
		if strings.Contains(word, ":") {
			return token{kind: tPName, val: word, pos: start}, nil
		}
		return token{kind: tIdent, val: word, pos: start}, nil
	}

	two := string(r) + string(l.peek(1))
	switch two {
	case "!=", ">=", "&&", "||", "^^":
		l.pos += 2
		return token{kind: tPunct, val: two, pos: start}, nil
	}
	switch r {
	case '{', '}', '(', ')', '.', ';', ',', '*', '=', '>', '!', '+', '-', '/', '|', '^':
		l.pos++
		return token{kind: tPunct, val: string(r), pos: start}, nil
	}
	return token{}, l.errorf("unexpected character %q", r)
}

// scanIRI consumes <...> when the bracket opens an IRI rather than a
// less-than comparison.
func (l *lexer) scanIRI() (string, bool) {
	for i := l.pos + 1; i < len(l.src); i++ {
		switch r := l.src[i]; {
		case r == '>':
			iri := string(l.src[l.pos+1 : i])
			l.pos = i + 1
			return iri, true
		case unicode.IsSpace(r) || strings.ContainsRune("<\"{}|^`\\", r):
			return "", false
		}
	}
	return "", false
}

func (l *lexer) scanWhile(ok func(rune) bool) string {
	start := l.pos
	for l.pos < len(l.src) && ok(l.src[l.pos]) {
		l.pos++
	}
	return string(l.src[start:l.pos])
}

func (l *lexer) scanNumber() string {
	start := l.pos
	l.scanWhile(unicode.IsDigit)
	if l.peek(0) == '.' && unicode.IsDigit(l.peek(1)) {
		l.pos++
		l.scanWhile(unicode.IsDigit)
	}
	if e := l.peek(0); e == 'e' || e == 'E' {
		save := l.pos
		l.pos++
		if s := l.peek(0); s == '+' || s == '-' {
			l.pos++
		}
		if l.scanWhile(unicode.IsDigit) == "" {
			l.pos = save
		}
	}
	return string(l.src[start:l.pos])
}

func (l *lexer) scanString(quote rune) (string, error) {
	long := l.peek(1) == quote && l.peek(2) == quote
	if long {
		l.pos += 3
	} else {
		l.pos++
	}
	var b strings.Builder
	for {
		if l.pos >= len(l.src) {
			return "", l.errorf("unterminated string")
		}
		r := l.src[l.pos]
		switch {
		case r == '\\':
			esc := l.peek(1)
			l.pos += 2
			switch esc {
			case 'n':
				b.WriteRune('\n')
			case 't':
				b.WriteRune('\t')
			case 'r':
				b.WriteRune('\r')
			case '"', '\'', '\\':
				b.WriteRune(esc)
			default:
				return "", l.errorf("invalid escape \\%c", esc)
			}
		case r == quote && !long:
			l.pos++
			return b.String(), nil
		case r == quote && l.peek(1) == quote && l.peek(2) == quote:
			l.pos += 3
			return b.String(), nil
		case r == '\n' && !long:
			return "", l.errorf("newline in string")
		default:
			b.WriteRune(r)
			l.pos++
		}
	}
}

func isNameRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-'
}
