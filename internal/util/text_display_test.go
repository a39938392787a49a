package util

import (
	"strings"
	"testing"
)

func TestSnippetFlattensWhitespace(t *testing.T) {
	in := "SELECT ?x\x00 WHERE {\n\t?x a ?y .\n}"
	out := Snippet(in, 100)
	if out != "SELECT ?x WHERE { ?x a ?y . }" {
		t.Fatalf("unexpected snippet: %q", out)
	}
}

func TestSnippetTruncates(t *testing.T) {
	out := Snippet(strings.Repeat("a", 50), 10)
	if out != "aaaaaaaaaa..." {
		t.Fatalf("unexpected truncation: %q", out)
	}
}
