package graph

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/knakk/rdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const employeesTTL = `@prefix ex: <http://example.org/> .
@prefix rdfs: <http://www.w3.org/2000/01/rdf-schema#> .
@prefix xsd: <http://www.w3.org/2001/XMLSchema#> .

ex:alice <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> ex:Employee .
ex:alice rdfs:label "Alice"@en .
ex:alice ex:age "34"^^xsd:integer .
ex:bob <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> ex:Employee .
ex:bob rdfs:label "Bob"@en .
ex:bob ex:age "51"^^xsd:integer .
`

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
}

func TestIsFaulty(t *testing.T) {
	cases := []struct {
		name   string
		result QueryResult
		faulty bool
	}{
		{"failure", Failure("boom"), true},
		{"empty", Success(nil), true},
		{"all zero", Success([]string{"0", " 0 ", "0\n"}), true},
		{"single zero", Success([]string{"0"}), true},
		{"value", Success([]string{"42"}), false},
		{"zero and value", Success([]string{"0", "http://example.org/x"}), false},
		{"blank string", Success([]string{""}), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.faulty, IsFaulty(tc.result))
			assert.Equal(t, IsFaulty(tc.result), IsFaulty(tc.result))
		})
	}
}

func TestGuessFormat(t *testing.T) {
	assert.Equal(t, rdf.Turtle, GuessFormat("a/b.ttl"))
	assert.Equal(t, rdf.NTriples, GuessFormat("b.NT"))
	assert.Equal(t, rdf.RDFXML, GuessFormat("c.rdf"))
	assert.Equal(t, rdf.RDFXML, GuessFormat("c.xml"))
	assert.Equal(t, rdf.Turtle, GuessFormat("d.n3"))
}

func TestLocalSkipsMalformedFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "employees.ttl", employeesTTL)
	writeFile(t, dir, "broken.rdf", `<rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"><rdf:Description`)
	writeFile(t, dir, "notes.txt", "not rdf at all")

	l, err := NewLocalLoader(2, zaptest.NewLogger(t))
	require.NoError(t, err)

	store, err := l.Load(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, 6, store.Len())

	res := l.Execute(context.Background(), `
PREFIX ex: <http://example.org/>
SELECT ?label WHERE { ?e a ex:Employee ; rdfs:label ?label ; ex:age ?age FILTER(?age > 40) }`, dir)
	require.False(t, res.Failed, res.Error)
	require.Equal(t, []string{"Bob"}, res.Values)
}

func TestLocalEmptyCases(t *testing.T) {
	l, err := NewLocalLoader(2, zaptest.NewLogger(t))
	require.NoError(t, err)
	q := `SELECT ?s WHERE { ?s ?p ?o }`

	missing := l.Execute(context.Background(), q, filepath.Join(t.TempDir(), "nope"))
	assert.False(t, missing.Failed)
	assert.Empty(t, missing.Values)

	unrecognized := t.TempDir()
	writeFile(t, unrecognized, "readme.md", "# nothing")
	res := l.Execute(context.Background(), q, unrecognized)
	assert.False(t, res.Failed)
	assert.Empty(t, res.Values)

	noTriples := t.TempDir()
	writeFile(t, noTriples, "empty.ttl", "@prefix ex: <http://example.org/> .\n")
	res = l.Execute(context.Background(), q, noTriples)
	assert.False(t, res.Failed)
	assert.Empty(t, res.Values)
}

func TestLocalSyntaxErrorIsFailure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "employees.ttl", employeesTTL)
	l, err := NewLocalLoader(2, zaptest.NewLogger(t))
	require.NoError(t, err)

	res := l.Execute(context.Background(), `SELECT ?x WHERE { ?x ?p `, dir)
	require.True(t, res.Failed)
	require.Contains(t, res.Error, "syntax error")
}

func TestLocalCachesLoadedGraphOnly(t *testing.T) {
	dir := t.TempDir()
	l, err := NewLocalLoader(2, zaptest.NewLogger(t))
	require.NoError(t, err)

	first, err := l.Load(context.Background(), dir)
	require.NoError(t, err)
	require.Zero(t, first.Len())

	writeFile(t, dir, "employees.ttl", employeesTTL)
	second, err := l.Load(context.Background(), dir)
	require.NoError(t, err)
	require.Equal(t, 6, second.Len())

	third, err := l.Load(context.Background(), dir+string(filepath.Separator))
	require.NoError(t, err)
	require.Same(t, second, third)

	l.Invalidate(dir)
	fourth, err := l.Load(context.Background(), dir)
	require.NoError(t, err)
	require.NotSame(t, second, fourth)
}

func TestLocalConcurrentLoads(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "employees.ttl", employeesTTL)
	writeFile(t, dir, "more.nt", "<http://example.org/carol> <http://www.w3.org/2000/01/rdf-schema#label> \"Carol\"@en .\n")
	l, err := NewLocalLoader(2, zaptest.NewLogger(t))
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([]QueryResult, 8)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = l.Execute(context.Background(), `SELECT (COUNT(*) AS ?n) WHERE { ?s rdfs:label ?l }`, dir)
		}()
	}
	wg.Wait()
	for _, r := range results {
		require.Equal(t, []string{"3"}, r.Values)
	}
}

func TestRemoteFlattensVarsOuter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "SELECT ?a ?b WHERE { ?a ?p ?b }", r.URL.Query().Get("query"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "dbpedia", r.URL.Query().Get("default-graph-uri"))
		assert.Equal(t, sparqlJSON, r.Header.Get("Accept"))
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", sparqlJSON)
		_, _ = w.Write([]byte(`{
  "head": {"vars": ["a", "b"]},
  "results": {"bindings": [
    {"a": {"type": "uri", "value": "a1"}, "b": {"type": "literal", "value": "b1"}},
    {"a": {"type": "uri", "value": "a2"}},
    {"a": {"type": "uri", "value": "a3"}, "b": {"type": "literal", "value": "b3"}}
  ]}
}`))
	}))
	defer srv.Close()

	c := NewRemoteClient(time.Second)
	res := c.Execute(context.Background(), "SELECT ?a ?b WHERE { ?a ?p ?b }", srv.URL+"?default-graph-uri=dbpedia")
	require.False(t, res.Failed, res.Error)
	require.Equal(t, []string{"a1", "a2", "a3", "b1", "b3"}, res.Values)
}

func TestRemoteAskResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"head": {}, "boolean": true}`))
	}))
	defer srv.Close()

	res := NewRemoteClient(time.Second).Execute(context.Background(), "ASK { ?s ?p ?o }", srv.URL)
	require.Equal(t, []string{"true"}, res.Values)
}

func TestRemoteFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/bad-status":
			http.Error(w, "Virtuoso 37000 Error SP030: SPARQL compiler", http.StatusBadRequest)
		case "/bad-json":
			_, _ = w.Write([]byte(`<html>not json</html>`))
		}
	}))
	defer srv.Close()
	c := NewRemoteClient(time.Second)

	res := c.Execute(context.Background(), "SELECT * WHERE {", srv.URL+"/bad-status")
	require.True(t, res.Failed)
	require.Contains(t, res.Error, "400")
	require.Contains(t, res.Error, "SP030")

	res = c.Execute(context.Background(), "SELECT ?s WHERE { ?s ?p ?o }", srv.URL+"/bad-json")
	require.True(t, res.Failed)
	require.Contains(t, res.Error, "decode")

	res = c.Execute(context.Background(), "SELECT ?s WHERE { ?s ?p ?o }", "http://127.0.0.1:1/sparql")
	require.True(t, res.Failed)
	require.True(t, IsFaulty(res))
}

func TestExecutorRoutesByKind(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"head":{"vars":["n"]},"results":{"bindings":[{"n":{"type":"literal","value":"7"}}]}}`))
	}))
	defer srv.Close()
	dir := t.TempDir()
	writeFile(t, dir, "employees.ttl", employeesTTL)

	e, err := NewExecutor(time.Second, 2, zaptest.NewLogger(t))
	require.NoError(t, err)

	remote := e.Execute(context.Background(), "SELECT ?n WHERE {}", Target{Kind: KindRemote, Endpoint: srv.URL})
	require.Equal(t, []string{"7"}, remote.Values)

	local := e.Execute(context.Background(), `SELECT ?l WHERE { <http://example.org/alice> rdfs:label ?l }`, Target{Kind: KindLocal, Dir: dir})
	require.Equal(t, []string{"Alice"}, local.Values)

	unknown := e.Execute(context.Background(), "ASK {}", Target{Kind: "ftp"})
	require.True(t, unknown.Failed)
}
