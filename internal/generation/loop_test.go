package generation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"text2sparql/internal/config"
	"text2sparql/internal/graph"
	"text2sparql/internal/models"
	"text2sparql/internal/providers"
	"text2sparql/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

// TestMain checks the loop leaves no goroutines behind. The opencensus
// worker is started by genai's dependency tree at init and never exits.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"))
}

type step struct {
	text string
	err  error
}

type scriptedLLM struct {
	steps []step
	reqs  []providers.GenerateRequest
}

func (s *scriptedLLM) Generate(_ context.Context, req providers.GenerateRequest) (providers.GenerateResponse, providers.ProviderInfo, error) {
	s.reqs = append(s.reqs, req)
	i := len(s.reqs) - 1
	if i >= len(s.steps) {
		i = len(s.steps) - 1
	}
	st := s.steps[i]
	return providers.GenerateResponse{Text: st.text}, providers.ProviderInfo{Name: "scripted", Model: req.Model}, st.err
}

type scriptedGraph struct {
	results []graph.QueryResult
	queries []string
}

func (g *scriptedGraph) Execute(_ context.Context, query string, _ graph.Target) graph.QueryResult {
	g.queries = append(g.queries, query)
	i := len(g.queries) - 1
	if i >= len(g.results) {
		i = len(g.results) - 1
	}
	return g.results[i]
}

type memRecorder struct {
	mu   sync.Mutex
	recs []models.AttemptRecord
}

func (r *memRecorder) RecordAttempt(_ context.Context, rec models.AttemptRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recs = append(r.recs, rec)
	return nil
}

func fenced(q string) string { return "```sparql\n" + q + "\n```" }

func noSleep(context.Context, time.Duration) {}

func newLoop(t *testing.T, llm providers.LLMProvider, g graph.Accessor, retries int, base float64) *Loop {
	return &Loop{
		LLM:             llm,
		Graph:           g,
		Model:           "test-model",
		MaxTokens:       256,
		BaseTemperature: base,
		RetryCount:      retries,
		Pause:           time.Second,
		Sleep:           noSleep,
		Log:             zaptest.NewLogger(t),
	}
}

func temperatures(reqs []providers.GenerateRequest) []float64 {
	out := make([]float64, len(reqs))
	for i, r := range reqs {
		out[i] = r.Temperature
	}
	return out
}

func TestAcceptedAfterEmptyResults(t *testing.T) {
	llm := &scriptedLLM{steps: []step{
		{text: fenced("SELECT ?a WHERE { ?a ?b ?c }")},
		{text: fenced("SELECT ?b WHERE { ?a ?b ?c }")},
		{text: fenced("SELECT (COUNT(*) AS ?n) WHERE { ?a ?b ?c }")},
	}}
	g := &scriptedGraph{results: []graph.QueryResult{
		graph.Success(nil),
		graph.Success([]string{}),
		graph.Success([]string{"42"}),
	}}
	rec := &memRecorder{}
	l := newLoop(t, llm, g, 2, 0.0)
	l.Recorder = rec

	out := l.Run(context.Background(), Request{Question: "How many triples?", Shape: "any"})

	require.True(t, out.Accepted())
	assert.Equal(t, "SELECT (COUNT(*) AS ?n) WHERE { ?a ?b ?c }", out.Query)
	assert.Equal(t, 3, out.AttemptCount())
	assert.Equal(t, []float64{0.0, 0.1, 0.2}, temperatures(llm.reqs))
	assert.Empty(t, out.Fallback)
	require.Len(t, rec.recs, 3)
	assert.True(t, rec.recs[0].Faulty)
	assert.False(t, rec.recs[2].Faulty)
	assert.Len(t, rec.recs[2].PromptHash, 64)
}

func TestPromptCarriesPreviousQuery(t *testing.T) {
	llm := &scriptedLLM{steps: []step{
		{text: fenced("SELECT ?first WHERE { ?first ?p ?o }")},
		{text: fenced("SELECT ?second WHERE { ?second ?p ?o }")},
	}}
	g := &scriptedGraph{results: []graph.QueryResult{graph.Success(nil), graph.Success([]string{"x"})}}
	out := newLoop(t, llm, g, 3, 0.0).Run(context.Background(), Request{Question: "q", Shape: "s"})

	require.True(t, out.Accepted())
	assert.NotContains(t, llm.reqs[0].Prompt, "Previous attempt (failed)")
	assert.Contains(t, llm.reqs[1].Prompt, "Previous attempt (failed)\nSELECT ?first WHERE { ?first ?p ?o }")
	assert.NotContains(t, llm.reqs[1].Prompt, "```sparql\nSELECT ?first")
	assert.Equal(t, []string{"SELECT ?first WHERE { ?first ?p ?o }", "SELECT ?second WHERE { ?second ?p ?o }"}, g.queries)
}

func TestExhaustedOnZeroResults(t *testing.T) {
	llm := &scriptedLLM{steps: []step{{text: fenced("SELECT (COUNT(?x) AS ?n) WHERE { ?x a <urn:T> }")}}}
	g := &scriptedGraph{results: []graph.QueryResult{graph.Success([]string{"0"})}}

	out := newLoop(t, llm, g, 1, 0.5).Run(context.Background(), Request{Question: "How many T are there?"})

	require.False(t, out.Accepted())
	assert.Equal(t, StatusExhausted, out.Status)
	assert.Equal(t, 2, out.AttemptCount())
	assert.Equal(t, "SELECT (COUNT(?x) AS ?n) WHERE { ?x a <urn:T> }", out.Query)
	assert.Contains(t, out.Fallback, "How many T are there?")
	assert.Contains(t, out.Fallback, "2 attempts")
	assert.Equal(t, []float64{0.5, 0.6}, temperatures(llm.reqs))
}

func TestLLMErrorFeedsNextPrompt(t *testing.T) {
	llm := &scriptedLLM{steps: []step{
		{err: errors.New("openai generate request failed: dial tcp: connection reset by peer")},
		{text: fenced("SELECT ?x WHERE { ?x ?p ?o }")},
	}}
	g := &scriptedGraph{results: []graph.QueryResult{graph.Success([]string{"http://example.org/x"})}}

	out := newLoop(t, llm, g, 2, 0.0).Run(context.Background(), Request{Question: "q"})

	require.True(t, out.Accepted())
	assert.Equal(t, 2, out.AttemptCount())
	assert.True(t, out.Attempts[0].Faulty)
	assert.Empty(t, out.Attempts[0].Query)
	assert.Contains(t, llm.reqs[1].Prompt, "connection reset by peer")
	assert.Len(t, g.queries, 1, "no query is executed for a failed llm call")
}

func TestEndpointFailureFeedsNextPrompt(t *testing.T) {
	llm := &scriptedLLM{steps: []step{
		{text: fenced("SELECT ?x WHERE { ?x ?p ?o }")},
		{text: fenced("SELECT ?y WHERE { ?y ?p ?o }")},
	}}
	g := &scriptedGraph{results: []graph.QueryResult{
		graph.Failure("sparql request failed: Get \"http://dbpedia.org/sparql\": i/o timeout"),
		graph.Success([]string{"7"}),
	}}

	out := newLoop(t, llm, g, 1, 0.0).Run(context.Background(), Request{Question: "q"})

	require.True(t, out.Accepted())
	assert.Equal(t, 2, out.AttemptCount())
	assert.Contains(t, llm.reqs[1].Prompt, "SELECT ?x WHERE { ?x ?p ?o }")
	assert.Contains(t, llm.reqs[1].Prompt, "i/o timeout")
}

func TestExhaustedWithOnlyErrorsReturnsErrorText(t *testing.T) {
	llm := &scriptedLLM{steps: []step{{err: errors.New("groq generate error 500: boom")}}}
	g := &scriptedGraph{results: []graph.QueryResult{graph.Success([]string{"1"})}}

	out := newLoop(t, llm, g, 0, 0.0).Run(context.Background(), Request{Question: "q"})

	assert.Equal(t, StatusExhausted, out.Status)
	assert.Equal(t, 1, out.AttemptCount())
	assert.Equal(t, "groq generate error 500: boom", out.Query)
	assert.Empty(t, g.queries)
}

func TestAttemptsNeverExceedBudget(t *testing.T) {
	for r := 0; r <= 12; r++ {
		t.Run(fmt.Sprintf("retries=%d", r), func(t *testing.T) {
			llm := &scriptedLLM{steps: []step{{text: "SELECT ?x WHERE { ?x ?p ?o }"}}}
			g := &scriptedGraph{results: []graph.QueryResult{graph.Success(nil)}}
			var pauses int
			l := newLoop(t, llm, g, r, 0.3)
			l.Sleep = func(context.Context, time.Duration) { pauses++ }

			out := l.Run(context.Background(), Request{Question: "q"})

			assert.Equal(t, StatusExhausted, out.Status)
			assert.Equal(t, r+1, out.AttemptCount())
			assert.Len(t, llm.reqs, r+1)
			assert.Equal(t, r, pauses)
			temps := temperatures(llm.reqs)
			for i := range temps {
				assert.LessOrEqual(t, temps[i], 1.0)
				if i > 0 {
					assert.GreaterOrEqual(t, temps[i], temps[i-1])
				}
			}
		})
	}
}

func TestAcceptStopsImmediately(t *testing.T) {
	llm := &scriptedLLM{steps: []step{{text: "ASK { ?s ?p ?o }"}}}
	g := &scriptedGraph{results: []graph.QueryResult{graph.Success([]string{"true"})}}
	var pauses int
	l := newLoop(t, llm, g, 5, 0.0)
	l.Sleep = func(context.Context, time.Duration) { pauses++ }

	out := l.Run(context.Background(), Request{Question: "q"})

	assert.True(t, out.Accepted())
	assert.Equal(t, 1, out.AttemptCount())
	assert.Len(t, llm.reqs, 1)
	assert.Zero(t, pauses)
}

func TestTemperature(t *testing.T) {
	assert.Equal(t, 0.0, Temperature(0, 0))
	assert.Equal(t, 0.3, Temperature(0, 3))
	assert.Equal(t, 0.9, Temperature(0.7, 2))
	assert.Equal(t, 1.0, Temperature(0.7, 5))
	assert.Equal(t, 1.0, Temperature(1.0, 0))
}

func TestDefaultSleepHonoursContext(t *testing.T) {
	l := &Loop{Pause: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	done := make(chan struct{})
	go func() {
		l.sleep(ctx)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sleep ignored cancelled context")
	}
}

func TestStripCodeFences(t *testing.T) {
	cases := []struct{ in, want string }{
		{"```sparql\nSELECT...\n```", "SELECT..."},
		{"```SPARQL\nSELECT ?x WHERE { ?x ?p ?o }\n```\n", "SELECT ?x WHERE { ?x ?p ?o }"},
		{"```\nASK { ?s ?p ?o }\n```", "ASK { ?s ?p ?o }"},
		{"Here you go:\n```sparql\nSELECT 1\n```\nThanks", "SELECT 1"},
		{"  SELECT ?x WHERE { ?x ?p ?o }  ", "SELECT ?x WHERE { ?x ?p ?o }"},
		{"```SELECT ?x WHERE { ?x ?p ?o }```", "SELECT ?x WHERE { ?x ?p ?o }"},
		{"```sparql\nPREFIX a: <urn:a>\nSELECT ?x {}\n```", "PREFIX a: <urn:a>\nSELECT ?x {}"},
	}
	for _, tc := range cases {
		got := StripCodeFences(tc.in)
		assert.Equal(t, tc.want, got, tc.in)
		assert.NotContains(t, got, "```")
	}
}

func TestBuildPromptOrder(t *testing.T) {
	p := BuildPrompt(PromptInput{SystemPrompt: "SYSTEM", Question: "Who?", Shape: "SHAPE"})
	order := []string{"SYSTEM", "User Query", "Who?", "Shape Constraints", "SHAPE", "Expected SPARQL Query"}
	last := -1
	for _, s := range order {
		idx := strings.Index(p, s)
		require.Greater(t, idx, last, s)
		last = idx
	}
	assert.NotContains(t, p, "Previous attempt")

	p = BuildPrompt(PromptInput{SystemPrompt: "SYSTEM", Question: "Who?", Shape: "SHAPE", HasPrevious: true, Previous: ""})
	assert.Contains(t, p, "Previous attempt (failed)")
	assert.Greater(t, strings.Index(p, "Previous attempt"), strings.Index(p, "Expected SPARQL Query"))
}

func writePrompt(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func testConfig(t *testing.T) config.Config {
	dir := t.TempDir()
	return config.Config{
		LLMProviders:    "mock",
		LLMModel:        "gpt-4o",
		MaxTokens:       512,
		BaseTemperature: 0.0,
		RetryCount:      1,
		ExecutionMode:   config.ModeInline,
		Datasets: []config.Dataset{
			{ID: config.CorporateDatasetID, Kind: graph.KindLocal, GraphDir: dir, PromptPath: writePrompt(t, dir, "local.txt", "LOCAL PROMPT")},
			{ID: config.DBpediaDatasetID, Kind: graph.KindRemote, Endpoint: "http://127.0.0.1:1/sparql", PromptPath: writePrompt(t, dir, "remote.txt", "REMOTE PROMPT")},
		},
	}
}

func TestServiceSelectsDatasetPrompt(t *testing.T) {
	cfg := testConfig(t)
	llm := &scriptedLLM{steps: []step{{text: fenced("SELECT ?x WHERE { ?x ?p ?o }")}}}
	g := &scriptedGraph{results: []graph.QueryResult{graph.Success([]string{"x"})}}

	svc, err := NewService(cfg, llm, g, nil, zaptest.NewLogger(t))
	require.NoError(t, err)
	svc = svc.WithSleep(noSleep)

	out, err := svc.Generate(context.Background(), "req-1", "Who manages R&D?", "SHAPE", config.CorporateDatasetID)
	require.NoError(t, err)
	assert.True(t, out.Accepted())
	assert.True(t, strings.HasPrefix(llm.reqs[0].Prompt, "LOCAL PROMPT"))
	assert.Equal(t, "gpt-4o", llm.reqs[0].Model)
	assert.Equal(t, 512, llm.reqs[0].MaxTokens)

	_, err = svc.Generate(context.Background(), "req-2", "q", "s", "https://example.org/unknown/")
	assert.ErrorIs(t, err, util.ErrUnknownDataset)

	_, err = svc.Generate(context.Background(), "req-3", "  ", "s", config.CorporateDatasetID)
	assert.ErrorIs(t, err, util.ErrEmptyQuestion)
}

func TestServiceConfigurationErrors(t *testing.T) {
	llm := &scriptedLLM{steps: []step{{text: "x"}}}
	g := &scriptedGraph{results: []graph.QueryResult{graph.Success(nil)}}

	cfg := testConfig(t)
	cfg.Datasets[1].PromptPath = filepath.Join(t.TempDir(), "missing.txt")
	_, err := NewService(cfg, llm, g, nil, nil)
	assert.ErrorIs(t, err, util.ErrConfiguration)

	cfg = testConfig(t)
	cfg.RetryCount = -1
	_, err = NewService(cfg, llm, g, nil, nil)
	assert.ErrorIs(t, err, util.ErrConfiguration)

	cfg = testConfig(t)
	cfg.Datasets[0].GraphDir = ""
	_, err = NewService(cfg, llm, g, nil, nil)
	assert.ErrorIs(t, err, util.ErrConfiguration)

	_, err = NewService(testConfig(t), nil, g, nil, nil)
	assert.ErrorIs(t, err, util.ErrConfiguration)
}

func TestServiceAgainstLocalGraph(t *testing.T) {
	cfg := testConfig(t)
	dir := cfg.Datasets[0].GraphDir
	require.NoError(t, os.WriteFile(filepath.Join(dir, "corp.ttl"), []byte(`
<http://ld.company.org/prod-instances/empl-1> <http://www.w3.org/2000/01/rdf-schema#label> "Heinrich Hoch"@en .
<http://ld.company.org/prod-instances/empl-2> <http://www.w3.org/2000/01/rdf-schema#label> "Karen Schmidt"@en .
`), 0o644))

	exec, err := graph.NewExecutor(time.Second, 2, zaptest.NewLogger(t))
	require.NoError(t, err)
	llm := &scriptedLLM{steps: []step{
		{text: fenced("SELECT ?x WHERE { ?x rdfs:label \"Nobody\"@en }")},
		{text: fenced("SELECT (COUNT(?x) AS ?n) WHERE { ?x rdfs:label ?l }")},
	}}
	svc, err := NewService(cfg, llm, exec, nil, zaptest.NewLogger(t))
	require.NoError(t, err)

	out, err := svc.WithSleep(noSleep).Generate(context.Background(), "req", "How many labelled things?", "", config.CorporateDatasetID)
	require.NoError(t, err)
	require.True(t, out.Accepted())
	assert.Equal(t, 2, out.AttemptCount())
	assert.Equal(t, []string{"2"}, out.Attempts[1].Result.Values)
}
