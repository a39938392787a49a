package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"text2sparql/internal/capture"
	"text2sparql/internal/config"
	"text2sparql/internal/generation"
	"text2sparql/internal/graph"
	"text2sparql/internal/models"
	"text2sparql/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeTranslator struct {
	out string
	err error
}

func (f fakeTranslator) Translate(_ context.Context, q string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	if f.out == "" {
		return q, nil
	}
	return f.out, nil
}

type fakeEntities struct {
	calls    int
	resolved map[string]string
}

func (f *fakeEntities) Extract(context.Context, string) (map[string]string, error) {
	f.calls++
	return f.resolved, nil
}

type genCall struct{ question, shape, dataset string }

type fakeGenerator struct {
	calls []genCall
	out   generation.Outcome
}

func (f *fakeGenerator) Generate(_ context.Context, _ string, question, shape, datasetID string) (generation.Outcome, error) {
	f.calls = append(f.calls, genCall{question, shape, datasetID})
	return f.out, nil
}

type failingCapturer struct{}

func (failingCapturer) Capture(context.Context, string, string) (capture.Ref, error) {
	return capture.Ref{}, errors.New("disk full")
}

func (failingCapturer) Complete(context.Context, capture.Ref, string) error {
	return errors.New("disk full")
}

func datasets() []config.Dataset {
	return []config.Dataset{
		{ID: config.CorporateDatasetID, Kind: graph.KindLocal, GraphDir: "/tmp/corp", PromptPath: "p"},
		{ID: config.DBpediaDatasetID, Kind: graph.KindRemote, Endpoint: "http://127.0.0.1:1/sparql", PromptPath: "p"},
	}
}

func accepted(q string) generation.Outcome {
	return generation.Outcome{Status: generation.StatusAccepted, Query: q, Attempts: make([]generation.Attempt, 1)}
}

func TestAnswerLocalSkipsEntities(t *testing.T) {
	ents := &fakeEntities{resolved: map[string]string{"X": "http://x"}}
	gen := &fakeGenerator{out: accepted("SELECT ?m WHERE { ?d ?p ?m }")}
	dir := t.TempDir()
	p, err := New(config.Config{Datasets: datasets()}, Deps{
		Capturer:   capture.NewFileCapturer(dir, nil),
		Translator: fakeTranslator{},
		Entities:   ents,
		Generator:  gen,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	ans, err := p.Answer(context.Background(), "Who manages R&D?", config.CorporateDatasetID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, ans.Status)
	assert.Equal(t, 1, ans.Attempts)
	assert.NotEmpty(t, ans.RequestID)
	assert.Zero(t, ents.calls)
	require.Len(t, gen.calls, 1)
	assert.Contains(t, gen.calls[0].shape, "corp:hasManager")

	b, err := os.ReadFile(filepath.Join(dir, "corporate_captured.json"))
	require.NoError(t, err)
	assert.Contains(t, string(b), "?d ?p ?m")
}

func TestAnswerRemoteUsesEntitiesAndTranslation(t *testing.T) {
	ents := &fakeEntities{resolved: map[string]string{"Paris": "http://dbpedia.org/resource/Paris"}}
	gen := &fakeGenerator{out: generation.Outcome{
		Status:   generation.StatusExhausted,
		Query:    "SELECT ?x WHERE { ?x ?y ?z }",
		Attempts: make([]generation.Attempt, 4),
		Fallback: "fallback",
	}}
	p, err := New(config.Config{Datasets: datasets()}, Deps{
		Translator: fakeTranslator{out: "How many people live in Paris?"},
		Entities:   ents,
		Generator:  gen,
	}, nil)
	require.NoError(t, err)

	ans, err := p.Answer(context.Background(), "Wie viele Menschen leben in Paris?", config.DBpediaDatasetID)
	require.NoError(t, err)
	assert.Equal(t, 1, ents.calls)
	assert.Equal(t, "How many people live in Paris?", gen.calls[0].question)
	assert.Equal(t, "Shape generated for: Paris=http://dbpedia.org/resource/Paris", gen.calls[0].shape)
	assert.Equal(t, "Wie viele Menschen leben in Paris?", ans.Question)
	assert.Equal(t, models.StatusExhausted, ans.Status)
	assert.Equal(t, 4, ans.Attempts)
	assert.Equal(t, "fallback", ans.Fallback)
}

func TestAnswerDegradesOnCollaboratorFailures(t *testing.T) {
	gen := &fakeGenerator{out: accepted("ASK {}")}
	p, err := New(config.Config{Datasets: datasets()}, Deps{
		Capturer:   failingCapturer{},
		Translator: fakeTranslator{err: util.ErrTranslation},
		Generator:  gen,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)

	ans, err := p.Answer(context.Background(), "Wer?", config.DBpediaDatasetID)
	require.NoError(t, err)
	assert.Equal(t, "ASK {}", ans.Query)
	assert.Equal(t, "Wer?", gen.calls[0].question)
	assert.Contains(t, gen.calls[0].shape, "dbo:capital")
}

func TestAnswerErrors(t *testing.T) {
	gen := &fakeGenerator{}
	p, err := New(config.Config{Datasets: datasets()}, Deps{Translator: fakeTranslator{}, Generator: gen}, nil)
	require.NoError(t, err)

	_, err = p.Answer(context.Background(), "q", "https://example.org/nope/")
	assert.ErrorIs(t, err, util.ErrUnknownDataset)
	_, err = p.Answer(context.Background(), " ", config.CorporateDatasetID)
	assert.ErrorIs(t, err, util.ErrEmptyQuestion)
	assert.Empty(t, gen.calls)

	_, err = New(config.Config{}, Deps{}, nil)
	assert.ErrorIs(t, err, util.ErrConfiguration)
}

func TestBuildInlineWithMockProvider(t *testing.T) {
	dir := t.TempDir()
	graphDir := filepath.Join(dir, "corporate")
	require.NoError(t, os.MkdirAll(graphDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(graphDir, "corp.nt"), []byte(
		"<http://ex/a> <http://ex/p> <http://ex/b> .\n<http://ex/b> <http://ex/p> <http://ex/c> .\n"), 0o644))
	prompt := filepath.Join(dir, "local.txt")
	require.NoError(t, os.WriteFile(prompt, []byte("You write SPARQL."), 0o644))

	cfg := config.Config{
		LLMProviders:   "mock",
		LLMModel:       "mock",
		MaxTokens:      128,
		RetryCount:     2,
		ExecutionMode:  config.ModeInline,
		GraphCacheSize: 2,
		CaptureBackend: capture.BackendFile,
		CaptureDir:     filepath.Join(dir, "captures"),
		Datasets: []config.Dataset{
			{ID: config.CorporateDatasetID, Kind: graph.KindLocal, GraphDir: graphDir, PromptPath: prompt},
		},
	}
	rt, err := Build(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer rt.Close()

	ans, err := rt.Pipeline.Answer(context.Background(), "How many triples are there?", config.CorporateDatasetID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusAccepted, ans.Status)
	assert.Equal(t, 1, ans.Attempts)
	assert.Contains(t, ans.Query, "COUNT(*)")
	assert.FileExists(t, filepath.Join(dir, "captures", "corporate_captured.json"))
}
