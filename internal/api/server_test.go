package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"text2sparql/internal/config"
	"text2sparql/internal/graph"
	"text2sparql/internal/models"
	"text2sparql/internal/util"
	"text2sparql/internal/workflows"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeAnswerer struct {
	ans models.Answer
	err error
}

func (f fakeAnswerer) AnswerWithID(_ context.Context, requestID, question, datasetID string) (models.Answer, error) {
	if f.err != nil {
		return models.Answer{}, f.err
	}
	a := f.ans
	a.RequestID, a.Question, a.Dataset = requestID, question, datasetID
	return a, nil
}

type fakeProgress struct{}

func (fakeProgress) Progress(_ context.Context, id string) (workflows.QuestionProgress, error) {
	if id != "r1" {
		return workflows.QuestionProgress{}, errors.New("workflow not found")
	}
	return workflows.QuestionProgress{RequestID: id, Status: "processing", CurrentStep: "generate_query"}, nil
}

func newServer(t *testing.T, a Answerer, p ProgressSource) http.Handler {
	cfg := config.Config{Datasets: []config.Dataset{
		{ID: config.CorporateDatasetID, Kind: graph.KindLocal, GraphDir: "/tmp", PromptPath: "p"},
	}}
	return NewServer(cfg, a, p, zaptest.NewLogger(t)).Routes()
}

func get(t *testing.T, h http.Handler, target string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec, body
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestAnswerOK(t *testing.T) {
	h := newServer(t, fakeAnswerer{ans: models.Answer{Query: "ASK {}", Status: "accepted", Attempts: 1}}, nil)
	target := "/?" + url.Values{"question": {"Who manages R&D?"}, "dataset": {config.CorporateDatasetID}}.Encode()

	rec, body := get(t, h, target)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "Who manages R&D?", body["question"])
	assert.Equal(t, config.CorporateDatasetID, body["dataset"])
	assert.Equal(t, "accepted", body["status"])
	assert.EqualValues(t, 1, body["attempts"])
	assert.NotContains(t, body, "fallback")
}

func TestAnswerExhausted(t *testing.T) {
	fallback := `No valid SPARQL query found for question "Who manages R&D?" after 3 attempts; returning the last attempt.`
	h := newServer(t, fakeAnswerer{ans: models.Answer{
		Query:    "SELECT ?m WHERE { ?d <http://ex/manager> ?m }",
		Status:   "exhausted",
		Attempts: 3,
		Fallback: fallback,
	}}, nil)
	target := "/?" + url.Values{"question": {"Who manages R&D?"}, "dataset": {config.CorporateDatasetID}}.Encode()

	rec, body := get(t, h, target)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "exhausted", body["status"])
	assert.Equal(t, "SELECT ?m WHERE { ?d <http://ex/manager> ?m }", body["query"])
	assert.EqualValues(t, 3, body["attempts"])
	assert.Equal(t, fallback, body["fallback"])
	assert.NotContains(t, body, "error")
}

func TestAnswerRequestID(t *testing.T) {
	h := newServer(t, fakeAnswerer{ans: models.Answer{Status: "accepted", Attempts: 1}}, nil)
	base := url.Values{"question": {"q"}, "dataset": {config.CorporateDatasetID}}

	withParam := url.Values{"request_id": {"job-42"}}
	for k, v := range base {
		withParam[k] = v
	}
	rec, body := get(t, h, "/?"+withParam.Encode())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "job-42", rec.Header().Get("X-Request-ID"))
	assert.Equal(t, "job-42", body["request_id"])

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/?"+base.Encode(), nil)
	req.Header.Set("X-Request-ID", "from-header")
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "from-header", rec.Header().Get("X-Request-ID"))

	rec, body = get(t, h, "/?"+base.Encode())
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
	assert.Equal(t, rec.Header().Get("X-Request-ID"), body["request_id"])

	bad := url.Values{"request_id": {"../etc"}}
	for k, v := range base {
		bad[k] = v
	}
	rec, body = get(t, h, "/?"+bad.Encode())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "T2S-API-4001", errorCode(body))
}

func TestAnswerErrors(t *testing.T) {
	cases := []struct {
		name   string
		target string
		err    error
		status int
		code   string
	}{
		{"missing question", "/?dataset=x", nil, http.StatusBadRequest, "T2S-API-4001"},
		{"missing dataset", "/?question=q", nil, http.StatusBadRequest, "T2S-API-4001"},
		{"unknown dataset", "/?question=q&dataset=x", fmt.Errorf("%w: x", util.ErrUnknownDataset), http.StatusNotFound, "T2S-API-4041"},
		{"configuration", "/?question=q&dataset=x", fmt.Errorf("%w: no prompt", util.ErrConfiguration), http.StatusInternalServerError, "T2S-CFG-5001"},
		{"other failure", "/?question=q&dataset=x", errors.New("boom"), http.StatusInternalServerError, "T2S-API-5000"},
		{"unknown path", "/nope", nil, http.StatusNotFound, "T2S-API-4004"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, body := get(t, newServer(t, fakeAnswerer{err: tc.err}, nil), tc.target)
			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, errorCode(body))
		})
	}
}

func TestHealthAndDatasets(t *testing.T) {
	h := newServer(t, fakeAnswerer{}, nil)
	rec, body := get(t, h, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])

	rec, body = get(t, h, "/datasets")
	require.Equal(t, http.StatusOK, rec.Code)
	ds := body["datasets"].([]any)
	require.Len(t, ds, 1)
	assert.Equal(t, "corporate", ds[0].(map[string]any)["name"])
}

func TestProgress(t *testing.T) {
	rec, body := get(t, newServer(t, fakeAnswerer{}, fakeProgress{}), "/questions/r1/progress")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "generate_query", body["current_step"])

	rec, _ = get(t, newServer(t, fakeAnswerer{}, fakeProgress{}), "/questions/zz/progress")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = get(t, newServer(t, fakeAnswerer{}, nil), "/questions/r1/progress")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	rec := httptest.NewRecorder()
	newServer(t, fakeAnswerer{}, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/?question=q&dataset=d", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
