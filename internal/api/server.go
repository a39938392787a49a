package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"text2sparql/internal/config"
	"text2sparql/internal/models"
	"text2sparql/internal/util"
	"text2sparql/internal/workflows"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-ID"

var requestIDPattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// Answerer produces the answer for one question, either in process or
// through a Temporal workflow. requestID keys the question's progress.
type Answerer interface {
	AnswerWithID(ctx context.Context, requestID, question, datasetID string) (models.Answer, error)
}

// ProgressSource is available in temporal mode only.
type ProgressSource interface {
	Progress(ctx context.Context, requestID string) (workflows.QuestionProgress, error)
}

type Server struct {
	cfg      config.Config
	answerer Answerer
	progress ProgressSource
	log      *zap.Logger
}

func NewServer(cfg config.Config, answerer Answerer, progress ProgressSource, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{cfg: cfg, answerer: answerer, progress: progress, log: log}
}

func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/datasets", s.handleDatasets)
	mux.HandleFunc("/questions/", s.handleQuestionScoped)
	mux.HandleFunc("/", s.handleAnswer)
	return withRequestLog(s.log, withCORS(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleDatasets(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	type dataset struct {
		ID   string `json:"id"`
		Name string `json:"name"`
		Kind string `json:"kind"`
	}
	out := make([]dataset, 0, len(s.cfg.Datasets))
	for _, d := range s.cfg.Datasets {
		out = append(out, dataset{ID: d.ID, Name: d.Name(), Kind: string(d.Kind)})
	}
	writeJSON(w, http.StatusOK, map[string]any{"datasets": out})
}

func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	q := r.URL.Query()
	question := strings.TrimSpace(q.Get("question"))
	dataset := strings.TrimSpace(q.Get("dataset"))
	if question == "" || dataset == "" {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("question and dataset are required"))
		return
	}
	// callers that want to poll progress while the answer is pending pick
	// the id themselves
	requestID := strings.TrimSpace(q.Get("request_id"))
	if requestID == "" {
		requestID = strings.TrimSpace(r.Header.Get(requestIDHeader))
	}
	if requestID == "" {
		requestID = uuid.NewString()
	} else if !requestIDPattern.MatchString(requestID) {
		writeErr(w, http.StatusBadRequest, fmt.Errorf("invalid request_id"))
		return
	}
	w.Header().Set(requestIDHeader, requestID)

	ans, err := s.answerer.AnswerWithID(r.Context(), requestID, question, dataset)
	if err != nil {
		status := statusFor(err)
		if status >= 500 {
			s.log.Error("answer failed", zap.String("dataset", dataset), zap.Error(err))
		}
		writeErr(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, ans)
}

func (s *Server) handleQuestionScoped(w http.ResponseWriter, r *http.Request) {
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/questions/"), "/"), "/")
	if len(parts) != 2 || parts[1] != "progress" {
		writeErr(w, http.StatusNotFound, fmt.Errorf("not found"))
		return
	}
	if r.Method != http.MethodGet {
		writeErr(w, http.StatusMethodNotAllowed, fmt.Errorf("method not allowed"))
		return
	}
	if s.progress == nil {
		writeErr(w, http.StatusNotFound, fmt.Errorf("progress is only tracked in temporal mode"))
		return
	}
	prog, err := s.progress.Progress(r.Context(), parts[0])
	if err != nil {
		writeErr(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, prog)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, util.ErrEmptyQuestion):
		return http.StatusBadRequest
	case errors.Is(err, util.ErrUnknownDataset):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErr(w http.ResponseWriter, code int, err error) {
	apiErr := toAPIError(code, err)
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		},
	})
}

type apiError struct {
	Code    string
	Message string
}

func toAPIError(status int, err error) apiError {
	switch {
	case errors.Is(err, util.ErrConfiguration):
		return apiError{
			Code:    "T2S-CFG-5001",
			Message: "Service is misconfigured. Check the dataset and provider settings.",
		}
	case errors.Is(err, util.ErrUnknownDataset):
		return apiError{Code: "T2S-API-4041", Message: "Unknown dataset. See /datasets for the configured ones."}
	case errors.Is(err, util.ErrEmptyQuestion):
		return apiError{Code: "T2S-API-4002", Message: "Question must not be empty."}
	}

	switch status {
	case http.StatusBadRequest:
		msg := "Invalid request. Check inputs and retry."
		switch {
		case err == nil:
		case strings.Contains(err.Error(), "question and dataset are required"):
			msg = "Both question and dataset are required."
		case strings.Contains(err.Error(), "invalid request_id"):
			msg = "request_id may only contain letters, digits, '.', '_' and '-' (at most 64)."
		}
		return apiError{Code: "T2S-API-4001", Message: msg}
	case http.StatusNotFound:
		return apiError{Code: "T2S-API-4004", Message: "Requested resource was not found."}
	case http.StatusMethodNotAllowed:
		return apiError{Code: "T2S-API-4005", Message: "This endpoint does not support the requested method."}
	case http.StatusGatewayTimeout:
		return apiError{Code: "T2S-API-5040", Message: "Answering the question timed out. Retry shortly."}
	}
	if status >= 500 {
		return apiError{Code: "T2S-API-5000", Message: "Internal server error. Please retry or check service logs."}
	}
	return apiError{Code: "T2S-API-4000", Message: "Request failed."}
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+requestIDHeader)
		w.Header().Set("Access-Control-Expose-Headers", requestIDHeader)
		w.Header().Set("Access-Control-Allow-Methods", "GET,OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func withRequestLog(log *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		log.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)))
	})
}
