package generation

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"text2sparql/internal/config"
	"text2sparql/internal/graph"
	"text2sparql/internal/logging"
	"text2sparql/internal/providers"
	"text2sparql/internal/util"

	"go.uber.org/zap"
)

// Service is the entry point for query generation. It owns the resolved
// configuration: dataset targets, their system prompts and the loop settings.
type Service struct {
	cfg     config.Config
	loop    Loop
	prompts map[string]string
	log     *zap.Logger
}

// NewService validates cfg and loads every dataset's system prompt. Any
// missing value is reported as a configuration error.
func NewService(cfg config.Config, llm providers.LLMProvider, acc graph.Accessor, rec AttemptRecorder, log *zap.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if llm == nil || acc == nil {
		return nil, fmt.Errorf("%w: llm provider and graph accessor are required", util.ErrConfiguration)
	}
	log = logging.OrNop(log)
	prompts := make(map[string]string, len(cfg.Datasets))
	for _, d := range cfg.Datasets {
		text, err := readPrompt(d.PromptPath)
		if err != nil {
			return nil, fmt.Errorf("%w: dataset %s: %v", util.ErrConfiguration, d.ID, err)
		}
		prompts[d.ID] = text
	}
	return &Service{
		cfg: cfg,
		loop: Loop{
			LLM:             llm,
			Graph:           acc,
			Model:           cfg.LLMModel,
			MaxTokens:       cfg.MaxTokens,
			BaseTemperature: cfg.BaseTemperature,
			RetryCount:      cfg.RetryCount,
			Pause:           cfg.RetryPause,
			Recorder:        rec,
			Log:             log.Named("generation"),
		},
		prompts: prompts,
		log:     log,
	}, nil
}

func readPrompt(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read system prompt: %w", err)
	}
	text := strings.TrimSpace(string(b))
	if text == "" {
		return "", fmt.Errorf("system prompt %s is empty", path)
	}
	return text, nil
}

// WithSleep replaces the pause between attempts, for tests and batch tools.
func (s *Service) WithSleep(sleep func(context.Context, time.Duration)) *Service {
	cp := *s
	cp.loop.Sleep = sleep
	return &cp
}

// Generate runs the loop once for question against datasetID. Only an
// unknown dataset or an empty question is an error; an exhausted budget is a
// normal Outcome.
func (s *Service) Generate(ctx context.Context, requestID, question, shape, datasetID string) (Outcome, error) {
	if strings.TrimSpace(question) == "" {
		return Outcome{}, util.ErrEmptyQuestion
	}
	d, ok := s.cfg.Dataset(datasetID)
	if !ok {
		return Outcome{}, fmt.Errorf("%w: %s", util.ErrUnknownDataset, datasetID)
	}
	out := s.loop.Run(ctx, Request{
		RequestID:    requestID,
		DatasetID:    d.ID,
		Question:     question,
		Shape:        shape,
		SystemPrompt: s.prompts[d.ID],
		Target:       d.Target(),
	})
	s.log.Info("generation finished",
		zap.String("request_id", requestID),
		zap.String("dataset", d.ID),
		zap.String("status", string(out.Status)),
		zap.Int("attempts", out.AttemptCount()))
	return out, nil
}
