package pipeline

import (
	"context"
	"fmt"

	"text2sparql/internal/capture"
	"text2sparql/internal/config"
	"text2sparql/internal/generation"
	"text2sparql/internal/graph"
	"text2sparql/internal/logging"
	"text2sparql/internal/models"
	"text2sparql/internal/shapes"
	"text2sparql/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Translator interface {
	Translate(ctx context.Context, question string) (string, error)
}

type EntityExtractor interface {
	Extract(ctx context.Context, question string) (map[string]string, error)
}

type Generator interface {
	Generate(ctx context.Context, requestID, question, shape, datasetID string) (generation.Outcome, error)
}

// Pipeline answers one question end to end. The step methods are exported
// so the Temporal activities can run them one at a time.
type Pipeline struct {
	cfg        config.Config
	capturer   capture.Capturer
	translator Translator
	entities   EntityExtractor
	generator  Generator
	log        *zap.Logger
}

type Deps struct {
	Capturer   capture.Capturer
	Translator Translator
	Entities   EntityExtractor
	Generator  Generator
}

func New(cfg config.Config, deps Deps, log *zap.Logger) (*Pipeline, error) {
	if deps.Translator == nil || deps.Generator == nil {
		return nil, fmt.Errorf("%w: pipeline needs a translator and a generator", util.ErrConfiguration)
	}
	if deps.Capturer == nil {
		deps.Capturer = capture.Nop{}
	}
	return &Pipeline{
		cfg:        cfg,
		capturer:   deps.Capturer,
		translator: deps.Translator,
		entities:   deps.Entities,
		generator:  deps.Generator,
		log:        logging.OrNop(log),
	}, nil
}

func (p *Pipeline) Dataset(datasetID string) (config.Dataset, error) {
	d, ok := p.cfg.Dataset(datasetID)
	if !ok {
		return config.Dataset{}, fmt.Errorf("%w: %s", util.ErrUnknownDataset, datasetID)
	}
	return d, nil
}

// Answer runs capture, translation, entity extraction, shape generation and
// the generation loop for one question.
func (p *Pipeline) Answer(ctx context.Context, question, datasetID string) (models.Answer, error) {
	return p.AnswerWithID(ctx, uuid.NewString(), question, datasetID)
}

func (p *Pipeline) AnswerWithID(ctx context.Context, requestID, question, datasetID string) (models.Answer, error) {
	question = util.SanitizeText(question)
	if question == "" {
		return models.Answer{}, util.ErrEmptyQuestion
	}
	d, err := p.Dataset(datasetID)
	if err != nil {
		return models.Answer{}, err
	}
	log := p.log.With(zap.String("request_id", requestID), zap.String("dataset", d.ID))

	ref := p.CaptureQuestion(ctx, question, d.ID)
	english := p.Translate(ctx, question)
	var resolved map[string]string
	if d.Kind == graph.KindRemote {
		resolved = p.ExtractEntities(ctx, english)
	}
	shape := p.Shape(d.ID, resolved)

	out, err := p.generator.Generate(ctx, requestID, english, shape, d.ID)
	if err != nil {
		return models.Answer{}, err
	}
	p.CompleteCapture(ctx, ref, out.Query)
	log.Info("question answered", zap.String("status", string(out.Status)), zap.Int("attempts", out.AttemptCount()))
	return ToAnswer(requestID, d.ID, question, out), nil
}

// CaptureQuestion never fails the request; a failed capture yields a zero Ref.
func (p *Pipeline) CaptureQuestion(ctx context.Context, question, datasetID string) capture.Ref {
	ref, err := p.capturer.Capture(ctx, question, datasetID)
	if err != nil {
		p.log.Warn("capture question failed", zap.String("dataset", datasetID), zap.Error(err))
		return capture.Ref{}
	}
	return ref
}

func (p *Pipeline) CompleteCapture(ctx context.Context, ref capture.Ref, query string) {
	if ref.IsZero() {
		return
	}
	if err := p.capturer.Complete(ctx, ref, query); err != nil {
		p.log.Warn("complete capture failed", zap.String("capture_id", ref.ID), zap.Error(err))
	}
}

// Translate falls back to the original question when translation fails.
func (p *Pipeline) Translate(ctx context.Context, question string) string {
	english, err := p.translator.Translate(ctx, question)
	if err != nil {
		p.log.Warn("translation failed, using original question", zap.Error(err))
		return question
	}
	return english
}

// ExtractEntities returns nil when no extractor is configured or extraction
// fails.
func (p *Pipeline) ExtractEntities(ctx context.Context, question string) map[string]string {
	if p.entities == nil {
		return nil
	}
	resolved, err := p.entities.Extract(ctx, question)
	if err != nil {
		p.log.Warn("entity extraction failed", zap.Error(err))
		return nil
	}
	return resolved
}

func (p *Pipeline) Shape(datasetID string, entities map[string]string) string {
	return shapes.Generate(datasetID, entities)
}

func (p *Pipeline) Generate(ctx context.Context, requestID, question, shape, datasetID string) (generation.Outcome, error) {
	return p.generator.Generate(ctx, requestID, question, shape, datasetID)
}

func ToAnswer(requestID, datasetID, question string, out generation.Outcome) models.Answer {
	return models.Answer{
		RequestID: requestID,
		Dataset:   datasetID,
		Question:  question,
		Query:     out.Query,
		Status:    string(out.Status),
		Attempts:  out.AttemptCount(),
		Fallback:  out.Fallback,
	}
}
