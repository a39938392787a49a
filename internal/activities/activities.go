package activities

import (
	"context"
	"errors"

	"text2sparql/internal/pipeline"
	"text2sparql/internal/util"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.uber.org/zap"
)

// Activities exposes the pipeline steps to Temporal, one activity per step.
type Activities struct {
	pipeline *pipeline.Pipeline
	log      *zap.Logger
}

func New(p *pipeline.Pipeline, log *zap.Logger) *Activities {
	if log == nil {
		log = zap.NewNop()
	}
	return &Activities{pipeline: p, log: log}
}

func (a *Activities) CaptureQuestionActivity(ctx context.Context, in CaptureQuestionInput) (CaptureQuestionOutput, error) {
	return CaptureQuestionOutput{Ref: a.pipeline.CaptureQuestion(ctx, in.Question, in.DatasetID)}, nil
}

func (a *Activities) TranslateActivity(ctx context.Context, in TranslateInput) (TranslateOutput, error) {
	return TranslateOutput{Question: a.pipeline.Translate(ctx, in.Question)}, nil
}

func (a *Activities) ExtractEntitiesActivity(ctx context.Context, in ExtractEntitiesInput) (ExtractEntitiesOutput, error) {
	return ExtractEntitiesOutput{Entities: a.pipeline.ExtractEntities(ctx, in.Question)}, nil
}

func (a *Activities) GenerateShapeActivity(ctx context.Context, in GenerateShapeInput) (GenerateShapeOutput, error) {
	_ = ctx
	return GenerateShapeOutput{Shape: a.pipeline.Shape(in.DatasetID, in.Entities)}, nil
}

// GenerateQueryActivity runs the whole generation loop. Its own retry budget
// is authoritative, so configuration errors are returned as non-retryable.
func (a *Activities) GenerateQueryActivity(ctx context.Context, in GenerateQueryInput) (GenerateQueryOutput, error) {
	out, err := a.pipeline.Generate(ctx, in.RequestID, in.Question, in.Shape, in.DatasetID)
	if err != nil {
		if errors.Is(err, util.ErrUnknownDataset) || errors.Is(err, util.ErrEmptyQuestion) || errors.Is(err, util.ErrConfiguration) {
			return GenerateQueryOutput{}, temporal.NewNonRetryableApplicationError(err.Error(), errorType(err), err)
		}
		return GenerateQueryOutput{}, err
	}
	activity.GetLogger(ctx).Info("query generated", "request_id", in.RequestID, "status", string(out.Status), "attempts", out.AttemptCount())
	return GenerateQueryOutput{
		Status:   string(out.Status),
		Query:    out.Query,
		Attempts: out.AttemptCount(),
		Fallback: out.Fallback,
	}, nil
}

func (a *Activities) CompleteCaptureActivity(ctx context.Context, in CompleteCaptureInput) error {
	a.pipeline.CompleteCapture(ctx, in.Ref, in.Query)
	return nil
}

func errorType(err error) string {
	switch {
	case errors.Is(err, util.ErrUnknownDataset):
		return "UnknownDataset"
	case errors.Is(err, util.ErrEmptyQuestion):
		return "EmptyQuestion"
	default:
		return "Configuration"
	}
}
