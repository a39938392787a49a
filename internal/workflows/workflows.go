package workflows

import (
	"time"

	"text2sparql/internal/activities"
	"text2sparql/internal/models"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const QueryGetQuestionProgress = "GetQuestionProgress"

const (
	stepCapture   = "capture_question"
	stepTranslate = "translate"
	stepEntities  = "extract_entities"
	stepShape     = "generate_shape"
	stepGenerate  = "generate_query"
	stepComplete  = "complete_capture"
)

// QuestionWorkflow answers one question. Collaborator steps retry on their
// own policy; the generation step runs exactly once because the loop inside
// it already spends the retry budget.
func QuestionWorkflow(ctx workflow.Context, input QuestionInput) (models.Answer, error) {
	progress := QuestionProgress{
		RequestID:   input.RequestID,
		DatasetID:   input.DatasetID,
		CurrentStep: "init",
		Status:      "processing",
		Steps:       map[string]string{},
	}
	if err := workflow.SetQueryHandler(ctx, QueryGetQuestionProgress, func() (QuestionProgress, error) {
		return progress, nil
	}); err != nil {
		return models.Answer{}, err
	}

	stepCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2,
			MaximumInterval:    10 * time.Second,
			MaximumAttempts:    3,
		},
	})
	genCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 15 * time.Minute,
		RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
	})
	begin := func(step string) {
		progress.CurrentStep = step
		progress.Steps[step] = "processing"
	}
	finish := func(step string, err error) {
		if err != nil {
			progress.Steps[step] = "failed"
			return
		}
		progress.Steps[step] = "done"
	}

	begin(stepCapture)
	var capOut activities.CaptureQuestionOutput
	err := workflow.ExecuteActivity(stepCtx, "CaptureQuestionActivity", activities.CaptureQuestionInput{
		Question:  input.Question,
		DatasetID: input.DatasetID,
	}).Get(ctx, &capOut)
	finish(stepCapture, err)
	progress.Capture = capOut.Ref

	begin(stepTranslate)
	question := input.Question
	var trOut activities.TranslateOutput
	err = workflow.ExecuteActivity(stepCtx, "TranslateActivity", activities.TranslateInput{Question: input.Question}).Get(ctx, &trOut)
	finish(stepTranslate, err)
	if err == nil && trOut.Question != "" {
		question = trOut.Question
	}
	progress.Question = question

	var entities map[string]string
	if input.Remote {
		begin(stepEntities)
		var entOut activities.ExtractEntitiesOutput
		err = workflow.ExecuteActivity(stepCtx, "ExtractEntitiesActivity", activities.ExtractEntitiesInput{Question: question}).Get(ctx, &entOut)
		finish(stepEntities, err)
		entities = entOut.Entities
	}

	begin(stepShape)
	var shapeOut activities.GenerateShapeOutput
	err = workflow.ExecuteActivity(stepCtx, "GenerateShapeActivity", activities.GenerateShapeInput{
		DatasetID: input.DatasetID,
		Entities:  entities,
	}).Get(ctx, &shapeOut)
	finish(stepShape, err)
	if err != nil {
		progress.Status = "failed"
		return models.Answer{}, err
	}
	progress.Shape = shapeOut.Shape

	begin(stepGenerate)
	var genOut activities.GenerateQueryOutput
	err = workflow.ExecuteActivity(genCtx, "GenerateQueryActivity", activities.GenerateQueryInput{
		RequestID: input.RequestID,
		Question:  question,
		Shape:     shapeOut.Shape,
		DatasetID: input.DatasetID,
	}).Get(ctx, &genOut)
	finish(stepGenerate, err)
	if err != nil {
		progress.Status = "failed"
		return models.Answer{}, err
	}
	progress.Attempts = genOut.Attempts

	if !capOut.Ref.IsZero() {
		begin(stepComplete)
		err = workflow.ExecuteActivity(stepCtx, "CompleteCaptureActivity", activities.CompleteCaptureInput{
			Ref:   capOut.Ref,
			Query: genOut.Query,
		}).Get(ctx, nil)
		finish(stepComplete, err)
	}

	progress.Status = genOut.Status
	return models.Answer{
		RequestID: input.RequestID,
		Dataset:   input.DatasetID,
		Question:  input.Question,
		Query:     genOut.Query,
		Status:    genOut.Status,
		Attempts:  genOut.Attempts,
		Fallback:  genOut.Fallback,
	}, nil
}
