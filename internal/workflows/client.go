package workflows

import (
	"context"
	"fmt"
	"strings"

	"text2sparql/internal/config"
	"text2sparql/internal/graph"
	"text2sparql/internal/models"
	"text2sparql/internal/util"

	"github.com/google/uuid"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/sdk/client"
)

// Answerer starts QuestionWorkflow and waits for its result.
type Answerer struct {
	client    client.Client
	taskQueue string
	cfg       config.Config
}

func NewAnswerer(c client.Client, cfg config.Config) *Answerer {
	return &Answerer{client: c, taskQueue: cfg.TemporalTaskQueue, cfg: cfg}
}

func (a *Answerer) Answer(ctx context.Context, question, datasetID string) (models.Answer, error) {
	return a.AnswerWithID(ctx, uuid.NewString(), question, datasetID)
}

// AnswerWithID runs the workflow "question-<requestID>" so Progress can be
// queried with the same id while it runs.
func (a *Answerer) AnswerWithID(ctx context.Context, requestID, question, datasetID string) (models.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return models.Answer{}, util.ErrEmptyQuestion
	}
	d, ok := a.cfg.Dataset(datasetID)
	if !ok {
		return models.Answer{}, fmt.Errorf("%w: %s", util.ErrUnknownDataset, datasetID)
	}
	run, err := a.client.ExecuteWorkflow(ctx, client.StartWorkflowOptions{
		ID:                    workflowID(requestID),
		TaskQueue:             a.taskQueue,
		WorkflowIDReusePolicy: enumspb.WORKFLOW_ID_REUSE_POLICY_REJECT_DUPLICATE,
	}, QuestionWorkflow, QuestionInput{
		RequestID: requestID,
		Question:  question,
		DatasetID: d.ID,
		Remote:    d.Kind == graph.KindRemote,
	})
	if err != nil {
		return models.Answer{}, fmt.Errorf("start question workflow: %w", err)
	}
	var ans models.Answer
	if err := run.Get(ctx, &ans); err != nil {
		return models.Answer{}, fmt.Errorf("question workflow %s: %w", run.GetID(), err)
	}
	return ans, nil
}

// Progress reads the GetQuestionProgress query of a running or finished
// question workflow.
func (a *Answerer) Progress(ctx context.Context, requestID string) (QuestionProgress, error) {
	var prog QuestionProgress
	resp, err := a.client.QueryWorkflow(ctx, workflowID(requestID), "", QueryGetQuestionProgress)
	if err != nil {
		return prog, err
	}
	if err := resp.Get(&prog); err != nil {
		return prog, err
	}
	return prog, nil
}

func workflowID(requestID string) string { return "question-" + requestID }
