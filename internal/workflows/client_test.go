package workflows

import (
	"context"
	"testing"

	"text2sparql/internal/config"
	"text2sparql/internal/graph"
	"text2sparql/internal/models"
	"text2sparql/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"
)

func answererConfig() config.Config {
	return config.Config{
		TemporalTaskQueue: "text2sparql-test",
		Datasets: []config.Dataset{
			{ID: config.DBpediaDatasetID, Kind: graph.KindRemote, Endpoint: "https://dbpedia.org/sparql", PromptPath: "p"},
		},
	}
}

func TestAnswerWithIDUsesRequestIDForWorkflow(t *testing.T) {
	c := mocks.NewClient(t)
	run := mocks.NewWorkflowRun(t)

	c.On("ExecuteWorkflow", mock.Anything,
		mock.MatchedBy(func(o client.StartWorkflowOptions) bool {
			return o.ID == "question-job-42" && o.TaskQueue == "text2sparql-test"
		}),
		mock.Anything,
		mock.MatchedBy(func(in QuestionInput) bool {
			return in.RequestID == "job-42" && in.Remote && in.Question == "Who founded Berlin?"
		}),
	).Return(run, nil).Once()
	run.On("Get", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		*args.Get(1).(*models.Answer) = models.Answer{RequestID: "job-42", Status: models.StatusAccepted}
	}).Return(nil).Once()

	ans, err := NewAnswerer(c, answererConfig()).AnswerWithID(context.Background(), "job-42", " Who founded Berlin? ", config.DBpediaDatasetID)
	require.NoError(t, err)
	assert.Equal(t, "job-42", ans.RequestID)
}

func TestProgressQueriesSameWorkflow(t *testing.T) {
	c := mocks.NewClient(t)
	val := mocks.NewEncodedValue(t)

	c.On("QueryWorkflow", mock.Anything, "question-job-42", "", QueryGetQuestionProgress).Return(val, nil).Once()
	val.On("Get", mock.Anything).Run(func(args mock.Arguments) {
		*args.Get(0).(*QuestionProgress) = QuestionProgress{RequestID: "job-42", CurrentStep: "translate"}
	}).Return(nil).Once()

	prog, err := NewAnswerer(c, answererConfig()).Progress(context.Background(), "job-42")
	require.NoError(t, err)
	assert.Equal(t, "translate", prog.CurrentStep)
}

func TestAnswerWithIDValidatesBeforeStarting(t *testing.T) {
	a := NewAnswerer(mocks.NewClient(t), answererConfig())

	_, err := a.AnswerWithID(context.Background(), "r", " ", config.DBpediaDatasetID)
	assert.ErrorIs(t, err, util.ErrEmptyQuestion)

	_, err = a.AnswerWithID(context.Background(), "r", "q", "https://example.org/nope/")
	assert.ErrorIs(t, err, util.ErrUnknownDataset)
}
