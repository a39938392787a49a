package generation

import (
	"context"
	"fmt"
	"math"
	"time"

	"text2sparql/internal/graph"
	"text2sparql/internal/logging"
	"text2sparql/internal/models"
	"text2sparql/internal/providers"
	"text2sparql/internal/util"

	"go.uber.org/zap"
)

const (
	temperatureStep = 0.1
	maxTemperature  = 1.0

	// systemMessage is sent as the chat system role; the dataset's own system
	// prompt is part of the user message built by BuildPrompt.
	systemMessage = "You translate natural-language questions into SPARQL queries. Reply with SPARQL only."
)

type Status string

const (
	StatusAccepted  Status = models.StatusAccepted
	StatusExhausted Status = models.StatusExhausted
)

// Attempt records one iteration of the loop.
type Attempt struct {
	Index       int               `json:"index"`
	Temperature float64           `json:"temperature"`
	Prompt      string            `json:"-"`
	Query       string            `json:"query,omitempty"`
	Result      graph.QueryResult `json:"result"`
	Faulty      bool              `json:"faulty"`
	LLMError    string            `json:"llm_error,omitempty"`
}

// Outcome is the terminal value of one loop run. For an exhausted run Query
// holds the last generated query, or the last LLM error text when no query
// was ever produced.
type Outcome struct {
	Status   Status    `json:"status"`
	Query    string    `json:"query"`
	Attempts []Attempt `json:"attempts"`
	Fallback string    `json:"fallback,omitempty"`
}

func (o Outcome) Accepted() bool { return o.Status == StatusAccepted }

func (o Outcome) AttemptCount() int { return len(o.Attempts) }

// Request is the per-question input of a loop run.
type Request struct {
	RequestID    string
	DatasetID    string
	Question     string
	Shape        string
	SystemPrompt string
	Target       graph.Target
}

// AttemptRecorder receives every attempt as it completes. Recording is best
// effort; errors are logged and ignored.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, rec models.AttemptRecord) error
}

// Loop drives prompt building, generation, execution and classification for
// up to RetryCount+1 attempts. A Loop holds no per-run state and may be shared.
type Loop struct {
	LLM             providers.LLMProvider
	Graph           graph.Accessor
	Model           string
	MaxTokens       int
	BaseTemperature float64
	RetryCount      int
	Pause           time.Duration
	// Sleep waits between attempts; nil means a context-aware timer.
	Sleep    func(ctx context.Context, d time.Duration)
	Recorder AttemptRecorder
	Log      *zap.Logger
}

// Temperature is the sampling temperature of attempt i: base + 0.1*i, capped
// at 1.0 and rounded to three decimals.
func Temperature(base float64, i int) float64 {
	t := math.Min(base+temperatureStep*float64(i), maxTemperature)
	return math.Round(t*1000) / 1000
}

// Run always returns an Outcome; failures of the model or the data source
// only consume attempts.
func (l *Loop) Run(ctx context.Context, req Request) Outcome {
	log := logging.OrNop(l.Log).With(
		zap.String("request_id", req.RequestID),
		zap.String("dataset", req.DatasetID),
		zap.Stringer("target", req.Target))

	var (
		attempts  []Attempt
		prev      PromptInput
		lastQuery string
		lastText  string
	)
	for i := 0; i <= l.RetryCount; i++ {
		if i > 0 {
			l.sleep(ctx)
		}
		in := prev
		in.SystemPrompt, in.Question, in.Shape = req.SystemPrompt, req.Question, req.Shape
		att := Attempt{Index: i, Temperature: Temperature(l.BaseTemperature, i)}
		att.Prompt = BuildPrompt(in)

		resp, info, err := l.LLM.Generate(ctx, providers.GenerateRequest{
			Operation:   providers.OpGenerateSPARQL,
			System:      systemMessage,
			Prompt:      att.Prompt,
			Model:       l.Model,
			MaxTokens:   l.MaxTokens,
			Temperature: att.Temperature,
		})
		if err != nil {
			att.Faulty = true
			att.LLMError = err.Error()
			att.Result = graph.Failure(err.Error())
			lastText = err.Error()
			prev = PromptInput{HasPrevious: true, Previous: lastText}
			attempts = append(attempts, att)
			l.record(ctx, log, req, att, info, providers.ClassifyError(err))
			log.Warn("llm call failed",
				zap.Int("attempt", i),
				zap.Float64("temperature", att.Temperature),
				zap.Error(err))
			continue
		}

		att.Query = StripCodeFences(resp.Text)
		att.Result = l.Graph.Execute(ctx, att.Query, req.Target)
		att.Faulty = graph.IsFaulty(att.Result)
		attempts = append(attempts, att)
		l.record(ctx, log, req, att, info, "")

		if !att.Faulty {
			log.Info("query accepted",
				zap.Int("attempt", i),
				zap.Float64("temperature", att.Temperature),
				zap.Int("values", len(att.Result.Values)))
			return Outcome{Status: StatusAccepted, Query: att.Query, Attempts: attempts}
		}
		log.Info("faulty query result",
			zap.Int("attempt", i),
			zap.Float64("temperature", att.Temperature),
			zap.String("query", util.Snippet(att.Query, 200)),
			zap.String("result", util.Snippet(att.Result.Describe(), 200)))
		lastQuery, lastText = att.Query, att.Query
		prev = PromptInput{HasPrevious: true, Previous: att.Query, PreviousError: att.Result.Error}
	}

	best := lastQuery
	if best == "" {
		best = lastText
	}
	fallback := fmt.Sprintf("No valid SPARQL query found for question %q after %d attempts; returning the last attempt.",
		req.Question, len(attempts))
	log.Warn("generation budget exhausted", zap.Int("attempts", len(attempts)))
	return Outcome{Status: StatusExhausted, Query: best, Attempts: attempts, Fallback: fallback}
}

func (l *Loop) sleep(ctx context.Context) {
	if l.Pause <= 0 {
		return
	}
	if l.Sleep != nil {
		l.Sleep(ctx, l.Pause)
		return
	}
	t := time.NewTimer(l.Pause)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (l *Loop) record(ctx context.Context, log *zap.Logger, req Request, att Attempt, info providers.ProviderInfo, errType providers.ErrorType) {
	if l.Recorder == nil {
		return
	}
	rec := models.AttemptRecord{
		RequestID:   req.RequestID,
		DatasetID:   req.DatasetID,
		Index:       att.Index,
		Temperature: att.Temperature,
		PromptHash:  util.SHA256Hex([]byte(att.Prompt)),
		Provider:    info.Name,
		Model:       info.Model,
		Query:       att.Query,
		Faulty:      att.Faulty,
		ErrorType:   string(errType),
		ErrorText:   att.Result.Error,
		CreatedAt:   time.Now().UTC(),
	}
	if err := l.Recorder.RecordAttempt(ctx, rec); err != nil {
		log.Warn("record attempt failed", zap.Int("attempt", att.Index), zap.Error(err))
	}
}
