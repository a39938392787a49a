package activities

import "text2sparql/internal/capture"

type CaptureQuestionInput struct {
	Question  string `json:"question"`
	DatasetID string `json:"dataset_id"`
}

type CaptureQuestionOutput struct {
	Ref capture.Ref `json:"ref"`
}

type TranslateInput struct {
	Question string `json:"question"`
}

type TranslateOutput struct {
	Question string `json:"question"`
}

type ExtractEntitiesInput struct {
	Question string `json:"question"`
}

type ExtractEntitiesOutput struct {
	Entities map[string]string `json:"entities,omitempty"`
}

type GenerateShapeInput struct {
	DatasetID string            `json:"dataset_id"`
	Entities  map[string]string `json:"entities,omitempty"`
}

type GenerateShapeOutput struct {
	Shape string `json:"shape"`
}

type GenerateQueryInput struct {
	RequestID string `json:"request_id"`
	Question  string `json:"question"`
	Shape     string `json:"shape"`
	DatasetID string `json:"dataset_id"`
}

type GenerateQueryOutput struct {
	Status   string `json:"status"`
	Query    string `json:"query"`
	Attempts int    `json:"attempts"`
	Fallback string `json:"fallback,omitempty"`
}

type CompleteCaptureInput struct {
	Ref   capture.Ref `json:"ref"`
	Query string      `json:"query"`
}
