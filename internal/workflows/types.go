package workflows

import "text2sparql/internal/capture"

type QuestionInput struct {
	RequestID string `json:"request_id"`
	Question  string `json:"question"`
	DatasetID string `json:"dataset_id"`
	Remote    bool   `json:"remote"`
}

type QuestionProgress struct {
	RequestID   string            `json:"request_id"`
	DatasetID   string            `json:"dataset_id"`
	CurrentStep string            `json:"current_step"`
	Status      string            `json:"status"`
	Steps       map[string]string `json:"steps"`
	Capture     capture.Ref       `json:"capture"`
	Question    string            `json:"question,omitempty"`
	Shape       string            `json:"shape,omitempty"`
	Attempts    int               `json:"attempts"`
}
