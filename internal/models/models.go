package models

import "time"

const (
	StatusAccepted  = "accepted"
	StatusExhausted = "exhausted"
)

// Answer is what the HTTP surface returns for one question.
type Answer struct {
	RequestID string `json:"request_id,omitempty"`
	Dataset   string `json:"dataset"`
	Question  string `json:"question"`
	Query     string `json:"query"`
	Status    string `json:"status"`
	Attempts  int    `json:"attempts"`
	Fallback  string `json:"fallback,omitempty"`
}

// AttemptRecord is the audit row written for every generation attempt.
type AttemptRecord struct {
	RequestID   string    `json:"request_id"`
	DatasetID   string    `json:"dataset_id"`
	Index       int       `json:"index"`
	Temperature float64   `json:"temperature"`
	PromptHash  string    `json:"prompt_hash"`
	Provider    string    `json:"provider,omitempty"`
	Model       string    `json:"model,omitempty"`
	Query       string    `json:"query,omitempty"`
	Faulty      bool      `json:"faulty"`
	ErrorType   string    `json:"error_type,omitempty"`
	ErrorText   string    `json:"error_text,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// CapturedQuestion is one entry of a challenge-format question file.
type CapturedQuestion struct {
	ID       string            `json:"id"`
	Question []LocalizedString `json:"question"`
	Query    CapturedQuery     `json:"query"`
	Answers  []map[string]any  `json:"answers"`
	Dataset  string            `json:"dataset,omitempty"`
	Captured *time.Time        `json:"captured_at,omitempty"`
}

type LocalizedString struct {
	Language string `json:"language"`
	String   string `json:"string"`
}

type CapturedQuery struct {
	SPARQL string `json:"sparql"`
}

type CapturedFile struct {
	Questions []CapturedQuestion `json:"questions"`
}
