package graph

import "strings"

// Kind selects how a dataset's graph is reached.
type Kind string

const (
	KindLocal  Kind = "local"
	KindRemote Kind = "remote"
)

// Target is a resolved data source: a remote SPARQL endpoint or a directory
// of RDF files.
type Target struct {
	Kind     Kind   `json:"kind"`
	Endpoint string `json:"endpoint,omitempty"`
	Dir      string `json:"dir,omitempty"`
}

func (t Target) String() string {
	if t.Kind == KindRemote {
		return "remote:" + t.Endpoint
	}
	return "local:" + t.Dir
}

// QueryResult is either a list of result values or a failure carrying the
// diagnostic text. Build it with Success or Failure.
type QueryResult struct {
	Values []string `json:"values,omitempty"`
	Failed bool     `json:"failed,omitempty"`
	Error  string   `json:"error,omitempty"`
}

func Success(values []string) QueryResult {
	if values == nil {
		values = []string{}
	}
	return QueryResult{Values: values}
}

func Failure(msg string) QueryResult {
	return QueryResult{Failed: true, Error: msg}
}

// IsFaulty reports whether a result is unusable as an answer: a failure, an
// empty list, or a list whose values are all "0".
func IsFaulty(r QueryResult) bool {
	if r.Failed {
		return true
	}
	if len(r.Values) == 0 {
		return true
	}
	for _, v := range r.Values {
		if strings.TrimSpace(v) != "0" {
			return false
		}
	}
	return true
}

// Describe renders a result for prompts and logs.
func (r QueryResult) Describe() string {
	if r.Failed {
		return "error: " + r.Error
	}
	if len(r.Values) == 0 {
		return "no results"
	}
	return strings.Join(r.Values, ", ")
}
