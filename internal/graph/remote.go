package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	defaultUserAgent = "text2sparql/1.0 (SPARQL query bot)"
	sparqlJSON       = "application/sparql-results+json"
	maxRemoteBody    = 32 << 20
)

// RemoteClient runs queries against a SPARQL 1.1 protocol endpoint over GET.
type RemoteClient struct {
	client    *http.Client
	userAgent string
}

func NewRemoteClient(timeout time.Duration) *RemoteClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RemoteClient{
		client:    &http.Client{Timeout: timeout},
		userAgent: defaultUserAgent,
	}
}

type sparqlResults struct {
	Head struct {
		Vars []string `json:"vars"`
	} `json:"head"`
	Results struct {
		Bindings []map[string]struct {
			Type  string  `json:"type"`
			Value *string `json:"value"`
		} `json:"bindings"`
	} `json:"results"`
	Boolean *bool `json:"boolean"`
}

// Execute never returns an error; transport, status and decode problems come
// back as a Failure.
func (c *RemoteClient) Execute(ctx context.Context, query, endpoint string) QueryResult {
	u, err := url.Parse(endpoint)
	if err != nil {
		return Failure(fmt.Sprintf("invalid endpoint %q: %v", endpoint, err))
	}
	params := u.Query()
	params.Set("query", query)
	params.Set("format", "json")
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Failure(fmt.Sprintf("build sparql request: %v", err))
	}
	req.Header.Set("Accept", sparqlJSON)
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return Failure(fmt.Sprintf("sparql request failed: %v", err))
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteBody))
	if err != nil {
		return Failure(fmt.Sprintf("read sparql response: %v", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Failure(fmt.Sprintf("sparql endpoint error %d: %s", resp.StatusCode, truncate(string(body), 512)))
	}

	var parsed sparqlResults
	if err := json.Unmarshal(body, &parsed); err != nil {
		return Failure(fmt.Sprintf("decode sparql response: %v", err))
	}
	if parsed.Boolean != nil && len(parsed.Head.Vars) == 0 {
		return Success([]string{fmt.Sprint(*parsed.Boolean)})
	}
	return Success(flatten(parsed))
}

// flatten walks variables outermost and bindings innermost, keeping only
// cells that carry a value.
func flatten(r sparqlResults) []string {
	out := make([]string, 0, len(r.Head.Vars)*len(r.Results.Bindings))
	for _, v := range r.Head.Vars {
		for _, b := range r.Results.Bindings {
			cell, ok := b[v]
			if !ok || cell.Value == nil {
				continue
			}
			out = append(out, *cell.Value)
		}
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
