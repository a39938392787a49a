package config

import (
	"fmt"
	"net/url"
	"os"
	"path"
	"strings"

	"text2sparql/internal/graph"
	"text2sparql/internal/util"

	"gopkg.in/yaml.v3"
)

const (
	DBpediaDatasetID   = "https://text2sparql.aksw.org/2025/dbpedia/"
	CorporateDatasetID = "https://text2sparql.aksw.org/2025/corporate/"
)

// Dataset binds a challenge dataset identifier to the graph it is answered
// from and the system prompt used when generating queries for it.
type Dataset struct {
	ID         string     `yaml:"id" json:"id"`
	Kind       graph.Kind `yaml:"kind" json:"kind"`
	Endpoint   string     `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	GraphDir   string     `yaml:"graph_dir,omitempty" json:"graph_dir,omitempty"`
	PromptPath string     `yaml:"prompt_path,omitempty" json:"prompt_path,omitempty"`
}

// Name is the last path segment of the dataset id, e.g. "dbpedia".
func (d Dataset) Name() string {
	u, err := url.Parse(d.ID)
	if err != nil || u.Path == "" {
		return strings.Trim(d.ID, "/")
	}
	return path.Base(strings.TrimRight(u.Path, "/"))
}

func (d Dataset) Target() graph.Target {
	return graph.Target{Kind: d.Kind, Endpoint: d.Endpoint, Dir: d.GraphDir}
}

func (d Dataset) validate() error {
	switch d.Kind {
	case graph.KindRemote:
		if strings.TrimSpace(d.Endpoint) == "" {
			return configErr("dataset %s: remote endpoint is required", d.ID)
		}
	case graph.KindLocal:
		if strings.TrimSpace(d.GraphDir) == "" {
			return configErr("dataset %s: local graph directory is required", d.ID)
		}
	default:
		return configErr("dataset %s: unknown kind %q", d.ID, d.Kind)
	}
	if strings.TrimSpace(d.PromptPath) == "" {
		return configErr("dataset %s: prompt path is required", d.ID)
	}
	return nil
}

func DefaultDatasets(cfg Config) []Dataset {
	return []Dataset{
		{ID: DBpediaDatasetID, Kind: graph.KindRemote, Endpoint: cfg.RemoteEndpoint, PromptPath: cfg.RemotePromptPath},
		{ID: CorporateDatasetID, Kind: graph.KindLocal, GraphDir: cfg.LocalGraphDir, PromptPath: cfg.LocalPromptPath},
	}
}

// LoadDatasets reads a YAML registry of the form
//
//	datasets:
//	  - id: https://text2sparql.aksw.org/2025/corporate/
//	    kind: local
//	    graph_dir: ./data/corporate
//	    prompt_path: prompts/sparql_local.txt
func LoadDatasets(file string) ([]Dataset, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("%w: read datasets file: %v", util.ErrConfiguration, err)
	}
	var doc struct {
		Datasets []Dataset `yaml:"datasets"`
	}
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("%w: parse datasets file %s: %v", util.ErrConfiguration, file, err)
	}
	for i := range doc.Datasets {
		doc.Datasets[i].ID = strings.TrimSpace(doc.Datasets[i].ID)
		doc.Datasets[i].Kind = graph.Kind(strings.ToLower(string(doc.Datasets[i].Kind)))
	}
	return doc.Datasets, nil
}
