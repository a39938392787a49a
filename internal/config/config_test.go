package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"text2sparql/internal/graph"
	"text2sparql/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("T2S_RETRY_COUNT", "2")
	t.Setenv("T2S_RETRY_PAUSE_MS", "250")
	t.Setenv("T2S_EXECUTION_MODE", "Temporal")
	t.Setenv("T2S_LLM_API_KEY", "shared")
	t.Setenv("T2S_LLM_API_KEY_DEEPSEEK", "ds-key")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.RetryCount)
	assert.Equal(t, 250*time.Millisecond, cfg.RetryPause)
	assert.Equal(t, ModeTemporal, cfg.ExecutionMode)
	assert.Equal(t, "ds-key", cfg.APIKey("deepseek"))
	assert.Equal(t, "shared", cfg.APIKey("openai"))
	require.Len(t, cfg.Datasets, 2)

	d, ok := cfg.Dataset(" " + DBpediaDatasetID)
	require.True(t, ok)
	assert.Equal(t, graph.KindRemote, d.Kind)
	assert.Equal(t, "dbpedia", d.Name())
	assert.Equal(t, graph.Target{Kind: graph.KindRemote, Endpoint: "https://dbpedia.org/sparql"}, d.Target())
	require.NoError(t, cfg.Validate())
}

func TestLoadRejectsMalformedNumbers(t *testing.T) {
	cases := map[string]string{
		"T2S_RETRY_COUNT":    "abc",
		"T2S_TEMPERATURE":    "warm",
		"T2S_RETRY_PAUSE_MS": "1s",
		"T2S_S3_USE_SSL":     "maybe",
	}
	for k, v := range cases {
		t.Run(k, func(t *testing.T) {
			t.Setenv(k, v)
			_, err := Load()
			require.ErrorIs(t, err, util.ErrConfiguration)
			assert.Contains(t, err.Error(), k)
		})
	}
}

func TestLoadDatasetsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "datasets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
datasets:
  - id: https://example.org/2025/movies/
    kind: LOCAL
    graph_dir: ./data/movies
    prompt_path: prompts/movies.txt
  - id: " https://example.org/2025/wikidata/ "
    kind: remote
    endpoint: https://query.wikidata.org/sparql
    prompt_path: prompts/wikidata.txt
`), 0o644))
	t.Setenv("T2S_DATASETS_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)
	require.Len(t, cfg.Datasets, 2)
	assert.Equal(t, graph.KindLocal, cfg.Datasets[0].Kind)
	assert.Equal(t, "movies", cfg.Datasets[0].Name())
	assert.Equal(t, "https://example.org/2025/wikidata/", cfg.Datasets[1].ID)
	require.NoError(t, cfg.Validate())

	t.Setenv("T2S_DATASETS_FILE", filepath.Join(t.TempDir(), "missing.yaml"))
	_, err = Load()
	assert.ErrorIs(t, err, util.ErrConfiguration)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			LLMProviders:  "mock",
			LLMModel:      "gpt-4o",
			MaxTokens:     512,
			ExecutionMode: ModeInline,
			Datasets: []Dataset{
				{ID: CorporateDatasetID, Kind: graph.KindLocal, GraphDir: "./data", PromptPath: "p.txt"},
			},
		}
	}
	require.NoError(t, valid().Validate())

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative retries", func(c *Config) { c.RetryCount = -1 }},
		{"temperature above one", func(c *Config) { c.BaseTemperature = 1.5 }},
		{"zero max tokens", func(c *Config) { c.MaxTokens = 0 }},
		{"no model", func(c *Config) { c.LLMModel = " " }},
		{"no providers", func(c *Config) { c.LLMProviders = "" }},
		{"bad mode", func(c *Config) { c.ExecutionMode = "batch" }},
		{"no datasets", func(c *Config) { c.Datasets = nil }},
		{"local without dir", func(c *Config) { c.Datasets[0].GraphDir = "" }},
		{"remote without endpoint", func(c *Config) { c.Datasets[0].Kind = graph.KindRemote }},
		{"unknown kind", func(c *Config) { c.Datasets[0].Kind = "ftp" }},
		{"no prompt", func(c *Config) { c.Datasets[0].PromptPath = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), util.ErrConfiguration)
		})
	}
}

func TestLoadKeys(t *testing.T) {
	keys := loadKeys([]string{
		"T2S_LLM_API_KEY=shared",
		"T2S_LLM_API_KEY_GROQ=g",
		"T2S_LLM_API_KEY_EMPTY=",
		"OTHER=x",
	})
	assert.Equal(t, map[string]string{"": "shared", "GROQ": "g"}, keys)
}
