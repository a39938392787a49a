package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"text2sparql/internal/util"
)

type Config struct {
	APIAddr string

	LLMProviders    string
	LLMKeys         map[string]string
	LLMModel        string
	LLMBaseURL      string
	TranslateModel  string
	MaxTokens       int
	BaseTemperature float64
	RetryCount      int
	RetryPause      time.Duration

	LocalPromptPath  string
	RemotePromptPath string
	EntityPromptPath string

	LocalGraphDir     string
	RemoteEndpoint    string
	RemoteTimeoutSecs int
	EntityGraphDir    string
	EntityCacheSize   int
	GraphCacheSize    int

	CaptureBackend string
	CaptureDir     string
	PostgresURL    string
	S3             S3Config

	TemporalAddress   string
	TemporalTaskQueue string
	ExecutionMode     string

	DatasetsFile string
	Datasets     []Dataset

	LogLevel string
}

type S3Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

const (
	ModeInline   = "inline"
	ModeTemporal = "temporal"
)

// Load reads the process environment once. The returned value is treated as
// read-only by every consumer.
func Load() (Config, error) {
	env := &envReader{}
	cfg := Config{
		APIAddr:           getenv("T2S_API_ADDR", ":8000"),
		LLMProviders:      getenv("T2S_LLM_PROVIDERS", "openai"),
		LLMModel:          getenv("T2S_LLM_MODEL", "gpt-4o"),
		LLMBaseURL:        getenv("T2S_LLM_BASE_URL", ""),
		TranslateModel:    getenv("T2S_TRANSLATE_MODEL", ""),
		MaxTokens:         env.Int("T2S_MAX_TOKENS", 512),
		BaseTemperature:   env.Float("T2S_TEMPERATURE", 0.0),
		RetryCount:        env.Int("T2S_RETRY_COUNT", 3),
		RetryPause:        time.Duration(env.Int("T2S_RETRY_PAUSE_MS", 1000)) * time.Millisecond,
		LocalPromptPath:   getenv("T2S_LOCAL_PROMPT_PATH", "prompts/sparql_local.txt"),
		RemotePromptPath:  getenv("T2S_REMOTE_PROMPT_PATH", "prompts/sparql_remote.txt"),
		EntityPromptPath:  getenv("T2S_ENTITY_PROMPT_PATH", "prompts/entity_extraction.txt"),
		LocalGraphDir:     getenv("T2S_LOCAL_GRAPH_DIR", "./data/corporate"),
		RemoteEndpoint:    getenv("T2S_REMOTE_ENDPOINT", "https://dbpedia.org/sparql"),
		RemoteTimeoutSecs: env.Int("T2S_REMOTE_TIMEOUT_SECONDS", 30),
		EntityGraphDir:    getenv("T2S_ENTITY_GRAPH_DIR", "./data/dbpedia"),
		EntityCacheSize:   env.Int("T2S_ENTITY_CACHE_SIZE", 4096),
		GraphCacheSize:    env.Int("T2S_GRAPH_CACHE_SIZE", 4),
		CaptureBackend:    strings.ToLower(getenv("T2S_CAPTURE_BACKEND", "file")),
		CaptureDir:        getenv("T2S_CAPTURE_DIR", "./captured_questions"),
		PostgresURL:       getenv("T2S_POSTGRES_URL", ""),
		S3: S3Config{
			Endpoint:  getenv("T2S_S3_ENDPOINT", ""),
			Region:    getenv("T2S_S3_REGION", "us-east-1"),
			AccessKey: getenv("T2S_S3_ACCESS_KEY", ""),
			SecretKey: getenv("T2S_S3_SECRET_KEY", ""),
			Bucket:    getenv("T2S_S3_BUCKET", "text2sparql-captures"),
			UseSSL:    env.Bool("T2S_S3_USE_SSL", false),
		},
		TemporalAddress:   getenv("T2S_TEMPORAL_ADDRESS", "localhost:7233"),
		TemporalTaskQueue: getenv("T2S_TEMPORAL_TASK_QUEUE", "text2sparql"),
		ExecutionMode:     strings.ToLower(getenv("T2S_EXECUTION_MODE", ModeInline)),
		DatasetsFile:      getenv("T2S_DATASETS_FILE", ""),
		LogLevel:          getenv("T2S_LOG_LEVEL", "info"),
	}
	if env.err != nil {
		return Config{}, env.err
	}
	cfg.LLMKeys = loadKeys(os.Environ())

	if cfg.DatasetsFile != "" {
		ds, err := LoadDatasets(cfg.DatasetsFile)
		if err != nil {
			return Config{}, err
		}
		cfg.Datasets = ds
	} else {
		cfg.Datasets = DefaultDatasets(cfg)
	}
	return cfg, nil
}

// Validate reports the first missing or out-of-range value. Every error wraps
// util.ErrConfiguration.
func (c Config) Validate() error {
	switch {
	case c.RetryCount < 0:
		return configErr("T2S_RETRY_COUNT must be >= 0, got %d", c.RetryCount)
	case c.BaseTemperature < 0 || c.BaseTemperature > 1:
		return configErr("T2S_TEMPERATURE must be within [0,1], got %g", c.BaseTemperature)
	case c.MaxTokens <= 0:
		return configErr("T2S_MAX_TOKENS must be > 0, got %d", c.MaxTokens)
	case strings.TrimSpace(c.LLMModel) == "":
		return configErr("T2S_LLM_MODEL is required")
	case strings.TrimSpace(c.LLMProviders) == "":
		return configErr("T2S_LLM_PROVIDERS is required")
	case c.ExecutionMode != ModeInline && c.ExecutionMode != ModeTemporal:
		return configErr("T2S_EXECUTION_MODE must be %q or %q, got %q", ModeInline, ModeTemporal, c.ExecutionMode)
	case len(c.Datasets) == 0:
		return configErr("no datasets configured")
	}
	for _, d := range c.Datasets {
		if err := d.validate(); err != nil {
			return err
		}
	}
	return nil
}

// APIKey returns the key for a provider alias, falling back to the shared key.
func (c Config) APIKey(alias string) string {
	if alias != "" {
		if k := c.LLMKeys[strings.ToUpper(alias)]; k != "" {
			return k
		}
	}
	return c.LLMKeys[""]
}

func (c Config) Dataset(id string) (Dataset, bool) {
	id = strings.TrimSpace(id)
	for _, d := range c.Datasets {
		if d.ID == id {
			return d, true
		}
	}
	return Dataset{}, false
}

func loadKeys(environ []string) map[string]string {
	const prefix = "T2S_LLM_API_KEY"
	keys := map[string]string{}
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || v == "" || !strings.HasPrefix(k, prefix) {
			continue
		}
		alias := strings.TrimPrefix(strings.TrimPrefix(k, prefix), "_")
		keys[strings.ToUpper(alias)] = v
	}
	return keys
}

func configErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", util.ErrConfiguration, fmt.Sprintf(format, args...))
}

func getenv(k, fallback string) string {
	v := os.Getenv(k)
	if v == "" {
		return fallback
	}
	return v
}

// envReader parses typed variables and remembers the first malformed one.
type envReader struct {
	err error
}

func (e *envReader) fail(k, v, want string) {
	if e.err == nil {
		e.err = configErr("%s=%q is not %s", k, v, want)
	}
}

func (e *envReader) Int(k string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(k, v, "an integer")
		return fallback
	}
	return n
}

func (e *envReader) Float(k string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(k, v, "a number")
		return fallback
	}
	return f
}

func (e *envReader) Bool(k string, fallback bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(k)))
	switch v {
	case "":
		return fallback
	case "1", "true", "yes":
		return true
	case "0", "false", "no":
		return false
	}
	e.fail(k, v, "a boolean")
	return fallback
}
