package entities

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"text2sparql/internal/graph"
	"text2sparql/internal/logging"
	"text2sparql/internal/providers"
	"text2sparql/internal/util"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const (
	systemMessage = "You are an expert in extracting named entities from questions."
	placeholder   = "{nlq}"
	maxTokens     = 256
)

var quoted = regexp.MustCompile(`"([^"]+)"`)

// Extractor asks the model for the entity names in a question and resolves
// each name to a URI by its English rdfs:label in the entity graph.
type Extractor struct {
	llm      providers.LLMProvider
	graph    graph.Accessor
	target   graph.Target
	template string
	model    string
	cache    *lru.Cache[string, string]
	log      *zap.Logger
}

type Options struct {
	LLM       providers.LLMProvider
	Graph     graph.Accessor
	Target    graph.Target
	Template  string
	Model     string
	CacheSize int
	Log       *zap.Logger
}

func New(opts Options) (*Extractor, error) {
	if opts.LLM == nil || opts.Graph == nil {
		return nil, fmt.Errorf("%w: entity extraction needs an llm provider and a graph accessor", util.ErrConfiguration)
	}
	if !strings.Contains(opts.Template, placeholder) {
		return nil, fmt.Errorf("%w: entity prompt has no %s placeholder", util.ErrConfiguration, placeholder)
	}
	size := opts.CacheSize
	if size <= 0 {
		size = 1024
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, err
	}
	return &Extractor{
		llm:      opts.LLM,
		graph:    opts.Graph,
		target:   opts.Target,
		template: opts.Template,
		model:    opts.Model,
		cache:    cache,
		log:      logging.OrNop(opts.Log),
	}, nil
}

// LoadTemplate reads the entity prompt from path.
func LoadTemplate(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: entity prompt: %v", util.ErrConfiguration, err)
	}
	return string(b), nil
}

// Extract returns the resolved name→URI mapping. Names that do not resolve
// are left out.
func (e *Extractor) Extract(ctx context.Context, question string) (map[string]string, error) {
	names, err := e.Names(ctx, question)
	if err != nil {
		return nil, err
	}
	return e.Resolve(ctx, names), nil
}

// Names runs the extraction prompt and parses the reply.
func (e *Extractor) Names(ctx context.Context, question string) ([]string, error) {
	resp, _, err := e.llm.Generate(ctx, providers.GenerateRequest{
		Operation:   providers.OpExtractEntities,
		System:      systemMessage,
		Prompt:      strings.ReplaceAll(e.template, placeholder, question),
		Model:       e.model,
		MaxTokens:   maxTokens,
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("extract entities: %w", err)
	}
	names := ParseNames(resp.Text)
	e.log.Debug("entities extracted", zap.String("question", question), zap.Strings("names", names))
	return names, nil
}

// ParseNames takes every double-quoted name in s, or the comma separated
// fields when nothing is quoted.
func ParseNames(s string) []string {
	s = strings.TrimSpace(s)
	var out []string
	for _, m := range quoted.FindAllStringSubmatch(s, -1) {
		out = append(out, m[1])
	}
	if len(out) > 0 {
		return out
	}
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}

func (e *Extractor) Resolve(ctx context.Context, names []string) map[string]string {
	resolved := make(map[string]string, len(names))
	for _, name := range names {
		if uri, ok := e.cache.Get(name); ok {
			resolved[name] = uri
			continue
		}
		res := e.graph.Execute(ctx, LabelQuery(name), e.target)
		if res.Failed {
			e.log.Warn("entity lookup failed", zap.String("name", name), zap.String("error", res.Error))
			continue
		}
		if len(res.Values) == 0 {
			e.log.Info("entity not found", zap.String("name", name))
			continue
		}
		e.cache.Add(name, res.Values[0])
		resolved[name] = res.Values[0]
	}
	return resolved
}

func LabelQuery(name string) string {
	esc := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(name)
	return "PREFIX rdfs: <http://www.w3.org/2000/01/rdf-schema#>\n" +
		"SELECT ?entity WHERE { ?entity rdfs:label \"" + esc + "\"@en . } LIMIT 1"
}
