package pipeline

import (
	"context"
	"time"

	"text2sparql/internal/capture"
	"text2sparql/internal/config"
	"text2sparql/internal/entities"
	"text2sparql/internal/generation"
	"text2sparql/internal/graph"
	"text2sparql/internal/logging"
	"text2sparql/internal/providers"
	"text2sparql/internal/storage"
	"text2sparql/internal/translate"

	"go.uber.org/zap"
)

// Runtime is everything Build wires from configuration.
type Runtime struct {
	Pipeline *Pipeline
	LLM      *providers.Manager
	Graph    *graph.Executor
	Service  *generation.Service
	DB       *storage.DB
}

func (r *Runtime) Close() {
	if r != nil {
		r.DB.Close()
	}
}

// Build wires providers, graph access, audit storage, capture and the
// generation service from cfg.
func Build(ctx context.Context, cfg config.Config, log *zap.Logger) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log = logging.OrNop(log)
	llm, err := providers.NewManager(cfg, log.Named("providers"))
	if err != nil {
		return nil, err
	}
	exec, err := graph.NewExecutor(time.Duration(cfg.RemoteTimeoutSecs)*time.Second, cfg.GraphCacheSize, log.Named("graph"))
	if err != nil {
		return nil, err
	}

	rt := &Runtime{LLM: llm, Graph: exec}
	var recorder generation.AttemptRecorder
	if cfg.PostgresURL != "" {
		db, err := storage.NewDB(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, err
		}
		if err := db.EnsureSchema(ctx); err != nil {
			db.Close()
			return nil, err
		}
		rt.DB = db
		recorder = storage.NewAttemptAuditRepo(db)
	}

	svc, err := generation.NewService(cfg, llm, exec, recorder, log)
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Service = svc

	capt, err := capture.New(cfg, rt.DB, log.Named("capture"))
	if err != nil {
		rt.Close()
		return nil, err
	}

	var extractor EntityExtractor
	if hasRemote(cfg) {
		tmpl, err := entities.LoadTemplate(cfg.EntityPromptPath)
		if err != nil {
			rt.Close()
			return nil, err
		}
		ex, err := entities.New(entities.Options{
			LLM:       llm,
			Graph:     exec,
			Target:    graph.Target{Kind: graph.KindLocal, Dir: cfg.EntityGraphDir},
			Template:  tmpl,
			Model:     cfg.LLMModel,
			CacheSize: cfg.EntityCacheSize,
			Log:       log.Named("entities"),
		})
		if err != nil {
			rt.Close()
			return nil, err
		}
		extractor = ex
	}

	translateModel := cfg.TranslateModel
	if translateModel == "" {
		translateModel = cfg.LLMModel
	}
	p, err := New(cfg, Deps{
		Capturer:   capt,
		Translator: translate.New(llm, translateModel, log.Named("translate")),
		Entities:   extractor,
		Generator:  svc,
	}, log.Named("pipeline"))
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.Pipeline = p
	return rt, nil
}

func hasRemote(cfg config.Config) bool {
	for _, d := range cfg.Datasets {
		if d.Kind == graph.KindRemote {
			return true
		}
	}
	return false
}
