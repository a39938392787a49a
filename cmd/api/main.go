package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"text2sparql/internal/api"
	"text2sparql/internal/config"
	"text2sparql/internal/logging"
	"text2sparql/internal/pipeline"
	"text2sparql/internal/workflows"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	tclient "go.temporal.io/sdk/client"
	"go.uber.org/zap"
)

func main() {
	var envFile, addr string
	root := &cobra.Command{
		Use:           "text2sparql-api",
		Short:         "Serve the text-to-SPARQL HTTP API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_ = godotenv.Load(envFile)
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.APIAddr = addr
			}
			log, err := logging.New(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()
			return serve(cmd.Context(), cfg, log)
		},
	}
	root.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	root.Flags().StringVar(&addr, "addr", "", "listen address (overrides T2S_API_ADDR)")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg config.Config, log *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	var srv *api.Server
	switch cfg.ExecutionMode {
	case config.ModeTemporal:
		tc, err := tclient.Dial(tclient.Options{HostPort: cfg.TemporalAddress})
		if err != nil {
			return fmt.Errorf("dial temporal: %w", err)
		}
		defer tc.Close()
		answerer := workflows.NewAnswerer(tc, cfg)
		srv = api.NewServer(cfg, answerer, answerer, log.Named("api"))
	default:
		rt, err := pipeline.Build(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer rt.Close()
		srv = api.NewServer(cfg, rt.Pipeline, nil, log.Named("api"))
	}

	hs := &http.Server{
		Addr:              cfg.APIAddr,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- hs.ListenAndServe() }()
	log.Info("text2sparql api listening",
		zap.String("addr", cfg.APIAddr),
		zap.String("mode", cfg.ExecutionMode),
		zap.String("llm_providers", cfg.LLMProviders),
		zap.Int("datasets", len(cfg.Datasets)))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return hs.Shutdown(shutdownCtx)
}
