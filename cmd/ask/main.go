package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"text2sparql/internal/config"
	"text2sparql/internal/logging"
	"text2sparql/internal/pipeline"
	"text2sparql/internal/util"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	var envFile, dataset, out string
	root := &cobra.Command{
		Use:           "text2sparql-ask [question]",
		Short:         "Answer one question in process and print the result as JSON",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = godotenv.Load(envFile)
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			cfg.ExecutionMode = config.ModeInline
			log, err := logging.New(cfg.LogLevel)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			rt, err := pipeline.Build(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer rt.Close()

			ans, err := rt.Pipeline.Answer(cmd.Context(), strings.Join(args, " "), dataset)
			if err != nil {
				return err
			}
			b, err := json.MarshalIndent(ans, "", "  ")
			if err != nil {
				return err
			}
			if out != "" {
				return util.WriteTextAtomic(out, string(b)+"\n")
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))
			return err
		},
	}
	root.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	root.Flags().StringVar(&dataset, "dataset", config.CorporateDatasetID, "dataset id the question is asked against")
	root.Flags().StringVarP(&out, "out", "o", "", "write the answer to this file instead of stdout")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
