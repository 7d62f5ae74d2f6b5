package main

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"os"

	"github.com/dgallion1/manualbot/internal/app"
	"github.com/dgallion1/manualbot/internal/config"
	"github.com/dgallion1/manualbot/internal/llm"
	"github.com/dgallion1/manualbot/internal/pipeline"
	"github.com/dgallion1/manualbot/internal/rag"
	"github.com/dgallion1/manualbot/internal/store"
	"github.com/spf13/cobra"
)

// service is the subset of the application the commands drive.
type service interface {
	EnsureSchema(ctx context.Context) error
	ProcessDocument(ctx context.Context, data []byte, documentName string) (*pipeline.Result, error)
	AnswerStream(ctx context.Context, conversation []llm.Message, query string) iter.Seq[rag.Event]
	DeleteDocument(ctx context.Context, documentName string) error
	ListDocuments(ctx context.Context) ([]store.DocumentSummary, error)
}

var (
	verbose bool

	// svc is set by tests; otherwise it is built from configuration.
	svc     service
	closeFn func()
)

var rootCmd = &cobra.Command{
	Use:          "manualctl",
	Short:        "Manage and query the product manual knowledge base",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if svc != nil {
			return nil
		}
		return setup(cmd.Context())
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		if closeFn != nil {
			closeFn()
			closeFn = nil
			svc = nil
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level to stderr")
}

func setup(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	svc = a
	closeFn = a.Close
	return nil
}
