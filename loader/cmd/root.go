package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"scolaire/config"
	"scolaire/loader/internal"
	"scolaire/loader/service"
	"scolaire/model"
	"scolaire/store"
)

const doclingTimeout = 10 * time.Minute

type chunkStore interface {
	service.DBStorer
	Close() error
}

type env struct {
	cfg       *config.Config
	logger    *slog.Logger
	openStore func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (chunkStore, error)
	embedder  func(cfg *config.Config, logger *slog.Logger) model.Embedder
}

func defaultEnv() *env {
	return &env{
		openStore: openPostgres,
		embedder: func(cfg *config.Config, logger *slog.Logger) model.Embedder {
			return model.NewEmbedder(cfg.Ollama.EmbeddingURL, cfg.Ollama.EmbeddingModel, logger)
		},
	}
}

func openPostgres(ctx context.Context, cfg *config.Config, logger *slog.Logger) (chunkStore, error) {
	pool, err := store.NewPostgresStore(ctx, cfg.Postgres.ConnString(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres database: %w", err)
	}
	if err := pool.Init(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return pool, nil
}

func newRootCommand(e *env) *cobra.Command {
	var (
		verbose bool
		envFile string
	)

	rootCmd := &cobra.Command{
		Use:           "loader",
		Short:         "Load the course corpus and personal PDFs into the vector store",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			e.logger = newLogger(verbose)
			if e.cfg == nil {
				if envFile != "" {
					e.cfg = config.Load(envFile)
				} else {
					e.cfg = config.Load()
				}
			}
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", "", "Env file to load instead of .env")

	rootCmd.AddCommand(newIngestCommand(e), newWatchCommand(e))
	return rootCmd
}

func newIngestCommand(e *env) *cobra.Command {
	var (
		corpusDir string
		replace   bool
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Embed every corpus record into the cours_college collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if corpusDir == "" {
				corpusDir = e.cfg.CorpusDir
			}

			st, err := e.openStore(ctx, e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer st.Close()

			svc := service.New(st, e.embedder(e.cfg, e.logger), e.logger)
			stats, err := svc.Ingest(ctx, corpusDir, replace)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d records, %d saved, %d failed, %d replaced\n",
				stats.Records, stats.Saved, stats.Failed, stats.Replaced)
			return nil
		},
	}
	cmd.Flags().StringVar(&corpusDir, "corpus", "", "Processed corpus directory (CORPUS_DIR when unset)")
	cmd.Flags().BoolVar(&replace, "replace", false, "Delete the chunks of each ingested source first")
	return cmd
}

func newWatchCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the upload folder and load new PDFs into the mes_cours collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			st, err := e.openStore(ctx, e.cfg, e.logger)
			if err != nil {
				return err
			}
			defer st.Close()

			loaderCfg := e.cfg.Loader
			converter := internal.NewDoclingClient(loaderCfg.DoclingURL, doclingTimeout, e.logger)
			loader := internal.NewPDFLoader(loaderCfg, converter, e.logger)
			if err := loader.CreateDirectories(); err != nil {
				return fmt.Errorf("failed to create loader directories: %w", err)
			}
			watcher := internal.NewWatcher(loaderCfg.SourceDir, loaderCfg.MonitoringTime, e.logger)

			service.New(st, e.embedder(e.cfg, e.logger), e.logger).Watch(ctx, watcher, loader)
			return nil
		},
	}
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}
