package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"scolaire/app/agent"
	"scolaire/app/api"
	"scolaire/app/middleware"
	"scolaire/config"
	"scolaire/model"
	"scolaire/store"
)

const (
	bodyLimit       = 50 * 1024 * 1024
	shutdownTimeout = 10 * time.Second
	quizTemperature = 0.7
)

// Store is what the HTTP layer needs from the chunk store directly.
type Store interface {
	api.DocumentRemover
	api.ChunkCounter
}

type Deps struct {
	Answerer api.Answerer
	Quizzes  api.QuizGenerator
	Store    Store
}

// NewApp wires the routes on a fresh fiber app.
func NewApp(cfg *config.Config, deps Deps, logger *slog.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: api.ErrorHandler,
		BodyLimit:    bodyLimit,
	})
	app.Use(recover.New())
	app.Use(cors.New())
	app.Use(middleware.RequestLogger(logger))

	var (
		checkHandler   = api.NewCheckHandler(deps.Store)
		requestHandler = api.NewRequestHandler(deps.Answerer, logger)
		quizHandler    = api.NewQuizHandler(deps.Quizzes)
		fileHandler    = api.NewFileHandler(cfg.Loader, deps.Store, logger)
		check          = app.Group("/check")
		apiv1          = app.Group("/api/v1")
	)

	check.Get("/healthy", checkHandler.HandleHealthy)
	check.Get("/stats", checkHandler.HandleStats)

	apiv1.Post("/chat", requestHandler.HandleChat)
	apiv1.Post("/detect", requestHandler.HandleDetect)
	apiv1.Get("/matieres", requestHandler.HandleMatieres)
	apiv1.Get("/niveaux", requestHandler.HandleNiveaux)
	apiv1.Post("/quiz", quizHandler.HandleQuiz)
	apiv1.Post("/quiz/validate", quizHandler.HandleValidate)
	apiv1.Post("/pdf", fileHandler.HandleUpload)
	apiv1.Get("/pdf", fileHandler.HandleList)
	apiv1.Delete("/pdf/:name", fileHandler.HandleDelete)

	if info, err := os.Stat(cfg.FrontendDir); err == nil && info.IsDir() {
		app.Use(middleware.PlugStatic("/api", "/check"))
		app.Static("/", cfg.FrontendDir, fiber.Static{Index: "index.html"})
		logger.Info("[SERVER] serving frontend", "dir", cfg.FrontendDir)
	}

	return app
}

type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	store  *store.PostgresStore
	app    *fiber.App
}

// NewServer connects to Postgres, prepares the tables and builds the app.
func NewServer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := store.NewPostgresStore(ctx, cfg.Postgres.ConnString(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres database: %w", err)
	}
	if err := pool.Init(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	var (
		embedder = model.NewEmbedder(cfg.Ollama.EmbeddingURL, cfg.Ollama.EmbeddingModel, logger)
		llm      = model.NewOllamaLLM(cfg.Ollama.LLMURL, cfg.Ollama.LLMModel, cfg.Ollama.Timeout, logger)
		ragCfg   = agent.Config{
			TopK:                cfg.RAG.TopK,
			SimilarityThreshold: cfg.RAG.SimilarityThreshold,
			MaxContextTokens:    cfg.RAG.MaxContextTokens,
		}
	)

	deps := Deps{
		Answerer: agent.NewService(pool, embedder, llm, ragCfg, agent.WithLogger(logger)),
		Quizzes:  agent.NewQuizService(pool, llm.WithTemperature(quizTemperature), logger),
		Store:    pool,
	}

	return &Server{
		cfg:    cfg,
		logger: logger,
		store:  pool,
		app:    NewApp(cfg, deps, logger),
	}, nil
}

// Run blocks until the listener stops.
func (s *Server) Run() error {
	s.logger.Info("[SERVER] listening", "addr", s.cfg.ServerAddr)
	if err := s.app.Listen(s.cfg.ServerAddr); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Stop() {
	if err := s.app.ShutdownWithTimeout(shutdownTimeout); err != nil {
		s.logger.Error("[SERVER] shutdown failed", "error", err)
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error("[SERVER] failed to close store", "error", err)
	}
	s.logger.Info("[SERVER] stopped")
}

var _ Store = (*store.PostgresStore)(nil)
