package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"docchat/app/agent"
	"docchat/app/api"
	"docchat/app/middleware"
	"docchat/model"
	"docchat/store"
	"docchat/types"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// Deps are the collaborators behind the HTTP routes.
type Deps struct {
	Config    types.Config
	Store     store.DBStorer
	Runner    api.Runner
	Generator model.Generator
	Embedder  model.EmbedderInterface
	Logger    *slog.Logger
}

// NewApp registers all routes on a new fiber app.
func NewApp(d Deps) *fiber.App {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		app             = fiber.New(fiber.Config{ErrorHandler: api.ErrorHandler, BodyLimit: 64 << 20})
		checkHandler    = api.NewCheckHandler(d.Config)
		chatHandler     = api.NewChatHandler(d.Store, d.Runner, d.Generator, d.Config.SegmentCallTimeout)
		searchHandler   = api.NewSearchHandler(d.Store, d.Embedder)
		documentHandler = api.NewDocumentHandler(d.Config.SourceDir)
	)

	app.Use(recover.New())
	app.Use(middleware.RequestID(), middleware.AccessLog(logger), middleware.IgnoreWellKnown())

	check := app.Group("/check")
	check.Get("/healthy", checkHandler.HandleHealthy)
	check.Get("/config", checkHandler.HandleConfig)

	apiv1 := app.Group("/api/v1")
	apiv1.Post("/documents", documentHandler.HandleUpload)
	apiv1.Post("/documents/:id/chat", chatHandler.HandleChat)
	apiv1.Post("/search", searchHandler.HandleSearch)

	return app
}

type Server struct {
	cfg    types.Config
	logger *slog.Logger
}

func NewServer(cfg types.Config) *Server {
	return &Server{
		cfg:    cfg,
		logger: slog.Default(),
	}
}

// Run serves until ctx is cancelled or the listener fails.
func (s *Server) Run(ctx context.Context) error {
	pool, err := store.NewPostgresStore(ctx, s.cfg.PostgresDSN())
	if err != nil {
		return fmt.Errorf("error to connect to Postgres database: %w", err)
	}
	defer pool.Close()

	if err := pool.Init(ctx); err != nil {
		return fmt.Errorf("error to create tables: %w", err)
	}

	gen, err := model.NewGenerator(s.cfg.LLM, s.logger)
	if err != nil {
		return fmt.Errorf("error to create llm backend: %w", err)
	}

	opts := agent.Options{
		MaxSegmentSize:      s.cfg.MaxSegmentSize,
		CallTimeout:         s.cfg.SegmentCallTimeout,
		DirectSingleSegment: s.cfg.DirectSingleSegment,
	}
	if counter, err := agent.NewTiktokenCounter(""); err != nil {
		s.logger.Warn("token counting disabled", "error", err)
	} else {
		opts.Tokens = counter
	}

	app := NewApp(Deps{
		Config:    s.cfg,
		Store:     pool,
		Runner:    agent.NewPipeline(gen, s.logger, opts),
		Generator: gen,
		Embedder:  model.NewEmbedder(s.cfg.EmbeddingURL, s.cfg.EmbeddingModel),
		Logger:    s.logger,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("server listening", "addr", s.cfg.ServerAddr, "llm_backend", s.cfg.LLM.Backend)
		return app.Listen(s.cfg.ServerAddr)
	})
	g.Go(func() error {
		<-gctx.Done()
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	err = g.Wait()
	s.logger.Info("server stopped")
	return err
}
