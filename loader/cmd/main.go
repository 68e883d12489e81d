package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"docchat/loader/service"
	"docchat/model"
	"docchat/store"
	"docchat/types"

	"github.com/joho/godotenv"
)

func init() {
	mustLoadEnvVariables()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := types.ConfigFromEnv()

	pool, err := store.NewPostgresStore(ctx, cfg.PostgresDSN())
	if err != nil {
		log.Fatal("error to connect to Postgres database: ", err)
	}
	defer pool.Close()

	if err := pool.Init(ctx); err != nil {
		log.Fatal("error to create tables: ", err)
	}

	embedder := model.NewEmbedder(cfg.EmbeddingURL, cfg.EmbeddingModel)

	slog.Info("[LOADER] starting", "source_dir", cfg.SourceDir)
	service.New(cfg, pool, embedder).Run(ctx)
}

func mustLoadEnvVariables() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Fatal("Error loading .env file: ", err)
	}
}
