package model

import (
	"context"
	"log/slog"
)

// EmbedderInterface turns text into a vector for the chunk index.
type EmbedderInterface interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// NewEmbedder returns the Ollama embedder used by the loader and the search endpoint.
func NewEmbedder(url, model string) EmbedderInterface {
	slog.Info("[EMBEDDER] uses local Ollama for embeddings", "model", model, "url", url)
	return NewOllamaEmbedder(url, model)
}
