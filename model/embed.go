package model

import (
	"context"
	"log/slog"
)

// Embedder turns a text into a vector for the chunk index.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// NewEmbedder returns the Ollama embedder used by the API and the loader.
func NewEmbedder(apiURL, model string, logger *slog.Logger) *OllamaEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("[EMBEDDER] uses local Ollama for embeddings", "model", model, "url", apiURL)
	return NewOllamaEmbedder(apiURL, model)
}
