// Package embedder provides embedding model clients. The pipeline assumes
// the model is deterministic for identical input text, which the content-hash
// cache relies on.
package embedder

import "context"

// Client is the embedding model interface used by indexing and retrieval.
// Both must share one client so query vectors live in the same space as
// indexed vectors.
type Client interface {
	// Embed generates one fixed-dimension vector per input text.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimensionality.
	Dimensions() int

	// Close cleans up any resources.
	Close() error
}

// Config holds common embedder settings.
type Config struct {
	Model      string
	APIKey     string
	BaseURL    string
	Dimensions int
}
