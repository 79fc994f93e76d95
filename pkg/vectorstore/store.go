// Package vectorstore persists fixed-dimension embeddings keyed by
// (node_id, chunk_id) and serves top-K similarity queries. Each record
// carries the content hash of the text that produced it, which doubles as
// the embedding cache key: unchanged text is never re-embedded.
package vectorstore

import "context"

// Record is one stored embedding.
type Record struct {
	NodeID      string    `json:"node_id"`
	ChunkID     string    `json:"chunk_id"`
	Vector      []float32 `json:"vector"`
	ContentHash string    `json:"content_hash"`
	// Text is the snippet that produced the vector, kept for evidence
	// assembly.
	Text string `json:"text,omitempty"`
}

// Hit is one similarity-query result, ordered by descending score.
type Hit struct {
	NodeID  string  `json:"node_id"`
	ChunkID string  `json:"chunk_id"`
	Score   float64 `json:"score"`
	Text    string  `json:"text,omitempty"`
}

// Store is the protocol the pipeline requires from a vector index: upsert by
// key, content-hash lookup for cache hits, and top-K cosine search.
type Store interface {
	// Upsert stores or replaces records by (node_id, chunk_id).
	Upsert(ctx context.Context, records []*Record) error

	// ContentHash returns the stored hash for a key, or "" when the key
	// has no embedding yet.
	ContentHash(ctx context.Context, nodeID, chunkID string) (string, error)

	// PruneChunks deletes a node's records with numeric chunk IDs at or
	// past keep. A node whose text shrinks to fewer chunks must not keep
	// serving the surplus ones.
	PruneChunks(ctx context.Context, nodeID string, keep int) error

	// Search returns the top-K records by cosine similarity to the query
	// vector, descending, ties broken by key for determinism.
	Search(ctx context.Context, vector []float32, k int) ([]Hit, error)

	// Close releases the underlying storage.
	Close() error
}
