// Package patternindex implements the Pattern Index (C8): a searchable
// catalogue of reusable solved-problem patterns, scored by keyword
// overlap, embedding similarity, and situational context.
//
// Embedding and vector-storage backends are pluggable through the
// EmbeddingDriver and VectorStoreDriver interfaces below, grounded in
// the control plane's provider-driver registries but trimmed of their
// multi-tenant "kitchen" scoping — this index has a single, global
// pattern namespace.
package patternindex

import "context"

// EmbeddingDriver turns text into vectors. Kind identifies the backend
// for logging/health reporting; Dimensions and MaxBatchSize describe its
// capacity so callers can chunk requests correctly.
type EmbeddingDriver interface {
	Kind() string
	Dimensions() int
	MaxBatchSize() int
	Embed(ctx context.Context, texts []string) ([][]float64, error)
	HealthCheck(ctx context.Context) error
}

// VectorDoc is one embedded pattern, as stored by a VectorStoreDriver.
type VectorDoc struct {
	ID       string
	Content  string
	Vector   []float64
	Metadata map[string]string
}

// SearchResult pairs a stored document with its similarity score.
type SearchResult struct {
	Doc   VectorDoc
	Score float64
}

// VectorStoreDriver persists embedded patterns and answers nearest-neighbor
// queries over them.
type VectorStoreDriver interface {
	Kind() string
	Upsert(ctx context.Context, docs []VectorDoc) error
	Search(ctx context.Context, vector []float64, topK int) ([]SearchResult, error)
	Delete(ctx context.Context, ids []string) error
	Count(ctx context.Context) (int, error)
	HealthCheck(ctx context.Context) error
}
