// Package store provides the vector index (HNSW) and the keyword
// index (Bleve) that back retrieval.
package store

import (
	"context"
	"fmt"
)

// Document represents a chunk to be indexed for keyword search.
type Document struct {
	ID      string // chunk id
	Content string // chunk text
}

// KeywordResult represents a single keyword search result.
// Results are ranked by descending distinct matched-term count,
// ties broken by chunk id ascending.
type KeywordResult struct {
	ChunkID      string
	MatchedTerms []string
	TermCount    int     // distinct query terms matched
	Score        float64 // backend relevance score, kept for diagnostics
}

// KeywordIndex provides term-based search over chunk text.
type KeywordIndex interface {
	// Index adds documents to the index.
	Index(ctx context.Context, docs []*Document) error

	// Search runs one batched any-of match for the query's terms.
	Search(ctx context.Context, query string, limit int) ([]*KeywordResult, error)

	// Delete removes documents from the index.
	Delete(ctx context.Context, docIDs []string) error

	// AllIDs returns all document IDs in the index (for consistency checks).
	AllIDs() ([]string, error)

	// DocCount returns the number of indexed documents.
	DocCount() (int, error)

	Close() error
}

// VectorResult represents a single vector search result.
type VectorResult struct {
	ID       string  // chunk id
	Distance float32 // lower is more similar (0-2 for cosine)
	Score    float32 // normalized similarity (0-1)
}

// VectorStoreConfig configures the vector store.
type VectorStoreConfig struct {
	// Dimensions is the vector dimension.
	Dimensions int

	// Metric is the distance metric: "cos" (cosine), "l2" (euclidean).
	Metric string

	// M is HNSW max connections per layer.
	M int

	// EfSearch is HNSW query-time search width.
	EfSearch int
}

// DefaultVectorStoreConfig returns sensible defaults for the vector store.
func DefaultVectorStoreConfig(dimensions int) VectorStoreConfig {
	return VectorStoreConfig{
		Dimensions: dimensions,
		Metric:     "cos",
		M:          16,
		EfSearch:   64,
	}
}

// VectorStore provides nearest-neighbor search over chunk embeddings.
type VectorStore interface {
	// Add inserts vectors with their IDs. If an ID exists, it is replaced.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Search finds k nearest neighbors to the query vector.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)

	// Delete removes vectors by ID.
	Delete(ctx context.Context, ids []string) error

	// AllIDs returns all vector IDs in the store (for consistency checks).
	AllIDs() []string

	// Contains checks if an ID exists.
	Contains(id string) bool

	// Count returns the number of vectors.
	Count() int

	// Persistence
	Save(path string) error
	Load(path string) error
	Close() error
}

// ErrDimensionMismatch indicates vector dimension mismatch.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d (run 'obsidian-tools index --full')", e.Expected, e.Got)
}
