package domain

import "context"

// Chunk is a bounded slice of document text used as the retrieval unit.
type Chunk struct {
	Source string
	Index  int
	Text   string
}

// SearchResult represents a matching chunk with a relevance score.
type SearchResult struct {
	Chunk Chunk
	Score float32
}

// Embedder converts free text into a fixed-length vector representation.
// Documents and queries must go through the same embedder so that they
// share a single embedding space.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Chunker splits extracted document text into chunks suitable for indexing.
type Chunker interface {
	Chunk(source, text string) ([]Chunk, error)
}

// VectorStore holds (vector, chunk) pairs and supports nearest-neighbour
// search. The store is append-only; there is no delete or update.
type VectorStore interface {
	Add(ctx context.Context, chunks []Chunk, vectors [][]float32) error
	Search(ctx context.Context, vector []float32, topK int) ([]SearchResult, error)
	Save() error
	Len() int
	Close() error
}

// Summarizer produces a textual answer from a question and retrieved context.
type Summarizer interface {
	Summarize(ctx context.Context, question string, contexts []string) (string, error)
}

// Extractor pulls plain text out of an uploaded document file.
type Extractor interface {
	Extract(path string) (string, error)
}
