package db

import (
	"context"
	"time"
)

// Store is everything the service needs from the corpus database. main wires
// it once; each repository declares the narrow slice it consumes.
type Store interface {
	Pinger
	DocumentTagger
	BlobCache
	IndexManager
	Searcher
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DocumentTagger updates fields of documents that already exist. It never
// creates a document.
type DocumentTagger interface {
	// SetFieldsIfExists reports false, without writing, when key is absent.
	SetFieldsIfExists(ctx context.Context, key string, fields map[string]string) (bool, error)
}

// BlobCache stores opaque values with an expiry, such as cached embeddings.
type BlobCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// IndexManager manages the corpus search index.
type IndexManager interface {
	CreateIndex(ctx context.Context, def *IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SupportsTextSearch(ctx context.Context) bool
}

// Searcher runs vector and keyword queries against an index.
type Searcher interface {
	SearchKNN(ctx context.Context, q *KNNQuery) (*SearchResult, error)
	SearchBM25(ctx context.Context, q *TextQuery) (*SearchResult, error)
}
