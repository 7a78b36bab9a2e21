package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/kailas-cloud/vecrag/internal/db"
	"github.com/kailas-cloud/vecrag/internal/domain"
)

// Hash fields of a corpus document.
const (
	FieldContent = "__content"
	FieldVector  = "__vector"
)

var returnFields = []string{
	FieldContent,
	domain.MetaDepartment,
	domain.MetaSource,
	domain.MetaPartition,
	domain.MetaSparseTerms,
}

// store is the consumer interface for search operations (ISP).
type store interface {
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchBM25(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error)
	SupportsTextSearch(ctx context.Context) bool
}

// Repo implements domain.Retriever and domain.KeywordRetriever over an FT index.
type Repo struct {
	store     store
	embedder  domain.Embedder
	indexName string
	docPrefix string
}

// New creates a search repository. docPrefix is the hash key prefix stripped from hit keys.
func New(s store, embedder domain.Embedder, indexName, docPrefix string) *Repo {
	return &Repo{store: s, embedder: embedder, indexName: indexName, docPrefix: docPrefix}
}

// Search embeds the query and runs a department-scoped KNN search.
func (r *Repo) Search(
	ctx context.Context, query string, filters domain.SearchFilters, k int,
) ([]domain.Document, error) {
	emb, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	fields := append(append([]string(nil), returnFields...), db.ScoreField)
	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.indexName,
		VectorField:  FieldVector,
		Filter:       buildFilter(filters),
		Vector:       emb.Embedding,
		K:            k,
		ReturnFields: fields,
	})
	if err != nil {
		return nil, fmt.Errorf("search knn %s: %w: %w", r.indexName, domain.ErrUpstreamUnavailable, err)
	}

	return r.toDocuments(sr), nil
}

// KeywordSearch runs a department-scoped BM25 search.
func (r *Repo) KeywordSearch(
	ctx context.Context, query string, filters domain.SearchFilters, k int,
) ([]domain.Document, error) {
	if !r.store.SupportsTextSearch(ctx) {
		return nil, domain.ErrKeywordSearchNotSupported
	}

	sr, err := r.store.SearchBM25(ctx, &db.TextQuery{
		IndexName:    r.indexName,
		TextField:    FieldContent,
		Query:        query,
		Filter:       buildFilter(filters),
		TopK:         k,
		ReturnFields: returnFields,
	})
	if err != nil {
		return nil, fmt.Errorf("search bm25 %s: %w: %w", r.indexName, domain.ErrUpstreamUnavailable, err)
	}

	return r.toDocuments(sr), nil
}

func buildFilter(f domain.SearchFilters) db.Filter {
	var out db.Filter
	if f.Department != "" {
		out = out.WithTag(domain.MetaDepartment, f.Department)
	}
	if f.Partition != nil {
		out = out.WithEquals(domain.MetaPartition, float64(*f.Partition))
	}
	return out
}

// toDocuments converts hits into documents, preserving store order.
func (r *Repo) toDocuments(sr *db.SearchResult) []domain.Document {
	if sr == nil || len(sr.Entries) == 0 {
		return nil
	}

	docs := make([]domain.Document, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		doc := domain.Document{
			ID:       strings.TrimPrefix(entry.Key, r.docPrefix),
			Metadata: make(map[string]string, len(entry.Fields)),
		}
		for k, v := range entry.Fields {
			switch k {
			case FieldContent:
				doc.Content = v
			case FieldVector:
				// never surfaced
			default:
				doc.Metadata[k] = v
			}
		}
		docs = append(docs, doc)
	}
	return docs
}
