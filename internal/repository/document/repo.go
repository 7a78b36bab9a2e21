package document

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/kailas-cloud/vecrag/internal/db"
	"github.com/kailas-cloud/vecrag/internal/domain"
	"github.com/kailas-cloud/vecrag/internal/repository/search"
)

// ErrDocumentNotFound is returned when tagging a document the store does not hold.
var ErrDocumentNotFound = errors.New("document not found")

// store is the consumer interface for corpus documents (ISP).
type store interface {
	SetFieldsIfExists(ctx context.Context, key string, fields map[string]string) (bool, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// Repo persists partition tags on corpus documents stored as hashes.
type Repo struct {
	store     store
	indexName string
	docPrefix string
}

// New creates a document repository.
func New(s store, indexName, docPrefix string) *Repo {
	return &Repo{store: s, indexName: indexName, docPrefix: docPrefix}
}

// TagPartition writes the partition field of an existing document.
// Only that field is touched; repeating the call is harmless.
func (r *Repo) TagPartition(ctx context.Context, docID string, partition int) error {
	fields := map[string]string{domain.MetaPartition: strconv.Itoa(partition)}
	ok, err := r.store.SetFieldsIfExists(ctx, r.docPrefix+docID, fields)
	if err != nil {
		return fmt.Errorf("tag %s: %w", docID, err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", docID, ErrDocumentNotFound)
	}
	return nil
}

// EnsureIndex creates the corpus FT index when it does not exist yet.
// The schema covers the fields retrieval filters and scores on.
func (r *Repo) EnsureIndex(ctx context.Context, dimensions int) error {
	exists, err := r.store.IndexExists(ctx, r.indexName)
	if err != nil {
		return fmt.Errorf("index exists %s: %w", r.indexName, err)
	}
	if exists {
		return nil
	}

	def, err := db.NewIndexDefinition(r.indexName, r.docPrefix,
		db.TextField(search.FieldContent),
		db.TagField(domain.MetaDepartment),
		db.TagField(domain.MetaSource),
		db.NumericField(domain.MetaPartition),
		db.VectorField(search.FieldVector, dimensions, db.DistanceCosine),
	)
	if err != nil {
		return fmt.Errorf("build index %s: %w", r.indexName, err)
	}

	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index %s: %w", r.indexName, err)
	}
	return nil
}
