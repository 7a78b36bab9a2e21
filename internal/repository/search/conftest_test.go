package search

import (
	"context"
	"testing"

	"github.com/kailas-cloud/vecrag/internal/db"
	"github.com/kailas-cloud/vecrag/internal/domain"
)

const (
	testIndex  = "vecrag:docs:idx"
	testPrefix = "vecrag:doc:"
)

// fakeIndex records the last query of each kind and answers with canned hits.
type fakeIndex struct {
	hits    []db.SearchEntry
	err     error
	noText  bool
	lastKNN *db.KNNQuery
	lastBM  *db.TextQuery
}

func (f *fakeIndex) SearchKNN(_ context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	f.lastKNN = q
	return f.result()
}

func (f *fakeIndex) SearchBM25(_ context.Context, q *db.TextQuery) (*db.SearchResult, error) {
	f.lastBM = q
	return f.result()
}

func (f *fakeIndex) SupportsTextSearch(context.Context) bool { return !f.noText }

func (f *fakeIndex) result() (*db.SearchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &db.SearchResult{Total: len(f.hits), Entries: f.hits}, nil
}

type countingEmbedder struct {
	err   error
	calls int
	last  string
}

func (e *countingEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	e.calls++
	e.last = text
	if e.err != nil {
		return domain.EmbeddingResult{}, e.err
	}
	return domain.EmbeddingResult{Embedding: []float32{0.1, 0.2, 0.3, 0.4}}, nil
}

func hit(id string, score float64, fields map[string]string) db.SearchEntry {
	return db.SearchEntry{Key: testPrefix + id, Score: score, Fields: fields}
}

func newTestRepo(t *testing.T) (*Repo, *fakeIndex, *countingEmbedder) {
	t.Helper()
	idx := &fakeIndex{}
	emb := &countingEmbedder{}
	return New(idx, emb, testIndex, testPrefix), idx, emb
}
