package grade

import (
	"context"

	"github.com/kailas-cloud/vecrag/internal/domain"
)

// mockScorer returns fixed scores by document ID, preserving input order.
type mockScorer struct {
	scores map[string]float64
	err    error
}

func (m *mockScorer) Score(_ context.Context, _, _ string, docs []domain.Document) ([]domain.ScoredDocument, error) {
	out := make([]domain.ScoredDocument, len(docs))
	for i, d := range docs {
		out[i] = domain.ScoredDocument{Document: d, Score: m.scores[d.ID]}
	}
	return out, m.err
}

func docs(ids ...string) []domain.Document {
	out := make([]domain.Document, len(ids))
	for i, id := range ids {
		out[i] = domain.Document{ID: id, Content: id}
	}
	return out
}
