package document

import (
	"context"
	"testing"

	"github.com/kailas-cloud/vecrag/internal/db"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	tagFn         func(ctx context.Context, key string, fields map[string]string) (bool, error)
	createIndexFn func(ctx context.Context, def *db.IndexDefinition) error
	indexExistsFn func(ctx context.Context, name string) (bool, error)
}

func (m *mockStore) SetFieldsIfExists(ctx context.Context, key string, fields map[string]string) (bool, error) {
	if m.tagFn != nil {
		return m.tagFn(ctx, key, fields)
	}
	return true, nil
}

func (m *mockStore) CreateIndex(ctx context.Context, def *db.IndexDefinition) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, def)
	}
	return nil
}

func (m *mockStore) IndexExists(ctx context.Context, name string) (bool, error) {
	if m.indexExistsFn != nil {
		return m.indexExistsFn(ctx, name)
	}
	return false, nil
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	return New(ms, "vecrag:docs:idx", "vecrag:doc:"), ms
}
