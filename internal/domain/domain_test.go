package domain

import (
	"context"
	"errors"
	"testing"
)

func TestDocument_SetMetaIdempotent(t *testing.T) {
	doc := Document{ID: "d1", Content: "x"}
	if !doc.SetMeta(MetaPartition, "3") {
		t.Fatal("first write should report a change")
	}
	if doc.SetMeta(MetaPartition, "3") {
		t.Fatal("re-tagging with the same value must be a no-op")
	}
	if !doc.SetMeta(MetaPartition, "4") {
		t.Fatal("different value should report a change")
	}
}

func TestDocument_SparseTerms(t *testing.T) {
	doc := Document{Metadata: map[string]string{MetaSparseTerms: "Alpha:0.5, beta:1, broken, :2, gamma:x"}}
	terms := doc.SparseTerms()
	if len(terms) != 2 {
		t.Fatalf("expected 2 parsed terms, got %v", terms)
	}
	if terms["alpha"] != 0.5 || terms["beta"] != 1 {
		t.Errorf("unexpected weights: %v", terms)
	}
}

func TestCapacityError_Unwrap(t *testing.T) {
	err := NewCapacityError(3)
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatal("expected errors.Is ErrCapacityExceeded")
	}
	var ce *CapacityError
	if !errors.As(err, &ce) || ce.Rejected != 3 {
		t.Fatalf("expected rejected=3, got %+v", ce)
	}
}

func TestProviderErrorsAreUpstream(t *testing.T) {
	for _, err := range []error{ErrEmbeddingProviderError, ErrChatProviderError} {
		if !errors.Is(err, ErrUpstreamUnavailable) {
			t.Errorf("%v should wrap ErrUpstreamUnavailable", err)
		}
	}
}

func TestUsage_NilSafe(t *testing.T) {
	var u *Usage
	u.AddEmbedding(10)
	u.AddChatCall()
	if tok, _, _ := u.Snapshot(); tok != 0 {
		t.Fatalf("nil usage should report zero, got %d", tok)
	}

	ctx, usage := NewContextWithUsage(context.Background())
	UsageFromContext(ctx).AddEmbedding(5)
	UsageFromContext(ctx).AddChatCall()
	tok, embeds, chats := usage.Snapshot()
	if tok != 5 || embeds != 1 || chats != 1 {
		t.Fatalf("unexpected snapshot: %d %d %d", tok, embeds, chats)
	}
}
