package rerank

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kailas-cloud/vecrag/internal/domain"
)

func TestNew_UnknownMode(t *testing.T) {
	_, err := New(Config{Mode: "bm42"}, nil, nil, nil)
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestNew_AutoResolution(t *testing.T) {
	withEmb := newTestScorer(t, Config{Mode: "auto"}, &mockEmbedder{}, nil)
	if withEmb.Mode() != ModeDedicated {
		t.Errorf("auto with embedder: got %s", withEmb.Mode())
	}
	without := newTestScorer(t, Config{Mode: "auto"}, nil, nil)
	if without.Mode() != ModeKeyword {
		t.Errorf("auto without embedder: got %s", without.Mode())
	}
}

func TestScore_EmptyCandidates(t *testing.T) {
	s := newTestScorer(t, Config{Mode: "keyword"}, nil, nil)
	docs, err := s.Score(context.Background(), "anything", "hr", nil)
	if err != nil || len(docs) != 0 {
		t.Fatalf("expected empty result, got %v, %v", docs, err)
	}
}

func TestScore_DedicatedWithoutEmbedderUsesKeyword(t *testing.T) {
	s := newTestScorer(t, Config{Mode: "dedicated"}, nil, nil)

	b, err := s.ScoreBatch(context.Background(), "alpha report", "hr", []domain.Document{
		doc("d1", "different text"),
		doc("d2", "alpha report summary"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Docs[0].Document.ID != "d2" {
		t.Errorf("expected d2 first, got %s", b.Docs[0].Document.ID)
	}
	if b.Docs[0].Score != 1 || b.Docs[1].Score != 0 {
		t.Errorf("unexpected scores %v / %v", b.Docs[0].Score, b.Docs[1].Score)
	}
	if b.Fallbacks[reasonNoEmbedder] != 2 {
		t.Errorf("expected 2 no_embedder fallbacks, got %v", b.Fallbacks)
	}
}

func TestScore_DedicatedCosine(t *testing.T) {
	emb := &mockEmbedder{vectors: map[string][]float32{
		"q":   {1, 0},
		"on":  {1, 0},
		"off": {0, 1},
	}}
	s := newTestScorer(t, Config{Mode: "dedicated"}, emb, nil)

	docs, err := s.Score(context.Background(), "q", "hr", []domain.Document{doc("off", "off"), doc("on", "on")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if docs[0].Document.ID != "on" || docs[0].Score < 0.999 {
		t.Errorf("expected 'on' with ~1.0 first, got %s %.3f", docs[0].Document.ID, docs[0].Score)
	}
	if docs[1].Score != 0 {
		t.Errorf("orthogonal doc should score 0, got %f", docs[1].Score)
	}
}

func TestScore_DedicatedDocEmbedFailureFallsBackPerDocument(t *testing.T) {
	emb := &mockEmbedder{vectors: map[string][]float32{
		"alpha":       {1, 0},
		"alpha notes": {1, 0},
	}}
	s := newTestScorer(t, Config{Mode: "dedicated"}, emb, nil)

	b, err := s.ScoreBatch(context.Background(), "alpha", "hr", []domain.Document{
		doc("ok", "alpha notes"),
		doc("broken", "alpha unknown"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Fallbacks[reasonEmbedError] != 1 {
		t.Errorf("expected one embed_error fallback, got %v", b.Fallbacks)
	}
	for _, d := range b.Docs {
		if d.Score != 1 {
			t.Errorf("%s: expected 1.0 (cosine or keyword), got %f", d.Document.ID, d.Score)
		}
	}
}

func TestScore_DedicatedQueryEmbedFailureDegradesBatch(t *testing.T) {
	emb := &mockEmbedder{err: errUpstream}
	s := newTestScorer(t, Config{Mode: "dedicated"}, emb, nil)

	b, err := s.ScoreBatch(context.Background(), "alpha", "hr", []domain.Document{doc("a", "alpha"), doc("b", "beta")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Fallbacks[reasonEmbedError] != 2 {
		t.Errorf("expected whole batch degraded, got %v", b.Fallbacks)
	}
	if emb.calls.Load() != 1 {
		t.Errorf("expected a single query embedding attempt, got %d", emb.calls.Load())
	}
}

func TestScore_LLMJudgeParsesScore(t *testing.T) {
	s := newTestScorer(t, Config{Mode: "llm-judge"}, nil, &mockChat{resp: "0.87"})

	docs, err := s.Score(context.Background(), "policy", "hr", []domain.Document{doc("d", "text")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if docs[0].Score < 0.86 {
		t.Errorf("expected >= 0.86, got %f", docs[0].Score)
	}
}

func TestScore_LLMJudgeUnparseableIsNeutral(t *testing.T) {
	chat := &mockChat{resp: "not-a-number"}
	s := newTestScorer(t, Config{Mode: "llm-judge"}, nil, chat)

	b, err := s.ScoreBatch(context.Background(), "policy", "hr", []domain.Document{doc("d", "text")})
	if err != nil {
		t.Fatalf("parse failures must not propagate, got %v", err)
	}
	if b.Docs[0].Score != NeutralScore {
		t.Errorf("expected %v, got %f", NeutralScore, b.Docs[0].Score)
	}
	if b.Fallbacks[reasonParseError] != 1 {
		t.Errorf("expected parse_error recorded, got %v", b.Fallbacks)
	}

	// Neutral scores are not cached.
	_, _ = s.Score(context.Background(), "policy", "hr", []domain.Document{doc("d", "text")})
	if chat.calls.Load() != 2 {
		t.Errorf("expected judge re-queried, got %d calls", chat.calls.Load())
	}
}

func TestScore_LLMJudgeChatErrorFallsBackToKeyword(t *testing.T) {
	s := newTestScorer(t, Config{Mode: "llm-judge"}, nil, &mockChat{err: errUpstream})

	b, err := s.ScoreBatch(context.Background(), "vacation policy", "hr", []domain.Document{doc("d", "the vacation policy")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Docs[0].Score != 1 {
		t.Errorf("expected keyword score 1.0, got %f", b.Docs[0].Score)
	}
	if b.Fallbacks[reasonChatError] != 1 {
		t.Errorf("expected chat_error fallback, got %v", b.Fallbacks)
	}
}

func TestScore_CacheIsolatedByDepartment(t *testing.T) {
	chat := &mockChat{resp: "0.9"}
	s := newTestScorer(t, Config{Mode: "llm-judge"}, nil, chat)
	ctx := context.Background()
	docs := []domain.Document{doc("shared", "same content")}

	if _, err := s.Score(ctx, "Quarterly  Budget", "hr", docs); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Score(ctx, "quarterly budget", "hr", docs); err != nil {
		t.Fatal(err)
	}
	if chat.calls.Load() != 1 {
		t.Fatalf("expected normalized query to hit cache, got %d judge calls", chat.calls.Load())
	}

	if _, err := s.Score(ctx, "quarterly budget", "legal", docs); err != nil {
		t.Fatal(err)
	}
	if chat.calls.Load() != 2 {
		t.Errorf("expected a miss for another department, got %d judge calls", chat.calls.Load())
	}

	st := s.Stats()
	if st.CacheHits != 1 || st.CacheMisses != 2 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestScore_TimeoutFallsBackToKeyword(t *testing.T) {
	chat := newBlockingChat()
	defer chat.Release()
	s := newTestScorer(t, Config{Mode: "llm-judge", BatchTimeout: 30 * time.Millisecond}, nil, chat)

	b, err := s.ScoreBatch(context.Background(), "alpha", "hr", []domain.Document{doc("a", "alpha"), doc("b", "beta")})
	if err != nil {
		t.Fatalf("timeouts must not propagate, got %v", err)
	}
	if b.Fallbacks[reasonTimeout] != 2 {
		t.Errorf("expected 2 timeouts, got %v", b.Fallbacks)
	}
	if b.Docs[0].Document.ID != "a" || b.Docs[0].Score != 1 {
		t.Errorf("expected keyword ranking, got %+v", b.Docs[0])
	}
}

func TestScore_PoolSaturationReturnsCapacityError(t *testing.T) {
	chat := newBlockingChat()
	defer chat.Release()
	s := newTestScorer(t, Config{Mode: "llm-judge", PoolSize: 1, BatchTimeout: 50 * time.Millisecond}, nil, chat)

	docs, err := s.Score(context.Background(), "alpha", "hr", []domain.Document{
		doc("a", "alpha"), doc("b", "alpha beta"), doc("c", "gamma"),
	})

	var capErr *domain.CapacityError
	if !errors.As(err, &capErr) {
		t.Fatalf("expected CapacityError, got %v", err)
	}
	if !errors.Is(err, domain.ErrCapacityExceeded) {
		t.Error("expected error to wrap ErrCapacityExceeded")
	}
	if capErr.Rejected != 2 {
		t.Errorf("expected 2 rejections, got %d", capErr.Rejected)
	}
	if len(docs) != 3 {
		t.Errorf("scores must still be returned, got %d", len(docs))
	}
	if s.Rejected() != 2 {
		t.Errorf("expected running total 2, got %d", s.Rejected())
	}
}

func TestScore_TiesKeepInputOrder(t *testing.T) {
	s := newTestScorer(t, Config{Mode: "keyword"}, nil, nil)
	in := []domain.Document{doc("1", "x"), doc("2", "y"), doc("3", "z")}

	docs, err := s.Score(context.Background(), "unrelated", "hr", in)
	if err != nil {
		t.Fatal(err)
	}
	for i, d := range docs {
		if d.Document.ID != in[i].ID {
			t.Fatalf("position %d: expected %s, got %s", i, in[i].ID, d.Document.ID)
		}
	}
}

func TestBatch_Degradation(t *testing.T) {
	if err := (Batch{Mode: ModeKeyword, Fallbacks: map[string]int{}}).Degradation(); err != nil {
		t.Fatalf("clean batch must not report degradation, got %v", err)
	}

	b := Batch{Mode: ModeLLMJudge, Fallbacks: map[string]int{
		reasonTimeout:    1,
		reasonParseError: 2,
		reasonChatError:  1,
		reasonPanic:      1,
	}}
	err := b.Degradation()
	for _, want := range []error{domain.ErrParse, domain.ErrTimeout, domain.ErrUpstreamUnavailable} {
		if !errors.Is(err, want) {
			t.Errorf("expected %v in %v", want, err)
		}
	}
	if errors.Is(err, domain.ErrCapacityExceeded) {
		t.Error("no rejections were reported")
	}
	msg := err.Error()
	if !strings.HasPrefix(msg, "llm-judge scoring degraded") || !strings.Contains(msg, "parse_error on 2 documents") {
		t.Errorf("unexpected message %q", msg)
	}
}
