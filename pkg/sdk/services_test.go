package vecrag

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/kailas-cloud/vecrag/internal/domain"
	"github.com/kailas-cloud/vecrag/internal/domain/answer"
	"github.com/kailas-cloud/vecrag/internal/domain/trace"
	healthuc "github.com/kailas-cloud/vecrag/internal/usecase/health"
	"github.com/kailas-cloud/vecrag/internal/usecase/orchestrator"
)

func TestClient_Ask(t *testing.T) {
	p := &mockPipeline{
		executeFn: func(_ context.Context, req orchestrator.Request) (answer.Result, *trace.Trace, error) {
			if req.Query != "how do I rotate keys?" || req.Department != "eng" {
				t.Errorf("unexpected request: %+v", req)
			}
			return answer.Result{
				Answer:        "Use the rotate command.",
				Sources:       []domain.Document{{ID: "kb-1", Content: "rotate keys with ..."}},
				Confidence:    0.9,
				ExecutedSteps: []string{"STANDARD_RETRIEVAL", "RERANKING", "GRADING", "GENERATION"},
				Iterations:    1,
				TraceID:       "tr-1",
			}, &trace.Trace{ID: "tr-1"}, nil
		},
	}

	c := testClient(p, nil, nil, nil)
	ans, err := c.Ask(context.Background(), Query{Text: "how do I rotate keys?", Department: "eng"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ans.Text != "Use the rotate command." || ans.TraceID != "tr-1" {
		t.Errorf("unexpected answer: %+v", ans)
	}
	if len(ans.Sources) != 1 || ans.Sources[0].ID != "kb-1" {
		t.Errorf("sources = %+v", ans.Sources)
	}
}

func TestClient_Ask_CapacityKeepsAnswer(t *testing.T) {
	p := &mockPipeline{
		executeFn: func(context.Context, orchestrator.Request) (answer.Result, *trace.Trace, error) {
			return answer.Result{Answer: "partial"}, nil, fmt.Errorf("orchestrate: %w", domain.NewCapacityError(2))
		},
	}

	c := testClient(p, nil, nil, nil)
	ans, err := c.Ask(context.Background(), Query{Text: "q", Department: "eng"})
	if !errors.Is(err, ErrCapacityExceeded) {
		t.Fatalf("expected ErrCapacityExceeded, got %v", err)
	}
	var ce *CapacityError
	if !errors.As(err, &ce) || ce.Rejected != 2 {
		t.Errorf("expected CapacityError with 2 rejected, got %v", err)
	}
	if ans.Text != "partial" {
		t.Errorf("answer dropped: %+v", ans)
	}
}

func TestClient_Ask_Validation(t *testing.T) {
	p := &mockPipeline{
		executeFn: func(context.Context, orchestrator.Request) (answer.Result, *trace.Trace, error) {
			return answer.Result{}, nil, domain.Validationf("query must not be empty")
		},
	}

	c := testClient(p, nil, nil, nil)
	if _, err := c.Ask(context.Background(), Query{}); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestClient_Trace(t *testing.T) {
	start := time.Now()
	traces := mockTraces{"tr-1": {
		ID:    "tr-1",
		Query: "q",
		Steps: []trace.Step{
			{Type: trace.Routing, Label: "route", Duration: time.Millisecond},
			{Type: trace.Generation, Label: "generate"},
		},
		Completed: true,
		StartedAt: start,
	}}

	c := testClient(nil, traces, nil, nil)
	tr, err := c.Trace("tr-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tr.Steps) != 2 || tr.Steps[0].Type != "ROUTING" || tr.Steps[0].Duration != time.Millisecond {
		t.Errorf("unexpected steps: %+v", tr.Steps)
	}
	if !tr.Completed {
		t.Error("expected completed trace")
	}
}

func TestClient_Trace_NotFound(t *testing.T) {
	c := testClient(nil, mockTraces{}, nil, nil)
	if _, err := c.Trace("gone"); !errors.Is(err, ErrTraceNotFound) {
		t.Fatalf("expected ErrTraceNotFound, got %v", err)
	}
}

func TestClient_AssignPartitions(t *testing.T) {
	c := testClient(nil, nil, mustAssigner(8), &mockTagger{})
	docs := []Document{
		{ID: "a", Content: "alpha"},
		{ID: "b", Content: "beta"},
		{ID: "c", Content: "alpha"},
	}

	rep, err := c.AssignPartitions(context.Background(), docs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Partitions != 8 || rep.Tagged != 3 {
		t.Errorf("unexpected report: %+v", rep)
	}
	if rep.Assignments["a"] != rep.Assignments["c"] {
		t.Error("identical content must share a partition")
	}
	total := 0
	for _, n := range rep.Histogram {
		total += n
	}
	if total != 3 {
		t.Errorf("histogram total = %d, want 3", total)
	}
}

func TestClient_AssignPartitions_TagFailures(t *testing.T) {
	c := testClient(nil, nil, mustAssigner(4), &mockTagger{err: errors.New("document not found")})

	rep, err := c.AssignPartitions(context.Background(), []Document{{ID: "x", Content: "x"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rep.Tagged != 0 || rep.Failed["x"] == "" {
		t.Errorf("expected per-document failure, got %+v", rep)
	}
}

func TestClient_AssignPartitions_Cancelled(t *testing.T) {
	c := testClient(nil, nil, mustAssigner(4), &mockTagger{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := c.AssignPartitions(ctx, []Document{{ID: "x"}}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestClient_Health(t *testing.T) {
	c := &Client{healthSvc: &mockHealth{report: healthuc.Report{
		Status:  healthuc.Degraded,
		Version: "v1.2.0 (abc1234)",
		Checks:  map[string]healthuc.CheckResult{healthuc.DatabaseCheck: healthuc.CheckOK, "chat": healthuc.CheckError},
		Latency: map[string]time.Duration{healthuc.DatabaseCheck: 2 * time.Millisecond},
		Errors:  map[string]string{"chat": "connection refused"},
	}}}

	h := c.Health(context.Background())
	if h.Status != "degraded" || h.Healthy() {
		t.Errorf("status = %q, healthy = %v", h.Status, h.Healthy())
	}
	if h.Checks["chat"] != "error" || h.Checks["database"] != "ok" {
		t.Errorf("unexpected checks: %+v", h.Checks)
	}
	if h.Version != "v1.2.0 (abc1234)" || h.Latency["database"] != 2*time.Millisecond {
		t.Errorf("version/latency not carried: %+v", h)
	}
	if h.Errors["chat"] != "connection refused" {
		t.Errorf("errors not carried: %+v", h.Errors)
	}
}
