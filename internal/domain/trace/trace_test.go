package trace

import (
	"testing"
	"time"
)

func TestClone_IsDeep(t *testing.T) {
	orig := &Trace{
		ID:      "t1",
		Steps:   []Step{{Type: Routing, Data: map[string]any{"k": 1}}},
		Metrics: map[string]float64{"m": 1},
	}
	c := orig.Clone()
	c.Steps[0].Data["k"] = 2
	c.Metrics["m"] = 2
	c.Steps = append(c.Steps, Step{Type: Error})

	if orig.Steps[0].Data["k"] != 1 {
		t.Error("step data leaked into original")
	}
	if orig.Metrics["m"] != 1 {
		t.Error("metrics leaked into original")
	}
	if len(orig.Steps) != 1 {
		t.Error("steps slice leaked into original")
	}
}

func TestStepNamesAndDuration(t *testing.T) {
	start := time.Now()
	tr := &Trace{
		Steps:     []Step{{Type: Routing}, {Type: StandardRetrieval}, {Type: Generation}},
		StartedAt: start,
	}
	if tr.Duration() != 0 {
		t.Error("unfinished trace should have zero duration")
	}
	tr.EndedAt = start.Add(2 * time.Second)
	if tr.Duration() != 2*time.Second {
		t.Errorf("unexpected duration %v", tr.Duration())
	}
	names := tr.StepNames()
	if len(names) != 3 || names[1] != "STANDARD_RETRIEVAL" {
		t.Errorf("unexpected names %v", names)
	}
}

func TestIsRetrieval(t *testing.T) {
	if !HyDERetrieval.IsRetrieval() || !FallbackRetrieval.IsRetrieval() {
		t.Error("retrieval steps not recognized")
	}
	if Generation.IsRetrieval() || DirectResponse.IsRetrieval() {
		t.Error("non-retrieval step misclassified")
	}
}
