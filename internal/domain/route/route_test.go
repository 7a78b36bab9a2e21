package route

import "testing"

func TestIsValid(t *testing.T) {
	valid := []Strategy{NoRetrieval, Chunk, HyDE, Keyword}
	for _, s := range valid {
		if !s.IsValid() {
			t.Errorf("%q.IsValid() = false, want true", s)
		}
	}

	invalid := []Strategy{"", "chunk", "DECOMPOSE"}
	for _, s := range invalid {
		if s.IsValid() {
			t.Errorf("%q.IsValid() = true, want false", s)
		}
	}
}

func TestNeedsRetrieval(t *testing.T) {
	if NoRetrieval.NeedsRetrieval() {
		t.Error("NO_RETRIEVAL must not need retrieval")
	}
	for _, s := range []Strategy{Chunk, HyDE, Keyword} {
		if !s.NeedsRetrieval() {
			t.Errorf("%q should need retrieval", s)
		}
	}
}
