package trace

import "time"

// StepType enumerates pipeline stages recorded in a trace.
type StepType string

// Step type constants.
const (
	Routing           StepType = "ROUTING"
	DirectResponse    StepType = "DIRECT_RESPONSE"
	StandardRetrieval StepType = "STANDARD_RETRIEVAL"
	HyDERetrieval     StepType = "HYDE_RETRIEVAL"
	KeywordRetrieval  StepType = "KEYWORD_RETRIEVAL"
	Reranking         StepType = "RERANKING"
	Grading           StepType = "GRADING"
	QueryRewrite      StepType = "QUERY_REWRITE"
	FallbackRetrieval StepType = "FALLBACK_RETRIEVAL"
	Generation        StepType = "GENERATION"
	PartitionDefense  StepType = "PARTITION_DEFENSE"
	Error             StepType = "ERROR"
)

// IsRetrieval reports whether the step fetched evidence.
func (t StepType) IsRetrieval() bool {
	switch t {
	case StandardRetrieval, HyDERetrieval, KeywordRetrieval, FallbackRetrieval:
		return true
	}
	return false
}

// Step is a single recorded pipeline stage. Immutable once appended.
type Step struct {
	Type     StepType
	Label    string
	Detail   string
	Duration time.Duration
	Data     map[string]any
	At       time.Time
}

// Trace is the replayable record of one logical request.
type Trace struct {
	ID          string
	Query       string
	Department  string
	UserID      string
	WorkspaceID string
	Steps       []Step
	Metrics     map[string]float64
	Completed   bool
	StartedAt   time.Time
	EndedAt     time.Time
}

// Duration returns the wall time between start and end (zero if not finished).
func (t *Trace) Duration() time.Duration {
	if t.EndedAt.IsZero() {
		return 0
	}
	return t.EndedAt.Sub(t.StartedAt)
}

// StepNames returns step types in append order.
func (t *Trace) StepNames() []string {
	names := make([]string, len(t.Steps))
	for i, s := range t.Steps {
		names[i] = string(s.Type)
	}
	return names
}

// Clone returns a deep copy safe to hand to readers.
func (t *Trace) Clone() *Trace {
	if t == nil {
		return nil
	}
	c := *t
	c.Steps = make([]Step, len(t.Steps))
	for i, s := range t.Steps {
		s.Data = cloneData(s.Data)
		c.Steps[i] = s
	}
	c.Metrics = make(map[string]float64, len(t.Metrics))
	for k, v := range t.Metrics {
		c.Metrics[k] = v
	}
	return &c
}

func cloneData(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
