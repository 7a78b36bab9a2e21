package answer

import "github.com/kailas-cloud/vecrag/internal/domain"

// Result is the final, immutable output of one orchestrated request.
type Result struct {
	Answer        string
	Sources       []domain.Document
	Confidence    float64
	ExecutedSteps []string
	Iterations    int
	Metrics       map[string]float64
	TraceID       string
	Degraded      bool
}
