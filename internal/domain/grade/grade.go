package grade

import "github.com/kailas-cloud/vecrag/internal/domain"

// Grade is the closed per-document evidence quality set.
type Grade string

// Grade constants.
const (
	Correct   Grade = "CORRECT"
	Ambiguous Grade = "AMBIGUOUS"
	Incorrect Grade = "INCORRECT"
)

// IsValid checks if the grade is one of the three allowed values.
func (g Grade) IsValid() bool {
	return g == Correct || g == Ambiguous || g == Incorrect
}

// Decision is the aggregate verdict over a retrieved set.
type Decision string

// Decision constants.
const (
	UseRetrieved      Decision = "USE_RETRIEVED"
	RewriteAndRetry   Decision = "REWRITE_AND_RETRY"
	FallbackRetrieval Decision = "FALLBACK_RETRIEVAL"
)

// Result is the grade of a single retrieved document.
type Result struct {
	Document   domain.Document
	Score      float64
	Grade      Grade
	Confidence float64
}

// Thresholds split scores into grades: score >= Correct is CORRECT,
// score < Incorrect is INCORRECT, anything between is AMBIGUOUS.
type Thresholds struct {
	Correct   float64
	Incorrect float64
}

// DefaultThresholds returns the conventional corrective-grading cut-offs.
func DefaultThresholds() Thresholds {
	return Thresholds{Correct: 0.7, Incorrect: 0.3}
}

// Classify maps a score to a grade.
func (t Thresholds) Classify(score float64) Grade {
	switch {
	case score >= t.Correct:
		return Correct
	case score < t.Incorrect:
		return Incorrect
	default:
		return Ambiguous
	}
}
