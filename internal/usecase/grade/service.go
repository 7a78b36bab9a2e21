package grade

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecrag/internal/domain"
	"github.com/kailas-cloud/vecrag/internal/domain/grade"
	"github.com/kailas-cloud/vecrag/internal/logger"
	"github.com/kailas-cloud/vecrag/internal/metrics"
)

// Scorer is the relevance scorer the grader delegates to.
type Scorer interface {
	Score(ctx context.Context, query, department string, candidates []domain.Document) ([]domain.ScoredDocument, error)
}

// Grader grades retrieved evidence before it is allowed into generation.
type Grader struct {
	scorer     Scorer
	thresholds grade.Thresholds
	logger     *zap.Logger
}

// New creates a grader. Invalid thresholds are rejected.
func New(scorer Scorer, th grade.Thresholds, log *zap.Logger) (*Grader, error) {
	if th.Incorrect < 0 || th.Correct > 1 || th.Incorrect > th.Correct {
		return nil, domain.Validationf("grading thresholds must satisfy 0 <= incorrect <= correct <= 1, got %.2f/%.2f",
			th.Incorrect, th.Correct)
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Grader{scorer: scorer, thresholds: th, logger: log}, nil
}

// Thresholds returns the configured cut-offs.
func (g *Grader) Thresholds() grade.Thresholds { return g.thresholds }

// Evaluate grades docs and returns the aggregate decision. Results follow the
// scorer ranking. A *domain.CapacityError from the scorer is returned with
// valid results; any other scorer error aborts grading.
func (g *Grader) Evaluate(
	ctx context.Context, query, department string, docs []domain.Document,
) ([]grade.Result, grade.Decision, error) {
	if len(docs) == 0 {
		metrics.GradeDecisionsTotal.WithLabelValues(string(grade.RewriteAndRetry)).Inc()
		return nil, grade.RewriteAndRetry, nil
	}

	scored, err := g.scorer.Score(ctx, query, department, docs)
	var capErr *domain.CapacityError
	if err != nil && !errors.As(err, &capErr) {
		return nil, "", fmt.Errorf("grade: score documents: %w", err)
	}

	results, decision := g.GradeScored(ctx, scored)

	if capErr != nil {
		return results, decision, err
	}
	return results, decision, nil
}

// GradeScored classifies documents that were already scored.
func (g *Grader) GradeScored(ctx context.Context, scored []domain.ScoredDocument) ([]grade.Result, grade.Decision) {
	results := make([]grade.Result, len(scored))
	for i, sd := range scored {
		results[i] = grade.Result{
			Document:   sd.Document,
			Score:      sd.Score,
			Grade:      g.thresholds.Classify(sd.Score),
			Confidence: sd.Score,
		}
	}

	decision := Decide(results)
	metrics.GradeDecisionsTotal.WithLabelValues(string(decision)).Inc()

	logger.FromContextOr(ctx, g.logger).Debug("Graded retrieval",
		zap.Int("documents", len(results)),
		zap.String("decision", string(decision)),
	)
	return results, decision
}

// Decide aggregates per-document grades: any CORRECT uses the retrieved set,
// all INCORRECT (or nothing) asks for a rewrite, anything else falls back.
func Decide(results []grade.Result) grade.Decision {
	if len(results) == 0 {
		return grade.RewriteAndRetry
	}
	allIncorrect := true
	for _, r := range results {
		switch r.Grade {
		case grade.Correct:
			return grade.UseRetrieved
		case grade.Ambiguous:
			allIncorrect = false
		}
	}
	if allIncorrect {
		return grade.RewriteAndRetry
	}
	return grade.FallbackRetrieval
}

// UsableDocuments returns the CORRECT documents, or the AMBIGUOUS ones as a
// degraded set when nothing is CORRECT. INCORRECT documents are never usable.
func UsableDocuments(results []grade.Result) []grade.Result {
	var correct, ambiguous []grade.Result
	for _, r := range results {
		switch r.Grade {
		case grade.Correct:
			correct = append(correct, r)
		case grade.Ambiguous:
			ambiguous = append(ambiguous, r)
		}
	}
	if len(correct) > 0 {
		return correct
	}
	return ambiguous
}

// Confidence is the mean score of the usable set, 0 when nothing is usable.
func Confidence(usable []grade.Result) float64 {
	if len(usable) == 0 {
		return 0
	}
	var sum float64
	for _, r := range usable {
		sum += r.Score
	}
	return sum / float64(len(usable))
}
