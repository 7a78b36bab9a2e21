package vecrag

import (
	"github.com/kailas-cloud/vecrag/internal/domain"
	"github.com/kailas-cloud/vecrag/internal/domain/answer"
	"github.com/kailas-cloud/vecrag/internal/domain/trace"
)

func answerFromDomain(r answer.Result) Answer {
	sources := make([]Source, len(r.Sources))
	for i, d := range r.Sources {
		sources[i] = Source{ID: d.ID, Content: d.Content, Metadata: d.Metadata}
	}
	return Answer{
		Text:          r.Answer,
		Sources:       sources,
		Confidence:    r.Confidence,
		ExecutedSteps: r.ExecutedSteps,
		Iterations:    r.Iterations,
		Metrics:       r.Metrics,
		TraceID:       r.TraceID,
		Degraded:      r.Degraded,
	}
}

func traceFromDomain(t *trace.Trace) Trace {
	steps := make([]Step, len(t.Steps))
	for i, s := range t.Steps {
		steps[i] = Step{
			Type:     string(s.Type),
			Label:    s.Label,
			Detail:   s.Detail,
			Duration: s.Duration,
			Data:     s.Data,
			At:       s.At,
		}
	}
	return Trace{
		ID:         t.ID,
		Query:      t.Query,
		Department: t.Department,
		Steps:      steps,
		Metrics:    t.Metrics,
		Completed:  t.Completed,
		StartedAt:  t.StartedAt,
		EndedAt:    t.EndedAt,
	}
}

func documentsToDomain(docs []Document) []domain.Document {
	out := make([]domain.Document, len(docs))
	for i, d := range docs {
		out[i] = domain.Document{ID: d.ID, Content: d.Content}
	}
	return out
}
