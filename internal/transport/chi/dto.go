package chi

import (
	"time"

	"github.com/kailas-cloud/vecrag/internal/domain"
	"github.com/kailas-cloud/vecrag/internal/domain/answer"
	"github.com/kailas-cloud/vecrag/internal/domain/trace"
)

// ErrorCode is a machine-readable error identifier.
type ErrorCode string

// Error codes returned in ErrorResponse.
const (
	ErrorCodeBadRequest          ErrorCode = "bad_request"
	ErrorCodeUnauthorized        ErrorCode = "unauthorized"
	ErrorCodeValidationFailed    ErrorCode = "validation_failed"
	ErrorCodeTraceNotFound       ErrorCode = "trace_not_found"
	ErrorCodeUpstreamUnavailable ErrorCode = "upstream_unavailable"
	ErrorCodeTimeout             ErrorCode = "timeout"
	ErrorCodeInternalError       ErrorCode = "internal_error"
)

// ErrorResponse is the body of failed requests that produced no answer.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	TraceID string    `json:"trace_id,omitempty"`
}

// QueryRequest is the body of POST /v1/query.
type QueryRequest struct {
	Query       string `json:"query"`
	Department  string `json:"department"`
	UserID      string `json:"user_id,omitempty"`
	WorkspaceID string `json:"workspace_id,omitempty"`
	Partition   *int   `json:"partition,omitempty"`
}

// SourceResponse is a document used as evidence.
type SourceResponse struct {
	ID       string            `json:"id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// QueryResponse is the body of a successful POST /v1/query.
type QueryResponse struct {
	Answer        string             `json:"answer"`
	Sources       []SourceResponse   `json:"sources"`
	Confidence    float64            `json:"confidence"`
	ExecutedSteps []string           `json:"executed_steps"`
	Iterations    int                `json:"iterations"`
	Metrics       map[string]float64 `json:"metrics,omitempty"`
	TraceID       string             `json:"trace_id,omitempty"`
	Degraded      bool               `json:"degraded"`
	// Rejected counts documents the saturated scorer pool keyword-scored.
	Rejected int `json:"rejected,omitempty"`
}

// StepResponse is one reasoning step.
type StepResponse struct {
	Type       string         `json:"type"`
	Label      string         `json:"label"`
	Detail     string         `json:"detail,omitempty"`
	DurationMs float64        `json:"duration_ms"`
	Data       map[string]any `json:"data,omitempty"`
	At         time.Time      `json:"at"`
}

// TraceResponse is the body of GET /v1/traces/{id}.
type TraceResponse struct {
	ID          string             `json:"id"`
	Query       string             `json:"query"`
	Department  string             `json:"department"`
	UserID      string             `json:"user_id,omitempty"`
	WorkspaceID string             `json:"workspace_id,omitempty"`
	Steps       []StepResponse     `json:"steps"`
	Metrics     map[string]float64 `json:"metrics"`
	Completed   bool               `json:"completed"`
	StartedAt   time.Time          `json:"started_at"`
	EndedAt     time.Time          `json:"ended_at"`
	DurationMs  float64            `json:"duration_ms"`
}

// AssignDocument is one document submitted for partition tagging.
type AssignDocument struct {
	ID      string `json:"id"`
	Content string `json:"content"`
}

// AssignRequest is the body of POST /v1/partitions/assign.
type AssignRequest struct {
	Documents []AssignDocument `json:"documents"`
}

// AssignmentResponse is the partition of one document.
type AssignmentResponse struct {
	ID        string `json:"id"`
	Partition int    `json:"partition"`
}

// AssignResponse is the body of a successful POST /v1/partitions/assign.
type AssignResponse struct {
	Partitions  int                  `json:"partitions"`
	Assignments []AssignmentResponse `json:"assignments"`
	Histogram   map[int]int          `json:"histogram"`
	Tagged      int                  `json:"tagged"`
	Failed      map[string]string    `json:"failed,omitempty"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status    string             `json:"status"`
	Version   string             `json:"version,omitempty"`
	Checks    map[string]string  `json:"checks"`
	LatencyMS map[string]float64 `json:"latency_ms,omitempty"`
}

func queryResponse(res answer.Result) QueryResponse {
	sources := make([]SourceResponse, len(res.Sources))
	for i, d := range res.Sources {
		sources[i] = sourceResponse(d)
	}
	return QueryResponse{
		Answer:        res.Answer,
		Sources:       sources,
		Confidence:    res.Confidence,
		ExecutedSteps: res.ExecutedSteps,
		Iterations:    res.Iterations,
		Metrics:       res.Metrics,
		TraceID:       res.TraceID,
		Degraded:      res.Degraded,
	}
}

func sourceResponse(d domain.Document) SourceResponse {
	return SourceResponse{ID: d.ID, Content: d.Content, Metadata: d.Metadata}
}

func traceResponse(t *trace.Trace) TraceResponse {
	steps := make([]StepResponse, len(t.Steps))
	for i, s := range t.Steps {
		steps[i] = StepResponse{
			Type:       string(s.Type),
			Label:      s.Label,
			Detail:     s.Detail,
			DurationMs: float64(s.Duration.Microseconds()) / 1000,
			Data:       s.Data,
			At:         s.At,
		}
	}
	return TraceResponse{
		ID:          t.ID,
		Query:       t.Query,
		Department:  t.Department,
		UserID:      t.UserID,
		WorkspaceID: t.WorkspaceID,
		Steps:       steps,
		Metrics:     t.Metrics,
		Completed:   t.Completed,
		StartedAt:   t.StartedAt,
		EndedAt:     t.EndedAt,
		DurationMs:  float64(t.Duration().Microseconds()) / 1000,
	}
}
