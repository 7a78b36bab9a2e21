package chi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	gochi "github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vecrag/internal/domain"
	"github.com/kailas-cloud/vecrag/internal/domain/answer"
	"github.com/kailas-cloud/vecrag/internal/domain/trace"
	"github.com/kailas-cloud/vecrag/internal/logger"
	healthuc "github.com/kailas-cloud/vecrag/internal/usecase/health"
	"github.com/kailas-cloud/vecrag/internal/usecase/orchestrator"
	"github.com/kailas-cloud/vecrag/internal/usecase/partition"
)

const (
	maxAssignBatch = 500
	maxBodyBytes   = 4 << 20
)

// Orchestrator answers queries.
type Orchestrator interface {
	Execute(ctx context.Context, req orchestrator.Request) (answer.Result, *trace.Trace, error)
}

// TraceReader looks up finalized traces.
type TraceReader interface {
	Get(id string) (*trace.Trace, bool)
}

// Partitioner assigns and persists corpus partitions.
type Partitioner interface {
	Count() int
	Assign(doc domain.Document) int
	TagBatch(ctx context.Context, docs []domain.Document, tagger partition.Tagger) (partition.TagResult, error)
}

// HealthChecker aggregates dependency health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// Server is the HTTP surface of the retrieval pipeline.
type Server struct {
	orchestrator  Orchestrator
	traces        TraceReader
	partitions    Partitioner
	tagger        partition.Tagger
	health        HealthChecker
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. A nil tagger makes partition
// assignment compute-only.
func NewServer(
	orch Orchestrator,
	traces TraceReader,
	partitions Partitioner,
	tagger partition.Tagger,
	health HealthChecker,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		orchestrator:  orch,
		traces:        traces,
		partitions:    partitions,
		tagger:        tagger,
		health:        health,
		logger:        logger,
		errorHandlers: defaultErrorHandlers(),
	}
}

// Routes mounts the API on r.
func (s *Server) Routes(r gochi.Router) {
	r.Post("/v1/query", s.Query)
	r.Get("/v1/traces/{id}", s.GetTrace)
	r.Post("/v1/partitions/assign", s.AssignPartitions)
	r.Get("/health", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
}

// Query handles POST /v1/query.
func (s *Server) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	res, tr, err := s.orchestrator.Execute(r.Context(), orchestrator.Request{
		Query:       req.Query,
		Department:  req.Department,
		UserID:      req.UserID,
		WorkspaceID: req.WorkspaceID,
		Partition:   req.Partition,
	})
	if tr != nil {
		w.Header().Set("X-Trace-ID", tr.ID)
	}

	var capErr *domain.CapacityError
	switch {
	case errors.As(err, &capErr):
		// The answer is complete; some documents were keyword-scored instead.
		s.log(r).Warn("Scoring pool saturated", zap.Int("rejected", capErr.Rejected), zap.Error(err))
		body := queryResponse(res)
		body.Rejected = capErr.Rejected
		w.Header().Set("X-Rejected-Count", strconv.Itoa(capErr.Rejected))
		w.Header().Set("Retry-After", "1")
		setUsageHeaders(w, res.Metrics)
		writeJSON(w, http.StatusServiceUnavailable, body)
	case err != nil:
		s.handleDomainError(w, r, err)
	default:
		setUsageHeaders(w, res.Metrics)
		writeJSON(w, http.StatusOK, queryResponse(res))
	}
}

// GetTrace handles GET /v1/traces/{id}.
func (s *Server) GetTrace(w http.ResponseWriter, r *http.Request) {
	id := gochi.URLParam(r, "id")
	t, ok := s.traces.Get(id)
	if !ok {
		s.handleDomainError(w, r, fmt.Errorf("trace %q: %w", id, domain.ErrTraceNotFound))
		return
	}
	writeJSON(w, http.StatusOK, traceResponse(t))
}

// AssignPartitions handles POST /v1/partitions/assign.
func (s *Server) AssignPartitions(w http.ResponseWriter, r *http.Request) {
	var req AssignRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if len(req.Documents) == 0 {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed, "documents must not be empty")
		return
	}
	if len(req.Documents) > maxAssignBatch {
		writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed,
			fmt.Sprintf("batch size %d exceeds maximum %d", len(req.Documents), maxAssignBatch))
		return
	}

	docs := make([]domain.Document, len(req.Documents))
	assignments := make([]AssignmentResponse, len(req.Documents))
	for i, d := range req.Documents {
		if strings.TrimSpace(d.ID) == "" {
			writeError(w, http.StatusBadRequest, ErrorCodeValidationFailed,
				fmt.Sprintf("documents[%d].id is required", i))
			return
		}
		docs[i] = domain.Document{ID: d.ID, Content: d.Content}
		assignments[i] = AssignmentResponse{ID: d.ID, Partition: s.partitions.Assign(docs[i])}
	}

	result, err := s.partitions.TagBatch(r.Context(), docs, s.tagger)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AssignResponse{
		Partitions:  s.partitions.Count(),
		Assignments: assignments,
		Histogram:   result.Histogram,
		Tagged:      result.Tagged,
		Failed:      result.Failed,
	})
}

// HealthCheck handles GET /health. Only a store outage is 503; a failing
// model provider reports degraded with 200.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	resp := HealthResponse{
		Status:    string(report.Status),
		Version:   report.Version,
		Checks:    make(map[string]string, len(report.Checks)),
		LatencyMS: make(map[string]float64, len(report.Latency)),
	}
	for name, res := range report.Checks {
		resp.Checks[name] = string(res)
	}
	for name, d := range report.Latency {
		resp.LatencyMS[name] = float64(d.Microseconds()) / 1000
	}
	if len(report.Errors) > 0 {
		s.log(r).Warn("health probes failing", zap.Any("errors", report.Errors))
	}

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, resp)
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (s *Server) log(r *http.Request) *zap.Logger {
	return logger.FromContextOr(r.Context(), s.logger)
}

func setUsageHeaders(w http.ResponseWriter, m map[string]float64) {
	if v, ok := m["embedding_tokens"]; ok && v > 0 {
		w.Header().Set("X-Embedding-Tokens", strconv.Itoa(int(v)))
	}
	if v, ok := m["chat_calls"]; ok && v > 0 {
		w.Header().Set("X-Chat-Calls", strconv.Itoa(int(v)))
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}
