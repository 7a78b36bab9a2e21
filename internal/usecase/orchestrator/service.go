// Package orchestrator runs the adaptive retrieval loop: route the query,
// retrieve, rerank, grade, then either generate or refine the query and try
// again within a bounded number of iterations.
//
// Collaborator failures never abort a request. Each failing stage records an
// ERROR step and continues with its degraded result. Only validation errors
// are returned without a result; scorer pool saturation is returned as a
// *domain.CapacityError alongside the best-effort result.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecrag/internal/domain"
	"github.com/kailas-cloud/vecrag/internal/domain/answer"
	"github.com/kailas-cloud/vecrag/internal/domain/grade"
	"github.com/kailas-cloud/vecrag/internal/domain/route"
	"github.com/kailas-cloud/vecrag/internal/domain/trace"
	"github.com/kailas-cloud/vecrag/internal/logger"
	"github.com/kailas-cloud/vecrag/internal/metrics"
	"github.com/kailas-cloud/vecrag/internal/usecase/rerank"
	tracing "github.com/kailas-cloud/vecrag/internal/usecase/trace"
)

// Defaults used when Config leaves a field unset.
const (
	DefaultTopK              = 8
	DefaultMaxQueryLength    = 4096
	DefaultGenerationTimeout = 60 * time.Second
)

// Terminal outcomes, used as metric labels.
const (
	outcomeDirect        = "direct"
	outcomeRetrieved     = "retrieved"
	outcomeEarlyExit     = "early_exit"
	outcomeMaxIterations = "max_iterations"
)

var errNoChat = errors.New("chat model not configured")

// Router picks a retrieval strategy.
type Router interface {
	Route(query string) route.Decision
}

// Scorer reranks candidates.
type Scorer interface {
	ScoreBatch(ctx context.Context, query, department string, candidates []domain.Document) (rerank.Batch, error)
}

// Grader classifies scored candidates.
type Grader interface {
	GradeScored(ctx context.Context, scored []domain.ScoredDocument) ([]grade.Result, grade.Decision)
}

// Config bounds the loop.
type Config struct {
	MaxIterations             int
	ConfidenceThreshold       float64
	TopK                      int
	FallbackConsumesIteration bool
	PartitionFanout           bool
	PartitionCount            int
	MaxQueryLength            int
	GenerationTimeout         time.Duration
}

// Deps are the collaborators. Keyword and Chat are optional.
type Deps struct {
	Router    Router
	Retriever domain.Retriever
	Keyword   domain.KeywordRetriever
	Scorer    Scorer
	Grader    Grader
	Chat      domain.ChatModel
	Traces    *tracing.Collector
	Logger    *zap.Logger
}

// Request is one query to answer.
type Request struct {
	Query       string
	Department  string
	UserID      string
	WorkspaceID string
	// Partition restricts retrieval to one corpus partition.
	Partition *int
}

// Orchestrator composes the pipeline stages.
type Orchestrator struct {
	cfg       Config
	router    Router
	retriever domain.Retriever
	keyword   domain.KeywordRetriever
	scorer    Scorer
	grader    Grader
	chat      domain.ChatModel
	traces    *tracing.Collector
	logger    *zap.Logger
}

// New validates dependencies and applies defaults.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Router == nil:
		return nil, errors.New("orchestrator: router is required")
	case deps.Retriever == nil:
		return nil, errors.New("orchestrator: retriever is required")
	case deps.Scorer == nil:
		return nil, errors.New("orchestrator: scorer is required")
	case deps.Grader == nil:
		return nil, errors.New("orchestrator: grader is required")
	case deps.Traces == nil:
		return nil, errors.New("orchestrator: trace collector is required")
	}
	if cfg.MaxIterations < 0 {
		return nil, domain.Validationf("max iterations must be >= 0, got %d", cfg.MaxIterations)
	}
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.MaxQueryLength <= 0 {
		cfg.MaxQueryLength = DefaultMaxQueryLength
	}
	if cfg.GenerationTimeout <= 0 {
		cfg.GenerationTimeout = DefaultGenerationTimeout
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	return &Orchestrator{
		cfg:       cfg,
		router:    deps.Router,
		retriever: deps.Retriever,
		keyword:   deps.Keyword,
		scorer:    deps.Scorer,
		grader:    deps.Grader,
		chat:      deps.Chat,
		traces:    deps.Traces,
		logger:    deps.Logger,
	}, nil
}

// Validate rejects malformed requests before any pipeline work.
func (o *Orchestrator) Validate(req Request) error {
	if !utf8.ValidString(req.Query) {
		return domain.Validationf("query is not valid UTF-8")
	}
	if strings.TrimSpace(req.Query) == "" {
		return domain.Validationf("query must not be empty")
	}
	if n := utf8.RuneCountInString(req.Query); n > o.cfg.MaxQueryLength {
		return domain.Validationf("query has %d characters, limit is %d", n, o.cfg.MaxQueryLength)
	}
	if strings.TrimSpace(req.Department) == "" {
		return domain.Validationf("department is required")
	}
	if p := req.Partition; p != nil && (*p < 0 || (o.cfg.PartitionCount > 0 && *p >= o.cfg.PartitionCount)) {
		return domain.Validationf("partition %d out of range [0, %d)", *p, o.cfg.PartitionCount)
	}
	return nil
}

// Execute answers req. The trace is nil when tracing is disabled.
func (o *Orchestrator) Execute(ctx context.Context, req Request) (answer.Result, *trace.Trace, error) {
	if err := o.Validate(req); err != nil {
		return answer.Result{}, nil, err
	}

	start := time.Now()
	ctx, h := o.traces.Start(ctx, req.Query, req.Department, req.UserID, req.WorkspaceID)
	ctx, usage := domain.NewContextWithUsage(ctx)
	r := &run{o: o, req: req, evidence: make(map[string]grade.Result)}

	var decision route.Decision
	_ = o.traces.Timed(ctx, trace.Routing, "route", func(_ context.Context, st *trace.Step) error {
		decision = o.router.Route(req.Query)
		st.Detail = string(decision.Strategy)
		st.Data = map[string]any{
			"confidence": decision.Confidence,
			"rationale":  decision.Rationale,
		}
		return nil
	})

	var (
		res     answer.Result
		outcome string
	)
	if decision.Strategy.NeedsRetrieval() {
		res, outcome = r.loop(ctx, decision.Strategy)
	} else {
		res, outcome = r.direct(ctx, decision.Confidence), outcomeDirect
	}

	tokens, embedCalls, chatCalls := usage.Snapshot()
	res.ExecutedSteps = r.executed
	res.Iterations = r.iterations
	res.Degraded = r.degraded
	res.TraceID = h.ID()
	res.Metrics = map[string]float64{
		"iterations":       float64(r.iterations),
		"candidates":       float64(r.retrieved),
		"sources":          float64(len(res.Sources)),
		"confidence":       res.Confidence,
		"embedding_tokens": float64(tokens),
		"embedding_calls":  float64(embedCalls),
		"chat_calls":       float64(chatCalls),
		"duration_ms":      float64(time.Since(start).Milliseconds()),
	}
	for k, v := range res.Metrics {
		o.traces.AddMetric(ctx, k, v)
	}

	metrics.OrchestratorIterations.Observe(float64(r.iterations))
	metrics.OrchestratorOutcomesTotal.WithLabelValues(outcome).Inc()
	tr := o.traces.End(ctx)

	logger.FromContextOr(ctx, o.logger).Info("Query answered",
		zap.String("strategy", string(decision.Strategy)),
		zap.String("outcome", outcome),
		zap.Int("iterations", r.iterations),
		zap.Int("sources", len(res.Sources)),
		zap.Bool("degraded", r.degraded),
		zap.Duration("duration", time.Since(start)),
	)

	if r.rejected > 0 {
		return res, tr, fmt.Errorf("orchestrate: %w", domain.NewCapacityError(r.rejected))
	}
	return res, tr, nil
}

// run is the mutable state of one Execute call.
type run struct {
	o          *Orchestrator
	req        Request
	executed   []string
	iterations int
	retrieved  int
	rejected   int
	degraded   bool
	// evidence is every graded document so far, best score per document.
	evidence map[string]grade.Result
	order    []string
}

func (r *run) record(ctx context.Context, typ trace.StepType, label, detail string, d time.Duration, data map[string]any) {
	r.o.traces.AddStep(ctx, typ, label, detail, d, data)
	switch typ {
	case trace.Routing, trace.Error, trace.PartitionDefense:
	default:
		r.executed = append(r.executed, string(typ))
	}
}

func (r *run) fail(ctx context.Context, stage trace.StepType, label string, err error, d time.Duration) {
	r.o.traces.AddStep(ctx, trace.Error, label, err.Error(), d, map[string]any{"stage": string(stage)})
	r.degrade(ctx, stage, err)
}

// degrade marks the run degraded without adding a step.
func (r *run) degrade(ctx context.Context, stage trace.StepType, err error) {
	r.degraded = true
	metrics.StageErrorsTotal.WithLabelValues(strings.ToLower(string(stage))).Inc()
	logger.FromContextOr(ctx, r.o.logger).Warn("Stage degraded",
		zap.String("stage", string(stage)),
		zap.Error(err),
	)
}

func (r *run) direct(ctx context.Context, confidence float64) answer.Result {
	start := time.Now()
	text, err := r.complete(ctx, directPrompt(r.req.Query))
	if err != nil {
		r.fail(ctx, trace.DirectResponse, "direct response", err, time.Since(start))
		text = fallbackGreeting
	}
	r.record(ctx, trace.DirectResponse, "direct response", "", time.Since(start), nil)
	return answer.Result{Answer: text, Confidence: confidence}
}

func (r *run) loop(ctx context.Context, strategy route.Strategy) (answer.Result, string) {
	kind := retrievalKind(strategy)
	query := r.req.Query
	freeFallbackUsed := false

	for {
		candidates := r.retrieve(ctx, kind, query)
		results, decision := r.assess(ctx, query, candidates)
		fallbackUsed := false

		for {
			if decision == grade.UseRetrieved {
				return r.generate(ctx, usable(results)), outcomeRetrieved
			}
			if u := usable(results); len(u) > 0 && confidence(u) >= r.o.cfg.ConfidenceThreshold {
				return r.generate(ctx, u), outcomeEarlyExit
			}
			if r.iterations >= r.o.cfg.MaxIterations {
				return r.generate(ctx, usable(r.bestEvidence())), outcomeMaxIterations
			}

			consumes := r.o.cfg.FallbackConsumesIteration
			if decision == grade.FallbackRetrieval && !fallbackUsed && (consumes || !freeFallbackUsed) {
				fallbackUsed = true
				if consumes {
					r.iterations++
				} else {
					freeFallbackUsed = true
				}
				extra := r.fallbackRetrieve(ctx, kind, query)
				candidates = mergeDocuments(candidates, extra)
				results, decision = r.assess(ctx, query, candidates)
				continue
			}

			r.iterations++
			query = r.rewrite(ctx, query)
			break
		}
	}
}

func retrievalKind(s route.Strategy) trace.StepType {
	switch s {
	case route.HyDE:
		return trace.HyDERetrieval
	case route.Keyword:
		return trace.KeywordRetrieval
	default:
		return trace.StandardRetrieval
	}
}

// assess reranks candidates, keeps the top K and grades them.
func (r *run) assess(ctx context.Context, query string, candidates []domain.Document) ([]grade.Result, grade.Decision) {
	var scored []domain.ScoredDocument
	if len(candidates) > 0 {
		start := time.Now()
		batch, err := r.o.scorer.ScoreBatch(ctx, query, r.req.Department, candidates)
		d := time.Since(start)
		if err != nil {
			var capErr *domain.CapacityError
			if errors.As(err, &capErr) {
				r.rejected += capErr.Rejected
			}
			r.fail(ctx, trace.Reranking, "rerank", err, d)
		} else if derr := batch.Degradation(); derr != nil {
			r.fail(ctx, trace.Reranking, "rerank", derr, d)
		}
		scored = batch.Docs
		if len(scored) > r.o.cfg.TopK {
			scored = scored[:r.o.cfg.TopK]
		}
		r.record(ctx, trace.Reranking, "rerank", string(batch.Mode), d, map[string]any{
			"candidates": len(candidates),
			"kept":       len(scored),
			"cache_hits": batch.CacheHits,
			"fallbacks":  batch.FallbackCount(),
			"rejected":   batch.Rejected,
		})
	}

	start := time.Now()
	results, decision := r.o.grader.GradeScored(ctx, scored)
	counts := map[grade.Grade]int{}
	for _, res := range results {
		counts[res.Grade]++
	}
	r.record(ctx, trace.Grading, "grade", string(decision), time.Since(start), map[string]any{
		"correct":    counts[grade.Correct],
		"ambiguous":  counts[grade.Ambiguous],
		"incorrect":  counts[grade.Incorrect],
		"confidence": confidence(usable(results)),
	})
	r.remember(results)
	return results, decision
}

func (r *run) remember(results []grade.Result) {
	for _, res := range results {
		key := documentKey(res.Document)
		prev, ok := r.evidence[key]
		if !ok {
			r.order = append(r.order, key)
		}
		if !ok || res.Score > prev.Score {
			r.evidence[key] = res
		}
	}
}

// bestEvidence returns everything graded so far, best score first.
func (r *run) bestEvidence() []grade.Result {
	out := make([]grade.Result, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.evidence[k])
	}
	sortResults(out)
	return out
}

func (r *run) rewrite(ctx context.Context, query string) string {
	start := time.Now()
	out, err := r.complete(ctx, rewritePrompt(r.req.Query, query))
	rewritten := firstLine(out)
	if err == nil && rewritten == "" {
		err = fmt.Errorf("empty rewrite: %w", domain.ErrParse)
	}
	if err != nil {
		r.fail(ctx, trace.QueryRewrite, "rewrite", err, time.Since(start))
		rewritten = query
	}
	r.record(ctx, trace.QueryRewrite, "rewrite", rewritten, time.Since(start), map[string]any{
		"iteration": r.iterations,
		"from":      query,
	})
	return rewritten
}

func (r *run) generate(ctx context.Context, evidence []grade.Result) answer.Result {
	sources := documentsOf(evidence)
	start := time.Now()
	if len(sources) == 0 {
		r.record(ctx, trace.Generation, "generate", "no usable evidence", time.Since(start), map[string]any{"sources": 0})
		return answer.Result{Answer: noEvidenceAnswer}
	}

	var text string
	err := r.o.traces.Timed(ctx, trace.Generation, "generate", func(ctx context.Context, st *trace.Step) error {
		out, err := r.complete(ctx, answerPrompt(r.req.Query, sources))
		if err != nil {
			return err
		}
		text = out
		st.Data = map[string]any{"sources": len(sources), "extractive": false}
		return nil
	})
	if err == nil {
		r.executed = append(r.executed, string(trace.Generation))
	} else {
		r.degrade(ctx, trace.Generation, err)
		text = extractiveAnswer(sources)
		r.record(ctx, trace.Generation, "generate", "extractive", time.Since(start), map[string]any{
			"sources":    len(sources),
			"extractive": true,
		})
	}
	return answer.Result{Answer: text, Sources: sources, Confidence: confidence(evidence)}
}

// complete calls the chat model under the generation timeout.
func (r *run) complete(ctx context.Context, prompt string) (string, error) {
	if r.o.chat == nil {
		return "", errNoChat
	}
	ctx, cancel := context.WithTimeout(ctx, r.o.cfg.GenerationTimeout)
	defer cancel()

	out, err := r.o.chat.Complete(ctx, prompt)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %w", domain.ErrTimeout, err)
		}
		return "", err
	}
	return strings.TrimSpace(out), nil
}
