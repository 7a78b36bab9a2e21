package vecrag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecrag/internal/db"
	dbRedis "github.com/kailas-cloud/vecrag/internal/db/redis"
	"github.com/kailas-cloud/vecrag/internal/domain"
	"github.com/kailas-cloud/vecrag/internal/domain/answer"
	"github.com/kailas-cloud/vecrag/internal/domain/grade"
	"github.com/kailas-cloud/vecrag/internal/domain/trace"
	documentrepo "github.com/kailas-cloud/vecrag/internal/repository/document"
	searchrepo "github.com/kailas-cloud/vecrag/internal/repository/search"
	gradeuc "github.com/kailas-cloud/vecrag/internal/usecase/grade"
	healthuc "github.com/kailas-cloud/vecrag/internal/usecase/health"
	"github.com/kailas-cloud/vecrag/internal/usecase/orchestrator"
	"github.com/kailas-cloud/vecrag/internal/usecase/partition"
	"github.com/kailas-cloud/vecrag/internal/usecase/rerank"
	routeuc "github.com/kailas-cloud/vecrag/internal/usecase/route"
	traceuc "github.com/kailas-cloud/vecrag/internal/usecase/trace"
	"github.com/kailas-cloud/vecrag/internal/version"
)

const (
	defaultReadinessTimeout    = 10 * time.Second
	defaultDimensions          = 1536
	defaultIndexName           = "vecrag:docs:idx"
	defaultKeyPrefix           = "vecrag:"
	defaultConfidenceThreshold = 0.8
)

// Internal interfaces for substitution in tests.
type pipeline interface {
	Execute(ctx context.Context, req orchestrator.Request) (answer.Result, *trace.Trace, error)
}

type traceStore interface {
	Get(id string) (*trace.Trace, bool)
}

type partitioner interface {
	Count() int
	Assign(doc domain.Document) int
	TagBatch(ctx context.Context, docs []domain.Document, tagger partition.Tagger) (partition.TagResult, error)
}

// Client is the vecrag SDK entry point.
type Client struct {
	store      db.Store
	pipeline   pipeline
	traces     traceStore
	partitions partitioner
	tagger     partition.Tagger
	healthSvc  healthUseCase
	release    func()
	obs        *observer
}

// New creates a Client, connects to Redis and ensures the corpus index.
// The provided context is used for the readiness check and index creation.
func New(ctx context.Context, opts ...Option) (*Client, error) {
	cfg := defaultClientConfig()
	for _, o := range opts {
		o.apply(cfg)
	}

	if len(cfg.addrs) == 0 {
		return nil, errors.New("vecrag: database address required (use WithRedis)")
	}
	if cfg.embedder == nil {
		return nil, errors.New("vecrag: embedder required (use WithEmbedder)")
	}

	obs, err := newObserver(cfg.logger, cfg.metricsReg)
	if err != nil {
		return nil, err
	}

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.addrs,
		Password: cfg.password,
	})
	if err != nil {
		return nil, fmt.Errorf("vecrag: create redis store: %w", err)
	}

	if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("vecrag: database not ready: %w", err)
	}

	c, err := wireClient(ctx, store, cfg, obs)
	if err != nil {
		store.Close()
		return nil, err
	}
	return c, nil
}

func wireClient(ctx context.Context, store db.Store, cfg *clientConfig, obs *observer) (*Client, error) {
	log := zap.NewNop()

	emb := &embedderAdapter{inner: cfg.embedder}
	var chat domain.ChatModel
	checkers := map[string]healthuc.Checker{"embedding": emb}
	if cfg.chat != nil {
		ca := &chatAdapter{inner: cfg.chat}
		chat = ca
		checkers["chat"] = ca
	}

	docPrefix := cfg.keyPrefix + "doc:"
	docRepo := documentrepo.New(store, cfg.indexName, docPrefix)
	if err := docRepo.EnsureIndex(ctx, cfg.dimensions); err != nil {
		return nil, fmt.Errorf("vecrag: ensure index: %w", err)
	}
	searchRepo := searchrepo.New(store, emb, cfg.indexName, docPrefix)

	assigner, err := partition.New(cfg.partitions, partition.AlgorithmSHA256, log)
	if err != nil {
		return nil, fmt.Errorf("vecrag: %w", err)
	}

	scorer, err := rerank.New(rerank.Config{Mode: cfg.scoringMode}, emb, chat, log)
	if err != nil {
		return nil, fmt.Errorf("vecrag: %w", err)
	}

	grader, err := gradeuc.New(scorer, grade.DefaultThresholds(), log)
	if err != nil {
		scorer.Close()
		return nil, fmt.Errorf("vecrag: %w", err)
	}

	traces := traceuc.New(traceuc.Config{Enabled: cfg.tracing}, log)

	orch, err := orchestrator.New(orchestrator.Config{
		MaxIterations:             cfg.maxIterations,
		ConfidenceThreshold:       defaultConfidenceThreshold,
		TopK:                      cfg.topK,
		FallbackConsumesIteration: true,
		PartitionFanout:           cfg.partitionFanout,
		PartitionCount:            assigner.Count(),
	}, orchestrator.Deps{
		Router:    routeuc.New(routeuc.Options{HyDEEnabled: cfg.hyde}),
		Retriever: searchRepo,
		Keyword:   searchRepo,
		Scorer:    scorer,
		Grader:    grader,
		Chat:      chat,
		Traces:    traces,
		Logger:    log,
	})
	if err != nil {
		scorer.Close()
		return nil, fmt.Errorf("vecrag: %w", err)
	}

	return &Client{
		store:      store,
		pipeline:   orch,
		traces:     traces,
		partitions: assigner,
		tagger:     docRepo,
		healthSvc:  healthuc.New(store, checkers, healthuc.WithVersion(version.String())),
		release:    scorer.Close,
		obs:        obs,
	}, nil
}

// Close releases all resources.
func (c *Client) Close() {
	if c.release != nil {
		c.release()
	}
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks database connectivity.
func (c *Client) Ping(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { c.obs.observe("ping", start, err) }()

	if err = c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// Ask answers a query. A *CapacityError is returned together with a usable
// Answer when the scorer pool shed work.
func (c *Client) Ask(ctx context.Context, q Query) (ans Answer, err error) {
	start := time.Now()
	defer func() { c.obs.observe("ask", start, err) }()

	res, _, err := c.pipeline.Execute(ctx, orchestrator.Request{
		Query:       q.Text,
		Department:  q.Department,
		UserID:      q.UserID,
		WorkspaceID: q.WorkspaceID,
		Partition:   q.Partition,
	})
	ans = answerFromDomain(res)
	if err != nil {
		return ans, fmt.Errorf("ask: %w", err)
	}
	return ans, nil
}

// Trace returns the reasoning trace of a previous Ask.
func (c *Client) Trace(id string) (Trace, error) {
	t, ok := c.traces.Get(id)
	if !ok {
		return Trace{}, fmt.Errorf("trace %q: %w", id, ErrTraceNotFound)
	}
	return traceFromDomain(t), nil
}

// AssignPartitions computes each document's partition and persists it on
// documents already present in the store. Per-document persistence failures
// are reported in PartitionReport.Failed.
func (c *Client) AssignPartitions(ctx context.Context, docs []Document) (rep PartitionReport, err error) {
	start := time.Now()
	defer func() { c.obs.observe("partitions.assign", start, err) }()

	domDocs := documentsToDomain(docs)
	assignments := make(map[string]int, len(domDocs))
	for _, d := range domDocs {
		assignments[d.ID] = c.partitions.Assign(d)
	}

	res, err := c.partitions.TagBatch(ctx, domDocs, c.tagger)
	if err != nil {
		return PartitionReport{}, fmt.Errorf("assign partitions: %w", err)
	}
	return PartitionReport{
		Partitions:  c.partitions.Count(),
		Assignments: assignments,
		Histogram:   res.Histogram,
		Tagged:      res.Tagged,
		Failed:      res.Failed,
	}, nil
}
