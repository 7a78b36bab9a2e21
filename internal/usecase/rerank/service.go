package rerank

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vecrag/internal/cache"
	"github.com/kailas-cloud/vecrag/internal/domain"
	"github.com/kailas-cloud/vecrag/internal/logger"
	"github.com/kailas-cloud/vecrag/internal/metrics"
)

// Defaults used when Config leaves a field unset.
const (
	DefaultCacheSize    = 10000
	DefaultCacheTTL     = 10 * time.Minute
	DefaultPoolSize     = 16
	DefaultBatchTimeout = 5 * time.Second
)

// Config controls scorer construction.
type Config struct {
	Mode         string
	CacheSize    int
	CacheTTL     time.Duration
	PoolSize     int
	BatchTimeout time.Duration
}

// Stats is a snapshot of the scorer's running counters.
type Stats struct {
	CacheHits   int64
	CacheMisses int64
	Fallbacks   int64
	Rejected    int64
}

// Batch is the outcome of scoring one candidate set.
type Batch struct {
	Docs      []domain.ScoredDocument
	Mode      Mode
	CacheHits int
	Fallbacks map[string]int
	Rejected  int
}

// FallbackCount returns the number of documents scored by a degraded path.
func (b Batch) FallbackCount() int {
	n := 0
	for _, c := range b.Fallbacks {
		n += c
	}
	return n
}

// Degradation describes the batch fallbacks as one error, or nil when every
// document was scored by the resolved mode. The error matches domain.ErrParse,
// domain.ErrTimeout or domain.ErrUpstreamUnavailable for each reason present.
func (b Batch) Degradation() error {
	if b.FallbackCount() == 0 {
		return nil
	}
	reasons := make([]string, 0, len(b.Fallbacks))
	for r := range b.Fallbacks {
		reasons = append(reasons, r)
	}
	sort.Strings(reasons)

	errs := make([]error, 0, len(reasons))
	for _, r := range reasons {
		errs = append(errs, fmt.Errorf("%s on %d documents: %w", r, b.Fallbacks[r], reasonError(r)))
	}
	return fmt.Errorf("%s scoring degraded: %w", b.Mode, errors.Join(errs...))
}

var errFallback = errors.New("keyword fallback")

func reasonError(reason string) error {
	switch reason {
	case reasonParseError:
		return domain.ErrParse
	case reasonTimeout:
		return domain.ErrTimeout
	case reasonEmbedError, reasonChatError:
		return domain.ErrUpstreamUnavailable
	case reasonRejected:
		return domain.ErrCapacityExceeded
	default:
		return errFallback
	}
}

// Scorer ranks candidate documents against a query with a configured strategy.
// Safe for concurrent use.
type Scorer struct {
	strategy     strategy
	cache        *cache.Bounded[float64]
	pool         *ants.Pool
	batchTimeout time.Duration
	logger       *zap.Logger

	hits      atomic.Int64
	misses    atomic.Int64
	fallbacks atomic.Int64
	rejected  atomic.Int64
}

// New resolves the scoring mode and starts the worker pool.
// embedder and chat may be nil; modes that need them degrade to keyword scoring.
func New(cfg Config, embedder domain.Embedder, chat domain.ChatModel, log *zap.Logger) (*Scorer, error) {
	st, err := resolveStrategy(Mode(strings.ToLower(strings.TrimSpace(cfg.Mode))), embedder, chat)
	if err != nil {
		return nil, err
	}

	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = DefaultPoolSize
	}
	if cfg.BatchTimeout <= 0 {
		cfg.BatchTimeout = DefaultBatchTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}

	pool, err := ants.NewPool(cfg.PoolSize, ants.WithNonblocking(true))
	if err != nil {
		return nil, fmt.Errorf("create scoring pool: %w", err)
	}

	return &Scorer{
		strategy:     st,
		cache:        cache.New[float64](cfg.CacheSize, cfg.CacheTTL),
		pool:         pool,
		batchTimeout: cfg.BatchTimeout,
		logger:       log,
	}, nil
}

func resolveStrategy(mode Mode, embedder domain.Embedder, chat domain.ChatModel) (strategy, error) {
	switch mode {
	case ModeKeyword:
		return keywordStrategy{}, nil
	case ModeDedicated:
		return dedicatedStrategy{embedder: embedder}, nil
	case ModeLLMJudge:
		return llmJudgeStrategy{chat: chat}, nil
	case ModeAuto, "":
		if embedder != nil {
			return dedicatedStrategy{embedder: embedder}, nil
		}
		return keywordStrategy{}, nil
	default:
		return nil, domain.Validationf("unknown scoring mode %q", mode)
	}
}

// Mode returns the resolved scoring mode.
func (s *Scorer) Mode() Mode { return s.strategy.mode() }

// Close releases the worker pool.
func (s *Scorer) Close() {
	s.pool.Release()
}

// Rejected returns the total number of scoring tasks rejected by the pool.
func (s *Scorer) Rejected() int64 { return s.rejected.Load() }

// Stats returns the running counters.
func (s *Scorer) Stats() Stats {
	return Stats{
		CacheHits:   s.hits.Load(),
		CacheMisses: s.misses.Load(),
		Fallbacks:   s.fallbacks.Load(),
		Rejected:    s.rejected.Load(),
	}
}

// Score ranks candidates by descending relevance. Equal scores keep input order.
// When the pool rejects work the affected documents are keyword-scored and a
// *domain.CapacityError is returned together with the full ranking.
func (s *Scorer) Score(ctx context.Context, query, department string, candidates []domain.Document) ([]domain.ScoredDocument, error) {
	b, err := s.ScoreBatch(ctx, query, department, candidates)
	return b.Docs, err
}

type outcome struct {
	idx    int
	score  float64
	reason string
	ok     bool
}

// ScoreBatch is Score with per-batch accounting for tracing.
func (s *Scorer) ScoreBatch(ctx context.Context, query, department string, candidates []domain.Document) (Batch, error) {
	mode := s.strategy.mode()
	batch := Batch{Mode: mode, Fallbacks: map[string]int{}}
	if len(candidates) == 0 {
		return batch, nil
	}

	start := time.Now()
	defer func() {
		metrics.ScoreBatchDuration.WithLabelValues(string(mode)).Observe(time.Since(start).Seconds())
	}()

	qhash := queryHash(query)
	scores := make([]float64, len(candidates))
	done := make([]bool, len(candidates))
	var misses []int

	for i := range candidates {
		if v, ok := s.cache.Get(cacheKey(qhash, department, &candidates[i])); ok {
			scores[i] = v
			done[i] = true
			batch.CacheHits++
			continue
		}
		misses = append(misses, i)
	}
	s.hits.Add(int64(batch.CacheHits))
	s.misses.Add(int64(len(misses)))
	metrics.ScoreCacheTotal.WithLabelValues("hit").Add(float64(batch.CacheHits))
	metrics.ScoreCacheTotal.WithLabelValues("miss").Add(float64(len(misses)))

	if len(misses) > 0 {
		s.scoreMisses(ctx, query, qhash, department, candidates, misses, scores, &batch)
	}

	batch.Docs = rank(candidates, scores)

	if n := batch.FallbackCount(); n > 0 {
		s.fallbacks.Add(int64(n))
		logger.FromContextOr(ctx, s.logger).Warn("Scoring degraded",
			zap.String("mode", string(mode)),
			zap.Int("documents", len(candidates)),
			zap.Any("fallbacks", batch.Fallbacks),
		)
	}

	if batch.Rejected > 0 {
		s.rejected.Add(int64(batch.Rejected))
		metrics.ScorePoolRejectedTotal.Add(float64(batch.Rejected))
		return batch, domain.NewCapacityError(batch.Rejected)
	}
	return batch, nil
}

func (s *Scorer) scoreMisses(
	ctx context.Context,
	query, qhash, department string,
	candidates []domain.Document,
	misses []int,
	scores []float64,
	batch *Batch,
) {
	mode := s.strategy.mode()
	taskCtx, cancel := context.WithTimeout(ctx, s.batchTimeout)
	defer cancel()

	state := s.strategy.prepare(taskCtx, query)

	// Buffered to len(misses) so late workers never block after the deadline.
	results := make(chan outcome, len(misses))
	pending := make(map[int]struct{}, len(misses))

	fallback := func(i int, reason string) {
		scores[i] = KeywordScore(query, candidates[i])
		batch.Fallbacks[reason]++
		metrics.ScoreFallbackTotal.WithLabelValues(string(mode), reason).Inc()
	}

	for _, i := range misses {
		doc := candidates[i]
		idx := i
		err := s.pool.Submit(func() {
			defer func() {
				if r := recover(); r != nil {
					results <- outcome{idx: idx, reason: reasonPanic}
				}
			}()
			v, reason, ok := s.strategy.score(taskCtx, state, query, doc)
			if !ok && taskCtx.Err() != nil {
				reason = reasonTimeout
			}
			results <- outcome{idx: idx, score: v, reason: reason, ok: ok}
		})
		if err != nil {
			if !errors.Is(err, ants.ErrPoolOverload) {
				s.logger.Warn("Scoring task submission failed", zap.Error(err))
			}
			batch.Rejected++
			fallback(idx, reasonRejected)
			continue
		}
		pending[idx] = struct{}{}
	}

	for len(pending) > 0 {
		select {
		case r := <-results:
			delete(pending, r.idx)
			if !r.ok {
				fallback(r.idx, r.reason)
				continue
			}
			scores[r.idx] = r.score
			if r.reason != "" {
				// Neutral judge score: kept but not cached.
				batch.Fallbacks[r.reason]++
				metrics.ScoreFallbackTotal.WithLabelValues(string(mode), r.reason).Inc()
				continue
			}
			s.cache.Set(cacheKey(qhash, department, &candidates[r.idx]), r.score)
		case <-taskCtx.Done():
			for idx := range pending {
				fallback(idx, reasonTimeout)
			}
			return
		}
	}
}

func rank(candidates []domain.Document, scores []float64) []domain.ScoredDocument {
	out := make([]domain.ScoredDocument, len(candidates))
	for i := range candidates {
		out[i] = domain.ScoredDocument{Document: candidates[i], Score: scores[i]}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

// NormalizeQuery lowercases and collapses whitespace.
func NormalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

func queryHash(q string) string {
	sum := sha256.Sum256([]byte(NormalizeQuery(q)))
	return hex.EncodeToString(sum[:])
}

// cacheKey scopes a score to query, department and document. Documents without
// an ID are identified by their content digest.
func cacheKey(qhash, department string, doc *domain.Document) string {
	id := doc.ID
	if id == "" {
		sum := sha256.Sum256([]byte(doc.Content))
		id = "sha256:" + hex.EncodeToString(sum[:8])
	}
	return qhash + "|" + department + "|" + id
}
