// Package embcache memoizes embeddings in the corpus store so repeated
// queries and rewrites do not pay for the provider twice.
package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kailas-cloud/vecrag/internal/db"
	"github.com/kailas-cloud/vecrag/internal/domain"
	"github.com/kailas-cloud/vecrag/internal/logger"
)

type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Config scopes the cache. Model is part of every key, so switching models
// never serves vectors from another embedding space.
type Config struct {
	KeyPrefix string
	Model     string
	TTL       time.Duration
	// Lookups counts results under label "result": hit, miss or shared.
	Lookups *prometheus.CounterVec
	Logger  *zap.Logger
}

// CachedEmbedder decorates an embedder with a store-backed cache. Concurrent
// misses for the same text share one provider call.
type CachedEmbedder struct {
	inner   domain.Embedder
	store   store
	prefix  string
	ttl     time.Duration
	lookups *prometheus.CounterVec
	logger  *zap.Logger
	flight  singleflight.Group
}

// New wraps inner.
func New(inner domain.Embedder, s store, cfg Config) *CachedEmbedder {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &CachedEmbedder{
		inner:   inner,
		store:   s,
		prefix:  cfg.KeyPrefix + "emb:" + cfg.Model + ":",
		ttl:     cfg.TTL,
		lookups: cfg.Lookups,
		logger:  cfg.Logger,
	}
}

// Embed serves from cache when possible. A hit reports zero tokens, so usage
// accounting only reflects provider calls.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) (domain.EmbeddingResult, error) {
	key := c.key(text)
	log := logger.FromContextOr(ctx, c.logger)

	if vec, ok := c.load(ctx, key, log); ok {
		c.count("hit")
		return domain.EmbeddingResult{Embedding: vec}, nil
	}

	leader := false
	v, err, _ := c.flight.Do(key, func() (any, error) {
		leader = true
		res, err := c.inner.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		c.save(ctx, key, res.Embedding, log)
		return res, nil
	})
	if err != nil {
		return domain.EmbeddingResult{}, fmt.Errorf("embed text: %w", err)
	}
	res := v.(domain.EmbeddingResult)
	if !leader {
		// Only the caller that hit the provider is billed.
		c.count("shared")
		return domain.EmbeddingResult{Embedding: res.Embedding}, nil
	}
	c.count("miss")
	return res, nil
}

// HealthCheck delegates when the inner embedder can check itself.
func (c *CachedEmbedder) HealthCheck(ctx context.Context) error {
	if hc, ok := c.inner.(domain.HealthChecker); ok {
		return hc.HealthCheck(ctx)
	}
	return nil
}

func (c *CachedEmbedder) count(result string) {
	if c.lookups != nil {
		c.lookups.WithLabelValues(result).Inc()
	}
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return c.prefix + base64.RawURLEncoding.EncodeToString(sum[:])
}

func (c *CachedEmbedder) load(ctx context.Context, key string, log *zap.Logger) ([]float32, bool) {
	data, err := c.store.Get(ctx, key)
	switch {
	case errors.Is(err, db.ErrKeyNotFound):
		return nil, false
	case err != nil:
		log.Warn("Embedding cache read failed", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	vec, err := decodeVector(data)
	if err != nil {
		log.Warn("Discarding corrupt cached embedding", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return vec, true
}

func (c *CachedEmbedder) save(ctx context.Context, key string, vec []float32, log *zap.Logger) {
	if len(vec) == 0 {
		return
	}
	if err := c.store.SetWithTTL(ctx, key, encodeVector(vec), c.ttl); err != nil {
		log.Warn("Embedding cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// Cached vectors are a uint32 component count followed by little-endian
// float32 components.
const headerLen = 4

func encodeVector(v []float32) []byte {
	buf := make([]byte, headerLen+4*len(v))
	binary.LittleEndian.PutUint32(buf, uint32(len(v)))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[headerLen+4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(data []byte) ([]float32, error) {
	if len(data) < headerLen {
		return nil, fmt.Errorf("cached embedding too short: %d bytes", len(data))
	}
	n := int(binary.LittleEndian.Uint32(data))
	if n == 0 || len(data) != headerLen+4*n {
		return nil, fmt.Errorf("cached embedding declares %d components in %d bytes", n, len(data))
	}
	vec := make([]float32, n)
	body := data[headerLen:]
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[4*i:]))
	}
	return vec, nil
}
