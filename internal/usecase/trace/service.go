// Package trace records a replayable, step-by-step account of each request.
//
// A Handle is bound to the request context by Start and looked up by every
// other operation, so a request's steps can never leak into another trace even
// when stages fan out across goroutines. Operations on a context without a
// handle, or on a disabled Collector, do nothing.
package trace

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vecrag/internal/cache"
	"github.com/kailas-cloud/vecrag/internal/domain/trace"
	"github.com/kailas-cloud/vecrag/internal/logger"
	"github.com/kailas-cloud/vecrag/internal/metrics"
)

// Defaults used when Config leaves a field unset.
const (
	DefaultCacheSize = 1000
	DefaultTTL       = time.Hour
)

// Config controls the collector.
type Config struct {
	Enabled   bool
	CacheSize int
	TTL       time.Duration
}

// Collector creates handles and keeps finalized traces in a bounded cache.
type Collector struct {
	enabled bool
	store   *cache.Bounded[*trace.Trace]
	logger  *zap.Logger
	now     func() time.Time
}

// New creates a collector.
func New(cfg Config, log *zap.Logger) *Collector {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	c := &Collector{enabled: cfg.Enabled, logger: log, now: time.Now}
	if cfg.Enabled {
		c.store = cache.New[*trace.Trace](cfg.CacheSize, cfg.TTL, cache.WithEvictHook(func(n int) {
			metrics.TracesTotal.WithLabelValues("evicted").Add(float64(n))
		}))
	}
	return c
}

// Enabled reports whether tracing is on.
func (c *Collector) Enabled() bool { return c.enabled }

// Handle is the in-flight trace of one request.
type Handle struct {
	mu    sync.Mutex
	t     *trace.Trace
	ended bool
}

// ID returns the trace identifier, or "" for a nil handle.
func (h *Handle) ID() string {
	if h == nil {
		return ""
	}
	return h.t.ID
}

type handleKey struct{}

// HandleFromContext returns the handle bound to ctx, or nil.
func HandleFromContext(ctx context.Context) *Handle {
	h, _ := ctx.Value(handleKey{}).(*Handle)
	return h
}

// Start opens a trace and binds it to the returned context. The request logger
// gains a trace_id field.
func (c *Collector) Start(ctx context.Context, query, department, userID, workspaceID string) (context.Context, *Handle) {
	if !c.enabled {
		return ctx, nil
	}
	h := &Handle{t: &trace.Trace{
		ID:          uuid.NewString(),
		Query:       query,
		Department:  department,
		UserID:      userID,
		WorkspaceID: workspaceID,
		Metrics:     make(map[string]float64),
		StartedAt:   c.now(),
	}}
	metrics.TracesTotal.WithLabelValues("started").Inc()

	ctx = context.WithValue(ctx, handleKey{}, h)
	ctx = logger.With(ctx, zap.String("trace_id", h.t.ID))
	return ctx, h
}

// AddStep appends a step to the request's trace.
func (c *Collector) AddStep(
	ctx context.Context, typ trace.StepType, label, detail string, d time.Duration, data map[string]any,
) {
	if !c.enabled {
		return
	}
	h := HandleFromContext(ctx)
	if h == nil {
		return
	}

	step := trace.Step{Type: typ, Label: label, Detail: detail, Duration: d, Data: data, At: c.now()}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ended {
		return
	}
	h.t.Steps = append(h.t.Steps, step)
	metrics.TraceStepsTotal.WithLabelValues(string(typ)).Inc()
}

// AddMetric sets a numeric metric on the request's trace.
func (c *Collector) AddMetric(ctx context.Context, key string, value float64) {
	if !c.enabled {
		return
	}
	h := HandleFromContext(ctx)
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.ended {
		h.t.Metrics[key] = value
	}
}

// Timed runs fn and records its duration as a step of type typ. fn may set
// the step's Detail and Data. On error an ERROR step is recorded instead and
// the error is returned unchanged.
func (c *Collector) Timed(
	ctx context.Context, typ trace.StepType, label string, fn func(context.Context, *trace.Step) error,
) error {
	var step trace.Step
	start := time.Now()
	err := fn(ctx, &step)
	d := time.Since(start)

	if err != nil {
		c.AddStep(ctx, trace.Error, label, err.Error(), d, map[string]any{"stage": string(typ)})
		return err
	}
	c.AddStep(ctx, typ, label, step.Detail, d, step.Data)
	return nil
}

// End finalizes the trace, stores it and returns a copy. Further steps on the
// handle are ignored. Calling End twice returns the stored trace again.
func (c *Collector) End(ctx context.Context) *trace.Trace {
	if !c.enabled {
		return nil
	}
	h := HandleFromContext(ctx)
	if h == nil {
		return nil
	}

	h.mu.Lock()
	if h.ended {
		out := h.t.Clone()
		h.mu.Unlock()
		return out
	}
	h.ended = true
	h.t.Completed = true
	h.t.EndedAt = c.now()
	final := h.t.Clone()
	h.mu.Unlock()

	c.store.Set(final.ID, final)
	metrics.TracesTotal.WithLabelValues("completed").Inc()

	logger.FromContextOr(ctx, c.logger).Debug("Trace finalized",
		zap.Int("steps", len(final.Steps)),
		zap.Duration("duration", final.Duration()),
	)
	return final.Clone()
}

// Get returns a copy of a finalized trace.
func (c *Collector) Get(id string) (*trace.Trace, bool) {
	if !c.enabled {
		return nil, false
	}
	t, ok := c.store.Get(id)
	if !ok {
		return nil, false
	}
	return t.Clone(), true
}

// Len returns the number of stored traces.
func (c *Collector) Len() int {
	if !c.enabled {
		return 0
	}
	return c.store.Len()
}
