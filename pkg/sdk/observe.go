package vecrag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for vecrag_sdk_operations_total.
const (
	outcomeOK       = "ok"
	outcomeInvalid  = "invalid"
	outcomeCapacity = "capacity"
	outcomeTimeout  = "timeout"
	outcomeCanceled = "canceled"
	outcomeUpstream = "upstream"
	outcomeNotFound = "not_found"
	outcomeError    = "error"
)

// classify maps an operation error to a bounded label value.
func classify(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, ErrValidation):
		return outcomeInvalid
	case errors.Is(err, ErrCapacityExceeded):
		return outcomeCapacity
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return outcomeTimeout
	case errors.Is(err, context.Canceled):
		return outcomeCanceled
	case errors.Is(err, ErrUpstreamUnavailable):
		return outcomeUpstream
	case errors.Is(err, ErrTraceNotFound):
		return outcomeNotFound
	default:
		return outcomeError
	}
}

type sdkMetrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

func newSDKMetrics(reg prometheus.Registerer) (*sdkMetrics, error) {
	ops, err := registerShared(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vecrag",
		Subsystem: "sdk",
		Name:      "operations_total",
		Help:      "Embedded client operations by outcome.",
	}, []string{"operation", "outcome"}))
	if err != nil {
		return nil, err
	}
	lat, err := registerShared(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "vecrag",
		Subsystem: "sdk",
		Name:      "operation_duration_seconds",
		Help:      "Embedded client operation latency.",
		Buckets:   []float64{0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"operation"}))
	if err != nil {
		return nil, err
	}
	return &sdkMetrics{operations: ops, latency: lat}, nil
}

// registerShared registers c, or returns the collector already registered
// under the same descriptor so several clients can share one registry.
func registerShared[T prometheus.Collector](reg prometheus.Registerer, c T) (T, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var dup prometheus.AlreadyRegisteredError
	if !errors.As(err, &dup) {
		return c, fmt.Errorf("vecrag: register metric: %w", err)
	}
	existing, ok := dup.ExistingCollector.(T)
	if !ok {
		return c, fmt.Errorf("vecrag: metric registered with a different type: %T", dup.ExistingCollector)
	}
	return existing, nil
}

// observer records client operations. A nil observer is a no-op.
type observer struct {
	logger  *slog.Logger
	metrics *sdkMetrics
}

func newObserver(logger *slog.Logger, reg prometheus.Registerer) (*observer, error) {
	o := &observer{logger: logger}
	if reg == nil {
		return o, nil
	}
	m, err := newSDKMetrics(reg)
	if err != nil {
		return nil, err
	}
	o.metrics = m
	return o, nil
}

func (o *observer) observe(op string, start time.Time, err error) {
	if o == nil {
		return
	}
	elapsed := time.Since(start)
	outcome := classify(err)

	if o.metrics != nil {
		o.metrics.operations.WithLabelValues(op, outcome).Inc()
		o.metrics.latency.WithLabelValues(op).Observe(elapsed.Seconds())
	}
	if o.logger == nil {
		return
	}
	attrs := []any{"op", op, "outcome", outcome, "elapsed", elapsed}
	switch outcome {
	case outcomeOK:
		o.logger.Debug("vecrag operation", attrs...)
	case outcomeInvalid, outcomeNotFound, outcomeCanceled:
		o.logger.Info("vecrag operation rejected", append(attrs, "error", err)...)
	default:
		o.logger.Warn("vecrag operation failed", append(attrs, "error", err)...)
	}
}
