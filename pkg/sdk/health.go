package vecrag

import (
	"context"
	"time"

	healthuc "github.com/kailas-cloud/vecrag/internal/usecase/health"
)

// HealthStatus is the aggregated health of the store and model providers.
type HealthStatus struct {
	// Status is "ok", "degraded" or "error". Only a failing store yields "error".
	Status  string
	Version string
	// Checks maps component name to "ok" or "error".
	Checks  map[string]string
	Latency map[string]time.Duration
	// Errors holds the failure message of each failing component.
	Errors map[string]string
}

// Healthy reports whether every component passed.
func (h HealthStatus) Healthy() bool { return h.Status == string(healthuc.Healthy) }

// Health probes the store and the configured providers concurrently.
func (c *Client) Health(ctx context.Context) HealthStatus {
	r := c.healthSvc.Check(ctx)
	out := HealthStatus{
		Status:  string(r.Status),
		Version: r.Version,
		Checks:  make(map[string]string, len(r.Checks)),
		Latency: r.Latency,
		Errors:  r.Errors,
	}
	for name, res := range r.Checks {
		out.Checks[name] = string(res)
	}
	return out
}

type healthUseCase interface {
	Check(ctx context.Context) healthuc.Report
}
