package health

import "context"

// DBPinger is the corpus store. Its failure makes the service unhealthy.
type DBPinger interface {
	Ping(ctx context.Context) error
}

// Checker is a model provider. Its failure only degrades answers, since
// every pipeline stage has a keyword or extractive fallback.
type Checker interface {
	HealthCheck(ctx context.Context) error
}
