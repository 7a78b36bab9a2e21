package health

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Status is the aggregated health.
type Status string

const (
	Healthy   Status = "ok"
	Degraded  Status = "degraded"
	Unhealthy Status = "error"
)

// CheckResult is one probe's outcome.
type CheckResult string

const (
	CheckOK    CheckResult = "ok"
	CheckError CheckResult = "error"
)

// DatabaseCheck names the store probe in reports.
const DatabaseCheck = "database"

const checkTimeout = 3 * time.Second

// Report is the outcome of one Check.
type Report struct {
	Status  Status
	Version string
	Checks  map[string]CheckResult
	Latency map[string]time.Duration
	// Errors holds the failure text of failing probes.
	Errors map[string]string
}

type probe struct {
	name     string
	critical bool
	run      func(context.Context) error
}

// Service probes the store and model providers.
type Service struct {
	probes  []probe
	version string
}

// New creates a Service. Nil checkers are skipped.
func New(db DBPinger, checkers map[string]Checker, opts ...Option) *Service {
	s := &Service{probes: []probe{{name: DatabaseCheck, critical: true, run: db.Ping}}}
	for name, c := range checkers {
		if c != nil {
			s.probes = append(s.probes, probe{name: name, run: c.HealthCheck})
		}
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Option configures a Service.
type Option func(*Service)

// WithVersion reports the build version alongside the checks.
func WithVersion(v string) Option {
	return func(s *Service) { s.version = v }
}

// Check runs every probe concurrently under one short deadline. A failing
// critical probe makes the report Unhealthy; any other failure Degraded.
func (s *Service) Check(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()

	rep := Report{
		Status:  Healthy,
		Version: s.version,
		Checks:  make(map[string]CheckResult, len(s.probes)),
		Latency: make(map[string]time.Duration, len(s.probes)),
		Errors:  map[string]string{},
	}
	var mu sync.Mutex
	var g errgroup.Group
	for _, p := range s.probes {
		g.Go(func() error {
			start := time.Now()
			err := p.run(ctx)
			elapsed := time.Since(start)

			mu.Lock()
			defer mu.Unlock()
			rep.Latency[p.name] = elapsed
			if err == nil {
				rep.Checks[p.name] = CheckOK
				return nil
			}
			rep.Checks[p.name] = CheckError
			rep.Errors[p.name] = err.Error()
			switch {
			case p.critical:
				rep.Status = Unhealthy
			case rep.Status == Healthy:
				rep.Status = Degraded
			}
			return nil
		})
	}
	_ = g.Wait()
	return rep
}
