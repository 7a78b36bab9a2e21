package health

import (
	"context"
	"errors"
	"testing"
	"time"
)

type pingerFunc func(context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

type checkerFunc func(context.Context) error

func (f checkerFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func ok(context.Context) error { return nil }

func failing(msg string) func(context.Context) error {
	return func(context.Context) error { return errors.New(msg) }
}

func TestCheck_Aggregation(t *testing.T) {
	tests := []struct {
		name     string
		db       func(context.Context) error
		checkers map[string]Checker
		want     Status
		failed   []string
	}{
		{
			name:     "all healthy",
			db:       ok,
			checkers: map[string]Checker{"embedding": checkerFunc(ok), "chat": checkerFunc(ok)},
			want:     Healthy,
		},
		{
			name:     "database down wins over degraded",
			db:       failing("conn refused"),
			checkers: map[string]Checker{"embedding": checkerFunc(failing("timeout"))},
			want:     Unhealthy,
			failed:   []string{DatabaseCheck, "embedding"},
		},
		{
			name:     "chat down degrades",
			db:       ok,
			checkers: map[string]Checker{"embedding": checkerFunc(ok), "chat": checkerFunc(failing("503"))},
			want:     Degraded,
			failed:   []string{"chat"},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := New(pingerFunc(tc.db), tc.checkers).Check(context.Background())

			if r.Status != tc.want {
				t.Errorf("status = %q, want %q", r.Status, tc.want)
			}
			if len(r.Checks) != len(tc.checkers)+1 {
				t.Errorf("checks = %v", r.Checks)
			}
			for _, name := range tc.failed {
				if r.Checks[name] != CheckError || r.Errors[name] == "" {
					t.Errorf("%s: result %q error %q", name, r.Checks[name], r.Errors[name])
				}
			}
			if len(r.Errors) != len(tc.failed) {
				t.Errorf("errors = %v, want %d entries", r.Errors, len(tc.failed))
			}
		})
	}
}

func TestCheck_NilCheckerSkipped(t *testing.T) {
	var nilChecker Checker
	r := New(pingerFunc(ok), map[string]Checker{"embedding": nilChecker}).Check(context.Background())

	if r.Status != Healthy {
		t.Errorf("expected %q, got %q", Healthy, r.Status)
	}
	if _, found := r.Checks["embedding"]; found {
		t.Error("nil checker should not be reported")
	}
}

func TestCheck_BoundedAndConcurrent(t *testing.T) {
	hang := func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	r := New(pingerFunc(hang), map[string]Checker{"chat": checkerFunc(hang)}).Check(ctx)

	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("probes ran sequentially or ignored the deadline: %v", elapsed)
	}
	if r.Status != Unhealthy {
		t.Errorf("status = %q, want %q", r.Status, Unhealthy)
	}
	if r.Latency[DatabaseCheck] <= 0 {
		t.Errorf("expected database latency, got %v", r.Latency)
	}
}

func TestCheck_Version(t *testing.T) {
	r := New(pingerFunc(ok), nil, WithVersion("1.4.0")).Check(context.Background())
	if r.Version != "1.4.0" {
		t.Errorf("version = %q", r.Version)
	}
}
