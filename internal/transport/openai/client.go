// Package openai adapts OpenAI-compatible endpoints to the domain Embedder
// and ChatModel contracts.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/kailas-cloud/vecrag/internal/domain"
	"github.com/kailas-cloud/vecrag/internal/metrics"
)

// Config holds the provider settings shared by the embedder and chat model.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Dimensions  int     // embeddings only
	Temperature float32 // chat only
	User        string
	Logger      *zap.Logger
}

// endpoint is the state and bookkeeping common to both providers.
type endpoint struct {
	client *openai.Client
	kind   string
	model  string
	user   string
	failed error // provider sentinel wrapped into every failure
	logger *zap.Logger
}

func newEndpoint(cfg *Config, kind string, failed error) endpoint {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return endpoint{
		client: openai.NewClientWithConfig(oc),
		kind:   kind,
		model:  cfg.Model,
		user:   cfg.User,
		failed: failed,
		logger: log.With(zap.String("provider_kind", kind), zap.String("model", cfg.Model)),
	}
}

// HealthCheck lists models, which costs no tokens.
func (e *endpoint) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("%s health: %w", e.kind, e.wrap(err))
	}
	return nil
}

// fail records a failed call and returns it wrapped for error mapping.
func (e *endpoint) fail(reason string, err error) error {
	metrics.LLMRequestsTotal.WithLabelValues(e.kind, e.model, "error").Inc()
	metrics.LLMErrorsTotal.WithLabelValues(e.kind, e.model, reason).Inc()
	e.logger.Debug("Provider call failed", zap.String("reason", reason), zap.Error(err))
	return e.wrap(err)
}

func (e *endpoint) succeed(start time.Time, tokens map[string]int) {
	metrics.LLMRequestsTotal.WithLabelValues(e.kind, e.model, "success").Inc()
	metrics.LLMRequestDuration.WithLabelValues(e.kind, e.model).Observe(time.Since(start).Seconds())
	for typ, n := range tokens {
		if n > 0 {
			metrics.LLMTokensTotal.WithLabelValues(e.kind, e.model, typ).Add(float64(n))
		}
	}
}

// wrap attaches the provider sentinel, and ErrTimeout for deadline failures,
// with the most useful detail the API returned.
func (e *endpoint) wrap(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s call: %w: %w", e.kind, domain.ErrTimeout, e.failed)
	}
	if status, detail, ok := apiFailure(err); ok {
		return fmt.Errorf("%s API error %d: %s: %w", e.kind, status, detail, e.failed)
	}
	return fmt.Errorf("%s request failed: %v: %w", e.kind, err, e.failed)
}

func apiFailure(err error) (status int, detail string, ok bool) {
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail = extractDetail(reqErr.Body)
		if detail == "" {
			detail = string(reqErr.Body)
		}
		return reqErr.HTTPStatusCode, detail, true
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode, apiErr.Message, true
	}
	return 0, "", false
}

// failureReason is the LLMErrorsTotal label for err.
func failureReason(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	status, _, ok := apiFailure(err)
	switch {
	case !ok:
		return "transport"
	case status == http.StatusTooManyRequests:
		return "rate_limited"
	case status >= 500:
		return "server_error"
	default:
		return "api_error"
	}
}

// extractDetail reads the "detail" field some compatible providers use
// instead of the OpenAI error envelope.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) != nil {
		return ""
	}
	return parsed.Detail
}
