// Package route classifies a query into a retrieval strategy before any
// retrieval happens. Routing is rule based and side-effect free apart from a
// decision counter.
package route

import (
	"regexp"
	"strings"

	"github.com/kailas-cloud/vecrag/internal/domain/route"
	"github.com/kailas-cloud/vecrag/internal/metrics"
)

var (
	greetings = map[string]struct{}{
		"hi": {}, "hello": {}, "hey": {}, "hiya": {}, "yo": {},
		"good morning": {}, "good afternoon": {}, "good evening": {},
		"thanks": {}, "thank you": {}, "thx": {}, "cheers": {},
		"bye": {}, "goodbye": {}, "ok": {}, "okay": {},
	}

	metaRe = regexp.MustCompile(`^(who|what) are you\b|^what can you do\b|^how do you work\b|^are you (a bot|an ai|human)\b|^help$`)

	quotedRe     = regexp.MustCompile(`"[^"]{2,}"|'[^']{2,}'`)
	ticketRe     = regexp.MustCompile(`\b[A-Z][A-Z0-9]{1,9}-\d+\b`)
	errorCodeRe  = regexp.MustCompile(`(?i)\b(?:e|err|error)[-_]?\d{2,}\b|\b0x[0-9a-f]{4,}\b`)
	conceptualRe = regexp.MustCompile(`^(why|how does|how do|how can|how should|explain|describe|what is the difference|compare)\b`)
)

// Options configures the router.
type Options struct {
	HyDEEnabled bool
}

// Router maps queries to strategies.
type Router struct {
	hyde bool
}

// New creates a router.
func New(opts Options) *Router {
	return &Router{hyde: opts.HyDEEnabled}
}

// Route returns the strategy for query.
func (r *Router) Route(query string) route.Decision {
	d := r.classify(query)
	metrics.RouteDecisionsTotal.WithLabelValues(string(d.Strategy)).Inc()
	return d
}

func (r *Router) classify(query string) route.Decision {
	trimmed := strings.TrimSpace(query)
	norm := normalize(trimmed)

	if _, ok := greetings[norm]; ok {
		return route.Decision{Strategy: route.NoRetrieval, Confidence: 0.95, Rationale: "greeting or acknowledgement"}
	}
	if isGreetingPrefix(norm) {
		return route.Decision{Strategy: route.NoRetrieval, Confidence: 0.8, Rationale: "short greeting"}
	}
	if metaRe.MatchString(norm) {
		return route.Decision{Strategy: route.NoRetrieval, Confidence: 0.9, Rationale: "question about the assistant"}
	}

	if quotedRe.MatchString(trimmed) {
		return route.Decision{Strategy: route.Keyword, Confidence: 0.85, Rationale: "quoted phrase"}
	}
	if ticketRe.MatchString(trimmed) || errorCodeRe.MatchString(trimmed) {
		return route.Decision{Strategy: route.Keyword, Confidence: 0.85, Rationale: "identifier lookup"}
	}

	if r.hyde && conceptualRe.MatchString(norm) {
		return route.Decision{Strategy: route.HyDE, Confidence: 0.7, Rationale: "conceptual question"}
	}
	return route.Decision{Strategy: route.Chunk, Confidence: 0.6, Rationale: "default top-k retrieval"}
}

// isGreetingPrefix matches up to three words led by a greeting, e.g. "hi there".
func isGreetingPrefix(norm string) bool {
	words := strings.Fields(norm)
	if len(words) == 0 || len(words) > 3 {
		return false
	}
	_, ok := greetings[words[0]]
	return ok
}

func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.TrimRight(s, "!?.,;: ")
	return strings.Join(strings.Fields(s), " ")
}
