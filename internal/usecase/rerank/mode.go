package rerank

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/kailas-cloud/vecrag/internal/domain"
)

// Mode names a scoring strategy as it appears in configuration.
type Mode string

// Supported modes.
const (
	ModeKeyword   Mode = "keyword"
	ModeDedicated Mode = "dedicated"
	ModeLLMJudge  Mode = "llm-judge"
	ModeAuto      Mode = "auto"
)

// NeutralScore is used when a judge response cannot be parsed.
const NeutralScore = 0.5

// Fallback reasons, used as metric labels and in batch reports.
const (
	reasonNoEmbedder = "no_embedder"
	reasonNoChat     = "no_chat"
	reasonEmbedError = "embed_error"
	reasonChatError  = "chat_error"
	reasonParseError = "parse_error"
	reasonTimeout    = "timeout"
	reasonRejected   = "rejected"
	reasonPanic      = "panic"
)

// strategy is the closed set of scoring variants, resolved once in New.
type strategy interface {
	mode() Mode
	// prepare runs once per batch before any document is scored.
	prepare(ctx context.Context, query string) batchState
	// score returns the document score, or a fallback reason when the keyword
	// heuristic must be used instead. A non-empty reason with ok=true marks a
	// degraded but accepted score (neutral judge score).
	score(ctx context.Context, st batchState, query string, doc domain.Document) (s float64, reason string, ok bool)
}

type batchState struct {
	queryVec []float32
	// degraded is set when prepare failed; every document uses keyword scoring.
	degraded string
}

type keywordStrategy struct{}

func (keywordStrategy) mode() Mode { return ModeKeyword }

func (keywordStrategy) prepare(context.Context, string) batchState { return batchState{} }

func (keywordStrategy) score(_ context.Context, _ batchState, query string, doc domain.Document) (float64, string, bool) {
	return KeywordScore(query, doc), "", true
}

type dedicatedStrategy struct {
	embedder domain.Embedder
}

func (dedicatedStrategy) mode() Mode { return ModeDedicated }

func (d dedicatedStrategy) prepare(ctx context.Context, query string) batchState {
	if d.embedder == nil {
		return batchState{degraded: reasonNoEmbedder}
	}
	res, err := d.embedder.Embed(ctx, query)
	if err != nil || len(res.Embedding) == 0 {
		return batchState{degraded: reasonEmbedError}
	}
	return batchState{queryVec: res.Embedding}
}

func (d dedicatedStrategy) score(ctx context.Context, st batchState, _ string, doc domain.Document) (float64, string, bool) {
	if st.degraded != "" {
		return 0, st.degraded, false
	}
	res, err := d.embedder.Embed(ctx, doc.Content)
	if err != nil || len(res.Embedding) != len(st.queryVec) {
		return 0, reasonEmbedError, false
	}
	return math.Max(0, cosine(st.queryVec, res.Embedding)), "", true
}

type llmJudgeStrategy struct {
	chat domain.ChatModel
}

func (llmJudgeStrategy) mode() Mode { return ModeLLMJudge }

func (l llmJudgeStrategy) prepare(context.Context, string) batchState {
	if l.chat == nil {
		return batchState{degraded: reasonNoChat}
	}
	return batchState{}
}

func (l llmJudgeStrategy) score(ctx context.Context, st batchState, query string, doc domain.Document) (float64, string, bool) {
	if st.degraded != "" {
		return 0, st.degraded, false
	}
	resp, err := l.chat.Complete(ctx, judgePrompt(query, doc.Content))
	if err != nil {
		return 0, reasonChatError, false
	}
	s, err := ParseJudgeScore(resp)
	if err != nil {
		return NeutralScore, reasonParseError, true
	}
	return s, "", true
}

func judgePrompt(query, content string) string {
	return fmt.Sprintf(`Rate how relevant the document is to the query on a scale from 0 to 1.
Respond with a single number and nothing else.

Query: %s

Document:
%s`, query, content)
}

var numberRe = regexp.MustCompile(`[-+]?(?:\d+\.?\d*|\.\d+)(?:[eE][-+]?\d+)?`)

// ParseJudgeScore extracts the first number in a judge response, clamped to [0,1].
// It returns an error wrapping domain.ErrParse when no number is present.
func ParseJudgeScore(resp string) (float64, error) {
	m := numberRe.FindString(resp)
	if m == "" {
		return 0, fmt.Errorf("judge response %q: %w", truncate(resp, 64), domain.ErrParse)
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsNaN(v) {
		return 0, fmt.Errorf("judge response %q: %w", truncate(resp, 64), domain.ErrParse)
	}
	return math.Min(1, math.Max(0, v)), nil
}

// KeywordScore is the share of distinct query terms present in the document,
// plus up to 0.1 for sparse-term metadata matches, clamped to [0,1].
func KeywordScore(query string, doc domain.Document) float64 {
	qterms := Terms(query)
	if len(qterms) == 0 {
		return 0
	}

	dterms := make(map[string]struct{})
	for _, t := range tokenize(doc.Content) {
		dterms[t] = struct{}{}
	}

	matched := 0
	for _, t := range qterms {
		if _, ok := dterms[t]; ok {
			matched++
		}
	}
	score := float64(matched) / float64(len(qterms))

	if sparse := doc.SparseTerms(); len(sparse) > 0 {
		var bonus float64
		for _, t := range qterms {
			bonus += sparse[t]
		}
		score += math.Min(0.1, math.Max(0, bonus)*0.1)
	}
	return math.Min(1, score)
}

// Terms returns the distinct lowercase query terms in first-seen order.
func Terms(s string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, t := range tokenize(s) {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func cosine(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
