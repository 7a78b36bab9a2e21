package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kailas-cloud/vecrag/internal/domain"
	"github.com/kailas-cloud/vecrag/internal/domain/grade"
	"github.com/kailas-cloud/vecrag/internal/domain/trace"
	gradeuc "github.com/kailas-cloud/vecrag/internal/usecase/grade"
)

// fanoutConcurrency caps concurrent partition searches per request.
const fanoutConcurrency = 8

// retrieve fetches candidates with the given strategy. HyDE and keyword
// failures degrade to standard vector retrieval.
func (r *run) retrieve(ctx context.Context, kind trace.StepType, query string) []domain.Document {
	switch kind {
	case trace.HyDERetrieval:
		start := time.Now()
		hypothetical, err := r.complete(ctx, hydePrompt(query))
		if err == nil && hypothetical == "" {
			err = fmt.Errorf("empty hypothetical document: %w", domain.ErrParse)
		}
		if err != nil {
			r.fail(ctx, trace.HyDERetrieval, "hyde expansion", err, time.Since(start))
			return r.search(ctx, trace.StandardRetrieval, query)
		}
		return r.search(ctx, trace.HyDERetrieval, query+"\n\n"+hypothetical)

	case trace.KeywordRetrieval:
		start := time.Now()
		docs, err := r.keywordSearch(ctx, query)
		if err != nil {
			r.fail(ctx, trace.KeywordRetrieval, "keyword retrieval", err, time.Since(start))
			return r.search(ctx, trace.StandardRetrieval, query)
		}
		r.retrieved += len(docs)
		r.record(ctx, trace.KeywordRetrieval, "retrieve", query, time.Since(start), map[string]any{"candidates": len(docs)})
		return docs

	default:
		return r.search(ctx, trace.StandardRetrieval, query)
	}
}

// search runs vector retrieval and records it as typ. Failure yields no candidates.
func (r *run) search(ctx context.Context, typ trace.StepType, text string) []domain.Document {
	start := time.Now()
	docs, err := r.vectorSearch(ctx, text)
	if err != nil {
		r.fail(ctx, typ, "vector retrieval", err, time.Since(start))
		docs = nil
	}
	r.retrieved += len(docs)
	r.record(ctx, typ, "retrieve", text, time.Since(start), map[string]any{"candidates": len(docs)})
	return docs
}

// fallbackRetrieve runs the alternate retrieval: keyword search after vector
// retrieval, vector search after keyword retrieval.
func (r *run) fallbackRetrieve(ctx context.Context, kind trace.StepType, query string) []domain.Document {
	start := time.Now()
	var (
		docs []domain.Document
		err  error
		via  string
	)
	if kind == trace.KeywordRetrieval {
		via = "vector"
		docs, err = r.vectorSearch(ctx, query)
	} else {
		via = "keyword"
		docs, err = r.keywordSearch(ctx, query)
	}
	if err != nil {
		r.fail(ctx, trace.FallbackRetrieval, "fallback retrieval", err, time.Since(start))
		docs = nil
	}
	r.retrieved += len(docs)
	r.record(ctx, trace.FallbackRetrieval, "retrieve", via, time.Since(start), map[string]any{
		"candidates": len(docs),
		"iteration":  r.iterations,
	})
	return docs
}

func (r *run) filters() domain.SearchFilters {
	return domain.SearchFilters{Department: r.req.Department, Partition: r.req.Partition}
}

func (r *run) keywordSearch(ctx context.Context, query string) ([]domain.Document, error) {
	if r.o.keyword == nil {
		return nil, domain.ErrKeywordSearchNotSupported
	}
	docs, err := r.o.keyword.KeywordSearch(ctx, query, r.filters(), r.o.cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	return docs, nil
}

func (r *run) vectorSearch(ctx context.Context, text string) ([]domain.Document, error) {
	cfg := r.o.cfg
	if cfg.PartitionFanout && r.req.Partition == nil && cfg.PartitionCount > 1 {
		return r.fanoutSearch(ctx, text)
	}
	docs, err := r.o.retriever.Search(ctx, text, r.filters(), cfg.TopK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return docs, nil
}

// fanoutSearch queries every partition for an equal share of K and
// interleaves the per-partition rankings, so that no single partition can
// fill the candidate set.
func (r *run) fanoutSearch(ctx context.Context, text string) ([]domain.Document, error) {
	start := time.Now()
	n := r.o.cfg.PartitionCount
	per := max(1, r.o.cfg.TopK/n)

	lists := make([][]domain.Document, n)
	errs := make([]error, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fanoutConcurrency)
	for p := 0; p < n; p++ {
		g.Go(func() error {
			filters := domain.SearchFilters{Department: r.req.Department, Partition: &p}
			lists[p], errs[p] = r.o.retriever.Search(gctx, text, filters, per)
			// Partition failures are collected, not propagated, so siblings keep running.
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, err := range errs {
		if err != nil {
			failed++
		}
	}
	if failed == n {
		return nil, fmt.Errorf("vector search: all %d partitions failed: %w", n, errors.Join(errs...))
	}
	if failed > 0 {
		r.fail(ctx, trace.PartitionDefense, "partition search",
			fmt.Errorf("%d of %d partitions failed: %w", failed, n, errors.Join(errs...)), time.Since(start))
	}

	merged := interleave(lists)
	histogram := make(map[string]int)
	for p, l := range lists {
		if len(l) > 0 {
			histogram[fmt.Sprint(p)] = len(l)
		}
	}
	r.record(ctx, trace.PartitionDefense, "partition fan-out", "", time.Since(start), map[string]any{
		"partitions":    n,
		"per_partition": per,
		"histogram":     histogram,
		"failed":        failed,
	})
	return merged, nil
}

// interleave takes rank 0 of every list, then rank 1, and so on, skipping duplicates.
func interleave(lists [][]domain.Document) []domain.Document {
	seen := make(map[string]struct{})
	var out []domain.Document
	for rank := 0; ; rank++ {
		found := false
		for _, l := range lists {
			if rank >= len(l) {
				continue
			}
			found = true
			k := documentKey(l[rank])
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, l[rank])
		}
		if !found {
			return out
		}
	}
}

func mergeDocuments(a, b []domain.Document) []domain.Document {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]domain.Document, 0, len(a)+len(b))
	for _, list := range [][]domain.Document{a, b} {
		for _, d := range list {
			k := documentKey(d)
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, d)
		}
	}
	return out
}

func documentKey(d domain.Document) string {
	if d.ID != "" {
		return d.ID
	}
	return "content:" + d.Content
}

func documentsOf(results []grade.Result) []domain.Document {
	if len(results) == 0 {
		return nil
	}
	out := make([]domain.Document, len(results))
	for i, r := range results {
		out[i] = r.Document
	}
	return out
}

func sortResults(rs []grade.Result) {
	sort.SliceStable(rs, func(i, j int) bool { return rs[i].Score > rs[j].Score })
}

func usable(rs []grade.Result) []grade.Result { return gradeuc.UsableDocuments(rs) }

func confidence(rs []grade.Result) float64 { return gradeuc.Confidence(rs) }
