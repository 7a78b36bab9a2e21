// Package partition assigns documents to corpus shards by content hash.
// Assignment depends only on content bytes, so it is stable across restarts
// and cannot be steered through metadata.
package partition

import (
	"context"
	"crypto/md5"  //nolint:gosec // shard selection, not security
	"crypto/sha1" //nolint:gosec // shard selection, not security
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash"
	"hash/fnv"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/vecrag/internal/domain"
)

// EmptyContentSentinel is hashed in place of blank content.
const EmptyContentSentinel = "__empty__"

// Supported digest algorithms.
const (
	AlgorithmSHA256 = "sha256"
	AlgorithmSHA1   = "sha1"
	AlgorithmMD5    = "md5"
)

// Tagger persists a document's partition id.
type Tagger interface {
	TagPartition(ctx context.Context, docID string, partition int) error
}

// Assigner maps documents to partitions in [0, count).
type Assigner struct {
	count     int
	newDigest func() hash.Hash
	algorithm string
	logger    *zap.Logger
}

// New creates an Assigner. An unknown algorithm falls back to FNV-1a over the same bytes.
func New(count int, algorithm string, logger *zap.Logger) (*Assigner, error) {
	if count < 1 {
		return nil, domain.Validationf("partition count must be >= 1, got %d", count)
	}

	a := &Assigner{count: count, algorithm: strings.ToLower(algorithm), logger: logger}
	switch a.algorithm {
	case AlgorithmSHA256, "":
		a.algorithm = AlgorithmSHA256
		a.newDigest = sha256.New
	case AlgorithmSHA1:
		a.newDigest = sha1.New
	case AlgorithmMD5:
		a.newDigest = md5.New
	default:
		logger.Warn("Unknown digest algorithm, using fnv-1a",
			zap.String("algorithm", algorithm))
		a.algorithm = "fnv1a"
		a.newDigest = func() hash.Hash { return fnv.New32a() }
	}
	return a, nil
}

// Count returns the number of partitions.
func (a *Assigner) Count() int { return a.count }

// Algorithm returns the effective digest algorithm.
func (a *Assigner) Algorithm() string { return a.algorithm }

// Assign returns the partition for a document.
func (a *Assigner) Assign(doc domain.Document) int {
	return a.AssignContent(doc.Content)
}

// AssignContent returns the partition for raw content.
func (a *Assigner) AssignContent(content string) int {
	if strings.TrimSpace(content) == "" {
		content = EmptyContentSentinel
	}
	h := a.newDigest()
	_, _ = h.Write([]byte(content))
	sum := h.Sum(nil)
	return int(binary.BigEndian.Uint32(sum[:4]) % uint32(a.count)) //nolint:gosec // count >= 1
}

// AssignAndTag writes the partition into the document metadata.
// changed is false when the document already carried the same value.
func (a *Assigner) AssignAndTag(doc *domain.Document) (partition int, changed bool) {
	p := a.Assign(*doc)
	return p, doc.SetMeta(domain.MetaPartition, strconv.Itoa(p))
}

// AssignBatch returns a partition -> document count histogram.
func (a *Assigner) AssignBatch(docs []domain.Document) map[int]int {
	hist := make(map[int]int, a.count)
	for i := range docs {
		hist[a.Assign(docs[i])]++
	}
	return hist
}

// TagResult summarizes a TagBatch run.
type TagResult struct {
	Histogram map[int]int
	Tagged    int
	Failed    map[string]string // doc id -> error
}

// TagBatch tags documents in memory and persists each partition through the tagger.
// A persistence failure is recorded per document and does not stop the batch.
func (a *Assigner) TagBatch(ctx context.Context, docs []domain.Document, tagger Tagger) (TagResult, error) {
	res := TagResult{Histogram: make(map[int]int, a.count)}
	for i := range docs {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("tag batch: %w", err)
		}
		p, _ := a.AssignAndTag(&docs[i])
		res.Histogram[p]++

		if tagger == nil {
			continue
		}
		if err := tagger.TagPartition(ctx, docs[i].ID, p); err != nil {
			if res.Failed == nil {
				res.Failed = make(map[string]string)
			}
			res.Failed[docs[i].ID] = err.Error()
			a.logger.Warn("Failed to persist partition tag",
				zap.String("doc_id", docs[i].ID), zap.Int("partition", p), zap.Error(err))
			continue
		}
		res.Tagged++
	}
	return res, nil
}
