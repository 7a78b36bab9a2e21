package domain

import (
	"strconv"
	"strings"
)

// Metadata keys read by the pipeline.
const (
	MetaDepartment  = "department"
	MetaSource      = "source"
	MetaPartition   = "partition"
	MetaSparseTerms = "sparse_terms" // comma-separated "term:weight" pairs
)

// Document is a retrievable unit of evidence owned by the ingestion collaborator.
// The pipeline only reads it, except for the partition metadata key.
type Document struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// Department returns the department the document belongs to.
func (d *Document) Department() string { return d.Metadata[MetaDepartment] }

// Source returns the document source (file name, URL, etc.).
func (d *Document) Source() string { return d.Metadata[MetaSource] }

// SetMeta writes a metadata value and reports whether it changed.
func (d *Document) SetMeta(key, value string) bool {
	if d.Metadata == nil {
		d.Metadata = make(map[string]string, 1)
	}
	if cur, ok := d.Metadata[key]; ok && cur == value {
		return false
	}
	d.Metadata[key] = value
	return true
}

// SparseTerms parses the optional sparse-term weights from metadata.
// Malformed pairs are skipped.
func (d *Document) SparseTerms() map[string]float64 {
	raw := d.Metadata[MetaSparseTerms]
	if raw == "" {
		return nil
	}
	out := make(map[string]float64)
	for _, pair := range strings.Split(raw, ",") {
		term, weight, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || term == "" {
			continue
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(weight), 64)
		if err != nil {
			continue
		}
		out[strings.ToLower(term)] = w
	}
	return out
}

// ScoredDocument pairs a document with a relevance score. Higher is better.
type ScoredDocument struct {
	Document Document
	Score    float64
}

// SearchFilters restrict vector search to a department and, optionally, a partition.
type SearchFilters struct {
	Department string
	Partition  *int
}
