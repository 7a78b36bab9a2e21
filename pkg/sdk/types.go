package vecrag

import "time"

// Query is one question to answer.
type Query struct {
	Text        string
	Department  string
	UserID      string
	WorkspaceID string
	// Partition restricts retrieval to one corpus partition when non-nil.
	Partition *int
}

// Source is a document used as evidence.
type Source struct {
	ID       string
	Content  string
	Metadata map[string]string
}

// Answer is the outcome of Ask.
type Answer struct {
	Text          string
	Sources       []Source
	Confidence    float64
	ExecutedSteps []string
	Iterations    int
	Metrics       map[string]float64
	TraceID       string
	Degraded      bool
}

// Step is one recorded pipeline stage.
type Step struct {
	Type     string
	Label    string
	Detail   string
	Duration time.Duration
	Data     map[string]any
	At       time.Time
}

// Trace is the reasoning record of one Ask call.
type Trace struct {
	ID         string
	Query      string
	Department string
	Steps      []Step
	Metrics    map[string]float64
	Completed  bool
	StartedAt  time.Time
	EndedAt    time.Time
}

// Document is a corpus document submitted for partitioning.
type Document struct {
	ID      string
	Content string
}

// PartitionReport summarizes a partition assignment run.
type PartitionReport struct {
	Partitions  int
	Assignments map[string]int    // doc id -> partition
	Histogram   map[int]int       // partition -> count
	Tagged      int               // partition ids persisted to the store
	Failed      map[string]string // doc id -> error
}
