package db

// TagFilter matches documents whose TAG field equals Value.
type TagFilter struct {
	Field string
	Value string
}

// NumericFilter matches documents whose NUMERIC field lies in [Min, Max].
type NumericFilter struct {
	Field string
	Min   float64
	Max   float64
}

// Filter is a conjunction of pre-filters applied before scoring.
type Filter struct {
	Tags    []TagFilter
	Numeric []NumericFilter
}

// IsEmpty reports whether the filter has no conditions.
func (f Filter) IsEmpty() bool {
	return len(f.Tags) == 0 && len(f.Numeric) == 0
}

// WithTag returns a copy of f with an extra tag condition.
func (f Filter) WithTag(field, value string) Filter {
	out := Filter{
		Tags:    append(append([]TagFilter(nil), f.Tags...), TagFilter{Field: field, Value: value}),
		Numeric: append([]NumericFilter(nil), f.Numeric...),
	}
	return out
}

// WithEquals returns a copy of f with an extra numeric equality condition.
func (f Filter) WithEquals(field string, v float64) Filter {
	out := Filter{
		Tags:    append([]TagFilter(nil), f.Tags...),
		Numeric: append(append([]NumericFilter(nil), f.Numeric...), NumericFilter{Field: field, Min: v, Max: v}),
	}
	return out
}

// ScoreField is the alias FT.SEARCH uses for the KNN distance.
// Callers that set ReturnFields must include it.
const ScoreField = "__vector_score"

// KNNQuery is the input for vector similarity search.
type KNNQuery struct {
	IndexName    string
	VectorField  string // defaults to "__vector"
	Filter       Filter
	Vector       []float32
	K            int
	ReturnFields []string
}

// TextQuery is the input for BM25 text search.
type TextQuery struct {
	IndexName    string
	TextField    string // defaults to "__content"
	Query        string
	Filter       Filter
	TopK         int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
