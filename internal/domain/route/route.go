package route

// Strategy is the retrieval strategy chosen before any retrieval happens.
type Strategy string

// Strategy constants. NoRetrieval and Chunk are the minimal decision space;
// the rest are extensions the orchestrator knows how to execute.
const (
	NoRetrieval Strategy = "NO_RETRIEVAL"
	Chunk       Strategy = "CHUNK"
	// HyDE expands the query with a hypothetical answer before searching.
	HyDE Strategy = "HYDE"
	// Keyword goes straight to lexical search (identifiers, quoted phrases).
	Keyword Strategy = "KEYWORD"
)

// IsValid checks if the strategy is one of the supported values.
func (s Strategy) IsValid() bool {
	return s == NoRetrieval || s == Chunk || s == HyDE || s == Keyword
}

// NeedsRetrieval reports whether the strategy requires evidence.
func (s Strategy) NeedsRetrieval() bool {
	return s != NoRetrieval
}

// Decision is the router output.
type Decision struct {
	Strategy   Strategy
	Confidence float64
	Rationale  string
}
