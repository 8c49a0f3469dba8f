package domain

// QueryIntent is the coarse classification of what a question is after.
type QueryIntent string

const (
	IntentFactual    QueryIntent = "factual"
	IntentSummary    QueryIntent = "summary"
	IntentComparison QueryIntent = "comparison"
	IntentDefinition QueryIntent = "definition"
	IntentOther      QueryIntent = "other"
)

// Variant origins. The origin is carried through retrieval so a candidate
// can be traced back to the query form that surfaced it.
const (
	VariantOriginal = "original"
	VariantKeywords = "keywords"
	VariantIntent   = "intent"
	VariantRephrase = "rephrase"
)

// QueryVariant is one derived form of the user's question. Weight biases
// the merged ranking: a candidate's merged score is its best similarity
// multiplied by the weight of the variant that produced it. The original
// question always carries weight 1.0 so merged scores never exceed raw
// similarity.
type QueryVariant struct {
	Text   string
	Weight float64
	Origin string
}

// RetrievedCandidate is a chunk that survived merged retrieval, with the
// weighted similarity score and the variant that produced its best hit.
type RetrievedCandidate struct {
	Chunk  Chunk
	Score  float64
	Origin string
	Rank   int // 1-based position after merging
}

// AnswerResult is the single response shape of the ask operation. Degraded
// paths (generation timeout, no relevant content) fill Fallback and Reason
// instead of changing the shape. It is transient and never persisted.
type AnswerResult struct {
	Answer     string
	Sources    []int // cited page numbers, deduplicated, relevance-ordered
	Confidence float64
	Intent     QueryIntent
	Fallback   bool
	Reason     string
}
