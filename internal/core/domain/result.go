package domain

// RefusalText is the fixed completion returned whenever the pipeline cannot
// ground an answer in retrieved evidence. Callers match on it verbatim.
const RefusalText = "No relevant information found in this collection."

// ScoredCandidate is a per-mode retrieval hit. RawScore is mode-specific and
// not comparable across modes; Rank is the 1-based position within the mode's
// list and is what fusion consumes.
type ScoredCandidate struct {
	Record   Record
	RawScore float64
	Mode     RetrievalMode
	Rank     int
}

// FusedResult is a cross-mode comparable ranked result.
type FusedResult struct {
	Record Record  `json:"record"`
	Score  float64 `json:"score"`
	Rank   int     `json:"rank"`
}

// AnswerResponse is the shaped output of one pipeline run.
//
// Invariants: FallbackTriggered implies Completion equals RefusalText and
// Citations is empty; a non-fallback completion carries at least one citation
// whose index is within [1, len(Results)].
type AnswerResponse struct {
	Completion        *string         `json:"completion"`
	Citations         []string        `json:"citations,omitempty"`
	Results           []FusedResult   `json:"results"`
	FallbackTriggered bool            `json:"fallback_triggered"`
	RerankDegraded    bool            `json:"rerank_degraded,omitempty"`
	DegradedModes     []RetrievalMode `json:"degraded_modes,omitempty"`
}
