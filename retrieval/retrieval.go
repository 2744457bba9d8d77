package retrieval

import (
	"context"
)

// Passage is one ranked passage returned by the retrieval service.
// Immutable once produced; owned by the workflow state for one query.
type Passage struct {
	Text     string            `json:"text"`
	Score    float64           `json:"score"` // Relevance in [0,1]
	Source   string            `json:"source"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Status distinguishes an empty result set from a populated one.
type Status string

const (
	StatusOK        Status = "ok"
	StatusNoResults Status = "no_results"
)

// Strategy labels how the final passage set was produced.
const (
	StrategyInitial     = "initial"
	StrategyInitialOnly = "initial_only"
	// Refined strategies are "refined_query_1".."refined_query_3",
	// built via RefinedStrategy.
)

// Result is the outcome of one orchestrated retrieval.
type Result struct {
	Passages        []Passage `json:"passages"`
	Quality         float64   `json:"quality"`
	Strategy        string    `json:"strategy"`
	Status          Status    `json:"status"`
	Suggestion      string    `json:"suggestion,omitempty"` // Set when Status is no_results
	ReframedQueries []string  `json:"reframed_queries,omitempty"`
}

// Retriever is the external search-service contract. An empty slice with a
// nil error means "no results"; a non-nil error means the service itself
// was unavailable or failed. Callers rely on that distinction.
type Retriever interface {
	Retrieve(ctx context.Context, query, scopeID string) ([]Passage, error)
}

// RetrieverFunc adapts a function to the Retriever interface.
type RetrieverFunc func(ctx context.Context, query, scopeID string) ([]Passage, error)

func (f RetrieverFunc) Retrieve(ctx context.Context, query, scopeID string) ([]Passage, error) {
	return f(ctx, query, scopeID)
}
