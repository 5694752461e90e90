package hybrid

import (
	"context"

	"github.com/ctxmem/ctxmem/src/memory/model"
)

// QueryOptions tune a single long-term lookup.
type QueryOptions struct {
	Strategy    Strategy
	TopK        int
	ExpandGraph bool
}

func (o QueryOptions) withDefaults() QueryOptions {
	if o.Strategy == "" {
		o.Strategy = StrategyParallel
	}
	if o.TopK <= 0 {
		o.TopK = 5
	}
	return o
}

// Result combines the semantic and relationship sides of a long-term query.
// Whichever side a strategy does not touch stays empty.
type Result struct {
	SemanticMatches []model.KnowledgeHit `json:"semantic_matches"`
	GraphRelations  []model.GraphNode    `json:"graph_relations"`
	CombinedScore   float64              `json:"combined_score"`
	Strategy        Strategy             `json:"strategy"`
	Metadata        map[string]any       `json:"metadata,omitempty"`
}

// RelatedEntity is a graph neighbor enriched with its vector content when the
// node carries a vector link.
type RelatedEntity struct {
	Node      model.GraphNode `json:"node"`
	Content   string          `json:"content,omitempty"`
	Embedding []float32       `json:"embedding,omitempty"`
}

// LongTermStore is the knowledge tier contract. Two implementations exist:
// SimpleStore, backed by a vector index alone, and HybridStore, which mirrors
// every record into a graph as well. The choice is made once at construction.
type LongTermStore interface {
	Add(ctx context.Context, content string, metadata map[string]any, embedding []float32) (model.KnowledgeRef, error)
	Query(ctx context.Context, query string, opts QueryOptions) (Result, error)
	Related(ctx context.Context, entityID string, relTypes []string, maxDepth int) ([]RelatedEntity, error)
	FindPath(ctx context.Context, startID, endID string, maxLength int) ([]model.GraphPath, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}
