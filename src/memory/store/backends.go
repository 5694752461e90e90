package store

import (
	"context"

	"github.com/ctxmem/ctxmem/src/memory/model"
)

// VectorIndex is the contract for semantic-search backends holding long-term
// knowledge entries.
type VectorIndex interface {
	Add(ctx context.Context, content string, embedding []float32, metadata map[string]any) (string, error)
	Search(ctx context.Context, queryEmbedding []float32, topK int) ([]model.KnowledgeHit, error)
	GetByID(ctx context.Context, id string) (model.KnowledgeHit, error)
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}

// GraphBackend is the contract for the relationship side of the knowledge
// tier: entity creation, typed edges, text search, bounded traversal and
// shortest paths.
type GraphBackend interface {
	CreateEntity(ctx context.Context, node model.GraphNode) error
	SetVectorLink(ctx context.Context, entityID, vectorID string) error
	Relate(ctx context.Context, fromID, toID, relType string) error
	DeleteEntity(ctx context.Context, entityID string) error
	SearchText(ctx context.Context, query string, limit int) ([]model.GraphNode, error)
	Expand(ctx context.Context, entityIDs []string, limit int) ([]model.GraphNode, error)
	Related(ctx context.Context, entityID string, relTypes []string, maxDepth, limit int) ([]model.GraphNode, error)
	FindPath(ctx context.Context, startID, endID string, maxLength int) ([]model.GraphPath, error)
	Clear(ctx context.Context) error
}

// SchemaInitializer is implemented by backends that expose an optional
// schema/bootstrap routine.
type SchemaInitializer interface {
	CreateSchema(ctx context.Context) error
}
