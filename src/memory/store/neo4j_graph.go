package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ctxmem/ctxmem/src/memory/model"
)

// Neo4jAccessMode controls whether a session is opened for read or write
// operations.
type Neo4jAccessMode string

const (
	// AccessModeWrite opens a session with write access.
	AccessModeWrite Neo4jAccessMode = "write"
	// AccessModeRead opens a session with read access.
	AccessModeRead Neo4jAccessMode = "read"
)

// Neo4jSessionConfig mirrors the minimal subset of Neo4j session
// configuration we require.
type Neo4jSessionConfig struct {
	AccessMode   Neo4jAccessMode
	DatabaseName string
}

// neo4jDriver abstracts the Neo4j driver capabilities used by the backend.
// This allows tests to provide lightweight fakes without depending on the
// real driver package (which is guarded behind an optional build tag).
type neo4jDriver interface {
	NewSession(ctx context.Context, config Neo4jSessionConfig) (neo4jSession, error)
	Close(ctx context.Context) error
}

type neo4jSession interface {
	Run(ctx context.Context, query string, params map[string]any) (neo4jResult, error)
	Close(ctx context.Context) error
}

type neo4jResult interface {
	Next(ctx context.Context) bool
	Record() neo4jRecord
	Err() error
	Close(ctx context.Context) error
}

type neo4jRecord interface {
	Get(key string) (any, bool)
}

// ErrNeo4jUnavailable is returned when graph operations are attempted without
// a configured driver.
var ErrNeo4jUnavailable = fmt.Errorf("neo4j driver not configured: %w", model.ErrBackendUnavailable)

// Neo4jGraph implements GraphBackend on top of a Neo4j database. Each
// knowledge entity becomes a (:Knowledge) node keyed by id and carrying the
// linked vector-entry identifier.
type Neo4jGraph struct {
	driver   neo4jDriver
	database string
}

var _ GraphBackend = (*Neo4jGraph)(nil)

// NewNeo4jGraph constructs a graph backend over the provided driver.
func NewNeo4jGraph(driver neo4jDriver, database string) (*Neo4jGraph, error) {
	if driver == nil {
		return nil, errors.New("neo4j driver is nil")
	}
	return &Neo4jGraph{driver: driver, database: database}, nil
}

// CreateSchema ensures the uniqueness constraint and lookup indexes exist.
func (g *Neo4jGraph) CreateSchema(ctx context.Context) error {
	queries := []string{
		"CREATE CONSTRAINT IF NOT EXISTS FOR (k:Knowledge) REQUIRE k.id IS UNIQUE",
		"CREATE INDEX IF NOT EXISTS FOR (k:Knowledge) ON (k.category)",
	}
	for _, query := range queries {
		if err := g.write(ctx, query, nil); err != nil {
			return fmt.Errorf("neo4j schema query: %w", err)
		}
	}
	return nil
}

// Close releases the underlying driver.
func (g *Neo4jGraph) Close(ctx context.Context) error {
	if g.driver == nil {
		return nil
	}
	return g.driver.Close(ctx)
}

// CreateEntity upserts a Knowledge node keyed by the entity id.
func (g *Neo4jGraph) CreateEntity(ctx context.Context, node model.GraphNode) error {
	if node.ID == "" {
		return fmt.Errorf("%w: entity without id", model.ErrMalformedItem)
	}
	params := map[string]any{
		"id":        node.ID,
		"category":  node.Category,
		"content":   node.Content,
		"vector_id": node.VectorID,
	}
	query := `
MERGE (k:Knowledge {id: $id})
SET k.category = $category, k.content = $content, k.vector_id = $vector_id`
	return g.write(ctx, query, params)
}

// SetVectorLink records the vector-entry id on an existing node.
func (g *Neo4jGraph) SetVectorLink(ctx context.Context, entityID, vectorID string) error {
	query := "MATCH (k:Knowledge {id: $id}) SET k.vector_id = $vector_id"
	return g.write(ctx, query, map[string]any{"id": entityID, "vector_id": vectorID})
}

// Relate creates a typed edge between two existing nodes. The relationship
// type participates in the query text, so it is sanitized first.
func (g *Neo4jGraph) Relate(ctx context.Context, fromID, toID, relType string) error {
	relType = sanitizeRelType(relType)
	query := fmt.Sprintf(`
MATCH (a:Knowledge {id: $from})
MATCH (b:Knowledge {id: $to})
MERGE (a)-[:%s]->(b)`, relType)
	return g.write(ctx, query, map[string]any{"from": fromID, "to": toID})
}

// DeleteEntity detaches and removes a node.
func (g *Neo4jGraph) DeleteEntity(ctx context.Context, entityID string) error {
	query := "MATCH (k:Knowledge {id: $id}) DETACH DELETE k"
	return g.write(ctx, query, map[string]any{"id": entityID})
}

// SearchText matches nodes whose content or category contains the query text.
func (g *Neo4jGraph) SearchText(ctx context.Context, query string, limit int) ([]model.GraphNode, error) {
	if limit <= 0 {
		limit = 10
	}
	cypher := `
MATCH (k:Knowledge)
WHERE toLower(k.content) CONTAINS toLower($query)
   OR toLower(k.category) CONTAINS toLower($query)
RETURN k.id AS id, k.category AS category, k.content AS content, k.vector_id AS vector_id
LIMIT $limit`
	return g.readNodes(ctx, cypher, map[string]any{"query": query, "limit": limit})
}

// Expand returns the one-hop neighborhood of the seed entities.
func (g *Neo4jGraph) Expand(ctx context.Context, entityIDs []string, limit int) ([]model.GraphNode, error) {
	if len(entityIDs) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	cypher := `
MATCH (k:Knowledge) WHERE k.id IN $ids
MATCH (k)-[]-(m:Knowledge)
WHERE NOT m.id IN $ids
RETURN DISTINCT m.id AS id, m.category AS category, m.content AS content, m.vector_id AS vector_id
LIMIT $limit`
	return g.readNodes(ctx, cypher, map[string]any{"ids": entityIDs, "limit": limit})
}

// Related walks up to maxDepth hops from the entity, optionally restricted to
// the given relationship types.
func (g *Neo4jGraph) Related(ctx context.Context, entityID string, relTypes []string, maxDepth, limit int) ([]model.GraphNode, error) {
	if maxDepth <= 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 20
	}
	pattern := fmt.Sprintf("[*1..%d]", maxDepth)
	if len(relTypes) > 0 {
		sanitized := make([]string, 0, len(relTypes))
		for _, t := range relTypes {
			sanitized = append(sanitized, sanitizeRelType(t))
		}
		pattern = fmt.Sprintf("[:%s*1..%d]", strings.Join(sanitized, "|"), maxDepth)
	}
	cypher := fmt.Sprintf(`
MATCH (start:Knowledge {id: $id})
MATCH (start)-%s-(related:Knowledge)
RETURN DISTINCT related.id AS id, related.category AS category, related.content AS content, related.vector_id AS vector_id
LIMIT $limit`, pattern)
	return g.readNodes(ctx, cypher, map[string]any{"id": entityID, "limit": limit})
}

// FindPath runs a bounded shortest-path query between two entities.
func (g *Neo4jGraph) FindPath(ctx context.Context, startID, endID string, maxLength int) ([]model.GraphPath, error) {
	if maxLength <= 0 {
		return nil, nil
	}
	cypher := fmt.Sprintf(`
MATCH path = shortestPath((start:Knowledge {id: $start})-[*..%d]-(end:Knowledge {id: $end}))
RETURN [n IN nodes(path) | n.id] AS ids,
       [n IN nodes(path) | n.category] AS categories,
       [n IN nodes(path) | n.content] AS contents,
       [n IN nodes(path) | n.vector_id] AS vector_ids,
       length(path) AS length
ORDER BY length
LIMIT 5`, maxLength)
	session, err := g.driver.NewSession(ctx, Neo4jSessionConfig{AccessMode: AccessModeRead, DatabaseName: g.database})
	if err != nil {
		return nil, fmt.Errorf("neo4j new session: %w", err)
	}
	defer session.Close(ctx)
	result, err := session.Run(ctx, cypher, map[string]any{"start": startID, "end": endID})
	if err != nil {
		return nil, fmt.Errorf("neo4j shortest path: %w", err)
	}
	defer result.Close(ctx)
	var paths []model.GraphPath
	for result.Next(ctx) {
		rec := result.Record()
		if rec == nil {
			continue
		}
		ids := stringsFromRecord(rec, "ids")
		categories := stringsFromRecord(rec, "categories")
		contents := stringsFromRecord(rec, "contents")
		vectorIDs := stringsFromRecord(rec, "vector_ids")
		nodes := make([]model.GraphNode, len(ids))
		for i := range ids {
			nodes[i] = model.GraphNode{ID: ids[i]}
			if i < len(categories) {
				nodes[i].Category = categories[i]
			}
			if i < len(contents) {
				nodes[i].Content = contents[i]
			}
			if i < len(vectorIDs) {
				nodes[i].VectorID = vectorIDs[i]
			}
		}
		length := len(nodes) - 1
		if raw, ok := rec.Get("length"); ok {
			if f, isNum := model.FloatFromAny(raw); isNum {
				length = int(f)
			}
		}
		paths = append(paths, model.GraphPath{Nodes: nodes, Length: length})
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	return paths, nil
}

// Clear removes every Knowledge node.
func (g *Neo4jGraph) Clear(ctx context.Context) error {
	return g.write(ctx, "MATCH (k:Knowledge) DETACH DELETE k", nil)
}

func (g *Neo4jGraph) write(ctx context.Context, query string, params map[string]any) error {
	if g.driver == nil {
		return ErrNeo4jUnavailable
	}
	session, err := g.driver.NewSession(ctx, Neo4jSessionConfig{AccessMode: AccessModeWrite, DatabaseName: g.database})
	if err != nil {
		return fmt.Errorf("neo4j new session: %w", err)
	}
	defer session.Close(ctx)
	res, err := session.Run(ctx, query, params)
	if err != nil {
		return err
	}
	if res != nil {
		_ = res.Close(ctx)
	}
	return nil
}

func (g *Neo4jGraph) readNodes(ctx context.Context, query string, params map[string]any) ([]model.GraphNode, error) {
	if g.driver == nil {
		return nil, ErrNeo4jUnavailable
	}
	session, err := g.driver.NewSession(ctx, Neo4jSessionConfig{AccessMode: AccessModeRead, DatabaseName: g.database})
	if err != nil {
		return nil, fmt.Errorf("neo4j new session: %w", err)
	}
	defer session.Close(ctx)
	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	defer result.Close(ctx)
	var nodes []model.GraphNode
	for result.Next(ctx) {
		rec := result.Record()
		if rec == nil {
			continue
		}
		node := model.GraphNode{}
		if v, ok := rec.Get("id"); ok {
			node.ID = model.StringFromAny(v)
		}
		if v, ok := rec.Get("category"); ok {
			node.Category = model.StringFromAny(v)
		}
		if v, ok := rec.Get("content"); ok {
			node.Content = model.StringFromAny(v)
		}
		if v, ok := rec.Get("vector_id"); ok {
			node.VectorID = model.StringFromAny(v)
		}
		if node.ID == "" {
			continue
		}
		nodes = append(nodes, node)
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	return nodes, nil
}

func stringsFromRecord(rec neo4jRecord, key string) []string {
	raw, ok := rec.Get(key)
	if !ok {
		return nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]string, len(items))
	for i, item := range items {
		out[i] = model.StringFromAny(item)
	}
	return out
}

// sanitizeRelType restricts relationship names to identifier characters so
// they can be spliced into Cypher safely.
func sanitizeRelType(relType string) string {
	if relType == "" {
		return "RELATED_TO"
	}
	var b strings.Builder
	for _, r := range strings.ToUpper(relType) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
