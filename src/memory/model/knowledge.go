package model

import (
	"errors"
	"fmt"
	"time"
)

// RelationLink declares a typed edge from a knowledge record to another
// graph entity.
type RelationLink struct {
	Type   string `json:"type"`
	Target string `json:"target"`
}

// Validate ensures the link is usable before it is written to the graph.
func (l RelationLink) Validate() error {
	if l.Target == "" {
		return errors.New("relation link target is empty")
	}
	if l.Type == "" {
		return errors.New("relation link type is empty")
	}
	return nil
}

// RelationLinksFromMetadata extracts the declared edge list from an add call's
// metadata. Malformed entries are dropped rather than failing the whole add.
func RelationLinksFromMetadata(meta map[string]any) []RelationLink {
	if meta == nil {
		return nil
	}
	raw, ok := meta["links"]
	if !ok {
		return nil
	}
	var links []RelationLink
	switch v := raw.(type) {
	case []RelationLink:
		links = v
	case []any:
		for _, item := range v {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			links = append(links, RelationLink{
				Type:   StringFromAny(m["type"]),
				Target: StringFromAny(m["target"]),
			})
		}
	}
	valid := links[:0]
	for _, link := range links {
		if link.Type == "" {
			link.Type = "RELATED_TO"
		}
		if err := link.Validate(); err != nil {
			continue
		}
		valid = append(valid, link)
	}
	return valid
}

// KnowledgeRecord is a durable long-term entry mirrored into both the vector
// index and the graph. VectorID and EntityID tie the two representations
// together.
type KnowledgeRecord struct {
	Content   string         `json:"content"`
	Embedding []float32      `json:"embedding,omitempty"`
	Category  string         `json:"category"`
	VectorID  string         `json:"vector_id"`
	EntityID  string         `json:"entity_id"`
	Links     []RelationLink `json:"links,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// KnowledgeRef holds the pair of identifiers returned by a long-term add.
type KnowledgeRef struct {
	VectorID string `json:"vector_id"`
	EntityID string `json:"entity_id"`
}

// KnowledgeHit is a ranked result from the vector index.
type KnowledgeHit struct {
	VectorID  string         `json:"vector_id"`
	Content   string         `json:"content"`
	Embedding []float32      `json:"embedding,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Score     float64        `json:"score"`
	Rank      int            `json:"rank"`
}

// EntityID returns the linked graph entity identifier carried in the hit's
// metadata, if any.
func (h KnowledgeHit) EntityID() string {
	if h.Metadata == nil {
		return ""
	}
	return StringFromAny(h.Metadata["entity_id"])
}

// GraphNode is an entity row returned by graph backends.
type GraphNode struct {
	ID       string         `json:"id"`
	Category string         `json:"category"`
	Content  string         `json:"content"`
	VectorID string         `json:"vector_id,omitempty"`
	Props    map[string]any `json:"props,omitempty"`
}

// GraphPath is an ordered chain of nodes between two entities.
type GraphPath struct {
	Nodes  []GraphNode `json:"nodes"`
	Length int         `json:"length"`
}

func (p GraphPath) String() string {
	return fmt.Sprintf("path(len=%d, nodes=%d)", p.Length, len(p.Nodes))
}
