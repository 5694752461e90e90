package model

import "time"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is one of the supported message authors.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// MemoryItem is a single turn held in the recent-conversation window.
type MemoryItem struct {
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	CreatedAt time.Time      `json:"created_at"`
	Embedding []float32      `json:"embedding,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// SummaryChunk is a condensed batch of messages promoted out of the recent
// window. Chunks are immutable once created.
type SummaryChunk struct {
	Summary   string         `json:"summary"`
	CreatedAt time.Time      `json:"created_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Embedding extracts the optional embedding stored in the chunk metadata.
func (c SummaryChunk) Embedding() []float32 {
	if c.Metadata == nil {
		return nil
	}
	return VectorFromAny(c.Metadata["embedding"])
}

// Topics returns the topic tags recorded when the chunk was created.
func (c SummaryChunk) Topics() []string {
	if c.Metadata == nil {
		return nil
	}
	raw, ok := c.Metadata["topics"]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		topics := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				topics = append(topics, s)
			}
		}
		return topics
	}
	return nil
}

// ScoredMessage pairs a recent-window item with a similarity score. HasScore
// distinguishes ranked results from plain recency reads.
type ScoredMessage struct {
	Item     MemoryItem
	Score    float64
	HasScore bool
}

// ScoredChunk pairs a summary chunk with a similarity or keyword-match score.
type ScoredChunk struct {
	Chunk    SummaryChunk
	Score    float64
	HasScore bool
}
