package model

import "time"

// SourceTier tags an aggregated item with the memory tier it came from.
type SourceTier string

const (
	TierRecent    SourceTier = "recent"
	TierSummary   SourceTier = "summary"
	TierKnowledge SourceTier = "knowledge"
)

// AggregatedItem is a candidate context entry after cross-tier merging.
// FinalScore is always TierWeight * Relevance.
type AggregatedItem struct {
	Content    string         `json:"content"`
	Source     SourceTier     `json:"source"`
	TierWeight float64        `json:"tier_weight"`
	Relevance  float64        `json:"relevance"`
	FinalScore float64        `json:"final_score"`
	Embedding  []float32      `json:"embedding,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// CompressedContext is the budget-fitted selection handed to the caller.
type CompressedContext struct {
	Items            []AggregatedItem `json:"items"`
	Tokens           int              `json:"tokens"`
	OriginalTokens   int              `json:"original_tokens"`
	CompressionRatio float64          `json:"compression_ratio"`
	Kept             int              `json:"kept"`
	Removed          int              `json:"removed"`
	Strategy         string           `json:"strategy"`
}

// EstimateTokens approximates the token footprint of a text at four
// characters per token. Selection decisions across the compressor are tied to
// this estimator; replacements must keep the same fit/stop contract.
func EstimateTokens(text string) int {
	return len(text) / 4
}
