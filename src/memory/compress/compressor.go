package compress

import (
	"fmt"
	"sort"

	"github.com/ctxmem/ctxmem/src/memory/model"
)

// Strategy selects how the compressor picks items under the token budget.
type Strategy string

const (
	// StrategyTruncate keeps items in ranked order until the budget runs out.
	StrategyTruncate Strategy = "truncate"
	// StrategyScoreBased keeps the highest-scoring items, optionally pinning
	// the most recent conversation turns first.
	StrategyScoreBased Strategy = "score_based"
	// StrategyMMR trades relevance against diversity so the kept set does not
	// repeat itself.
	StrategyMMR Strategy = "mmr"
)

// ParseStrategy maps a config string to a Strategy. Empty means score_based.
func ParseStrategy(raw string) (Strategy, error) {
	switch Strategy(raw) {
	case "":
		return StrategyScoreBased, nil
	case StrategyTruncate, StrategyScoreBased, StrategyMMR:
		return Strategy(raw), nil
	}
	return "", model.NewConfigError("compression_strategy", fmt.Sprintf("unknown strategy %q", raw))
}

// mmrLambda balances relevance against diversity in the MMR pass. Higher
// favors relevance.
const mmrLambda = 0.7

// preserveRecentCount is how many trailing recent-tier items score_based pins
// before spending the rest of the budget by score.
const preserveRecentCount = 3

// Compressor fits a ranked item list into a token budget.
type Compressor struct {
	maxTokens      int
	strategy       Strategy
	preserveRecent bool
}

// Option tunes a Compressor.
type Option func(*Compressor)

// WithStrategy selects the selection strategy.
func WithStrategy(s Strategy) Option {
	return func(c *Compressor) { c.strategy = s }
}

// WithPreserveRecent controls whether score_based pins the trailing recent
// turns before ranking the rest.
func WithPreserveRecent(preserve bool) Option {
	return func(c *Compressor) { c.preserveRecent = preserve }
}

// New builds a Compressor for the given budget. A negative budget is a config
// error; zero is legal and yields an empty context.
func New(maxTokens int, opts ...Option) (*Compressor, error) {
	if maxTokens < 0 {
		return nil, model.NewConfigError("max_tokens", fmt.Sprintf("must be non-negative, got %d", maxTokens))
	}
	c := &Compressor{
		maxTokens:      maxTokens,
		strategy:       StrategyScoreBased,
		preserveRecent: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Compress selects a subset of items that fits the budget and reports what
// was kept, what was dropped, and the achieved ratio.
func (c *Compressor) Compress(items []model.AggregatedItem) model.CompressedContext {
	original := 0
	for _, item := range items {
		original += model.EstimateTokens(item.Content)
	}

	if c.maxTokens == 0 || len(items) == 0 {
		return model.CompressedContext{
			Items:          []model.AggregatedItem{},
			OriginalTokens: original,
			Removed:        len(items),
			Strategy:       string(c.strategy),
		}
	}

	var kept []model.AggregatedItem
	switch c.strategy {
	case StrategyTruncate:
		kept = c.truncate(items)
	case StrategyMMR:
		kept = c.mmr(items)
	default:
		kept = c.scoreBased(items)
	}

	tokens := 0
	for _, item := range kept {
		tokens += model.EstimateTokens(item.Content)
	}
	ratio := 0.0
	if original > 0 {
		ratio = float64(tokens) / float64(original)
	}
	return model.CompressedContext{
		Items:            kept,
		Tokens:           tokens,
		OriginalTokens:   original,
		CompressionRatio: ratio,
		Kept:             len(kept),
		Removed:          len(items) - len(kept),
		Strategy:         string(c.strategy),
	}
}

// truncate walks the ranked list in order and stops at the first item that
// does not fit.
func (c *Compressor) truncate(items []model.AggregatedItem) []model.AggregatedItem {
	kept := make([]model.AggregatedItem, 0, len(items))
	budget := c.maxTokens
	for _, item := range items {
		cost := model.EstimateTokens(item.Content)
		if cost > budget {
			break
		}
		kept = append(kept, item)
		budget -= cost
	}
	return kept
}

// scoreBased pins the trailing recent turns, then spends the remaining budget
// on everything else in score order. Selection stops at the first item that
// does not fit, matching truncate's greedy shape.
func (c *Compressor) scoreBased(items []model.AggregatedItem) []model.AggregatedItem {
	budget := c.maxTokens
	taken := make([]bool, len(items))
	var pinned []model.AggregatedItem

	if c.preserveRecent {
		// Last N recent-tier items in their original order.
		var recentIdx []int
		for i, item := range items {
			if item.Source == model.TierRecent {
				recentIdx = append(recentIdx, i)
			}
		}
		if len(recentIdx) > preserveRecentCount {
			recentIdx = recentIdx[len(recentIdx)-preserveRecentCount:]
		}
		for _, i := range recentIdx {
			cost := model.EstimateTokens(items[i].Content)
			if cost > budget {
				continue
			}
			pinned = append(pinned, items[i])
			taken[i] = true
			budget -= cost
		}
	}

	rest := make([]int, 0, len(items))
	for i := range items {
		if !taken[i] {
			rest = append(rest, i)
		}
	}
	sort.SliceStable(rest, func(a, b int) bool {
		return items[rest[a]].FinalScore > items[rest[b]].FinalScore
	})

	kept := pinned
	for _, i := range rest {
		cost := model.EstimateTokens(items[i].Content)
		if cost > budget {
			break
		}
		kept = append(kept, items[i])
		budget -= cost
	}
	return kept
}

// mmr greedily picks the item maximizing lambda*relevance minus
// (1-lambda)*redundancy, where redundancy is the highest similarity to
// anything already kept. Items that do not fit are skipped, not terminal,
// so a large item cannot starve smaller ones behind it.
func (c *Compressor) mmr(items []model.AggregatedItem) []model.AggregatedItem {
	budget := c.maxTokens
	remaining := make([]int, 0, len(items))
	for i := range items {
		remaining = append(remaining, i)
	}
	var kept []model.AggregatedItem

	for len(remaining) > 0 {
		best := -1
		bestScore := 0.0
		bestPos := 0
		for pos, i := range remaining {
			if model.EstimateTokens(items[i].Content) > budget {
				continue
			}
			diversity := 0.0
			for _, k := range kept {
				if sim := itemSimilarity(items[i], k); sim > diversity {
					diversity = sim
				}
			}
			score := mmrLambda*items[i].FinalScore - (1-mmrLambda)*diversity
			if best == -1 || score > bestScore {
				best = i
				bestScore = score
				bestPos = pos
			}
		}
		if best == -1 {
			break
		}
		kept = append(kept, items[best])
		budget -= model.EstimateTokens(items[best].Content)
		remaining = append(remaining[:bestPos], remaining[bestPos+1:]...)
	}
	return kept
}

func itemSimilarity(x, y model.AggregatedItem) float64 {
	if len(x.Embedding) > 0 && len(y.Embedding) > 0 {
		return model.CosineSimilarity(x.Embedding, y.Embedding)
	}
	return model.JaccardSimilarity(x.Content, y.Content)
}
