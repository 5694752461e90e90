package aggregate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ctxmem/ctxmem/src/memory/model"
)

// Default relevance assigned to a tier when the retrieval step produced no
// score of its own. Recency beats summaries beats long-term recall.
const (
	defaultRecentRelevance    = 1.0
	defaultSummaryRelevance   = 0.8
	defaultKnowledgeRelevance = 0.6
)

// Config sets the tier weights and the duplicate threshold. Weights are
// normalized to sum to one at construction, so callers can pass any positive
// proportions.
type Config struct {
	RecentWeight    float64
	SummaryWeight   float64
	KnowledgeWeight float64
	DedupThreshold  float64
}

func (c Config) withDefaults() Config {
	if c.RecentWeight == 0 && c.SummaryWeight == 0 && c.KnowledgeWeight == 0 {
		c.RecentWeight, c.SummaryWeight, c.KnowledgeWeight = 0.5, 0.3, 0.2
	}
	if c.DedupThreshold == 0 {
		c.DedupThreshold = 0.95
	}
	return c
}

// Result carries the merged ranking plus per-tier counts measured after
// dedup, so callers can see which tier actually contributed.
type Result struct {
	Items          []model.AggregatedItem
	RecentCount    int
	SummaryCount   int
	KnowledgeCount int
	Duplicates     int
}

// Aggregator merges the three memory tiers into one ranked list.
type Aggregator struct {
	recentWeight    float64
	summaryWeight   float64
	knowledgeWeight float64
	dedupThreshold  float64
}

// New validates and normalizes the config. Every weight must be positive;
// a zero or negative weight would silently erase a tier, which is a config
// mistake, not a tuning choice.
func New(cfg Config) (*Aggregator, error) {
	cfg = cfg.withDefaults()
	for _, w := range []struct {
		name  string
		value float64
	}{
		{"recent_weight", cfg.RecentWeight},
		{"summary_weight", cfg.SummaryWeight},
		{"knowledge_weight", cfg.KnowledgeWeight},
	} {
		if w.value <= 0 {
			return nil, model.NewConfigError(w.name, fmt.Sprintf("must be positive, got %v", w.value))
		}
	}
	if cfg.DedupThreshold <= 0 || cfg.DedupThreshold > 1 {
		return nil, model.NewConfigError("dedup_threshold", fmt.Sprintf("must be in (0,1], got %v", cfg.DedupThreshold))
	}
	total := cfg.RecentWeight + cfg.SummaryWeight + cfg.KnowledgeWeight
	return &Aggregator{
		recentWeight:    cfg.RecentWeight / total,
		summaryWeight:   cfg.SummaryWeight / total,
		knowledgeWeight: cfg.KnowledgeWeight / total,
		dedupThreshold:  cfg.DedupThreshold,
	}, nil
}

// Weights reports the normalized tier weights.
func (a *Aggregator) Weights() (recent, summary, knowledge float64) {
	return a.recentWeight, a.summaryWeight, a.knowledgeWeight
}

// Aggregate merges the three tiers, scores everything on one scale, drops
// near-duplicates (first seen wins, so a recent message shadows the summary
// that restates it) and returns the list sorted by final score descending.
// The sort is stable: equal scores keep tier order recent, summary, knowledge.
//
// Relevance per item: cosine against queryEmbedding when both sides carry an
// embedding, else the score the tier's own retrieval produced, else the tier
// default.
func (a *Aggregator) Aggregate(recent []model.ScoredMessage, summaries []model.ScoredChunk, knowledge []model.KnowledgeHit, queryEmbedding []float32) Result {
	items := make([]model.AggregatedItem, 0, len(recent)+len(summaries)+len(knowledge))

	for _, msg := range recent {
		relevance := defaultRecentRelevance
		if sim, ok := querySimilarity(queryEmbedding, msg.Item.Embedding); ok {
			relevance = sim
		} else if msg.HasScore {
			relevance = msg.Score
		}
		items = append(items, model.AggregatedItem{
			Content:    msg.Item.Content,
			Source:     model.TierRecent,
			TierWeight: a.recentWeight,
			Relevance:  relevance,
			Embedding:  msg.Item.Embedding,
			Metadata:   msg.Item.Metadata,
			CreatedAt:  msg.Item.CreatedAt,
		})
	}
	for _, chunk := range summaries {
		relevance := defaultSummaryRelevance
		if sim, ok := querySimilarity(queryEmbedding, chunk.Chunk.Embedding()); ok {
			relevance = sim
		} else if chunk.HasScore {
			relevance = chunk.Score
		}
		items = append(items, model.AggregatedItem{
			Content:    chunk.Chunk.Summary,
			Source:     model.TierSummary,
			TierWeight: a.summaryWeight,
			Relevance:  relevance,
			Embedding:  chunk.Chunk.Embedding(),
			Metadata:   chunk.Chunk.Metadata,
			CreatedAt:  chunk.Chunk.CreatedAt,
		})
	}
	for _, hit := range knowledge {
		relevance := defaultKnowledgeRelevance
		if sim, ok := querySimilarity(queryEmbedding, hit.Embedding); ok {
			relevance = sim
		} else if hit.Score > 0 {
			relevance = hit.Score
		}
		items = append(items, model.AggregatedItem{
			Content:    hit.Content,
			Source:     model.TierKnowledge,
			TierWeight: a.knowledgeWeight,
			Relevance:  relevance,
			Embedding:  hit.Embedding,
			Metadata:   hit.Metadata,
		})
	}

	for i := range items {
		items[i].FinalScore = items[i].TierWeight * items[i].Relevance
	}

	kept, duplicates := a.dedup(items)
	counts := map[model.SourceTier]int{}
	for _, item := range kept {
		counts[item.Source]++
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].FinalScore > kept[j].FinalScore
	})

	return Result{
		Items:          kept,
		RecentCount:    counts[model.TierRecent],
		SummaryCount:   counts[model.TierSummary],
		KnowledgeCount: counts[model.TierKnowledge],
		Duplicates:     duplicates,
	}
}

func querySimilarity(queryEmbedding, itemEmbedding []float32) (float64, bool) {
	if len(queryEmbedding) == 0 || len(itemEmbedding) == 0 {
		return 0, false
	}
	return model.CosineSimilarity(queryEmbedding, itemEmbedding), true
}

// dedup is a greedy pass in tier order: an item is a duplicate when its
// content similarity with any kept item reaches the threshold. Quadratic, but
// the merged list is bounded by window size + topK counts.
func (a *Aggregator) dedup(items []model.AggregatedItem) ([]model.AggregatedItem, int) {
	kept := make([]model.AggregatedItem, 0, len(items))
	duplicates := 0
	for _, item := range items {
		isDup := false
		for _, prior := range kept {
			if a.similarity(item, prior) >= a.dedupThreshold {
				isDup = true
				break
			}
		}
		if isDup {
			duplicates++
			continue
		}
		kept = append(kept, item)
	}
	return kept, duplicates
}

// similarity always measures token overlap on the text; when both sides carry
// an embedding, cosine can only raise the result. Identical text is a
// duplicate no matter what the embeddings say.
func (a *Aggregator) similarity(x, y model.AggregatedItem) float64 {
	var sim float64
	if x.Content == y.Content {
		sim = 1
	} else {
		sim = model.JaccardSimilarity(x.Content, y.Content)
	}
	if len(x.Embedding) > 0 && len(y.Embedding) > 0 {
		if cos := model.CosineSimilarity(x.Embedding, y.Embedding); cos > sim {
			sim = cos
		}
	}
	return sim
}

// Per-tier caps for the prompt rendering. The ranked list itself is not
// capped; these only bound what FormatForLLM prints.
const (
	formatRecentCap    = 5
	formatSummaryCap   = 3
	formatKnowledgeCap = 2
)

// FormatForLLM renders the ranked items as prompt-ready sections, preserving
// rank order inside each section.
func FormatForLLM(items []model.AggregatedItem) string {
	sections := []struct {
		tier   model.SourceTier
		header string
		limit  int
	}{
		{model.TierRecent, "[Recent Conversation]", formatRecentCap},
		{model.TierSummary, "[Previous Context]", formatSummaryCap},
		{model.TierKnowledge, "[Long-term Knowledge]", formatKnowledgeCap},
	}

	var b strings.Builder
	for _, section := range sections {
		count := 0
		for _, item := range items {
			if item.Source != section.tier || count >= section.limit {
				continue
			}
			if count == 0 {
				if b.Len() > 0 {
					b.WriteString("\n")
				}
				b.WriteString(section.header)
				b.WriteString("\n")
			}
			b.WriteString("- ")
			b.WriteString(item.Content)
			b.WriteString("\n")
			count++
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
