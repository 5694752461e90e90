package memory

import (
	"os"
	"strconv"
	"time"
)

// Options is the configuration surface of the memory manager. Start from
// DefaultOptions and override what you need; NewManager validates the result.
type Options struct {
	// Tier capacities.
	MaxRecent int
	RecentTTL time.Duration
	MaxChunks int

	// Promotion cadence: every Nth add summarizes the recent window into a
	// chunk.
	SummarizeEvery int

	// Aggregation. Weights are normalized to sum to one.
	RecentWeight    float64
	SummaryWeight   float64
	KnowledgeWeight float64
	DedupThreshold  float64

	// Compression.
	MaxTokens           int
	CompressionStrategy string
	PreserveRecent      bool

	// Default knowledge-tier query strategy.
	QueryStrategy string

	// Default retrieval depths for GetContext.
	RecentResults int
	ChunkResults  int
}

// DefaultOptions returns the stock configuration.
func DefaultOptions() Options {
	return Options{
		MaxRecent:           10,
		RecentTTL:           time.Hour,
		MaxChunks:           100,
		SummarizeEvery:      5,
		RecentWeight:        0.5,
		SummaryWeight:       0.3,
		KnowledgeWeight:     0.2,
		DedupThreshold:      0.95,
		MaxTokens:           2000,
		CompressionStrategy: "score_based",
		PreserveRecent:      true,
		QueryStrategy:       "parallel",
		RecentResults:       5,
		ChunkResults:        3,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MaxRecent <= 0 {
		o.MaxRecent = def.MaxRecent
	}
	if o.RecentTTL <= 0 {
		o.RecentTTL = def.RecentTTL
	}
	if o.MaxChunks <= 0 {
		o.MaxChunks = def.MaxChunks
	}
	if o.SummarizeEvery <= 0 {
		o.SummarizeEvery = def.SummarizeEvery
	}
	if o.RecentWeight == 0 && o.SummaryWeight == 0 && o.KnowledgeWeight == 0 {
		o.RecentWeight = def.RecentWeight
		o.SummaryWeight = def.SummaryWeight
		o.KnowledgeWeight = def.KnowledgeWeight
	}
	if o.DedupThreshold == 0 {
		o.DedupThreshold = def.DedupThreshold
	}
	if o.CompressionStrategy == "" {
		o.CompressionStrategy = def.CompressionStrategy
	}
	if o.QueryStrategy == "" {
		o.QueryStrategy = def.QueryStrategy
	}
	if o.RecentResults <= 0 {
		o.RecentResults = def.RecentResults
	}
	if o.ChunkResults <= 0 {
		o.ChunkResults = def.ChunkResults
	}
	return o
}

// OptionsFromEnv reads CTXMEM_* overrides on top of the defaults. Unset or
// malformed variables keep the default.
func OptionsFromEnv() Options {
	o := DefaultOptions()
	if v, ok := envInt("CTXMEM_MAX_RECENT"); ok {
		o.MaxRecent = v
	}
	if v, ok := envInt("CTXMEM_RECENT_TTL_SECONDS"); ok {
		o.RecentTTL = time.Duration(v) * time.Second
	}
	if v, ok := envInt("CTXMEM_MAX_CHUNKS"); ok {
		o.MaxChunks = v
	}
	if v, ok := envInt("CTXMEM_SUMMARIZE_EVERY"); ok {
		o.SummarizeEvery = v
	}
	if v, ok := envInt("CTXMEM_MAX_TOKENS"); ok {
		o.MaxTokens = v
	}
	if v := os.Getenv("CTXMEM_COMPRESSION_STRATEGY"); v != "" {
		o.CompressionStrategy = v
	}
	if v := os.Getenv("CTXMEM_QUERY_STRATEGY"); v != "" {
		o.QueryStrategy = v
	}
	if v, ok := envFloat("CTXMEM_RECENT_WEIGHT"); ok {
		o.RecentWeight = v
	}
	if v, ok := envFloat("CTXMEM_SUMMARY_WEIGHT"); ok {
		o.SummaryWeight = v
	}
	if v, ok := envFloat("CTXMEM_KNOWLEDGE_WEIGHT"); ok {
		o.KnowledgeWeight = v
	}
	if v, ok := envFloat("CTXMEM_DEDUP_THRESHOLD"); ok {
		o.DedupThreshold = v
	}
	return o
}

func envInt(name string) (int, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return v, true
}

func envFloat(name string) (float64, bool) {
	raw := os.Getenv(name)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
