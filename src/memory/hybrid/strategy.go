package hybrid

import (
	"fmt"
	"strings"

	"github.com/ctxmem/ctxmem/src/memory/model"
)

// Strategy selects how the knowledge tier composes its two backends for a
// query.
type Strategy string

const (
	// StrategyVectorFirst runs semantic search, then expands hits through
	// the graph.
	StrategyVectorFirst Strategy = "vector_first"
	// StrategyGraphFirst runs a graph text match, then enriches nodes with
	// their vector content.
	StrategyGraphFirst Strategy = "graph_first"
	// StrategyParallel queries both backends concurrently and merges.
	StrategyParallel Strategy = "parallel"
	// StrategyVectorOnly skips the graph entirely.
	StrategyVectorOnly Strategy = "vector_only"
	// StrategyGraphOnly skips the vector index entirely.
	StrategyGraphOnly Strategy = "graph_only"
)

// ParseStrategy maps a configuration string onto a Strategy.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(strings.TrimSpace(s))) {
	case StrategyVectorFirst:
		return StrategyVectorFirst, nil
	case StrategyGraphFirst:
		return StrategyGraphFirst, nil
	case StrategyParallel, "":
		return StrategyParallel, nil
	case StrategyVectorOnly:
		return StrategyVectorOnly, nil
	case StrategyGraphOnly:
		return StrategyGraphOnly, nil
	}
	return "", model.NewConfigError("query_strategy", fmt.Sprintf("unknown strategy %q", s))
}
