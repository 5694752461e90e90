package model

import (
	"math"
	"testing"
)

func TestCosineSimilarity(t *testing.T) {
	if got := CosineSimilarity([]float32{1, 0}, []float32{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Fatalf("identical vectors = %f, want 1", got)
	}
	if got := CosineSimilarity([]float32{1, 0}, []float32{0, 1}); math.Abs(got) > 1e-9 {
		t.Fatalf("orthogonal vectors = %f, want 0", got)
	}
	if got := CosineSimilarity(nil, []float32{1}); got != 0 {
		t.Fatalf("empty vector = %f, want 0", got)
	}
	// Length mismatch compares the shared prefix.
	if got := CosineSimilarity([]float32{1, 0, 5}, []float32{1, 0}); math.Abs(got-1) > 1e-9 {
		t.Fatalf("prefix comparison = %f, want 1", got)
	}
	if got := CosineSimilarity([]float32{0, 0}, []float32{1, 1}); got != 0 {
		t.Fatalf("zero-norm vector = %f, want 0", got)
	}
}

func TestJaccardSimilarity(t *testing.T) {
	if got := JaccardSimilarity("go is fast", "go is fast"); got != 1 {
		t.Fatalf("identical texts = %f, want 1", got)
	}
	if got := JaccardSimilarity("alpha beta", "gamma delta"); got != 0 {
		t.Fatalf("disjoint texts = %f, want 0", got)
	}
	// {go, is, fast} vs {go, is, slow}: 2 shared of 4 total.
	if got := JaccardSimilarity("go is fast", "go is slow"); math.Abs(got-0.5) > 1e-9 {
		t.Fatalf("overlap = %f, want 0.5", got)
	}
	if got := JaccardSimilarity("Case MATTERS not", "case matters NOT"); got != 1 {
		t.Fatalf("case folding = %f, want 1", got)
	}
	if got := JaccardSimilarity("", "something"); got != 0 {
		t.Fatalf("empty text = %f, want 0", got)
	}
}

func TestVectorFromAny(t *testing.T) {
	if got := VectorFromAny([]float32{1, 2}); len(got) != 2 {
		t.Fatalf("[]float32 = %v", got)
	}
	got := VectorFromAny([]any{float64(0.5), int(2)})
	if len(got) != 2 || got[0] != 0.5 || got[1] != 2 {
		t.Fatalf("[]any = %v", got)
	}
	if got := VectorFromAny([]any{float64(1), "oops"}); got != nil {
		t.Fatalf("mixed slice = %v, want nil", got)
	}
	if got := VectorFromAny("not a vector"); got != nil {
		t.Fatalf("non-slice = %v, want nil", got)
	}
	if got := VectorFromAny(nil); got != nil {
		t.Fatalf("nil = %v, want nil", got)
	}
}

func TestRelationLinksFromMetadata(t *testing.T) {
	links := RelationLinksFromMetadata(map[string]any{
		"links": []any{
			map[string]any{"type": "KNOWS", "target": "entity_2"},
			map[string]any{"target": "entity_3"}, // missing type defaults
			map[string]any{"type": "BROKEN"},     // missing target dropped
			"not a link at all",
		},
	})
	if len(links) != 2 {
		t.Fatalf("links = %v, want 2 valid entries", links)
	}
	if links[0].Type != "KNOWS" || links[0].Target != "entity_2" {
		t.Fatalf("links[0] = %+v", links[0])
	}
	if links[1].Type != "RELATED_TO" || links[1].Target != "entity_3" {
		t.Fatalf("links[1] = %+v", links[1])
	}
	if got := RelationLinksFromMetadata(nil); got != nil {
		t.Fatalf("nil metadata = %v", got)
	}
	if got := RelationLinksFromMetadata(map[string]any{"other": 1}); got != nil {
		t.Fatalf("no links key = %v", got)
	}
}
