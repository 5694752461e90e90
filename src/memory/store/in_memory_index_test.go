package store

import (
	"context"
	"errors"
	"testing"

	"github.com/ctxmem/ctxmem/src/memory/model"
)

func TestInMemoryIndexSearchRanks(t *testing.T) {
	idx := NewInMemoryIndex()
	ctx := context.Background()

	if _, err := idx.Add(ctx, "x axis", []float32{1, 0}, nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := idx.Add(ctx, "y axis", []float32{0, 1}, nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := idx.Add(ctx, "diagonal", []float32{1, 1}, nil); err != nil {
		t.Fatalf("Add: %v", err)
	}

	hits, err := idx.Search(ctx, []float32{1, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("len = %d, want 2", len(hits))
	}
	if hits[0].Content != "x axis" {
		t.Fatalf("top hit = %q", hits[0].Content)
	}
	if hits[0].Rank != 1 || hits[1].Rank != 2 {
		t.Fatalf("ranks = %d, %d", hits[0].Rank, hits[1].Rank)
	}
	if hits[0].Score < hits[1].Score {
		t.Fatal("hits not sorted by score")
	}
}

func TestInMemoryIndexGetDelete(t *testing.T) {
	idx := NewInMemoryIndex()
	ctx := context.Background()

	id, err := idx.Add(ctx, "a fact", []float32{1}, map[string]any{"entity_id": "entity_9"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	hit, err := idx.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if hit.EntityID() != "entity_9" {
		t.Fatalf("EntityID = %q", hit.EntityID())
	}

	if err := idx.Delete(ctx, id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := idx.GetByID(ctx, id); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if n, _ := idx.Count(ctx); n != 0 {
		t.Fatalf("Count = %d, want 0", n)
	}
}
