package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ctxmem/ctxmem/src/memory/model"
)

func TestWindowEvictsFIFO(t *testing.T) {
	s := NewRecentWindowStore(10, 0)
	for i := 1; i <= 12; i++ {
		if err := s.Add(model.RoleUser, fmt.Sprintf("message %d", i), nil); err != nil {
			t.Fatalf("Add %d: %v", i, err)
		}
	}
	items := s.Recent(0, nil)
	if len(items) != 10 {
		t.Fatalf("len = %d, want 10", len(items))
	}
	if items[0].Content != "message 3" {
		t.Fatalf("oldest = %q, want message 3", items[0].Content)
	}
	if items[9].Content != "message 12" {
		t.Fatalf("newest = %q, want message 12", items[9].Content)
	}
}

func TestWindowBoundHoldsAfterEveryAdd(t *testing.T) {
	s := NewRecentWindowStore(4, 0)
	for i := 0; i < 20; i++ {
		if err := s.Add(model.RoleAssistant, fmt.Sprintf("turn %d", i), nil); err != nil {
			t.Fatalf("Add: %v", err)
		}
		if s.Len() > 4 {
			t.Fatalf("len = %d after add %d, want <= 4", s.Len(), i)
		}
	}
}

func TestWindowRejectsMalformed(t *testing.T) {
	s := NewRecentWindowStore(5, 0)
	if err := s.Add(model.Role("system"), "x", nil); !errors.Is(err, model.ErrMalformedItem) {
		t.Fatalf("bad role err = %v, want ErrMalformedItem", err)
	}
	if err := s.Add(model.RoleUser, "", nil); !errors.Is(err, model.ErrMalformedItem) {
		t.Fatalf("empty content err = %v, want ErrMalformedItem", err)
	}
	if s.Len() != 0 {
		t.Fatalf("len = %d after rejected adds", s.Len())
	}
}

func TestWindowTTLIsLazy(t *testing.T) {
	now := time.Unix(1700000000, 0)
	s := NewRecentWindowStore(10, time.Hour).WithClock(func() time.Time { return now })

	if err := s.Add(model.RoleUser, "old turn", nil); err != nil {
		t.Fatalf("Add: %v", err)
	}
	now = now.Add(30 * time.Minute)
	if err := s.Add(model.RoleUser, "fresh turn", nil); err != nil {
		t.Fatalf("Add: %v", err)
	}

	now = now.Add(45 * time.Minute) // old is 75m, fresh is 45m
	items := s.Recent(0, nil)
	if len(items) != 1 || items[0].Content != "fresh turn" {
		t.Fatalf("items = %+v, want only the fresh turn", items)
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}
}

func TestWindowRecentN(t *testing.T) {
	s := NewRecentWindowStore(10, 0)
	for i := 1; i <= 6; i++ {
		if err := s.Add(model.RoleUser, fmt.Sprintf("m%d", i), nil); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	items := s.Recent(2, nil)
	if len(items) != 2 || items[0].Content != "m5" || items[1].Content != "m6" {
		t.Fatalf("Recent(2) = %+v", items)
	}
}

func TestWindowEmbeddingSearch(t *testing.T) {
	s := NewRecentWindowStore(10, 0)
	add := func(content string, embedding []float32) {
		meta := map[string]any{}
		if embedding != nil {
			meta["embedding"] = embedding
		}
		if err := s.Add(model.RoleUser, content, meta); err != nil {
			t.Fatalf("Add %q: %v", content, err)
		}
	}
	add("aligned", []float32{1, 0})
	add("opposite", []float32{-1, 0})
	add("no embedding", nil)

	scored := s.SearchByEmbedding([]float32{1, 0}, 10)
	if len(scored) != 2 {
		t.Fatalf("len = %d, want 2 (item without embedding excluded)", len(scored))
	}
	if scored[0].Item.Content != "aligned" {
		t.Fatalf("top = %q, want aligned", scored[0].Item.Content)
	}
	if !scored[0].HasScore {
		t.Fatal("ranked result missing HasScore")
	}
}

func TestWindowRecentWithEmbeddingRanks(t *testing.T) {
	s := NewRecentWindowStore(10, 0)
	if err := s.Add(model.RoleUser, "match", map[string]any{"embedding": []float32{0, 1}}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	items := s.Recent(5, []float32{0, 1})
	if len(items) != 1 || items[0].Content != "match" {
		t.Fatalf("Recent with embedding = %+v", items)
	}
}

func TestWindowSnapshotRoundTrip(t *testing.T) {
	s := NewRecentWindowStore(7, time.Hour)
	for i := 0; i < 3; i++ {
		if err := s.Add(model.RoleUser, fmt.Sprintf("m%d", i), map[string]any{"k": "v"}); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	snap := s.Snapshot()
	raw, err := json.Marshal(snap)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded RecentWindowSnapshot
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	restored := RestoreRecentWindow(decoded)
	if restored.MaxCount() != 7 {
		t.Fatalf("MaxCount = %d, want 7", restored.MaxCount())
	}
	items := restored.Recent(0, nil)
	if len(items) != 3 || items[2].Content != "m2" {
		t.Fatalf("restored items = %+v", items)
	}
}
