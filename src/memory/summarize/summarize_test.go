package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/ctxmem/ctxmem/src/memory/model"
)

func turn(role model.Role, content string) model.MemoryItem {
	return model.MemoryItem{Role: role, Content: content}
}

func TestHeuristicSummaryShape(t *testing.T) {
	s := HeuristicSummarizer{}
	out, err := s.Summarize(context.Background(), []model.MemoryItem{
		turn(model.RoleUser, "how do I configure the cache?"),
		turn(model.RoleAssistant, "set the capacity and TTL in the options"),
		turn(model.RoleUser, "and eviction?"),
		turn(model.RoleAssistant, "least recently used entries go first"),
	})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if !strings.HasPrefix(out, "user: how do I configure the cache?") {
		t.Fatalf("summary does not open with the first turn: %q", out)
	}
	if !strings.Contains(out, "[... 2 messages exchanged ...]") {
		t.Fatalf("summary missing the middle marker: %q", out)
	}
	if !strings.HasSuffix(out, "assistant: least recently used entries go first") {
		t.Fatalf("summary does not close with the last turn: %q", out)
	}
}

func TestHeuristicSummaryTruncatesLongTurns(t *testing.T) {
	s := HeuristicSummarizer{}
	long := strings.Repeat("x", 300)
	out, err := s.Summarize(context.Background(), []model.MemoryItem{
		turn(model.RoleUser, long),
		turn(model.RoleAssistant, "ok"),
		turn(model.RoleUser, long),
	})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if strings.Contains(out, strings.Repeat("x", 101)) {
		t.Fatalf("quoted turn not truncated to 100 chars: %q", out)
	}
}

func TestHeuristicSummaryEdgeCounts(t *testing.T) {
	s := HeuristicSummarizer{}
	if _, err := s.Summarize(context.Background(), nil); !errors.Is(err, model.ErrMalformedItem) {
		t.Fatalf("err = %v, want ErrMalformedItem", err)
	}
	out, err := s.Summarize(context.Background(), []model.MemoryItem{turn(model.RoleUser, "solo")})
	if err != nil || out != "user: solo" {
		t.Fatalf("single turn = %q, %v", out, err)
	}
	out, err = s.Summarize(context.Background(), []model.MemoryItem{
		turn(model.RoleUser, "ping"), turn(model.RoleAssistant, "pong"),
	})
	if err != nil || out != "user: ping | assistant: pong" {
		t.Fatalf("two turns = %q, %v", out, err)
	}
}

func TestKeyTopics(t *testing.T) {
	s := HeuristicSummarizer{}
	topics := s.KeyTopics([]model.MemoryItem{
		turn(model.RoleUser, "the deployment pipeline validates"),
		turn(model.RoleAssistant, "the deployment manifest before rollout"),
	}, 10)
	if len(topics) == 0 {
		t.Fatal("no topics")
	}
	if topics[0] != "deployment" {
		t.Fatalf("topics[0] = %q, want first-seen long word", topics[0])
	}
	for i, topic := range topics {
		if len(topic) < 6 {
			t.Fatalf("topic %q too short", topic)
		}
		for j := 0; j < i; j++ {
			if topics[j] == topic {
				t.Fatalf("duplicate topic %q", topic)
			}
		}
	}
}

func TestKeyTopicsCoversWholeBatch(t *testing.T) {
	s := HeuristicSummarizer{}
	// The summary for this window quotes only the first and last turns; the
	// topics must still see the middle ones.
	topics := s.KeyTopics([]model.MemoryItem{
		turn(model.RoleUser, "hi"),
		turn(model.RoleAssistant, "the migration touches the billing schema"),
		turn(model.RoleUser, "ok"),
	}, 10)
	found := false
	for _, topic := range topics {
		if topic == "billing" {
			found = true
		}
	}
	if !found {
		t.Fatalf("topics = %v, want mid-window word %q", topics, "billing")
	}
}

func TestKeyTopicsLimit(t *testing.T) {
	s := HeuristicSummarizer{}
	var words []string
	for i := 0; i < 20; i++ {
		words = append(words, fmt.Sprintf("distinct%02d", i))
	}
	topics := s.KeyTopics([]model.MemoryItem{turn(model.RoleUser, strings.Join(words, " "))}, 10)
	if len(topics) != 10 {
		t.Fatalf("len = %d, want 10", len(topics))
	}
}

type fixedModel struct {
	out string
	err error
}

func (m fixedModel) Generate(_ context.Context, _ string) (string, error) {
	return m.out, m.err
}

func TestModelSummarizerUsesModelOutput(t *testing.T) {
	s, err := NewModelSummarizer(fixedModel{out: "a crisp model summary"})
	if err != nil {
		t.Fatalf("NewModelSummarizer: %v", err)
	}
	out, err := s.Summarize(context.Background(), []model.MemoryItem{turn(model.RoleUser, "hello")})
	if err != nil {
		t.Fatalf("Summarize: %v", err)
	}
	if out != "a crisp model summary" {
		t.Fatalf("out = %q", out)
	}
}

func TestModelSummarizerFallsBackOnError(t *testing.T) {
	s, err := NewModelSummarizer(fixedModel{err: errors.New("provider down")})
	if err != nil {
		t.Fatalf("NewModelSummarizer: %v", err)
	}
	out, err := s.Summarize(context.Background(), []model.MemoryItem{
		turn(model.RoleUser, "hello"),
		turn(model.RoleAssistant, "hi there"),
	})
	if err != nil {
		t.Fatalf("fallback should not error: %v", err)
	}
	if !strings.Contains(out, "user: hello") {
		t.Fatalf("fallback summary = %q", out)
	}
}

func TestTopicFrequencies(t *testing.T) {
	topics := TopicFrequencies("kubernetes cluster kubernetes upgrade cluster kubernetes", 2)
	if len(topics) != 2 {
		t.Fatalf("len = %d, want 2", len(topics))
	}
	if topics[0] != "kubernetes" || topics[1] != "cluster" {
		t.Fatalf("topics = %v, want frequency order", topics)
	}
}

func TestModelSummarizerTopicsByFrequency(t *testing.T) {
	s, err := NewModelSummarizer(fixedModel{out: "summary"})
	if err != nil {
		t.Fatalf("NewModelSummarizer: %v", err)
	}
	topics := s.KeyTopics([]model.MemoryItem{
		turn(model.RoleUser, "the cluster upgrade broke the cluster dashboard"),
		turn(model.RoleAssistant, "roll the cluster back before the upgrade window"),
	}, 2)
	if len(topics) != 2 || topics[0] != "cluster" || topics[1] != "upgrade" {
		t.Fatalf("topics = %v, want most-repeated words first", topics)
	}
}
