// Package summarize condenses batches of conversation turns into the short
// summaries that feed the mid-term store.
package summarize

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ctxmem/ctxmem/src/memory/model"
	"github.com/ctxmem/ctxmem/src/models"
)

// Summarizer turns a batch of messages into a summary plus topic tags.
// KeyTopics reads the full batch, not the summary, so topics from the middle
// of the window survive even when the summary only quotes its edges.
type Summarizer interface {
	Summarize(ctx context.Context, messages []model.MemoryItem) (string, error)
	KeyTopics(messages []model.MemoryItem, limit int) []string
}

// snippetLen bounds how much of a message the heuristic summary quotes.
const snippetLen = 100

// topicMinLen is the shortest word counted as a topic candidate.
const topicMinLen = 6

// HeuristicSummarizer builds summaries without a model call: first message,
// a count of what happened in between, last message.
type HeuristicSummarizer struct{}

func (HeuristicSummarizer) Summarize(_ context.Context, messages []model.MemoryItem) (string, error) {
	switch len(messages) {
	case 0:
		return "", fmt.Errorf("%w: no messages to summarize", model.ErrMalformedItem)
	case 1:
		return snippet(messages[0]), nil
	case 2:
		return snippet(messages[0]) + " | " + snippet(messages[1]), nil
	}
	return fmt.Sprintf("%s | [... %d messages exchanged ...] | %s",
		snippet(messages[0]), len(messages)-2, snippet(messages[len(messages)-1])), nil
}

// KeyTopics extracts up to limit distinctive words from the whole batch:
// longer than five characters, first occurrence wins, order preserved.
func (HeuristicSummarizer) KeyTopics(messages []model.MemoryItem, limit int) []string {
	if limit <= 0 {
		limit = 10
	}
	seen := map[string]struct{}{}
	var topics []string
	for _, word := range strings.Fields(strings.ToLower(joinContents(messages))) {
		word = strings.Trim(word, ".,!?;:\"'()[]")
		if len(word) < topicMinLen {
			continue
		}
		if _, ok := seen[word]; ok {
			continue
		}
		seen[word] = struct{}{}
		topics = append(topics, word)
		if len(topics) >= limit {
			break
		}
	}
	return topics
}

func joinContents(messages []model.MemoryItem) string {
	parts := make([]string, 0, len(messages))
	for _, msg := range messages {
		parts = append(parts, msg.Content)
	}
	return strings.Join(parts, " ")
}

func snippet(item model.MemoryItem) string {
	content := item.Content
	if len(content) > snippetLen {
		content = content[:snippetLen]
	}
	return fmt.Sprintf("%s: %s", item.Role, content)
}

var _ Summarizer = HeuristicSummarizer{}

// ModelSummarizer asks a language model to write the summary, falling back to
// the heuristic when the call fails so promotion never depends on a provider
// being up.
type ModelSummarizer struct {
	model    models.Model
	fallback HeuristicSummarizer
}

func NewModelSummarizer(m models.Model) (*ModelSummarizer, error) {
	if m == nil {
		return nil, fmt.Errorf("model is nil")
	}
	return &ModelSummarizer{model: m}, nil
}

func (s *ModelSummarizer) Summarize(ctx context.Context, messages []model.MemoryItem) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("%w: no messages to summarize", model.ErrMalformedItem)
	}
	var b strings.Builder
	b.WriteString("Summarize the following conversation in two sentences, keeping concrete facts:\n\n")
	for _, msg := range messages {
		fmt.Fprintf(&b, "%s: %s\n", msg.Role, msg.Content)
	}
	summary, err := s.model.Generate(ctx, b.String())
	if err != nil {
		return s.fallback.Summarize(ctx, messages)
	}
	summary = strings.TrimSpace(summary)
	if summary == "" {
		return s.fallback.Summarize(ctx, messages)
	}
	return summary, nil
}

// KeyTopics ranks candidates by how often the batch repeats them; a word the
// conversation keeps coming back to is a better tag than one it mentions once.
func (s *ModelSummarizer) KeyTopics(messages []model.MemoryItem, limit int) []string {
	return TopicFrequencies(joinContents(messages), limit)
}

var _ Summarizer = (*ModelSummarizer)(nil)

// TopicFrequencies ranks topic candidates by occurrence count, most frequent
// first, ties broken by first appearance.
func TopicFrequencies(text string, limit int) []string {
	if limit <= 0 {
		limit = 10
	}
	counts := map[string]int{}
	first := map[string]int{}
	order := 0
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'()[]")
		if len(word) < topicMinLen {
			continue
		}
		if _, ok := counts[word]; !ok {
			first[word] = order
			order++
		}
		counts[word]++
	}
	topics := make([]string, 0, len(counts))
	for word := range counts {
		topics = append(topics, word)
	}
	sort.Slice(topics, func(i, j int) bool {
		if counts[topics[i]] != counts[topics[j]] {
			return counts[topics[i]] > counts[topics[j]]
		}
		return first[topics[i]] < first[topics[j]]
	})
	if len(topics) > limit {
		topics = topics[:limit]
	}
	return topics
}
