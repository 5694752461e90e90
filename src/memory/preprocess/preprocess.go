// Package preprocess cleans incoming queries and extracts the keyword and
// intent signals the retrieval tiers key on.
package preprocess

import "strings"

// keywordMinLen is the shortest word counted as a keyword.
const keywordMinLen = 4

// maxKeywords caps the keyword list handed to the summary tier.
const maxKeywords = 10

// Intent is a coarse classification of what the query is asking for.
type Intent string

const (
	IntentQuestion Intent = "question"
	IntentRecall   Intent = "recall"
	IntentCommand  Intent = "command"
	IntentChat     Intent = "chat"
)

// Query is a preprocessed user query.
type Query struct {
	Raw      string
	Text     string
	Keywords []string
	Intent   Intent
}

// Prepare normalizes the raw query and derives its keywords and intent.
func Prepare(raw string) Query {
	text := Normalize(raw)
	return Query{
		Raw:      raw,
		Text:     text,
		Keywords: Keywords(text),
		Intent:   DetectIntent(text),
	}
}

// Normalize collapses whitespace and trims the query.
func Normalize(raw string) string {
	return strings.Join(strings.Fields(raw), " ")
}

// Keywords returns up to ten words of four or more characters, lowercased,
// first occurrence wins, order preserved.
func Keywords(text string) []string {
	seen := map[string]struct{}{}
	var keywords []string
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'()[]")
		if len(word) < keywordMinLen {
			continue
		}
		if _, ok := seen[word]; ok {
			continue
		}
		seen[word] = struct{}{}
		keywords = append(keywords, word)
		if len(keywords) >= maxKeywords {
			break
		}
	}
	return keywords
}

var recallMarkers = []string{
	"remember", "recall", "last time", "earlier", "previously",
	"we discussed", "you said", "you told me",
}

var commandMarkers = []string{
	"show ", "list ", "add ", "delete ", "clear ", "set ", "run ",
}

// DetectIntent classifies the query with marker phrases. Recall beats
// question: "do you remember what I said?" is a memory lookup, not a fresh
// question.
func DetectIntent(text string) Intent {
	lower := strings.ToLower(text)
	for _, marker := range recallMarkers {
		if strings.Contains(lower, marker) {
			return IntentRecall
		}
	}
	if strings.HasSuffix(strings.TrimSpace(lower), "?") {
		return IntentQuestion
	}
	for _, marker := range commandMarkers {
		if strings.HasPrefix(lower, strings.TrimSpace(marker)+" ") || strings.HasPrefix(lower, marker) {
			return IntentCommand
		}
	}
	return IntentChat
}
