package processing

import (
	"strings"
)

// topicTags is the fixed, spec-named topic vocabulary matched by substring
// over preferences and memory text.
var topicTags = []string{
	"technology", "politics", "business", "science", "sports", "artificial-intelligence",
}

// stopWords is excluded from keyword extraction regardless of length.
var stopWords = map[string]struct{}{
	"that": {}, "this": {}, "with": {}, "from": {}, "have": {}, "will": {},
	"your": {}, "their": {}, "about": {}, "which": {}, "there": {}, "would": {},
	"been": {}, "into": {}, "more": {}, "some": {}, "like": {}, "than": {},
	"when": {}, "what": {}, "where": {}, "these": {}, "those": {}, "them": {},
}

// RelevanceStage scores items against a user's preferences and memory text
// (spec §4.E.1): keyword hits, topic-tag hits, and exact-phrase hits,
// boosted when a keyword also appears in the item's title.
type RelevanceStage struct{}

// NewRelevanceStage returns the reference lexical relevance scorer.
func NewRelevanceStage() *RelevanceStage { return &RelevanceStage{} }

func (s *RelevanceStage) Process(in Input) (Output, error) {
	prefText := ""
	if in.Preferences != nil {
		prefText = in.Preferences.DescriptionText
	}
	combined := prefText + " " + in.Memory

	keywords := extractKeywords(combined)
	topics := extractTopics(combined)
	phrase := strings.ToLower(strings.TrimSpace(prefText))

	out := make([]AnnotatedItem, len(in.Items))
	for i, item := range in.Items {
		text := strings.ToLower(item.Item.Text)
		title := strings.ToLower(item.Item.Title)

		var score float64
		if anyContains(text, keywords) {
			score += 0.3
		}
		if anyContains(text, topics) {
			score += 0.4
		}
		if phrase != "" && strings.Contains(text, phrase) {
			score += 0.5
		}
		for _, kw := range keywords {
			if strings.Contains(title, kw) {
				score += 0.2
			}
		}
		if score > 1.0 {
			score = 1.0
		}

		item.RelevanceScore = score
		out[i] = item
	}

	return Output{Items: out, Metadata: in.Metadata}, nil
}

// Reflect updates a user's memory text with a short success/improvement
// note after a digest has been delivered and feedback is available
// (original_source/rss-aggregator/src/digest.rs's RssDigestModel::reflect).
// Not wired into the default pipeline — no feedback channel exists in
// scope — but available to a caller that has one.
func (s *RelevanceStage) Reflect(memory string, won bool) string {
	const maxMemoryLen = 2000
	note := "improve: broaden topic matching"
	if won {
		note = "success: current topics resonated"
	}
	updated := strings.TrimSpace(memory + "\n" + note)
	if len(updated) > maxMemoryLen {
		updated = updated[len(updated)-maxMemoryLen:]
	}
	return updated
}

// extractKeywords tokenizes text and keeps tokens at least 4 characters
// long that are not in the stop-word set.
func extractKeywords(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '-'
	})
	seen := make(map[string]struct{})
	var keywords []string
	for _, f := range fields {
		if len(f) < 4 {
			continue
		}
		if _, stop := stopWords[f]; stop {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		keywords = append(keywords, f)
	}
	return keywords
}

// extractTopics returns the subset of topicTags appearing as a substring
// of text (case-insensitive).
func extractTopics(text string) []string {
	lower := strings.ToLower(text)
	var topics []string
	for _, t := range topicTags {
		if strings.Contains(lower, t) {
			topics = append(topics, t)
		}
	}
	return topics
}

func anyContains(haystack string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
