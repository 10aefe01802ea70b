package processing

import "strings"

// summaryBodyChars is the spec's fixed excerpt length (spec §4.E.2).
const summaryBodyChars = 200

// SummarizationStage produces a short title-prefixed excerpt of each
// item's body, broken at the last full stop within the excerpt window
// when one exists.
type SummarizationStage struct{}

// NewSummarizationStage returns the reference lexical summarizer.
func NewSummarizationStage() *SummarizationStage { return &SummarizationStage{} }

func (s *SummarizationStage) Process(in Input) (Output, error) {
	out := make([]AnnotatedItem, len(in.Items))
	for i, item := range in.Items {
		body := item.Item.Content
		if body == "" {
			body = item.Item.Description
		}
		item.Summary = summarize(item.Item.Title, body)
		out[i] = item
	}
	return Output{Items: out, Metadata: in.Metadata}, nil
}

func summarize(title, body string) string {
	excerpt := body
	if len(excerpt) > summaryBodyChars {
		excerpt = excerpt[:summaryBodyChars]
	}
	if idx := strings.LastIndex(excerpt, "."); idx > 0 {
		excerpt = excerpt[:idx+1]
	}
	excerpt = strings.TrimSpace(excerpt)
	if excerpt == "" {
		return title
	}
	return title + ": " + excerpt
}
