package processing

import "sort"

// FilterConfig holds the thresholds spec §4.E.3 defaults.
type FilterConfig struct {
	MinRelevanceScore float64
	MaxItems          int
}

// DefaultFilterConfig returns the spec's defaults: min_relevance_score 0.3,
// max_items 10.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{MinRelevanceScore: 0.3, MaxItems: 10}
}

// FilterStage drops items below the minimum relevance score, then sorts
// the remainder by score descending and truncates to MaxItems.
type FilterStage struct {
	cfg FilterConfig
}

// NewFilterStage returns a FilterStage using cfg's thresholds.
func NewFilterStage(cfg FilterConfig) *FilterStage { return &FilterStage{cfg: cfg} }

func (s *FilterStage) Process(in Input) (Output, error) {
	kept := make([]AnnotatedItem, 0, len(in.Items))
	for _, item := range in.Items {
		if item.RelevanceScore >= s.cfg.MinRelevanceScore {
			kept = append(kept, item)
		}
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].RelevanceScore > kept[j].RelevanceScore
	})

	if s.cfg.MaxItems > 0 && len(kept) > s.cfg.MaxItems {
		kept = kept[:s.cfg.MaxItems]
	}

	return Output{Items: kept, Metadata: in.Metadata}, nil
}
