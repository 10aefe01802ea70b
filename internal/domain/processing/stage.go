// Package processing implements the Processing Stages (spec §4.E): a fixed
// per-user chain of pure transformations — relevance scoring,
// summarization, filtering — applied to newly stored items before they
// reach a user's aggregator. Stages never touch the State Store or the
// network.
package processing

import "feedmesh/internal/domain/entity"

// AnnotatedItem carries an item through the processing chain along with
// the annotations later stages read (relevance_score, summary).
type AnnotatedItem struct {
	Item           entity.Item
	RelevanceScore float64
	Summary        string
}

// Metadata is the free-form key/value bag threaded alongside items through
// a processing chain run.
type Metadata map[string]any

// Input is what one stage consumes.
type Input struct {
	Items       []AnnotatedItem
	Preferences *entity.UserPreferences
	Memory      string
	Metadata    Metadata
}

// Output is what one stage produces, and becomes the next stage's Input
// items/metadata (Preferences/Memory pass through unchanged by the chain
// runner, not by each stage).
type Output struct {
	Items    []AnnotatedItem
	Metadata Metadata
}

// Stage is one step of a user's processing chain.
type Stage interface {
	Process(in Input) (Output, error)
}

// Chain runs a fixed ordered sequence of stages, threading metadata and
// passing Preferences/Memory through unchanged to every stage.
type Chain struct {
	Stages []Stage
}

// Run executes every stage in order, feeding each stage's output items and
// metadata into the next stage's input.
func (c Chain) Run(items []AnnotatedItem, preferences *entity.UserPreferences, memory string) ([]AnnotatedItem, error) {
	in := Input{Items: items, Preferences: preferences, Memory: memory, Metadata: Metadata{}}
	for _, stage := range c.Stages {
		out, err := stage.Process(in)
		if err != nil {
			return nil, err
		}
		in = Input{Items: out.Items, Preferences: preferences, Memory: memory, Metadata: out.Metadata}
	}
	return in.Items, nil
}

// DefaultChain returns the reference stage composition: Relevance,
// Summarization, Filter, in that order.
func DefaultChain() Chain {
	return Chain{Stages: []Stage{
		NewRelevanceStage(),
		NewSummarizationStage(),
		NewFilterStage(DefaultFilterConfig()),
	}}
}
