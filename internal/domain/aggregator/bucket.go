// Package aggregator implements the Aggregator Registry (spec §4.F):
// per-user time-bucket buffers that accumulate items until a bucket
// window has elapsed, then emit a digest.
package aggregator

import (
	"fmt"
	"sync"
	"time"

	"feedmesh/internal/domain/entity"
)

// TimeBucketAggregator buffers items for one user until Ready reports the
// bucket window has elapsed, then Emit atomically drains the buffer into
// an AggregatedOutput.
type TimeBucketAggregator struct {
	mu sync.Mutex

	userID            string
	kind              entity.AggregatorKind
	bucketDuration    time.Duration
	maxItemsPerBucket int

	items           []entity.Item
	lastEmitInstant *time.Time

	now func() time.Time
}

// Config configures a new aggregator instance.
type Config struct {
	Kind              entity.AggregatorKind
	BucketDuration    time.Duration // only consulted when Kind is AggregatorCustom
	MaxItemsPerBucket int
}

// DefaultMaxItemsPerBucket bounds a bucket's memory footprint when a
// caller doesn't configure one explicitly.
const DefaultMaxItemsPerBucket = 200

// New builds a TimeBucketAggregator for userID from cfg. BucketDuration
// comes from Kind's fixed table unless Kind is AggregatorCustom.
func New(userID string, cfg Config) *TimeBucketAggregator {
	duration := cfg.Kind.BucketDuration()
	if cfg.Kind == entity.AggregatorCustom {
		duration = cfg.BucketDuration
	}
	maxItems := cfg.MaxItemsPerBucket
	if maxItems <= 0 {
		maxItems = DefaultMaxItemsPerBucket
	}
	return &TimeBucketAggregator{
		userID:            userID,
		kind:              cfg.Kind,
		bucketDuration:    duration,
		maxItemsPerBucket: maxItems,
		now:               time.Now,
	}
}

// Restore rebuilds an aggregator from persisted state (State Store load on
// startup), preserving the buffered items and last-emit instant.
func Restore(state *entity.AggregatorState) *TimeBucketAggregator {
	a := New(state.UserID, Config{
		Kind:              state.Kind,
		BucketDuration:    state.BucketDuration,
		MaxItemsPerBucket: state.MaxItemsPerBucket,
	})
	a.items = append([]entity.Item(nil), state.BufferedItems...)
	a.lastEmitInstant = state.LastEmitInstant
	return a
}

// AddItem appends item to the buffer, evicting the oldest buffered item
// (FIFO) if the buffer would exceed maxItemsPerBucket.
func (a *TimeBucketAggregator) AddItem(item entity.Item) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.items = append(a.items, item)
	if len(a.items) > a.maxItemsPerBucket {
		a.items = a.items[len(a.items)-a.maxItemsPerBucket:]
	}
}

// Ready reports whether the buffer is non-empty and either no digest has
// ever been emitted or the bucket window has elapsed since the last one.
func (a *TimeBucketAggregator) Ready() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.readyLocked()
}

func (a *TimeBucketAggregator) readyLocked() bool {
	if len(a.items) == 0 {
		return false
	}
	if a.lastEmitInstant == nil {
		return true
	}
	return a.now().Sub(*a.lastEmitInstant) >= a.bucketDuration
}

// Emit atomically moves the buffered items out and returns them as an
// AggregatedOutput, doing nothing (and returning false) if not Ready.
// Items added while Emit runs belong to the next bucket: AddItem and Emit
// share the same mutex, so no add can interleave with a drain.
func (a *TimeBucketAggregator) Emit() (entity.AggregatedOutput, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.readyLocked() {
		return entity.AggregatedOutput{}, false
	}

	items := a.items
	a.items = nil
	createdAt := a.now()
	a.lastEmitInstant = &createdAt

	return entity.AggregatedOutput{
		UserID:      a.userID,
		KindTag:     a.kind,
		Items:       items,
		SummaryText: summaryText(items),
		CreatedAt:   createdAt,
		Metadata: entity.AggregatedOutputMetadata{
			BucketDurationHours: a.bucketDuration.Hours(),
			ItemsCount:          len(items),
		},
	}, true
}

// State snapshots the aggregator for persistence (State Store save).
func (a *TimeBucketAggregator) State() *entity.AggregatorState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return &entity.AggregatorState{
		UserID:            a.userID,
		Kind:              a.kind,
		BucketDuration:    a.bucketDuration,
		MaxItemsPerBucket: a.maxItemsPerBucket,
		LastEmitInstant:   a.lastEmitInstant,
		BufferedItems:     append([]entity.Item(nil), a.items...),
	}
}

// maxSummaryItems is how many item titles the summary text enumerates.
const maxSummaryItems = 10

func summaryText(items []entity.Item) string {
	limit := len(items)
	if limit > maxSummaryItems {
		limit = maxSummaryItems
	}
	var text string
	for i := 0; i < limit; i++ {
		if i > 0 {
			text += "\n"
		}
		text += fmt.Sprintf("%s (%s)", items[i].Title, items[i].URI)
	}
	return text
}
