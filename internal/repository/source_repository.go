// Package repository defines the State Store's interfaces (spec §4.A):
// the persistence boundary every other component goes through. No
// component holds a shared mutable in-memory graph of these entities.
package repository

import (
	"context"
	"time"

	"feedmesh/internal/domain/entity"
)

// FetchOutcome is what the scheduler/fetchers report back to the State
// Store after an attempt, to be folded into the source's cursor and
// scheduling fields by ApplyFetchOutcome.
type FetchOutcome struct {
	Result entity.FetchResult

	// NextIntervalOverride replaces the source's stored base_interval when
	// set, instead of leaving the generic last_fetch_instant+base_interval
	// formula to run unmodified. Used by the scheduler for IMAP's tiered
	// base_interval (spec §4.C: 30s on success, 60s on fetch error, 5m on
	// credential/config error) which the generic doubling formula alone
	// can't express. Left nil for RSS sources.
	NextIntervalOverride *time.Duration
}

// SourceRepository is the State Store's source-facing surface:
// register_source, get_source, list_due_sources, apply_fetch_outcome.
type SourceRepository interface {
	RegisterSource(ctx context.Context, source *entity.Source) error
	GetSource(ctx context.Context, id int64) (*entity.Source, error)
	ListSources(ctx context.Context) ([]*entity.Source, error)

	// ListDueSources returns active sources whose next_fetch_instant is
	// now-or-earlier, ordered by priority then by last_fetch_instant
	// ascending (nulls first), per spec §4.A.
	ListDueSources(ctx context.Context, limit int) ([]*entity.Source, error)

	// ApplyFetchOutcome folds a fetch result into the source row: on
	// success, clears error fields and refreshes the ETag/Last-Modified
	// cursor; on failure, increments consecutive_error_count and records the
	// error text. It never touches last_sync_instant — that cursor only
	// advances once the fetch's items have been durably persisted, via
	// AdvanceSyncCursor.
	ApplyFetchOutcome(ctx context.Context, sourceID int64, outcome FetchOutcome) error

	// AdvanceSyncCursor sets last_sync_instant, the cursor IMAPFetcher reads
	// to build its next SEARCH SINCE. Callers must only invoke this after
	// the fetch's items (if any) are durably stored, so a crash between
	// fetch and persistence re-reads the same messages rather than skipping
	// them.
	AdvanceSyncCursor(ctx context.Context, sourceID int64, instant time.Time) error

	Deactivate(ctx context.Context, id int64) error
}
