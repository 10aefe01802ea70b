// Package scheduler implements the Scheduler (spec §4.C): a tick-based loop
// that picks due sources from the State Store, dispatches each to the right
// fetcher on a bounded worker pool, and folds the outcome back into the
// State Store's scheduling fields. The next_fetch_instant backoff formula
// itself lives in the State Store's ListDueSources query (the generic
// last_fetch_instant + base_interval × 2^min(consecutive_error_count, 5)
// rule); this package owns the tick loop, per-source serialization, and the
// IMAP-specific interval tiering the generic formula doesn't express.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"feedmesh/internal/domain/entity"
	"feedmesh/internal/domain/fetcherr"
	"feedmesh/internal/repository"
)

// RSSFetcher is the surface the Scheduler drives for RSS/Atom sources,
// satisfied by *fetcher.RSSFetcher.
type RSSFetcher interface {
	Fetch(ctx context.Context, source *entity.Source) ([]*entity.Item, entity.FetchResult, error)
}

// IMAPFetcher is the surface the Scheduler drives for IMAP sources,
// satisfied by *fetcher.IMAPFetcher.
type IMAPFetcher interface {
	Fetch(ctx context.Context, source *entity.Source, cred *entity.Credential) ([]*entity.Item, entity.FetchResult, error)
}

// ItemHandler receives the items a fetch produced, after the outcome has
// already been applied to the State Store, and reports whether they were
// durably persisted. Implemented by the Pipeline Orchestrator (spec §4.G),
// which owns persistence and per-user fan-out. A non-nil error means the
// scheduler must not advance the source's sync cursor for this attempt.
type ItemHandler func(ctx context.Context, source *entity.Source, items []*entity.Item) error

// Config controls the scheduler's tick cadence and concurrency bounds.
type Config struct {
	TickPeriod           time.Duration
	BatchSize            int
	MaxConcurrentFetches int
	AttemptTimeout       time.Duration
	ShutdownGrace        time.Duration
}

// DefaultConfig returns the values spec §6 documents as scheduler defaults.
func DefaultConfig() Config {
	return Config{
		TickPeriod:           5 * time.Second,
		BatchSize:            20,
		MaxConcurrentFetches: 10,
		AttemptTimeout:       60 * time.Second,
		ShutdownGrace:        15 * time.Second,
	}
}

// Scheduler runs the tick loop described in spec §4.C.
type Scheduler struct {
	sources     repository.SourceRepository
	credentials repository.CredentialRepository
	rss         RSSFetcher
	imap        IMAPFetcher
	cfg         Config
	onItems     ItemHandler

	inFlight sync.Map // entity.Source.ID -> struct{}, at most one fetch per source
}

// New builds a Scheduler. onItems is called for every fetch that yields at
// least one item; it may be nil for tests that only exercise outcome
// bookkeeping.
func New(sources repository.SourceRepository, credentials repository.CredentialRepository, rss RSSFetcher, imap IMAPFetcher, cfg Config, onItems ItemHandler) *Scheduler {
	return &Scheduler{
		sources:     sources,
		credentials: credentials,
		rss:         rss,
		imap:        imap,
		cfg:         cfg,
		onItems:     onItems,
	}
}

// Run blocks ticking every cfg.TickPeriod until ctx is cancelled. On
// cancellation it waits up to cfg.ShutdownGrace for in-flight fetches to
// finish, then returns without persisting anything further (spec §5:
// "abandons remaining work without persisting partial state").
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.TickPeriod)
	defer ticker.Stop()

	sem := make(chan struct{}, s.cfg.MaxConcurrentFetches)
	var wg sync.WaitGroup

	for {
		select {
		case <-ctx.Done():
			drained := make(chan struct{})
			go func() {
				wg.Wait()
				close(drained)
			}()
			select {
			case <-drained:
			case <-time.After(s.cfg.ShutdownGrace):
				slog.Warn("scheduler shutdown grace period elapsed, abandoning in-flight fetches")
			}
			return ctx.Err()

		case <-ticker.C:
			due, err := s.sources.ListDueSources(ctx, s.cfg.BatchSize)
			if err != nil {
				slog.Error("list due sources", slog.Any("err", err))
				continue
			}
			for _, src := range due {
				if _, inFlight := s.inFlight.LoadOrStore(src.ID, struct{}{}); inFlight {
					continue
				}

				select {
				case sem <- struct{}{}:
				case <-ctx.Done():
					s.inFlight.Delete(src.ID)
					continue
				}

				wg.Add(1)
				go func(src *entity.Source) {
					defer wg.Done()
					defer func() { <-sem }()
					defer s.inFlight.Delete(src.ID)
					s.fetchOne(ctx, src)
				}(src)
			}
		}
	}
}

// TriggerNow fetches every currently active, registered source once,
// bypassing the tick schedule (spec §4.G's manual "trigger now" hook, used
// by tests and the CLI). Unlike Run, it waits for every fetch to finish
// before returning.
func (s *Scheduler) TriggerNow(ctx context.Context) error {
	sources, err := s.sources.ListSources(ctx)
	if err != nil {
		return fmt.Errorf("TriggerNow: %w", err)
	}

	sem := make(chan struct{}, s.cfg.MaxConcurrentFetches)
	var wg sync.WaitGroup
	for _, src := range sources {
		if !src.Active {
			continue
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(src *entity.Source) {
			defer wg.Done()
			defer func() { <-sem }()
			s.fetchOne(ctx, src)
		}(src)
	}
	wg.Wait()
	return nil
}

func (s *Scheduler) fetchOne(ctx context.Context, src *entity.Source) {
	attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.AttemptTimeout)
	defer cancel()

	var (
		items  []*entity.Item
		result entity.FetchResult
		err    error
		email  string
	)

	switch src.Kind {
	case entity.SourceKindRSS:
		items, result, err = s.rss.Fetch(attemptCtx, src)
	case entity.SourceKindIMAP:
		var cred *entity.Credential
		cred, email, err = s.credentialFor(attemptCtx, src)
		if err == nil {
			items, result, err = s.imap.Fetch(attemptCtx, src, cred)
		} else {
			result = entity.FetchResult{Success: false, Err: err}
		}
	default:
		err = entity.ErrUnknownSourceKind
		result = entity.FetchResult{Success: false, Err: err}
	}

	notModified := errors.Is(err, fetcherr.ErrNotModified)

	outcome := repository.FetchOutcome{Result: result}
	if src.Kind == entity.SourceKindIMAP {
		interval := imapIntervalOverride(err)
		outcome.NextIntervalOverride = &interval
	}

	if applyErr := s.sources.ApplyFetchOutcome(ctx, src.ID, outcome); applyErr != nil {
		slog.Error("apply fetch outcome", slog.Int64("source_id", src.ID), slog.Any("err", applyErr))
	}

	if err != nil && !notModified {
		slog.Warn("fetch failed", slog.Int64("source_id", src.ID), slog.String("kind", string(src.Kind)), slog.Any("err", err))
		return
	}

	// Items must be durably persisted before the IMAP sync cursor advances,
	// so a crash between fetch and persistence re-reads the same messages on
	// the next poll instead of skipping them (spec §4.C/§7).
	persisted := true
	if len(items) > 0 && s.onItems != nil {
		if persistErr := s.onItems(ctx, src, items); persistErr != nil {
			persisted = false
			slog.Error("persist fetched items", slog.Int64("source_id", src.ID), slog.Any("err", persistErr))
		}
	}

	if persisted && src.Kind == entity.SourceKindIMAP && result.Success && result.NewSyncInstant != nil {
		if syncErr := s.sources.AdvanceSyncCursor(ctx, src.ID, *result.NewSyncInstant); syncErr != nil {
			slog.Error("advance sync cursor", slog.Int64("source_id", src.ID), slog.Any("err", syncErr))
		}
		if email != "" {
			if syncErr := s.credentials.RecordCredentialSync(ctx, email, *result.NewSyncInstant); syncErr != nil {
				slog.Error("record credential sync", slog.String("email", email), slog.Any("err", syncErr))
			}
		}
	}
}

// credentialFor resolves the mailbox credential for an IMAP source, keyed
// by the email address in its URI's user component.
func (s *Scheduler) credentialFor(ctx context.Context, src *entity.Source) (*entity.Credential, string, error) {
	uri, err := entity.ParseIMAPURI(src.URI)
	if err != nil {
		return nil, "", &fetcherr.ConfigError{Reason: err.Error()}
	}
	if uri.User == "" {
		return nil, "", &fetcherr.ConfigError{Reason: "imap uri has no user/email component"}
	}
	cred, err := s.credentials.GetCredential(ctx, uri.User)
	if err != nil {
		return nil, uri.User, &fetcherr.ConfigError{Reason: err.Error()}
	}
	if cred == nil {
		return nil, uri.User, &fetcherr.ConfigError{Reason: fmt.Sprintf("no credential registered for %s", uri.User)}
	}
	return cred, uri.User, nil
}

// imapIntervalOverride implements IMAP's tiered base_interval (spec §4.C):
// 30s after a clean poll, 60s after a fetch error, 5m after a
// credential/config error. Grounded on the WatchRest{wait_at_least_ms}
// tiers of the email ingester this fetcher descends from.
func imapIntervalOverride(err error) time.Duration {
	if err == nil || errors.Is(err, fetcherr.ErrNotModified) {
		return 30 * time.Second
	}
	var cfgErr *fetcherr.ConfigError
	var authErr *fetcherr.AuthError
	if errors.As(err, &cfgErr) || errors.As(err, &authErr) {
		return 5 * time.Minute
	}
	return 60 * time.Second
}
