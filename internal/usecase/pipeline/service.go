// Package pipeline implements the Pipeline Orchestrator (spec §4.G): it
// wires the Scheduler onto the State Store and the per-user Processing
// Stages + Aggregator Registry, so a fetch turns into persisted items and
// persisted items turn into per-user digests. It owns nothing the other
// components already own — just the sequencing between them.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"feedmesh/internal/domain/aggregator"
	"feedmesh/internal/domain/entity"
	"feedmesh/internal/domain/processing"
	"feedmesh/internal/domain/scheduler"
	"feedmesh/internal/repository"

	"golang.org/x/sync/errgroup"
)

// Config controls the orchestrator's own concerns: how often matured
// buckets are swept for emission, and what aggregator bucket a user is
// registered with the first time they're seen.
type Config struct {
	SweepPeriod time.Duration
	DefaultKind entity.AggregatorKind
}

// DefaultConfig returns spec §4.G.1's default sweep_period of 30s.
func DefaultConfig() Config {
	return Config{
		SweepPeriod: 30 * time.Second,
		DefaultKind: entity.AggregatorDaily,
	}
}

// Service is the Pipeline Orchestrator.
type Service struct {
	cfg Config

	items       repository.ItemRepository
	aggregators repository.AggregatorRepository
	preferences repository.PreferencesRepository

	registry *aggregator.Registry
	chain    processing.Chain

	digestsIn chan<- entity.AggregatedOutput
	// Digests is the unbounded handoff channel external consumers (e.g. a
	// notifier) drain emitted digests from (spec §4.G.3). Backed by an
	// internal queueing goroutine rather than a buffered channel, so a slow
	// or absent consumer never blocks emission.
	Digests <-chan entity.AggregatedOutput
}

// New builds a Service around a fixed processing chain (spec §4.E's
// reference stages: relevance, summarization, filter).
func New(items repository.ItemRepository, aggregators repository.AggregatorRepository, preferences repository.PreferencesRepository, cfg Config) *Service {
	in, out := newUnboundedDigestChannel()
	return &Service{
		cfg:         cfg,
		items:       items,
		aggregators: aggregators,
		preferences: preferences,
		registry:    aggregator.NewRegistry(),
		chain:       processing.DefaultChain(),
		digestsIn:   in,
		Digests:     out,
	}
}

// LoadPersistedState restores every known user's aggregator buffer from the
// State Store into the registry. Call once before Run.
func (s *Service) LoadPersistedState(ctx context.Context) error {
	userIDs, err := s.preferences.ListUserIDs(ctx)
	if err != nil {
		return fmt.Errorf("LoadPersistedState: list user ids: %w", err)
	}
	for _, userID := range userIDs {
		state, err := s.aggregators.GetAggregatorState(ctx, userID)
		if err != nil {
			return fmt.Errorf("LoadPersistedState: get aggregator state for %s: %w", userID, err)
		}
		if state != nil {
			s.registry.Configure(state)
		} else {
			s.registry.Create(userID, aggregator.Config{Kind: s.cfg.DefaultKind})
		}
	}
	return nil
}

// Run starts the scheduler and the emit-sweeper and blocks until ctx is
// cancelled (spec §4.G.1). Callers must call LoadPersistedState first.
func (s *Service) Run(ctx context.Context, sched *scheduler.Scheduler) error {
	var wg sync.WaitGroup
	var schedErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		schedErr = sched.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		s.runSweeper(ctx)
	}()

	wg.Wait()
	close(s.digestsIn)
	return schedErr
}

// TriggerNow bypasses the tick schedule: it fetches every active source
// once and sweeps for ready emissions, then returns (spec §4.G's manual
// "trigger now" hook, used by tests and the CLI).
func (s *Service) TriggerNow(ctx context.Context, sched *scheduler.Scheduler) error {
	if err := sched.TriggerNow(ctx); err != nil {
		return fmt.Errorf("TriggerNow: %w", err)
	}
	s.sweepOnce(ctx)
	return nil
}

func (s *Service) runSweeper(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SweepPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Service) sweepOnce(ctx context.Context) {
	s.registry.ForEachReadyEmit(func(out entity.AggregatedOutput) {
		if a := s.registry.Get(out.UserID); a != nil {
			if err := s.aggregators.SaveAggregatorState(ctx, a.State()); err != nil {
				slog.Error("save aggregator state", slog.String("user_id", out.UserID), slog.Any("err", err))
			}
		}
		s.digestsIn <- out
	})
}

// OnFetched is the scheduler.ItemHandler the orchestrator hands to the
// Scheduler at wiring time (spec §4.G.2): persist the fetch's items
// (idempotent), then for every registered user, run the processing chain
// and append survivors to that user's aggregator. The returned error
// reports only whether storage succeeded; the scheduler uses it to decide
// whether a source's sync cursor may advance, and must not see fan-out
// failures reflected here since those don't affect dedup durability.
//
// ctx is detached via context.WithoutCancel so a fetch cycle that is
// already past parsing finishes persisting and fanning out even if the
// caller's context is cancelled mid-flight, mirroring the touch-crawled-at
// pattern this orchestrator's fetch loop predecessor used.
func (s *Service) OnFetched(ctx context.Context, source *entity.Source, items []*entity.Item) error {
	ctx = context.WithoutCancel(ctx)

	inserted, stored, err := s.items.StoreItems(ctx, items)
	if err != nil {
		slog.Error("store items", slog.Int64("source_id", source.ID), slog.Any("err", err))
		return err
	}
	if inserted == 0 {
		return nil
	}

	userIDs, err := s.preferences.ListUserIDs(ctx)
	if err != nil {
		slog.Error("list user ids", slog.Any("err", err))
		return nil
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for _, userID := range userIDs {
		userID := userID
		eg.Go(func() error {
			s.fanOutToUser(egCtx, userID, stored)
			return nil
		})
	}
	_ = eg.Wait()
	return nil
}

func (s *Service) fanOutToUser(ctx context.Context, userID string, items []*entity.Item) {
	prefs, err := s.preferences.GetPreferences(ctx, userID)
	if err != nil {
		slog.Error("get preferences", slog.String("user_id", userID), slog.Any("err", err))
		return
	}

	annotated := make([]processing.AnnotatedItem, len(items))
	for i, item := range items {
		annotated[i] = processing.AnnotatedItem{Item: *item}
	}

	var memory string
	if prefs != nil {
		memory = prefs.MemoryText
	}

	survivors, err := s.chain.Run(annotated, prefs, memory)
	if err != nil {
		slog.Error("run processing chain", slog.String("user_id", userID), slog.Any("err", err))
		return
	}

	agg := s.aggregatorFor(userID)
	for _, a := range survivors {
		agg.AddItem(a.Item)
	}
}

func (s *Service) aggregatorFor(userID string) *aggregator.TimeBucketAggregator {
	if a := s.registry.Get(userID); a != nil {
		return a
	}
	return s.registry.Create(userID, aggregator.Config{Kind: s.cfg.DefaultKind})
}

// newUnboundedDigestChannel returns a send side backed by an internal
// goroutine that buffers onto a growing slice rather than a fixed-capacity
// channel, and the receive side external consumers read from. Neither side
// blocks the other: an absent or slow consumer cannot stall emission, and
// emission cannot race ahead of what memory allows to queue.
func newUnboundedDigestChannel() (chan<- entity.AggregatedOutput, <-chan entity.AggregatedOutput) {
	in := make(chan entity.AggregatedOutput)
	out := make(chan entity.AggregatedOutput)

	go func() {
		defer close(out)
		var queue []entity.AggregatedOutput
		for {
			if len(queue) == 0 {
				v, ok := <-in
				if !ok {
					return
				}
				queue = append(queue, v)
				continue
			}
			select {
			case v, ok := <-in:
				if !ok {
					for _, q := range queue {
						out <- q
					}
					return
				}
				queue = append(queue, v)
			case out <- queue[0]:
				queue = queue[1:]
			}
		}
	}()

	return in, out
}
