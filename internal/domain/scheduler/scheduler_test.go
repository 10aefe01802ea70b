package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"feedmesh/internal/domain/entity"
	"feedmesh/internal/domain/fetcherr"
	"feedmesh/internal/domain/scheduler"
	"feedmesh/internal/repository"
)

type stubSourceRepo struct {
	mu            sync.Mutex
	sources       []*entity.Source
	outcomes      []repository.FetchOutcome
	syncedCursors map[int64]time.Time
}

func (r *stubSourceRepo) RegisterSource(ctx context.Context, source *entity.Source) error { return nil }
func (r *stubSourceRepo) GetSource(ctx context.Context, id int64) (*entity.Source, error) {
	return nil, nil
}
func (r *stubSourceRepo) ListSources(ctx context.Context) ([]*entity.Source, error) {
	return r.sources, nil
}
func (r *stubSourceRepo) ListDueSources(ctx context.Context, limit int) ([]*entity.Source, error) {
	return r.sources, nil
}
func (r *stubSourceRepo) ApplyFetchOutcome(ctx context.Context, sourceID int64, outcome repository.FetchOutcome) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
	return nil
}
func (r *stubSourceRepo) AdvanceSyncCursor(ctx context.Context, sourceID int64, instant time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.syncedCursors == nil {
		r.syncedCursors = make(map[int64]time.Time)
	}
	r.syncedCursors[sourceID] = instant
	return nil
}
func (r *stubSourceRepo) Deactivate(ctx context.Context, id int64) error { return nil }

type stubCredentialRepo struct {
	cred        *entity.Credential
	syncedEmail string
}

func (r *stubCredentialRepo) GetCredential(ctx context.Context, email string) (*entity.Credential, error) {
	if r.cred != nil && r.cred.EmailAddress == email {
		return r.cred, nil
	}
	return nil, nil
}
func (r *stubCredentialRepo) UpsertCredential(ctx context.Context, cred *entity.Credential) error {
	return nil
}
func (r *stubCredentialRepo) RecordCredentialSync(ctx context.Context, email string, instant time.Time) error {
	r.syncedEmail = email
	return nil
}

type stubRSSFetcher struct {
	items  []*entity.Item
	result entity.FetchResult
	err    error
}

func (f *stubRSSFetcher) Fetch(ctx context.Context, source *entity.Source) ([]*entity.Item, entity.FetchResult, error) {
	return f.items, f.result, f.err
}

type stubIMAPFetcher struct {
	items  []*entity.Item
	result entity.FetchResult
	err    error
}

func (f *stubIMAPFetcher) Fetch(ctx context.Context, source *entity.Source, cred *entity.Credential) ([]*entity.Item, entity.FetchResult, error) {
	return f.items, f.result, f.err
}

func TestScheduler_TriggerNow_DispatchesByKind(t *testing.T) {
	sources := &stubSourceRepo{sources: []*entity.Source{
		{ID: 1, Kind: entity.SourceKindRSS, URI: "https://example.test/feed.xml", Active: true},
		{ID: 2, Kind: entity.SourceKindRSS, URI: "https://example.test/other.xml", Active: false},
	}}
	rss := &stubRSSFetcher{
		items:  []*entity.Item{{SourceID: 1, URI: "https://example.test/a"}},
		result: entity.FetchResult{Success: true},
	}

	var handled []*entity.Source
	var mu sync.Mutex
	onItems := func(ctx context.Context, source *entity.Source, items []*entity.Item) error {
		mu.Lock()
		defer mu.Unlock()
		handled = append(handled, source)
		return nil
	}

	s := scheduler.New(sources, &stubCredentialRepo{}, rss, &stubIMAPFetcher{}, scheduler.DefaultConfig(), onItems)
	if err := s.TriggerNow(context.Background()); err != nil {
		t.Fatalf("TriggerNow: %v", err)
	}

	if len(handled) != 1 {
		t.Fatalf("expected exactly 1 source handled (inactive source 2 skipped), got %d", len(handled))
	}
	if handled[0].ID != 1 {
		t.Fatalf("expected source 1 handled, got %d", handled[0].ID)
	}

	if len(sources.outcomes) != 1 {
		t.Fatalf("expected 1 outcome applied, got %d", len(sources.outcomes))
	}
	if !sources.outcomes[0].Result.Success {
		t.Fatal("expected success outcome")
	}
}

func TestScheduler_IMAP_MissingCredential_AppliesFailureOutcomeWithLongInterval(t *testing.T) {
	sources := &stubSourceRepo{sources: []*entity.Source{
		{ID: 5, Kind: entity.SourceKindIMAP, URI: "email://nobody@mail.example.test/INBOX", Active: true},
	}}
	creds := &stubCredentialRepo{} // no credential registered

	s := scheduler.New(sources, creds, &stubRSSFetcher{}, &stubIMAPFetcher{}, scheduler.DefaultConfig(), nil)
	if err := s.TriggerNow(context.Background()); err != nil {
		t.Fatalf("TriggerNow: %v", err)
	}

	if len(sources.outcomes) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(sources.outcomes))
	}
	outcome := sources.outcomes[0]
	if outcome.Result.Success {
		t.Fatal("expected failure outcome for missing credential")
	}
	if outcome.NextIntervalOverride == nil || *outcome.NextIntervalOverride != 5*time.Minute {
		t.Fatalf("expected 5m interval override for config error, got %v", outcome.NextIntervalOverride)
	}
}

func TestScheduler_IMAP_SuccessfulFetch_AdvancesCursorAfterPersistAndRecordsCredentialSync(t *testing.T) {
	cred := &entity.Credential{EmailAddress: "user@mail.example.test", Password: "secret"}
	sources := &stubSourceRepo{sources: []*entity.Source{
		{ID: 7, Kind: entity.SourceKindIMAP, URI: "email://user@mail.example.test/INBOX", Active: true},
	}}
	creds := &stubCredentialRepo{cred: cred}
	syncInstant := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	imapFetcher := &stubIMAPFetcher{
		items:  []*entity.Item{{SourceID: 7, URI: "email://1_abc"}},
		result: entity.FetchResult{Success: true, NewSyncInstant: &syncInstant},
	}

	var handledItems []*entity.Item
	onItems := func(ctx context.Context, source *entity.Source, items []*entity.Item) error {
		handledItems = items
		return nil
	}

	s := scheduler.New(sources, creds, &stubRSSFetcher{}, imapFetcher, scheduler.DefaultConfig(), onItems)
	if err := s.TriggerNow(context.Background()); err != nil {
		t.Fatalf("TriggerNow: %v", err)
	}

	if len(handledItems) != 1 {
		t.Fatalf("expected 1 item handed to onItems, got %d", len(handledItems))
	}
	if got := sources.syncedCursors[7]; !got.Equal(syncInstant) {
		t.Fatalf("expected sources.last_sync_instant advanced to %v, got %v", syncInstant, got)
	}
	if creds.syncedEmail != "user@mail.example.test" {
		t.Fatalf("expected credential sync recorded for the mailbox user, got %q", creds.syncedEmail)
	}
	outcome := sources.outcomes[0]
	if outcome.NextIntervalOverride == nil || *outcome.NextIntervalOverride != 30*time.Second {
		t.Fatalf("expected 30s interval override on success, got %v", outcome.NextIntervalOverride)
	}
}

// TestScheduler_IMAP_PersistFailure_DoesNotAdvanceCursor guards spec §4.C/§7's
// "last_sync_instant advances only after items are durably persisted": if
// onItems (the Pipeline Orchestrator's StoreItems-backed handler) fails, the
// next poll must re-search from the same cursor instead of skipping the
// messages that never made it to storage.
func TestScheduler_IMAP_PersistFailure_DoesNotAdvanceCursor(t *testing.T) {
	cred := &entity.Credential{EmailAddress: "user@mail.example.test", Password: "secret"}
	sources := &stubSourceRepo{sources: []*entity.Source{
		{ID: 7, Kind: entity.SourceKindIMAP, URI: "email://user@mail.example.test/INBOX", Active: true},
	}}
	creds := &stubCredentialRepo{cred: cred}
	syncInstant := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	imapFetcher := &stubIMAPFetcher{
		items:  []*entity.Item{{SourceID: 7, URI: "email://1_abc"}},
		result: entity.FetchResult{Success: true, NewSyncInstant: &syncInstant},
	}

	onItems := func(ctx context.Context, source *entity.Source, items []*entity.Item) error {
		return errors.New("store items: connection refused")
	}

	s := scheduler.New(sources, creds, &stubRSSFetcher{}, imapFetcher, scheduler.DefaultConfig(), onItems)
	if err := s.TriggerNow(context.Background()); err != nil {
		t.Fatalf("TriggerNow: %v", err)
	}

	if _, synced := sources.syncedCursors[7]; synced {
		t.Fatal("expected no cursor advance when item persistence fails")
	}
	if creds.syncedEmail != "" {
		t.Fatal("expected no credential sync when item persistence fails")
	}
}

func TestScheduler_RSS_TransportError_AppliesFailureOutcome(t *testing.T) {
	sources := &stubSourceRepo{sources: []*entity.Source{
		{ID: 9, Kind: entity.SourceKindRSS, URI: "https://example.test/feed.xml", Active: true},
	}}
	rss := &stubRSSFetcher{err: &fetcherr.TransportError{Cause: errors.New("dial tcp: connection refused")}}

	s := scheduler.New(sources, &stubCredentialRepo{}, rss, &stubIMAPFetcher{}, scheduler.DefaultConfig(), nil)
	if err := s.TriggerNow(context.Background()); err != nil {
		t.Fatalf("TriggerNow: %v", err)
	}

	if len(sources.outcomes) != 1 || sources.outcomes[0].Result.Success {
		t.Fatal("expected a single failure outcome")
	}
	if sources.outcomes[0].NextIntervalOverride != nil {
		t.Fatal("expected no interval override for an RSS source")
	}
}
