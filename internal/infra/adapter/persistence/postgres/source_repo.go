// Package postgres implements the State Store's repository interfaces
// (spec §4.A) against PostgreSQL via database/sql and the pgx/v5 driver.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"feedmesh/internal/domain/entity"
	"feedmesh/internal/repository"
)

// SourceRepo implements repository.SourceRepository.
type SourceRepo struct{ db *sql.DB }

func NewSourceRepo(db *sql.DB) repository.SourceRepository {
	return &SourceRepo{db: db}
}

const sourceColumns = `id, kind, uri, is_active, etag, last_modified_http, last_sync_instant,
	base_interval_seconds, last_fetch_instant, last_success_instant,
	consecutive_error_count, last_error_text, created_at, updated_at`

func scanSource(row interface{ Scan(...any) error }) (*entity.Source, error) {
	var s entity.Source
	var baseIntervalSeconds int64
	var etag, lastModified, lastErrorText sql.NullString
	if err := row.Scan(
		&s.ID, &s.Kind, &s.URI, &s.Active, &etag, &lastModified, &s.LastSyncInstant,
		&baseIntervalSeconds, &s.LastFetchInstant, &s.LastSuccessInstant,
		&s.ConsecutiveErrorCount, &lastErrorText, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	s.ETag = etag.String
	s.LastModifiedHTTP = lastModified.String
	s.LastErrorText = lastErrorText.String
	s.BaseInterval = secondsToDuration(baseIntervalSeconds)
	return &s, nil
}

func (repo *SourceRepo) RegisterSource(ctx context.Context, source *entity.Source) error {
	if err := source.Validate(); err != nil {
		return fmt.Errorf("RegisterSource: %w", err)
	}

	const query = `
INSERT INTO sources (kind, uri, is_active, base_interval_seconds, created_at, updated_at)
VALUES ($1, $2, $3, $4, NOW(), NOW())
ON CONFLICT (uri) DO NOTHING
RETURNING id, created_at, updated_at`

	err := repo.db.QueryRowContext(ctx, query,
		source.Kind, source.URI, source.Active, durationToSeconds(source.BaseInterval),
	).Scan(&source.ID, &source.CreatedAt, &source.UpdatedAt)
	if err == sql.ErrNoRows {
		// Already registered; look the row up by URI so callers get an id back.
		existing, getErr := repo.getByURI(ctx, source.URI)
		if getErr != nil {
			return fmt.Errorf("RegisterSource: %w", getErr)
		}
		*source = *existing
		return nil
	}
	if err != nil {
		return fmt.Errorf("RegisterSource: %w", err)
	}
	return nil
}

func (repo *SourceRepo) getByURI(ctx context.Context, uri string) (*entity.Source, error) {
	row := repo.db.QueryRowContext(ctx, "SELECT "+sourceColumns+" FROM sources WHERE uri = $1", uri)
	return scanSource(row)
}

func (repo *SourceRepo) GetSource(ctx context.Context, id int64) (*entity.Source, error) {
	row := repo.db.QueryRowContext(ctx, "SELECT "+sourceColumns+" FROM sources WHERE id = $1", id)
	source, err := scanSource(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetSource: %w", err)
	}
	return source, nil
}

func (repo *SourceRepo) ListSources(ctx context.Context) ([]*entity.Source, error) {
	rows, err := repo.db.QueryContext(ctx, "SELECT "+sourceColumns+" FROM sources ORDER BY id ASC")
	if err != nil {
		return nil, fmt.Errorf("ListSources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sources := make([]*entity.Source, 0, 50)
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("ListSources: %w", err)
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// ListDueSources implements spec §4.A: active sources whose computed
// next_fetch_instant <= now, ordered by priority then last_fetch_instant
// ascending with nulls first. The next-fetch and priority computations are
// expressed directly in SQL so ordering stays a single index-friendly query
// rather than a fetch-everything-then-sort in Go.
func (repo *SourceRepo) ListDueSources(ctx context.Context, limit int) ([]*entity.Source, error) {
	const query = `
SELECT ` + sourceColumns + `
FROM sources
WHERE is_active = TRUE
AND (
	last_fetch_instant IS NULL
	OR last_fetch_instant + (base_interval_seconds * POWER(2, LEAST(consecutive_error_count, 5)) || ' seconds')::interval <= NOW()
)
ORDER BY
	CASE
		WHEN last_fetch_instant IS NULL THEN 255
		WHEN consecutive_error_count > 0 THEN 50
		ELSE 150
	END DESC,
	last_fetch_instant ASC NULLS FIRST
LIMIT $1`

	rows, err := repo.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("ListDueSources: %w", err)
	}
	defer func() { _ = rows.Close() }()

	sources := make([]*entity.Source, 0, limit)
	for rows.Next() {
		s, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("ListDueSources: %w", err)
		}
		sources = append(sources, s)
	}
	return sources, rows.Err()
}

// ApplyFetchOutcome folds a fetch result into the source row (spec §4.A):
// success clears error fields and refreshes cursors; failure increments
// consecutive_error_count and records the error text.
func (repo *SourceRepo) ApplyFetchOutcome(ctx context.Context, sourceID int64, outcome repository.FetchOutcome) error {
	result := outcome.Result

	var intervalOverride any
	if outcome.NextIntervalOverride != nil {
		intervalOverride = durationToSeconds(*outcome.NextIntervalOverride)
	}

	if result.Success {
		// COALESCE keeps the stored cursor when the fetch didn't report a new
		// one — most importantly on HTTP 304 Not Modified, where the fetcher
		// returns empty ETag/Last-Modified and the cursor must survive the
		// success path unchanged (spec §4.A/§7, testable invariant #6).
		const query = `
UPDATE sources SET
	etag = COALESCE($1, etag), last_modified_http = COALESCE($2, last_modified_http),
	last_fetch_instant = NOW(), last_success_instant = NOW(),
	consecutive_error_count = 0, last_error_text = NULL, updated_at = NOW(),
	base_interval_seconds = COALESCE($3, base_interval_seconds)
WHERE id = $4`
		_, err := repo.db.ExecContext(ctx, query,
			nullIfEmpty(result.NewETag), nullIfEmpty(result.NewLastModified), intervalOverride, sourceID)
		if err != nil {
			return fmt.Errorf("ApplyFetchOutcome: %w", err)
		}
		return nil
	}

	errText := ""
	if result.Err != nil {
		errText = result.Err.Error()
	}
	const query = `
UPDATE sources SET
	last_fetch_instant = NOW(),
	consecutive_error_count = consecutive_error_count + 1,
	last_error_text = $1, updated_at = NOW(),
	base_interval_seconds = COALESCE($2, base_interval_seconds)
WHERE id = $3`
	_, err := repo.db.ExecContext(ctx, query, errText, intervalOverride, sourceID)
	if err != nil {
		return fmt.Errorf("ApplyFetchOutcome: %w", err)
	}
	return nil
}

// AdvanceSyncCursor sets last_sync_instant, the cursor IMAPFetcher reads for
// its next SEARCH SINCE. Split out of ApplyFetchOutcome so callers can defer
// it until items are durably persisted.
func (repo *SourceRepo) AdvanceSyncCursor(ctx context.Context, sourceID int64, instant time.Time) error {
	const query = `UPDATE sources SET last_sync_instant = $1, updated_at = NOW() WHERE id = $2`
	if _, err := repo.db.ExecContext(ctx, query, instant, sourceID); err != nil {
		return fmt.Errorf("AdvanceSyncCursor: %w", err)
	}
	return nil
}

func (repo *SourceRepo) Deactivate(ctx context.Context, id int64) error {
	const query = `UPDATE sources SET is_active = FALSE, updated_at = NOW() WHERE id = $1`
	res, err := repo.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("Deactivate: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("Deactivate: no rows affected")
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func durationToSeconds(d time.Duration) int64 {
	return int64(d.Seconds())
}

func secondsToDuration(seconds int64) time.Duration {
	return time.Duration(seconds) * time.Second
}
