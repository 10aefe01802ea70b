package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"feedmesh/internal/domain/entity"
	"feedmesh/internal/repository"
)

// ItemRepo implements repository.ItemRepository. StoreItems is set-wise
// idempotent on (source_id, uri) and additionally on (source_id, guid) when
// guid is present (spec §4.A); both are enforced by partial/full unique
// indexes in the schema. The ON CONFLICT target below only absorbs the
// (source_id, uri) index, so a (source_id, guid) collision against a
// different uri still raises a unique_violation; each row runs under its own
// savepoint so that case rolls back just that row instead of aborting the
// whole batch.
type ItemRepo struct{ db *sql.DB }

func NewItemRepo(db *sql.DB) repository.ItemRepository {
	return &ItemRepo{db: db}
}

const insertItemQuery = `
INSERT INTO items (source_id, uri, source_uri, guid, title, description, content, author,
	published_at, updated_at, tags, text, vision_blob, created_at)
VALUES ($1, $2, $3, NULLIF($4, ''), $5, NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''),
	$9, $10, $11, $12, $13, NOW())
ON CONFLICT (source_id, uri) DO NOTHING
RETURNING id, created_at`

const itemSavepoint = "store_item"

// pgUniqueViolation is the SQLSTATE Postgres raises for a unique constraint
// conflict that ON CONFLICT's target didn't absorb.
const pgUniqueViolation = "23505"

func (repo *ItemRepo) StoreItems(ctx context.Context, items []*entity.Item) (int, []*entity.Item, error) {
	if len(items) == 0 {
		return 0, nil, nil
	}

	tx, err := repo.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("StoreItems: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, insertItemQuery)
	if err != nil {
		return 0, nil, fmt.Errorf("StoreItems: prepare: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	inserted := 0
	stored := make([]*entity.Item, 0, len(items))
	for _, item := range items {
		tags, err := json.Marshal(item.Tags)
		if err != nil {
			return 0, nil, fmt.Errorf("StoreItems: marshal tags: %w", err)
		}

		if _, err := tx.ExecContext(ctx, "SAVEPOINT "+itemSavepoint); err != nil {
			return 0, nil, fmt.Errorf("StoreItems: savepoint: %w", err)
		}

		row := stmt.QueryRowContext(ctx,
			item.SourceID, item.URI, item.SourceURI, item.GUID, item.Title, item.Description,
			item.Content, item.Author, item.PublishedAt, item.UpdatedAt, tags, item.Text, item.VisionBlob,
		)
		var id int64
		var createdAt interface{}
		if err := row.Scan(&id, &createdAt); err != nil {
			var pgErr *pgconn.PgError
			conflict := errors.Is(err, sql.ErrNoRows) || (errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation)
			if !conflict {
				return 0, nil, fmt.Errorf("StoreItems: scan: %w", err)
			}
			// Either the ON CONFLICT target absorbed a (source_id, uri)
			// collision (sql.ErrNoRows), or the row hit the partial
			// (source_id, guid) unique index on a different uri, which
			// raises instead of being absorbed. Both are dropped silently
			// per spec §4.A, rolling back just this row's statement so the
			// transaction can continue.
			if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+itemSavepoint); rbErr != nil {
				return 0, nil, fmt.Errorf("StoreItems: rollback to savepoint: %w", rbErr)
			}
			continue
		}

		if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+itemSavepoint); err != nil {
			return 0, nil, fmt.Errorf("StoreItems: release savepoint: %w", err)
		}

		item.ID = id
		inserted++
		stored = append(stored, item)
	}

	if err := tx.Commit(); err != nil {
		return 0, nil, fmt.Errorf("StoreItems: commit: %w", err)
	}

	return inserted, stored, nil
}

func (repo *ItemRepo) ListRecentItems(ctx context.Context, sourceID *int64, limit int) ([]*entity.Item, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows *sql.Rows
	var err error
	const columns = `id, source_id, uri, source_uri, guid, title, description, content, author,
		published_at, updated_at, tags, text, created_at`

	if sourceID != nil {
		rows, err = repo.db.QueryContext(ctx,
			"SELECT "+columns+" FROM items WHERE source_id = $1 ORDER BY created_at DESC LIMIT $2",
			*sourceID, limit)
	} else {
		rows, err = repo.db.QueryContext(ctx,
			"SELECT "+columns+" FROM items ORDER BY created_at DESC LIMIT $1", limit)
	}
	if err != nil {
		return nil, fmt.Errorf("ListRecentItems: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]*entity.Item, 0, limit)
	for rows.Next() {
		var item entity.Item
		var guid, description, content, author sql.NullString
		var tagsJSON []byte
		if err := rows.Scan(
			&item.ID, &item.SourceID, &item.URI, &item.SourceURI, &guid, &item.Title,
			&description, &content, &author, &item.PublishedAt, &item.UpdatedAt,
			&tagsJSON, &item.Text, &item.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("ListRecentItems: scan: %w", err)
		}
		item.GUID = guid.String
		item.Description = description.String
		item.Content = content.String
		item.Author = author.String
		if len(tagsJSON) > 0 {
			_ = json.Unmarshal(tagsJSON, &item.Tags)
		}
		out = append(out, &item)
	}
	return out, rows.Err()
}
