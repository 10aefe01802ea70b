package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"feedmesh/internal/domain/entity"
	"feedmesh/internal/repository"
)

// AggregatorRepo implements repository.AggregatorRepository, persisting
// each user's buffered-item state so the in-memory registry can be rebuilt
// across restarts (spec §3's User Aggregator Instance).
type AggregatorRepo struct{ db *sql.DB }

func NewAggregatorRepo(db *sql.DB) repository.AggregatorRepository {
	return &AggregatorRepo{db: db}
}

func (repo *AggregatorRepo) GetAggregatorState(ctx context.Context, userID string) (*entity.AggregatorState, error) {
	const query = `
SELECT user_id, kind, bucket_duration_seconds, max_items, last_emit_instant, buffer
FROM user_aggregators
WHERE user_id = $1`
	var s entity.AggregatorState
	var bucketSeconds int64
	var bufferJSON []byte
	err := repo.db.QueryRowContext(ctx, query, userID).
		Scan(&s.UserID, &s.Kind, &bucketSeconds, &s.MaxItemsPerBucket, &s.LastEmitInstant, &bufferJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetAggregatorState: %w", err)
	}
	s.BucketDuration = secondsToDuration(bucketSeconds)
	if len(bufferJSON) > 0 {
		if err := json.Unmarshal(bufferJSON, &s.BufferedItems); err != nil {
			return nil, fmt.Errorf("GetAggregatorState: unmarshal buffer: %w", err)
		}
	}
	return &s, nil
}

func (repo *AggregatorRepo) SaveAggregatorState(ctx context.Context, state *entity.AggregatorState) error {
	bufferJSON, err := json.Marshal(state.BufferedItems)
	if err != nil {
		return fmt.Errorf("SaveAggregatorState: marshal buffer: %w", err)
	}

	const query = `
INSERT INTO user_aggregators (user_id, kind, bucket_duration_seconds, max_items, last_emit_instant, buffer)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (user_id) DO UPDATE SET
	kind = EXCLUDED.kind,
	bucket_duration_seconds = EXCLUDED.bucket_duration_seconds,
	max_items = EXCLUDED.max_items,
	last_emit_instant = EXCLUDED.last_emit_instant,
	buffer = EXCLUDED.buffer`
	_, err = repo.db.ExecContext(ctx, query,
		state.UserID, state.Kind, durationToSeconds(state.BucketDuration),
		state.MaxItemsPerBucket, state.LastEmitInstant, bufferJSON,
	)
	if err != nil {
		return fmt.Errorf("SaveAggregatorState: %w", err)
	}
	return nil
}
