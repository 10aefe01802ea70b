package repository

import (
	"context"

	"feedmesh/internal/domain/entity"
)

// AggregatorRepository is the State Store's per-user aggregator state
// surface: load/save the buffered items and last-emit instant so the
// in-memory registry can be rebuilt across restarts.
type AggregatorRepository interface {
	GetAggregatorState(ctx context.Context, userID string) (*entity.AggregatorState, error)
	SaveAggregatorState(ctx context.Context, state *entity.AggregatorState) error
}
