package repository

import (
	"context"

	"feedmesh/internal/domain/entity"
)

// ItemRepository is the State Store's item-facing surface (spec §4.A).
// StoreItems is set-wise idempotent on (source_id, uri) and additionally
// on (source_id, guid) when guid is present: collisions drop the newer
// row silently. It returns the count of rows actually inserted.
type ItemRepository interface {
	StoreItems(ctx context.Context, items []*entity.Item) (inserted int, storedItems []*entity.Item, err error)
	ListRecentItems(ctx context.Context, sourceID *int64, limit int) ([]*entity.Item, error)
}
