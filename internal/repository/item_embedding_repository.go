package repository

import (
	"context"

	"feedmesh/internal/domain/entity"
)

// SimilarItem is the result of a similarity search.
type SimilarItem struct {
	ItemID     int64
	Similarity float64
}

// ItemEmbeddingRepository manages the optional vector embeddings used by
// the near-duplicate supplement to the Parser/Deduper (SPEC_FULL DOMAIN
// STACK). Never required for the spec's exact-key dedup invariants.
type ItemEmbeddingRepository interface {
	Upsert(ctx context.Context, embedding *entity.ItemEmbedding) error
	FindByItemID(ctx context.Context, itemID int64) ([]*entity.ItemEmbedding, error)
	SearchSimilar(ctx context.Context, embedding []float32, embeddingType entity.EmbeddingType, limit int) ([]SimilarItem, error)
	DeleteByItemID(ctx context.Context, itemID int64) (int64, error)
}
