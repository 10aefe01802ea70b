package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"feedmesh/internal/domain/entity"
	"feedmesh/internal/repository"

	"github.com/pgvector/pgvector-go"
)

// DefaultSearchTimeout bounds similarity search queries.
const DefaultSearchTimeout = 5 * time.Second

// ItemEmbeddingRepo implements repository.ItemEmbeddingRepository, backing
// the optional near-duplicate supplement (SPEC_FULL DOMAIN STACK). No
// operation here participates in the Parser/Deduper's required exact-key
// uniqueness checks.
type ItemEmbeddingRepo struct {
	db *sql.DB
}

func NewItemEmbeddingRepo(db *sql.DB) repository.ItemEmbeddingRepository {
	return &ItemEmbeddingRepo{db: db}
}

func (repo *ItemEmbeddingRepo) Upsert(ctx context.Context, embedding *entity.ItemEmbedding) error {
	if embedding == nil {
		return fmt.Errorf("Upsert: embedding is nil")
	}
	if err := embedding.Validate(); err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}

	vector := pgvector.NewVector(embedding.Embedding)

	const query = `
INSERT INTO item_embeddings (item_id, embedding_type, provider, model, dimension, embedding, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
ON CONFLICT (item_id, embedding_type, provider, model)
DO UPDATE SET
	dimension = EXCLUDED.dimension,
	embedding = EXCLUDED.embedding,
	updated_at = NOW()
RETURNING id, created_at, updated_at`

	err := repo.db.QueryRowContext(ctx, query,
		embedding.ItemID,
		string(embedding.EmbeddingType),
		string(embedding.Provider),
		embedding.Model,
		embedding.Dimension,
		vector,
	).Scan(&embedding.ID, &embedding.CreatedAt, &embedding.UpdatedAt)

	if err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}
	return nil
}

func (repo *ItemEmbeddingRepo) FindByItemID(ctx context.Context, itemID int64) ([]*entity.ItemEmbedding, error) {
	const query = `
SELECT id, item_id, embedding_type, provider, model, dimension, embedding, created_at, updated_at
FROM item_embeddings
WHERE item_id = $1
ORDER BY embedding_type, provider, model`

	rows, err := repo.db.QueryContext(ctx, query, itemID)
	if err != nil {
		return nil, fmt.Errorf("FindByItemID: %w", err)
	}
	defer func() { _ = rows.Close() }()

	embeddings := make([]*entity.ItemEmbedding, 0)
	for rows.Next() {
		emb := &entity.ItemEmbedding{}
		var vector pgvector.Vector
		var embType string
		var provider string

		err := rows.Scan(
			&emb.ID,
			&emb.ItemID,
			&embType,
			&provider,
			&emb.Model,
			&emb.Dimension,
			&vector,
			&emb.CreatedAt,
			&emb.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("FindByItemID: Scan: %w", err)
		}

		emb.EmbeddingType = entity.EmbeddingType(embType)
		emb.Provider = entity.EmbeddingProvider(provider)
		emb.Embedding = vector.Slice()

		embeddings = append(embeddings, emb)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("FindByItemID: %w", err)
	}
	return embeddings, nil
}

func (repo *ItemEmbeddingRepo) DeleteByItemID(ctx context.Context, itemID int64) (int64, error) {
	const query = `DELETE FROM item_embeddings WHERE item_id = $1`

	result, err := repo.db.ExecContext(ctx, query, itemID)
	if err != nil {
		return 0, fmt.Errorf("DeleteByItemID: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("DeleteByItemID: RowsAffected: %w", err)
	}
	return count, nil
}

// SearchSimilar finds items whose stored embedding is closest by cosine
// distance to the provided vector.
func (repo *ItemEmbeddingRepo) SearchSimilar(ctx context.Context, embedding []float32, embeddingType entity.EmbeddingType, limit int) ([]repository.SimilarItem, error) {
	searchCtx, cancel := context.WithTimeout(ctx, DefaultSearchTimeout)
	defer cancel()

	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	vector := pgvector.NewVector(embedding)

	const query = `
SELECT item_id, 1 - (embedding <=> $1) AS similarity
FROM item_embeddings
WHERE embedding_type = $2
ORDER BY embedding <=> $1
LIMIT $3`

	rows, err := repo.db.QueryContext(searchCtx, query, vector, string(embeddingType), limit)
	if err != nil {
		return nil, fmt.Errorf("SearchSimilar: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]repository.SimilarItem, 0, limit)
	for rows.Next() {
		var result repository.SimilarItem
		if err := rows.Scan(&result.ItemID, &result.Similarity); err != nil {
			return nil, fmt.Errorf("SearchSimilar: Scan: %w", err)
		}
		results = append(results, result)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("SearchSimilar: %w", err)
	}
	return results, nil
}
