package entity

import (
	"errors"
	"time"
)

// EmbeddingType names which facet of an item text an embedding represents.
type EmbeddingType string

const (
	EmbeddingTypeTitle   EmbeddingType = "title"
	EmbeddingTypeContent EmbeddingType = "content"
	EmbeddingTypeSummary EmbeddingType = "summary"
)

// IsValid reports whether t is one of the known embedding types.
func (t EmbeddingType) IsValid() bool {
	switch t {
	case EmbeddingTypeTitle, EmbeddingTypeContent, EmbeddingTypeSummary:
		return true
	default:
		return false
	}
}

// EmbeddingProvider names the service that produced an embedding vector.
type EmbeddingProvider string

const (
	EmbeddingProviderOpenAI EmbeddingProvider = "openai"
	EmbeddingProviderVoyage EmbeddingProvider = "voyage"
)

// IsValid reports whether p is a known embedding provider.
func (p EmbeddingProvider) IsValid() bool {
	switch p {
	case EmbeddingProviderOpenAI, EmbeddingProviderVoyage:
		return true
	default:
		return false
	}
}

// ItemEmbedding is an optional vector representation of an item's text,
// used by the Parser/Deduper's near-duplicate supplement (SPEC_FULL DOMAIN
// STACK, pgvector/pgvector-go). Unrelated to the spec's required
// (source_id, uri)/(source_id, guid) exact-key dedup, which never depends
// on embeddings.
type ItemEmbedding struct {
	ID            int64
	ItemID        int64
	EmbeddingType EmbeddingType
	Provider      EmbeddingProvider
	Model         string
	Dimension     int
	Embedding     []float32
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Validate checks that an ItemEmbedding is well formed before storage.
func (e *ItemEmbedding) Validate() error {
	if e.ItemID == 0 {
		return errors.New("item_id is required")
	}
	if !e.EmbeddingType.IsValid() {
		return errors.New("invalid embedding_type")
	}
	if !e.Provider.IsValid() {
		return errors.New("invalid embedding provider")
	}
	if e.Dimension <= 0 || len(e.Embedding) != e.Dimension {
		return errors.New("dimension must match embedding length")
	}
	return nil
}
