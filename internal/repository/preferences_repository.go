package repository

import (
	"context"

	"feedmesh/internal/domain/entity"
)

// PreferencesRepository is the State Store's user-facing surface for the
// User Preferences record (spec §3): `(user_id, description_text,
// memory_text)`, used to parameterize each user's processing chain.
//
// ListUserIDs is how the Pipeline Orchestrator discovers which users to fan
// items out to on ingest and which aggregator state to restore on startup:
// the data model has no separate per-source subscription table, so every
// user with a preferences row is "registered" for every source (spec's
// Non-goals explicitly exclude multi-tenant authorization).
type PreferencesRepository interface {
	GetPreferences(ctx context.Context, userID string) (*entity.UserPreferences, error)
	UpsertPreferences(ctx context.Context, prefs *entity.UserPreferences) error
	ListUserIDs(ctx context.Context) ([]string, error)
}
