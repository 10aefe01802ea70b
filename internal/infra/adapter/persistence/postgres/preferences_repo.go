package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"feedmesh/internal/domain/entity"
	"feedmesh/internal/repository"
)

// PreferencesRepo implements repository.PreferencesRepository.
type PreferencesRepo struct{ db *sql.DB }

func NewPreferencesRepo(db *sql.DB) repository.PreferencesRepository {
	return &PreferencesRepo{db: db}
}

func (repo *PreferencesRepo) GetPreferences(ctx context.Context, userID string) (*entity.UserPreferences, error) {
	const query = `SELECT user_id, description_text, memory_text FROM user_preferences WHERE user_id = $1`
	var p entity.UserPreferences
	err := repo.db.QueryRowContext(ctx, query, userID).Scan(&p.UserID, &p.DescriptionText, &p.MemoryText)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetPreferences: %w", err)
	}
	return &p, nil
}

func (repo *PreferencesRepo) UpsertPreferences(ctx context.Context, prefs *entity.UserPreferences) error {
	const query = `
INSERT INTO user_preferences (user_id, description_text, memory_text)
VALUES ($1, $2, $3)
ON CONFLICT (user_id) DO UPDATE SET
	description_text = EXCLUDED.description_text,
	memory_text = EXCLUDED.memory_text`
	_, err := repo.db.ExecContext(ctx, query, prefs.UserID, prefs.DescriptionText, prefs.MemoryText)
	if err != nil {
		return fmt.Errorf("UpsertPreferences: %w", err)
	}
	return nil
}

func (repo *PreferencesRepo) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := repo.db.QueryContext(ctx, `SELECT user_id FROM user_preferences ORDER BY user_id ASC`)
	if err != nil {
		return nil, fmt.Errorf("ListUserIDs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("ListUserIDs: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
