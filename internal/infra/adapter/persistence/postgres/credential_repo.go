package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"feedmesh/internal/domain/entity"
	"feedmesh/internal/repository"
)

// CredentialRepo implements repository.CredentialRepository. Passwords are
// never logged anywhere in this package (spec §9).
type CredentialRepo struct{ db *sql.DB }

func NewCredentialRepo(db *sql.DB) repository.CredentialRepository {
	return &CredentialRepo{db: db}
}

func (repo *CredentialRepo) GetCredential(ctx context.Context, email string) (*entity.Credential, error) {
	const query = `
SELECT email_address, password, last_sync_instant, created_at, updated_at
FROM email_credentials
WHERE email_address = $1`
	var c entity.Credential
	err := repo.db.QueryRowContext(ctx, query, email).
		Scan(&c.EmailAddress, &c.Password, &c.LastSyncInstant, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetCredential: %w", err)
	}
	return &c, nil
}

func (repo *CredentialRepo) UpsertCredential(ctx context.Context, cred *entity.Credential) error {
	const query = `
INSERT INTO email_credentials (email_address, password, created_at, updated_at)
VALUES ($1, $2, NOW(), NOW())
ON CONFLICT (email_address) DO UPDATE SET
	password = EXCLUDED.password,
	updated_at = NOW()`
	_, err := repo.db.ExecContext(ctx, query, cred.EmailAddress, cred.Password)
	if err != nil {
		return fmt.Errorf("UpsertCredential: %w", err)
	}
	return nil
}

func (repo *CredentialRepo) RecordCredentialSync(ctx context.Context, email string, instant time.Time) error {
	const query = `UPDATE email_credentials SET last_sync_instant = $1, updated_at = NOW() WHERE email_address = $2`
	_, err := repo.db.ExecContext(ctx, query, instant, email)
	if err != nil {
		return fmt.Errorf("RecordCredentialSync: %w", err)
	}
	return nil
}
