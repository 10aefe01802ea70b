package repository

import (
	"context"
	"time"

	"feedmesh/internal/domain/entity"
)

// CredentialRepository is the State Store's IMAP credential surface.
type CredentialRepository interface {
	GetCredential(ctx context.Context, email string) (*entity.Credential, error)
	UpsertCredential(ctx context.Context, cred *entity.Credential) error
	RecordCredentialSync(ctx context.Context, email string, instant time.Time) error
}
