package entity

import "time"

// Credential holds the IMAP login for a mailbox source, keyed by email
// address. Grounded on original_source/email-ingestion/src/database.rs's
// EmailCredential.
type Credential struct {
	EmailAddress    string
	Password        string
	LastSyncInstant *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
