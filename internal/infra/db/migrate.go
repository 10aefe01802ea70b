package db

import "database/sql"

// MigrateUp creates the schema described in spec §6 ("Persisted state
// layout"), plus the optional pgvector-backed item_embeddings table used by
// the near-duplicate supplement (SPEC_FULL DOMAIN STACK).
func MigrateUp(db *sql.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS sources (
		    id                      BIGSERIAL PRIMARY KEY,
		    kind                    VARCHAR(10) NOT NULL,
		    uri                     TEXT NOT NULL UNIQUE,
		    is_active               BOOLEAN NOT NULL DEFAULT TRUE,
		    etag                    TEXT,
		    last_modified_http      TEXT,
		    last_sync_instant       TIMESTAMPTZ,
		    base_interval_seconds   BIGINT NOT NULL,
		    last_fetch_instant      TIMESTAMPTZ,
		    last_success_instant    TIMESTAMPTZ,
		    consecutive_error_count INT NOT NULL DEFAULT 0,
		    last_error_text         TEXT,
		    created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		    updated_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		    CONSTRAINT chk_source_kind CHECK (kind IN ('rss', 'imap'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sources_active ON sources(is_active) WHERE is_active = TRUE`,

		`CREATE TABLE IF NOT EXISTS items (
		    id           BIGSERIAL PRIMARY KEY,
		    source_id    BIGINT NOT NULL REFERENCES sources(id),
		    uri          TEXT NOT NULL,
		    source_uri   TEXT,
		    guid         TEXT,
		    title        TEXT NOT NULL DEFAULT 'Untitled',
		    description  TEXT,
		    content      TEXT,
		    author       TEXT,
		    published_at TIMESTAMPTZ,
		    updated_at   TIMESTAMPTZ,
		    tags         JSONB,
		    text         TEXT NOT NULL,
		    vision_blob  BYTEA,
		    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		    UNIQUE (source_id, uri)
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_items_source_guid ON items(source_id, guid) WHERE guid IS NOT NULL`,
		`CREATE INDEX IF NOT EXISTS idx_items_source_id ON items(source_id)`,
		`CREATE INDEX IF NOT EXISTS idx_items_created_at ON items(created_at DESC)`,

		`CREATE TABLE IF NOT EXISTS email_credentials (
		    email_address     VARCHAR(320) PRIMARY KEY,
		    password          TEXT NOT NULL,
		    last_sync_instant TIMESTAMPTZ,
		    created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS user_aggregators (
		    user_id                 TEXT PRIMARY KEY,
		    kind                    VARCHAR(10) NOT NULL,
		    bucket_duration_seconds BIGINT NOT NULL,
		    max_items               INT NOT NULL,
		    last_emit_instant       TIMESTAMPTZ,
		    buffer                  JSONB NOT NULL DEFAULT '[]',
		    CONSTRAINT chk_aggregator_kind CHECK (kind IN ('hourly', 'daily', 'weekly', 'custom'))
		)`,

		`CREATE TABLE IF NOT EXISTS user_preferences (
		    user_id          TEXT PRIMARY KEY,
		    description_text TEXT NOT NULL DEFAULT '',
		    memory_text      TEXT NOT NULL DEFAULT ''
		)`,
	}

	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	// pgvector is optional: the item_embeddings table only backs the
	// near-duplicate supplement, never the spec's required exact-key dedup.
	// Ignore failure when the extension isn't installed.
	_, _ = db.Exec(`CREATE EXTENSION IF NOT EXISTS vector`)

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS item_embeddings (
    id             BIGSERIAL PRIMARY KEY,
    item_id        BIGINT NOT NULL REFERENCES items(id) ON DELETE CASCADE,
    embedding_type VARCHAR(50) NOT NULL,
    provider       VARCHAR(50) NOT NULL,
    model          VARCHAR(100) NOT NULL,
    dimension      INT NOT NULL,
    embedding      vector(1536) NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE(item_id, embedding_type, provider, model)
)`); err != nil {
		return err
	}

	_, _ = db.Exec(`CREATE INDEX IF NOT EXISTS idx_item_embeddings_item_id ON item_embeddings(item_id)`)
	_, _ = db.Exec(`
CREATE INDEX IF NOT EXISTS idx_item_embeddings_vector
    ON item_embeddings USING ivfflat (embedding vector_cosine_ops)
    WITH (lists = 100)`)

	return nil
}

// MigrateDown drops the optional embedding supplement only. Core tables
// (sources, items, email_credentials, user_aggregators, user_preferences)
// are never dropped by this helper; use a proper migration tool for
// destructive rollback.
func MigrateDown(db *sql.DB) error {
	statements := []string{
		`DROP INDEX IF EXISTS idx_item_embeddings_vector`,
		`DROP INDEX IF EXISTS idx_item_embeddings_item_id`,
		`DROP TABLE IF EXISTS item_embeddings CASCADE`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
