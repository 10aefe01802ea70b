// Package entity defines the core domain entities and validation logic for the
// ingestion pipeline: Source, Item, Credential, user aggregator state, and
// their validation rules and domain-specific errors.
package entity

import "time"

// Item is a normalized ingested unit, sourced from either an RSS/Atom entry
// or an IMAP message. URI is the globally unique key, stable across
// re-fetches of the same entry.
type Item struct {
	ID        int64
	SourceID  int64
	URI       string
	SourceURI string

	// Text is the composed header+body representation used by downstream
	// processing stages.
	Text       string
	VisionBlob []byte

	// Supplementary fields, populated from the feed entry for RSS-derived
	// items. IMAP-derived items fill GUID (Message-Id), Title (subject),
	// Content (body), Author (sender) and PublishedAt, and leave
	// Description, UpdatedAt and Tags empty.
	GUID        string
	Title       string
	Description string
	Content     string
	Author      string
	PublishedAt *time.Time
	UpdatedAt   *time.Time
	Tags        []string

	CreatedAt time.Time
}
