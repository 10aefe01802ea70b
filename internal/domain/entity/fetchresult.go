package entity

import "time"

// FetchResult is the ephemeral outcome of a single fetch attempt (spec §3).
// It never persists as-is; the State Store derives cursor/scheduling field
// updates from it via ApplyFetchOutcome.
type FetchResult struct {
	Success bool

	HTTPStatus       int
	NewETag          string
	NewLastModified  string
	ContentBytes     int64
	ResponseLatency  time.Duration

	// NewSyncInstant is the instant an IMAP fetch's next SEARCH SINCE should
	// resume from. Left nil for RSS sources, which cursor on ETag/Last-
	// Modified instead.
	NewSyncInstant *time.Time

	Err error
}
