// Package fetcherr defines the closed set of fetch error kinds shared by
// the RSS and IMAP fetchers (spec §7): each is distinct and testable, and
// each carries its own retry/backoff/park semantics.
package fetcherr

import (
	"errors"
	"fmt"
)

// Sentinel errors for fetch outcomes that are not represented by a typed
// error below.
var (
	// ErrNotModified is not a failure: HTTP 304, zero new items, cursors
	// unchanged.
	ErrNotModified = errors.New("not modified")

	// ErrFeedTooLarge means the response body exceeded max_feed_size.
	// Terminal for the attempt.
	ErrFeedTooLarge = errors.New("feed too large")

	// ErrRedirectLimit means the response chain exceeded max_redirects.
	// Terminal for the attempt.
	ErrRedirectLimit = errors.New("redirect limit exceeded")

	// ErrParse means the feed or message body could not be decoded.
	// Terminal for the attempt; cursor is not advanced.
	ErrParse = errors.New("parse error")

	// ErrStore means the State Store rejected the write; the whole fetch
	// rolls back and the scheduler retries per normal rules.
	ErrStore = errors.New("store error")
)

// ConfigError marks a source as structurally unusable (malformed URI,
// missing credential). Parked with a long retry delay.
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string { return "config error: " + e.Reason }

// TransportError wraps a DNS/connect/TLS/read failure. Retriable.
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport error: %v", e.Cause) }
func (e *TransportError) Unwrap() error { return e.Cause }

// Retriable is always true: a DNS/connect/TLS/read failure is transient by
// definition here, never a reason to park the source.
func (e *TransportError) Retriable() bool { return true }

// HTTPError wraps a non-2xx, non-304 HTTP response. Retriable for 5xx and
// 429, terminal otherwise.
type HTTPError struct {
	StatusCode int
}

func (e *HTTPError) Error() string { return fmt.Sprintf("http error: status %d", e.StatusCode) }

// Retriable reports whether this status code should be retried in-fetch.
func (e *HTTPError) Retriable() bool {
	return e.StatusCode == 429 || (e.StatusCode >= 500 && e.StatusCode < 600)
}

// AuthError marks an IMAP login rejection. Parked with a long delay
// without incrementing the general consecutive-error counter, so
// transient network blips aren't masked by an auth park.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string { return "auth error: " + e.Reason }
