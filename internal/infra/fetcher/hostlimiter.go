package fetcher

import (
	"net/url"
	"sync"
	"time"

	"feedmesh/pkg/ratelimit"
)

// HostLimiter enforces a minimum gap between requests to the same host, the
// Fetchers' per-host politeness rule. Unlike pkg/ratelimit's sliding-window
// counter (built for inbound request throttling), a fetch loop only needs
// "has enough time passed since this host's last request" — a single
// earliest-next-request timestamp per key, not a rolling count.
type HostLimiter struct {
	mu      sync.Mutex
	minGap  time.Duration
	nextOK  map[string]time.Time
	clock   ratelimit.Clock
}

// NewHostLimiter builds a limiter with the given minimum gap between
// requests to any one host. A zero clock defaults to the system clock.
func NewHostLimiter(minGap time.Duration, clock ratelimit.Clock) *HostLimiter {
	if clock == nil {
		clock = ratelimit.SystemClock{}
	}
	return &HostLimiter{
		minGap: minGap,
		nextOK: make(map[string]time.Time),
		clock:  clock,
	}
}

// HostOf extracts the rate-limit key (scheme://host) from a raw URL. Fetch
// sources that fail to parse fall back to the raw string itself so a
// malformed URI still gets its own bucket rather than colliding with others.
func HostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Scheme + "://" + u.Host
}

// Reserve does not block: it returns how long the caller must wait (the
// caller sleeps for it, honoring ctx cancellation) until the host's minimum
// gap has elapsed, and reserves that slot for the request. A zero delay
// means the caller may proceed immediately.
func (h *HostLimiter) Reserve(host string) time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.clock.Now()
	next := h.nextOK[host]
	var delay time.Duration
	if next.After(now) {
		delay = next.Sub(now)
	}
	h.nextOK[host] = now.Add(delay).Add(h.minGap)
	return delay
}
