package aggregator

import (
	"sync"

	"feedmesh/internal/domain/entity"
)

// Registry holds one TimeBucketAggregator per user, individually lockable
// so one user's add/emit doesn't contend with another's (spec §5's
// "per-user entries individually lockable" resource note).
type Registry struct {
	mu    sync.RWMutex
	users map[string]*TimeBucketAggregator
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{users: make(map[string]*TimeBucketAggregator)}
}

// Create registers a new aggregator instance for userID, replacing any
// existing one.
func (r *Registry) Create(userID string, cfg Config) *TimeBucketAggregator {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := New(userID, cfg)
	r.users[userID] = a
	return a
}

// Configure loads a previously persisted aggregator instance back into the
// registry (State Store restore on startup).
func (r *Registry) Configure(state *entity.AggregatorState) *TimeBucketAggregator {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := Restore(state)
	r.users[state.UserID] = a
	return a
}

// Remove deregisters a user's aggregator.
func (r *Registry) Remove(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.users, userID)
}

// Get returns the aggregator for userID, or nil if none is registered.
func (r *Registry) Get(userID string) *TimeBucketAggregator {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.users[userID]
}

// ListUsers returns the set of registered user IDs.
func (r *Registry) ListUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]string, 0, len(r.users))
	for id := range r.users {
		users = append(users, id)
	}
	return users
}

// ForEachReadyEmit calls sink for every registered user whose aggregator is
// Ready, passing the emitted output. Iteration snapshots the user list
// under the read lock so sink (which may itself take time, e.g. a channel
// send) never runs while the registry lock is held.
func (r *Registry) ForEachReadyEmit(sink func(entity.AggregatedOutput)) {
	r.mu.RLock()
	aggregators := make([]*TimeBucketAggregator, 0, len(r.users))
	for _, a := range r.users {
		aggregators = append(aggregators, a)
	}
	r.mu.RUnlock()

	for _, a := range aggregators {
		if !a.Ready() {
			continue
		}
		if output, ok := a.Emit(); ok {
			sink(output)
		}
	}
}
