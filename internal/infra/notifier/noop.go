package notifier

import (
	"context"

	"feedmesh/internal/domain/entity"
)

// NoOpNotifier is a no-operation implementation of the Notifier interface.
// It is used when notifications are disabled to avoid null checks in the code.
// This follows the Null Object pattern.
type NoOpNotifier struct{}

// NewNoOpNotifier creates a new NoOpNotifier instance.
func NewNoOpNotifier() *NoOpNotifier {
	return &NoOpNotifier{}
}

// NotifyDigest does nothing and returns nil immediately.
func (n *NoOpNotifier) NotifyDigest(ctx context.Context, digest *entity.AggregatedOutput) error {
	return nil
}
