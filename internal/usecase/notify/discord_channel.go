package notify

import (
	"context"

	"feedmesh/internal/domain/entity"
	"feedmesh/internal/infra/notifier"
)

// DiscordChannel implements the Channel interface for Discord notifications.
// It wraps the infrastructure-layer DiscordNotifier to provide the Channel
// abstraction for the notification use case.
type DiscordChannel struct {
	notifier notifier.Notifier
	enabled  bool
}

// NewDiscordChannel creates a new Discord channel with the specified configuration.
//
// If Discord notifications are disabled, a NoOpNotifier is used instead to
// avoid null checks and ensure the Channel interface contract is always
// satisfied.
func NewDiscordChannel(config notifier.DiscordConfig) *DiscordChannel {
	var n notifier.Notifier
	if config.Enabled {
		n = notifier.NewDiscordNotifier(config)
	} else {
		n = notifier.NewNoOpNotifier()
	}

	return &DiscordChannel{
		notifier: n,
		enabled:  config.Enabled,
	}
}

// Name returns the channel identifier "discord".
func (c *DiscordChannel) Name() string {
	return "discord"
}

// IsEnabled returns whether Discord notifications are enabled via configuration.
func (c *DiscordChannel) IsEnabled() bool {
	return c.enabled
}

// Send sends a notification about a newly emitted digest to Discord.
func (c *DiscordChannel) Send(ctx context.Context, digest *entity.AggregatedOutput) error {
	if !c.enabled {
		return ErrChannelDisabled
	}
	if digest == nil {
		return ErrInvalidDigest
	}
	return c.notifier.NotifyDigest(ctx, digest)
}
