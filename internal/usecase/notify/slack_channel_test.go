package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"feedmesh/internal/domain/entity"
	"feedmesh/internal/infra/notifier"
)

// mockSlackNotifier is a test implementation of the Notifier interface
// used to test SlackChannel behavior without making real HTTP requests.
type mockSlackNotifier struct {
	notifyCalled  int
	returnErr     error
	capturedCtx   context.Context
	capturedDigest *entity.AggregatedOutput
}

func (m *mockSlackNotifier) NotifyDigest(ctx context.Context, digest *entity.AggregatedOutput) error {
	m.notifyCalled++
	m.capturedCtx = ctx
	m.capturedDigest = digest
	return m.returnErr
}

// newTestSlackChannel creates a SlackChannel with a mock notifier for testing.
func newTestSlackChannel(enabled bool, mockNotifier *mockSlackNotifier) *SlackChannel {
	return &SlackChannel{
		notifier: mockNotifier,
		enabled:  enabled,
	}
}

func TestSlackChannel_Name(t *testing.T) {
	config := notifier.SlackConfig{
		Enabled:    true,
		WebhookURL: "https://hooks.slack.com/services/test/test/test",
		Timeout:    10 * time.Second,
	}

	ch := NewSlackChannel(config)

	got := ch.Name()
	want := "slack"
	if got != want {
		t.Errorf("Name() = %v, want %v", got, want)
	}
}

func TestSlackChannel_IsEnabled(t *testing.T) {
	tests := []struct {
		name    string
		enabled bool
		want    bool
	}{
		{"enabled channel", true, true},
		{"disabled channel", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := notifier.SlackConfig{
				Enabled:    tt.enabled,
				WebhookURL: "https://hooks.slack.com/services/test/test/test",
				Timeout:    10 * time.Second,
			}

			ch := NewSlackChannel(config)

			if got := ch.IsEnabled(); got != tt.want {
				t.Errorf("IsEnabled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSlackChannel_Send_DelegatesToNotifier(t *testing.T) {
	ctx := context.Background()
	validDigest := &entity.AggregatedOutput{
		UserID:      "alice",
		KindTag:     entity.AggregatorDaily,
		SummaryText: "Test summary",
		CreatedAt:   time.Now(),
	}

	mockNotifier := &mockSlackNotifier{returnErr: nil}
	ch := newTestSlackChannel(true, mockNotifier)

	err := ch.Send(ctx, validDigest)

	if err != nil {
		t.Errorf("Send() error = %v, want nil", err)
	}
	if mockNotifier.notifyCalled != 1 {
		t.Errorf("NotifyDigest() called %d times, want 1", mockNotifier.notifyCalled)
	}
	if mockNotifier.capturedDigest != validDigest {
		t.Errorf("NotifyDigest() called with digest = %v, want %v", mockNotifier.capturedDigest, validDigest)
	}
	if mockNotifier.capturedCtx != ctx {
		t.Errorf("NotifyDigest() called with different context")
	}
}

func TestSlackChannel_Send_PropagatesErrors(t *testing.T) {
	validDigest := &entity.AggregatedOutput{UserID: "alice", SummaryText: "body", CreatedAt: time.Now()}

	tests := []struct {
		name          string
		enabled       bool
		digest        *entity.AggregatedOutput
		notifierError error
		wantErr       error
		wantCalled    int
	}{
		{
			name:       "disabled channel returns ErrChannelDisabled",
			enabled:    false,
			digest:     validDigest,
			wantErr:    ErrChannelDisabled,
			wantCalled: 0,
		},
		{
			name:       "nil digest returns ErrInvalidDigest",
			enabled:    true,
			digest:     nil,
			wantErr:    ErrInvalidDigest,
			wantCalled: 0,
		},
		{
			name:          "notifier network error is propagated",
			enabled:       true,
			digest:        validDigest,
			notifierError: errors.New("network error: connection refused"),
			wantErr:       errors.New("network error: connection refused"),
			wantCalled:    1,
		},
		{
			name:          "notifier rate limit error is propagated",
			enabled:       true,
			digest:        validDigest,
			notifierError: errors.New("Slack rate limit exceeded (retry after 5s)"),
			wantErr:       errors.New("Slack rate limit exceeded (retry after 5s)"),
			wantCalled:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			mockNotifier := &mockSlackNotifier{returnErr: tt.notifierError}
			ch := newTestSlackChannel(tt.enabled, mockNotifier)

			err := ch.Send(ctx, tt.digest)

			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Send() error = %v, want nil", err)
				}
			} else {
				if err == nil {
					t.Errorf("Send() error = nil, want %v", tt.wantErr)
				} else if !errors.Is(err, tt.wantErr) && err.Error() != tt.wantErr.Error() {
					t.Errorf("Send() error = %v, want %v", err, tt.wantErr)
				}
			}

			if mockNotifier.notifyCalled != tt.wantCalled {
				t.Errorf("NotifyDigest() called %d times, want %d", mockNotifier.notifyCalled, tt.wantCalled)
			}
		})
	}
}

func TestSlackChannel_Send_RespectsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	validDigest := &entity.AggregatedOutput{UserID: "alice", SummaryText: "body", CreatedAt: time.Now()}

	mockNotifier := &mockSlackNotifier{returnErr: context.Canceled}
	ch := newTestSlackChannel(true, mockNotifier)

	cancel()

	err := ch.Send(ctx, validDigest)

	if err == nil {
		t.Error("Send() error = nil, want context.Canceled")
	}
	if mockNotifier.capturedCtx != ctx {
		t.Error("Send() did not pass context to notifier")
	}
	if mockNotifier.notifyCalled != 1 {
		t.Errorf("NotifyDigest() called %d times, want 1", mockNotifier.notifyCalled)
	}
}

func TestSlackChannel_Send_WithTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Millisecond)
	defer cancel()

	validDigest := &entity.AggregatedOutput{UserID: "alice", SummaryText: "body", CreatedAt: time.Now()}

	mockNotifier := &mockSlackNotifier{returnErr: context.DeadlineExceeded}
	ch := newTestSlackChannel(true, mockNotifier)

	time.Sleep(5 * time.Millisecond)

	err := ch.Send(ctx, validDigest)

	if err == nil {
		t.Error("Send() error = nil, want context.DeadlineExceeded")
	}
	if mockNotifier.notifyCalled != 1 {
		t.Errorf("NotifyDigest() called %d times, want 1", mockNotifier.notifyCalled)
	}
}

func TestSlackChannel_NewSlackChannel_WithDisabledConfig(t *testing.T) {
	config := notifier.SlackConfig{
		Enabled:    false,
		WebhookURL: "",
		Timeout:    10 * time.Second,
	}

	ch := NewSlackChannel(config)

	if ch.IsEnabled() {
		t.Error("IsEnabled() = true, want false")
	}

	ctx := context.Background()
	digest := &entity.AggregatedOutput{UserID: "alice", SummaryText: "body", CreatedAt: time.Now()}

	err := ch.Send(ctx, digest)
	if !errors.Is(err, ErrChannelDisabled) {
		t.Errorf("Send() error = %v, want ErrChannelDisabled", err)
	}
}

func TestSlackChannel_NewSlackChannel_WithEnabledConfig(t *testing.T) {
	config := notifier.SlackConfig{
		Enabled:    true,
		WebhookURL: "https://hooks.slack.com/services/test/test/test",
		Timeout:    10 * time.Second,
	}

	ch := NewSlackChannel(config)

	if !ch.IsEnabled() {
		t.Error("IsEnabled() = false, want true")
	}
	if ch.Name() != "slack" {
		t.Errorf("Name() = %v, want slack", ch.Name())
	}
	if ch.notifier == nil {
		t.Error("notifier is nil, want SlackNotifier instance")
	}
}
