package testkit

import (
	"context"
	"sync"

	"github.com/ci-remediator/orchestrator/pkg/remediation/substrate"
)

// FakeNotifier records every Send call for assertions instead of delivering anything.
type FakeNotifier struct {
	mu   sync.Mutex
	Sent []SentNotification
}

// SentNotification is one recorded Notifier.Send call.
type SentNotification struct {
	Channel string
	Kind    substrate.NotificationKind
	Payload map[string]any
}

func (n *FakeNotifier) Send(_ context.Context, channel string, kind substrate.NotificationKind, payload map[string]any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Sent = append(n.Sent, SentNotification{Channel: channel, Kind: kind, Payload: payload})
	return nil
}

var _ substrate.Notifier = (*FakeNotifier)(nil)
