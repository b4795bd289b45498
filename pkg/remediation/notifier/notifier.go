// Package notifier delivers outbound remediation notifications (initial alert, analysis
// summary, approval request, remediation result, critical, escalation, weekly report) to
// a configured chat webhook (§6). It is outbound only: the package has no inbound HTTP
// handler for approval callbacks posted back from chat actions.
//
// No chat-SDK dependency appears anywhere in the example pack (Slack/Discord/Teams
// clients are all thin JSON-over-HTTP webhooks), so this adapter is a deliberate,
// justified use of net/http rather than a third-party client — see DESIGN.md.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/ci-remediator/orchestrator/pkg/logx"
	"github.com/ci-remediator/orchestrator/pkg/remediation/backoff"
	"github.com/ci-remediator/orchestrator/pkg/remediation/substrate"
)

// SendTimeout is the per-call deadline for a webhook POST, per §5.
const SendTimeout = 10 * time.Second

// WebhookNotifier posts JSON payloads to a single configured webhook URL
// (config.SubstrateConfig.NotifierChannel resolves the target channel name; the webhook
// endpoint itself is a single team/bot integration URL, matching how the config schema
// models one notifier substrate per deployment rather than a per-channel URL map).
type WebhookNotifier struct {
	client     *http.Client
	webhookURL string
	logger     *logx.Logger
}

// New constructs a WebhookNotifier posting to webhookURL.
func New(webhookURL string, logger *logx.Logger) *WebhookNotifier {
	return &WebhookNotifier{
		client:     &http.Client{Timeout: SendTimeout},
		webhookURL: webhookURL,
		logger:     logger,
	}
}

type webhookPayload struct {
	Kind    substrate.NotificationKind `json:"kind"`
	Channel string                     `json:"channel"`
	Payload map[string]any             `json:"payload"`
	SentAt  string                     `json:"sent_at"`
}

// Send posts kind/payload to channel's webhook, retrying transient HTTP failures with
// backoff.ClassifierPolicy's shape (bounded, so a stuck webhook can't stall the caller
// indefinitely).
func (n *WebhookNotifier) Send(ctx context.Context, channel string, kind substrate.NotificationKind, payload map[string]any) error {
	if n.webhookURL == "" {
		return fmt.Errorf("notifier: no webhook URL configured")
	}

	body, err := json.Marshal(webhookPayload{Kind: kind, Channel: channel, Payload: payload, SentAt: time.Now().UTC().Format(time.RFC3339)})
	if err != nil {
		return fmt.Errorf("notifier: marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= backoff.ClassifierPolicy.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff.ClassifierPolicy.Delay(attempt - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("notifier: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.client.Do(req)
		if err != nil {
			lastErr = err
			n.logger.Warn("notifier: send failed channel=%s kind=%s attempt=%d err=%v", channel, kind, attempt, err)
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("webhook returned %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("notifier: webhook rejected payload with status %d", resp.StatusCode)
		}
		return nil
	}
	return fmt.Errorf("notifier: exhausted retries: %w", lastErr)
}

var _ substrate.Notifier = (*WebhookNotifier)(nil)
