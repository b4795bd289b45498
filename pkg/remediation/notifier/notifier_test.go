package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ci-remediator/orchestrator/pkg/logx"
	"github.com/ci-remediator/orchestrator/pkg/remediation/substrate"
)

func TestSend_PostsPayloadToConfiguredChannel(t *testing.T) {
	var received webhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL, logx.NewLogger("notifier-test"))
	err := n.Send(context.Background(), "#ci-alerts", substrate.NotifyInitialAlert, map[string]any{"failure_id": "f1"})
	require.NoError(t, err)
	assert.Equal(t, substrate.NotifyInitialAlert, received.Kind)
	assert.Equal(t, "f1", received.Payload["failure_id"])
}

func TestSend_NoWebhookURLReturnsError(t *testing.T) {
	n := New("", logx.NewLogger("notifier-test"))
	err := n.Send(context.Background(), "#missing", substrate.NotifyCritical, nil)
	assert.Error(t, err)
}

func TestSend_RetriesOn5xxThenSucceeds(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(srv.URL, logx.NewLogger("notifier-test"))
	err := n.Send(context.Background(), "#ci-alerts", substrate.NotifyEscalation, map[string]any{})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, atomic.LoadInt32(&attempts), int32(2))
}

func TestSend_4xxIsNotRetried(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	n := New(srv.URL, logx.NewLogger("notifier-test"))
	err := n.Send(context.Background(), "#ci-alerts", substrate.NotifyWeeklyReport, map[string]any{})
	assert.Error(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&attempts))
}
