package webhook_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/notifications"
	"github.com/dmitrymomot/notifykit/pkg/webhook"
)

func TestTransport_Send(t *testing.T) {
	t.Parallel()

	var got notifications.Payload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	p := notifications.Payload{
		NotificationID: "n1",
		UserID:         "u1",
		Title:          "Withdrawal approved",
		Message:        "Funds are on the way",
		Type:           notifications.TypeSuccess,
		CreatedAt:      time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	tr := webhook.NewTransport(webhook.NewSender())
	require.NoError(t, tr.Send(context.Background(), server.URL, p))
	assert.Equal(t, p, got)
}

func TestTransport_ErrorMapping(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		status        int
		wantPermanent bool
	}{
		{"client error is permanent", http.StatusNotFound, true},
		{"server error stays retryable", http.StatusServiceUnavailable, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			err := webhook.NewTransport(webhook.NewSender()).
				Send(context.Background(), server.URL, notifications.Payload{NotificationID: "n1"})
			require.Error(t, err)
			assert.Equal(t, tt.wantPermanent, errors.Is(err, notifications.ErrPermanentFailure))
			assert.Equal(t, !tt.wantPermanent, notifications.IsRetryable(err))
		})
	}

	t.Run("invalid url", func(t *testing.T) {
		t.Parallel()
		err := webhook.NewTransport(webhook.NewSender()).
			Send(context.Background(), "not a url", notifications.Payload{})
		assert.ErrorIs(t, err, notifications.ErrPermanentFailure)
		assert.ErrorIs(t, err, webhook.ErrInvalidURL)
	})
}
