package email_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/email"
)

func postmarkConfig() email.Config {
	return email.Config{
		PostmarkServerToken:  "test-server-token",
		PostmarkAccountToken: "test-account-token",
		SenderEmail:          "sender@example.com",
		SenderName:           "Notifykit",
		SupportEmail:         "support@example.com",
	}
}

func TestNewPostmarkClient_InvalidConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(*email.Config)
		errMsg string
	}{
		{"empty server token", func(c *email.Config) { c.PostmarkServerToken = "" }, "PostmarkServerToken is required"},
		{"empty account token", func(c *email.Config) { c.PostmarkAccountToken = "" }, "PostmarkAccountToken is required"},
		{"missing sender email", func(c *email.Config) { c.SenderEmail = "" }, "SenderEmail is required"},
		{"invalid sender email", func(c *email.Config) { c.SenderEmail = "nope" }, "SenderEmail must be a valid email address"},
		{"missing support email", func(c *email.Config) { c.SupportEmail = "" }, "SupportEmail is required"},
		{"invalid support email", func(c *email.Config) { c.SupportEmail = "support@" }, "SupportEmail must be a valid email address"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := postmarkConfig()
			tt.modify(&cfg)
			client, err := email.NewPostmarkClient(cfg)
			assert.Nil(t, client)
			assert.ErrorIs(t, err, email.ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestPostmarkClient_SendEmail(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		response map[string]any
		wantErr  error
	}{
		{
			name:     "accepted",
			response: map[string]any{"ErrorCode": 0, "Message": "OK", "MessageID": "m-1", "To": "user@example.com"},
		},
		{
			name:     "inactive recipient is rejected",
			response: map[string]any{"ErrorCode": 406, "Message": "You tried to send to a recipient that has been marked as inactive."},
			wantErr:  email.ErrRejected,
		},
		{
			name:     "other api errors may be retried",
			response: map[string]any{"ErrorCode": 405, "Message": "Not allowed to send"},
			wantErr:  email.ErrFailedToSendEmail,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got map[string]any
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Equal(t, "/email", r.URL.Path)
				assert.Equal(t, "test-server-token", r.Header.Get("X-Postmark-Server-Token"))
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				w.Header().Set("Content-Type", "application/json")
				_ = json.NewEncoder(w).Encode(tt.response)
			}))
			defer server.Close()

			client, err := email.NewPostmarkClient(postmarkConfig(), email.WithPostmarkBaseURL(server.URL))
			require.NoError(t, err)

			err = client.SendEmail(context.Background(), validParams())
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, "user@example.com", got["To"])
			assert.Equal(t, "Test Subject", got["Subject"])
			assert.Equal(t, "support@example.com", got["ReplyTo"])
			assert.Equal(t, "Notifykit <sender@example.com>", got["From"])
		})
	}
}

func TestPostmarkClient_InvalidParams(t *testing.T) {
	t.Parallel()

	client, err := email.NewPostmarkClient(postmarkConfig())
	require.NoError(t, err)

	p := validParams()
	p.Subject = ""
	err = client.SendEmail(context.Background(), p)
	assert.ErrorIs(t, err, email.ErrInvalidParams)
}
