package binder_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/notifykit/pkg/binder"
)

type createRequest struct {
	UserID string   `json:"user_id"`
	Title  string   `json:"title"`
	Tags   []string `json:"tags"`
}

func jsonRequest(body, contentType string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	return r
}

func TestJSON(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		body        string
		contentType string
		want        createRequest
		wantErr     error
	}{
		{
			name:        "valid",
			body:        `{"user_id":"u1","title":"hi","tags":["a","b"]}`,
			contentType: "application/json",
			want:        createRequest{UserID: "u1", Title: "hi", Tags: []string{"a", "b"}},
		},
		{
			name:        "charset parameter",
			body:        `{"title":"hi"}`,
			contentType: "application/json; charset=utf-8",
			want:        createRequest{Title: "hi"},
		},
		{
			name:    "missing content type",
			body:    `{}`,
			wantErr: binder.ErrMissingContentType,
		},
		{
			name:        "wrong content type",
			body:        `title=hi`,
			contentType: "application/x-www-form-urlencoded",
			wantErr:     binder.ErrUnsupportedMediaType,
		},
		{
			name:        "unknown field",
			body:        `{"title":"hi","admin":true}`,
			contentType: "application/json",
			wantErr:     binder.ErrFailedToParseJSON,
		},
		{
			name:        "trailing data",
			body:        `{"title":"hi"}{"title":"again"}`,
			contentType: "application/json",
			wantErr:     binder.ErrFailedToParseJSON,
		},
		{
			name:        "empty body",
			contentType: "application/json",
			wantErr:     binder.ErrFailedToParseJSON,
		},
		{
			name:        "too large",
			body:        `{"title":"` + strings.Repeat("x", binder.DefaultMaxJSONSize) + `"}`,
			contentType: "application/json",
			wantErr:     binder.ErrFailedToParseJSON,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got createRequest
			err := binder.JSON()(jsonRequest(tt.body, tt.contentType), &got)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

type routeRequest struct {
	UserID   string   `path:"userID"`
	ActionID string   `path:"actionID"`
	Limit    int      `query:"limit"`
	Unread   bool     `query:"unread"`
	Channels []string `query:"channel"`
	Offset   *int     `query:"offset"`
	Ignored  string   `path:"-" query:"-"`
}

func TestPath(t *testing.T) {
	t.Parallel()

	params := map[string]string{"userID": "u1", "actionID": "open", "-": "nope"}
	extract := func(_ *http.Request, name string) string { return params[name] }

	var got routeRequest
	require.NoError(t, binder.Path(extract)(httptest.NewRequest(http.MethodGet, "/", nil), &got))
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "open", got.ActionID)
	assert.Empty(t, got.Ignored)

	err := binder.Path(nil)(httptest.NewRequest(http.MethodGet, "/", nil), &got)
	assert.ErrorIs(t, err, binder.ErrFailedToParsePath)

	err = binder.Path(extract)(httptest.NewRequest(http.MethodGet, "/", nil), got)
	assert.ErrorIs(t, err, binder.ErrFailedToParsePath, "non-pointer target")
}

func TestQuery(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		query   string
		check   func(t *testing.T, got routeRequest)
		wantErr bool
	}{
		{
			name:  "scalars",
			query: "limit=20&unread=true",
			check: func(t *testing.T, got routeRequest) {
				assert.Equal(t, 20, got.Limit)
				assert.True(t, got.Unread)
				assert.Nil(t, got.Offset)
			},
		},
		{
			name:  "slices and pointers",
			query: "channel=email,sms&channel=push&offset=5",
			check: func(t *testing.T, got routeRequest) {
				assert.Equal(t, []string{"email", "sms", "push"}, got.Channels)
				require.NotNil(t, got.Offset)
				assert.Equal(t, 5, *got.Offset)
			},
		},
		{
			name:  "lenient bool",
			query: "unread=yes",
			check: func(t *testing.T, got routeRequest) {
				assert.True(t, got.Unread)
			},
		},
		{
			name:    "invalid int",
			query:   "limit=ten",
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got routeRequest
			err := binder.Query()(httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil), &got)
			if tt.wantErr {
				assert.ErrorIs(t, err, binder.ErrFailedToParseQuery)
				return
			}
			require.NoError(t, err)
			tt.check(t, got)
		})
	}
}
