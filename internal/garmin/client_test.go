package garmin

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"haintegrations/internal/coordinator"
	"haintegrations/internal/credential"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHTTPClient(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewHTTPClient(HTTPOptions{BaseURL: srv.URL, UserAgent: "test-agent"}, nil)
	c.UseTokens(credential.Credential{OAuth1Token: "o1", OAuth2Token: "access", ExpiresAt: setupTime})
	return c
}

func TestHTTPClient_FetchCore(t *testing.T) {
	c := newTestHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/usersummary-service/usersummary/daily", r.URL.Path)
		assert.Equal(t, "2025-06-01", r.URL.Query().Get("calendarDate"))
		assert.Equal(t, "Bearer access", r.Header.Get("Authorization"))
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"totalSteps": 8765, "totalDistanceMeters": 6012.5, "lastSyncTimestampGMT": "2025-06-01T07:55:00"}`))
	})

	data, err := c.FetchCore(context.Background(), time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.NotNil(t, data.TotalSteps)
	assert.Equal(t, 8765, *data.TotalSteps)
	assert.Equal(t, 6012.5, *data.TotalDistanceMeters)
}

func TestHTTPClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantAuth bool
		wantCode int
	}{
		{name: "unauthorized", status: http.StatusUnauthorized, wantAuth: true},
		{name: "forbidden", status: http.StatusForbidden, wantAuth: true},
		{name: "server error", status: http.StatusInternalServerError, body: "boom", wantCode: 500},
		{name: "rate limited", status: http.StatusTooManyRequests, wantCode: 429},
		{name: "bad json", status: http.StatusOK, body: `{"totalSteps": "many"`, wantCode: 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.FetchGoals(context.Background())
			require.Error(t, err)
			assert.Equal(t, tt.wantAuth, coordinator.IsAuthError(err))
			if !tt.wantAuth {
				var apiErr *coordinator.APIError
				require.True(t, errors.As(err, &apiErr))
				assert.Equal(t, tt.wantCode, apiErr.StatusCode)
			}
		})
	}
}

func TestHTTPClient_NoContentIsEmptySnapshot(t *testing.T) {
	c := newTestHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	data, err := c.FetchBloodPressure(context.Background(), setupTime)
	require.NoError(t, err)
	assert.Nil(t, data.Systolic)
}

func TestHTTPClient_NoTokenIsAuthError(t *testing.T) {
	c := NewHTTPClient(HTTPOptions{BaseURL: "http://127.0.0.1:1"}, nil)
	_, err := c.FetchGear(context.Background())
	assert.True(t, coordinator.IsAuthError(err))
}

func TestHTTPClient_RefreshTokens(t *testing.T) {
	c := newTestHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/oauth-service/oauth/exchange/user/2.0", r.URL.Path)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "o1", r.PostForm.Get("oauth1_token"))
		_, _ = w.Write([]byte(`{"access_token": "new-access", "refresh_token": "new-refresh", "expires_in": 3600}`))
	})

	current := c.Tokens()
	next, err := c.RefreshTokens(context.Background(), current)
	require.NoError(t, err)
	assert.Equal(t, "new-access", next.OAuth2Token)
	assert.Equal(t, "new-refresh", next.OAuth2Refresh)
	assert.Equal(t, "o1", next.OAuth1Token)
	assert.True(t, next.ExpiresAt.After(time.Now()))
	assert.Equal(t, next, c.Tokens())
}

func TestHTTPClient_RefreshRejected(t *testing.T) {
	c := newTestHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.RefreshTokens(context.Background(), c.Tokens())
	assert.True(t, coordinator.IsAuthError(err))
}

func TestHTTPClient_UseTokensIgnoresOlder(t *testing.T) {
	c := NewHTTPClient(HTTPOptions{}, nil)
	newer := credential.Credential{OAuth2Token: "newer", ExpiresAt: setupTime.Add(time.Hour)}
	older := credential.Credential{OAuth2Token: "older", ExpiresAt: setupTime}

	c.UseTokens(newer)
	c.UseTokens(older)
	assert.Equal(t, "newer", c.Tokens().OAuth2Token)

	newest := credential.Credential{OAuth2Token: "newest", ExpiresAt: setupTime.Add(2 * time.Hour)}
	c.UseTokens(newest)
	assert.Equal(t, "newest", c.Tokens().OAuth2Token)
}

func TestHTTPClient_MenstrualCarriesDay(t *testing.T) {
	c := newTestHTTPClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"daySummary": {"startDate": "2025-05-20", "currentPhase": 2, "fertileWindowStart": 10, "lengthOfFertileWindow": 6}}`))
	})

	day := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	data, err := c.FetchMenstrual(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, day, data.Day)
	assert.Equal(t, "Follicular", data.Phase())
	assert.Equal(t, "2025-05-29", data.FertileWindowStart())
	assert.Equal(t, "2025-06-03", data.FertileWindowEnd())
}
