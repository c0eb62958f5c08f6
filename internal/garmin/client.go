package garmin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"haintegrations/internal/clock"
	"haintegrations/internal/coordinator"
	"haintegrations/internal/credential"

	"go.uber.org/zap"
)

// Client is the device/API client. Every fetch returns either a complete
// snapshot or an error: *coordinator.AuthError when the credential is
// rejected, *coordinator.APIError for anything else.
type Client interface {
	credential.TokenSource

	// UseTokens hands the client the credential for subsequent requests.
	// A credential older than the one already held is ignored.
	UseTokens(c credential.Credential)

	// Tokens returns the credential the client currently holds
	Tokens() credential.Credential

	FetchCore(ctx context.Context, day time.Time) (CoreData, error)
	FetchActivity(ctx context.Context, day time.Time) (ActivityData, error)
	FetchTraining(ctx context.Context, day time.Time) (TrainingData, error)
	FetchBody(ctx context.Context, day time.Time) (BodyData, error)
	FetchGoals(ctx context.Context) (GoalsData, error)
	FetchGear(ctx context.Context) (GearData, error)
	FetchBloodPressure(ctx context.Context, day time.Time) (BloodPressureData, error)
	FetchMenstrual(ctx context.Context, day time.Time) (MenstrualData, error)
}

// HTTPOptions parameterise the HTTP client
type HTTPOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	// HTTPClient overrides the transport, e.g. in tests
	HTTPClient *http.Client
	// Clock stamps token expiry; it must be the clock the refresher checks
	Clock clock.Clock
}

// minTokenLifetime keeps a token with a missing or tiny expires_in usable for
// a while instead of exchanging it on every fetch
const minTokenLifetime = 5 * time.Minute

// HTTPClient talks to a Garmin Connect style JSON API with bearer tokens
type HTTPClient struct {
	opts    HTTPOptions
	baseURL string
	client  *http.Client
	clock   clock.Clock
	logger  *zap.Logger

	mu     sync.RWMutex
	tokens credential.Credential
}

// NewHTTPClient constructs an HTTP client
func NewHTTPClient(opts HTTPOptions, logger *zap.Logger) *HTTPClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://connectapi.garmin.com"
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	clk := opts.Clock
	if clk == nil {
		clk = clock.NewRealClock()
	}

	return &HTTPClient{
		opts:    opts,
		baseURL: baseURL,
		client:  client,
		clock:   clk,
		logger:  logger.Named("client"),
	}
}

// UseTokens implements Client
func (c *HTTPClient) UseTokens(t credential.Credential) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.tokens.ExpiresAt.IsZero() && t.ExpiresAt.Before(c.tokens.ExpiresAt) {
		return
	}
	c.tokens = t
}

// Tokens implements Client
func (c *HTTPClient) Tokens() credential.Credential {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tokens
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// RefreshTokens exchanges the long-lived OAuth1 pair for a new OAuth2 token
func (c *HTTPClient) RefreshTokens(ctx context.Context, current credential.Credential) (credential.Credential, error) {
	const op = "refresh_tokens"

	form := url.Values{}
	form.Set("oauth1_token", current.OAuth1Token)
	form.Set("oauth1_secret", current.OAuth1Secret)
	form.Set("refresh_token", current.OAuth2Refresh)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/oauth-service/oauth/exchange/user/2.0", strings.NewReader(form.Encode()))
	if err != nil {
		return credential.Credential{}, &coordinator.APIError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.setUserAgent(req)

	var tr tokenResponse
	if err := c.do(req, op, &tr); err != nil {
		return credential.Credential{}, err
	}
	if tr.AccessToken == "" {
		return credential.Credential{}, &coordinator.AuthError{Op: op, Err: errors.New("empty access token")}
	}

	next := current
	next.OAuth2Token = tr.AccessToken
	if tr.RefreshToken != "" {
		next.OAuth2Refresh = tr.RefreshToken
	}
	lifetime := time.Duration(tr.ExpiresIn) * time.Second
	if lifetime < minTokenLifetime {
		lifetime = minTokenLifetime
	}
	next.ExpiresAt = c.clock.Now().Add(lifetime).UTC().Truncate(time.Second)

	c.UseTokens(next)
	return next, nil
}

func (c *HTTPClient) FetchCore(ctx context.Context, day time.Time) (CoreData, error) {
	var out CoreData
	err := c.getJSON(ctx, "core", "/usersummary-service/usersummary/daily", dayQuery(day), &out)
	return out, err
}

func (c *HTTPClient) FetchActivity(ctx context.Context, day time.Time) (ActivityData, error) {
	var out ActivityData
	err := c.getJSON(ctx, "activity", "/activitylist-service/activities/summary", dayQuery(day), &out)
	return out, err
}

func (c *HTTPClient) FetchTraining(ctx context.Context, day time.Time) (TrainingData, error) {
	var out TrainingData
	err := c.getJSON(ctx, "training", "/metrics-service/metrics/training", dayQuery(day), &out)
	return out, err
}

func (c *HTTPClient) FetchBody(ctx context.Context, day time.Time) (BodyData, error) {
	var out BodyData
	err := c.getJSON(ctx, "body", "/weight-service/weight/daily", dayQuery(day), &out)
	return out, err
}

func (c *HTTPClient) FetchGoals(ctx context.Context) (GoalsData, error) {
	var out GoalsData
	err := c.getJSON(ctx, "goals", "/goal-service/goals/summary", nil, &out)
	return out, err
}

func (c *HTTPClient) FetchGear(ctx context.Context) (GearData, error) {
	var out GearData
	err := c.getJSON(ctx, "gear", "/gear-service/gear/summary", nil, &out)
	return out, err
}

func (c *HTTPClient) FetchBloodPressure(ctx context.Context, day time.Time) (BloodPressureData, error) {
	var out BloodPressureData
	err := c.getJSON(ctx, "blood_pressure", "/bloodpressure-service/bloodpressure/latest", dayQuery(day), &out)
	return out, err
}

func (c *HTTPClient) FetchMenstrual(ctx context.Context, day time.Time) (MenstrualData, error) {
	var out MenstrualData
	err := c.getJSON(ctx, "menstrual", "/periodichealth-service/menstrualcycle/dayview", dayQuery(day), &out)
	out.Day = day
	return out, err
}

func dayQuery(day time.Time) url.Values {
	q := url.Values{}
	q.Set("calendarDate", day.Format(time.DateOnly))
	return q
}

func (c *HTTPClient) getJSON(ctx context.Context, op, path string, query url.Values, out interface{}) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return &coordinator.APIError{Op: op, Err: err}
	}

	tokens := c.Tokens()
	if tokens.OAuth2Token == "" {
		return &coordinator.AuthError{Op: op, Err: errors.New("no access token")}
	}
	req.Header.Set("Authorization", "Bearer "+tokens.OAuth2Token)
	req.Header.Set("Accept", "application/json")
	c.setUserAgent(req)

	return c.do(req, op, out)
}

func (c *HTTPClient) do(req *http.Request, op string, out interface{}) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return &coordinator.APIError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return &coordinator.APIError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &coordinator.AuthError{Op: op, Err: fmt.Errorf("status %d", resp.StatusCode)}
	case resp.StatusCode == http.StatusNoContent:
		return nil
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &coordinator.APIError{Op: op, StatusCode: resp.StatusCode, Err: errors.New(snippet(body))}
	}

	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &coordinator.APIError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}

	c.logger.Debug("Fetched", zap.String("op", op), zap.Int("bytes", len(body)))
	return nil
}

func (c *HTTPClient) setUserAgent(req *http.Request) {
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "haintegrations/1.0")
	}
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		s = s[:200]
	}
	if s == "" {
		s = "empty body"
	}
	return s
}

var _ Client = (*HTTPClient)(nil)
