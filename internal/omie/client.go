package omie

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"haintegrations/internal/coordinator"

	"go.uber.org/zap"
)

// ErrNotPublished is returned when the prices of a day are not available yet
var ErrNotPublished = errors.New("prices not published yet")

// Client fetches the prices of one market day. day is market midnight.
type Client interface {
	FetchDay(ctx context.Context, day time.Time) (DayResult, error)
}

// ClientFunc adapts a function to Client
type ClientFunc func(ctx context.Context, day time.Time) (DayResult, error)

// FetchDay implements Client
func (f ClientFunc) FetchDay(ctx context.Context, day time.Time) (DayResult, error) {
	return f(ctx, day)
}

// DefaultBaseURL is the public OMIE file download endpoint
const DefaultBaseURL = "https://www.omie.es"

// HTTPOptions parameterise the HTTP client
type HTTPOptions struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// HTTPClient downloads marginalpdbc files
type HTTPClient struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPClient constructs an HTTP client
func NewHTTPClient(opts HTTPOptions, logger *zap.Logger) *HTTPClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPClient{
		baseURL: baseURL,
		client:  client,
		logger:  logger.Named("client"),
	}
}

// FileName returns the marginal price file name of a day
func FileName(day time.Time) string {
	return "marginalpdbc_" + day.Format("20060102") + ".1"
}

// FetchDay implements Client
func (c *HTTPClient) FetchDay(ctx context.Context, day time.Time) (DayResult, error) {
	op := "fetch " + day.Format(time.DateOnly)

	q := url.Values{}
	q.Set("parents", "marginalpdbc")
	q.Set("filename", FileName(day))
	endpoint := c.baseURL + "/es/file-download?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return DayResult{}, &coordinator.APIError{Op: op, Err: err}
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return DayResult{}, &coordinator.APIError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return DayResult{}, &coordinator.APIError{Op: op, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode == http.StatusNotFound {
		return DayResult{}, ErrNotPublished
	}
	if resp.StatusCode != http.StatusOK {
		return DayResult{}, &coordinator.APIError{Op: op, StatusCode: resp.StatusCode}
	}
	// An unpublished file is served as an empty 200 or an HTML page
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || strings.HasPrefix(trimmed, "<") {
		return DayResult{}, ErrNotPublished
	}

	res, err := ParseMarginalPrices(body, day)
	if err != nil {
		return DayResult{}, &coordinator.APIError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("parse: %w", err)}
	}

	c.logger.Debug("Fetched prices",
		zap.String("day", day.Format(time.DateOnly)),
		zap.Int("periods", res.Periods()))
	return res, nil
}

var _ Client = (*HTTPClient)(nil)
