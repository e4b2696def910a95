// Package client provides the Ashby RPC client with retry, rate limit
// handling and a strict response envelope boundary.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/ashby-resumes/pkg/ratelimit"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultBaseURL is the public Ashby API root.
const DefaultBaseURL = "https://api.ashbyhq.com"

// Prometheus metrics for client operations.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ashby_requests_total",
		Help: "Total Ashby requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ashby_request_duration_seconds",
		Help:    "Ashby request duration in seconds by endpoint",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ashby_errors_total",
		Help: "Total Ashby errors by class",
	}, []string{"class"})

	retriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ashby_retries_total",
		Help: "Total number of retry attempts by error class",
	}, []string{"error_class"})

	retryBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ashby_retry_backoff_seconds",
		Help:    "Wait duration before a retry by error class",
		Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"error_class"})

	retryExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ashby_retry_exhausted_total",
		Help: "Total number of times retry attempts were exhausted by error class",
	}, []string{"error_class"})

	rateLimitWaitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ashby_rate_limit_waits_total",
		Help: "Total number of waits triggered by 429 responses",
	})
)

// Client is the Ashby RPC client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	config     Config
	logger     zerolog.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// Config holds the client configuration.
type Config struct {
	// BaseURL of the API, without trailing slash.
	BaseURL string

	// APIKey is sent as the basic auth username with an empty password.
	APIKey string

	// UserAgent header sent on every request.
	UserAgent string

	// Retry
	MaxRetries        int           // attempts for transient failures
	Timeout           time.Duration // deadline per attempt
	RetryDelay        time.Duration // wait after a transient failure
	RateLimitDelay    time.Duration // wait after 429 without Retry-After
	MaxRateLimitWaits int           // 429 waits allowed per call

	// Cooldown shares 429 waits between concurrent callers. Optional.
	Cooldown *ratelimit.Tracker
}

// DefaultConfig returns a safe default configuration.
func DefaultConfig(apiKey string) Config {
	retry := DefaultRetryConfig()
	return Config{
		BaseURL:           DefaultBaseURL,
		APIKey:            apiKey,
		UserAgent:         "ashby-resumes/1.0",
		MaxRetries:        retry.MaxAttempts,
		Timeout:           30 * time.Second,
		RetryDelay:        retry.Delay,
		RateLimitDelay:    retry.RateLimitDelay,
		MaxRateLimitWaits: retry.MaxRateLimitWaits,
	}
}

// New creates a new Ashby client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}

	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base url is required")
	}
	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q", cfg.BaseURL)
	}

	if cfg.MaxRetries < 1 {
		return nil, fmt.Errorf("max_retries must be >= 1 (got %d)", cfg.MaxRetries)
	}

	if cfg.Timeout <= 0 {
		return nil, fmt.Errorf("timeout must be positive (got %s)", cfg.Timeout)
	}

	if cfg.MaxRateLimitWaits < 0 {
		return nil, fmt.Errorf("max_rate_limit_waits must be >= 0 (got %d)", cfg.MaxRateLimitWaits)
	}

	logger := log.With().Str("component", "ashby-client").Logger()

	return &Client{
		// Deadlines are applied per attempt through the request context.
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		config:     cfg,
		logger:     logger,
		sleep:      sleepContext,
	}, nil
}

// Call performs an authenticated RPC to endpoint (for example "job.list")
// with payload as the JSON body. It returns the validated envelope of a
// successful call. Failures are *APIError values, wrapped with
// ErrRetryExhausted when the retry policy ran out.
func (c *Client) Call(ctx context.Context, endpoint string, payload any) (*Envelope, error) {
	body, err := encodePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload for %s: %w", endpoint, err)
	}

	return c.retry(ctx, endpoint, func(ctx context.Context) (*Envelope, error) {
		return c.attempt(ctx, endpoint, body)
	})
}

// attempt performs exactly one HTTP exchange and classifies its outcome.
func (c *Client) attempt(ctx context.Context, endpoint string, body []byte) (*Envelope, error) {
	if err := c.awaitCooldown(ctx, endpoint); err != nil {
		return nil, err
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.baseURL+"/"+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.config.APIKey, "")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Msg("Executing Ashby request")

	startTime := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
		return nil, c.fail(&APIError{
			Endpoint:   endpoint,
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			Err:        err,
		}, "network_error")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	if err != nil {
		return nil, c.fail(&APIError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read response body",
			Err:        err,
		}, "network_error")
	}

	status := strconv.Itoa(resp.StatusCode)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, c.fail(&APIError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassRateLimit,
			Message:    "rate limited",
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
		}, status)

	case resp.StatusCode >= 500:
		return nil, c.fail(&APIError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassServer,
			Message:    resp.Status,
		}, status)

	case resp.StatusCode >= 400:
		message := resp.Status
		if env, err := decodeEnvelope(data); env != nil && (err == nil || err == errMissingSuccess) && len(env.Errors) > 0 {
			message = env.ErrorMessage()
		}
		return nil, c.fail(&APIError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassClient,
			Message:    message,
		}, status)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil, c.fail(&APIError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassEmptyBody,
			Message:    "Empty response from API",
		}, "empty_body")
	}

	env, err := decodeEnvelope(data)
	switch {
	case err == errMissingSuccess:
		return nil, c.fail(&APIError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassUpstream,
			Message:    "malformed envelope: missing success flag",
		}, "malformed")
	case err != nil:
		return nil, c.fail(&APIError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassDecode,
			Message:    "Invalid JSON response from API",
			Err:        err,
		}, "decode_error")
	case !env.Success:
		return nil, c.fail(&APIError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassUpstream,
			Message:    env.ErrorMessage(),
		}, "unsuccessful")
	}

	requestsTotal.WithLabelValues(endpoint, status).Inc()
	return env, nil
}

// fail records metrics for a classified failure and returns it.
func (c *Client) fail(apiErr *APIError, status string) *APIError {
	requestsTotal.WithLabelValues(apiErr.Endpoint, status).Inc()
	errorsTotal.WithLabelValues(string(apiErr.ErrorClass)).Inc()

	c.logger.Debug().
		Str("endpoint", apiErr.Endpoint).
		Int("status", apiErr.StatusCode).
		Str("error_class", string(apiErr.ErrorClass)).
		Msg("Error classified")

	return apiErr
}

// Fetch downloads rawURL with a plain GET. It is meant for the short-lived
// pre-signed URLs returned by file.info, so no credentials are attached and
// no retries are made.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	const endpoint = "file.download"

	fetchCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create download request: %w", err)
	}
	if c.config.UserAgent != "" {
		req.Header.Set("User-Agent", c.config.UserAgent)
	}

	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(endpoint).Observe(time.Since(startTime).Seconds())
	}()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.fail(&APIError{
			Endpoint:   endpoint,
			ErrorClass: ErrorClassNetwork,
			Message:    "download failed",
			Err:        err,
		}, "network_error")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.fail(&APIError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			ErrorClass: classifyStatus(resp.StatusCode),
			Message:    "Failed to download file",
		}, strconv.Itoa(resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.fail(&APIError{
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read download body",
			Err:        err,
		}, "network_error")
	}

	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).Inc()
	return data, nil
}

// classifyStatus maps an HTTP status to an error class. 2xx and 3xx map to "".
func classifyStatus(statusCode int) ErrorClass {
	switch {
	case statusCode == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case statusCode >= 400 && statusCode < 500:
		return ErrorClassClient
	case statusCode >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// parseRetryAfter reads a Retry-After value given in seconds or as an HTTP
// date. Unusable values return 0 so the caller applies its default.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}

	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// encodePayload marshals payload, sending {} for nil.
func encodePayload(payload any) ([]byte, error) {
	if payload == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(payload)
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// SetSleeper replaces the wait function used between retries (for testing).
func (c *Client) SetSleeper(sleep func(ctx context.Context, d time.Duration) error) {
	c.sleep = sleep
}
