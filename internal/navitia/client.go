package navitia

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
	"github.com/klauspost/compress/gzip"
	"golang.org/x/time/rate"

	"github.com/lilletrafic/subway-monitor/internal/logging"
)

var (
	ErrMalformedResponse = errors.New("navitia: malformed traffic reports response")
	ErrMissingDatetime   = errors.New("navitia: response has no context.current_datetime")
)

// StatusError is returned when Navitia answers with anything but 200.
type StatusError struct {
	StatusCode     int
	RequestHeaders http.Header
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("navitia: unexpected status %d", e.StatusCode)
}

// RedactedHeaders returns the request headers with the Authorization value masked.
func (e *StatusError) RedactedHeaders() map[string]string {
	out := make(map[string]string, len(e.RequestHeaders))
	for key := range e.RequestHeaders {
		value := e.RequestHeaders.Get(key)
		if strings.EqualFold(key, "Authorization") && value != "" {
			value = "[redacted]"
		}
		out[key] = value
	}
	return out
}

type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRateLimiter spaces outbound calls. It never retries a request.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(c *Client) { c.limiter = l }
}

// NewClient builds a client for baseURL joined with path, authenticated with token.
func NewClient(baseURL, path, token string, opts ...Option) *Client {
	c := &Client{
		endpoint:   strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/"),
		token:      token,
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Endpoint() string {
	return c.endpoint
}

// TrafficReports fetches the current disruptions of the coverage area.
func (c *Client) TrafficReports(ctx context.Context) (*TrafficReports, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("navitia: rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("navitia: failed to build request: %w", err)
	}
	req.Header.Set("Authorization", c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("navitia: request failed: %w", err)
	}
	defer logging.SafeCloseWithLogging(resp.Body,
		logging.FromContext(ctx).With(slog.String("component", "navitia_client")),
		"http_response_body")

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{StatusCode: resp.StatusCode, RequestHeaders: req.Header.Clone()}
	}

	var body io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
		}
		defer logging.SafeCloseWithLogging(gz, logging.FromContext(ctx), "gzip_reader")
		body = gz
	}

	var reports TrafficReports
	if err := json.NewDecoder(body).Decode(&reports); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if reports.Context.CurrentDatetime == "" {
		return nil, ErrMissingDatetime
	}

	return &reports, nil
}
