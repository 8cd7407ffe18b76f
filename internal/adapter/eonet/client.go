// Package eonet fetches natural-hazard events from the NASA EONET API.
package eonet

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hazardwatch/hazard-tracker/internal/domain"
	"github.com/hazardwatch/hazard-tracker/internal/observability"
)

// Client issues bounded-retry GET requests against the EONET events
// endpoint. Every attempt failure is retryable, whether it is an HTTP
// error status or a transport error (connection refused, DNS failure,
// per-attempt timeout); the retry policy deliberately does not
// distinguish between the two classes.
type Client struct {
	baseURL     string
	maxAttempts int
	timeout     time.Duration
	httpClient  *http.Client
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewClient creates an EONET client with the given per-attempt timeout
// and total attempt bound.
func NewClient(baseURL string, maxAttempts int, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		baseURL:     baseURL,
		maxAttempts: maxAttempts,
		timeout:     timeout,
		httpClient:  &http.Client{},
		metrics:     metrics,
		logger:      logger,
	}
}

// FetchEvents downloads and decodes one events payload. It performs at
// most maxAttempts requests; when all attempts fail it logs at error
// level and returns an error wrapping domain.ErrNoPayload, which the
// caller treats as "no data this cycle" rather than a fatal condition.
func (c *Client) FetchEvents(ctx context.Context, q domain.EventQuery) (domain.EventPayload, error) {
	params := url.Values{
		"limit":  {strconv.Itoa(q.Limit)},
		"days":   {strconv.Itoa(q.Days)},
		"status": {q.Status},
	}
	fullURL := c.baseURL + "?" + params.Encode()

	timeout := q.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		body, err := c.doRequest(ctx, fullURL, timeout)
		if err != nil {
			lastErr = err
			c.metrics.FetchAttempts.WithLabelValues("events", "retry").Inc()
			c.logger.Warn("event fetch attempt failed",
				"attempt", attempt,
				"max_attempts", c.maxAttempts,
				"error", err,
			)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		payload, err := domain.ParseEventPayload(body)
		if err != nil {
			// A malformed body is not a transient condition; don't burn
			// the remaining attempts on it.
			return domain.EventPayload{}, err
		}

		c.metrics.FetchAttempts.WithLabelValues("events", "success").Inc()
		return payload, nil
	}

	c.metrics.FetchAttempts.WithLabelValues("events", "exhausted").Inc()
	c.logger.Error("event fetch failed after all attempts",
		"attempts", c.maxAttempts,
		"error", lastErr,
	)
	return domain.EventPayload{}, fmt.Errorf("%w: %w", domain.ErrNoPayload, lastErr)
}

// doRequest performs a single GET attempt with its own timeout.
func (c *Client) doRequest(ctx context.Context, fullURL string, timeout time.Duration) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("event request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("event API error: status %d: %s", resp.StatusCode, body)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}
