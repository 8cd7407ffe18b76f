// Package darksky fetches daily weather forecasts for monitored
// locations from a Dark Sky-compatible API.
package darksky

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/hazardwatch/hazard-tracker/internal/domain"
	"github.com/hazardwatch/hazard-tracker/internal/observability"
)

// Client issues bounded-retry GET requests for per-location forecasts.
// It shares the unified retry policy of the event fetcher: HTTP error
// statuses and transport errors both consume an attempt.
type Client struct {
	baseURL     string
	apiKey      string
	maxAttempts int
	timeout     time.Duration
	httpClient  *http.Client
	metrics     *observability.Metrics
	logger      *slog.Logger
}

// NewClient creates a forecast client. The API key is embedded in the
// request path per the upstream URL scheme.
func NewClient(baseURL, apiKey string, maxAttempts int, timeout time.Duration, metrics *observability.Metrics, logger *slog.Logger) *Client {
	return &Client{
		baseURL:     baseURL,
		apiKey:      apiKey,
		maxAttempts: maxAttempts,
		timeout:     timeout,
		httpClient:  &http.Client{},
		metrics:     metrics,
		logger:      logger,
	}
}

// FetchForecast downloads and decodes the daily forecast for one
// coordinate pair. On exhausting all attempts it returns an error
// wrapping domain.ErrNoPayload.
func (c *Client) FetchForecast(ctx context.Context, lat, lon float64) (domain.ForecastPayload, error) {
	fullURL := fmt.Sprintf("%s/%s/%g,%g", c.baseURL, c.apiKey, lat, lon)

	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		body, err := c.doRequest(ctx, fullURL)
		if err != nil {
			lastErr = err
			c.metrics.FetchAttempts.WithLabelValues("forecast", "retry").Inc()
			c.logger.Warn("forecast fetch attempt failed",
				"attempt", attempt,
				"max_attempts", c.maxAttempts,
				"lat", lat,
				"lon", lon,
				"error", err,
			)
			if ctx.Err() != nil {
				break
			}
			continue
		}

		payload, err := domain.ParseForecastPayload(body)
		if err != nil {
			return domain.ForecastPayload{}, err
		}

		c.metrics.FetchAttempts.WithLabelValues("forecast", "success").Inc()
		return payload, nil
	}

	c.metrics.FetchAttempts.WithLabelValues("forecast", "exhausted").Inc()
	c.logger.Error("forecast fetch failed after all attempts",
		"attempts", c.maxAttempts,
		"lat", lat,
		"lon", lon,
		"error", lastErr,
	)
	return domain.ForecastPayload{}, fmt.Errorf("%w: %w", domain.ErrNoPayload, lastErr)
}

func (c *Client) doRequest(ctx context.Context, fullURL string) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("forecast request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("forecast API error: status %d: %s", resp.StatusCode, body)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}
