// Package httpclient is a shared retrying JSON client for the external
// REST APIs (weather, places). Requests retry transient failures with
// exponential backoff; 4xx responses fail fast.
package httpclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "github.com/peiyulin/carelink-linebot-go/internal/errors"
)

// Client wraps http.Client with retry and JSON decoding
type Client struct {
	httpClient *http.Client
	maxRetries int
	service    string
}

// New creates a client. service names the API in error values and logs.
func New(service string, timeout time.Duration, maxRetries int) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		maxRetries: maxRetries,
		service:    service,
	}
}

// GetJSON fetches url and decodes the response body into out.
// 429 and 5xx responses retry with backoff; other non-2xx responses fail
// fast with an ExternalError. A 404 additionally wraps ErrNotFound so
// callers can show a not-found message instead of a generic failure.
func (c *Client) GetJSON(ctx context.Context, url string, out any) error {
	var body []byte

	err := RetryWithBackoff(ctx, c.maxRetries, time.Second, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%s request: %w", c.service, err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			switch {
			case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
				return apperrors.NewExternalError(c.service, resp.StatusCode, fmt.Errorf("transient failure"))
			case resp.StatusCode == http.StatusNotFound:
				return Permanent(apperrors.NewExternalError(c.service, resp.StatusCode, apperrors.ErrNotFound))
			default:
				return Permanent(apperrors.NewExternalError(c.service, resp.StatusCode, fmt.Errorf("request rejected")))
			}
		}

		body, err = io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("%s read body: %w", c.service, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s decode response: %w", c.service, err)
	}
	return nil
}
