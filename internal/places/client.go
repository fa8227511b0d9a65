// Package places is a client for the Google Places Text Search API.
package places

import (
	"context"
	"fmt"
	"net/url"
	"time"

	apperrors "github.com/peiyulin/carelink-linebot-go/internal/errors"
	"github.com/peiyulin/carelink-linebot-go/internal/httpclient"
	"github.com/peiyulin/carelink-linebot-go/internal/metrics"
)

const defaultBaseURL = "https://maps.googleapis.com/maps/api/place"

// Place is one search result
type Place struct {
	Name    string
	Address string
	Rating  float64
	OpenNow bool
	MapURL  string
}

// Client calls the Google Places API
type Client struct {
	http    *httpclient.Client
	apiKey  string
	baseURL string
	metrics *metrics.Metrics
}

// New creates a places client. Returns nil when apiKey is empty.
func New(apiKey string, timeout time.Duration, maxRetries int, m *metrics.Metrics) *Client {
	if apiKey == "" {
		return nil
	}
	return &Client{
		http:    httpclient.New("places", timeout, maxRetries),
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		metrics: m,
	}
}

// Enabled reports whether the client is configured.
func (c *Client) Enabled() bool {
	return c != nil
}

type textSearchResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Name             string  `json:"name"`
		FormattedAddress string  `json:"formatted_address"`
		Rating           float64 `json:"rating"`
		PlaceID          string  `json:"place_id"`
		OpeningHours     *struct {
			OpenNow bool `json:"open_now"`
		} `json:"opening_hours"`
	} `json:"results"`
}

// Search runs a text search and returns up to limit results.
// ZERO_RESULTS maps to ErrNotFound so callers can show a friendly notice.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]Place, error) {
	endpoint := fmt.Sprintf("%s/textsearch/json?query=%s&language=zh-TW&region=tw&key=%s",
		c.baseURL, url.QueryEscape(query), c.apiKey)

	start := time.Now()
	var resp textSearchResponse
	err := c.http.GetJSON(ctx, endpoint, &resp)
	c.metrics.RecordExternal("places", statusLabel(err), time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	switch resp.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, fmt.Errorf("no places for %q: %w", query, apperrors.ErrNotFound)
	default:
		return nil, apperrors.NewExternalError("places", 0, fmt.Errorf("status %s", resp.Status))
	}

	if limit > len(resp.Results) {
		limit = len(resp.Results)
	}
	places := make([]Place, 0, limit)
	for _, r := range resp.Results[:limit] {
		p := Place{
			Name:    r.Name,
			Address: r.FormattedAddress,
			Rating:  r.Rating,
			MapURL:  "https://www.google.com/maps/place/?q=place_id:" + r.PlaceID,
		}
		if r.OpeningHours != nil {
			p.OpenNow = r.OpeningHours.OpenNow
		}
		places = append(places, p)
	}
	return places, nil
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
