// Package openweather is a client for the OpenWeatherMap REST API.
package openweather

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/peiyulin/carelink-linebot-go/internal/httpclient"
	"github.com/peiyulin/carelink-linebot-go/internal/metrics"
)

const defaultBaseURL = "https://api.openweathermap.org/data/2.5"

// Weather is the current conditions for a city
type Weather struct {
	City        string
	Description string
	Temp        float64
	FeelsLike   float64
	TempMin     float64
	TempMax     float64
	Humidity    int
	WindSpeed   float64
}

// ForecastEntry is one 3-hour forecast slot
type ForecastEntry struct {
	At          time.Time
	Description string
	Temp        float64
	Rain        bool
}

// Client calls the OpenWeatherMap API
type Client struct {
	http    *httpclient.Client
	apiKey  string
	baseURL string
	metrics *metrics.Metrics
}

// New creates a weather client. Returns nil when apiKey is empty.
func New(apiKey string, timeout time.Duration, maxRetries int, m *metrics.Metrics) *Client {
	if apiKey == "" {
		return nil
	}
	return &Client{
		http:    httpclient.New("openweather", timeout, maxRetries),
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		metrics: m,
	}
}

// Enabled reports whether the client is configured.
func (c *Client) Enabled() bool {
	return c != nil
}

type currentResponse struct {
	Name    string `json:"name"`
	Weather []struct {
		Description string `json:"description"`
	} `json:"weather"`
	Main struct {
		Temp      float64 `json:"temp"`
		FeelsLike float64 `json:"feels_like"`
		TempMin   float64 `json:"temp_min"`
		TempMax   float64 `json:"temp_max"`
		Humidity  int     `json:"humidity"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

type forecastResponse struct {
	List []struct {
		Dt      int64 `json:"dt"`
		Weather []struct {
			Main        string `json:"main"`
			Description string `json:"description"`
		} `json:"weather"`
		Main struct {
			Temp float64 `json:"temp"`
		} `json:"main"`
	} `json:"list"`
}

// Current fetches the current conditions for a city.
func (c *Client) Current(ctx context.Context, city string) (*Weather, error) {
	endpoint := fmt.Sprintf("%s/weather?q=%s&appid=%s&units=metric&lang=zh_tw",
		c.baseURL, url.QueryEscape(city), c.apiKey)

	start := time.Now()
	var resp currentResponse
	err := c.http.GetJSON(ctx, endpoint, &resp)
	c.metrics.RecordExternal("openweather", statusLabel(err), time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	w := &Weather{
		City:      resp.Name,
		Temp:      resp.Main.Temp,
		FeelsLike: resp.Main.FeelsLike,
		TempMin:   resp.Main.TempMin,
		TempMax:   resp.Main.TempMax,
		Humidity:  resp.Main.Humidity,
		WindSpeed: resp.Wind.Speed,
	}
	if len(resp.Weather) > 0 {
		w.Description = resp.Weather[0].Description
	}
	return w, nil
}

// Forecast fetches up to limit 3-hour forecast slots for a city.
func (c *Client) Forecast(ctx context.Context, city string, limit int) ([]ForecastEntry, error) {
	endpoint := fmt.Sprintf("%s/forecast?q=%s&appid=%s&units=metric&lang=zh_tw&cnt=%d",
		c.baseURL, url.QueryEscape(city), c.apiKey, limit)

	start := time.Now()
	var resp forecastResponse
	err := c.http.GetJSON(ctx, endpoint, &resp)
	c.metrics.RecordExternal("openweather", statusLabel(err), time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	entries := make([]ForecastEntry, 0, len(resp.List))
	for _, item := range resp.List {
		e := ForecastEntry{
			At:   time.Unix(item.Dt, 0),
			Temp: item.Main.Temp,
		}
		if len(item.Weather) > 0 {
			e.Description = item.Weather[0].Description
			e.Rain = item.Weather[0].Main == "Rain" || item.Weather[0].Main == "Thunderstorm"
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
