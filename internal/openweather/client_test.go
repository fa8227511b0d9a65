package openweather

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	apperrors "github.com/peiyulin/carelink-linebot-go/internal/errors"
	"github.com/peiyulin/carelink-linebot-go/internal/metrics"
)

func newTestClient(baseURL string) *Client {
	c := New("test-key", 5*time.Second, 0, metrics.New(prometheus.NewRegistry()))
	c.baseURL = baseURL
	return c
}

func TestCurrent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") != "Taipei" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprint(w, `{
			"name": "Taipei",
			"weather": [{"description": "多雲"}],
			"main": {"temp": 25.3, "feels_like": 26.1, "temp_min": 23, "temp_max": 28, "humidity": 70},
			"wind": {"speed": 3.2}
		}`)
	}))
	defer server.Close()

	c := newTestClient(server.URL)

	t.Run("known city", func(t *testing.T) {
		w, err := c.Current(context.Background(), "Taipei")
		if err != nil {
			t.Fatalf("Current() error = %v", err)
		}
		if w.City != "Taipei" || w.Description != "多雲" || w.Temp != 25.3 || w.Humidity != 70 {
			t.Errorf("weather = %+v", w)
		}
	})

	t.Run("unknown city maps to not found", func(t *testing.T) {
		_, err := c.Current(context.Background(), "Atlantis")
		if !errors.Is(err, apperrors.ErrNotFound) {
			t.Errorf("Current() error = %v, want ErrNotFound", err)
		}
	})
}

func TestForecast(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{
			"list": [
				{"dt": 1718000000, "weather": [{"main": "Rain", "description": "小雨"}], "main": {"temp": 22}},
				{"dt": 1718010800, "weather": [{"main": "Clouds", "description": "多雲"}], "main": {"temp": 24}}
			]
		}`)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	entries, err := c.Forecast(context.Background(), "Taipei", 2)
	if err != nil {
		t.Fatalf("Forecast() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2", len(entries))
	}
	if !entries[0].Rain || entries[0].Description != "小雨" {
		t.Errorf("entries[0] = %+v, want rainy 小雨", entries[0])
	}
	if entries[1].Rain {
		t.Errorf("entries[1].Rain = true, want false for clouds")
	}
}

func TestDisabledClient(t *testing.T) {
	c := New("", time.Second, 0, metrics.New(prometheus.NewRegistry()))
	if c.Enabled() {
		t.Error("Enabled() = true without API key")
	}
}
