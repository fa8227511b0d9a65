package weather

import (
	"context"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	apperrors "github.com/peiyulin/carelink-linebot-go/internal/errors"
	"github.com/peiyulin/carelink-linebot-go/internal/keyword"
	"github.com/peiyulin/carelink-linebot-go/internal/logger"
	"github.com/peiyulin/carelink-linebot-go/internal/openweather"
	"github.com/peiyulin/carelink-linebot-go/internal/storage"
)

type stubClient struct {
	weather  openweather.Weather
	forecast []openweather.ForecastEntry
	err      error

	calls   atomic.Int64
	release chan struct{} // when set, Current blocks until closed
}

func (s *stubClient) Current(_ context.Context, city string) (*openweather.Weather, error) {
	s.calls.Add(1)
	if s.release != nil {
		<-s.release
	}
	if s.err != nil {
		return nil, s.err
	}
	w := s.weather
	if w.City == "" {
		w.City = city
	}
	return &w, nil
}

func (s *stubClient) Forecast(context.Context, string, int) ([]openweather.ForecastEntry, error) {
	return s.forecast, nil
}

func (s *stubClient) Enabled() bool { return true }

func newFixture(t *testing.T, client weatherClient, ttl time.Duration) *Handler {
	t.Helper()
	db, err := storage.NewTestDB()
	if err != nil {
		t.Fatalf("NewTestDB() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(client, db, logger.NewWithWriter("error", io.Discard), ttl)
}

func query(h *Handler, city string) []messaging_api.MessageInterface {
	return h.HandleCommand(context.Background(), "U1", keyword.Result{
		Kind: keyword.KindWeather, Query: city,
	})
}

func TestWeatherReport(t *testing.T) {
	client := &stubClient{
		weather: openweather.Weather{
			City: "Taipei", Description: "多雲", Temp: 24.6, FeelsLike: 25.1,
			TempMin: 21, TempMax: 27, Humidity: 70, WindSpeed: 3.2,
		},
	}
	h := newFixture(t, client, 10*time.Minute)

	msgs := query(h, "台北")
	if len(msgs) != 2 {
		t.Fatalf("messages = %d, want report and advisory", len(msgs))
	}
	flexMsg, ok := msgs[0].(*messaging_api.FlexMessage)
	if !ok {
		t.Fatalf("message type = %T, want FlexMessage", msgs[0])
	}
	if !strings.Contains(flexMsg.AltText, "台北") {
		t.Errorf("AltText = %q, want user's city name", flexMsg.AltText)
	}
	advisory := msgs[1].(*messaging_api.TextMessage).Text
	if !strings.Contains(advisory, "出門走走") {
		t.Errorf("advisory = %q, want mild weather advice", advisory)
	}
}

func TestWeatherCacheHit(t *testing.T) {
	client := &stubClient{weather: openweather.Weather{Temp: 25, Humidity: 60}}
	h := newFixture(t, client, 10*time.Minute)

	query(h, "台北")
	query(h, "台北")
	if got := client.calls.Load(); got != 1 {
		t.Errorf("upstream calls = %d, want 1 (second served from cache)", got)
	}

	// Aliases share the cache entry.
	query(h, "臺北")
	if got := client.calls.Load(); got != 1 {
		t.Errorf("upstream calls = %d, want alias to hit the same entry", got)
	}
}

func TestWeatherExpiredCacheRefetches(t *testing.T) {
	client := &stubClient{weather: openweather.Weather{Temp: 25}}
	h := newFixture(t, client, 0)

	query(h, "台北")
	query(h, "台北")
	if got := client.calls.Load(); got != 2 {
		t.Errorf("upstream calls = %d, want 2 with zero TTL", got)
	}
}

func TestWeatherSingleflight(t *testing.T) {
	client := &stubClient{
		weather: openweather.Weather{Temp: 25},
		release: make(chan struct{}),
	}
	h := newFixture(t, client, 10*time.Minute)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			query(h, "高雄")
		}()
	}

	// Let the goroutines pile up on the in-flight fetch, then release it.
	time.Sleep(50 * time.Millisecond)
	close(client.release)
	wg.Wait()

	if got := client.calls.Load(); got != 1 {
		t.Errorf("upstream calls = %d, want concurrent requests collapsed to 1", got)
	}
}

func TestWeatherAdvisory(t *testing.T) {
	tests := []struct {
		name string
		rep  report
		want string
	}{
		{"rain wins", report{Current: openweather.Weather{Temp: 31}, RainSoon: true}, "帶傘"},
		{"hot", report{Current: openweather.Weather{Temp: 33}}, "防曬"},
		{"cold", report{Current: openweather.Weather{Temp: 12}}, "多穿"},
		{"humid", report{Current: openweather.Weather{Temp: 22, Humidity: 90}}, "濕氣"},
		{"mild", report{Current: openweather.Weather{Temp: 24, Humidity: 60}}, "出門走走"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := advisory(&tt.rep); !strings.Contains(got, tt.want) {
				t.Errorf("advisory() = %q, want substring %q", got, tt.want)
			}
		})
	}
}

func TestWeatherUnknownCity(t *testing.T) {
	h := newFixture(t, &stubClient{err: apperrors.ErrNotFound}, time.Minute)

	msgs := query(h, "不存在市")
	reply := msgs[0].(*messaging_api.TextMessage).Text
	if !strings.Contains(reply, "找不到") {
		t.Errorf("reply = %q, want not found notice", reply)
	}
}

func TestWeatherMissingCity(t *testing.T) {
	h := newFixture(t, &stubClient{}, time.Minute)

	msgs := h.HandleCommand(context.Background(), "U1", keyword.Result{Kind: keyword.KindWeather})
	reply := msgs[0].(*messaging_api.TextMessage).Text
	if !strings.Contains(reply, "天氣 台北") {
		t.Errorf("reply = %q, want usage hint", reply)
	}
}

func TestWeatherNotConfigured(t *testing.T) {
	h := newFixture(t, nil, time.Minute)

	msgs := query(h, "台北")
	reply := msgs[0].(*messaging_api.TextMessage).Text
	if !strings.Contains(reply, "沒有開放") {
		t.Errorf("reply = %q, want service notice", reply)
	}
}
