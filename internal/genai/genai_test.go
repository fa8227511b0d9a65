package genai

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	apperrors "github.com/peiyulin/carelink-linebot-go/internal/errors"
	"github.com/peiyulin/carelink-linebot-go/internal/logger"
	"github.com/peiyulin/carelink-linebot-go/internal/metrics"
)

func TestDecodeItineraries(t *testing.T) {
	valid := `[{"name":"台南漫遊","country":"台灣","days":3,"cost_range":"NT$6000-9000",
		"highlights":["安平古堡"],"schedule":[{"day":1,"theme":"古蹟","activities":["赤崁樓"]}],
		"tips":["記得帶藥"]}]`

	tests := []struct {
		name    string
		raw     string
		wantLen int
		wantErr bool
	}{
		{"plain array", valid, 1, false},
		{"markdown fenced", "```json\n" + valid + "\n```", 1, false},
		{"single object promoted", `{"name":"台南漫遊","country":"台灣","days":3}`, 1, false},
		{"empty array", `[]`, 0, true},
		{"missing name", `[{"country":"台灣","days":3}]`, 0, true},
		{"zero days", `[{"name":"x行程","country":"台灣","days":0}]`, 0, true},
		{"not json", `抱歉我無法规劃`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeItineraries(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("decodeItineraries() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && len(got) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(got), tt.wantLen)
			}
		})
	}
}

func TestBuildItineraryPrompt(t *testing.T) {
	prompt := buildItineraryPrompt(Request{Destination: "台南", Days: 3})
	if !strings.Contains(prompt, "台南") || !strings.Contains(prompt, "3 天") {
		t.Errorf("prompt missing destination or days: %q", prompt)
	}
}

type stubGenerator struct {
	provider Provider
	result   []Itinerary
	err      error
	calls    int
}

func (s *stubGenerator) Generate(ctx context.Context, req Request) ([]Itinerary, error) {
	s.calls++
	return s.result, s.err
}
func (s *stubGenerator) Enabled() bool      { return true }
func (s *stubGenerator) Provider() Provider { return s.provider }

func newFallbackForTest(primary, fallback Generator) *FallbackGenerator {
	return &FallbackGenerator{
		primary:  primary,
		fallback: fallback,
		log:      logger.NewWithWriter("error", io.Discard).WithModule("genai"),
		metrics:  metrics.New(prometheus.NewRegistry()),
	}
}

func TestFallbackGenerator(t *testing.T) {
	req := Request{Destination: "台南", Days: 3}
	plan := []Itinerary{{Name: "台南漫遊", Country: "台灣", Days: 3}}

	t.Run("primary success skips fallback", func(t *testing.T) {
		primary := &stubGenerator{provider: ProviderGemini, result: plan}
		fallback := &stubGenerator{provider: ProviderOpenAI, result: plan}
		f := newFallbackForTest(primary, fallback)

		got, err := f.Generate(context.Background(), req)
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if len(got) != 1 || fallback.calls != 0 {
			t.Errorf("got %d itineraries, fallback calls = %d", len(got), fallback.calls)
		}
	})

	t.Run("primary failure uses fallback", func(t *testing.T) {
		primary := &stubGenerator{provider: ProviderGemini, err: errors.New("quota exceeded")}
		fallback := &stubGenerator{provider: ProviderOpenAI, result: plan}
		f := newFallbackForTest(primary, fallback)

		got, err := f.Generate(context.Background(), req)
		if err != nil {
			t.Fatalf("Generate() error = %v", err)
		}
		if len(got) != 1 || fallback.calls != 1 {
			t.Errorf("got %d itineraries, fallback calls = %d", len(got), fallback.calls)
		}
	})

	t.Run("both fail returns primary error", func(t *testing.T) {
		primaryErr := errors.New("primary down")
		primary := &stubGenerator{provider: ProviderGemini, err: primaryErr}
		fallback := &stubGenerator{provider: ProviderOpenAI, err: errors.New("fallback down")}
		f := newFallbackForTest(primary, fallback)

		_, err := f.Generate(context.Background(), req)
		if !errors.Is(err, primaryErr) {
			t.Errorf("Generate() error = %v, want primary error", err)
		}
	})

	t.Run("nil generator is unavailable", func(t *testing.T) {
		var f *FallbackGenerator
		_, err := f.Generate(context.Background(), req)
		if !errors.Is(err, apperrors.ErrProviderUnavailable) {
			t.Errorf("Generate() error = %v, want ErrProviderUnavailable", err)
		}
		if f.Enabled() {
			t.Error("Enabled() = true for nil generator")
		}
	})
}
