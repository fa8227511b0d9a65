package genai

import (
	"context"
	"time"

	apperrors "github.com/peiyulin/carelink-linebot-go/internal/errors"
	"github.com/peiyulin/carelink-linebot-go/internal/logger"
	"github.com/peiyulin/carelink-linebot-go/internal/metrics"
)

// Generator produces itineraries from a destination and day count
type Generator interface {
	Generate(ctx context.Context, req Request) ([]Itinerary, error)
	Enabled() bool
	Provider() Provider
}

// Config holds provider credentials and model overrides
type Config struct {
	GeminiAPIKey string
	GeminiModel  string
	OpenAIAPIKey string
	OpenAIModel  string
}

// FallbackGenerator tries the primary provider and falls back to the
// secondary on failure. Graceful degradation beyond that is the caller's
// job: an error here becomes an apologetic push message, never a crash.
type FallbackGenerator struct {
	primary  Generator
	fallback Generator
	log      *logger.Logger
	metrics  *metrics.Metrics
}

// New builds the generator chain from config: Gemini primary, OpenAI
// fallback. Returns (nil, nil) when no provider is configured; callers
// check Enabled.
func New(ctx context.Context, cfg Config, log *logger.Logger, m *metrics.Metrics) (*FallbackGenerator, error) {
	gemini, err := newGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, log)
	if err != nil {
		return nil, err
	}
	oai := newOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIModel, log)

	var primary, fallback Generator
	switch {
	case gemini != nil && oai != nil:
		primary, fallback = gemini, oai
	case gemini != nil:
		primary = gemini
	case oai != nil:
		primary = oai
	default:
		return nil, nil //nolint:nilnil // generation disabled without any provider
	}

	return &FallbackGenerator{
		primary:  primary,
		fallback: fallback,
		log:      log.WithModule("genai"),
		metrics:  m,
	}, nil
}

// Generate tries the primary provider, then the fallback.
func (f *FallbackGenerator) Generate(ctx context.Context, req Request) ([]Itinerary, error) {
	if f == nil || f.primary == nil {
		return nil, apperrors.ErrProviderUnavailable
	}

	start := time.Now()
	itineraries, err := f.primary.Generate(ctx, req)
	f.metrics.RecordExternal("genai_"+string(f.primary.Provider()), statusLabel(err), time.Since(start).Seconds())
	if err == nil {
		return itineraries, nil
	}

	if f.fallback == nil {
		return nil, err
	}

	f.log.WithError(err).Warnf("primary provider %s failed, trying %s",
		f.primary.Provider(), f.fallback.Provider())

	start = time.Now()
	itineraries, fbErr := f.fallback.Generate(ctx, req)
	f.metrics.RecordExternal("genai_"+string(f.fallback.Provider()), statusLabel(fbErr), time.Since(start).Seconds())
	if fbErr != nil {
		// Report the primary failure; the fallback one is secondary noise.
		f.log.WithError(fbErr).Errorf("fallback provider %s also failed", f.fallback.Provider())
		return nil, err
	}
	return itineraries, nil
}

// Enabled reports whether at least one provider is configured.
func (f *FallbackGenerator) Enabled() bool {
	return f != nil && f.primary != nil
}

// Provider returns the primary provider type.
func (f *FallbackGenerator) Provider() Provider {
	if f == nil || f.primary == nil {
		return ""
	}
	return f.primary.Provider()
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
