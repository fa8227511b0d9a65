package genai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/peiyulin/carelink-linebot-go/internal/logger"
)

// openaiGenerator is the fallback itinerary generator on the OpenAI chat
// completions API.
type openaiGenerator struct {
	client openai.Client
	model  string
	log    *logger.Logger
}

// newOpenAIGenerator creates an OpenAI-backed generator.
// Returns nil when apiKey is empty (provider disabled).
func newOpenAIGenerator(apiKey, model string, log *logger.Logger) *openaiGenerator {
	if apiKey == "" {
		return nil
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &openaiGenerator{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
		log:    log.WithModule("genai.openai"),
	}
}

// Generate produces itineraries for the request.
func (g *openaiGenerator) Generate(ctx context.Context, req Request) ([]Itinerary, error) {
	if g == nil {
		return nil, errors.New("openai generator is nil")
	}

	start := time.Now()
	completion, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(itinerarySystemPrompt),
			openai.UserMessage(buildItineraryPrompt(req)),
		},
		Temperature: openai.Float(0.7),
	})
	if err != nil {
		g.log.WithError(err).WithField("duration_ms", time.Since(start).Milliseconds()).
			Warnf("itinerary generation failed for %s", req.Destination)
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	if len(completion.Choices) == 0 {
		return nil, errors.New("empty response from model")
	}

	itineraries, err := decodeItineraries(completion.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}

	g.log.WithField("duration_ms", time.Since(start).Milliseconds()).
		Infof("generated %d itineraries for %s (%d 天)", len(itineraries), req.Destination, req.Days)
	return itineraries, nil
}

// Enabled reports whether the provider is configured.
func (g *openaiGenerator) Enabled() bool {
	return g != nil
}

// Provider returns the provider type.
func (g *openaiGenerator) Provider() Provider {
	return ProviderOpenAI
}
