package genai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/peiyulin/carelink-linebot-go/internal/logger"
)

// geminiGenerator generates itineraries with the Gemini API using a JSON
// response schema, so output parsing never depends on prompt compliance
// alone.
type geminiGenerator struct {
	client *genai.Client
	model  string
	schema *genai.Schema
	log    *logger.Logger
}

// newGeminiGenerator creates a Gemini-backed generator.
// Returns nil when apiKey is empty (provider disabled).
func newGeminiGenerator(ctx context.Context, apiKey, model string, log *logger.Logger) (*geminiGenerator, error) {
	if apiKey == "" {
		return nil, nil //nolint:nilnil // provider disabled without an API key
	}
	if model == "" {
		model = DefaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return &geminiGenerator{
		client: client,
		model:  model,
		schema: itinerarySchema(),
		log:    log.WithModule("genai.gemini"),
	}, nil
}

func itinerarySchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeArray,
		Items: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"name":       {Type: genai.TypeString, Description: "行程名稱"},
				"country":    {Type: genai.TypeString, Description: "國家或地區"},
				"days":       {Type: genai.TypeInteger, Description: "天數"},
				"cost_range": {Type: genai.TypeString, Description: "概略費用範圍(新台幣)"},
				"highlights": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
				"schedule": {
					Type: genai.TypeArray,
					Items: &genai.Schema{
						Type: genai.TypeObject,
						Properties: map[string]*genai.Schema{
							"day":        {Type: genai.TypeInteger},
							"theme":      {Type: genai.TypeString},
							"activities": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
						},
						Required: []string{"day", "activities"},
					},
				},
				"tips": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			},
			Required: []string{"name", "country", "days", "schedule"},
		},
	}
}

// Generate produces itineraries for the request.
func (g *geminiGenerator) Generate(ctx context.Context, req Request) ([]Itinerary, error) {
	if g == nil {
		return nil, errors.New("gemini generator is nil")
	}

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(itinerarySystemPrompt, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    g.schema,
		Temperature:       genai.Ptr[float32](0.7),
		MaxOutputTokens:   4096,
	}

	start := time.Now()
	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(buildItineraryPrompt(req)), config)
	if err != nil {
		g.log.WithError(err).WithField("duration_ms", time.Since(start).Milliseconds()).
			Warnf("itinerary generation failed for %s", req.Destination)
		return nil, fmt.Errorf("generate content: %w", err)
	}

	text := result.Text()
	if text == "" {
		return nil, errors.New("empty response from model")
	}

	itineraries, err := decodeItineraries(text)
	if err != nil {
		return nil, err
	}

	g.log.WithField("duration_ms", time.Since(start).Milliseconds()).
		Infof("generated %d itineraries for %s (%d 天)", len(itineraries), req.Destination, req.Days)
	return itineraries, nil
}

// Enabled reports whether the provider is configured.
func (g *geminiGenerator) Enabled() bool {
	return g != nil && g.client != nil
}

// Provider returns the provider type.
func (g *geminiGenerator) Provider() Provider {
	return ProviderGemini
}
