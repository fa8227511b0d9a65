// Package genai generates travel itineraries with LLM APIs: Gemini as the
// primary provider and an OpenAI-compatible provider as fallback.
package genai

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Provider identifies an LLM provider
type Provider string

// Providers
const (
	ProviderGemini Provider = "gemini"
	ProviderOpenAI Provider = "openai"
)

// Default models per provider
var (
	DefaultGeminiModel = "gemini-2.0-flash"
	DefaultOpenAIModel = "gpt-4o-mini"
)

// DayPlan is one day of an itinerary
type DayPlan struct {
	Day        int      `json:"day"`
	Theme      string   `json:"theme"`
	Activities []string `json:"activities"`
}

// Itinerary is a structured travel plan for one destination
type Itinerary struct {
	Name       string    `json:"name"`
	Country    string    `json:"country"`
	Days       int       `json:"days"`
	CostRange  string    `json:"cost_range"`
	Highlights []string  `json:"highlights"`
	Schedule   []DayPlan `json:"schedule"`
	Tips       []string  `json:"tips"`
}

// Request describes what to generate
type Request struct {
	Destination string
	Days        int
}

// decodeItineraries parses the model's JSON output. Models occasionally
// wrap JSON in a markdown fence; strip it before decoding.
func decodeItineraries(raw string) ([]Itinerary, error) {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var itineraries []Itinerary
	if err := json.Unmarshal([]byte(raw), &itineraries); err != nil {
		// Some models return a single object instead of an array.
		var single Itinerary
		if err2 := json.Unmarshal([]byte(raw), &single); err2 != nil {
			return nil, fmt.Errorf("decode itineraries: %w", err)
		}
		itineraries = []Itinerary{single}
	}

	if len(itineraries) == 0 {
		return nil, fmt.Errorf("model returned no itineraries")
	}
	for i, it := range itineraries {
		if it.Name == "" || it.Days <= 0 {
			return nil, fmt.Errorf("itinerary %d missing name or days", i)
		}
	}
	return itineraries, nil
}
