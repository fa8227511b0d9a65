package bot

import (
	"fmt"
	"net/url"
)

// Postback is a parsed postback payload. Payloads are URL-query encoded
// with a mandatory action key, e.g. "action=join_group&id=abc123".
type Postback struct {
	Action string
	Params url.Values
}

// Get returns a parameter value, or "" when absent.
func (p Postback) Get(key string) string {
	return p.Params.Get(key)
}

// ParsePostback decodes a postback payload. Malformed payloads and
// payloads without an action key are errors; the dispatcher converts
// them to a fallback response, never a crash.
func ParsePostback(data string) (Postback, error) {
	values, err := url.ParseQuery(data)
	if err != nil {
		return Postback{}, fmt.Errorf("parse postback data: %w", err)
	}
	action := values.Get("action")
	if action == "" {
		return Postback{}, fmt.Errorf("postback data missing action key")
	}
	return Postback{Action: action, Params: values}, nil
}

// BuildPostback encodes an action and parameters into a payload string.
// Parameters come in key, value pairs.
func BuildPostback(action string, pairs ...string) string {
	values := url.Values{}
	values.Set("action", action)
	for i := 0; i+1 < len(pairs); i += 2 {
		values.Set(pairs[i], pairs[i+1])
	}
	return values.Encode()
}
