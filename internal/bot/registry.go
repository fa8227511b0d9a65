package bot

import (
	"fmt"

	"github.com/peiyulin/carelink-linebot-go/internal/keyword"
)

// Registry maps routed command kinds and postback actions to modules.
type Registry struct {
	handlers []Handler
	byKind   map[keyword.Kind]Handler
	byAction map[string]Handler
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byKind:   make(map[keyword.Kind]Handler),
		byAction: make(map[string]Handler),
	}
}

// Register adds a module. Panics on duplicate kind or action claims;
// registration happens once at startup and overlaps are wiring bugs.
func (r *Registry) Register(h Handler) {
	for _, kind := range h.Kinds() {
		if existing, ok := r.byKind[kind]; ok {
			panic(fmt.Sprintf("kind %s claimed by both %s and %s", kind, existing.Name(), h.Name()))
		}
		r.byKind[kind] = h
	}
	for _, action := range h.Actions() {
		if existing, ok := r.byAction[action]; ok {
			panic(fmt.Sprintf("action %s claimed by both %s and %s", action, existing.Name(), h.Name()))
		}
		r.byAction[action] = h
	}
	r.handlers = append(r.handlers, h)
}

// ForKind returns the module serving a command kind, or nil.
func (r *Registry) ForKind(kind keyword.Kind) Handler {
	return r.byKind[kind]
}

// ForAction returns the module serving a postback action, or nil.
func (r *Registry) ForAction(action string) Handler {
	return r.byAction[action]
}
