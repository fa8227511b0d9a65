// Package keyword routes one-shot commands. Matching is ordered substring
// containment over normalized text; the itinerary phrase extraction runs
// at a fixed position ahead of every literal rule it could shadow. Routing
// is pure: no rule mutates state, so the same text always routes the same
// way.
package keyword

import (
	"strings"

	"github.com/peiyulin/carelink-linebot-go/internal/flow"
)

// Kind identifies the routed action
type Kind string

// Routed action kinds
const (
	KindMyTours        Kind = "my_tours"
	KindItinerary      Kind = "itinerary"
	KindAddMedication  Kind = "add_medication"
	KindAddAppointment Kind = "add_appointment"
	KindHealthMenu     Kind = "health_menu"
	KindCreateGroup    Kind = "create_group"
	KindMyGroups       Kind = "my_groups"
	KindGroupList      Kind = "group_list"
	KindActivities     Kind = "activities"
	KindNearby         Kind = "nearby"
	KindWeather        Kind = "weather"
	KindAddFamily      Kind = "add_family"
	KindFamilyList     Kind = "family_list"
	KindHelp           Kind = "help"
)

// Result is the routed action plus any extracted arguments
type Result struct {
	Kind        Kind
	Destination string // itinerary only
	Days        int    // itinerary only
	Query       string // nearby / weather argument, may be empty
}

type rule struct {
	name  string
	match func(text string) (Result, bool)
}

// contains builds a substring-containment rule.
func contains(kind Kind, triggers ...string) rule {
	return rule{
		name: string(kind),
		match: func(text string) (Result, bool) {
			for _, trigger := range triggers {
				if strings.Contains(text, trigger) {
					return Result{Kind: kind}, true
				}
			}
			return Result{}, false
		},
	}
}

// containsArg builds a rule that captures the text after the trigger as
// the argument, e.g. 「天氣 台北」.
func containsArg(kind Kind, triggers ...string) rule {
	return rule{
		name: string(kind),
		match: func(text string) (Result, bool) {
			for _, trigger := range triggers {
				i := strings.Index(text, trigger)
				if i < 0 {
					continue
				}
				arg := strings.TrimSpace(text[i+len(trigger):])
				return Result{Kind: kind, Query: arg}, true
			}
			return Result{}, false
		},
	}
}

// Router evaluates the rule table in order and returns the first match.
type Router struct {
	rules []rule
}

// NewRouter builds the router with its fixed rule order. Longer or more
// specific triggers sit above the broad single-word rules that would
// otherwise shadow them (我的行程 above the itinerary extraction, 我的揪團
// above 揪團, 新增家人 above 家人).
func NewRouter() *Router {
	rules := []rule{
		contains(KindHelp, "幫助", "help", "選單", "你好", "嗨"),
		contains(KindMyTours, "我的行程"),
		{
			name: string(KindItinerary),
			match: func(text string) (Result, bool) {
				dest, days, ok := flow.ParseItinerary(text)
				if !ok {
					return Result{}, false
				}
				return Result{Kind: KindItinerary, Destination: dest, Days: days}, true
			},
		},
		contains(KindAddMedication, "新增吃藥", "吃藥提醒"),
		contains(KindAddAppointment, "新增回診", "回診提醒"),
		contains(KindHealthMenu, "健康"),
		contains(KindCreateGroup, "開團", "建立揪團"),
		contains(KindMyGroups, "我的揪團"),
		contains(KindGroupList, "揪團"),
		containsArg(KindNearby, "附近"),
		contains(KindActivities, "活動"),
		containsArg(KindWeather, "天氣"),
		contains(KindAddFamily, "新增家人"),
		contains(KindFamilyList, "家人"),
	}
	return &Router{rules: rules}
}

// Route returns the action for normalized input text. Unmatched text
// falls through to the help action.
func (r *Router) Route(text string) Result {
	for _, rule := range r.rules {
		if result, ok := rule.match(text); ok {
			return result
		}
	}
	return Result{Kind: KindHelp}
}
