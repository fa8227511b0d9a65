package keyword

import (
	"testing"

	"github.com/peiyulin/carelink-linebot-go/internal/flow"
)

func TestRoute(t *testing.T) {
	r := NewRouter()

	tests := []struct {
		name  string
		input string
		want  Result
	}{
		{"help keyword", "幫助", Result{Kind: KindHelp}},
		{"help english", "help", Result{Kind: KindHelp}},
		{"itinerary phrase", "台南3天", Result{Kind: KindItinerary, Destination: "台南", Days: 3}},
		{"itinerary inside sentence", "想去日本5天", Result{Kind: KindItinerary, Destination: "想去日本", Days: 5}},
		{"my tours beats itinerary extraction", "我的行程", Result{Kind: KindMyTours}},
		{"medication", "新增吃藥", Result{Kind: KindAddMedication}},
		{"appointment", "回診提醒", Result{Kind: KindAddAppointment}},
		{"health menu", "健康", Result{Kind: KindHealthMenu}},
		{"create group", "開團", Result{Kind: KindCreateGroup}},
		{"my groups beats group list", "我的揪團", Result{Kind: KindMyGroups}},
		{"group list", "揪團", Result{Kind: KindGroupList}},
		{"weather with city", "天氣 台北", Result{Kind: KindWeather, Query: "台北"}},
		{"weather without city", "天氣", Result{Kind: KindWeather, Query: ""}},
		{"nearby with query", "附近 公園", Result{Kind: KindNearby, Query: "公園"}},
		{"activities", "活動", Result{Kind: KindActivities}},
		{"add family beats family list", "新增家人", Result{Kind: KindAddFamily}},
		{"family list", "家人", Result{Kind: KindFamilyList}},
		{"unmatched falls to help", "今天心情不錯", Result{Kind: KindHelp}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Route(flow.Normalize(tt.input))
			if got != tt.want {
				t.Errorf("Route(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestRouteIdempotent(t *testing.T) {
	r := NewRouter()

	first := r.Route("完全不認識的句子")
	second := r.Route("完全不認識的句子")
	if first != second {
		t.Errorf("Route() = %+v then %+v, want identical results", first, second)
	}
	if first.Kind != KindHelp {
		t.Errorf("Kind = %q, want help fallback", first.Kind)
	}
}

func TestItineraryNeverFallsToHelp(t *testing.T) {
	r := NewRouter()

	got := r.Route("台南3天")
	if got.Kind != KindItinerary {
		t.Fatalf("Kind = %q, want itinerary", got.Kind)
	}
	if got.Destination != "台南" || got.Days != 3 {
		t.Errorf("extraction = %q/%d, want 台南/3", got.Destination, got.Days)
	}
}
