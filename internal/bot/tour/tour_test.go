package tour

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/peiyulin/carelink-linebot-go/internal/bot"
	"github.com/peiyulin/carelink-linebot-go/internal/genai"
	"github.com/peiyulin/carelink-linebot-go/internal/keyword"
	"github.com/peiyulin/carelink-linebot-go/internal/logger"
	"github.com/peiyulin/carelink-linebot-go/internal/ratelimit"
	"github.com/peiyulin/carelink-linebot-go/internal/storage"
)

type stubGenerator struct {
	itineraries []genai.Itinerary
	err         error
	enabled     bool
}

func (s *stubGenerator) Generate(context.Context, genai.Request) ([]genai.Itinerary, error) {
	return s.itineraries, s.err
}
func (s *stubGenerator) Enabled() bool { return s.enabled }

func (s *stubGenerator) Provider() genai.Provider { return "stub" }

type pushRecord struct {
	userID string
	kind   string
	msgs   []messaging_api.MessageInterface
}

type stubNotifier struct {
	mu     sync.Mutex
	pushes []pushRecord
}

func (s *stubNotifier) Push(userID, kind string, msgs ...messaging_api.MessageInterface) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushes = append(s.pushes, pushRecord{userID: userID, kind: kind, msgs: msgs})
	return nil
}

func (s *stubNotifier) PushText(userID, kind, text string) error {
	return s.Push(userID, kind, &messaging_api.TextMessage{Text: text})
}

func (s *stubNotifier) all() []pushRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]pushRecord(nil), s.pushes...)
}

var sampleItinerary = genai.Itinerary{
	Name:       "台南古都漫遊",
	Country:    "台灣",
	Days:       3,
	CostRange:  "NT$6,000-9,000",
	Highlights: []string{"安平古堡", "神農街"},
	Schedule: []genai.DayPlan{
		{Day: 1, Theme: "古蹟巡禮", Activities: []string{"赤崁樓", "孔廟"}},
		{Day: 2, Theme: "海線散步", Activities: []string{"安平老街"}},
	},
	Tips: []string{"夏天記得帶帽子"},
}

func newFixture(t *testing.T, gen genai.Generator) (*Handler, *storage.DB, *stubNotifier) {
	t.Helper()
	db, err := storage.NewTestDB()
	if err != nil {
		t.Fatalf("NewTestDB() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	n := &stubNotifier{}
	log := logger.NewWithWriter("error", io.Discard)
	h := New(db, gen, n, ratelimit.New(10, 1), log, 5*time.Second)
	return h, db, n
}

func TestPlanAcksThenPushes(t *testing.T) {
	gen := &stubGenerator{itineraries: []genai.Itinerary{sampleItinerary}, enabled: true}
	h, db, n := newFixture(t, gen)
	ctx := context.Background()

	msgs := h.HandleCommand(ctx, "U1", keyword.Result{
		Kind: keyword.KindItinerary, Destination: "台南", Days: 3,
	})
	if len(msgs) != 1 {
		t.Fatalf("ack messages = %d, want 1", len(msgs))
	}
	ack := msgs[0].(*messaging_api.TextMessage).Text
	if !strings.Contains(ack, "台南") || !strings.Contains(ack, "3 天") {
		t.Errorf("ack = %q, want destination and days echoed", ack)
	}

	h.Wait()

	pushes := n.all()
	if len(pushes) != 1 {
		t.Fatalf("pushes = %d, want 1", len(pushes))
	}
	if pushes[0].userID != "U1" || pushes[0].kind != "tour_result" {
		t.Errorf("push = %+v, want tour_result to U1", pushes[0])
	}
	// Overview carousel plus day-by-day text.
	if len(pushes[0].msgs) != 2 {
		t.Errorf("pushed messages = %d, want 2", len(pushes[0].msgs))
	}

	plans, err := db.ListTourPlans(ctx, "U1", 10)
	if err != nil {
		t.Fatalf("ListTourPlans() error = %v", err)
	}
	if len(plans) != 1 || plans[0].Destination != "台南" || plans[0].Days != 3 {
		t.Errorf("plans = %+v, want saved 台南 3 days", plans)
	}
}

func TestPlanFailurePushesApology(t *testing.T) {
	gen := &stubGenerator{err: errors.New("model unavailable"), enabled: true}
	h, db, n := newFixture(t, gen)

	h.HandleCommand(context.Background(), "U1", keyword.Result{
		Kind: keyword.KindItinerary, Destination: "花蓮", Days: 2,
	})
	h.Wait()

	pushes := n.all()
	if len(pushes) != 1 || pushes[0].kind != "tour_failed" {
		t.Fatalf("pushes = %+v, want single tour_failed", pushes)
	}
	apology := pushes[0].msgs[0].(*messaging_api.TextMessage).Text
	if !strings.Contains(apology, "沒有成功") {
		t.Errorf("apology = %q, want failure notice", apology)
	}

	plans, _ := db.ListTourPlans(context.Background(), "U1", 10)
	if len(plans) != 0 {
		t.Errorf("plans = %d after failure, want 0", len(plans))
	}
}

func TestPlanDisabledGenerator(t *testing.T) {
	h, _, n := newFixture(t, &stubGenerator{enabled: false})

	msgs := h.HandleCommand(context.Background(), "U1", keyword.Result{
		Kind: keyword.KindItinerary, Destination: "台南", Days: 3,
	})
	h.Wait()

	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}
	reply := msgs[0].(*messaging_api.TextMessage).Text
	if !strings.Contains(reply, "沒有開放") {
		t.Errorf("reply = %q, want service notice", reply)
	}
	if len(n.all()) != 0 {
		t.Error("disabled generator must not push")
	}
}

func TestPlanRateLimited(t *testing.T) {
	gen := &stubGenerator{itineraries: []genai.Itinerary{sampleItinerary}, enabled: true}
	h, db, n := newFixture(t, gen)
	// One token, effectively no refill inside the test.
	h.limiter = ratelimit.New(1, 0.0001)

	h.HandleCommand(context.Background(), "U1", keyword.Result{
		Kind: keyword.KindItinerary, Destination: "台南", Days: 3,
	})
	msgs := h.HandleCommand(context.Background(), "U1", keyword.Result{
		Kind: keyword.KindItinerary, Destination: "台南", Days: 3,
	})
	h.Wait()

	reply := msgs[0].(*messaging_api.TextMessage).Text
	if !strings.Contains(reply, "再試一次") {
		t.Errorf("reply = %q, want backoff notice", reply)
	}
	if len(n.all()) != 1 {
		t.Errorf("pushes = %d, want only the first request generated", len(n.all()))
	}

	plans, _ := db.ListTourPlans(context.Background(), "U1", 10)
	if len(plans) != 1 {
		t.Errorf("plans = %d, want 1", len(plans))
	}
}

func TestMyToursAndView(t *testing.T) {
	h, db, _ := newFixture(t, &stubGenerator{enabled: true})
	ctx := context.Background()

	t.Run("empty state", func(t *testing.T) {
		msgs := h.HandleCommand(ctx, "U1", keyword.Result{Kind: keyword.KindMyTours})
		if len(msgs) != 1 {
			t.Fatalf("messages = %d, want 1", len(msgs))
		}
		reply := msgs[0].(*messaging_api.TextMessage).Text
		if !strings.Contains(reply, "還沒有規劃過") {
			t.Errorf("reply = %q, want empty state", reply)
		}
	})

	content, _ := json.Marshal([]genai.Itinerary{sampleItinerary})
	planID, err := db.SaveTourPlan(ctx, "U1", "台南", 3, string(content))
	if err != nil {
		t.Fatalf("SaveTourPlan() error = %v", err)
	}

	t.Run("lists saved plans", func(t *testing.T) {
		msgs := h.HandleCommand(ctx, "U1", keyword.Result{Kind: keyword.KindMyTours})
		if len(msgs) != 1 {
			t.Fatalf("messages = %d, want 1", len(msgs))
		}
		if _, ok := msgs[0].(*messaging_api.FlexMessage); !ok {
			t.Errorf("message type = %T, want FlexMessage", msgs[0])
		}
	})

	t.Run("view renders schedule", func(t *testing.T) {
		pb, _ := bot.ParsePostback(bot.BuildPostback(actionViewTour, "id", planID))
		msgs := h.HandlePostback(ctx, "U1", pb)
		if len(msgs) != 2 {
			t.Fatalf("messages = %d, want carousel and schedule", len(msgs))
		}
		schedule := msgs[1].(*messaging_api.TextMessage).Text
		if !strings.Contains(schedule, "第 1 天") || !strings.Contains(schedule, "赤崁樓") {
			t.Errorf("schedule = %q, want day plan content", schedule)
		}
	})

	t.Run("stranger cannot view", func(t *testing.T) {
		pb, _ := bot.ParsePostback(bot.BuildPostback(actionViewTour, "id", planID))
		msgs := h.HandlePostback(ctx, "U_other", pb)
		reply := msgs[0].(*messaging_api.TextMessage).Text
		if !strings.Contains(reply, "找不到") {
			t.Errorf("reply = %q, want not found notice", reply)
		}
	})

	t.Run("unknown plan", func(t *testing.T) {
		pb, _ := bot.ParsePostback(bot.BuildPostback(actionViewTour, "id", "nope"))
		msgs := h.HandlePostback(ctx, "U1", pb)
		reply := msgs[0].(*messaging_api.TextMessage).Text
		if !strings.Contains(reply, "找不到") {
			t.Errorf("reply = %q, want not found notice", reply)
		}
	})
}

func TestScheduleText(t *testing.T) {
	text := scheduleText(sampleItinerary)
	for _, want := range []string{"台南古都漫遊", "第 1 天", "古蹟巡禮", "安平老街", "夏天記得帶帽子"} {
		if !strings.Contains(text, want) {
			t.Errorf("scheduleText missing %q", want)
		}
	}
}
