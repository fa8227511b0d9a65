package family

import (
	"context"
	"io"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/peiyulin/carelink-linebot-go/internal/bot"
	"github.com/peiyulin/carelink-linebot-go/internal/flow"
	"github.com/peiyulin/carelink-linebot-go/internal/keyword"
	"github.com/peiyulin/carelink-linebot-go/internal/logger"
	"github.com/peiyulin/carelink-linebot-go/internal/metrics"
	"github.com/peiyulin/carelink-linebot-go/internal/session"
	"github.com/peiyulin/carelink-linebot-go/internal/storage"
)

type fixture struct {
	db      *storage.DB
	store   *session.Store
	engine  *flow.Engine
	handler *Handler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := storage.NewTestDB()
	if err != nil {
		t.Fatalf("NewTestDB() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	log := logger.NewWithWriter("error", io.Discard)
	store := session.NewStore(db, log)
	engine := flow.NewEngine(store, log, metrics.New(prometheus.NewRegistry()))
	return &fixture{
		db:      db,
		store:   store,
		engine:  engine,
		handler: New(db, engine, log, 10*time.Minute),
	}
}

func (f *fixture) step(t *testing.T, userID, input string) string {
	t.Helper()
	ctx := context.Background()
	sess, _, err := f.store.Get(ctx, userID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	reply, err := f.engine.HandleInput(ctx, sess, input)
	if err != nil {
		t.Fatalf("HandleInput(%q) error = %v", input, err)
	}
	return reply
}

func TestAddFamilyFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.handler.HandleCommand(ctx, "U1", keyword.Result{Kind: keyword.KindAddFamily})
	f.step(t, "U1", "兒子 小明")
	summary := f.step(t, "U1", "0912-345-678")
	if !strings.Contains(summary, "兒子 小明") || !strings.Contains(summary, "0912345678") {
		t.Errorf("summary = %q, want name and cleaned phone", summary)
	}

	reply := f.step(t, "U1", "確認")
	if !strings.Contains(reply, "記好了") {
		t.Errorf("reply = %q, want save confirmation", reply)
	}

	links, err := f.db.ListFamilyLinks(ctx, "U1")
	if err != nil {
		t.Fatalf("ListFamilyLinks() error = %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("links = %d, want 1", len(links))
	}
	link := links[0]
	if link.ContactName != "小明" || link.Relation != "兒子" || link.Phone != "0912345678" {
		t.Errorf("link = %+v, want 小明/兒子/0912345678", link)
	}
}

func TestAddFamilyWithoutRelation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.handler.HandleCommand(ctx, "U1", keyword.Result{Kind: keyword.KindAddFamily})
	f.step(t, "U1", "王太太")
	f.step(t, "U1", "02 2345 6789")
	f.step(t, "U1", "好")

	links, _ := f.db.ListFamilyLinks(ctx, "U1")
	if len(links) != 1 || links[0].ContactName != "王太太" || links[0].Relation != "" {
		t.Errorf("links = %+v, want plain name without relation", links)
	}
	if links[0].Phone != "0223456789" {
		t.Errorf("Phone = %q, want separators stripped", links[0].Phone)
	}
}

func TestAddFamilyRejectsBadPhone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.handler.HandleCommand(ctx, "U1", keyword.Result{Kind: keyword.KindAddFamily})
	f.step(t, "U1", "小明")

	for _, bad := range []string{"12345", "0912", "電話之後再給", "886912345678"} {
		reply := f.step(t, "U1", bad)
		if !strings.Contains(reply, "電話號碼") {
			t.Errorf("step(%q) = %q, want phone guidance", bad, reply)
		}
	}

	// Still waiting on the phone step.
	sess, _, _ := f.store.Get(ctx, "U1")
	if sess.CurrentStep != string(stepAwaitPhone) {
		t.Errorf("CurrentStep = %q, want await_phone", sess.CurrentStep)
	}
}

func TestParsePhone(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"0912345678", "0912345678", false},
		{"0912-345-678", "0912345678", false},
		{"02 2345 6789", "0223456789", false},
		{"(02)2345-6789", "0223456789", false},
		{"12345", "", true},
		{"886912345678", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		got, err := parsePhone(tt.input)
		if (err != nil) != tt.wantErr {
			t.Errorf("parsePhone(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parsePhone(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestFamilyList(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	t.Run("empty state", func(t *testing.T) {
		msgs := f.handler.HandleCommand(ctx, "U1", keyword.Result{Kind: keyword.KindFamilyList})
		if len(msgs) != 1 {
			t.Fatalf("messages = %d, want 1", len(msgs))
		}
		if _, ok := msgs[0].(*messaging_api.TemplateMessage); !ok {
			t.Errorf("message type = %T, want TemplateMessage invite", msgs[0])
		}
	})

	if _, err := f.db.CreateFamilyLink(ctx, &storage.FamilyLink{
		UserID: "U1", ContactName: "小明", Relation: "兒子", Phone: "0912345678",
	}); err != nil {
		t.Fatalf("CreateFamilyLink() error = %v", err)
	}

	t.Run("lists contacts", func(t *testing.T) {
		msgs := f.handler.HandleCommand(ctx, "U1", keyword.Result{Kind: keyword.KindFamilyList})
		if len(msgs) != 2 {
			t.Fatalf("messages = %d, want carousel and hint", len(msgs))
		}
		flexMsg, ok := msgs[0].(*messaging_api.FlexMessage)
		if !ok {
			t.Fatalf("message type = %T, want FlexMessage", msgs[0])
		}
		carousel := flexMsg.Contents.(*messaging_api.FlexCarousel)
		if len(carousel.Contents) != 1 {
			t.Errorf("bubbles = %d, want 1", len(carousel.Contents))
		}
	})
}

func TestDeleteFamilyPostback(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.db.CreateFamilyLink(ctx, &storage.FamilyLink{
		UserID: "U1", ContactName: "小明", Phone: "0912345678",
	})
	if err != nil {
		t.Fatalf("CreateFamilyLink() error = %v", err)
	}

	pb := func(rawID string) bot.Postback {
		p, err := bot.ParsePostback(bot.BuildPostback(actionDeleteFamily, "id", rawID))
		if err != nil {
			t.Fatalf("ParsePostback() error = %v", err)
		}
		return p
	}

	rawID := strconv.FormatInt(id, 10)

	t.Run("stranger delete looks like not found", func(t *testing.T) {
		msgs := f.handler.HandlePostback(ctx, "U_other", pb(rawID))
		if !strings.Contains(textOf(t, msgs), "找不到") {
			t.Errorf("reply = %q, want not found", textOf(t, msgs))
		}
	})

	t.Run("owner deletes", func(t *testing.T) {
		msgs := f.handler.HandlePostback(ctx, "U1", pb(rawID))
		if !strings.Contains(textOf(t, msgs), "移除") {
			t.Errorf("reply = %q, want removal confirmation", textOf(t, msgs))
		}
		links, _ := f.db.ListFamilyLinks(ctx, "U1")
		if len(links) != 0 {
			t.Errorf("links = %d after delete, want 0", len(links))
		}
	})
}

func textOf(t *testing.T, msgs []messaging_api.MessageInterface) string {
	t.Helper()
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}
	tm, ok := msgs[0].(*messaging_api.TextMessage)
	if !ok {
		t.Fatalf("message type = %T, want TextMessage", msgs[0])
	}
	return tm.Text
}
