// Package tour implements the travel planning module: AI-generated
// itineraries delivered ack-then-push, and the user's saved plans.
//
// Generation takes tens of seconds, far past LINE's reply window, so the
// command handler replies with an acknowledgement right away and a
// background goroutine pushes the result (or an apology) when it lands.
package tour

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/peiyulin/carelink-linebot-go/internal/bot"
	"github.com/peiyulin/carelink-linebot-go/internal/config"
	apperrors "github.com/peiyulin/carelink-linebot-go/internal/errors"
	"github.com/peiyulin/carelink-linebot-go/internal/genai"
	"github.com/peiyulin/carelink-linebot-go/internal/keyword"
	"github.com/peiyulin/carelink-linebot-go/internal/lineutil"
	"github.com/peiyulin/carelink-linebot-go/internal/logger"
	"github.com/peiyulin/carelink-linebot-go/internal/ratelimit"
	"github.com/peiyulin/carelink-linebot-go/internal/storage"
)

const actionViewTour = "view_tour"

const savedPlansLimit = 10

const apologyText = "😥 不好意思，這次行程規劃沒有成功。\n請稍後再傳一次「台南3天」這樣的句子試試喔!"

type notifier interface {
	Push(userID, kind string, messages ...messaging_api.MessageInterface) error
	PushText(userID, kind, text string) error
}

// Handler serves the travel planning module
type Handler struct {
	db       *storage.DB
	gen      genai.Generator
	notifier notifier
	limiter  *ratelimit.Limiter
	log      *logger.Logger

	genTimeout time.Duration
	wg         sync.WaitGroup
}

// New creates the travel planning module. gen may be nil when no provider
// is configured; the module then answers with a service notice.
func New(db *storage.DB, gen genai.Generator, n notifier, limiter *ratelimit.Limiter, log *logger.Logger, genTimeout time.Duration) *Handler {
	return &Handler{
		db:         db,
		gen:        gen,
		notifier:   n,
		limiter:    limiter,
		log:        log.WithModule("tour"),
		genTimeout: genTimeout,
	}
}

func (h *Handler) Name() string { return "tour" }

func (h *Handler) Kinds() []keyword.Kind {
	return []keyword.Kind{keyword.KindItinerary, keyword.KindMyTours}
}

func (h *Handler) Actions() []string {
	return []string{actionViewTour}
}

// Wait blocks until all in-flight generations have pushed their results.
// Called during shutdown so no user is left waiting on a reply that died
// with the process.
func (h *Handler) Wait() {
	h.wg.Wait()
}

func (h *Handler) HandleCommand(ctx context.Context, userID string, cmd keyword.Result) []messaging_api.MessageInterface {
	if cmd.Kind == keyword.KindMyTours {
		return h.myTours(ctx, userID)
	}
	return h.plan(userID, cmd.Destination, cmd.Days)
}

func (h *Handler) HandlePostback(ctx context.Context, userID string, pb bot.Postback) []messaging_api.MessageInterface {
	if pb.Action != actionViewTour {
		return nil
	}
	return h.viewPlan(ctx, userID, pb.Get("id"))
}

// plan acknowledges immediately and generates in the background.
func (h *Handler) plan(userID, destination string, days int) []messaging_api.MessageInterface {
	if h.gen == nil || !h.gen.Enabled() {
		return text("🙏 不好意思，AI 行程規劃目前沒有開放喔!")
	}
	if !h.limiter.Allow() {
		return text("🐢 規劃行程比較花時間，現在排隊的人有點多。\n請過幾分鐘再試一次喔!")
	}

	h.wg.Add(1)
	go h.generate(userID, destination, days)

	return text(fmt.Sprintf(
		"🗺️ 收到!幫您規劃「%s」%d 天的行程。\n\n大概需要一分鐘，規劃好我馬上傳給您，請稍等喔!",
		destination, days))
}

// generate runs off the webhook path. It must never take the process down
// and must always push something, success or not.
func (h *Handler) generate(userID, destination string, days int) {
	defer h.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			h.log.WithUserID(userID).WithField("panic", r).Errorf("panic during tour generation")
			h.pushApology(userID)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), h.genTimeout)
	defer cancel()

	itineraries, err := h.gen.Generate(ctx, genai.Request{Destination: destination, Days: days})
	if err != nil {
		h.log.WithUserID(userID).WithError(err).Errorf("generate itinerary for %s failed", destination)
		h.pushApology(userID)
		return
	}

	content, err := json.Marshal(itineraries)
	if err != nil {
		h.log.WithUserID(userID).WithError(err).Errorf("encode itineraries failed")
		h.pushApology(userID)
		return
	}
	if _, err := h.db.SaveTourPlan(ctx, userID, destination, days, string(content)); err != nil {
		// The plan still reaches the user; it just won't show under 我的行程.
		h.log.WithUserID(userID).WithError(err).Errorf("save tour plan failed")
	}

	msgs := itineraryMessages(destination, itineraries)
	if err := h.notifier.Push(userID, "tour_result", msgs...); err != nil {
		h.log.WithUserID(userID).WithError(err).Errorf("push tour result failed")
	}
}

func (h *Handler) pushApology(userID string) {
	if err := h.notifier.PushText(userID, "tour_failed", apologyText); err != nil {
		h.log.WithUserID(userID).WithError(err).Errorf("push tour apology failed")
	}
}

func (h *Handler) myTours(ctx context.Context, userID string) []messaging_api.MessageInterface {
	plans, err := h.db.ListTourPlans(ctx, userID, savedPlansLimit)
	if err != nil {
		h.log.WithUserID(userID).WithError(err).Errorf("list tour plans failed")
		return []messaging_api.MessageInterface{lineutil.ErrorMessage()}
	}

	if len(plans) == 0 {
		return text("您還沒有規劃過行程喔!\n傳「台南3天」這樣的句子給我，馬上幫您規劃!")
	}

	bubbles := make([]messaging_api.FlexBubble, 0, len(plans))
	for _, p := range plans {
		header := lineutil.NewHeroBox("🗺️ "+p.Destination, fmt.Sprintf("%d 天行程", p.Days))
		body := lineutil.NewFlexBox("vertical",
			lineutil.NewKeyValueRow("規劃日", time.Unix(p.CreatedAt, 0).In(config.Taiwan).Format("2006/1/2")),
		).WithSpacing("sm").WithPaddingAll("lg")
		footer := lineutil.NewFlexBox("vertical",
			lineutil.NewFlexButton(
				lineutil.NewPostbackActionWithDisplayText("看行程", "看行程",
					bot.BuildPostback(actionViewTour, "id", p.ID)),
			).WithStyle("primary").WithColor(lineutil.ColorPrimary).WithHeight("sm").FlexButton,
		).WithPaddingAll("sm")
		bubbles = append(bubbles, lineutil.NewBubble(header, body, footer))
	}
	return lineutil.BuildCarouselMessages("🗺️ 我的行程", bubbles)
}

func (h *Handler) viewPlan(ctx context.Context, userID, planID string) []messaging_api.MessageInterface {
	plan, err := h.db.GetTourPlan(ctx, planID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return text("🤔 找不到這份行程，可能已經刪除了喔!")
	}
	if err != nil {
		h.log.WithUserID(userID).WithError(err).Errorf("get tour plan %s failed", planID)
		return []messaging_api.MessageInterface{lineutil.ErrorMessage()}
	}
	if plan.UserID != userID {
		return text("🤔 找不到這份行程，可能已經刪除了喔!")
	}

	var itineraries []genai.Itinerary
	if err := json.Unmarshal([]byte(plan.Content), &itineraries); err != nil {
		h.log.WithUserID(userID).WithError(err).Errorf("decode tour plan %s failed", planID)
		return []messaging_api.MessageInterface{lineutil.ErrorMessage()}
	}
	return itineraryMessages(plan.Destination, itineraries)
}

// itineraryMessages renders option overview bubbles plus the day-by-day
// schedule of the first option as text.
func itineraryMessages(destination string, itineraries []genai.Itinerary) []messaging_api.MessageInterface {
	bubbles := make([]messaging_api.FlexBubble, 0, len(itineraries))
	for _, it := range itineraries {
		bubbles = append(bubbles, itineraryBubble(it))
	}

	msgs := lineutil.BuildCarouselMessages("🗺️ "+destination+" 行程規劃", bubbles)
	if len(itineraries) > 0 {
		msgs = append(msgs, lineutil.NewTextMessage(scheduleText(itineraries[0])))
	}
	return msgs
}

func itineraryBubble(it genai.Itinerary) messaging_api.FlexBubble {
	subtitle := fmt.Sprintf("%d 天", it.Days)
	if it.Country != "" {
		subtitle = it.Country + " · " + subtitle
	}
	header := lineutil.NewHeroBox("🗺️ "+it.Name, subtitle)

	rows := []messaging_api.FlexComponentInterface{}
	if it.CostRange != "" {
		rows = append(rows, lineutil.NewKeyValueRow("預算", it.CostRange))
	}
	if len(it.Highlights) > 0 {
		rows = append(rows, lineutil.NewKeyValueRow("亮點", strings.Join(it.Highlights, "、")))
	}
	if len(rows) == 0 {
		rows = append(rows, lineutil.NewKeyValueRow("天數", fmt.Sprintf("%d 天", it.Days)))
	}
	body := lineutil.NewFlexBox("vertical", rows...).WithSpacing("sm").WithPaddingAll("lg")

	return lineutil.NewBubble(header, body, nil)
}

func scheduleText(it genai.Itinerary) string {
	var b strings.Builder
	b.WriteString("📅 「" + it.Name + "」每日行程:\n")
	for _, day := range it.Schedule {
		fmt.Fprintf(&b, "\n☀️ 第 %d 天", day.Day)
		if day.Theme != "" {
			b.WriteString(":" + day.Theme)
		}
		for _, a := range day.Activities {
			b.WriteString("\n　• " + a)
		}
		b.WriteString("\n")
	}
	if len(it.Tips) > 0 {
		b.WriteString("\n💡 貼心提醒:\n")
		for _, tip := range it.Tips {
			b.WriteString("　• " + tip + "\n")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}

func text(s string) []messaging_api.MessageInterface {
	return []messaging_api.MessageInterface{lineutil.NewTextMessage(s)}
}
