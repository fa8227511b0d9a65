// Package activity implements activity recommendations: a curated list of
// upcoming activities for retirees, and nearby place search.
package activity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/peiyulin/carelink-linebot-go/internal/bot"
	"github.com/peiyulin/carelink-linebot-go/internal/config"
	apperrors "github.com/peiyulin/carelink-linebot-go/internal/errors"
	"github.com/peiyulin/carelink-linebot-go/internal/keyword"
	"github.com/peiyulin/carelink-linebot-go/internal/lineutil"
	"github.com/peiyulin/carelink-linebot-go/internal/logger"
	"github.com/peiyulin/carelink-linebot-go/internal/places"
	"github.com/peiyulin/carelink-linebot-go/internal/storage"
)

const (
	activityLimit = 10
	nearbyLimit   = 5
)

// placeSearcher is the nearby search dependency. nil means the feature is
// not configured.
type placeSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]places.Place, error)
	Enabled() bool
}

// Handler serves the activity module
type Handler struct {
	db     *storage.DB
	places placeSearcher
	log    *logger.Logger
}

// New creates the activity module. searcher may be nil.
func New(db *storage.DB, searcher placeSearcher, log *logger.Logger) *Handler {
	return &Handler{
		db:     db,
		places: searcher,
		log:    log.WithModule("activity"),
	}
}

func (h *Handler) Name() string { return "activity" }

func (h *Handler) Kinds() []keyword.Kind {
	return []keyword.Kind{keyword.KindActivities, keyword.KindNearby}
}

func (h *Handler) Actions() []string { return nil }

func (h *Handler) HandleCommand(ctx context.Context, userID string, cmd keyword.Result) []messaging_api.MessageInterface {
	if cmd.Kind == keyword.KindNearby {
		return h.nearby(ctx, userID, cmd.Query)
	}
	return h.recommendations(ctx, userID)
}

func (h *Handler) HandlePostback(context.Context, string, bot.Postback) []messaging_api.MessageInterface {
	return nil
}

func (h *Handler) recommendations(ctx context.Context, userID string) []messaging_api.MessageInterface {
	activities, err := h.db.ListUpcomingActivities(ctx, "", activityLimit)
	if err != nil {
		h.log.WithUserID(userID).WithError(err).Errorf("list activities failed")
		return []messaging_api.MessageInterface{lineutil.ErrorMessage()}
	}

	if len(activities) == 0 {
		return []messaging_api.MessageInterface{
			lineutil.NewTextMessage("最近沒有新的活動喔!\n也可以輸入「附近 公園」找找附近的好去處!"),
		}
	}

	bubbles := make([]messaging_api.FlexBubble, 0, len(activities))
	for _, a := range activities {
		bubbles = append(bubbles, activityBubble(a))
	}
	msgs := lineutil.BuildCarouselMessages("🎨 活動推薦", bubbles)
	msgs = append(msgs, lineutil.NewTextMessageWithQuickReply(
		"也可以找找住家附近的好去處喔!",
		[]lineutil.QuickReplyItem{
			{Label: "🌳 附近公園", Text: "附近 公園"},
			{Label: "🏛️ 附近圖書館", Text: "附近 圖書館"},
			{Label: "♨️ 附近溫泉", Text: "附近 溫泉"},
		}))
	return msgs
}

func (h *Handler) nearby(ctx context.Context, userID, query string) []messaging_api.MessageInterface {
	if h.places == nil || !h.places.Enabled() {
		return []messaging_api.MessageInterface{
			lineutil.NewTextMessage("🙏 不好意思，附近搜尋目前沒有開放喔!"),
		}
	}
	if query == "" {
		return []messaging_api.MessageInterface{
			lineutil.NewTextMessage("想找什麼呢?請在「附近」後面加上地點，例如:\n「附近 公園」\n「附近 圖書館」"),
		}
	}

	results, err := h.places.Search(ctx, query, nearbyLimit)
	if errors.Is(err, apperrors.ErrNotFound) {
		return []messaging_api.MessageInterface{
			lineutil.NewTextMessage("🤔 找不到「" + query + "」相關的地點，換個說法試試看?"),
		}
	}
	if err != nil {
		h.log.WithUserID(userID).WithError(err).Errorf("place search %q failed", query)
		return []messaging_api.MessageInterface{lineutil.ErrorMessage()}
	}

	bubbles := make([]messaging_api.FlexBubble, 0, len(results))
	for _, p := range results {
		bubbles = append(bubbles, placeBubble(p))
	}
	return lineutil.BuildCarouselMessages("📍 "+query+" 搜尋結果", bubbles)
}

func activityBubble(a storage.Activity) messaging_api.FlexBubble {
	header := lineutil.NewHeroBox("🎨 "+a.Title, a.Category)
	rows := []messaging_api.FlexComponentInterface{
		lineutil.NewKeyValueRow("時間", time.Unix(a.ScheduledAt, 0).In(config.Taiwan).Format("2006/1/2 15:04")),
	}
	if a.Location != "" {
		rows = append(rows, lineutil.NewKeyValueRow("地點", a.Location))
	}
	if a.Description != "" {
		rows = append(rows,
			lineutil.NewFlexText(a.Description).WithSize("sm").WithColor(lineutil.ColorBody).WithMargin("md").FlexText)
	}
	body := lineutil.NewFlexBox("vertical", rows...).WithSpacing("sm").WithPaddingAll("lg")
	return lineutil.NewBubble(header, body, nil)
}

func placeBubble(p places.Place) messaging_api.FlexBubble {
	subtitle := ""
	if p.Rating > 0 {
		subtitle = fmt.Sprintf("⭐ %.1f", p.Rating)
	}
	if p.OpenNow {
		if subtitle != "" {
			subtitle += " · "
		}
		subtitle += "營業中"
	}
	header := lineutil.NewHeroBox("📍 "+p.Name, subtitle)

	body := lineutil.NewFlexBox("vertical",
		lineutil.NewFlexText(p.Address).WithSize("sm").WithColor(lineutil.ColorBody).FlexText,
	).WithPaddingAll("lg")

	var footer *lineutil.FlexBox
	if p.MapURL != "" {
		footer = lineutil.NewFlexBox("vertical",
			lineutil.NewFlexButton(
				lineutil.NewURIAction("打開地圖", p.MapURL),
			).WithStyle("link").WithHeight("sm").FlexButton,
		).WithPaddingAll("sm")
	}
	return lineutil.NewBubble(header, body, footer)
}
