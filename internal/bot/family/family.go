// Package family implements the family contact module: a guided flow to
// save contacts and a list with one-tap calling, so reaching family never
// requires hunting through a phone book.
package family

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/peiyulin/carelink-linebot-go/internal/bot"
	apperrors "github.com/peiyulin/carelink-linebot-go/internal/errors"
	"github.com/peiyulin/carelink-linebot-go/internal/flow"
	"github.com/peiyulin/carelink-linebot-go/internal/keyword"
	"github.com/peiyulin/carelink-linebot-go/internal/lineutil"
	"github.com/peiyulin/carelink-linebot-go/internal/logger"
	"github.com/peiyulin/carelink-linebot-go/internal/storage"
)

// Postback actions owned by this module
const (
	actionAddFamily    = "add_family"
	actionDeleteFamily = "delete_family"
)

// Handler serves the family contact module
type Handler struct {
	db     *storage.DB
	engine *flow.Engine
	log    *logger.Logger
}

// New creates the family module and registers its flow on the engine.
func New(db *storage.DB, engine *flow.Engine, log *logger.Logger, flowTimeout time.Duration) *Handler {
	h := &Handler{
		db:     db,
		engine: engine,
		log:    log.WithModule("family"),
	}
	h.registerFlows(flowTimeout)
	return h
}

func (h *Handler) Name() string { return "family" }

func (h *Handler) Kinds() []keyword.Kind {
	return []keyword.Kind{keyword.KindAddFamily, keyword.KindFamilyList}
}

func (h *Handler) Actions() []string {
	return []string{actionAddFamily, actionDeleteFamily}
}

func (h *Handler) HandleCommand(ctx context.Context, userID string, cmd keyword.Result) []messaging_api.MessageInterface {
	if cmd.Kind == keyword.KindAddFamily {
		return h.startAdd(ctx, userID)
	}
	return h.list(ctx, userID)
}

func (h *Handler) HandlePostback(ctx context.Context, userID string, pb bot.Postback) []messaging_api.MessageInterface {
	switch pb.Action {
	case actionAddFamily:
		return h.startAdd(ctx, userID)
	case actionDeleteFamily:
		return h.delete(ctx, userID, pb.Get("id"))
	default:
		return nil
	}
}

func (h *Handler) startAdd(ctx context.Context, userID string) []messaging_api.MessageInterface {
	prompt, err := h.engine.Start(ctx, userID, flow.AddFamily)
	if err != nil {
		h.log.WithUserID(userID).WithError(err).Errorf("start add_family failed")
		return []messaging_api.MessageInterface{lineutil.ErrorMessage()}
	}
	return []messaging_api.MessageInterface{lineutil.NewTextMessage(prompt)}
}

func (h *Handler) list(ctx context.Context, userID string) []messaging_api.MessageInterface {
	links, err := h.db.ListFamilyLinks(ctx, userID)
	if err != nil {
		h.log.WithUserID(userID).WithError(err).Errorf("list family links failed")
		return []messaging_api.MessageInterface{lineutil.ErrorMessage()}
	}

	if len(links) == 0 {
		return []messaging_api.MessageInterface{
			lineutil.NewButtonsTemplate(
				"家人聯絡",
				"👨‍👩‍👧 家人聯絡",
				"還沒有記下任何家人喔!\n加一位吧，想聯絡的時候一點就通!",
				[]lineutil.Action{
					lineutil.NewPostbackActionWithDisplayText("新增家人", "新增家人", bot.BuildPostback(actionAddFamily)),
				}),
		}
	}

	bubbles := make([]messaging_api.FlexBubble, 0, len(links))
	for _, link := range links {
		bubbles = append(bubbles, contactBubble(link))
	}
	msgs := lineutil.BuildCarouselMessages("👨‍👩‍👧 家人聯絡", bubbles)
	msgs = append(msgs, lineutil.NewTextMessageWithQuickReply(
		"點「撥打電話」就可以直接打給家人喔!",
		[]lineutil.QuickReplyItem{
			{Label: "➕ 新增家人", Text: "新增家人"},
		}))
	return msgs
}

func (h *Handler) delete(ctx context.Context, userID, rawID string) []messaging_api.MessageInterface {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return notFoundReply()
	}

	switch err := h.db.DeleteFamilyLink(ctx, id, userID); {
	case errors.Is(err, apperrors.ErrNotFound):
		return notFoundReply()
	case err != nil:
		h.log.WithUserID(userID).WithError(err).Errorf("delete family link %d failed", id)
		return []messaging_api.MessageInterface{lineutil.ErrorMessage()}
	}
	return []messaging_api.MessageInterface{
		lineutil.NewTextMessage("🗑️ 好的，已經從家人名單移除了!"),
	}
}

func notFoundReply() []messaging_api.MessageInterface {
	return []messaging_api.MessageInterface{
		lineutil.NewTextMessage("🤔 名單裡找不到這位家人，可能已經移除了喔!"),
	}
}

func contactBubble(link storage.FamilyLink) messaging_api.FlexBubble {
	header := lineutil.NewHeroBox("👤 "+link.ContactName, link.Relation)
	body := lineutil.NewFlexBox("vertical",
		lineutil.NewKeyValueRow("電話", link.Phone),
	).WithPaddingAll("lg")

	footer := lineutil.NewFlexBox("vertical",
		lineutil.NewFlexButton(
			lineutil.NewURIAction("📞 撥打電話", "tel:"+link.Phone),
		).WithStyle("primary").WithColor(lineutil.ColorPrimary).WithHeight("sm").FlexButton,
		lineutil.NewFlexButton(
			lineutil.NewPostbackActionWithDisplayText("移除", "移除家人",
				bot.BuildPostback(actionDeleteFamily, "id", strconv.FormatInt(link.ID, 10))),
		).WithStyle("secondary").WithHeight("sm").FlexButton,
	).WithSpacing("sm").WithPaddingAll("sm")

	return lineutil.NewBubble(header, body, footer)
}
