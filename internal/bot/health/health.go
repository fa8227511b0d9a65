// Package health implements the health reminder module: medication and
// appointment reminders, the 「健康」 overview menu, and the single-message
// flows that create reminders.
package health

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/peiyulin/carelink-linebot-go/internal/bot"
	"github.com/peiyulin/carelink-linebot-go/internal/config"
	apperrors "github.com/peiyulin/carelink-linebot-go/internal/errors"
	"github.com/peiyulin/carelink-linebot-go/internal/flow"
	"github.com/peiyulin/carelink-linebot-go/internal/keyword"
	"github.com/peiyulin/carelink-linebot-go/internal/lineutil"
	"github.com/peiyulin/carelink-linebot-go/internal/logger"
	"github.com/peiyulin/carelink-linebot-go/internal/storage"
)

// Postback actions owned by this module
const (
	actionAddMedication  = "add_medication"
	actionAddAppointment = "add_appointment"
	actionDeleteReminder = "delete_reminder"
)

// Handler serves the health reminder module
type Handler struct {
	db     *storage.DB
	engine *flow.Engine
	log    *logger.Logger
}

// New creates the health module and registers its flows on the engine.
func New(db *storage.DB, engine *flow.Engine, log *logger.Logger, flowTimeout time.Duration) *Handler {
	h := &Handler{
		db:     db,
		engine: engine,
		log:    log.WithModule("health"),
	}
	h.registerFlows(flowTimeout)
	return h
}

func (h *Handler) Name() string { return "health" }

func (h *Handler) Kinds() []keyword.Kind {
	return []keyword.Kind{keyword.KindHealthMenu, keyword.KindAddMedication, keyword.KindAddAppointment}
}

func (h *Handler) Actions() []string {
	return []string{actionAddMedication, actionAddAppointment, actionDeleteReminder}
}

func (h *Handler) HandleCommand(ctx context.Context, userID string, cmd keyword.Result) []messaging_api.MessageInterface {
	switch cmd.Kind {
	case keyword.KindAddMedication:
		return h.startFlow(ctx, userID, flow.AddMedication)
	case keyword.KindAddAppointment:
		return h.startFlow(ctx, userID, flow.AddAppointment)
	default:
		return h.menu(ctx, userID)
	}
}

func (h *Handler) HandlePostback(ctx context.Context, userID string, pb bot.Postback) []messaging_api.MessageInterface {
	switch pb.Action {
	case actionAddMedication:
		return h.startFlow(ctx, userID, flow.AddMedication)
	case actionAddAppointment:
		return h.startFlow(ctx, userID, flow.AddAppointment)
	case actionDeleteReminder:
		return h.deleteReminder(ctx, userID, pb.Get("id"))
	default:
		return nil
	}
}

func (h *Handler) startFlow(ctx context.Context, userID string, name flow.Name) []messaging_api.MessageInterface {
	prompt, err := h.engine.Start(ctx, userID, name)
	if err != nil {
		h.log.WithUserID(userID).WithError(err).Errorf("start flow %s failed", name)
		return []messaging_api.MessageInterface{lineutil.ErrorMessage()}
	}
	return []messaging_api.MessageInterface{lineutil.NewTextMessage(prompt)}
}

// menu lists the user's reminders as a carousel, or an inviting empty
// state when there are none yet.
func (h *Handler) menu(ctx context.Context, userID string) []messaging_api.MessageInterface {
	reminders, err := h.db.ListReminders(ctx, userID)
	if err != nil {
		h.log.WithUserID(userID).WithError(err).Errorf("list reminders failed")
		return []messaging_api.MessageInterface{lineutil.ErrorMessage()}
	}

	if len(reminders) == 0 {
		return []messaging_api.MessageInterface{
			lineutil.NewButtonsTemplate(
				"健康提醒",
				"💊 健康提醒",
				"目前沒有任何提醒喔!\n要不要設定一個呢?",
				[]lineutil.Action{
					lineutil.NewPostbackActionWithDisplayText("新增吃藥提醒", "新增吃藥提醒", bot.BuildPostback(actionAddMedication)),
					lineutil.NewPostbackActionWithDisplayText("新增回診提醒", "新增回診提醒", bot.BuildPostback(actionAddAppointment)),
				}),
		}
	}

	bubbles := make([]messaging_api.FlexBubble, 0, len(reminders))
	for _, r := range reminders {
		bubbles = append(bubbles, reminderBubble(r))
	}
	msgs := lineutil.BuildCarouselMessages("💊 您的健康提醒", bubbles)
	msgs = append(msgs, lineutil.NewTextMessageWithQuickReply(
		"要新增提醒的話，點下面的按鈕就可以囉!",
		[]lineutil.QuickReplyItem{
			{Label: "💊 新增吃藥提醒", Text: "新增吃藥提醒"},
			{Label: "🏥 新增回診提醒", Text: "新增回診提醒"},
		}))
	return msgs
}

func (h *Handler) deleteReminder(ctx context.Context, userID, rawID string) []messaging_api.MessageInterface {
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return []messaging_api.MessageInterface{
			lineutil.NewTextMessage("🤔 找不到這筆提醒，可能已經刪除了喔!"),
		}
	}

	switch err := h.db.DeleteReminder(ctx, id, userID); {
	case errors.Is(err, apperrors.ErrNotFound):
		return []messaging_api.MessageInterface{
			lineutil.NewTextMessage("🤔 找不到這筆提醒，可能已經刪除了喔!"),
		}
	case errors.Is(err, apperrors.ErrNoPermission):
		return []messaging_api.MessageInterface{
			lineutil.NewTextMessage("❌ 這筆提醒不是您建立的，沒辦法刪除喔!"),
		}
	case err != nil:
		h.log.WithUserID(userID).WithError(err).Errorf("delete reminder %d failed", id)
		return []messaging_api.MessageInterface{lineutil.ErrorMessage()}
	}
	return []messaging_api.MessageInterface{
		lineutil.NewTextMessage("🗑️ 好的，已經幫您刪除這筆提醒了!"),
	}
}

func reminderBubble(r storage.HealthReminder) messaging_api.FlexBubble {
	var header *lineutil.FlexBox
	var rows []messaging_api.FlexComponentInterface

	if r.Kind == storage.ReminderMedication {
		header = lineutil.NewHeroBox("💊 "+r.Title, "吃藥提醒")
		rows = append(rows, lineutil.NewKeyValueRow("時間", strings.Join(r.Times, "、")))
	} else {
		header = lineutil.NewHeroBox("🏥 "+r.Title, "回診提醒")
		when := time.Unix(r.AppointmentAt, 0).In(config.Taiwan).Format("2006/1/2 15:04")
		rows = append(rows, lineutil.NewKeyValueRow("時間", when))
		if r.Location != "" {
			rows = append(rows, lineutil.NewKeyValueRow("地點", r.Location))
		}
		if r.Department != "" {
			rows = append(rows, lineutil.NewKeyValueRow("科別", r.Department))
		}
	}

	body := lineutil.NewFlexBox("vertical", rows...).WithSpacing("sm").WithPaddingAll("lg")
	footer := lineutil.NewFlexBox("vertical",
		lineutil.NewFlexButton(
			lineutil.NewPostbackActionWithDisplayText("刪除", "刪除提醒",
				bot.BuildPostback(actionDeleteReminder, "id", strconv.FormatInt(r.ID, 10))),
		).WithStyle("secondary").WithHeight("sm").FlexButton,
	).WithPaddingAll("sm")

	return lineutil.NewBubble(header, body, footer)
}
