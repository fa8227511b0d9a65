// Package group implements the meetup module (揪團): creating groups
// through a guided flow, browsing and joining them, and the waitlist that
// backfills seats when someone leaves.
package group

import (
	"context"
	"errors"
	"fmt"
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
	actionCreateGroup = "create_group"
	actionJoinGroup   = "join_group"
	actionLeaveGroup  = "leave_group"
	actionDeleteGroup = "delete_group"
)

const listLimit = 10

// notifier delivers out-of-band pushes, such as telling a waitlisted user
// their seat opened up.
type notifier interface {
	PushText(userID, kind, text string) error
}

// Handler serves the meetup module
type Handler struct {
	db       *storage.DB
	engine   *flow.Engine
	notifier notifier
	log      *logger.Logger
}

// New creates the meetup module and registers its flow on the engine.
func New(db *storage.DB, engine *flow.Engine, n notifier, log *logger.Logger, flowTimeout time.Duration) *Handler {
	h := &Handler{
		db:       db,
		engine:   engine,
		notifier: n,
		log:      log.WithModule("group"),
	}
	h.registerFlows(flowTimeout)
	return h
}

func (h *Handler) Name() string { return "group" }

func (h *Handler) Kinds() []keyword.Kind {
	return []keyword.Kind{keyword.KindCreateGroup, keyword.KindMyGroups, keyword.KindGroupList}
}

func (h *Handler) Actions() []string {
	return []string{actionCreateGroup, actionJoinGroup, actionLeaveGroup, actionDeleteGroup}
}

func (h *Handler) HandleCommand(ctx context.Context, userID string, cmd keyword.Result) []messaging_api.MessageInterface {
	switch cmd.Kind {
	case keyword.KindCreateGroup:
		return h.startCreate(ctx, userID)
	case keyword.KindMyGroups:
		return h.myGroups(ctx, userID)
	default:
		return h.browse(ctx, userID)
	}
}

func (h *Handler) HandlePostback(ctx context.Context, userID string, pb bot.Postback) []messaging_api.MessageInterface {
	switch pb.Action {
	case actionCreateGroup:
		return h.startCreate(ctx, userID)
	case actionJoinGroup:
		return h.join(ctx, userID, pb.Get("id"))
	case actionLeaveGroup:
		return h.leave(ctx, userID, pb.Get("id"))
	case actionDeleteGroup:
		return h.remove(ctx, userID, pb.Get("id"))
	default:
		return nil
	}
}

func (h *Handler) startCreate(ctx context.Context, userID string) []messaging_api.MessageInterface {
	prompt, err := h.engine.Start(ctx, userID, flow.CreateGroup)
	if err != nil {
		h.log.WithUserID(userID).WithError(err).Errorf("start create_group failed")
		return []messaging_api.MessageInterface{lineutil.ErrorMessage()}
	}
	return []messaging_api.MessageInterface{lineutil.NewTextMessage(prompt)}
}

// browse lists upcoming groups anyone can join.
func (h *Handler) browse(ctx context.Context, userID string) []messaging_api.MessageInterface {
	groups, err := h.db.ListUpcomingGroups(ctx, listLimit)
	if err != nil {
		h.log.WithUserID(userID).WithError(err).Errorf("list groups failed")
		return []messaging_api.MessageInterface{lineutil.ErrorMessage()}
	}

	if len(groups) == 0 {
		return []messaging_api.MessageInterface{
			lineutil.NewButtonsTemplate(
				"揪團",
				"👥 揪團出遊",
				"目前還沒有揪團喔!\n要不要當第一個開團的人呢?",
				[]lineutil.Action{
					lineutil.NewPostbackActionWithDisplayText("我要開團", "我要開團", bot.BuildPostback(actionCreateGroup)),
				}),
		}
	}

	bubbles := make([]messaging_api.FlexBubble, 0, len(groups))
	for _, g := range groups {
		bubbles = append(bubbles, h.browseBubble(g))
	}
	msgs := lineutil.BuildCarouselMessages("👥 揪團列表", bubbles)
	msgs = append(msgs, lineutil.NewTextMessageWithQuickReply(
		"看到喜歡的就點「我要參加」報名喔!",
		[]lineutil.QuickReplyItem{
			{Label: "🙋 我要開團", Text: "開團"},
			{Label: "📋 我的揪團", Text: "我的揪團"},
		}))
	return msgs
}

// myGroups lists the groups the user belongs to, with their role and the
// actions that role allows.
func (h *Handler) myGroups(ctx context.Context, userID string) []messaging_api.MessageInterface {
	groups, err := h.db.ListGroupsByMember(ctx, userID)
	if err != nil {
		h.log.WithUserID(userID).WithError(err).Errorf("list my groups failed")
		return []messaging_api.MessageInterface{lineutil.ErrorMessage()}
	}

	if len(groups) == 0 {
		return []messaging_api.MessageInterface{
			lineutil.NewTextMessageWithQuickReply(
				"您目前沒有參加任何揪團喔!\n輸入「揪團」看看大家在揪什麼吧!",
				[]lineutil.QuickReplyItem{
					{Label: "👥 看揪團", Text: "揪團"},
					{Label: "🙋 我要開團", Text: "開團"},
				}),
		}
	}

	bubbles := make([]messaging_api.FlexBubble, 0, len(groups))
	for _, g := range groups {
		member, err := h.db.GetMember(ctx, g.ID, userID)
		if err != nil || member == nil {
			h.log.WithUserID(userID).WithError(err).Warnf("member row missing for group %s", g.ID)
			continue
		}
		bubbles = append(bubbles, h.memberBubble(g, member, userID))
	}
	return lineutil.BuildCarouselMessages("📋 我的揪團", bubbles)
}

func (h *Handler) join(ctx context.Context, userID, groupID string) []messaging_api.MessageInterface {
	g, err := h.db.GetGroup(ctx, groupID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return text("🤔 這個揪團已經不存在了喔!")
	}
	if err != nil {
		h.log.WithUserID(userID).WithError(err).Errorf("get group %s failed", groupID)
		return []messaging_api.MessageInterface{lineutil.ErrorMessage()}
	}

	status, err := h.db.JoinGroup(ctx, groupID, userID)
	switch {
	case errors.Is(err, apperrors.ErrAlreadyMember):
		return text("😊 您已經報名過「" + g.Title + "」了喔!輸入「我的揪團」可以查看。")
	case errors.Is(err, apperrors.ErrNotFound):
		return text("🤔 這個揪團已經不存在了喔!")
	case err != nil:
		h.log.WithUserID(userID).WithError(err).Errorf("join group %s failed", groupID)
		return []messaging_api.MessageInterface{lineutil.ErrorMessage()}
	}

	if status == storage.MemberPending {
		return text("📝 「" + g.Title + "」目前已經滿了，先幫您排候補。\n有人退出的話會馬上通知您喔!")
	}
	return text("🎉 報名成功!「" + g.Title + "」\n🗓️ " + formatEventAt(g.EventAt) + "\n📍 " + g.Location +
		"\n\n出發前我會再提醒您喔!")
}

func (h *Handler) leave(ctx context.Context, userID, groupID string) []messaging_api.MessageInterface {
	g, err := h.db.GetGroup(ctx, groupID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return text("🤔 這個揪團已經不存在了喔!")
	}
	if err != nil {
		h.log.WithUserID(userID).WithError(err).Errorf("get group %s failed", groupID)
		return []messaging_api.MessageInterface{lineutil.ErrorMessage()}
	}

	promoted, err := h.db.LeaveGroup(ctx, groupID, userID)
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return text("🤔 您沒有參加這個揪團喔!")
	case err != nil:
		h.log.WithUserID(userID).WithError(err).Errorf("leave group %s failed", groupID)
		return []messaging_api.MessageInterface{lineutil.ErrorMessage()}
	}

	if promoted != "" {
		if err := h.notifier.PushText(promoted, "group_promoted",
			"🎉 好消息!「"+g.Title+"」有名額了，您已經從候補變成正式參加!\n🗓️ "+
				formatEventAt(g.EventAt)+"\n📍 "+g.Location); err != nil {
			h.log.WithUserID(promoted).WithError(err).Errorf("notify promoted member failed")
		}
	}
	return text("👋 好的，已經幫您退出「" + g.Title + "」了。")
}

func (h *Handler) remove(ctx context.Context, userID, groupID string) []messaging_api.MessageInterface {
	g, err := h.db.GetGroup(ctx, groupID)
	if errors.Is(err, apperrors.ErrNotFound) {
		return text("🤔 這個揪團已經不存在了喔!")
	}
	if err != nil {
		h.log.WithUserID(userID).WithError(err).Errorf("get group %s failed", groupID)
		return []messaging_api.MessageInterface{lineutil.ErrorMessage()}
	}

	// Collect members before the delete removes their rows, so the
	// cancellation notice can still reach them.
	members, err := h.db.ListMembers(ctx, groupID, storage.MemberApproved)
	if err != nil {
		h.log.WithUserID(userID).WithError(err).Warnf("list members of %s failed", groupID)
	}

	switch err := h.db.DeleteGroup(ctx, groupID, userID); {
	case errors.Is(err, apperrors.ErrNoPermission):
		return text("❌ 只有開團的人才能解散揪團喔!")
	case errors.Is(err, apperrors.ErrNotFound):
		return text("🤔 這個揪團已經不存在了喔!")
	case err != nil:
		h.log.WithUserID(userID).WithError(err).Errorf("delete group %s failed", groupID)
		return []messaging_api.MessageInterface{lineutil.ErrorMessage()}
	}

	for _, m := range members {
		if m.UserID == userID {
			continue
		}
		if err := h.notifier.PushText(m.UserID, "group_cancelled",
			"😥 不好意思，「"+g.Title+"」("+formatEventAt(g.EventAt)+") 取消了。\n"+
				"輸入「揪團」看看其他活動吧!"); err != nil {
			h.log.WithUserID(m.UserID).WithError(err).Errorf("notify cancelled member failed")
		}
	}
	return text("🗑️ 好的，「" + g.Title + "」已經解散，參加的朋友都通知過了。")
}

func (h *Handler) browseBubble(g storage.Group) messaging_api.FlexBubble {
	header := lineutil.NewHeroBox("👥 "+g.Title, formatEventAt(g.EventAt))
	body := lineutil.NewFlexBox("vertical",
		lineutil.NewKeyValueRow("地點", g.Location),
		lineutil.NewKeyValueRow("人數", fmt.Sprintf("%d/%d 人", g.CurrentParticipants, g.MaxParticipants)),
	).WithSpacing("sm").WithPaddingAll("lg")

	joinLabel := "我要參加"
	if g.CurrentParticipants >= g.MaxParticipants {
		joinLabel = "排候補"
	}
	footer := lineutil.NewFlexBox("vertical",
		lineutil.NewFlexButton(
			lineutil.NewPostbackActionWithDisplayText(joinLabel, joinLabel,
				bot.BuildPostback(actionJoinGroup, "id", g.ID)),
		).WithStyle("primary").WithColor(lineutil.ColorPrimary).WithHeight("sm").FlexButton,
	).WithPaddingAll("sm")

	return lineutil.NewBubble(header, body, footer)
}

func (h *Handler) memberBubble(g storage.Group, member *storage.GroupMember, userID string) messaging_api.FlexBubble {
	role := "已報名"
	if member.Status == storage.MemberPending {
		role = "候補中"
	}
	if g.OwnerID == userID {
		role = "主辦人"
	}

	header := lineutil.NewHeroBox("👥 "+g.Title, role)
	body := lineutil.NewFlexBox("vertical",
		lineutil.NewKeyValueRow("時間", formatEventAt(g.EventAt)),
		lineutil.NewKeyValueRow("地點", g.Location),
		lineutil.NewKeyValueRow("人數", fmt.Sprintf("%d/%d 人", g.CurrentParticipants, g.MaxParticipants)),
	).WithSpacing("sm").WithPaddingAll("lg")

	var button *lineutil.FlexButton
	if g.OwnerID == userID {
		button = lineutil.NewFlexButton(
			lineutil.NewPostbackActionWithDisplayText("解散揪團", "解散揪團",
				bot.BuildPostback(actionDeleteGroup, "id", g.ID)),
		).WithStyle("secondary").WithHeight("sm")
	} else {
		button = lineutil.NewFlexButton(
			lineutil.NewPostbackActionWithDisplayText("退出", "退出揪團",
				bot.BuildPostback(actionLeaveGroup, "id", g.ID)),
		).WithStyle("secondary").WithHeight("sm")
	}
	footer := lineutil.NewFlexBox("vertical", button.FlexButton).WithPaddingAll("sm")

	return lineutil.NewBubble(header, body, footer)
}

func formatEventAt(unix int64) string {
	return time.Unix(unix, 0).In(config.Taiwan).Format("2006/1/2 15:04")
}

func text(s string) []messaging_api.MessageInterface {
	return []messaging_api.MessageInterface{lineutil.NewTextMessage(s)}
}
