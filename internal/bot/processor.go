package bot

import (
	"context"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"github.com/peiyulin/carelink-linebot-go/internal/config"
	"github.com/peiyulin/carelink-linebot-go/internal/flow"
	"github.com/peiyulin/carelink-linebot-go/internal/keyword"
	"github.com/peiyulin/carelink-linebot-go/internal/lineutil"
	"github.com/peiyulin/carelink-linebot-go/internal/logger"
	"github.com/peiyulin/carelink-linebot-go/internal/metrics"
	"github.com/peiyulin/carelink-linebot-go/internal/ratelimit"
	"github.com/peiyulin/carelink-linebot-go/internal/session"
	"github.com/peiyulin/carelink-linebot-go/internal/storage"
)

// Processor is the dispatch orchestrator. For each inbound event it
// acquires the user's lock, loads the session, and branches: active flow
// input goes to the flow engine, everything else through the keyword
// router to a module. Nothing escapes it; panics and errors degrade to
// the generic fallback message.
type Processor struct {
	registry    *Registry
	sessions    *session.Store
	engine      *flow.Engine
	router      *keyword.Router
	userLimiter *ratelimit.PerKeyLimiter
	db          *storage.DB
	log         *logger.Logger
	metrics     *metrics.Metrics

	dispatchTimeout  time.Duration
	maxTextMsgLength int
}

// ProcessorConfig holds the processor's collaborators
type ProcessorConfig struct {
	Registry    *Registry
	Sessions    *session.Store
	Engine      *flow.Engine
	Router      *keyword.Router
	UserLimiter *ratelimit.PerKeyLimiter
	DB          *storage.DB
	Logger      *logger.Logger
	Metrics     *metrics.Metrics
	BotConfig   *config.BotConfig
}

// NewProcessor creates the dispatch orchestrator.
func NewProcessor(cfg ProcessorConfig) *Processor {
	return &Processor{
		registry:         cfg.Registry,
		sessions:         cfg.Sessions,
		engine:           cfg.Engine,
		router:           cfg.Router,
		userLimiter:      cfg.UserLimiter,
		db:               cfg.DB,
		log:              cfg.Logger.WithModule("processor"),
		metrics:          cfg.Metrics,
		dispatchTimeout:  cfg.BotConfig.WebhookTimeout,
		maxTextMsgLength: cfg.BotConfig.MaxMessageLength,
	}
}

// ProcessMessage handles a message event and returns the reply messages.
func (p *Processor) ProcessMessage(ctx context.Context, event webhook.MessageEvent) (msgs []messaging_api.MessageInterface, err error) {
	defer p.recoverToFallback(&msgs)

	userID := UserIDFromSource(event.Source)
	if userID == "" {
		return nil, nil
	}

	if !p.userLimiter.Allow(userID) {
		p.metrics.RecordRateLimiterDrop("user")
		return []messaging_api.MessageInterface{
			lineutil.NewTextMessage("🐢 訊息有點太多囉，請稍等一下再試喔!"),
		}, nil
	}

	switch msg := event.Message.(type) {
	case webhook.TextMessageContent:
		return p.processText(ctx, userID, msg.Text)
	case webhook.StickerMessageContent:
		if IsPersonalChat(event.Source) {
			return p.withTouch(ctx, userID, []messaging_api.MessageInterface{
				lineutil.NewTextMessage("😊 收到您的貼圖了!需要幫忙的話請輸入「幫助」喔!"),
			}), nil
		}
		return nil, nil
	case webhook.ImageMessageContent, webhook.VideoMessageContent,
		webhook.AudioMessageContent, webhook.FileMessageContent,
		webhook.LocationMessageContent:
		if IsPersonalChat(event.Source) {
			return p.withTouch(ctx, userID, []messaging_api.MessageInterface{
				lineutil.NewTextMessage("📎 目前還看不懂這種訊息，請用文字跟我說喔!輸入「幫助」可以看功能介紹。"),
			}), nil
		}
		return nil, nil
	default:
		return nil, nil
	}
}

// processText runs the dispatch pipeline for free text. The user's lock
// is held across load, handle and persist so concurrent deliveries for
// the same user cannot interleave.
func (p *Processor) processText(ctx context.Context, userID, text string) ([]messaging_api.MessageInterface, error) {
	text = sanitizeText(text)
	if text == "" {
		return nil, nil
	}
	if len(text) > p.maxTextMsgLength {
		return []messaging_api.MessageInterface{
			lineutil.NewTextMessage("❌ 訊息太長了，請縮短之後再傳一次喔!"),
		}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.dispatchTimeout)
	defer cancel()

	unlock := p.sessions.Lock(userID)
	defer unlock()

	sess, expiredFlow, err := p.sessions.Get(ctx, userID)
	if err != nil {
		p.log.WithUserID(userID).WithError(err).Errorf("load session failed")
		p.metrics.RecordDispatch("session", "error")
		return p.fallback(), nil
	}

	// A flow whose deadline passed gets the distinct timeout notice; the
	// input that revealed the expiry is NOT reinterpreted as a command.
	if expiredFlow != "" {
		p.metrics.RecordDispatch("flow", "expired")
		p.metrics.RecordFlowOutcome(expiredFlow, "expired")
		return p.withTouch(ctx, userID, []messaging_api.MessageInterface{
			lineutil.NewTextMessage(flow.ExpiredMessage),
		}), nil
	}

	if sess.FlowName != "" {
		reply, err := p.engine.HandleInput(ctx, sess, text)
		if err != nil {
			p.log.WithUserID(userID).WithError(err).Errorf("flow %s input failed", sess.FlowName)
			p.metrics.RecordDispatch("flow", "error")
			return p.withTouch(ctx, userID, p.fallback()), nil
		}
		p.metrics.RecordDispatch("flow", "success")
		return p.withTouch(ctx, userID, []messaging_api.MessageInterface{
			lineutil.NewTextMessage(reply),
		}), nil
	}

	result := p.router.Route(flow.Normalize(text))
	if result.Kind == keyword.KindHelp {
		p.metrics.RecordDispatch("keyword", "help")
		return p.withTouch(ctx, userID, p.helpMessages()), nil
	}

	handler := p.registry.ForKind(result.Kind)
	if handler == nil {
		p.log.WithField("kind", string(result.Kind)).Warnf("no module for routed kind")
		p.metrics.RecordDispatch("keyword", "unrouted")
		return p.withTouch(ctx, userID, p.helpMessages()), nil
	}

	msgs := handler.HandleCommand(ctx, userID, result)
	p.metrics.RecordDispatch("keyword", "success")
	if len(msgs) == 0 {
		return p.withTouch(ctx, userID, nil), nil
	}
	return p.withTouch(ctx, userID, msgs), nil
}

// ProcessPostback handles a postback event.
func (p *Processor) ProcessPostback(ctx context.Context, event webhook.PostbackEvent) (msgs []messaging_api.MessageInterface, err error) {
	defer p.recoverToFallback(&msgs)

	userID := UserIDFromSource(event.Source)
	if userID == "" {
		return nil, nil
	}

	if !p.userLimiter.Allow(userID) {
		p.metrics.RecordRateLimiterDrop("user")
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, p.dispatchTimeout)
	defer cancel()

	unlock := p.sessions.Lock(userID)
	defer unlock()

	pb, parseErr := ParsePostback(event.Postback.Data)
	if parseErr != nil {
		p.log.WithUserID(userID).WithError(parseErr).Warnf("bad postback data")
		p.metrics.RecordDispatch("postback", "bad_data")
		return p.withTouch(ctx, userID, []messaging_api.MessageInterface{
			lineutil.NewTextMessage("🤔 這個按鈕好像過期了，請重新操作一次喔!"),
		}), nil
	}

	handler := p.registry.ForAction(pb.Action)
	if handler == nil {
		p.log.WithUserID(userID).WithField("action", pb.Action).Warnf("unknown postback action")
		p.metrics.RecordDispatch("postback", "unknown_action")
		return p.withTouch(ctx, userID, []messaging_api.MessageInterface{
			lineutil.NewTextMessage("🤔 這個按鈕好像過期了，請重新操作一次喔!"),
		}), nil
	}

	msgs = handler.HandlePostback(ctx, userID, pb)
	p.metrics.RecordDispatch("postback", "success")
	return p.withTouch(ctx, userID, msgs), nil
}

// ProcessFollow handles a follow event with the welcome message set.
func (p *Processor) ProcessFollow(ctx context.Context, event webhook.FollowEvent) (msgs []messaging_api.MessageInterface, err error) {
	defer p.recoverToFallback(&msgs)

	userID := UserIDFromSource(event.Source)
	if userID == "" {
		return nil, nil
	}
	if err := p.db.UpsertUser(ctx, userID, ""); err != nil {
		p.log.WithUserID(userID).WithError(err).Errorf("upsert user on follow failed")
	}
	p.log.WithUserID(userID).Infof("new follower")

	welcome := lineutil.NewTextMessage(
		"👋 您好，我是「CareLink 長照小幫手」!\n\n" +
			"我可以幫您:\n" +
			"💊 健康提醒 — 輸入「健康」\n" +
			"🗺️ 規劃旅遊 — 輸入「台南3天」這樣的句子\n" +
			"👥 揪團出遊 — 輸入「揪團」\n" +
			"🎨 活動推薦 — 輸入「活動」\n" +
			"🌤️ 查天氣 — 輸入「天氣 台北」\n" +
			"👨‍👩‍👧 家人聯絡 — 輸入「家人」\n\n" +
			"隨時輸入「幫助」可以再看一次這份介紹喔!")
	return []messaging_api.MessageInterface{welcome}, nil
}

// helpMessages is the fallback menu for unmatched text.
func (p *Processor) helpMessages() []messaging_api.MessageInterface {
	return []messaging_api.MessageInterface{
		lineutil.NewTextMessageWithQuickReply(
			"🙋 需要什麼服務呢?可以點下面的按鈕，或直接輸入:\n\n"+
				"「健康」看健康提醒\n"+
				"「台南3天」這樣的句子規劃旅遊\n"+
				"「揪團」找伴出遊\n"+
				"「活動」看活動推薦\n"+
				"「天氣 台北」查天氣\n"+
				"「家人」看家人聯絡",
			[]lineutil.QuickReplyItem{
				{Label: "💊 健康", Text: "健康"},
				{Label: "👥 揪團", Text: "揪團"},
				{Label: "🎨 活動", Text: "活動"},
				{Label: "🌤️ 天氣", Text: "天氣 台北"},
				{Label: "👨‍👩‍👧 家人", Text: "家人"},
			}),
	}
}

func (p *Processor) fallback() []messaging_api.MessageInterface {
	return []messaging_api.MessageInterface{lineutil.ErrorMessage()}
}

// withTouch records inbound activity for the user and passes msgs
// through. Every handled inbound updates last activity regardless of
// which branch served it.
func (p *Processor) withTouch(ctx context.Context, userID string, msgs []messaging_api.MessageInterface) []messaging_api.MessageInterface {
	if err := p.sessions.Touch(ctx, userID); err != nil {
		p.log.WithUserID(userID).WithError(err).Warnf("touch session failed")
	}
	return msgs
}

// recoverToFallback is the outermost error boundary: a panicking module
// becomes a generic fallback reply, never a crashed process.
func (p *Processor) recoverToFallback(msgs *[]messaging_api.MessageInterface) {
	if r := recover(); r != nil {
		p.log.WithField("panic", r).Errorf("panic during dispatch")
		p.metrics.RecordDispatch("panic", "recovered")
		*msgs = p.fallback()
	}
}
