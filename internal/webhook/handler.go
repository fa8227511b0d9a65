// Package webhook receives LINE webhook callbacks, acknowledges them
// immediately and hands the events to the dispatch pipeline in the
// background.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"github.com/peiyulin/carelink-linebot-go/internal/bot"
	"github.com/peiyulin/carelink-linebot-go/internal/config"
	"github.com/peiyulin/carelink-linebot-go/internal/logger"
	"github.com/peiyulin/carelink-linebot-go/internal/metrics"
	"github.com/peiyulin/carelink-linebot-go/internal/ratelimit"
)

// Handler handles LINE webhook callbacks.
type Handler struct {
	channelSecret string
	client        *messaging_api.MessagingApiAPI
	processor     *bot.Processor
	rateLimiter   *ratelimit.Limiter
	metrics       *metrics.Metrics
	log           *logger.Logger
	wg            sync.WaitGroup

	// LINE API constraints (from config.BotConfig)
	maxMessagesPerReply int
	maxEventsPerWebhook int
	minReplyTokenLength int
}

// HandlerConfig holds the collaborators for a Handler.
type HandlerConfig struct {
	ChannelSecret string
	Client        *messaging_api.MessagingApiAPI
	Processor     *bot.Processor
	RateLimiter   *ratelimit.Limiter // global API rate limiter, shared with the pusher
	BotConfig     *config.BotConfig
	Metrics       *metrics.Metrics
	Logger        *logger.Logger
}

// NewHandler creates a webhook handler.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		channelSecret:       cfg.ChannelSecret,
		client:              cfg.Client,
		processor:           cfg.Processor,
		rateLimiter:         cfg.RateLimiter,
		metrics:             cfg.Metrics,
		log:                 cfg.Logger.WithModule("webhook"),
		maxMessagesPerReply: cfg.BotConfig.MaxMessagesPerReply,
		maxEventsPerWebhook: cfg.BotConfig.MaxEventsPerWebhook,
		minReplyTokenLength: cfg.BotConfig.MinReplyTokenLength,
	}
}

// Handle is the Gin handler for the webhook endpoint. LINE expects a
// fast 200; the events are processed after the response is written.
func (h *Handler) Handle(c *gin.Context) {
	cb, err := webhook.ParseRequest(h.channelSecret, c.Request)
	if err != nil {
		if errors.Is(err, webhook.ErrInvalidSignature) {
			h.log.Warn("invalid webhook signature")
			c.Status(http.StatusBadRequest)
		} else {
			h.log.WithError(err).Error("parse webhook request failed")
			c.Status(http.StatusInternalServerError)
		}
		return
	}

	c.Status(http.StatusOK)

	start := time.Now()
	h.metrics.RecordWebhook("batch", "received", 0)

	if len(cb.Events) > h.maxEventsPerWebhook {
		h.log.WithField("event_count", len(cb.Events)).
			WithField("limit", h.maxEventsPerWebhook).
			Warn("too many events in webhook batch, truncating")
		cb.Events = cb.Events[:h.maxEventsPerWebhook]
	}

	// Copy so the batch survives the request lifecycle.
	events := make([]webhook.EventInterface, len(cb.Events))
	copy(events, cb.Events)

	h.wg.Go(func() {
		defer func() {
			if r := recover(); r != nil {
				h.log.WithField("panic", r).Error("panic in async event processing")
			}
		}()

		ctx := context.Background()
		for _, event := range events {
			h.processEvent(ctx, event, start)
		}
	})
}

// processEvent handles one webhook event after the HTTP response.
func (h *Handler) processEvent(ctx context.Context, event webhook.EventInterface, batchStart time.Time) {
	eventStart := time.Now()

	log := h.log
	if id, ts, redelivery := eventMeta(event); id != "" {
		log = log.WithField("event_id", id)
		if redelivery != nil {
			log = log.WithField("is_redelivery", *redelivery)
		}
		if ts > 0 {
			log = log.WithField("event_timestamp_ms", ts)
		}
	}

	if shouldShowLoading(event) {
		if err := h.showLoadingAnimation(event); err != nil {
			log.WithError(err).Warn("show loading animation failed")
		}
	}

	var (
		eventType string
		messages  []messaging_api.MessageInterface
		err       error
	)

	switch e := event.(type) {
	case webhook.MessageEvent:
		eventType = "message"
		messages, err = h.processor.ProcessMessage(ctx, e)
	case webhook.PostbackEvent:
		eventType = "postback"
		messages, err = h.processor.ProcessPostback(ctx, e)
	case webhook.FollowEvent:
		eventType = "follow"
		messages, err = h.processor.ProcessFollow(ctx, e)
	case webhook.UnfollowEvent:
		log.Info("user unfollowed")
		return
	default:
		log.WithField("event_type", fmt.Sprintf("%T", e)).Debug("unsupported event type")
		return
	}

	status := "success"
	if err != nil {
		status = "error"
		log.WithError(err).WithField("event_type", eventType).Error("handle event failed")
	}
	h.metrics.RecordWebhook(eventType, status, time.Since(eventStart).Seconds())

	if len(messages) > 0 && err == nil {
		h.reply(event, messages, eventType, log)
	}

	log.WithField("event_type", eventType).
		WithField("event_duration_ms", time.Since(eventStart).Milliseconds()).
		WithField("batch_duration_ms", time.Since(batchStart).Milliseconds()).
		Debug("event processed")
}

// reply sends the reply batch, respecting the per-reply message cap and
// the global API rate limit.
func (h *Handler) reply(event webhook.EventInterface, messages []messaging_api.MessageInterface, eventType string, log *logger.Logger) {
	if len(messages) > h.maxMessagesPerReply {
		log.WithField("message_count", len(messages)).
			WithField("limit", h.maxMessagesPerReply).
			Warn("reply exceeds message cap, truncating")
		messages = messages[:h.maxMessagesPerReply]
	}

	replyToken := replyTokenOf(event)
	if replyToken == "" {
		log.Debug("empty reply token, skipping reply")
		return
	}
	if len(replyToken) < h.minReplyTokenLength {
		log.WithField("token_length", len(replyToken)).Debug("invalid reply token format")
		return
	}

	if !h.rateLimiter.Allow() {
		log.Warn("global rate limit reached, waiting before reply")
		h.metrics.RecordRateLimiterDrop("global")
		h.rateLimiter.WaitSimple()
	}

	if _, err := h.client.ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   messages,
	}); err != nil {
		if strings.Contains(err.Error(), "Invalid reply token") {
			log.WithError(err).Debug("reply token already used or expired")
		} else {
			log.WithError(err).Error("send reply failed")
		}
		h.metrics.RecordWebhook(eventType, "reply_error", 0)
	}
}

// showLoadingAnimation shows the typing indicator in 1:1 chats while the
// event is being processed.
func (h *Handler) showLoadingAnimation(event webhook.EventInterface) error {
	chatID := bot.ChatIDFromSource(sourceOf(event))
	if chatID == "" {
		return nil
	}

	// loadingSeconds must be 5-60 and a multiple of 5.
	if _, err := h.client.ShowLoadingAnimation(&messaging_api.ShowLoadingAnimationRequest{
		ChatId:         chatID,
		LoadingSeconds: 60,
	}); err != nil {
		return fmt.Errorf("show loading animation: %w", err)
	}
	return nil
}

// shouldShowLoading reports whether the event deserves a typing
// indicator. Only 1:1 chats support the animation, and only events that
// produce a reply need one.
func shouldShowLoading(event webhook.EventInterface) bool {
	switch e := event.(type) {
	case webhook.MessageEvent:
		return bot.IsPersonalChat(e.Source)
	case webhook.PostbackEvent:
		return bot.IsPersonalChat(e.Source)
	default:
		return false
	}
}

func eventMeta(event webhook.EventInterface) (string, int64, *bool) {
	switch e := event.(type) {
	case webhook.MessageEvent:
		return e.WebhookEventId, e.Timestamp, redeliveryOf(e.DeliveryContext)
	case webhook.PostbackEvent:
		return e.WebhookEventId, e.Timestamp, redeliveryOf(e.DeliveryContext)
	case webhook.FollowEvent:
		return e.WebhookEventId, e.Timestamp, redeliveryOf(e.DeliveryContext)
	case webhook.UnfollowEvent:
		return e.WebhookEventId, e.Timestamp, redeliveryOf(e.DeliveryContext)
	default:
		return "", 0, nil
	}
}

func redeliveryOf(dc *webhook.DeliveryContext) *bool {
	if dc == nil {
		return nil
	}
	val := dc.IsRedelivery
	return &val
}

func replyTokenOf(event webhook.EventInterface) string {
	switch e := event.(type) {
	case webhook.MessageEvent:
		return e.ReplyToken
	case webhook.PostbackEvent:
		return e.ReplyToken
	case webhook.FollowEvent:
		return e.ReplyToken
	default:
		return ""
	}
}

func sourceOf(event webhook.EventInterface) webhook.SourceInterface {
	switch e := event.(type) {
	case webhook.MessageEvent:
		return e.Source
	case webhook.PostbackEvent:
		return e.Source
	case webhook.FollowEvent:
		return e.Source
	default:
		return nil
	}
}

// Shutdown waits for in-flight event processing to finish, or until the
// context expires.
func (h *Handler) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.wg.Wait()
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
