package lineutil

import (
	"fmt"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/peiyulin/carelink-linebot-go/internal/logger"
	"github.com/peiyulin/carelink-linebot-go/internal/metrics"
	"github.com/peiyulin/carelink-linebot-go/internal/ratelimit"
)

// Pusher sends push messages through the shared global rate limiter.
// Async jobs (itinerary delivery, reminder dispatch, waitlist promotion
// notices) all go through here rather than calling the API directly.
type Pusher struct {
	client  *messaging_api.MessagingApiAPI
	limiter *ratelimit.Limiter
	log     *logger.Logger
	metrics *metrics.Metrics
}

// NewPusher creates a pusher sharing the global API rate limiter.
func NewPusher(client *messaging_api.MessagingApiAPI, limiter *ratelimit.Limiter, log *logger.Logger, m *metrics.Metrics) *Pusher {
	return &Pusher{
		client:  client,
		limiter: limiter,
		log:     log.WithModule("pusher"),
		metrics: m,
	}
}

// Push sends messages to a user. kind labels the push in metrics
// (itinerary, reminder, promotion, failure_notice).
func (p *Pusher) Push(userID, kind string, messages ...messaging_api.MessageInterface) error {
	if len(messages) == 0 {
		return nil
	}

	if !p.limiter.Allow() {
		p.log.WithUserID(userID).Warnf("global rate limit reached, waiting before push")
		p.metrics.RecordRateLimiterDrop("global")
		p.limiter.WaitSimple()
	}

	if _, err := p.client.PushMessage(&messaging_api.PushMessageRequest{
		To:       userID,
		Messages: messages,
	}, ""); err != nil {
		p.metrics.RecordPush(kind, "error")
		return fmt.Errorf("push %s to user: %w", kind, err)
	}

	p.metrics.RecordPush(kind, "success")
	return nil
}

// PushText sends a single text message.
func (p *Pusher) PushText(userID, kind, text string) error {
	return p.Push(userID, kind, NewTextMessage(text))
}
