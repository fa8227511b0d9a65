package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/peiyulin/carelink-linebot-go/internal/bot"
	"github.com/peiyulin/carelink-linebot-go/internal/config"
	"github.com/peiyulin/carelink-linebot-go/internal/flow"
	"github.com/peiyulin/carelink-linebot-go/internal/keyword"
	"github.com/peiyulin/carelink-linebot-go/internal/logger"
	"github.com/peiyulin/carelink-linebot-go/internal/metrics"
	"github.com/peiyulin/carelink-linebot-go/internal/ratelimit"
	"github.com/peiyulin/carelink-linebot-go/internal/session"
	"github.com/peiyulin/carelink-linebot-go/internal/storage"
)

const testChannelSecret = "test_channel_secret"

func setupTestHandler(t *testing.T) *Handler {
	t.Helper()

	db, err := storage.NewTestDB()
	if err != nil {
		t.Fatalf("NewTestDB() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	log := logger.New("error")
	m := metrics.New(prometheus.NewRegistry())
	store := session.NewStore(db, log)
	engine := flow.NewEngine(store, log, m)

	userLimiter := ratelimit.NewPerKey(ratelimit.PerKeyConfig{MaxTokens: 100, RefillRate: 100})
	t.Cleanup(userLimiter.Stop)

	botCfg := &config.BotConfig{
		WebhookTimeout:      30 * time.Second,
		MaxMessageLength:    20000,
		MaxMessagesPerReply: 5,
		MaxEventsPerWebhook: 100,
		MinReplyTokenLength: 10,
	}

	processor := bot.NewProcessor(bot.ProcessorConfig{
		Registry:    bot.NewRegistry(),
		Sessions:    store,
		Engine:      engine,
		Router:      keyword.NewRouter(),
		UserLimiter: userLimiter,
		DB:          db,
		Logger:      log,
		Metrics:     m,
		BotConfig:   botCfg,
	})

	client, err := messaging_api.NewMessagingApiAPI("test_channel_token")
	if err != nil {
		t.Fatalf("NewMessagingApiAPI() error = %v", err)
	}

	return NewHandler(HandlerConfig{
		ChannelSecret: testChannelSecret,
		Client:        client,
		Processor:     processor,
		RateLimiter:   ratelimit.New(100, 100),
		BotConfig:     botCfg,
		Metrics:       m,
		Logger:        log,
	})
}

func signBody(body []byte) string {
	mac := hmac.New(sha256.New, []byte(testChannelSecret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestHandleInvalidSignature(t *testing.T) {
	handler := setupTestHandler(t)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/callback", handler.Handle)

	body := []byte(`{"events":[]}`)
	req := httptest.NewRequest(http.MethodPost, "/callback", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Line-Signature", "invalid_signature")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestHandleEmptyBatchAcksImmediately(t *testing.T) {
	handler := setupTestHandler(t)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/callback", handler.Handle)

	body := []byte(`{"destination":"U0000000000000000000000000000000","events":[]}`)
	req := httptest.NewRequest(http.MethodPost, "/callback", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Line-Signature", signBody(body))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := handler.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}

func TestReplyTokenOf(t *testing.T) {
	msg := webhook.MessageEvent{ReplyToken: "token_message_1"}
	if got := replyTokenOf(msg); got != "token_message_1" {
		t.Errorf("replyTokenOf(message) = %q", got)
	}

	pb := webhook.PostbackEvent{ReplyToken: "token_postback"}
	if got := replyTokenOf(pb); got != "token_postback" {
		t.Errorf("replyTokenOf(postback) = %q", got)
	}

	if got := replyTokenOf(webhook.UnfollowEvent{}); got != "" {
		t.Errorf("replyTokenOf(unfollow) = %q, want empty", got)
	}
}

func TestShouldShowLoading(t *testing.T) {
	personal := webhook.MessageEvent{Source: webhook.UserSource{UserId: "U1"}}
	if !shouldShowLoading(personal) {
		t.Error("personal chat message should show loading")
	}

	group := webhook.MessageEvent{Source: webhook.GroupSource{GroupId: "G1", UserId: "U1"}}
	if shouldShowLoading(group) {
		t.Error("group chat message should not show loading")
	}

	if shouldShowLoading(webhook.FollowEvent{Source: webhook.UserSource{UserId: "U1"}}) {
		t.Error("follow event should not show loading")
	}
}

func TestShutdownHonorsContext(t *testing.T) {
	handler := setupTestHandler(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// No in-flight work, so even a cancelled context returns promptly.
	_ = handler.Shutdown(ctx)
}
