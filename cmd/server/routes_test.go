package main

import (
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peiyulin/carelink-linebot-go/internal/bot"
	"github.com/peiyulin/carelink-linebot-go/internal/config"
	"github.com/peiyulin/carelink-linebot-go/internal/flow"
	"github.com/peiyulin/carelink-linebot-go/internal/keyword"
	"github.com/peiyulin/carelink-linebot-go/internal/logger"
	"github.com/peiyulin/carelink-linebot-go/internal/metrics"
	"github.com/peiyulin/carelink-linebot-go/internal/ratelimit"
	"github.com/peiyulin/carelink-linebot-go/internal/session"
	"github.com/peiyulin/carelink-linebot-go/internal/storage"
	"github.com/peiyulin/carelink-linebot-go/internal/webhook"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestRouter(t *testing.T, cfg *config.Config) *gin.Engine {
	t.Helper()

	db, err := storage.NewTestDB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	log := logger.New("error")
	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	store := session.NewStore(db, log)
	engine := flow.NewEngine(store, log, m)

	userLimiter := ratelimit.NewPerKey(ratelimit.PerKeyConfig{
		MaxTokens:     100,
		RefillRate:    100,
		CleanupPeriod: time.Minute,
	})
	t.Cleanup(userLimiter.Stop)

	processor := bot.NewProcessor(bot.ProcessorConfig{
		Registry:    bot.NewRegistry(),
		Sessions:    store,
		Engine:      engine,
		Router:      keyword.NewRouter(),
		UserLimiter: userLimiter,
		DB:          db,
		Logger:      log,
		Metrics:     m,
		BotConfig:   &cfg.Bot,
	})

	client, err := messaging_api.NewMessagingApiAPI("test_channel_token")
	require.NoError(t, err)

	webhookHandler := webhook.NewHandler(webhook.HandlerConfig{
		ChannelSecret: "test_channel_secret",
		Client:        client,
		Processor:     processor,
		RateLimiter:   ratelimit.New(100, 100),
		BotConfig:     &cfg.Bot,
		Metrics:       m,
		Logger:        log,
	})

	router := gin.New()
	setupRoutes(router, cfg, webhookHandler, db, registry)
	return router
}

func testConfig() *config.Config {
	return &config.Config{
		MetricsUsername: "prometheus",
		Bot: config.BotConfig{
			WebhookTimeout:      5 * time.Second,
			MaxMessageLength:    500,
			MaxMessagesPerReply: 5,
			MaxEventsPerWebhook: 100,
			MinReplyTokenLength: 10,
		},
	}
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(t, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestReady(t *testing.T) {
	router := newTestRouter(t, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `"status":"ready"`)
	assert.Contains(t, body, `"database":"connected"`)
	// No API keys configured, so every feature reports disabled.
	assert.Contains(t, body, `"ai_planner":false`)
	assert.Contains(t, body, `"weather":false`)
	assert.Contains(t, body, `"places":false`)
}

func TestMetricsOpenWithoutPassword(t *testing.T) {
	router := newTestRouter(t, testConfig())

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsBasicAuth(t *testing.T) {
	cfg := testConfig()
	cfg.MetricsPassword = "secret123"
	router := newTestRouter(t, cfg)

	t.Run("missing credentials", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Basic realm=")
	})

	t.Run("wrong credentials", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("prometheus:wrongpass")))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("valid credentials", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		req.Header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte("prometheus:secret123")))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}
