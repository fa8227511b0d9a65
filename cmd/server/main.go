// Package main provides the CareLink bot server entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/peiyulin/carelink-linebot-go/internal/bot"
	"github.com/peiyulin/carelink-linebot-go/internal/bot/activity"
	"github.com/peiyulin/carelink-linebot-go/internal/bot/family"
	"github.com/peiyulin/carelink-linebot-go/internal/bot/group"
	"github.com/peiyulin/carelink-linebot-go/internal/bot/health"
	"github.com/peiyulin/carelink-linebot-go/internal/bot/tour"
	"github.com/peiyulin/carelink-linebot-go/internal/bot/weather"
	"github.com/peiyulin/carelink-linebot-go/internal/config"
	"github.com/peiyulin/carelink-linebot-go/internal/flow"
	"github.com/peiyulin/carelink-linebot-go/internal/genai"
	"github.com/peiyulin/carelink-linebot-go/internal/keyword"
	"github.com/peiyulin/carelink-linebot-go/internal/lineutil"
	"github.com/peiyulin/carelink-linebot-go/internal/logger"
	"github.com/peiyulin/carelink-linebot-go/internal/metrics"
	"github.com/peiyulin/carelink-linebot-go/internal/openweather"
	"github.com/peiyulin/carelink-linebot-go/internal/places"
	"github.com/peiyulin/carelink-linebot-go/internal/ratelimit"
	"github.com/peiyulin/carelink-linebot-go/internal/sentry"
	"github.com/peiyulin/carelink-linebot-go/internal/session"
	"github.com/peiyulin/carelink-linebot-go/internal/storage"
	"github.com/peiyulin/carelink-linebot-go/internal/webhook"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	log.Info("Starting CareLink bot server")

	if err := sentry.Initialize(sentry.Config{
		DSN:         cfg.SentryDSN,
		Environment: getEnvName(),
	}); err != nil {
		log.WithError(err).Warn("Sentry initialization failed, error tracking disabled")
	} else if sentry.IsEnabled() {
		log.Info("Sentry error tracking enabled")
		defer sentry.Flush(2 * time.Second)
	}

	db, err := storage.New(cfg.SQLitePath())
	if err != nil {
		log.WithError(err).Error("Failed to open database")
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()
	log.WithField("path", cfg.SQLitePath()).Info("Database connected")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	registry.MustRegister(collectors.NewBuildInfoCollector())
	m := metrics.New(registry)
	log.Info("Metrics initialized")

	store := session.NewStore(db, log)
	engine := flow.NewEngine(store, log, m)
	router := keyword.NewRouter()

	client, err := messaging_api.NewMessagingApiAPI(cfg.LineChannelToken)
	if err != nil {
		log.WithError(err).Error("Failed to create messaging API client")
		os.Exit(1)
	}

	globalLimiter := ratelimit.New(cfg.Bot.GlobalRateRPS, cfg.Bot.GlobalRateRPS)
	pusher := lineutil.NewPusher(client, globalLimiter, log, m)

	generator, err := genai.New(context.Background(), genai.Config{
		GeminiAPIKey: cfg.GeminiAPIKey,
		GeminiModel:  cfg.GeminiModel,
		OpenAIAPIKey: cfg.OpenAIAPIKey,
		OpenAIModel:  cfg.OpenAIModel,
	}, log, m)
	if err != nil {
		log.WithError(err).Warn("AI generator setup failed, itinerary planning disabled")
	} else if cfg.HasAIProvider() {
		log.Info("AI itinerary generation enabled")
	} else {
		log.Info("No AI provider configured, itinerary planning disabled")
	}

	weatherClient := openweather.New(cfg.OpenWeatherAPIKey, cfg.APITimeout, cfg.APIMaxRetries, m)
	placesClient := places.New(cfg.GooglePlacesAPIKey, cfg.APITimeout, cfg.APIMaxRetries, m)
	log.WithField("weather_enabled", weatherClient.Enabled()).
		WithField("places_enabled", placesClient.Enabled()).
		Info("External API clients created")

	tourLimiter := ratelimit.New(cfg.Bot.TourRateLimitBurst, cfg.Bot.TourRateRefillPerHour/3600.0)

	healthHandler := health.New(db, engine, log, cfg.Bot.ReminderFlowTimeout)
	groupHandler := group.New(db, engine, pusher, log, cfg.Bot.FlowTimeout)
	tourHandler := tour.New(db, generator, pusher, tourLimiter, log, config.TourGeneration)
	activityHandler := activity.New(db, placesClient, log)
	weatherHandler := weather.New(weatherClient, db, log, time.Duration(cfg.Bot.WeatherCacheTTLMinutes)*time.Minute)
	familyHandler := family.New(db, engine, log, cfg.Bot.FlowTimeout)

	botRegistry := bot.NewRegistry()
	botRegistry.Register(healthHandler)
	botRegistry.Register(groupHandler)
	botRegistry.Register(tourHandler)
	botRegistry.Register(activityHandler)
	botRegistry.Register(weatherHandler)
	botRegistry.Register(familyHandler)
	log.Info("Bot modules registered")

	userLimiter := ratelimit.NewPerKey(ratelimit.PerKeyConfig{
		MaxTokens:     cfg.Bot.UserRateLimitBurst,
		RefillRate:    cfg.Bot.UserRateLimitRefillPerSec,
		CleanupPeriod: config.RateLimiterCleanupInterval,
	})
	defer userLimiter.Stop()

	processor := bot.NewProcessor(bot.ProcessorConfig{
		Registry:    botRegistry,
		Sessions:    store,
		Engine:      engine,
		Router:      router,
		UserLimiter: userLimiter,
		DB:          db,
		Logger:      log,
		Metrics:     m,
		BotConfig:   &cfg.Bot,
	})

	webhookHandler := webhook.NewHandler(webhook.HandlerConfig{
		ChannelSecret: cfg.LineChannelSecret,
		Client:        client,
		Processor:     processor,
		RateLimiter:   globalLimiter,
		BotConfig:     &cfg.Bot,
		Metrics:       m,
		Logger:        log,
	})
	log.Info("Webhook handler created")

	if cfg.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	ginRouter := gin.New()
	ginRouter.Use(gin.Recovery())
	ginRouter.Use(securityHeadersMiddleware())
	ginRouter.Use(loggingMiddleware(log))
	if sentry.IsEnabled() {
		ginRouter.Use(sentryMiddleware())
	}

	setupRoutes(ginRouter, cfg, webhookHandler, db, registry)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      ginRouter,
		ReadTimeout:  config.WebhookHTTPRead,
		WriteTimeout: config.WebhookHTTPWrite,
		IdleTimeout:  config.WebhookHTTPIdle,
	}

	jobCtx, cancelJobs := context.WithCancel(context.Background())
	defer cancelJobs()

	seedActivities(jobCtx, db, log)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.WithField("panic", r).Error("Panic in reminder dispatch goroutine")
			}
		}()
		dispatchReminders(jobCtx, db, pusher, log)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.WithField("panic", r).Error("Panic in session sweep goroutine")
			}
		}()
		sweepSessions(jobCtx, store, log)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer func() {
			if r := recover(); r != nil {
				log.WithField("panic", r).Error("Panic in flow gauge goroutine")
			}
		}()
		updateActiveFlowGauge(jobCtx, store, m, log)
	}()

	go func() {
		log.WithField("port", cfg.Port).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Server failed")
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}

	// Let in-flight webhook batches and detached itinerary jobs finish
	// before the database goes away.
	if err := webhookHandler.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("Timed out waiting for webhook processing")
	}
	tourHandler.Wait()

	cancelJobs()
	jobsDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(jobsDone)
	}()

	select {
	case <-jobsDone:
		log.Info("Background jobs stopped")
	case <-time.After(5 * time.Second):
		log.Warn("Timeout waiting for background jobs")
	}

	if err := db.Close(); err != nil {
		log.WithError(err).Error("Failed to close database")
	}

	log.Info("Server stopped")
}

func getEnvName() string {
	if env := os.Getenv("APP_ENV"); env != "" {
		return env
	}
	return "production"
}
