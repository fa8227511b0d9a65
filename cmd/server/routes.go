// Package main provides the CareLink bot server entry point.
package main

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/peiyulin/carelink-linebot-go/internal/config"
	"github.com/peiyulin/carelink-linebot-go/internal/storage"
	"github.com/peiyulin/carelink-linebot-go/internal/webhook"
)

// setupRoutes configures all HTTP routes
func setupRoutes(router *gin.Engine, cfg *config.Config, webhookHandler *webhook.Handler, db *storage.DB, registry *prometheus.Registry) {
	// Liveness probe. Only checks that the process is serving; never
	// touches dependencies.
	healthHandler := func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
	router.GET("/healthz", healthHandler)
	router.HEAD("/healthz", healthHandler)

	// Readiness probe with a full dependency check.
	readyHandler := func(c *gin.Context) {
		if err := db.Ready(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "not ready",
				"reason": err.Error(),
			})
			return
		}

		activeFlows, _ := db.CountActiveFlows(c.Request.Context())

		c.JSON(http.StatusOK, gin.H{
			"status":       "ready",
			"database":     "connected",
			"active_flows": activeFlows,
			"features": gin.H{
				"ai_planner": cfg.HasAIProvider(),
				"weather":    cfg.OpenWeatherAPIKey != "",
				"places":     cfg.GooglePlacesAPIKey != "",
			},
		})
	}
	router.GET("/ready", readyHandler)
	router.HEAD("/ready", readyHandler)

	// LINE webhook callback endpoint
	router.POST("/callback", webhookHandler.Handle)

	// Prometheus metrics endpoint, behind basic auth when a password is set.
	metricsHandler := gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	if cfg.MetricsPassword != "" {
		authorized := router.Group("/", gin.BasicAuth(gin.Accounts{
			cfg.MetricsUsername: cfg.MetricsPassword,
		}))
		authorized.GET("/metrics", metricsHandler)
	} else {
		router.GET("/metrics", metricsHandler)
	}
}
