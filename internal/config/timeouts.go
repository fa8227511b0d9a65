// Package config provides centralized timeout constants for the application.
//
// LINE webhook timing requirements:
//   - Reply token: valid for a narrow window, reply ASAP for good UX
//   - Webhook response: LINE expects quick acknowledgment (200 OK)
//   - Loading animation: shows for up to 60 seconds while the user waits
package config

import "time"

// Webhook timeouts
const (
	// WebhookProcessing is the timeout for processing a single webhook event.
	// This includes dispatch, database queries and potential external API calls.
	// Matches the 60s LINE loading animation window.
	WebhookProcessing = 60 * time.Second

	// WebhookHTTPRead is the HTTP server read timeout for webhook requests.
	// Short, since LINE sends small JSON payloads.
	WebhookHTTPRead = 10 * time.Second

	// WebhookHTTPWrite is the HTTP server write timeout.
	// Accommodates WebhookProcessing plus response serialization.
	WebhookHTTPWrite = 65 * time.Second

	// WebhookHTTPIdle is the HTTP server idle timeout for keep-alive connections.
	WebhookHTTPIdle = 120 * time.Second
)

// External API timeouts
const (
	// ExternalAPIRequest is the timeout for a single request to a third-party
	// HTTP API (weather, places).
	ExternalAPIRequest = 15 * time.Second

	// TourGeneration is the timeout for one AI itinerary generation job.
	// Generation runs detached from the webhook request; results are
	// delivered over the push channel, so this may exceed the reply window.
	TourGeneration = 120 * time.Second
)

// Database timeouts
const (
	// DatabaseBusyTimeout is the SQLite busy_timeout pragma value.
	DatabaseBusyTimeout = 30 * time.Second

	// DatabaseConnMaxLifetime is the maximum lifetime of database connections.
	DatabaseConnMaxLifetime = time.Hour
)

// Background job intervals
const (
	// ReminderDispatchInterval is how often due health reminders are checked.
	ReminderDispatchInterval = time.Minute

	// SessionSweepInterval is how often inert expired sessions are deleted.
	// Expiry is detected lazily on access; the sweep only reclaims storage.
	SessionSweepInterval = 6 * time.Hour

	// RateLimiterCleanupInterval is how often inactive user rate limiters are cleaned.
	RateLimiterCleanupInterval = 5 * time.Minute
)

// Graceful shutdown
const (
	// GracefulShutdown is the timeout for graceful server shutdown.
	GracefulShutdown = 30 * time.Second
)
