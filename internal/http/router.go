// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging, panic recovery, metrics, CORS, and
// rate limiting.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/1thousandframework/go-gift-backend/internal/bot"
	"github.com/1thousandframework/go-gift-backend/internal/cache"
	"github.com/1thousandframework/go-gift-backend/internal/config"
	"github.com/1thousandframework/go-gift-backend/internal/http/handlers"
	"github.com/1thousandframework/go-gift-backend/internal/http/middleware"
	"github.com/1thousandframework/go-gift-backend/internal/pay"
	"github.com/1thousandframework/go-gift-backend/internal/services"
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine: observability (tracing, metrics), rate limiting, CORS, the health
// and metrics endpoints, the payment webhook, and the public API.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Structured logging
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. Rate limiter (per user/IP)
//  8. CORS
func RegisterRoutes(r *gin.Engine, db *gorm.DB, inv *cache.Inventory, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging
	r.Use(middleware.Logger())

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 7) Token-bucket rate limiter per user/IP
	rl := middleware.NewRateLimiter(cfg.RateRPS, cfg.RateBurst, middleware.KeyByUserOrIP())
	r.Use(rl.Handler())

	// 8) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, handlers.ErrCodeNotFound)
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, handlers.ErrCodeNotFound)
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	// Dependency injection: services ← db/cache/provider clients
	payClient := pay.NewClient(cfg.Pay.APIKey, cfg.Pay.BaseURL)
	notifier := bot.NewClient(cfg.Bot.Token, cfg.Bot.BaseURL)

	ledgerSvc := &services.LedgerService{
		DB:       db,
		Cache:    inv,
		Notifier: notifier,
		Hostname: cfg.Bot.Hostname,
	}
	giftSvc := &services.GiftService{
		DB:              db,
		Cache:           inv,
		Pay:             payClient,
		InvoiceLifetime: cfg.Pay.InvoiceLifetime,
		PollMax:         cfg.InvoicePollMax,
		PageSize:        cfg.PageSize,
	}
	userSvc := &services.UserService{
		DB:       db,
		Cache:    inv,
		Ledger:   ledgerSvc,
		PageSize: cfg.PageSize,
	}
	reconcileSvc := &services.ReconcileService{
		DB:       db,
		Cache:    inv,
		Ledger:   ledgerSvc,
		Notifier: notifier,
		Pay:      payClient,
		Hostname: cfg.Bot.Hostname,
	}

	h := handlers.New(giftSvc, ledgerSvc, userSvc, cfg.Bot.Token)
	wh := &handlers.WebhookHandler{Reconcile: reconcileSvc, Token: cfg.Pay.APIKey}

	// Payment-provider webhook (token in path, compared in constant time)
	r.POST("/webhooks/pay/:token", wh.Handle)

	// Public API: every method is a POST with a JSON body
	apiBase := cfg.APIBasePath // e.g. "/api"
	api := groupWithPrefix(r, apiBase)
	{
		api.POST("/:method", h.Dispatch)
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}
