// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, and route handlers. It centralizes cross-cutting concerns such
// as tracing, correlation IDs, logging/redaction, panic recovery, metrics,
// CORS, security headers, and the webhook pipeline's pre-processing stages.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → logging → recovery)
//   - The webhook pipeline runs in this exact order and nowhere else:
//     content-type gate → signature verifier → rate limiter → payload
//     validator → handler.
//   - Deterministic, minimal router setup; all dependencies injected
package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	swaggerfiles "github.com/swaggo/files"
	ginswagger "github.com/swaggo/gin-swagger"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	_ "github.com/tbourn/whatsapp-llm-gateway/docs"
	"github.com/tbourn/whatsapp-llm-gateway/internal/cache"
	"github.com/tbourn/whatsapp-llm-gateway/internal/config"
	"github.com/tbourn/whatsapp-llm-gateway/internal/http/handlers"
	"github.com/tbourn/whatsapp-llm-gateway/internal/http/middleware"
	"github.com/tbourn/whatsapp-llm-gateway/internal/llm"
	"github.com/tbourn/whatsapp-llm-gateway/internal/privacy"
	"github.com/tbourn/whatsapp-llm-gateway/internal/services"
)

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine: observability (tracing, metrics), CORS and security headers,
// health and metrics endpoints, and the inbound webhook pipeline.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. RedactingLogger: structured logs with PII scrubbing
//  4. Recovery: capture panics after logger
//  5. Body size limiter
//  6. Metrics
//  7. CORS and Security headers
//
// The webhook route additionally layers, in this exact order: content-type
// gate → signature verifier → rate limiter → payload validator → handler.
func RegisterRoutes(r *gin.Engine, db *gorm.DB, redisClient *goredis.Client, cfg config.Config) {
	r.HandleMethodNotAllowed = true

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Structured logging with redaction
	r.Use(middleware.RedactingLogger(middleware.RedactOptions{
		MaskHeaders: []string{"X-Twilio-Signature"},
	}))

	// 4) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 5) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 6) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Compress JSON/XML responses; skip nothing provider-specific, gzip
	// negotiates via Accept-Encoding on its own.
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	// 7) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"POST", "GET", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Twilio-Signature"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	} else {
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"POST", "GET", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Twilio-Signature"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers (HSTS only when enabled and request is HTTPS)
	r.Use(middleware.SecurityHeaders(middleware.SecurityOptions{
		EnableHSTS:   cfg.Security.EnableHSTS,
		HSTSMaxAge:   cfg.Security.HSTSMaxAge,
		NoStore:      true,
		EnablePolicy: true,
	}))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Dependency injection: services ← repo/db/cache/LLM client
	hasher := privacy.NewHasher(cfg.PrivacyHashSalt)
	ctxCache := cache.New(redisClient)
	convSvc := services.NewConversationService(db, ctxCache)
	msgSvc := services.NewMessageService(db, ctxCache)
	llmSvc := llm.New(llm.Config{
		APIKey:          cfg.LLM.APIKey,
		Model:           cfg.LLM.Model,
		MaxOutputTokens: cfg.LLM.MaxTokens,
		Temperature:     cfg.LLM.Temperature,
		RequestTimeout:  cfg.LLM.RequestTimeout,
	})

	webhookHandler := handlers.NewWebhookHandler(convSvc, msgSvc, llmSvc)
	healthHandler := handlers.NewHealthHandler(db, redisClient, cfg.Environment, "1.0.0")

	// Liveness/health
	r.GET("/health", healthHandler.HandleHealth)

	// API documentation, opt-in via SWAGGER_ENABLED (off by default)
	if cfg.SwaggerEnabled {
		r.GET(cfg.APIBasePath+"/swagger/*any", ginswagger.WrapHandler(swaggerfiles.Handler))
	}

	// Inbound webhook pipeline: content-type gate → signature verifier →
	// rate limiter → payload validator → handler, in this exact order.
	devMode := cfg.Environment == "development"
	rl := middleware.NewRateLimiter(redisClient, hasher, middleware.RateLimitOptions{
		PhoneMax:    cfg.RateLimit.MaxRequests,
		PhoneWindow: cfg.RateLimit.WindowSeconds,
		IPMax:       cfg.RateLimit.MaxIPRequests,
		IPWindow:    cfg.RateLimit.IPWindowSeconds,
	})

	r.POST("/webhook/whatsapp",
		middleware.RequireFormURLEncoded(),
		middleware.RequireSignature(cfg.Twilio.AuthToken, devMode),
		rl.Handler(),
		middleware.ValidatePayload(),
		webhookHandler.HandleWebhook,
	)
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
