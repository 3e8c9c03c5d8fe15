// This file implements the health-probe endpoint: a trivial fan-out over
// the same store handles the core uses, reporting per-component status so
// an operator or load balancer can distinguish a degraded dependency from a
// dead process.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/tbourn/whatsapp-llm-gateway/internal/sysutil"
)

// startTime records process start for the uptime figure; set once at
// package init so every health check reports elapsed wall-time since boot.
var startTime = time.Now()

// componentCheck is the per-dependency shape nested under "checks" in the
// health response.
type componentCheck struct {
	Status         string `json:"status"`
	LatencyMs      int64  `json:"latencyMs,omitempty"`
	HeapAllocBytes uint64 `json:"heapAllocBytes,omitempty"`
	Error          string `json:"error,omitempty"`
}

// HealthHandler fans out liveness checks against the relational store, the
// Redis client, and process memory.
type HealthHandler struct {
	DB          *gorm.DB
	Redis       *goredis.Client
	Environment string
	Version     string
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(db *gorm.DB, redis *goredis.Client, environment, version string) *HealthHandler {
	return &HealthHandler{DB: db, Redis: redis, Environment: environment, Version: version}
}

// HandleHealth responds 200 when every component is healthy, 503 otherwise.
//
// @Summary     Report process and dependency health
// @Description Fans out a check against the relational store, Redis, and
// @Description process memory; returns 503 if any component is unhealthy.
// @Tags        Health
// @Produce     json
// @Success     200 {object} map[string]interface{}
// @Failure     503 {object} map[string]interface{}
// @Router      /health [get]
func (h *HealthHandler) HandleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	dbCheck := h.checkDatabase(ctx)
	redisCheck := h.checkRedis(ctx)
	memCheck := h.checkMemory()

	overall := http.StatusOK
	status := "healthy"
	for _, chk := range []componentCheck{dbCheck, redisCheck, memCheck} {
		if chk.Status != "healthy" {
			overall = http.StatusServiceUnavailable
			status = "degraded"
			break
		}
	}

	c.JSON(overall, gin.H{
		"status":      status,
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"uptime":      time.Since(startTime).Seconds(),
		"environment": h.Environment,
		"version":     h.Version,
		"checks": gin.H{
			"database": dbCheck,
			"redis":    redisCheck,
			"memory":   memCheck,
		},
	})
}

func (h *HealthHandler) checkDatabase(ctx context.Context) componentCheck {
	start := time.Now()
	sqlDB, err := h.DB.DB()
	if err != nil {
		return componentCheck{Status: "unhealthy", Error: err.Error()}
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return componentCheck{Status: "unhealthy", Error: err.Error()}
	}
	return componentCheck{Status: "healthy", LatencyMs: time.Since(start).Milliseconds()}
}

func (h *HealthHandler) checkRedis(ctx context.Context) componentCheck {
	if h.Redis == nil {
		return componentCheck{Status: "healthy"}
	}
	start := time.Now()
	if err := h.Redis.Ping(ctx).Err(); err != nil {
		return componentCheck{Status: "unhealthy", Error: err.Error()}
	}
	return componentCheck{Status: "healthy", LatencyMs: time.Since(start).Milliseconds()}
}

// checkMemory reports the process heap allocation. There is no ceiling that
// would mark this unhealthy today; the figure is surfaced for operator
// visibility and future thresholding.
func (h *HealthHandler) checkMemory() componentCheck {
	return componentCheck{Status: "healthy", HeapAllocBytes: sysutil.HeapAllocBytes()}
}
