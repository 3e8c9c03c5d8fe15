// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the dual-axis rate limiter: the third pipeline stage
// for the inbound webhook, enforcing independent per-phone and per-client-IP
// ceilings via atomic Redis counters, backed by a shared store so the
// ceiling holds across instances, and failing open on store errors rather
// than blocking traffic.
package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/whatsapp-llm-gateway/internal/http/xmlreply"
	"github.com/tbourn/whatsapp-llm-gateway/internal/locale"
	"github.com/tbourn/whatsapp-llm-gateway/internal/privacy"
)

// RateLimitOptions configures the two independent axes of the limiter.
type RateLimitOptions struct {
	PhoneMax    int
	PhoneWindow time.Duration
	IPMax       int
	IPWindow    time.Duration
	KeyPrefix   string // defaults to "ratelimit:"
}

// RateLimiter enforces RateLimitOptions' ceilings using Redis INCR/EXPIRE
// counters, one per axis per identity, keyed by a privacy-hashed phone
// number or the raw client IP.
type RateLimiter struct {
	redis  *goredis.Client
	opt    RateLimitOptions
	hasher privacy.Hasher
}

// NewRateLimiter constructs a RateLimiter backed by redis, using hasher to
// anonymize phone numbers in rate-limit keys.
func NewRateLimiter(redis *goredis.Client, hasher privacy.Hasher, opt RateLimitOptions) *RateLimiter {
	if opt.KeyPrefix == "" {
		opt.KeyPrefix = "ratelimit:"
	}
	if opt.PhoneMax <= 0 {
		opt.PhoneMax = 10
	}
	if opt.PhoneWindow <= 0 {
		opt.PhoneWindow = 60 * time.Second
	}
	if opt.IPMax <= 0 {
		opt.IPMax = 30
	}
	if opt.IPWindow <= 0 {
		opt.IPWindow = 60 * time.Second
	}
	return &RateLimiter{redis: redis, opt: opt, hasher: hasher}
}

// axisResult is the outcome of checking one rate-limit axis.
type axisResult struct {
	count     int64
	limit     int
	remaining int
	resetAt   int64
	allowed   bool
	degraded  bool // true if the store errored and the axis failed open
}

// check increments the counter for key, attaching an expiry on first
// increment, and reports whether the axis is still within its ceiling. On
// any Redis error it fails open (allowed=true, degraded=true) so the caller
// is never penalized for a store outage.
func (rl *RateLimiter) check(ctx context.Context, key string, max int, window time.Duration) axisResult {
	if rl.redis == nil {
		return axisResult{allowed: true, degraded: true, limit: max}
	}
	count, err := rl.redis.Incr(ctx, key).Result()
	if err != nil {
		return axisResult{allowed: true, degraded: true, limit: max}
	}
	if count == 1 {
		if err := rl.redis.Expire(ctx, key, window).Err(); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("ratelimit: failed to attach expiry, counter may never reset")
		}
	}
	ttl, err := rl.redis.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = window
	}
	remaining := max - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return axisResult{
		count:     count,
		limit:     max,
		remaining: remaining,
		resetAt:   time.Now().Add(ttl).Unix(),
		allowed:   count <= int64(max),
	}
}

// Handler returns a Gin middleware enforcing both rate-limit axes. It always
// emits the X-RateLimit-* headers, and on either axis's ceiling being
// exceeded responds 429 with a localized apology XML body. When both axes
// are simultaneously over limit the phone-axis message is emitted, so an
// operator can triage the more specific signal from logs.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		phone := c.PostForm("From")
		ip := c.ClientIP()

		phoneKey := rl.opt.KeyPrefix + "phone:" + rl.hasher.Hash(phone)
		ipKey := rl.opt.KeyPrefix + "ip:" + ip

		phoneResult := rl.check(ctx, phoneKey, rl.opt.PhoneMax, rl.opt.PhoneWindow)
		ipResult := rl.check(ctx, ipKey, rl.opt.IPMax, rl.opt.IPWindow)

		if phoneResult.degraded || ipResult.degraded {
			log.Warn().Str("phone_hash", rl.hasher.Hash(phone)).Str("ip", ip).
				Msg("ratelimit: store unavailable, failing open")
		}

		h := c.Writer.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(phoneResult.limit))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(phoneResult.remaining))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(phoneResult.resetAt, 10))
		h.Set("X-RateLimit-IP-Limit", strconv.Itoa(ipResult.limit))
		h.Set("X-RateLimit-IP-Remaining", strconv.Itoa(ipResult.remaining))

		lang := localeFromContext(c)

		if !phoneResult.allowed {
			xmlreply.Write(c, http.StatusTooManyRequests, locale.RateLimitedPhone(lang))
			c.Abort()
			return
		}
		if !ipResult.allowed {
			xmlreply.Write(c, http.StatusTooManyRequests, locale.RateLimitedIP(lang))
			c.Abort()
			return
		}
		c.Next()
	}
}

// localeFromContext reads a language tag stored under "lang" in the gin
// context. No stage in the webhook pipeline sets that key, so it returns ""
// and the rate-limit replies use the default locale.
func localeFromContext(c *gin.Context) string {
	if v, ok := c.Get("lang"); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}
