// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the content-type gate: the first pipeline stage for
// the inbound webhook, accepting only form-encoded bodies.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// formURLEncoded is the only media type the webhook pipeline accepts.
const formURLEncoded = "application/x-www-form-urlencoded"

// RequireFormURLEncoded rejects any request whose Content-Type main media
// type is not application/x-www-form-urlencoded. Comparison is
// case-insensitive on the main type (the part before the first ';'), which
// resolves the spec's flagged ambiguity in favor of the safer, standards-
// conforming behavior rather than a literal substring match.
func RequireFormURLEncoded() gin.HandlerFunc {
	return func(c *gin.Context) {
		ct := c.GetHeader("Content-Type")
		main := ct
		if idx := strings.IndexByte(ct, ';'); idx >= 0 {
			main = ct[:idx]
		}
		main = strings.TrimSpace(main)

		if !strings.EqualFold(main, formURLEncoded) {
			c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{
				"error":   "Unsupported Media Type",
				"message": "Expected application/x-www-form-urlencoded",
			})
			return
		}
		c.Next()
	}
}
