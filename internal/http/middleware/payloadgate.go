// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements the payload validator pipeline stage: the last
// pre-processing stage before the webhook handler, parsing and validating
// the form body into internal/http/payload.InboundMessage and stashing it
// in the Gin context.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/whatsapp-llm-gateway/internal/http/payload"
	"github.com/tbourn/whatsapp-llm-gateway/internal/http/xmlreply"
	"github.com/tbourn/whatsapp-llm-gateway/internal/locale"
)

// inboundMessageKey is the Gin context key under which the parsed
// InboundMessage is stored by ValidatePayload.
const inboundMessageKey = "inboundMessage"

// ValidatePayload parses and validates the form body. On failure it responds
// 400 with a generic localized apology XML body and logs the structured
// issues at warn level; on success it stores the parsed message for the
// handler under inboundMessageKey.
func ValidatePayload() gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := c.Request.ParseForm(); err != nil {
			xmlreply.Write(c, http.StatusBadRequest, locale.GenericApology(""))
			c.Abort()
			return
		}

		msg, err := payload.Parse(c.Request.PostForm)
		if err != nil {
			if ve, ok := err.(*payload.ValidationError); ok {
				fields := make([]string, 0, len(ve.Errors))
				for _, fe := range ve.Errors {
					fields = append(fields, fe.Field+":"+fe.Tag)
				}
				log.Warn().Strs("issues", fields).Msg("payload validation failed")
			} else {
				log.Warn().Err(err).Msg("payload validation failed")
			}
			xmlreply.Write(c, http.StatusBadRequest, locale.GenericApology(""))
			c.Abort()
			return
		}

		c.Set(inboundMessageKey, msg)
		c.Next()
	}
}

// InboundMessageFrom retrieves the InboundMessage stored by ValidatePayload.
func InboundMessageFrom(c *gin.Context) (*payload.InboundMessage, bool) {
	v, ok := c.Get(inboundMessageKey)
	if !ok {
		return nil, false
	}
	msg, ok := v.(*payload.InboundMessage)
	return msg, ok
}
