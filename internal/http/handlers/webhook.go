// This file implements the webhook handler: the single coordinator that
// composes the conversation service, message service, and LLM service in
// the fixed sequence the spec names, and converts any failure from that
// sequence into a synchronous, localized apology XML reply rather than
// letting an exception escape to the transport layer.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/whatsapp-llm-gateway/internal/http/middleware"
	"github.com/tbourn/whatsapp-llm-gateway/internal/http/xmlreply"
	"github.com/tbourn/whatsapp-llm-gateway/internal/llm"
	"github.com/tbourn/whatsapp-llm-gateway/internal/locale"
	"github.com/tbourn/whatsapp-llm-gateway/internal/services"
)

// whatsappPrefix is stripped from the validated From field to obtain the
// canonical phone number used as the user/conversation key.
const whatsappPrefix = "whatsapp:"

// WebhookHandler coordinates one inbound webhook request end to end.
type WebhookHandler struct {
	Conversations *services.ConversationService
	Messages      *services.MessageService
	LLM           *llm.Service
}

// NewWebhookHandler constructs a WebhookHandler.
func NewWebhookHandler(conv *services.ConversationService, msg *services.MessageService, llmSvc *llm.Service) *WebhookHandler {
	return &WebhookHandler{Conversations: conv, Messages: msg, LLM: llmSvc}
}

// HandleWebhook implements the inbound webhook pipeline's terminal stage:
// extract the validated payload, resolve the conversation, append the user
// turn, assemble context, request a completion, persist the assistant turn,
// and emit the reply XML document — all synchronously in this transaction.
//
// @Summary     Receive an inbound WhatsApp message
// @Description Validates the signed form payload, runs one LLM completion
// @Description against the conversation's recent context, and replies with
// @Description a TwiML-style XML document. Always responds 200 with an
// @Description apology body on any downstream failure.
// @Tags        Webhook
// @Accept      x-www-form-urlencoded
// @Produce     xml
// @Param       X-Twilio-Signature header string false "HMAC-SHA256 request signature"
// @Param       From               formData string true "WhatsApp sender, e.g. whatsapp:+15551234567"
// @Param       Body               formData string true "Message text"
// @Param       MessageSid         formData string true "Provider-assigned message id, used for idempotency"
// @Success     200 {string} string "TwiML response document"
// @Failure     400 {string} string "malformed payload"
// @Failure     403 {string} string "signature verification failed"
// @Failure     415 {string} string "unsupported content type"
// @Failure     429 {string} string "rate limit exceeded"
// @Router      /webhook/whatsapp [post]
func (h *WebhookHandler) HandleWebhook(c *gin.Context) {
	inbound, ok := middleware.InboundMessageFrom(c)
	if !ok {
		xmlreply.Write(c, http.StatusBadRequest, locale.GenericApology(""))
		return
	}

	phone := strings.TrimPrefix(inbound.From, whatsappPrefix)
	body := strings.TrimSpace(inbound.Body)

	if body == "" && phone == "" {
		xmlreply.WriteOK(c, locale.CannotProcess(""))
		return
	}

	ctx := c.Request.Context()
	lg := middleware.LoggerFrom(c)

	conv, user, err := h.Conversations.GetOrCreate(ctx, phone)
	if err != nil {
		lg.Error().Err(err).Msg("webhook: get_or_create conversation failed")
		xmlreply.WriteOK(c, locale.TechnicalDifficulties(""))
		return
	}
	lang := user.Language

	if _, err := h.Messages.SaveUser(ctx, conv.ID, inbound.Body, &inbound.MessageSID); err != nil {
		lg.Error().Err(err).Str("conversation_id", conv.ID).Str("user_id", user.ID).
			Msg("webhook: save_user failed")
		xmlreply.WriteOK(c, locale.TechnicalDifficulties(lang))
		return
	}

	turns, err := h.Messages.RecentContext(ctx, conv.ID)
	if err != nil {
		lg.Error().Err(err).Str("conversation_id", conv.ID).Str("user_id", user.ID).
			Msg("webhook: recent_context failed")
		xmlreply.WriteOK(c, locale.TechnicalDifficulties(lang))
		return
	}

	result, err := h.LLM.CompleteWithMetrics(ctx, toLLMMessages(turns))
	if err != nil {
		lg.Error().Err(err).Str("conversation_id", conv.ID).Str("user_id", user.ID).
			Msg("webhook: llm completion failed")
		xmlreply.WriteOK(c, locale.TechnicalDifficulties(lang))
		return
	}

	if _, err := h.Messages.SaveAssistant(ctx, conv.ID, result.Content, &result.TokensUsed, &result.LatencyMs); err != nil {
		lg.Error().Err(err).Str("conversation_id", conv.ID).Str("user_id", user.ID).
			Msg("webhook: save_assistant failed")
		xmlreply.WriteOK(c, locale.TechnicalDifficulties(lang))
		return
	}

	xmlreply.WriteOK(c, result.Content)
}

func toLLMMessages(turns []services.ContextTurn) []llm.Message {
	out := make([]llm.Message, len(turns))
	for i, t := range turns {
		out[i] = llm.Message{Role: t.Role, Content: t.Content}
	}
	return out
}
