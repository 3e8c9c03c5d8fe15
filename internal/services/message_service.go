// This file implements the message service: append-only turn saves with
// provider-SID idempotency, cache-first recent-context reads, and the
// aggregate/cleanup helpers used by operational tooling.
//
// The touch(conversation_id) responsibility lives inside repo.CreateMessage,
// not here, keeping the conversation and message services from importing
// each other.
package services

import (
	"context"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/tbourn/whatsapp-llm-gateway/internal/cache"
	"github.com/tbourn/whatsapp-llm-gateway/internal/domain"
	"github.com/tbourn/whatsapp-llm-gateway/internal/repo"
)

// defaultKeepN is the default retention window passed to CleanupOld.
const defaultKeepN = 10

// MessageService appends user/assistant/system turns and exposes the
// bounded context window consumed by the LLM client.
type MessageService struct {
	DB    *gorm.DB
	Cache *cache.ContextCache
}

// NewMessageService constructs a MessageService.
func NewMessageService(db *gorm.DB, ctxCache *cache.ContextCache) *MessageService {
	return &MessageService{DB: db, Cache: ctxCache}
}

// SaveUser inserts a user turn, deduplicating on providerSID: if a message
// with that SID already exists, the existing row is returned unchanged and
// no new insert is attempted. Otherwise the turn is inserted and the owning
// conversation's last-activity is bumped by repo.CreateMessage. In both
// cases the conversation's cache entry is invalidated afterward.
func (s *MessageService) SaveUser(ctx context.Context, conversationID, content string, providerSID *string) (*domain.Message, error) {
	msg, err := repo.CreateMessage(ctx, s.DB, repo.CreateMessageParams{
		ConversationID: conversationID,
		Role:           domain.RoleUser,
		Content:        content,
		ProviderSID:    providerSID,
	})
	if err != nil {
		return nil, errors.Wrap(err, "save user turn")
	}
	_ = s.Cache.Invalidate(ctx, conversationID)
	return msg, nil
}

// SaveAssistant unconditionally inserts an assistant turn carrying usage
// metrics, then touches (and cache-invalidates) the owning conversation.
func (s *MessageService) SaveAssistant(ctx context.Context, conversationID, content string, tokensUsed, latencyMs *int) (*domain.Message, error) {
	msg, err := repo.CreateMessage(ctx, s.DB, repo.CreateMessageParams{
		ConversationID: conversationID,
		Role:           domain.RoleAssistant,
		Content:        content,
		TokensUsed:     tokensUsed,
		LatencyMs:      latencyMs,
	})
	if err != nil {
		return nil, errors.Wrap(err, "save assistant turn")
	}
	_ = s.Cache.Invalidate(ctx, conversationID)
	return msg, nil
}

// SaveSystem inserts a system turn (e.g. a synthesized apology recorded for
// audit purposes), then touches the owning conversation.
func (s *MessageService) SaveSystem(ctx context.Context, conversationID, content string) (*domain.Message, error) {
	msg, err := repo.CreateMessage(ctx, s.DB, repo.CreateMessageParams{
		ConversationID: conversationID,
		Role:           domain.RoleSystem,
		Content:        content,
	})
	if err != nil {
		return nil, errors.Wrap(err, "save system turn")
	}
	_ = s.Cache.Invalidate(ctx, conversationID)
	return msg, nil
}

// RecentContext is cache-first: a cache hit's messages are stripped to
// (role, content) directly without schema re-validation, since this path
// consumes only those two fields; a miss falls back to the message
// repository's last-10-ascending query.
func (s *MessageService) RecentContext(ctx context.Context, conversationID string) ([]ContextTurn, error) {
	if doc, err := s.Cache.Get(ctx, conversationID); err == nil && doc != nil {
		out := make([]ContextTurn, len(doc.Messages))
		for i, m := range doc.Messages {
			out[i] = ContextTurn{Role: m.Role, Content: m.Content}
		}
		return out, nil
	}

	msgs, err := repo.FindRecentMessagesByConversation(ctx, s.DB, conversationID, recentContextSize)
	if err != nil {
		return nil, errors.Wrap(err, "find recent messages")
	}
	return toTurns(msgs), nil
}

// Count returns the total number of messages in conversationID.
func (s *MessageService) Count(ctx context.Context, conversationID string) (int64, error) {
	msgs, err := repo.FindMessagesByConversation(ctx, s.DB, conversationID, 0)
	if err != nil {
		return 0, errors.Wrap(err, "count messages")
	}
	return int64(len(msgs)), nil
}

// TokenStats returns the token aggregate for conversationID.
func (s *MessageService) TokenStats(ctx context.Context, conversationID string) (repo.TokenStats, error) {
	stats, err := repo.TokenStatsFor(ctx, s.DB, conversationID)
	if err != nil {
		return repo.TokenStats{}, errors.Wrap(err, "token stats")
	}
	return stats, nil
}

// Exists reports whether a message with the given provider SID has already
// been recorded, the idempotency probe used ahead of SaveUser by callers
// that want to short-circuit before doing other work.
func (s *MessageService) Exists(ctx context.Context, providerSID string) (bool, error) {
	ok, err := repo.ExistsByProviderSID(ctx, s.DB, providerSID)
	if err != nil {
		return false, errors.Wrap(err, "check provider sid existence")
	}
	return ok, nil
}

// CleanupOld deletes all but the keepN most recent messages in
// conversationID (keepN <= 0 uses the default of 10), invalidating the
// cache afterward, and returns the number of rows deleted.
func (s *MessageService) CleanupOld(ctx context.Context, conversationID string, keepN int) (int64, error) {
	if keepN <= 0 {
		keepN = defaultKeepN
	}
	n, err := repo.DeleteOlderThan(ctx, s.DB, conversationID, keepN)
	if err != nil {
		return 0, errors.Wrap(err, "cleanup old messages")
	}
	_ = s.Cache.Invalidate(ctx, conversationID)
	return n, nil
}
