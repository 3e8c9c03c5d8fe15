// This file implements the conversation service: get-or-create on first
// inbound phone contact, the cache-validated context reader, state
// transitions, and the cache invalidation points that keep the Redis
// context document coherent with the relational store of record.
package services

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/tbourn/whatsapp-llm-gateway/internal/cache"
	"github.com/tbourn/whatsapp-llm-gateway/internal/domain"
	"github.com/tbourn/whatsapp-llm-gateway/internal/repo"
)

// recentContextSize is the bounded number of most-recent messages the
// context cache and the fallback store read retain.
const recentContextSize = 10

// ConversationWithMessages is the cache-populating, schema-validated read
// shape returned by GetWithContext: a conversation plus its bounded recent
// message window.
type ConversationWithMessages struct {
	Conversation domain.Conversation
	Messages     []domain.Message
}

// ContextTurn is a minimal (role, content) pair suitable for handing to the
// LLM client, stripped of every other message field.
type ContextTurn struct {
	Role    string
	Content string
}

// ConversationService owns the conversation/user repositories and the
// Redis-backed context cache: lookup-or-create, ownership-checked state
// transitions, and cache-validated context reads.
type ConversationService struct {
	DB    *gorm.DB
	Cache *cache.ContextCache
}

// NewConversationService constructs a ConversationService.
func NewConversationService(db *gorm.DB, ctxCache *cache.ContextCache) *ConversationService {
	return &ConversationService{DB: db, Cache: ctxCache}
}

// GetOrCreate upserts the user identified by phone, then returns its
// current active conversation or creates a fresh one when none exists.
func (s *ConversationService) GetOrCreate(ctx context.Context, phone string) (*domain.Conversation, *domain.User, error) {
	user, err := repo.UpsertUser(ctx, s.DB, phone, nil)
	if err != nil {
		return nil, nil, errors.Wrap(err, "upsert user")
	}

	conv, err := repo.FindActiveConversationByUser(ctx, s.DB, user.ID)
	if err == nil {
		return conv, user, nil
	}
	if !errors.Is(err, repo.ErrNotFound) {
		return nil, nil, errors.Wrap(err, "find active conversation")
	}

	conv, err = repo.CreateConversation(ctx, s.DB, user.ID)
	if err != nil {
		return nil, nil, errors.Wrap(err, "create conversation")
	}
	return conv, user, nil
}

// GetWithContext is cache-first: a hit is schema-validated and returned
// directly; a miss (including a validation failure, which deletes the
// stale entry) falls back to the store, fetching the conversation and its
// last 10 messages ascending, then repopulates the cache before returning.
func (s *ConversationService) GetWithContext(ctx context.Context, conversationID string) (*ConversationWithMessages, error) {
	if doc, err := s.Cache.Get(ctx, conversationID); err == nil && doc != nil {
		return fromDocument(*doc), nil
	}

	conv, err := repo.FindConversationByID(ctx, s.DB, conversationID, "")
	if err != nil {
		return nil, errors.Wrap(err, "find conversation")
	}
	msgs, err := repo.FindRecentMessagesByConversation(ctx, s.DB, conversationID, recentContextSize)
	if err != nil {
		return nil, errors.Wrap(err, "find recent messages")
	}

	result := &ConversationWithMessages{Conversation: *conv, Messages: msgs}
	_ = s.Cache.Set(ctx, conversationID, toDocument(*conv, msgs))
	return result, nil
}

// Touch bumps conversationID's last-activity to now and invalidates its
// cache entry so the next GetWithContext re-reads the store.
func (s *ConversationService) Touch(ctx context.Context, conversationID string) error {
	if _, err := repo.TouchConversation(ctx, s.DB, conversationID, time.Now().UTC()); err != nil {
		return errors.Wrap(err, "touch conversation")
	}
	return s.Cache.Invalidate(ctx, conversationID)
}

// Close ownership-checks asUser and transitions conversationID from active
// to closed, invalidating the cache on success.
func (s *ConversationService) Close(ctx context.Context, conversationID, asUser string) (*domain.Conversation, error) {
	conv, err := repo.Close(ctx, s.DB, conversationID, asUser)
	if err != nil {
		return nil, classifyConversationError(err)
	}
	_ = s.Cache.Invalidate(ctx, conversationID)
	return conv, nil
}

// Archive ownership-checks asUser and transitions conversationID from
// active to archived, invalidating the cache on success.
func (s *ConversationService) Archive(ctx context.Context, conversationID, asUser string) (*domain.Conversation, error) {
	conv, err := repo.Archive(ctx, s.DB, conversationID, asUser)
	if err != nil {
		return nil, classifyConversationError(err)
	}
	_ = s.Cache.Invalidate(ctx, conversationID)
	return conv, nil
}

// UpdateSummary sets conversationID's textual summary, ownership-checked
// against asUser, and invalidates the cache on success.
func (s *ConversationService) UpdateSummary(ctx context.Context, conversationID, text, asUser string) (*domain.Conversation, error) {
	conv, err := repo.SetSummary(ctx, s.DB, conversationID, text, asUser)
	if err != nil {
		return nil, classifyConversationError(err)
	}
	_ = s.Cache.Invalidate(ctx, conversationID)
	return conv, nil
}

// Invalidate deletes conversationID's cache entry without touching the
// store.
func (s *ConversationService) Invalidate(ctx context.Context, conversationID string) error {
	return s.Cache.Invalidate(ctx, conversationID)
}

// RecentContext delegates to the message repository's last-10-ascending
// query and strips every field but (role, content). Used when the caller
// needs a guaranteed store-fresh read instead of the cache-first path (see
// MessageService.RecentContext for the cache-first variant).
func (s *ConversationService) RecentContext(ctx context.Context, conversationID string) ([]ContextTurn, error) {
	msgs, err := repo.FindRecentMessagesByConversation(ctx, s.DB, conversationID, recentContextSize)
	if err != nil {
		return nil, errors.Wrap(err, "find recent messages")
	}
	return toTurns(msgs), nil
}

func classifyConversationError(err error) error {
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, repo.ErrAccessDenied):
		return ErrAccessDenied
	case errors.Is(err, repo.ErrInvalidTransition):
		return ErrInvalidTransition
	default:
		return err
	}
}

func toTurns(msgs []domain.Message) []ContextTurn {
	out := make([]ContextTurn, len(msgs))
	for i, m := range msgs {
		out[i] = ContextTurn{Role: m.Role, Content: m.Content}
	}
	return out
}

func toDocument(conv domain.Conversation, msgs []domain.Message) cache.Document {
	var summary *string
	if conv.Summary != "" {
		s := conv.Summary
		summary = &s
	}
	doc := cache.Document{
		ID:             conv.ID,
		UserID:         conv.UserID,
		Status:         conv.State,
		ContextSummary: summary,
		LastMessageAt:  conv.LastActivityAt.UTC().Format(time.RFC3339),
		CreatedAt:      conv.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:      conv.UpdatedAt.UTC().Format(time.RFC3339),
		Messages:       make([]cache.Message, len(msgs)),
	}
	for i, m := range msgs {
		doc.Messages[i] = cache.Message{
			ID:         m.ID,
			Role:       m.Role,
			Content:    m.Content,
			CreatedAt:  m.CreatedAt.UTC().Format(time.RFC3339),
			TokensUsed: m.TokensUsed,
			LatencyMs:  m.LatencyMs,
		}
	}
	return doc
}

func fromDocument(doc cache.Document) *ConversationWithMessages {
	conv := domain.Conversation{
		ID:     doc.ID,
		UserID: doc.UserID,
		State:  doc.Status,
	}
	if doc.ContextSummary != nil {
		conv.Summary = *doc.ContextSummary
	}
	if t, err := time.Parse(time.RFC3339, doc.LastMessageAt); err == nil {
		conv.LastActivityAt = t
	}
	if t, err := time.Parse(time.RFC3339, doc.CreatedAt); err == nil {
		conv.CreatedAt = t
	}
	if t, err := time.Parse(time.RFC3339, doc.UpdatedAt); err == nil {
		conv.UpdatedAt = t
	}

	msgs := make([]domain.Message, len(doc.Messages))
	for i, m := range doc.Messages {
		msgs[i] = domain.Message{
			ID:             m.ID,
			ConversationID: doc.ID,
			Role:           m.Role,
			Content:        m.Content,
			TokensUsed:     m.TokensUsed,
			LatencyMs:      m.LatencyMs,
		}
		if t, err := time.Parse(time.RFC3339, m.CreatedAt); err == nil {
			msgs[i].CreatedAt = t
		}
	}
	return &ConversationWithMessages{Conversation: conv, Messages: msgs}
}
