// This file provides repository functions for the Message model:
// append-only inserts, idempotency lookup by provider SID, recent-N
// retrieval, and token aggregates.
//
// Create also bumps the owning conversation's last-activity timestamp. This
// keeps the touch(conversation_id) responsibility inside the repository
// layer instead of the message service.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/whatsapp-llm-gateway/internal/domain"
)

// CreateMessageParams carries the fields accepted by CreateMessage.
type CreateMessageParams struct {
	ConversationID string
	Role           string
	Content        string
	ProviderSID    *string
	ExternalRef    *string
	TokensUsed     *int
	LatencyMs      *int
}

// CreateMessage inserts a message row and touches the owning conversation's
// last-activity timestamp. When ProviderSID is non-nil and a row with that
// SID already exists, the lookup-then-insert race is resolved by returning
// the existing row unchanged instead of erroring (at-most-once append per
// SID): a unique-index violation on insert triggers a re-read rather than a
// propagated error.
func CreateMessage(ctx context.Context, db *gorm.DB, p CreateMessageParams) (*domain.Message, error) {
	if p.ProviderSID != nil {
		if existing, err := FindMessageByProviderSID(ctx, db, *p.ProviderSID); err == nil {
			return existing, nil
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	now := time.Now().UTC()
	m := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: p.ConversationID,
		Role:           p.Role,
		Content:        p.Content,
		ProviderSID:    p.ProviderSID,
		ExternalRef:    p.ExternalRef,
		TokensUsed:     p.TokensUsed,
		LatencyMs:      p.LatencyMs,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(m).Error; err != nil {
			return err
		}
		return tx.Model(&domain.Conversation{}).
			Where("id = ?", p.ConversationID).
			Update("last_activity_at", now).Error
	})
	if err != nil {
		if p.ProviderSID != nil {
			// Lost the insert race to a concurrent request with the same SID.
			if existing, reErr := FindMessageByProviderSID(ctx, db, *p.ProviderSID); reErr == nil {
				return existing, nil
			}
		}
		return nil, err
	}
	return m, nil
}

// FindMessageByProviderSID returns the message with the given provider SID,
// used as an idempotency probe before insertion.
func FindMessageByProviderSID(ctx context.Context, db *gorm.DB, sid string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("provider_sid = ?", sid).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// FindMessageByID returns the message with the given id.
func FindMessageByID(ctx context.Context, db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// FindMessagesByConversation returns conversationID's messages in ascending
// creation order, optionally capped at limit (limit <= 0 means unbounded).
func FindMessagesByConversation(ctx context.Context, db *gorm.DB, conversationID string, limit int) ([]domain.Message, error) {
	q := db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at asc, id asc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var out []domain.Message
	err := q.Find(&out).Error
	return out, err
}

// FindRecentMessagesByConversation returns the n most recent messages for
// conversationID, in ascending order (oldest first).
func FindRecentMessagesByConversation(ctx context.Context, db *gorm.DB, conversationID string, n int) ([]domain.Message, error) {
	var desc []domain.Message
	err := db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at desc, id desc").
		Limit(n).
		Find(&desc).Error
	if err != nil {
		return nil, err
	}
	out := make([]domain.Message, len(desc))
	for i, m := range desc {
		out[len(desc)-1-i] = m
	}
	return out, nil
}

// UpdateMessageMetadata sets the ExternalRef field of message id.
func UpdateMessageMetadata(ctx context.Context, db *gorm.DB, id string, externalRef *string) (*domain.Message, error) {
	res := db.WithContext(ctx).Model(&domain.Message{}).Where("id = ?", id).Update("external_ref", externalRef)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return FindMessageByID(ctx, db, id)
}

// TokenStats aggregates token usage over messages in conversationID that
// carry a non-null token count.
type TokenStats struct {
	Total int64
	Count int64
	Avg   float64
}

// TokenStatsFor computes TokenStats for conversationID.
func TokenStatsFor(ctx context.Context, db *gorm.DB, conversationID string) (TokenStats, error) {
	var row struct {
		Total int64
		Count int64
	}
	err := db.WithContext(ctx).Model(&domain.Message{}).
		Where("conversation_id = ? AND tokens_used IS NOT NULL", conversationID).
		Select("COALESCE(SUM(tokens_used), 0) AS total, COUNT(*) AS count").
		Scan(&row).Error
	if err != nil {
		return TokenStats{}, err
	}
	stats := TokenStats{Total: row.Total, Count: row.Count}
	if row.Count > 0 {
		stats.Avg = float64(row.Total) / float64(row.Count)
	}
	return stats, nil
}

// DeleteOlderThan deletes all but the keep_n most recent messages in
// conversationID, returning the number of rows deleted.
func DeleteOlderThan(ctx context.Context, db *gorm.DB, conversationID string, keepN int) (int64, error) {
	var keepIDs []string
	if err := db.WithContext(ctx).Model(&domain.Message{}).
		Where("conversation_id = ?", conversationID).
		Order("created_at desc, id desc").
		Limit(keepN).
		Pluck("id", &keepIDs).Error; err != nil {
		return 0, err
	}

	q := db.WithContext(ctx).Where("conversation_id = ?", conversationID)
	if len(keepIDs) > 0 {
		q = q.Where("id NOT IN ?", keepIDs)
	}
	res := q.Delete(&domain.Message{})
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

// ExistsByProviderSID reports whether a message with the given provider SID
// has already been recorded.
func ExistsByProviderSID(ctx context.Context, db *gorm.DB, sid string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Model(&domain.Message{}).Where("provider_sid = ?", sid).Count(&count).Error
	return count > 0, err
}
