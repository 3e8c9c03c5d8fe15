// This file provides repository functions for the Conversation model:
// active-conversation lookup, creation, ownership-checked state transitions,
// and the touch(id) operation used to bump last-activity.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/whatsapp-llm-gateway/internal/domain"
)

// FindActiveConversationByUser returns the active conversation with the
// greatest last-activity for userID, or ErrNotFound if none exists.
func FindActiveConversationByUser(ctx context.Context, db *gorm.DB, userID string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := db.WithContext(ctx).
		Where("user_id = ? AND state = ?", userID, domain.ConversationActive).
		Order("last_activity_at desc").
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// FindConversationByID returns the conversation with the given id. When
// asUser is non-empty and does not match the stored owner, ErrNotFound is
// returned instead of the record — deliberately indistinguishable from a
// missing row on the read path.
func FindConversationByID(ctx context.Context, db *gorm.DB, id, asUser string) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	if asUser != "" && c.UserID != asUser {
		return nil, ErrNotFound
	}
	return &c, nil
}

// CreateConversation inserts a new active conversation for userID with
// last-activity set to now.
func CreateConversation(ctx context.Context, db *gorm.DB, userID string) (*domain.Conversation, error) {
	now := time.Now().UTC()
	c := &domain.Conversation{
		ID:             uuid.NewString(),
		UserID:         userID,
		State:          domain.ConversationActive,
		LastActivityAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// TouchConversation updates last-activity to at and returns the refreshed
// row. Together with CreateMessage, which bumps last-activity on every
// insert, it keeps the responsibility out of the message service.
func TouchConversation(ctx context.Context, db *gorm.DB, id string, at time.Time) (*domain.Conversation, error) {
	res := db.WithContext(ctx).Model(&domain.Conversation{}).
		Where("id = ?", id).
		Update("last_activity_at", at)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return FindConversationByID(ctx, db, id, "")
}

// SetSummary sets the textual summary of conversation id, enforcing
// ownership against asUser.
func SetSummary(ctx context.Context, db *gorm.DB, id, text, asUser string) (*domain.Conversation, error) {
	c, err := FindConversationByID(ctx, db, id, "")
	if err != nil {
		return nil, err
	}
	if c.UserID != asUser {
		return nil, ErrAccessDenied
	}
	if err := db.WithContext(ctx).Model(c).Update("summary", text).Error; err != nil {
		return nil, err
	}
	c.Summary = text
	return c, nil
}

// Close transitions conversation id from active to closed, enforcing
// ownership against asUser.
func Close(ctx context.Context, db *gorm.DB, id, asUser string) (*domain.Conversation, error) {
	return transitionState(ctx, db, id, asUser, domain.ConversationClosed)
}

// Archive transitions conversation id from active to archived, enforcing
// ownership against asUser.
func Archive(ctx context.Context, db *gorm.DB, id, asUser string) (*domain.Conversation, error) {
	return transitionState(ctx, db, id, asUser, domain.ConversationArchived)
}

func transitionState(ctx context.Context, db *gorm.DB, id, asUser, newState string) (*domain.Conversation, error) {
	c, err := FindConversationByID(ctx, db, id, "")
	if err != nil {
		return nil, err
	}
	if c.UserID != asUser {
		return nil, ErrAccessDenied
	}
	if c.State != domain.ConversationActive {
		return nil, ErrInvalidTransition
	}
	if err := db.WithContext(ctx).Model(c).Update("state", newState).Error; err != nil {
		return nil, err
	}
	c.State = newState
	return c, nil
}

// FindConversationsByUser returns userID's conversations ordered by
// last-activity descending, optionally filtered by state.
func FindConversationsByUser(ctx context.Context, db *gorm.DB, userID, state string) ([]domain.Conversation, error) {
	q := db.WithContext(ctx).Where("user_id = ?", userID)
	if state != "" {
		q = q.Where("state = ?", state)
	}
	var out []domain.Conversation
	err := q.Order("last_activity_at desc").Find(&out).Error
	return out, err
}

// CountConversationsByState returns the number of conversations in state.
func CountConversationsByState(ctx context.Context, db *gorm.DB, state string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Conversation{}).Where("state = ?", state).Count(&total).Error
	return total, err
}

// CountConversations returns the total number of conversations.
func CountConversations(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Conversation{}).Count(&total).Error
	return total, err
}
