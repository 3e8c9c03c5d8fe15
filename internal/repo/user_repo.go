// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User
// model: phone-keyed lookup and atomic upsert.
//
// Functions are context-aware and accept a *gorm.DB handle so they compose
// cleanly inside db.Transaction blocks at the service layer. They follow the
// "thin repository" approach: no business logic, only persistence.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/whatsapp-llm-gateway/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist. It
// aliases gorm.ErrRecordNotFound for consistency across the service layer
// and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// FindUserByPhone returns the user with the given phone number, or
// ErrNotFound if no such user exists.
func FindUserByPhone(ctx context.Context, db *gorm.DB, phone string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("phone = ?", phone).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// FindUserByID returns the user with the given id, or ErrNotFound if no
// such user exists.
func FindUserByID(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// UpsertUser creates a user for phone if one does not exist, defaulting
// language to "es", or updates the supplied optional fields on the existing
// row. The operation is atomic: a unique-constraint violation on concurrent
// create is resolved by re-reading the row that won the race.
func UpsertUser(ctx context.Context, db *gorm.DB, phone string, language *string) (*domain.User, error) {
	existing, err := FindUserByPhone(ctx, db, phone)
	if err == nil {
		if language != nil && *language != "" && *language != existing.Language {
			if err := db.WithContext(ctx).Model(existing).Update("language", *language).Error; err != nil {
				return nil, err
			}
			existing.Language = *language
		}
		return existing, nil
	}
	if err != gorm.ErrRecordNotFound {
		return nil, err
	}

	lang := "es"
	if language != nil && *language != "" {
		lang = *language
	}
	u := &domain.User{
		ID:        uuid.NewString(),
		Phone:     phone,
		Language:  lang,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		// Lost the create race to a concurrent request; the row now exists.
		if existing, reErr := FindUserByPhone(ctx, db, phone); reErr == nil {
			return existing, nil
		}
		return nil, err
	}
	return u, nil
}

// CountUsers returns the total number of users.
func CountUsers(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.User{}).Count(&total).Error
	return total, err
}
