package repo

import (
	"context"
	"errors"
	"testing"
)

func TestUpsertUser_CreatesWithDefaultLanguage(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u, err := UpsertUser(ctx, db, "+14155550001", nil)
	if err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	if u.Phone != "+14155550001" || u.Language != "es" {
		t.Fatalf("unexpected user: %+v", u)
	}
}

func TestUpsertUser_UpdatesLanguageOnExisting(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first, err := UpsertUser(ctx, db, "+14155550002", nil)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	en := "en"
	second, err := UpsertUser(ctx, db, "+14155550002", &en)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same user id, got %q vs %q", second.ID, first.ID)
	}
	if second.Language != "en" {
		t.Fatalf("expected language updated to en, got %q", second.Language)
	}
}

func TestFindUserByPhone_NotFound(t *testing.T) {
	db := newTestDB(t)
	_, err := FindUserByPhone(context.Background(), db, "+10000000000")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCountUsers(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	if _, err := UpsertUser(ctx, db, "+14155550003", nil); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if _, err := UpsertUser(ctx, db, "+14155550004", nil); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	n, err := CountUsers(ctx, db)
	if err != nil {
		t.Fatalf("CountUsers: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 users, got %d", n)
	}
}
