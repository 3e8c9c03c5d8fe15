package repo

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestCreateConversation_And_FindActive(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u, err := UpsertUser(ctx, db, "+14155550010", nil)
	if err != nil {
		t.Fatalf("upsert user: %v", err)
	}

	c, err := CreateConversation(ctx, db, u.ID)
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	got, err := FindActiveConversationByUser(ctx, db, u.ID)
	if err != nil {
		t.Fatalf("find active: %v", err)
	}
	if got.ID != c.ID {
		t.Fatalf("expected %q, got %q", c.ID, got.ID)
	}
}

func TestFindActiveConversationByUser_PicksGreatestLastActivity(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	u, err := UpsertUser(ctx, db, "+14155550011", nil)
	if err != nil {
		t.Fatalf("upsert user: %v", err)
	}

	older, err := CreateConversation(ctx, db, u.ID)
	if err != nil {
		t.Fatalf("create older: %v", err)
	}
	newer, err := CreateConversation(ctx, db, u.ID)
	if err != nil {
		t.Fatalf("create newer: %v", err)
	}

	if _, err := TouchConversation(ctx, db, older.ID, time.Now().UTC().Add(-time.Hour)); err != nil {
		t.Fatalf("touch older: %v", err)
	}
	if _, err := TouchConversation(ctx, db, newer.ID, time.Now().UTC()); err != nil {
		t.Fatalf("touch newer: %v", err)
	}

	got, err := FindActiveConversationByUser(ctx, db, u.ID)
	if err != nil {
		t.Fatalf("find active: %v", err)
	}
	if got.ID != newer.ID {
		t.Fatalf("expected newer conversation %q, got %q", newer.ID, got.ID)
	}
}

func TestFindConversationByID_OwnershipMismatchLooksNotFound(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	owner, _ := UpsertUser(ctx, db, "+14155550012", nil)
	other, _ := UpsertUser(ctx, db, "+14155550013", nil)
	c, err := CreateConversation(ctx, db, owner.ID)
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	if _, err := FindConversationByID(ctx, db, c.ID, other.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for ownership mismatch, got %v", err)
	}
	if got, err := FindConversationByID(ctx, db, c.ID, owner.ID); err != nil || got.ID != c.ID {
		t.Fatalf("expected owner lookup to succeed, got got=%v err=%v", got, err)
	}
}

func TestClose_OwnershipCheckAndTerminalState(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	owner, _ := UpsertUser(ctx, db, "+14155550014", nil)
	intruder, _ := UpsertUser(ctx, db, "+14155550015", nil)
	c, err := CreateConversation(ctx, db, owner.ID)
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	if _, err := Close(ctx, db, c.ID, intruder.ID); !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}

	closed, err := Close(ctx, db, c.ID, owner.ID)
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if closed.State != "closed" {
		t.Fatalf("expected closed state, got %q", closed.State)
	}

	if _, err := Archive(ctx, db, c.ID, owner.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition from closed, got %v", err)
	}
}

func TestSetSummary_OwnershipCheck(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	owner, _ := UpsertUser(ctx, db, "+14155550016", nil)
	c, err := CreateConversation(ctx, db, owner.ID)
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	got, err := SetSummary(ctx, db, c.ID, "summary text", owner.ID)
	if err != nil {
		t.Fatalf("set summary: %v", err)
	}
	if got.Summary != "summary text" {
		t.Fatalf("unexpected summary: %q", got.Summary)
	}
}
