// Package cache implements the conversation context cache: a Redis-backed,
// JSON-serialized, TTL-bounded copy of a conversation's recent messages.
//
// The store is the source of truth; the cache is a non-authoritative
// optimization. A document that fails schema validation on read is treated
// as a miss and deleted, never surfaced to the caller.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// TTL is the fixed lifetime of a cached context document.
const TTL = 3600 * time.Second

const keyPrefix = "conversation:"
const keySuffix = ":context"

// Message is one entry in a cached context document.
type Message struct {
	ID         string `json:"id"`
	Role       string `json:"role"`
	Content    string `json:"content"`
	CreatedAt  string `json:"createdAt"`
	TokensUsed *int   `json:"tokensUsed"`
	LatencyMs  *int   `json:"latencyMs"`
}

// Document is the JSON shape stored under conversation:{id}:context.
type Document struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userId"`
	Status         string    `json:"status"`
	ContextSummary *string   `json:"contextSummary"`
	LastMessageAt  string    `json:"lastMessageAt"`
	CreatedAt      string    `json:"createdAt"`
	UpdatedAt      string    `json:"updatedAt"`
	Messages       []Message `json:"messages"`
}

// Validate reports whether d satisfies the minimal schema contract: an id,
// a user id, a status, and (if present) well-formed messages. It is
// deliberately permissive about timestamp formatting since the source field
// accepts either an ISO-8601 string or (pre-marshal) a native time.Time —
// by the time it reaches this struct it is always a string.
func (d Document) Validate() error {
	if d.ID == "" {
		return errors.New("cache document missing id")
	}
	if d.UserID == "" {
		return errors.New("cache document missing userId")
	}
	if d.Status == "" {
		return errors.New("cache document missing status")
	}
	for _, m := range d.Messages {
		if m.Role == "" || m.CreatedAt == "" {
			return errors.New("cache document has a malformed message entry")
		}
	}
	return nil
}

// ContextCache wraps a Redis client with the conversation-context cache
// operations used by the conversation and message services.
type ContextCache struct {
	redis *goredis.Client
}

// New returns a ContextCache backed by redis.
func New(redis *goredis.Client) *ContextCache {
	return &ContextCache{redis: redis}
}

func cacheKey(conversationID string) string {
	return keyPrefix + conversationID + keySuffix
}

// Get returns the cached document for conversationID, or (nil, nil) on a
// miss. A schema-invalid entry is deleted and treated as a miss rather than
// returned or erroring.
func (c *ContextCache) Get(ctx context.Context, conversationID string) (*Document, error) {
	if c.redis == nil {
		return nil, nil
	}
	data, err := c.redis.Get(ctx, cacheKey(conversationID)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, err
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		_ = c.redis.Del(ctx, cacheKey(conversationID)).Err()
		return nil, nil
	}
	if err := doc.Validate(); err != nil {
		_ = c.redis.Del(ctx, cacheKey(conversationID)).Err()
		return nil, nil
	}
	return &doc, nil
}

// Set writes doc for conversationID with the fixed TTL.
func (c *ContextCache) Set(ctx context.Context, conversationID string, doc Document) error {
	if c.redis == nil {
		return nil
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return c.redis.Set(ctx, cacheKey(conversationID), data, TTL).Err()
}

// Invalidate deletes the cached document for conversationID, if any.
func (c *ContextCache) Invalidate(ctx context.Context, conversationID string) error {
	if c.redis == nil {
		return nil
	}
	return c.redis.Del(ctx, cacheKey(conversationID)).Err()
}
