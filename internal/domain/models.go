// Package domain defines the persistence models for users, conversations,
// messages, and analytics. These types are mapped with GORM and form the
// core data layer of the conversational gateway.
package domain

import (
	"time"

	"gorm.io/gorm"
)

// Conversation states.
const (
	ConversationActive   = "active"
	ConversationClosed   = "closed"
	ConversationArchived = "archived"
)

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// User represents a distinct WhatsApp sender identified by phone number.
// Phone numbers are stored without the provider's "whatsapp:" prefix.
//
// Fields:
//   - ID: stable UUID primary key.
//   - Phone: E.164-ish phone number, unique, indexed for webhook lookups.
//   - Language: BCP-47 language tag used for locale-aware replies (default "es").
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker.
type User struct {
	ID        string         `json:"id"        gorm:"type:char(36);primaryKey"`
	Phone     string         `json:"phone"     gorm:"type:varchar(32);not null;uniqueIndex:ux_users_phone"`
	Language  string         `json:"language"  gorm:"type:varchar(8);not null;default:'es'"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-"         gorm:"index"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// Conversation represents a bounded exchange between one User and the
// assistant. A user may have at most one active conversation at a time;
// closed/archived conversations are terminal and are never reactivated.
//
// Fields:
//   - ID: UUID primary key.
//   - UserID: owning user (indexed; a conversation belongs to exactly one user).
//   - State: "active", "closed", or "archived" (enforced by DB constraint).
//   - Summary: optional running summary of the conversation so far.
//   - LastActivityAt: timestamp of the most recent turn; used to pick the
//     current active conversation when more than one exists historically.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker.
//   - User: FK association, cascade delete/update.
type Conversation struct {
	ID             string         `json:"id"               gorm:"type:char(36);primaryKey"`
	UserID         string         `json:"user_id"          gorm:"type:char(36);not null;index:idx_user_conversations"`
	State          string         `json:"state"            gorm:"type:varchar(16);not null;default:'active';check:state IN ('active','closed','archived')"`
	Summary        string         `json:"summary"          gorm:"type:text"`
	LastActivityAt time.Time      `json:"last_activity_at" gorm:"index:idx_user_conversations,priority:2"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-"                gorm:"index"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// Message represents a single turn within a conversation, authored by the
// user, the assistant, or the system (system turns are written through
// MessageService.SaveSystem; the apology reply sent when a pipeline stage
// fails is not stored).
//
// Fields:
//   - ID: UUID primary key.
//   - ConversationID: owning conversation (indexed).
//   - Role: "user", "assistant", or "system" (enforced by DB constraint).
//   - Content: full text content of the turn.
//   - ProviderSID: the messaging provider's unique message identifier, used
//     as the at-most-once insertion key for inbound user turns. Nullable
//     because assistant/system turns are never provider-originated.
//   - ExternalRef: optional free-form delivery-correlation reference,
//     independent of ProviderSID; not read by the core path.
//   - TokensUsed: token count charged to this turn, when known (assistant
//     turns only).
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//   - DeletedAt: soft deletion marker.
//   - Conversation: FK association, cascade delete/update.
type Message struct {
	ID             string         `json:"id"                      gorm:"type:char(36);primaryKey"`
	ConversationID string         `json:"conversation_id"         gorm:"type:char(36);not null;index:idx_conv_msgs,priority:1;index:idx_msgs_role_conv,priority:2"`
	Role           string         `json:"role"                    gorm:"type:varchar(16);not null;index:idx_msgs_role_conv,priority:1;check:role IN ('user','assistant','system')"`
	Content        string         `json:"content"                 gorm:"type:text;not null"`
	ProviderSID    *string        `json:"provider_sid,omitempty"  gorm:"type:varchar(64);uniqueIndex:ux_messages_provider_sid"`
	ExternalRef    *string        `json:"external_ref,omitempty"  gorm:"type:varchar(128)"`
	TokensUsed     *int           `json:"tokens_used,omitempty"`
	LatencyMs      *int           `json:"latency_ms,omitempty"`
	CreatedAt      time.Time      `json:"created_at" gorm:"index:idx_conv_msgs,priority:2"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `json:"-"          gorm:"index"`

	Conversation Conversation `json:"-" gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }

// Analytics is declared and migrated alongside the core schema but is not
// written to by any request-path code; it exists so the full schema surface
// named by the system design is present, mirroring how a production rollout
// typically reserves a table ahead of shipping the feature that fills it.
type Analytics struct {
	ID             string    `json:"id"              gorm:"type:char(36);primaryKey"`
	ConversationID string    `json:"conversation_id" gorm:"type:char(36);not null;index"`
	Event          string    `json:"event"           gorm:"type:varchar(64);not null"`
	Payload        string    `json:"payload"         gorm:"type:text"`
	CreatedAt      time.Time `json:"created_at"`
}

// TableName returns the database table name for Analytics.
func (Analytics) TableName() string { return "analytics" }
