package domain

import (
	"sort"
	"strings"
	"time"

	"github.com/samber/lo"
)

// ConversationKind classifies a conversation as one-on-one or group.
type ConversationKind string

const (
	KindDirect ConversationKind = "direct"
	KindGroup  ConversationKind = "group"
)

// ContextKind tags the originating context of a conversation within the
// Jamiah platform.
type ContextKind string

const (
	ContextJamiah         ContextKind = "jamiah"
	ContextSupport        ContextKind = "support"
	ContextPaymentRequest ContextKind = "payment-request"
)

// User represents an application user.
type User struct {
	ID             string    `db:"id" json:"id"`
	Username       string    `db:"username" json:"username"`
	Email          *string   `db:"email" json:"email,omitempty"`
	HashedPassword string    `db:"hashed_password" json:"-"`
	IsActive       bool      `db:"is_active" json:"is_active"`
	IsOnline       bool      `db:"is_online" json:"is_online"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	LastSeen       time.Time `db:"last_seen" json:"last_seen"`
}

// Conversation represents a chat thread between a provider and a taker, or a
// group of Jamiah members.
//
// For direct conversations DirectKey holds the sorted-and-joined pair of
// participant IDs and is unique across all direct conversations; group
// conversations leave it nil and are exempt from that uniqueness rule.
type Conversation struct {
	ID           string           `db:"id" json:"id"`
	Kind         ConversationKind `db:"kind" json:"kind"`
	Topic        *string          `db:"topic" json:"topic,omitempty"`
	ProviderID   *string          `db:"provider_id" json:"provider_id,omitempty"`
	TakerID      *string          `db:"taker_id" json:"taker_id,omitempty"`
	DirectKey    *string          `db:"direct_key" json:"-"`
	ContextKind  *ContextKind     `db:"context_kind" json:"context_kind,omitempty"`
	ContextID    *string          `db:"context_id" json:"context_id,omitempty"`
	Preview      *string          `db:"preview" json:"preview,omitempty"`
	LastActivity time.Time        `db:"last_activity" json:"last_activity"`
	CreatedAt    time.Time        `db:"created_at" json:"created_at"`
}

// ConversationListItem is a conversation enriched with the endpoint display
// names and counterpart presence, as served to the conversation list.
type ConversationListItem struct {
	Conversation
	ProviderName string  `json:"provider_name,omitempty"`
	TakerName    string  `json:"taker_name,omitempty"`
	Presence     *string `json:"presence,omitempty"`
}

// ConversationParticipant represents the membership of a user in a conversation.
type ConversationParticipant struct {
	UserID         string     `db:"user_id"`
	ConversationID string     `db:"conversation_id"`
	LastReadAt     *time.Time `db:"last_read_at"`
	JoinedAt       *time.Time `db:"joined_at"`
}

// MessageKind discriminates message content.
type MessageKind string

const (
	MessageText   MessageKind = "text"
	MessageImage  MessageKind = "image"
	MessageSystem MessageKind = "system"
)

// Message represents a single chat message. Messages are immutable after
// creation except for the read flag.
type Message struct {
	ID             string      `db:"id" json:"id"`
	ConversationID string      `db:"conversation_id" json:"conversation_id"`
	SenderID       string      `db:"sender_id" json:"sender_id"`
	Kind           MessageKind `db:"kind" json:"kind"`
	Body           string      `db:"body" json:"body"`
	Read           bool        `db:"read" json:"read"`
	CreatedAt      time.Time   `db:"created_at" json:"created_at"`
}

// ParticipantSet dedupes and lexicographically sorts the given user IDs,
// dropping empty entries.
func ParticipantSet(ids []string) []string {
	set := lo.Uniq(lo.Filter(ids, func(id string, _ int) bool { return id != "" }))
	sort.Strings(set)
	return set
}

// DirectKeyFor derives the uniqueness key of a direct conversation from its
// participant IDs. The key is independent of argument order.
func DirectKeyFor(ids []string) string {
	return strings.Join(ParticipantSet(ids), "|")
}
