package domain

import (
	"context"
	"time"
)

// UserRepository defines persistence operations for users.
type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	ListActive(ctx context.Context, offset, limit int) ([]*User, error)
	ListOnline(ctx context.Context) ([]*User, error)
	SetOnlineStatus(ctx context.Context, id string, isOnline bool) error
}

// ConversationRepository defines persistence operations for conversations.
//
// ListByProvider, ListByTaker, and ListGroupsForUser are the three live-query
// sources merged by the feed aggregator; each is scoped to a single user.
type ConversationRepository interface {
	Create(ctx context.Context, c *Conversation, participantIDs []string) error
	GetByID(ctx context.Context, id string) (*Conversation, error)
	ListByProvider(ctx context.Context, userID string) ([]*ConversationListItem, error)
	ListByTaker(ctx context.Context, userID string) ([]*ConversationListItem, error)
	ListGroupsForUser(ctx context.Context, userID string) ([]*ConversationListItem, error)
	FindDirectByKey(ctx context.Context, key string, contextKind *ContextKind, contextID *string) (*Conversation, error)
	FindGroupByContext(ctx context.Context, contextKind ContextKind, contextID string) (*Conversation, error)
	UpdatePreview(ctx context.Context, id, preview string, at time.Time) error
	MarkAsRead(ctx context.Context, conversationID, userID string) error
}

// MessageRepository defines persistence operations for messages.
// ListForConversation returns messages newest-first; presentation order is
// the caller's concern.
type MessageRepository interface {
	Create(ctx context.Context, m *Message) error
	ListForConversation(ctx context.Context, conversationID string, limit int) ([]*Message, error)
	MarkAllRead(ctx context.Context, conversationID, readerID string) error
}

// ParticipantRepository defines operations around conversation participants.
type ParticipantRepository interface {
	ListParticipants(ctx context.Context, conversationID string) ([]*User, error)
	IsParticipant(ctx context.Context, conversationID, userID string) (bool, error)
}
