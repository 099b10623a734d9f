package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"jamiah-chat/internal/domain"
	"jamiah-chat/internal/event"
	"jamiah-chat/internal/feed"
)

// ConversationService resolves conversation intents: an existing matching
// conversation is returned unchanged, otherwise exactly one new record is
// created.
type ConversationService struct {
	conversations domain.ConversationRepository
	participants  domain.ParticipantRepository
	bus           event.Bus
}

func NewConversationService(
	conversations domain.ConversationRepository,
	participants domain.ParticipantRepository,
	bus event.Bus,
) *ConversationService {
	return &ConversationService{
		conversations: conversations,
		participants:  participants,
		bus:           bus,
	}
}

// ResolveInput describes a conversation intent. ParticipantIDs takes
// precedence over the provider/taker pair when supplied. CreatedAt and
// LastActivity accept caller-supplied timestamps in any boundary form and
// are normalized once on ingestion.
type ResolveInput struct {
	ParticipantIDs []string
	ProviderID     string
	TakerID        string
	Kind           *domain.ConversationKind
	ContextKind    *domain.ContextKind
	ContextID      *string
	Topic          *string
	CreatedAt      any
	LastActivity   any
}

// Resolve returns the matching conversation, creating it when none exists.
// The second return value reports whether a new record was persisted; the
// caller marks a newly created conversation as its active one.
//
// Direct intents match on the sorted two-participant key (plus context kind
// and id when supplied); group intents skip the key check and match on
// context only.
func (s *ConversationService) Resolve(ctx context.Context, in ResolveInput, callerID string) (*domain.Conversation, bool, error) {
	ids := in.ParticipantIDs
	if len(ids) == 0 {
		ids = []string{in.ProviderID, in.TakerID}
	}
	set := domain.ParticipantSet(ids)
	if len(set) < 2 {
		return nil, false, fmt.Errorf("%w: a conversation needs at least two participants", domain.ErrInvalidInput)
	}

	isGroup := (in.Kind != nil && *in.Kind == domain.KindGroup) ||
		(in.ContextKind != nil && *in.ContextKind == domain.ContextJamiah) ||
		len(set) > 2

	if !isGroup {
		key := domain.DirectKeyFor(set)
		existing, err := s.conversations.FindDirectByKey(ctx, key, in.ContextKind, in.ContextID)
		if err != nil {
			return nil, false, fmt.Errorf("find direct conversation: %w", err)
		}
		if existing != nil {
			return existing, false, nil
		}
	} else if in.ContextKind != nil && in.ContextID != nil {
		existing, err := s.conversations.FindGroupByContext(ctx, *in.ContextKind, *in.ContextID)
		if err != nil {
			return nil, false, fmt.Errorf("find group conversation: %w", err)
		}
		if existing != nil {
			return existing, false, nil
		}
	}

	now := time.Now().UTC()
	createdAt := domain.ParseInstant(in.CreatedAt)
	if createdAt.IsZero() {
		createdAt = now
	}
	lastActivity := domain.ParseInstant(in.LastActivity)
	if lastActivity.IsZero() {
		lastActivity = createdAt
	}

	conv := &domain.Conversation{
		ID:           uuid.NewString(),
		Kind:         domain.KindGroup,
		Topic:        in.Topic,
		ContextKind:  in.ContextKind,
		ContextID:    in.ContextID,
		LastActivity: lastActivity,
		CreatedAt:    createdAt,
	}
	if !isGroup {
		conv.Kind = domain.KindDirect
		provider, taker := in.ProviderID, in.TakerID
		if provider == "" || taker == "" {
			provider, taker = set[0], set[1]
		}
		key := domain.DirectKeyFor(set)
		conv.ProviderID = &provider
		conv.TakerID = &taker
		conv.DirectKey = &key
	}

	if err := s.conversations.Create(ctx, conv, set); err != nil {
		return nil, false, fmt.Errorf("%w: create conversation: %v", domain.ErrWriteFailed, err)
	}

	for _, uid := range set {
		if err := s.bus.Publish(event.ConversationSubject(uid), []byte(conv.ID)); err != nil {
			log.Printf("conversation: notify user %s: %v", uid, err)
		}
	}
	return conv, true, nil
}

// List returns the merged, sorted, optionally filtered conversation list for
// a user. A failing source degrades to an empty list; partial data is
// preferred over no data.
func (s *ConversationService) List(ctx context.Context, userID, term string) ([]*domain.ConversationListItem, error) {
	sources := []feed.ListFunc{
		s.conversations.ListByProvider,
		s.conversations.ListByTaker,
		s.conversations.ListGroupsForUser,
	}
	lists := make([][]*domain.ConversationListItem, 0, len(sources))
	for i, src := range sources {
		items, err := src(ctx, userID)
		if err != nil {
			log.Printf("conversation: list source %d for user %s: %v", i, userID, err)
			items = nil
		}
		lists = append(lists, items)
	}
	return feed.Filter(feed.SortByActivity(feed.Merge(lists...)), term), nil
}

// Get returns a conversation the user participates in.
func (s *ConversationService) Get(ctx context.Context, conversationID, userID string) (*domain.Conversation, error) {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if conv == nil {
		return nil, domain.ErrNotFound
	}
	isParticipant, err := s.participants.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, fmt.Errorf("check participant: %w", err)
	}
	if !isParticipant {
		return nil, domain.ErrForbidden
	}
	return conv, nil
}

// MarkAsRead records the user's read position in the conversation.
func (s *ConversationService) MarkAsRead(ctx context.Context, conversationID, userID string) error {
	return s.conversations.MarkAsRead(ctx, conversationID, userID)
}
