package feed

import (
	"context"
	"fmt"
	"log"
	"sync"

	"jamiah-chat/internal/domain"
	"jamiah-chat/internal/event"
)

// Status is the derived visibility state of a session's message feed.
type Status string

const (
	StatusIdle     Status = "no-active-conversation"
	StatusSelected Status = "conversation-selected"
	StatusLoading  Status = "messages-loading"
	StatusLive     Status = "messages-live"
)

// MessageLister loads the chronological message feed of a conversation as
// visible to a user.
type MessageLister func(ctx context.Context, conversationID, userID string) ([]*domain.Message, error)

// MessagesEmitFunc receives the full message feed of the active conversation
// on every change. A nil slice means the feed was cleared.
type MessagesEmitFunc func(conversationID string, msgs []*domain.Message)

// Session holds the view state of one connected client: the live
// conversation list, the selected conversation, and its message feed.
// It owns its subscription handles; at most one message subscription is
// alive at any time, and selecting a different conversation cancels the
// previous one before attaching the next.
type Session struct {
	agg      *Aggregator
	bus      event.Bus
	messages MessageLister
	userID   string

	mu         sync.Mutex
	convSub    *Subscription
	selected   string
	status     Status
	cancelFeed func()
	closed     bool
}

func NewSession(agg *Aggregator, bus event.Bus, messages MessageLister, userID string) *Session {
	return &Session{
		agg:      agg,
		bus:      bus,
		messages: messages,
		userID:   userID,
		status:   StatusIdle,
	}
}

// Start attaches the conversation-list subscription and emits the initial
// snapshot.
func (s *Session) Start(ctx context.Context, emit EmitFunc) error {
	sub, err := s.agg.Subscribe(ctx, s.userID, emit)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		sub.Unsubscribe()
		return nil
	}
	prev := s.convSub
	s.convSub = sub
	s.mu.Unlock()

	if prev != nil {
		prev.Unsubscribe()
	}
	return nil
}

// Search applies a search term to the conversation list.
func (s *Session) Search(ctx context.Context, term string) {
	s.mu.Lock()
	sub := s.convSub
	s.mu.Unlock()

	if sub != nil {
		sub.SetSearch(ctx, term)
	}
}

// Select makes the given conversation active: the previous message
// subscription is cancelled, the feed is cleared immediately, and the new
// feed is emitted once loaded and again on every subsequent change.
func (s *Session) Select(ctx context.Context, conversationID string, emit MessagesEmitFunc) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	if s.cancelFeed != nil {
		s.cancelFeed()
		s.cancelFeed = nil
	}
	s.selected = conversationID
	s.status = StatusSelected
	s.mu.Unlock()

	emit(conversationID, nil)

	s.mu.Lock()
	s.status = StatusLoading
	s.mu.Unlock()

	cancel, err := s.bus.Subscribe(event.MessageSubject(conversationID), func([]byte) {
		s.loadMessages(ctx, conversationID, emit)
	})
	if err != nil {
		log.Printf("feed: message subscription for conversation %s: %v", conversationID, err)
		return fmt.Errorf("%w: messages for conversation %s", domain.ErrSubscriptionFailed, conversationID)
	}

	s.mu.Lock()
	if s.closed || s.selected != conversationID {
		s.mu.Unlock()
		cancel()
		return nil
	}
	s.cancelFeed = cancel
	s.mu.Unlock()

	s.loadMessages(ctx, conversationID, emit)
	return nil
}

func (s *Session) loadMessages(ctx context.Context, conversationID string, emit MessagesEmitFunc) {
	msgs, err := s.messages(ctx, conversationID, s.userID)
	if err != nil {
		log.Printf("feed: load messages for conversation %s: %v", conversationID, err)
		return
	}

	s.mu.Lock()
	if s.closed || s.selected != conversationID {
		s.mu.Unlock()
		return
	}
	s.status = StatusLive
	s.mu.Unlock()

	emit(conversationID, msgs)
}

// Selected returns the active conversation ID, or empty if none.
func (s *Session) Selected() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected
}

// Status returns the derived feed status.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Close releases all subscriptions. Safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	convSub := s.convSub
	cancelFeed := s.cancelFeed
	s.convSub = nil
	s.cancelFeed = nil
	s.status = StatusIdle
	s.mu.Unlock()

	if cancelFeed != nil {
		cancelFeed()
	}
	if convSub != nil {
		convSub.Unsubscribe()
	}
}
