package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"jamiah-chat/internal/domain"
	"jamiah-chat/internal/event"
	"jamiah-chat/internal/queue/port"
	"jamiah-chat/internal/queue/task"
	"jamiah-chat/internal/security"
)

const maxMessageRunes = 5000

// MessageService persists and streams messages. Bodies are encrypted at
// rest; the conversation preview update after a send is best-effort and
// never fails the send itself.
type MessageService struct {
	conversations domain.ConversationRepository
	participants  domain.ParticipantRepository
	messages      domain.MessageRepository
	bus           event.Bus
	queue         port.Client // nil means the preview update runs inline
	encryptor     *security.Encryptor

	HistoryLimit  int
	PreviewMaxLen int
}

func NewMessageService(
	conversations domain.ConversationRepository,
	participants domain.ParticipantRepository,
	messages domain.MessageRepository,
	bus event.Bus,
	queue port.Client,
	encryptor *security.Encryptor,
	historyLimit, previewMaxLen int,
) *MessageService {
	if historyLimit <= 0 {
		historyLimit = 1000
	}
	if previewMaxLen <= 0 {
		previewMaxLen = 80
	}
	return &MessageService{
		conversations: conversations,
		participants:  participants,
		messages:      messages,
		bus:           bus,
		queue:         queue,
		encryptor:     encryptor,
		HistoryLimit:  historyLimit,
		PreviewMaxLen: previewMaxLen,
	}
}

// SendInput carries a message to append. Read defaults to unread unless the
// caller explicitly sets it.
type SendInput struct {
	ConversationID string
	Body           string
	Kind           domain.MessageKind
	Read           *bool
}

// Send appends a message with a server-assigned creation timestamp.
func (s *MessageService) Send(ctx context.Context, in SendInput, senderID string) (*domain.Message, error) {
	kind := in.Kind
	if kind == "" {
		kind = domain.MessageText
	}
	switch kind {
	case domain.MessageText, domain.MessageImage, domain.MessageSystem:
	default:
		return nil, fmt.Errorf("%w: unknown message kind %q", domain.ErrInvalidInput, in.Kind)
	}
	if in.Body == "" {
		return nil, fmt.Errorf("%w: message body cannot be empty", domain.ErrInvalidInput)
	}
	if len([]rune(in.Body)) > maxMessageRunes {
		return nil, fmt.Errorf("%w: message body exceeds %d characters", domain.ErrInvalidInput, maxMessageRunes)
	}

	conv, err := s.conversations.GetByID(ctx, in.ConversationID)
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if conv == nil {
		return nil, domain.ErrNotFound
	}
	isParticipant, err := s.participants.IsParticipant(ctx, in.ConversationID, senderID)
	if err != nil {
		return nil, fmt.Errorf("check participant: %w", err)
	}
	if !isParticipant {
		return nil, domain.ErrForbidden
	}

	encrypted, err := s.encryptor.Encrypt(in.Body)
	if err != nil {
		return nil, fmt.Errorf("encrypt body: %w", err)
	}

	msg := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: in.ConversationID,
		SenderID:       senderID,
		Kind:           kind,
		Body:           in.Body,
		Read:           in.Read != nil && *in.Read,
		CreatedAt:      time.Now().UTC(),
	}
	stored := *msg
	stored.Body = encrypted
	if err := s.messages.Create(ctx, &stored); err != nil {
		return nil, fmt.Errorf("%w: store message: %v", domain.ErrWriteFailed, err)
	}

	participantIDs, err := s.ParticipantIDs(ctx, in.ConversationID)
	if err != nil {
		log.Printf("message: list participants of %s: %v", in.ConversationID, err)
		participantIDs = nil
	}
	if err := s.bus.Publish(event.MessageSubject(in.ConversationID), []byte(msg.ID)); err != nil {
		log.Printf("message: notify conversation %s: %v", in.ConversationID, err)
	}

	s.updatePreview(ctx, conv.ID, previewFor(kind, in.Body, s.PreviewMaxLen), msg.CreatedAt, participantIDs)

	return msg, nil
}

// List returns the message feed in chronological order, as visible to the
// given participant.
func (s *MessageService) List(ctx context.Context, conversationID, userID string, limit int) ([]*domain.Message, error) {
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

	if limit <= 0 || limit > s.HistoryLimit {
		limit = s.HistoryLimit
	}
	msgs, err := s.messages.ListForConversation(ctx, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	// Storage order is newest-first; presentation is oldest-first.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	for _, m := range msgs {
		if plain, err := s.encryptor.Decrypt(m.Body); err == nil {
			m.Body = plain
		}
		// on decrypt error keep the raw body
	}
	return msgs, nil
}

// MarkAllRead flags every message from other senders as read and records the
// caller's read position.
func (s *MessageService) MarkAllRead(ctx context.Context, conversationID, callerID string) error {
	isParticipant, err := s.participants.IsParticipant(ctx, conversationID, callerID)
	if err != nil {
		return fmt.Errorf("check participant: %w", err)
	}
	if !isParticipant {
		return domain.ErrForbidden
	}
	if err := s.messages.MarkAllRead(ctx, conversationID, callerID); err != nil {
		return fmt.Errorf("%w: mark messages read: %v", domain.ErrWriteFailed, err)
	}
	if err := s.conversations.MarkAsRead(ctx, conversationID, callerID); err != nil {
		log.Printf("message: record read position in %s: %v", conversationID, err)
	}
	if err := s.bus.Publish(event.MessageSubject(conversationID), []byte("read")); err != nil {
		log.Printf("message: notify conversation %s: %v", conversationID, err)
	}
	return nil
}

// ParticipantIDs returns user IDs of all conversation participants, for
// websocket broadcasts.
func (s *MessageService) ParticipantIDs(ctx context.Context, conversationID string) ([]string, error) {
	participants, err := s.participants.ListParticipants(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return lo.Map(participants, func(u *domain.User, _ int) string { return u.ID }), nil
}

// updatePreview refreshes the parent conversation's preview and
// last-activity. Failures are logged and swallowed.
func (s *MessageService) updatePreview(ctx context.Context, conversationID, preview string, at time.Time, participantIDs []string) {
	if s.queue != nil {
		payload, err := json.Marshal(task.UpdatePreviewPayload{
			ConversationID: conversationID,
			Preview:        preview,
			ActivityAt:     at,
			ParticipantIDs: participantIDs,
		})
		if err == nil {
			_, err = s.queue.Enqueue(ctx, port.Task{Type: task.UpdatePreviewTaskType, Payload: payload},
				port.EnqueueOption{Queue: "chat", MaxRetry: 3})
		}
		if err != nil {
			log.Printf("message: enqueue preview update for %s: %v", conversationID, err)
		}
		return
	}

	if err := s.conversations.UpdatePreview(ctx, conversationID, preview, at); err != nil {
		log.Printf("message: update preview for %s: %v", conversationID, err)
		return
	}
	for _, uid := range participantIDs {
		if err := s.bus.Publish(event.ConversationSubject(uid), []byte(conversationID)); err != nil {
			log.Printf("message: notify user %s: %v", uid, err)
		}
	}
}

func previewFor(kind domain.MessageKind, body string, maxLen int) string {
	if kind == domain.MessageImage {
		return "[image]"
	}
	runes := []rune(body)
	if len(runes) > maxLen {
		return string(runes[:maxLen])
	}
	return body
}
