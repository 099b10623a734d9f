package service_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"jamiah-chat/internal/domain"
	"jamiah-chat/internal/event"
	"jamiah-chat/internal/security"
	"jamiah-chat/internal/service"
)

type MockMessageRepo struct {
	mock.Mock
}

func (m *MockMessageRepo) Create(ctx context.Context, msg *domain.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}

func (m *MockMessageRepo) ListForConversation(ctx context.Context, conversationID string, limit int) ([]*domain.Message, error) {
	args := m.Called(ctx, conversationID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Message), args.Error(1)
}

func (m *MockMessageRepo) MarkAllRead(ctx context.Context, conversationID, readerID string) error {
	args := m.Called(ctx, conversationID, readerID)
	return args.Error(0)
}

func newTestEncryptor(t *testing.T) *security.Encryptor {
	t.Helper()
	enc, err := security.NewEncryptor([]byte("test-key"))
	assert.NoError(t, err)
	return enc
}

func messageFixtures(t *testing.T) (*MockConversationRepo, *MockParticipantRepo, *MockMessageRepo, *service.MessageService, func()) {
	t.Helper()
	convRepo := new(MockConversationRepo)
	partRepo := new(MockParticipantRepo)
	msgRepo := new(MockMessageRepo)
	bus := event.NewMemoryBus()
	svc := service.NewMessageService(convRepo, partRepo, msgRepo, bus, nil, newTestEncryptor(t), 100, 80)
	return convRepo, partRepo, msgRepo, svc, func() { bus.Close() }
}

func TestSend(t *testing.T) {
	ctx := context.Background()

	t.Run("ReadDefaultsToFalse", func(t *testing.T) {
		convRepo, partRepo, msgRepo, svc, done := messageFixtures(t)
		defer done()

		convRepo.On("GetByID", mock.Anything, "conv-1").
			Return(&domain.Conversation{ID: "conv-1"}, nil)
		partRepo.On("IsParticipant", mock.Anything, "conv-1", "u1").Return(true, nil)
		partRepo.On("ListParticipants", mock.Anything, "conv-1").
			Return([]*domain.User{{ID: "u1"}, {ID: "u2"}}, nil)
		msgRepo.On("Create", mock.Anything, mock.MatchedBy(func(m *domain.Message) bool {
			return !m.Read && m.Body != "hello" // stored body is encrypted
		})).Return(nil)
		convRepo.On("UpdatePreview", mock.Anything, "conv-1", "hello", mock.Anything).Return(nil)

		msg, err := svc.Send(ctx, service.SendInput{
			ConversationID: "conv-1",
			Body:           "hello",
		}, "u1")

		assert.NoError(t, err)
		assert.False(t, msg.Read)
		assert.Equal(t, "hello", msg.Body)
		assert.Equal(t, domain.MessageText, msg.Kind)
		assert.False(t, msg.CreatedAt.IsZero())
		msgRepo.AssertExpectations(t)
	})

	t.Run("ExplicitReadIsHonored", func(t *testing.T) {
		convRepo, partRepo, msgRepo, svc, done := messageFixtures(t)
		defer done()

		convRepo.On("GetByID", mock.Anything, "conv-1").
			Return(&domain.Conversation{ID: "conv-1"}, nil)
		partRepo.On("IsParticipant", mock.Anything, "conv-1", "u1").Return(true, nil)
		partRepo.On("ListParticipants", mock.Anything, "conv-1").
			Return([]*domain.User{{ID: "u1"}}, nil)
		msgRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
		convRepo.On("UpdatePreview", mock.Anything, "conv-1", mock.Anything, mock.Anything).Return(nil)

		read := true
		msg, err := svc.Send(ctx, service.SendInput{
			ConversationID: "conv-1",
			Body:           "hello",
			Read:           &read,
		}, "u1")

		assert.NoError(t, err)
		assert.True(t, msg.Read)
	})

	t.Run("EmptyBodyRejected", func(t *testing.T) {
		_, _, _, svc, done := messageFixtures(t)
		defer done()

		_, err := svc.Send(ctx, service.SendInput{ConversationID: "conv-1"}, "u1")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("OversizedBodyRejected", func(t *testing.T) {
		_, _, _, svc, done := messageFixtures(t)
		defer done()

		_, err := svc.Send(ctx, service.SendInput{
			ConversationID: "conv-1",
			Body:           strings.Repeat("x", 5001),
		}, "u1")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("UnknownKindRejected", func(t *testing.T) {
		_, _, _, svc, done := messageFixtures(t)
		defer done()

		_, err := svc.Send(ctx, service.SendInput{
			ConversationID: "conv-1",
			Body:           "hi",
			Kind:           domain.MessageKind("voice"),
		}, "u1")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})

	t.Run("MissingConversation", func(t *testing.T) {
		convRepo, _, _, svc, done := messageFixtures(t)
		defer done()

		convRepo.On("GetByID", mock.Anything, "missing").Return(nil, nil)

		_, err := svc.Send(ctx, service.SendInput{ConversationID: "missing", Body: "hi"}, "u1")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("NonParticipantForbidden", func(t *testing.T) {
		convRepo, partRepo, _, svc, done := messageFixtures(t)
		defer done()

		convRepo.On("GetByID", mock.Anything, "conv-1").
			Return(&domain.Conversation{ID: "conv-1"}, nil)
		partRepo.On("IsParticipant", mock.Anything, "conv-1", "stranger").Return(false, nil)

		_, err := svc.Send(ctx, service.SendInput{ConversationID: "conv-1", Body: "hi"}, "stranger")
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})

	t.Run("PreviewFailureDoesNotFailSend", func(t *testing.T) {
		convRepo, partRepo, msgRepo, svc, done := messageFixtures(t)
		defer done()

		convRepo.On("GetByID", mock.Anything, "conv-1").
			Return(&domain.Conversation{ID: "conv-1"}, nil)
		partRepo.On("IsParticipant", mock.Anything, "conv-1", "u1").Return(true, nil)
		partRepo.On("ListParticipants", mock.Anything, "conv-1").
			Return([]*domain.User{{ID: "u1"}}, nil)
		msgRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
		convRepo.On("UpdatePreview", mock.Anything, "conv-1", mock.Anything, mock.Anything).
			Return(errors.New("db down"))

		msg, err := svc.Send(ctx, service.SendInput{ConversationID: "conv-1", Body: "hi"}, "u1")
		assert.NoError(t, err)
		assert.NotNil(t, msg)
	})

	t.Run("ImagePreviewIsPlaceholder", func(t *testing.T) {
		convRepo, partRepo, msgRepo, svc, done := messageFixtures(t)
		defer done()

		convRepo.On("GetByID", mock.Anything, "conv-1").
			Return(&domain.Conversation{ID: "conv-1"}, nil)
		partRepo.On("IsParticipant", mock.Anything, "conv-1", "u1").Return(true, nil)
		partRepo.On("ListParticipants", mock.Anything, "conv-1").
			Return([]*domain.User{{ID: "u1"}}, nil)
		msgRepo.On("Create", mock.Anything, mock.Anything).Return(nil)
		convRepo.On("UpdatePreview", mock.Anything, "conv-1", "[image]", mock.Anything).Return(nil)

		_, err := svc.Send(ctx, service.SendInput{
			ConversationID: "conv-1",
			Body:           "/api/uploads/123.png",
			Kind:           domain.MessageImage,
		}, "u1")
		assert.NoError(t, err)
		convRepo.AssertExpectations(t)
	})

	t.Run("StoreFailureIsWriteFailed", func(t *testing.T) {
		convRepo, partRepo, msgRepo, svc, done := messageFixtures(t)
		defer done()

		convRepo.On("GetByID", mock.Anything, "conv-1").
			Return(&domain.Conversation{ID: "conv-1"}, nil)
		partRepo.On("IsParticipant", mock.Anything, "conv-1", "u1").Return(true, nil)
		msgRepo.On("Create", mock.Anything, mock.Anything).Return(errors.New("disk full"))

		_, err := svc.Send(ctx, service.SendInput{ConversationID: "conv-1", Body: "hi"}, "u1")
		assert.ErrorIs(t, err, domain.ErrWriteFailed)
	})
}

func TestMessageList(t *testing.T) {
	ctx := context.Background()

	t.Run("ChronologicalAndDecrypted", func(t *testing.T) {
		convRepo, partRepo, msgRepo, svc, done := messageFixtures(t)
		defer done()

		enc := newTestEncryptor(t)
		first, err := enc.Encrypt("first")
		assert.NoError(t, err)
		second, err := enc.Encrypt("second")
		assert.NoError(t, err)

		convRepo.On("GetByID", mock.Anything, "conv-1").
			Return(&domain.Conversation{ID: "conv-1"}, nil)
		partRepo.On("IsParticipant", mock.Anything, "conv-1", "u1").Return(true, nil)
		// storage order is newest-first
		msgRepo.On("ListForConversation", mock.Anything, "conv-1", 100).
			Return([]*domain.Message{
				{ID: "m2", Body: second, CreatedAt: time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC)},
				{ID: "m1", Body: first, CreatedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)},
			}, nil)

		msgs, err := svc.List(ctx, "conv-1", "u1", 0)
		assert.NoError(t, err)
		assert.Len(t, msgs, 2)
		assert.Equal(t, "first", msgs[0].Body)
		assert.Equal(t, "second", msgs[1].Body)
	})

	t.Run("UndecryptableBodyKeptRaw", func(t *testing.T) {
		convRepo, partRepo, msgRepo, svc, done := messageFixtures(t)
		defer done()

		convRepo.On("GetByID", mock.Anything, "conv-1").
			Return(&domain.Conversation{ID: "conv-1"}, nil)
		partRepo.On("IsParticipant", mock.Anything, "conv-1", "u1").Return(true, nil)
		msgRepo.On("ListForConversation", mock.Anything, "conv-1", 100).
			Return([]*domain.Message{{ID: "m1", Body: "plain legacy text"}}, nil)

		msgs, err := svc.List(ctx, "conv-1", "u1", 0)
		assert.NoError(t, err)
		assert.Equal(t, "plain legacy text", msgs[0].Body)
	})

	t.Run("LimitClampedToHistoryLimit", func(t *testing.T) {
		convRepo, partRepo, msgRepo, svc, done := messageFixtures(t)
		defer done()

		convRepo.On("GetByID", mock.Anything, "conv-1").
			Return(&domain.Conversation{ID: "conv-1"}, nil)
		partRepo.On("IsParticipant", mock.Anything, "conv-1", "u1").Return(true, nil)
		msgRepo.On("ListForConversation", mock.Anything, "conv-1", 100).
			Return([]*domain.Message{}, nil)

		_, err := svc.List(ctx, "conv-1", "u1", 10_000)
		assert.NoError(t, err)
		msgRepo.AssertExpectations(t)
	})

	t.Run("NonParticipantForbidden", func(t *testing.T) {
		convRepo, partRepo, _, svc, done := messageFixtures(t)
		defer done()

		convRepo.On("GetByID", mock.Anything, "conv-1").
			Return(&domain.Conversation{ID: "conv-1"}, nil)
		partRepo.On("IsParticipant", mock.Anything, "conv-1", "stranger").Return(false, nil)

		_, err := svc.List(ctx, "conv-1", "stranger", 0)
		assert.ErrorIs(t, err, domain.ErrForbidden)
	})
}

func TestMarkAllRead(t *testing.T) {
	ctx := context.Background()

	t.Run("MarksAndRecordsPosition", func(t *testing.T) {
		convRepo, partRepo, msgRepo, svc, done := messageFixtures(t)
		defer done()

		partRepo.On("IsParticipant", mock.Anything, "conv-1", "u1").Return(true, nil)
		msgRepo.On("MarkAllRead", mock.Anything, "conv-1", "u1").Return(nil)
		convRepo.On("MarkAsRead", mock.Anything, "conv-1", "u1").Return(nil)

		assert.NoError(t, svc.MarkAllRead(ctx, "conv-1", "u1"))
		msgRepo.AssertExpectations(t)
		convRepo.AssertExpectations(t)
	})

	t.Run("NonParticipantForbidden", func(t *testing.T) {
		_, partRepo, _, svc, done := messageFixtures(t)
		defer done()

		partRepo.On("IsParticipant", mock.Anything, "conv-1", "stranger").Return(false, nil)
		assert.ErrorIs(t, svc.MarkAllRead(ctx, "conv-1", "stranger"), domain.ErrForbidden)
	})
}
