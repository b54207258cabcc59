package services

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/VallejoLeonardo/alumnosb/internal/mq"
	"github.com/VallejoLeonardo/alumnosb/types"
)

// ErrEmptyMessage is returned when the recipient or content is missing.
var ErrEmptyMessage = errors.New("recipient and content are required")

// MessageRepository defines persistence operations for messages.
type MessageRepository interface {
	Insert(ctx context.Context, message types.Message) (types.Message, error)
	Conversation(ctx context.Context, matriculaA, matriculaB string) ([]types.Message, error)
	Inbox(ctx context.Context, matricula string, offset, limit int) ([]types.Message, int, error)
	Sent(ctx context.Context, matricula string, offset, limit int) ([]types.Message, int, error)
	Delete(ctx context.Context, id int64, senderMatricula string) error
	MarkRead(ctx context.Context, id int64, recipientMatricula string) error
}

// MessageService encapsulates messaging use-cases. Every operation is scoped
// to the sender/recipient identity resolved by the auth middleware.
type MessageService struct {
	repo     MessageRepository
	students StudentRepository
	events   *mq.MQ
}

// NewMessageService constructs the service. events may be nil when no broker
// is configured.
func NewMessageService(repo MessageRepository, students StudentRepository, events *mq.MQ) *MessageService {
	return &MessageService{repo: repo, students: students, events: events}
}

// Send validates the request, checks that the recipient exists, and inserts
// the message with the sender taken from the caller's verified identity.
func (s *MessageService) Send(ctx context.Context, senderMatricula, recipientMatricula, content string) (types.Message, error) {
	recipientMatricula = strings.TrimSpace(recipientMatricula)
	if recipientMatricula == "" || strings.TrimSpace(content) == "" {
		return types.Message{}, ErrEmptyMessage
	}

	if _, err := s.students.GetByMatricula(ctx, recipientMatricula); err != nil {
		return types.Message{}, err
	}

	message, err := s.repo.Insert(ctx, types.Message{
		SenderMatricula:    senderMatricula,
		RecipientMatricula: recipientMatricula,
		Content:            content,
	})
	if err != nil {
		return types.Message{}, err
	}

	s.publishSent(message)
	return message, nil
}

func (s *MessageService) Conversation(ctx context.Context, callerMatricula, counterpartMatricula string) ([]types.Message, error) {
	return s.repo.Conversation(ctx, callerMatricula, counterpartMatricula)
}

func (s *MessageService) Inbox(ctx context.Context, matricula string, offset, limit int) ([]types.Message, int, error) {
	return s.repo.Inbox(ctx, matricula, offset, limit)
}

func (s *MessageService) Sent(ctx context.Context, matricula string, offset, limit int) ([]types.Message, int, error) {
	return s.repo.Sent(ctx, matricula, offset, limit)
}

func (s *MessageService) Delete(ctx context.Context, id int64, callerMatricula string) error {
	return s.repo.Delete(ctx, id, callerMatricula)
}

func (s *MessageService) MarkRead(ctx context.Context, id int64, callerMatricula string) error {
	return s.repo.MarkRead(ctx, id, callerMatricula)
}

// publishSent emits a messages.sent event. Publishing is best-effort:
// failures are logged and never affect the request.
func (s *MessageService) publishSent(message types.Message) {
	if s.events == nil {
		return
	}

	payload, err := json.Marshal(map[string]string{
		"message_id": strconv.FormatInt(message.ID, 10),
		"sender":     message.SenderMatricula,
		"recipient":  message.RecipientMatricula,
		"sent_at":    message.SentAt.Format(time.RFC3339),
	})
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := s.events.Publish(ctx, mq.TopicMessageSent, payload, nil); err != nil {
		slog.Warn("failed to publish message sent event", "message_id", message.ID, "err", err)
	}
}
