//go:generate go run go.uber.org/mock/mockgen -source=messaging_service.go -destination=../mocks/mock_messaging_service.go -package=mocks
package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"chat-router/domain"
	"chat-router/errors"
	"chat-router/moderation"
	"chat-router/routing"
)

type IMessagingService interface {
	SendMessage(ctx context.Context, sender domain.UserRef, origin domain.ConnectionID, req SendRequest) (SendResult, error)
	MarkRead(ctx context.Context, readerID int64, req MarkReadRequest) error
	History(ctx context.Context, req HistoryRequest) ([]domain.StoredMessage, *string, error)
}

// SendRequest is one inbound send, already attributed to a sender by
// the transport.
type SendRequest struct {
	Kind           domain.DestinationKind `validate:"required,oneof=user room"`
	ChildID        int64                  `validate:"required"`
	ConversationID *int64
	MessageKind    domain.MessageKind `validate:"omitempty,oneof=message system"`
	Content        string             `validate:"required"`
}

type SendResult struct {
	Message      domain.MessageBody
	Conversation *domain.ConversationCard
	Outcome      routing.Outcome
}

type MarkReadRequest struct {
	ConversationID int64 `validate:"required"`
	MessageID      int64 `validate:"required"` // the watermark
}

type HistoryRequest struct {
	ConversationID int64 `validate:"required"`
	Cursor         *string
}

// MessagingService validates and moderates inbound requests before
// handing them to the routing core.
type MessagingService struct {
	coordinator *routing.Coordinator
	receipts    *routing.ReceiptProcessor
	history     HistoryReader
	moderator   *moderation.Moderator
	validate    *validator.Validate
	log         *slog.Logger
}

// HistoryReader is the slice of the persistence gateway the service
// reads conversation history through.
type HistoryReader interface {
	GetMessages(ctx context.Context, conversationID int64, cursor *string) ([]domain.StoredMessage, *string, error)
}

func NewMessagingService(coordinator *routing.Coordinator, receipts *routing.ReceiptProcessor,
	history HistoryReader, moderator *moderation.Moderator, log *slog.Logger) *MessagingService {
	return &MessagingService{
		coordinator: coordinator,
		receipts:    receipts,
		history:     history,
		moderator:   moderator,
		validate:    validator.New(),
		log:         log,
	}
}

// SendMessage runs one delivery end to end. Failed deliveries come back
// as a structured outcome, not an error: errors here mean the request
// itself was unusable.
func (s *MessagingService) SendMessage(ctx context.Context, sender domain.UserRef,
	origin domain.ConnectionID, req SendRequest) (SendResult, error) {

	if err := s.validate.Struct(req); err != nil {
		return SendResult{}, fmt.Errorf("%w: %v", errors.ErrInvalidRequest, err)
	}

	kind := req.MessageKind
	if kind == "" {
		kind = domain.MessageKindUser
	}

	content := req.Content
	if kind == domain.MessageKindUser && s.moderator != nil {
		censored, masked := s.moderator.Censor(content)
		if masked {
			s.log.Info("Message content masked",
				"sender", sender.ID, "language", moderation.DetectLanguage(content))
			content = censored
		}
	}

	to := domain.NewDestination(req.Kind, req.ChildID)
	if req.ConversationID != nil {
		if err := to.BindConversation(*req.ConversationID); err != nil {
			return SendResult{}, fmt.Errorf("%w: %v", errors.ErrInvalidRequest, err)
		}
	}
	envelope := domain.NewEnvelope(to, kind, content, sender, origin)

	card, outcome := s.coordinator.Deliver(ctx, envelope)
	return SendResult{Message: envelope.Body, Conversation: card, Outcome: outcome}, nil
}

func (s *MessagingService) MarkRead(ctx context.Context, readerID int64, req MarkReadRequest) error {
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidRequest, err)
	}
	return s.receipts.MarkRead(ctx, req.ConversationID, readerID, req.MessageID)
}

func (s *MessagingService) History(ctx context.Context, req HistoryRequest) ([]domain.StoredMessage, *string, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", errors.ErrInvalidRequest, err)
	}
	return s.history.GetMessages(ctx, req.ConversationID, req.Cursor)
}
