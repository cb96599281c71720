package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/chatline/chatline-api/internal/audit"
	"github.com/chatline/chatline-api/internal/models"
	appErrors "github.com/chatline/chatline-api/pkg/errors"
)

type messageRepository interface {
	Create(ctx context.Context, message *models.Message) error
	FindByID(ctx context.Context, id string) (*models.Message, error)
	UpdateContent(ctx context.Context, id, content string, editedAt time.Time) error
	Delete(ctx context.Context, id string) error
	ListRecent(ctx context.Context, limit int) ([]models.Message, error)
}

// realtimeBroadcaster pushes message events to connected clients. Broadcasting
// is best-effort: a stalled socket never blocks the HTTP path.
type realtimeBroadcaster interface {
	BroadcastMessageCreated(message models.Message)
	BroadcastMessageUpdated(message models.Message)
	BroadcastMessageDeleted(messageID string)
}

// MessageService implements message posting, editing and removal.
type MessageService struct {
	messages    messageRepository
	broadcaster realtimeBroadcaster
	auditor     audit.Recorder
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewMessageService constructs a MessageService instance. broadcaster may be
// nil when no realtime gateway is attached.
func NewMessageService(messages messageRepository, broadcaster realtimeBroadcaster, auditor audit.Recorder, validate *validator.Validate, logger *zap.Logger) *MessageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &MessageService{
		messages:    messages,
		broadcaster: broadcaster,
		auditor:     auditor,
		validator:   validate,
		logger:      logger,
	}
}

// Create posts a message on behalf of the author.
func (s *MessageService) Create(ctx context.Context, authorID string, req models.CreateMessageRequest) (*models.Message, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "content is required and at most 2000 characters")
	}

	message := &models.Message{
		AuthorID: authorID,
		Content:  req.Content,
	}
	if err := s.messages.Create(ctx, message); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create message")
	}

	if s.broadcaster != nil {
		s.broadcaster.BroadcastMessageCreated(*message)
	}
	s.auditor.Record(audit.Entry{
		ActorID:    &authorID,
		Action:     models.AuditActionMessageCreate,
		EntityType: "message",
		EntityID:   &message.ID,
		After:      *message,
	})
	return message, nil
}

// Update edits a message. Only the author or an admin may edit.
func (s *MessageService) Update(ctx context.Context, actorID string, actorRole models.UserRole, messageID string, req models.UpdateMessageRequest) (*models.Message, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "content is required and at most 2000 characters")
	}

	message, err := s.loadOwned(ctx, actorID, actorRole, messageID)
	if err != nil {
		return nil, err
	}

	before := *message
	editedAt := time.Now().UTC()
	if err := s.messages.UpdateContent(ctx, messageID, req.Content, editedAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update message")
	}
	message.Content = req.Content
	message.EditedAt = &editedAt

	if s.broadcaster != nil {
		s.broadcaster.BroadcastMessageUpdated(*message)
	}
	s.auditor.Record(audit.Entry{
		ActorID:    &actorID,
		Action:     models.AuditActionMessageUpdate,
		EntityType: "message",
		EntityID:   &messageID,
		Before:     before,
		After:      *message,
	})
	return message, nil
}

// Delete removes a message. Only the author or an admin may delete.
func (s *MessageService) Delete(ctx context.Context, actorID string, actorRole models.UserRole, messageID string) error {
	message, err := s.loadOwned(ctx, actorID, actorRole, messageID)
	if err != nil {
		return err
	}

	if err := s.messages.Delete(ctx, messageID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete message")
	}

	if s.broadcaster != nil {
		s.broadcaster.BroadcastMessageDeleted(messageID)
	}
	s.auditor.Record(audit.Entry{
		ActorID:    &actorID,
		Action:     models.AuditActionMessageDelete,
		EntityType: "message",
		EntityID:   &messageID,
		Before:     *message,
	})
	return nil
}

// ListRecent returns the latest messages in chronological order.
func (s *MessageService) ListRecent(ctx context.Context, limit int) ([]models.Message, error) {
	messages, err := s.messages.ListRecent(ctx, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list messages")
	}
	return messages, nil
}

func (s *MessageService) loadOwned(ctx context.Context, actorID string, actorRole models.UserRole, messageID string) (*models.Message, error) {
	message, err := s.messages.FindByID(ctx, messageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "message not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch message")
	}
	if message.AuthorID != actorID && actorRole != models.RoleAdmin {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "not the author of this message")
	}
	return message, nil
}
