package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/chatline/chatline-api/internal/models"
)

// MessageRepository provides database access for chat messages.
type MessageRepository struct {
	db *sqlx.DB
}

// NewMessageRepository creates a new instance of MessageRepository.
func NewMessageRepository(db *sqlx.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create inserts a new message.
func (r *MessageRepository) Create(ctx context.Context, message *models.Message) error {
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO messages (id, author_id, content, created_at)
		VALUES (:id, :author_id, :content, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, message); err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

// FindByID returns a message by identifier.
func (r *MessageRepository) FindByID(ctx context.Context, id string) (*models.Message, error) {
	const query = `SELECT id, author_id, content, edited_at, created_at FROM messages WHERE id = $1 LIMIT 1`
	var message models.Message
	if err := r.db.GetContext(ctx, &message, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find message by id: %w", err)
	}
	return &message, nil
}

// UpdateContent rewrites a message's content and stamps edited_at.
func (r *MessageRepository) UpdateContent(ctx context.Context, id, content string, editedAt time.Time) error {
	const query = `UPDATE messages SET content = $2, edited_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, content, editedAt); err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	return nil
}

// Delete removes a message.
func (r *MessageRepository) Delete(ctx context.Context, id string) error {
	const query = `DELETE FROM messages WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// ListRecent returns the newest messages, most recent first.
func (r *MessageRepository) ListRecent(ctx context.Context, limit int) ([]models.Message, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	const query = `SELECT id, author_id, content, edited_at, created_at FROM messages ORDER BY created_at DESC LIMIT $1`
	var messages []models.Message
	if err := r.db.SelectContext(ctx, &messages, query, limit); err != nil {
		return nil, fmt.Errorf("list recent messages: %w", err)
	}
	return messages, nil
}
