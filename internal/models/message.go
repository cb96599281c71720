package models

import "time"

// Message represents a chat message stored in the messages table.
type Message struct {
	ID        string     `db:"id" json:"id"`
	AuthorID  string     `db:"author_id" json:"author_id"`
	Content   string     `db:"content" json:"content"`
	EditedAt  *time.Time `db:"edited_at" json:"edited_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// CreateMessageRequest holds the payload for posting a message.
type CreateMessageRequest struct {
	Content string `json:"content" validate:"required,max=2000"`
}

// UpdateMessageRequest holds the payload for editing a message.
type UpdateMessageRequest struct {
	Content string `json:"content" validate:"required,max=2000"`
}
