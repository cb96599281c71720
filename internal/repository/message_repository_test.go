package repository

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatline/chatline-api/internal/models"
)

func TestCreateMessage(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMessageRepository(db)

	mock.ExpectExec("INSERT INTO messages").WillReturnResult(sqlmock.NewResult(1, 1))

	message := &models.Message{AuthorID: "u1", Content: "hello"}
	err := repo.Create(context.Background(), message)
	require.NoError(t, err)
	assert.NotEmpty(t, message.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMessageContent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMessageRepository(db)

	mock.ExpectExec("UPDATE messages SET content = \\$2, edited_at = \\$3 WHERE id = \\$1").
		WithArgs("m1", "edited", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateContent(context.Background(), "m1", "edited", time.Now().UTC())
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListRecentClampsLimit(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMessageRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "author_id", "content", "edited_at", "created_at"}).
		AddRow("m1", "u1", "hello", nil, now)
	mock.ExpectQuery("SELECT (.+) FROM messages ORDER BY created_at DESC LIMIT \\$1").
		WithArgs(50).
		WillReturnRows(rows)

	messages, err := repo.ListRecent(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, messages, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}
