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

func TestCreateRefreshTokenRecord(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectExec("INSERT INTO refresh_tokens").WillReturnResult(sqlmock.NewResult(1, 1))

	record := &models.RefreshTokenRecord{UserID: "u1", TokenHash: "digest", ExpiresAt: time.Now().Add(time.Hour)}
	err := repo.Create(context.Background(), record)
	require.NoError(t, err)
	assert.NotEmpty(t, record.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindActiveByUserOrdersAndBounds(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "user_id", "token_hash", "expires_at", "created_at", "revoked_at", "replaced_by_id"}).
		AddRow("t2", "u1", "digest2", now.Add(time.Hour), now, nil, nil).
		AddRow("t1", "u1", "digest1", now.Add(time.Hour), now.Add(-time.Minute), nil, nil)
	mock.ExpectQuery("SELECT (.+) FROM refresh_tokens WHERE user_id = \\$1 AND revoked_at IS NULL AND expires_at > \\$2 ORDER BY created_at DESC LIMIT \\$3").
		WithArgs("u1", sqlmock.AnyArg(), 5).
		WillReturnRows(rows)

	records, err := repo.FindActiveByUser(context.Background(), "u1", 5)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "t2", records[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindActiveByUserDefaultsLimit(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectQuery("SELECT (.+) FROM refresh_tokens").
		WithArgs("u1", sqlmock.AnyArg(), 10).
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token_hash", "expires_at", "created_at", "revoked_at", "replaced_by_id"}))

	_, err := repo.FindActiveByUser(context.Background(), "u1", 0)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokeLinksSuccessor(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	successor := "t2"
	mock.ExpectExec("UPDATE refresh_tokens SET revoked_at = \\$2, replaced_by_id = \\$3 WHERE id = \\$1 AND revoked_at IS NULL").
		WithArgs("t1", sqlmock.AnyArg(), &successor).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Revoke(context.Background(), "t1", &successor)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRevokeAllForUser(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTokenRepository(db)

	mock.ExpectExec("UPDATE refresh_tokens SET revoked_at = \\$2 WHERE user_id = \\$1 AND revoked_at IS NULL").
		WithArgs("u1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	revoked, err := repo.RevokeAllForUser(context.Background(), "u1")
	require.NoError(t, err)
	assert.EqualValues(t, 3, revoked)
	assert.NoError(t, mock.ExpectationsWereMet())
}
