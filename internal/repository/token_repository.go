package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/chatline/chatline-api/internal/models"
)

// TokenRepository persists refresh-token records. Records only ever move
// forward: created, then revoked (optionally linked to a successor).
// Expiry is judged at read time, never stored as a transition.
type TokenRepository struct {
	db *sqlx.DB
}

// NewTokenRepository creates a new instance of TokenRepository.
func NewTokenRepository(db *sqlx.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// Create inserts a refresh-token record holding the token's digest.
func (r *TokenRepository) Create(ctx context.Context, record *models.RefreshTokenRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at, revoked_at, replaced_by_id)
		VALUES (:id, :user_id, :token_hash, :expires_at, :created_at, :revoked_at, :replaced_by_id)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("create refresh token: %w", err)
	}
	return nil
}

// FindActiveByUser returns the user's non-revoked, non-expired records,
// most recent first, capped at limit. The digest cannot be indexed, so
// callers verify the presented token against each candidate in turn; the
// limit bounds the cost of that scan.
func (r *TokenRepository) FindActiveByUser(ctx context.Context, userID string, limit int) ([]models.RefreshTokenRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	const query = `SELECT id, user_id, token_hash, expires_at, created_at, revoked_at, replaced_by_id
		FROM refresh_tokens
		WHERE user_id = $1 AND revoked_at IS NULL AND expires_at > $2
		ORDER BY created_at DESC
		LIMIT $3`
	var records []models.RefreshTokenRecord
	if err := r.db.SelectContext(ctx, &records, query, userID, time.Now().UTC(), limit); err != nil {
		return nil, fmt.Errorf("find active refresh tokens: %w", err)
	}
	return records, nil
}

// Revoke marks a record as consumed. replacedByID links it to the record
// that rotation issued in its place; nil for logout and administrative
// revocation.
func (r *TokenRepository) Revoke(ctx context.Context, id string, replacedByID *string) error {
	const query = `UPDATE refresh_tokens SET revoked_at = $2, replaced_by_id = $3 WHERE id = $1 AND revoked_at IS NULL`
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC(), replacedByID); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// RevokeAllForUser revokes every active record a user holds and returns the
// number of records revoked.
func (r *TokenRepository) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	const query = `UPDATE refresh_tokens SET revoked_at = $2 WHERE user_id = $1 AND revoked_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, userID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("revoke user refresh tokens: %w", err)
	}
	return affected, nil
}
