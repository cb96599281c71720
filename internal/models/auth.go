package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// RegisterRequest holds the payload for creating an account.
type RegisterRequest struct {
	Username  string `json:"username" validate:"required,min=3"`
	Password  string `json:"password" validate:"required,min=8"`
	AvatarURL string `json:"avatar_url" validate:"omitempty,max=500"`
}

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Username  string `json:"username" validate:"required"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// RefreshRequest exchanges a refresh token for a new token pair.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	IP           string `json:"-"`
	UserAgent    string `json:"-"`
}

// TokenPairResponse returns freshly issued tokens.
type TokenPairResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	IssuedAt     time.Time `json:"issued_at"`
	User         UserInfo  `json:"user"`
}

// UserInfo describes a user in API responses.
type UserInfo struct {
	ID        string   `json:"id"`
	Username  string   `json:"username"`
	Role      UserRole `json:"role"`
	AvatarURL *string  `json:"avatar_url,omitempty"`
}

// Info converts a stored user into its response form.
func (u *User) Info() UserInfo {
	return UserInfo{ID: u.ID, Username: u.Username, Role: u.Role, AvatarURL: u.AvatarURL}
}

// RefreshTokenRecord mirrors the refresh_tokens table. Only a bcrypt digest
// of the token is stored; ReplacedByID links a consumed record to its
// successor, forming the rotation chain.
type RefreshTokenRecord struct {
	ID           string     `db:"id" json:"id"`
	UserID       string     `db:"user_id" json:"user_id"`
	TokenHash    string     `db:"token_hash" json:"-"`
	ExpiresAt    time.Time  `db:"expires_at" json:"expires_at"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	RevokedAt    *time.Time `db:"revoked_at" json:"revoked_at,omitempty"`
	ReplacedByID *string    `db:"replaced_by_id" json:"replaced_by_id,omitempty"`
}

// Revoked reports whether the record has been consumed or invalidated.
func (r *RefreshTokenRecord) Revoked() bool {
	return r.RevokedAt != nil
}

// Expired reports whether the record is past its expiry at the given time.
func (r *RefreshTokenRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

// JWTClaims represents the payload of issued tokens. Refresh tokens carry a
// unique TokenID (jti); access tokens leave it empty.
type JWTClaims struct {
	UserID  string   `json:"user_id"`
	Role    UserRole `json:"role"`
	TokenID string   `json:"jti,omitempty"`
	jwt.RegisteredClaims
}
