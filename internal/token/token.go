// Package token signs and verifies the compact JWTs used for access and
// refresh credentials. Tokens are self-contained: subject, role and expiry
// travel in the claims, and refresh tokens additionally carry a unique jti.
package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/chatline/chatline-api/internal/models"
)

// Config holds the signing parameters.
type Config struct {
	Secret        string
	Issuer        string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

// Codec issues and validates signed tokens.
type Codec struct {
	cfg Config
}

// NewCodec constructs a Codec.
func NewCodec(cfg Config) *Codec {
	return &Codec{cfg: cfg}
}

// AccessExpiry exposes the configured access token lifetime.
func (c *Codec) AccessExpiry() time.Duration {
	return c.cfg.AccessExpiry
}

// SignAccess issues a short-lived access token for the user.
func (c *Codec) SignAccess(userID string, role models.UserRole) (string, time.Time, error) {
	return c.sign(userID, role, "", c.cfg.AccessExpiry)
}

// SignRefresh issues a long-lived refresh token carrying a fresh unique
// token id. The jti is returned so callers can reference the token without
// keeping its plaintext.
func (c *Codec) SignRefresh(userID string, role models.UserRole) (signed string, jti string, expiresAt time.Time, err error) {
	jti = uuid.NewString()
	signed, expiresAt, err = c.sign(userID, role, jti, c.cfg.RefreshExpiry)
	return signed, jti, expiresAt, err
}

// Verify parses a token, enforcing the HS256 signature and expiry. The
// returned claims are trusted only after a nil error.
func (c *Codec) Verify(tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(c.cfg.Secret), nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}

func (c *Codec) sign(userID string, role models.UserRole, jti string, ttl time.Duration) (string, time.Time, error) {
	issuedAt := time.Now().UTC()
	expiresAt := issuedAt.Add(ttl)
	claims := &models.JWTClaims{
		UserID:  userID,
		Role:    role,
		TokenID: jti,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.cfg.Issuer,
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(c.cfg.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}
