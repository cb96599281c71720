package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/chatline/chatline-api/internal/audit"
	"github.com/chatline/chatline-api/internal/models"
	"github.com/chatline/chatline-api/internal/token"
	appErrors "github.com/chatline/chatline-api/pkg/errors"
	"github.com/chatline/chatline-api/pkg/hash"
)

type authUserRepository interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
}

type authTokenRepository interface {
	Create(ctx context.Context, record *models.RefreshTokenRecord) error
	FindActiveByUser(ctx context.Context, userID string, limit int) ([]models.RefreshTokenRecord, error)
	Revoke(ctx context.Context, id string, replacedByID *string) error
}

// AuthConfig defines configuration for the credential lifecycle.
type AuthConfig struct {
	BcryptCost       int
	RefreshScanLimit int
}

// AuthService owns the session/credential lifecycle: registration, login,
// refresh-token rotation and logout.
type AuthService struct {
	users     authUserRepository
	tokens    authTokenRepository
	codec     *token.Codec
	auditor   audit.Recorder
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
}

// NewAuthService constructs an AuthService instance.
func NewAuthService(users authUserRepository, tokens authTokenRepository, codec *token.Codec, auditor audit.Recorder, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.RefreshScanLimit <= 0 {
		config.RefreshScanLimit = 10
	}
	return &AuthService{
		users:     users,
		tokens:    tokens,
		codec:     codec,
		auditor:   auditor,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		config:    config,
	}
}

// Register creates a new USER account.
func (s *AuthService) Register(ctx context.Context, req models.RegisterRequest) (*models.UserInfo, error) {
	req.Username = models.NormalizeUsername(req.Username)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "username must be at least 3 and password at least 8 characters")
	}
	if err := validateAvatarURL(req.AvatarURL); err != nil {
		return nil, err
	}

	if _, err := s.users.FindByUsername(ctx, req.Username); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "username already taken")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check username")
	}

	passwordHash, err := hash.Password(req.Password, s.config.BcryptCost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Username:     req.Username,
		PasswordHash: passwordHash,
		Role:         models.RoleUser,
	}
	if req.AvatarURL != "" {
		user.AvatarURL = &req.AvatarURL
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.auditor.Record(audit.Entry{
		ActorID:    &user.ID,
		Action:     models.AuditActionRegister,
		EntityType: "user",
		EntityID:   &user.ID,
		After:      user.Info(),
	})

	info := user.Info()
	return &info, nil
}

// Login authenticates a user and issues a token pair. Unknown usernames and
// wrong passwords fail with the same error so callers cannot probe for
// accounts; only the audit trail distinguishes the two.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest) (*models.TokenPairResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "username and password are required")
	}

	user, err := s.users.FindByUsername(ctx, req.Username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.metrics.CountAuthFailure("login")
			s.auditor.Record(audit.Entry{
				Action:     models.AuditActionLoginFailed,
				EntityType: "user",
				Metadata:   map[string]interface{}{"username": models.NormalizeUsername(req.Username), "ip": req.IP},
			})
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}

	if !hash.CheckPassword(user.PasswordHash, req.Password) {
		s.metrics.CountAuthFailure("login")
		s.auditor.Record(audit.Entry{
			ActorID:    &user.ID,
			Action:     models.AuditActionLoginFailed,
			EntityType: "user",
			EntityID:   &user.ID,
			Metadata:   map[string]interface{}{"ip": req.IP},
		})
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}

	pair, _, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		s.logger.Warn("failed to update last login", zap.Error(err))
	}

	s.auditor.Record(audit.Entry{
		ActorID:    &user.ID,
		Action:     models.AuditActionLoginSuccess,
		EntityType: "user",
		EntityID:   &user.ID,
		Metadata:   map[string]interface{}{"ip": req.IP, "user_agent": req.UserAgent},
	})

	return pair, nil
}

// Refresh rotates a refresh token: the presented token is checked against
// the caller's active records, consumed, and replaced by a fresh pair. A
// token that has already been rotated fails exactly like an unknown one;
// that uniform failure is the replay tripwire.
func (s *AuthService) Refresh(ctx context.Context, req models.RefreshRequest) (*models.TokenPairResponse, error) {
	presented := strings.TrimSpace(req.RefreshToken)
	if presented == "" {
		s.recordRefreshFailure(nil, models.RefreshFailureMissing, req.IP)
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}

	claims, err := s.codec.Verify(presented)
	if err != nil || claims.TokenID == "" {
		s.recordRefreshFailure(nil, models.RefreshFailureInvalidOrExpired, req.IP)
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}

	candidates, err := s.tokens.FindActiveByUser(ctx, claims.UserID, s.config.RefreshScanLimit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load refresh tokens")
	}

	matched := matchRecord(candidates, presented)
	if matched == nil {
		s.recordRefreshFailure(&claims.UserID, models.RefreshFailureNotRecognized, req.IP)
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil || user.Deleted() {
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
		}
		s.recordRefreshFailure(&claims.UserID, models.RefreshFailureUnknownUser, req.IP)
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}

	// Issue the replacement first, then consume the old record with a link
	// to its successor. The new pair is only released once the old record is
	// revoked; otherwise two usable tokens would exist for the same session.
	pair, newRecordID, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}
	if err := s.tokens.Revoke(ctx, matched.ID, &newRecordID); err != nil {
		s.logger.Error("failed to revoke consumed refresh token", zap.String("record_id", matched.ID), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to rotate refresh token")
	}

	s.auditor.Record(audit.Entry{
		ActorID:    &user.ID,
		Action:     models.AuditActionRefreshSuccess,
		EntityType: "refresh_token",
		EntityID:   &matched.ID,
		Metadata:   map[string]interface{}{"replaced_by": newRecordID, "ip": req.IP},
	})

	return pair, nil
}

// Logout revokes the record matching the presented refresh token. It is
// idempotent and never fails visibly: absent, malformed or already-revoked
// tokens are accepted as a no-op.
func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	presented := strings.TrimSpace(refreshToken)
	if presented == "" {
		return nil
	}

	claims, err := s.codec.Verify(presented)
	if err != nil || claims.TokenID == "" {
		return nil
	}

	candidates, err := s.tokens.FindActiveByUser(ctx, claims.UserID, s.config.RefreshScanLimit)
	if err != nil {
		s.logger.Warn("logout token lookup failed", zap.Error(err))
		return nil
	}

	matched := matchRecord(candidates, presented)
	if matched == nil {
		return nil
	}

	if err := s.tokens.Revoke(ctx, matched.ID, nil); err != nil {
		s.logger.Warn("logout revoke failed", zap.String("record_id", matched.ID), zap.Error(err))
		return nil
	}

	// Audited only when a record actually transitioned, so repeated logout
	// calls with the same token produce a single AUTH_LOGOUT entry.
	s.auditor.Record(audit.Entry{
		ActorID:    &claims.UserID,
		Action:     models.AuditActionLogout,
		EntityType: "refresh_token",
		EntityID:   &matched.ID,
	})
	return nil
}

// ValidateAccessToken checks a bearer token and returns its claims. Tokens
// carrying a jti are refresh tokens and are rejected here.
func (s *AuthService) ValidateAccessToken(tokenString string) (*models.JWTClaims, error) {
	claims, err := s.codec.Verify(tokenString)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}
	if claims.TokenID != "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
	}
	return claims, nil
}

func (s *AuthService) issueTokens(ctx context.Context, user *models.User) (*models.TokenPairResponse, string, error) {
	accessToken, _, err := s.codec.SignAccess(user.ID, user.Role)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign access token")
	}

	refreshToken, _, expiresAt, err := s.codec.SignRefresh(user.ID, user.Role)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign refresh token")
	}

	digest, err := hash.Token(refreshToken)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to digest refresh token")
	}

	record := &models.RefreshTokenRecord{
		UserID:    user.ID,
		TokenHash: digest,
		ExpiresAt: expiresAt,
	}
	if err := s.tokens.Create(ctx, record); err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to persist refresh token")
	}

	return &models.TokenPairResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(s.codec.AccessExpiry().Seconds()),
		IssuedAt:     time.Now().UTC(),
		User:         user.Info(),
	}, record.ID, nil
}

func (s *AuthService) recordRefreshFailure(actorID *string, reason, ip string) {
	s.metrics.CountAuthFailure("refresh")
	s.auditor.Record(audit.Entry{
		ActorID:    actorID,
		Action:     models.AuditActionRefreshFailed,
		EntityType: "refresh_token",
		Metadata:   map[string]interface{}{"reason": reason, "ip": ip},
	})
}

// matchRecord compares the presented token against each candidate digest
// until one verifies.
func matchRecord(candidates []models.RefreshTokenRecord, presented string) *models.RefreshTokenRecord {
	for i := range candidates {
		if hash.CheckToken(candidates[i].TokenHash, presented) {
			return &candidates[i]
		}
	}
	return nil
}

// validateAvatarURL enforces the allowed avatar reference forms: an
// absolute http(s) URL or a site-relative path, at most 500 characters.
func validateAvatarURL(raw string) error {
	if raw == "" {
		return nil
	}
	if len(raw) > 500 {
		return appErrors.Clone(appErrors.ErrValidation, "avatar_url must be at most 500 characters")
	}
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") && !strings.HasPrefix(raw, "/") {
		return appErrors.Clone(appErrors.ErrValidation, "avatar_url must start with http://, https:// or /")
	}
	return nil
}
