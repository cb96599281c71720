package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chatline/chatline-api/internal/audit"
	"github.com/chatline/chatline-api/internal/models"
	appErrors "github.com/chatline/chatline-api/pkg/errors"
	"github.com/chatline/chatline-api/pkg/hash"
)

type userRepository interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	UpdateRole(ctx context.Context, id string, role models.UserRole) error
	SoftDelete(ctx context.Context, id, mangledUsername, unusableHash string) error
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
}

type tokenRevoker interface {
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)
}

// UserService implements administrative user management.
type UserService struct {
	users     userRepository
	tokens    tokenRevoker
	auditor   audit.Recorder
	validator *validator.Validate
	logger    *zap.Logger
	cost      int
}

// NewUserService constructs a UserService instance.
func NewUserService(users userRepository, tokens tokenRevoker, auditor audit.Recorder, validate *validator.Validate, logger *zap.Logger, bcryptCost int) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &UserService{
		users:     users,
		tokens:    tokens,
		auditor:   auditor,
		validator: validate,
		logger:    logger,
		cost:      bcryptCost,
	}
}

// List returns users matching the filter with pagination metadata.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.UserInfo, *models.Pagination, error) {
	users, total, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}

	infos := make([]models.UserInfo, 0, len(users))
	for i := range users {
		infos = append(infos, users[i].Info())
	}

	pagination := &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: total}
	return infos, pagination, nil
}

// Get returns a single user by id. Soft-deleted users read as not found.
func (s *UserService) Get(ctx context.Context, id string) (*models.UserInfo, error) {
	user, err := s.users.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}
	if user.Deleted() {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}
	info := user.Info()
	return &info, nil
}

// CreateUserRequest is the admin payload for provisioning an account.
type CreateUserRequest struct {
	Username  string          `json:"username" validate:"required,min=3"`
	Password  string          `json:"password" validate:"required,min=8"`
	Role      models.UserRole `json:"role" validate:"required"`
	AvatarURL string          `json:"avatar_url" validate:"omitempty,max=500"`
}

// Create provisions an account with an explicit role.
func (s *UserService) Create(ctx context.Context, actorID string, req CreateUserRequest) (*models.UserInfo, error) {
	req.Username = models.NormalizeUsername(req.Username)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}
	if !req.Role.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown role %q", req.Role))
	}
	if err := validateAvatarURL(req.AvatarURL); err != nil {
		return nil, err
	}

	if _, err := s.users.FindByUsername(ctx, req.Username); err == nil {
		return nil, appErrors.Clone(appErrors.ErrConflict, "username already taken")
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check username")
	}

	passwordHash, err := hash.Password(req.Password, s.cost)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
	}

	user := &models.User{
		Username:     req.Username,
		PasswordHash: passwordHash,
		Role:         req.Role,
	}
	if req.AvatarURL != "" {
		user.AvatarURL = &req.AvatarURL
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create user")
	}

	s.auditor.Record(audit.Entry{
		ActorID:    &actorID,
		Action:     models.AuditActionUserCreate,
		EntityType: "user",
		EntityID:   &user.ID,
		After:      user.Info(),
	})

	info := user.Info()
	return &info, nil
}

// UpdateRole changes a user's role.
func (s *UserService) UpdateRole(ctx context.Context, actorID, userID string, role models.UserRole) (*models.UserInfo, error) {
	if !role.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unknown role %q", role))
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}
	if user.Deleted() {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}
	if user.Role == role {
		info := user.Info()
		return &info, nil
	}

	before := user.Info()
	if err := s.users.UpdateRole(ctx, userID, role); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update role")
	}
	user.Role = role

	s.auditor.Record(audit.Entry{
		ActorID:    &actorID,
		Action:     models.AuditActionUserUpdate,
		EntityType: "user",
		EntityID:   &userID,
		Before:     before,
		After:      user.Info(),
	})

	info := user.Info()
	return &info, nil
}

// Delete soft-deletes a user. The username is replaced by an anonymised
// placeholder so the original handle can be registered again, the password
// hash becomes unusable and every refresh token is revoked. Records are
// never removed from the table.
func (s *UserService) Delete(ctx context.Context, actorID, userID string) error {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch user")
	}
	if user.Deleted() {
		return appErrors.Clone(appErrors.ErrNotFound, "user not found")
	}
	if user.ID == actorID {
		return appErrors.Clone(appErrors.ErrValidation, "cannot delete own account")
	}

	before := user.Info()
	mangled := mangleUsername(user.Username)
	if err := s.users.SoftDelete(ctx, userID, mangled, hash.RandomUnusable()); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}

	revoked, err := s.tokens.RevokeAllForUser(ctx, userID)
	if err != nil {
		s.logger.Warn("failed to revoke tokens for deleted user", zap.String("user_id", userID), zap.Error(err))
	}

	s.auditor.Record(audit.Entry{
		ActorID:    &actorID,
		Action:     models.AuditActionUserDelete,
		EntityType: "user",
		EntityID:   &userID,
		Before:     before,
		Metadata:   map[string]interface{}{"revoked_tokens": revoked, "mangled_username": mangled},
	})
	return nil
}

// mangleUsername builds the placeholder handle stored for soft-deleted
// accounts, keeping a short prefix of the original for operator forensics.
func mangleUsername(username string) string {
	prefix := username
	if len(prefix) > 12 {
		prefix = prefix[:12]
	}
	return fmt.Sprintf("deleted_%s_%s", uuid.NewString()[:8], prefix)
}
