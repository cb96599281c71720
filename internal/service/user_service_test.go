package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chatline/chatline-api/internal/models"
	appErrors "github.com/chatline/chatline-api/pkg/errors"
)

func (r *fakeUserRepo) UpdateRole(_ context.Context, id string, role models.UserRole) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.Role = role
	}
	return nil
}

func (r *fakeUserRepo) SoftDelete(_ context.Context, id, mangledUsername, unusableHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		now := time.Now().UTC()
		u.Username = mangledUsername
		u.PasswordHash = unusableHash
		u.AvatarURL = nil
		u.DeletedAt = &now
	}
	return nil
}

func (r *fakeUserRepo) List(_ context.Context, filter models.UserFilter) ([]models.User, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.User
	for _, u := range r.users {
		if u.Deleted() && !filter.IncludeDeleted {
			continue
		}
		if filter.Role != nil && u.Role != *filter.Role {
			continue
		}
		out = append(out, *u)
	}
	return out, len(out), nil
}

func (r *fakeTokenRepo) RevokeAllForUser(_ context.Context, userID string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	var revoked int64
	for _, rec := range r.records {
		if rec.UserID == userID && !rec.Revoked() {
			rec.RevokedAt = &now
			revoked++
		}
	}
	return revoked, nil
}

func newTestUserService(t *testing.T) (*UserService, *fakeUserRepo, *fakeTokenRepo, *capturingRecorder) {
	t.Helper()
	users := newFakeUserRepo()
	tokens := newFakeTokenRepo()
	recorder := &capturingRecorder{}
	svc := NewUserService(users, tokens, recorder, nil, zap.NewNop(), 4)
	return svc, users, tokens, recorder
}

func seedUser(t *testing.T, repo *fakeUserRepo, username string, role models.UserRole) *models.User {
	t.Helper()
	user := &models.User{Username: username, PasswordHash: "x", Role: role}
	require.NoError(t, repo.Create(context.Background(), user))
	return user
}

func TestUserCreateWithRole(t *testing.T) {
	svc, users, _, recorder := newTestUserService(t)
	admin := seedUser(t, users, "root", models.RoleAdmin)

	info, err := svc.Create(context.Background(), admin.ID, CreateUserRequest{
		Username: "Moderator",
		Password: "long-enough-pw",
		Role:     models.RoleAdmin,
	})

	require.NoError(t, err)
	assert.Equal(t, "moderator", info.Username)
	assert.Equal(t, models.RoleAdmin, info.Role)
	assert.Len(t, recorder.byAction(models.AuditActionUserCreate), 1)
}

func TestUserCreateRejectsUnknownRole(t *testing.T) {
	svc, _, _, _ := newTestUserService(t)

	_, err := svc.Create(context.Background(), "admin-1", CreateUserRequest{
		Username: "someone",
		Password: "long-enough-pw",
		Role:     models.UserRole("OWNER"),
	})

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserUpdateRole(t *testing.T) {
	svc, users, _, recorder := newTestUserService(t)
	admin := seedUser(t, users, "root", models.RoleAdmin)
	target := seedUser(t, users, "alice", models.RoleUser)

	info, err := svc.UpdateRole(context.Background(), admin.ID, target.ID, models.RoleAdmin)

	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, info.Role)

	updates := recorder.byAction(models.AuditActionUserUpdate)
	require.Len(t, updates, 1)
	assert.Equal(t, models.RoleUser, updates[0].Before.(models.UserInfo).Role)
	assert.Equal(t, models.RoleAdmin, updates[0].After.(models.UserInfo).Role)
}

func TestUserUpdateRoleNoopSkipsAudit(t *testing.T) {
	svc, users, _, recorder := newTestUserService(t)
	admin := seedUser(t, users, "root", models.RoleAdmin)
	target := seedUser(t, users, "alice", models.RoleUser)

	_, err := svc.UpdateRole(context.Background(), admin.ID, target.ID, models.RoleUser)

	require.NoError(t, err)
	assert.Empty(t, recorder.byAction(models.AuditActionUserUpdate))
}

func TestUserDeleteAnonymisesAndRevokes(t *testing.T) {
	svc, users, tokens, recorder := newTestUserService(t)
	admin := seedUser(t, users, "root", models.RoleAdmin)
	target := seedUser(t, users, "alice", models.RoleUser)

	require.NoError(t, tokens.Create(context.Background(), &models.RefreshTokenRecord{
		UserID:    target.ID,
		TokenHash: "digest",
		ExpiresAt: time.Now().Add(time.Hour),
	}))

	require.NoError(t, svc.Delete(context.Background(), admin.ID, target.ID))

	stored, err := users.FindByID(context.Background(), target.ID)
	require.NoError(t, err)
	assert.True(t, stored.Deleted())
	assert.True(t, strings.HasPrefix(stored.Username, "deleted_"))
	assert.Contains(t, stored.Username, "alice")
	assert.Nil(t, stored.AvatarURL)
	assert.Equal(t, 0, tokens.active(target.ID))

	deletes := recorder.byAction(models.AuditActionUserDelete)
	require.Len(t, deletes, 1)
	assert.EqualValues(t, 1, deletes[0].Metadata["revoked_tokens"])

	// The original handle is free again.
	_, err = svc.Get(context.Background(), target.ID)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestUserDeleteSelfRejected(t *testing.T) {
	svc, users, _, _ := newTestUserService(t)
	admin := seedUser(t, users, "root", models.RoleAdmin)

	err := svc.Delete(context.Background(), admin.ID, admin.ID)

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestUserListExcludesDeleted(t *testing.T) {
	svc, users, _, _ := newTestUserService(t)
	admin := seedUser(t, users, "root", models.RoleAdmin)
	target := seedUser(t, users, "alice", models.RoleUser)

	require.NoError(t, svc.Delete(context.Background(), admin.ID, target.ID))

	infos, pagination, err := svc.List(context.Background(), models.UserFilter{Page: 1, PageSize: 20})
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "root", infos[0].Username)
	assert.Equal(t, 1, pagination.TotalCount)
}
