package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chatline/chatline-api/internal/models"
	appErrors "github.com/chatline/chatline-api/pkg/errors"
)

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages map[string]*models.Message
	seq      int
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{messages: map[string]*models.Message{}}
}

func (r *fakeMessageRepo) Create(_ context.Context, message *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	message.ID = time.Now().Format("150405.000000000") + "-m" + string(rune('0'+r.seq%10))
	message.CreatedAt = time.Now().UTC()
	clone := *message
	r.messages[message.ID] = &clone
	return nil
}

func (r *fakeMessageRepo) FindByID(_ context.Context, id string) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *m
	return &clone, nil
}

func (r *fakeMessageRepo) UpdateContent(_ context.Context, id, content string, editedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.messages[id]; ok {
		m.Content = content
		m.EditedAt = &editedAt
	}
	return nil
}

func (r *fakeMessageRepo) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.messages, id)
	return nil
}

func (r *fakeMessageRepo) ListRecent(_ context.Context, limit int) ([]models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Message
	for _, m := range r.messages {
		out = append(out, *m)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

type capturingBroadcaster struct {
	mu      sync.Mutex
	created []models.Message
	updated []models.Message
	deleted []string
}

func (p *capturingBroadcaster) BroadcastMessageCreated(message models.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.created = append(p.created, message)
}

func (p *capturingBroadcaster) BroadcastMessageUpdated(message models.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.updated = append(p.updated, message)
}

func (p *capturingBroadcaster) BroadcastMessageDeleted(messageID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.deleted = append(p.deleted, messageID)
}

func newTestMessageService(t *testing.T) (*MessageService, *fakeMessageRepo, *capturingBroadcaster, *capturingRecorder) {
	t.Helper()
	repo := newFakeMessageRepo()
	broadcaster := &capturingBroadcaster{}
	recorder := &capturingRecorder{}
	svc := NewMessageService(repo, broadcaster, recorder, nil, zap.NewNop())
	return svc, repo, broadcaster, recorder
}

func TestMessageCreateBroadcastsAndAudits(t *testing.T) {
	svc, _, broadcaster, recorder := newTestMessageService(t)

	message, err := svc.Create(context.Background(), "author-1", models.CreateMessageRequest{Content: "hello"})

	require.NoError(t, err)
	assert.NotEmpty(t, message.ID)
	require.Len(t, broadcaster.created, 1)
	assert.Equal(t, message.ID, broadcaster.created[0].ID)
	assert.Len(t, recorder.byAction(models.AuditActionMessageCreate), 1)
}

func TestMessageCreateValidation(t *testing.T) {
	svc, _, broadcaster, _ := newTestMessageService(t)

	_, err := svc.Create(context.Background(), "author-1", models.CreateMessageRequest{Content: ""})

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, broadcaster.created)
}

func TestMessageUpdateByAuthor(t *testing.T) {
	svc, _, broadcaster, recorder := newTestMessageService(t)
	message, err := svc.Create(context.Background(), "author-1", models.CreateMessageRequest{Content: "hello"})
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), "author-1", models.RoleUser, message.ID, models.UpdateMessageRequest{Content: "hello, edited"})

	require.NoError(t, err)
	assert.Equal(t, "hello, edited", updated.Content)
	assert.NotNil(t, updated.EditedAt)
	require.Len(t, broadcaster.updated, 1)

	audits := recorder.byAction(models.AuditActionMessageUpdate)
	require.Len(t, audits, 1)
	assert.Equal(t, "hello", audits[0].Before.(models.Message).Content)
}

func TestMessageUpdateByStrangerForbidden(t *testing.T) {
	svc, _, broadcaster, _ := newTestMessageService(t)
	message, err := svc.Create(context.Background(), "author-1", models.CreateMessageRequest{Content: "hello"})
	require.NoError(t, err)

	_, err = svc.Update(context.Background(), "intruder", models.RoleUser, message.ID, models.UpdateMessageRequest{Content: "hijacked"})

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
	assert.Empty(t, broadcaster.updated)
}

func TestMessageDeleteByAdmin(t *testing.T) {
	svc, repo, broadcaster, _ := newTestMessageService(t)
	message, err := svc.Create(context.Background(), "author-1", models.CreateMessageRequest{Content: "hello"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), "mod-1", models.RoleAdmin, message.ID))

	_, err = repo.FindByID(context.Background(), message.ID)
	require.Error(t, err)
	require.Len(t, broadcaster.deleted, 1)
	assert.Equal(t, message.ID, broadcaster.deleted[0])
}

func TestMessageDeleteUnknownNotFound(t *testing.T) {
	svc, _, _, _ := newTestMessageService(t)

	err := svc.Delete(context.Background(), "author-1", models.RoleUser, "missing")

	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
