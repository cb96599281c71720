// Package audit provides a best-effort, asynchronous audit trail. Writes
// are decoupled from the operations they describe: a failure to record an
// event never fails or delays the operation itself.
package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/chatline/chatline-api/internal/models"
	"github.com/chatline/chatline-api/pkg/config"
	"github.com/chatline/chatline-api/pkg/jobs"
)

// Entry describes one auditable event before serialization.
type Entry struct {
	ActorID    *string
	Action     string
	EntityType string
	EntityID   *string
	Before     interface{}
	After      interface{}
	Metadata   map[string]interface{}
}

type store interface {
	Create(ctx context.Context, log *models.AuditLog) error
}

// Recorder is the sink surface services depend on.
type Recorder interface {
	Record(entry Entry)
}

// Sink accepts audit entries and writes them in the background.
type Sink struct {
	queue  *jobs.Queue
	logger *zap.Logger
}

// NewSink builds a sink backed by a worker queue writing through repo.
func NewSink(repo store, cfg config.AuditConfig, logger *zap.Logger) *Sink {
	if logger == nil {
		logger = zap.NewNop()
	}

	handler := func(ctx context.Context, job jobs.Job) error {
		log, ok := job.Payload.(*models.AuditLog)
		if !ok {
			return fmt.Errorf("unexpected audit payload %T", job.Payload)
		}
		return repo.Create(ctx, log)
	}

	queue := jobs.NewQueue("audit", handler, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		Logger:     logger,
	})

	return &Sink{queue: queue, logger: logger}
}

// Start launches the background workers.
func (s *Sink) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers.
func (s *Sink) Stop() {
	s.queue.Stop()
}

// Record enqueues an entry. It never returns an error: serialization or
// queue failures are logged and the event is dropped.
func (s *Sink) Record(entry Entry) {
	log := &models.AuditLog{
		UserID:     entry.ActorID,
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entry.EntityID,
		OldValues:  marshal(entry.Before, s.logger),
		NewValues:  marshal(entry.After, s.logger),
		Metadata:   marshal(entry.Metadata, s.logger),
	}

	if err := s.queue.Enqueue(jobs.Job{Type: entry.Action, Payload: log}); err != nil {
		s.logger.Warn("audit event dropped", zap.String("action", entry.Action), zap.Error(err))
	}
}

func marshal(v interface{}, logger *zap.Logger) []byte {
	if v == nil {
		return nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		logger.Warn("audit snapshot not serializable", zap.Error(err))
		return nil
	}
	return b
}
