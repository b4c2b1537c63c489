package job

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/deppfellow/backboneapi/internal/collection"
	"github.com/hibiken/asynq"
)

const (
	// TaskAuditEvent is the job type name stored in Redis.
	TaskAuditEvent = "audit:event"

	// AuditQueue is the queue audit tasks are sent to.
	AuditQueue = "low"
)

// NewAuditEventTask constructs an Asynq task carrying one audit event.
//
// Task options:
//   - MaxRetry(3): retry up to 3 times on failure
//   - Queue("low"): audit writes never compete with urgent work
//   - Timeout(30s): kill the task if the handler runs longer than 30 seconds
func NewAuditEventTask(event collection.AuditEvent) (*asynq.Task, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskAuditEvent,
		payload,
		asynq.MaxRetry(3),
		asynq.Queue(AuditQueue),
		asynq.Timeout(30*time.Second),
	), nil
}

// decodeAuditEvent reverses NewAuditEventTask. Numbers stay json.Number so
// record identifiers keep full precision.
func decodeAuditEvent(payload []byte) (collection.AuditEvent, error) {
	var event collection.AuditEvent

	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&event); err != nil {
		return event, fmt.Errorf("failed to unmarshal audit event payload: %w", err)
	}
	return event, nil
}

// Enqueuer is the part of *asynq.Client used to submit tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AuditEnqueuer is a collection.Auditor that hands events to the job queue.
type AuditEnqueuer struct {
	client Enqueuer
}

func NewAuditEnqueuer(client Enqueuer) *AuditEnqueuer {
	return &AuditEnqueuer{client: client}
}

var _ collection.Auditor = (*AuditEnqueuer)(nil)

func (a *AuditEnqueuer) Audit(ctx context.Context, event collection.AuditEvent) error {
	task, err := NewAuditEventTask(event)
	if err != nil {
		return err
	}
	if _, err := a.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("failed to enqueue audit event: %w", err)
	}
	return nil
}
