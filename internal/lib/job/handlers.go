package job

import (
	"context"
	"fmt"

	"github.com/deppfellow/backboneapi/internal/collection"
	"github.com/hibiken/asynq"
)

// AuditStore persists audit events taken off the queue.
type AuditStore interface {
	SaveAuditEvent(ctx context.Context, event collection.AuditEvent) error
}

// handleAuditEventTask decodes an audit event and stores it.
func (j *JobService) handleAuditEventTask(ctx context.Context, t *asynq.Task) error {
	event, err := decodeAuditEvent(t.Payload())
	if err != nil {
		// A payload that cannot be decoded will never succeed.
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	logger := j.logger.With().
		Str("type", TaskAuditEvent).
		Str("collection", event.Collection).
		Str("action", event.Action).
		Interface("record_id", event.RecordID).
		Logger()

	logger.Debug().Msg("processing audit event task")

	if err := j.store.SaveAuditEvent(ctx, event); err != nil {
		logger.Error().Err(err).Msg("failed to store audit event")
		return err
	}

	logger.Info().Str("outcome", event.Outcome).Msg("stored audit event")
	return nil
}
