package repository

import (
	"context"
	"fmt"

	"github.com/deppfellow/backboneapi/internal/codec"
	"github.com/deppfellow/backboneapi/internal/collection"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AuditRepository persists collection audit events.
type AuditRepository struct {
	pool *pgxpool.Pool
}

func NewAuditRepository(pool *pgxpool.Pool) *AuditRepository {
	return &AuditRepository{pool: pool}
}

const insertAuditEventSQL = `
INSERT INTO audit_events (collection, action, actor, record_id, outcome, payload, occurred_at)
VALUES (@collection, @action, @actor, @record_id, @outcome, @payload, @occurred_at)`

// auditPayload is the JSONB body of an audit row.
type auditPayload struct {
	Data    collection.Values            `json:"data,omitempty"`
	Changes map[string]collection.Change `json:"changes,omitempty"`
	Errors  collection.FieldErrors       `json:"errors,omitempty"`
}

func auditArgs(event collection.AuditEvent) (pgx.NamedArgs, error) {
	payload, err := codec.Encode(auditPayload{
		Data:    event.Data,
		Changes: event.Changes,
		Errors:  event.Errors,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode audit payload: %w", err)
	}

	var recordID *string
	if event.RecordID != nil {
		s := fmt.Sprint(event.RecordID)
		recordID = &s
	}

	return pgx.NamedArgs{
		"collection":  event.Collection,
		"action":      event.Action,
		"actor":       event.Actor,
		"record_id":   recordID,
		"outcome":     event.Outcome,
		"payload":     string(payload),
		"occurred_at": event.At,
	}, nil
}

// SaveAuditEvent inserts one event.
func (r *AuditRepository) SaveAuditEvent(ctx context.Context, event collection.AuditEvent) error {
	args, err := auditArgs(event)
	if err != nil {
		return err
	}
	if _, err := querier(ctx, r.pool).Exec(ctx, insertAuditEventSQL, args); err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}
