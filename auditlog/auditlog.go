// Package auditlog records every state change and every denial as a
// structured, append-only event. It generalizes the teacher's
// agents/audit.go StoreAuditLogger (which logged agent prompt/response
// traffic) to domain state transitions: ticket events go to the
// ticket-scoped history table, everything else (leads, links, denials,
// invalid transitions) goes to the global audit table.
package auditlog

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/fieldops/dispatchcore/domainerr"
	"github.com/fieldops/dispatchcore/model"
	"github.com/google/uuid"
)

// Store is the persistence seam auditlog needs.
type Store interface {
	InsertTicketEvent(ctx context.Context, tx *sql.Tx, ev *model.TicketEvent) error
	InsertAuditEvent(ctx context.Context, tx *sql.Tx, ev *model.AuditEvent) error
}

// Recorder writes audit trail entries, logging alongside each write via
// slog the same way the teacher threads a *slog.Logger through its
// constructors rather than reaching for a package-level global.
type Recorder struct {
	store  Store
	logger *slog.Logger
}

func New(store Store, logger *slog.Logger) *Recorder {
	return &Recorder{store: store, logger: logger}
}

// Payload is the {before, after, reason?, ...context} shape used by every
// call site; reason is only set for denials/invalid transitions.
type Payload map[string]any

// RecordTicketEvent appends a ticket-scoped history entry and logs Info.
func (r *Recorder) RecordTicketEvent(ctx context.Context, tx *sql.Tx, ticketID int64, actorID *int64, action string, payload Payload) error {
	ev := &model.TicketEvent{
		TicketID: ticketID,
		ActorID:  actorID,
		Action:   action,
		Payload:  payload,
	}
	if err := r.store.InsertTicketEvent(ctx, tx, ev); err != nil {
		return domainerr.Wrap("auditlog.record_ticket_event", err)
	}
	r.logger.Info("ticket_event", slog.Int64("ticket_id", ticketID), slog.String("action", action))
	return nil
}

// RecordAuditEvent appends a global audit entry (leads, links, settings,
// denials) and logs Info.
func (r *Recorder) RecordAuditEvent(ctx context.Context, tx *sql.Tx, actorID *int64, action, entityType string, entityID *int64, payload Payload) error {
	ev := &model.AuditEvent{
		ID:         uuid.New(),
		ActorID:    actorID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    payload,
	}
	if err := r.store.InsertAuditEvent(ctx, tx, ev); err != nil {
		return domainerr.Wrap("auditlog.record_audit_event", err)
	}
	r.logger.Info("audit_event", slog.String("entity_type", entityType), slog.String("action", action))
	return nil
}

// RecordDenial appends a global audit entry for a refused or invalid-state
// operation and logs Warn (never the full payload, only the operation and
// reason).
func (r *Recorder) RecordDenial(ctx context.Context, tx *sql.Tx, actorID *int64, operation, entityType string, entityID *int64, reason string) error {
	ev := &model.AuditEvent{
		ID:         uuid.New(),
		ActorID:    actorID,
		Action:     operation,
		EntityType: entityType,
		EntityID:   entityID,
		Payload:    Payload{"reason": reason, "denied": true},
	}
	if err := r.store.InsertAuditEvent(ctx, tx, ev); err != nil {
		return domainerr.Wrap("auditlog.record_denial", err)
	}
	r.logger.Warn("denied", slog.String("operation", operation), slog.String("reason", reason))
	return nil
}
