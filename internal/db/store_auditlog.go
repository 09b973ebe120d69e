package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fieldops/dispatchcore/model"
)

// InsertTicketEvent implements auditlog.Store.
func (s *Store) InsertTicketEvent(ctx context.Context, tx *sql.Tx, ev *model.TicketEvent) error {
	payload, err := marshalJSON(ev.Payload)
	if err != nil {
		return fmt.Errorf("marshal ticket event payload: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO ticket_events (ticket_id, actor_id, action, payload)
		VALUES (?, ?, ?, ?)
	`, ev.TicketID, nullInt64(ev.ActorID), ev.Action, payload)
	if err != nil {
		return fmt.Errorf("insert ticket event: %w", err)
	}
	return nil
}

// InsertAuditEvent implements auditlog.Store.
func (s *Store) InsertAuditEvent(ctx context.Context, tx *sql.Tx, ev *model.AuditEvent) error {
	payload, err := marshalJSON(ev.Payload)
	if err != nil {
		return fmt.Errorf("marshal audit event payload: %w", err)
	}
	var entityID sql.NullString
	if ev.EntityID != nil {
		entityID = sql.NullString{String: fmt.Sprintf("%d", *ev.EntityID), Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_events (id, actor_id, action, entity_type, entity_id, payload)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ev.ID.String(), nullInt64(ev.ActorID), ev.Action, ev.EntityType, entityID, payload)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListTicketEvents returns a ticket's history, oldest first, for the
// read-only API and the finance export views.
func (s *Store) ListTicketEvents(ctx context.Context, ticketID int64) ([]model.TicketEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ticket_id, actor_id, action, payload, created_at
		FROM ticket_events WHERE ticket_id = ? ORDER BY id ASC
	`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("list ticket events: %w", err)
	}
	defer rows.Close()

	var out []model.TicketEvent
	for rows.Next() {
		var ev model.TicketEvent
		var actorID sql.NullInt64
		var payload sql.NullString
		if err := rows.Scan(&ev.ID, &ev.TicketID, &actorID, &ev.Action, &payload, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ticket event: %w", err)
		}
		ev.ActorID = optionalInt64(actorID)
		m, err := unmarshalJSONMap(payload)
		if err != nil {
			return nil, fmt.Errorf("unmarshal ticket event payload: %w", err)
		}
		ev.Payload = m
		out = append(out, ev)
	}
	return out, rows.Err()
}
