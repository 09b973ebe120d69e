package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fieldops/dispatchcore/model"
	"github.com/google/uuid"
)

const leadColumns = `
	external_id, status, source, client_name, client_phone, client_age,
	problem_text, special_note, ad_source, preferred_at, converted_ticket_id,
	created_at, updated_at
`

// GetLead retrieves a lead by its external UUID. Returns (nil, nil) if not
// found — callers use this to implement idempotent ingest (P1).
func (s *Store) GetLead(ctx context.Context, externalID uuid.UUID) (*model.Lead, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE external_id = ?`, externalID.String())
	l, err := scanLead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get lead %s: %w", externalID, err)
	}
	return l, nil
}

// InsertLead inserts a new lead row keyed by its external UUID primary key;
// a duplicate ExternalID fails the unique constraint, which callers must
// avoid by checking GetLead first within the same logical operation.
func (s *Store) InsertLead(ctx context.Context, tx *sql.Tx, l *model.Lead) error {
	var clientAge sql.NullInt64
	if l.ClientAge != nil {
		clientAge = sql.NullInt64{Int64: int64(*l.ClientAge), Valid: true}
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO leads (
			external_id, status, source, client_name, client_phone, client_age,
			problem_text, special_note, ad_source, preferred_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, l.ExternalID.String(), string(l.Status), nullString(l.Source), nullString(l.ClientName),
		nullString(l.ClientPhone), clientAge, nullString(l.ProblemText), nullString(l.SpecialNote),
		string(l.AdSource), nullTime(l.PreferredAt))
	if err != nil {
		return fmt.Errorf("insert lead: %w", err)
	}
	return nil
}

// SetLeadStatus conditionally updates a lead's status, refusing to touch a
// lead that has already converted.
func (s *Store) SetLeadStatus(ctx context.Context, tx *sql.Tx, externalID uuid.UUID, status model.LeadStatus, now time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE leads SET status = ?, updated_at = ? WHERE external_id = ? AND status != ?
	`, string(status), now, externalID.String(), string(model.LeadStatusConverted))
	if err != nil {
		return 0, fmt.Errorf("set lead status: %w", err)
	}
	return res.RowsAffected()
}

// MarkLeadConverted stamps a lead CONVERTED with the ticket it produced.
func (s *Store) MarkLeadConverted(ctx context.Context, tx *sql.Tx, externalID uuid.UUID, ticketID int64, now time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE leads SET status = ?, converted_ticket_id = ?, updated_at = ?
		WHERE external_id = ? AND status != ?
	`, string(model.LeadStatusConverted), ticketID, now, externalID.String(), string(model.LeadStatusConverted))
	if err != nil {
		return 0, fmt.Errorf("mark lead converted: %w", err)
	}
	return res.RowsAffected()
}

func scanLead(row scanner) (*model.Lead, error) {
	var l model.Lead
	var externalID, status, adSource string
	var source, clientName, clientPhone, problemText, specialNote sql.NullString
	var clientAge, convertedTicketID sql.NullInt64
	var preferredAt sql.NullTime

	if err := row.Scan(
		&externalID, &status, &source, &clientName, &clientPhone, &clientAge,
		&problemText, &specialNote, &adSource, &preferredAt, &convertedTicketID,
		&l.CreatedAt, &l.UpdatedAt,
	); err != nil {
		return nil, err
	}

	id, err := parseUUID(externalID)
	if err != nil {
		return nil, err
	}
	l.ExternalID = id
	l.Status = model.LeadStatus(status)
	l.AdSource = model.AdSource(adSource)
	l.Source = source.String
	l.ClientName = clientName.String
	l.ClientPhone = clientPhone.String
	l.ProblemText = problemText.String
	l.SpecialNote = specialNote.String
	l.PreferredAt = optionalTime(preferredAt)
	l.ConvertedTicketID = optionalInt64(convertedTicketID)
	if clientAge.Valid {
		age := int(clientAge.Int64)
		l.ClientAge = &age
	}
	return &l, nil
}
