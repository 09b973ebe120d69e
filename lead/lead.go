// Package lead implements the site-lead ingest pipeline (C7): idempotent
// creation keyed by an external UUID, status transitions, and conversion
// into a ticket. Grounded on original_source's lead_service.py
// (create_from_site / set_status / convert_to_ticket / build_ticket_prefill).
package lead

import (
	"context"
	"database/sql"
	"time"

	"github.com/fieldops/dispatchcore/alias"
	"github.com/fieldops/dispatchcore/auditlog"
	"github.com/fieldops/dispatchcore/domainerr"
	"github.com/fieldops/dispatchcore/model"
	"github.com/fieldops/dispatchcore/ticket"
	"github.com/google/uuid"
)

// Store is the persistence seam lead needs.
type Store interface {
	GetLead(ctx context.Context, externalID uuid.UUID) (*model.Lead, error)
	InsertLead(ctx context.Context, tx *sql.Tx, l *model.Lead) error
	SetLeadStatus(ctx context.Context, tx *sql.Tx, externalID uuid.UUID, status model.LeadStatus, now time.Time) (int64, error)
	MarkLeadConverted(ctx context.Context, tx *sql.Tx, externalID uuid.UUID, ticketID int64, now time.Time) (int64, error)
	BeginTx() (*sql.Tx, error)
}

// Engine is the lead ingest pipeline.
type Engine struct {
	store   Store
	audit   *auditlog.Recorder
	tickets *ticket.Engine
	now     func() time.Time
}

func New(store Store, audit *auditlog.Recorder, tickets *ticket.Engine, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{store: store, audit: audit, tickets: tickets, now: now}
}

// IngestInput is the webhook payload shape (§6).
type IngestInput struct {
	ExternalID  uuid.UUID
	Source      string
	ClientName  string
	ClientPhone string
	ClientAge   *int
	ProblemText string
	SpecialNote string
	AdSourceRaw string
	PreferredAt *time.Time
}

// defaultProblemText mirrors the original's "Не указано" fallback when the
// webhook omits a problem description.
const defaultProblemText = "not specified"

// Ingest is idempotent on ExternalID: a retry of the same webhook delivery
// returns the existing lead rather than creating a duplicate (P1). The
// second return value is true when an existing lead was returned instead of
// a new one being created.
func (e *Engine) Ingest(ctx context.Context, in IngestInput) (*model.Lead, bool, error) {
	existing, err := e.store.GetLead(ctx, in.ExternalID)
	if err != nil {
		return nil, false, domainerr.Wrap("lead.ingest", err)
	}
	if existing != nil {
		return existing, true, nil
	}

	problemText := in.ProblemText
	if problemText == "" {
		problemText = defaultProblemText
	}

	adSource, ok := alias.NormalizeAdSource(in.AdSourceRaw)
	if !ok {
		adSource = model.AdSourceUnknown
	}

	now := e.now()
	l := &model.Lead{
		ExternalID:  in.ExternalID,
		Status:      model.LeadStatusNewRaw,
		Source:      in.Source,
		ClientName:  in.ClientName,
		ClientPhone: in.ClientPhone,
		ClientAge:   in.ClientAge,
		ProblemText: problemText,
		SpecialNote: in.SpecialNote,
		AdSource:    adSource,
		PreferredAt: in.PreferredAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	tx, err := e.store.BeginTx()
	if err != nil {
		return nil, false, domainerr.Wrap("lead.ingest", err)
	}
	defer tx.Rollback()

	if err := e.store.InsertLead(ctx, tx, l); err != nil {
		return nil, false, domainerr.Wrap("lead.ingest", err)
	}

	if err := e.audit.RecordAuditEvent(ctx, tx, nil, "LEAD_CREATED", "lead", nil, auditlog.Payload{
		"external_id": in.ExternalID.String(), "source": in.Source,
	}); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, domainerr.Wrap("lead.ingest", err)
	}
	return l, false, nil
}

// SetStatus moves a lead between NEW_RAW/NEED_INFO/SPAM (not CONVERTED,
// which only Convert may set).
func (e *Engine) SetStatus(ctx context.Context, externalID uuid.UUID, actorID int64, status model.LeadStatus) error {
	if status == model.LeadStatusConverted {
		return domainerr.New(domainerr.Validation, "lead.set_status", "use_convert_to_set_converted")
	}
	now := e.now()
	tx, err := e.store.BeginTx()
	if err != nil {
		return domainerr.Wrap("lead.set_status", err)
	}
	defer tx.Rollback()

	rows, err := e.store.SetLeadStatus(ctx, tx, externalID, status, now)
	if err != nil {
		return domainerr.Wrap("lead.set_status", err)
	}
	if rows == 0 {
		return domainerr.New(domainerr.InvalidState, "lead.set_status", "lead_not_found_or_converted")
	}
	if err := e.audit.RecordAuditEvent(ctx, tx, &actorID, "LEAD_STATUS_UPDATED", "lead", nil, auditlog.Payload{
		"external_id": externalID.String(), "status": string(status),
	}); err != nil {
		return err
	}
	return domainerr.Wrap("lead.set_status", tx.Commit())
}

// ConvertInput bundles the ticket fields a lead's prefill can't supply on
// its own (the creating admin and the category, which the original's
// build_ticket_prefill leaves to the bot dialog).
type ConvertInput struct {
	ActorID   int64
	ActorRole model.Role
	Category  model.TicketCategory
}

// Convert creates a ticket from a lead's prefilled fields and marks the
// lead CONVERTED, recording the ticket ID it produced.
func (e *Engine) Convert(ctx context.Context, externalID uuid.UUID, in ConvertInput) (*model.Ticket, error) {
	l, err := e.store.GetLead(ctx, externalID)
	if err != nil {
		return nil, domainerr.Wrap("lead.convert", err)
	}
	if l == nil {
		return nil, domainerr.New(domainerr.InvalidState, "lead.convert", "lead_not_found")
	}
	if l.Status == model.LeadStatusConverted {
		return nil, domainerr.New(domainerr.InvalidState, "lead.convert", "already_converted")
	}

	leadID := l.ExternalID

	tx, err := e.store.BeginTx()
	if err != nil {
		return nil, domainerr.Wrap("lead.convert", err)
	}
	defer tx.Rollback()

	t, err := e.tickets.CreateInTx(ctx, tx, ticket.CreateInput{
		ActorID:     in.ActorID,
		ActorRole:   in.ActorRole,
		Category:    in.Category,
		ClientName:  l.ClientName,
		ClientPhone: l.ClientPhone,
		ClientAge:   l.ClientAge,
		ProblemText: l.ProblemText,
		SpecialNote: l.SpecialNote,
		AdSource:    l.AdSource,
		ScheduledAt: l.PreferredAt,
		LeadID:      &leadID,
	})
	if err != nil {
		return nil, err
	}

	now := e.now()
	if _, err := e.store.MarkLeadConverted(ctx, tx, externalID, t.ID, now); err != nil {
		return nil, domainerr.Wrap("lead.convert", err)
	}
	if err := e.audit.RecordAuditEvent(ctx, tx, &in.ActorID, "LEAD_CONVERTED", "lead", nil, auditlog.Payload{
		"external_id": externalID.String(), "ticket_id": t.ID,
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, domainerr.Wrap("lead.convert", err)
	}
	return t, nil
}
