// Package ticket implements the ticket lifecycle engine (C6): creation,
// the single-taker claim, the in-progress/close/transfer sub-state
// machines, cancellation, and detail edits. Every guarded transition is a
// conditional UPDATE with a RowsAffected check, run inside one
// transaction alongside its audit trail entry and (for close) its ledger
// entries — so a lost race or an invalid-state precondition never leaves a
// partial write behind.
package ticket

import (
	"context"
	"database/sql"
	"time"

	"github.com/fieldops/dispatchcore/auditlog"
	"github.com/fieldops/dispatchcore/domainerr"
	"github.com/fieldops/dispatchcore/internal/db"
	"github.com/fieldops/dispatchcore/ledger"
	"github.com/fieldops/dispatchcore/model"
	"github.com/fieldops/dispatchcore/payout"
	"github.com/fieldops/dispatchcore/permission"
	"github.com/fieldops/dispatchcore/sequence"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store is the persistence seam the engine needs, satisfied by
// *db.Store.
type Store interface {
	CreateTicket(ctx context.Context, tx *sql.Tx, t *model.Ticket) (int64, error)
	GetTicket(ctx context.Context, id int64) (*model.Ticket, error)
	TakeTicket(ctx context.Context, tx *sql.Tx, id, executorID int64, now time.Time) (int64, error)
	SetInProgress(ctx context.Context, tx *sql.Tx, id, actorID int64, override bool, now time.Time) (int64, error)
	CloseTicket(ctx context.Context, tx *sql.Tx, id, actorID int64, override bool, f db.CloseFields) (int64, error)
	MarkTransferSent(ctx context.Context, tx *sql.Tx, id int64, now time.Time) (int64, error)
	ConfirmTransfer(ctx context.Context, tx *sql.Tx, id, confirmedByID int64, now time.Time) (int64, error)
	RejectTransfer(ctx context.Context, tx *sql.Tx, id int64, now time.Time) (int64, error)
	CancelTicket(ctx context.Context, tx *sql.Tx, id int64, now time.Time) (int64, error)
	UpdateDetails(ctx context.Context, tx *sql.Tx, id int64, f db.DetailFields) (int64, error)
	BeginTx() (*sql.Tx, error)

	sequence.Store
	auditlog.Store
	ledger.Store
}

// Clock abstracts time.Now for tests; production wiring passes
// time.Now directly.
type Clock func() time.Time

// Engine is the ticket lifecycle engine.
type Engine struct {
	store  Store
	audit  *auditlog.Recorder
	now    Clock
}

func New(store Store, audit *auditlog.Recorder, now Clock) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{store: store, audit: audit, now: now}
}

// CreateInput is the set of fields a caller supplies to open a new ticket.
type CreateInput struct {
	ActorID     int64
	ActorRole   model.Role
	Category    model.TicketCategory
	ClientName  string
	ClientPhone string
	ClientAge   *int
	ProblemText string
	SpecialNote string
	AdSource    model.AdSource
	ScheduledAt *time.Time
	LeadID      *uuid.UUID
}

// Create opens a new ticket in READY_FOR_WORK, allocating its public ID
// from the daily sequence inside its own transaction.
func (e *Engine) Create(ctx context.Context, in CreateInput) (*model.Ticket, error) {
	tx, err := e.store.BeginTx()
	if err != nil {
		return nil, domainerr.Wrap("ticket.create", err)
	}
	defer tx.Rollback()

	t, err := e.CreateInTx(ctx, tx, in)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, domainerr.Wrap("ticket.create", err)
	}
	return t, nil
}

// CreateInTx is Create's body run against a transaction the caller already
// opened, so a ticket creation that must share a unit of work with other
// writes — e.g. lead.Convert flipping the source lead to CONVERTED — never
// leaves the two halves straddling separate commits (§4.7, §9).
func (e *Engine) CreateInTx(ctx context.Context, tx *sql.Tx, in CreateInput) (*model.Ticket, error) {
	if err := permission.Ensure(in.ActorRole, "ticket.create",
		model.RoleAdmin, model.RoleJuniorAdmin, model.RoleSysAdmin, model.RoleSuperAdmin); err != nil {
		return nil, err
	}
	if in.ClientPhone == "" {
		return nil, domainerr.New(domainerr.Validation, "ticket.create", "client_phone_required")
	}

	now := e.now()
	publicID, err := sequence.NextPublicID(ctx, tx, e.store, now.Format("020106"))
	if err != nil {
		return nil, err
	}

	t := &model.Ticket{
		PublicID:         publicID,
		Status:           model.StatusReadyForWork,
		Category:         in.Category,
		ScheduledAt:      in.ScheduledAt,
		ClientName:       in.ClientName,
		ClientAge:        in.ClientAge,
		ClientPhone:      in.ClientPhone,
		ProblemText:      in.ProblemText,
		SpecialNote:      in.SpecialNote,
		AdSource:         in.AdSource,
		CreatedByAdminID: in.ActorID,
		LeadID:           in.LeadID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	id, err := e.store.CreateTicket(ctx, tx, t)
	if err != nil {
		return nil, domainerr.Wrap("ticket.create", err)
	}
	t.ID = id

	actorID := in.ActorID
	if err := e.audit.RecordTicketEvent(ctx, tx, id, &actorID, "TICKET_CREATED", auditlog.Payload{
		"category": string(in.Category), "public_id": publicID,
	}); err != nil {
		return nil, err
	}
	return t, nil
}

// Take is the single-taker claim: the first executor whose UPDATE matches
// the READY_FOR_WORK precondition wins; every other concurrent caller gets
// a Conflict error with zero rows affected, never a second winner (I1).
func (e *Engine) Take(ctx context.Context, ticketID, executorID int64, executorRole model.Role) (*model.Ticket, error) {
	if err := permission.Ensure(executorRole, "ticket.take",
		model.RoleMaster, model.RoleJuniorMaster, model.RoleSuperAdmin); err != nil {
		return nil, e.denyAndReturn(ctx, ticketID, executorID, "ticket.take", err)
	}

	now := e.now()
	tx, err := e.store.BeginTx()
	if err != nil {
		return nil, domainerr.Wrap("ticket.take", err)
	}
	defer tx.Rollback()

	rows, err := e.store.TakeTicket(ctx, tx, ticketID, executorID, now)
	if err != nil {
		return nil, domainerr.Wrap("ticket.take", err)
	}
	if rows == 0 {
		_ = e.audit.RecordDenial(ctx, tx, &executorID, "ticket.take", "ticket", &ticketID, "already_taken_or_missing")
		tx.Commit()
		return nil, domainerr.New(domainerr.Conflict, "ticket.take", "already_taken_or_missing")
	}

	if err := e.audit.RecordTicketEvent(ctx, tx, ticketID, &executorID, "TICKET_TAKEN", nil); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, domainerr.Wrap("ticket.take", err)
	}
	return e.store.GetTicket(ctx, ticketID)
}

// SetInProgress transitions IN_WORK/TAKEN -> IN_PROGRESS for the assigned
// executor, or for SUPER_ADMIN/SYS_ADMIN acting as an override (§4.4).
func (e *Engine) SetInProgress(ctx context.Context, ticketID, actorID int64, actorRole model.Role) (*model.Ticket, error) {
	if err := permission.Ensure(actorRole, "ticket.set_in_progress",
		model.RoleMaster, model.RoleJuniorMaster, model.RoleSuperAdmin, model.RoleSysAdmin); err != nil {
		return nil, e.denyAndReturn(ctx, ticketID, actorID, "ticket.set_in_progress", err)
	}
	now := e.now()
	tx, err := e.store.BeginTx()
	if err != nil {
		return nil, domainerr.Wrap("ticket.set_in_progress", err)
	}
	defer tx.Rollback()

	rows, err := e.store.SetInProgress(ctx, tx, ticketID, actorID, permission.IsOverride(actorRole), now)
	if err != nil {
		return nil, domainerr.Wrap("ticket.set_in_progress", err)
	}
	if rows == 0 {
		_ = e.audit.RecordDenial(ctx, tx, &actorID, "ticket.set_in_progress", "ticket", &ticketID, "invalid_state")
		tx.Commit()
		return nil, domainerr.New(domainerr.InvalidState, "ticket.set_in_progress", "invalid_state")
	}
	if err := e.audit.RecordTicketEvent(ctx, tx, ticketID, &actorID, "TICKET_IN_PROGRESS", nil); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, domainerr.Wrap("ticket.set_in_progress", err)
	}
	return e.store.GetTicket(ctx, ticketID)
}

// CloseInput bundles the close-time financial inputs; percents are the
// current values from the acting executor/admin/junior, frozen onto the
// ticket by payout.Compute.
type CloseInput struct {
	ActorID     int64
	ActorRole   model.Role
	Revenue     decimal.Decimal
	Expense     decimal.Decimal
	ExecutorPct decimal.Decimal
	AdminPct    decimal.Decimal
	JuniorPct   *decimal.Decimal
	Comment     string
}

// Close freezes the payout split and appends the money-ledger entries
// atomically with the status transition. Close (and re-close) is allowed
// for the ticket's assigned executor, or — per §4.4's override clause and
// §4.5's re-close policy — for SUPER_ADMIN/SYS_ADMIN acting on any ticket
// regardless of executor, from IN_PROGRESS/IN_WORK/TAKEN/WAITING or an
// already-CLOSED status.
func (e *Engine) Close(ctx context.Context, ticketID int64, in CloseInput) (*model.Ticket, error) {
	if err := permission.Ensure(in.ActorRole, "ticket.close",
		model.RoleMaster, model.RoleJuniorMaster, model.RoleSuperAdmin, model.RoleSysAdmin); err != nil {
		return nil, e.denyAndReturn(ctx, ticketID, in.ActorID, "ticket.close", err)
	}
	override := permission.IsOverride(in.ActorRole)

	existing, err := e.store.GetTicket(ctx, ticketID)
	if err != nil {
		return nil, domainerr.Wrap("ticket.close", err)
	}
	if existing == nil {
		return nil, domainerr.New(domainerr.InvalidState, "ticket.close", "ticket_not_found")
	}

	result, err := payout.Compute(in.Revenue, in.Expense, in.ExecutorPct, in.AdminPct, in.JuniorPct)
	if err != nil {
		return nil, err
	}

	now := e.now()
	tx, err := e.store.BeginTx()
	if err != nil {
		return nil, domainerr.Wrap("ticket.close", err)
	}
	defer tx.Rollback()

	rows, err := e.store.CloseTicket(ctx, tx, ticketID, in.ActorID, override, db.CloseFields{
		Revenue: in.Revenue, Expense: in.Expense, NetProfit: result.NetProfit,
		ExecutorPercentClose: in.ExecutorPct, AdminPercentClose: in.AdminPct, JuniorPercentClose: in.JuniorPct,
		ExecutorEarned: result.ExecutorEarned, AdminEarned: result.AdminEarned,
		JuniorEarned: result.JuniorEarned, ProjectTake: result.ProjectTake,
		ClosedByUserID: in.ActorID, ClosedComment: in.Comment, Now: now,
	})
	if err != nil {
		return nil, domainerr.Wrap("ticket.close", err)
	}
	if rows == 0 {
		_ = e.audit.RecordDenial(ctx, tx, &in.ActorID, "ticket.close", "ticket", &ticketID, "invalid_state")
		tx.Commit()
		return nil, domainerr.New(domainerr.InvalidState, "ticket.close", "invalid_state")
	}

	if err := ledger.AppendFromClose(ctx, tx, e.store, ticketID, existing.Category,
		existing.Revenue, existing.Expense, in.Revenue, in.Expense, in.Comment); err != nil {
		return nil, err
	}

	if err := e.audit.RecordTicketEvent(ctx, tx, ticketID, &in.ActorID, "TICKET_CLOSED", auditlog.Payload{
		"net_profit": result.NetProfit.String(), "executor_earned": result.ExecutorEarned.String(),
		"admin_earned": result.AdminEarned.String(), "junior_earned": result.JuniorEarned.String(),
		"project_take": result.ProjectTake.String(),
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, domainerr.Wrap("ticket.close", err)
	}
	return e.store.GetTicket(ctx, ticketID)
}

// MarkTransferSent records that the executor sent the cash/transfer for a
// closed ticket.
func (e *Engine) MarkTransferSent(ctx context.Context, ticketID, actorID int64) (*model.Ticket, error) {
	now := e.now()
	tx, err := e.store.BeginTx()
	if err != nil {
		return nil, domainerr.Wrap("ticket.mark_transfer_sent", err)
	}
	defer tx.Rollback()

	rows, err := e.store.MarkTransferSent(ctx, tx, ticketID, now)
	if err != nil {
		return nil, domainerr.Wrap("ticket.mark_transfer_sent", err)
	}
	if rows == 0 {
		_ = e.audit.RecordDenial(ctx, tx, &actorID, "ticket.mark_transfer_sent", "ticket", &ticketID, "invalid_state")
		tx.Commit()
		return nil, domainerr.New(domainerr.InvalidState, "ticket.mark_transfer_sent", "invalid_state")
	}
	if err := e.audit.RecordTicketEvent(ctx, tx, ticketID, &actorID, "TRANSFER_SENT", nil); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, domainerr.Wrap("ticket.mark_transfer_sent", err)
	}
	return e.store.GetTicket(ctx, ticketID)
}

// ConfirmTransfer is called by an admin/accountant confirming receipt.
func (e *Engine) ConfirmTransfer(ctx context.Context, ticketID, actorID int64, actorRole model.Role) (*model.Ticket, error) {
	if err := permission.Ensure(actorRole, "ticket.confirm_transfer",
		model.RoleAdmin, model.RoleSysAdmin, model.RoleSuperAdmin); err != nil {
		return nil, e.denyAndReturn(ctx, ticketID, actorID, "ticket.confirm_transfer", err)
	}
	now := e.now()
	tx, err := e.store.BeginTx()
	if err != nil {
		return nil, domainerr.Wrap("ticket.confirm_transfer", err)
	}
	defer tx.Rollback()

	rows, err := e.store.ConfirmTransfer(ctx, tx, ticketID, actorID, now)
	if err != nil {
		return nil, domainerr.Wrap("ticket.confirm_transfer", err)
	}
	if rows == 0 {
		_ = e.audit.RecordDenial(ctx, tx, &actorID, "ticket.confirm_transfer", "ticket", &ticketID, "invalid_state")
		tx.Commit()
		return nil, domainerr.New(domainerr.InvalidState, "ticket.confirm_transfer", "invalid_state")
	}
	if err := e.audit.RecordTicketEvent(ctx, tx, ticketID, &actorID, "TRANSFER_CONFIRMED", nil); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, domainerr.Wrap("ticket.confirm_transfer", err)
	}
	return e.store.GetTicket(ctx, ticketID)
}

// RejectTransfer is called by an admin/accountant disputing the amount
// sent, sending it back to NOT_SENT's sibling REJECTED state for manual
// follow-up.
func (e *Engine) RejectTransfer(ctx context.Context, ticketID, actorID int64, actorRole model.Role) (*model.Ticket, error) {
	if err := permission.Ensure(actorRole, "ticket.reject_transfer",
		model.RoleAdmin, model.RoleSysAdmin, model.RoleSuperAdmin); err != nil {
		return nil, e.denyAndReturn(ctx, ticketID, actorID, "ticket.reject_transfer", err)
	}
	now := e.now()
	tx, err := e.store.BeginTx()
	if err != nil {
		return nil, domainerr.Wrap("ticket.reject_transfer", err)
	}
	defer tx.Rollback()

	rows, err := e.store.RejectTransfer(ctx, tx, ticketID, now)
	if err != nil {
		return nil, domainerr.Wrap("ticket.reject_transfer", err)
	}
	if rows == 0 {
		_ = e.audit.RecordDenial(ctx, tx, &actorID, "ticket.reject_transfer", "ticket", &ticketID, "invalid_state")
		tx.Commit()
		return nil, domainerr.New(domainerr.InvalidState, "ticket.reject_transfer", "invalid_state")
	}
	if err := e.audit.RecordTicketEvent(ctx, tx, ticketID, &actorID, "TRANSFER_REJECTED", nil); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, domainerr.Wrap("ticket.reject_transfer", err)
	}
	return e.store.GetTicket(ctx, ticketID)
}

// Cancel moves a pre-close ticket to CANCELLED.
func (e *Engine) Cancel(ctx context.Context, ticketID, actorID int64, actorRole model.Role) (*model.Ticket, error) {
	if err := permission.Ensure(actorRole, "ticket.cancel",
		model.RoleAdmin, model.RoleJuniorAdmin, model.RoleSysAdmin, model.RoleSuperAdmin); err != nil {
		return nil, e.denyAndReturn(ctx, ticketID, actorID, "ticket.cancel", err)
	}
	now := e.now()
	tx, err := e.store.BeginTx()
	if err != nil {
		return nil, domainerr.Wrap("ticket.cancel", err)
	}
	defer tx.Rollback()

	rows, err := e.store.CancelTicket(ctx, tx, ticketID, now)
	if err != nil {
		return nil, domainerr.Wrap("ticket.cancel", err)
	}
	if rows == 0 {
		_ = e.audit.RecordDenial(ctx, tx, &actorID, "ticket.cancel", "ticket", &ticketID, "invalid_state")
		tx.Commit()
		return nil, domainerr.New(domainerr.InvalidState, "ticket.cancel", "invalid_state")
	}
	if err := e.audit.RecordTicketEvent(ctx, tx, ticketID, &actorID, "TICKET_CANCELLED", nil); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, domainerr.Wrap("ticket.cancel", err)
	}
	return e.store.GetTicket(ctx, ticketID)
}

// UpdateDetailsInput bundles the editable narrative/scheduling fields;
// nil means "leave unchanged".
type UpdateDetailsInput struct {
	ClientName    *string
	ClientPhone   *string
	ClientAddress *string
	ProblemText   *string
	SpecialNote   *string
	ScheduledAt   *time.Time
}

// UpdateDetails edits narrative/scheduling fields without a status
// transition (§4.13); allowed roles are ADMIN/JUNIOR_ADMIN/SYS_ADMIN/
// SUPER_ADMIN/MASTER/JUNIOR_MASTER. A MASTER or JUNIOR_MASTER is not checked
// against the ticket's assigned executor, and no role is restricted to a
// subset of the fields.
func (e *Engine) UpdateDetails(ctx context.Context, ticketID, actorID int64, actorRole model.Role, in UpdateDetailsInput) (*model.Ticket, error) {
	if err := permission.Ensure(actorRole, "ticket.update_details",
		model.RoleAdmin, model.RoleJuniorAdmin, model.RoleSysAdmin, model.RoleSuperAdmin, model.RoleMaster, model.RoleJuniorMaster); err != nil {
		return nil, e.denyAndReturn(ctx, ticketID, actorID, "ticket.update_details", err)
	}
	now := e.now()
	tx, err := e.store.BeginTx()
	if err != nil {
		return nil, domainerr.Wrap("ticket.update_details", err)
	}
	defer tx.Rollback()

	rows, err := e.store.UpdateDetails(ctx, tx, ticketID, db.DetailFields{
		ClientName: in.ClientName, ClientPhone: in.ClientPhone, ClientAddress: in.ClientAddress,
		ProblemText: in.ProblemText, SpecialNote: in.SpecialNote, ScheduledAt: in.ScheduledAt, Now: now,
	})
	if err != nil {
		return nil, domainerr.Wrap("ticket.update_details", err)
	}
	if rows == 0 {
		_ = e.audit.RecordDenial(ctx, tx, &actorID, "ticket.update_details", "ticket", &ticketID, "invalid_state")
		tx.Commit()
		return nil, domainerr.New(domainerr.InvalidState, "ticket.update_details", "invalid_state")
	}
	if err := e.audit.RecordTicketEvent(ctx, tx, ticketID, &actorID, "TICKET_DETAILS_UPDATED", nil); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, domainerr.Wrap("ticket.update_details", err)
	}
	return e.store.GetTicket(ctx, ticketID)
}

func (e *Engine) denyAndReturn(ctx context.Context, ticketID, actorID int64, op string, cause error) error {
	tx, err := e.store.BeginTx()
	if err != nil {
		return cause
	}
	defer tx.Rollback()
	_ = e.audit.RecordDenial(ctx, tx, &actorID, op, "ticket", &ticketID, "role_not_allowed")
	tx.Commit()
	return cause
}
