package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fieldops/dispatchcore/model"
	"github.com/shopspring/decimal"
)

const ticketColumns = `
	id, public_id, status, category, scheduled_at, preferred_date_dm,
	client_name, client_age, client_phone, client_address,
	problem_text, special_note, ad_source, is_repeat, repeat_ticket_ids,
	created_by_admin_id, assigned_executor_id, junior_master_id,
	taken_at, in_progress_at,
	revenue, expense, net_profit, executor_percent_close, admin_percent_close, junior_percent_close,
	executor_earned, admin_earned, junior_earned, project_take,
	closed_at, closed_by_user_id, closed_comment,
	transfer_status, transfer_sent_at, transfer_confirmed_by_id, transfer_confirmed_at,
	lead_id, created_at, updated_at
`

// CreateTicket inserts a new ticket row. Callers pass a *sql.Tx so the
// insert commits atomically with the sequence allocation that produced
// t.PublicID.
func (s *Store) CreateTicket(ctx context.Context, tx *sql.Tx, t *model.Ticket) (int64, error) {
	var repeatIDs sql.NullString
	if len(t.RepeatTicketIDs) > 0 {
		v, err := marshalJSON(t.RepeatTicketIDs)
		if err != nil {
			return 0, fmt.Errorf("marshal repeat ticket ids: %w", err)
		}
		repeatIDs = v
	}
	var clientAge sql.NullInt64
	if t.ClientAge != nil {
		clientAge = sql.NullInt64{Int64: int64(*t.ClientAge), Valid: true}
	}
	var leadID sql.NullString
	if t.LeadID != nil {
		leadID = sql.NullString{String: t.LeadID.String(), Valid: true}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO tickets (
			public_id, status, category, scheduled_at, preferred_date_dm,
			client_name, client_age, client_phone, client_address,
			problem_text, special_note, ad_source, is_repeat, repeat_ticket_ids,
			created_by_admin_id, assigned_executor_id, junior_master_id,
			lead_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		t.PublicID, string(t.Status), string(t.Category), nullTime(t.ScheduledAt), nullString(t.PreferredDateDM),
		nullString(t.ClientName), clientAge, nullString(t.ClientPhone), nullString(t.ClientAddress),
		nullString(t.ProblemText), nullString(t.SpecialNote), string(t.AdSource), t.IsRepeat, repeatIDs,
		t.CreatedByAdminID, nullInt64(t.AssignedExecutorID), nullInt64(t.JuniorMasterID),
		leadID,
	)
	if err != nil {
		return 0, fmt.Errorf("insert ticket: %w", err)
	}
	return res.LastInsertId()
}

// GetTicket retrieves a ticket by internal ID. Returns (nil, nil) if not
// found.
func (s *Store) GetTicket(ctx context.Context, id int64) (*model.Ticket, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id)
	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket %d: %w", id, err)
	}
	return t, nil
}

// GetTicketByPublicID retrieves a ticket by its public DDMMYYNN code.
func (s *Store) GetTicketByPublicID(ctx context.Context, publicID string) (*model.Ticket, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE public_id = ?`, publicID)
	t, err := scanTicket(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get ticket by public id %s: %w", publicID, err)
	}
	return t, nil
}

// ListTicketsByPhone returns tickets whose client_phone contains the given
// substring, newest first, per §4.10's phone-substring search dispatch.
// client_phone is matched as stored: the webhook and ticket create paths
// keep the phone as given (a leading "+" included), and no non-digit
// characters are stripped before the LIKE comparison.
func (s *Store) ListTicketsByPhone(ctx context.Context, phoneDigits string, limit int) ([]model.Ticket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ticketColumns+` FROM tickets WHERE client_phone LIKE ? ORDER BY created_at DESC LIMIT ?
	`, "%"+phoneDigits+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("list tickets by phone: %w", err)
	}
	defer rows.Close()
	return scanTicketRowsAll(rows)
}

// ListTickets runs a filtered, paginated query per the access package's
// predicate; statuses may be empty to mean "no status filter".
func (s *Store) ListTickets(ctx context.Context, statuses []model.TicketStatus, assignedExecutorID *int64, createdFrom, createdTo *time.Time, limit, offset int) ([]model.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE 1=1`
	var args []any

	if len(statuses) > 0 {
		query += ` AND status IN (` + placeholders(len(statuses)) + `)`
		for _, st := range statuses {
			args = append(args, string(st))
		}
	}
	if assignedExecutorID != nil {
		query += ` AND assigned_executor_id = ?`
		args = append(args, *assignedExecutorID)
	}
	if createdFrom != nil {
		query += ` AND created_at >= ?`
		args = append(args, *createdFrom)
	}
	if createdTo != nil {
		query += ` AND created_at <= ?`
		args = append(args, *createdTo)
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()
	return scanTicketRowsAll(rows)
}

func placeholders(n int) string {
	out := make([]byte, 0, n*2-1)
	for i := 0; i < n; i++ {
		if i > 0 {
			out = append(out, ',')
		}
		out = append(out, '?')
	}
	return string(out)
}

// TakeTicket is the single-taker claim: a conditional UPDATE guarded by the
// current status, the same optimistic-concurrency shape as the teacher's
// UpdateTicketStatus but with a WHERE-clause precondition and a
// RowsAffected check, since the teacher never had a concurrent-claim
// requirement to generalize from directly (see DESIGN.md, ticket engine
// entry).
func (s *Store) TakeTicket(ctx context.Context, tx *sql.Tx, id, executorID int64, now time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE tickets
		SET status = ?, assigned_executor_id = ?, taken_at = ?, updated_at = ?
		WHERE id = ? AND status = ? AND assigned_executor_id IS NULL
	`, string(model.StatusInWork), executorID, now, now, id, string(model.StatusReadyForWork))
	if err != nil {
		return 0, fmt.Errorf("take ticket %d: %w", id, err)
	}
	return res.RowsAffected()
}

// SetInProgress transitions IN_WORK/TAKEN -> IN_PROGRESS for the assigned
// executor, or for any actor when override is set (SUPER_ADMIN/SYS_ADMIN
// per spec §4.4's "actor is the executor OR is SUPER/SYS_ADMIN" clause).
func (s *Store) SetInProgress(ctx context.Context, tx *sql.Tx, id, actorID int64, override bool, now time.Time) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if override {
		res, err = tx.ExecContext(ctx, `
			UPDATE tickets
			SET status = ?, in_progress_at = ?, updated_at = ?
			WHERE id = ? AND status IN (?, ?)
		`, string(model.StatusInProgress), now, now, id, string(model.StatusInWork), string(model.StatusTaken))
	} else {
		res, err = tx.ExecContext(ctx, `
			UPDATE tickets
			SET status = ?, in_progress_at = ?, updated_at = ?
			WHERE id = ? AND assigned_executor_id = ? AND status IN (?, ?)
		`, string(model.StatusInProgress), now, now, id, actorID, string(model.StatusInWork), string(model.StatusTaken))
	}
	if err != nil {
		return 0, fmt.Errorf("set ticket %d in progress: %w", id, err)
	}
	return res.RowsAffected()
}

// CloseFields bundles the close-time writes.
type CloseFields struct {
	Revenue              decimal.Decimal
	Expense              decimal.Decimal
	NetProfit            decimal.Decimal
	ExecutorPercentClose decimal.Decimal
	AdminPercentClose    decimal.Decimal
	JuniorPercentClose   *decimal.Decimal
	ExecutorEarned       decimal.Decimal
	AdminEarned          decimal.Decimal
	JuniorEarned         decimal.Decimal
	ProjectTake          decimal.Decimal
	ClosedByUserID       int64
	ClosedComment        string
	Now                  time.Time
}

// CloseTicket closes a ticket from IN_PROGRESS/IN_WORK/TAKEN/WAITING,
// freezing the payout split computed by the payout package. When override
// is set (SUPER_ADMIN/SYS_ADMIN per spec §4.4), the assigned-executor
// restriction is dropped and an already-CLOSED ticket may be re-closed,
// per §4.5's re-close policy.
func (s *Store) CloseTicket(ctx context.Context, tx *sql.Tx, id, actorID int64, override bool, f CloseFields) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if override {
		res, err = tx.ExecContext(ctx, `
			UPDATE tickets SET
				status = ?,
				revenue = ?, expense = ?, net_profit = ?,
				executor_percent_close = ?, admin_percent_close = ?, junior_percent_close = ?,
				executor_earned = ?, admin_earned = ?, junior_earned = ?, project_take = ?,
				closed_at = ?, closed_by_user_id = ?, closed_comment = ?,
				transfer_status = ?, transfer_sent_at = NULL, transfer_confirmed_by_id = NULL, transfer_confirmed_at = NULL,
				updated_at = ?
			WHERE id = ? AND status IN (?, ?, ?, ?, ?)
		`,
			string(model.StatusClosed),
			f.Revenue.String(), f.Expense.String(), f.NetProfit.String(),
			f.ExecutorPercentClose.String(), f.AdminPercentClose.String(), nullDecimal(f.JuniorPercentClose),
			f.ExecutorEarned.String(), f.AdminEarned.String(), f.JuniorEarned.String(), f.ProjectTake.String(),
			f.Now, f.ClosedByUserID, nullString(f.ClosedComment),
			string(model.TransferNotSent), f.Now,
			id,
			string(model.StatusInProgress), string(model.StatusInWork), string(model.StatusTaken), string(model.StatusWaiting), string(model.StatusClosed),
		)
	} else {
		res, err = tx.ExecContext(ctx, `
			UPDATE tickets SET
				status = ?,
				revenue = ?, expense = ?, net_profit = ?,
				executor_percent_close = ?, admin_percent_close = ?, junior_percent_close = ?,
				executor_earned = ?, admin_earned = ?, junior_earned = ?, project_take = ?,
				closed_at = ?, closed_by_user_id = ?, closed_comment = ?,
				transfer_status = ?, updated_at = ?
			WHERE id = ? AND assigned_executor_id = ? AND status IN (?, ?, ?, ?)
		`,
			string(model.StatusClosed),
			f.Revenue.String(), f.Expense.String(), f.NetProfit.String(),
			f.ExecutorPercentClose.String(), f.AdminPercentClose.String(), nullDecimal(f.JuniorPercentClose),
			f.ExecutorEarned.String(), f.AdminEarned.String(), f.JuniorEarned.String(), f.ProjectTake.String(),
			f.Now, f.ClosedByUserID, nullString(f.ClosedComment),
			string(model.TransferNotSent), f.Now,
			id, actorID,
			string(model.StatusInProgress), string(model.StatusInWork), string(model.StatusTaken), string(model.StatusWaiting),
		)
	}
	if err != nil {
		return 0, fmt.Errorf("close ticket %d: %w", id, err)
	}
	return res.RowsAffected()
}

// MarkTransferSent transitions NOT_SENT -> SENT.
func (s *Store) MarkTransferSent(ctx context.Context, tx *sql.Tx, id int64, now time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE tickets SET transfer_status = ?, transfer_sent_at = ?, updated_at = ?
		WHERE id = ? AND status = ? AND transfer_status = ?
	`, string(model.TransferSent), now, now, id, string(model.StatusClosed), string(model.TransferNotSent))
	if err != nil {
		return 0, fmt.Errorf("mark transfer sent %d: %w", id, err)
	}
	return res.RowsAffected()
}

// ConfirmTransfer transitions SENT -> CONFIRMED.
func (s *Store) ConfirmTransfer(ctx context.Context, tx *sql.Tx, id, confirmedByID int64, now time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE tickets SET transfer_status = ?, transfer_confirmed_by_id = ?, transfer_confirmed_at = ?, updated_at = ?
		WHERE id = ? AND transfer_status = ?
	`, string(model.TransferConfirmed), confirmedByID, now, now, id, string(model.TransferSent))
	if err != nil {
		return 0, fmt.Errorf("confirm transfer %d: %w", id, err)
	}
	return res.RowsAffected()
}

// RejectTransfer transitions SENT -> REJECTED.
func (s *Store) RejectTransfer(ctx context.Context, tx *sql.Tx, id int64, now time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE tickets SET transfer_status = ?, updated_at = ?
		WHERE id = ? AND transfer_status = ?
	`, string(model.TransferRejected), now, id, string(model.TransferSent))
	if err != nil {
		return 0, fmt.Errorf("reject transfer %d: %w", id, err)
	}
	return res.RowsAffected()
}

// CancelTicket transitions any pre-close status to CANCELLED.
func (s *Store) CancelTicket(ctx context.Context, tx *sql.Tx, id int64, now time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE tickets SET status = ?, updated_at = ?
		WHERE id = ? AND status NOT IN (?, ?)
	`, string(model.StatusCancelled), now, id, string(model.StatusClosed), string(model.StatusCancelled))
	if err != nil {
		return 0, fmt.Errorf("cancel ticket %d: %w", id, err)
	}
	return res.RowsAffected()
}

// DetailFields bundles the free-text/scheduling fields update_details may
// change.
type DetailFields struct {
	ClientName    *string
	ClientPhone   *string
	ClientAddress *string
	ProblemText   *string
	SpecialNote   *string
	ScheduledAt   *time.Time
	Now           time.Time
}

// UpdateDetails updates narrative/scheduling fields on any ticket that is
// not CANCELLED (CLOSED tickets included) and reports RowsAffected, which
// is 0 for a missing or CANCELLED ticket.
func (s *Store) UpdateDetails(ctx context.Context, tx *sql.Tx, id int64, f DetailFields) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE tickets SET
			client_name = COALESCE(?, client_name),
			client_phone = COALESCE(?, client_phone),
			client_address = COALESCE(?, client_address),
			problem_text = COALESCE(?, problem_text),
			special_note = COALESCE(?, special_note),
			scheduled_at = COALESCE(?, scheduled_at),
			updated_at = ?
		WHERE id = ? AND status != ?
	`,
		optStr(f.ClientName), optStr(f.ClientPhone), optStr(f.ClientAddress),
		optStr(f.ProblemText), optStr(f.SpecialNote), nullTime(f.ScheduledAt),
		f.Now, id, string(model.StatusCancelled),
	)
	if err != nil {
		return 0, fmt.Errorf("update ticket %d details: %w", id, err)
	}
	return res.RowsAffected()
}

func optStr(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

func scanTicket(row scanner) (*model.Ticket, error) {
	var t model.Ticket
	var status, category, adSource, transferStatus string
	var scheduledAt, takenAt, inProgressAt, closedAt, transferSentAt, transferConfirmedAt sql.NullTime
	var preferredDateDM, clientName, clientPhone, clientAddress, problemText, specialNote sql.NullString
	var repeatIDs sql.NullString
	var clientAge sql.NullInt64
	var assignedExecutorID, juniorMasterID, closedByUserID, transferConfirmedByID sql.NullInt64
	var revenue, expense, netProfit, execPct, adminPct, juniorPct, execEarned, adminEarned, juniorEarned, projectTake sql.NullString
	var closedComment sql.NullString
	var leadID sql.NullString

	if err := row.Scan(
		&t.ID, &t.PublicID, &status, &category, &scheduledAt, &preferredDateDM,
		&clientName, &clientAge, &clientPhone, &clientAddress,
		&problemText, &specialNote, &adSource, &t.IsRepeat, &repeatIDs,
		&t.CreatedByAdminID, &assignedExecutorID, &juniorMasterID,
		&takenAt, &inProgressAt,
		&revenue, &expense, &netProfit, &execPct, &adminPct, &juniorPct,
		&execEarned, &adminEarned, &juniorEarned, &projectTake,
		&closedAt, &closedByUserID, &closedComment,
		&transferStatus, &transferSentAt, &transferConfirmedByID, &transferConfirmedAt,
		&leadID, &t.CreatedAt, &t.UpdatedAt,
	); err != nil {
		return nil, err
	}

	t.Status = model.TicketStatus(status)
	t.Category = model.TicketCategory(category)
	t.AdSource = model.AdSource(adSource)
	t.TransferStatus = model.TransferStatus(transferStatus)
	t.ScheduledAt = optionalTime(scheduledAt)
	t.PreferredDateDM = preferredDateDM.String
	t.ClientName = clientName.String
	t.ClientPhone = clientPhone.String
	t.ClientAddress = clientAddress.String
	t.ProblemText = problemText.String
	t.SpecialNote = specialNote.String
	t.AssignedExecutorID = optionalInt64(assignedExecutorID)
	t.JuniorMasterID = optionalInt64(juniorMasterID)
	t.TakenAt = optionalTime(takenAt)
	t.InProgressAt = optionalTime(inProgressAt)
	t.ClosedAt = optionalTime(closedAt)
	t.ClosedByUserID = optionalInt64(closedByUserID)
	t.ClosedComment = closedComment.String
	t.TransferSentAt = optionalTime(transferSentAt)
	t.TransferConfirmedByID = optionalInt64(transferConfirmedByID)
	t.TransferConfirmedAt = optionalTime(transferConfirmedAt)

	if clientAge.Valid {
		age := int(clientAge.Int64)
		t.ClientAge = &age
	}
	if repeatIDs.Valid && repeatIDs.String != "" {
		var ids []int64
		if err := json.Unmarshal([]byte(repeatIDs.String), &ids); err != nil {
			return nil, fmt.Errorf("unmarshal repeat ticket ids: %w", err)
		}
		t.RepeatTicketIDs = ids
	}
	if leadID.Valid {
		id, err := parseUUID(leadID.String)
		if err != nil {
			return nil, err
		}
		t.LeadID = &id
	}

	for _, pair := range []struct {
		src sql.NullString
		dst **decimal.Decimal
	}{
		{revenue, &t.Revenue}, {expense, &t.Expense}, {netProfit, &t.NetProfit},
		{execPct, &t.ExecutorPercentClose}, {adminPct, &t.AdminPercentClose}, {juniorPct, &t.JuniorPercentClose},
		{execEarned, &t.ExecutorEarned}, {adminEarned, &t.AdminEarned}, {juniorEarned, &t.JuniorEarned},
		{projectTake, &t.ProjectTake},
	} {
		d, err := parseNullDecimal(pair.src)
		if err != nil {
			return nil, err
		}
		*pair.dst = d
	}

	return &t, nil
}

func scanTicketRowsAll(rows *sql.Rows) ([]model.Ticket, error) {
	var out []model.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}
