// Package ledger appends the money operations generated when a ticket
// closes: an INCOME row for any revenue delta and an EXPENSE row for any
// expense delta against the ticket's prior values, both ticket-scoped and
// immutable once written, so a re-close adjusts the ledger instead of
// restating the full amount. It mirrors the original system's
// ticket_money_operations table read back by internal/db's
// Store.ListTicketMoneyOperations.
package ledger

import (
	"context"
	"database/sql"

	"github.com/fieldops/dispatchcore/domainerr"
	"github.com/fieldops/dispatchcore/model"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store is the persistence seam ledger needs.
type Store interface {
	InsertMoneyOperation(ctx context.Context, tx *sql.Tx, op *model.TicketMoneyOperation) error
}

// AppendFromClose writes the revenue/expense delta operations for a ticket
// close inside the caller's transaction, so they commit atomically with the
// status change that produced them. previousRevenue/previousExpense are the
// ticket's values before this close (nil on a first close, treated as
// zero); per spec §4.5/I7, only the non-zero delta against those prior
// values is appended, so a re-close adjusts the ledger rather than
// duplicating the full amount.
func AppendFromClose(ctx context.Context, tx *sql.Tx, store Store, ticketID int64, category model.TicketCategory, previousRevenue, previousExpense *decimal.Decimal, revenue, expense decimal.Decimal, comment string) error {
	revenueDelta := revenue.Sub(decimalOrZero(previousRevenue)).Round(2)
	if !revenueDelta.IsZero() {
		op := &model.TicketMoneyOperation{
			ID:               uuid.New(),
			TicketID:         ticketID,
			OpType:           model.MoneyOpIncome,
			Amount:           revenueDelta.Abs(),
			CategorySnapshot: category,
			Comment:          comment,
		}
		if err := store.InsertMoneyOperation(ctx, tx, op); err != nil {
			return domainerr.Wrap("ledger.append_from_close.income", err)
		}
	}
	expenseDelta := expense.Sub(decimalOrZero(previousExpense)).Round(2)
	if !expenseDelta.IsZero() {
		op := &model.TicketMoneyOperation{
			ID:               uuid.New(),
			TicketID:         ticketID,
			OpType:           model.MoneyOpExpense,
			Amount:           expenseDelta.Abs(),
			CategorySnapshot: category,
			Comment:          comment,
		}
		if err := store.InsertMoneyOperation(ctx, tx, op); err != nil {
			return domainerr.Wrap("ledger.append_from_close.expense", err)
		}
	}
	return nil
}

func decimalOrZero(d *decimal.Decimal) decimal.Decimal {
	if d == nil {
		return decimal.Zero
	}
	return *d
}
