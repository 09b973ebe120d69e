package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fieldops/dispatchcore/model"
)

// InsertMoneyOperation implements ledger.Store.
func (s *Store) InsertMoneyOperation(ctx context.Context, tx *sql.Tx, op *model.TicketMoneyOperation) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO ticket_money_operations (id, ticket_id, op_type, amount, category_snapshot, comment)
		VALUES (?, ?, ?, ?, ?, ?)
	`, op.ID.String(), op.TicketID, string(op.OpType), op.Amount.String(), string(op.CategorySnapshot), nullString(op.Comment))
	if err != nil {
		return fmt.Errorf("insert money operation: %w", err)
	}
	return nil
}

// ListTicketMoneyOperations returns a ticket's money ledger, oldest first.
func (s *Store) ListTicketMoneyOperations(ctx context.Context, ticketID int64) ([]model.TicketMoneyOperation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ticket_id, op_type, amount, category_snapshot, comment, created_at
		FROM ticket_money_operations WHERE ticket_id = ? ORDER BY created_at ASC
	`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("list ticket money operations: %w", err)
	}
	defer rows.Close()

	var out []model.TicketMoneyOperation
	for rows.Next() {
		var op model.TicketMoneyOperation
		var id, opType, category, amount string
		var comment sql.NullString
		if err := rows.Scan(&id, &op.TicketID, &opType, &amount, &category, &comment, &op.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan money operation: %w", err)
		}
		parsedID, err := parseUUID(id)
		if err != nil {
			return nil, err
		}
		op.ID = parsedID
		op.OpType = model.MoneyOpType(opType)
		op.CategorySnapshot = model.TicketCategory(category)
		op.Comment = comment.String
		amt, err := parseDecimal(amount)
		if err != nil {
			return nil, err
		}
		op.Amount = amt
		out = append(out, op)
	}
	return out, rows.Err()
}
