package db

import (
	"context"
	"database/sql"
	"fmt"
)

// IncrementAndGet implements sequence.Store: a counter upsert followed by a
// read-back of the new value, both scoped to tx so the public-ID allocation commits atomically
// with the ticket row that names it.
func (s *Store) IncrementAndGet(ctx context.Context, tx *sql.Tx, date string) (int, error) {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO daily_counters (date, counter) VALUES (?, 1)
		ON CONFLICT(date) DO UPDATE SET counter = counter + 1
	`, date)
	if err != nil {
		return 0, fmt.Errorf("increment daily counter %s: %w", date, err)
	}

	var counter int
	row := tx.QueryRowContext(ctx, `SELECT counter FROM daily_counters WHERE date = ?`, date)
	if err := row.Scan(&counter); err != nil {
		return 0, fmt.Errorf("read daily counter %s: %w", date, err)
	}
	return counter, nil
}
