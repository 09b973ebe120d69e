// Package sequence allocates the calendar-day public ticket ID: a DDMMYY
// date stamp followed by a 2-digit per-date counter, reset at each new
// date. Storage is injected via the Store interface so this package has no
// direct SQL dependency; internal/db provides the concrete implementation.
package sequence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fieldops/dispatchcore/domainerr"
)

const maxPerDay = 99

// Store is the persistence seam sequence needs: an atomic
// increment-and-return over a per-date counter row, executed within the
// caller's transaction so the public-ID allocation commits atomically with
// the ticket insert it names.
type Store interface {
	// IncrementAndGet upserts the counter row for date and returns the
	// post-increment value.
	IncrementAndGet(ctx context.Context, tx *sql.Tx, date string) (int, error)
}

// NextPublicID allocates the next public ID for the given date (format
// "020106", i.e. DDMMYY per spec) inside tx. Returns a domainerr.Error with
// Kind Exhausted once the date's counter would exceed maxPerDay.
func NextPublicID(ctx context.Context, tx *sql.Tx, store Store, dateDDMMYY string) (string, error) {
	n, err := store.IncrementAndGet(ctx, tx, dateDDMMYY)
	if err != nil {
		return "", domainerr.Wrap("sequence.next", err)
	}
	if n > maxPerDay {
		return "", domainerr.New(domainerr.Exhausted, "sequence.next", "daily_counter_exhausted")
	}
	return fmt.Sprintf("%s%02d", dateDDMMYY, n), nil
}
