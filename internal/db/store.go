package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Store implements persistence for every component (C1-C11) over a single
// SQLite connection, following the teacher's one-struct-many-methods shape
// in internal/db/store.go.
type Store struct {
	db *DB
}

// NewStore creates a new SQLite-backed store.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying *DB so callers can start transactions that span
// multiple component stores (e.g. ticket close touches tickets,
// ticket_money_operations, and ticket_events in one tx).
func (s *Store) DB() *DB { return s.db }

// BeginTx starts a transaction, matching the teacher's tx.Begin() +
// defer tx.Rollback() + tx.Commit() idiom used throughout.
func (s *Store) BeginTx() (*sql.Tx, error) {
	return s.db.Begin()
}

// nullString converts a possibly-empty string to sql.NullString.
func nullString(v string) sql.NullString {
	if v == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: v, Valid: true}
}

// nullInt64 converts a *int64 to sql.NullInt64.
func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

// nullTime converts a *time.Time to sql.NullTime.
func nullTime(v *time.Time) sql.NullTime {
	if v == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *v, Valid: true}
}

func optionalTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

func optionalInt64(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

// nullDecimal converts a *decimal.Decimal to a nullable TEXT value.
// shopspring/decimal's String() round-trips exactly through
// decimal.NewFromString, which is why these columns are TEXT rather than
// SQLite's binary-float REAL.
func nullDecimal(d *decimal.Decimal) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullDecimal(v sql.NullString) (*decimal.Decimal, error) {
	if !v.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(v.String)
	if err != nil {
		return nil, fmt.Errorf("parse decimal %q: %w", v.String, err)
	}
	return &d, nil
}

func parseDecimal(v string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse decimal %q: %w", v, err)
	}
	return d, nil
}

func parseUUID(v string) (uuid.UUID, error) {
	id, err := uuid.Parse(v)
	if err != nil {
		return uuid.UUID{}, fmt.Errorf("parse uuid %q: %w", v, err)
	}
	return id, nil
}

// marshalJSON is a small wrapper matching the teacher's marshal-on-write
// convenience, except here we propagate the error — payloads feed the audit
// trail and a silently-dropped payload would be a real defect.
func marshalJSON(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func unmarshalJSONMap(v sql.NullString) (map[string]any, error) {
	if !v.Valid || v.String == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(v.String), &m); err != nil {
		return nil, err
	}
	return m, nil
}
