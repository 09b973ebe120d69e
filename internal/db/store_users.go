package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/fieldops/dispatchcore/model"
)

// GetUser retrieves a user by ID. Returns (nil, nil) if not found, matching
// the teacher's GetTicket (*T, bool) convention adapted to an error-carrying
// signature since callers here need to distinguish "not found" from "db
// error".
func (s *Store) GetUser(id int64) (*model.User, error) {
	row := s.db.QueryRow(`
		SELECT id, role, is_active, display_name, username, master_percent, admin_percent, created_at, updated_at
		FROM users WHERE id = ?
	`, id)
	u, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}
	return u, nil
}

// UpsertUser inserts or updates a user's identity row, following the
// teacher's INSERT OR IGNORE / explicit UPDATE pattern for idempotent
// actor-identity sync from the messaging platform.
func (s *Store) UpsertUser(u *model.User) error {
	_, err := s.db.Exec(`
		INSERT INTO users (id, role, is_active, display_name, username, master_percent, admin_percent, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			role = excluded.role,
			is_active = excluded.is_active,
			display_name = excluded.display_name,
			username = excluded.username,
			master_percent = excluded.master_percent,
			admin_percent = excluded.admin_percent,
			updated_at = CURRENT_TIMESTAMP
	`, u.ID, string(u.Role), u.IsActive, nullString(u.DisplayName), nullString(u.Username),
		nullDecimal(u.MasterPercent), nullDecimal(u.AdminPercent))
	if err != nil {
		return fmt.Errorf("upsert user %d: %w", u.ID, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*model.User, error) {
	var u model.User
	var role string
	var displayName, username sql.NullString
	var masterPct, adminPct sql.NullString
	if err := row.Scan(&u.ID, &role, &u.IsActive, &displayName, &username, &masterPct, &adminPct, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.Role = model.Role(role)
	u.DisplayName = displayName.String
	u.Username = username.String
	mp, err := parseNullDecimal(masterPct)
	if err != nil {
		return nil, err
	}
	u.MasterPercent = mp
	ap, err := parseNullDecimal(adminPct)
	if err != nil {
		return nil, err
	}
	u.AdminPercent = ap
	return &u, nil
}
