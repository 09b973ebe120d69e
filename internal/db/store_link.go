package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fieldops/dispatchcore/model"
	"github.com/shopspring/decimal"
)

const linkColumns = `id, master_id, junior_master_id, percent, is_active, created_by, created_at, updated_at`

// GetActiveLinkForJunior returns the junior's current active link, or
// (nil, nil) if none — the partial unique index ux_junior_links_active
// guarantees at most one row can match.
func (s *Store) GetActiveLinkForJunior(ctx context.Context, juniorID int64) (*model.MasterJuniorLink, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+linkColumns+` FROM master_junior_links WHERE junior_master_id = ? AND is_active
	`, juniorID)
	l, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get active link for junior %d: %w", juniorID, err)
	}
	return l, nil
}

// GetLink retrieves a link by ID.
func (s *Store) GetLink(ctx context.Context, id int64) (*model.MasterJuniorLink, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+linkColumns+` FROM master_junior_links WHERE id = ?`, id)
	l, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get link %d: %w", id, err)
	}
	return l, nil
}

// CountActiveLinksForMaster counts a master's currently active juniors,
// which governs who may adjust a link's percent (§4.9).
func (s *Store) CountActiveLinksForMaster(ctx context.Context, masterID int64) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM master_junior_links WHERE master_id = ? AND is_active
	`, masterID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count active links for master %d: %w", masterID, err)
	}
	return n, nil
}

// InsertLink inserts a new active link row. A concurrent attempt to link the
// same junior twice fails the partial unique index ux_junior_links_active.
func (s *Store) InsertLink(ctx context.Context, tx *sql.Tx, l *model.MasterJuniorLink) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO master_junior_links (master_id, junior_master_id, percent, is_active, created_by)
		VALUES (?, ?, ?, 1, ?)
	`, l.MasterID, l.JuniorMasterID, l.Percent.String(), l.CreatedBy)
	if err != nil {
		return 0, fmt.Errorf("insert link: %w", err)
	}
	return res.LastInsertId()
}

// DisableLink conditionally deactivates an active link.
func (s *Store) DisableLink(ctx context.Context, tx *sql.Tx, id int64, now time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE master_junior_links SET is_active = 0, updated_at = ? WHERE id = ? AND is_active
	`, now, id)
	if err != nil {
		return 0, fmt.Errorf("disable link %d: %w", id, err)
	}
	return res.RowsAffected()
}

// SetLinkPercent conditionally updates an active link's percent.
func (s *Store) SetLinkPercent(ctx context.Context, tx *sql.Tx, id int64, percent decimal.Decimal, now time.Time) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE master_junior_links SET percent = ?, updated_at = ? WHERE id = ? AND is_active
	`, percent.String(), now, id)
	if err != nil {
		return 0, fmt.Errorf("set link percent %d: %w", id, err)
	}
	return res.RowsAffected()
}

func scanLink(row scanner) (*model.MasterJuniorLink, error) {
	var l model.MasterJuniorLink
	var percent string
	var isActive bool
	if err := row.Scan(&l.ID, &l.MasterID, &l.JuniorMasterID, &percent, &isActive, &l.CreatedBy, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	p, err := parseDecimal(percent)
	if err != nil {
		return nil, err
	}
	l.Percent = p
	l.IsActive = isActive
	return &l, nil
}
