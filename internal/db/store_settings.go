package db

import (
	"context"
	"fmt"

	"github.com/fieldops/dispatchcore/model"
	"github.com/shopspring/decimal"
)

// GetProjectSettings reads the key/value project_settings table into the
// typed model.ProjectSettings struct.
func (s *Store) GetProjectSettings(ctx context.Context) (model.ProjectSettings, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM project_settings`)
	if err != nil {
		return model.ProjectSettings{}, fmt.Errorf("get project settings: %w", err)
	}
	defer rows.Close()

	out := model.ProjectSettings{}
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return model.ProjectSettings{}, fmt.Errorf("scan project setting: %w", err)
		}
		switch key {
		case "large_expense":
			d, err := decimal.NewFromString(value)
			if err != nil {
				return model.ProjectSettings{}, fmt.Errorf("parse large_expense: %w", err)
			}
			out.LargeExpense = d
		case "transfer_pending_days":
			var n int
			if _, err := fmt.Sscanf(value, "%d", &n); err != nil {
				return model.ProjectSettings{}, fmt.Errorf("parse transfer_pending_days: %w", err)
			}
			out.TransferPendingDays = n
		case "requests_chat_id":
			var n int64
			if _, err := fmt.Sscanf(value, "%d", &n); err != nil {
				return model.ProjectSettings{}, fmt.Errorf("parse requests_chat_id: %w", err)
			}
			out.RequestsChatID = n
		case "events_chat_id":
			var n int64
			if _, err := fmt.Sscanf(value, "%d", &n); err != nil {
				return model.ProjectSettings{}, fmt.Errorf("parse events_chat_id: %w", err)
			}
			out.EventsChatID = n
		}
	}
	if err := rows.Err(); err != nil {
		return model.ProjectSettings{}, fmt.Errorf("get project settings: %w", err)
	}
	return out, nil
}

// SetProjectSetting upserts a single key, for the out-of-scope settings CRUD
// UI to call through; the core itself only reads.
func (s *Store) SetProjectSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO project_settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("set project setting %q: %w", key, err)
	}
	return nil
}
