// Package settings implements a read-through accessor for the
// project_settings thresholds (C11) that C6/C8 read: large_expense (close
// confirmation threshold) and transfer_pending_days (issues-dashboard
// age-out). Grounded on the teacher's GetConfigValue / config-table-read
// pattern.
package settings

import (
	"context"
	"sync"
	"time"

	"github.com/fieldops/dispatchcore/model"
)

const cacheTTL = 30 * time.Second

// Store is the persistence seam settings needs.
type Store interface {
	GetProjectSettings(ctx context.Context) (model.ProjectSettings, error)
}

// Accessor is a short-TTL cached read-through over project_settings, so C6's
// close path and C8's aggregates don't hit the DB on every call for values
// that change rarely.
type Accessor struct {
	store Store

	mu      sync.Mutex
	cached  model.ProjectSettings
	fetched time.Time
	now     func() time.Time
}

func New(store Store, now func() time.Time) *Accessor {
	if now == nil {
		now = time.Now
	}
	return &Accessor{store: store, now: now}
}

// Get returns the current project settings, refreshing from storage when the
// cached copy is older than cacheTTL.
func (a *Accessor) Get(ctx context.Context) (model.ProjectSettings, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.now().Sub(a.fetched) < cacheTTL && !a.fetched.IsZero() {
		return a.cached, nil
	}
	s, err := a.store.GetProjectSettings(ctx)
	if err != nil {
		return model.ProjectSettings{}, err
	}
	a.cached = s
	a.fetched = a.now()
	return s, nil
}

// Invalidate forces the next Get to re-read storage, for use right after a
// settings write.
func (a *Accessor) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fetched = time.Time{}
}
