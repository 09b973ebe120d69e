package settings_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fieldops/dispatchcore/model"
	"github.com/fieldops/dispatchcore/settings"
	"github.com/shopspring/decimal"
)

type countingStore struct {
	calls atomic.Int32
	value model.ProjectSettings
}

func (s *countingStore) GetProjectSettings(ctx context.Context) (model.ProjectSettings, error) {
	s.calls.Add(1)
	return s.value, nil
}

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestGet_CachesWithinTTL(t *testing.T) {
	store := &countingStore{value: model.ProjectSettings{LargeExpense: decimal.NewFromInt(5000)}}
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	a := settings.New(store, clock.now)

	if _, err := a.Get(context.Background()); err != nil {
		t.Fatalf("first Get() error = %v", err)
	}
	clock.advance(10 * time.Second)
	if _, err := a.Get(context.Background()); err != nil {
		t.Fatalf("second Get() error = %v", err)
	}
	if got := store.calls.Load(); got != 1 {
		t.Errorf("store.GetProjectSettings called %d times within TTL, want 1", got)
	}
}

func TestGet_RefetchesAfterTTLExpires(t *testing.T) {
	store := &countingStore{}
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	a := settings.New(store, clock.now)

	if _, err := a.Get(context.Background()); err != nil {
		t.Fatal(err)
	}
	clock.advance(31 * time.Second)
	if _, err := a.Get(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := store.calls.Load(); got != 2 {
		t.Errorf("store.GetProjectSettings called %d times, want 2 (cache expired)", got)
	}
}

func TestInvalidate_ForcesRefetchRegardlessOfTTL(t *testing.T) {
	store := &countingStore{}
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	a := settings.New(store, clock.now)

	if _, err := a.Get(context.Background()); err != nil {
		t.Fatal(err)
	}
	a.Invalidate()
	if _, err := a.Get(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := store.calls.Load(); got != 2 {
		t.Errorf("store.GetProjectSettings called %d times after Invalidate, want 2", got)
	}
}

func TestGet_ReturnsCachedValue(t *testing.T) {
	want := model.ProjectSettings{LargeExpense: decimal.NewFromInt(7500), TransferPendingDays: 3}
	store := &countingStore{value: want}
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	a := settings.New(store, clock.now)

	got, err := a.Get(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !got.LargeExpense.Equal(want.LargeExpense) || got.TransferPendingDays != want.TransferPendingDays {
		t.Errorf("Get() = %+v, want %+v", got, want)
	}
}
