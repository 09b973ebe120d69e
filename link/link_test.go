package link_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/fieldops/dispatchcore/auditlog"
	"github.com/fieldops/dispatchcore/domainerr"
	"github.com/fieldops/dispatchcore/internal/db"
	"github.com/fieldops/dispatchcore/link"
	"github.com/fieldops/dispatchcore/model"
	"github.com/shopspring/decimal"
)

func newTestEngine(t *testing.T) (*link.Engine, *db.Store) {
	t.Helper()
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("db.Open() error = %v", err)
	}
	t.Cleanup(func() { database.Close() })
	store := db.NewStore(database)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	recorder := auditlog.New(store, logger)
	return link.New(store, recorder, time.Now), store
}

func mustUser(t *testing.T, store *db.Store, id int64, role model.Role) {
	t.Helper()
	if err := store.UpsertUser(&model.User{ID: id, Role: role, IsActive: true}); err != nil {
		t.Fatalf("UpsertUser(%d) error = %v", id, err)
	}
}

func kindOf(err error) domainerr.Kind {
	var de *domainerr.Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return ""
}

func TestLink_RejectsSecondActiveLinkForSameJunior(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()
	mustUser(t, store, 1, model.RoleAdmin)
	mustUser(t, store, 10, model.RoleMaster)
	mustUser(t, store, 11, model.RoleMaster)
	mustUser(t, store, 20, model.RoleJuniorMaster)

	if _, err := engine.Link(ctx, 1, model.RoleAdmin, 10, 20, decimal.NewFromInt(30)); err != nil {
		t.Fatalf("first Link() error = %v", err)
	}
	_, err := engine.Link(ctx, 1, model.RoleAdmin, 11, 20, decimal.NewFromInt(40))
	if err == nil {
		t.Fatal("second Link() for the same junior error = nil, want Conflict")
	}
	if kindOf(err) != domainerr.Conflict {
		t.Errorf("Kind = %v, want Conflict", kindOf(err))
	}
}

func TestLink_RejectsWrongRoles(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()
	mustUser(t, store, 1, model.RoleAdmin)
	mustUser(t, store, 10, model.RoleJuniorMaster) // wrong: not a master
	mustUser(t, store, 20, model.RoleJuniorMaster)

	_, err := engine.Link(ctx, 1, model.RoleAdmin, 10, 20, decimal.NewFromInt(30))
	if kindOf(err) != domainerr.Validation {
		t.Errorf("Kind = %v, want Validation (master role check)", kindOf(err))
	}
}

func TestSetPercent_SingleJuniorRequiresAdmin(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()
	mustUser(t, store, 1, model.RoleAdmin)
	mustUser(t, store, 10, model.RoleMaster)
	mustUser(t, store, 20, model.RoleJuniorMaster)

	l, err := engine.Link(ctx, 1, model.RoleAdmin, 10, 20, decimal.NewFromInt(30))
	if err != nil {
		t.Fatal(err)
	}

	// The master themself has only one active junior, so they may not
	// change the percent — only an admin may.
	_, err = engine.SetPercent(ctx, 10, model.RoleMaster, l.ID, decimal.NewFromInt(50))
	if kindOf(err) != domainerr.Denied {
		t.Errorf("Kind = %v, want Denied", kindOf(err))
	}

	updated, err := engine.SetPercent(ctx, 1, model.RoleAdmin, l.ID, decimal.NewFromInt(50))
	if err != nil {
		t.Fatalf("admin SetPercent() error = %v", err)
	}
	if !updated.Percent.Equal(decimal.NewFromInt(50)) {
		t.Errorf("Percent = %s, want 50", updated.Percent)
	}
}

func TestSetPercent_MultipleJuniorsAllowsSelfMaster(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()
	mustUser(t, store, 1, model.RoleAdmin)
	mustUser(t, store, 10, model.RoleMaster)
	mustUser(t, store, 20, model.RoleJuniorMaster)
	mustUser(t, store, 21, model.RoleJuniorMaster)

	l1, err := engine.Link(ctx, 1, model.RoleAdmin, 10, 20, decimal.NewFromInt(30))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := engine.Link(ctx, 1, model.RoleAdmin, 10, 21, decimal.NewFromInt(30)); err != nil {
		t.Fatal(err)
	}

	// Now master 10 has two active juniors, so they may change their own
	// link's percent directly.
	updated, err := engine.SetPercent(ctx, 10, model.RoleMaster, l1.ID, decimal.NewFromInt(60))
	if err != nil {
		t.Fatalf("self-master SetPercent() error = %v", err)
	}
	if !updated.Percent.Equal(decimal.NewFromInt(60)) {
		t.Errorf("Percent = %s, want 60", updated.Percent)
	}

	// But a different master may not touch it.
	mustUser(t, store, 12, model.RoleMaster)
	_, err = engine.SetPercent(ctx, 12, model.RoleMaster, l1.ID, decimal.NewFromInt(70))
	if kindOf(err) != domainerr.Denied {
		t.Errorf("Kind = %v, want Denied (not own link)", kindOf(err))
	}
}

func TestRelink_DisablesOldAndCreatesNew(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()
	mustUser(t, store, 1, model.RoleAdmin)
	mustUser(t, store, 10, model.RoleMaster)
	mustUser(t, store, 11, model.RoleMaster)
	mustUser(t, store, 20, model.RoleJuniorMaster)

	first, err := engine.Link(ctx, 1, model.RoleAdmin, 10, 20, decimal.NewFromInt(30))
	if err != nil {
		t.Fatal(err)
	}

	second, err := engine.Relink(ctx, 1, model.RoleAdmin, 20, 11, decimal.NewFromInt(45))
	if err != nil {
		t.Fatalf("Relink() error = %v", err)
	}
	if second.MasterID != 11 {
		t.Errorf("MasterID = %d, want 11", second.MasterID)
	}
	if second.ID == first.ID {
		t.Error("Relink() should create a new link row, not reuse the old one")
	}

	// The junior may now be relinked again since the old link is disabled.
	mustUser(t, store, 12, model.RoleMaster)
	if _, err := engine.Relink(ctx, 1, model.RoleAdmin, 20, 12, decimal.NewFromInt(50)); err != nil {
		t.Fatalf("second Relink() error = %v", err)
	}
}

func TestDisable_CannotDisableTwice(t *testing.T) {
	engine, store := newTestEngine(t)
	ctx := context.Background()
	mustUser(t, store, 1, model.RoleAdmin)
	mustUser(t, store, 10, model.RoleMaster)
	mustUser(t, store, 20, model.RoleJuniorMaster)

	l, err := engine.Link(ctx, 1, model.RoleAdmin, 10, 20, decimal.NewFromInt(30))
	if err != nil {
		t.Fatal(err)
	}
	if err := engine.Disable(ctx, 1, model.RoleAdmin, l.ID); err != nil {
		t.Fatalf("Disable() error = %v", err)
	}
	err = engine.Disable(ctx, 1, model.RoleAdmin, l.ID)
	if kindOf(err) != domainerr.InvalidState {
		t.Errorf("Kind = %v, want InvalidState", kindOf(err))
	}
}
