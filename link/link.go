// Package link implements the master/junior-master registry (C9): one
// active link per junior master at a time, with a percent split that the
// junior's own master can adjust but only when they have more than one
// active junior — with a single junior, only an admin may touch the
// percent. Grounded almost directly on original_source's
// junior_link_service.py.
package link

import (
	"context"
	"database/sql"
	"time"

	"github.com/fieldops/dispatchcore/auditlog"
	"github.com/fieldops/dispatchcore/domainerr"
	"github.com/fieldops/dispatchcore/model"
	"github.com/fieldops/dispatchcore/permission"
	"github.com/shopspring/decimal"
)

// Store is the persistence seam link needs.
type Store interface {
	GetUser(id int64) (*model.User, error)
	GetActiveLinkForJunior(ctx context.Context, juniorID int64) (*model.MasterJuniorLink, error)
	GetLink(ctx context.Context, id int64) (*model.MasterJuniorLink, error)
	CountActiveLinksForMaster(ctx context.Context, masterID int64) (int, error)
	InsertLink(ctx context.Context, tx *sql.Tx, l *model.MasterJuniorLink) (int64, error)
	DisableLink(ctx context.Context, tx *sql.Tx, id int64, now time.Time) (int64, error)
	SetLinkPercent(ctx context.Context, tx *sql.Tx, id int64, percent decimal.Decimal, now time.Time) (int64, error)
	BeginTx() (*sql.Tx, error)
}

var hundred = decimal.NewFromInt(100)

// Engine is the junior-link registry.
type Engine struct {
	store Store
	audit *auditlog.Recorder
	now   func() time.Time
}

func New(store Store, audit *auditlog.Recorder, now func() time.Time) *Engine {
	if now == nil {
		now = time.Now
	}
	return &Engine{store: store, audit: audit, now: now}
}

func validatePercent(p decimal.Decimal) error {
	if p.IsNegative() || p.GreaterThan(hundred) {
		return domainerr.New(domainerr.Validation, "link.validate_percent", "percent_out_of_range")
	}
	if p.Exponent() < -2 {
		return domainerr.New(domainerr.Validation, "link.validate_percent", "percent_too_many_decimals")
	}
	return nil
}

func (e *Engine) validateMasterRole(masterID int64) error {
	u, err := e.store.GetUser(masterID)
	if err != nil {
		return domainerr.Wrap("link.validate_master_role", err)
	}
	if u == nil || (u.Role != model.RoleMaster && u.Role != model.RoleSuperAdmin) {
		return domainerr.New(domainerr.Validation, "link.validate_master_role", "not_a_master")
	}
	return nil
}

func (e *Engine) validateJuniorRole(juniorID int64) error {
	u, err := e.store.GetUser(juniorID)
	if err != nil {
		return domainerr.Wrap("link.validate_junior_role", err)
	}
	if u == nil || u.Role != model.RoleJuniorMaster {
		return domainerr.New(domainerr.Validation, "link.validate_junior_role", "not_a_junior_master")
	}
	return nil
}

// Link creates a new active master/junior-master assignment. The actor
// must be ADMIN/SYS_ADMIN/SUPER_ADMIN; the junior must have no existing
// active link.
func (e *Engine) Link(ctx context.Context, actorID int64, actorRole model.Role, masterID, juniorID int64, percent decimal.Decimal) (*model.MasterJuniorLink, error) {
	if err := permission.Ensure(actorRole, "link.link", model.RoleAdmin, model.RoleSysAdmin, model.RoleSuperAdmin); err != nil {
		return nil, err
	}
	if err := e.validateMasterRole(masterID); err != nil {
		return nil, err
	}
	if err := e.validateJuniorRole(juniorID); err != nil {
		return nil, err
	}
	if err := validatePercent(percent); err != nil {
		return nil, err
	}
	existing, err := e.store.GetActiveLinkForJunior(ctx, juniorID)
	if err != nil {
		return nil, domainerr.Wrap("link.link", err)
	}
	if existing != nil {
		return nil, domainerr.New(domainerr.Conflict, "link.link", "junior_already_linked")
	}

	now := e.now()
	l := &model.MasterJuniorLink{
		MasterID: masterID, JuniorMasterID: juniorID, Percent: percent,
		IsActive: true, CreatedBy: actorID, CreatedAt: now, UpdatedAt: now,
	}
	tx, err := e.store.BeginTx()
	if err != nil {
		return nil, domainerr.Wrap("link.link", err)
	}
	defer tx.Rollback()

	id, err := e.store.InsertLink(ctx, tx, l)
	if err != nil {
		return nil, domainerr.Wrap("link.link", err)
	}
	l.ID = id

	if err := e.audit.RecordAuditEvent(ctx, tx, &actorID, "JUNIOR_LINK_CREATED", "master_junior_link", &id, auditlog.Payload{
		"master_id": masterID, "junior_master_id": juniorID, "percent": percent.String(),
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, domainerr.Wrap("link.link", err)
	}
	return l, nil
}

// Relink disables the junior's current active link (if any) and creates a
// new one under a different master, in one logical operation.
func (e *Engine) Relink(ctx context.Context, actorID int64, actorRole model.Role, juniorID, newMasterID int64, percent decimal.Decimal) (*model.MasterJuniorLink, error) {
	if err := permission.Ensure(actorRole, "link.relink", model.RoleAdmin, model.RoleSysAdmin, model.RoleSuperAdmin); err != nil {
		return nil, err
	}
	if err := e.validateMasterRole(newMasterID); err != nil {
		return nil, err
	}
	if err := e.validateJuniorRole(juniorID); err != nil {
		return nil, err
	}
	if err := validatePercent(percent); err != nil {
		return nil, err
	}

	current, err := e.store.GetActiveLinkForJunior(ctx, juniorID)
	if err != nil {
		return nil, domainerr.Wrap("link.relink", err)
	}

	now := e.now()
	tx, err := e.store.BeginTx()
	if err != nil {
		return nil, domainerr.Wrap("link.relink", err)
	}
	defer tx.Rollback()

	if current != nil {
		if _, err := e.store.DisableLink(ctx, tx, current.ID, now); err != nil {
			return nil, domainerr.Wrap("link.relink", err)
		}
		if err := e.audit.RecordAuditEvent(ctx, tx, &actorID, "JUNIOR_LINK_DISABLED", "master_junior_link", &current.ID, auditlog.Payload{
			"master_id": current.MasterID, "junior_master_id": juniorID,
		}); err != nil {
			return nil, err
		}
	}

	l := &model.MasterJuniorLink{
		MasterID: newMasterID, JuniorMasterID: juniorID, Percent: percent,
		IsActive: true, CreatedBy: actorID, CreatedAt: now, UpdatedAt: now,
	}
	id, err := e.store.InsertLink(ctx, tx, l)
	if err != nil {
		return nil, domainerr.Wrap("link.relink", err)
	}
	l.ID = id
	if err := e.audit.RecordAuditEvent(ctx, tx, &actorID, "JUNIOR_LINK_CHANGED", "master_junior_link", &id, auditlog.Payload{
		"master_id": newMasterID, "junior_master_id": juniorID, "percent": percent.String(),
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, domainerr.Wrap("link.relink", err)
	}
	return l, nil
}

// SetPercent changes an existing active link's percent. When the master
// has more than one active junior, the master themself may change it (for
// their own links only); with a single active junior, only an admin may —
// the exact rule from junior_link_service.py's set_link_percent.
func (e *Engine) SetPercent(ctx context.Context, actorID int64, actorRole model.Role, linkID int64, percent decimal.Decimal) (*model.MasterJuniorLink, error) {
	if err := validatePercent(percent); err != nil {
		return nil, err
	}
	l, err := e.store.GetLink(ctx, linkID)
	if err != nil {
		return nil, domainerr.Wrap("link.set_percent", err)
	}
	if l == nil || !l.IsActive {
		return nil, domainerr.New(domainerr.InvalidState, "link.set_percent", "link_not_found")
	}

	activeCount, err := e.store.CountActiveLinksForMaster(ctx, l.MasterID)
	if err != nil {
		return nil, domainerr.Wrap("link.set_percent", err)
	}

	var allowedErr error
	if activeCount <= 1 {
		allowedErr = permission.Ensure(actorRole, "link.set_percent", model.RoleAdmin, model.RoleSysAdmin, model.RoleSuperAdmin)
	} else {
		allowedErr = permission.Ensure(actorRole, "link.set_percent", model.RoleMaster, model.RoleSysAdmin, model.RoleSuperAdmin)
	}
	if allowedErr != nil {
		return nil, allowedErr
	}
	if actorRole == model.RoleMaster && !permission.IsSelf(actorID, l.MasterID) {
		return nil, domainerr.New(domainerr.Denied, "link.set_percent", "not_own_link")
	}

	now := e.now()
	tx, err := e.store.BeginTx()
	if err != nil {
		return nil, domainerr.Wrap("link.set_percent", err)
	}
	defer tx.Rollback()

	rows, err := e.store.SetLinkPercent(ctx, tx, linkID, percent, now)
	if err != nil {
		return nil, domainerr.Wrap("link.set_percent", err)
	}
	if rows == 0 {
		return nil, domainerr.New(domainerr.InvalidState, "link.set_percent", "link_not_found")
	}
	if err := e.audit.RecordAuditEvent(ctx, tx, &actorID, "JUNIOR_PERCENT_CHANGED", "master_junior_link", &linkID, auditlog.Payload{
		"master_id": l.MasterID, "junior_master_id": l.JuniorMasterID, "percent": percent.String(),
	}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, domainerr.Wrap("link.set_percent", err)
	}
	l.Percent = percent
	return l, nil
}

// Disable deactivates a link without replacing it.
func (e *Engine) Disable(ctx context.Context, actorID int64, actorRole model.Role, linkID int64) error {
	if err := permission.Ensure(actorRole, "link.disable", model.RoleAdmin, model.RoleSysAdmin, model.RoleSuperAdmin); err != nil {
		return err
	}
	l, err := e.store.GetLink(ctx, linkID)
	if err != nil {
		return domainerr.Wrap("link.disable", err)
	}
	if l == nil || !l.IsActive {
		return domainerr.New(domainerr.InvalidState, "link.disable", "link_not_found")
	}

	now := e.now()
	tx, err := e.store.BeginTx()
	if err != nil {
		return domainerr.Wrap("link.disable", err)
	}
	defer tx.Rollback()

	rows, err := e.store.DisableLink(ctx, tx, linkID, now)
	if err != nil {
		return domainerr.Wrap("link.disable", err)
	}
	if rows == 0 {
		return domainerr.New(domainerr.InvalidState, "link.disable", "link_not_found")
	}
	if err := e.audit.RecordAuditEvent(ctx, tx, &actorID, "JUNIOR_LINK_DISABLED", "master_junior_link", &linkID, auditlog.Payload{
		"master_id": l.MasterID, "junior_master_id": l.JuniorMasterID,
	}); err != nil {
		return err
	}
	return domainerr.Wrap("link.disable", tx.Commit())
}
