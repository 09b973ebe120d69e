// Package permission implements the role-based gate that every state-
// changing operation in the other components calls before touching
// storage. It has no persistence of its own: callers pass in the acting
// user's role and the set of roles the operation allows.
package permission

import (
	"github.com/fieldops/dispatchcore/domainerr"
	"github.com/fieldops/dispatchcore/model"
)

// Ensure returns a domainerr.Error (Kind Denied) if actorRole is not
// present in allowed. Operation is a short machine name (e.g.
// "ticket.take") used for audit and log attribution, not a human message.
func Ensure(actorRole model.Role, operation string, allowed ...model.Role) error {
	for _, r := range allowed {
		if r == actorRole {
			return nil
		}
	}
	return domainerr.New(domainerr.Denied, operation, "role_not_allowed")
}

// AtLeast returns an error unless actorRole's rank is >= minRole's rank.
// Used where an operation is gated by seniority rather than an explicit
// role list (e.g. "ADMIN or above").
func AtLeast(actorRole model.Role, operation string, minRole model.Role) error {
	if actorRole.Rank() >= 0 && actorRole.Rank() >= minRole.Rank() {
		return nil
	}
	return domainerr.New(domainerr.Denied, operation, "role_below_minimum")
}

// IsSelf reports whether actorID equals subjectID — used by operations
// (like link.SetPercent) that limit a master to acting on their own records
// after the role check has passed.
func IsSelf(actorID, subjectID int64) bool {
	return actorID == subjectID
}

// IsOverride reports whether actorRole is one of the two roles (SUPER_ADMIN,
// SYS_ADMIN) that several ticket operations let bypass the assigned-executor
// restriction (e.g. close, set_in_progress on §4.4's override clause).
func IsOverride(actorRole model.Role) bool {
	return actorRole == model.RoleSuperAdmin || actorRole == model.RoleSysAdmin
}
