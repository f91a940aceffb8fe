package rbac

import "mise.app/internal/model"

const (
	ReasonRoleChanged      = "role_changed"
	ReasonStaffDeactivated = "staff_deactivated"
)

// ChangeSet describes what changed between two versions of a staff record.
type ChangeSet struct {
	RoleChanged        bool
	PermissionsChanged bool
	Deactivated        bool
	Activated          bool
	TerminateSessions  bool
	Reason             string
	OldRole            model.Role
	NewRole            model.Role
}

// Diff applies the session invalidation rule: a role change or a deactivation
// ends every active session; a permission-only change does not.
func Diff(before, after model.Staff) ChangeSet {
	cs := ChangeSet{
		RoleChanged:        before.Role != after.Role,
		PermissionsChanged: !EqualPermissions(before.Permissions, after.Permissions),
		Deactivated:        before.IsActive && !after.IsActive,
		Activated:          !before.IsActive && after.IsActive,
		OldRole:            before.Role,
		NewRole:            after.Role,
	}
	switch {
	case cs.Deactivated:
		cs.TerminateSessions = true
		cs.Reason = ReasonStaffDeactivated
	case cs.RoleChanged:
		cs.TerminateSessions = true
		cs.Reason = ReasonRoleChanged
	}
	return cs
}
