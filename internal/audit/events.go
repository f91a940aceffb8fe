package audit

// Security events.
const (
	EventStaffPinFailed      = "staff_pin_failed"
	EventStaffPinSucceeded   = "staff_pin_succeeded"
	EventStaffPinLockedOut   = "staff_pin_locked_out"
	EventAdminPinFailed      = "admin_pin_failed"
	EventAdminPinSucceeded   = "admin_pin_succeeded"
	EventAdminPinLockedOut   = "admin_pin_locked_out"
	EventAdminPinSet         = "admin_pin_set"
	EventAdminPinRotated     = "admin_pin_rotated"
	EventAccountTypeMismatch = "account_type_mismatch"
)

// Activity actions.
const (
	ActionStaffCreated                  = "staff_created"
	ActionStaffUpdated                  = "staff_updated"
	ActionStaffRoleChanged              = "staff_role_changed"
	ActionStaffDeactivated              = "staff_deactivated"
	ActionStaffActivated                = "staff_activated"
	ActionStaffDeleted                  = "staff_deleted"
	ActionStaffPinReset                 = "staff_pin_reset"
	ActionStaffPinChanged               = "staff_pin_changed"
	ActionStaffLogin                    = "staff_login"
	ActionStaffLogout                   = "staff_logout"
	ActionSessionTerminated             = "session_terminated"
	ActionSessionTerminatedRoleChange   = "session_terminated_due_to_role_change"
	ActionSessionTerminatedDeactivation = "session_terminated_due_to_deactivation"
	ActionSessionTerminatedDeletion     = "session_terminated_due_to_deletion"
	ActionSessionExpired                = "session_expired"
	ActionBulkSignOut                   = "bulk_sign_out"
)
