package staff

import (
	"context"

	"go.uber.org/zap"

	"mise.app/internal/audit"
	"mise.app/internal/auth"
	"mise.app/internal/ids"
	"mise.app/internal/model"
	"mise.app/internal/outcome"
	"mise.app/internal/rbac"
)

// NewStaff is the input to Create. PIN may be empty, in which case one is generated.
type NewStaff struct {
	FirstName   string   `json:"first_name"`
	LastName    string   `json:"last_name"`
	Email       string   `json:"email"`
	Username    string   `json:"username"`
	Phone       string   `json:"phone"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	PIN         string   `json:"pin"`
}

// CreateResult carries the generated PIN exactly once.
type CreateResult struct {
	Staff        model.Staff    `json:"staff"`
	GeneratedPIN string         `json:"generated_pin,omitempty"`
	Warnings     []rbac.Warning `json:"warnings,omitempty"`
}

// Update holds optional field changes; nil leaves a field as is.
type Update struct {
	FirstName   *string   `json:"first_name"`
	LastName    *string   `json:"last_name"`
	Email       *string   `json:"email"`
	Username    *string   `json:"username"`
	Phone       *string   `json:"phone"`
	IsActive    *bool     `json:"is_active"`
	Permissions *[]string `json:"permissions"`
}

type UpdateResult struct {
	Staff              model.Staff    `json:"staff"`
	SessionsTerminated int            `json:"sessions_terminated"`
	CascadeFailed      int            `json:"cascade_failed,omitempty"`
	Warnings           []rbac.Warning `json:"warnings,omitempty"`
}

type DeleteResult struct {
	StaffID            string `json:"staff_id"`
	SessionsTerminated int    `json:"sessions_terminated"`
	CascadeFailed      int    `json:"cascade_failed,omitempty"`
}

type PinResult struct {
	StaffID string `json:"staff_id"`
	PIN     string `json:"pin"`
}

func (s *Service) Create(ctx context.Context, ownerID string, in NewStaff) (CreateResult, error) {
	owner, err := s.owner(ctx, ownerID)
	if err != nil {
		return CreateResult{}, err
	}
	now := s.now().UTC()
	st := model.Staff{
		ID:         ids.New(),
		BusinessID: owner.ID,
		FirstName:  clean(in.FirstName),
		LastName:   clean(in.LastName),
		Email:      cleanEmail(in.Email),
		Username:   cleanEmail(in.Username),
		Phone:      clean(in.Phone),
		IsActive:   true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	var v outcome.Validator
	validateProfile(&v, st)
	role, roleErr := rbac.ParseRole(in.Role)
	v.Check(roleErr == nil, "role")
	grants := validateGrants(&v, in.Permissions)
	pin := in.PIN
	if pin != "" {
		v.Check(auth.ValidatePin(pin) == nil, "pin")
	}
	if err := v.Err(); err != nil {
		return CreateResult{}, err
	}

	generated := ""
	if pin == "" {
		if pin, err = auth.GenerateSecurePin(s.pinLength); err != nil {
			return CreateResult{}, outcome.Internal(err)
		}
		generated = pin
	}
	if st.PinHash, err = auth.HashPin(pin); err != nil {
		return CreateResult{}, outcome.Internal(err)
	}
	st.Role = role
	st.Permissions = rbac.ComputePermissions(role, grants)
	warnings := s.policyWarnings(ctx, owner, role)

	if err := s.store.CreateStaff(ctx, st); err != nil {
		return CreateResult{}, storeErr(err, "")
	}
	s.activity(ctx, owner.ID, st.ID, audit.ActionStaffCreated, owner.ID, map[string]any{
		"role":          string(role),
		"permissions":   st.Permissions,
		"pin_generated": generated != "",
	})
	return CreateResult{Staff: st, GeneratedPIN: generated, Warnings: warnings}, nil
}

func (s *Service) Update(ctx context.Context, ownerID, staffID string, in Update) (UpdateResult, error) {
	owner, err := s.owner(ctx, ownerID)
	if err != nil {
		return UpdateResult{}, err
	}
	before, err := s.ownedStaff(ctx, owner.ID, staffID)
	if err != nil {
		return UpdateResult{}, err
	}
	after := before.Clone()
	var changed []string
	set := func(dst *string, src *string, field string, f func(string) string) {
		if src == nil {
			return
		}
		if v := f(*src); v != *dst {
			*dst = v
			changed = append(changed, field)
		}
	}
	set(&after.FirstName, in.FirstName, "first_name", clean)
	set(&after.LastName, in.LastName, "last_name", clean)
	set(&after.Email, in.Email, "email", cleanEmail)
	set(&after.Username, in.Username, "username", cleanEmail)
	set(&after.Phone, in.Phone, "phone", clean)
	if in.IsActive != nil && *in.IsActive != after.IsActive {
		after.IsActive = *in.IsActive
		changed = append(changed, "is_active")
	}

	var v outcome.Validator
	validateProfile(&v, after)
	if in.Permissions != nil {
		grants := validateGrants(&v, *in.Permissions)
		after.Permissions = rbac.ComputePermissions(after.Role, grants)
	}
	if err := v.Err(); err != nil {
		return UpdateResult{}, err
	}
	cs := rbac.Diff(before, after)
	if cs.PermissionsChanged {
		changed = append(changed, "permissions")
	}
	if len(changed) == 0 {
		return UpdateResult{Staff: before}, nil
	}
	after.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateStaff(ctx, after); err != nil {
		return UpdateResult{}, storeErr(err, "staff_not_found")
	}

	res := UpdateResult{Staff: after}
	if cs.TerminateSessions {
		res.SessionsTerminated, res.CascadeFailed = s.cascade(ctx, owner.ID, after, cs)
	}
	action := audit.ActionStaffUpdated
	switch {
	case cs.Deactivated:
		action = audit.ActionStaffDeactivated
	case cs.Activated:
		action = audit.ActionStaffActivated
	}
	s.activity(ctx, owner.ID, after.ID, action, owner.ID, map[string]any{
		"fields":              changed,
		"sessions_terminated": res.SessionsTerminated,
	})
	return res, nil
}

// ChangeRole moves staffID to role with the given custom grants. Custom grants
// do not carry over: a nil grants slice leaves the new role's defaults only.
func (s *Service) ChangeRole(ctx context.Context, ownerID, staffID, role string, grants []string) (UpdateResult, error) {
	owner, err := s.owner(ctx, ownerID)
	if err != nil {
		return UpdateResult{}, err
	}
	if err := s.requireAdmin(ctx, owner.ID, ActionRoleChange); err != nil {
		return UpdateResult{}, err
	}
	before, err := s.ownedStaff(ctx, owner.ID, staffID)
	if err != nil {
		return UpdateResult{}, err
	}
	var v outcome.Validator
	newRole, roleErr := rbac.ParseRole(role)
	v.Check(roleErr == nil, "role")
	var custom []model.Permission
	if grants != nil {
		custom = validateGrants(&v, grants)
	}
	if err := v.Err(); err != nil {
		return UpdateResult{}, err
	}
	if newRole == before.Role {
		return UpdateResult{}, outcome.Conflict("role_unchanged")
	}

	after := before.Clone()
	after.Role = newRole
	after.Permissions = rbac.ComputePermissions(newRole, custom)
	after.UpdatedAt = s.now().UTC()
	warnings := s.policyWarnings(ctx, owner, newRole)
	if err := s.store.UpdateStaff(ctx, after); err != nil {
		return UpdateResult{}, storeErr(err, "staff_not_found")
	}

	cs := rbac.Diff(before, after)
	res := UpdateResult{Staff: after, Warnings: warnings}
	res.SessionsTerminated, res.CascadeFailed = s.cascade(ctx, owner.ID, after, cs)
	s.activity(ctx, owner.ID, after.ID, audit.ActionStaffRoleChanged, owner.ID, map[string]any{
		"old_role":            string(before.Role),
		"new_role":            string(newRole),
		"permissions":         after.Permissions,
		"previous_grants":     rbac.CustomGrants(before.Role, before.Permissions),
		"sessions_terminated": res.SessionsTerminated,
	})
	return res, nil
}

func (s *Service) Deactivate(ctx context.Context, ownerID, staffID string) (UpdateResult, error) {
	return s.setActive(ctx, ownerID, staffID, false)
}

func (s *Service) Activate(ctx context.Context, ownerID, staffID string) (UpdateResult, error) {
	return s.setActive(ctx, ownerID, staffID, true)
}

func (s *Service) setActive(ctx context.Context, ownerID, staffID string, active bool) (UpdateResult, error) {
	owner, err := s.owner(ctx, ownerID)
	if err != nil {
		return UpdateResult{}, err
	}
	before, err := s.ownedStaff(ctx, owner.ID, staffID)
	if err != nil {
		return UpdateResult{}, err
	}
	if before.IsActive == active {
		if active {
			return UpdateResult{}, outcome.Conflict("already_active")
		}
		return UpdateResult{}, outcome.Conflict("already_inactive")
	}
	after := before.Clone()
	after.IsActive = active
	after.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateStaff(ctx, after); err != nil {
		return UpdateResult{}, storeErr(err, "staff_not_found")
	}
	cs := rbac.Diff(before, after)
	res := UpdateResult{Staff: after}
	action := audit.ActionStaffActivated
	if cs.TerminateSessions {
		res.SessionsTerminated, res.CascadeFailed = s.cascade(ctx, owner.ID, after, cs)
		action = audit.ActionStaffDeactivated
	}
	s.activity(ctx, owner.ID, after.ID, action, owner.ID, map[string]any{
		"sessions_terminated": res.SessionsTerminated,
	})
	return res, nil
}

// Delete ends the staff member's sessions, removes the row, then records the deletion.
func (s *Service) Delete(ctx context.Context, ownerID, staffID string) (DeleteResult, error) {
	owner, err := s.owner(ctx, ownerID)
	if err != nil {
		return DeleteResult{}, err
	}
	if err := s.requireAdmin(ctx, owner.ID, ActionDelete); err != nil {
		return DeleteResult{}, err
	}
	st, err := s.ownedStaff(ctx, owner.ID, staffID)
	if err != nil {
		return DeleteResult{}, err
	}
	ended, failed, err := s.sessions.TerminateForStaff(ctx, owner.ID, st.ID, "staff_deleted")
	if err != nil {
		return DeleteResult{}, err
	}
	for _, sess := range ended {
		s.activity(ctx, owner.ID, st.ID, audit.ActionSessionTerminatedDeletion, owner.ID, map[string]any{
			"session_id": sess.ID,
			"reason":     "staff_deleted",
		})
	}
	if err := s.store.DeleteStaff(ctx, owner.ID, st.ID); err != nil {
		return DeleteResult{}, storeErr(err, "staff_not_found")
	}
	s.activity(ctx, owner.ID, st.ID, audit.ActionStaffDeleted, owner.ID, map[string]any{
		"name":                st.FullName(),
		"role":                string(st.Role),
		"sessions_terminated": len(ended),
		"cascade_failed":      failed,
	})
	return DeleteResult{StaffID: st.ID, SessionsTerminated: len(ended), CascadeFailed: failed}, nil
}

// ResetPin issues a new PIN. Hashes are one-way, so this is also the only way
// to recover a forgotten PIN.
func (s *Service) ResetPin(ctx context.Context, ownerID, staffID string) (PinResult, error) {
	owner, err := s.owner(ctx, ownerID)
	if err != nil {
		return PinResult{}, err
	}
	if err := s.requireAdmin(ctx, owner.ID, ActionPinReset); err != nil {
		return PinResult{}, err
	}
	st, err := s.ownedStaff(ctx, owner.ID, staffID)
	if err != nil {
		return PinResult{}, err
	}
	pin, err := auth.GenerateSecurePin(s.pinLength)
	if err != nil {
		return PinResult{}, outcome.Internal(err)
	}
	if st.PinHash, err = auth.HashPin(pin); err != nil {
		return PinResult{}, outcome.Internal(err)
	}
	st.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateStaff(ctx, st); err != nil {
		return PinResult{}, storeErr(err, "staff_not_found")
	}
	if err := s.staffPins.Clear(ctx, signInKey(st.ID)); err != nil {
		return PinResult{}, err
	}
	s.activity(ctx, owner.ID, st.ID, audit.ActionStaffPinReset, owner.ID, nil)
	return PinResult{StaffID: st.ID, PIN: pin}, nil
}

func (s *Service) Get(ctx context.Context, ownerID, staffID string) (model.Staff, error) {
	owner, err := s.owner(ctx, ownerID)
	if err != nil {
		return model.Staff{}, err
	}
	return s.ownedStaff(ctx, owner.ID, staffID)
}

func (s *Service) List(ctx context.Context, ownerID string, f model.StaffFilter) ([]model.Staff, error) {
	owner, err := s.owner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	list, err := s.store.ListStaff(ctx, owner.ID, f)
	if err != nil {
		return nil, outcome.Internal(err)
	}
	return list, nil
}

// Activity reads the business's activity log, newest first.
func (s *Service) Activity(ctx context.Context, ownerID string, f model.ActivityFilter) ([]model.ActivityEntry, error) {
	owner, err := s.owner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if f.Limit < 0 || f.Limit > 500 {
		return nil, outcome.Validation("limit")
	}
	list, err := s.store.ListActivity(ctx, owner.ID, f)
	if err != nil {
		return nil, outcome.Internal(err)
	}
	return list, nil
}

// cascade ends every active session of st and logs one entry per session.
func (s *Service) cascade(ctx context.Context, businessID string, st model.Staff, cs rbac.ChangeSet) (int, int) {
	ended, failed, err := s.sessions.TerminateForStaff(ctx, businessID, st.ID, cs.Reason)
	if err != nil {
		s.log.Warn("session_cascade_failed",
			zap.String("business_id", businessID),
			zap.String("staff_id", st.ID),
			zap.String("reason", cs.Reason),
			zap.Error(err))
		return 0, 1
	}
	action := audit.ActionSessionTerminatedDeactivation
	if cs.Reason == rbac.ReasonRoleChanged {
		action = audit.ActionSessionTerminatedRoleChange
	}
	for _, sess := range ended {
		s.activity(ctx, businessID, st.ID, action, businessID, map[string]any{
			"session_id": sess.ID,
			"reason":     cs.Reason,
			"old_role":   string(cs.OldRole),
			"new_role":   string(cs.NewRole),
		})
	}
	return len(ended), failed
}

// policyWarnings checks soft role policy. Failures to count are not fatal.
func (s *Service) policyWarnings(ctx context.Context, owner model.BusinessOwner, role model.Role) []rbac.Warning {
	n, err := s.store.CountByRole(ctx, owner.ID, role)
	if err != nil {
		return nil
	}
	return s.policy.Check(role, owner.BusinessType, n)
}
