package staff

import (
	"context"
	"errors"
	"strings"
	"time"

	"mise.app/internal/audit"
	"mise.app/internal/auth"
	"mise.app/internal/model"
	"mise.app/internal/obs"
	"mise.app/internal/outcome"
	"mise.app/internal/ratelimit"
)

type SignInRequest struct {
	StaffID string `json:"staff_id"`
	PIN     string `json:"pin"`
}

// LoginRequest is a staff member signing in on a device already bound to a
// business. Identifier is an email, username or phone; when empty the PIN is
// matched against the business's active staff.
type LoginRequest struct {
	BusinessID string `json:"business_id"`
	Identifier string `json:"identifier"`
	PIN        string `json:"pin"`
}

// SignInResult carries the raw session token for the cookie.
type SignInResult struct {
	Staff     model.Staff        `json:"staff"`
	Session   model.StaffSession `json:"session"`
	Token     string             `json:"-"`
	ExpiresAt time.Time          `json:"expires_at"`
}

func signInKey(staffID string) string { return staffID + "-signin" }

func loginKey(businessID, pin string) string {
	return businessID + "-" + auth.PinPrefix(pin)
}

// SignIn signs a staff member in on the owner's device. The order is fixed:
// the attempt is counted, the PIN verified, the session created, then logged.
func (s *Service) SignIn(ctx context.Context, ownerID string, req SignInRequest) (SignInResult, error) {
	owner, err := s.owner(ctx, ownerID)
	if err != nil {
		return SignInResult{}, err
	}
	if !owner.HasAdminPin() {
		return SignInResult{}, outcome.Conflict("admin_pin_required")
	}
	req.StaffID = strings.TrimSpace(req.StaffID)
	if req.StaffID == "" {
		return SignInResult{}, outcome.Validation("staff_id")
	}
	key := signInKey(req.StaffID)
	a, err := s.staffPins.Reserve(ctx, key)
	if err != nil {
		return SignInResult{}, err
	}
	if !a.Allowed {
		obs.SignIns.WithLabelValues("owner", "rate_limited").Inc()
		return SignInResult{}, a.Err()
	}
	st, err := s.ownedStaff(ctx, owner.ID, req.StaffID)
	if err != nil {
		return SignInResult{}, err
	}
	if !st.IsActive {
		return SignInResult{}, outcome.Conflict("staff_inactive")
	}
	if !auth.VerifyPin(req.PIN, st.PinHash) {
		return SignInResult{}, s.pinFailure(ctx, s.staffPins, a, owner.ID, st.ID, req.PIN, "owner")
	}
	return s.completeSignIn(ctx, s.staffPins, key, st, owner.ID, "owner")
}

// BindBusiness checks that businessID names an owner whose staff may sign in,
// before the device is scoped to it.
func (s *Service) BindBusiness(ctx context.Context, businessID string) (model.BusinessOwner, error) {
	businessID = strings.TrimSpace(businessID)
	if businessID == "" {
		return model.BusinessOwner{}, outcome.Validation("business_id")
	}
	owner, err := s.store.BusinessOwner(ctx, businessID)
	if err != nil {
		return model.BusinessOwner{}, storeErr(err, "business_not_found")
	}
	if !owner.HasAdminPin() {
		return model.BusinessOwner{}, outcome.Conflict("admin_pin_required")
	}
	return owner, nil
}

// Login signs a staff member in on a business-bound device.
func (s *Service) Login(ctx context.Context, req LoginRequest) (SignInResult, error) {
	businessID := strings.TrimSpace(req.BusinessID)
	if businessID == "" {
		return SignInResult{}, outcome.Unauthenticated()
	}
	if auth.ValidatePin(req.PIN) != nil {
		return SignInResult{}, outcome.Validation("pin")
	}
	owner, err := s.store.BusinessOwner(ctx, businessID)
	if err != nil {
		return SignInResult{}, storeErr(err, "business_not_found")
	}
	if !owner.HasAdminPin() {
		return SignInResult{}, outcome.Conflict("admin_pin_required")
	}
	key := loginKey(owner.ID, req.PIN)
	a, err := s.logins.Reserve(ctx, key)
	if err != nil {
		return SignInResult{}, err
	}
	if !a.Allowed {
		obs.SignIns.WithLabelValues("business", "rate_limited").Inc()
		return SignInResult{}, a.Err()
	}
	st, ok, err := s.matchStaff(ctx, owner.ID, req.Identifier, req.PIN)
	if err != nil {
		return SignInResult{}, err
	}
	if !ok {
		return SignInResult{}, s.pinFailure(ctx, s.logins, a, owner.ID, st.ID, req.PIN, "business")
	}
	return s.completeSignIn(ctx, s.logins, key, st, st.ID, "business")
}

// matchStaff finds the active staff member whose PIN matches. On a miss the
// returned staff carries the identified member, if any, for the audit trail.
func (s *Service) matchStaff(ctx context.Context, businessID, identifier, pin string) (model.Staff, bool, error) {
	if strings.TrimSpace(identifier) != "" {
		st, err := s.store.FindStaffByIdentifier(ctx, businessID, identifier)
		if err != nil {
			if errors.Is(err, outcome.ErrNotFound) {
				return model.Staff{}, false, nil
			}
			return model.Staff{}, false, outcome.Internal(err)
		}
		if !st.IsActive || !auth.VerifyPin(pin, st.PinHash) {
			return st, false, nil
		}
		return st, true, nil
	}
	list, err := s.store.ListStaff(ctx, businessID, model.StaffFilter{ActiveOnly: true})
	if err != nil {
		return model.Staff{}, false, outcome.Internal(err)
	}
	for _, st := range list {
		if auth.VerifyPin(pin, st.PinHash) {
			return st, true, nil
		}
	}
	return model.Staff{}, false, nil
}

// pinFailure settles a reserved attempt whose PIN did not match.
func (s *Service) pinFailure(ctx context.Context, l *ratelimit.Limiter, a ratelimit.Attempt, businessID, staffID, pin, flow string) error {
	d := l.Failed(a)
	obs.SignIns.WithLabelValues(flow, "invalid_pin").Inc()
	s.security(ctx, model.SecurityEvent{
		BusinessID: businessID,
		StaffID:    staffID,
		Tier:       model.TierStaff,
		Event:      audit.EventStaffPinFailed,
		PinPrefix:  auth.PinPrefix(pin),
		Details:    map[string]any{"flow": flow, "remaining_attempts": d.RemainingAttempts},
	})
	if !d.Allowed {
		s.security(ctx, model.SecurityEvent{
			BusinessID: businessID,
			StaffID:    staffID,
			Tier:       model.TierStaff,
			Event:      audit.EventStaffPinLockedOut,
			Details:    map[string]any{"flow": flow, "lockout_minutes": int(d.LockoutRemaining.Minutes())},
		})
	}
	return outcome.InvalidPin(d.Allowed, d.LockoutRemaining)
}

func (s *Service) completeSignIn(ctx context.Context, l *ratelimit.Limiter, key string, st model.Staff, signedInBy, flow string) (SignInResult, error) {
	if err := l.Clear(ctx, key); err != nil {
		return SignInResult{}, err
	}
	sess, err := s.sessions.Create(ctx, st.ID, st.BusinessID, signedInBy)
	if err != nil {
		return SignInResult{}, err
	}
	obs.SignIns.WithLabelValues(flow, "ok").Inc()
	s.security(ctx, model.SecurityEvent{
		BusinessID: st.BusinessID,
		StaffID:    st.ID,
		Tier:       model.TierStaff,
		Event:      audit.EventStaffPinSucceeded,
		Details:    map[string]any{"flow": flow, "session_id": sess.ID},
	})
	s.activity(ctx, st.BusinessID, st.ID, audit.ActionStaffLogin, signedInBy, map[string]any{
		"flow":       flow,
		"session_id": sess.ID,
	})
	return SignInResult{
		Staff:     st,
		Session:   sess,
		Token:     sess.Token,
		ExpiresAt: s.sessions.ExpiresAt(sess),
	}, nil
}

// Logout ends the caller's own staff session.
func (s *Service) Logout(ctx context.Context, token string) error {
	sess, ok, err := s.sessions.SignOut(ctx, token)
	if err != nil {
		return err
	}
	if ok {
		s.activity(ctx, sess.BusinessID, sess.StaffID, audit.ActionStaffLogout, sess.StaffID, map[string]any{
			"session_id": sess.ID,
		})
	}
	return nil
}

// Me resolves a staff session token to the staff member it belongs to.
func (s *Service) Me(ctx context.Context, token string) (model.Staff, model.StaffSession, error) {
	sess, err := s.sessions.Authenticate(ctx, token)
	if err != nil {
		return model.Staff{}, model.StaffSession{}, err
	}
	st, err := s.ownedStaff(ctx, sess.BusinessID, sess.StaffID)
	if err != nil {
		return model.Staff{}, model.StaffSession{}, outcome.Unauthenticated()
	}
	return st, sess, nil
}

// ChangePin lets a signed-in staff member replace their own PIN.
func (s *Service) ChangePin(ctx context.Context, token, currentPIN, newPIN string) error {
	st, _, err := s.Me(ctx, token)
	if err != nil {
		return err
	}
	if err := auth.ValidatePin(newPIN); err != nil {
		return err
	}
	key := signInKey(st.ID)
	a, err := s.staffPins.Reserve(ctx, key)
	if err != nil {
		return err
	}
	if !a.Allowed {
		return a.Err()
	}
	if !auth.VerifyPin(currentPIN, st.PinHash) {
		return s.pinFailure(ctx, s.staffPins, a, st.BusinessID, st.ID, currentPIN, "pin_change")
	}
	if err := s.staffPins.Clear(ctx, key); err != nil {
		return err
	}
	if st.PinHash, err = auth.HashPin(newPIN); err != nil {
		return outcome.Internal(err)
	}
	st.UpdatedAt = s.now().UTC()
	if err := s.store.UpdateStaff(ctx, st); err != nil {
		return storeErr(err, "staff_not_found")
	}
	s.activity(ctx, st.BusinessID, st.ID, audit.ActionStaffPinChanged, st.ID, nil)
	return nil
}
