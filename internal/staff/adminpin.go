package staff

import (
	"context"
	"time"

	"mise.app/internal/audit"
	"mise.app/internal/auth"
	"mise.app/internal/model"
	"mise.app/internal/obs"
	"mise.app/internal/outcome"
)

// AdminGrant is the result of a successful admin PIN check.
type AdminGrant struct {
	Token       string    `json:"-"`
	RequiredFor string    `json:"required_for"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type AdminStatus struct {
	HasAdminPin bool `json:"has_admin_pin"`
}

func (s *Service) AdminStatus(ctx context.Context, ownerID string) (AdminStatus, error) {
	owner, err := s.owner(ctx, ownerID)
	if err != nil {
		return AdminStatus{}, err
	}
	return AdminStatus{HasAdminPin: owner.HasAdminPin()}, nil
}

// SetAdminPin sets the admin PIN, or rotates it when one exists. Rotation
// requires the current PIN and ends every admin grant of the owner.
func (s *Service) SetAdminPin(ctx context.Context, ownerID, currentPIN, newPIN string) error {
	owner, err := s.owner(ctx, ownerID)
	if err != nil {
		return err
	}
	if err := auth.ValidateAdminPin(newPIN); err != nil {
		return err
	}
	rotating := owner.HasAdminPin()
	if rotating {
		if err := s.checkAdminPin(ctx, owner, currentPIN); err != nil {
			return err
		}
	}
	hash, err := auth.HashAdminPin(newPIN)
	if err != nil {
		return outcome.Internal(err)
	}
	if err := s.store.SetAdminPinHash(ctx, owner.ID, hash, s.now().UTC()); err != nil {
		return storeErr(err, "owner_not_found")
	}
	event := audit.EventAdminPinSet
	details := map[string]any{}
	if rotating {
		event = audit.EventAdminPinRotated
		n, err := s.sessions.InvalidateAdmin(ctx, owner.ID)
		if err != nil {
			return err
		}
		details["admin_sessions_invalidated"] = n
	}
	s.security(ctx, model.SecurityEvent{
		BusinessID: owner.ID,
		OwnerID:    owner.ID,
		Tier:       model.TierAdmin,
		Event:      event,
		Details:    details,
	})
	return nil
}

// VerifyAdminPin checks the owner's admin PIN and issues an admin grant.
func (s *Service) VerifyAdminPin(ctx context.Context, ownerID, pin, requiredFor string) (AdminGrant, error) {
	owner, err := s.owner(ctx, ownerID)
	if err != nil {
		return AdminGrant{}, err
	}
	if !owner.HasAdminPin() {
		return AdminGrant{}, outcome.Conflict("admin_pin_not_set")
	}
	if err := s.checkAdminPin(ctx, owner, pin); err != nil {
		return AdminGrant{}, err
	}
	grant, err := s.sessions.CreateAdmin(ctx, owner.ID, requiredFor)
	if err != nil {
		return AdminGrant{}, err
	}
	s.security(ctx, model.SecurityEvent{
		BusinessID: owner.ID,
		OwnerID:    owner.ID,
		Tier:       model.TierAdmin,
		Event:      audit.EventAdminPinSucceeded,
		Details:    map[string]any{"required_for": grant.RequiredFor},
	})
	return AdminGrant{Token: grant.Token, RequiredFor: grant.RequiredFor, ExpiresAt: grant.ExpiresAt}, nil
}

// checkAdminPin counts the attempt, verifies the PIN and accounts the failure
// on the admin tier, keyed by owner.
func (s *Service) checkAdminPin(ctx context.Context, owner model.BusinessOwner, pin string) error {
	a, err := s.adminPins.Reserve(ctx, owner.ID)
	if err != nil {
		return err
	}
	if !a.Allowed {
		obs.SignIns.WithLabelValues("admin_pin", "rate_limited").Inc()
		return a.Err()
	}
	if owner.AdminPinHash != nil && auth.VerifyAdminPin(pin, *owner.AdminPinHash) {
		obs.SignIns.WithLabelValues("admin_pin", "ok").Inc()
		return s.adminPins.Clear(ctx, owner.ID)
	}
	d := s.adminPins.Failed(a)
	obs.SignIns.WithLabelValues("admin_pin", "invalid_pin").Inc()
	s.security(ctx, model.SecurityEvent{
		BusinessID: owner.ID,
		OwnerID:    owner.ID,
		Tier:       model.TierAdmin,
		Event:      audit.EventAdminPinFailed,
		PinPrefix:  auth.PinPrefix(pin),
		Details:    map[string]any{"remaining_attempts": d.RemainingAttempts},
	})
	if !d.Allowed {
		s.security(ctx, model.SecurityEvent{
			BusinessID: owner.ID,
			OwnerID:    owner.ID,
			Tier:       model.TierAdmin,
			Event:      audit.EventAdminPinLockedOut,
			Details:    map[string]any{"lockout_minutes": int(d.LockoutRemaining.Minutes())},
		})
	}
	return outcome.InvalidPin(d.Allowed, d.LockoutRemaining)
}
