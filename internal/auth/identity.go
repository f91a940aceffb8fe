package auth

import (
	"context"
	"errors"
	"strings"

	"mise.app/internal/model"
	"mise.app/internal/outcome"
)

// IdentityStore resolves the rows that classify a signed-in user.
// Missing rows are reported with an error matching outcome.ErrNotFound.
type IdentityStore interface {
	Account(ctx context.Context, userID string) (model.Account, error)
	BusinessOwner(ctx context.Context, ownerID string) (model.BusinessOwner, error)
	PersonalProfile(ctx context.Context, userID string) (model.PersonalProfile, error)
}

// SecurityRecorder receives security events. Implementations must not block.
type SecurityRecorder interface {
	RecordSecurity(ctx context.Context, ev model.SecurityEvent)
}

// Profile classifies an account for cross-account-type checks.
type Profile struct {
	UserID             string `json:"user_id"`
	AccountType        string `json:"account_type"`
	IsBusinessOwner    bool   `json:"is_business_owner"`
	HasBusinessProfile bool   `json:"has_business_profile"`
	IsPersonalUser     bool   `json:"is_personal_user"`
	HasConflict        bool   `json:"has_conflict"`
}

// Validator gates every privileged operation on a verified business owner.
type Validator struct {
	store    IdentityStore
	security SecurityRecorder
}

func NewValidator(store IdentityStore, security SecurityRecorder) *Validator {
	return &Validator{store: store, security: security}
}

// ValidateBusinessOwner returns the owner only when the account is a business
// account with an owner row. Anything else yields nil without error.
func (v *Validator) ValidateBusinessOwner(ctx context.Context, userID string) (*model.BusinessOwner, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, nil
	}
	account, err := v.store.Account(ctx, userID)
	if err != nil {
		if errors.Is(err, outcome.ErrNotFound) {
			return nil, nil
		}
		return nil, outcome.Internal(err)
	}
	if account.AccountType != model.AccountTypeBusiness {
		return nil, nil
	}
	owner, err := v.store.BusinessOwner(ctx, userID)
	if err != nil {
		if errors.Is(err, outcome.ErrNotFound) {
			return nil, nil
		}
		return nil, outcome.Internal(err)
	}
	return &owner, nil
}

// ValidateUserProfile reports which account kinds exist for userID.
func (v *Validator) ValidateUserProfile(ctx context.Context, userID string) (Profile, error) {
	p := Profile{UserID: strings.TrimSpace(userID)}
	if p.UserID == "" {
		return p, outcome.Unauthenticated()
	}
	account, err := v.store.Account(ctx, p.UserID)
	switch {
	case errors.Is(err, outcome.ErrNotFound):
		return p, outcome.Unauthenticated()
	case err != nil:
		return p, outcome.Internal(err)
	}
	p.AccountType = account.AccountType

	if _, err := v.store.BusinessOwner(ctx, p.UserID); err == nil {
		p.HasBusinessProfile = true
	} else if !errors.Is(err, outcome.ErrNotFound) {
		return p, outcome.Internal(err)
	}
	hasPersonal := false
	if _, err := v.store.PersonalProfile(ctx, p.UserID); err == nil {
		hasPersonal = true
	} else if !errors.Is(err, outcome.ErrNotFound) {
		return p, outcome.Internal(err)
	}

	p.IsBusinessOwner = p.AccountType == model.AccountTypeBusiness && p.HasBusinessProfile
	p.IsPersonalUser = p.AccountType == model.AccountTypePersonal || hasPersonal
	p.HasConflict = (p.HasBusinessProfile && hasPersonal) ||
		(p.AccountType == model.AccountTypeBusiness && hasPersonal) ||
		(p.AccountType == model.AccountTypePersonal && p.HasBusinessProfile)
	return p, nil
}

// RequireBusinessOwner is the gate for staff and session operations. There is
// no degraded fallback: anything but a clean business owner is refused.
func (v *Validator) RequireBusinessOwner(ctx context.Context, userID string) (model.BusinessOwner, error) {
	p, err := v.ValidateUserProfile(ctx, userID)
	if err != nil {
		return model.BusinessOwner{}, err
	}
	if p.IsPersonalUser || p.HasConflict {
		v.recordMismatch(ctx, p)
		return model.BusinessOwner{}, outcome.Denied("account_type_mismatch")
	}
	if !p.IsBusinessOwner {
		return model.BusinessOwner{}, outcome.Denied("not_business_owner")
	}
	owner, err := v.ValidateBusinessOwner(ctx, p.UserID)
	if err != nil {
		return model.BusinessOwner{}, err
	}
	if owner == nil {
		return model.BusinessOwner{}, outcome.Denied("not_business_owner")
	}
	return *owner, nil
}

func (v *Validator) recordMismatch(ctx context.Context, p Profile) {
	if v.security == nil {
		return
	}
	v.security.RecordSecurity(ctx, model.SecurityEvent{
		OwnerID: p.UserID,
		Tier:    model.TierAdmin,
		Event:   "account_type_mismatch",
		Details: map[string]any{
			"account_type":         p.AccountType,
			"has_business_profile": p.HasBusinessProfile,
			"is_personal_user":     p.IsPersonalUser,
		},
	})
}
