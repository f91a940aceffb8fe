package model

import "time"

const (
	AccountTypeBusiness = "business"
	AccountTypePersonal = "personal"
)

// Account is the auth-provider identity row backing every signed-in user.
type Account struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	AccountType string    `json:"account_type"`
	CreatedAt   time.Time `json:"created_at"`
}

// BusinessOwner is the tenant administrator. The owner's ID doubles as the business ID.
type BusinessOwner struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	AccountType   string    `json:"account_type"`
	BusinessName  string    `json:"business_name,omitempty"`
	BusinessType  string    `json:"business_type,omitempty"`
	AdminPinHash  *string   `json:"-"`
	EmailVerified bool      `json:"email_verified"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// HasAdminPin reports whether the owner bootstrapped the elevated credential tier.
func (o BusinessOwner) HasAdminPin() bool {
	return o.AdminPinHash != nil && *o.AdminPinHash != ""
}

// PersonalProfile marks an account as a consumer (non-business) user.
type PersonalProfile struct {
	UserID    string    `json:"user_id"`
	FullName  string    `json:"full_name,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Staff is an employee scoped to exactly one business.
type Staff struct {
	ID          string       `json:"id"`
	BusinessID  string       `json:"business_id"`
	FirstName   string       `json:"first_name"`
	LastName    string       `json:"last_name"`
	Email       string       `json:"email,omitempty"`
	Username    string       `json:"username,omitempty"`
	Phone       string       `json:"phone,omitempty"`
	PinHash     string       `json:"-"`
	Role        Role         `json:"role"`
	Permissions []Permission `json:"permissions"`
	IsActive    bool         `json:"is_active"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// FullName joins first and last name.
func (s Staff) FullName() string {
	switch {
	case s.FirstName == "":
		return s.LastName
	case s.LastName == "":
		return s.FirstName
	}
	return s.FirstName + " " + s.LastName
}

// Clone returns a copy that shares no slices with s.
func (s Staff) Clone() Staff {
	out := s
	if s.Permissions != nil {
		out.Permissions = append([]Permission(nil), s.Permissions...)
	}
	return out
}

// StaffSession is an authenticated staff grant. IsActive flips true to false once.
// Token is only populated on the value returned at creation; stores keep TokenHash.
type StaffSession struct {
	ID          string     `json:"id"`
	StaffID     string     `json:"staff_id"`
	BusinessID  string     `json:"business_id"`
	SignedInBy  string     `json:"signed_in_by,omitempty"`
	Token       string     `json:"-"`
	TokenHash   string     `json:"-"`
	SignedInAt  time.Time  `json:"signed_in_at"`
	SignedOutAt *time.Time `json:"signed_out_at,omitempty"`
	IsActive    bool       `json:"is_active"`
	EndReason   string     `json:"end_reason,omitempty"`
}

// AdminSession is a short-lived elevated grant for the business owner.
type AdminSession struct {
	ID              string    `json:"id"`
	BusinessOwnerID string    `json:"business_owner_id"`
	Token           string    `json:"-"`
	TokenHash       string    `json:"-"`
	RequiredFor     string    `json:"required_for"`
	CreatedAt       time.Time `json:"created_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	IsActive        bool      `json:"is_active"`
}

// ActivityEntry is an append-only record of an administrative action.
type ActivityEntry struct {
	ID          string         `json:"id"`
	BusinessID  string         `json:"business_id"`
	StaffID     string         `json:"staff_id,omitempty"`
	Action      string         `json:"action"`
	PerformedBy string         `json:"performed_by"`
	Details     map[string]any `json:"details"`
	CreatedAt   time.Time      `json:"created_at"`
}

// SecurityEvent records a credential transition for either tier.
type SecurityEvent struct {
	ID         string         `json:"id"`
	BusinessID string         `json:"business_id"`
	StaffID    string         `json:"staff_id,omitempty"`
	OwnerID    string         `json:"owner_id,omitempty"`
	Tier       string         `json:"tier"`
	Event      string         `json:"event"`
	PinPrefix  string         `json:"pin_prefix,omitempty"`
	Details    map[string]any `json:"details"`
	CreatedAt  time.Time      `json:"created_at"`
}

const (
	TierStaff = "staff"
	TierAdmin = "admin"
)

// StaffFilter narrows staff listings.
type StaffFilter struct {
	Role       Role
	ActiveOnly bool
	Search     string
}

// ActivityFilter narrows activity log reads. Limit 0 means the store default.
type ActivityFilter struct {
	StaffID string
	Action  string
	Limit   int
}
