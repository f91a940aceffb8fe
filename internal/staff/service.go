// Package staff implements the owner-facing staff management operations and
// the staff sign-in flows. Every owner operation passes the business-owner
// gate first and is scoped to the owner's business.
package staff

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mise.app/internal/auth"
	"mise.app/internal/model"
	"mise.app/internal/obs"
	"mise.app/internal/outcome"
	"mise.app/internal/ratelimit"
	"mise.app/internal/rbac"
	"mise.app/internal/session"
)

// Store is the persistence the service needs. Missing rows are reported with
// an error matching outcome.ErrNotFound; unique violations as outcome
// Conflict errors carrying email_exists, phone_exists or username_exists.
type Store interface {
	BusinessOwner(ctx context.Context, ownerID string) (model.BusinessOwner, error)
	SetAdminPinHash(ctx context.Context, ownerID, hash string, at time.Time) error

	CreateStaff(ctx context.Context, st model.Staff) error
	StaffByID(ctx context.Context, id string) (model.Staff, error)
	UpdateStaff(ctx context.Context, st model.Staff) error
	DeleteStaff(ctx context.Context, businessID, id string) error
	ListStaff(ctx context.Context, businessID string, f model.StaffFilter) ([]model.Staff, error)
	FindStaffByIdentifier(ctx context.Context, businessID, identifier string) (model.Staff, error)
	CountByRole(ctx context.Context, businessID string, role model.Role) (int, error)

	ListActivity(ctx context.Context, businessID string, f model.ActivityFilter) ([]model.ActivityEntry, error)
}

// OwnerGate resolves the acting business owner or refuses.
type OwnerGate interface {
	RequireBusinessOwner(ctx context.Context, userID string) (model.BusinessOwner, error)
}

// Recorder receives audit records. Implementations must not block.
type Recorder interface {
	RecordActivity(ctx context.Context, entry model.ActivityEntry)
	RecordSecurity(ctx context.Context, ev model.SecurityEvent)
}

// Admin-session purposes.
const (
	ActionRoleChange = "staff_role_change"
	ActionDelete     = "staff_delete"
	ActionPinReset   = "staff_pin_reset"
)

const defaultGeneratedPinLength = 6

type Service struct {
	store    Store
	gate     OwnerGate
	sessions *session.Manager
	rec      Recorder
	policy   rbac.Policy

	staffPins *ratelimit.Limiter
	logins    *ratelimit.Limiter
	adminPins *ratelimit.Limiter

	pinLength int
	now       func() time.Time
	log       *zap.Logger
}

// Option configures Service.
type Option func(*Service)

func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

func WithPolicy(p rbac.Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithLimiterStore backs all three credential limiters with store.
func WithLimiterStore(store ratelimit.Store, opts ...ratelimit.Option) Option {
	return func(s *Service) {
		s.staffPins = ratelimit.New(ratelimit.StaffPinPolicy, store, opts...)
		s.logins = ratelimit.New(ratelimit.BusinessLoginPolicy, store, opts...)
		s.adminPins = ratelimit.New(ratelimit.AdminPinPolicy, store, opts...)
	}
}

func WithGeneratedPinLength(n int) Option {
	return func(s *Service) {
		if n >= auth.MinPinLength && n <= auth.MaxPinLength {
			s.pinLength = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

func NewService(store Store, gate OwnerGate, sessions *session.Manager, rec Recorder, opts ...Option) *Service {
	s := &Service{
		store:     store,
		gate:      gate,
		sessions:  sessions,
		rec:       rec,
		policy:    rbac.DefaultPolicy(),
		pinLength: defaultGeneratedPinLength,
		now:       time.Now,
		log:       obs.Logger(),
	}
	WithLimiterStore(ratelimit.NewMemoryStore())(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// owner runs the business-owner gate.
func (s *Service) owner(ctx context.Context, userID string) (model.BusinessOwner, error) {
	return s.gate.RequireBusinessOwner(ctx, userID)
}

// requireAdmin checks the admin-session token carried in ctx.
func (s *Service) requireAdmin(ctx context.Context, ownerID, action string) error {
	token, _ := auth.AdminTokenFromContext(ctx)
	return s.sessions.RequireAdmin(ctx, ownerID, token, action)
}

// ownedStaff loads staffID and hides staff of other businesses.
func (s *Service) ownedStaff(ctx context.Context, businessID, staffID string) (model.Staff, error) {
	st, err := s.store.StaffByID(ctx, staffID)
	if err != nil {
		return model.Staff{}, storeErr(err, "staff_not_found")
	}
	if st.BusinessID != businessID {
		return model.Staff{}, outcome.NotFound("staff_not_found")
	}
	return st, nil
}

func (s *Service) activity(ctx context.Context, businessID, staffID, action, by string, details map[string]any) {
	s.rec.RecordActivity(ctx, model.ActivityEntry{
		BusinessID:  businessID,
		StaffID:     staffID,
		Action:      action,
		PerformedBy: by,
		Details:     details,
		CreatedAt:   s.now().UTC(),
	})
}

func (s *Service) security(ctx context.Context, ev model.SecurityEvent) {
	ev.CreatedAt = s.now().UTC()
	s.rec.RecordSecurity(ctx, ev)
}

// storeErr passes typed outcomes through and wraps anything else as Internal.
func storeErr(err error, notFoundCode string) error {
	oe := outcome.From(err)
	if oe.Kind == outcome.KindNotFound && notFoundCode != "" {
		return outcome.NotFound(notFoundCode)
	}
	return oe
}
