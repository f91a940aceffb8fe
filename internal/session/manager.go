// Package session issues and ends staff sessions and short-lived admin grants.
// Every owner-facing call re-checks that the session belongs to the acting
// owner's business; a foreign session is reported exactly like a missing one.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"mise.app/internal/audit"
	"mise.app/internal/ids"
	"mise.app/internal/model"
	"mise.app/internal/obs"
	"mise.app/internal/outcome"
)

const (
	StaffSessionTTL = 8 * time.Hour
	AdminSessionTTL = 30 * time.Minute

	// PurposeAny on an admin grant satisfies every privileged action.
	PurposeAny = "admin"

	ReasonSignedOut = "signed_out"
	ReasonExpired   = "session_expired"
	ReasonOwner     = "terminated_by_owner"
)

// Manager owns the session state machine: active, then inactive for good.
type Manager struct {
	store    Store
	activity ActivityRecorder
	now      func() time.Time
	staffTTL time.Duration
	adminTTL time.Duration
	log      *zap.Logger
}

// Option configures Manager.
type Option func(*Manager)

func WithClock(fn func() time.Time) Option {
	return func(m *Manager) {
		if fn != nil {
			m.now = fn
		}
	}
}

func WithActivity(r ActivityRecorder) Option {
	return func(m *Manager) { m.activity = r }
}

func WithStaffTTL(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.staffTTL = d
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

func NewManager(store Store, opts ...Option) *Manager {
	m := &Manager{
		store:    store,
		now:      time.Now,
		staffTTL: StaffSessionTTL,
		adminTTL: AdminSessionTTL,
		log:      obs.Logger(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) StaffTTL() time.Duration { return m.staffTTL }
func (m *Manager) AdminTTL() time.Duration { return m.adminTTL }

// HashToken is the form in which tokens are stored and looked up.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// Create issues a session for an active staff member of businessID. The
// returned value is the only one that carries the raw token.
func (m *Manager) Create(ctx context.Context, staffID, businessID, ownerID string) (model.StaffSession, error) {
	st, err := m.store.StaffByID(ctx, staffID)
	if err != nil {
		if errors.Is(err, outcome.ErrNotFound) {
			return model.StaffSession{}, outcome.NotFound("staff_not_found")
		}
		return model.StaffSession{}, outcome.Internal(err)
	}
	if st.BusinessID != businessID {
		return model.StaffSession{}, outcome.NotFound("staff_not_found")
	}
	if !st.IsActive {
		return model.StaffSession{}, outcome.Conflict("staff_inactive")
	}
	token, err := ids.Token()
	if err != nil {
		return model.StaffSession{}, outcome.Internal(err)
	}
	s := model.StaffSession{
		ID:         ids.New(),
		StaffID:    st.ID,
		BusinessID: businessID,
		SignedInBy: ownerID,
		TokenHash:  HashToken(token),
		SignedInAt: m.now().UTC(),
		IsActive:   true,
	}
	if err := m.store.CreateSession(ctx, s); err != nil {
		return model.StaffSession{}, outcome.Internal(fmt.Errorf("create session: %w", err))
	}
	obs.SessionsCreated.Inc()
	s.Token = token
	return s, nil
}

// Terminate ends sessionID on behalf of ownerID. Ending an already ended
// session reports false without error.
func (m *Manager) Terminate(ctx context.Context, ownerID, sessionID, reason string) (bool, error) {
	s, err := m.owned(ctx, ownerID, sessionID)
	if err != nil {
		return false, err
	}
	if !s.IsActive {
		return false, nil
	}
	return m.end(ctx, s, reason)
}

// Get returns sessionID when it belongs to ownerID's business.
func (m *Manager) Get(ctx context.Context, ownerID, sessionID string) (model.StaffSession, error) {
	return m.owned(ctx, ownerID, sessionID)
}

// BulkResult counts per-item outcomes of BulkTerminate.
type BulkResult struct {
	Terminated []model.StaffSession `json:"-"`
	Unchanged  int                  `json:"unchanged"`
	Failed     int                  `json:"failed"`
}

// Count is the number of sessions this call ended.
func (r BulkResult) Count() int { return len(r.Terminated) }

// BulkTerminate ends each session independently; one failure does not stop the
// rest. Failures are counted in the result, never returned.
func (m *Manager) BulkTerminate(ctx context.Context, ownerID string, sessionIDs []string, reason string) BulkResult {
	var res BulkResult
	for _, id := range sessionIDs {
		s, err := m.owned(ctx, ownerID, id)
		if err != nil {
			res.Failed++
			continue
		}
		if !s.IsActive {
			res.Unchanged++
			continue
		}
		ok, err := m.end(ctx, s, reason)
		switch {
		case err != nil:
			res.Failed++
		case ok:
			res.Terminated = append(res.Terminated, s)
		default:
			res.Unchanged++
		}
	}
	return res
}

// Active lists the business's active sessions.
func (m *Manager) Active(ctx context.Context, businessID string) ([]model.StaffSession, error) {
	list, err := m.store.ActiveSessions(ctx, businessID)
	if err != nil {
		return nil, outcome.Internal(err)
	}
	return list, nil
}

// TerminateForStaff ends every active session of staffID. Per-session
// failures are counted rather than returned.
func (m *Manager) TerminateForStaff(ctx context.Context, businessID, staffID, reason string) ([]model.StaffSession, int, error) {
	list, err := m.store.ActiveSessionsForStaff(ctx, businessID, staffID)
	if err != nil {
		return nil, 0, outcome.Internal(err)
	}
	var ended []model.StaffSession
	failed := 0
	for _, s := range list {
		ok, err := m.end(ctx, s, reason)
		if err != nil {
			failed++
			m.log.Warn("session_cascade_failed",
				zap.String("session_id", s.ID),
				zap.String("staff_id", staffID),
				zap.String("reason", reason),
				zap.Error(err))
			continue
		}
		if ok {
			ended = append(ended, s)
		}
	}
	return ended, failed, nil
}

// Authenticate resolves a staff session token.
func (m *Manager) Authenticate(ctx context.Context, token string) (model.StaffSession, error) {
	if token == "" {
		return model.StaffSession{}, outcome.Unauthenticated()
	}
	s, err := m.store.SessionByTokenHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, outcome.ErrNotFound) {
			return model.StaffSession{}, outcome.Unauthenticated()
		}
		return model.StaffSession{}, outcome.Internal(err)
	}
	if !s.IsActive {
		return model.StaffSession{}, outcome.Unauthenticated()
	}
	if m.expired(s) {
		if _, err := m.end(ctx, s, ReasonExpired); err == nil {
			m.recordExpired(ctx, s)
		}
		return model.StaffSession{}, outcome.Unauthenticated()
	}
	return s, nil
}

// SignOut ends the session identified by token. Unknown or ended tokens are a no-op.
func (m *Manager) SignOut(ctx context.Context, token string) (model.StaffSession, bool, error) {
	if token == "" {
		return model.StaffSession{}, false, nil
	}
	s, err := m.store.SessionByTokenHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, outcome.ErrNotFound) {
			return model.StaffSession{}, false, nil
		}
		return model.StaffSession{}, false, outcome.Internal(err)
	}
	if !s.IsActive {
		return s, false, nil
	}
	ok, err := m.end(ctx, s, ReasonSignedOut)
	return s, ok, err
}

// ExpiresAt is when s stops authenticating.
func (m *Manager) ExpiresAt(s model.StaffSession) time.Time {
	return s.SignedInAt.Add(m.staffTTL)
}

func (m *Manager) expired(s model.StaffSession) bool {
	return !m.now().Before(m.ExpiresAt(s))
}

func (m *Manager) owned(ctx context.Context, ownerID, sessionID string) (model.StaffSession, error) {
	s, err := m.store.SessionByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, outcome.ErrNotFound) {
			return model.StaffSession{}, outcome.NotFound("session_not_found")
		}
		return model.StaffSession{}, outcome.Internal(err)
	}
	if s.BusinessID != ownerID {
		return model.StaffSession{}, outcome.NotFound("session_not_found")
	}
	return s, nil
}

func (m *Manager) end(ctx context.Context, s model.StaffSession, reason string) (bool, error) {
	ok, err := m.store.EndSession(ctx, s.ID, m.now().UTC(), reason)
	if err != nil {
		return false, outcome.Internal(fmt.Errorf("end session %s: %w", s.ID, err))
	}
	if ok {
		obs.SessionsTerminated.WithLabelValues(reason).Inc()
	}
	return ok, nil
}

func (m *Manager) recordExpired(ctx context.Context, s model.StaffSession) {
	if m.activity == nil {
		return
	}
	m.activity.RecordActivity(ctx, model.ActivityEntry{
		BusinessID:  s.BusinessID,
		StaffID:     s.StaffID,
		Action:      audit.ActionSessionExpired,
		PerformedBy: "system",
		Details: map[string]any{
			"session_id":   s.ID,
			"signed_in_at": s.SignedInAt,
		},
	})
}
