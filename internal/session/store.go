package session

import (
	"context"
	"time"

	"mise.app/internal/model"
)

// Store persists staff and admin sessions. Lookups report missing rows with
// an error matching outcome.ErrNotFound.
type Store interface {
	StaffByID(ctx context.Context, id string) (model.Staff, error)

	CreateSession(ctx context.Context, s model.StaffSession) error
	SessionByID(ctx context.Context, id string) (model.StaffSession, error)
	SessionByTokenHash(ctx context.Context, hash string) (model.StaffSession, error)
	// EndSession flips an active session to inactive. It reports false, and
	// leaves the row untouched, when the session was already inactive.
	EndSession(ctx context.Context, id string, at time.Time, reason string) (bool, error)
	ActiveSessions(ctx context.Context, businessID string) ([]model.StaffSession, error)
	ActiveSessionsForStaff(ctx context.Context, businessID, staffID string) ([]model.StaffSession, error)
	ActiveSessionsBefore(ctx context.Context, cutoff time.Time) ([]model.StaffSession, error)

	CreateAdminSession(ctx context.Context, s model.AdminSession) error
	AdminSessionByTokenHash(ctx context.Context, hash string) (model.AdminSession, error)
	DeactivateAdminSessions(ctx context.Context, ownerID string) (int, error)
}

// ActivityRecorder receives activity entries. Implementations must not block.
type ActivityRecorder interface {
	RecordActivity(ctx context.Context, entry model.ActivityEntry)
}
