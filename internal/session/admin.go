package session

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"mise.app/internal/ids"
	"mise.app/internal/model"
	"mise.app/internal/outcome"
)

// CreateAdmin issues a 30 minute elevated grant for ownerID.
func (m *Manager) CreateAdmin(ctx context.Context, ownerID, requiredFor string) (model.AdminSession, error) {
	token, err := ids.Token()
	if err != nil {
		return model.AdminSession{}, outcome.Internal(err)
	}
	requiredFor = strings.TrimSpace(requiredFor)
	if requiredFor == "" {
		requiredFor = PurposeAny
	}
	now := m.now().UTC()
	s := model.AdminSession{
		ID:              ids.New(),
		BusinessOwnerID: ownerID,
		TokenHash:       HashToken(token),
		RequiredFor:     requiredFor,
		CreatedAt:       now,
		ExpiresAt:       now.Add(m.adminTTL),
		IsActive:        true,
	}
	if err := m.store.CreateAdminSession(ctx, s); err != nil {
		return model.AdminSession{}, outcome.Internal(fmt.Errorf("create admin session: %w", err))
	}
	s.Token = token
	return s, nil
}

// RequireAdmin checks that token is a live admin grant of ownerID covering action.
func (m *Manager) RequireAdmin(ctx context.Context, ownerID, token, action string) error {
	if token == "" {
		return outcome.Denied("admin_session_required")
	}
	s, err := m.store.AdminSessionByTokenHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, outcome.ErrNotFound) {
			return outcome.Denied("admin_session_required")
		}
		return outcome.Internal(err)
	}
	if !s.IsActive || s.BusinessOwnerID != ownerID || !m.now().Before(s.ExpiresAt) {
		return outcome.Denied("admin_session_required")
	}
	if s.RequiredFor != PurposeAny && s.RequiredFor != action {
		return outcome.Denied("admin_session_required")
	}
	return nil
}

// InvalidateAdmin ends every admin grant of ownerID.
func (m *Manager) InvalidateAdmin(ctx context.Context, ownerID string) (int, error) {
	n, err := m.store.DeactivateAdminSessions(ctx, ownerID)
	if err != nil {
		return 0, outcome.Internal(err)
	}
	return n, nil
}
