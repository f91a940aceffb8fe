package memory

import (
	"context"
	"sort"
	"time"

	"mise.app/internal/model"
	"mise.app/internal/outcome"
)

func (s *Store) CreateSession(_ context.Context, sess model.StaffSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessionByToken[sess.TokenHash]; ok {
		return outcome.Conflict("token_exists")
	}
	sess.Token = ""
	s.sessions[sess.ID] = sess
	s.sessionByToken[sess.TokenHash] = sess.ID
	return nil
}

func (s *Store) SessionByID(_ context.Context, id string) (model.StaffSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return model.StaffSession{}, outcome.NotFound("session_not_found")
	}
	return sess, nil
}

func (s *Store) SessionByTokenHash(_ context.Context, hash string) (model.StaffSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.sessionByToken[hash]
	if !ok {
		return model.StaffSession{}, outcome.NotFound("session_not_found")
	}
	return s.sessions[id], nil
}

func (s *Store) EndSession(_ context.Context, id string, at time.Time, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return false, outcome.NotFound("session_not_found")
	}
	if !sess.IsActive {
		return false, nil
	}
	sess.IsActive = false
	sess.SignedOutAt = &at
	sess.EndReason = reason
	s.sessions[id] = sess
	return true, nil
}

func (s *Store) ActiveSessions(_ context.Context, businessID string) ([]model.StaffSession, error) {
	return s.filterSessions(func(sess model.StaffSession) bool {
		return sess.BusinessID == businessID
	}), nil
}

func (s *Store) ActiveSessionsForStaff(_ context.Context, businessID, staffID string) ([]model.StaffSession, error) {
	return s.filterSessions(func(sess model.StaffSession) bool {
		return sess.BusinessID == businessID && sess.StaffID == staffID
	}), nil
}

func (s *Store) ActiveSessionsBefore(_ context.Context, cutoff time.Time) ([]model.StaffSession, error) {
	return s.filterSessions(func(sess model.StaffSession) bool {
		return !sess.SignedInAt.After(cutoff)
	}), nil
}

func (s *Store) filterSessions(keep func(model.StaffSession) bool) []model.StaffSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.StaffSession
	for _, sess := range s.sessions {
		if sess.IsActive && keep(sess) {
			out = append(out, sess)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SignedInAt.Before(out[j].SignedInAt) })
	return out
}

func (s *Store) CreateAdminSession(_ context.Context, sess model.AdminSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess.Token = ""
	s.admin[sess.ID] = sess
	s.adminByToken[sess.TokenHash] = sess.ID
	return nil
}

func (s *Store) AdminSessionByTokenHash(_ context.Context, hash string) (model.AdminSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.adminByToken[hash]
	if !ok {
		return model.AdminSession{}, outcome.NotFound("admin_session_not_found")
	}
	return s.admin[id], nil
}

func (s *Store) DeactivateAdminSessions(_ context.Context, ownerID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, sess := range s.admin {
		if sess.BusinessOwnerID == ownerID && sess.IsActive {
			sess.IsActive = false
			s.admin[id] = sess
			n++
		}
	}
	return n, nil
}
