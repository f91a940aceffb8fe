package staff

import (
	"context"

	"mise.app/internal/audit"
	"mise.app/internal/model"
	"mise.app/internal/session"
)

// ActiveSessions lists the owner's active staff sessions.
func (s *Service) ActiveSessions(ctx context.Context, ownerID string) ([]model.StaffSession, error) {
	owner, err := s.owner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return s.sessions.Active(ctx, owner.ID)
}

// TerminateSession ends one session. Ending an already ended session is not an error.
func (s *Service) TerminateSession(ctx context.Context, ownerID, sessionID string) (bool, error) {
	owner, err := s.owner(ctx, ownerID)
	if err != nil {
		return false, err
	}
	sess, err := s.sessions.Get(ctx, owner.ID, sessionID)
	if err != nil {
		return false, err
	}
	ok, err := s.sessions.Terminate(ctx, owner.ID, sessionID, session.ReasonOwner)
	if err != nil {
		return false, err
	}
	if ok {
		s.activity(ctx, owner.ID, sess.StaffID, audit.ActionSessionTerminated, owner.ID, map[string]any{
			"session_id": sessionID,
			"reason":     session.ReasonOwner,
		})
	}
	return ok, nil
}

// TerminateSessions ends each listed session independently.
func (s *Service) TerminateSessions(ctx context.Context, ownerID string, sessionIDs []string) (session.BulkResult, error) {
	owner, err := s.owner(ctx, ownerID)
	if err != nil {
		return session.BulkResult{}, err
	}
	res := s.sessions.BulkTerminate(ctx, owner.ID, sessionIDs, session.ReasonOwner)
	s.logBulk(ctx, owner.ID, len(sessionIDs), res)
	return res, nil
}

// SignOutAll ends every active session of the owner's business.
func (s *Service) SignOutAll(ctx context.Context, ownerID string) (session.BulkResult, error) {
	owner, err := s.owner(ctx, ownerID)
	if err != nil {
		return session.BulkResult{}, err
	}
	active, err := s.sessions.Active(ctx, owner.ID)
	if err != nil {
		return session.BulkResult{}, err
	}
	idList := make([]string, 0, len(active))
	for _, sess := range active {
		idList = append(idList, sess.ID)
	}
	res := s.sessions.BulkTerminate(ctx, owner.ID, idList, session.ReasonOwner)
	s.logBulk(ctx, owner.ID, len(idList), res)
	return res, nil
}

func (s *Service) logBulk(ctx context.Context, businessID string, requested int, res session.BulkResult) {
	for _, sess := range res.Terminated {
		s.activity(ctx, businessID, sess.StaffID, audit.ActionSessionTerminated, businessID, map[string]any{
			"session_id": sess.ID,
			"reason":     session.ReasonOwner,
		})
	}
	s.activity(ctx, businessID, "", audit.ActionBulkSignOut, businessID, map[string]any{
		"requested":  requested,
		"terminated": res.Count(),
		"unchanged":  res.Unchanged,
		"failed":     res.Failed,
	})
}
