package memory

import (
	"context"

	"mise.app/internal/model"
)

const defaultActivityLimit = 100

func (s *Store) AppendActivity(_ context.Context, e model.ActivityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.Details = copyDetails(e.Details)
	s.activity = append(s.activity, e)
	return nil
}

func (s *Store) AppendSecurity(_ context.Context, ev model.SecurityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev.Details = copyDetails(ev.Details)
	s.security = append(s.security, ev)
	return nil
}

// ListActivity returns newest entries first.
func (s *Store) ListActivity(_ context.Context, businessID string, f model.ActivityFilter) ([]model.ActivityEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	limit := f.Limit
	if limit <= 0 {
		limit = defaultActivityLimit
	}
	var out []model.ActivityEntry
	for i := len(s.activity) - 1; i >= 0 && len(out) < limit; i-- {
		e := s.activity[i]
		if e.BusinessID != businessID {
			continue
		}
		if f.StaffID != "" && e.StaffID != f.StaffID {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		e.Details = copyDetails(e.Details)
		out = append(out, e)
	}
	return out, nil
}

// Activity returns every recorded activity entry in insertion order.
func (s *Store) Activity() []model.ActivityEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.ActivityEntry, len(s.activity))
	copy(out, s.activity)
	return out
}

// SecurityEvents returns every recorded security event in insertion order.
func (s *Store) SecurityEvents() []model.SecurityEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.SecurityEvent, len(s.security))
	copy(out, s.security)
	return out
}
