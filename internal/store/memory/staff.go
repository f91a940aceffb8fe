package memory

import (
	"context"
	"sort"
	"strings"

	"mise.app/internal/model"
	"mise.app/internal/outcome"
)

func (s *Store) CreateStaff(_ context.Context, st model.Staff) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.staff[st.ID]; ok {
		return outcome.Conflict("staff_exists")
	}
	if err := s.checkUniqueLocked(st); err != nil {
		return err
	}
	s.staff[st.ID] = st.Clone()
	return nil
}

func (s *Store) StaffByID(_ context.Context, id string) (model.Staff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.staff[id]
	if !ok {
		return model.Staff{}, outcome.NotFound("staff_not_found")
	}
	return st.Clone(), nil
}

func (s *Store) UpdateStaff(_ context.Context, st model.Staff) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.staff[st.ID]
	if !ok || prev.BusinessID != st.BusinessID {
		return outcome.NotFound("staff_not_found")
	}
	if err := s.checkUniqueLocked(st); err != nil {
		return err
	}
	s.staff[st.ID] = st.Clone()
	return nil
}

func (s *Store) DeleteStaff(_ context.Context, businessID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.staff[id]
	if !ok || st.BusinessID != businessID {
		return outcome.NotFound("staff_not_found")
	}
	delete(s.staff, id)
	return nil
}

func (s *Store) ListStaff(_ context.Context, businessID string, f model.StaffFilter) ([]model.Staff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	search := norm(f.Search)
	var out []model.Staff
	for _, st := range s.staff {
		if st.BusinessID != businessID {
			continue
		}
		if f.Role != "" && st.Role != f.Role {
			continue
		}
		if f.ActiveOnly && !st.IsActive {
			continue
		}
		if search != "" && !matchesSearch(st, search) {
			continue
		}
		out = append(out, st.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) FindStaffByIdentifier(_ context.Context, businessID, identifier string) (model.Staff, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id := norm(identifier)
	if id == "" {
		return model.Staff{}, outcome.NotFound("staff_not_found")
	}
	for _, st := range s.staff {
		if st.BusinessID != businessID {
			continue
		}
		if norm(st.Email) == id || norm(st.Username) == id || strings.TrimSpace(st.Phone) == strings.TrimSpace(identifier) {
			return st.Clone(), nil
		}
	}
	return model.Staff{}, outcome.NotFound("staff_not_found")
}

func (s *Store) CountByRole(_ context.Context, businessID string, role model.Role) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, st := range s.staff {
		if st.BusinessID == businessID && st.Role == role && st.IsActive {
			n++
		}
	}
	return n, nil
}

// checkUniqueLocked mirrors the per-business unique indexes of the SQL schema.
func (s *Store) checkUniqueLocked(st model.Staff) error {
	for _, other := range s.staff {
		if other.ID == st.ID || other.BusinessID != st.BusinessID {
			continue
		}
		if st.Email != "" && norm(other.Email) == norm(st.Email) {
			return outcome.Conflict("email_exists")
		}
		if st.Phone != "" && strings.TrimSpace(other.Phone) == strings.TrimSpace(st.Phone) {
			return outcome.Conflict("phone_exists")
		}
		if st.Username != "" && norm(other.Username) == norm(st.Username) {
			return outcome.Conflict("username_exists")
		}
	}
	return nil
}

func matchesSearch(st model.Staff, q string) bool {
	for _, v := range []string{st.FirstName, st.LastName, st.Email, st.Username, st.Phone} {
		if strings.Contains(norm(v), q) {
			return true
		}
	}
	return false
}
