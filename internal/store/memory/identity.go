package memory

import (
	"context"
	"time"

	"mise.app/internal/model"
	"mise.app/internal/outcome"
)

// PutAccount upserts an auth-provider account.
func (s *Store) PutAccount(a model.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[a.ID] = a
}

// PutOwner upserts a business owner row.
func (s *Store) PutOwner(o model.BusinessOwner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.AdminPinHash != nil {
		h := *o.AdminPinHash
		o.AdminPinHash = &h
	}
	s.owners[o.ID] = o
}

// PutPersonalProfile upserts a personal profile row.
func (s *Store) PutPersonalProfile(p model.PersonalProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.personal[p.UserID] = p
}

func (s *Store) Account(_ context.Context, userID string) (model.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[userID]
	if !ok {
		return model.Account{}, outcome.NotFound("account_not_found")
	}
	return a, nil
}

func (s *Store) BusinessOwner(_ context.Context, ownerID string) (model.BusinessOwner, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.owners[ownerID]
	if !ok {
		return model.BusinessOwner{}, outcome.NotFound("owner_not_found")
	}
	if o.AdminPinHash != nil {
		h := *o.AdminPinHash
		o.AdminPinHash = &h
	}
	return o, nil
}

func (s *Store) PersonalProfile(_ context.Context, userID string) (model.PersonalProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.personal[userID]
	if !ok {
		return model.PersonalProfile{}, outcome.NotFound("profile_not_found")
	}
	return p, nil
}

func (s *Store) SetAdminPinHash(_ context.Context, ownerID, hash string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.owners[ownerID]
	if !ok {
		return outcome.NotFound("owner_not_found")
	}
	o.AdminPinHash = &hash
	o.UpdatedAt = at
	s.owners[ownerID] = o
	return nil
}
