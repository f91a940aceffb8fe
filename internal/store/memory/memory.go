// Package memory is an in-process implementation of every store interface.
// It backs tests and single-instance development runs.
package memory

import (
	"strings"
	"sync"

	"mise.app/internal/model"
)

// Store keeps all rows in maps guarded by one RWMutex. Values are copied on
// the way in and out so callers never share state with the store.
type Store struct {
	mu sync.RWMutex

	accounts map[string]model.Account
	owners   map[string]model.BusinessOwner
	personal map[string]model.PersonalProfile

	staff map[string]model.Staff

	sessions       map[string]model.StaffSession
	sessionByToken map[string]string
	admin          map[string]model.AdminSession
	adminByToken   map[string]string

	activity []model.ActivityEntry
	security []model.SecurityEvent
}

func New() *Store {
	return &Store{
		accounts:       make(map[string]model.Account),
		owners:         make(map[string]model.BusinessOwner),
		personal:       make(map[string]model.PersonalProfile),
		staff:          make(map[string]model.Staff),
		sessions:       make(map[string]model.StaffSession),
		sessionByToken: make(map[string]string),
		admin:          make(map[string]model.AdminSession),
		adminByToken:   make(map[string]string),
	}
}

func (s *Store) Name() string { return "memory" }

func norm(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func copyDetails(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
