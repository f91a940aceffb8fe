package rbac

import (
	_ "embed"
	"fmt"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"

	"mise.app/internal/model"
)

//go:embed policy.toml
var defaultPolicy string

// Policy holds soft constraints on role assignment.
type Policy struct {
	BusinessTypes map[string][]model.Role `toml:"business_types"`
	Headcount     map[model.Role]int      `toml:"headcount"`
}

// Warning is an advisory result of a policy check.
type Warning struct {
	Code    string     `json:"code"`
	Role    model.Role `json:"role"`
	Limit   int        `json:"limit,omitempty"`
	Current int        `json:"current,omitempty"`
}

// DefaultPolicy returns the embedded policy.
func DefaultPolicy() Policy {
	p, err := ParsePolicy(defaultPolicy)
	if err != nil {
		panic(fmt.Sprintf("rbac: embedded policy: %v", err))
	}
	return p
}

// ParsePolicy decodes a TOML policy document.
func ParsePolicy(data string) (Policy, error) {
	var p Policy
	if _, err := toml.Decode(data, &p); err != nil {
		return Policy{}, fmt.Errorf("decode policy: %w", err)
	}
	return p, p.validate()
}

// LoadPolicy reads a policy file, or the embedded default when path is empty.
func LoadPolicy(path string) (Policy, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultPolicy(), nil
	}
	var p Policy
	if _, err := toml.DecodeFile(path, &p); err != nil {
		return Policy{}, fmt.Errorf("load policy %s: %w", path, err)
	}
	return p, p.validate()
}

func (p Policy) validate() error {
	for bt, roles := range p.BusinessTypes {
		for _, r := range roles {
			if !ValidRole(r) {
				return fmt.Errorf("business type %s: unknown role %q", bt, r)
			}
		}
	}
	for r := range p.Headcount {
		if !ValidRole(r) {
			return fmt.Errorf("headcount: unknown role %q", r)
		}
	}
	return nil
}

// Check returns warnings for assigning role in a business of businessType that
// already has current staff in that role.
func (p Policy) Check(role model.Role, businessType string, current int) []Warning {
	var out []Warning
	businessType = strings.ToLower(strings.TrimSpace(businessType))
	if allowed, ok := p.BusinessTypes[businessType]; ok && !slices.Contains(allowed, role) {
		out = append(out, Warning{Code: "role_unusual_for_business_type", Role: role})
	}
	if limit, ok := p.Headcount[role]; ok && limit > 0 && current+1 > limit {
		out = append(out, Warning{Code: "role_headcount_exceeded", Role: role, Limit: limit, Current: current})
	}
	return out
}
