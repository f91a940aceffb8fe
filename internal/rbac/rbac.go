// Package rbac holds the closed role and permission vocabulary and the rules
// that decide when a staff change must end that staff member's sessions.
package rbac

import (
	"slices"
	"strings"

	"mise.app/internal/model"
	"mise.app/internal/outcome"
)

var roleDefaults = map[model.Role][]model.Permission{
	model.RoleReception: {
		model.PermOrdersView, model.PermOrdersCreate, model.PermTablesManage, model.PermReservationsManage,
		model.PermCustomersView, model.PermCustomersManage, model.PermMenuView, model.PermPaymentsProcess,
	},
	model.RoleKitchen: {
		model.PermOrdersView, model.PermOrdersUpdate, model.PermKitchenTickets, model.PermMenuView, model.PermInventoryView,
	},
	model.RoleBar: {
		model.PermOrdersView, model.PermOrdersUpdate, model.PermBarTickets, model.PermMenuView, model.PermInventoryView,
	},
	model.RoleAccountant: {
		model.PermReportsView, model.PermReportsFinancial, model.PermPaymentsRefund, model.PermExpensesManage, model.PermOrdersView,
	},
	model.RoleStorekeeper: {
		model.PermInventoryView, model.PermInventoryManage, model.PermInventoryReceive, model.PermMenuView,
	},
	model.RoleWaiter: {
		model.PermOrdersView, model.PermOrdersCreate, model.PermOrdersUpdate, model.PermTablesManage,
		model.PermMenuView, model.PermPaymentsProcess,
	},
}

var roleOrder = []model.Role{
	model.RoleReception, model.RoleKitchen, model.RoleBar,
	model.RoleAccountant, model.RoleStorekeeper, model.RoleWaiter,
}

var vocabulary = func() map[model.Permission]struct{} {
	m := make(map[model.Permission]struct{}, len(model.BuiltinPermissions))
	for _, p := range model.BuiltinPermissions {
		m[p.Key] = struct{}{}
	}
	return m
}()

// Roles lists every role in display order.
func Roles() []model.Role {
	return slices.Clone(roleOrder)
}

// ParseRole accepts a role name case-insensitively.
func ParseRole(s string) (model.Role, error) {
	r := model.Role(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := roleDefaults[r]; !ok {
		return "", outcome.Validation("role")
	}
	return r, nil
}

func ValidRole(r model.Role) bool {
	_, ok := roleDefaults[r]
	return ok
}

// DefaultPermissions returns a sorted copy of the role's default set.
func DefaultPermissions(r model.Role) []model.Permission {
	perms := slices.Clone(roleDefaults[r])
	slices.Sort(perms)
	return perms
}

// ValidPermission reports whether p is in the canonical vocabulary.
func ValidPermission(p model.Permission) bool {
	_, ok := vocabulary[p]
	return ok
}

// ParsePermissions validates raw grants against the vocabulary. Every unknown
// entry is reported, not just the first.
func ParsePermissions(raw []string) ([]model.Permission, error) {
	var v outcome.Validator
	out := make([]model.Permission, 0, len(raw))
	for _, s := range raw {
		p := model.Permission(strings.TrimSpace(s))
		if !ValidPermission(p) {
			v.Add("permissions:" + s)
			continue
		}
		out = append(out, p)
	}
	if err := v.Err(); err != nil {
		return nil, err
	}
	return normalize(out), nil
}

// ComputePermissions is the role defaults plus grants, deduplicated and sorted.
func ComputePermissions(r model.Role, grants []model.Permission) []model.Permission {
	all := append(slices.Clone(roleDefaults[r]), grants...)
	return normalize(all)
}

// CustomGrants returns the part of perms not implied by the role.
func CustomGrants(r model.Role, perms []model.Permission) []model.Permission {
	defaults := roleDefaults[r]
	var out []model.Permission
	for _, p := range normalize(perms) {
		if !slices.Contains(defaults, p) {
			out = append(out, p)
		}
	}
	return out
}

// EqualPermissions compares two sets ignoring order and duplicates.
func EqualPermissions(a, b []model.Permission) bool {
	return slices.Equal(normalize(a), normalize(b))
}

func normalize(perms []model.Permission) []model.Permission {
	out := slices.Clone(perms)
	slices.Sort(out)
	return slices.Compact(out)
}
