package rbac

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/require"

	"mise.app/internal/model"
	"mise.app/internal/outcome"
)

func TestEveryRoleHasValidDefaults(t *testing.T) {
	require.Len(t, Roles(), 6)
	for _, r := range Roles() {
		perms := DefaultPermissions(r)
		require.NotEmpty(t, perms, r)
		require.True(t, slices.IsSorted(perms))
		for _, p := range perms {
			require.True(t, ValidPermission(p), "%s default %s", r, p)
		}
	}
}

func TestParseRole(t *testing.T) {
	r, err := ParseRole(" Kitchen ")
	require.NoError(t, err)
	require.Equal(t, model.RoleKitchen, r)

	_, err = ParseRole("manager")
	require.ErrorIs(t, err, outcome.ErrValidationFailed)
}

func TestParsePermissionsListsEveryInvalidEntry(t *testing.T) {
	_, err := ParsePermissions([]string{"orders.view", "orders.fly", "menu.view", "root"})
	var oe *outcome.Error
	require.True(t, errors.As(err, &oe))
	require.Equal(t, []string{"permissions:orders.fly", "permissions:root"}, oe.Invalid)

	perms, err := ParsePermissions([]string{"menu.view", "orders.view", "menu.view"})
	require.NoError(t, err)
	require.Equal(t, []model.Permission{model.PermMenuView, model.PermOrdersView}, perms)
}

func TestComputePermissionsIsSupersetOfDefaults(t *testing.T) {
	grants := []model.Permission{model.PermReportsView, model.PermOrdersView, model.PermReportsView}
	for _, r := range Roles() {
		got := ComputePermissions(r, grants)
		for _, p := range DefaultPermissions(r) {
			require.Contains(t, got, p)
		}
		for _, p := range grants {
			require.Contains(t, got, p)
		}
		require.Equal(t, got, slices.Compact(slices.Clone(got)), "no duplicates")
	}
}

func TestCustomGrants(t *testing.T) {
	perms := ComputePermissions(model.RoleKitchen, []model.Permission{model.PermReportsView})
	require.Equal(t, []model.Permission{model.PermReportsView}, CustomGrants(model.RoleKitchen, perms))
}

func TestEqualPermissionsIgnoresOrder(t *testing.T) {
	a := []model.Permission{model.PermMenuView, model.PermOrdersView}
	b := []model.Permission{model.PermOrdersView, model.PermMenuView, model.PermMenuView}
	require.True(t, EqualPermissions(a, b))
	require.False(t, EqualPermissions(a, []model.Permission{model.PermMenuView}))
	require.True(t, EqualPermissions(nil, []model.Permission{}))
}

func TestDiff(t *testing.T) {
	base := model.Staff{
		Role:        model.RoleWaiter,
		Permissions: DefaultPermissions(model.RoleWaiter),
		IsActive:    true,
	}

	roleChange := base.Clone()
	roleChange.Role = model.RoleBar
	roleChange.Permissions = DefaultPermissions(model.RoleBar)
	cs := Diff(base, roleChange)
	require.True(t, cs.RoleChanged)
	require.True(t, cs.TerminateSessions)
	require.Equal(t, ReasonRoleChanged, cs.Reason)
	require.Equal(t, model.RoleWaiter, cs.OldRole)
	require.Equal(t, model.RoleBar, cs.NewRole)

	permOnly := base.Clone()
	permOnly.Permissions = ComputePermissions(model.RoleWaiter, []model.Permission{model.PermReportsView})
	cs = Diff(base, permOnly)
	require.True(t, cs.PermissionsChanged)
	require.False(t, cs.TerminateSessions)

	reordered := base.Clone()
	slices.Reverse(reordered.Permissions)
	require.False(t, Diff(base, reordered).PermissionsChanged)

	deactivated := base.Clone()
	deactivated.IsActive = false
	cs = Diff(base, deactivated)
	require.True(t, cs.Deactivated)
	require.True(t, cs.TerminateSessions)
	require.Equal(t, ReasonStaffDeactivated, cs.Reason)

	cs = Diff(deactivated, base)
	require.True(t, cs.Activated)
	require.False(t, cs.TerminateSessions)
}

func TestDefaultPolicyWarnings(t *testing.T) {
	p := DefaultPolicy()

	require.Empty(t, p.Check(model.RoleKitchen, "restaurant", 0))

	w := p.Check(model.RoleBar, "bakery", 0)
	require.Len(t, w, 1)
	require.Equal(t, "role_unusual_for_business_type", w[0].Code)

	w = p.Check(model.RoleAccountant, "restaurant", 3)
	require.Len(t, w, 1)
	require.Equal(t, "role_headcount_exceeded", w[0].Code)
	require.Equal(t, 3, w[0].Limit)

	require.Empty(t, p.Check(model.RoleBar, "unknown_type", 0))
}

func TestLoadPolicyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.toml")
	require.NoError(t, os.WriteFile(path, []byte("[headcount]\nwaiter = 1\n"), 0o600))

	p, err := LoadPolicy(path)
	require.NoError(t, err)
	require.Len(t, p.Check(model.RoleWaiter, "", 1), 1)

	require.NoError(t, os.WriteFile(path, []byte("[headcount]\nchef = 1\n"), 0o600))
	_, err = LoadPolicy(path)
	require.Error(t, err)
}
