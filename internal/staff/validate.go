package staff

import (
	"net/mail"
	"regexp"
	"strings"

	"mise.app/internal/model"
	"mise.app/internal/outcome"
	"mise.app/internal/rbac"
)

const maxNameLength = 100

var (
	phonePattern    = regexp.MustCompile(`^\+?[0-9][0-9 ()-]{5,19}$`)
	usernamePattern = regexp.MustCompile(`^[a-z0-9._-]{3,32}$`)
)

func validEmail(v string) bool {
	addr, err := mail.ParseAddress(v)
	return err == nil && addr.Address == v
}

// validateProfile records every invalid profile field of st on v.
func validateProfile(v *outcome.Validator, st model.Staff) {
	v.Check(st.FirstName != "" && len(st.FirstName) <= maxNameLength, "first_name")
	v.Check(st.LastName != "" && len(st.LastName) <= maxNameLength, "last_name")
	v.Check(st.Email != "" || st.Username != "" || st.Phone != "", "contact")
	if st.Email != "" {
		v.Check(validEmail(st.Email), "email")
	}
	if st.Phone != "" {
		v.Check(phonePattern.MatchString(st.Phone), "phone")
	}
	if st.Username != "" {
		v.Check(usernamePattern.MatchString(st.Username), "username")
	}
}

// validateGrants parses raw permission grants, adding invalid entries to v.
func validateGrants(v *outcome.Validator, raw []string) []model.Permission {
	perms, err := rbac.ParsePermissions(raw)
	if err != nil {
		v.Add(outcome.From(err).Invalid...)
		return nil
	}
	return perms
}

func clean(s string) string { return strings.TrimSpace(s) }

func cleanEmail(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
