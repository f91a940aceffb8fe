package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"mise.app/internal/model"
	"mise.app/internal/rbac"
	"mise.app/internal/staff"
)

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	profile, err := a.identity.ValidateUserProfile(r.Context(), ownerID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOutcome(w, http.StatusOK, "ok", map[string]any{
		"profile":            profile,
		"oauth_callback_url": strings.TrimRight(a.siteURL, "/") + "/auth/callback",
	})
}

type roleView struct {
	Role        model.Role         `json:"role"`
	Permissions []model.Permission `json:"permissions"`
}

type permissionView struct {
	Key         model.Permission `json:"key"`
	Description string           `json:"description"`
}

func (a *API) roles(w http.ResponseWriter, r *http.Request) {
	roles := make([]roleView, 0, len(rbac.Roles()))
	for _, role := range rbac.Roles() {
		roles = append(roles, roleView{Role: role, Permissions: rbac.DefaultPermissions(role)})
	}
	perms := make([]permissionView, 0, len(model.BuiltinPermissions))
	for _, p := range model.BuiltinPermissions {
		perms = append(perms, permissionView{Key: p.Key, Description: p.Description})
	}
	writeOutcome(w, http.StatusOK, "ok", map[string]any{
		"roles":       roles,
		"permissions": perms,
	})
}

func (a *API) listStaff(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := model.StaffFilter{
		Role:   model.Role(strings.TrimSpace(q.Get("role"))),
		Search: strings.TrimSpace(q.Get("q")),
	}
	if v := q.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			writeErrorCode(w, r, http.StatusBadRequest, "invalid_active")
			return
		}
		f.ActiveOnly = active
	}
	list, err := a.staff.List(r.Context(), ownerID(r), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []model.Staff{}
	}
	writeOutcome(w, http.StatusOK, "ok", map[string]any{"staff": list})
}

func (a *API) createStaff(w http.ResponseWriter, r *http.Request) {
	var in staff.NewStaff
	if !decodeBody(w, r, &in) {
		return
	}
	res, err := a.staff.Create(r.Context(), ownerID(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOutcome(w, http.StatusCreated, "staff_created", map[string]any{
		"staff":         res.Staff,
		"generated_pin": res.GeneratedPIN,
		"warnings":      res.Warnings,
	})
}

func (a *API) getStaff(w http.ResponseWriter, r *http.Request) {
	st, err := a.staff.Get(r.Context(), ownerID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOutcome(w, http.StatusOK, "ok", map[string]any{"staff": st})
}

func (a *API) updateStaff(w http.ResponseWriter, r *http.Request) {
	var in staff.Update
	if !decodeBody(w, r, &in) {
		return
	}
	res, err := a.staff.Update(r.Context(), ownerID(r), chi.URLParam(r, "id"), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeUpdate(w, "staff_updated", res)
}

type roleRequest struct {
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

func (a *API) changeRole(w http.ResponseWriter, r *http.Request) {
	var in roleRequest
	if !decodeBody(w, r, &in) {
		return
	}
	res, err := a.staff.ChangeRole(r.Context(), ownerID(r), chi.URLParam(r, "id"), in.Role, in.Permissions)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeUpdate(w, "role_changed", res)
}

func (a *API) deactivateStaff(w http.ResponseWriter, r *http.Request) {
	res, err := a.staff.Deactivate(r.Context(), ownerID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeUpdate(w, "staff_deactivated", res)
}

func (a *API) activateStaff(w http.ResponseWriter, r *http.Request) {
	res, err := a.staff.Activate(r.Context(), ownerID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeUpdate(w, "staff_activated", res)
}

func (a *API) deleteStaff(w http.ResponseWriter, r *http.Request) {
	res, err := a.staff.Delete(r.Context(), ownerID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOutcome(w, http.StatusOK, "staff_deleted", map[string]any{
		"staff_id":            res.StaffID,
		"sessions_terminated": res.SessionsTerminated,
		"cascade_failed":      res.CascadeFailed,
	})
}

func (a *API) resetPin(w http.ResponseWriter, r *http.Request) {
	res, err := a.staff.ResetPin(r.Context(), ownerID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOutcome(w, http.StatusOK, "pin_reset", map[string]any{
		"staff_id": res.StaffID,
		"pin":      res.PIN,
	})
}

type pinRequest struct {
	PIN string `json:"pin"`
}

// signInStaff signs a staff member in on the owner's device and hands the
// device the staff cookie.
func (a *API) signInStaff(w http.ResponseWriter, r *http.Request) {
	var in pinRequest
	if !decodeBody(w, r, &in) {
		return
	}
	res, err := a.staff.SignIn(r.Context(), ownerID(r), staff.SignInRequest{
		StaffID: chi.URLParam(r, "id"),
		PIN:     in.PIN,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	a.writeSignIn(w, res)
}

func (a *API) activity(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := model.ActivityFilter{
		StaffID: strings.TrimSpace(q.Get("staff_id")),
		Action:  strings.TrimSpace(q.Get("action")),
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			writeErrorCode(w, r, http.StatusBadRequest, "invalid_limit")
			return
		}
		f.Limit = n
	}
	list, err := a.staff.Activity(r.Context(), ownerID(r), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []model.ActivityEntry{}
	}
	writeOutcome(w, http.StatusOK, "ok", map[string]any{"activity": list})
}

func writeUpdate(w http.ResponseWriter, code string, res staff.UpdateResult) {
	writeOutcome(w, http.StatusOK, code, map[string]any{
		"staff":               res.Staff,
		"sessions_terminated": res.SessionsTerminated,
		"cascade_failed":      res.CascadeFailed,
		"warnings":            res.Warnings,
	})
}
