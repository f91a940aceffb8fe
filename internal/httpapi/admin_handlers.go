package httpapi

import (
	"net/http"
	"time"
)

func (a *API) adminPinStatus(w http.ResponseWriter, r *http.Request) {
	st, err := a.staff.AdminStatus(r.Context(), ownerID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOutcome(w, http.StatusOK, "ok", map[string]any{"has_admin_pin": st.HasAdminPin})
}

type setAdminPinRequest struct {
	CurrentPIN string `json:"current_pin"`
	NewPIN     string `json:"new_pin"`
}

// setAdminPin creates or rotates the owner's admin PIN. Rotation ends every
// admin session, so the cookie goes too.
func (a *API) setAdminPin(w http.ResponseWriter, r *http.Request) {
	var in setAdminPinRequest
	if !decodeBody(w, r, &in) {
		return
	}
	if err := a.staff.SetAdminPin(r.Context(), ownerID(r), in.CurrentPIN, in.NewPIN); err != nil {
		writeError(w, r, err)
		return
	}
	a.clearCookie(w, adminCookie)
	writeOutcome(w, http.StatusOK, "admin_pin_set", nil)
}

type verifyAdminPinRequest struct {
	PIN         string `json:"pin"`
	RequiredFor string `json:"required_for"`
}

func (a *API) verifyAdminPin(w http.ResponseWriter, r *http.Request) {
	var in verifyAdminPinRequest
	if !decodeBody(w, r, &in) {
		return
	}
	grant, err := a.staff.VerifyAdminPin(r.Context(), ownerID(r), in.PIN, in.RequiredFor)
	if err != nil {
		writeError(w, r, err)
		return
	}
	ttl := time.Until(grant.ExpiresAt)
	if ttl <= 0 {
		ttl = adminCookieTTL
	}
	a.setCookie(w, adminCookie, grant.Token, ttl)
	writeOutcome(w, http.StatusOK, "admin_verified", map[string]any{
		"required_for": grant.RequiredFor,
		"expires_at":   grant.ExpiresAt,
	})
}
