package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"mise.app/internal/model"
	"mise.app/internal/session"
	"mise.app/internal/staff"
)

func (a *API) listSessions(w http.ResponseWriter, r *http.Request) {
	list, err := a.staff.ActiveSessions(r.Context(), ownerID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list == nil {
		list = []model.StaffSession{}
	}
	writeOutcome(w, http.StatusOK, "ok", map[string]any{"sessions": list})
}

func (a *API) terminateSession(w http.ResponseWriter, r *http.Request) {
	ended, err := a.staff.TerminateSession(r.Context(), ownerID(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	code := "session_terminated"
	if !ended {
		code = "session_already_ended"
	}
	writeOutcome(w, http.StatusOK, code, nil)
}

type terminateRequest struct {
	SessionIDs []string `json:"session_ids"`
}

func (a *API) terminateSessions(w http.ResponseWriter, r *http.Request) {
	var in terminateRequest
	if !decodeBody(w, r, &in) {
		return
	}
	res, err := a.staff.TerminateSessions(r.Context(), ownerID(r), in.SessionIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeBulk(w, "sessions_terminated", res)
}

func (a *API) signOutAll(w http.ResponseWriter, r *http.Request) {
	res, err := a.staff.SignOutAll(r.Context(), ownerID(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeBulk(w, "signed_out_all", res)
}

func writeBulk(w http.ResponseWriter, code string, res session.BulkResult) {
	writeOutcome(w, http.StatusOK, code, map[string]any{
		"terminated": res.Count(),
		"unchanged":  res.Unchanged,
		"failed":     res.Failed,
	})
}

type businessRequest struct {
	BusinessID string `json:"business_id"`
}

// bindBusiness scopes this device to a business for staff login.
func (a *API) bindBusiness(w http.ResponseWriter, r *http.Request) {
	var in businessRequest
	if !decodeBody(w, r, &in) {
		return
	}
	owner, err := a.staff.BindBusiness(r.Context(), in.BusinessID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	a.setCookie(w, businessCookie, owner.ID, businessCookieTTL)
	writeOutcome(w, http.StatusOK, "business_bound", map[string]any{
		"business_id":   owner.ID,
		"business_name": owner.BusinessName,
	})
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	PIN        string `json:"pin"`
}

func (a *API) staffLogin(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if !decodeBody(w, r, &in) {
		return
	}
	var businessID string
	if c, err := r.Cookie(businessCookie); err == nil {
		businessID = c.Value
	}
	res, err := a.staff.Login(r.Context(), staff.LoginRequest{
		BusinessID: businessID,
		Identifier: in.Identifier,
		PIN:        in.PIN,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	a.writeSignIn(w, res)
}

func (a *API) writeSignIn(w http.ResponseWriter, res staff.SignInResult) {
	ttl := time.Until(res.ExpiresAt)
	if ttl <= 0 {
		ttl = staffCookieTTL
	}
	a.setCookie(w, staffCookie, res.Token, ttl)
	writeOutcome(w, http.StatusOK, "signed_in", map[string]any{
		"staff":      res.Staff,
		"session":    res.Session,
		"expires_at": res.ExpiresAt,
	})
}

func (a *API) staffLogout(w http.ResponseWriter, r *http.Request) {
	if err := a.staff.Logout(r.Context(), staffToken(r)); err != nil {
		writeError(w, r, err)
		return
	}
	a.clearCookie(w, staffCookie)
	writeOutcome(w, http.StatusOK, "signed_out", nil)
}

func (a *API) staffMe(w http.ResponseWriter, r *http.Request) {
	st, sess, err := a.staff.Me(r.Context(), staffToken(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOutcome(w, http.StatusOK, "ok", map[string]any{
		"staff":   st,
		"session": sess,
	})
}

type changePinRequest struct {
	CurrentPIN string `json:"current_pin"`
	NewPIN     string `json:"new_pin"`
}

func (a *API) staffChangePin(w http.ResponseWriter, r *http.Request) {
	var in changePinRequest
	if !decodeBody(w, r, &in) {
		return
	}
	if err := a.staff.ChangePin(r.Context(), staffToken(r), in.CurrentPIN, in.NewPIN); err != nil {
		writeError(w, r, err)
		return
	}
	writeOutcome(w, http.StatusOK, "pin_changed", nil)
}
