package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"mise.app/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

// requireOwner authenticates the owner's identity token and attaches the
// admin-session cookie, if any, for the service to check.
func (a *API) requireOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeErrorCode(w, r, http.StatusUnauthorized, "authentication_required")
			return
		}
		userID, err := a.tokens.Verify(token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				writeErrorCode(w, r, http.StatusUnauthorized, "invalid_token")
				return
			}
			writeErrorCode(w, r, http.StatusInternalServerError, "internal")
			return
		}
		ctx := auth.ContextWithUserID(r.Context(), userID)
		if c, err := r.Cookie(adminCookie); err == nil {
			ctx = auth.ContextWithAdminToken(ctx, c.Value)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// staffToken reads the staff session token from its cookie, falling back to
// a bearer header for non-browser clients.
func staffToken(r *http.Request) string {
	if c, err := r.Cookie(staffCookie); err == nil && c.Value != "" {
		return c.Value
	}
	token, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		return ""
	}
	return token
}

func ownerID(r *http.Request) string {
	id, _ := auth.UserIDFromContext(r.Context())
	return id
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
