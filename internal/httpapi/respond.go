package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"mise.app/internal/obs"
	"mise.app/internal/outcome"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeOutcome answers a successful mutation with its outcome code.
func writeOutcome(w http.ResponseWriter, code int, result string, fields map[string]any) {
	payload := map[string]any{"outcome": result}
	for k, v := range fields {
		payload[k] = v
	}
	writeJSON(w, code, payload)
}

func statusFor(k outcome.Kind) int {
	switch k {
	case outcome.KindAuthenticationRequired:
		return http.StatusUnauthorized
	case outcome.KindAuthorizationDenied:
		return http.StatusForbidden
	case outcome.KindValidationFailed:
		return http.StatusBadRequest
	case outcome.KindRateLimited:
		return http.StatusTooManyRequests
	case outcome.KindConflict:
		return http.StatusConflict
	case outcome.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as a machine-readable outcome. Internal causes are
// logged, never returned.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	oe := outcome.From(err)
	status := statusFor(oe.Kind)
	payload := map[string]any{"error": oe.CodeOrKind()}
	if len(oe.Invalid) > 0 {
		payload["invalid"] = oe.Invalid
	}
	if oe.Allowed != nil {
		payload["allowed"] = *oe.Allowed
	}
	if oe.RetryAfter > 0 {
		payload["minutes_remaining"] = oe.MinutesRemaining()
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(oe.RetryAfter.Seconds()))))
	}
	rid := RequestIDFromContext(r.Context())
	if rid != "" {
		payload["request_id"] = rid
	}
	if oe.Kind == outcome.KindInternal {
		obs.Logger().Error("request failed",
			zap.String("request_id", rid),
			zap.String("path", r.URL.Path),
			zap.Error(oe.Err))
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="mise"`)
	}
	writeJSON(w, status, payload)
}

func writeErrorCode(w http.ResponseWriter, r *http.Request, status int, code string) {
	payload := map[string]any{"error": code}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, status, payload)
}

var errEmptyBody = errors.New("request body is required")

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// decodeBody decodes into dst and answers 400 invalid_json on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(w, r, dst); err != nil {
		writeErrorCode(w, r, http.StatusBadRequest, "invalid_json")
		return false
	}
	return true
}
