// Package outcome defines the machine-readable result taxonomy shared by the core
// and its transports. Callers translate codes into display copy; nothing here
// carries user-facing text.
package outcome

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
)

// Kind classifies a failure.
type Kind int

const (
	KindInternal Kind = iota
	KindAuthenticationRequired
	KindAuthorizationDenied
	KindValidationFailed
	KindRateLimited
	KindConflict
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindAuthenticationRequired:
		return "authentication_required"
	case KindAuthorizationDenied:
		return "authorization_denied"
	case KindValidationFailed:
		return "validation_failed"
	case KindRateLimited:
		return "rate_limited"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	default:
		return "internal"
	}
}

// Error is the typed failure returned by every core operation.
type Error struct {
	Kind Kind
	// Code refines Kind, e.g. "email_exists" for a Conflict.
	Code string
	// Invalid lists every offending field or value for ValidationFailed.
	Invalid []string
	// RetryAfter is set for RateLimited.
	RetryAfter time.Duration
	// Allowed mirrors the limiter decision attached to a failed credential check.
	Allowed *bool
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Code != "" && e.Code != e.Kind.String() {
		b.WriteString(": ")
		b.WriteString(e.Code)
	}
	if len(e.Invalid) > 0 {
		b.WriteString(" [")
		b.WriteString(strings.Join(e.Invalid, ", "))
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind, and on Code when the target names one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// CodeOrKind returns the refined code, falling back to the kind name.
func (e *Error) CodeOrKind() string {
	if e.Code != "" {
		return e.Code
	}
	return e.Kind.String()
}

// MinutesRemaining rounds RetryAfter up to whole minutes.
func (e *Error) MinutesRemaining() int {
	if e.RetryAfter <= 0 {
		return 0
	}
	return int(math.Ceil(e.RetryAfter.Minutes()))
}

var (
	ErrAuthenticationRequired = &Error{Kind: KindAuthenticationRequired}
	ErrAuthorizationDenied    = &Error{Kind: KindAuthorizationDenied}
	ErrValidationFailed       = &Error{Kind: KindValidationFailed}
	ErrRateLimited            = &Error{Kind: KindRateLimited}
	ErrConflict               = &Error{Kind: KindConflict}
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrInternal               = &Error{Kind: KindInternal}
)

func Unauthenticated() *Error {
	return &Error{Kind: KindAuthenticationRequired, Code: "authentication_required"}
}

func Denied(code string) *Error {
	return &Error{Kind: KindAuthorizationDenied, Code: code}
}

// Validation reports every invalid field at once.
func Validation(fields ...string) *Error {
	return &Error{Kind: KindValidationFailed, Code: "validation_failed", Invalid: fields}
}

func RateLimited(retryAfter time.Duration) *Error {
	allowed := false
	return &Error{Kind: KindRateLimited, Code: "rate_limited", RetryAfter: retryAfter, Allowed: &allowed}
}

// InvalidPin reports a rejected credential together with the limiter verdict.
// RetryAfter is set when this failure triggered a lockout.
func InvalidPin(allowed bool, retryAfter time.Duration) *Error {
	e := &Error{Kind: KindAuthenticationRequired, Code: "invalid_pin", Allowed: &allowed}
	if !allowed {
		e.RetryAfter = retryAfter
	}
	return e
}

func Conflict(code string) *Error {
	return &Error{Kind: KindConflict, Code: code}
}

func NotFound(code string) *Error {
	return &Error{Kind: KindNotFound, Code: code}
}

func Internal(err error) *Error {
	return &Error{Kind: KindInternal, Code: "internal", Err: err}
}

// Internalf wraps a formatted cause as an Internal failure.
func Internalf(format string, args ...any) *Error {
	return Internal(fmt.Errorf(format, args...))
}

// From normalizes err into an *Error; unknown errors become Internal.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Internal(err)
}

// Validator accumulates field failures so callers can report all of them.
type Validator struct {
	invalid []string
}

// Check records field when ok is false.
func (v *Validator) Check(ok bool, field string) {
	if !ok {
		v.invalid = append(v.invalid, field)
	}
}

// Add records already-formatted invalid entries.
func (v *Validator) Add(entries ...string) {
	v.invalid = append(v.invalid, entries...)
}

// Err returns a ValidationFailed error or nil.
func (v *Validator) Err() error {
	if len(v.invalid) == 0 {
		return nil
	}
	return Validation(v.invalid...)
}
