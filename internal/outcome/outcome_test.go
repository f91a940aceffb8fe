package outcome

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestErrorIsMatchesKindAndCode(t *testing.T) {
	err := fmt.Errorf("create staff: %w", Conflict("email_exists"))

	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict kind to match")
	}
	if !errors.Is(err, Conflict("email_exists")) {
		t.Fatalf("expected code match")
	}
	if errors.Is(err, Conflict("phone_exists")) {
		t.Fatalf("unexpected match on different code")
	}
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("unexpected match on different kind")
	}
}

func TestFromWrapsUnknownAsInternal(t *testing.T) {
	cause := errors.New("connection reset")
	got := From(cause)
	if got.Kind != KindInternal {
		t.Fatalf("expected internal, got %v", got.Kind)
	}
	if !errors.Is(got, cause) {
		t.Fatalf("internal error should unwrap to cause")
	}
	if From(nil) != nil {
		t.Fatalf("From(nil) should be nil")
	}
}

func TestValidatorCollectsEveryField(t *testing.T) {
	var v Validator
	v.Check(false, "first_name")
	v.Check(true, "last_name")
	v.Check(false, "pin")
	v.Add("permissions:bogus.perm")

	err := From(v.Err())
	if err == nil || err.Kind != KindValidationFailed {
		t.Fatalf("expected validation failure, got %v", err)
	}
	want := []string{"first_name", "pin", "permissions:bogus.perm"}
	if len(err.Invalid) != len(want) {
		t.Fatalf("unexpected invalid list %v", err.Invalid)
	}
	for i := range want {
		if err.Invalid[i] != want[i] {
			t.Fatalf("invalid[%d]=%q, want %q", i, err.Invalid[i], want[i])
		}
	}
}

func TestMinutesRemainingRoundsUp(t *testing.T) {
	cases := map[time.Duration]int{
		0:                     0,
		30 * time.Second:      1,
		14*time.Minute + 1:    15,
		15 * time.Minute:      15,
		29*time.Minute + 59e9: 30,
	}
	for d, want := range cases {
		if got := RateLimited(d).MinutesRemaining(); got != want {
			t.Fatalf("MinutesRemaining(%s)=%d, want %d", d, got, want)
		}
	}
}

func TestInvalidPinCarriesDecision(t *testing.T) {
	e := InvalidPin(true, time.Minute)
	if e.Allowed == nil || !*e.Allowed || e.RetryAfter != 0 {
		t.Fatalf("unexpected allowed failure %+v", e)
	}
	e = InvalidPin(false, 15*time.Minute)
	if *e.Allowed || e.MinutesRemaining() != 15 {
		t.Fatalf("unexpected locking failure %+v", e)
	}
	if !errors.Is(e, ErrAuthenticationRequired) {
		t.Fatalf("invalid pin should be an authentication failure")
	}
}
