package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"mise.app/internal/model"
	"mise.app/internal/outcome"
)

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return New(db), mock
}

var staffRowColumns = []string{"id", "business_id", "first_name", "last_name", "email", "username",
	"phone", "pin_hash", "role", "permissions", "is_active", "created_at", "updated_at"}

func TestCreateStaffMapsUniqueViolations(t *testing.T) {
	cases := map[string]string{
		"staff_business_email_key":    "email_exists",
		"staff_business_phone_key":    "phone_exists",
		"staff_business_username_key": "username_exists",
	}
	for constraint, code := range cases {
		store, mock := newMock(t)
		mock.ExpectExec("insert into staff").
			WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation, ConstraintName: constraint})

		err := store.CreateStaff(context.Background(), model.Staff{ID: "s1", BusinessID: "b1", Email: "a@b.c"})
		if !errors.Is(err, outcome.Conflict(code)) {
			t.Fatalf("%s: expected %s conflict, got %v", constraint, code, err)
		}
	}
}

func TestStaffByIDNotFound(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectQuery("from staff where id").WithArgs("missing").WillReturnError(sql.ErrNoRows)

	_, err := store.StaffByID(context.Background(), "missing")
	if !errors.Is(err, outcome.NotFound("staff_not_found")) {
		t.Fatalf("expected staff_not_found, got %v", err)
	}
}

func TestStaffByIDDecodesRow(t *testing.T) {
	store, mock := newMock(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery("from staff where id").WithArgs("s1").WillReturnRows(
		sqlmock.NewRows(staffRowColumns).AddRow("s1", "b1", "Ada", "Lovelace", "ada@x.test", "", "",
			"$2a$10$hash", "kitchen", []byte(`["kitchen.tickets","orders.view"]`), true, now, now))

	st, err := store.StaffByID(context.Background(), "s1")
	if err != nil {
		t.Fatalf("StaffByID: %v", err)
	}
	if st.Role != model.RoleKitchen || len(st.Permissions) != 2 || st.Permissions[1] != model.PermOrdersView {
		t.Fatalf("unexpected staff %+v", st)
	}
	if !st.IsActive || st.BusinessID != "b1" {
		t.Fatalf("unexpected flags %+v", st)
	}
}

func TestUpdateStaffMissingRow(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec("update staff").WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.UpdateStaff(context.Background(), model.Staff{ID: "s1", BusinessID: "other"})
	if !errors.Is(err, outcome.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestEndSessionOnlyOnce(t *testing.T) {
	store, mock := newMock(t)
	at := time.Now().UTC()
	mock.ExpectExec("update staff_sessions set is_active = false").
		WithArgs("sess-1", at, "terminated_by_owner").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update staff_sessions set is_active = false").
		WithArgs("sess-1", at, "terminated_by_owner").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select exists").WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec("update staff_sessions set is_active = false").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select exists").WithArgs("gone").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	ctx := context.Background()
	ok, err := store.EndSession(ctx, "sess-1", at, "terminated_by_owner")
	if err != nil || !ok {
		t.Fatalf("first end: ok=%v err=%v", ok, err)
	}
	ok, err = store.EndSession(ctx, "sess-1", at, "terminated_by_owner")
	if err != nil || ok {
		t.Fatalf("second end: ok=%v err=%v", ok, err)
	}
	if _, err := store.EndSession(ctx, "gone", at, "terminated_by_owner"); !errors.Is(err, outcome.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSessionByTokenHashScansNullableColumns(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery("from staff_sessions where token_hash").WithArgs("h1").WillReturnRows(
		sqlmock.NewRows([]string{"id", "staff_id", "business_id", "signed_in_by", "token_hash",
			"signed_in_at", "signed_out_at", "is_active", "end_reason"}).
			AddRow("sess-1", "s1", "b1", "b1", "h1", now, nil, true, ""))

	sess, err := store.SessionByTokenHash(context.Background(), "h1")
	if err != nil {
		t.Fatalf("SessionByTokenHash: %v", err)
	}
	if sess.SignedOutAt != nil || !sess.IsActive || sess.TokenHash != "h1" {
		t.Fatalf("unexpected session %+v", sess)
	}
}

func TestBusinessOwnerWithoutAdminPin(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery("from business_owners").WithArgs("o1").WillReturnRows(
		sqlmock.NewRows([]string{"id", "email", "account_type", "business_name", "business_type",
			"admin_pin_hash", "email_verified", "created_at", "updated_at"}).
			AddRow("o1", "o@x.test", "business", "Bistro", "restaurant", nil, true, now, now))

	o, err := store.BusinessOwner(context.Background(), "o1")
	if err != nil {
		t.Fatalf("BusinessOwner: %v", err)
	}
	if o.HasAdminPin() {
		t.Fatalf("expected no admin pin")
	}
	if o.BusinessType != "restaurant" {
		t.Fatalf("unexpected business type %q", o.BusinessType)
	}
}

func TestListActivityAppliesFilters(t *testing.T) {
	store, mock := newMock(t)
	now := time.Now().UTC()
	mock.ExpectQuery("from staff_activity_logs where business_id").
		WithArgs("b1", "s1", "staff_login", 100).
		WillReturnRows(sqlmock.NewRows([]string{"id", "business_id", "staff_id", "action", "performed_by", "details", "created_at"}).
			AddRow("a1", "b1", "s1", "staff_login", "b1", []byte(`{"session_id":"sess-1"}`), now))

	entries, err := store.ListActivity(context.Background(), "b1", model.ActivityFilter{StaffID: "s1", Action: "staff_login"})
	if err != nil {
		t.Fatalf("ListActivity: %v", err)
	}
	if len(entries) != 1 || entries[0].Details["session_id"] != "sess-1" {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func TestAppendSecurityWritesRow(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec("insert into security_audit_log").
		WithArgs("e1", "b1", "s1", nil, model.TierStaff, "staff_pin_failed", "12**", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := store.AppendSecurity(context.Background(), model.SecurityEvent{
		ID: "e1", BusinessID: "b1", StaffID: "s1", Tier: model.TierStaff,
		Event: "staff_pin_failed", PinPrefix: "12**", CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("AppendSecurity: %v", err)
	}
}

func TestDeactivateAdminSessionsCounts(t *testing.T) {
	store, mock := newMock(t)
	mock.ExpectExec("update admin_sessions set is_active = false").WithArgs("o1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := store.DeactivateAdminSessions(context.Background(), "o1")
	if err != nil || n != 2 {
		t.Fatalf("expected 2 deactivated, got %d err=%v", n, err)
	}
}
