package staff

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"mise.app/internal/audit"
	"mise.app/internal/auth"
	"mise.app/internal/model"
	"mise.app/internal/outcome"
	"mise.app/internal/rbac"
	"mise.app/internal/session"
	"mise.app/internal/store/memory"
)

const (
	ownerA   = "owner-a"
	ownerB   = "owner-b"
	adminPIN = "246810"
)

type fixture struct {
	t        *testing.T
	store    *memory.Store
	rec      *audit.Recorder
	sessions *session.Manager
	svc      *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := memory.New()
	hash, err := auth.HashAdminPin(adminPIN)
	require.NoError(t, err)
	for _, id := range []string{ownerA, ownerB} {
		st.PutAccount(model.Account{ID: id, Email: id + "@mise.test", AccountType: model.AccountTypeBusiness})
		st.PutOwner(model.BusinessOwner{ID: id, Email: id + "@mise.test", AccountType: model.AccountTypeBusiness, BusinessType: "restaurant", AdminPinHash: &hash})
	}
	st.PutAccount(model.Account{ID: "fresh", AccountType: model.AccountTypeBusiness})
	st.PutOwner(model.BusinessOwner{ID: "fresh", AccountType: model.AccountTypeBusiness})
	st.PutAccount(model.Account{ID: "diner", AccountType: model.AccountTypePersonal})
	st.PutPersonalProfile(model.PersonalProfile{UserID: "diner"})

	rec := audit.NewRecorder(st, audit.WithLogger(zap.NewNop()))
	t.Cleanup(func() { _ = rec.Close(context.Background()) })
	mgr := session.NewManager(st, session.WithActivity(rec), session.WithLogger(zap.NewNop()))
	svc := NewService(st, auth.NewValidator(st, rec), mgr, rec, WithLogger(zap.NewNop()))
	return &fixture{t: t, store: st, rec: rec, sessions: mgr, svc: svc}
}

func (f *fixture) flush() {
	f.t.Helper()
	require.NoError(f.t, f.rec.Flush(context.Background()))
}

func (f *fixture) createStaff(owner, email, role, pin string) model.Staff {
	f.t.Helper()
	res, err := f.svc.Create(context.Background(), owner, NewStaff{
		FirstName: "Test", LastName: "Staff", Email: email, Role: role, PIN: pin,
	})
	require.NoError(f.t, err)
	return res.Staff
}

func (f *fixture) adminCtx(owner string) context.Context {
	f.t.Helper()
	grant, err := f.svc.VerifyAdminPin(context.Background(), owner, adminPIN, "")
	require.NoError(f.t, err)
	return auth.ContextWithAdminToken(context.Background(), grant.Token)
}

func (f *fixture) activity(action string) []model.ActivityEntry {
	f.flush()
	var out []model.ActivityEntry
	for _, e := range f.store.Activity() {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}

func (f *fixture) securityEvents(event string) []model.SecurityEvent {
	f.flush()
	var out []model.SecurityEvent
	for _, e := range f.store.SecurityEvents() {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

func TestCreateReportsEveryInvalidField(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Create(context.Background(), ownerA, NewStaff{
		Email:       "not-an-email",
		Role:        "chef",
		Permissions: []string{"orders.view", "launch.missiles"},
		PIN:         "12",
	})
	var oe *outcome.Error
	require.True(t, errors.As(err, &oe))
	require.Equal(t, outcome.KindValidationFailed, oe.Kind)
	require.Equal(t, []string{"first_name", "last_name", "email", "role", "permissions:launch.missiles", "pin"}, oe.Invalid)

	_, err = f.svc.Create(context.Background(), ownerA, NewStaff{FirstName: "No", LastName: "Contact", Role: "waiter"})
	require.True(t, errors.As(err, &oe))
	require.Equal(t, []string{"contact"}, oe.Invalid)
}

func TestCreateGeneratesPinAndComputesPermissions(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Create(context.Background(), ownerA, NewStaff{
		FirstName:   "Ada",
		LastName:    "Lovelace",
		Email:       "Ada@Example.com",
		Role:        "kitchen",
		Permissions: []string{"reports.view"},
	})
	require.NoError(t, err)
	require.Len(t, res.GeneratedPIN, 6)
	require.True(t, auth.VerifyPin(res.GeneratedPIN, res.Staff.PinHash))
	require.Equal(t, "ada@example.com", res.Staff.Email)
	for _, p := range rbac.DefaultPermissions(model.RoleKitchen) {
		require.Contains(t, res.Staff.Permissions, p)
	}
	require.Contains(t, res.Staff.Permissions, model.PermReportsView)
	require.Len(t, f.activity(audit.ActionStaffCreated), 1)

	_, err = f.svc.Create(context.Background(), ownerA, NewStaff{
		FirstName: "Dup", LastName: "Licate", Email: "ada@example.com", Role: "bar",
	})
	require.ErrorIs(t, err, outcome.Conflict("email_exists"))

	other, err := f.svc.Create(context.Background(), ownerB, NewStaff{
		FirstName: "Same", LastName: "Email", Email: "ada@example.com", Role: "bar", PIN: "1111",
	})
	require.NoError(t, err, "uniqueness is per business")
	require.Empty(t, other.GeneratedPIN)
}

func TestCreatePolicyWarningsDoNotBlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i, email := range []string{"a1@x.test", "a2@x.test", "a3@x.test"} {
		res, err := f.svc.Create(ctx, ownerA, NewStaff{FirstName: "Acc", LastName: "T", Email: email, Role: "accountant", PIN: "1234"})
		require.NoError(t, err)
		require.Empty(t, res.Warnings, "accountant %d within headcount", i)
	}
	res, err := f.svc.Create(ctx, ownerA, NewStaff{FirstName: "Acc", LastName: "T", Email: "a4@x.test", Role: "accountant", PIN: "1234"})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	require.Equal(t, "role_headcount_exceeded", res.Warnings[0].Code)
}

func TestOperationsRequireBusinessOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.List(ctx, "", model.StaffFilter{})
	require.ErrorIs(t, err, outcome.ErrAuthenticationRequired)
	_, err = f.svc.List(ctx, "diner", model.StaffFilter{})
	require.ErrorIs(t, err, outcome.Denied("account_type_mismatch"))
	require.Len(t, f.securityEvents(audit.EventAccountTypeMismatch), 1)
}

func TestCrossTenantStaffIsNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := f.createStaff(ownerA, "cook@a.test", "kitchen", "1234")

	_, err := f.svc.Get(ctx, ownerB, st.ID)
	require.ErrorIs(t, err, outcome.NotFound("staff_not_found"))
	_, err = f.svc.Deactivate(ctx, ownerB, st.ID)
	require.ErrorIs(t, err, outcome.ErrNotFound)
	_, err = f.svc.SignIn(ctx, ownerB, SignInRequest{StaffID: st.ID, PIN: "1234"})
	require.ErrorIs(t, err, outcome.ErrNotFound)

	list, err := f.svc.List(ctx, ownerB, model.StaffFilter{})
	require.NoError(t, err)
	require.Empty(t, list)
}

func TestSignInHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := f.createStaff(ownerA, "server@a.test", "waiter", "4821")

	res, err := f.svc.SignIn(ctx, ownerA, SignInRequest{StaffID: st.ID, PIN: "4821"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)
	require.Equal(t, res.Session.SignedInAt.Add(session.StaffSessionTTL), res.ExpiresAt)

	sess, err := f.sessions.Authenticate(ctx, res.Token)
	require.NoError(t, err)
	require.Equal(t, st.ID, sess.StaffID)
	require.Equal(t, ownerA, sess.SignedInBy)

	require.Len(t, f.securityEvents(audit.EventStaffPinSucceeded), 1)
	logins := f.activity(audit.ActionStaffLogin)
	require.Len(t, logins, 1)
	require.Equal(t, res.Session.ID, logins[0].Details["session_id"])
}

func TestSignInRequiresAdminPin(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.SignIn(context.Background(), "fresh", SignInRequest{StaffID: "x", PIN: "1234"})
	require.ErrorIs(t, err, outcome.Conflict("admin_pin_required"))
}

func TestSignInLockoutSkipsVerification(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := f.createStaff(ownerA, "bar@a.test", "bar", "4821")

	for i := 1; i <= 3; i++ {
		_, err := f.svc.SignIn(ctx, ownerA, SignInRequest{StaffID: st.ID, PIN: "0000"})
		var oe *outcome.Error
		require.True(t, errors.As(err, &oe))
		require.Equal(t, "invalid_pin", oe.Code)
		require.NotNil(t, oe.Allowed)
		require.Equal(t, i < 3, *oe.Allowed, "attempt %d", i)
		if i == 3 {
			require.Equal(t, 15, oe.MinutesRemaining())
		}
	}

	_, err := f.svc.SignIn(ctx, ownerA, SignInRequest{StaffID: st.ID, PIN: "4821"})
	var oe *outcome.Error
	require.True(t, errors.As(err, &oe))
	require.Equal(t, outcome.KindRateLimited, oe.Kind, "correct PIN is not checked while locked")
	require.Equal(t, 15, oe.MinutesRemaining())

	failed := f.securityEvents(audit.EventStaffPinFailed)
	require.Len(t, failed, 3)
	for _, ev := range failed {
		require.Equal(t, "00**", ev.PinPrefix)
	}
	require.Len(t, f.securityEvents(audit.EventStaffPinLockedOut), 1)
	require.Empty(t, f.activity(audit.ActionStaffLogin))
}

func TestChangeRoleCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := f.createStaff(ownerA, "rc@a.test", "waiter", "4821")
	for i := 0; i < 2; i++ {
		_, err := f.svc.SignIn(ctx, ownerA, SignInRequest{StaffID: st.ID, PIN: "4821"})
		require.NoError(t, err)
	}

	_, err := f.svc.ChangeRole(ctx, ownerA, st.ID, "bar", nil)
	require.ErrorIs(t, err, outcome.Denied("admin_session_required"))

	admin := f.adminCtx(ownerA)
	_, err = f.svc.ChangeRole(admin, ownerA, st.ID, "waiter", nil)
	require.ErrorIs(t, err, outcome.Conflict("role_unchanged"))

	res, err := f.svc.ChangeRole(admin, ownerA, st.ID, "bar", []string{"reports.view"})
	require.NoError(t, err)
	require.Equal(t, 2, res.SessionsTerminated)
	require.Equal(t, model.RoleBar, res.Staff.Role)
	require.Contains(t, res.Staff.Permissions, model.PermBarTickets)
	require.Contains(t, res.Staff.Permissions, model.PermReportsView)

	active, err := f.svc.ActiveSessions(ctx, ownerA)
	require.NoError(t, err)
	require.Empty(t, active)

	terminated := f.activity(audit.ActionSessionTerminatedRoleChange)
	require.Len(t, terminated, 2)
	for _, e := range terminated {
		require.Equal(t, "waiter", e.Details["old_role"])
		require.Equal(t, "bar", e.Details["new_role"])
		require.Equal(t, rbac.ReasonRoleChanged, e.Details["reason"])
	}
	require.Len(t, f.activity(audit.ActionStaffRoleChanged), 1)
}

func TestPermissionOnlyUpdateKeepsSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := f.createStaff(ownerA, "perm@a.test", "reception", "4821")
	_, err := f.svc.SignIn(ctx, ownerA, SignInRequest{StaffID: st.ID, PIN: "4821"})
	require.NoError(t, err)

	grants := []string{"reports.view"}
	res, err := f.svc.Update(ctx, ownerA, st.ID, Update{Permissions: &grants})
	require.NoError(t, err)
	require.Zero(t, res.SessionsTerminated)
	require.Contains(t, res.Staff.Permissions, model.PermReportsView)

	active, err := f.svc.ActiveSessions(ctx, ownerA)
	require.NoError(t, err)
	require.Len(t, active, 1)

	bad := []string{"reports.view", "nope"}
	_, err = f.svc.Update(ctx, ownerA, st.ID, Update{Permissions: &bad})
	require.ErrorIs(t, err, outcome.ErrValidationFailed)
}

func TestDeactivateCascadesAndActivate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := f.createStaff(ownerA, "deact@a.test", "kitchen", "4821")
	_, err := f.svc.SignIn(ctx, ownerA, SignInRequest{StaffID: st.ID, PIN: "4821"})
	require.NoError(t, err)

	res, err := f.svc.Deactivate(ctx, ownerA, st.ID)
	require.NoError(t, err)
	require.Equal(t, 1, res.SessionsTerminated)
	require.Len(t, f.activity(audit.ActionSessionTerminatedDeactivation), 1)

	_, err = f.svc.Deactivate(ctx, ownerA, st.ID)
	require.ErrorIs(t, err, outcome.Conflict("already_inactive"))
	_, err = f.svc.SignIn(ctx, ownerA, SignInRequest{StaffID: st.ID, PIN: "4821"})
	require.ErrorIs(t, err, outcome.Conflict("staff_inactive"))

	_, err = f.svc.Activate(ctx, ownerA, st.ID)
	require.NoError(t, err)
	_, err = f.svc.Activate(ctx, ownerA, st.ID)
	require.ErrorIs(t, err, outcome.Conflict("already_active"))
}

func TestDeleteCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := f.createStaff(ownerA, "del@a.test", "storekeeper", "4821")
	for i := 0; i < 3; i++ {
		_, err := f.svc.SignIn(ctx, ownerA, SignInRequest{StaffID: st.ID, PIN: "4821"})
		require.NoError(t, err)
	}

	_, err := f.svc.Delete(ctx, ownerA, st.ID)
	require.ErrorIs(t, err, outcome.ErrAuthorizationDenied)

	res, err := f.svc.Delete(f.adminCtx(ownerA), ownerA, st.ID)
	require.NoError(t, err)
	require.Equal(t, 3, res.SessionsTerminated)

	require.Len(t, f.activity(audit.ActionSessionTerminatedDeletion), 3)
	deleted := f.activity(audit.ActionStaffDeleted)
	require.Len(t, deleted, 1)
	require.Equal(t, 3, deleted[0].Details["sessions_terminated"])

	_, err = f.svc.Get(ctx, ownerA, st.ID)
	require.ErrorIs(t, err, outcome.ErrNotFound)
}

func TestResetPin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := f.createStaff(ownerA, "reset@a.test", "waiter", "4821")

	_, err := f.svc.ResetPin(ctx, ownerA, st.ID)
	require.ErrorIs(t, err, outcome.ErrAuthorizationDenied)

	res, err := f.svc.ResetPin(f.adminCtx(ownerA), ownerA, st.ID)
	require.NoError(t, err)
	require.Len(t, res.PIN, 6)

	_, err = f.svc.SignIn(ctx, ownerA, SignInRequest{StaffID: st.ID, PIN: res.PIN})
	require.NoError(t, err)
	require.Len(t, f.activity(audit.ActionStaffPinReset), 1)
}

func TestAdminPinLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	status, err := f.svc.AdminStatus(ctx, "fresh")
	require.NoError(t, err)
	require.False(t, status.HasAdminPin)
	_, err = f.svc.VerifyAdminPin(ctx, "fresh", "123456", "")
	require.ErrorIs(t, err, outcome.Conflict("admin_pin_not_set"))

	require.ErrorIs(t, f.svc.SetAdminPin(ctx, "fresh", "", "12"), outcome.ErrValidationFailed)
	require.NoError(t, f.svc.SetAdminPin(ctx, "fresh", "", "135790"))
	require.Len(t, f.securityEvents(audit.EventAdminPinSet), 1)

	grant, err := f.svc.VerifyAdminPin(ctx, "fresh", "135790", "")
	require.NoError(t, err)
	require.NoError(t, f.sessions.RequireAdmin(ctx, "fresh", grant.Token, ActionDelete))

	err = f.svc.SetAdminPin(ctx, "fresh", "000000", "864200")
	require.ErrorIs(t, err, outcome.ErrAuthenticationRequired)

	require.NoError(t, f.svc.SetAdminPin(ctx, "fresh", "135790", "864200"))
	require.Len(t, f.securityEvents(audit.EventAdminPinRotated), 1)
	require.Error(t, f.sessions.RequireAdmin(ctx, "fresh", grant.Token, ActionDelete), "rotation ends admin grants")

	_, err = f.svc.VerifyAdminPin(ctx, "fresh", "135790", "")
	require.ErrorIs(t, err, outcome.ErrAuthenticationRequired)
	_, err = f.svc.VerifyAdminPin(ctx, "fresh", "864200", "")
	require.NoError(t, err)
}

func TestAdminPinLockout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 1; i <= 5; i++ {
		_, err := f.svc.VerifyAdminPin(ctx, ownerA, "999999", "")
		require.ErrorIs(t, err, outcome.ErrAuthenticationRequired, "attempt %d", i)
	}
	_, err := f.svc.VerifyAdminPin(ctx, ownerA, adminPIN, "")
	var oe *outcome.Error
	require.True(t, errors.As(err, &oe))
	require.Equal(t, outcome.KindRateLimited, oe.Kind)
	require.Equal(t, 30, oe.MinutesRemaining())
	require.Len(t, f.securityEvents(audit.EventAdminPinFailed), 5)
	require.Len(t, f.securityEvents(audit.EventAdminPinLockedOut), 1)

	_, err = f.svc.VerifyAdminPin(ctx, ownerB, adminPIN, "")
	require.NoError(t, err, "lockout is per owner")
}

func TestBusinessLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.createStaff(ownerA, "host@a.test", "reception", "1357")
	b := f.createStaff(ownerA, "cook@a.test", "kitchen", "2468")

	res, err := f.svc.Login(ctx, LoginRequest{BusinessID: ownerA, Identifier: "HOST@a.test", PIN: "1357"})
	require.NoError(t, err)
	require.Equal(t, a.ID, res.Staff.ID)
	require.Equal(t, a.ID, res.Session.SignedInBy)

	res, err = f.svc.Login(ctx, LoginRequest{BusinessID: ownerA, PIN: "2468"})
	require.NoError(t, err)
	require.Equal(t, b.ID, res.Staff.ID)

	_, err = f.svc.Login(ctx, LoginRequest{BusinessID: ownerB, PIN: "2468"})
	require.ErrorIs(t, err, outcome.ErrAuthenticationRequired, "staff of another business never match")

	_, err = f.svc.Login(ctx, LoginRequest{PIN: "2468"})
	require.ErrorIs(t, err, outcome.ErrAuthenticationRequired)
	_, err = f.svc.Login(ctx, LoginRequest{BusinessID: "fresh", PIN: "2468"})
	require.ErrorIs(t, err, outcome.Conflict("admin_pin_required"))
}

func TestChangePinAndLogout(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := f.createStaff(ownerA, "self@a.test", "waiter", "4821")
	res, err := f.svc.SignIn(ctx, ownerA, SignInRequest{StaffID: st.ID, PIN: "4821"})
	require.NoError(t, err)

	require.ErrorIs(t, f.svc.ChangePin(ctx, res.Token, "0000", "9753"), outcome.ErrAuthenticationRequired)
	require.NoError(t, f.svc.ChangePin(ctx, res.Token, "4821", "9753"))
	require.Len(t, f.activity(audit.ActionStaffPinChanged), 1)

	me, _, err := f.svc.Me(ctx, res.Token)
	require.NoError(t, err)
	require.True(t, auth.VerifyPin("9753", me.PinHash))

	require.NoError(t, f.svc.Logout(ctx, res.Token))
	require.NoError(t, f.svc.Logout(ctx, res.Token))
	require.Len(t, f.activity(audit.ActionStaffLogout), 1)
	_, _, err = f.svc.Me(ctx, res.Token)
	require.ErrorIs(t, err, outcome.ErrAuthenticationRequired)
}

func TestSessionOperations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := f.createStaff(ownerA, "ops@a.test", "waiter", "4821")
	var sessionIDs []string
	for i := 0; i < 3; i++ {
		res, err := f.svc.SignIn(ctx, ownerA, SignInRequest{StaffID: st.ID, PIN: "4821"})
		require.NoError(t, err)
		sessionIDs = append(sessionIDs, res.Session.ID)
	}

	ok, err := f.svc.TerminateSession(ctx, ownerA, sessionIDs[0])
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = f.svc.TerminateSession(ctx, ownerA, sessionIDs[0])
	require.NoError(t, err)
	require.False(t, ok)
	_, err = f.svc.TerminateSession(ctx, ownerB, sessionIDs[1])
	require.ErrorIs(t, err, outcome.ErrNotFound)

	res, err := f.svc.SignOutAll(ctx, ownerA)
	require.NoError(t, err)
	require.Equal(t, 2, res.Count())
	require.Len(t, f.activity(audit.ActionSessionTerminated), 3)
	require.Len(t, f.activity(audit.ActionBulkSignOut), 1)

	entries, err := f.svc.Activity(ctx, ownerA, model.ActivityFilter{Action: audit.ActionBulkSignOut})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	_, err = f.svc.Activity(ctx, ownerA, model.ActivityFilter{Limit: 1000})
	require.ErrorIs(t, err, outcome.ErrValidationFailed)
}

func TestBindBusiness(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	owner, err := f.svc.BindBusiness(ctx, " "+ownerA+" ")
	require.NoError(t, err)
	require.Equal(t, ownerA, owner.ID)

	_, err = f.svc.BindBusiness(ctx, "nope")
	require.ErrorIs(t, err, outcome.NotFound("business_not_found"))
	_, err = f.svc.BindBusiness(ctx, "fresh")
	require.ErrorIs(t, err, outcome.Conflict("admin_pin_required"))
	_, err = f.svc.BindBusiness(ctx, "")
	require.ErrorIs(t, err, outcome.ErrValidationFailed)
}

func TestParallelWrongPinsStopAtCeiling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := f.createStaff(ownerA, "rush@a.test", "waiter", "4821")

	errs := make([]error, 30)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.SignIn(ctx, ownerA, SignInRequest{StaffID: st.ID, PIN: "0000"})
		}(i)
	}
	wg.Wait()

	invalid, limited := 0, 0
	for _, err := range errs {
		var oe *outcome.Error
		require.True(t, errors.As(err, &oe))
		switch oe.Kind {
		case outcome.KindRateLimited:
			limited++
		default:
			require.Equal(t, "invalid_pin", oe.Code)
			invalid++
		}
	}
	require.Equal(t, 3, invalid, "only attempts within the ceiling are verified")
	require.Equal(t, 27, limited)
	require.Len(t, f.securityEvents(audit.EventStaffPinFailed), 3)
	require.Len(t, f.securityEvents(audit.EventStaffPinLockedOut), 1)

	_, err := f.svc.SignIn(ctx, ownerA, SignInRequest{StaffID: st.ID, PIN: "4821"})
	require.ErrorIs(t, err, outcome.ErrRateLimited)
}

func TestParallelAdminPinGuessesStopAtCeiling(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	errs := make([]error, 20)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.VerifyAdminPin(ctx, ownerA, "999999", "")
		}(i)
	}
	wg.Wait()

	limited := 0
	for _, err := range errs {
		if errors.Is(err, outcome.ErrRateLimited) {
			limited++
		}
	}
	require.Equal(t, 15, limited)
	require.Len(t, f.securityEvents(audit.EventAdminPinFailed), 5)
	require.Len(t, f.securityEvents(audit.EventAdminPinLockedOut), 1)
}

func TestChangeRoleWithoutGrantsDropsCustomGrants(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	res, err := f.svc.Create(ctx, ownerA, NewStaff{
		FirstName: "Grace", LastName: "Hopper", Email: "grace@a.test", Role: "waiter",
		Permissions: []string{"reports.view"}, PIN: "4821",
	})
	require.NoError(t, err)
	require.Contains(t, res.Staff.Permissions, model.PermReportsView)

	changed, err := f.svc.ChangeRole(f.adminCtx(ownerA), ownerA, res.Staff.ID, "kitchen", nil)
	require.NoError(t, err)
	require.Equal(t, rbac.ComputePermissions(model.RoleKitchen, nil), changed.Staff.Permissions)
	require.NotContains(t, changed.Staff.Permissions, model.PermReportsView)

	stored, err := f.svc.Get(ctx, ownerA, res.Staff.ID)
	require.NoError(t, err)
	require.Equal(t, changed.Staff.Permissions, stored.Permissions)
}

type failingDeleteStore struct{ *memory.Store }

func (failingDeleteStore) DeleteStaff(context.Context, string, string) error {
	return errors.New("db down")
}

func TestDeleteFailureLeavesNoDeletionEntry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := f.createStaff(ownerA, "keep@a.test", "waiter", "4821")
	svc := NewService(failingDeleteStore{f.store}, auth.NewValidator(f.store, f.rec), f.sessions, f.rec, WithLogger(zap.NewNop()))

	_, err := svc.Delete(f.adminCtx(ownerA), ownerA, st.ID)
	require.ErrorIs(t, err, outcome.ErrInternal)

	_, err = f.svc.Get(ctx, ownerA, st.ID)
	require.NoError(t, err, "row is still present")
	require.Empty(t, f.activity(audit.ActionStaffDeleted))
}

type failingSink struct{}

func (failingSink) AppendActivity(context.Context, model.ActivityEntry) error {
	return errors.New("audit down")
}

func (failingSink) AppendSecurity(context.Context, model.SecurityEvent) error {
	return errors.New("audit down")
}

func TestSignInSurvivesAuditOutage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := f.createStaff(ownerA, "quiet@a.test", "waiter", "4821")

	rec := audit.NewRecorder(failingSink{}, audit.WithLogger(zap.NewNop()))
	t.Cleanup(func() { _ = rec.Close(context.Background()) })
	mgr := session.NewManager(f.store, session.WithActivity(rec), session.WithLogger(zap.NewNop()))
	svc := NewService(f.store, auth.NewValidator(f.store, rec), mgr, rec, WithLogger(zap.NewNop()))

	res, err := svc.SignIn(ctx, ownerA, SignInRequest{StaffID: st.ID, PIN: "4821"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Token)
	require.NoError(t, rec.Flush(ctx))

	active, err := svc.ActiveSessions(ctx, ownerA)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, res.Session.ID, active[0].ID)
}

type failingSessionLookup struct{ *memory.Store }

func (failingSessionLookup) ActiveSessionsForStaff(context.Context, string, string) ([]model.StaffSession, error) {
	return nil, errors.New("sessions unavailable")
}

func TestCascadeLookupFailureIsLogged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	st := f.createStaff(ownerA, "cold@a.test", "kitchen", "4821")

	core, logs := observer.New(zap.WarnLevel)
	mgr := session.NewManager(failingSessionLookup{f.store}, session.WithActivity(f.rec), session.WithLogger(zap.NewNop()))
	svc := NewService(f.store, auth.NewValidator(f.store, f.rec), mgr, f.rec, WithLogger(zap.New(core)))

	res, err := svc.Deactivate(ctx, ownerA, st.ID)
	require.NoError(t, err)
	require.Zero(t, res.SessionsTerminated)
	require.Equal(t, 1, res.CascadeFailed)

	entries := logs.FilterMessage("session_cascade_failed").All()
	require.Len(t, entries, 1)
	require.Equal(t, st.ID, entries[0].ContextMap()["staff_id"])
}
