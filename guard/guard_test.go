package guard_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jrsteele09/go-wallet-web/guard"
	"github.com/jrsteele09/go-wallet-web/internal/utils"
	"github.com/jrsteele09/go-wallet-web/session"
	"github.com/stretchr/testify/require"
)

var (
	testNow     = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	publicRoute = guard.RouteDescriptor{Path: "/login"}
	dashRoute   = guard.RouteDescriptor{Path: "/dash", Protected: true}
	secureRoute = guard.RouteDescriptor{Path: "/dash/security", Protected: true, Sensitive: true}
)

type testFixture struct {
	now   *time.Time
	store *session.Store
	guard *guard.Guard
}

func setupTestFixture(t *testing.T, opts ...guard.Option) *testFixture {
	t.Helper()
	now := testNow
	store := session.NewStore(session.WithNowTime(func() time.Time { return now }))
	t.Cleanup(store.Close)
	return &testFixture{now: &now, store: store, guard: guard.New(store, "/login", opts...)}
}

func (f *testFixture) login(t *testing.T, ttl time.Duration) {
	t.Helper()
	require.NoError(t, f.store.Set(session.Session{
		SubjectID: "user-1",
		Token:     "token-1",
		IssuedAt:  *f.now,
		ExpiresAt: utils.Ptr(f.now.Add(ttl)),
	}))
}

func TestUnprotectedRoutesAlwaysAllowed(t *testing.T) {
	f := setupTestFixture(t)
	require.Equal(t, guard.Decision{Allowed: true, Reason: guard.ReasonPublic}, f.guard.Evaluate(publicRoute))

	f.login(t, time.Hour)
	require.True(t, f.guard.Evaluate(publicRoute).Allowed)

	require.True(t, guard.New(nil, "").Evaluate(publicRoute).Allowed)
}

func TestProtectedRouteFollowsValidity(t *testing.T) {
	f := setupTestFixture(t)

	d := f.guard.Evaluate(dashRoute)
	require.False(t, d.Allowed)
	require.Equal(t, "/login", d.RedirectTo)
	require.Equal(t, guard.ReasonNoSession, d.Reason)

	f.login(t, time.Hour)
	d = f.guard.Evaluate(dashRoute)
	require.True(t, d.Allowed)
	require.Empty(t, d.RedirectTo)

	// decisions are never cached
	*f.now = testNow.Add(time.Hour)
	require.False(t, f.guard.Evaluate(dashRoute).Allowed)
}

func TestValidLoginScenario(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, 3600*time.Second)
	require.Equal(t, guard.Decision{Allowed: true, Reason: guard.ReasonSessionValid}, f.guard.Evaluate(dashRoute))
}

type panickingState struct{}

func (panickingState) IsValid() bool { panic("store corrupted") }

func (panickingState) Get() (session.Session, bool) { panic("store corrupted") }

func (panickingState) Subscribe(session.Listener) session.Unsubscribe { return func() {} }

func TestGuardFailsClosed(t *testing.T) {
	g := guard.New(panickingState{}, "")
	d := g.Evaluate(dashRoute)
	require.False(t, d.Allowed)
	require.Equal(t, guard.DefaultLoginPath, d.RedirectTo)

	require.False(t, guard.New(nil, "/login").Evaluate(dashRoute).Allowed)

	var nilStore *session.Store
	require.False(t, guard.New(nilStore, "/login").Evaluate(dashRoute).Allowed)
}

type fakeRevalidator struct {
	valid bool
	err   error
	calls int
}

func (r *fakeRevalidator) Revalidate(_ context.Context, s session.Session) (bool, error) {
	r.calls++
	return r.valid, r.err
}

func TestCheckRevalidatesSensitiveRoutes(t *testing.T) {
	rv := &fakeRevalidator{valid: true}
	f := setupTestFixture(t, guard.WithRevalidator(rv))
	ctx := context.Background()

	require.Equal(t, guard.ReasonNoSession, f.guard.Check(ctx, secureRoute).Reason)
	require.Zero(t, rv.calls)

	f.login(t, time.Hour)
	require.True(t, f.guard.Check(ctx, dashRoute).Allowed)
	require.Zero(t, rv.calls)

	require.True(t, f.guard.Check(ctx, secureRoute).Allowed)
	require.Equal(t, 1, rv.calls)

	rv.valid = false
	d := f.guard.Check(ctx, secureRoute)
	require.False(t, d.Allowed)
	require.Equal(t, guard.ReasonRevoked, d.Reason)

	rv.err = errors.New("timeout")
	d = f.guard.Check(ctx, secureRoute)
	require.False(t, d.Allowed)
	require.Equal(t, guard.ReasonUnavailable, d.Reason)
	require.Equal(t, "/login", d.RedirectTo)

	// the guard never mutates the store
	require.True(t, f.store.IsValid())
}

func TestCheckWithoutRevalidatorIsEvaluate(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, time.Hour)
	require.True(t, f.guard.Check(context.Background(), secureRoute).Allowed)
}

func TestAttachRevokesOnceOnExpiry(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, time.Hour)

	revokes := 0
	a := f.guard.Attach(dashRoute, func() { revokes++ })
	require.Equal(t, guard.Active, a.State())

	// notifications while valid do nothing
	f.login(t, time.Hour)
	require.Equal(t, guard.Active, a.State())

	*f.now = testNow.Add(2 * time.Hour)
	require.True(t, f.store.Expire())
	require.Equal(t, guard.Revoked, a.State())
	require.Equal(t, 1, revokes)

	f.store.Clear()
	f.store.Clear()
	require.Equal(t, 1, revokes)

	a.Detach()
	require.Equal(t, guard.Revoked, a.State())
}

func TestAttachRevokesOnNextNotificationAfterExpiry(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, time.Minute)

	revokes := 0
	a := f.guard.Attach(dashRoute, func() { revokes++ })

	// time passing alone does not notify
	*f.now = testNow.Add(time.Minute)
	require.Equal(t, guard.Active, a.State())

	f.store.Clear()
	require.Equal(t, guard.Revoked, a.State())
	require.Equal(t, 1, revokes)
}

func TestDetachBeforeRevocation(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, time.Hour)

	revokes := 0
	a := f.guard.Attach(dashRoute, func() { revokes++ })
	a.Detach()
	require.Equal(t, guard.Detached, a.State())

	f.store.Clear()
	require.Zero(t, revokes)
	require.Equal(t, guard.Detached, a.State())
	a.Detach()
}

func TestAttachUnprotectedIsInert(t *testing.T) {
	f := setupTestFixture(t)
	revokes := 0
	a := f.guard.Attach(publicRoute, func() { revokes++ })
	f.store.Clear()
	require.Zero(t, revokes)
	require.Equal(t, guard.Active, a.State())
	a.Detach()
	require.Equal(t, guard.Detached, a.State())
}

func TestRevokeCallbackMayMutateStore(t *testing.T) {
	f := setupTestFixture(t)
	f.login(t, time.Hour)

	var states []bool
	f.guard.Attach(dashRoute, func() {
		// a view redirecting to login typically logs out again
		f.store.Clear()
	})
	f.store.Subscribe(func(session.Event) { states = append(states, f.store.IsValid()) })

	f.store.Clear()
	require.Equal(t, []bool{false, false}, states)
}
