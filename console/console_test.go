package console_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-admin-console/api"
	"github.com/jrsteele09/go-admin-console/console"
	"github.com/jrsteele09/go-admin-console/gate"
	"github.com/jrsteele09/go-admin-console/internal/utils"
	"github.com/jrsteele09/go-admin-console/invitation"
	"github.com/jrsteele09/go-admin-console/navigation"
	"github.com/jrsteele09/go-admin-console/navigation/navfake"
	"github.com/jrsteele09/go-admin-console/profile"
	"github.com/jrsteele09/go-admin-console/session"
	"github.com/jrsteele09/go-admin-console/session/sessionfake"
	"github.com/stretchr/testify/require"
)

type fakeProfiles struct {
	fetches     atomic.Int32
	profile     *profile.Profile
	fetchErr    error
	completeErr error

	// Run while the call is in flight
	onFetch    func()
	onComplete func()
}

func (p *fakeProfiles) Fetch(ctx context.Context) (*profile.Profile, error) {
	p.fetches.Add(1)
	if p.onFetch != nil {
		p.onFetch()
	}
	if p.fetchErr != nil {
		return nil, p.fetchErr
	}
	copied := *p.profile
	return &copied, nil
}

func (p *fakeProfiles) Complete(ctx context.Context, form profile.CompletionForm) (*profile.Profile, error) {
	if err := form.Validate(); err != nil {
		return nil, err
	}
	if p.onComplete != nil {
		p.onComplete()
	}
	if p.completeErr != nil {
		return nil, p.completeErr
	}
	p.profile.FullName = utils.Ptr(form.FullName)
	p.profile.Email = utils.Ptr(form.Email)
	return p.Fetch(ctx)
}

type testFixture struct {
	provider *sessionfake.FakeProvider
	recorder *navfake.Recorder
	nav      *navigation.Navigator
	profiles *fakeProfiles
	console  *console.Console
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	f := &testFixture{
		provider: sessionfake.NewFakeProvider(),
		recorder: navfake.NewRecorder(),
		profiles: &fakeProfiles{profile: &profile.Profile{
			ID:       "user-1",
			FullName: utils.Ptr("Jane Doe"),
			Email:    utils.Ptr("jane@example.com"),
		}},
	}
	f.nav = navigation.NewNavigator(f.recorder)

	c, err := console.New(f.provider, f.nav, f.profiles,
		console.WithResolverOptions(
			invitation.WithMaxAttempts(3),
			invitation.WithSleep(func(ctx context.Context, d time.Duration) error { return ctx.Err() }),
			invitation.WithAfter(func(d time.Duration) <-chan time.Time { return nil }),
		),
	)
	require.NoError(t, err)
	f.console = c
	return f
}

func (f *testFixture) signIn() *session.Session {
	s := sessionfake.NewSession("user-1", "jane@example.com", time.Now().Add(time.Hour))
	f.provider.SetSession(s)
	return s
}

func TestNew_RequiresDependencies(t *testing.T) {
	nav := navigation.NewNavigator(navfake.NewRecorder())

	_, err := console.New(nil, nav, &fakeProfiles{})
	require.Error(t, err)
	_, err = console.New(sessionfake.NewFakeProvider(), nil, &fakeProfiles{})
	require.Error(t, err)
	_, err = console.New(sessionfake.NewFakeProvider(), nav, nil)
	require.Error(t, err)
}

func TestEnterRoute_Renders(t *testing.T) {
	f := setupTestFixture(t)
	f.signIn()

	out, err := f.console.EnterRoute(context.Background(), "/dashboard")
	require.NoError(t, err)
	require.True(t, out.Render)
	require.Equal(t, gate.Authorized, out.Authorization)
	require.Equal(t, gate.MainApplication, out.Decision.Class)
	require.Zero(t, f.recorder.Count())
	require.Zero(t, f.provider.Len(), "watch released")
}

func TestEnterRoute_IncompleteProfile(t *testing.T) {
	f := setupTestFixture(t)
	f.signIn()
	f.profiles.profile.FullName = utils.Ptr("")

	out, err := f.console.EnterRoute(context.Background(), "/dashboard")
	require.NoError(t, err)
	require.False(t, out.Render)
	require.Equal(t, "/complete-profile", out.Decision.Redirect)
	require.Equal(t, []string{"/complete-profile"}, f.recorder.Routes())
	require.Equal(t, "/complete-profile", f.nav.Location())

	// Entering the form itself renders it
	out, err = f.console.EnterRoute(context.Background(), "/complete-profile")
	require.NoError(t, err)
	require.True(t, out.Render)
	require.Equal(t, 1, f.recorder.Count())
}

func TestEnterRoute_Denied(t *testing.T) {
	t.Run("no session", func(t *testing.T) {
		f := setupTestFixture(t)

		out, err := f.console.EnterRoute(context.Background(), "/dashboard")
		require.NoError(t, err)
		require.Equal(t, gate.Denied, out.Authorization)
		require.False(t, out.Render)
		require.Equal(t, []string{"/login"}, f.recorder.Routes())
		require.Zero(t, f.profiles.fetches.Load(), "nothing protected is loaded")
	})

	t.Run("expired claims the server still accepts", func(t *testing.T) {
		f := setupTestFixture(t)
		f.provider.SetSession(sessionfake.NewSession("user-1", "jane@example.com", time.Now().Add(-10*time.Second)))

		out, err := f.console.EnterRoute(context.Background(), "/dashboard")
		require.NoError(t, err)
		require.Equal(t, gate.Denied, out.Authorization)
		require.Equal(t, "/login", f.recorder.Last())
	})
}

func TestEnterRoute_ProfileError(t *testing.T) {
	f := setupTestFixture(t)
	f.signIn()
	f.profiles.fetchErr = errors.New("db unavailable")

	out, err := f.console.EnterRoute(context.Background(), "/dashboard")
	require.Error(t, err)
	require.True(t, out.Decision.Retry)
	require.False(t, out.Render)
	require.Zero(t, f.recorder.Count())
}

func TestEnterRoute_SignOutDuringCheckNavigatesOnce(t *testing.T) {
	f := setupTestFixture(t)
	f.signIn()

	checking := make(chan struct{})
	release := make(chan struct{})
	f.provider.VerifiedClaimsFunc = func(ctx context.Context) (*session.Claims, error) {
		close(checking)
		<-release
		return nil, errors.New("no session")
	}

	done := make(chan console.Outcome, 1)
	go func() {
		out, _ := f.console.EnterRoute(context.Background(), "/dashboard")
		done <- out
	}()

	<-checking
	// The gate's watch and the console both head for the login route
	require.NoError(t, f.console.SignOut(context.Background()))
	close(release)

	out := <-done
	require.Equal(t, gate.Denied, out.Authorization)
	require.Equal(t, []string{"/login"}, f.recorder.Routes())
}

func TestEnterRoute_SignOutDuringProfileLoad(t *testing.T) {
	t.Run("incomplete profile", func(t *testing.T) {
		f := setupTestFixture(t)
		f.signIn()
		f.profiles.profile.FullName = nil
		f.profiles.onFetch = func() { f.provider.Emit(session.EventSignedOut, nil) }

		out, err := f.console.EnterRoute(context.Background(), "/dashboard")
		require.NoError(t, err)
		require.Equal(t, gate.Denied, out.Authorization)
		require.False(t, out.Render)
		require.False(t, out.Decision.Evaluated)
		require.Equal(t, []string{"/login"}, f.recorder.Routes())
	})

	t.Run("profile error", func(t *testing.T) {
		f := setupTestFixture(t)
		f.signIn()
		f.profiles.fetchErr = errors.New("db unavailable")
		f.profiles.onFetch = func() { f.provider.Emit(session.EventSignedOut, nil) }

		out, err := f.console.EnterRoute(context.Background(), "/dashboard")
		require.NoError(t, err)
		require.Equal(t, gate.Denied, out.Authorization)
		require.False(t, out.Decision.Retry)
		require.Equal(t, []string{"/login"}, f.recorder.Routes())
	})
}

func TestRootRedirect(t *testing.T) {
	t.Run("cached session goes to dashboard", func(t *testing.T) {
		f := setupTestFixture(t)
		f.signIn()
		f.provider.VerifiedClaimsFunc = func(ctx context.Context) (*session.Claims, error) {
			t.Fatal("root redirect must not wait on the server")
			return nil, nil
		}

		require.Equal(t, "/dashboard", f.console.RootRedirect(context.Background()))
		require.Equal(t, []string{"/dashboard"}, f.recorder.Routes())
	})

	t.Run("no session goes to login", func(t *testing.T) {
		f := setupTestFixture(t)

		require.Equal(t, "/login", f.console.RootRedirect(context.Background()))
		require.Equal(t, []string{"/login"}, f.recorder.Routes())
	})
}

func TestAcceptInvitation(t *testing.T) {
	t.Run("incomplete profile goes to the form", func(t *testing.T) {
		f := setupTestFixture(t)
		f.signIn()
		f.profiles.profile.FullName = nil

		s, err := f.console.AcceptInvitation(context.Background(), "https://console.example.com/accept-invite")
		require.NoError(t, err)
		require.Equal(t, "user-1", s.User.ID)
		require.Equal(t, []string{"/complete-profile"}, f.recorder.Routes())
	})

	t.Run("complete profile goes to dashboard", func(t *testing.T) {
		f := setupTestFixture(t)
		token := sessionfake.MintToken("user-1", "jane@example.com", time.Now().Add(time.Hour))

		_, err := f.console.AcceptInvitation(context.Background(), "https://console.example.com/accept-invite#access_token="+token+"&refresh_token=r1")
		require.NoError(t, err)
		require.Equal(t, []string{"/dashboard"}, f.recorder.Routes())
		require.Equal(t, 1, f.provider.InstallCalls())
	})

	t.Run("link error never navigates", func(t *testing.T) {
		f := setupTestFixture(t)

		_, err := f.console.AcceptInvitation(context.Background(), "https://console.example.com/accept-invite#error=access_denied")
		require.ErrorIs(t, err, invitation.ErrInvitation)
		require.Zero(t, f.recorder.Count())
		require.Zero(t, f.profiles.fetches.Load())
	})
}

func TestCompleteProfile(t *testing.T) {
	f := setupTestFixture(t)
	f.signIn()
	f.profiles.profile.FullName = utils.Ptr("")

	_, err := f.console.EnterRoute(context.Background(), "/dashboard")
	require.NoError(t, err)
	require.Equal(t, "/complete-profile", f.nav.Location())

	_, err = f.console.CompleteProfile(context.Background(), profile.CompletionForm{FullName: "Jane", Email: "not-an-email"})
	require.ErrorIs(t, err, profile.ErrValidation)
	require.Equal(t, 1, f.recorder.Count())

	p, err := f.console.CompleteProfile(context.Background(), profile.CompletionForm{FullName: "Jane Doe", Email: "jane@example.com"})
	require.NoError(t, err)
	require.False(t, p.NeedsCompletion())
	require.Equal(t, []string{"/complete-profile", "/dashboard"}, f.recorder.Routes())
}

func TestCompleteProfile_SessionEnds(t *testing.T) {
	t.Run("signed out while saving", func(t *testing.T) {
		f := setupTestFixture(t)
		f.signIn()
		f.nav.SetLocation("/complete-profile")
		f.profiles.onComplete = func() { f.provider.Emit(session.EventSignedOut, nil) }

		_, err := f.console.CompleteProfile(context.Background(), profile.CompletionForm{FullName: "Jane Doe", Email: "jane@example.com"})
		require.ErrorIs(t, err, api.ErrNoSession)
		require.Equal(t, []string{"/login"}, f.recorder.Routes())
	})

	t.Run("credential rejected", func(t *testing.T) {
		f := setupTestFixture(t)
		f.signIn()
		f.nav.SetLocation("/complete-profile")
		f.profiles.completeErr = fmt.Errorf("[Service.Complete] update credential: %w", api.ErrSessionExpired)

		_, err := f.console.CompleteProfile(context.Background(), profile.CompletionForm{FullName: "Jane Doe", Email: "jane@example.com"})
		require.ErrorIs(t, err, api.ErrSessionExpired)
		require.Equal(t, []string{"/login"}, f.recorder.Routes())
	})

	t.Run("no session", func(t *testing.T) {
		f := setupTestFixture(t)
		f.nav.SetLocation("/complete-profile")

		_, err := f.console.CompleteProfile(context.Background(), profile.CompletionForm{FullName: "Jane Doe", Email: "jane@example.com"})
		require.ErrorIs(t, err, api.ErrNoSession)
		require.Equal(t, []string{"/login"}, f.recorder.Routes())
	})
}

func TestSignOut(t *testing.T) {
	f := setupTestFixture(t)
	f.signIn()

	require.NoError(t, f.console.SignOut(context.Background()))
	require.Equal(t, 1, f.provider.SignOutCalls())
	require.Nil(t, f.provider.CachedSession(context.Background()))
	require.Equal(t, []string{"/login"}, f.recorder.Routes())
}
