package invitation_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jrsteele09/go-admin-console/invitation"
	"github.com/jrsteele09/go-admin-console/session"
	"github.com/jrsteele09/go-admin-console/session/sessionfake"
	"github.com/stretchr/testify/require"
)

const inviteURL = "https://console.example.com/accept-invite"

type testFixture struct {
	provider *sessionfake.FakeProvider
	handoffs atomic.Int32
	handedTo atomic.Pointer[session.Session]
	sleeps   atomic.Int32
	timeout  chan time.Time
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	return &testFixture{
		provider: sessionfake.NewFakeProvider(),
		timeout:  make(chan time.Time, 2),
	}
}

func (f *testFixture) resolver(t *testing.T, options ...invitation.ResolverOption) *invitation.Resolver {
	t.Helper()

	defaults := []invitation.ResolverOption{
		invitation.WithMaxAttempts(3),
		invitation.WithSleep(func(ctx context.Context, d time.Duration) error {
			f.sleeps.Add(1)
			return ctx.Err()
		}),
		invitation.WithAfter(func(d time.Duration) <-chan time.Time { return f.timeout }),
		invitation.WithHandoff(func(ctx context.Context, s *session.Session) error {
			f.handoffs.Add(1)
			f.handedTo.Store(s)
			return nil
		}),
	}
	r, err := invitation.NewResolver(f.provider, append(defaults, options...)...)
	require.NoError(t, err)
	return r
}

// blockingSleep parks the poll loop until the flow is cancelled.
func blockingSleep(ctx context.Context, d time.Duration) error {
	<-ctx.Done()
	return ctx.Err()
}

type result struct {
	session *session.Session
	err     error
}

func resolveAsync(r *invitation.Resolver, ctx context.Context, url string) <-chan result {
	done := make(chan result, 1)
	go func() {
		s, err := r.Resolve(ctx, url)
		done <- result{session: s, err: err}
	}()
	return done
}

func await(t *testing.T, done <-chan result) result {
	t.Helper()
	select {
	case res := <-done:
		return res
	case <-time.After(2 * time.Second):
		t.Fatal("resolver did not finish")
		return result{}
	}
}

func TestNewResolver_Validation(t *testing.T) {
	_, err := invitation.NewResolver(nil)
	require.Error(t, err)

	_, err = invitation.NewResolver(sessionfake.NewFakeProvider(), invitation.WithTimeout(0))
	require.Error(t, err)

	_, err = invitation.NewResolver(sessionfake.NewFakeProvider(), invitation.WithMaxAttempts(-1))
	require.Error(t, err)
}

func TestResolve_FragmentErrorNeverPolls(t *testing.T) {
	f := setupTestFixture(t)
	r := f.resolver(t)

	_, err := r.Resolve(context.Background(), inviteURL+"#error=access_denied&error_code=otp_expired&error_description=Email+link+is+invalid+or+has+expired")
	require.ErrorIs(t, err, invitation.ErrInvitation)

	var invErr *invitation.InvitationError
	require.True(t, errors.As(err, &invErr))
	require.Equal(t, "otp_expired", invErr.Code)
	require.Equal(t, "Email link is invalid or has expired", invErr.Description)
	require.Contains(t, err.Error(), "Email link is invalid")

	require.Zero(t, f.provider.CachedSessionCalls())
	require.Zero(t, f.provider.InstallCalls())
	require.Zero(t, f.provider.Len())
	require.Zero(t, f.handoffs.Load())
	require.Equal(t, invitation.Handoff{Stage: invitation.Failed}, r.Progress())
}

func TestResolve_FragmentTokens(t *testing.T) {
	f := setupTestFixture(t)
	r := f.resolver(t)

	token := sessionfake.MintToken("user-9", "new@example.com", time.Now().Add(time.Hour))
	s, err := r.Resolve(context.Background(), inviteURL+"#access_token="+token+"&refresh_token=r-9&type=invite")
	require.NoError(t, err)
	require.Equal(t, "user-9", s.User.ID)
	require.Equal(t, "r-9", s.RefreshToken)

	require.Equal(t, 1, f.provider.InstallCalls())
	require.Zero(t, f.provider.CachedSessionCalls(), "fragment tokens skip polling")
	require.Equal(t, int32(1), f.handoffs.Load())
	require.Same(t, s, f.handedTo.Load())
	require.Equal(t, invitation.Resolved, r.Progress().Stage)
}

func TestResolve_FragmentTokensRejected(t *testing.T) {
	f := setupTestFixture(t)
	f.provider.InstallSessionFunc = func(ctx context.Context, accessToken, refreshToken string) (*session.Session, error) {
		return nil, errors.New("token revoked")
	}
	r := f.resolver(t)

	_, err := r.Resolve(context.Background(), inviteURL+"#access_token=abc&refresh_token=def")
	require.ErrorIs(t, err, invitation.ErrInvitation)

	var invErr *invitation.InvitationError
	require.True(t, errors.As(err, &invErr))
	require.EqualError(t, invErr.Cause, "token revoked")
	require.Zero(t, f.handoffs.Load())
	require.Equal(t, invitation.Failed, r.Progress().Stage)
}

func TestResolve_PollFindsSession(t *testing.T) {
	f := setupTestFixture(t)
	established := sessionfake.NewSession("user-1", "jane@example.com", time.Now().Add(time.Hour))

	var calls atomic.Int32
	f.provider.CachedSessionFunc = func(ctx context.Context) *session.Session {
		if calls.Add(1) < 3 {
			return nil
		}
		return established
	}
	r := f.resolver(t, invitation.WithMaxAttempts(5))

	s, err := r.Resolve(context.Background(), inviteURL)
	require.NoError(t, err)
	require.Same(t, established, s)
	require.Equal(t, invitation.Handoff{Stage: invitation.Resolved, AttemptsUsed: 3}, r.Progress())
	require.Equal(t, int32(2), f.sleeps.Load())
	require.Equal(t, int32(1), f.handoffs.Load())
	require.Zero(t, f.provider.Len(), "subscription released")
}

func TestResolve_PollIgnoresUnresolvableSession(t *testing.T) {
	f := setupTestFixture(t)
	f.provider.CachedSessionFunc = func(ctx context.Context) *session.Session {
		return &session.Session{AccessToken: "token-without-user"}
	}
	r := f.resolver(t)

	done := resolveAsync(r, context.Background(), inviteURL)
	require.Eventually(t, func() bool { return r.Progress().Stage == invitation.Listening }, time.Second, 5*time.Millisecond)
	f.timeout <- time.Now()

	res := await(t, done)
	require.ErrorIs(t, res.err, invitation.ErrInvitationTimeout)
	require.Equal(t, 3, r.Progress().AttemptsUsed)
}

func TestResolve_EventWins(t *testing.T) {
	f := setupTestFixture(t)
	r := f.resolver(t, invitation.WithSleep(blockingSleep), invitation.WithMaxAttempts(10))

	done := resolveAsync(r, context.Background(), inviteURL)
	require.Eventually(t, func() bool { return f.provider.Len() == 1 }, time.Second, 5*time.Millisecond)

	// Events without a resolvable session do not count
	f.provider.Emit(session.EventSignedIn, nil)
	f.provider.Emit(session.EventTokenRefreshed, sessionfake.NewSession("user-2", "", time.Now().Add(time.Hour)))

	established := sessionfake.NewSession("user-1", "jane@example.com", time.Now().Add(time.Hour))
	f.provider.Emit(session.EventSignedIn, established)

	res := await(t, done)
	require.NoError(t, res.err)
	require.Same(t, established, res.session)
	require.Equal(t, int32(1), f.handoffs.Load())
	require.Zero(t, f.provider.Len())

	// Late events and timers are dropped
	calls := f.provider.CachedSessionCalls()
	f.provider.Emit(session.EventSignedIn, sessionfake.NewSession("user-3", "", time.Now().Add(time.Hour)))
	f.timeout <- time.Now()
	require.Equal(t, int32(1), f.handoffs.Load())
	require.Equal(t, calls, f.provider.CachedSessionCalls(), "polling stopped")
}

func TestResolve_PollAndEventRaceResolveOnce(t *testing.T) {
	for i := 0; i < 50; i++ {
		f := setupTestFixture(t)
		established := sessionfake.NewSession("user-1", "jane@example.com", time.Now().Add(time.Hour))

		var wg sync.WaitGroup
		f.provider.CachedSessionFunc = func(ctx context.Context) *session.Session {
			wg.Add(1)
			go func() {
				defer wg.Done()
				f.provider.Emit(session.EventSignedIn, established)
			}()
			return established
		}
		r := f.resolver(t)

		s, err := r.Resolve(context.Background(), inviteURL)
		require.NoError(t, err)
		require.Same(t, established, s)

		wg.Wait()
		require.Equal(t, int32(1), f.handoffs.Load())
		require.Equal(t, 1, r.Progress().AttemptsUsed)
	}
}

func TestResolve_EventDuringPollAttempt(t *testing.T) {
	f := setupTestFixture(t)
	established := sessionfake.NewSession("user-1", "jane@example.com", time.Now().Add(time.Hour))

	// The event commits while the poll attempt is in flight, the attempt's
	// own success must then be dropped
	f.provider.CachedSessionFunc = func(ctx context.Context) *session.Session {
		f.provider.Emit(session.EventSignedIn, established)
		return established
	}
	r := f.resolver(t)

	_, err := r.Resolve(context.Background(), inviteURL)
	require.NoError(t, err)
	require.Equal(t, int32(1), f.handoffs.Load())
	require.Zero(t, f.sleeps.Load())
}

func TestResolve_TimeoutOnce(t *testing.T) {
	f := setupTestFixture(t)
	r := f.resolver(t)

	// Two timer deliveries still end the flow exactly once
	f.timeout <- time.Now()
	f.timeout <- time.Now()

	_, err := r.Resolve(context.Background(), inviteURL)
	require.ErrorIs(t, err, invitation.ErrInvitationTimeout)
	require.Equal(t, invitation.TimedOut, r.Progress().Stage)
	require.Zero(t, f.handoffs.Load())
	require.Zero(t, f.provider.Len())

	_, err = r.Resolve(context.Background(), inviteURL)
	require.ErrorIs(t, err, invitation.ErrAlreadyStarted)
}

func TestResolve_TimeoutAfterPollingExhausted(t *testing.T) {
	f := setupTestFixture(t)
	r := f.resolver(t)

	done := resolveAsync(r, context.Background(), inviteURL)
	require.Eventually(t, func() bool { return r.Progress().Stage == invitation.Listening }, time.Second, 5*time.Millisecond)

	// Exhaustion alone does not end the flow
	select {
	case <-done:
		t.Fatal("flow ended before the timeout")
	case <-time.After(20 * time.Millisecond):
	}
	require.Equal(t, 1, f.provider.Len())

	f.timeout <- time.Now()
	res := await(t, done)
	require.ErrorIs(t, res.err, invitation.ErrInvitationTimeout)
	require.Equal(t, invitation.Handoff{Stage: invitation.TimedOut, AttemptsUsed: 3}, r.Progress())
	require.Equal(t, 3, f.provider.CachedSessionCalls())
}

func TestResolve_Teardown(t *testing.T) {
	f := setupTestFixture(t)
	r := f.resolver(t, invitation.WithSleep(blockingSleep))

	ctx, cancel := context.WithCancel(context.Background())
	done := resolveAsync(r, ctx, inviteURL)
	require.Eventually(t, func() bool { return r.Progress().AttemptsUsed == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	res := await(t, done)
	require.ErrorIs(t, res.err, context.Canceled)
	require.Zero(t, f.provider.Len())

	f.provider.Emit(session.EventSignedIn, sessionfake.NewSession("user-1", "", time.Now().Add(time.Hour)))
	f.timeout <- time.Now()
	require.Zero(t, f.handoffs.Load())
	require.Equal(t, 1, f.provider.CachedSessionCalls())
}

func TestResolve_HandoffError(t *testing.T) {
	f := setupTestFixture(t)
	f.provider.SetSession(sessionfake.NewSession("user-1", "jane@example.com", time.Now().Add(time.Hour)))

	r := f.resolver(t, invitation.WithHandoff(func(ctx context.Context, s *session.Session) error {
		return errors.New("profile unavailable")
	}))

	s, err := r.Resolve(context.Background(), inviteURL)
	require.Error(t, err)
	require.Contains(t, err.Error(), "profile unavailable")
	require.NotNil(t, s, "the session is established even when the handoff fails")
}

func TestStage_String(t *testing.T) {
	require.Equal(t, "parsing_url", invitation.ParsingURL.String())
	require.Equal(t, "timed_out", invitation.TimedOut.String())
	require.Equal(t, "failed", invitation.Failed.String())
}
