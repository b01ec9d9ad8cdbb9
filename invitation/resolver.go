package invitation

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jrsteele09/go-admin-console/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultPollInterval = time.Second
	DefaultMaxAttempts  = 10
	DefaultTimeout      = 15 * time.Second
)

// Stage of an invitation flow.
type Stage int

const (
	ParsingURL Stage = iota
	Polling
	Listening
	Resolved
	TimedOut
	Failed
)

func (s Stage) String() string {
	switch s {
	case ParsingURL:
		return "parsing_url"
	case Polling:
		return "polling"
	case Listening:
		return "listening"
	case Resolved:
		return "resolved"
	case TimedOut:
		return "timed_out"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Handoff is a snapshot of the flow's progress.
type Handoff struct {
	Stage        Stage
	AttemptsUsed int
}

// HandoffFunc receives the established session once the flow resolves.
type HandoffFunc func(ctx context.Context, s *session.Session) error

type ResolverOption func(*Resolver)

func WithPollInterval(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.pollInterval = d
	}
}

func WithMaxAttempts(n int) ResolverOption {
	return func(r *Resolver) {
		r.maxAttempts = n
	}
}

// WithTimeout sets the wall clock limit armed when the flow starts.
func WithTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		r.timeout = d
	}
}

// WithSleep replaces the pause between poll attempts (primarily for testing).
// The function must return early with an error once ctx is done.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) ResolverOption {
	return func(r *Resolver) {
		r.sleep = sleep
	}
}

// WithAfter replaces the timeout timer (primarily for testing)
func WithAfter(after func(d time.Duration) <-chan time.Time) ResolverOption {
	return func(r *Resolver) {
		r.after = after
	}
}

// WithHandoff sets what runs, exactly once, with the established session.
func WithHandoff(handoff HandoffFunc) ResolverOption {
	return func(r *Resolver) {
		r.handoff = handoff
	}
}

func WithLogger(logger zerolog.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// Resolver turns one invitation link into an established session. A Resolver
// is single use.
type Resolver struct {
	provider     session.Provider
	pollInterval time.Duration
	maxAttempts  int
	timeout      time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
	after        func(d time.Duration) <-chan time.Time
	handoff      HandoffFunc
	logger       zerolog.Logger

	started  atomic.Bool
	consumed atomic.Bool

	mu       sync.RWMutex
	progress Handoff
}

func NewResolver(provider session.Provider, options ...ResolverOption) (*Resolver, error) {
	if provider == nil {
		return nil, errors.New("[NewResolver] provider is required")
	}

	r := &Resolver{
		provider:     provider,
		pollInterval: DefaultPollInterval,
		maxAttempts:  DefaultMaxAttempts,
		timeout:      DefaultTimeout,
		sleep:        sleepContext,
		after:        time.After,
		logger:       log.Logger,
	}
	for _, opt := range options {
		opt(r)
	}

	if r.timeout <= 0 {
		return nil, errors.New("[NewResolver] timeout must be positive")
	}
	if r.maxAttempts < 0 {
		return nil, errors.New("[NewResolver] max attempts must not be negative")
	}
	return r, nil
}

// Progress returns the current stage and the number of poll attempts made.
func (r *Resolver) Progress() Handoff {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.progress
}

type outcome struct {
	session *session.Session
	err     error
	stage   Stage
	via     string
}

// Resolve races the link's fragment, a bounded poll of the cached session and
// the sign in event stream against a timeout. The first to produce a session
// wins, everything else is cancelled and the handoff runs once. Cancelling ctx
// tears the flow down. When the handoff fails the established session is
// returned together with its error.
func (r *Resolver) Resolve(ctx context.Context, inviteURL string) (*session.Session, error) {
	if !r.started.CompareAndSwap(false, true) {
		return nil, errors.Wrap(ErrAlreadyStarted, "[Resolver.Resolve]")
	}

	r.setStage(ParsingURL)
	fragment, err := ParseFragment(inviteURL)
	if err != nil {
		r.consumed.Store(true)
		r.setStage(Failed)
		return nil, &InvitationError{Code: "invalid_link", Cause: err}
	}
	if fragment.HasError() {
		r.consumed.Store(true)
		r.setStage(Failed)
		invErr := fragment.invitationError()
		r.logger.Info().Str("code", invErr.Code).Msg("invitation link carries an error")
		return nil, invErr
	}

	o, err := r.race(ctx, fragment)
	if err != nil {
		return nil, err
	}
	r.setStage(o.stage)
	if o.err != nil {
		r.logger.Info().Err(o.err).Stringer("stage", o.stage).Msg("invitation flow failed")
		return nil, o.err
	}

	r.logger.Info().Str("via", o.via).Str("user_id", o.session.User.ID).Msg("invitation resolved")
	if r.handoff != nil {
		if err := r.handoff(ctx, o.session); err != nil {
			return o.session, errors.Wrap(err, "[Resolver.Resolve] handoff")
		}
	}
	return o.session, nil
}

// race runs every path until one commits. All goroutines are joined and the
// subscription released before it returns.
func (r *Resolver) race(parent context.Context, fragment Fragment) (outcome, error) {
	ctx, cancel := context.WithCancel(parent)
	results := make(chan outcome, 1)

	commit := func(o outcome) bool {
		if !r.consumed.CompareAndSwap(false, true) {
			return false
		}
		results <- o
		cancel()
		return true
	}

	var wg sync.WaitGroup
	unsubscribe := func() {}
	defer func() {
		cancel()
		unsubscribe()
		wg.Wait()
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		select {
		case <-r.after(r.timeout):
			commit(outcome{err: ErrInvitationTimeout, stage: TimedOut, via: "timeout"})
		case <-ctx.Done():
		}
	}()

	if fragment.HasTokens() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.install(ctx, fragment, commit)
		}()
	} else {
		unsubscribe = r.provider.Subscribe(func(e session.Event) {
			if r.consumed.Load() {
				return
			}
			if e.Type != session.EventSignedIn || !e.Session.Resolvable() {
				return
			}
			commit(outcome{session: e.Session, stage: Resolved, via: "event"})
		})

		wg.Add(1)
		go func() {
			defer wg.Done()
			r.poll(ctx, commit)
		}()
	}

	select {
	case o := <-results:
		return o, nil
	case <-parent.Done():
		if r.consumed.CompareAndSwap(false, true) {
			r.logger.Debug().Msg("invitation flow torn down")
			return outcome{}, parent.Err()
		}
		// A path committed at the same moment
		return <-results, nil
	}
}

func (r *Resolver) install(ctx context.Context, fragment Fragment, commit func(outcome) bool) {
	s, err := r.provider.InstallSession(ctx, fragment.AccessToken, fragment.RefreshToken)
	if r.consumed.Load() {
		return
	}
	if err != nil {
		commit(outcome{
			err:   &InvitationError{Code: "install_failed", Description: "the invitation tokens were rejected", Cause: err},
			stage: Failed,
			via:   "fragment",
		})
		return
	}
	commit(outcome{session: s, stage: Resolved, via: "fragment"})
}

// poll checks the cached session up to maxAttempts times. Running out of
// attempts leaves the event stream and the timeout to decide.
func (r *Resolver) poll(ctx context.Context, commit func(outcome) bool) {
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		if ctx.Err() != nil || r.consumed.Load() {
			return
		}
		r.recordAttempt(attempt)

		s := r.provider.CachedSession(ctx)
		// An attempt that completes after another path won is dropped
		if ctx.Err() != nil || r.consumed.Load() {
			return
		}
		if s.Resolvable() {
			commit(outcome{session: s, stage: Resolved, via: "poll"})
			return
		}

		if attempt == r.maxAttempts {
			break
		}
		if err := r.sleep(ctx, r.pollInterval); err != nil {
			return
		}
	}

	if !r.consumed.Load() {
		r.setStage(Listening)
		r.logger.Debug().Int("attempt", r.maxAttempts).Msg("polling exhausted, waiting for sign in event")
	}
}

func (r *Resolver) setStage(stage Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress.Stage = stage
}

func (r *Resolver) recordAttempt(attempt int) {
	r.mu.Lock()
	r.progress.Stage = Polling
	r.progress.AttemptsUsed = attempt
	r.mu.Unlock()
	r.logger.Debug().Int("attempt", attempt).Msg("polling for session")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
