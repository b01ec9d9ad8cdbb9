package gate

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-admin-console/navigation"
	"github.com/jrsteele09/go-admin-console/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// SecurityGate decides whether the visitor may see a protected view.
type SecurityGate struct {
	provider session.Provider
	nav      navigation.Port
	nowTime  func() time.Time
	logger   zerolog.Logger
}

type SecurityGateOption func(*SecurityGate)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) SecurityGateOption {
	return func(g *SecurityGate) {
		g.nowTime = nowFunc
	}
}

func WithLogger(logger zerolog.Logger) SecurityGateOption {
	return func(g *SecurityGate) {
		g.logger = logger
	}
}

func NewSecurityGate(provider session.Provider, nav navigation.Port, options ...SecurityGateOption) (*SecurityGate, error) {
	if provider == nil {
		return nil, errors.New("[NewSecurityGate] provider is required")
	}
	if nav == nil {
		return nil, errors.New("[NewSecurityGate] navigation port is required")
	}

	g := &SecurityGate{
		provider: provider,
		nav:      nav,
		nowTime:  time.Now,
		logger:   log.Logger,
	}
	for _, opt := range options {
		opt(g)
	}
	return g, nil
}

// Authorize starts a watch for one protected view. The watch begins in Loading,
// moves to Authorized or Denied once the server has vouched (or failed to vouch)
// for the session, and moves to Denied whenever the provider reports the
// session gone. Denied redirects to redirectTarget exactly once. The caller must
// Close the watch when the view is torn down.
func (g *SecurityGate) Authorize(ctx context.Context, redirectTarget string) *Authorization {
	ctx, cancel := context.WithCancel(ctx)

	a := &Authorization{
		state:   Loading,
		changes: make(chan State, 2),
		settled: make(chan struct{}),
		closing: make(chan struct{}),
		cancel:  cancel,
		logger:  g.logger.With().Str("route", redirectTarget).Logger(),
		redirect: func() {
			g.nav.GoTo(redirectTarget)
		},
	}

	// Subscribe before checking so a sign out during the check is not missed
	a.unsubscribe = g.provider.Subscribe(func(e session.Event) {
		if e.SessionLost() {
			a.transition(Denied, "auth event "+string(e.Type))
		}
	})

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		g.check(ctx, a)
	}()

	return a
}

func (g *SecurityGate) check(ctx context.Context, a *Authorization) {
	claims, err := g.provider.VerifiedClaims(ctx)
	if ctx.Err() != nil {
		return
	}

	switch {
	case err != nil:
		a.logger.Debug().Err(err).Msg("claim verification failed")
		a.transition(Denied, "claims unavailable")
	case claims == nil:
		a.transition(Denied, "no claims")
	case claims.Expired(g.nowTime()):
		// The remote check may have succeeded on a stale cache
		a.transition(Denied, "claims expired")
	default:
		a.transition(Authorized, "claims verified")
	}
}

// Authorization is the live result of SecurityGate.Authorize.
type Authorization struct {
	mu      sync.Mutex
	state   State
	closed  bool
	changes chan State
	settled chan struct{}
	closing chan struct{}

	redirect    func()
	unsubscribe session.Unsubscribe
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	logger      zerolog.Logger
}

// transition moves forward from Loading, or from Authorized to Denied. Denied is
// terminal. The redirect runs under the lock so none can fire after Close.
func (a *Authorization) transition(to State, reason string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed || a.state == Denied || a.state == to {
		return
	}
	if to == Authorized && a.state != Loading {
		return
	}

	from := a.state
	a.state = to
	a.changes <- to
	if from == Loading {
		close(a.settled)
	}
	a.logger.Debug().Stringer("from", from).Stringer("to", to).Str("reason", reason).Msg("authorization changed")

	if to == Denied {
		a.redirect()
	}
}

// State returns the current state.
func (a *Authorization) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Changes delivers every transition out of Loading. It is closed by Close.
func (a *Authorization) Changes() <-chan State {
	return a.changes
}

// Wait blocks until the watch leaves Loading, is closed, or ctx is done.
func (a *Authorization) Wait(ctx context.Context) (State, error) {
	select {
	case <-a.settled:
	case <-a.closing:
	case <-ctx.Done():
		return a.State(), ctx.Err()
	}
	return a.State(), nil
}

// Close tears the watch down: the subscription is released, an in-flight claim
// check is cancelled, and no further redirect can happen. Safe to call twice.
func (a *Authorization) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	close(a.changes)
	close(a.closing)
	a.mu.Unlock()

	a.unsubscribe()
	a.cancel()
	a.wg.Wait()
}
