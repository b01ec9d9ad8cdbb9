package console

import (
	"context"
	"time"

	"github.com/jrsteele09/go-admin-console/api"
	"github.com/jrsteele09/go-admin-console/gate"
	"github.com/jrsteele09/go-admin-console/invitation"
	"github.com/jrsteele09/go-admin-console/navigation"
	"github.com/jrsteele09/go-admin-console/profile"
	"github.com/jrsteele09/go-admin-console/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Profiles is the part of profile.Service the console drives.
type Profiles interface {
	Fetch(ctx context.Context) (*profile.Profile, error)
	Complete(ctx context.Context, form profile.CompletionForm) (*profile.Profile, error)
}

var _ Profiles = (*profile.Service)(nil)

// Outcome is what happened when a protected route was entered.
type Outcome struct {
	Path          string
	Authorization gate.State
	Profile       *profile.Profile
	Decision      gate.CompletionDecision

	// Render is true when the route may be shown as is
	Render bool
}

// Console runs the authorization pipeline for every navigation.
type Console struct {
	provider   session.Provider
	nav        *navigation.Navigator
	routes     navigation.Routes
	profiles   Profiles
	security   *gate.SecurityGate
	completion *gate.CompletionGate

	inviteRoute     string
	resolverOptions []invitation.ResolverOption
	nowTime         func() time.Time
	logger          zerolog.Logger
}

type Option func(*Console)

func WithRoutes(routes navigation.Routes) Option {
	return func(c *Console) {
		c.routes = routes
	}
}

// WithResolverOptions configures every invitation flow the console starts.
func WithResolverOptions(options ...invitation.ResolverOption) Option {
	return func(c *Console) {
		c.resolverOptions = append(c.resolverOptions, options...)
	}
}

// WithInviteRoute sets the location the invitation link opens.
func WithInviteRoute(route string) Option {
	return func(c *Console) {
		c.inviteRoute = route
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(c *Console) {
		c.nowTime = nowFunc
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Console) {
		c.logger = logger
	}
}

func New(provider session.Provider, nav *navigation.Navigator, profiles Profiles, options ...Option) (*Console, error) {
	if provider == nil {
		return nil, errors.New("[console.New] provider is required")
	}
	if nav == nil {
		return nil, errors.New("[console.New] navigator is required")
	}
	if profiles == nil {
		return nil, errors.New("[console.New] profiles are required")
	}

	c := &Console{
		provider:    provider,
		nav:         nav,
		routes:      navigation.DefaultRoutes(),
		profiles:    profiles,
		inviteRoute: "/accept-invite",
		nowTime:     time.Now,
		logger:      log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}

	security, err := gate.NewSecurityGate(provider, nav, gate.WithNowTime(c.nowTime), gate.WithLogger(c.logger))
	if err != nil {
		return nil, errors.Wrap(err, "[console.New]")
	}
	c.security = security
	c.completion = gate.NewCompletionGate(c.routes, nav).WithLogger(c.logger)
	return c, nil
}

// EnterRoute runs the security gate and then the completion gate for a
// protected path. A denied visitor has already been sent to the login route
// when it returns, including one whose session ended while the profile was
// loading; the completion gate is skipped then. A profile error is returned with an Outcome whose decision
// asks for a retry.
func (c *Console) EnterRoute(ctx context.Context, path string) (Outcome, error) {
	c.nav.SetLocation(path)
	out := Outcome{Path: path, Authorization: gate.Loading}

	auth := c.security.Authorize(ctx, c.routes.Login)
	defer auth.Close()

	state, err := auth.Wait(ctx)
	out.Authorization = state
	if err != nil {
		return out, errors.Wrap(err, "[Console.EnterRoute] authorization interrupted")
	}
	if state != gate.Authorized {
		c.logger.Info().Str("route", path).Stringer("state", state).Msg("route denied")
		return out, nil
	}

	p, err := c.profiles.Fetch(ctx)
	out.Profile = p
	// The session may have ended while the profile was loading
	out.Authorization = auth.State()
	if out.Authorization != gate.Authorized {
		c.logger.Info().Str("route", path).Stringer("state", out.Authorization).Msg("session lost during profile load")
		return out, nil
	}

	out.Decision = c.completion.Apply(gate.CompletionInput{
		Authorization: out.Authorization,
		ProfileErr:    err,
		Profile:       p,
		Location:      path,
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("route", path).Msg("profile unavailable")
		return out, errors.Wrap(err, "[Console.EnterRoute] profile")
	}

	out.Render = out.Decision.Evaluated && out.Decision.Redirect == ""
	return out, nil
}

// RootRedirect sends the visitor from the bare root to the dashboard or the
// login route. Only the cached session is consulted; the dashboard itself is
// guarded by EnterRoute.
func (c *Console) RootRedirect(ctx context.Context) string {
	target := c.routes.Login
	if s := c.provider.CachedSession(ctx); s.Resolvable() && !s.Expired(c.nowTime()) {
		target = c.routes.Dashboard
	}
	c.nav.GoTo(target)
	return target
}

// AcceptInvitation turns an invitation link into a session and then sends the
// visitor wherever the completion gate says. Failures never navigate.
func (c *Console) AcceptInvitation(ctx context.Context, inviteURL string) (*session.Session, error) {
	c.nav.SetLocation(c.inviteRoute)

	options := append([]invitation.ResolverOption{invitation.WithLogger(c.logger)}, c.resolverOptions...)
	options = append(options, invitation.WithHandoff(c.handoff))
	resolver, err := invitation.NewResolver(c.provider, options...)
	if err != nil {
		return nil, errors.Wrap(err, "[Console.AcceptInvitation]")
	}
	return resolver.Resolve(ctx, inviteURL)
}

func (c *Console) handoff(ctx context.Context, s *session.Session) error {
	p, err := c.profiles.Fetch(ctx)
	d := c.completion.Apply(gate.CompletionInput{
		Authorization: gate.Authorized,
		ProfileErr:    err,
		Profile:       p,
		Location:      c.nav.Location(),
	})
	if err != nil {
		return err
	}
	// Leave the invitation page for the application proper
	if d.Evaluated && d.Redirect == "" && d.Class == gate.MainApplication {
		c.nav.GoTo(c.routes.Dashboard)
	}
	return nil
}

// CompleteProfile saves the completion form and moves the visitor on. The
// save runs under a security gate watch, so a session that ends part way
// sends the visitor to the login route instead.
func (c *Console) CompleteProfile(ctx context.Context, form profile.CompletionForm) (*profile.Profile, error) {
	location := c.nav.Location()
	auth := c.security.Authorize(ctx, c.routes.Login)
	defer auth.Close()

	state, err := auth.Wait(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "[Console.CompleteProfile] authorization interrupted")
	}
	if state != gate.Authorized {
		return nil, errors.Wrap(api.ErrNoSession, "[Console.CompleteProfile]")
	}

	p, err := c.profiles.Complete(ctx, form)
	if errors.Is(err, api.ErrSessionExpired) {
		c.nav.GoTo(c.routes.Login)
	}
	if err != nil {
		return nil, err
	}

	state = auth.State()
	if state != gate.Authorized {
		c.logger.Info().Stringer("state", state).Msg("session lost during profile save")
		return p, errors.Wrap(api.ErrNoSession, "[Console.CompleteProfile]")
	}
	c.completion.Apply(gate.CompletionInput{
		Authorization: state,
		Profile:       p,
		Location:      location,
	})
	return p, nil
}

// SignOut ends the session and returns to the login route.
func (c *Console) SignOut(ctx context.Context) error {
	err := c.provider.SignOut(ctx)
	c.nav.GoTo(c.routes.Login)
	if err != nil {
		return errors.Wrap(err, "[Console.SignOut]")
	}
	return nil
}
