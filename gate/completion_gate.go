package gate

import (
	"github.com/jrsteele09/go-admin-console/navigation"
	"github.com/jrsteele09/go-admin-console/profile"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// RouteClass is the part of the console the visitor belongs in.
type RouteClass int

const (
	MainApplication RouteClass = iota
	CompletionForm
)

func (c RouteClass) String() string {
	if c == CompletionForm {
		return "completion_form"
	}
	return "main_application"
}

// CompletionInput is everything the completion gate looks at.
type CompletionInput struct {
	Authorization  State
	ProfileLoading bool
	ProfileErr     error
	Profile        *profile.Profile
	Location       string
}

// CompletionDecision is the outcome of one evaluation. Evaluated is false when
// the gate had nothing to decide on yet; Retry is set when the profile could not
// be fetched and the view should offer to try again.
type CompletionDecision struct {
	Evaluated bool
	Retry     bool
	Class     RouteClass
	Redirect  string
}

// CompletionGate keeps visitors with an incomplete profile on the completion
// form and everyone else off it.
type CompletionGate struct {
	routes navigation.Routes
	nav    navigation.Port
	logger zerolog.Logger
}

func NewCompletionGate(routes navigation.Routes, nav navigation.Port) *CompletionGate {
	return &CompletionGate{
		routes: routes,
		nav:    nav,
		logger: log.Logger,
	}
}

func (g *CompletionGate) WithLogger(logger zerolog.Logger) *CompletionGate {
	g.logger = logger
	return g
}

// Evaluate decides without side effects.
func (g *CompletionGate) Evaluate(in CompletionInput) CompletionDecision {
	if in.Authorization != Authorized || in.ProfileLoading {
		return CompletionDecision{}
	}
	if in.ProfileErr != nil {
		return CompletionDecision{Retry: true}
	}
	if in.Profile == nil {
		return CompletionDecision{}
	}

	d := CompletionDecision{Evaluated: true, Class: MainApplication}
	if in.Profile.NeedsCompletion() {
		d.Class = CompletionForm
	}

	onForm := g.routes.IsCompleteProfile(in.Location)
	switch {
	case d.Class == CompletionForm && !onForm:
		d.Redirect = g.routes.CompleteProfile
	case d.Class == MainApplication && onForm:
		d.Redirect = g.routes.Dashboard
	}
	return d
}

// Apply evaluates and performs the redirect, if any.
func (g *CompletionGate) Apply(in CompletionInput) CompletionDecision {
	d := g.Evaluate(in)
	if d.Redirect != "" {
		g.logger.Debug().Str("location", in.Location).Stringer("class", d.Class).Str("redirect", d.Redirect).Msg("profile completion redirect")
		g.nav.GoTo(d.Redirect)
	}
	return d
}
