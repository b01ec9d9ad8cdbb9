package cmd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"github.com/jrsteele09/go-admin-console/api"
	"github.com/jrsteele09/go-admin-console/console"
	"github.com/jrsteele09/go-admin-console/identity"
	"github.com/jrsteele09/go-admin-console/internal/config"
	"github.com/jrsteele09/go-admin-console/invitation"
	"github.com/jrsteele09/go-admin-console/navigation"
	"github.com/jrsteele09/go-admin-console/profile"
	"github.com/jrsteele09/go-admin-console/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const sessionFile = "session.json"

// app is the console wired against a real deployment.
type app struct {
	config   config.Config
	routes   navigation.Routes
	identity *identity.Client
	nav      *navigation.Navigator
	api      *api.Client
	console  *console.Console
}

func newApp(ctx context.Context, c config.Config, out io.Writer) (*app, error) {
	a := &app{
		config: c,
		routes: navigation.Routes{
			Login:           c.GetLoginRoute(),
			Dashboard:       c.GetDashboardRoute(),
			CompleteProfile: c.GetCompleteProfileRoute(),
		},
	}

	port := navigation.PortFunc(func(route string) {
		fmt.Fprintf(out, "navigate: %s\n", route)
	})
	a.nav = navigation.NewNavigator(port)

	httpClient := &http.Client{Timeout: c.GetRequestTimeout()}
	store := session.NewFileStore(filepath.Join(c.GetDataFolder(), sessionFile))

	var err error
	a.identity, err = identity.New(ctx, c.GetIdentityIssuerURL(), c.GetIdentityClientID(),
		identity.WithStore(store),
		identity.WithHTTPClient(httpClient),
		identity.WithCredentialPath(c.GetCredentialPath()),
	)
	if err != nil {
		return nil, errors.Wrap(err, "[newApp] identity service")
	}

	a.api, err = api.NewClient(c.GetAPIBaseURL(), a.identity, a.nav,
		api.WithHTTPClient(httpClient),
		api.WithLoginRoute(a.routes.Login),
	)
	if err != nil {
		return nil, errors.Wrap(err, "[newApp] api client")
	}

	profiles, err := profile.NewService(a.api, a.identity, c.GetProfilePath())
	if err != nil {
		return nil, errors.Wrap(err, "[newApp] profile service")
	}

	a.console, err = console.New(a.identity, a.nav, profiles,
		console.WithRoutes(a.routes),
		console.WithInviteRoute(c.GetInviteRoute()),
		console.WithResolverOptions(
			invitation.WithPollInterval(c.GetPollInterval()),
			invitation.WithMaxAttempts(c.GetMaxPollAttempts()),
			invitation.WithTimeout(c.GetInvitationTimeout()),
		),
		console.WithLogger(log.Logger),
	)
	if err != nil {
		return nil, errors.Wrap(err, "[newApp] console")
	}
	return a, nil
}
