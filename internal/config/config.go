package config

import (
	"fmt"
	"net/url"
)

type Config interface {
	EnvConfig
	IdentityConfig
	RoutesConfig
	InvitationConfig
	APIConfig
}

type EnvConfig interface {
	GetAppName() string
	GetDataFolder() string
	GetEnv() string
	GetLogLevel() string
	GetAPIBaseURL() string
}

type mainConfig struct {
	EnvVars
	Identity
	Routes
	Invitation
	API
}

func New() Config {
	return mainConfig{}
}

// Load returns the environment backed configuration, failing when a required
// value is missing or malformed.
func Load() (Config, error) {
	c := New()
	if err := Validate(c); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks the values the console cannot start without.
func Validate(c Config) error {
	base := c.GetAPIBaseURL()
	if base == "" {
		return fmt.Errorf("%s is required", apiBaseURLVar)
	}
	u, err := url.Parse(base)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", apiBaseURLVar, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return fmt.Errorf("%s must be an absolute URL, got %q", apiBaseURLVar, base)
	}
	if c.GetLoginRoute() == "" || c.GetDashboardRoute() == "" || c.GetCompleteProfileRoute() == "" {
		return fmt.Errorf("navigation routes must not be empty")
	}
	if c.GetMaxPollAttempts() < 0 {
		return fmt.Errorf("%s must not be negative", maxPollAttemptsVar)
	}
	return nil
}
