package config

import "time"

type APIConfig interface {
	GetRequestTimeout() time.Duration
	GetProfilePath() string
}

type API struct{}

var _ APIConfig = API{}

func (API) GetRequestTimeout() time.Duration {
	return GetEnvDuration("API_REQUEST_TIMEOUT", 30*time.Second)
}

func (API) GetProfilePath() string {
	return GetEnv("API_PROFILE_PATH", "/users/me")
}
