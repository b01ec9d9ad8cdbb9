package config

import (
	"os"
	"strconv"
	"time"
)

const (
	appNameVar    = "APP_NAME"
	folderEnvVar  = "FOLDER"
	logLevelVar   = "LOG_LEVEL"
	apiBaseURLVar = "API_BASE_URL"
	envVar        = "ENV"

	// DevEnv is the default environment. It logs for a terminal, every other
	// environment logs JSON.
	DevEnv = "DEV"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Admin Console")
}

func (EnvVars) GetDataFolder() string {
	return GetEnv(folderEnvVar, "./data")
}

func (EnvVars) GetEnv() string {
	return GetEnv(envVar, DevEnv)
}

func (EnvVars) GetLogLevel() string {
	return GetEnv(logLevelVar, "info")
}

// GetAPIBaseURL returns the base URL of the remote API (e.g., "https://api.example.com/v1").
// There is no default, the console refuses to start without it.
func (EnvVars) GetAPIBaseURL() string {
	return os.Getenv(apiBaseURLVar)
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetEnvDuration parses a Go duration ("750ms", "15s"), falling back on error.
func GetEnvDuration(envVar string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return d
}

func GetEnvInt(envVar string, defaultValue int) int {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return i
}
