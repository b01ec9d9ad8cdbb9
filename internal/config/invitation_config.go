package config

import "time"

const maxPollAttemptsVar = "INVITATION_MAX_POLL_ATTEMPTS"

type InvitationConfig interface {
	GetPollInterval() time.Duration
	GetMaxPollAttempts() int
	GetInvitationTimeout() time.Duration
}

type Invitation struct{}

var _ InvitationConfig = Invitation{}

func (Invitation) GetPollInterval() time.Duration {
	return GetEnvDuration("INVITATION_POLL_INTERVAL", time.Second)
}

func (Invitation) GetMaxPollAttempts() int {
	return GetEnvInt(maxPollAttemptsVar, 10)
}

// GetInvitationTimeout is independent of the poll cadence.
func (Invitation) GetInvitationTimeout() time.Duration {
	return GetEnvDuration("INVITATION_TIMEOUT", 15*time.Second)
}
