package session

import "context"

// EventType names an authentication event published by a Provider.
type EventType string

const (
	EventSignedIn       EventType = "SIGNED_IN"
	EventSignedOut      EventType = "SIGNED_OUT"
	EventTokenRefreshed EventType = "TOKEN_REFRESHED"
	EventUserUpdated    EventType = "USER_UPDATED"
)

// Event is delivered to subscribers. Session is nil when the event leaves the
// visitor without a session.
type Event struct {
	Type    EventType
	Session *Session
}

// SessionLost reports whether the event means there is no longer a session.
func (e Event) SessionLost() bool {
	return e.Type == EventSignedOut || e.Session == nil
}

type EventHandler func(Event)

// Unsubscribe releases a subscription. Calling it more than once is a no-op.
type Unsubscribe func()

// Provider is the identity service as the console consumes it.
type Provider interface {
	// CachedSession returns the locally held session or nil.
	CachedSession(ctx context.Context) *Session

	// VerifiedClaims asks the identity service to vouch for the current session.
	VerifiedClaims(ctx context.Context) (*Claims, error)

	// Subscribe registers handler for authentication events.
	Subscribe(handler EventHandler) Unsubscribe

	// SignOut tears down the local session.
	SignOut(ctx context.Context) error

	// InstallSession makes the given token pair the active session.
	InstallSession(ctx context.Context, accessToken, refreshToken string) (*Session, error)

	// UpdateCredential sets a new secret (password) for the signed in identity.
	UpdateCredential(ctx context.Context, newSecret string) error

	// Refresh exchanges the refresh token for a new session.
	Refresh(ctx context.Context) (*Session, error)
}
