package errors

import "errors"

// Error taxonomy shared by the console packages. Public packages re-export the
// values they return so callers never import this package directly.
var (
	// Session errors, handled globally (navigation and teardown)
	ErrNoSession      = errors.New("no active session")
	ErrSessionExpired = errors.New("session expired")

	// Transport errors, surfaced to the calling view
	ErrNetwork           = errors.New("unable to reach the server, check your connection and try again")
	ErrAPI               = errors.New("api request failed")
	ErrMalformedResponse = errors.New("the server returned a response that could not be read")

	// Onboarding errors, terminal for the invitation flow
	ErrInvitationTimeout = errors.New("the invitation could not be confirmed in time, please open the invitation link again")
	ErrInvitation        = errors.New("the invitation link is invalid or has expired")

	// Client-side input errors
	ErrValidation = errors.New("validation failed")

	// General errors
	ErrAlreadyStarted = errors.New("already started")
	ErrInvalidToken   = errors.New("invalid token")
)
