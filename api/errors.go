package api

import (
	"fmt"

	autherrors "github.com/jrsteele09/go-admin-console/internal/errors"
)

var (
	// ErrNoSession is returned without touching the network when there is no
	// access token. The client has already redirected to the login route.
	ErrNoSession = autherrors.ErrNoSession

	// ErrSessionExpired is returned after a 401. The client has already signed
	// out and redirected to the login route.
	ErrSessionExpired = autherrors.ErrSessionExpired

	ErrNetwork           = autherrors.ErrNetwork
	ErrMalformedResponse = autherrors.ErrMalformedResponse
	ErrAPI               = autherrors.ErrAPI
)

// APIError is a structured rejection from the remote API.
type APIError struct {
	Status     int    // HTTP status code
	Detail     string // user facing message, the server's detail when present
	RawPayload []byte // response body as received
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (status %d)", e.Detail, e.Status)
}

func (e *APIError) Unwrap() error {
	return ErrAPI
}
