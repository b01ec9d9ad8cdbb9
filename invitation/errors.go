package invitation

import (
	autherrors "github.com/jrsteele09/go-admin-console/internal/errors"
)

var (
	// ErrInvitationTimeout ends a flow in which no session appeared in time.
	ErrInvitationTimeout = autherrors.ErrInvitationTimeout
	ErrInvitation        = autherrors.ErrInvitation
	ErrAlreadyStarted    = autherrors.ErrAlreadyStarted
)

// InvitationError is a terminal failure signalled by the invitation link itself,
// or a link whose tokens could not be installed.
type InvitationError struct {
	Code        string
	Description string
	Cause       error
}

func (e *InvitationError) Error() string {
	msg := ErrInvitation.Error()
	switch {
	case e.Description != "":
		msg += ": " + e.Description
	case e.Code != "":
		msg += ": " + e.Code
	}
	return msg
}

func (e *InvitationError) Unwrap() []error {
	if e.Cause == nil {
		return []error{ErrInvitation}
	}
	return []error{ErrInvitation, e.Cause}
}
