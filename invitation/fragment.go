package invitation

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"
)

// Fragment is what an invitation link carries after the '#'.
type Fragment struct {
	AccessToken      string
	RefreshToken     string
	Error            string
	ErrorCode        string
	ErrorDescription string
}

// ParseFragment reads the token pair or the error an identity service appended
// to an invitation link. A link without a fragment yields an empty Fragment.
func ParseFragment(rawURL string) (Fragment, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return Fragment{}, errors.Wrap(err, "[ParseFragment] invalid invitation link")
	}

	raw := u.EscapedFragment()
	if raw == "" {
		return Fragment{}, nil
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return Fragment{}, errors.Wrap(err, "[ParseFragment] invalid fragment")
	}

	return Fragment{
		AccessToken:      values.Get("access_token"),
		RefreshToken:     values.Get("refresh_token"),
		Error:            values.Get("error"),
		ErrorCode:        values.Get("error_code"),
		ErrorDescription: values.Get("error_description"),
	}, nil
}

func (f Fragment) HasError() bool {
	return f.Error != "" || f.ErrorCode != ""
}

// HasTokens reports whether both halves of the token pair are present.
func (f Fragment) HasTokens() bool {
	return f.AccessToken != "" && f.RefreshToken != ""
}

func (f Fragment) invitationError() *InvitationError {
	code := f.ErrorCode
	if code == "" {
		code = f.Error
	}
	return &InvitationError{Code: code, Description: f.ErrorDescription}
}
