package profile

import "github.com/jrsteele09/go-admin-console/internal/utils"

// Profile is the visitor's record on the remote API.
type Profile struct {
	ID       string  `json:"id"`
	FullName *string `json:"full_name"`
	Email    *string `json:"email"`
}

// NeedsCompletion reports whether a mandatory field is missing. It is derived
// from the fetched profile every time and never cached.
func (p *Profile) NeedsCompletion() bool {
	return utils.IsBlank(p.FullName) || utils.IsBlank(p.Email)
}
