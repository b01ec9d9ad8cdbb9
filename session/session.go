package session

import (
	"time"
)

// Session is an access/refresh token pair plus the claims decoded from the
// access token and the identity it belongs to. A session is locally present as
// soon as the provider reports it; it is only verified once its claims have been
// checked against the clock and, for protected entry points, against the server.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Claims       Claims `json:"claims"`
	User         User   `json:"user"`
}

type User struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// Claims are the server attested facts about a session.
type Claims struct {
	Subject   string   `json:"sub"`
	Email     string   `json:"email,omitempty"`
	ExpiresAt int64    `json:"exp"`           // epoch seconds
	IssuedAt  int64    `json:"iat,omitempty"` // epoch seconds
	Roles     []string `json:"roles,omitempty"`
}

// Expired reports whether the claims expired strictly before now.
func (c *Claims) Expired(now time.Time) bool {
	return c.ExpiresAt < now.Unix()
}

// Resolvable reports whether s carries an identity the console can act on.
func (s *Session) Resolvable() bool {
	return s != nil && s.AccessToken != "" && s.User.ID != ""
}

// Expired reports whether the access token of s has expired.
func (s *Session) Expired(now time.Time) bool {
	return s.Claims.Expired(now)
}

// New builds a session from a raw token pair, decoding the access token claims.
func New(accessToken, refreshToken string) (*Session, error) {
	claims, err := ParseClaims(accessToken)
	if err != nil {
		return nil, err
	}
	return &Session{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Claims:       *claims,
		User: User{
			ID:    claims.Subject,
			Email: claims.Email,
		},
	}, nil
}
