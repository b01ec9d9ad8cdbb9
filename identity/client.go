package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	autherrors "github.com/jrsteele09/go-admin-console/internal/errors"
	"github.com/jrsteele09/go-admin-console/internal/utils"
	"github.com/jrsteele09/go-admin-console/session"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultCredentialPath = "/user"
	refreshKey            = "refresh"
)

var _ session.Provider = (*Client)(nil)

// Client is the session.Provider backed by a remote OpenID Connect identity
// service. The session itself lives in a session.Store.
type Client struct {
	issuerURL     string
	credentialURL string
	provider      *oidc.Provider
	oauth         oauth2.Config
	httpClient    *http.Client
	store         session.Store
	events        *session.Broadcaster
	refreshGroup  singleflight.Group
	nowTime       func() time.Time
	logger        zerolog.Logger
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithStore sets where the session is kept. The default is in memory.
func WithStore(store session.Store) Option {
	return func(c *Client) {
		c.store = store
	}
}

// WithCredentialPath sets the identity service path that accepts a new password.
func WithCredentialPath(path string) Option {
	return func(c *Client) {
		c.credentialURL = path
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(c *Client) {
		c.nowTime = nowFunc
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New discovers the identity service at issuerURL and returns a client for the
// public OAuth client clientID.
func New(ctx context.Context, issuerURL, clientID string, options ...Option) (*Client, error) {
	if issuerURL == "" {
		return nil, errors.New("[identity.New] issuer URL is required")
	}
	if clientID == "" {
		return nil, errors.New("[identity.New] client ID is required")
	}

	c := &Client{
		issuerURL:     issuerURL,
		credentialURL: DefaultCredentialPath,
		httpClient:    http.DefaultClient,
		store:         session.NewMemoryStore(),
		events:        session.NewBroadcaster(),
		nowTime:       time.Now,
		logger:        log.Logger,
	}
	for _, opt := range options {
		opt(c)
	}
	c.credentialURL = utils.JoinURL(issuerURL, c.credentialURL)

	provider, err := oidc.NewProvider(c.clientContext(ctx), issuerURL)
	if err != nil {
		return nil, errors.Wrap(err, "[identity.New] discovery failed")
	}
	c.provider = provider

	endpoint := provider.Endpoint()
	// Public client, there is no secret to send in a header
	endpoint.AuthStyle = oauth2.AuthStyleInParams
	c.oauth = oauth2.Config{
		ClientID: clientID,
		Endpoint: endpoint,
		Scopes:   []string{oidc.ScopeOpenID, "profile", "email", oidc.ScopeOfflineAccess},
	}
	return c, nil
}

func (c *Client) clientContext(ctx context.Context) context.Context {
	return oidc.ClientContext(ctx, c.httpClient)
}

// CachedSession returns the stored session. An expired access token is
// refreshed first when a refresh token is available.
func (c *Client) CachedSession(ctx context.Context) *session.Session {
	s, err := c.store.Load()
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to load session")
		return nil
	}
	if s == nil || !s.Expired(c.nowTime()) || s.RefreshToken == "" {
		return s
	}

	refreshed, err := c.Refresh(ctx)
	if err != nil {
		if errors.Is(err, autherrors.ErrNoSession) {
			return nil
		}
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil
		}
		// Transient failure, callers get the stale session and the server decides
		return s
	}
	return refreshed
}

// VerifiedClaims asks the identity service's UserInfo endpoint to vouch for the
// current access token. The claims returned are the token's own, with the
// server's view of the email.
func (c *Client) VerifiedClaims(ctx context.Context) (*session.Claims, error) {
	s := c.CachedSession(ctx)
	if s == nil {
		return nil, autherrors.ErrNoSession
	}

	info, err := c.userInfo(ctx, s.AccessToken)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.VerifiedClaims]")
	}
	if info.Subject != s.Claims.Subject {
		return nil, errors.Wrapf(autherrors.ErrInvalidToken, "[Client.VerifiedClaims] subject mismatch %q", info.Subject)
	}

	claims := s.Claims
	if info.Email != "" {
		claims.Email = info.Email
	}
	return &claims, nil
}

func (c *Client) userInfo(ctx context.Context, accessToken string) (*oidc.UserInfo, error) {
	tokenSource := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
	return c.provider.UserInfo(c.clientContext(ctx), tokenSource)
}

func (c *Client) Subscribe(handler session.EventHandler) session.Unsubscribe {
	return c.events.Subscribe(handler)
}

// SignOut forgets the local session. It always publishes EventSignedOut.
func (c *Client) SignOut(ctx context.Context) error {
	err := c.store.Clear()
	c.events.Publish(session.Event{Type: session.EventSignedOut})
	if err != nil {
		return errors.Wrap(err, "[Client.SignOut] failed to clear session")
	}
	return nil
}

// InstallSession adopts a token pair handed over out of band, typically by an
// invitation link, after the identity service has vouched for it.
func (c *Client) InstallSession(ctx context.Context, accessToken, refreshToken string) (*session.Session, error) {
	s, err := session.New(accessToken, refreshToken)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.InstallSession]")
	}

	info, err := c.userInfo(ctx, accessToken)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.InstallSession] token not accepted")
	}
	if info.Subject != s.Claims.Subject {
		return nil, errors.Wrapf(autherrors.ErrInvalidToken, "[Client.InstallSession] subject mismatch %q", info.Subject)
	}
	if s.User.Email == "" {
		s.User.Email = info.Email
	}

	if err := c.store.Save(s); err != nil {
		return nil, errors.Wrap(err, "[Client.InstallSession] failed to save session")
	}
	c.logger.Info().Str("user_id", s.User.ID).Msg("session installed")
	c.events.Publish(session.Event{Type: session.EventSignedIn, Session: s})
	return s, nil
}

// Refresh exchanges the refresh token for a new token pair. Concurrent callers
// share one exchange. A refresh token the identity service rejects ends the
// session.
func (c *Client) Refresh(ctx context.Context) (*session.Session, error) {
	v, err, shared := c.refreshGroup.Do(refreshKey, func() (any, error) {
		return c.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug().Msg("joined in-flight token refresh")
	}
	return v.(*session.Session), nil
}

func (c *Client) refresh(ctx context.Context) (*session.Session, error) {
	current, err := c.store.Load()
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Refresh] failed to load session")
	}
	if current == nil || current.RefreshToken == "" {
		return nil, autherrors.ErrNoSession
	}

	// An empty access token forces the exchange
	token, err := c.oauth.TokenSource(c.clientContext(ctx), &oauth2.Token{RefreshToken: current.RefreshToken}).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			c.logger.Info().Int("status", retrieveErr.Response.StatusCode).Msg("refresh token rejected, signing out")
			if clearErr := c.store.Clear(); clearErr != nil {
				c.logger.Error().Err(clearErr).Msg("failed to clear session")
			}
			c.events.Publish(session.Event{Type: session.EventSignedOut})
		}
		return nil, errors.Wrap(err, "[Client.Refresh] token exchange failed")
	}

	refreshToken := token.RefreshToken
	if refreshToken == "" {
		refreshToken = current.RefreshToken
	}
	s, err := session.New(token.AccessToken, refreshToken)
	if err != nil {
		return nil, errors.Wrap(err, "[Client.Refresh]")
	}
	if s.User.Email == "" {
		s.User.Email = current.User.Email
	}

	if err := c.store.Save(s); err != nil {
		return nil, errors.Wrap(err, "[Client.Refresh] failed to save session")
	}
	c.logger.Debug().Str("user_id", s.User.ID).Msg("token refreshed")
	c.events.Publish(session.Event{Type: session.EventTokenRefreshed, Session: s})
	return s, nil
}

type credentialUpdate struct {
	Password string `json:"password"`
}

// UpdateCredential sets a new password for the signed in user.
func (c *Client) UpdateCredential(ctx context.Context, newSecret string) error {
	s := c.CachedSession(ctx)
	if s == nil {
		return autherrors.ErrNoSession
	}

	body, err := json.Marshal(credentialUpdate{Password: newSecret})
	if err != nil {
		return errors.Wrap(err, "[Client.UpdateCredential] failed to encode body")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.credentialURL, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "[Client.UpdateCredential] failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Msg("credential update failed")
		return autherrors.ErrNetwork
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		c.logger.Info().Str("user_id", s.User.ID).Msg("credential update rejected, signing out")
		if err := c.SignOut(ctx); err != nil {
			c.logger.Error().Err(err).Msg("sign out failed")
		}
		return autherrors.ErrSessionExpired
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return errors.Errorf("[Client.UpdateCredential] identity service returned status %d", resp.StatusCode)
	}

	c.logger.Info().Str("user_id", s.User.ID).Msg("credential updated")
	c.events.Publish(session.Event{Type: session.EventUserUpdated, Session: s})
	return nil
}
