package sessionfake

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	autherrors "github.com/jrsteele09/go-admin-console/internal/errors"
	"github.com/jrsteele09/go-admin-console/session"
)

var _ session.Provider = (*FakeProvider)(nil)

// FakeProvider is a scriptable session.Provider for tests.
type FakeProvider struct {
	*session.Broadcaster

	mu      sync.RWMutex
	current *session.Session

	// Optional overrides, nil means the default behaviour
	CachedSessionFunc  func(ctx context.Context) *session.Session
	VerifiedClaimsFunc func(ctx context.Context) (*session.Claims, error)
	InstallSessionFunc func(ctx context.Context, accessToken, refreshToken string) (*session.Session, error)
	RefreshFunc        func(ctx context.Context) (*session.Session, error)
	UpdateCredentialFn func(ctx context.Context, newSecret string) error

	signOutCalls       atomic.Int32
	cachedSessionCalls atomic.Int32
	installCalls       atomic.Int32
	credentials        []string
}

func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		Broadcaster: session.NewBroadcaster(),
	}
}

// SetSession replaces the cached session without publishing an event.
func (f *FakeProvider) SetSession(s *session.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = s
}

// Emit publishes an event to subscribers.
func (f *FakeProvider) Emit(eventType session.EventType, s *session.Session) {
	f.Publish(session.Event{Type: eventType, Session: s})
}

func (f *FakeProvider) CachedSession(ctx context.Context) *session.Session {
	f.cachedSessionCalls.Add(1)
	if f.CachedSessionFunc != nil {
		return f.CachedSessionFunc(ctx)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.current
}

func (f *FakeProvider) VerifiedClaims(ctx context.Context) (*session.Claims, error) {
	if f.VerifiedClaimsFunc != nil {
		return f.VerifiedClaimsFunc(ctx)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.current == nil {
		return nil, autherrors.ErrNoSession
	}
	claims := f.current.Claims
	return &claims, nil
}

func (f *FakeProvider) SignOut(ctx context.Context) error {
	f.signOutCalls.Add(1)
	f.mu.Lock()
	f.current = nil
	f.mu.Unlock()
	f.Emit(session.EventSignedOut, nil)
	return nil
}

func (f *FakeProvider) InstallSession(ctx context.Context, accessToken, refreshToken string) (*session.Session, error) {
	f.installCalls.Add(1)
	if f.InstallSessionFunc != nil {
		return f.InstallSessionFunc(ctx, accessToken, refreshToken)
	}
	s, err := session.New(accessToken, refreshToken)
	if err != nil {
		return nil, err
	}
	f.SetSession(s)
	f.Emit(session.EventSignedIn, s)
	return s, nil
}

func (f *FakeProvider) UpdateCredential(ctx context.Context, newSecret string) error {
	if f.UpdateCredentialFn != nil {
		return f.UpdateCredentialFn(ctx, newSecret)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.current == nil {
		return autherrors.ErrNoSession
	}
	f.credentials = append(f.credentials, newSecret)
	return nil
}

func (f *FakeProvider) Refresh(ctx context.Context) (*session.Session, error) {
	if f.RefreshFunc != nil {
		return f.RefreshFunc(ctx)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.current == nil {
		return nil, autherrors.ErrNoSession
	}
	return f.current, nil
}

func (f *FakeProvider) SignOutCalls() int {
	return int(f.signOutCalls.Load())
}

func (f *FakeProvider) CachedSessionCalls() int {
	return int(f.cachedSessionCalls.Load())
}

func (f *FakeProvider) InstallCalls() int {
	return int(f.installCalls.Load())
}

func (f *FakeProvider) Credentials() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]string(nil), f.credentials...)
}

// MintToken returns an HS256 signed access token carrying the given identity.
// The signature is irrelevant to the console, which never verifies it locally.
func MintToken(sub, email string, exp time.Time) string {
	claims := jwt.MapClaims{
		"sub": sub,
		"exp": exp.Unix(),
		"iat": time.Now().Unix(),
	}
	if email != "" {
		claims["email"] = email
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		panic(err)
	}
	return signed
}

// NewSession returns a resolvable session for sub that expires at exp.
func NewSession(sub, email string, exp time.Time) *session.Session {
	s, err := session.New(MintToken(sub, email, exp), "refresh-"+sub)
	if err != nil {
		panic(err)
	}
	return s
}
