// Package session consumes the session gateway: it signs users in and out
// and exposes the current session identity the mission collection is scoped
// by. Session issuance itself lives behind the remote store.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"github.com/athmos-ops/missionsync/pkg/logger"
)

var (
	// ErrInvalidCredentials is the single error surfaced for any sign-in
	// failure. Deliberately generic.
	ErrInvalidCredentials = errors.New("invalid credentials")

	ErrNotSignedIn = errors.New("not signed in")
)

// Identity is the stable session identity the mission collection is scoped
// by.
type Identity struct {
	UID   string
	Token string
}

// Authenticator is the slice of the store client the gateway needs.
type Authenticator interface {
	SignIn(ctx context.Context, user, pass string) (string, error)
	Authenticate(ctx context.Context, token string) error
	Invalidate(ctx context.Context) error
}

// Gateway tracks the current session identity.
type Gateway struct {
	auth   Authenticator
	logger logger.Logger

	mu      sync.RWMutex
	current *Identity
}

func NewGateway(auth Authenticator, log logger.Logger) *Gateway {
	if log == nil {
		log = logger.Nop{}
	}
	return &Gateway{auth: auth, logger: log}
}

// SignIn exchanges credentials for a session identity. Any failure maps to
// ErrInvalidCredentials; the underlying cause is logged, not surfaced.
func (g *Gateway) SignIn(ctx context.Context, user, pass string) (Identity, error) {
	token, err := g.auth.SignIn(ctx, user, pass)
	if err != nil {
		g.logger.Warn("sign-in failed", "error", err)
		return Identity{}, ErrInvalidCredentials
	}

	uid, err := uidFromToken(token)
	if err != nil {
		g.logger.Warn("sign-in yielded unusable token", "error", err)
		return Identity{}, ErrInvalidCredentials
	}

	id := Identity{UID: uid, Token: token}

	g.mu.Lock()
	g.current = &id
	g.mu.Unlock()

	return id, nil
}

// Resume re-authenticates a connection from a stored token, e.g. after a
// reconnect.
func (g *Gateway) Resume(ctx context.Context) error {
	g.mu.RLock()
	current := g.current
	g.mu.RUnlock()

	if current == nil {
		return ErrNotSignedIn
	}

	return g.auth.Authenticate(ctx, current.Token)
}

// SignOut invalidates the server-side session and clears the identity. The
// identity is cleared even if the invalidate RPC fails.
func (g *Gateway) SignOut(ctx context.Context) error {
	g.mu.Lock()
	g.current = nil
	g.mu.Unlock()

	return g.auth.Invalidate(ctx)
}

// Current returns the active identity, if any.
func (g *Gateway) Current() (Identity, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.current == nil {
		return Identity{}, false
	}
	return *g.current, true
}

// uidFromToken extracts the subject claim from the issued token. The token
// is verified by the store on every RPC; here it is only parsed for the
// identity, so no signature check is done.
func uidFromToken(token string) (string, error) {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		return "", fmt.Errorf("parsing session token: %w", err)
	}

	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", errors.New("session token has no subject claim")
	}

	return sub, nil
}
