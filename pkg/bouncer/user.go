package bouncer

import (
	"context"
	"sync"

	"github.com/aussiebroadwan/bouncer/pkg/jwtx"
	"github.com/aussiebroadwan/bouncer/pkg/syncx"
)

// User is an authenticated user: the mutable token holder plus the
// coalesced refresh task. The holder is the single owner of the token
// bundle; reads hand out copies. Safe for concurrent use.
type User struct {
	client *Client

	mu     sync.RWMutex
	tokens *UserTokens // nil once logged out

	// refreshTask collapses concurrent refresh calls into one flight.
	refreshTask *syncx.Task[*UserTokens]
}

// newUser wraps a token bundle in a User owned by this client.
func (c *Client) newUser(tokens UserTokens) *User {
	u := &User{
		client: c,
		tokens: &tokens,
	}
	u.refreshTask = syncx.NewTask(func() (*UserTokens, error) {
		return c.doRefresh(u)
	})
	return u
}

// Tokens returns a copy of the current token bundle. The second return is
// false once the user has logged out.
func (u *User) Tokens() (UserTokens, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()

	if u.tokens == nil {
		return UserTokens{}, false
	}
	return *u.tokens, true
}

// AccessToken returns the current access token, or empty after logout.
// It does not refresh; call Client.RefreshTokens when the token is stale.
func (u *User) AccessToken() string {
	u.mu.RLock()
	defer u.mu.RUnlock()

	if u.tokens == nil {
		return ""
	}
	return u.tokens.AccessToken
}

// IDClaims returns the ID token's claims. Without a configured verifier
// the claims are decoded blind, which is fine for display: the token
// arrived over TLS from the provider. With WithIDTokenVerifier the
// signature, issuer, audience and expiry are checked first.
func (u *User) IDClaims() (*jwtx.IDClaims, error) {
	u.mu.RLock()
	idToken := ""
	if u.tokens != nil {
		idToken = u.tokens.IDToken
	}
	u.mu.RUnlock()

	if idToken == "" {
		return nil, ErrNoIDToken
	}

	// Sessions outlive login attempts, so there is no nonce to pin here.
	// Nonce binding happens once, at code exchange.
	if u.client.verifier != nil {
		return u.client.verifier.Verify(idToken, "")
	}
	return jwtx.DecodeUnverified(idToken)
}

// Logout clears the token holder and deletes the persisted session. A
// refresh in flight when this lands will notice the cleared holder and
// discard its result rather than resurrect the session.
func (u *User) Logout(ctx context.Context) error {
	u.mu.Lock()
	u.tokens = nil
	u.mu.Unlock()

	return u.client.Logout(ctx)
}

// swapTokens replaces the holder's bundle with a fresh copy.
func (u *User) swapTokens(next UserTokens) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.tokens = &next
}
