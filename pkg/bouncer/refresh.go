package bouncer

import (
	"context"

	"github.com/aussiebroadwan/bouncer/pkg/cryptox"
)

// RefreshTokens obtains a fresh token bundle for the user. Concurrent
// callers coalesce into a single refresh grant: one goroutine performs the
// network call and the token swap, the rest wait and share its result.
//
// The shared flight is detached from any single caller, so ctx cancels
// only this call's participation, never the refresh itself; the network
// call runs under the client's own HTTP timeout. A waiter that outlives
// the coalescing window re-executes on its own, which can duplicate the
// grant under pathological stalls. Providers that rotate refresh tokens
// single-use should keep that window (the default 10s) comfortably above
// their token-endpoint latency.
func (c *Client) RefreshTokens(ctx context.Context, user *User) (*UserTokens, error) {
	if err := ctx.Err(); err != nil {
		return nil, newRefreshError(RefreshUnexpected, "context done before refresh", err)
	}

	tokens, err := user.refreshTask.Run()
	if err != nil {
		return nil, err
	}
	if tokens == nil {
		// A finished flight always stores a result or an error. The closed
		// error set keeps callers from ever seeing a bare nil.
		return nil, newRefreshError(RefreshConcurrentFailure, "", nil)
	}

	return tokens, nil
}

// doRefresh is the coalesced flight body: one execution per stampede.
func (c *Client) doRefresh(u *User) (*UserTokens, error) {
	// Detached from the callers sharing this flight. The HTTP client's
	// timeout bounds the network call; store operations are local.
	ctx := context.Background()

	current, ok := u.Tokens()
	if !ok || current.RefreshToken == "" {
		return nil, newRefreshError(RefreshNoToken, "", nil)
	}

	c.logger.Debug("refreshing tokens",
		"client_id", c.cfg.ClientID,
		"refresh_token", cryptox.FingerprintToken(current.RefreshToken),
	)

	fresh, httpErr := c.handler.refresh(ctx, current.RefreshToken)
	if httpErr != nil {
		return nil, newRefreshHTTPError(httpErr)
	}

	// A rotated ID token gets the same scrutiny as the original. No nonce:
	// refresh grants are not tied to an authorization request.
	if c.verifier != nil && fresh.IDToken != "" {
		if _, err := c.verifier.Verify(fresh.IDToken, ""); err != nil {
			return nil, newRefreshError(RefreshUnexpected, "rotated id token failed verification", err)
		}
	}

	// Re-read the holder: a logout may have landed while the grant was in
	// flight. Tokens for a session the user just destroyed are discarded,
	// never applied or persisted.
	latest, ok := u.Tokens()
	if !ok {
		c.logger.Info("discarding refreshed tokens, user logged out mid-flight",
			"client_id", c.cfg.ClientID,
		)
		return nil, newRefreshError(RefreshUserLoggedOut, "", nil)
	}

	// Rotation is optional per response: keep the prior refresh token and
	// ID token when the provider omits new ones.
	if fresh.RefreshToken == "" {
		fresh.RefreshToken = latest.RefreshToken
	}
	if fresh.IDToken == "" {
		fresh.IDToken = latest.IDToken
	}

	u.swapTokens(fresh)

	if err := c.persistSession(ctx, fresh); err != nil {
		// The holder already carries the fresh tokens; only the durable
		// copy is stale. Surfacing the failure lets the host decide
		// whether to retry or log out.
		return nil, newRefreshError(RefreshUnexpected, "failed to persist refreshed session", err)
	}

	c.logger.Debug("tokens refreshed",
		"client_id", c.cfg.ClientID,
		"access_token", cryptox.FingerprintToken(fresh.AccessToken),
	)

	return &fresh, nil
}
