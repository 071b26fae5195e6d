package bouncer

import (
	"context"
	"net/url"

	"github.com/aussiebroadwan/bouncer/pkg/cryptox"
)

// HandleAuthenticationResponse validates the callback the provider sent
// back through the browser and completes the login. Validation
// short-circuits on the first failure:
//
//  1. The stored attempt must exist and be readable.
//  2. The callback's state must equal the stored state. The attempt is
//     consumed either way, so a mismatched callback burns the state value
//     it failed against.
//  3. The attempt is consumed before any exchange: a state value is
//     strictly single-use even if the exchange fails and the caller
//     retries with the same callback.
//  4. A callback carrying an error parameter is the provider's rejection.
//  5. A callback without a code is malformed.
//  6. The code is exchanged using the attempt's PKCE verifier. When an ID
//     token verifier is configured, the returned ID token must pass it,
//     nonce bound to this attempt.
//  7. On success the session is persisted and the User returned.
func (c *Client) HandleAuthenticationResponse(ctx context.Context, callbackURL string) (*User, error) {
	parsed, err := url.Parse(callbackURL)
	if err != nil {
		// Consume the attempt anyway: a state value never outlives its
		// first callback, however malformed that callback is.
		_ = c.deleteAuthState(ctx)
		return nil, newLoginError(LoginUnexpected, "failed to parse callback URL", err)
	}
	query := parsed.Query()

	authState, err := c.loadAuthState(ctx)
	if err != nil {
		return nil, newLoginError(LoginAuthStateRead, "", err)
	}

	if query.Get("state") != authState.State {
		_ = c.deleteAuthState(ctx)
		c.logger.Warn("callback state mismatch",
			"attempt_id", authState.AttemptID,
			"expected", cryptox.FingerprintToken(authState.State),
		)
		return nil, newLoginError(LoginUnsolicitedResponse, "", nil)
	}

	if err := c.deleteAuthState(ctx); err != nil {
		// Refusing to continue beats risking a reusable state value.
		return nil, newLoginError(LoginUnexpected, "failed to consume auth state", err)
	}

	if errCode := query.Get("error"); errCode != "" {
		oe := &OAuthError{
			Code:        errCode,
			Description: query.Get("error_description"),
		}
		c.logger.Warn("provider rejected authorization",
			"attempt_id", authState.AttemptID,
			"error", oe.Code,
		)
		return nil, newLoginOAuthError(LoginAuthenticationError, oe)
	}

	code := query.Get("code")
	if code == "" {
		return nil, newLoginError(LoginUnexpected, "callback carried no authorization code", nil)
	}

	tokens, httpErr := c.handler.exchangeCode(ctx, code, authState)
	if httpErr != nil {
		if oe, ok := httpErr.OAuthError(); ok {
			return nil, &LoginError{Kind: LoginTokenError, OAuth: oe, cause: httpErr}
		}
		return nil, newLoginError(LoginUnexpected, "code exchange failed", httpErr)
	}

	// Exchange is the one moment the attempt's nonce is known, so this is
	// where the ID token gets bound to it.
	if c.verifier != nil && tokens.IDToken != "" {
		if _, err := c.verifier.Verify(tokens.IDToken, authState.Nonce); err != nil {
			c.logger.Warn("rejecting exchanged id token",
				"attempt_id", authState.AttemptID,
				"error", err,
			)
			return nil, newLoginError(LoginIDTokenInvalid, "", err)
		}
	}

	if err := c.persistSession(ctx, tokens); err != nil {
		return nil, newLoginError(LoginUnexpected, "", err)
	}

	c.logger.Info("login completed", "attempt_id", authState.AttemptID, "client_id", c.cfg.ClientID)

	return c.newUser(tokens), nil
}
