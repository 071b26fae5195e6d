package bouncer

import (
	"context"
	"slices"

	"golang.org/x/oauth2"

	"github.com/aussiebroadwan/bouncer/pkg/cryptox"
	"github.com/aussiebroadwan/bouncer/pkg/idx"
)

// Scopes every login requests regardless of what the caller asks for:
// openid for an ID token, offline_access for a refresh token.
var mandatoryScopes = []string{"openid", "offline_access"}

// GenerateLoginURL starts a login attempt. It generates fresh state, nonce
// and PKCE verifier values, persists them as the outstanding attempt, and
// returns the authorization URL to hand to the system browser.
//
// The attempt record is durable before the URL is returned: there is no
// window where the URL could produce a callback that no stored state can
// match. Only one attempt is outstanding at a time; calling this again
// overwrites the previous attempt.
func (c *Client) GenerateLoginURL(ctx context.Context, req LoginRequest) (string, error) {
	state, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", newLoginError(LoginUnexpected, "failed to generate state", err)
	}
	nonce, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", newLoginError(LoginUnexpected, "failed to generate nonce", err)
	}
	verifier := oauth2.GenerateVerifier()

	attemptID := idx.New().String()

	authState := AuthState{
		State:        state,
		Nonce:        nonce,
		CodeVerifier: verifier,
		MFA:          req.MFA,
		AttemptID:    attemptID,
	}
	if err := c.persistAuthState(ctx, authState); err != nil {
		return "", newLoginError(LoginUnexpected, "", err)
	}

	oc := oauth2.Config{
		ClientID:    c.cfg.ClientID,
		RedirectURL: c.cfg.RedirectURI,
		Scopes:      c.loginScopes(req.Scopes),
		Endpoint: oauth2.Endpoint{
			AuthURL:  c.cfg.AuthorizationEndpoint,
			TokenURL: c.cfg.TokenEndpoint,
		},
	}

	opts := []oauth2.AuthCodeOption{
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("nonce", nonce),
	}
	// acr_values and prompt are mutually exclusive: requesting a factor
	// means the provider decides the account, not an account chooser.
	if req.MFA != "" {
		opts = append(opts, oauth2.SetAuthURLParam("acr_values", string(req.MFA)))
	} else {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", "select_account"))
	}

	loginURL := oc.AuthCodeURL(state, opts...)

	c.logger.Info("login attempt started",
		"attempt_id", attemptID,
		"client_id", c.cfg.ClientID,
		"state", cryptox.FingerprintToken(state),
		"mfa", string(req.MFA),
	)

	return loginURL, nil
}

// loginScopes merges the caller's scopes with the configured defaults and
// the mandatory pair, deduplicated, order preserved.
func (c *Client) loginScopes(requested []string) []string {
	merged := make([]string, 0, len(requested)+len(c.cfg.Scopes)+len(mandatoryScopes))
	for _, group := range [][]string{requested, c.cfg.Scopes, mandatoryScopes} {
		for _, s := range group {
			if s != "" && !slices.Contains(merged, s) {
				merged = append(merged, s)
			}
		}
	}
	return merged
}
