package bouncer_test

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/bouncer/pkg/bouncer"
	"github.com/aussiebroadwan/bouncer/pkg/jwtx"
)

// TestLoginFlow tests the complete sign-in path:
// 1. Discover the provider from its issuer URL
// 2. Generate an authorization URL carrying PKCE and state
// 3. Drive the browser leg and catch the redirect back
// 4. Exchange the code for tokens and persist the session
// 5. Verify the ID token signature against the provider's published keys
func TestLoginFlow(t *testing.T) {
	p := newProvider(t)
	app := newTestApp(t, p, "tab-app")

	loginURL, err := app.client.GenerateLoginURL(t.Context(), bouncer.LoginRequest{
		Scopes: []string{"profile"},
	})
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(loginURL, p.issuer+"/oauth2/authorize?"))
	t.Logf("Authorization URL: %s", loginURL)

	authorize, err := url.Parse(loginURL)
	require.NoError(t, err)
	q := authorize.Query()
	require.Equal(t, "S256", q.Get("code_challenge_method"))
	require.NotEmpty(t, q.Get("code_challenge"))
	require.ElementsMatch(t,
		[]string{"openid", "offline_access", "tab.read", "profile"},
		strings.Fields(q.Get("scope")),
	)

	callbackURL := authenticate(t, loginURL)
	require.True(t, strings.HasPrefix(callbackURL, app.cfg.RedirectURI+"?"))
	t.Logf("Callback: %s", callbackURL)

	user, err := app.client.HandleAuthenticationResponse(t.Context(), callbackURL)
	require.NoError(t, err)
	require.Equal(t, int32(1), p.codeGrants.Load())

	tokens, ok := user.Tokens()
	require.True(t, ok)
	require.NotEmpty(t, tokens.AccessToken)
	require.NotEmpty(t, tokens.RefreshToken)
	require.NotEmpty(t, tokens.IDToken)
	t.Logf("Code exchange successful")
	t.Logf("Access Token: %s", tokens.AccessToken)

	claims, err := user.IDClaims()
	require.NoError(t, err)
	require.Equal(t, e2eUsername, claims.Username)
	require.Equal(t, e2eEmail, claims.Email)

	// Fetch the provider's keys and check the signature for real.
	jwks := bouncer.NewJWKSClient(app.cfg.JWKSURI, nil, 0)
	defer jwks.Close()

	keys, err := jwks.FetchKeys(t.Context())
	require.NoError(t, err)

	verifier := jwtx.NewVerifier(keys, jwtx.VerifyOptions{
		Issuer:   p.issuer,
		Audience: app.clientID,
	})
	verified, err := verifier.Verify(tokens.IDToken, "")
	require.NoError(t, err)
	require.Equal(t, e2eSubject, verified.Subject)
	require.NotEmpty(t, verified.Nonce, "login tokens should echo the request nonce")
	t.Logf("ID token signature verified, subject: %s", verified.Subject)
}

// TestVerifiedClient tests a client that refuses unverified ID tokens:
// 1. Fetch the provider's signing keys from its JWKS endpoint
// 2. Sign in with a verifier enforcing issuer, audience and nonce
// 3. Refresh, which re-checks the rotated ID token
// 4. Read identity claims off the verified token
func TestVerifiedClient(t *testing.T) {
	p := newProvider(t)

	jwks := bouncer.NewJWKSClient(p.issuer+"/.well-known/jwks.json", nil, 0)
	defer jwks.Close()
	keys, err := jwks.FetchKeys(t.Context())
	require.NoError(t, err)

	app := newTestApp(t, p, "tab-app", bouncer.WithIDTokenVerifier(
		jwtx.NewVerifier(keys, jwtx.VerifyOptions{Issuer: p.issuer, Audience: "tab-app"}),
	))

	user := login(t, app)
	t.Logf("Exchanged ID token passed verification")

	fresh, err := app.client.RefreshTokens(t.Context(), user)
	require.NoError(t, err)
	require.NotEmpty(t, fresh.IDToken)

	claims, err := user.IDClaims()
	require.NoError(t, err)
	require.Equal(t, e2eSubject, claims.Subject)
	require.Equal(t, e2eUsername, claims.Username)
	t.Logf("Rotated ID token verified, subject: %s", claims.Subject)
}

// TestCallbackForgery tests that a tampered redirect never reaches the
// provider:
// 1. Start a login and capture the genuine callback
// 2. Swap the state parameter for a forged one
// 3. The client rejects it as unsolicited, without a token call
// 4. The burned attempt also rejects the genuine callback afterwards
func TestCallbackForgery(t *testing.T) {
	p := newProvider(t)
	app := newTestApp(t, p, "tab-app")

	loginURL, err := app.client.GenerateLoginURL(t.Context(), bouncer.LoginRequest{})
	require.NoError(t, err)
	callbackURL := authenticate(t, loginURL)

	forged, err := url.Parse(callbackURL)
	require.NoError(t, err)
	fq := forged.Query()
	fq.Set("state", "attacker-chosen-state")
	forged.RawQuery = fq.Encode()

	_, err = app.client.HandleAuthenticationResponse(t.Context(), forged.String())
	var le *bouncer.LoginError
	require.ErrorAs(t, err, &le)
	require.Equal(t, bouncer.LoginUnsolicitedResponse, le.Kind)
	require.Equal(t, int32(0), p.codeGrants.Load(), "forged callback must not trigger an exchange")

	// The mismatch consumed the attempt, so the real callback is now
	// stale too. Replaying authorization responses goes nowhere.
	_, err = app.client.HandleAuthenticationResponse(t.Context(), callbackURL)
	require.ErrorAs(t, err, &le)
	require.Equal(t, bouncer.LoginAuthStateRead, le.Kind)
	require.Equal(t, int32(0), p.codeGrants.Load())
}
