/*
Package bouncer implements an OAuth2 Authorization Code + PKCE client for
apps that sign users in through the TAB identity provider.

# Overview

The package owns the token lifecycle: it issues authorization requests,
validates callback responses against stored request state, exchanges
authorization codes for tokens, refreshes access tokens, and persists the
resulting session through a pluggable secure store. The hard part it takes
off your hands is concurrency: several parts of an app can demand a fresh
access token at once (the classic refresh-on-401 stampede) and the client
collapses them into a single network refresh.

# Client and User

The package is organized around two main types:

  - Client: starts logins, validates callbacks, persists sessions
  - User: an authenticated user's mutable token holder with coalesced refresh

Create a Client with provider endpoints and a secure store:

	cfg := bouncer.Config{
		Issuer:      "https://id.example.com",
		ClientID:    "tab-app",
		RedirectURI: "tab-app://callback",
	}
	store := memory.New() // or securestore/sqlite on a real device
	client, err := bouncer.New(cfg, store)

# Login Flow

Logging in is a three-step dance with the system browser:

	// 1. Generate the authorization URL. The request state (state, nonce,
	// PKCE verifier) is persisted before the URL is returned.
	url, err := client.GenerateLoginURL(ctx, bouncer.LoginRequest{
		Scopes: []string{"tab:read"},
	})

	// 2. Hand url to the system browser. The provider eventually redirects
	// back to the app with a callback URL.

	// 3. Validate the callback and exchange the code for tokens.
	user, err := client.HandleAuthenticationResponse(ctx, callbackURL)

Only one login attempt may be outstanding at a time; generating a new URL
overwrites the previous attempt's state.

# Refresh

RefreshTokens is safe to call from any number of goroutines. Concurrent
callers share one network round trip and one token swap:

	tokens, err := client.RefreshTokens(ctx, user)

A caller that sees the access token rejected can simply call RefreshTokens
and retry; if another part of the app already triggered the refresh, the
call waits for that result instead of burning a second refresh token.

# Error Handling

Every expected failure is a typed value, never a panic:

  - LoginError: what went wrong with a login attempt, including the
    provider's own OAuth error object when one was returned
  - RefreshTokenError: why a refresh did not produce fresh tokens
  - HTTPError: the transport-level detail underneath either of the above

Example:

	user, err := client.HandleAuthenticationResponse(ctx, callbackURL)
	if err != nil {
		var loginErr *bouncer.LoginError
		if errors.As(err, &loginErr) && loginErr.Kind == bouncer.LoginAuthenticationError {
			// The provider said no (user cancelled, access denied, ...)
			fmt.Println("provider error:", loginErr.OAuth.Code)
		}
		return err
	}

# Sessions

Successful logins and refreshes persist a session snapshot keyed by
client_id. After a process restart:

	user, err := client.ResumeSession(ctx)
	if errors.Is(err, bouncer.ErrNoStoredSession) {
		// nobody logged in, show the login screen
	}

Client.HasAnySession additionally consults an optional SessionOracle so a
family of apps can detect a sibling's session and offer single sign-on.

# ID Tokens

User.IDClaims decodes the session's ID token for display (username, email)
without checking the signature, which suits tokens received over TLS
straight from the provider. Apps that want cryptographic checks configure
a verifier once; the client then validates ID tokens at code exchange
(nonce included), on refresh rotation, and in IDClaims:

	jwks := bouncer.NewJWKSClient(cfg.JWKSURI, nil, 0)
	keys, err := jwks.FetchKeys(ctx)
	// handle err
	client, err := bouncer.New(cfg, store, bouncer.WithIDTokenVerifier(
		jwtx.NewVerifier(keys, jwtx.VerifyOptions{
			Issuer:   cfg.Issuer,
			Audience: cfg.ClientID,
		}),
	))

# Thread Safety

Client and User are safe for concurrent use. The User's token holder is
mutex-guarded; refresh, logout, and reads may race freely and the refresh
path detects a logout that lands mid-flight rather than resurrecting the
session it destroyed.
*/
package bouncer
