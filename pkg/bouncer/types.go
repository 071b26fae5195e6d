package bouncer

import (
	"time"
)

// ============================================================================
// Wire Types (used for JSON unmarshaling)
// ============================================================================

// TokenResponse represents the OAuth2 token endpoint response per RFC 6749.
// Returned for both the authorization_code and refresh_token grants.
type TokenResponse struct {
	// AccessToken is the token used to authenticate API requests
	AccessToken string `json:"access_token"`

	// RefreshToken is the opaque token used to obtain new access tokens.
	// Providers that rotate refresh tokens return a new one here; others
	// omit it and the prior token stays valid.
	RefreshToken string `json:"refresh_token,omitempty"`

	// IDToken is the OpenID Connect ID token, when the openid scope was
	// granted
	IDToken string `json:"id_token,omitempty"`

	// TokenType is always "Bearer" per OAuth2 spec
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the access token
	ExpiresIn int `json:"expires_in"`

	// Scope is the space-delimited list of scopes granted to this token
	Scope string `json:"scope,omitempty"`
}

// ============================================================================
// Session Types
// ============================================================================

// UserTokens is the opaque token bundle a logged-in user holds. Owned
// exclusively by the User's holder; everything else sees transient copies.
type UserTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	IDToken      string `json:"id_token,omitempty"`
}

// tokensFromResponse maps a token endpoint success body into UserTokens.
func tokensFromResponse(resp *TokenResponse) UserTokens {
	return UserTokens{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		IDToken:      resp.IDToken,
	}
}

// StoredUserSession is the serialization of a logged-in user at a point in
// time, written on every successful code exchange or refresh. One session
// per client_id; writing overwrites the prior one. Its presence in the
// store is what "logged in for this client" means.
type StoredUserSession struct {
	ClientID   string     `json:"client_id"`
	UserTokens UserTokens `json:"user_tokens"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// ============================================================================
// Login Request
// ============================================================================

// LoginRequest carries the caller's wishes for a login attempt.
type LoginRequest struct {
	// Scopes to request beyond the mandatory openid and offline_access,
	// which are always included.
	Scopes []string

	// MFA, when set, asks the provider to enforce the given factor via
	// acr_values. When empty the URL carries prompt=select_account
	// instead.
	MFA MFAType
}
