package jwtx

import (
	"fmt"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// IDClaims are the ID token claims this client reads after a login or
// refresh. Registered claims are embedded; the rest are the OpenID
// Connect fields we actually use, kept additive to preserve
// compatibility for later.
type IDClaims struct {
	jwt.RegisteredClaims

	/* OpenID Connect fields */

	// Nonce echoes the nonce sent on the authorization request. Checking
	// it ties the token back to the login attempt that asked for it.
	Nonce string `json:"nonce,omitempty"`

	// ACR is the authentication context class that was satisfied, e.g.
	// "mfa:otp" when a one-time code was required and provided.
	ACR string `json:"acr,omitempty"`

	// Authentication Methods Reference ["pwd","otp"]
	// 		"pwd": Password-based Authentication
	//		"otp": One-time Password (e.g. TOTP)
	//		"sms": Code delivered over SMS
	// Mainly for debugging, but useful when the app wants to gate a
	// sensitive screen on how the user actually signed in.
	AMR []string `json:"amr,omitempty"`

	// AuthTime is when the end user last authenticated, as a Unix
	// timestamp. Differs from iat when the provider session was already
	// live and no credentials were re-entered.
	AuthTime int64 `json:"auth_time,omitempty"`

	// Session ID minted by the provider, when it issues one.
	SID string `json:"sid,omitempty"`

	// Email for the authenticated user
	Email string `json:"email,omitempty"`

	// Username for the authenticated user
	Username string `json:"preferred_username,omitempty"`

	// Name is the display name for the user
	Name string `json:"name,omitempty"`
}

// ValidateIssuer checks if the issuer matches expected value.
func (c *IDClaims) ValidateIssuer(expected string) error {
	if expected == "" {
		return nil // nothing to enforce
	}

	if c.Issuer != expected {
		return ErrIssuer
	}

	return nil
}

// ValidateAudience checks if the expected audience is present. For an ID
// token the expected value is the client_id the token was minted for.
func (c *IDClaims) ValidateAudience(expected string) error {
	if expected == "" {
		return nil // nothing to enforce
	}

	if slices.Contains(c.Audience, expected) {
		return nil
	}

	return ErrAudience
}

// ValidateExpiry ensures the token hasn’t expired (exp) and isn’t before nbf.
func (c *IDClaims) ValidateExpiry() error {
	now := time.Now().UTC()

	// Check expired (exp)
	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Time) {
		return ErrExpired
	}

	// Check if a valid token isn't used before it is valid (nbf)
	if c.NotBefore != nil && now.Before(c.NotBefore.Time) {
		return ErrNotYetValid
	}

	return nil
}

// ValidateExpiryWithLeeway adds a small grace period for clock skew.
func (c *IDClaims) ValidateExpiryWithLeeway(leeway time.Duration) error {
	now := time.Now().UTC()

	// Check After Leeway
	if c.ExpiresAt != nil && now.After(c.ExpiresAt.Add(leeway)) {
		return ErrExpired
	}

	// Check Before Leeway
	if c.NotBefore != nil && now.Before(c.NotBefore.Add(-leeway)) {
		return ErrNotYetValid
	}

	return nil
}

// ValidateNonce checks the nonce claim matches the one generated for the
// login attempt. An empty expected nonce means nothing to enforce, which
// is the case on refresh where no authorization request was made.
func (c *IDClaims) ValidateNonce(expected string) error {
	if expected == "" {
		return nil // nothing to enforce
	}

	if c.Nonce != expected {
		return ErrNonce
	}

	return nil
}

// DecodeUnverified parses a token's claims WITHOUT checking the
// signature. Handy for reading the sub or preferred_username out of a
// token the provider just handed over on a TLS channel, and for
// diagnostics. Never make a trust decision on its output.
func DecodeUnverified(tokenStr string) (*IDClaims, error) {
	claims := &IDClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(tokenStr, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return claims, nil
}
