package bouncer

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Config identifies this app to its identity provider. Endpoint fields can
// be given directly or discovered from the issuer's well-known document.
type Config struct {
	// Issuer is the provider's base URL. When set, empty endpoint fields
	// are filled from its discovery document by Discover.
	Issuer string `validate:"omitempty,url"`

	// ClientID identifies this app to the provider.
	ClientID string `validate:"required"`

	// RedirectURI is where the provider sends the authorization callback.
	// Custom app schemes (tab-app://callback) and loopback URLs both work.
	RedirectURI string `validate:"required,url"`

	// AuthorizationEndpoint and TokenEndpoint may be left empty when
	// Issuer is set; Discover fills them.
	AuthorizationEndpoint string `validate:"required_without=Issuer,omitempty,url"`
	TokenEndpoint         string `validate:"required_without=Issuer,omitempty,url"`

	// JWKSURI locates the provider's signing keys, for hosts that opt into
	// ID token verification.
	JWKSURI string `validate:"omitempty,url"`

	// Scopes are requested on every login in addition to per-request
	// scopes. openid and offline_access are always requested regardless.
	Scopes []string

	// HTTPTimeout bounds token-endpoint and discovery calls when the
	// default HTTP client is used. Zero means 10 seconds.
	HTTPTimeout time.Duration

	// TokenRequestsPerSecond throttles token-endpoint calls when positive.
	// TokenRequestBurst defaults to 1 when the throttle is active.
	TokenRequestsPerSecond float64
	TokenRequestBurst      int
}

// Validate checks the config is complete enough to construct a Client.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
