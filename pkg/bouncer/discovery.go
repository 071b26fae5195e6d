package bouncer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ProviderMetadata is the slice of the OpenID Provider discovery document
// this client cares about.
type ProviderMetadata struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	JWKSURI               string `json:"jwks_uri"`
	EndSessionEndpoint    string `json:"end_session_endpoint,omitempty"`
}

// DiscoverProvider fetches <issuer>/.well-known/openid-configuration and
// checks the document's issuer matches the one asked for, which catches
// misconfigured reverse proxies before any token ever flows.
func DiscoverProvider(ctx context.Context, httpClient *http.Client, issuer string) (*ProviderMetadata, error) {
	if issuer == "" {
		return nil, fmt.Errorf("bouncer: issuer is required for discovery")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	wellKnown := strings.TrimSuffix(issuer, "/") + "/.well-known/openid-configuration"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wellKnown, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create discovery request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch discovery document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("discovery request returned status %d: %s", resp.StatusCode, string(body))
	}

	var meta ProviderMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("failed to decode discovery document: %w", err)
	}

	if strings.TrimSuffix(meta.Issuer, "/") != strings.TrimSuffix(issuer, "/") {
		return nil, fmt.Errorf("bouncer: discovery document issuer %q does not match %q", meta.Issuer, issuer)
	}
	if meta.AuthorizationEndpoint == "" || meta.TokenEndpoint == "" {
		return nil, fmt.Errorf("bouncer: discovery document is missing required endpoints")
	}

	return &meta, nil
}

// Discover fills any endpoint fields left empty from the issuer's discovery
// document. Fields already set are kept, so a deployment can pin one
// endpoint and discover the rest.
func (c *Config) Discover(ctx context.Context, httpClient *http.Client) error {
	meta, err := DiscoverProvider(ctx, httpClient, c.Issuer)
	if err != nil {
		return err
	}

	if c.AuthorizationEndpoint == "" {
		c.AuthorizationEndpoint = meta.AuthorizationEndpoint
	}
	if c.TokenEndpoint == "" {
		c.TokenEndpoint = meta.TokenEndpoint
	}
	if c.JWKSURI == "" {
		c.JWKSURI = meta.JWKSURI
	}
	return nil
}
