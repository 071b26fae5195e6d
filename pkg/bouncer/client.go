package bouncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/bouncer/pkg/httpx"
	"github.com/aussiebroadwan/bouncer/pkg/jwtx"
	"github.com/aussiebroadwan/bouncer/pkg/securestore"
)

// SessionOracle answers whether any app of this family currently holds a
// session, without exposing session contents. See pkg/presence for the
// directory-watching implementation.
type SessionOracle interface {
	HasAnySession(ctx context.Context) (bool, error)
}

// ClientOption customizes a Client at construction.
type ClientOption func(*Client)

// WithHTTPClient replaces the default HTTP client used for token-endpoint
// calls. The caller owns timeout and transport configuration; the
// TokenRequestsPerSecond throttle does not apply.
func WithHTTPClient(h *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = h
	}
}

// WithLogger sets the logger. Token values are never logged, only
// fingerprints.
func WithLogger(l *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = l
	}
}

// WithSessionOracle wires a cross-app presence oracle into HasAnySession.
func WithSessionOracle(o SessionOracle) ClientOption {
	return func(c *Client) {
		c.oracle = o
	}
}

// WithIDTokenVerifier makes User.IDClaims verify ID token signatures
// instead of decoding them blind. Build the verifier from the provider's
// keys, e.g. via JWKSClient.FetchKeys and jwtx.NewVerifier.
func WithIDTokenVerifier(v *jwtx.Verifier) ClientOption {
	return func(c *Client) {
		c.verifier = v
	}
}

// Client starts logins, validates authorization callbacks, exchanges and
// refreshes tokens, and persists the resulting session. Safe for
// concurrent use.
type Client struct {
	cfg      Config
	store    securestore.Store
	logger   *slog.Logger
	oracle   SessionOracle
	verifier *jwtx.Verifier

	httpClient *http.Client
	handler    *tokenHandler
}

// New builds a Client from a complete config. Endpoints must be resolved
// first: either set AuthorizationEndpoint and TokenEndpoint directly or
// fill them from the issuer with Config.Discover.
func New(cfg Config, store securestore.Store, opts ...ClientOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.AuthorizationEndpoint == "" || cfg.TokenEndpoint == "" {
		return nil, errors.New("bouncer: endpoints not configured, set them or fill them with Config.Discover")
	}
	if store == nil {
		return nil, errors.New("bouncer: store is required")
	}

	c := &Client{
		cfg:   cfg,
		store: store,
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.httpClient == nil {
		timeout := cfg.HTTPTimeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}

		var transport http.RoundTripper
		if cfg.TokenRequestsPerSecond > 0 {
			burst := cfg.TokenRequestBurst
			if burst <= 0 {
				burst = 1
			}
			transport = httpx.NewRateLimitedTransport(nil, cfg.TokenRequestsPerSecond, burst)
		}

		c.httpClient = &http.Client{
			Timeout:   timeout,
			Transport: transport,
		}
	}

	c.handler = newTokenHandler(
		&tokenClient{endpoint: cfg.TokenEndpoint, http: c.httpClient},
		cfg,
	)

	return c, nil
}

// ============================================================================
// Session persistence
// ============================================================================

// persistSession snapshots the token bundle as the durable session for
// this client_id, overwriting any prior snapshot.
func (c *Client) persistSession(ctx context.Context, tokens UserTokens) error {
	sess := StoredUserSession{
		ClientID:   c.cfg.ClientID,
		UserTokens: tokens,
		UpdatedAt:  time.Now().UTC(),
	}

	raw, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := c.store.Put(ctx, sessionKey(c.cfg.ClientID), raw); err != nil {
		return fmt.Errorf("failed to persist session: %w", err)
	}
	return nil
}

// loadStoredSession reads the persisted snapshot for this client_id.
func (c *Client) loadStoredSession(ctx context.Context) (*StoredUserSession, error) {
	raw, err := c.store.Get(ctx, sessionKey(c.cfg.ClientID))
	if err != nil {
		if errors.Is(err, securestore.ErrNotFound) {
			return nil, ErrNoStoredSession
		}
		return nil, fmt.Errorf("failed to read stored session: %w", err)
	}

	var sess StoredUserSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal stored session: %w", err)
	}
	return &sess, nil
}

// ResumeSession reconstructs the logged-in user from the persisted
// session, e.g. after a process restart. Returns ErrNoStoredSession when
// nobody is logged in for this client_id.
func (c *Client) ResumeSession(ctx context.Context) (*User, error) {
	sess, err := c.loadStoredSession(ctx)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("resumed stored session",
		"client_id", c.cfg.ClientID,
		"updated_at", sess.UpdatedAt,
	)
	return c.newUser(sess.UserTokens), nil
}

// Logout deletes the persisted session for the configured client_id. It
// does not touch in-memory User objects; use User.Logout to clear those
// too.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.store.Delete(ctx, sessionKey(c.cfg.ClientID)); err != nil {
		return fmt.Errorf("failed to delete stored session: %w", err)
	}

	c.logger.Info("logged out", "client_id", c.cfg.ClientID)
	return nil
}

// HasAnySession reports whether this client has a persisted session or,
// failing that, whether the oracle knows of a sibling app's session.
func (c *Client) HasAnySession(ctx context.Context) (bool, error) {
	_, err := c.loadStoredSession(ctx)
	switch {
	case err == nil:
		return true, nil
	case !errors.Is(err, ErrNoStoredSession):
		return false, err
	}

	if c.oracle == nil {
		return false, nil
	}
	return c.oracle.HasAnySession(ctx)
}
