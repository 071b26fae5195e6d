package bouncer

import (
	"context"
	"encoding/json"
	"fmt"
)

// Storage keys. The auth state slot is a single-slot register: one login
// attempt outstanding at a time, last writer wins. Sessions are keyed per
// client_id.
const (
	authStateKey     = "login_attempt"
	sessionKeyPrefix = "user_session:"
)

func sessionKey(clientID string) string {
	return sessionKeyPrefix + clientID
}

// AuthState is the ephemeral record of a single login attempt, persisted
// between GenerateLoginURL and HandleAuthenticationResponse and never
// reused. The state value is cryptographically unguessable and unique per
// attempt so a forged or replayed callback cannot match it.
type AuthState struct {
	State        string `json:"state"`
	Nonce        string `json:"nonce"`
	CodeVerifier string `json:"code_verifier"` // 43-128 chars per RFC 7636

	// MFA echoes the factor requested for this attempt, when any.
	MFA MFAType `json:"mfa,omitempty"`

	// AttemptID correlates this attempt's log lines. It never participates
	// in callback validation.
	AttemptID string `json:"attempt_id"`
}

// persistAuthState writes the attempt record, overwriting any prior
// uncompleted attempt. Must complete before the login URL reaches the
// caller.
func (c *Client) persistAuthState(ctx context.Context, state AuthState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal auth state: %w", err)
	}
	if err := c.store.Put(ctx, authStateKey, raw); err != nil {
		return fmt.Errorf("failed to persist auth state: %w", err)
	}
	return nil
}

// loadAuthState reads the outstanding attempt record. Absence or a corrupt
// record both surface as errors; the caller maps them to the login
// taxonomy.
func (c *Client) loadAuthState(ctx context.Context) (AuthState, error) {
	raw, err := c.store.Get(ctx, authStateKey)
	if err != nil {
		return AuthState{}, fmt.Errorf("failed to read auth state: %w", err)
	}

	var state AuthState
	if err := json.Unmarshal(raw, &state); err != nil {
		return AuthState{}, fmt.Errorf("failed to unmarshal auth state: %w", err)
	}
	return state, nil
}

// deleteAuthState consumes the attempt record. Called the moment a
// callback is matched against it, success or failure, so a state value is
// strictly single-use.
func (c *Client) deleteAuthState(ctx context.Context) error {
	if err := c.store.Delete(ctx, authStateKey); err != nil {
		return fmt.Errorf("failed to delete auth state: %w", err)
	}
	return nil
}
