package bouncer

import (
	"context"
	"strings"
)

// tokenHandler translates token operations into grants and maps success
// bodies into UserTokens. It persists nothing; persistence belongs to the
// Client.
type tokenHandler struct {
	client      *tokenClient
	clientID    string
	redirectURI string

	// scope sent on refresh grants, when the config carries default scopes
	scope string
}

func newTokenHandler(client *tokenClient, cfg Config) *tokenHandler {
	return &tokenHandler{
		client:      client,
		clientID:    cfg.ClientID,
		redirectURI: cfg.RedirectURI,
		scope:       strings.Join(cfg.Scopes, " "),
	}
}

// exchangeCode redeems an authorization code using the attempt's stored
// PKCE verifier.
func (h *tokenHandler) exchangeCode(ctx context.Context, code string, state AuthState) (UserTokens, *HTTPError) {
	resp, httpErr := h.client.authorizationCodeGrant(ctx, code, state.CodeVerifier, h.clientID, h.redirectURI)
	if httpErr != nil {
		return UserTokens{}, httpErr
	}

	return tokensFromResponse(resp), nil
}

// refresh redeems a refresh token for a new token bundle.
func (h *tokenHandler) refresh(ctx context.Context, refreshToken string) (UserTokens, *HTTPError) {
	resp, httpErr := h.client.refreshGrant(ctx, refreshToken, h.clientID, h.scope)
	if httpErr != nil {
		return UserTokens{}, httpErr
	}

	return tokensFromResponse(resp), nil
}
