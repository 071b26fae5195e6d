package bouncer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// tokenClient performs the raw HTTP grants against the token endpoint and
// sorts failures into the transport taxonomy. It knows nothing about
// sessions or persistence.
type tokenClient struct {
	endpoint string
	http     *http.Client
}

// authorizationCodeGrant exchanges an authorization code, proving
// possession of the PKCE verifier that produced the challenge.
func (tc *tokenClient) authorizationCodeGrant(
	ctx context.Context,
	code, codeVerifier, clientID, redirectURI string,
) (*TokenResponse, *HTTPError) {
	data := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"code_verifier": {codeVerifier},
		"client_id":     {clientID},
		"redirect_uri":  {redirectURI},
	}

	return tc.requestToken(ctx, data)
}

// refreshGrant requests new tokens using a refresh token.
func (tc *tokenClient) refreshGrant(
	ctx context.Context,
	refreshToken, clientID, scope string,
) (*TokenResponse, *HTTPError) {
	data := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {refreshToken},
		"client_id":     {clientID},
	}
	if scope != "" {
		data.Set("scope", scope)
	}

	return tc.requestToken(ctx, data)
}

// requestToken POSTs a form-encoded grant and decodes the success body.
// Failures split three ways: the request never got out or no response
// arrived (connection), the provider said no (response, status and body
// preserved), or the request could not be built / the success body could
// not be decoded (request).
func (tc *tokenClient) requestToken(ctx context.Context, data url.Values) (*TokenResponse, *HTTPError) {
	req, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		tc.endpoint,
		strings.NewReader(data.Encode()),
	)
	if err != nil {
		return nil, newRequestError(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := tc.http.Do(req)
	if err != nil {
		return nil, newConnectionError(fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, newResponseError(resp.StatusCode, bodyBytes)
	}

	var tokenResp TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, newRequestError(fmt.Errorf("failed to decode response: %w", err))
	}

	return &tokenResp, nil
}
