package bouncer

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ============================================================================
// OAuth2 Error Codes (RFC 6749)
// ============================================================================

const (
	// OAuth2 error codes per RFC 6749
	ErrorCodeInvalidRequest       = "invalid_request"
	ErrorCodeInvalidClient        = "invalid_client"
	ErrorCodeInvalidGrant         = "invalid_grant"
	ErrorCodeUnauthorizedClient   = "unauthorized_client"
	ErrorCodeUnsupportedGrantType = "unsupported_grant_type"
	ErrorCodeInvalidScope         = "invalid_scope"
	ErrorCodeServerError          = "server_error"
	ErrorCodeAccessDenied         = "access_denied"
)

// ============================================================================
// OAuthError - Standard OAuth2 error object
// ============================================================================

// OAuthError represents a standard OAuth2 error per RFC 6749, parsed from
// either a JSON error body or the error/error_description query parameters
// of an authorization callback. Immutable once constructed.
type OAuthError struct {
	// Code is the OAuth2 error code (e.g., "invalid_grant", "access_denied")
	Code string `json:"error"`

	// Description is a human-readable description of the error
	Description string `json:"error_description,omitempty"`
}

// Error implements the error interface.
func (e *OAuthError) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// parseOAuthError attempts to decode body as an OAuth error object.
// Returns false when the body is not JSON or carries no error code.
func parseOAuthError(body []byte) (*OAuthError, bool) {
	var oe OAuthError
	if err := json.Unmarshal(body, &oe); err != nil || oe.Code == "" {
		return nil, false
	}
	return &oe, true
}

// ============================================================================
// HTTPError - Transport-level taxonomy
// ============================================================================

// HTTPErrorKind discriminates how an HTTP call to the provider failed.
type HTTPErrorKind int

const (
	// HTTPErrorConnection: the request never produced a response
	// (DNS failure, refused connection, timeout).
	HTTPErrorConnection HTTPErrorKind = iota + 1

	// HTTPErrorResponse: the provider answered with a non-2xx status.
	// StatusCode and Body carry the response.
	HTTPErrorResponse

	// HTTPErrorRequest: the request could not be built, or a 2xx body
	// could not be decoded.
	HTTPErrorRequest
)

func (k HTTPErrorKind) String() string {
	switch k {
	case HTTPErrorConnection:
		return "connection failure"
	case HTTPErrorResponse:
		return "error response"
	case HTTPErrorRequest:
		return "request failure"
	default:
		return "unknown"
	}
}

// HTTPError is the transport-level failure underneath login and refresh
// errors. The core never retries these; retry policy belongs to the caller.
type HTTPError struct {
	Kind HTTPErrorKind

	// StatusCode and Body are set for HTTPErrorResponse.
	StatusCode int
	Body       []byte

	cause error
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	switch e.Kind {
	case HTTPErrorResponse:
		return fmt.Sprintf("token endpoint returned %d: %s", e.StatusCode, string(e.Body))
	default:
		if e.cause != nil {
			return fmt.Sprintf("token request %s: %v", e.Kind, e.cause)
		}
		return fmt.Sprintf("token request %s", e.Kind)
	}
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *HTTPError) Unwrap() error { return e.cause }

// OAuthError parses the response body as an OAuth error object. Only
// meaningful for HTTPErrorResponse; returns false otherwise.
func (e *HTTPError) OAuthError() (*OAuthError, bool) {
	if e.Kind != HTTPErrorResponse {
		return nil, false
	}
	return parseOAuthError(e.Body)
}

func newConnectionError(cause error) *HTTPError {
	return &HTTPError{Kind: HTTPErrorConnection, cause: cause}
}

func newResponseError(statusCode int, body []byte) *HTTPError {
	return &HTTPError{Kind: HTTPErrorResponse, StatusCode: statusCode, Body: body}
}

func newRequestError(cause error) *HTTPError {
	return &HTTPError{Kind: HTTPErrorRequest, cause: cause}
}

// ============================================================================
// LoginError - Login attempt taxonomy
// ============================================================================

// LoginErrorKind discriminates how a login attempt failed. The set is
// closed: callers can switch over it exhaustively.
type LoginErrorKind int

const (
	// LoginAuthStateRead: no stored request state, or it would not
	// unmarshal. The attempt was never started, already consumed, or the
	// store is misbehaving.
	LoginAuthStateRead LoginErrorKind = iota + 1

	// LoginUnsolicitedResponse: the callback's state does not match the
	// stored one. Someone is replaying or injecting callbacks.
	LoginUnsolicitedResponse

	// LoginAuthenticationError: the provider returned an OAuth error on
	// the callback (user cancelled, access denied, ...). OAuth is set.
	LoginAuthenticationError

	// LoginTokenError: the code exchange failed and the provider's
	// response body parsed as an OAuth error object. OAuth is set.
	LoginTokenError

	// LoginIDTokenInvalid: the exchanged ID token failed the configured
	// verifier (signature, issuer, audience, expiry or nonce). Only
	// possible with WithIDTokenVerifier.
	LoginIDTokenInvalid

	// LoginUnexpected: everything else (missing code parameter,
	// transport failure without an OAuth body, persistence failure).
	LoginUnexpected
)

func (k LoginErrorKind) String() string {
	switch k {
	case LoginAuthStateRead:
		return "auth state unreadable"
	case LoginUnsolicitedResponse:
		return "unsolicited response"
	case LoginAuthenticationError:
		return "authentication error response"
	case LoginTokenError:
		return "token error response"
	case LoginIDTokenInvalid:
		return "id token failed verification"
	case LoginUnexpected:
		return "unexpected error"
	default:
		return "unknown"
	}
}

// LoginError is the typed failure of GenerateLoginURL and
// HandleAuthenticationResponse. A state-integrity failure is terminal for
// the attempt; the caller must restart the login.
type LoginError struct {
	Kind LoginErrorKind

	// OAuth carries the provider's error object for
	// LoginAuthenticationError and LoginTokenError.
	OAuth *OAuthError

	msg   string
	cause error
}

// Error implements the error interface.
func (e *LoginError) Error() string {
	s := "login failed: " + e.Kind.String()
	if e.OAuth != nil {
		return s + ": " + e.OAuth.Error()
	}
	if e.msg != "" {
		s += ": " + e.msg
	}
	if e.cause != nil {
		s += ": " + e.cause.Error()
	}
	return s
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *LoginError) Unwrap() error { return e.cause }

func newLoginError(kind LoginErrorKind, msg string, cause error) *LoginError {
	return &LoginError{Kind: kind, msg: msg, cause: cause}
}

func newLoginOAuthError(kind LoginErrorKind, oe *OAuthError) *LoginError {
	return &LoginError{Kind: kind, OAuth: oe}
}

// ============================================================================
// RefreshTokenError - Refresh taxonomy
// ============================================================================

// RefreshErrorKind discriminates why a refresh produced no fresh tokens.
type RefreshErrorKind int

const (
	// RefreshNoToken: the user holds no refresh token, so no network call
	// was made.
	RefreshNoToken RefreshErrorKind = iota + 1

	// RefreshConcurrentFailure: the coalesced refresh finished without a
	// result or an error. Should not happen; kept so callers never see a
	// bare nil.
	RefreshConcurrentFailure

	// RefreshUserLoggedOut: the user logged out while the refresh was in
	// flight. The fresh tokens were discarded, nothing was persisted.
	RefreshUserLoggedOut

	// RefreshRequestFailed: the refresh grant failed at the transport or
	// protocol level. HTTP carries the detail.
	RefreshRequestFailed

	// RefreshUnexpected: everything else (persistence failure, malformed
	// success body, a rotated ID token failing the configured verifier).
	RefreshUnexpected
)

func (k RefreshErrorKind) String() string {
	switch k {
	case RefreshNoToken:
		return "no refresh token"
	case RefreshConcurrentFailure:
		return "concurrent refresh failure"
	case RefreshUserLoggedOut:
		return "user was logged out"
	case RefreshRequestFailed:
		return "refresh request failed"
	case RefreshUnexpected:
		return "unexpected error"
	default:
		return "unknown"
	}
}

// RefreshTokenError is the typed failure of RefreshTokens.
type RefreshTokenError struct {
	Kind RefreshErrorKind

	// HTTP carries the transport detail for RefreshRequestFailed.
	HTTP *HTTPError

	msg   string
	cause error
}

// Error implements the error interface.
func (e *RefreshTokenError) Error() string {
	s := "refresh failed: " + e.Kind.String()
	if e.msg != "" {
		s += ": " + e.msg
	}
	if e.cause != nil {
		s += ": " + e.cause.Error()
	}
	return s
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *RefreshTokenError) Unwrap() error {
	if e.cause != nil {
		return e.cause
	}
	if e.HTTP != nil {
		return e.HTTP
	}
	return nil
}

func newRefreshError(kind RefreshErrorKind, msg string, cause error) *RefreshTokenError {
	return &RefreshTokenError{Kind: kind, msg: msg, cause: cause}
}

func newRefreshHTTPError(httpErr *HTTPError) *RefreshTokenError {
	return &RefreshTokenError{Kind: RefreshRequestFailed, HTTP: httpErr}
}

// ============================================================================
// Sentinel errors
// ============================================================================

var (
	// ErrNoStoredSession is returned by ResumeSession when no session is
	// persisted for the configured client_id.
	ErrNoStoredSession = errors.New("bouncer: no stored session")

	// ErrNoIDToken is returned by User.IDClaims when the session holds no
	// ID token (or the user has logged out).
	ErrNoIDToken = errors.New("bouncer: no id token")
)
