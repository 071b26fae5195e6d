package bouncer_test

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/bouncer/pkg/bouncer"
	"github.com/aussiebroadwan/bouncer/pkg/cryptox"
	"github.com/aussiebroadwan/bouncer/pkg/httpx"
	"github.com/aussiebroadwan/bouncer/pkg/jwtx"
	"github.com/aussiebroadwan/bouncer/pkg/securestore/sqlite"
	"github.com/aussiebroadwan/bouncer/pkg/slogx"
)

const (
	e2eKeyID    = "e2e-key"
	e2eSubject  = "user-0001"
	e2eUsername = "damien"
	e2eEmail    = "damien@example.com"
)

// ============================================================================
// In-Process Provider
// ============================================================================

// grantSeed is what the provider remembers about an authenticated user
// across grants: enough to cut fresh ID tokens on every refresh.
type grantSeed struct {
	clientID string
	acr      string
}

// authCode is a pending one-time authorization code.
type authCode struct {
	seed      grantSeed
	challenge string
	nonce     string
	scope     string
}

// provider is an in-process OpenID provider. It serves a discovery
// document, redirects authorization requests straight back with a code,
// enforces PKCE on the exchange, rotates refresh tokens and signs real
// ID tokens, so the client is tested against provider behavior rather
// than a canned transcript.
type provider struct {
	srv    *httptest.Server
	issuer string
	tag    string // random run tag so minted tokens are unmistakable byte strings

	signKey ed25519.PrivateKey
	pubKey  ed25519.PublicKey

	tokenDelay    atomic.Int64 // artificial token endpoint latency, nanoseconds
	codeGrants    atomic.Int32
	refreshGrants atomic.Int32

	mu       sync.Mutex
	serial   int
	codes    map[string]authCode
	sessions map[string]grantSeed // live refresh token -> seed
}

func newProvider(t *testing.T) *provider {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	tag := make([]byte, 8)
	_, err = rand.Read(tag)
	require.NoError(t, err)

	p := &provider{
		tag:      hex.EncodeToString(tag),
		signKey:  priv,
		pubKey:   pub,
		codes:    make(map[string]authCode),
		sessions: make(map[string]grantSeed),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", p.handleDiscovery)
	mux.HandleFunc("GET /.well-known/jwks.json", p.handleJWKS)
	mux.HandleFunc("GET /oauth2/authorize", p.handleAuthorize)
	mux.HandleFunc("POST /oauth2/token", p.handleToken)

	p.srv = httptest.NewServer(mux)
	p.issuer = p.srv.URL
	t.Cleanup(p.srv.Close)

	return p
}

func (p *provider) handleDiscovery(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]string{
		"issuer":                 p.issuer,
		"authorization_endpoint": p.issuer + "/oauth2/authorize",
		"token_endpoint":         p.issuer + "/oauth2/token",
		"jwks_uri":               p.issuer + "/.well-known/jwks.json",
	})
}

func (p *provider) handleJWKS(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, jwtx.JWKS{
		Keys: []jwtx.JWK{jwtx.NewEd25519JWK(e2eKeyID, "sig", "EdDSA", p.pubKey)},
	})
}

// handleAuthorize plays the whole browser leg in one round trip: the
// "user" always approves, so the response is an immediate redirect back
// to the app with a one-time code.
func (p *provider) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("response_type") != "code" || q.Get("client_id") == "" ||
		q.Get("code_challenge_method") != "S256" || q.Get("code_challenge") == "" {
		http.Error(w, "malformed authorization request", http.StatusBadRequest)
		return
	}

	acr := ""
	if factor := q.Get("acr_values"); factor != "" {
		acr = "mfa:" + factor
	}

	p.mu.Lock()
	p.serial++
	code := fmt.Sprintf("code-%d", p.serial)
	p.codes[code] = authCode{
		seed:      grantSeed{clientID: q.Get("client_id"), acr: acr},
		challenge: q.Get("code_challenge"),
		nonce:     q.Get("nonce"),
		scope:     q.Get("scope"),
	}
	p.mu.Unlock()

	loc := q.Get("redirect_uri") + "?" + url.Values{
		"code":  {code},
		"state": {q.Get("state")},
	}.Encode()
	http.Redirect(w, r, loc, http.StatusFound)
}

func (p *provider) handleToken(w http.ResponseWriter, r *http.Request) {
	if d := p.tokenDelay.Load(); d > 0 {
		time.Sleep(time.Duration(d))
	}
	_ = r.ParseForm()

	switch r.PostForm.Get("grant_type") {
	case "authorization_code":
		p.codeGrants.Add(1)
		p.exchangeCode(w, r)
	case "refresh_token":
		p.refreshGrants.Add(1)
		p.refreshSession(w, r)
	default:
		oauthError(w, http.StatusBadRequest, "unsupported_grant_type", "unknown grant type")
	}
}

func (p *provider) exchangeCode(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	ac, ok := p.codes[r.PostForm.Get("code")]
	delete(p.codes, r.PostForm.Get("code"))
	p.mu.Unlock()

	if !ok {
		oauthError(w, http.StatusBadRequest, "invalid_grant", "unknown or already used code")
		return
	}

	hash := sha256.Sum256([]byte(r.PostForm.Get("code_verifier")))
	if base64.RawURLEncoding.EncodeToString(hash[:]) != ac.challenge {
		oauthError(w, http.StatusBadRequest, "invalid_grant", "pkce verification failed")
		return
	}

	p.issueTokens(w, ac.seed, ac.nonce, ac.scope)
}

func (p *provider) refreshSession(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	seed, ok := p.sessions[r.PostForm.Get("refresh_token")]
	delete(p.sessions, r.PostForm.Get("refresh_token"))
	p.mu.Unlock()

	if !ok {
		oauthError(w, http.StatusBadRequest, "invalid_grant", "unknown or rotated refresh token")
		return
	}

	// Refresh responses carry no nonce, there is no authorization request
	// to echo it from.
	p.issueTokens(w, seed, "", r.PostForm.Get("scope"))
}

// issueTokens mints a fresh bundle and rotates the refresh token.
func (p *provider) issueTokens(w http.ResponseWriter, seed grantSeed, nonce, scope string) {
	p.mu.Lock()
	p.serial++
	n := p.serial
	refresh := fmt.Sprintf("rt-%d-%s", n, p.tag)
	p.sessions[refresh] = seed
	p.mu.Unlock()

	idToken, err := p.mintIDToken(seed, nonce)
	if err != nil {
		http.Error(w, "failed to sign id token", http.StatusInternalServerError)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, bouncer.TokenResponse{
		AccessToken:  fmt.Sprintf("at-%d-%s", n, p.tag),
		RefreshToken: refresh,
		IDToken:      idToken,
		TokenType:    "Bearer",
		ExpiresIn:    3600,
		Scope:        scope,
	})
}

func (p *provider) mintIDToken(seed grantSeed, nonce string) (string, error) {
	now := time.Now()
	claims := jwtx.IDClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    p.issuer,
			Subject:   e2eSubject,
			Audience:  jwt.ClaimStrings{seed.clientID},
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Nonce:    nonce,
		ACR:      seed.acr,
		Username: e2eUsername,
		Email:    e2eEmail,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	token.Header["kid"] = e2eKeyID
	return token.SignedString(p.signKey)
}

func oauthError(w http.ResponseWriter, status int, code, description string) {
	httpx.WriteJSON(w, status, map[string]string{
		"error":             code,
		"error_description": description,
	})
}

// ============================================================================
// App Fixture
// ============================================================================

// testApp is one client app wired the way the CLI wires it: discovered
// endpoints and a sealed sqlite store of its own.
type testApp struct {
	clientID string
	dir      string
	cfg      bouncer.Config
	store    *sqlite.Store
	client   *bouncer.Client
}

func newTestApp(t *testing.T, p *provider, clientID string, opts ...bouncer.ClientOption) *testApp {
	t.Helper()
	return newTestAppRedirect(t, p, clientID, "http://127.0.0.1:8912/callback", opts...)
}

func newTestAppRedirect(t *testing.T, p *provider, clientID, redirectURI string, opts ...bouncer.ClientOption) *testApp {
	t.Helper()

	dir := t.TempDir()
	masterKey, err := cryptox.LoadOrCreateMasterKey(filepath.Join(dir, "bouncer.key"))
	require.NoError(t, err)
	sealer, err := cryptox.NewSealer(masterKey)
	require.NoError(t, err)

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", filepath.Join(dir, "bouncer.db"))
	store, err := sqlite.NewStore(dsn, sealer)
	require.NoError(t, err)
	require.NoError(t, store.ApplyMigrations())
	t.Cleanup(func() { _ = store.Close() })

	cfg := bouncer.Config{
		Issuer:      p.issuer,
		ClientID:    clientID,
		RedirectURI: redirectURI,
		Scopes:      []string{"tab.read"},
	}
	require.NoError(t, cfg.Discover(t.Context(), nil))

	opts = append([]bouncer.ClientOption{bouncer.WithLogger(slogx.Noop())}, opts...)
	client, err := bouncer.New(cfg, store, opts...)
	require.NoError(t, err)

	return &testApp{clientID: clientID, dir: dir, cfg: cfg, store: store, client: client}
}

// reopen builds a second client over the same store, as if the app
// process restarted.
func (a *testApp) reopen(t *testing.T) *bouncer.Client {
	t.Helper()
	client, err := bouncer.New(a.cfg, a.store, bouncer.WithLogger(slogx.Noop()))
	require.NoError(t, err)
	return client
}

// ============================================================================
// Browser Leg
// ============================================================================

// authenticate drives the browser step: open the authorization URL and
// capture the provider's redirect back to the app without following it,
// the way a custom app scheme would be handed over by the OS.
func authenticate(t *testing.T, loginURL string) string {
	t.Helper()

	browser := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := browser.Get(loginURL)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusFound, resp.StatusCode)
	loc := resp.Header.Get("Location")
	require.NotEmpty(t, loc)
	return loc
}

// login runs the full dance for a test that just needs a session.
func login(t *testing.T, app *testApp) *bouncer.User {
	t.Helper()

	loginURL, err := app.client.GenerateLoginURL(t.Context(), bouncer.LoginRequest{})
	require.NoError(t, err)

	user, err := app.client.HandleAuthenticationResponse(t.Context(), authenticate(t, loginURL))
	require.NoError(t, err)
	return user
}
