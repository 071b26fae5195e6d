package bouncer_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/bouncer/pkg/bouncer"
	"github.com/aussiebroadwan/bouncer/pkg/securestore"
	"github.com/aussiebroadwan/bouncer/pkg/securestore/memory"
	"github.com/aussiebroadwan/bouncer/pkg/slogx"
)

/*
 * Shared fixtures for the client tests. The fake IdP stubs only the
 * endpoints the SDK talks to; tests swap its token handler to script
 * provider behaviour per scenario.
 */

const (
	testClientID    = "tab-app"
	testRedirectURI = "tabapp://callback"
)

// fakeIdP is an in-process stand-in for the authorization server.
type fakeIdP struct {
	srv *httptest.Server

	// tokenCalls counts hits on the token endpoint, across handler swaps.
	tokenCalls atomic.Int32

	mu      sync.Mutex
	handler http.HandlerFunc
}

func newFakeIdP(t *testing.T) *fakeIdP {
	t.Helper()

	idp := &fakeIdP{}
	idp.handler = tokenSuccess(bouncer.TokenResponse{
		AccessToken:  "at-1",
		RefreshToken: "rt-1",
		TokenType:    "Bearer",
		ExpiresIn:    900,
	})

	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		idp.tokenCalls.Add(1)
		idp.mu.Lock()
		h := idp.handler
		idp.mu.Unlock()
		h(w, r)
	})

	idp.srv = httptest.NewServer(mux)
	t.Cleanup(idp.srv.Close)
	return idp
}

// setTokenHandler swaps the token endpoint behaviour for the next requests.
func (f *fakeIdP) setTokenHandler(h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

func (f *fakeIdP) tokenURL() string     { return f.srv.URL + "/oauth2/token" }
func (f *fakeIdP) authorizeURL() string { return f.srv.URL + "/oauth2/authorize" }

// tokenSuccess responds 200 with the given token body.
func tokenSuccess(resp bouncer.TokenResponse) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// tokenOAuthFailure responds with an RFC 6749 error object.
func tokenOAuthFailure(status int, code, description string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"error":             code,
			"error_description": description,
		})
	}
}

// newTestClient builds a client against the fake IdP with a quiet logger.
func newTestClient(t *testing.T, store securestore.Store, idp *fakeIdP, opts ...bouncer.ClientOption) *bouncer.Client {
	t.Helper()

	cfg := bouncer.Config{
		ClientID:              testClientID,
		RedirectURI:           testRedirectURI,
		AuthorizationEndpoint: idp.authorizeURL(),
		TokenEndpoint:         idp.tokenURL(),
		Scopes:                []string{"tab.read"},
	}

	opts = append([]bouncer.ClientOption{bouncer.WithLogger(slogx.Noop())}, opts...)
	client, err := bouncer.New(cfg, store, opts...)
	require.NoError(t, err)
	return client
}

// startLogin generates a login URL and returns the state parameter it
// carries, i.e. what the provider would echo back on the callback.
func startLogin(t *testing.T, ctx context.Context, client *bouncer.Client, req bouncer.LoginRequest) string {
	t.Helper()

	loginURL, err := client.GenerateLoginURL(ctx, req)
	require.NoError(t, err)

	u, err := url.Parse(loginURL)
	require.NoError(t, err)
	state := u.Query().Get("state")
	require.NotEmpty(t, state)
	return state
}

// callbackURL builds a redirect-URI callback carrying the given parameters.
func callbackURL(params url.Values) string {
	return testRedirectURI + "?" + params.Encode()
}

// completeLogin runs the whole login flow against the fake IdP and returns
// the logged-in user.
func completeLogin(t *testing.T, ctx context.Context, client *bouncer.Client) *bouncer.User {
	t.Helper()

	state := startLogin(t, ctx, client, bouncer.LoginRequest{})
	user, err := client.HandleAuthenticationResponse(ctx, callbackURL(url.Values{
		"code":  {"auth-code-1"},
		"state": {state},
	}))
	require.NoError(t, err)
	return user
}

// flakyStore wraps a Store and fails writes on demand, for exercising
// persistence failure paths.
type flakyStore struct {
	securestore.Store
	failPuts atomic.Bool
}

func newFlakyStore() *flakyStore {
	return &flakyStore{Store: memory.New()}
}

func (s *flakyStore) Put(ctx context.Context, key string, value []byte) error {
	if s.failPuts.Load() {
		return errors.New("store: write failed")
	}
	return s.Store.Put(ctx, key, value)
}
