package bouncer_test

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/bouncer/internal/cli/loopback"
	"github.com/aussiebroadwan/bouncer/pkg/bouncer"
	"github.com/aussiebroadwan/bouncer/pkg/slogx"
)

// TestLoopbackLoginFlow tests the CLI's variant of the dance, where the
// redirect lands on a local listener instead of an app link:
// 1. Bind the loopback listener on an ephemeral port
// 2. Generate the authorization URL for the listener's redirect URI
// 3. The browser follows the provider redirect onto the listener and
//    gets the landing page
// 4. The waiting command picks up the callback and finishes the exchange
func TestLoopbackLoginFlow(t *testing.T) {
	p := newProvider(t)

	srv := loopback.New(0, "/callback", slogx.Noop())
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	app := newTestAppRedirect(t, p, "tab-cli", "http://"+srv.Addr()+"/callback")

	loginURL, err := app.client.GenerateLoginURL(t.Context(), bouncer.LoginRequest{})
	require.NoError(t, err)
	t.Logf("Authorization URL: %s", loginURL)

	// This browser follows redirects all the way onto the listener.
	resp, err := http.Get(loginURL)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "You're signed in")

	waitCtx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	callbackURL, err := srv.Wait(waitCtx)
	require.NoError(t, err)
	t.Logf("Callback caught: %s", callbackURL)

	user, err := app.client.HandleAuthenticationResponse(t.Context(), callbackURL)
	require.NoError(t, err)

	tokens, ok := user.Tokens()
	require.True(t, ok)
	require.NotEmpty(t, tokens.AccessToken)
	t.Logf("Exchange complete")
}

// TestLoopbackWaitTimeout tests that an abandoned login gives up when
// its context expires instead of hanging the command forever.
func TestLoopbackWaitTimeout(t *testing.T) {
	srv := loopback.New(0, "/callback", slogx.Noop())
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})

	waitCtx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()

	_, err := srv.Wait(waitCtx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
