package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/bouncer/internal/cli/loopback"
	"github.com/aussiebroadwan/bouncer/pkg/bouncer"
	"github.com/aussiebroadwan/bouncer/pkg/jwtx"
	"github.com/aussiebroadwan/bouncer/pkg/presence"
)

// ============================================================================
// Login
// ============================================================================

// Login runs the full authorization code dance: start the loopback
// listener, print the authorization URL, wait for the provider to
// redirect back and exchange the code for a session.
func (a *App) Login(ctx context.Context, scopes []string, mfa bouncer.MFAType) error {
	srv := loopback.New(a.cfg.CallbackPort, a.cfg.CallbackPath, a.logger)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start callback listener: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	loginURL, err := a.client.GenerateLoginURL(ctx, bouncer.LoginRequest{
		Scopes: scopes,
		MFA:    mfa,
	})
	if err != nil {
		return fmt.Errorf("failed to start login: %w", err)
	}

	fmt.Println("Open this URL in your browser to sign in:")
	fmt.Println()
	fmt.Println("  " + loginURL)
	fmt.Println()

	waitCtx, cancel := context.WithTimeout(ctx, a.cfg.LoginTimeout)
	defer cancel()

	callbackURL, err := srv.Wait(waitCtx)
	if err != nil {
		return fmt.Errorf("no callback received: %w", err)
	}

	user, err := a.client.HandleAuthenticationResponse(ctx, callbackURL)
	if err != nil {
		return err
	}
	a.announce()

	if claims, err := user.IDClaims(); err == nil && claims.Username != "" {
		fmt.Printf("Signed in as %s.\n", claims.Username)
	} else {
		fmt.Println("Signed in.")
	}
	return nil
}

// announce drops this client's presence marker so sibling apps can see
// the session. Best effort, a failed marker never fails the login.
func (a *App) announce() {
	if a.cfg.PresenceDir == "" {
		return
	}
	if err := presence.Announce(a.cfg.PresenceDir, a.cfg.ClientID); err != nil {
		a.logger.Warn("failed to announce session", "error", err)
	}
}

// ============================================================================
// Status
// ============================================================================

// Status reports whether this app holds a session, falling back to the
// presence oracle to spot a sibling app's session.
func (a *App) Status(ctx context.Context) error {
	user, err := a.client.ResumeSession(ctx)
	switch {
	case err == nil:
		tokens, _ := user.Tokens()
		fmt.Println("Signed in.")
		if claims, cerr := user.IDClaims(); cerr == nil {
			printClaims(claims)
		}
		if tokens.RefreshToken == "" {
			fmt.Println("No refresh token held; the session ends when the access token expires.")
		}
		return nil

	case errors.Is(err, bouncer.ErrNoStoredSession):
		any, oerr := a.client.HasAnySession(ctx)
		if oerr != nil {
			return fmt.Errorf("failed to check sessions: %w", oerr)
		}
		if any {
			fmt.Println("Not signed in here, but another app of this family holds a session.")
		} else {
			fmt.Println("Not signed in.")
		}
		return nil

	default:
		return fmt.Errorf("failed to resume session: %w", err)
	}
}

// ============================================================================
// Refresh
// ============================================================================

// Refresh forces a token refresh on the stored session.
func (a *App) Refresh(ctx context.Context) error {
	user, err := a.client.ResumeSession(ctx)
	if err != nil {
		if errors.Is(err, bouncer.ErrNoStoredSession) {
			return errors.New("not signed in")
		}
		return fmt.Errorf("failed to resume session: %w", err)
	}

	if _, err := a.client.RefreshTokens(ctx, user); err != nil {
		var re *bouncer.RefreshTokenError
		if errors.As(err, &re) && re.Kind == bouncer.RefreshNoToken {
			return errors.New("the provider granted no refresh token, sign in again")
		}
		return err
	}

	fmt.Println("Tokens refreshed.")
	return nil
}

// ============================================================================
// Logout
// ============================================================================

// Logout removes the stored session and withdraws the presence marker.
func (a *App) Logout(ctx context.Context) error {
	if err := a.client.Logout(ctx); err != nil {
		return fmt.Errorf("failed to log out: %w", err)
	}
	if a.cfg.PresenceDir != "" {
		if err := presence.Withdraw(a.cfg.PresenceDir, a.cfg.ClientID); err != nil {
			a.logger.Warn("failed to withdraw session marker", "error", err)
		}
	}
	fmt.Println("Signed out.")
	return nil
}

// ============================================================================
// WhoAmI
// ============================================================================

// WhoAmI prints the identity claims from the stored session's ID token.
// With verify set the token's signature is checked against the
// provider's published keys instead of being decoded blind.
func (a *App) WhoAmI(ctx context.Context, verify bool) error {
	user, err := a.client.ResumeSession(ctx)
	if err != nil {
		if errors.Is(err, bouncer.ErrNoStoredSession) {
			return errors.New("not signed in")
		}
		return fmt.Errorf("failed to resume session: %w", err)
	}

	if !verify {
		claims, err := user.IDClaims()
		if err != nil {
			return fmt.Errorf("failed to read identity: %w", err)
		}
		printClaims(claims)
		return nil
	}

	if a.bcfg.JWKSURI == "" {
		return errors.New("no jwks_uri configured, set one or configure the issuer for discovery")
	}
	tokens, ok := user.Tokens()
	if !ok || tokens.IDToken == "" {
		return errors.New("the session holds no id token")
	}

	jwks := bouncer.NewJWKSClient(a.bcfg.JWKSURI, a.httpClient, 0)
	defer jwks.Close()

	keys, err := jwks.FetchKeys(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch provider keys: %w", err)
	}

	verifier := jwtx.NewVerifier(keys, jwtx.VerifyOptions{
		Issuer:   a.bcfg.Issuer,
		Audience: a.cfg.ClientID,
	})
	claims, err := verifier.Verify(tokens.IDToken, "")
	if err != nil {
		return fmt.Errorf("id token failed verification: %w", err)
	}

	fmt.Println("Signature verified.")
	printClaims(claims)
	return nil
}

func printClaims(claims *jwtx.IDClaims) {
	fmt.Printf("  subject:  %s\n", claims.Subject)
	if claims.Username != "" {
		fmt.Printf("  username: %s\n", claims.Username)
	}
	if claims.Name != "" {
		fmt.Printf("  name:     %s\n", claims.Name)
	}
	if claims.Email != "" {
		fmt.Printf("  email:    %s\n", claims.Email)
	}
	if claims.ACR != "" {
		fmt.Printf("  acr:      %s\n", claims.ACR)
	}
}

// ============================================================================
// TOTP
// ============================================================================

// TOTP prints the current code for an otpauth:// enrollment URL, mainly
// for poking at MFA flows without a phone.
func (a *App) TOTP(enrollmentURL string) error {
	auth, err := bouncer.NewAuthenticator(enrollmentURL)
	if err != nil {
		return fmt.Errorf("failed to parse enrollment url: %w", err)
	}
	code, err := auth.Code(time.Now())
	if err != nil {
		return fmt.Errorf("failed to generate code: %w", err)
	}
	fmt.Println(code)
	return nil
}
