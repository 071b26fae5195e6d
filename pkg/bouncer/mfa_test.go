package bouncer_test

import (
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/bouncer/pkg/bouncer"
)

// enroll mints an otpauth:// URL the way a provider would during MFA
// enrollment.
func enroll(t *testing.T) string {
	t.Helper()

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      "TabApp",
		AccountName: "patron@example.com",
	})
	require.NoError(t, err)
	return key.URL()
}

func TestAuthenticator(t *testing.T) {
	t.Parallel()

	t.Run("generates codes the provider accepts", func(t *testing.T) {
		url := enroll(t)

		a, err := bouncer.NewAuthenticator(url)
		require.NoError(t, err)

		now := time.Now()
		code, err := a.Code(now)
		require.NoError(t, err)
		require.Len(t, code, 6)

		require.NoError(t, a.Verify(code, now))
	})

	t.Run("rejects a wrong code", func(t *testing.T) {
		a, err := bouncer.NewAuthenticator(enroll(t))
		require.NoError(t, err)

		err = a.Verify("000000", time.Now().Add(time.Hour))
		require.ErrorIs(t, err, bouncer.ErrInvalidTOTPCode)
	})

	t.Run("carries the enrollment labels", func(t *testing.T) {
		a, err := bouncer.NewAuthenticator(enroll(t))
		require.NoError(t, err)

		require.Equal(t, "TabApp", a.Issuer())
		require.Equal(t, "patron@example.com", a.AccountName())
	})

	t.Run("rejects a malformed enrollment URL", func(t *testing.T) {
		_, err := bouncer.NewAuthenticator("://nope")
		require.Error(t, err)
	})

	t.Run("rejects an enrollment URL without a secret", func(t *testing.T) {
		_, err := bouncer.NewAuthenticator("otpauth://totp/TabApp:patron?issuer=TabApp")
		require.ErrorContains(t, err, "no secret")
	})
}
