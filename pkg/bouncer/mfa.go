package bouncer

import (
	"errors"
	"fmt"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

// MFAType names an authentication factor the app can ask the provider to
// enforce. A non-empty value is sent as acr_values on the authorization
// request; how the factor is actually collected is the provider's business.
type MFAType string

const (
	MFATypeOTP  MFAType = "otp"
	MFATypeSMS  MFAType = "sms"
	MFATypeTOTP MFAType = "totp"
)

var ErrInvalidTOTPCode = errors.New("invalid TOTP code")

// Authenticator generates TOTP codes from an otpauth:// enrollment URL, for
// deployments where the app doubles as the authenticator instead of handing
// the QR code to a third-party one. It holds the shared secret in memory
// only; storing it between runs is the caller's job (see securestore).
type Authenticator struct {
	key *otp.Key
}

// NewAuthenticator parses the otpauth:// enrollment URL handed out by the
// provider during MFA enrollment.
func NewAuthenticator(enrollmentURL string) (*Authenticator, error) {
	key, err := otp.NewKeyFromURL(enrollmentURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse enrollment URL: %w", err)
	}
	if key.Secret() == "" {
		return nil, errors.New("bouncer: enrollment URL carries no secret")
	}
	return &Authenticator{key: key}, nil
}

// Code returns the TOTP code valid at t.
func (a *Authenticator) Code(t time.Time) (string, error) {
	code, err := totp.GenerateCode(a.key.Secret(), t)
	if err != nil {
		return "", fmt.Errorf("failed to generate TOTP code: %w", err)
	}
	return code, nil
}

// Verify checks a code against the shared secret. Mostly useful in tests and
// for confirming enrollment before the secret is persisted.
func (a *Authenticator) Verify(code string, t time.Time) error {
	valid, err := totp.ValidateCustom(code, a.key.Secret(), t, totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		return fmt.Errorf("failed to validate TOTP code: %w", err)
	}
	if !valid {
		return ErrInvalidTOTPCode
	}
	return nil
}

// Issuer returns the issuer label from the enrollment URL.
func (a *Authenticator) Issuer() string { return a.key.Issuer() }

// AccountName returns the account label from the enrollment URL.
func (a *Authenticator) AccountName() string { return a.key.AccountName() }
