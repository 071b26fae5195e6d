package jwtx

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed  = errors.New("jwtx: malformed token")
	ErrUnknownKID = errors.New("jwtx: unknown kid")

	ErrIssuer      = errors.New("jwtx: issuer mismatch")
	ErrAudience    = errors.New("jwtx: audience mismatch")
	ErrExpired     = errors.New("jwtx: token expired")
	ErrNotYetValid = errors.New("jwtx: token not yet valid")
	ErrNonce       = errors.New("jwtx: nonce mismatch")
)

// VerifyOptions captures the expectations the verifier enforces on every
// token it checks.
type VerifyOptions struct {
	// Issuer the token must have (claims.iss). Empty means "don't care".
	Issuer string

	// Audience value the token must contain (claims.aud). For ID tokens
	// this is the client_id. Empty means "don't care".
	Audience string

	// Leeway allows small clock skew when validating exp/nbf.
	// Because time sync is never perfect.
	Leeway time.Duration

	// Methods restricts the accepted signing algorithms. Defaults to
	// RS256, ES256 and EdDSA, which covers what providers actually ship.
	Methods []string
}

// Verifier validates ID tokens against a provider's published keys. The
// kid header picks the key out of the set, so one verifier handles key
// rotation and mixed-algorithm JWKS documents.
type Verifier struct {
	keys *KeySet
	opts VerifyOptions
}

// NewVerifier creates a verifier over a KeySet of provider public keys.
func NewVerifier(keys *KeySet, opts VerifyOptions) *Verifier {
	if len(opts.Methods) == 0 {
		opts.Methods = []string{
			jwt.SigningMethodRS256.Alg(),
			jwt.SigningMethodES256.Alg(),
			jwt.SigningMethodEdDSA.Alg(),
		}
	}
	return &Verifier{keys: keys, opts: opts}
}

// Verify validates the JWT string and returns its parsed claims. The
// nonce argument is compared against the token's nonce claim; pass ""
// when the token did not come from an authorization request, e.g. on
// refresh.
func (v *Verifier) Verify(tokenStr, nonce string) (*IDClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods(v.opts.Methods),
		jwt.WithLeeway(v.opts.Leeway),
	)

	token, err := parser.ParseWithClaims(tokenStr, &IDClaims{}, func(t *jwt.Token) (any, error) {
		// Need the kid to know which key to use
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("jwtx: missing kid")
		}

		// Try to find this key in our set
		pub, err := v.keys.Get(kid)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrUnknownKID, kid)
		}

		return pub, nil
	})
	if err != nil {
		return nil, fmt.Errorf("jwtx: parse or verify: %w", err)
	}

	claims, ok := token.Claims.(*IDClaims)
	if !ok || !token.Valid {
		return nil, errors.New("jwtx: invalid token claims")
	}

	// Now check all the claim requirements
	if err := claims.ValidateIssuer(v.opts.Issuer); err != nil {
		return nil, err
	}
	if err := claims.ValidateAudience(v.opts.Audience); err != nil {
		return nil, err
	}
	if err := claims.ValidateExpiryWithLeeway(v.opts.Leeway); err != nil {
		return nil, err
	}
	if err := claims.ValidateNonce(nonce); err != nil {
		return nil, err
	}

	return claims, nil
}
