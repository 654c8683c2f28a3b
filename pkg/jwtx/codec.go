package jwtx

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMalformed   = errors.New("jwtx: malformed token")
	ErrAlgMismatch = errors.New("jwtx: algorithm mismatch")
	ErrUnknownKID  = errors.New("jwtx: unknown kid")
	ErrInvalidSig  = errors.New("jwtx: invalid signature")

	ErrIssuer       = errors.New("jwtx: issuer mismatch")
	ErrExpired      = errors.New("jwtx: token expired")
	ErrNotYetValid  = errors.New("jwtx: token not yet valid")
	ErrInvalidClaim = errors.New("jwtx: invalid claims")
)

// Codec encodes and decodes session tokens with a single signing key. It
// holds no mutable state and is safe for concurrent use.
type Codec struct {
	signer Signer
	issuer string
	parser *jwt.Parser
}

func NewCodec(s Signer, issuer string) *Codec {
	return &Codec{
		signer: s,
		issuer: issuer,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{s.Alg()}),
			jwt.WithoutClaimsValidation(),
		),
	}
}

// Issuer returns the iss value stamped on new tokens.
func (c *Codec) Issuer() string { return c.issuer }

// Algorithm returns the signing algorithm in use.
func (c *Codec) Algorithm() string { return c.signer.Alg() }

// Encode signs claims.
func (c *Codec) Encode(claims Claims) (string, error) {
	if err := claims.validateRequired(); err != nil {
		return "", err
	}
	return c.signer.Sign(claims)
}

type header struct {
	Alg string `json:"alg"`
	Kid string `json:"kid"`
}

// Decode verifies the signature over the raw signing input before the
// header or any claim is decoded, then returns the claims. Time-based
// validation is left to the caller (see Claims.ValidateTimes) so it can use
// its own clock.
func (c *Codec) Decode(token string) (Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" {
		return Claims{}, ErrMalformed
	}

	sig, err := c.parser.DecodeSegment(parts[2])
	if err != nil {
		return Claims{}, fmt.Errorf("%w: signature: %v", ErrMalformed, err)
	}
	signingInput := parts[0] + "." + parts[1]
	if err := c.signer.method().Verify(signingInput, sig, c.signer.verificationKey()); err != nil {
		return Claims{}, ErrInvalidSig
	}

	// Only reachable with bytes this key signed.
	rawHeader, err := c.parser.DecodeSegment(parts[0])
	if err != nil {
		return Claims{}, fmt.Errorf("%w: header: %v", ErrMalformed, err)
	}
	var h header
	if err := json.Unmarshal(rawHeader, &h); err != nil {
		return Claims{}, fmt.Errorf("%w: header: %v", ErrMalformed, err)
	}
	if h.Alg != c.signer.Alg() {
		return Claims{}, ErrAlgMismatch
	}
	if h.Kid != c.signer.KID() {
		return Claims{}, ErrUnknownKID
	}

	var claims Claims
	if _, _, err := c.parser.ParseUnverified(token, &claims); err != nil {
		return Claims{}, fmt.Errorf("%w: claims: %v", ErrMalformed, err)
	}
	if err := claims.validateRequired(); err != nil {
		return Claims{}, err
	}
	if err := claims.ValidateIssuer(c.issuer); err != nil {
		return Claims{}, err
	}

	return claims, nil
}
