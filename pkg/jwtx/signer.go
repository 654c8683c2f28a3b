package jwtx

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/gatekeeper/pkg/cryptox"
	"github.com/golang-jwt/jwt/v5"
)

// Supported signing algorithms.
const (
	AlgorithmHS256 = "HS256"
	AlgorithmEdDSA = "EdDSA"
)

// MinSecretLength is the shortest HS256 secret accepted, in bytes.
const MinSecretLength = 32

// Signer signs claims and exposes the material needed to verify them.
type Signer interface {
	Alg() string
	KID() string
	Sign(Claims) (string, error)

	method() jwt.SigningMethod
	verificationKey() any
}

type signer struct {
	kid     string
	meth    jwt.SigningMethod
	signKey any
	pubKey  any
}

func (s *signer) Alg() string               { return s.meth.Alg() }
func (s *signer) KID() string               { return s.kid }
func (s *signer) method() jwt.SigningMethod { return s.meth }
func (s *signer) verificationKey() any      { return s.pubKey }

// Sign turns claims into a compact JWS with the key id in the header.
func (s *signer) Sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(s.meth, claims)
	t.Header["kid"] = s.kid
	return t.SignedString(s.signKey)
}

// NewSignerHS256 creates a keyed-MAC signer. All service instances must be
// configured with the same secret.
func NewSignerHS256(secret []byte) (Signer, error) {
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("jwtx: HS256 secret must be at least %d bytes", MinSecretLength)
	}
	key := append([]byte(nil), secret...)
	return &signer{
		kid:     "hs-" + cryptox.Fingerprint(key),
		meth:    jwt.SigningMethodHS256,
		signKey: key,
		pubKey:  key,
	}, nil
}

// NewSignerEdDSA creates an Ed25519 signer from a PKCS8 PEM private key.
func NewSignerEdDSA(pemKey []byte) (Signer, error) {
	priv, err := cryptox.ParseEd25519Key(pemKey)
	if err != nil {
		return nil, err
	}
	pub, ok := priv.Public().(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("jwtx: invalid Ed25519 public key")
	}
	return &signer{
		kid:     "ed-" + cryptox.Fingerprint(pub),
		meth:    jwt.SigningMethodEdDSA,
		signKey: priv,
		pubKey:  pub,
	}, nil
}
