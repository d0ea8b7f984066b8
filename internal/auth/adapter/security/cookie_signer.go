package security

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrEnvelopeInvalid = errors.New("session cookie is invalid")
	ErrSecretTooShort  = errors.New("session secret must be at least 16 bytes")
)

// envelopeClaims wraps the opaque session token. No exp is set; the stored
// session decides validity.
type envelopeClaims struct {
	SID string `json:"sid"`
	jwt.RegisteredClaims
}

// CookieSigner seals session tokens into HS256 JWT envelopes.
type CookieSigner struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewCookieSigner creates a signer with the given secret.
func NewCookieSigner(secret, issuer string) (*CookieSigner, error) {
	if len(secret) < 16 {
		return nil, ErrSecretTooShort
	}
	return &CookieSigner{secret: []byte(secret), issuer: issuer, now: time.Now}, nil
}

// Seal signs token into a cookie value.
func (s *CookieSigner) Seal(token string) (string, error) {
	if token == "" {
		return "", ErrEnvelopeInvalid
	}
	claims := &envelopeClaims{
		SID: token,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   s.issuer,
			IssuedAt: jwt.NewNumericDate(s.now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Open verifies the signature and returns the session token.
func (s *CookieSigner) Open(value string) (string, error) {
	if value == "" {
		return "", ErrEnvelopeInvalid
	}
	claims := &envelopeClaims{}
	token, err := jwt.ParseWithClaims(value, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil || !token.Valid {
		return "", ErrEnvelopeInvalid
	}
	if claims.SID == "" {
		return "", ErrEnvelopeInvalid
	}
	if s.issuer != "" && claims.Issuer != s.issuer {
		return "", ErrEnvelopeInvalid
	}
	return claims.SID, nil
}
