package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Lynx96-creator/ets2-mod-api/pkg/contracts/domain"
)

// ErrInvalidToken is returned for malformed, expired or foreign tokens
var ErrInvalidToken = errors.New("invalid session token")

// Claims carries the session identity inside a signed token
type Claims struct {
	jwt.RegisteredClaims
	Fingerprint string `json:"fp"`
}

// TokenIssuer signs and verifies session tokens with HS256
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// NewTokenIssuer creates a token issuer
func NewTokenIssuer(secret string, ttl time.Duration, issuer string) *TokenIssuer {
	return &TokenIssuer{
		secret: []byte(secret),
		ttl:    ttl,
		issuer: issuer,
		now:    time.Now,
	}
}

// Issue creates a session for the account and device and returns its token
func (ti *TokenIssuer) Issue(email, fingerprint string) (string, domain.Session, error) {
	now := ti.now()
	session := domain.Session{
		Email:       email,
		Fingerprint: fingerprint,
		IssuedAt:    now,
		ExpiresAt:   now.Add(ti.ttl),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			Issuer:    ti.issuer,
			IssuedAt:  jwt.NewNumericDate(session.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(session.ExpiresAt),
		},
		Fingerprint: fingerprint,
	})

	signed, err := token.SignedString(ti.secret)
	if err != nil {
		return "", domain.Session{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, session, nil
}

// Parse verifies a token and returns the session it carries
func (ti *TokenIssuer) Parse(tokenString string) (domain.Session, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return ti.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(ti.issuer),
		jwt.WithTimeFunc(ti.now),
	)
	if err != nil {
		return domain.Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.Subject == "" {
		return domain.Session{}, ErrInvalidToken
	}

	session := domain.Session{
		Email:       claims.Subject,
		Fingerprint: claims.Fingerprint,
	}
	if claims.IssuedAt != nil {
		session.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	return session, nil
}
