// Package auth issues and verifies bearer credentials and hashes passwords.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/civicwatch/incident-portal/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var ErrInvalidToken = errors.New("invalid token")

type tokenClaims struct {
	Email string      `json:"email"`
	Role  models.Role `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs and verifies HS256 credentials.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an issuer whose tokens live for ttl.
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	return &Issuer{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Sign mints a credential for the account.
func (i *Issuer) Sign(a *models.Account) (string, error) {
	now := i.now()
	claims := tokenClaims{
		Email: a.Email,
		Role:  a.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return tok, nil
}

// Verify decodes a credential, rejecting expired, tampered or malformed
// tokens with ErrInvalidToken.
func (i *Issuer) Verify(tokenStr string) (Claims, error) {
	var tc tokenClaims
	tok, err := jwt.ParseWithClaims(tokenStr, &tc, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithTimeFunc(i.now), jwt.WithExpirationRequired())
	if err != nil || !tok.Valid {
		return Claims{}, ErrInvalidToken
	}
	id, err := uuid.Parse(tc.Subject)
	if err != nil || !tc.Role.Valid() {
		return Claims{}, ErrInvalidToken
	}
	return Claims{UserID: id, Email: tc.Email, Role: tc.Role}, nil
}
