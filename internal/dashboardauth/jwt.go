// Package dashboardauth implements the dashboard's account authentication
// (§D.1–D.2): password hashing, JWT issuance/validation, and the
// Authorization-header middleware that resolves a request to a user id.
package dashboardauth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
	"github.com/mwillis/notifd/internal/domain"
)

const tokenTTL = 7 * 24 * time.Hour

// Claims is the JWT payload issued for a dashboard session.
type Claims struct {
	jwt.RegisteredClaims
}

// JWTIssuer issues and validates dashboard session tokens.
type JWTIssuer struct {
	secret []byte
}

// NewJWTIssuer returns a JWTIssuer keyed by secret.
func NewJWTIssuer(secret string) *JWTIssuer {
	return &JWTIssuer{secret: []byte(secret)}
}

// Issue mints a token for userID, valid for seven days.
func (j *JWTIssuer) Issue(userID uuid.UUID) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(j.secret)
	if err != nil {
		return "", fmt.Errorf("dashboardauth: sign token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies token, returning the subject user id.
func (j *JWTIssuer) Validate(tokenString string) (uuid.UUID, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		return j.secret, nil
	})
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid token: %v", domain.ErrAuth, err)
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid token subject", domain.ErrAuth)
	}
	return id, nil
}
