package auth

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Claims identify the operator acting on a decision. Subject is the actor recorded on approvals.
type Claims struct {
	Role string `json:"role,omitempty"`

	jwt.RegisteredClaims
}

type JWT struct {
	Secret   []byte
	Issuer   string
	TokenTTL time.Duration
}

func (j JWT) Enabled() bool {
	return len(j.Secret) > 0
}

func (j JWT) Sign(claims Claims) (string, time.Time, error) {
	now := time.Now().UTC()
	if claims.IssuedAt == nil {
		claims.IssuedAt = jwt.NewNumericDate(now)
	}
	if claims.NotBefore == nil {
		claims.NotBefore = jwt.NewNumericDate(now.Add(-5 * time.Second))
	}
	ttl := j.TokenTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	var expiresAt time.Time
	if claims.ExpiresAt == nil {
		expiresAt = now.Add(ttl)
		claims.ExpiresAt = jwt.NewNumericDate(expiresAt)
	} else {
		expiresAt = claims.ExpiresAt.Time
	}
	if claims.Issuer == "" {
		claims.Issuer = j.Issuer
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(j.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return s, expiresAt, nil
}

func (j JWT) Verify(token string) (Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if j.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(j.Issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		return j.Secret, nil
	}, opts...)
	if err != nil {
		return Claims{}, err
	}
	c, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if strings.TrimSpace(c.Subject) == "" {
		return Claims{}, errors.New("token has no subject")
	}
	return *c, nil
}
