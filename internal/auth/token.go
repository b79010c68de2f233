package auth

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrUnauthorized = errors.New("invalid or expired token")
	ErrForbidden    = errors.New("admin access required")
)

// Claims are the access token claims issued to console users.
type Claims struct {
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// HasRole reports whether the token carries role (case-insensitive).
func (c *Claims) HasRole(role string) bool {
	return slices.ContainsFunc(c.Roles, func(r string) bool {
		return strings.EqualFold(strings.TrimSpace(r), role)
	})
}

type TokenManager struct {
	secret    []byte
	accessTTL time.Duration
	issuer    string
	now       func() time.Time
}

func NewTokenManager(secret string, accessTTL time.Duration, issuer string) (*TokenManager, error) {
	if secret == "" {
		return nil, errors.New("token secret required")
	}
	if accessTTL <= 0 {
		return nil, errors.New("access ttl must be > 0")
	}
	return &TokenManager{
		secret:    []byte(secret),
		accessTTL: accessTTL,
		issuer:    issuer,
		now:       time.Now,
	}, nil
}

// Issue signs an access token for subject with the given roles.
func (tm *TokenManager) Issue(subject, email string, roles ...string) (string, time.Time, error) {
	now := tm.now()
	expires := now.Add(tm.accessTTL)
	claims := Claims{
		Email: email,
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    tm.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Verify parses and validates an access token. Every failure maps to ErrUnauthorized.
func (tm *TokenManager) Verify(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrUnauthorized
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(tm.now),
		jwt.WithExpirationRequired(),
	}
	if tm.issuer != "" {
		opts = append(opts, jwt.WithIssuer(tm.issuer))
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return tm.secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, fmt.Errorf("%w: %v", ErrUnauthorized, err)
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrUnauthorized)
	}
	return claims, nil
}

// Authorize verifies token and requires role.
func (tm *TokenManager) Authorize(token, role string) (*Claims, error) {
	claims, err := tm.Verify(token)
	if err != nil {
		return nil, err
	}
	if !claims.HasRole(role) {
		return nil, ErrForbidden
	}
	return claims, nil
}
