package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) *TokenManager {
	t.Helper()
	tm, err := NewTokenManager("secret", time.Minute, "seat-billing")
	require.NoError(t, err)
	return tm
}

func TestIssueAndAuthorize(t *testing.T) {
	tm := newManager(t)
	token, expires, err := tm.Issue("user-1", "ops@example.com", "admin")
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(time.Minute), expires, 5*time.Second)

	claims, err := tm.Authorize(token, "ADMIN")
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, "ops@example.com", claims.Email)
}

func TestAuthorizeRequiresRole(t *testing.T) {
	tm := newManager(t)
	token, _, err := tm.Issue("user-2", "viewer@example.com", "viewer")
	require.NoError(t, err)

	_, err = tm.Authorize(token, "admin")
	require.ErrorIs(t, err, ErrForbidden)
}

func TestVerifyRejectsBadTokens(t *testing.T) {
	tm := newManager(t)

	_, err := tm.Verify("")
	require.ErrorIs(t, err, ErrUnauthorized)

	_, err = tm.Verify("not-a-jwt")
	require.ErrorIs(t, err, ErrUnauthorized)

	other, err := NewTokenManager("other-secret", time.Minute, "seat-billing")
	require.NoError(t, err)
	foreign, _, err := other.Issue("user-3", "", "admin")
	require.NoError(t, err)
	_, err = tm.Verify(foreign)
	require.ErrorIs(t, err, ErrUnauthorized)

	token, _, err := tm.Issue("user-4", "", "admin")
	require.NoError(t, err)
	tm.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, err = tm.Verify(token)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestVerifyRejectsNoneAlgorithm(t *testing.T) {
	tm := newManager(t)
	claims := Claims{Roles: []string{"admin"}, RegisteredClaims: jwt.RegisteredClaims{
		Subject:   "user-5",
		Issuer:    "seat-billing",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = tm.Verify(unsigned)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestNewTokenManagerValidation(t *testing.T) {
	_, err := NewTokenManager("", time.Minute, "")
	require.Error(t, err)
	_, err = NewTokenManager("s", 0, "")
	require.Error(t, err)
}
