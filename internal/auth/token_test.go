package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lending/internal/identity"
)

func newTestIssuer(t *testing.T, secret string, now time.Time) *Issuer {
	t.Helper()
	issuer, err := NewIssuer(secret, time.Hour)
	require.NoError(t, err)
	issuer.now = func() time.Time { return now }
	return issuer
}

func TestIssueAndParse(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	issuer := newTestIssuer(t, "s3cret", now)

	for _, caller := range []identity.Caller{identity.Librarian(1), identity.Member(101)} {
		token, err := issuer.Issue(caller)
		require.NoError(t, err)

		got, err := issuer.Parse(token)
		require.NoError(t, err)
		assert.Equal(t, caller, got)
	}

	_, err := issuer.Issue(identity.Anonymous)
	assert.Error(t, err)
}

func TestParseRejectsBadTokens(t *testing.T) {
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	issuer := newTestIssuer(t, "s3cret", now)
	token, err := issuer.Issue(identity.Member(101))
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		later := newTestIssuer(t, "s3cret", now.Add(2*time.Hour))
		_, err := later.Parse(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := newTestIssuer(t, "other", now)
		_, err := other.Parse(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := issuer.Parse("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("foreign issuer", func(t *testing.T) {
		claims := Claims{Role: "librarian", RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "someone-else",
			Subject:   "1",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		}}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s3cret"))
		require.NoError(t, err)
		_, err = issuer.Parse(signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unknown role", func(t *testing.T) {
		claims := Claims{Role: "admin", RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuerName,
			Subject:   "1",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		}}
		signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s3cret"))
		require.NoError(t, err)
		_, err = issuer.Parse(signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestNewIssuer(t *testing.T) {
	_, err := NewIssuer("", time.Hour)
	assert.ErrorIs(t, err, ErrEmptySecret)

	issuer, err := NewIssuer("s3cret", 0)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, issuer.TTL())
}
