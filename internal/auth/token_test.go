package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/libdesk/libdesk/internal/entities"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestTokenCodec_RoundTrip(t *testing.T) {
	issuedAt := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	codec := NewTokenCodec("secret", 24*time.Hour).WithClock(fixedClock(issuedAt))

	token, err := codec.Issue("u1", "Ada", entities.IdentitySuperAdmin)
	require.NoError(t, err)

	identity, err := codec.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", identity.UID)
	assert.Equal(t, "Ada", identity.Name)
	assert.Equal(t, entities.IdentitySuperAdmin, identity.IdentityType)
	assert.True(t, identity.IsAdmin())
	assert.NotEmpty(t, identity.TokenID)
	assert.Equal(t, issuedAt.Add(24*time.Hour), identity.ExpiresAt.UTC())
}

func TestTokenCodec_UniqueTokenIDs(t *testing.T) {
	codec := NewTokenCodec("secret", time.Hour)

	first, err := codec.Issue("u1", "Ada", entities.IdentityStudent)
	require.NoError(t, err)
	second, err := codec.Issue("u1", "Ada", entities.IdentityStudent)
	require.NoError(t, err)

	a, err := codec.Verify(first)
	require.NoError(t, err)
	b, err := codec.Verify(second)
	require.NoError(t, err)
	assert.NotEqual(t, a.TokenID, b.TokenID)
}

func TestTokenCodec_Rejects(t *testing.T) {
	issuedAt := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	codec := NewTokenCodec("secret", 24*time.Hour).WithClock(fixedClock(issuedAt))
	valid, err := codec.Issue("u1", "Ada", entities.IdentityStudent)
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		later := NewTokenCodec("secret", 24*time.Hour).WithClock(fixedClock(issuedAt.Add(25 * time.Hour)))
		_, err := later.Verify(valid)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewTokenCodec("other", 24*time.Hour).WithClock(fixedClock(issuedAt))
		_, err := other.Verify(valid)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := codec.Verify("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := codec.Verify("")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unsigned", func(t *testing.T) {
		claims := Claims{
			UID: "u1",
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(issuedAt.Add(time.Hour)),
			},
		}
		none, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = codec.Verify(none)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing expiry", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UID: "u1"}).SignedString([]byte("secret"))
		require.NoError(t, err)

		_, err = codec.Verify(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
