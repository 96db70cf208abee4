package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordHashRoundTrip(t *testing.T) {
	hash, err := HashPassword("CorrectHorse9!battery")
	require.NoError(t, err)
	assert.NotEqual(t, "CorrectHorse9!battery", hash)

	assert.True(t, CheckPassword(hash, "CorrectHorse9!battery"))
	assert.False(t, CheckPassword(hash, "wrong-password"))
}

func TestValidatePasswordStrength(t *testing.T) {
	tests := []struct {
		name     string
		password string
		want     error
	}{
		{"valid", "Str0ngPassw0rd!", nil},
		{"too short", "Ab1!short", ErrPasswordTooShort},
		{"no uppercase", "weakpassword1!!!", ErrPasswordUppercase},
		{"no lowercase", "WEAKPASSWORD1!!!", ErrPasswordLowercase},
		{"no digit", "WeakPassword!!!!", ErrPasswordDigit},
		{"no special", "WeakPassword1234", ErrPasswordSpecial},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePasswordStrength(tt.password)
			if tt.want == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.want)
			}
		})
	}
}

func TestVerificationTokensAreUnique(t *testing.T) {
	a, err := NewVerificationToken()
	require.NoError(t, err)
	b, err := NewVerificationToken()
	require.NoError(t, err)

	assert.NotEmpty(t, a)
	assert.NotEqual(t, a, b)
}

func TestTokenIssueAndVerify(t *testing.T) {
	tokens := NewTokens("test-secret", time.Minute)

	signed, err := tokens.Issue(42, "client")
	require.NoError(t, err)

	claims, err := tokens.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "client", claims.Role)
	assert.NotEmpty(t, claims.ID)
}

func TestTokenRejectsWrongSecret(t *testing.T) {
	signed, err := NewTokens("secret-one", time.Minute).Issue(1, "admin")
	require.NoError(t, err)

	_, err = NewTokens("secret-two", time.Minute).Verify(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenRejectsExpired(t *testing.T) {
	tokens := NewTokens("test-secret", -time.Minute)

	signed, err := tokens.Issue(1, "client")
	require.NoError(t, err)

	_, err = tokens.Verify(signed)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestTokenRejectsGarbage(t *testing.T) {
	tokens := NewTokens("test-secret", time.Minute)
	_, err := tokens.Verify("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
