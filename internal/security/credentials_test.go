package security

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifySecret(t *testing.T) {
	hash, err := HashSecret("hunter2")
	require.NoError(t, err)

	tests := []struct {
		name      string
		stored    string
		presented string
		want      bool
	}{
		{"plaintext match", "hunter2", "hunter2", true},
		{"plaintext mismatch", "hunter2", "hunter3", false},
		{"plaintext is case sensitive", "Hunter2", "hunter2", false},
		{"bcrypt match", hash, "hunter2", true},
		{"bcrypt mismatch", hash, "nope", false},
		{"bcrypt hash is not a plaintext password", hash, hash, false},
		{"empty stored secret never matches", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, VerifySecret(tt.stored, tt.presented))
		})
	}
}

func TestTokenIssuerRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour, "ets2-mods")

	token, session, err := issuer.Issue("a@x.com", "aa:bb:cc:dd:ee:ff")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	parsed, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", parsed.Email)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", parsed.Fingerprint)
	assert.WithinDuration(t, session.ExpiresAt, parsed.ExpiresAt, time.Second)
}

func TestTokenIssuerRejects(t *testing.T) {
	issuer := NewTokenIssuer("secret", time.Hour, "ets2-mods")
	token, _, err := issuer.Issue("a@x.com", "fp")
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		_, err := NewTokenIssuer("other", time.Hour, "ets2-mods").Parse(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		_, err := NewTokenIssuer("secret", time.Hour, "someone-else").Parse(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		later := NewTokenIssuer("secret", time.Hour, "ets2-mods")
		later.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := later.Parse(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := issuer.Parse("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
