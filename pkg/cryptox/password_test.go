package cryptox_test

import (
	"strings"
	"testing"

	"github.com/aussiebroadwan/gatekeeper/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func newHasher(t *testing.T, pepper string) *cryptox.Hasher {
	t.Helper()
	h, err := cryptox.NewHasher(pepper)
	require.NoError(t, err)
	return h
}

func TestHashPassword(t *testing.T) {
	h := newHasher(t, "pepper")

	tests := []struct {
		name     string
		password string
	}{
		{"simple password", "password123"},
		{"complex password", "P@ssw0rd!#$%^&*()"},
		{"long password", strings.Repeat("a", 100)},
		{"empty password", ""},
		{"unicode password", "пароль🔒密码"},
		{"whitespace password", "   spaces   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := h.Hash(tt.password)
			require.NoError(t, err)
			require.True(t, strings.HasPrefix(hash, "$argon2id$v=19$"), "hash should be in PHC format")

			parts := strings.Split(hash, "$")
			require.Len(t, parts, 6)
			require.Contains(t, parts[3], "m=")
			require.Contains(t, parts[3], "t=")
			require.Contains(t, parts[3], "p=")

			require.NoError(t, h.Verify(tt.password, hash))
		})
	}
}

func TestHashPassword_UniqueSalts(t *testing.T) {
	h := newHasher(t, "pepper")

	hash1, err := h.Hash("samepassword")
	require.NoError(t, err)
	hash2, err := h.Hash("samepassword")
	require.NoError(t, err)

	require.NotEqual(t, hash1, hash2, "hashes should differ due to unique salts")
	require.NoError(t, h.Verify("samepassword", hash1))
	require.NoError(t, h.Verify("samepassword", hash2))
}

func TestVerifyPassword_WrongPassword(t *testing.T) {
	h := newHasher(t, "pepper")
	hash, err := h.Hash("correct-password")
	require.NoError(t, err)

	for _, wrong := range []string{"wrong-password", "Correct-password", "correct-password ", ""} {
		require.ErrorIs(t, h.Verify(wrong, hash), cryptox.ErrMismatch, "password %q", wrong)
	}
}

func TestVerifyPassword_PepperMatters(t *testing.T) {
	hash, err := newHasher(t, "pepper-a").Hash("secret123")
	require.NoError(t, err)

	require.ErrorIs(t, newHasher(t, "pepper-b").Verify("secret123", hash), cryptox.ErrMismatch)
}

func TestVerifyPassword_InvalidFormat(t *testing.T) {
	h := newHasher(t, "pepper")

	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"wrong algorithm", "$argon2i$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA"},
		{"wrong version", "$argon2id$v=18$m=19456,t=2,p=1$c2FsdA$aGFzaA"},
		{"bad params", "$argon2id$v=19$m=x,t=2,p=1$c2FsdA$aGFzaA"},
		{"bad salt", "$argon2id$v=19$m=19456,t=2,p=1$!!!$aGFzaA"},
		{"too few parts", "$argon2id$v=19$m=19456,t=2,p=1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, h.Verify("password", tt.hash), cryptox.ErrInvalidFormat)
		})
	}
}

func TestVerifyDummyAlwaysFails(t *testing.T) {
	h := newHasher(t, "pepper")
	require.ErrorIs(t, h.VerifyDummy("anything"), cryptox.ErrMismatch)
}
