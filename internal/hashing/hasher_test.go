package hashing

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botops-console/internal/config"
)

func newTestHasher(t *testing.T) *Hasher {
	t.Helper()
	return NewHasher(&config.Config{
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  1024,
			Argon2TimeCost:    1,
			Argon2Parallelism: 1,
		},
	})
}

func TestHashAndVerifyRoundTrip(t *testing.T) {
	h := newTestHasher(t)

	encoded, err := h.HashPassword("correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(encoded, "$argon2id$"))

	match, err := h.VerifyPassword("correct horse battery staple", encoded)
	require.NoError(t, err)
	assert.True(t, match)
}

func TestVerifyWrongPassword(t *testing.T) {
	h := newTestHasher(t)

	encoded, err := h.HashPassword("secret123")
	require.NoError(t, err)

	match, err := h.VerifyPassword("secret124", encoded)
	require.NoError(t, err)
	assert.False(t, match)
}

func TestHashesAreSalted(t *testing.T) {
	h := newTestHasher(t)

	first, err := h.HashPassword("secret123")
	require.NoError(t, err)
	second, err := h.HashPassword("secret123")
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestVerifyWithDifferentParams(t *testing.T) {
	// A hash produced under one work factor must still verify after the
	// configured parameters change.
	old := newTestHasher(t)
	encoded, err := old.HashPassword("secret123")
	require.NoError(t, err)

	current := NewHasher(&config.Config{
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  2048,
			Argon2TimeCost:    2,
			Argon2Parallelism: 2,
		},
	})

	match, err := current.VerifyPassword("secret123", encoded)
	require.NoError(t, err)
	assert.True(t, match)
}

func TestVerifyMalformedHash(t *testing.T) {
	h := newTestHasher(t)

	cases := []struct {
		name    string
		encoded string
	}{
		{"empty", ""},
		{"not a hash", "plaintext"},
		{"wrong algorithm", "$argon2i$v=19$m=1024,t=1,p=1$c2FsdA$aGFzaA"},
		{"truncated", "$argon2id$v=19$m=1024,t=1,p=1"},
		{"bad salt encoding", "$argon2id$v=19$m=1024,t=1,p=1$!!!$aGFzaA"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.VerifyPassword("secret123", tc.encoded)
			assert.ErrorIs(t, err, ErrInvalidHash)
		})
	}
}

func TestVerifyIncompatibleVersion(t *testing.T) {
	h := newTestHasher(t)

	_, err := h.VerifyPassword("secret123", "$argon2id$v=18$m=1024,t=1,p=1$c2FsdA$aGFzaA")
	assert.ErrorIs(t, err, ErrIncompatibleVersion)
}
