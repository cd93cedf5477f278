// internal/keygen/keygen_test.go
package keygen

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateFormat(t *testing.T) {
	key, err := Generate()
	require.NoError(t, err)

	assert.True(t, ValidFormat(key), "generated key %q should match the GP format", key)

	parts := strings.Split(key, "-")
	require.Len(t, parts, 4)
	assert.Equal(t, "GP", parts[0])
	assert.Len(t, parts[2], 16)
	assert.Len(t, parts[3], 4)
}

func TestGenerateUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key, err := Generate()
		require.NoError(t, err)
		assert.False(t, seen[key], "duplicate key generated: %s", key)
		seen[key] = true
	}
}

func TestVerify(t *testing.T) {
	key, err := Generate()
	require.NoError(t, err)
	assert.True(t, Verify(key))
}

func TestVerifyRejectsTamperedChecksum(t *testing.T) {
	key, err := Generate()
	require.NoError(t, err)

	// Flip one checksum character
	tampered := []byte(key)
	last := len(tampered) - 1
	if tampered[last] == 'A' {
		tampered[last] = 'B'
	} else {
		tampered[last] = 'A'
	}

	assert.False(t, Verify(string(tampered)))
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	key, err := Generate()
	require.NoError(t, err)

	parts := strings.Split(key, "-")
	random := []byte(parts[2])
	if random[0] == 'A' {
		random[0] = 'B'
	} else {
		random[0] = 'A'
	}
	parts[2] = string(random)

	assert.False(t, Verify(strings.Join(parts, "-")))
}

func TestValidFormat(t *testing.T) {
	assert.False(t, ValidFormat(""))
	assert.False(t, ValidFormat("GP-"))
	assert.False(t, ValidFormat("XX-ABC123-0123456789ABCDEF-ABCD"))
	assert.False(t, ValidFormat("gp-abc123-0123456789abcdef-abcd"), "lowercase keys are rejected")
	assert.False(t, ValidFormat("GP-ABC123-0123456789ABCDEF-ABC"), "short checksum")
	assert.True(t, ValidFormat("GP-ABC123-0123456789ABCDEF-ABCD"))
}
