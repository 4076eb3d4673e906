package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasherRoundTrip(t *testing.T) {
	hasher := NewBcryptHasher(bcrypt.MinCost)

	hash, err := hasher.Hash("s3cret")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret", hash)

	assert.True(t, hasher.Matches("s3cret", hash))
	assert.False(t, hasher.Matches("wrong", hash))
	assert.False(t, hasher.Matches("s3cret", "not-a-hash"))
}

func TestBcryptHasherClampsInvalidCost(t *testing.T) {
	hasher := NewBcryptHasher(999)

	hash, err := hasher.Hash("pw")
	require.NoError(t, err)
	assert.True(t, hasher.Matches("pw", hash))
}
