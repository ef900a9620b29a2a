package auth

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResetToken(t *testing.T) {
	t.Parallel()

	token, tokenHash, err := NewResetToken()
	require.NoError(t, err)

	raw, err := hex.DecodeString(token)
	require.NoError(t, err)
	assert.Len(t, raw, ResetTokenBytes)

	assert.NotEqual(t, token, tokenHash)
	assert.Equal(t, HashResetToken(token), tokenHash)
}

func TestNewResetToken_Distinct(t *testing.T) {
	t.Parallel()

	first, _, err := NewResetToken()
	require.NoError(t, err)
	second, _, err := NewResetToken()
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
}

func TestHashResetToken_Deterministic(t *testing.T) {
	t.Parallel()

	assert.Equal(t, HashResetToken("abc"), HashResetToken("abc"))
	assert.NotEqual(t, HashResetToken("abc"), HashResetToken("abd"))
}
