package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionIssuer_RoundTrip(t *testing.T) {
	t.Parallel()

	issuer := NewSessionIssuer("test-secret", time.Minute)

	token, err := issuer.Issue(42)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, err := issuer.ParseSubject(token)
	require.NoError(t, err)
	assert.Equal(t, 42, userID)
}

func TestSessionIssuer_RejectsWrongSecret(t *testing.T) {
	t.Parallel()

	token, err := NewSessionIssuer("secret-a", time.Minute).Issue(7)
	require.NoError(t, err)

	_, err = NewSessionIssuer("secret-b", time.Minute).ParseSubject(token)
	assert.Error(t, err)
}

func TestSessionIssuer_RejectsExpired(t *testing.T) {
	t.Parallel()

	issuer := NewSessionIssuer("test-secret", time.Millisecond)

	token, err := issuer.Issue(7)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)

	_, err = issuer.ParseSubject(token)
	assert.Error(t, err)
}

func TestSessionIssuer_RejectsGarbage(t *testing.T) {
	t.Parallel()

	issuer := NewSessionIssuer("test-secret", time.Minute)

	for _, token := range []string{"", "not.a.jwt", "a.b"} {
		_, err := issuer.ParseSubject(token)
		assert.Error(t, err, "token %q", token)
	}
}
