package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// ResetTokenBytes is the entropy of a reset token before encoding.
const ResetTokenBytes = 32

// ResetTokenTTL is how long an issued reset token stays consumable.
const ResetTokenTTL = time.Hour

// NewResetToken generates a random reset token and the hash under which it
// is stored. Only the hash is ever persisted; the plaintext token goes out
// of band to the account owner.
func NewResetToken() (token, tokenHash string, err error) {
	var buf [ResetTokenBytes]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", "", err
	}
	token = hex.EncodeToString(buf[:])
	return token, HashResetToken(token), nil
}

// HashResetToken returns the deterministic storage hash of a reset token.
func HashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
