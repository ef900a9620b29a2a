// Package auth holds the credential primitives: password hashing, session
// token signing, and reset-token generation.
package auth

import "golang.org/x/crypto/bcrypt"

// passwordCost is the bcrypt work factor for new password hashes.
const passwordCost = bcrypt.DefaultCost

// HashPassword returns a salted one-way digest of the plaintext.
func HashPassword(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), passwordCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// VerifyPassword reports whether plaintext matches the stored digest.
// bcrypt's comparison does not leak match position through timing.
func VerifyPassword(plaintext, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plaintext)) == nil
}
