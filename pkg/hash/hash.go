// Package hash wraps the one-way hashing used for credentials: bcrypt for
// passwords and for refresh-token digests stored at rest.
package hash

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"golang.org/x/crypto/bcrypt"
)

// Password returns the bcrypt hash of a plaintext password.
func Password(plain string, cost int) (string, error) {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CheckPassword reports whether plain matches the stored bcrypt hash.
func CheckPassword(hashed, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plain)) == nil
}

// Token returns a bcrypt digest of a refresh token string. The token is
// pre-digested with SHA-256 because bcrypt only reads the first 72 bytes of
// its input and signed tokens are longer than that.
func Token(raw string) (string, error) {
	sum := sha256.Sum256([]byte(raw))
	b, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(sum[:])), bcrypt.MinCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CheckToken reports whether raw matches a digest produced by Token.
func CheckToken(digest, raw string) bool {
	sum := sha256.Sum256([]byte(raw))
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(hex.EncodeToString(sum[:]))) == nil
}

// RandomUnusable returns a bcrypt hash of random bytes. It is stored in
// place of a real password hash when an account is soft-deleted, so no
// plaintext can ever verify against it.
func RandomUnusable() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing means the process is in a bad state anyway;
		// an empty string never verifies under bcrypt either.
		return ""
	}
	b, err := bcrypt.GenerateFromPassword([]byte(hex.EncodeToString(buf)), bcrypt.MinCost)
	if err != nil {
		return ""
	}
	return string(b)
}
