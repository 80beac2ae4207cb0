package srp

import (
	"crypto/sha256"

	"golang.org/x/crypto/pbkdf2"
)

// pbkdf2SHA256 derives a KeyLength-byte key via PBKDF2-HMAC-SHA256.
func pbkdf2SHA256(password, salt []byte, iterations int) []byte {
	return pbkdf2.Key(password, salt, iterations, KeyLength, sha256.New)
}
