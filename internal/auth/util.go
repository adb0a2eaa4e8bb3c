package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// HashToken is the storage key for a refresh token value; the raw value never
// reaches the database.
func HashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return base64.RawURLEncoding.EncodeToString(h[:])
}

// Fingerprint is a short, non-reversible handle for a token value, safe to
// put in logs and events.
func Fingerprint(raw string) string {
	if raw == "" {
		return ""
	}
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:4])
}
