package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// DigestHex returns the SHA-256 digest as lowercase hex.
func DigestHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DigestWithPrefix returns the SHA-256 digest with the "sha256:" prefix.
func DigestWithPrefix(data []byte) string {
	return "sha256:" + DigestHex(data)
}

// ExactDigest returns the lowercase hex SHA-256 of CanonicalizeExact(v).
func ExactDigest(v any) (string, error) {
	canonical, err := CanonicalizeExact(v)
	if err != nil {
		return "", err
	}
	return DigestHex(canonical), nil
}
