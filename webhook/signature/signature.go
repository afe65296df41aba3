package signature

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const (
	// SecretBytes is the size of generated secrets (256 bits)
	SecretBytes = 32

	// Prefix is an optional algorithm prefix accepted on incoming signatures
	Prefix = "sha256="
)

// GenerateSecret creates a new cryptographically secure signing key, hex encoded
func GenerateSecret() (string, error) {
	bytes := make([]byte, SecretBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("generating random bytes: %w", err)
	}
	return hex.EncodeToString(bytes), nil
}

// Sign returns hex(HMAC-SHA256(key, payload))
func Sign(key string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks signature against payload using constant-time comparison.
// The signature may carry a "sha256=" prefix.
func Verify(key string, payload []byte, signature string) bool {
	signature = strings.TrimSpace(signature)
	signature = strings.TrimPrefix(signature, Prefix)

	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(payload)
	return hmac.Equal(expected, mac.Sum(nil))
}
