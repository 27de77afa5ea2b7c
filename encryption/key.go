package encryption

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// Base64KeyPrefix marks a base64-encoded key in configuration, as in
// "base64:3q2+7w==...".
const Base64KeyPrefix = "base64:"

// GenerateKey returns a cryptographically random AES-256 key.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("encryption: failed to generate random key: %w", err)
	}
	return key, nil
}

// EncodeKey returns key in the configuration form accepted by [ParseKey]:
// the standard base64 encoding prefixed with [Base64KeyPrefix].
func EncodeKey(key []byte) string {
	return Base64KeyPrefix + base64.StdEncoding.EncodeToString(key)
}

// DecodeKey decodes a base64 key.  It accepts both standard and URL-safe
// alphabets.
func DecodeKey(encoded string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(encoded)
	if err == nil {
		return key, nil
	}
	key, err = base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyEncoding, err)
	}
	return key, nil
}

// ParseKey interprets a configured key string.  Values carrying
// [Base64KeyPrefix] are base64-decoded; anything else is used verbatim, which
// is how legacy installations configured a 32-character key.
func ParseKey(s string) ([]byte, error) {
	if rest, ok := strings.CutPrefix(s, Base64KeyPrefix); ok {
		return DecodeKey(rest)
	}
	return []byte(s), nil
}
