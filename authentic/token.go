package authentic

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
)

const (
	friendlyTokenBytes    = 15 // 20 URL-safe characters
	persistenceTokenBytes = 64 // 128 hex characters
)

// FriendlyToken returns a random, URL-safe, 20-character token.  It is used
// for salts and generated passwords.
func FriendlyToken() (string, error) {
	b, err := randomBytes(friendlyTokenBytes)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// PersistenceToken returns a random 128-character hex token.
func PersistenceToken() (string, error) {
	b, err := randomBytes(persistenceTokenBytes)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("authentic: failed to read random bytes: %w", err)
	}
	return b, nil
}
