package hashing

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/hasbyte1/go-authentic/encryption"
)

// legacyBase64LineLen is the line width of the legacy base64 writer.
const legacyBase64LineLen = 60

// AES256Provider stores secrets reversibly with AES-256-ECB.
//
// It exists to verify, and then migrate away from, legacy systems that kept
// passwords encrypted rather than hashed.  Never configure it as the current
// provider of a new system: anyone holding the key recovers every password.
//
// The digest is the base64 encoding of the ciphertext, wrapped every 60
// characters with "\n" and without a trailing newline, byte-for-byte what the
// legacy system stored.
//
// A missing or malformed key is not reported by [NewAES256]; every call
// returns [ErrProviderMisconfigured] instead, so an unused provider in a
// registry costs nothing.
type AES256Provider struct {
	codec *encryption.ECB
	err   error
}

// NewAES256 constructs an AES256Provider for key.
func NewAES256(key []byte) *AES256Provider {
	if len(key) == 0 {
		return &AES256Provider{err: fmt.Errorf("%w: aes256: no encryption key configured", ErrProviderMisconfigured)}
	}
	codec, err := encryption.NewAES256ECB(key)
	if err != nil {
		return &AES256Provider{err: fmt.Errorf("%w: aes256: %v", ErrProviderMisconfigured, err)}
	}
	return &AES256Provider{codec: codec}
}

// Name returns [ProviderAES256].
func (p *AES256Provider) Name() Name { return ProviderAES256 }

// Encrypt encrypts the joined tokens.  The result is deterministic.
func (p *AES256Provider) Encrypt(tokens ...string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return encodeLegacyBase64(p.codec.Seal([]byte(strings.Join(tokens, "")))), nil
}

// Matches decrypts digest and compares the plaintext to the joined tokens.
// Undecodable or undecryptable digests do not match.
func (p *AES256Provider) Matches(digest string, tokens ...string) (bool, error) {
	if p.err != nil {
		return false, p.err
	}
	plain, err := p.open(digest)
	if err != nil {
		return false, nil
	}
	return subtle.ConstantTimeCompare(plain, []byte(strings.Join(tokens, ""))) == 1, nil
}

// Decrypt recovers the plaintext stored in digest.
func (p *AES256Provider) Decrypt(digest string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	plain, err := p.open(digest)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func (p *AES256Provider) open(digest string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(digest, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("%w: aes256: %v", ErrInvalidDigest, err)
	}
	return p.codec.Open(raw)
}

// encodeLegacyBase64 wraps standard base64 every 60 characters.
func encodeLegacyBase64(b []byte) string {
	enc := base64.StdEncoding.EncodeToString(b)
	if len(enc) <= legacyBase64LineLen {
		return enc
	}
	var sb strings.Builder
	for len(enc) > legacyBase64LineLen {
		sb.WriteString(enc[:legacyBase64LineLen])
		sb.WriteByte('\n')
		enc = enc[legacyBase64LineLen:]
	}
	sb.WriteString(enc)
	return sb.String()
}
