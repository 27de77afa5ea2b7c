// Package encryption provides the deterministic AES-256 block codec used by the
// reversible legacy password provider.
//
// # Why ECB
//
// Some legacy systems stored passwords encrypted, not hashed, with
// AES-256-ECB and PKCS#7 padding.  Verifying those passwords (and migrating
// them to a one-way provider) requires reproducing that exact ciphertext, so
// this package implements precisely that construction and nothing else.
//
// ECB leaks equality of plaintext blocks and provides no integrity.  Do not use
// this package for anything other than reading and verifying legacy values.
//
// # Quick start
//
//	key, err := encryption.ParseKey(os.Getenv("AUTHENTIC_AES256_KEY"))
//	codec, err := encryption.NewAES256ECB(key)
//
//	ciphertext := codec.Seal([]byte("secret"))
//	plaintext, err := codec.Open(ciphertext)
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// ECB is an AES-256 codec in Electronic Codebook mode with PKCS#7 padding.
//
// ECB is immutable after construction and safe for concurrent use.
type ECB struct {
	key   []byte
	block cipher.Block
}

// NewAES256ECB constructs an ECB codec.  The key must be exactly [KeySize]
// bytes; it is cloned so later mutation by the caller has no effect.
func NewAES256ECB(key []byte) (*ECB, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: aes-256 requires a %d-byte key, got %d bytes",
			ErrInvalidKeyLength, KeySize, len(key))
	}
	k := cloneBytes(key)
	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, fmt.Errorf("encryption: failed to create AES cipher: %w", err)
	}
	return &ECB{key: k, block: block}, nil
}

// Key returns a copy of the key.
func (e *ECB) Key() []byte { return cloneBytes(e.key) }

// Seal pads plaintext to a block boundary and encrypts every block
// independently.  The output is deterministic: equal inputs produce equal
// ciphertexts.
func (e *ECB) Seal(plaintext []byte) []byte {
	padded := pkcs7Pad(cloneBytes(plaintext), aes.BlockSize)
	out := make([]byte, len(padded))
	for i := 0; i < len(padded); i += aes.BlockSize {
		e.block.Encrypt(out[i:i+aes.BlockSize], padded[i:i+aes.BlockSize])
	}
	return out
}

// Open decrypts ciphertext and strips its padding.
//
// Possible errors: [ErrDecryptionFailed] for a length that is not a positive
// multiple of the block size or for malformed padding.  Without a MAC a wrong
// key usually, but not always, surfaces as a padding error.
func (e *ECB) Open(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext length %d is not a positive multiple of %d",
			ErrDecryptionFailed, len(ciphertext), aes.BlockSize)
	}
	out := make([]byte, len(ciphertext))
	for i := 0; i < len(ciphertext); i += aes.BlockSize {
		e.block.Decrypt(out[i:i+aes.BlockSize], ciphertext[i:i+aes.BlockSize])
	}
	return pkcs7Unpad(out, aes.BlockSize)
}

// cloneBytes returns a fresh copy of b.
func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
