package encryption

import "errors"

// Sentinel errors returned by encryption operations.
//
// Callers should use errors.Is for comparisons:
//
//	_, err := codec.Open(ciphertext)
//	if errors.Is(err, encryption.ErrDecryptionFailed) {
//	    // wrong key or corrupted value
//	}
var (
	// ErrInvalidKeyLength is returned when the provided key is not 32 bytes.
	ErrInvalidKeyLength = errors.New("encryption: invalid key length for cipher")

	// ErrDecryptionFailed is returned when the ciphertext length is not a
	// multiple of the block size or the PKCS#7 padding is malformed.
	ErrDecryptionFailed = errors.New("encryption: decryption failed")

	// ErrEmptyKey is returned when a nil or zero-length key is provided.
	ErrEmptyKey = errors.New("encryption: key must not be empty")

	// ErrInvalidKeyEncoding is returned by [ParseKey] and [DecodeKey] when a
	// key string cannot be decoded.
	ErrInvalidKeyEncoding = errors.New("encryption: invalid key encoding")
)
