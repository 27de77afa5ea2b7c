package hashing

import (
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// BcryptMaxInput is the number of input bytes bcrypt uses.
	BcryptMaxInput = 72

	// DefaultBcryptCost is the work factor new bcrypt digests are produced
	// with.  Raise it as hardware improves; existing digests keep verifying and
	// are upgraded on the next successful login.
	DefaultBcryptCost = 10
)

// BcryptOptions configures a [BcryptProvider].
type BcryptOptions struct {
	// Cost is the bcrypt work factor (logarithmic).
	// Valid range: [bcrypt.MinCost (4), bcrypt.MaxCost (31)].
	// Default: [DefaultBcryptCost] (10).
	Cost int
}

// DefaultBcryptOptions returns BcryptOptions with [DefaultBcryptCost].
func DefaultBcryptOptions() BcryptOptions {
	return BcryptOptions{Cost: DefaultBcryptCost}
}

// BcryptProvider hashes secrets with bcrypt.
//
// Tokens are concatenated without a separator before hashing; bcrypt embeds
// its own 128-bit salt and the cost in the digest, so a separate salt column
// is unnecessary (but harmless) with this provider.
//
// # Thread safety
//
// BcryptProvider is immutable after construction and safe for concurrent use.
type BcryptProvider struct {
	cost int
}

// NewBcrypt constructs a BcryptProvider.
// Returns [ErrInvalidOption] if Cost is outside [bcrypt.MinCost, bcrypt.MaxCost].
func NewBcrypt(opts BcryptOptions) (*BcryptProvider, error) {
	if opts.Cost < bcrypt.MinCost || opts.Cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("%w: bcrypt cost %d must be in [%d, %d]",
			ErrInvalidOption, opts.Cost, bcrypt.MinCost, bcrypt.MaxCost)
	}
	return &BcryptProvider{cost: opts.Cost}, nil
}

// Name returns [ProviderBcrypt].
func (p *BcryptProvider) Name() Name { return ProviderBcrypt }

// Cost returns the configured work factor.
func (p *BcryptProvider) Cost() int { return p.cost }

// Encrypt hashes the joined tokens and returns the Modular Crypt Format string
// (e.g. "$2a$10$...").
//
// Only the first 72 bytes of the joined tokens are significant, as in every
// bcrypt implementation; longer input is truncated rather than rejected.
func (p *BcryptProvider) Encrypt(tokens ...string) (string, error) {
	digest, err := bcrypt.GenerateFromPassword(bcryptInput(tokens), p.cost)
	if err != nil {
		return "", err
	}
	return string(digest), nil
}

// Matches reports whether the joined tokens verify against digest.
// Any failure, including a digest that is not bcrypt at all, is a mismatch.
func (p *BcryptProvider) Matches(digest string, tokens ...string) (bool, error) {
	if !looksLikeBcrypt(digest) {
		return false, nil
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), bcryptInput(tokens)) == nil, nil
}

// bcryptInput joins tokens and keeps the bytes bcrypt actually uses.
func bcryptInput(tokens []string) []byte {
	b := []byte(strings.Join(tokens, ""))
	if len(b) > BcryptMaxInput {
		b = b[:BcryptMaxInput]
	}
	return b
}

// CostMatches reports whether the work factor embedded in digest equals the
// configured cost.  A malformed digest never matches.
func (p *BcryptProvider) CostMatches(digest string) bool {
	if !looksLikeBcrypt(digest) {
		return false
	}
	cost, err := bcrypt.Cost([]byte(digest))
	if err != nil {
		return false
	}
	return cost == p.cost
}

// BcryptCost extracts the work factor from a bcrypt digest.
func BcryptCost(digest string) (int, error) {
	if !looksLikeBcrypt(digest) {
		return 0, fmt.Errorf("%w: digest does not appear to be bcrypt", ErrInvalidDigest)
	}
	cost, err := bcrypt.Cost([]byte(digest))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidDigest, err)
	}
	return cost, nil
}

func looksLikeBcrypt(digest string) bool {
	names, ok := Detect(digest)
	return ok && names[0] == ProviderBcrypt
}
