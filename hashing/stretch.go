package hashing

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"
)

// ──────────────────────────────────────────────────────────────────────────────
// Options
// ──────────────────────────────────────────────────────────────────────────────

const (
	// DefaultSha1Stretches is the stretch count restful_authentication
	// installations default to.
	DefaultSha1Stretches = 10

	// DefaultSha1JoinToken separates tokens before each SHA-1 stretch.
	DefaultSha1JoinToken = "--"

	// DefaultMD5Stretches is the stretch count of both MD5 providers.
	DefaultMD5Stretches = 1

	// DefaultSha2Stretches is the stretch count of the SHA-256 and SHA-512
	// providers (v1 and v2).
	DefaultSha2Stretches = 20
)

// StretchOptions configures a fixed-iteration provider.
//
// Changing either value changes every digest the provider produces, so these
// must match whatever the legacy system used when the digests were written.
type StretchOptions struct {
	// Stretches is the number of hash iterations.  Minimum: 1.
	Stretches int

	// JoinToken separates tokens when they are concatenated.
	JoinToken string
}

// DefaultSha1Options returns the SHA-1 defaults (10 stretches, "--").
func DefaultSha1Options() StretchOptions {
	return StretchOptions{Stretches: DefaultSha1Stretches, JoinToken: DefaultSha1JoinToken}
}

// RestfulAuthenticationSha1Options returns the options of a stock
// restful_authentication installation: the SHA-1 provider with 10 stretches
// and "--" separators.  Feed the provider (site_key, salt, secret, site_key).
//
// Installations that never defined a site key did not stretch at all; use
// Stretches: 1 with an empty site key for those.
func RestfulAuthenticationSha1Options() StretchOptions {
	return DefaultSha1Options()
}

// DefaultMD5Options returns the MD5 defaults (1 stretch, no join token).
func DefaultMD5Options() StretchOptions {
	return StretchOptions{Stretches: DefaultMD5Stretches}
}

// DefaultSha2Options returns the SHA-256/SHA-512 defaults (20 stretches, no
// join token).
func DefaultSha2Options() StretchOptions {
	return StretchOptions{Stretches: DefaultSha2Stretches}
}

func validateStretchOptions(name Name, opts StretchOptions) error {
	if opts.Stretches < 1 {
		return fmt.Errorf("%w: %s stretches must be ≥ 1, got %d", ErrInvalidOption, name, opts.Stretches)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Sha1Provider
// ──────────────────────────────────────────────────────────────────────────────

// Sha1Provider is the chained SHA-1 scheme used by restful_authentication and
// early acts_as_authentic installations.
//
// The first token seeds the digest; every stretch hashes the previous hex
// digest joined with the remaining tokens:
//
//	d = tokens[0]
//	repeat Stretches: d = hex(sha1(join([d, tokens[1:]...], JoinToken)))
//
// SHA-1 is broken for new passwords.  Keep this provider in a transition list
// only.
type Sha1Provider struct {
	opts StretchOptions
}

// NewSha1 constructs a Sha1Provider.  Use [DefaultSha1Options] for the
// historical defaults.
func NewSha1(opts StretchOptions) (*Sha1Provider, error) {
	if err := validateStretchOptions(ProviderSha1, opts); err != nil {
		return nil, err
	}
	return &Sha1Provider{opts: opts}, nil
}

// Name returns [ProviderSha1].
func (p *Sha1Provider) Name() Name { return ProviderSha1 }

// Options returns the provider's configuration.
func (p *Sha1Provider) Options() StretchOptions { return p.opts }

// Encrypt returns the 40-character hex digest of tokens.
func (p *Sha1Provider) Encrypt(tokens ...string) (string, error) {
	return p.encrypt(tokens), nil
}

// Matches reports whether tokens re-derive digest.
func (p *Sha1Provider) Matches(digest string, tokens ...string) (bool, error) {
	return constantTimeEqual(p.encrypt(tokens), digest), nil
}

func (p *Sha1Provider) encrypt(tokens []string) string {
	var digest string
	var rest []string
	if len(tokens) > 0 {
		digest, rest = tokens[0], tokens[1:]
	}
	parts := make([]string, 0, len(tokens))
	for i := 0; i < p.opts.Stretches; i++ {
		parts = append(parts[:0], digest)
		parts = append(parts, rest...)
		sum := sha1.Sum([]byte(strings.Join(parts, p.opts.JoinToken)))
		digest = hex.EncodeToString(sum[:])
	}
	return digest
}

// ──────────────────────────────────────────────────────────────────────────────
// HexStretchProvider (v1 family)
// ──────────────────────────────────────────────────────────────────────────────

// HexStretchProvider joins the tokens once and then re-hashes the lowercase
// hex representation of the previous digest on every stretch:
//
//	d = join(tokens, JoinToken)
//	repeat Stretches: d = hex(H(d))
//
// It backs the md5, sha256 and sha512 providers.  It is not interchangeable
// with [BinaryStretchProvider]: for more than one stretch the two produce
// different digests for the same input.
type HexStretchProvider struct {
	name    Name
	newHash func() hash.Hash
	opts    StretchOptions
}

// NewMD5 constructs the hex-per-step MD5 provider.
func NewMD5(opts StretchOptions) (*HexStretchProvider, error) {
	return newHexStretch(ProviderMD5, md5.New, opts)
}

// NewSha256 constructs the hex-per-step SHA-256 provider.
func NewSha256(opts StretchOptions) (*HexStretchProvider, error) {
	return newHexStretch(ProviderSha256, sha256.New, opts)
}

// NewSha512 constructs the hex-per-step SHA-512 provider.
func NewSha512(opts StretchOptions) (*HexStretchProvider, error) {
	return newHexStretch(ProviderSha512, sha512.New, opts)
}

func newHexStretch(name Name, newHash func() hash.Hash, opts StretchOptions) (*HexStretchProvider, error) {
	if err := validateStretchOptions(name, opts); err != nil {
		return nil, err
	}
	return &HexStretchProvider{name: name, newHash: newHash, opts: opts}, nil
}

// Name returns the provider's registry name.
func (p *HexStretchProvider) Name() Name { return p.name }

// Options returns the provider's configuration.
func (p *HexStretchProvider) Options() StretchOptions { return p.opts }

// Encrypt returns the hex digest of tokens.
func (p *HexStretchProvider) Encrypt(tokens ...string) (string, error) {
	return p.encrypt(tokens), nil
}

// Matches reports whether tokens re-derive digest.
func (p *HexStretchProvider) Matches(digest string, tokens ...string) (bool, error) {
	return constantTimeEqual(p.encrypt(tokens), digest), nil
}

func (p *HexStretchProvider) encrypt(tokens []string) string {
	digest := strings.Join(tokens, p.opts.JoinToken)
	h := p.newHash()
	for i := 0; i < p.opts.Stretches; i++ {
		h.Reset()
		h.Write([]byte(digest))
		digest = hex.EncodeToString(h.Sum(nil))
	}
	return digest
}

// ──────────────────────────────────────────────────────────────────────────────
// BinaryStretchProvider (v2 family)
// ──────────────────────────────────────────────────────────────────────────────

// BinaryStretchProvider joins the tokens once and re-hashes the raw digest
// bytes on every stretch, hex-encoding only the final result:
//
//	d = join(tokens, JoinToken)
//	repeat Stretches: d = H(d)
//	return hex(d)
//
// It backs the md5_v2, sha256_v2 and sha512_v2 providers.
type BinaryStretchProvider struct {
	name    Name
	newHash func() hash.Hash
	opts    StretchOptions
}

// NewMD5V2 constructs the binary-per-step MD5 provider.
func NewMD5V2(opts StretchOptions) (*BinaryStretchProvider, error) {
	return newBinaryStretch(ProviderMD5V2, md5.New, opts)
}

// NewSha256V2 constructs the binary-per-step SHA-256 provider.
func NewSha256V2(opts StretchOptions) (*BinaryStretchProvider, error) {
	return newBinaryStretch(ProviderSha256V2, sha256.New, opts)
}

// NewSha512V2 constructs the binary-per-step SHA-512 provider.
func NewSha512V2(opts StretchOptions) (*BinaryStretchProvider, error) {
	return newBinaryStretch(ProviderSha512V2, sha512.New, opts)
}

func newBinaryStretch(name Name, newHash func() hash.Hash, opts StretchOptions) (*BinaryStretchProvider, error) {
	if err := validateStretchOptions(name, opts); err != nil {
		return nil, err
	}
	return &BinaryStretchProvider{name: name, newHash: newHash, opts: opts}, nil
}

// Name returns the provider's registry name.
func (p *BinaryStretchProvider) Name() Name { return p.name }

// Options returns the provider's configuration.
func (p *BinaryStretchProvider) Options() StretchOptions { return p.opts }

// Encrypt returns the hex digest of tokens.
func (p *BinaryStretchProvider) Encrypt(tokens ...string) (string, error) {
	return p.encrypt(tokens), nil
}

// Matches reports whether tokens re-derive digest.
func (p *BinaryStretchProvider) Matches(digest string, tokens ...string) (bool, error) {
	return constantTimeEqual(p.encrypt(tokens), digest), nil
}

func (p *BinaryStretchProvider) encrypt(tokens []string) string {
	digest := []byte(strings.Join(tokens, p.opts.JoinToken))
	h := p.newHash()
	for i := 0; i < p.opts.Stretches; i++ {
		h.Reset()
		h.Write(digest)
		digest = h.Sum(nil)
	}
	return hex.EncodeToString(digest)
}

// constantTimeEqual compares two digests without leaking the position of the
// first difference.
func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
