package hashing

import (
	"regexp"
	"strings"
)

// Name identifies a crypto provider.
// Using a named string type prevents accidental confusion with plain strings.
type Name string

const (
	// ProviderMD5 selects the hex-per-step MD5 provider.
	ProviderMD5 Name = "md5"
	// ProviderSha1 selects the chained SHA-1 provider (restful-authentication compatible).
	ProviderSha1 Name = "sha1"
	// ProviderSha256 selects the hex-per-step SHA-256 provider.
	ProviderSha256 Name = "sha256"
	// ProviderSha512 selects the hex-per-step SHA-512 provider.
	ProviderSha512 Name = "sha512"
	// ProviderMD5V2 selects the binary-per-step MD5 provider.
	ProviderMD5V2 Name = "md5_v2"
	// ProviderSha256V2 selects the binary-per-step SHA-256 provider.
	ProviderSha256V2 Name = "sha256_v2"
	// ProviderSha512V2 selects the binary-per-step SHA-512 provider.
	ProviderSha512V2 Name = "sha512_v2"
	// ProviderBcrypt selects the bcrypt provider.
	ProviderBcrypt Name = "bcrypt"
	// ProviderScrypt selects the scrypt provider.
	ProviderScrypt Name = "scrypt"
	// ProviderArgon2id selects the Argon2id provider.
	ProviderArgon2id Name = "argon2id"
	// ProviderAES256 selects the reversible AES-256 provider. Only use it to
	// migrate away from a legacy system that stored reversible passwords.
	ProviderAES256 Name = "aes256"
)

// Provider is the capability contract shared by every hashing strategy.
//
// All implementations must be immutable after construction and safe for
// concurrent use by multiple goroutines.
type Provider interface {
	// Name returns the provider's registry name.
	Name() Name

	// Encrypt derives a digest from tokens.  Tokens are the secret followed by
	// the salt (when the record has one) and any extra tokens, in the order the
	// caller decides; fixed-iteration providers are a pure function of
	// (tokens, configuration), adaptive providers embed a fresh random salt.
	Encrypt(tokens ...string) (string, error)

	// Matches reports whether tokens re-derive digest.
	//
	// A malformed digest, or a digest produced by a different provider family,
	// yields (false, nil).  The error return is reserved for configuration
	// failures such as [ErrProviderMisconfigured].
	Matches(digest string, tokens ...string) (bool, error)
}

// CostMatcher is implemented by adaptive providers.  CostMatches reports
// whether the cost parameters embedded in digest equal the provider's current
// configuration.  It never affects the outcome of [Provider.Matches]; it is
// only a signal that a stored digest should be upgraded.
type CostMatcher interface {
	CostMatches(digest string) bool
}

// Decrypter is implemented by reversible providers.
type Decrypter interface {
	Decrypt(digest string) (string, error)
}

var (
	hex32  = regexp.MustCompile(`^[0-9a-f]{32}$`)
	hex40  = regexp.MustCompile(`^[0-9a-f]{40}$`)
	hex64  = regexp.MustCompile(`^[0-9a-f]{64}$`)
	hex128 = regexp.MustCompile(`^[0-9a-f]{128}$`)
)

// Detect inspects a digest and returns the providers that could have produced
// it, most specific first.  It is a best-effort heuristic based on the digest's
// shape and never verifies anything.  Fixed-iteration digests are ambiguous by
// nature: a 128-character hex string may be a v1 or v2 SHA-512 digest.
//
// The second return value is false when the format is not recognised.
func Detect(digest string) ([]Name, bool) {
	switch {
	case strings.HasPrefix(digest, "$argon2id$"):
		return []Name{ProviderArgon2id}, true
	case strings.HasPrefix(digest, "$2a$"),
		strings.HasPrefix(digest, "$2b$"),
		strings.HasPrefix(digest, "$2y$"):
		return []Name{ProviderBcrypt}, true
	case looksLikeScrypt(digest):
		return []Name{ProviderScrypt}, true
	case hex32.MatchString(digest):
		return []Name{ProviderMD5, ProviderMD5V2}, true
	case hex40.MatchString(digest):
		return []Name{ProviderSha1}, true
	case hex64.MatchString(digest):
		return []Name{ProviderSha256, ProviderSha256V2}, true
	case hex128.MatchString(digest):
		return []Name{ProviderSha512, ProviderSha512V2}, true
	default:
		return nil, false
	}
}
