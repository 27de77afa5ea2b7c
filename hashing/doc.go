// Package hashing provides the crypto providers a password transition engine
// needs: modern adaptive hashes for new passwords and byte-exact legacy
// schemes so that old digests keep verifying until they are migrated.
//
// # Architecture
//
// The central abstraction is the [Provider] interface.  Providers ship in three
// families:
//
//   - Fixed-iteration: [Sha1Provider] (chained, restful-authentication
//     compatible), [HexStretchProvider] (md5, sha256, sha512) and
//     [BinaryStretchProvider] (md5_v2, sha256_v2, sha512_v2).
//   - Adaptive: [BcryptProvider], [ScryptProvider], [Argon2idProvider].  These
//     embed their own salt and cost and implement [CostMatcher].
//   - Reversible: [AES256Provider], which implements [Decrypter].  It exists
//     for migrating away from systems that stored encrypted passwords.
//
// The [Registry] maps provider names to configured instances, so a policy
// described by names in a configuration file resolves to concrete providers.
//
// # Quick start
//
//	reg, err := hashing.NewDefaultRegistry()
//	if err != nil { log.Fatal(err) }
//
//	p, _ := reg.Provider(hashing.ProviderBcrypt)
//	digest, _ := p.Encrypt("my-secret-password")
//	ok, _ := p.Matches(digest, "my-secret-password") // true
//
// # Tokens
//
// Encrypt and Matches take a list of tokens instead of a single secret.  The
// caller decides the order, normally (secret, salt).  Fixed-iteration
// providers join the tokens with their configured join token; adaptive and
// reversible providers concatenate them without a separator.
//
// # Legacy compatibility
//
// Fixed-iteration providers must reproduce digests written by other systems
// years ago.  Their stretch counts and join tokens default to the historical
// values and are exposed through [StretchOptions]; do not change them unless
// the stored digests were produced with different values.
//
// v1 and v2 providers are not interchangeable.  v1 hex-encodes between
// stretches, v2 chains raw bytes; beyond one stretch they produce different
// digests for the same input.
package hashing
