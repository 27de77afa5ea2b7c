package hashing

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

// ──────────────────────────────────────────────────────────────────────────────
// Options
// ──────────────────────────────────────────────────────────────────────────────

const (
	// DefaultArgon2Memory is the default memory cost in KiB (64 MiB).
	DefaultArgon2Memory uint32 = 64 * 1024

	// DefaultArgon2Time is the default number of passes.
	DefaultArgon2Time uint32 = 3

	// DefaultArgon2Threads is the default degree of parallelism.
	DefaultArgon2Threads uint8 = 2

	// DefaultArgon2KeyLen is the default derived key length in bytes.
	DefaultArgon2KeyLen uint32 = 32

	// DefaultArgon2SaltLen is the default random salt length in bytes.
	DefaultArgon2SaltLen uint32 = 16

	// Ceilings shared by option validation and digest decoding.  A stored
	// digest above them does not match.
	maxArgon2Memory uint64 = 4 << 20 // KiB, 4 GiB
	maxArgon2Time   uint64 = 64
	maxArgon2Work   uint64 = 16 << 20 // memory × passes, in KiB
	maxArgon2KeyLen        = 1024
)

// Argon2Options configures an [Argon2idProvider].
//
// All parameters are encoded into the digest (PHC string format), so changing
// them only affects newly produced digests; [Argon2idProvider.CostMatches]
// reports the older ones as due for an upgrade.
type Argon2Options struct {
	// Memory is the memory cost in KiB.  Minimum: 8 * Threads.
	Memory uint32

	// Time is the number of passes over memory.  Minimum: 1.
	Time uint32

	// Threads is the degree of parallelism.  Minimum: 1.
	Threads uint8

	// KeyLen is the derived key length in bytes.  Minimum: 4.
	KeyLen uint32

	// SaltLen is the random salt length in bytes.  Minimum: 8.
	SaltLen uint32
}

// DefaultArgon2Options returns Argon2Options with the recommended defaults.
func DefaultArgon2Options() Argon2Options {
	return Argon2Options{
		Memory:  DefaultArgon2Memory,
		Time:    DefaultArgon2Time,
		Threads: DefaultArgon2Threads,
		KeyLen:  DefaultArgon2KeyLen,
		SaltLen: DefaultArgon2SaltLen,
	}
}

func validateArgon2Options(opts Argon2Options) error {
	if opts.Time < 1 {
		return fmt.Errorf("%w: argon2 time must be ≥ 1, got %d", ErrInvalidOption, opts.Time)
	}
	if opts.Threads < 1 {
		return fmt.Errorf("%w: argon2 threads must be ≥ 1, got %d", ErrInvalidOption, opts.Threads)
	}
	if opts.Memory < 8*uint32(opts.Threads) {
		return fmt.Errorf("%w: argon2 memory (%d KiB) must be ≥ 8×threads (%d KiB)",
			ErrInvalidOption, opts.Memory, 8*uint32(opts.Threads))
	}
	if opts.KeyLen < 4 {
		return fmt.Errorf("%w: argon2 key_len must be ≥ 4, got %d", ErrInvalidOption, opts.KeyLen)
	}
	if opts.SaltLen < 8 {
		return fmt.Errorf("%w: argon2 salt_len must be ≥ 8, got %d", ErrInvalidOption, opts.SaltLen)
	}
	if !argon2CostBounded(uint64(opts.Memory), uint64(opts.Time)) || opts.KeyLen > maxArgon2KeyLen {
		return fmt.Errorf("%w: argon2 cost m=%d t=%d key_len=%d exceeds the supported maximum",
			ErrInvalidOption, opts.Memory, opts.Time, opts.KeyLen)
	}
	return nil
}

func argon2CostBounded(memory, time uint64) bool {
	return memory <= maxArgon2Memory && time <= maxArgon2Time && memory*time <= maxArgon2Work
}

// ──────────────────────────────────────────────────────────────────────────────
// PHC string format helpers
// ──────────────────────────────────────────────────────────────────────────────

// argon2Params holds the parameters and raw values decoded from a PHC string.
type argon2Params struct {
	version uint32
	memory  uint32
	time    uint32
	threads uint8
	salt    []byte
	key     []byte
}

// encodePHC serialises an Argon2id digest:
//
//	$argon2id$v=19$m=65536,t=3,p=2$<salt_base64>$<key_base64>
//
// Base64 uses the standard alphabet without padding.
func encodePHC(memory, time uint32, threads uint8, salt, key []byte) string {
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		memory,
		time,
		threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	)
}

// decodePHC parses an Argon2id PHC string.
func decodePHC(encoded string) (*argon2Params, error) {
	// The leading "$" produces an empty first element.
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" {
		return nil, fmt.Errorf("%w: expected 5-segment PHC string, got %d segments",
			ErrInvalidDigest, len(parts)-1)
	}
	if parts[1] != string(ProviderArgon2id) {
		return nil, fmt.Errorf("%w: unsupported argon2 variant %q", ErrInvalidDigest, parts[1])
	}

	version, err := parseKV(parts[2], "v")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDigest, err)
	}

	kvs, err := parseParams(parts[3])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDigest, err)
	}
	memory, ok1 := kvs["m"]
	time, ok2 := kvs["t"]
	threads, ok3 := kvs["p"]
	if !ok1 || !ok2 || !ok3 {
		return nil, fmt.Errorf("%w: missing m/t/p in parameter segment %q", ErrInvalidDigest, parts[3])
	}
	if threads < 1 || threads > 255 || time < 1 || memory < 8*threads || !argon2CostBounded(memory, time) {
		return nil, fmt.Errorf("%w: argon2 parameters out of range in %q", ErrInvalidDigest, parts[3])
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid salt base64: %v", ErrInvalidDigest, err)
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 || len(key) > maxArgon2KeyLen {
		return nil, fmt.Errorf("%w: invalid key base64", ErrInvalidDigest)
	}

	return &argon2Params{
		version: uint32(version),
		memory:  uint32(memory),
		time:    uint32(time),
		threads: uint8(threads),
		salt:    salt,
		key:     key,
	}, nil
}

// parseKV parses a "key=value" string and returns the uint64 value.
func parseKV(s, key string) (uint64, error) {
	prefix := key + "="
	if !strings.HasPrefix(s, prefix) {
		return 0, fmt.Errorf("expected %q prefix in %q", prefix, s)
	}
	return strconv.ParseUint(s[len(prefix):], 10, 64)
}

// parseParams splits "m=65536,t=3,p=2" into a map.
func parseParams(s string) (map[string]uint64, error) {
	out := make(map[string]uint64)
	for _, kv := range strings.Split(s, ",") {
		eq := strings.IndexByte(kv, '=')
		if eq <= 0 {
			return nil, fmt.Errorf("malformed param %q", kv)
		}
		v, err := strconv.ParseUint(kv[eq+1:], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("non-numeric value in %q: %v", kv, err)
		}
		out[kv[:eq]] = v
	}
	return out, nil
}

// randomSalt returns n cryptographically random bytes.
func randomSalt(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("hashing: failed to generate salt: %w", err)
	}
	return b, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Argon2idProvider
// ──────────────────────────────────────────────────────────────────────────────

// Argon2idProvider hashes secrets with Argon2id.
//
// Matches reads memory, passes, and parallelism from the digest itself, so
// digests keep verifying after the provider's options change.
//
// # Thread safety
//
// Argon2idProvider is immutable after construction and safe for concurrent use.
type Argon2idProvider struct {
	opts Argon2Options
}

// NewArgon2id constructs an Argon2idProvider.
// Use [DefaultArgon2Options] for recommended defaults.
func NewArgon2id(opts Argon2Options) (*Argon2idProvider, error) {
	if err := validateArgon2Options(opts); err != nil {
		return nil, err
	}
	return &Argon2idProvider{opts: opts}, nil
}

// Name returns [ProviderArgon2id].
func (p *Argon2idProvider) Name() Name { return ProviderArgon2id }

// Options returns the current parameter set.
func (p *Argon2idProvider) Options() Argon2Options { return p.opts }

// Encrypt hashes the joined tokens with a fresh random salt and returns a PHC
// string.
func (p *Argon2idProvider) Encrypt(tokens ...string) (string, error) {
	salt, err := randomSalt(int(p.opts.SaltLen))
	if err != nil {
		return "", err
	}
	key := argon2.IDKey(
		[]byte(strings.Join(tokens, "")), salt,
		p.opts.Time, p.opts.Memory, p.opts.Threads, p.opts.KeyLen,
	)
	return encodePHC(p.opts.Memory, p.opts.Time, p.opts.Threads, salt, key), nil
}

// Matches reports whether the joined tokens re-derive digest using the
// parameters embedded in digest.
func (p *Argon2idProvider) Matches(digest string, tokens ...string) (bool, error) {
	params, err := decodePHC(digest)
	if err != nil || params.version != argon2.Version {
		return false, nil
	}
	computed := argon2.IDKey([]byte(strings.Join(tokens, "")), params.salt,
		params.time, params.memory, params.threads, uint32(len(params.key)))
	return subtle.ConstantTimeCompare(computed, params.key) == 1, nil
}

// CostMatches reports whether memory, passes, parallelism and key length in
// digest equal the provider's current options.
func (p *Argon2idProvider) CostMatches(digest string) bool {
	params, err := decodePHC(digest)
	if err != nil {
		return false
	}
	return params.memory == p.opts.Memory &&
		params.time == p.opts.Time &&
		params.threads == p.opts.Threads &&
		uint32(len(params.key)) == p.opts.KeyLen
}
