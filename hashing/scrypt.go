package hashing

import (
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/scrypt"
)

// ──────────────────────────────────────────────────────────────────────────────
// Options
// ──────────────────────────────────────────────────────────────────────────────

const (
	// DefaultScryptKeyLen is the derived key length in bytes.
	DefaultScryptKeyLen = 32

	// DefaultScryptSaltSize is the random salt length in bytes.
	DefaultScryptSaltSize = 8

	// DefaultScryptMaxTime bounds the calibrated cost of one derivation.
	DefaultScryptMaxTime = 200 * time.Millisecond

	// DefaultScryptMaxMem bounds the memory of one derivation (1 MiB).
	DefaultScryptMaxMem int64 = 1024 * 1024

	// DefaultScryptMaxMemFrac bounds the memory of one derivation as a
	// fraction of physical RAM.
	DefaultScryptMaxMemFrac = 0.5

	minScryptMem     int64 = 1024 * 1024
	maxScryptWorkMem int64 = 1 << 31
	// maxScryptWork bounds the bytes one derivation mixes, 128·r·N·p.
	maxScryptWork   uint64 = 1 << 34
	maxScryptKeyLen        = 512
)

// ScryptOptions configures a [ScryptProvider].
//
// N, R and P are normally left zero, in which case the provider calibrates
// them once, on first use, from MaxTime, MaxMem and MaxMemFrac.  Setting N pins
// the cost explicitly (R and P default to 8 and 1).
type ScryptOptions struct {
	// KeyLen is the derived key length in bytes.  Range: [16, 512].
	KeyLen int

	// SaltSize is the random salt length in bytes.  Range: [8, 32].
	SaltSize int

	// MaxTime is the wall-clock budget the calibrated cost aims for.  It
	// bounds the cost parameters, it does not cancel a running derivation.
	MaxTime time.Duration

	// MaxMem is the memory budget in bytes.  Zero means "limited by
	// MaxMemFrac only".
	MaxMem int64

	// MaxMemFrac is the fraction of physical RAM a derivation may use.
	// Values outside (0, 0.5] are treated as 0.5.
	MaxMemFrac float64

	// N, R, P pin the scrypt cost instead of calibrating it.
	N, R, P int
}

// DefaultScryptOptions returns the calibrated-cost defaults.
func DefaultScryptOptions() ScryptOptions {
	return ScryptOptions{
		KeyLen:     DefaultScryptKeyLen,
		SaltSize:   DefaultScryptSaltSize,
		MaxTime:    DefaultScryptMaxTime,
		MaxMem:     DefaultScryptMaxMem,
		MaxMemFrac: DefaultScryptMaxMemFrac,
	}
}

func validateScryptOptions(opts ScryptOptions) error {
	if opts.KeyLen < 16 || opts.KeyLen > maxScryptKeyLen {
		return fmt.Errorf("%w: scrypt key_len must be in [16, 512], got %d", ErrInvalidOption, opts.KeyLen)
	}
	if opts.SaltSize < 8 || opts.SaltSize > 32 {
		return fmt.Errorf("%w: scrypt salt_size must be in [8, 32], got %d", ErrInvalidOption, opts.SaltSize)
	}
	if opts.N != 0 {
		r, p := scryptRP(opts)
		if !validScryptCost(opts.N, r, p) {
			return fmt.Errorf("%w: scrypt cost N=%d r=%d p=%d is not usable", ErrInvalidOption, opts.N, r, p)
		}
		return nil
	}
	if opts.MaxTime <= 0 {
		return fmt.Errorf("%w: scrypt max_time must be positive, got %s", ErrInvalidOption, opts.MaxTime)
	}
	if opts.MaxMem < 0 {
		return fmt.Errorf("%w: scrypt max_mem must not be negative, got %d", ErrInvalidOption, opts.MaxMem)
	}
	return nil
}

func scryptRP(opts ScryptOptions) (int, int) {
	r, p := opts.R, opts.P
	if r == 0 {
		r = 8
	}
	if p == 0 {
		p = 1
	}
	return r, p
}

// validScryptCost rejects parameters x/crypto/scrypt would refuse, ones that
// would need more than 2 GiB of working memory and ones whose total work
// exceeds maxScryptWork.
func validScryptCost(n, r, p int) bool {
	if n <= 1 || n&(n-1) != 0 || r < 1 || p < 1 {
		return false
	}
	if uint64(r)*uint64(p) >= 1<<30 {
		return false
	}
	if int64(n) > maxScryptWorkMem/(128*int64(r)) {
		return false
	}
	return 128*uint64(r)*uint64(n)*uint64(p) <= maxScryptWork
}

// ──────────────────────────────────────────────────────────────────────────────
// Digest format
// ──────────────────────────────────────────────────────────────────────────────

// scryptDigestPattern matches "<N>$<r>$<p>$<salt>$<key>" with every field in
// lowercase hex.
var scryptDigestPattern = regexp.MustCompile(`^[0-9a-f]+\$[0-9a-f]+\$[0-9a-f]+\$[0-9a-f]{16,64}\$[0-9a-f]{32,}$`)

func looksLikeScrypt(digest string) bool {
	return scryptDigestPattern.MatchString(digest)
}

type scryptParams struct {
	n, r, p int
	salt    []byte
	key     []byte
}

func encodeScrypt(n, r, p int, salt, key []byte) string {
	return fmt.Sprintf("%x$%x$%x$%s$%s", n, r, p, hex.EncodeToString(salt), hex.EncodeToString(key))
}

func decodeScrypt(digest string) (*scryptParams, error) {
	if !looksLikeScrypt(digest) {
		return nil, fmt.Errorf("%w: not an scrypt digest", ErrInvalidDigest)
	}
	parts := strings.Split(digest, "$")
	var cost [3]int
	for i := range cost {
		v, err := strconv.ParseUint(parts[i], 16, 31)
		if err != nil {
			return nil, fmt.Errorf("%w: scrypt cost field %q: %v", ErrInvalidDigest, parts[i], err)
		}
		cost[i] = int(v)
	}
	if !validScryptCost(cost[0], cost[1], cost[2]) {
		return nil, fmt.Errorf("%w: scrypt cost out of range", ErrInvalidDigest)
	}
	salt, err := hex.DecodeString(parts[3])
	if err != nil {
		return nil, fmt.Errorf("%w: scrypt salt: %v", ErrInvalidDigest, err)
	}
	key, err := hex.DecodeString(parts[4])
	if err != nil {
		return nil, fmt.Errorf("%w: scrypt key: %v", ErrInvalidDigest, err)
	}
	if len(key) > maxScryptKeyLen {
		return nil, fmt.Errorf("%w: scrypt key longer than %d bytes", ErrInvalidDigest, maxScryptKeyLen)
	}
	return &scryptParams{n: cost[0], r: cost[1], p: cost[2], salt: salt, key: key}, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// ScryptProvider
// ──────────────────────────────────────────────────────────────────────────────

// ScryptProvider hashes secrets with the memory-hard scrypt function.
//
// The digest embeds N, r, p and the salt:
//
//	400$8$3d$1f2e3d4c5b6a7988$<64 hex chars>
//
// Matches re-derives with the embedded parameters, never the provider's own,
// so raising the budget later only marks old digests for upgrade through
// [ScryptProvider.CostMatches].
type ScryptProvider struct {
	opts ScryptOptions

	once    sync.Once
	n, r, p int
}

// NewScrypt constructs a ScryptProvider.  Calibration, when N is not pinned,
// happens on first use.
func NewScrypt(opts ScryptOptions) (*ScryptProvider, error) {
	if err := validateScryptOptions(opts); err != nil {
		return nil, err
	}
	return &ScryptProvider{opts: opts}, nil
}

// Name returns [ProviderScrypt].
func (p *ScryptProvider) Name() Name { return ProviderScrypt }

// Options returns the provider's configuration.
func (p *ScryptProvider) Options() ScryptOptions { return p.opts }

// Cost returns the N, r, p parameters new digests are produced with.
func (p *ScryptProvider) Cost() (n, r, par int) {
	p.once.Do(p.resolveCost)
	return p.n, p.r, p.p
}

func (p *ScryptProvider) resolveCost() {
	if p.opts.N != 0 {
		p.r, p.p = scryptRP(p.opts)
		p.n = p.opts.N
		return
	}
	p.n, p.r, p.p = calibrateScrypt(p.opts.MaxTime, p.opts.MaxMem, p.opts.MaxMemFrac)
}

// Encrypt derives a key from the joined tokens with a fresh random salt.
func (p *ScryptProvider) Encrypt(tokens ...string) (string, error) {
	n, r, par := p.Cost()
	salt, err := randomSalt(p.opts.SaltSize)
	if err != nil {
		return "", err
	}
	key, err := scrypt.Key([]byte(strings.Join(tokens, "")), salt, n, r, par, p.opts.KeyLen)
	if err != nil {
		return "", fmt.Errorf("hashing: scrypt: %w", err)
	}
	return encodeScrypt(n, r, par, salt, key), nil
}

// Matches reports whether the joined tokens re-derive digest.
func (p *ScryptProvider) Matches(digest string, tokens ...string) (bool, error) {
	params, err := decodeScrypt(digest)
	if err != nil {
		return false, nil
	}
	key, err := scrypt.Key([]byte(strings.Join(tokens, "")), params.salt,
		params.n, params.r, params.p, len(params.key))
	if err != nil {
		return false, nil
	}
	return subtle.ConstantTimeCompare(key, params.key) == 1, nil
}

// CostMatches reports whether N, r, p and the key length in digest equal the
// provider's current cost.
func (p *ScryptProvider) CostMatches(digest string) bool {
	params, err := decodeScrypt(digest)
	if err != nil {
		return false
	}
	n, r, par := p.Cost()
	return params.n == n && params.r == r && params.p == par && len(params.key) == p.opts.KeyLen
}

// ──────────────────────────────────────────────────────────────────────────────
// Calibration
// ──────────────────────────────────────────────────────────────────────────────

var cpuPerf struct {
	once sync.Once
	opps float64
}

// calibrateScrypt picks N, r, p so one derivation stays within the time and
// memory budgets.  r is fixed at 8.  When the time budget is the tighter
// constraint p is 1 and N is bounded by time; otherwise N is bounded by memory
// and the remaining time budget goes into p.
func calibrateScrypt(maxTime time.Duration, maxMem int64, maxMemFrac float64) (n, r, p int) {
	memLimit := float64(scryptMemoryLimit(maxMem, maxMemFrac))
	opsLimit := scryptOpsPerSecond() * maxTime.Seconds()
	if opsLimit < 32768 {
		opsLimit = 32768
	}

	r = 8
	var logN uint
	if opsLimit < memLimit/32 {
		p = 1
		logN = scryptLogN(opsLimit / float64(r*4))
	} else {
		logN = scryptLogN(memLimit / float64(r*128))
		maxRP := (opsLimit / 4) / float64(uint64(1)<<logN)
		if maxRP > 0x3fffffff {
			maxRP = 0x3fffffff
		}
		p = int(maxRP) / r
	}
	for logN > 1 && int64(128*r)<<logN > maxScryptWorkMem {
		logN--
	}
	if p < 1 {
		p = 1
	}
	if maxP := maxScryptWork / (128 * uint64(r) << logN); uint64(p) > maxP {
		p = int(maxP)
	}
	return 1 << logN, r, p
}

// scryptLogN returns the smallest logN ≥ 1 with 2^logN > maxN/2.
func scryptLogN(maxN float64) uint {
	logN := uint(1)
	for ; logN < 30; logN++ {
		if float64(uint64(1)<<logN) > maxN/2 {
			break
		}
	}
	return logN
}

// scryptMemoryLimit combines the absolute and fractional budgets, never going
// below 1 MiB.
func scryptMemoryLimit(maxMem int64, maxMemFrac float64) int64 {
	if maxMemFrac <= 0 || maxMemFrac > 0.5 {
		maxMemFrac = 0.5
	}
	avail := int64(0)
	if total := physicalMemory(); total > 0 {
		avail = int64(maxMemFrac * float64(total))
	}
	if maxMem > 0 && (avail == 0 || avail > maxMem) {
		avail = maxMem
	}
	if avail < minScryptMem {
		avail = minScryptMem
	}
	return avail
}

// scryptOpsPerSecond estimates how many salsa20/8 core invocations this CPU
// performs per second.  One derivation with N=16, r=1, p=1 runs 4·N·r = 64 of
// them.  The estimate is taken once per process.
func scryptOpsPerSecond() float64 {
	cpuPerf.once.Do(func() {
		const coresPerCall = 64
		salt := []byte("calibrate")
		calls := 0
		start := time.Now()
		for time.Since(start) < 10*time.Millisecond {
			_, _ = scrypt.Key([]byte("calibrate"), salt, 16, 1, 1, 16)
			calls++
		}
		elapsed := time.Since(start).Seconds()
		cpuPerf.opps = float64(calls*coresPerCall) / elapsed
	})
	return cpuPerf.opps
}
