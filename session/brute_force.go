package session

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hasbyte1/go-authentic/authentic"
)

const (
	// DefaultConsecutiveFailedLoginsLimit is the number of consecutive failed
	// logins after which a record is banned.
	DefaultConsecutiveFailedLoginsLimit = 50

	// DefaultFailedLoginBanFor is how long a ban lasts.
	DefaultFailedLoginBanFor = 2 * time.Hour

	// limiterIdle is how long an identifier's throttle is kept after its last
	// attempt.
	limiterIdle = 10 * time.Minute
)

// GuardOptions configures a [BruteForceGuard].
type GuardOptions struct {
	// ConsecutiveFailedLoginsLimit bans a record once its failed login count
	// reaches this value.  Zero disables the ban.
	ConsecutiveFailedLoginsLimit int

	// FailedLoginBanFor is the ban duration, measured from the last failed
	// login.  Zero bans until the count is reset by the host.
	FailedLoginBanFor time.Duration

	// AttemptRate throttles attempts per login identifier, whether or not the
	// login exists.  Zero disables throttling.
	AttemptRate rate.Limit

	// AttemptBurst is the throttle burst.  Default: 1 when AttemptRate is set.
	AttemptBurst int
}

// DefaultGuardOptions returns the conventional ban settings without
// throttling.
func DefaultGuardOptions() GuardOptions {
	return GuardOptions{
		ConsecutiveFailedLoginsLimit: DefaultConsecutiveFailedLoginsLimit,
		FailedLoginBanFor:            DefaultFailedLoginBanFor,
	}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// BruteForceGuard bans records after too many consecutive failed logins and
// optionally throttles attempts per identifier.
//
// The failed login count lives on the record, in the FailedLoginCount field;
// the time of the last failure in LastFailedLoginAt when that field is
// mapped.  Without it a ban lasts until the count is reset.
//
// # Thread safety
//
// A BruteForceGuard is safe for concurrent use.  The records passed to it are
// not.
type BruteForceGuard struct {
	opts   GuardOptions
	fields authentic.FieldMapping

	mu       sync.Mutex
	limiters map[string]*limiterEntry
}

// NewBruteForceGuard builds a guard for records using fields.
func NewBruteForceGuard(fields authentic.FieldMapping, opts GuardOptions) (*BruteForceGuard, error) {
	if fields.FailedLoginCount == "" {
		return nil, ErrNoFailedLoginCountField
	}
	if opts.AttemptRate > 0 && opts.AttemptBurst < 1 {
		opts.AttemptBurst = 1
	}
	return &BruteForceGuard{
		opts:     opts,
		fields:   fields,
		limiters: make(map[string]*limiterEntry),
	}, nil
}

// Options returns the guard's settings.
func (g *BruteForceGuard) Options() GuardOptions { return g.opts }

// Allow reports whether an attempt for identifier may proceed at now.
func (g *BruteForceGuard) Allow(identifier string, now time.Time) bool {
	if g.opts.AttemptRate <= 0 {
		return true
	}
	key := strings.ToLower(identifier)

	g.mu.Lock()
	defer g.mu.Unlock()
	for k, e := range g.limiters {
		if now.Sub(e.lastSeen) > limiterIdle {
			delete(g.limiters, k)
		}
	}
	e, ok := g.limiters[key]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(g.opts.AttemptRate, g.opts.AttemptBurst)}
		g.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// FailedLogins returns the failed login count of rec.
func (g *BruteForceGuard) FailedLogins(rec authentic.Record) int {
	n, _ := strconv.Atoi(rec.Get(g.fields.FailedLoginCount))
	return n
}

func (g *BruteForceGuard) exceeded(rec authentic.Record) bool {
	limit := g.opts.ConsecutiveFailedLoginsLimit
	return limit > 0 && g.FailedLogins(rec) >= limit
}

// Banned reports whether rec is banned at now.
func (g *BruteForceGuard) Banned(rec authentic.Record, now time.Time) bool {
	if !g.exceeded(rec) {
		return false
	}
	if g.opts.FailedLoginBanFor <= 0 || g.fields.LastFailedLoginAt == "" {
		return true
	}
	last, err := time.Parse(time.RFC3339Nano, rec.Get(g.fields.LastFailedLoginAt))
	if err != nil {
		return true
	}
	return now.Before(last.Add(g.opts.FailedLoginBanFor))
}

// ResetExpired clears the failed login count of rec when its ban has
// expired, reporting whether it did.
func (g *BruteForceGuard) ResetExpired(rec authentic.Record, now time.Time) bool {
	if !g.exceeded(rec) || g.Banned(rec, now) {
		return false
	}
	rec.Set(g.fields.FailedLoginCount, "0")
	return true
}

// RecordFailure increments the failed login count of rec and stamps the
// failure time.  It does not save rec.
func (g *BruteForceGuard) RecordFailure(rec authentic.Record, now time.Time) {
	rec.Set(g.fields.FailedLoginCount, strconv.Itoa(g.FailedLogins(rec)+1))
	if f := g.fields.LastFailedLoginAt; f != "" {
		rec.Set(f, now.UTC().Format(time.RFC3339Nano))
	}
}

// RecordSuccess resets the failed login count of rec.  It does not save rec.
func (g *BruteForceGuard) RecordSuccess(rec authentic.Record) {
	if g.FailedLogins(rec) != 0 {
		rec.Set(g.fields.FailedLoginCount, "0")
	}
}
