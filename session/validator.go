package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/hasbyte1/go-authentic/authentic"
)

// Finder looks records up by login.  Both stores in this module implement it.
type Finder interface {
	// FindByLogin returns the record whose field equals value.  It returns an
	// error wrapping [authentic.ErrRecordNotFound] when there is none.
	FindByLogin(ctx context.Context, field, value string, caseSensitive bool) (authentic.Entity, error)
}

// ValidatorOption is a functional option for configuring a [Validator].
type ValidatorOption func(*Validator)

// WithCaseSensitive fixes the case sensitivity of login lookups instead of
// asking the store.
func WithCaseSensitive(v bool) ValidatorOption {
	return func(val *Validator) {
		val.caseSensitive = v
		val.caseDeclared = true
	}
}

// WithLoginField looks records up by field instead of the mapping's login
// field.
func WithLoginField(field string) ValidatorOption {
	return func(v *Validator) { v.field = field }
}

// WithGuard enables brute-force protection.  Banned records and throttled
// identifiers fail with [KindLockedOut] before the password is checked.
func WithGuard(g *BruteForceGuard) ValidatorOption {
	return func(v *Validator) { v.guard = g }
}

// WithLogger sets the logger for configuration warnings.
func WithLogger(l *slog.Logger) ValidatorOption {
	return func(v *Validator) { v.log = l }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) ValidatorOption {
	return func(v *Validator) { v.now = now }
}

// Validator authenticates a login and password.
//
// # Thread safety
//
// A Validator is safe for concurrent use.
type Validator struct {
	auth   *authentic.Authenticator
	finder Finder
	guard  *BruteForceGuard
	log    *slog.Logger
	now    func() time.Time

	field         string
	caseSensitive bool
	caseDeclared  bool
}

// NewValidator builds a Validator over auth's records, found through finder.
//
// The case sensitivity of lookups is resolved once, here: from
// [WithCaseSensitive], else from the uniqueness declaration of finder or of
// auth's store (see [authentic.UniquenessReporter]).  When neither declares
// it, lookups are case-insensitive and a warning is logged.
func NewValidator(auth *authentic.Authenticator, finder Finder, opts ...ValidatorOption) (*Validator, error) {
	v := &Validator{
		auth:   auth,
		finder: finder,
		field:  auth.Fields().LoginField(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.field == "" {
		return nil, ErrNoLoginField
	}
	if v.log == nil {
		v.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if !v.caseDeclared {
		v.resolveCaseSensitivity()
	}
	return v, nil
}

func (v *Validator) resolveCaseSensitivity() {
	for _, candidate := range []any{v.finder, v.auth.Store()} {
		if r, ok := candidate.(authentic.UniquenessReporter); ok {
			if sensitive, known := r.CaseSensitive(v.field); known {
				v.caseSensitive = sensitive
				return
			}
		}
	}
	v.caseSensitive = false
	v.log.Warn("login uniqueness is not declared, looking logins up case-insensitively",
		"field", v.field)
}

// LoginField returns the field logins are looked up by.
func (v *Validator) LoginField() string { return v.field }

// CaseSensitive reports whether logins are looked up case-sensitively.
func (v *Validator) CaseSensitive() bool { return v.caseSensitive }

// Authenticator returns the password engine.
func (v *Validator) Authenticator() *authentic.Authenticator { return v.auth }

// Guard returns the brute-force guard, or nil.
func (v *Validator) Guard() *BruteForceGuard { return v.guard }

// Authenticate returns the record whose login and password match.
//
// Failed attempts return an [*AuthError].  Blank input is rejected before the
// store is consulted.  Any other error is a fault: a failing store, a
// misconfigured provider or a failing hook.
func (v *Validator) Authenticate(ctx context.Context, login, password string) (authentic.Entity, error) {
	if blank(login) {
		return nil, &AuthError{Kind: KindBlankCredential, Field: v.field, Message: MessageBlank}
	}
	if blank(password) {
		return nil, &AuthError{Kind: KindBlankCredential, Field: PasswordField, Message: MessageBlank}
	}

	now := v.now()
	if v.guard != nil && !v.guard.Allow(login, now) {
		return nil, &AuthError{Kind: KindLockedOut, Field: v.field, Message: MessageThrottled}
	}

	rec, err := v.finder.FindByLogin(ctx, v.field, login, v.caseSensitive)
	if errors.Is(err, authentic.ErrRecordNotFound) {
		return nil, &AuthError{Kind: KindNotFound, Field: v.field, Message: MessageNotValid}
	}
	if err != nil {
		return nil, fmt.Errorf("session: find %s: %w", v.field, err)
	}

	if v.guard != nil {
		v.guard.ResetExpired(rec, now)
		if v.guard.Banned(rec, now) {
			return nil, &AuthError{Kind: KindLockedOut, Field: v.field, Message: MessageLockedOut, Record: rec}
		}
	}

	ok, err := v.auth.Verify(ctx, rec, password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &AuthError{Kind: KindInvalidCredential, Field: PasswordField, Message: MessageNotValid, Record: rec}
	}
	return rec, nil
}

func blank(s string) bool { return strings.TrimSpace(s) == "" }
