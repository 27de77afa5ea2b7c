// Package session authenticates login attempts against records protected by
// an [authentic.Authenticator].
//
// A [Validator] turns a login and password into a record or a typed
// [AuthError].  A [Manager] composes the validator with a [BruteForceGuard],
// an ordered hook dispatcher and a host-provided [Transport] into the
// per-request [Session] pipeline: persisting, validation, save and destroy.
//
// Nothing here knows about HTTP, cookies or request parameters; hosts adapt
// their transport to the [Transport] interface.
package session

import (
	"errors"
	"fmt"

	"github.com/hasbyte1/go-authentic/authentic"
)

var (
	// ErrBlankCredential matches an [AuthError] of kind [KindBlankCredential].
	ErrBlankCredential = errors.New("session: blank credential")

	// ErrNotFound matches an [AuthError] of kind [KindNotFound].
	ErrNotFound = errors.New("session: login not found")

	// ErrInvalidCredential matches an [AuthError] of kind [KindInvalidCredential].
	ErrInvalidCredential = errors.New("session: invalid credential")

	// ErrLockedOut matches an [AuthError] of kind [KindLockedOut].
	ErrLockedOut = errors.New("session: locked out")

	// ErrNoLoginField is returned by [NewValidator] when the field mapping has
	// neither a login nor an email field.
	ErrNoLoginField = errors.New("session: no login field")

	// ErrNoFailedLoginCountField is returned by [NewBruteForceGuard] when the
	// field mapping has no failed login count field.
	ErrNoFailedLoginCountField = errors.New("session: no failed login count field")

	// ErrNotLoggedIn is returned by [Session] methods that need an
	// authenticated record when there is none.
	ErrNotLoggedIn = errors.New("session: not logged in")
)

// Kind classifies an [AuthError].
type Kind int

const (
	// KindBlankCredential means the login or the password was blank.
	KindBlankCredential Kind = iota
	// KindNotFound means no record has the login.
	KindNotFound
	// KindInvalidCredential means the password did not verify.  Malformed
	// stored digests end up here too.
	KindInvalidCredential
	// KindLockedOut means the brute-force guard refused the attempt.
	KindLockedOut
)

func (k Kind) String() string {
	switch k {
	case KindBlankCredential:
		return "blank_credential"
	case KindNotFound:
		return "not_found"
	case KindInvalidCredential:
		return "invalid_credential"
	case KindLockedOut:
		return "locked_out"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindBlankCredential:
		return ErrBlankCredential
	case KindNotFound:
		return ErrNotFound
	case KindInvalidCredential:
		return ErrInvalidCredential
	case KindLockedOut:
		return ErrLockedOut
	default:
		return nil
	}
}

// Default messages.
const (
	MessageBlank       = "can not be blank"
	MessageNotValid    = "is not valid"
	MessageLockedOut   = "Consecutive failed logins limit exceeded, account is disabled."
	MessageThrottled   = "Too many login attempts, try again later."
	MessageGeneralized = "Login/Password combination is not valid"
)

// AuthError is the result of a failed login attempt.  It is an expected
// outcome, not a fault; compare it with [errors.Is] against the Err*
// sentinels or switch on Kind.
type AuthError struct {
	Kind Kind

	// Field is the record field the error is attached to: the login field or
	// "password".  Empty for generalized errors.
	Field string

	Message string

	// Record is the record the attempt was made against.  It is nil for
	// blank credentials and unknown logins.
	Record authentic.Entity
}

func (e *AuthError) Error() string {
	if e.Field == "" {
		return "session: " + e.Message
	}
	return fmt.Sprintf("session: %s %s", e.Field, e.Message)
}

// Is reports whether target is the sentinel of e's kind.
func (e *AuthError) Is(target error) bool {
	return target != nil && target == e.Kind.sentinel()
}

// Generalized folds [KindNotFound] and [KindInvalidCredential] into one
// field-less error so that a response does not reveal whether the login
// exists.  Other kinds are returned unchanged.
func (e *AuthError) Generalized() *AuthError {
	if e.Kind != KindNotFound && e.Kind != KindInvalidCredential {
		return e
	}
	return &AuthError{Kind: KindInvalidCredential, Message: MessageGeneralized}
}

// PasswordField is the field name password errors are attached to.
const PasswordField = "password"
