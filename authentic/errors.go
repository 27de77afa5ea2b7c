// Package authentic verifies passwords against a record's stored digest and
// lazily migrates that digest to the current crypto provider.
//
// It is storage-agnostic: records are reached through the [Record] and
// [Entity] interfaces and persisted through a [Store].  A thread-safe
// in-memory reference store lives in authentic/inmemory and a SQLite store in
// authentic/sqlstore.
//
// # Transition
//
// An [Authenticator] tries the providers of its [Policy] in order, the
// current provider first.  When the winning provider is a legacy one, or the
// current provider reports an outdated cost, the password is re-encrypted with
// the current provider and saved without validation or session maintenance.
// Migration is strictly lazy: a record moves to the current provider on its
// next successful login, never in bulk.
package authentic

import "errors"

var (
	// ErrNoCryptedPasswordField is returned by [ResolveFieldMapping] when none
	// of the known digest column names is present.
	ErrNoCryptedPasswordField = errors.New("authentic: no crypted password field")

	// ErrNoPersistenceTokenField is returned when a persistence token is
	// requested but the field mapping has no persistence token field.
	ErrNoPersistenceTokenField = errors.New("authentic: no persistence token field")

	// ErrNoStore is returned by [New] when the store is nil.
	ErrNoStore = errors.New("authentic: authenticator needs a store")

	// ErrNoProvider is returned by [NewPolicy] when the current provider is nil.
	ErrNoProvider = errors.New("authentic: policy needs a current provider")

	// ErrBlankPassword is returned by [Authenticator.SetPassword] for a blank
	// password when blank passwords are not ignored.
	ErrBlankPassword = errors.New("authentic: password is blank")

	// ErrConcurrentModification is returned by stores when the version of the
	// saved entity no longer matches the persisted version.
	ErrConcurrentModification = errors.New("authentic: concurrent modification")

	// ErrRecordNotFound is returned by stores when no record matches a lookup.
	ErrRecordNotFound = errors.New("authentic: record not found")

	// ErrUnknownStage is returned by [Hooks.On] and [Hooks.Run] for a stage the
	// dispatcher was not created with.
	ErrUnknownStage = errors.New("authentic: unknown hook stage")
)
