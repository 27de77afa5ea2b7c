package hashing

import "errors"

// Sentinel errors returned by hashing operations.
//
// Use [errors.Is] for comparisons:
//
//	ok, err := provider.Matches(digest, password, salt)
//	if errors.Is(err, hashing.ErrProviderMisconfigured) {
//	    // deployment defect: fail loudly
//	}
var (
	// ErrInvalidDigest is returned by the parsing helpers (and Info-style
	// inspection) when a digest string has an unrecognised format, missing
	// fields, or invalid encoding.  Matches never returns it; a malformed digest
	// simply does not match.
	ErrInvalidDigest = errors.New("hashing: invalid or unrecognised digest")

	// ErrInvalidOption is returned when a constructor is called with a
	// parameter value that falls outside the allowed range (e.g., a bcrypt
	// cost below 4 or a stretch count below 1).
	ErrInvalidOption = errors.New("hashing: invalid option value")

	// ErrProviderMisconfigured is returned at first use of a provider whose
	// required configuration is missing, such as the AES-256 provider without a
	// key.  It signals a deployment defect and must not be swallowed.
	ErrProviderMisconfigured = errors.New("hashing: provider misconfigured")

	// ErrProviderNotFound is returned by [Registry.Provider] when the requested
	// provider has not been registered.
	ErrProviderNotFound = errors.New("hashing: provider not found")

	// ErrEmptyName is returned by [Registry.Register] when the supplied
	// provider reports an empty name.
	ErrEmptyName = errors.New("hashing: provider name must not be empty")

	// ErrNilProvider is returned by [Registry.Register] when a nil [Provider]
	// is supplied.
	ErrNilProvider = errors.New("hashing: provider must not be nil")
)
