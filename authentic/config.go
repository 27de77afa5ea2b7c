package authentic

import (
	"io"
	"log/slog"
)

// Config holds the per-record-type settings of an [Authenticator].
type Config struct {
	// Fields maps engine concepts to record fields.
	Fields FieldMapping

	// ActLikeRestfulAuthentication makes the current provider receive the
	// restful_authentication argument shape (site key, salt, secret, site
	// key).  Set it when a restful_authentication installation keeps its
	// digests and never migrates.
	ActLikeRestfulAuthentication bool

	// TransitionFromRestfulAuthentication feeds the restful_authentication
	// argument shape to legacy SHA-1 providers so that such digests verify and
	// migrate to the current provider.
	TransitionFromRestfulAuthentication bool

	// RestfulAuthSiteKey is the REST_AUTH_SITE_KEY of the restful_authentication
	// installation.  It is used even when empty.
	RestfulAuthSiteKey string

	// CheckPasswordsAgainstDatabase verifies against the last persisted digest
	// and salt instead of unsaved in-memory values.  Default: true.
	CheckPasswordsAgainstDatabase bool

	// IgnoreBlankPasswords turns setting a blank password into a no-op
	// instead of an error.  Default: true.
	IgnoreBlankPasswords bool

	// Logger receives transition and conflict messages.  Nil discards them.
	Logger *slog.Logger
}

// DefaultConfig returns a [Config] populated with the conventional defaults.
func DefaultConfig() Config {
	return Config{
		Fields:                        DefaultFieldMapping(),
		CheckPasswordsAgainstDatabase: true,
		IgnoreBlankPasswords:          true,
	}
}

func (c Config) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
