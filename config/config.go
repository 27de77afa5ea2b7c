// Package config loads the TOML configuration of an authentic deployment and
// turns it into the objects the other packages consume: a provider
// [hashing.Registry], an [authentic.Policy], an [authentic.Config], brute-force
// [session.GuardOptions] and a [slog.Logger].
//
// Values are resolved in order: [Default], the TOML file, then AUTHENTIC_*
// environment variables (see [Config.ApplyEnvOverrides]).
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"golang.org/x/time/rate"

	"github.com/hasbyte1/go-authentic/authentic"
	"github.com/hasbyte1/go-authentic/encryption"
	"github.com/hasbyte1/go-authentic/hashing"
	"github.com/hasbyte1/go-authentic/session"
)

// ──────────────────────────────────────────────────────────────────────────────
// Types
// ──────────────────────────────────────────────────────────────────────────────

// Duration is a time.Duration written as a Go duration string ("2h", "250ms").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Config is the root of the configuration file.
type Config struct {
	// LogLevel is one of debug, info, warn or error.
	LogLevel string `toml:"log_level"`
	// LogFormat is text or json.
	LogFormat string `toml:"log_format"`

	Database   DatabaseConfig   `toml:"database"`
	Password   PasswordConfig   `toml:"password"`
	Providers  ProvidersConfig  `toml:"providers"`
	Fields     FieldsConfig     `toml:"fields"`
	BruteForce BruteForceConfig `toml:"brute_force"`
}

// DatabaseConfig locates the SQLite record store.
type DatabaseConfig struct {
	Path               string `toml:"path"`
	Table              string `toml:"table"`
	CaseSensitiveLogin bool   `toml:"case_sensitive_login"`
}

// PasswordConfig selects the providers and the engine behaviour.
type PasswordConfig struct {
	// Current names the provider new digests are produced with.
	Current string `toml:"current"`
	// TransitionFrom names the legacy providers, in precedence order.
	TransitionFrom []string `toml:"transition_from"`

	ActLikeRestfulAuthentication        bool   `toml:"act_like_restful_authentication"`
	TransitionFromRestfulAuthentication bool   `toml:"transition_from_restful_authentication"`
	RestfulAuthSiteKey                  string `toml:"restful_auth_site_key"`
	CheckPasswordsAgainstDatabase       bool   `toml:"check_passwords_against_database"`
	IgnoreBlankPasswords                bool   `toml:"ignore_blank_passwords"`
}

// ProvidersConfig holds per-provider tunables.  The hex and binary variants
// of a hash family share one table.
type ProvidersConfig struct {
	Bcrypt   BcryptConfig  `toml:"bcrypt"`
	Argon2id Argon2Config  `toml:"argon2id"`
	Scrypt   ScryptConfig  `toml:"scrypt"`
	Sha1     StretchConfig `toml:"sha1"`
	MD5      StretchConfig `toml:"md5"`
	Sha256   StretchConfig `toml:"sha256"`
	Sha512   StretchConfig `toml:"sha512"`
	AES256   AESConfig     `toml:"aes256"`
}

// BcryptConfig tunes the bcrypt provider.
type BcryptConfig struct {
	Cost int `toml:"cost"`
}

// Argon2Config tunes the Argon2id provider.
type Argon2Config struct {
	Memory  uint32 `toml:"memory"`
	Time    uint32 `toml:"time"`
	Threads uint8  `toml:"threads"`
	KeyLen  uint32 `toml:"key_len"`
	SaltLen uint32 `toml:"salt_len"`
}

// ScryptConfig tunes the scrypt provider.  N, R and P pin the cost; leave
// them zero to calibrate from the budgets.
type ScryptConfig struct {
	KeyLen     int      `toml:"key_len"`
	SaltSize   int      `toml:"salt_size"`
	MaxTime    Duration `toml:"max_time"`
	MaxMem     int64    `toml:"max_mem"`
	MaxMemFrac float64  `toml:"max_mem_frac"`
	N          int      `toml:"n"`
	R          int      `toml:"r"`
	P          int      `toml:"p"`
}

// StretchConfig tunes a fixed-iteration provider.
type StretchConfig struct {
	Stretches int    `toml:"stretches"`
	JoinToken string `toml:"join_token"`
}

// AESConfig holds the key of the reversible provider.  Prefix base64 keys
// with "base64:"; anything else is used verbatim.
type AESConfig struct {
	Key string `toml:"key"`
}

// FieldsConfig overrides record field names.  An empty value keeps the
// default; "-" unmaps the field.
type FieldsConfig struct {
	Login             string `toml:"login"`
	Email             string `toml:"email"`
	CryptedPassword   string `toml:"crypted_password"`
	PasswordSalt      string `toml:"password_salt"`
	PersistenceToken  string `toml:"persistence_token"`
	FailedLoginCount  string `toml:"failed_login_count"`
	LastFailedLoginAt string `toml:"last_failed_login_at"`
	LoginCount        string `toml:"login_count"`
	LastLoginAt       string `toml:"last_login_at"`
	CurrentLoginAt    string `toml:"current_login_at"`
	LastLoginIP       string `toml:"last_login_ip"`
	CurrentLoginIP    string `toml:"current_login_ip"`
}

// BruteForceConfig configures the brute-force guard.
type BruteForceConfig struct {
	Enabled                      bool     `toml:"enabled"`
	ConsecutiveFailedLoginsLimit int      `toml:"consecutive_failed_logins_limit"`
	FailedLoginBanFor            Duration `toml:"failed_login_ban_for"`
	// AttemptsPerMinute throttles attempts per login.  Zero disables it.
	AttemptsPerMinute float64 `toml:"attempts_per_minute"`
	AttemptBurst      int     `toml:"attempt_burst"`
}

// ──────────────────────────────────────────────────────────────────────────────
// Defaults and loading
// ──────────────────────────────────────────────────────────────────────────────

// Default returns the built-in configuration: bcrypt as the current provider,
// no legacy providers and brute-force protection enabled.
func Default() *Config {
	sha1 := hashing.DefaultSha1Options()
	md5 := hashing.DefaultMD5Options()
	sha2 := hashing.DefaultSha2Options()
	argon := hashing.DefaultArgon2Options()
	scrypt := hashing.DefaultScryptOptions()
	guard := session.DefaultGuardOptions()

	return &Config{
		LogLevel:  "info",
		LogFormat: "text",
		Database: DatabaseConfig{
			Path:  "authentic.db",
			Table: "users",
		},
		Password: PasswordConfig{
			Current:                       string(hashing.ProviderBcrypt),
			CheckPasswordsAgainstDatabase: true,
			IgnoreBlankPasswords:          true,
		},
		Providers: ProvidersConfig{
			Bcrypt: BcryptConfig{Cost: hashing.DefaultBcryptCost},
			Argon2id: Argon2Config{
				Memory: argon.Memory, Time: argon.Time, Threads: argon.Threads,
				KeyLen: argon.KeyLen, SaltLen: argon.SaltLen,
			},
			Scrypt: ScryptConfig{
				KeyLen: scrypt.KeyLen, SaltSize: scrypt.SaltSize,
				MaxTime: Duration{scrypt.MaxTime}, MaxMem: scrypt.MaxMem, MaxMemFrac: scrypt.MaxMemFrac,
			},
			Sha1:   StretchConfig{Stretches: sha1.Stretches, JoinToken: sha1.JoinToken},
			MD5:    StretchConfig{Stretches: md5.Stretches},
			Sha256: StretchConfig{Stretches: sha2.Stretches},
			Sha512: StretchConfig{Stretches: sha2.Stretches},
		},
		BruteForce: BruteForceConfig{
			Enabled:                      true,
			ConsecutiveFailedLoginsLimit: guard.ConsecutiveFailedLoginsLimit,
			FailedLoginBanFor:            Duration{guard.FailedLoginBanFor},
		},
	}
}

// Load reads the TOML file at path over [Default], applies environment
// overrides and validates the result.  Unknown keys are an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Encode writes c as TOML.
func (c *Config) Encode(w io.Writer) error {
	return toml.NewEncoder(w).Encode(c)
}

// ApplyEnvOverrides applies environment variables on top of the file:
//
//   - AUTHENTIC_DB_PATH: database.path
//   - AUTHENTIC_LOG_LEVEL: log_level
//   - AUTHENTIC_CURRENT_PROVIDER: password.current
//   - AUTHENTIC_TRANSITION_FROM: password.transition_from, comma separated
//   - AUTHENTIC_SITE_KEY: password.restful_auth_site_key
//   - AUTHENTIC_AES_KEY: providers.aes256.key
//   - AUTHENTIC_BCRYPT_COST: providers.bcrypt.cost
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("AUTHENTIC_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("AUTHENTIC_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("AUTHENTIC_CURRENT_PROVIDER"); v != "" {
		c.Password.Current = v
	}
	if v, ok := os.LookupEnv("AUTHENTIC_TRANSITION_FROM"); ok {
		c.Password.TransitionFrom = nil
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				c.Password.TransitionFrom = append(c.Password.TransitionFrom, name)
			}
		}
	}
	if v, ok := os.LookupEnv("AUTHENTIC_SITE_KEY"); ok {
		c.Password.RestfulAuthSiteKey = v
	}
	if v := os.Getenv("AUTHENTIC_AES_KEY"); v != "" {
		c.Providers.AES256.Key = v
	}
	if v := os.Getenv("AUTHENTIC_BCRYPT_COST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Providers.Bcrypt.Cost = n
		}
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Validation
// ──────────────────────────────────────────────────────────────────────────────

// ValidationError describes one invalid setting.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return "config: " + strings.Join(msgs, "; ")
}

// Validate reports every invalid setting at once as [ValidateErrors].
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		add("log_level", "invalid level %q, must be one of: debug, info, warn, error", c.LogLevel)
	}
	if f := strings.ToLower(c.LogFormat); f != "text" && f != "json" {
		add("log_format", "invalid format %q, must be text or json", c.LogFormat)
	}
	if c.Database.Path == "" {
		add("database.path", "must not be empty")
	}

	reg, err := c.Registry()
	if err != nil {
		add("providers", "%v", err)
	} else {
		if !reg.Has(hashing.Name(c.Password.Current)) {
			add("password.current", "unknown provider %q, must be one of: %v", c.Password.Current, reg.Names())
		}
		seen := map[string]bool{c.Password.Current: true}
		for _, name := range c.Password.TransitionFrom {
			switch {
			case !reg.Has(hashing.Name(name)):
				add("password.transition_from", "unknown provider %q", name)
			case seen[name]:
				add("password.transition_from", "provider %q listed twice or also current", name)
			}
			seen[name] = true
		}
	}
	// A missing aes256 key is not an error here: the provider reports
	// ErrProviderMisconfigured when a digest is first checked against it.
	if k := c.Providers.AES256.Key; k != "" {
		if key, err := encryption.ParseKey(k); err == nil && len(key) != encryption.KeySize {
			add("providers.aes256.key", "must be %d bytes, got %d", encryption.KeySize, len(key))
		}
	}

	if c.Fields.CryptedPassword == "-" {
		add("fields.crypted_password", "cannot be unmapped")
	}
	if c.BruteForce.ConsecutiveFailedLoginsLimit < 0 {
		add("brute_force.consecutive_failed_logins_limit", "must be >= 0, got %d", c.BruteForce.ConsecutiveFailedLoginsLimit)
	}
	if c.BruteForce.FailedLoginBanFor.Duration < 0 {
		add("brute_force.failed_login_ban_for", "must not be negative")
	}
	if c.BruteForce.AttemptsPerMinute < 0 {
		add("brute_force.attempts_per_minute", "must be >= 0")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (c *Config) usesProvider(name hashing.Name) bool {
	return c.Password.Current == string(name) || slices.Contains(c.Password.TransitionFrom, string(name))
}

// ──────────────────────────────────────────────────────────────────────────────
// Builders
// ──────────────────────────────────────────────────────────────────────────────

// Registry builds every provider from the configured tunables.  Without a key
// the aes256 provider is registered unconfigured and fails on use.
func (c *Config) Registry() (*hashing.Registry, error) {
	p := c.Providers

	var key []byte
	if p.AES256.Key != "" {
		k, err := encryption.ParseKey(p.AES256.Key)
		if err != nil {
			return nil, err
		}
		key = k
	}

	var (
		providers []hashing.Provider
		errs      []error
	)
	keep := func(prov hashing.Provider, err error) {
		if err != nil {
			errs = append(errs, err)
			return
		}
		providers = append(providers, prov)
	}
	stretch := func(s StretchConfig) hashing.StretchOptions {
		return hashing.StretchOptions{Stretches: s.Stretches, JoinToken: s.JoinToken}
	}

	keep(hashing.NewBcrypt(hashing.BcryptOptions{Cost: p.Bcrypt.Cost}))
	keep(hashing.NewArgon2id(hashing.Argon2Options{
		Memory: p.Argon2id.Memory, Time: p.Argon2id.Time, Threads: p.Argon2id.Threads,
		KeyLen: p.Argon2id.KeyLen, SaltLen: p.Argon2id.SaltLen,
	}))
	keep(hashing.NewScrypt(hashing.ScryptOptions{
		KeyLen: p.Scrypt.KeyLen, SaltSize: p.Scrypt.SaltSize,
		MaxTime: p.Scrypt.MaxTime.Duration, MaxMem: p.Scrypt.MaxMem, MaxMemFrac: p.Scrypt.MaxMemFrac,
		N: p.Scrypt.N, R: p.Scrypt.R, P: p.Scrypt.P,
	}))
	keep(hashing.NewSha1(stretch(p.Sha1)))
	keep(hashing.NewMD5(stretch(p.MD5)))
	keep(hashing.NewMD5V2(stretch(p.MD5)))
	keep(hashing.NewSha256(stretch(p.Sha256)))
	keep(hashing.NewSha256V2(stretch(p.Sha256)))
	keep(hashing.NewSha512(stretch(p.Sha512)))
	keep(hashing.NewSha512V2(stretch(p.Sha512)))
	keep(hashing.NewAES256(key), nil)
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	reg := hashing.NewRegistry()
	for _, prov := range providers {
		if err := reg.Register(prov); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// Policy resolves the configured provider names against reg.
func (c *Config) Policy(reg *hashing.Registry) (*authentic.Policy, error) {
	current, err := reg.Provider(hashing.Name(c.Password.Current))
	if err != nil {
		return nil, err
	}
	names := make([]hashing.Name, len(c.Password.TransitionFrom))
	for i, n := range c.Password.TransitionFrom {
		names[i] = hashing.Name(n)
	}
	legacy, err := reg.Providers(names...)
	if err != nil {
		return nil, err
	}
	return authentic.NewPolicy(current, legacy...)
}

// FieldMapping returns the default field mapping with the configured
// overrides applied.
func (c *Config) FieldMapping() authentic.FieldMapping {
	m := authentic.DefaultFieldMapping()
	f := c.Fields
	for _, o := range []struct {
		dst *string
		v   string
	}{
		{&m.Login, f.Login}, {&m.Email, f.Email},
		{&m.CryptedPassword, f.CryptedPassword}, {&m.PasswordSalt, f.PasswordSalt},
		{&m.PersistenceToken, f.PersistenceToken}, {&m.FailedLoginCount, f.FailedLoginCount},
		{&m.LastFailedLoginAt, f.LastFailedLoginAt}, {&m.LoginCount, f.LoginCount},
		{&m.LastLoginAt, f.LastLoginAt}, {&m.CurrentLoginAt, f.CurrentLoginAt},
		{&m.LastLoginIP, f.LastLoginIP}, {&m.CurrentLoginIP, f.CurrentLoginIP},
	} {
		switch o.v {
		case "":
		case "-":
			*o.dst = ""
		default:
			*o.dst = o.v
		}
	}
	return m
}

// AuthenticatorConfig returns the engine configuration, logging to log.  It
// warns on log when aes256 is in the policy without a key.
func (c *Config) AuthenticatorConfig(log *slog.Logger) authentic.Config {
	if log != nil && c.Providers.AES256.Key == "" && c.usesProvider(hashing.ProviderAES256) {
		log.Warn("aes256 is in the password policy without a key; checks against it will fail",
			"setting", "providers.aes256.key")
	}
	return authentic.Config{
		Fields:                              c.FieldMapping(),
		ActLikeRestfulAuthentication:        c.Password.ActLikeRestfulAuthentication,
		TransitionFromRestfulAuthentication: c.Password.TransitionFromRestfulAuthentication,
		RestfulAuthSiteKey:                  c.Password.RestfulAuthSiteKey,
		CheckPasswordsAgainstDatabase:       c.Password.CheckPasswordsAgainstDatabase,
		IgnoreBlankPasswords:                c.Password.IgnoreBlankPasswords,
		Logger:                              log,
	}
}

// GuardOptions returns the brute-force settings, and false when brute-force
// protection is disabled.
func (c *Config) GuardOptions() (session.GuardOptions, bool) {
	b := c.BruteForce
	opts := session.GuardOptions{
		ConsecutiveFailedLoginsLimit: b.ConsecutiveFailedLoginsLimit,
		FailedLoginBanFor:            b.FailedLoginBanFor.Duration,
		AttemptBurst:                 b.AttemptBurst,
	}
	if b.AttemptsPerMinute > 0 {
		opts.AttemptRate = rate.Limit(b.AttemptsPerMinute / 60)
	}
	return opts, b.Enabled
}

// Logger returns a logger writing to w at the configured level and format.
func (c *Config) Logger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return nil, fmt.Errorf("config: log_level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(c.LogFormat) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("config: unknown log_format %q", c.LogFormat)
	}
}

// Clone returns a deep copy of c.
func (c *Config) Clone() *Config {
	out := *c
	out.Password.TransitionFrom = slices.Clone(c.Password.TransitionFrom)
	return &out
}
