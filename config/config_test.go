// Tests in hashing, encryption and authentic use the standard testing package.
// The stores, session, config and the CLI use testify assert and require.
package config_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/hasbyte1/go-authentic/config"
	"github.com/hasbyte1/go-authentic/encryption"
	"github.com/hasbyte1/go-authentic/hashing"
)

const sample = `
log_level = "debug"
log_format = "json"

[database]
path = "/var/lib/authentic/users.db"
case_sensitive_login = true

[password]
current = "argon2id"
transition_from = ["bcrypt", "sha1"]
transition_from_restful_authentication = true
restful_auth_site_key = "sitekey"

[providers.sha1]
stretches = 1
join_token = "--"

[providers.argon2id]
memory = 8192
time = 1
threads = 1
key_len = 32
salt_len = 16

[fields]
login = "username"
email = "-"

[brute_force]
enabled = true
consecutive_failed_logins_limit = 5
failed_login_ban_for = "15m"
attempts_per_minute = 30
attempt_burst = 3
`

func writeFile(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "authentic.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := config.Default()
	require.NoError(t, cfg.Validate())

	reg, err := cfg.Registry()
	require.NoError(t, err)
	assert.Len(t, reg.Names(), 11)

	policy, err := cfg.Policy(reg)
	require.NoError(t, err)
	assert.Equal(t, []hashing.Name{hashing.ProviderBcrypt}, policy.Names())

	guard, enabled := cfg.GuardOptions()
	assert.True(t, enabled)
	assert.Equal(t, 50, guard.ConsecutiveFailedLoginsLimit)
	assert.Equal(t, 2*time.Hour, guard.FailedLoginBanFor)
}

func TestLoad(t *testing.T) {
	cfg, err := config.Load(writeFile(t, t.TempDir(), sample))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/authentic/users.db", cfg.Database.Path)
	assert.Equal(t, "users", cfg.Database.Table, "unset keys keep their defaults")
	assert.True(t, cfg.Database.CaseSensitiveLogin)

	reg, err := cfg.Registry()
	require.NoError(t, err)
	policy, err := cfg.Policy(reg)
	require.NoError(t, err)
	assert.Equal(t, []hashing.Name{hashing.ProviderArgon2id, hashing.ProviderBcrypt, hashing.ProviderSha1}, policy.Names())

	sha1, err := reg.Provider(hashing.ProviderSha1)
	require.NoError(t, err)
	assert.Equal(t, 1, sha1.(*hashing.Sha1Provider).Options().Stretches)

	ac := cfg.AuthenticatorConfig(nil)
	assert.Equal(t, "username", ac.Fields.Login)
	assert.Empty(t, ac.Fields.Email)
	assert.Equal(t, "crypted_password", ac.Fields.CryptedPassword)
	assert.True(t, ac.TransitionFromRestfulAuthentication)
	assert.Equal(t, "sitekey", ac.RestfulAuthSiteKey)
	assert.True(t, ac.CheckPasswordsAgainstDatabase)

	guard, enabled := cfg.GuardOptions()
	assert.True(t, enabled)
	assert.Equal(t, 5, guard.ConsecutiveFailedLoginsLimit)
	assert.Equal(t, 15*time.Minute, guard.FailedLoginBanFor)
	assert.Equal(t, rate.Limit(0.5), guard.AttemptRate)
	assert.Equal(t, 3, guard.AttemptBurst)
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := config.Load(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)

	_, err = config.Load(writeFile(t, dir, "[password]\ncurrnet = \"bcrypt\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "password.currnet")

	_, err = config.Load(writeFile(t, dir, "[password]\ncurrent = \"rot13\"\n"))
	var verrs config.ValidateErrors
	require.ErrorAs(t, err, &verrs)
	assert.Equal(t, "password.current", verrs[0].Field)
}

func TestEncode_RoundTrip(t *testing.T) {
	cfg := config.Default()
	cfg.Password.TransitionFrom = []string{"md5"}
	cfg.BruteForce.FailedLoginBanFor.Duration = 90 * time.Second

	var buf bytes.Buffer
	require.NoError(t, cfg.Encode(&buf))
	assert.Contains(t, buf.String(), `failed_login_ban_for = "1m30s"`)

	loaded, err := config.Load(writeFile(t, t.TempDir(), buf.String()))
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestApplyEnvOverrides(t *testing.T) {
	key, err := encryption.GenerateKey()
	require.NoError(t, err)

	t.Setenv("AUTHENTIC_DB_PATH", "/tmp/other.db")
	t.Setenv("AUTHENTIC_LOG_LEVEL", "warn")
	t.Setenv("AUTHENTIC_CURRENT_PROVIDER", "scrypt")
	t.Setenv("AUTHENTIC_TRANSITION_FROM", " aes256 , md5 ,")
	t.Setenv("AUTHENTIC_SITE_KEY", "")
	t.Setenv("AUTHENTIC_AES_KEY", encryption.EncodeKey(key))
	t.Setenv("AUTHENTIC_BCRYPT_COST", "12")

	cfg := config.Default()
	cfg.Password.RestfulAuthSiteKey = "from-file"
	cfg.ApplyEnvOverrides()

	assert.Equal(t, "/tmp/other.db", cfg.Database.Path)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "scrypt", cfg.Password.Current)
	assert.Equal(t, []string{"aes256", "md5"}, cfg.Password.TransitionFrom)
	assert.Empty(t, cfg.Password.RestfulAuthSiteKey, "a set but empty site key overrides")
	assert.Equal(t, 12, cfg.Providers.Bcrypt.Cost)
	require.NoError(t, cfg.Validate())

	reg, err := cfg.Registry()
	require.NoError(t, err)
	aes, err := reg.Provider(hashing.ProviderAES256)
	require.NoError(t, err)
	digest, err := aes.Encrypt("secret")
	require.NoError(t, err)
	ok, err := aes.Matches(digest, "secret")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestValidate(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = "loud"
	cfg.LogFormat = "xml"
	cfg.Database.Path = ""
	cfg.Password.TransitionFrom = []string{"bcrypt", "aes256", "rot13"}
	cfg.Fields.CryptedPassword = "-"
	cfg.BruteForce.ConsecutiveFailedLoginsLimit = -1

	err := cfg.Validate()
	var verrs config.ValidateErrors
	require.ErrorAs(t, err, &verrs)

	fields := make([]string, len(verrs))
	for i, e := range verrs {
		fields[i] = e.Field
	}
	assert.Equal(t, []string{
		"log_level",
		"log_format",
		"database.path",
		"password.transition_from",
		"password.transition_from",
		"fields.crypted_password",
		"brute_force.consecutive_failed_logins_limit",
	}, fields)
	assert.True(t, strings.HasPrefix(err.Error(), "config: log_level: "))
}

func TestValidate_ProviderTunables(t *testing.T) {
	cfg := config.Default()
	cfg.Providers.Bcrypt.Cost = 99
	cfg.Providers.Sha1.Stretches = 0

	_, err := cfg.Registry()
	assert.ErrorIs(t, err, hashing.ErrInvalidOption)

	var verrs config.ValidateErrors
	require.ErrorAs(t, cfg.Validate(), &verrs)
	require.Len(t, verrs, 1)
	assert.Equal(t, "providers", verrs[0].Field)
	assert.Contains(t, verrs[0].Message, "bcrypt cost 99")
	assert.Contains(t, verrs[0].Message, "sha1 stretches")

	cfg = config.Default()
	cfg.Providers.AES256.Key = "too short"
	require.ErrorAs(t, cfg.Validate(), &verrs)
	assert.Equal(t, "providers.aes256.key", verrs[0].Field)
}

func TestValidate_AES256WithoutKey(t *testing.T) {
	cfg := config.Default()
	cfg.Password.TransitionFrom = []string{"aes256"}
	require.NoError(t, cfg.Validate(), "a missing key only fails when used")

	var buf bytes.Buffer
	log, err := cfg.Logger(&buf)
	require.NoError(t, err)
	cfg.AuthenticatorConfig(log)
	assert.Contains(t, buf.String(), "providers.aes256.key")

	reg, err := cfg.Registry()
	require.NoError(t, err)
	aes, err := reg.Provider(hashing.ProviderAES256)
	require.NoError(t, err)
	_, err = aes.Matches("GzHja9cM2hgzh7yVE/swew==", "mypass")
	assert.ErrorIs(t, err, hashing.ErrProviderMisconfigured)
}

func TestLogger(t *testing.T) {
	cfg := config.Default()
	cfg.LogFormat = "json"
	cfg.LogLevel = "warn"

	var buf bytes.Buffer
	log, err := cfg.Logger(&buf)
	require.NoError(t, err)
	log.Info("hidden")
	log.Warn("shown", "provider", "sha1")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"provider":"sha1"`)

	cfg.LogFormat = "xml"
	_, err = cfg.Logger(&buf)
	assert.Error(t, err)
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "log_level = \"info\"\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type result struct {
		cfg *config.Config
		err error
	}
	results := make(chan result, 8)
	done := make(chan error, 1)
	go func() {
		done <- config.Watch(ctx, path, func(c *config.Config, err error) { results <- result{c, err} })
	}()

	// Rewrite until the watcher, which starts asynchronously, picks it up.
	deadline := time.After(5 * time.Second)
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case r := <-results:
			require.NoError(t, r.err)
			assert.Equal(t, "debug", r.cfg.LogLevel)
			cancel()
			assert.NoError(t, <-done)
			return
		case <-tick.C:
			require.NoError(t, os.WriteFile(path, []byte("log_level = \"debug\"\n"), 0o600))
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}
}
