// Tests in hashing, encryption and authentic use the standard testing package.
// The stores, session, config and the CLI use testify assert and require.
package sqlstore_test

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/hasbyte1/go-authentic/authentic"
	"github.com/hasbyte1/go-authentic/authentic/sqlstore"
	"github.com/hasbyte1/go-authentic/hashing"
)

func openStore(t *testing.T, opts sqlstore.Options) *sqlstore.Store {
	t.Helper()
	if opts.Path == "" {
		opts.Path = filepath.Join(t.TempDir(), "db", "users.db")
	}
	s, err := sqlstore.Open(context.Background(), opts)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_CreatesConventionalColumns(t *testing.T) {
	s := openStore(t, sqlstore.Options{})
	cols := s.Columns()
	for _, c := range []string{"login", "email", "crypted_password", "password_salt", "persistence_token", "failed_login_count"} {
		assert.Contains(t, cols, c)
	}
	assert.NotContains(t, cols, "id")
	assert.NotContains(t, cols, "version")

	m, err := authentic.ResolveFieldMapping(cols)
	require.NoError(t, err)
	assert.Equal(t, authentic.DefaultFieldMapping(), m)
}

func TestOpen_ReopensExistingTable(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "users.db")
	s := openStore(t, sqlstore.Options{Path: path})
	m := authentic.NewModel(map[string]string{"login": "ben"})
	require.NoError(t, s.Save(ctx, m, authentic.SaveOptions{}))
	require.NoError(t, s.Close())

	again := openStore(t, sqlstore.Options{Path: path})
	found, err := again.Find(ctx, m.ID())
	require.NoError(t, err)
	assert.Equal(t, "ben", found.Get("login"))
}

func TestStore_SaveAndConflict(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, sqlstore.Options{})

	m := authentic.NewModel(map[string]string{"login": "ben", "crypted_password": "x"})
	require.NoError(t, s.Save(ctx, m, authentic.SaveOptions{}))
	assert.NotEmpty(t, m.ID())
	assert.Equal(t, int64(1), m.Version())

	a, err := s.Find(ctx, m.ID())
	require.NoError(t, err)
	b, err := s.Find(ctx, m.ID())
	require.NoError(t, err)

	a.Set("crypted_password", "y")
	a.Set("password_salt", "salt")
	require.NoError(t, s.Save(ctx, a, authentic.SaveOptions{}))
	assert.Equal(t, int64(2), a.Version())

	b.Set("crypted_password", "z")
	require.ErrorIs(t, s.Save(ctx, b, authentic.SaveOptions{}), authentic.ErrConcurrentModification)

	require.NoError(t, s.Reload(ctx, b))
	assert.Equal(t, "y", b.Get("crypted_password"))
	assert.Equal(t, "salt", b.Get("password_salt"))
	assert.Equal(t, int64(2), b.Version())

	// Clearing a value stores NULL.
	b.Set("password_salt", "")
	require.NoError(t, s.Save(ctx, b, authentic.SaveOptions{}))
	reloaded, err := s.Find(ctx, m.ID())
	require.NoError(t, err)
	assert.Empty(t, reloaded.Get("password_salt"))

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStore_MissingAndUnknown(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, sqlstore.Options{})

	err := s.Save(ctx, authentic.LoadModel("nope", 1, map[string]string{"login": "x"}), authentic.SaveOptions{})
	assert.ErrorIs(t, err, authentic.ErrRecordNotFound)

	err = s.Save(ctx, authentic.NewModel(map[string]string{"shoe_size": "44"}), authentic.SaveOptions{})
	assert.ErrorIs(t, err, sqlstore.ErrUnknownField)

	_, err = s.FindByLogin(ctx, "shoe_size", "44", false)
	assert.ErrorIs(t, err, sqlstore.ErrUnknownField)
}

func TestStore_LoginUniqueness(t *testing.T) {
	ctx := context.Background()

	insensitive := openStore(t, sqlstore.Options{})
	require.NoError(t, insensitive.Save(ctx, authentic.NewModel(map[string]string{"login": "Ben"}), authentic.SaveOptions{}))
	err := insensitive.Save(ctx, authentic.NewModel(map[string]string{"login": "ben"}), authentic.SaveOptions{})
	assert.ErrorIs(t, err, sqlstore.ErrDuplicate)
	var se *sqlite.Error
	require.ErrorAs(t, err, &se, "the driver error stays in the chain")
	assert.Equal(t, sqlite3.SQLITE_CONSTRAINT_UNIQUE, se.Code())

	// Records without a login never collide.
	require.NoError(t, insensitive.Save(ctx, authentic.NewModel(map[string]string{"email": "a@example.com"}), authentic.SaveOptions{}))
	require.NoError(t, insensitive.Save(ctx, authentic.NewModel(map[string]string{"email": "b@example.com"}), authentic.SaveOptions{}))

	sensitive, known := insensitive.CaseSensitive("login")
	assert.True(t, known)
	assert.False(t, sensitive)
	_, known = insensitive.CaseSensitive("email")
	assert.False(t, known)

	strict := openStore(t, sqlstore.Options{CaseSensitiveLogin: true})
	require.NoError(t, strict.Save(ctx, authentic.NewModel(map[string]string{"login": "Ben"}), authentic.SaveOptions{}))
	require.NoError(t, strict.Save(ctx, authentic.NewModel(map[string]string{"login": "ben"}), authentic.SaveOptions{}))
	sensitive, _ = strict.CaseSensitive("login")
	assert.True(t, sensitive)
}

func TestStore_FindByLogin(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, sqlstore.Options{CaseSensitiveLogin: true})
	require.NoError(t, s.Save(ctx, authentic.NewModel(map[string]string{"login": "Ben"}), authentic.SaveOptions{}))

	_, err := s.FindByLogin(ctx, "login", "ben", true)
	assert.ErrorIs(t, err, authentic.ErrRecordNotFound)

	e, err := s.FindByLogin(ctx, "login", "ben", false)
	require.NoError(t, err)
	assert.Equal(t, "Ben", e.Get("login"))

	_, err = s.FindByLogin(ctx, "login", "", false)
	assert.ErrorIs(t, err, authentic.ErrRecordNotFound)
}

func TestStore_ValidatorsAndObservers(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, sqlstore.Options{})
	s.AddValidator(func(_ context.Context, _ *sqlstore.Store, e authentic.Entity) error {
		if !strings.Contains(e.Get("email"), "@") {
			return assert.AnError
		}
		return nil
	})
	var observed int
	s.Observe(func(context.Context, authentic.Entity) { observed++ })

	bad := authentic.NewModel(map[string]string{"email": "nope"})
	assert.ErrorIs(t, s.Save(ctx, bad, authentic.SaveOptions{}), assert.AnError)
	require.NoError(t, s.Save(ctx, bad, authentic.SaveOptions{SkipValidation: true, SkipSessionMaintenance: true}))
	assert.Zero(t, observed)

	good := authentic.NewModel(map[string]string{"email": "a@example.com"})
	require.NoError(t, s.Save(ctx, good, authentic.SaveOptions{}))
	assert.Equal(t, 1, observed)
}

func TestStore_PersistsPasswordTransition(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, sqlstore.Options{})

	sha1, err := hashing.NewSha1(hashing.DefaultSha1Options())
	require.NoError(t, err)
	bc, err := hashing.NewBcrypt(hashing.BcryptOptions{Cost: bcrypt.MinCost})
	require.NoError(t, err)

	const salt = "7e3041ebc2fc05a40c60028e2c4901a81035d3cd"
	legacy, err := sha1.Encrypt("test", salt)
	require.NoError(t, err)
	m := authentic.NewModel(map[string]string{"login": "ben", "crypted_password": legacy, "password_salt": salt})
	require.NoError(t, s.Save(ctx, m, authentic.SaveOptions{}))

	auth, err := authentic.New(s, authentic.MustPolicy(bc, sha1), authentic.DefaultConfig())
	require.NoError(t, err)

	user, err := s.FindByLogin(ctx, "login", "BEN", false)
	require.NoError(t, err)
	ok, err := auth.Verify(ctx, user, "test")
	require.NoError(t, err)
	require.True(t, ok)

	stored, err := s.Find(ctx, m.ID())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(stored.Get("crypted_password"), "$2a$"))
	assert.Equal(t, int64(2), stored.Version())
}
