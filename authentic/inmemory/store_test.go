// Tests in hashing, encryption and authentic use the standard testing package.
// The stores, session, config and the CLI use testify assert and require.
package inmemory_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hasbyte1/go-authentic/authentic"
	"github.com/hasbyte1/go-authentic/authentic/inmemory"
)

func insert(t *testing.T, s *inmemory.Store, values map[string]string) *authentic.Model {
	t.Helper()
	m := authentic.NewModel(values)
	require.NoError(t, s.Save(context.Background(), m, authentic.SaveOptions{}))
	return m
}

func TestStore_InsertAssignsIDAndVersion(t *testing.T) {
	s := inmemory.New()
	m := insert(t, s, map[string]string{"login": "ben"})

	_, err := uuid.Parse(m.ID())
	require.NoError(t, err, "IDs are UUIDs")
	assert.Equal(t, int64(1), m.Version())
	assert.False(t, m.Changed("login"))
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 1, s.Saves())

	found, err := s.Find(context.Background(), m.ID())
	require.NoError(t, err)
	assert.Equal(t, "ben", found.Get("login"))
}

func TestStore_OptimisticVersioning(t *testing.T) {
	ctx := context.Background()
	s := inmemory.New()
	id := insert(t, s, map[string]string{"login": "ben"}).ID()

	a, err := s.Find(ctx, id)
	require.NoError(t, err)
	b, err := s.Find(ctx, id)
	require.NoError(t, err)

	a.Set("login", "ben2")
	require.NoError(t, s.Save(ctx, a, authentic.SaveOptions{}))
	assert.Equal(t, int64(2), a.Version())

	b.Set("login", "ben3")
	err = s.Save(ctx, b, authentic.SaveOptions{})
	require.ErrorIs(t, err, authentic.ErrConcurrentModification)
	assert.True(t, b.Changed("login"), "a rejected save must leave the entity dirty")

	stored, _ := s.Find(ctx, id)
	assert.Equal(t, "ben2", stored.Get("login"))

	require.NoError(t, s.Reload(ctx, b))
	assert.Equal(t, int64(2), b.Version())
	assert.Equal(t, "ben2", b.Get("login"))
	assert.False(t, b.Changed("login"))
}

func TestStore_MissingRecord(t *testing.T) {
	ctx := context.Background()
	s := inmemory.New()
	ghost := authentic.LoadModel("missing", 1, nil)

	assert.ErrorIs(t, s.Save(ctx, ghost, authentic.SaveOptions{}), authentic.ErrRecordNotFound)
	assert.ErrorIs(t, s.Reload(ctx, ghost), authentic.ErrRecordNotFound)
	_, err := s.Find(ctx, "missing")
	assert.ErrorIs(t, err, authentic.ErrRecordNotFound)
}

func TestStore_FindByLogin(t *testing.T) {
	ctx := context.Background()
	s := inmemory.New()
	insert(t, s, map[string]string{"login": "Ben"})

	_, err := s.FindByLogin(ctx, "login", "ben", true)
	assert.ErrorIs(t, err, authentic.ErrRecordNotFound)

	e, err := s.FindByLogin(ctx, "login", "ben", false)
	require.NoError(t, err)
	assert.Equal(t, "Ben", e.Get("login"))

	e, err = s.FindBy(ctx, "login", "Ben")
	require.NoError(t, err)
	assert.Equal(t, "Ben", e.Get("login"))

	_, err = s.FindByLogin(ctx, "login", "", false)
	assert.ErrorIs(t, err, authentic.ErrRecordNotFound)
}

func TestStore_UniqueField(t *testing.T) {
	ctx := context.Background()
	s := inmemory.New(inmemory.WithUniqueField("login", false))
	insert(t, s, map[string]string{"login": "ben"})

	dup := authentic.NewModel(map[string]string{"login": "BEN"})
	err := s.Save(ctx, dup, authentic.SaveOptions{})
	var de *inmemory.DuplicateError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "login", de.Field)

	require.NoError(t, s.Save(ctx, dup, authentic.SaveOptions{SkipValidation: true}),
		"validators are skipped on request")

	sensitive, known := s.CaseSensitive("login")
	assert.True(t, known)
	assert.False(t, sensitive)
	_, known = s.CaseSensitive("email")
	assert.False(t, known)
}

func TestStore_Validator(t *testing.T) {
	ctx := context.Background()
	errShort := errors.New("login too short")
	s := inmemory.New(inmemory.WithValidator(func(_ context.Context, _ *inmemory.Store, e authentic.Entity) error {
		if len(e.Get("login")) < 3 {
			return errShort
		}
		return nil
	}))

	err := s.Save(ctx, authentic.NewModel(map[string]string{"login": "be"}), authentic.SaveOptions{})
	assert.ErrorIs(t, err, errShort)
	assert.Equal(t, 0, s.Len())
}

func TestStore_ObserversRespectSessionMaintenance(t *testing.T) {
	ctx := context.Background()
	s := inmemory.New()
	var calls int
	s.Observe(func(context.Context, authentic.Entity) { calls++ })

	m := insert(t, s, map[string]string{"login": "ben"})
	assert.Equal(t, 1, calls)

	m.Set("crypted_password", "x")
	require.NoError(t, s.Save(ctx, m, authentic.SaveOptions{SkipSessionMaintenance: true}))
	assert.Equal(t, 1, calls, "observers must not run when session maintenance is skipped")
}

func TestStore_Columns(t *testing.T) {
	s := inmemory.New()
	insert(t, s, map[string]string{"login": "ben", "crypted_password": "x"})
	insert(t, s, map[string]string{"email": "a@example.com"})
	assert.Equal(t, []string{"crypted_password", "email", "login"}, s.Columns())
}

func TestStore_ConcurrentSavesOfOneVersion(t *testing.T) {
	ctx := context.Background()
	s := inmemory.New()
	id := insert(t, s, map[string]string{"login": "ben"}).ID()

	const n = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for range n {
		m, err := s.Find(ctx, id)
		require.NoError(t, err)
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Set("login_count", "1")
			if s.Save(ctx, m, authentic.SaveOptions{}) == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded, "exactly one writer of a version may win")
}
