// Package inmemory provides a thread-safe in-memory [authentic.Store].
//
// It implements optimistic versioning, record validators and save observers
// the way a database-backed store would, and is intended for tests and
// prototyping.  Do not use it in production.
package inmemory

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/hasbyte1/go-authentic/authentic"
)

// Validator checks an entity before it is saved.  Validators are skipped when
// [authentic.SaveOptions.SkipValidation] is set.
type Validator func(ctx context.Context, s *Store, e authentic.Entity) error

// SaveObserver runs after a successful save.  Observers are skipped when
// [authentic.SaveOptions.SkipSessionMaintenance] is set.
type SaveObserver func(ctx context.Context, e authentic.Entity)

// Option is a functional option for configuring a [Store].
type Option func(*Store)

// WithValidator adds a record validator.  Validators run in the order added;
// the first error aborts the save.
func WithValidator(v Validator) Option {
	return func(s *Store) {
		s.validators = append(s.validators, v)
	}
}

// WithUniqueField declares field unique and adds a validator enforcing it.
// The declaration is reported through [Store.CaseSensitive].
func WithUniqueField(field string, caseSensitive bool) Option {
	return func(s *Store) {
		s.unique[field] = caseSensitive
		s.validators = append(s.validators, uniqueValidator(field, caseSensitive))
	}
}

type row struct {
	version int64
	values  map[string]string
}

// Store is a thread-safe in-memory implementation of [authentic.Store] and
// [authentic.Reloader].
type Store struct {
	mu         sync.RWMutex
	rows       map[string]*row // keyed by record ID
	validators []Validator
	unique     map[string]bool

	obsMu     sync.RWMutex
	observers []SaveObserver
	saves     int
}

// New creates an empty [Store].
func New(opts ...Option) *Store {
	s := &Store{
		rows:   make(map[string]*row),
		unique: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Observe registers a save observer.  It may be called after construction,
// which is how a session layer attaches itself to an existing store.
func (s *Store) Observe(o SaveObserver) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.observers = append(s.observers, o)
}

// Save implements [authentic.Store].  New entities get a UUID and version 1;
// existing ones must carry the stored version, which is then incremented.
func (s *Store) Save(ctx context.Context, e authentic.Entity, opts authentic.SaveOptions) error {
	if !opts.SkipValidation {
		for _, v := range s.validators {
			if err := v(ctx, s, e); err != nil {
				return err
			}
		}
	}

	values := authentic.Snapshot(e)
	s.mu.Lock()
	id, version := e.ID(), e.Version()
	if id == "" {
		id, version = uuid.NewString(), 1
		s.rows[id] = &row{version: version, values: values}
	} else {
		r, ok := s.rows[id]
		if !ok {
			s.mu.Unlock()
			return fmt.Errorf("%w: id %q", authentic.ErrRecordNotFound, id)
		}
		if r.version != version {
			s.mu.Unlock()
			return fmt.Errorf("%w: record %q is at version %d, saved from version %d",
				authentic.ErrConcurrentModification, id, r.version, version)
		}
		version++
		r.version, r.values = version, values
	}
	s.saves++
	s.mu.Unlock()

	e.Commit(id, version)

	if !opts.SkipSessionMaintenance {
		s.obsMu.RLock()
		obs := slices.Clone(s.observers)
		s.obsMu.RUnlock()
		for _, o := range obs {
			o(ctx, e)
		}
	}
	return nil
}

// Reload implements [authentic.Reloader].
func (s *Store) Reload(_ context.Context, e authentic.Entity) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rows[e.ID()]
	if !ok {
		return fmt.Errorf("%w: id %q", authentic.ErrRecordNotFound, e.ID())
	}
	e.Load(e.ID(), r.version, r.values)
	return nil
}

// Find returns the record with the given ID.
func (s *Store) Find(_ context.Context, id string) (*authentic.Model, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rows[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %q", authentic.ErrRecordNotFound, id)
	}
	return authentic.LoadModel(id, r.version, r.values), nil
}

// FindBy returns the first record whose field equals value exactly.
func (s *Store) FindBy(ctx context.Context, field, value string) (authentic.Entity, error) {
	return s.FindByLogin(ctx, field, value, true)
}

// FindByLogin returns the first record whose field equals value, comparing
// case-insensitively unless caseSensitive is set.  Blank values never match.
func (s *Store) FindByLogin(_ context.Context, field, value string, caseSensitive bool) (authentic.Entity, error) {
	if value == "" {
		return nil, authentic.ErrRecordNotFound
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, id := range slices.Sorted(maps.Keys(s.rows)) {
		r := s.rows[id]
		if equal(r.values[field], value, caseSensitive) {
			return authentic.LoadModel(id, r.version, r.values), nil
		}
	}
	return nil, fmt.Errorf("%w: %s %q", authentic.ErrRecordNotFound, field, value)
}

// CaseSensitive implements [authentic.UniquenessReporter].
func (s *Store) CaseSensitive(field string) (sensitive, known bool) {
	sensitive, known = s.unique[field]
	return sensitive, known
}

// Columns returns every field name present in any stored record.
func (s *Store) Columns() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	seen := map[string]struct{}{}
	for _, r := range s.rows {
		for k := range r.values {
			seen[k] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(seen))
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// Saves returns the number of successful saves, including inserts.
func (s *Store) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}

func uniqueValidator(field string, caseSensitive bool) Validator {
	return func(_ context.Context, s *Store, e authentic.Entity) error {
		value := e.Get(field)
		if value == "" {
			return nil
		}
		s.mu.RLock()
		defer s.mu.RUnlock()
		for id, r := range s.rows {
			if id != e.ID() && equal(r.values[field], value, caseSensitive) {
				return &DuplicateError{Field: field, Value: value}
			}
		}
		return nil
	}
}

func equal(a, b string, caseSensitive bool) bool {
	if caseSensitive {
		return a == b
	}
	return strings.EqualFold(a, b)
}

// DuplicateError is returned by the validator of [WithUniqueField].
type DuplicateError struct {
	Field string
	Value string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("authentic/inmemory: %s %q has already been taken", e.Field, e.Value)
}
