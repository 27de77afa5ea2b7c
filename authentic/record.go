package authentic

import (
	"context"
	"maps"
	"slices"
)

// Record is the field access the password engine needs.  Values are strings;
// an absent field and an empty value are the same thing.
type Record interface {
	// Get returns the in-memory value of field.
	Get(field string) string

	// Set changes the in-memory value of field.
	Set(field, value string)

	// Changed reports whether the in-memory value of field differs from the
	// last persisted value.
	Changed(field string) bool

	// Was returns the last persisted value of field.
	Was(field string) string
}

// Entity is a [Record] with identity and persistence state, as handled by a
// [Store].
type Entity interface {
	Record

	// ID returns the store-assigned identifier, or "" for a new record.
	ID() string

	// Version returns the optimistic-locking version the entity was loaded or
	// last saved at.
	Version() int64

	// Fields returns the names of every field with a value, in memory or
	// persisted, in lexical order.
	Fields() []string

	// Commit marks the in-memory values as persisted under id and version.
	// Stores call it after a successful save.
	Commit(id string, version int64)

	// Load replaces both the in-memory and the persisted values.  Stores call
	// it to reload an entity.
	Load(id string, version int64, values map[string]string)
}

// SaveOptions controls the side effects of [Store.Save].
type SaveOptions struct {
	// SkipValidation bypasses the store's record validators.
	SkipValidation bool

	// SkipSessionMaintenance bypasses save observers, such as the session
	// layer refreshing its persistence token.  Password transitions always
	// set it so that a login does not log the user in a second time.
	SkipSessionMaintenance bool
}

// bareSave is used for every write the engine performs on its own.
var bareSave = SaveOptions{SkipValidation: true, SkipSessionMaintenance: true}

// Store persists entities.
//
// Save must use optimistic concurrency: when e.Version() no longer matches the
// stored version it returns an error wrapping [ErrConcurrentModification] and
// leaves both the stored row and e untouched.
type Store interface {
	Save(ctx context.Context, e Entity, opts SaveOptions) error
}

// Reloader is implemented by stores that can refresh an entity from storage.
// The engine uses it to resolve a conflicting transition write.
type Reloader interface {
	Reload(ctx context.Context, e Entity) error
}

// UniquenessReporter is implemented by stores that know how a field's
// uniqueness is declared.  known is false when the store has no declaration
// for field.
type UniquenessReporter interface {
	CaseSensitive(field string) (sensitive, known bool)
}

// ──────────────────────────────────────────────────────────────────────────────
// Model
// ──────────────────────────────────────────────────────────────────────────────

// Model is a map-backed [Entity] with dirty tracking.
//
// The zero value is an empty, never-saved Model.  A Model is not safe for
// concurrent use; load one per request.
type Model struct {
	id        string
	version   int64
	values    map[string]string
	persisted map[string]string
}

// NewModel returns a new, never-saved Model holding values.
func NewModel(values map[string]string) *Model {
	return &Model{
		values:    maps.Clone(nonNil(values)),
		persisted: map[string]string{},
	}
}

// LoadModel returns a Model whose values are persisted under id and version.
func LoadModel(id string, version int64, values map[string]string) *Model {
	m := &Model{}
	m.Load(id, version, values)
	return m
}

// ID implements [Entity].
func (m *Model) ID() string { return m.id }

// Version implements [Entity].
func (m *Model) Version() int64 { return m.version }

// IsNew reports whether the model has never been saved.
func (m *Model) IsNew() bool { return m.id == "" }

// Get implements [Record].
func (m *Model) Get(field string) string { return m.values[field] }

// Set implements [Record].
func (m *Model) Set(field, value string) {
	if m.values == nil {
		m.values = map[string]string{}
	}
	m.values[field] = value
}

// Changed implements [Record].
func (m *Model) Changed(field string) bool { return m.values[field] != m.persisted[field] }

// Was implements [Record].
func (m *Model) Was(field string) string { return m.persisted[field] }

// Fields implements [Entity].
func (m *Model) Fields() []string {
	seen := make(map[string]struct{}, len(m.values))
	for k, v := range m.values {
		if v != "" {
			seen[k] = struct{}{}
		}
	}
	for k, v := range m.persisted {
		if v != "" {
			seen[k] = struct{}{}
		}
	}
	return slices.Sorted(maps.Keys(seen))
}

// ChangedFields returns the fields whose in-memory value differs from the
// persisted one, in lexical order.
func (m *Model) ChangedFields() []string {
	var out []string
	for _, f := range m.Fields() {
		if m.Changed(f) {
			out = append(out, f)
		}
	}
	return out
}

// Values returns a copy of the in-memory values.
func (m *Model) Values() map[string]string { return maps.Clone(m.values) }

// Commit implements [Entity].
func (m *Model) Commit(id string, version int64) {
	m.id = id
	m.version = version
	m.persisted = maps.Clone(m.values)
}

// Load implements [Entity].
func (m *Model) Load(id string, version int64, values map[string]string) {
	m.id = id
	m.version = version
	m.values = maps.Clone(nonNil(values))
	m.persisted = maps.Clone(m.values)
}

// Snapshot returns the non-empty values of e keyed by field.  Stores use it
// to serialise any Entity implementation.
func Snapshot(e Entity) map[string]string {
	fields := e.Fields()
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		if v := e.Get(f); v != "" {
			out[f] = v
		}
	}
	return out
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
