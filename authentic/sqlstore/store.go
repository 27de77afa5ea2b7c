// Package sqlstore is an [authentic.Store] backed by a SQLite table.
//
// Every record is a row keyed by a UUID with an integer version column used
// for optimistic locking.  Field values are stored as nullable TEXT; an empty
// value is written as NULL so that unique indexes ignore it.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"modernc.org/sqlite" // pure Go SQLite driver
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/hasbyte1/go-authentic/authentic"
)

// ──────────────────────────────────────────────────────────────────────────────
// Errors
// ──────────────────────────────────────────────────────────────────────────────

var (
	// ErrUnknownField is returned when a record carries a field the table has
	// no column for.
	ErrUnknownField = errors.New("sqlstore: unknown field")

	// ErrDuplicate is returned when a save violates a unique index.
	ErrDuplicate = errors.New("sqlstore: duplicate value")
)

// ──────────────────────────────────────────────────────────────────────────────
// Options
// ──────────────────────────────────────────────────────────────────────────────

// Options configures [Open].
type Options struct {
	// Path is the database file.  Its directory is created when missing.
	Path string

	// Table is the record table.  Default: "users".
	Table string

	// Fields selects the columns of a newly created table.  Default:
	// [authentic.DefaultFieldMapping].  An existing table is used as is.
	Fields *authentic.FieldMapping

	// CaseSensitiveLogin declares the unique login column case-sensitive.
	// By default it is created with COLLATE NOCASE.
	CaseSensitiveLogin bool
}

// Validator checks an entity before it is saved.
type Validator func(ctx context.Context, s *Store, e authentic.Entity) error

// SaveObserver runs after a successful save that did not skip session
// maintenance.
type SaveObserver func(ctx context.Context, e authentic.Entity)

// ──────────────────────────────────────────────────────────────────────────────
// Store
// ──────────────────────────────────────────────────────────────────────────────

// Store implements [authentic.Store], [authentic.Reloader] and
// [authentic.UniquenessReporter] on SQLite.
type Store struct {
	db      *sql.DB
	table   string
	columns []string // excluding id and version
	login   string
	loginCS bool

	mu         sync.RWMutex
	validators []Validator
	observers  []SaveObserver
}

// Open opens or creates the database at opts.Path and ensures the record
// table exists.
func Open(ctx context.Context, opts Options) (*Store, error) {
	if opts.Table == "" {
		opts.Table = "users"
	}
	fields := authentic.DefaultFieldMapping()
	if opts.Fields != nil {
		fields = *opts.Fields
	}

	if dir := filepath.Dir(opts.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", opts.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &Store{
		db:      db,
		table:   opts.Table,
		login:   fields.LoginField(),
		loginCS: opts.CaseSensitiveLogin,
	}
	if _, err := db.ExecContext(ctx, s.schema(fields)); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	if s.columns, err = s.tableColumns(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}
	return s, nil
}

func (s *Store) schema(m authentic.FieldMapping) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n\tid TEXT PRIMARY KEY,\n\tversion INTEGER NOT NULL", quote(s.table))
	cols := []string{
		m.Login, m.Email, m.CryptedPassword, m.PasswordSalt, m.PersistenceToken,
		m.FailedLoginCount, m.LastFailedLoginAt, m.LoginCount, m.LastLoginAt, m.CurrentLoginAt, m.LastLoginIP, m.CurrentLoginIP,
	}
	seen := map[string]bool{}
	for _, c := range cols {
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		fmt.Fprintf(&b, ",\n\t%s TEXT", quote(c))
		if c == s.login {
			b.WriteString(" UNIQUE")
			if !s.loginCS {
				b.WriteString(" COLLATE NOCASE")
			}
		}
	}
	b.WriteString("\n)")
	return b.String()
}

func (s *Store) tableColumns(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", s.table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cols []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		if name != "id" && name != "version" {
			cols = append(cols, name)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	slices.Sort(cols)
	return cols, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB { return s.db }

// Columns returns the field columns of the table in lexical order.
func (s *Store) Columns() []string { return slices.Clone(s.columns) }

// AddValidator adds a record validator.  Validators run in the order added
// and are skipped when [authentic.SaveOptions.SkipValidation] is set.
func (s *Store) AddValidator(v Validator) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validators = append(s.validators, v)
}

// Observe registers a save observer.
func (s *Store) Observe(o SaveObserver) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// CaseSensitive implements [authentic.UniquenessReporter] for the login
// column the table was opened with.
func (s *Store) CaseSensitive(field string) (sensitive, known bool) {
	if field == "" || field != s.login {
		return false, false
	}
	return s.loginCS, true
}

// Save implements [authentic.Store].
func (s *Store) Save(ctx context.Context, e authentic.Entity, opts authentic.SaveOptions) error {
	s.mu.RLock()
	validators := slices.Clone(s.validators)
	observers := slices.Clone(s.observers)
	s.mu.RUnlock()

	if !opts.SkipValidation {
		for _, v := range validators {
			if err := v(ctx, s, e); err != nil {
				return err
			}
		}
	}

	values := authentic.Snapshot(e)
	for f := range values {
		if !slices.Contains(s.columns, f) {
			return fmt.Errorf("%w: %q", ErrUnknownField, f)
		}
	}
	args := make([]any, len(s.columns))
	for i, c := range s.columns {
		if v, ok := values[c]; ok {
			args[i] = v
		}
	}

	var (
		id      = e.ID()
		version int64
		err     error
	)
	if id == "" {
		id, version = uuid.NewString(), 1
		err = s.insert(ctx, id, args)
	} else {
		version, err = s.update(ctx, id, e.Version(), args)
	}
	if err != nil {
		return err
	}

	e.Commit(id, version)
	if !opts.SkipSessionMaintenance {
		for _, o := range observers {
			o(ctx, e)
		}
	}
	return nil
}

func (s *Store) insert(ctx context.Context, id string, args []any) error {
	cols := append([]string{"id", "version"}, s.columns...)
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quote(c)
	}
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (?%s)",
		quote(s.table), strings.Join(quoted, ", "), strings.Repeat(", ?", len(cols)-1))
	_, err := s.db.ExecContext(ctx, query, append([]any{id, int64(1)}, args...)...)
	return s.writeError(err)
}

func (s *Store) update(ctx context.Context, id string, version int64, args []any) (int64, error) {
	sets := make([]string, 0, len(s.columns)+1)
	sets = append(sets, "version = version + 1")
	for _, c := range s.columns {
		sets = append(sets, quote(c)+" = ?")
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE id = ? AND version = ?", quote(s.table), strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, query, append(args, id, version)...)
	if err != nil {
		return 0, s.writeError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 1 {
		return version + 1, nil
	}

	var stored int64
	err = s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT version FROM %s WHERE id = ?", quote(s.table)), id).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: id %q", authentic.ErrRecordNotFound, id)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read version: %w", err)
	}
	return 0, fmt.Errorf("%w: record %q is at version %d, saved from version %d",
		authentic.ErrConcurrentModification, id, stored, version)
}

func (s *Store) writeError(err error) error {
	if err == nil {
		return nil
	}
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return fmt.Errorf("%w: %w", ErrDuplicate, err)
	}
	return fmt.Errorf("failed to save record: %w", err)
}

// Reload implements [authentic.Reloader].
func (s *Store) Reload(ctx context.Context, e authentic.Entity) error {
	m, err := s.Find(ctx, e.ID())
	if err != nil {
		return err
	}
	e.Load(m.ID(), m.Version(), m.Values())
	return nil
}

// Find returns the record with the given ID.
func (s *Store) Find(ctx context.Context, id string) (*authentic.Model, error) {
	return s.queryOne(ctx, "id = ?", id)
}

// FindByLogin returns the first record whose field equals value, comparing
// case-insensitively unless caseSensitive is set.  Blank values never match.
func (s *Store) FindByLogin(ctx context.Context, field, value string, caseSensitive bool) (authentic.Entity, error) {
	if value == "" {
		return nil, authentic.ErrRecordNotFound
	}
	if !slices.Contains(s.columns, field) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	collation := "NOCASE"
	if caseSensitive {
		collation = "BINARY"
	}
	return s.queryOne(ctx, fmt.Sprintf("%s = ? COLLATE %s", quote(field), collation), value)
}

func (s *Store) queryOne(ctx context.Context, where string, arg any) (*authentic.Model, error) {
	cols := make([]string, len(s.columns))
	for i, c := range s.columns {
		cols[i] = quote(c)
	}
	query := fmt.Sprintf("SELECT id, version, %s FROM %s WHERE %s ORDER BY id LIMIT 1",
		strings.Join(cols, ", "), quote(s.table), where)

	var (
		id      string
		version int64
		raw     = make([]sql.NullString, len(s.columns))
		dest    = make([]any, 0, len(raw)+2)
	)
	dest = append(dest, &id, &version)
	for i := range raw {
		dest = append(dest, &raw[i])
	}
	err := s.db.QueryRowContext(ctx, query, arg).Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %v", authentic.ErrRecordNotFound, arg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load record: %w", err)
	}

	values := make(map[string]string, len(raw))
	for i, v := range raw {
		if v.Valid && v.String != "" {
			values[s.columns[i]] = v.String
		}
	}
	return authentic.LoadModel(id, version, values), nil
}

// Len returns the number of stored records.
func (s *Store) Len(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", quote(s.table))).Scan(&n)
	return n, err
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}
