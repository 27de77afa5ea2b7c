package session

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/hasbyte1/go-authentic/authentic"
)

// Session stages, in pipeline order.
const (
	StageBeforePersisting authentic.Stage = "before_persisting"
	StageAfterPersisting  authentic.Stage = "after_persisting"
	StageBeforeValidation authentic.Stage = "before_validation"
	StageAfterValidation  authentic.Stage = "after_validation"
	StageBeforeSave       authentic.Stage = "before_save"
	StageAfterSave        authentic.Stage = "after_save"
	StageBeforeDestroy    authentic.Stage = "before_destroy"
	StageAfterDestroy     authentic.Stage = "after_destroy"
)

// Stages lists the session stages a [Manager] dispatches.
var Stages = []authentic.Stage{
	StageBeforePersisting, StageAfterPersisting,
	StageBeforeValidation, StageAfterValidation,
	StageBeforeSave, StageAfterSave,
	StageBeforeDestroy, StageAfterDestroy,
}

// Transport carries the persistence token between requests, typically in a
// cookie or a server-side session.  Implementations belong to the host.
type Transport interface {
	// Token returns the stored token, or "" when there is none.
	Token(ctx context.Context) (string, error)
	// PutToken stores token.
	PutToken(ctx context.Context, token string) error
	// ClearToken removes the stored token.
	ClearToken(ctx context.Context) error
}

// ──────────────────────────────────────────────────────────────────────────────
// Events
// ──────────────────────────────────────────────────────────────────────────────

// EventType identifies the type of a session event.
type EventType int

const (
	// EventAuthenticated fires after a login is saved.
	EventAuthenticated EventType = iota
	// EventFailed fires when a login fails for any reason.
	EventFailed
)

// Event carries the details of a session event delivered to
// [EventListener]s.
type Event struct {
	// Type is EventAuthenticated or EventFailed.
	Type EventType
	// Login is the attempted login.
	Login string
	// Record is the authenticated record, or the attempted record on failure
	// when one was found.
	Record authentic.Entity
	// Err is the failure.  Nil on EventAuthenticated.
	Err error
}

// EventListener receives [Event]s emitted by [Session.Save].
type EventListener func(event Event)

// ──────────────────────────────────────────────────────────────────────────────
// Manager
// ──────────────────────────────────────────────────────────────────────────────

// Option is a functional option for configuring a [Manager].
type Option func(*Manager)

// WithEventListener registers a listener called on every login attempt.
func WithEventListener(l EventListener) Option {
	return func(m *Manager) { m.listeners = append(m.listeners, l) }
}

// WithManagerLogger sets the logger.
func WithManagerLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// WithResetTokenOnPasswordChange registers a password hook that replaces the
// persistence token whenever a password is set, which logs out every other
// session of the record.
func WithResetTokenOnPasswordChange() Option {
	return func(m *Manager) { m.resetOnPassword = true }
}

// Manager holds the components shared by every [Session] of one record type.
//
// # Thread safety
//
// A Manager is safe for concurrent use.  Sessions are not; create one per
// request with [Manager.New].
type Manager struct {
	validator *Validator
	auth      *authentic.Authenticator
	hooks     *authentic.Hooks[*Session]
	listeners []EventListener
	log       *slog.Logger

	resetOnPassword bool
}

// NewManager builds a Manager around v.
func NewManager(v *Validator, opts ...Option) (*Manager, error) {
	m := &Manager{
		validator: v,
		auth:      v.Authenticator(),
		hooks:     authentic.NewHooks[*Session](Stages...),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.log == nil {
		m.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if m.resetOnPassword {
		err := m.auth.Hooks().On(authentic.StageAfterPasswordSet, func(_ context.Context, rec authentic.Record) error {
			return m.auth.ResetPersistenceToken(rec)
		})
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Hooks returns the session hook dispatcher; register handlers with
// [authentic.Hooks.On] using the Stage* session constants.
func (m *Manager) Hooks() *authentic.Hooks[*Session] { return m.hooks }

// Validator returns the credential validator.
func (m *Manager) Validator() *Validator { return m.validator }

// New returns a Session using transport, which may be nil.
func (m *Manager) New(transport Transport) *Session {
	return &Session{m: m, transport: transport}
}

func (m *Manager) now() time.Time { return m.validator.now() }

func (m *Manager) emit(e Event) {
	for _, l := range m.listeners {
		l(e)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Session
// ──────────────────────────────────────────────────────────────────────────────

// Session is one request's view of a login.
type Session struct {
	m         *Manager
	transport Transport

	// Login and Password are the credentials [Session.Save] authenticates.
	Login    string
	Password string
	// RemoteIP is recorded as the current login IP on save.
	RemoteIP string

	record authentic.Entity
}

// Record returns the logged-in record, or nil.
func (s *Session) Record() authentic.Entity { return s.record }

// Save authenticates the credentials and logs the record in.
//
// The pipeline is before_validation, credential validation,
// after_validation, before_save, login statistics, after_save and finally
// the transport.  A failed attempt increments the record's failed login count
// when brute-force protection is enabled and returns the [*AuthError].
func (s *Session) Save(ctx context.Context) error {
	err := s.save(ctx)
	if err != nil {
		s.record = nil
		s.m.emit(Event{Type: EventFailed, Login: s.Login, Record: attempted(err), Err: err})
		return err
	}
	s.m.emit(Event{Type: EventAuthenticated, Login: s.Login, Record: s.record})
	return nil
}

func (s *Session) save(ctx context.Context) error {
	hooks := s.m.hooks
	if err := hooks.Run(ctx, StageBeforeValidation, s); err != nil {
		return err
	}
	rec, err := s.m.validator.Authenticate(ctx, s.Login, s.Password)
	if err != nil {
		s.recordFailure(ctx, err)
		return err
	}
	s.record = rec
	if err := hooks.Run(ctx, StageAfterValidation, s); err != nil {
		return err
	}

	if err := hooks.Run(ctx, StageBeforeSave, s); err != nil {
		return err
	}
	if err := s.updateInfo(ctx); err != nil {
		return err
	}
	if err := hooks.Run(ctx, StageAfterSave, s); err != nil {
		return err
	}
	return s.putToken(ctx)
}

// recordFailure persists the failed login count of an attempted record.
func (s *Session) recordFailure(ctx context.Context, err error) {
	var ae *AuthError
	guard := s.m.validator.Guard()
	if guard == nil || !errors.As(err, &ae) || ae.Record == nil || ae.Kind != KindInvalidCredential {
		return
	}
	now := s.m.now()
	guard.RecordFailure(ae.Record, now)
	if guard.Banned(ae.Record, now) {
		s.m.log.WarnContext(ctx, "login banned after consecutive failures",
			"record", ae.Record.ID(), "failed_logins", guard.FailedLogins(ae.Record))
	}
	if err := s.m.auth.Store().Save(ctx, ae.Record, bare); err != nil {
		s.m.log.WarnContext(ctx, "failed login count not saved", "record", ae.Record.ID(), "error", err)
	}
}

var bare = authentic.SaveOptions{SkipValidation: true, SkipSessionMaintenance: true}

// updateInfo writes the login statistics and ensures a persistence token,
// reapplying them once after a concurrent modification.
func (s *Session) updateInfo(ctx context.Context) error {
	store := s.m.auth.Store()
	apply := s.loginInfo()
	if err := apply(s.record); err != nil {
		return err
	}
	err := store.Save(ctx, s.record, bare)
	if errors.Is(err, authentic.ErrConcurrentModification) {
		r, ok := store.(authentic.Reloader)
		if !ok {
			return fmt.Errorf("session: save login: %w", err)
		}
		if err := r.Reload(ctx, s.record); err != nil {
			return fmt.Errorf("session: reload login: %w", err)
		}
		if err := apply(s.record); err != nil {
			return err
		}
		err = store.Save(ctx, s.record, bare)
	}
	if err != nil {
		return fmt.Errorf("session: save login: %w", err)
	}
	return nil
}

func (s *Session) loginInfo() func(authentic.Entity) error {
	f := s.m.auth.Fields()
	now := s.m.now().UTC().Format(time.RFC3339Nano)
	return func(rec authentic.Entity) error {
		if f.LoginCount != "" {
			n, _ := strconv.Atoi(rec.Get(f.LoginCount))
			rec.Set(f.LoginCount, strconv.Itoa(n+1))
		}
		if g := s.m.validator.Guard(); g != nil {
			g.RecordSuccess(rec)
		}
		if f.CurrentLoginAt != "" {
			if f.LastLoginAt != "" {
				rec.Set(f.LastLoginAt, rec.Get(f.CurrentLoginAt))
			}
			rec.Set(f.CurrentLoginAt, now)
		}
		if f.CurrentLoginIP != "" && s.RemoteIP != "" {
			if f.LastLoginIP != "" {
				rec.Set(f.LastLoginIP, rec.Get(f.CurrentLoginIP))
			}
			rec.Set(f.CurrentLoginIP, s.RemoteIP)
		}
		if f.PersistenceToken != "" && blank(rec.Get(f.PersistenceToken)) {
			return s.m.auth.ResetPersistenceToken(rec)
		}
		return nil
	}
}

func (s *Session) putToken(ctx context.Context) error {
	field := s.m.auth.Fields().PersistenceToken
	if s.transport == nil || field == "" {
		return nil
	}
	if err := s.transport.PutToken(ctx, s.record.Get(field)); err != nil {
		return fmt.Errorf("session: store token: %w", err)
	}
	return nil
}

// Persist resolves the logged-in record from the transport's token.  It
// returns nil and no error when there is no valid session.
func (s *Session) Persist(ctx context.Context) (authentic.Entity, error) {
	field := s.m.auth.Fields().PersistenceToken
	if s.transport == nil || field == "" {
		return nil, nil
	}
	if err := s.m.hooks.Run(ctx, StageBeforePersisting, s); err != nil {
		return nil, err
	}
	token, err := s.transport.Token(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: read token: %w", err)
	}
	if blank(token) {
		return nil, nil
	}

	finder := s.m.validator.finder
	rec, err := finder.FindByLogin(ctx, field, token, true)
	if errors.Is(err, authentic.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: find %s: %w", field, err)
	}
	if subtle.ConstantTimeCompare([]byte(rec.Get(field)), []byte(token)) != 1 {
		return nil, nil
	}
	if g := s.m.validator.Guard(); g != nil && g.Banned(rec, s.m.now()) {
		return nil, nil
	}

	s.record = rec
	if err := s.m.hooks.Run(ctx, StageAfterPersisting, s); err != nil {
		s.record = nil
		return nil, err
	}
	return rec, nil
}

// Destroy logs the session out by clearing the transport's token.
func (s *Session) Destroy(ctx context.Context) error {
	if err := s.m.hooks.Run(ctx, StageBeforeDestroy, s); err != nil {
		return err
	}
	if s.transport != nil {
		if err := s.transport.ClearToken(ctx); err != nil {
			return fmt.Errorf("session: clear token: %w", err)
		}
	}
	s.record = nil
	return s.m.hooks.Run(ctx, StageAfterDestroy, s)
}

// Maintain keeps the session in step with saves of its record made outside
// the session, such as a password change replacing the persistence token.
// Register it as a store save observer.
func (s *Session) Maintain(ctx context.Context, e authentic.Entity) {
	if s.record == nil || s.record.ID() != e.ID() {
		return
	}
	s.record = e
	if err := s.putToken(ctx); err != nil {
		s.m.log.WarnContext(ctx, "session maintenance failed", "record", e.ID(), "error", err)
	}
}

// LogOutOthers replaces the persistence token of the logged-in record and
// stores the new one in this session's transport.
func (s *Session) LogOutOthers(ctx context.Context) error {
	if s.record == nil {
		return ErrNotLoggedIn
	}
	if err := s.m.auth.ResetPersistenceTokenAndSave(ctx, s.record); err != nil {
		return err
	}
	return s.putToken(ctx)
}

func attempted(err error) authentic.Entity {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Record
	}
	return nil
}
