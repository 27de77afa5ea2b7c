package authentic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/hasbyte1/go-authentic/hashing"
)

// ──────────────────────────────────────────────────────────────────────────────
// Transition events
// ──────────────────────────────────────────────────────────────────────────────

// TransitionReason says why a digest was rewritten.
type TransitionReason int

const (
	// ReasonLegacyProvider means a transition-from provider produced the match.
	ReasonLegacyProvider TransitionReason = iota
	// ReasonOutdatedCost means the current provider matched with an outdated
	// cost.
	ReasonOutdatedCost
)

func (r TransitionReason) String() string {
	switch r {
	case ReasonLegacyProvider:
		return "legacy_provider"
	case ReasonOutdatedCost:
		return "outdated_cost"
	default:
		return fmt.Sprintf("TransitionReason(%d)", int(r))
	}
}

// TransitionOutcome says what happened to the rewritten digest.
type TransitionOutcome int

const (
	// OutcomeSaved means the first write succeeded.
	OutcomeSaved TransitionOutcome = iota
	// OutcomeRetried means the first write conflicted and the retry succeeded.
	OutcomeRetried
	// OutcomeConverged means the write conflicted with another login that had
	// already transitioned the record; nothing was written.
	OutcomeConverged
	// OutcomeSuperseded means the write conflicted with a password change; the
	// newer password was kept.
	OutcomeSuperseded
	// OutcomeDropped means the write failed and was abandoned.  The record
	// transitions on a later login.
	OutcomeDropped
)

func (o TransitionOutcome) String() string {
	switch o {
	case OutcomeSaved:
		return "saved"
	case OutcomeRetried:
		return "retried"
	case OutcomeConverged:
		return "converged"
	case OutcomeSuperseded:
		return "superseded"
	case OutcomeDropped:
		return "dropped"
	default:
		return fmt.Sprintf("TransitionOutcome(%d)", int(o))
	}
}

// TransitionEvent describes one transition attempt.
type TransitionEvent struct {
	RecordID string
	From     hashing.Name
	To       hashing.Name
	Reason   TransitionReason
	Outcome  TransitionOutcome
	// Err is the store error behind OutcomeDropped.
	Err error
}

// TransitionListener receives [TransitionEvent]s.  Listeners run
// synchronously on the verifying goroutine.
type TransitionListener func(TransitionEvent)

// Option is a functional option for configuring an [Authenticator].
type Option func(*Authenticator)

// WithTransitionListener registers a listener called after every transition
// attempt.
func WithTransitionListener(l TransitionListener) Option {
	return func(a *Authenticator) {
		a.listeners = append(a.listeners, l)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Authenticator
// ──────────────────────────────────────────────────────────────────────────────

// Authenticator verifies passwords and migrates digests for one record type.
//
// # Thread safety
//
// An Authenticator is safe for concurrent use.  The policy is read once per
// call, so [Authenticator.SetPolicy] never affects a call in progress.
type Authenticator struct {
	store     Store
	cfg       Config
	log       *slog.Logger
	policy    atomic.Pointer[Policy]
	hooks     *Hooks[Record]
	listeners []TransitionListener
}

// New constructs an Authenticator writing transitions to store.
func New(store Store, policy *Policy, cfg Config, opts ...Option) (*Authenticator, error) {
	if store == nil {
		return nil, ErrNoStore
	}
	if policy == nil {
		return nil, ErrNoProvider
	}
	if cfg.Fields.CryptedPassword == "" {
		return nil, ErrNoCryptedPasswordField
	}
	a := &Authenticator{
		store: store,
		cfg:   cfg,
		log:   cfg.logger(),
		hooks: NewHooks[Record](PasswordStages...),
	}
	a.policy.Store(policy)
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Policy returns the policy in effect.
func (a *Authenticator) Policy() *Policy { return a.policy.Load() }

// SetPolicy atomically replaces the policy for subsequent calls.
func (a *Authenticator) SetPolicy(p *Policy) error {
	if p == nil {
		return ErrNoProvider
	}
	a.policy.Store(p)
	return nil
}

// Config returns the authenticator's configuration.
func (a *Authenticator) Config() Config { return a.cfg }

// Fields returns the field mapping.
func (a *Authenticator) Fields() FieldMapping { return a.cfg.Fields }

// Store returns the store transitions are written to.
func (a *Authenticator) Store() Store { return a.store }

// Hooks returns the password hook dispatcher; register handlers with
// [Hooks.On] using the Stage* password constants.
func (a *Authenticator) Hooks() *Hooks[Record] { return a.hooks }

// VerifyOption adjusts a single [Authenticator.Verify] call.
type VerifyOption func(*verifyOptions)

type verifyOptions struct {
	againstDatabase bool
}

// AgainstDatabase selects whether the persisted digest and salt (true) or the
// in-memory ones (false) are verified, overriding
// Config.CheckPasswordsAgainstDatabase.
func AgainstDatabase(v bool) VerifyOption {
	return func(o *verifyOptions) { o.againstDatabase = v }
}

// Verify reports whether attempted is the password of e.
//
// Providers are tried in policy order and the first match wins.  When the
// winner is a legacy provider, or the current provider reports an outdated
// cost, the password is re-encrypted with the current provider and e is saved
// without validation or session maintenance.  The rewrite is skipped when
// verifying against the database while e's digest has unsaved changes.
//
// A failed rewrite never changes the result; see [TransitionEvent].  A
// non-nil error means a misconfigured provider or a failing hook.
func (a *Authenticator) Verify(ctx context.Context, e Entity, attempted string, opts ...VerifyOption) (bool, error) {
	vo := verifyOptions{againstDatabase: a.cfg.CheckPasswordsAgainstDatabase}
	for _, o := range opts {
		o(&vo)
	}
	policy := a.policy.Load()

	digest := valueToValidate(e, a.cfg.Fields.CryptedPassword, vo.againstDatabase)
	if isBlank(attempted) || isBlank(digest) {
		return false, nil
	}
	if err := a.hooks.Run(ctx, StageBeforePasswordVerification, e); err != nil {
		return false, err
	}

	i, winner, err := a.match(e, digest, attempted, vo.againstDatabase, policy)
	if err != nil || winner == nil {
		return false, err
	}

	if reason, needed := a.transitionNeeded(e, i, winner, vo.againstDatabase); needed {
		if err := a.transition(ctx, e, attempted, policy, winner.Name(), reason); err != nil {
			return false, err
		}
	}

	if err := a.hooks.Run(ctx, StageAfterPasswordVerification, e); err != nil {
		return false, err
	}
	return true, nil
}

// match returns the index and provider of the first match, or a nil provider.
func (a *Authenticator) match(rec Record, digest, attempted string, against bool, policy *Policy) (int, hashing.Provider, error) {
	for i, p := range policy.Providers() {
		tokens := a.arguments(rec, attempted, against, a.restfulShape(i, p))
		ok, err := p.Matches(digest, tokens...)
		if err != nil {
			return 0, nil, fmt.Errorf("authentic: %s: %w", p.Name(), err)
		}
		if ok {
			return i, p, nil
		}
	}
	return 0, nil, nil
}

func (a *Authenticator) transitionNeeded(rec Record, i int, winner hashing.Provider, against bool) (TransitionReason, bool) {
	field := a.cfg.Fields.CryptedPassword
	if against && rec.Changed(field) {
		return 0, false
	}
	if i > 0 {
		return ReasonLegacyProvider, true
	}
	if cm, ok := winner.(hashing.CostMatcher); ok && !cm.CostMatches(rec.Get(field)) {
		return ReasonOutdatedCost, true
	}
	return 0, false
}

func (a *Authenticator) transition(ctx context.Context, e Entity, attempted string, policy *Policy, from hashing.Name, reason TransitionReason) error {
	ev := TransitionEvent{
		RecordID: e.ID(),
		From:     from,
		To:       policy.Current().Name(),
		Reason:   reason,
	}
	if err := a.setPassword(ctx, e, attempted, policy); err != nil {
		return err
	}

	err := a.store.Save(ctx, e, bareSave)
	switch {
	case err == nil:
		ev.Outcome = OutcomeSaved
	case errors.Is(err, ErrConcurrentModification):
		ev.Outcome, ev.Err = a.resolveConflict(ctx, e, attempted, policy)
	default:
		ev.Outcome, ev.Err = OutcomeDropped, err
	}

	attrs := []any{"record", ev.RecordID, "from", ev.From, "to", ev.To, "reason", ev.Reason.String(), "outcome", ev.Outcome.String()}
	switch ev.Outcome {
	case OutcomeSaved, OutcomeRetried:
		a.log.InfoContext(ctx, "password transitioned", attrs...)
	case OutcomeConverged, OutcomeSuperseded:
		a.log.DebugContext(ctx, "password transition not needed after conflict", attrs...)
	default:
		a.log.WarnContext(ctx, "password transition dropped", append(attrs, "error", ev.Err)...)
	}
	for _, l := range a.listeners {
		l(ev)
	}
	return nil
}

// resolveConflict reloads e after a conflicting write and retries the
// transition once when the reloaded digest still needs it.
func (a *Authenticator) resolveConflict(ctx context.Context, e Entity, attempted string, policy *Policy) (TransitionOutcome, error) {
	r, ok := a.store.(Reloader)
	if !ok {
		return OutcomeDropped, ErrConcurrentModification
	}
	if err := r.Reload(ctx, e); err != nil {
		return OutcomeDropped, err
	}

	digest := e.Get(a.cfg.Fields.CryptedPassword)
	i, winner, err := a.match(e, digest, attempted, false, policy)
	if err != nil {
		return OutcomeDropped, err
	}
	if winner == nil {
		return OutcomeSuperseded, nil
	}
	if _, needed := a.transitionNeeded(e, i, winner, false); !needed {
		return OutcomeConverged, nil
	}

	if err := a.setPassword(ctx, e, attempted, policy); err != nil {
		return OutcomeDropped, err
	}
	if err := a.store.Save(ctx, e, bareSave); err != nil {
		return OutcomeDropped, err
	}
	return OutcomeRetried, nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Encryption entry points
// ──────────────────────────────────────────────────────────────────────────────

// SetPassword encrypts plain with the current provider and stores the digest
// in rec, together with a fresh salt when a salt field is mapped.  It does not
// save rec.
//
// A blank password is ignored when Config.IgnoreBlankPasswords is set and
// rejected with [ErrBlankPassword] otherwise.
func (a *Authenticator) SetPassword(ctx context.Context, rec Record, plain string) error {
	return a.setPassword(ctx, rec, plain, a.policy.Load())
}

func (a *Authenticator) setPassword(ctx context.Context, rec Record, plain string, policy *Policy) error {
	if isBlank(plain) {
		if a.cfg.IgnoreBlankPasswords {
			return nil
		}
		return ErrBlankPassword
	}
	if err := a.hooks.Run(ctx, StageBeforePasswordSet, rec); err != nil {
		return err
	}
	saltField := a.cfg.Fields.PasswordSalt
	oldSalt := ""
	if saltField != "" {
		salt, err := FriendlyToken()
		if err != nil {
			return err
		}
		oldSalt = rec.Get(saltField)
		rec.Set(saltField, salt)
	}
	current := policy.Current()
	digest, err := current.Encrypt(a.arguments(rec, plain, false, a.cfg.ActLikeRestfulAuthentication)...)
	if err != nil {
		if saltField != "" {
			rec.Set(saltField, oldSalt)
		}
		return fmt.Errorf("authentic: %s: %w", current.Name(), err)
	}
	rec.Set(a.cfg.Fields.CryptedPassword, digest)
	return a.hooks.Run(ctx, StageAfterPasswordSet, rec)
}

// ResetPassword sets a random password on rec and returns it.
func (a *Authenticator) ResetPassword(ctx context.Context, rec Record) (string, error) {
	plain, err := FriendlyToken()
	if err != nil {
		return "", err
	}
	if err := a.SetPassword(ctx, rec, plain); err != nil {
		return "", err
	}
	return plain, nil
}

// ResetPasswordAndSave is [Authenticator.ResetPassword] followed by a save
// without validation or session maintenance.
func (a *Authenticator) ResetPasswordAndSave(ctx context.Context, e Entity) (string, error) {
	plain, err := a.ResetPassword(ctx, e)
	if err != nil {
		return "", err
	}
	if err := a.store.Save(ctx, e, bareSave); err != nil {
		return "", fmt.Errorf("authentic: save after password reset: %w", err)
	}
	return plain, nil
}

// ResetPersistenceToken stores a fresh persistence token in rec.  Changing the
// token invalidates every session resolved from the old one.
func (a *Authenticator) ResetPersistenceToken(rec Record) error {
	f := a.cfg.Fields.PersistenceToken
	if f == "" {
		return ErrNoPersistenceTokenField
	}
	tok, err := PersistenceToken()
	if err != nil {
		return err
	}
	rec.Set(f, tok)
	return nil
}

// ResetPersistenceTokenAndSave is [Authenticator.ResetPersistenceToken]
// followed by a save without validation.
func (a *Authenticator) ResetPersistenceTokenAndSave(ctx context.Context, e Entity) error {
	if err := a.ResetPersistenceToken(e); err != nil {
		return err
	}
	if err := a.store.Save(ctx, e, SaveOptions{SkipValidation: true}); err != nil {
		return fmt.Errorf("authentic: save after persistence token reset: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Arguments
// ──────────────────────────────────────────────────────────────────────────────

// restfulShape reports whether provider i receives the restful_authentication
// argument shape.
func (a *Authenticator) restfulShape(i int, p hashing.Provider) bool {
	return (a.cfg.ActLikeRestfulAuthentication && i == 0) ||
		(a.cfg.TransitionFromRestfulAuthentication && i > 0 && p.Name() == hashing.ProviderSha1)
}

// arguments builds the provider tokens: (secret, salt) or, for the restful
// shape, (site key, salt, secret, site key).  An empty salt is omitted.
func (a *Authenticator) arguments(rec Record, secret string, against, restful bool) []string {
	var salt string
	if f := a.cfg.Fields.PasswordSalt; f != "" {
		salt = valueToValidate(rec, f, against)
	}
	if restful {
		key := a.cfg.RestfulAuthSiteKey
		if salt == "" {
			return []string{key, secret, key}
		}
		return []string{key, salt, secret, key}
	}
	if salt == "" {
		return []string{secret}
	}
	return []string{secret, salt}
}

func valueToValidate(rec Record, field string, against bool) string {
	if against && rec.Changed(field) {
		return rec.Was(field)
	}
	return rec.Get(field)
}

func isBlank(s string) bool { return strings.TrimSpace(s) == "" }
