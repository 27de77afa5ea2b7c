package authentic

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Stage names a hook point.
type Stage string

// Password stages, in the order a password change followed by a login runs
// them.
const (
	StageBeforePasswordSet          Stage = "before_password_set"
	StageAfterPasswordSet           Stage = "after_password_set"
	StageBeforePasswordVerification Stage = "before_password_verification"
	StageAfterPasswordVerification  Stage = "after_password_verification"
)

// PasswordStages lists the stages an [Authenticator] runs.
var PasswordStages = []Stage{
	StageBeforePasswordSet,
	StageAfterPasswordSet,
	StageBeforePasswordVerification,
	StageAfterPasswordVerification,
}

// Hook handles one stage.  A non-nil error halts the stage and is returned by
// [Hooks.Run].
type Hook[T any] func(ctx context.Context, v T) error

// Hooks is an ordered dispatcher over a fixed set of named stages.  Handlers
// of a stage run in registration order.
//
// # Thread safety
//
// Registration and dispatch are safe for concurrent use.
type Hooks[T any] struct {
	mu       sync.RWMutex
	stages   []Stage
	handlers map[Stage][]Hook[T]
}

// NewHooks creates a dispatcher accepting exactly stages.
func NewHooks[T any](stages ...Stage) *Hooks[T] {
	h := &Hooks[T]{
		stages:   slices.Clone(stages),
		handlers: make(map[Stage][]Hook[T], len(stages)),
	}
	for _, s := range stages {
		h.handlers[s] = nil
	}
	return h
}

// On registers fn for stage.
func (h *Hooks[T]) On(stage Stage, fn Hook[T]) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.handlers[stage]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStage, stage)
	}
	h.handlers[stage] = append(h.handlers[stage], fn)
	return nil
}

// Run calls the handlers of stage in order and stops at the first error.
func (h *Hooks[T]) Run(ctx context.Context, stage Stage, v T) error {
	h.mu.RLock()
	fns, ok := h.handlers[stage]
	fns = slices.Clone(fns)
	h.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownStage, stage)
	}
	for _, fn := range fns {
		if err := fn(ctx, v); err != nil {
			return fmt.Errorf("authentic: %s: %w", stage, err)
		}
	}
	return nil
}

// Stages returns the stages in declaration order.
func (h *Hooks[T]) Stages() []Stage { return slices.Clone(h.stages) }

// Len returns the number of handlers registered for stage.
func (h *Hooks[T]) Len(stage Stage) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.handlers[stage])
}
