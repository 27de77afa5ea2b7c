package authentic

import (
	"slices"

	"github.com/hasbyte1/go-authentic/hashing"
)

// Policy is the ordered provider list a record type verifies against: the
// current provider followed by the providers being transitioned away from.
//
// A Policy is immutable.  Keep every legacy provider in TransitionFrom until
// no stored digest uses it any more; there is no bulk migration.
type Policy struct {
	current        hashing.Provider
	transitionFrom []hashing.Provider
}

// NewPolicy builds a Policy.  Nil entries in transitionFrom are skipped.
func NewPolicy(current hashing.Provider, transitionFrom ...hashing.Provider) (*Policy, error) {
	if current == nil {
		return nil, ErrNoProvider
	}
	p := &Policy{current: current}
	for _, t := range transitionFrom {
		if t != nil {
			p.transitionFrom = append(p.transitionFrom, t)
		}
	}
	return p, nil
}

// MustPolicy is like [NewPolicy] but panics on error.  Intended for tests and
// package-level variables.
func MustPolicy(current hashing.Provider, transitionFrom ...hashing.Provider) *Policy {
	p, err := NewPolicy(current, transitionFrom...)
	if err != nil {
		panic(err)
	}
	return p
}

// Current returns the provider new digests are produced with.
func (p *Policy) Current() hashing.Provider { return p.current }

// TransitionFrom returns the legacy providers in precedence order.
func (p *Policy) TransitionFrom() []hashing.Provider { return slices.Clone(p.transitionFrom) }

// Providers returns the current provider followed by the legacy providers.
func (p *Policy) Providers() []hashing.Provider {
	out := make([]hashing.Provider, 0, 1+len(p.transitionFrom))
	out = append(out, p.current)
	return append(out, p.transitionFrom...)
}

// Names returns the provider names in verification order.
func (p *Policy) Names() []hashing.Name {
	ps := p.Providers()
	out := make([]hashing.Name, len(ps))
	for i, pr := range ps {
		out[i] = pr.Name()
	}
	return out
}
