package hashing

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Registry is a thread-safe set of named providers.
//
// Configuration layers resolve provider names (for example the entries of a
// transition list) through a Registry, so a deployment can replace any
// built-in provider with a differently tuned instance, or add its own.
//
// # Thread safety
//
// All Registry methods are safe for concurrent use by multiple goroutines.
type Registry struct {
	mu        sync.RWMutex
	providers map[Name]Provider
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[Name]Provider)}
}

// NewDefaultRegistry creates a Registry with every built-in provider
// registered with its default options.  The AES-256 provider is registered
// without a key and reports [ErrProviderMisconfigured] until replaced.
func NewDefaultRegistry() (*Registry, error) {
	r := NewRegistry()

	type ctor func() (Provider, error)
	ctors := []ctor{
		func() (Provider, error) { return NewMD5(DefaultMD5Options()) },
		func() (Provider, error) { return NewSha1(DefaultSha1Options()) },
		func() (Provider, error) { return NewSha256(DefaultSha2Options()) },
		func() (Provider, error) { return NewSha512(DefaultSha2Options()) },
		func() (Provider, error) { return NewMD5V2(DefaultMD5Options()) },
		func() (Provider, error) { return NewSha256V2(DefaultSha2Options()) },
		func() (Provider, error) { return NewSha512V2(DefaultSha2Options()) },
		func() (Provider, error) { return NewBcrypt(DefaultBcryptOptions()) },
		func() (Provider, error) { return NewScrypt(DefaultScryptOptions()) },
		func() (Provider, error) { return NewArgon2id(DefaultArgon2Options()) },
		func() (Provider, error) { return NewAES256(nil), nil },
	}
	for _, c := range ctors {
		p, err := c()
		if err != nil {
			return nil, fmt.Errorf("hashing: failed to create default provider: %w", err)
		}
		if err := r.Register(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds or replaces a provider under its own [Provider.Name].
func (r *Registry) Register(p Provider) error {
	if p == nil {
		return ErrNilProvider
	}
	name := p.Name()
	if name == "" {
		return ErrEmptyName
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = p
	return nil
}

// Provider returns the provider registered under name, or
// [ErrProviderNotFound].
func (r *Registry) Provider(name Name) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotFound, name)
	}
	return p, nil
}

// Providers resolves names in order.  It fails on the first unknown name.
func (r *Registry) Providers(names ...Name) ([]Provider, error) {
	out := make([]Provider, 0, len(names))
	for _, n := range names {
		p, err := r.Provider(n)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// Has reports whether a provider with the given name is registered.
func (r *Registry) Has(name Name) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[name]
	return ok
}

// Names returns the registered names in lexical order.
func (r *Registry) Names() []Name {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Name, 0, len(r.providers))
	for n := range r.providers {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Identify returns the registered providers for which tokens re-derive
// digest, in the order [Detect] proposes them.  Digests of unknown shape are
// tried against every registered provider, skipping unconfigured ones.
//
// It is meant for audit and migration tooling; login flows use an explicit,
// ordered policy instead.
func (r *Registry) Identify(digest string, tokens ...string) ([]Name, error) {
	candidates, detected := Detect(digest)
	if !detected {
		candidates = r.Names()
	}
	var out []Name
	for _, n := range candidates {
		p, err := r.Provider(n)
		if err != nil {
			continue
		}
		ok, err := p.Matches(digest, tokens...)
		if err != nil {
			if !detected && errors.Is(err, ErrProviderMisconfigured) {
				continue
			}
			return nil, err
		}
		if ok {
			out = append(out, n)
		}
	}
	return out, nil
}
