package hashing_test

import (
	"errors"
	"reflect"
	"sync"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/hasbyte1/go-authentic/hashing"
)

// namelessProvider reports an empty name.
type namelessProvider struct{ hashing.Provider }

func (namelessProvider) Name() hashing.Name { return "" }

// ──────────────────────────────────────────────────────────────────────────────
// NewDefaultRegistry
// ──────────────────────────────────────────────────────────────────────────────

func TestNewDefaultRegistry_AllProvidersRegistered(t *testing.T) {
	r, err := hashing.NewDefaultRegistry()
	if err != nil {
		t.Fatalf("NewDefaultRegistry: %v", err)
	}
	for _, n := range []hashing.Name{
		hashing.ProviderMD5, hashing.ProviderSha1, hashing.ProviderSha256, hashing.ProviderSha512,
		hashing.ProviderMD5V2, hashing.ProviderSha256V2, hashing.ProviderSha512V2,
		hashing.ProviderBcrypt, hashing.ProviderScrypt, hashing.ProviderArgon2id, hashing.ProviderAES256,
	} {
		if !r.Has(n) {
			t.Errorf("provider %q not registered", n)
		}
	}
}

func TestNewDefaultRegistry_AES256Unconfigured(t *testing.T) {
	r, _ := hashing.NewDefaultRegistry()
	p, err := r.Provider(hashing.ProviderAES256)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := p.Encrypt("x"); !errors.Is(err, hashing.ErrProviderMisconfigured) {
		t.Errorf("expected ErrProviderMisconfigured, got %v", err)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Register / Provider
// ──────────────────────────────────────────────────────────────────────────────

func TestRegistry_Register_Nil(t *testing.T) {
	r := hashing.NewRegistry()
	if err := r.Register(nil); !errors.Is(err, hashing.ErrNilProvider) {
		t.Errorf("expected ErrNilProvider, got %v", err)
	}
}

func TestRegistry_Register_EmptyName(t *testing.T) {
	r := hashing.NewRegistry()
	if err := r.Register(namelessProvider{}); !errors.Is(err, hashing.ErrEmptyName) {
		t.Errorf("expected ErrEmptyName, got %v", err)
	}
}

func TestRegistry_Register_ReplaceExisting(t *testing.T) {
	r, _ := hashing.NewDefaultRegistry()
	p, _ := hashing.NewBcrypt(hashing.BcryptOptions{Cost: bcrypt.MinCost})
	if err := r.Register(p); err != nil {
		t.Fatal(err)
	}
	got, _ := r.Provider(hashing.ProviderBcrypt)
	if got.(*hashing.BcryptProvider).Cost() != bcrypt.MinCost {
		t.Error("provider should be replaced after re-registration")
	}
}

func TestRegistry_Provider_NotFound(t *testing.T) {
	r := hashing.NewRegistry()
	if _, err := r.Provider("rot13"); !errors.Is(err, hashing.ErrProviderNotFound) {
		t.Errorf("expected ErrProviderNotFound, got %v", err)
	}
}

func TestRegistry_Providers_PreservesOrder(t *testing.T) {
	r, _ := hashing.NewDefaultRegistry()
	ps, err := r.Providers(hashing.ProviderSha512, hashing.ProviderSha1, hashing.ProviderMD5)
	if err != nil {
		t.Fatal(err)
	}
	got := []hashing.Name{ps[0].Name(), ps[1].Name(), ps[2].Name()}
	want := []hashing.Name{hashing.ProviderSha512, hashing.ProviderSha1, hashing.ProviderMD5}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if _, err := r.Providers(hashing.ProviderSha1, "nope"); !errors.Is(err, hashing.ErrProviderNotFound) {
		t.Errorf("expected ErrProviderNotFound, got %v", err)
	}
}

func TestRegistry_Names_Sorted(t *testing.T) {
	r := hashing.NewRegistry()
	sha1, _ := hashing.NewSha1(hashing.DefaultSha1Options())
	md5, _ := hashing.NewMD5(hashing.DefaultMD5Options())
	_ = r.Register(sha1)
	_ = r.Register(md5)
	want := []hashing.Name{hashing.ProviderMD5, hashing.ProviderSha1}
	if got := r.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names = %v, want %v", got, want)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Identify
// ──────────────────────────────────────────────────────────────────────────────

func TestRegistry_Identify(t *testing.T) {
	r, _ := hashing.NewDefaultRegistry()
	tests := []struct {
		name   string
		digest string
		want   []hashing.Name
	}{
		{"md5 is ambiguous at one stretch", "3d16884295a68fec30a2ae7ff0634b1e",
			[]hashing.Name{hashing.ProviderMD5, hashing.ProviderMD5V2}},
		{"sha1", "5723d69f7ca1f8d63122c9cef4cf3c10d0482d3e",
			[]hashing.Name{hashing.ProviderSha1}},
		{"sha512 v2", "60e86eec0e7f858cc5cc6b42b31a847819b65e06317709ce2779245d0776f18094dff9afbc66ae1e509f2b5e49f4d2ff3f632c8ee7c4683749f5fd028de5b085",
			[]hashing.Name{hashing.ProviderSha512V2}},
		{"unknown shape", "not-a-digest", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Identify(tt.digest, "test", legacySalt)
			if err != nil {
				t.Fatalf("Identify: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Identify = %v, want %v", got, tt.want)
			}
		})
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Concurrency
// ──────────────────────────────────────────────────────────────────────────────

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r, _ := hashing.NewDefaultRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			p, _ := hashing.NewSha1(hashing.StretchOptions{Stretches: i%3 + 1, JoinToken: "--"})
			_ = r.Register(p)
		}(i)
		go func() {
			defer wg.Done()
			p, err := r.Provider(hashing.ProviderSha1)
			if err != nil {
				t.Error(err)
				return
			}
			if _, err := p.Encrypt("secret"); err != nil {
				t.Error(err)
			}
			_ = r.Names()
		}()
	}
	wg.Wait()
}
