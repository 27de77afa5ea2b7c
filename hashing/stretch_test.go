package hashing_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/hasbyte1/go-authentic/hashing"
)

// legacySalt is a salt as stored by legacy installations (a 40-character
// token), used with the secret "test" for every golden digest below.
const legacySalt = "7e3041ebc2fc05a40c60028e2c4901a81035d3cd"

type stretchCtor func(hashing.StretchOptions) (hashing.Provider, error)

func sha1Ctor(o hashing.StretchOptions) (hashing.Provider, error)     { return hashing.NewSha1(o) }
func md5Ctor(o hashing.StretchOptions) (hashing.Provider, error)      { return hashing.NewMD5(o) }
func sha256Ctor(o hashing.StretchOptions) (hashing.Provider, error)   { return hashing.NewSha256(o) }
func sha512Ctor(o hashing.StretchOptions) (hashing.Provider, error)   { return hashing.NewSha512(o) }
func md5V2Ctor(o hashing.StretchOptions) (hashing.Provider, error)    { return hashing.NewMD5V2(o) }
func sha256V2Ctor(o hashing.StretchOptions) (hashing.Provider, error) { return hashing.NewSha256V2(o) }
func sha512V2Ctor(o hashing.StretchOptions) (hashing.Provider, error) { return hashing.NewSha512V2(o) }

// ──────────────────────────────────────────────────────────────────────────────
// Golden digests
// ──────────────────────────────────────────────────────────────────────────────

func TestStretchProviders_GoldenDigests(t *testing.T) {
	tests := []struct {
		name   string
		ctor   stretchCtor
		opts   hashing.StretchOptions
		tokens []string
		want   string
	}{
		{
			"sha1 defaults", sha1Ctor, hashing.DefaultSha1Options(),
			[]string{"test", legacySalt},
			"5723d69f7ca1f8d63122c9cef4cf3c10d0482d3e",
		},
		{
			"sha1 3 stretches", sha1Ctor, hashing.StretchOptions{Stretches: 3, JoinToken: "--"},
			[]string{"test", legacySalt},
			"969f681d90a7d25679256e38cce3dc10db6d49c5",
		},
		{
			"sha1 restful without site key", sha1Ctor, hashing.StretchOptions{Stretches: 1, JoinToken: "--"},
			[]string{"", legacySalt, "test", ""},
			"00742970dc9e6319f8019fd54864d3ea740f04b1",
		},
		{
			"md5 defaults", md5Ctor, hashing.DefaultMD5Options(),
			[]string{"test", legacySalt},
			"3d16884295a68fec30a2ae7ff0634b1e",
		},
		{
			"md5 3 stretches", md5Ctor, hashing.StretchOptions{Stretches: 3},
			[]string{"test", legacySalt},
			"9ac3a3a2e68f822f3482cbea3cbed9a3",
		},
		{
			"md5_v2 defaults", md5V2Ctor, hashing.DefaultMD5Options(),
			[]string{"test", legacySalt},
			"3d16884295a68fec30a2ae7ff0634b1e",
		},
		{
			"md5_v2 3 stretches", md5V2Ctor, hashing.StretchOptions{Stretches: 3},
			[]string{"test", legacySalt},
			"da62ac8b983606f684cea0b93a558283",
		},
		{
			"sha256 defaults", sha256Ctor, hashing.DefaultSha2Options(),
			[]string{"test", legacySalt},
			"3c4f802953726704088a3cd6d89237e9a279a8e8f43fa6de8549ca54b80b766c",
		},
		{
			"sha256_v2 defaults", sha256V2Ctor, hashing.DefaultSha2Options(),
			[]string{"test", legacySalt},
			"7f42a368b64a3c284c87b3ed3145b0c89f6bc49de931ca083e9c56a5c6b98e22",
		},
		{
			"sha512 defaults", sha512Ctor, hashing.DefaultSha2Options(),
			[]string{"test", legacySalt},
			"9508ba2964d65501aa1d7798e8f250b35f50fadb870871f2bc1f390872e8456e785633d06e17ffa4984a04cfa1a0e1ec29f15c31187b991e591393c6c0bffb61",
		},
		{
			"sha512_v2 defaults", sha512V2Ctor, hashing.DefaultSha2Options(),
			[]string{"test", legacySalt},
			"60e86eec0e7f858cc5cc6b42b31a847819b65e06317709ce2779245d0776f18094dff9afbc66ae1e509f2b5e49f4d2ff3f632c8ee7c4683749f5fd028de5b085",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := tt.ctor(tt.opts)
			if err != nil {
				t.Fatalf("constructor: %v", err)
			}
			got, err := p.Encrypt(tt.tokens...)
			if err != nil {
				t.Fatalf("Encrypt: %v", err)
			}
			if got != tt.want {
				t.Errorf("Encrypt = %s, want %s", got, tt.want)
			}
			ok, err := p.Matches(tt.want, tt.tokens...)
			if err != nil || !ok {
				t.Errorf("Matches(golden) = %v, %v; want true, nil", ok, err)
			}
		})
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Behaviour
// ──────────────────────────────────────────────────────────────────────────────

func TestStretchProviders_Deterministic(t *testing.T) {
	for _, ctor := range []stretchCtor{sha1Ctor, md5Ctor, sha256V2Ctor} {
		p, _ := ctor(hashing.StretchOptions{Stretches: 2, JoinToken: "--"})
		a, _ := p.Encrypt("secret", "salt")
		b, _ := p.Encrypt("secret", "salt")
		if a != b {
			t.Errorf("%s: Encrypt must be a pure function of its input", p.Name())
		}
	}
}

func TestStretchProviders_WrongSecret(t *testing.T) {
	p, _ := hashing.NewSha512(hashing.DefaultSha2Options())
	digest, _ := p.Encrypt("test", legacySalt)
	ok, err := p.Matches(digest, "Test", legacySalt)
	if err != nil {
		t.Fatalf("Matches: %v", err)
	}
	if ok {
		t.Error("a different secret must not match")
	}
}

func TestStretchProviders_V1AndV2Differ(t *testing.T) {
	v1, _ := hashing.NewSha512(hashing.DefaultSha2Options())
	v2, _ := hashing.NewSha512V2(hashing.DefaultSha2Options())
	d1, _ := v1.Encrypt("test", legacySalt)
	d2, _ := v2.Encrypt("test", legacySalt)
	if d1 == d2 {
		t.Fatal("v1 and v2 must produce different digests beyond one stretch")
	}
	if ok, _ := v1.Matches(d2, "test", legacySalt); ok {
		t.Error("v1 must not accept a v2 digest")
	}
	if ok, _ := v2.Matches(d1, "test", legacySalt); ok {
		t.Error("v2 must not accept a v1 digest")
	}
}

func TestStretchProviders_LowercaseHex(t *testing.T) {
	p, _ := hashing.NewSha256(hashing.DefaultSha2Options())
	d, _ := p.Encrypt("test")
	if d != strings.ToLower(d) || len(d) != 64 {
		t.Errorf("digest %q must be 64 lowercase hex characters", d)
	}
	if ok, _ := p.Matches(strings.ToUpper(d), "test"); ok {
		t.Error("an uppercased digest must not match")
	}
}

func TestStretchProviders_InvalidStretches(t *testing.T) {
	for _, ctor := range []stretchCtor{sha1Ctor, md5Ctor, sha256Ctor, sha512Ctor, md5V2Ctor, sha256V2Ctor, sha512V2Ctor} {
		_, err := ctor(hashing.StretchOptions{Stretches: 0})
		if !errors.Is(err, hashing.ErrInvalidOption) {
			t.Errorf("expected ErrInvalidOption, got %v", err)
		}
	}
}

func TestStretchProviders_Names(t *testing.T) {
	tests := []struct {
		ctor stretchCtor
		want hashing.Name
	}{
		{sha1Ctor, hashing.ProviderSha1},
		{md5Ctor, hashing.ProviderMD5},
		{sha256Ctor, hashing.ProviderSha256},
		{sha512Ctor, hashing.ProviderSha512},
		{md5V2Ctor, hashing.ProviderMD5V2},
		{sha256V2Ctor, hashing.ProviderSha256V2},
		{sha512V2Ctor, hashing.ProviderSha512V2},
	}
	for _, tt := range tests {
		p, _ := tt.ctor(hashing.StretchOptions{Stretches: 1})
		if p.Name() != tt.want {
			t.Errorf("Name = %q, want %q", p.Name(), tt.want)
		}
	}
}

func TestSha1_RestfulOptions(t *testing.T) {
	opts := hashing.RestfulAuthenticationSha1Options()
	if opts.Stretches != 10 || opts.JoinToken != "--" {
		t.Errorf("got %+v, want 10 stretches joined by --", opts)
	}
}
