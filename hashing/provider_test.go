// Tests in hashing, encryption and authentic use the standard testing package.
// The stores, session, config and the CLI use testify assert and require.
package hashing_test

import (
	"reflect"
	"testing"

	"github.com/hasbyte1/go-authentic/hashing"
)

func TestDetect(t *testing.T) {
	tests := []struct {
		digest string
		want   []hashing.Name
		ok     bool
	}{
		{"$argon2id$v=19$m=16,t=1,p=2$c2FsdA$a2V5", []hashing.Name{hashing.ProviderArgon2id}, true},
		{"$2a$10$abcdefghijklmnopqrstuuABCDEFGHIJKLMNOPQRSTUVWXYZ01234", []hashing.Name{hashing.ProviderBcrypt}, true},
		{"$2y$10$abcdefghijklmnopqrstuuABCDEFGHIJKLMNOPQRSTUVWXYZ01234", []hashing.Name{hashing.ProviderBcrypt}, true},
		{"400$8$1$0011223344556677$00112233445566778899aabbccddeeff00112233445566778899aabbccddeeff",
			[]hashing.Name{hashing.ProviderScrypt}, true},
		{"3d16884295a68fec30a2ae7ff0634b1e", []hashing.Name{hashing.ProviderMD5, hashing.ProviderMD5V2}, true},
		{"5723d69f7ca1f8d63122c9cef4cf3c10d0482d3e", []hashing.Name{hashing.ProviderSha1}, true},
		{"3c4f802953726704088a3cd6d89237e9a279a8e8f43fa6de8549ca54b80b766c",
			[]hashing.Name{hashing.ProviderSha256, hashing.ProviderSha256V2}, true},
		{"3D16884295A68FEC30A2AE7FF0634B1E", nil, false},
		{"", nil, false},
		{legacyAESDigest, nil, false},
	}
	for _, tt := range tests {
		got, ok := hashing.Detect(tt.digest)
		if ok != tt.ok || !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Detect(%q) = %v, %v; want %v, %v", tt.digest, got, ok, tt.want, tt.ok)
		}
	}
}

// Every provider must treat another family's digest as a plain mismatch.
func TestProviders_ForeignDigestsDoNotMatch(t *testing.T) {
	bc, _ := hashing.NewBcrypt(hashing.BcryptOptions{Cost: 4})
	a2, _ := hashing.NewArgon2id(fastArgon2Opts())
	sc, _ := hashing.NewScrypt(fastScryptOpts())
	sha1, _ := hashing.NewSha1(hashing.DefaultSha1Options())
	sha512v2, _ := hashing.NewSha512V2(hashing.DefaultSha2Options())
	aes := hashing.NewAES256([]byte(legacyAESKey))

	providers := []hashing.Provider{bc, a2, sc, sha1, sha512v2, aes}
	digests := make(map[hashing.Name]string, len(providers))
	for _, p := range providers {
		d, err := p.Encrypt("test", legacySalt)
		if err != nil {
			t.Fatalf("%s: Encrypt: %v", p.Name(), err)
		}
		digests[p.Name()] = d
	}

	for _, p := range providers {
		for producer, d := range digests {
			ok, err := p.Matches(d, "test", legacySalt)
			if err != nil {
				t.Errorf("%s.Matches(%s digest): unexpected error %v", p.Name(), producer, err)
			}
			if want := producer == p.Name(); ok != want {
				t.Errorf("%s.Matches(%s digest) = %v, want %v", p.Name(), producer, ok, want)
			}
		}
	}
}

func TestProviders_CapabilityInterfaces(t *testing.T) {
	var (
		_ hashing.CostMatcher = (*hashing.BcryptProvider)(nil)
		_ hashing.CostMatcher = (*hashing.ScryptProvider)(nil)
		_ hashing.CostMatcher = (*hashing.Argon2idProvider)(nil)
		_ hashing.Decrypter   = (*hashing.AES256Provider)(nil)
	)
	sha1, _ := hashing.NewSha1(hashing.DefaultSha1Options())
	var p hashing.Provider = sha1
	if _, ok := p.(hashing.CostMatcher); ok {
		t.Error("fixed-iteration providers have no cost to match")
	}
	if _, ok := p.(hashing.Decrypter); ok {
		t.Error("hash providers are not reversible")
	}
}
