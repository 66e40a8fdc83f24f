// Package keymaterial implements CEX component C2: a container for
// (Key, IV, Info) triples that is never mutated after construction and is
// scrubbed to zero before release, plus the KeyGenerator that derives
// fresh material from a PRNG and a digest/KDF.
package keymaterial

import (
	"crypto/subtle"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/modulexcite/cex/pkg/primitive"
)

// Material holds a (Key, IV, Info) triple. The zero value is not usable;
// construct with New or Derive. Material satisfies primitive.KeyMaterial.
type Material struct {
	key  []byte
	iv   []byte
	info []byte

	destroyed bool
}

// New validates the key and iv lengths against keyBits and ivBits (info is
// copied unchecked) and returns an owned Material. Ownership discipline: the caller now owns the returned
// Material and must call Destroy exactly once (directly, or via With).
func New(key, iv, info []byte, keyBits, ivBits uint16) (*Material, error) {
	if len(key)*8 != int(keyBits) {
		return nil, fmt.Errorf("keymaterial: key is %d bits, description requires %d", len(key)*8, keyBits)
	}
	if len(iv)*8 != int(ivBits) {
		return nil, fmt.Errorf("keymaterial: iv is %d bits, description requires %d", len(iv)*8, ivBits)
	}
	return &Material{
		key:  append([]byte(nil), key...),
		iv:   append([]byte(nil), iv...),
		info: append([]byte(nil), info...),
	}, nil
}

// Key, IV, and Info satisfy primitive.KeyMaterial.
func (m *Material) Key() []byte  { return m.key }
func (m *Material) IV() []byte   { return m.iv }
func (m *Material) Info() []byte { return m.info }

// Destroy overwrites the backing buffers with zero. Idempotent.
func (m *Material) Destroy() {
	if m.destroyed {
		return
	}
	zero(m.key)
	zero(m.iv)
	zero(m.info)
	m.destroyed = true
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Equal performs a constant-time comparison of key, iv, and info.
func (m *Material) Equal(other *Material) bool {
	if other == nil {
		return false
	}
	return subtle.ConstantTimeCompare(m.key, other.key) == 1 &&
		subtle.ConstantTimeCompare(m.iv, other.iv) == 1 &&
		subtle.ConstantTimeCompare(m.info, other.info) == 1
}

// With runs fn with a freshly derived Material and guarantees it is
// destroyed when fn returns, including on panic — the scoped-acquisition
// discipline required by spec.md §5.
func With(m *Material, fn func(*Material) error) (err error) {
	defer m.Destroy()
	return fn(m)
}

// Generator derives deterministic key/iv material from an entropy source,
// a digest/KDF, and requested lengths, per spec.md §4.2: seed = PRNG.Fill(n),
// then key/iv = KDF(seed || info). HKDF-Expand is the concrete KDF; the
// individual digest behind it is swappable via the primitive registry.
type Generator struct {
	PRNG   primitive.Prng
	Digest primitive.DigestKind
}

// NewGenerator builds a Generator over the named PRNG and digest kinds.
func NewGenerator(prngKind primitive.PrngKind, digestKind primitive.DigestKind) (*Generator, error) {
	prng, err := primitive.NewPrng(prngKind)
	if err != nil {
		return nil, err
	}
	return &Generator{PRNG: prng, Digest: digestKind}, nil
}

// Derive produces a fresh Material with a keyBits-sized key and ivBits-sized
// iv, both expanded from fresh PRNG entropy via HKDF keyed on info.
func (g *Generator) Derive(info []byte, keyBits, ivBits uint16) (*Material, error) {
	keyBytes, ivBytes := int(keyBits)/8, int(ivBits)/8
	seed := make([]byte, keyBytes+ivBytes+32)
	if err := g.PRNG.Fill(seed); err != nil {
		return nil, fmt.Errorf("keymaterial: filling seed: %w", err)
	}

	newHash, err := hashConstructor(g.Digest)
	if err != nil {
		return nil, err
	}
	kdf := hkdf.New(newHash, seed, nil, info)

	out := make([]byte, keyBytes+ivBytes)
	if _, err := io.ReadFull(kdf, out); err != nil {
		return nil, fmt.Errorf("keymaterial: deriving key material: %w", err)
	}
	return New(out[:keyBytes], out[keyBytes:], info, keyBits, ivBits)
}

// DeriveFromSecret runs HKDF over an existing shared secret (e.g. a
// DTM-KEX domain shared secret) instead of fresh PRNG entropy, keyed on
// info. Used for the deterministic pre-auth key both endpoints of a DTM-KEX
// exchange must reach independently (spec.md §4.6 step 1).
func DeriveFromSecret(secret, info []byte, keyBits, ivBits uint16, digest primitive.DigestKind) (*Material, error) {
	keyBytes, ivBytes := int(keyBits)/8, int(ivBits)/8

	newHash, err := hashConstructor(digest)
	if err != nil {
		return nil, err
	}
	kdf := hkdf.New(newHash, secret, nil, info)

	out := make([]byte, keyBytes+ivBytes)
	if _, err := io.ReadFull(kdf, out); err != nil {
		return nil, fmt.Errorf("keymaterial: deriving pre-auth material: %w", err)
	}
	return New(out[:keyBytes], out[keyBytes:], info, keyBits, ivBits)
}
