package keymaterial

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/modulexcite/cex/pkg/primitive"
)

// TestPBKDF2Vectors is property P4 / scenario S5 from spec.md §8.
func TestPBKDF2Vectors(t *testing.T) {
	cases := []struct {
		iterations int
		want       string
	}{
		{1, "120fb6cffcf8b32c43e7225256c4f837a86548c92ccc35480805987cb70be17b"},
		{4096, "c5e478d59288c841aa530db6845c4c8d962893a001ce4e11a4963873aa98134a"},
	}
	for _, c := range cases {
		got, err := PBKDF2([]byte("password"), []byte("salt"), c.iterations, 32, primitive.SHA256)
		require.NoError(t, err)
		require.Equal(t, c.want, hex.EncodeToString(got))
	}
}

func TestMaterialDestroyZeroes(t *testing.T) {
	m, err := New(make([]byte, 32), make([]byte, 16), []byte("info"), 256, 128)
	require.NoError(t, err)
	m.key[0] = 0xAB
	m.Destroy()
	for _, b := range m.key {
		require.Zero(t, b)
	}
	for _, b := range m.iv {
		require.Zero(t, b)
	}
}

func TestGeneratorDeriveProducesDistinctMaterial(t *testing.T) {
	gen, err := NewGenerator(primitive.CSPRNG, primitive.SHA256)
	require.NoError(t, err)

	a, err := gen.Derive([]byte("session-a"), 256, 128)
	require.NoError(t, err)
	defer a.Destroy()

	b, err := gen.Derive([]byte("session-b"), 256, 128)
	require.NoError(t, err)
	defer b.Destroy()

	require.False(t, a.Equal(b))
	require.Len(t, a.Key(), 32)
	require.Len(t, a.IV(), 16)
}

func TestWithDestroysOnPanicAndReturn(t *testing.T) {
	m, err := New(make([]byte, 32), make([]byte, 16), nil, 256, 128)
	require.NoError(t, err)
	m.key[0] = 1

	err = With(m, func(mm *Material) error {
		require.Equal(t, byte(1), mm.Key()[0])
		return nil
	})
	require.NoError(t, err)
	require.Zero(t, m.key[0])

	p, err := New(make([]byte, 32), make([]byte, 16), nil, 256, 128)
	require.NoError(t, err)
	p.key[0] = 1
	require.Panics(t, func() {
		_ = With(p, func(*Material) error { panic("boom") })
	})
	require.Zero(t, p.key[0])
}
