package primitive

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type testKeyMaterial struct {
	key, iv, info []byte
}

func (k testKeyMaterial) Key() []byte  { return k.key }
func (k testKeyMaterial) IV() []byte   { return k.iv }
func (k testKeyMaterial) Info() []byte { return k.info }

func TestUnsupportedKindsError(t *testing.T) {
	_, err := NewBlockCipher(EngineKind(0xFFFF))
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported")

	_, err = NewDigest(DigestKind(0xFF))
	require.Error(t, err)

	_, err = NewPrng(PrngKind(0xFF))
	require.Error(t, err)
}

func TestAESBlockCipherRoundTrip(t *testing.T) {
	km := testKeyMaterial{key: make([]byte, 32)}
	enc, err := NewBlockCipher(AES)
	require.NoError(t, err)
	require.NoError(t, enc.Init(true, km))

	plaintext := make([]byte, enc.BlockSize())
	for i := range plaintext {
		plaintext[i] = byte(i)
	}
	ciphertext := make([]byte, enc.BlockSize())
	require.NoError(t, enc.TransformBlock(plaintext, ciphertext))
	require.NotEqual(t, plaintext, ciphertext)

	dec, err := NewBlockCipher(AES)
	require.NoError(t, err)
	require.NoError(t, dec.Init(false, km))
	roundTrip := make([]byte, enc.BlockSize())
	require.NoError(t, dec.TransformBlock(ciphertext, roundTrip))
	require.Equal(t, plaintext, roundTrip)
}

func TestHMACSHA256(t *testing.T) {
	mac, err := NewMac(HMACSHA256)
	require.NoError(t, err)
	require.NoError(t, mac.InitKey([]byte("key")))
	mac.Update([]byte("hello "))
	mac.Update([]byte("world"))
	sum := mac.Finalize(nil)
	require.Len(t, sum, mac.DigestSize())
}

func TestPrngFill(t *testing.T) {
	for _, kind := range []PrngKind{CSPRNG, CtrDrbg, ChaChaPrng} {
		prng, err := NewPrng(kind)
		require.NoError(t, err)
		buf := make([]byte, 32)
		require.NoError(t, prng.Fill(buf))
		allZero := true
		for _, b := range buf {
			if b != 0 {
				allZero = false
				break
			}
		}
		require.False(t, allZero, "kind %v produced all-zero output", kind)
	}
}

func TestX25519BoxRoundTrip(t *testing.T) {
	pke, err := NewPke(X25519Box)
	require.NoError(t, err)

	pub, priv, err := pke.Keygen()
	require.NoError(t, err)

	seed := []byte("0123456789abcdef0123456789abcdef")
	ciphertext, err := pke.Seal(pub, seed)
	require.NoError(t, err)

	opened, err := pke.Open(priv, pub, ciphertext)
	require.NoError(t, err)
	require.Equal(t, seed, opened)
}
