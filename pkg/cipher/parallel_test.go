package cipher

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/modulexcite/cex/pkg/keymaterial"
	"github.com/modulexcite/cex/pkg/primitive"
)

func randomMaterial(t *testing.T, keyBytes, ivBytes int) *keymaterial.Material {
	t.Helper()
	key := make([]byte, keyBytes)
	iv := make([]byte, ivBytes)
	_, err := rand.Read(key)
	require.NoError(t, err)
	_, err = rand.Read(iv)
	require.NoError(t, err)
	m, err := keymaterial.New(key, iv, nil, uint16(keyBytes*8), uint16(ivBytes*8))
	require.NoError(t, err)
	return m
}

// TestCTRParallelEqualsSerial is scenario S1 / property P1.
func TestCTRParallelEqualsSerial(t *testing.T) {
	km := randomMaterial(t, 32, 16)
	plaintext := make([]byte, 1036)
	_, err := rand.Read(plaintext)
	require.NoError(t, err)

	par, err := NewCTR(primitive.AES, 4)
	require.NoError(t, err)
	require.NoError(t, par.Init(true, km))
	require.NoError(t, par.SetParallelBlockSize(1024))
	par.SetIsParallel(true)
	ePar := make([]byte, len(plaintext))
	require.NoError(t, par.Transform(plaintext, ePar))

	ser, err := NewCTR(primitive.AES, 4)
	require.NoError(t, err)
	require.NoError(t, ser.Init(true, km))
	ser.SetIsParallel(false)
	eSer := make([]byte, len(plaintext))
	require.NoError(t, ser.Transform(plaintext, eSer))

	require.Equal(t, eSer, ePar)

	// Decrypt both ways and check round trip.
	for _, ct := range [][]byte{ePar, eSer} {
		dec, err := NewCTR(primitive.AES, 4)
		require.NoError(t, err)
		require.NoError(t, dec.Init(true, km))
		got := make([]byte, len(ct))
		require.NoError(t, dec.Transform(ct, got))
		require.Equal(t, plaintext, got)
	}
}

// TestCBCDecryptParallelEqualsSerial is scenario S2.
func TestCBCDecryptParallelEqualsSerial(t *testing.T) {
	km := randomMaterial(t, 32, 16)
	plaintext := make([]byte, 2048)
	_, err := rand.Read(plaintext)
	require.NoError(t, err)

	enc, err := NewCBC(primitive.AES, 4)
	require.NoError(t, err)
	require.NoError(t, enc.Init(true, km))
	ciphertext := make([]byte, len(plaintext))
	require.NoError(t, enc.Transform(plaintext, ciphertext))

	decPar, err := NewCBC(primitive.AES, 4)
	require.NoError(t, err)
	require.NoError(t, decPar.Init(false, km))
	require.NoError(t, decPar.SetParallelBlockSize(1024))
	pPar := make([]byte, len(ciphertext))
	require.NoError(t, decPar.Transform(ciphertext, pPar))

	decSer, err := NewCBC(primitive.AES, 4)
	require.NoError(t, err)
	require.NoError(t, decSer.Init(false, km))
	decSer.SetIsParallel(false)
	pSer := make([]byte, len(ciphertext))
	require.NoError(t, decSer.Transform(ciphertext, pSer))

	require.Equal(t, pSer, pPar)
	require.Equal(t, plaintext, pPar)
}

// TestCFBDecryptParallelEqualsSerial is scenario S3.
func TestCFBDecryptParallelEqualsSerial(t *testing.T) {
	km := randomMaterial(t, 32, 16)
	plaintext := make([]byte, 2048)
	_, err := rand.Read(plaintext)
	require.NoError(t, err)

	enc, err := NewCFB(primitive.AES, 4)
	require.NoError(t, err)
	require.NoError(t, enc.Init(true, km))
	ciphertext := make([]byte, len(plaintext))
	require.NoError(t, enc.Transform(plaintext, ciphertext))

	decPar, err := NewCFB(primitive.AES, 4)
	require.NoError(t, err)
	require.NoError(t, decPar.Init(false, km))
	require.NoError(t, decPar.SetParallelBlockSize(1024))
	pPar := make([]byte, len(ciphertext))
	require.NoError(t, decPar.Transform(ciphertext, pPar))

	decSer, err := NewCFB(primitive.AES, 4)
	require.NoError(t, err)
	require.NoError(t, decSer.Init(false, km))
	decSer.SetIsParallel(false)
	pSer := make([]byte, len(ciphertext))
	require.NoError(t, decSer.Transform(ciphertext, pSer))

	require.Equal(t, pSer, pPar)
	require.Equal(t, plaintext, pPar)
}

// TestRoundTripAllModes is property P2.
func TestRoundTripAllModes(t *testing.T) {
	modes := []primitive.CipherMode{primitive.ModeCTR, primitive.ModeCBC, primitive.ModeCFB, primitive.ModeOFB}
	for _, mode := range modes {
		km := randomMaterial(t, 32, 16)
		plaintext := make([]byte, 256)
		_, err := rand.Read(plaintext)
		require.NoError(t, err)

		enc, err := New(mode, primitive.AES, 2)
		require.NoError(t, err)
		require.NoError(t, enc.Init(true, km))
		ciphertext := make([]byte, len(plaintext))
		require.NoError(t, enc.Transform(plaintext, ciphertext))

		dec, err := New(mode, primitive.AES, 2)
		require.NoError(t, err)
		require.NoError(t, dec.Init(mode == primitive.ModeCTR || mode == primitive.ModeOFB, km))
		got := make([]byte, len(ciphertext))
		require.NoError(t, dec.Transform(ciphertext, got))
		require.Equal(t, plaintext, got, "mode %v round trip", mode)
	}
}

func TestTransformBlockBeforeInitFails(t *testing.T) {
	eng, err := NewCTR(primitive.AES, 1)
	require.NoError(t, err)
	err = eng.TransformBlock(make([]byte, 16), 0, make([]byte, 16), 0)
	require.ErrorIs(t, err, ErrNotInitialized)
}

func TestSetParallelBlockSizeBounds(t *testing.T) {
	eng, err := NewCTR(primitive.AES, 4)
	require.NoError(t, err)
	min := eng.ParallelMinSize()
	require.NoError(t, eng.SetParallelBlockSize(min*2))
	require.Error(t, eng.SetParallelBlockSize(min+1))
	require.Error(t, eng.SetParallelBlockSize(min-1))
}
