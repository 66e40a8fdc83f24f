package stream

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/modulexcite/cex/pkg/primitive"
)

func newHMAC(t *testing.T) primitive.Mac {
	t.Helper()
	m, err := primitive.NewMac(primitive.HMACSHA256)
	require.NoError(t, err)
	key := make([]byte, 32)
	_, err = rand.Read(key)
	require.NoError(t, err)
	require.NoError(t, m.InitKey(key))
	return m
}

func macOf(t *testing.T, data []byte) []byte {
	t.Helper()
	m := newHMAC(t)
	m.Update(data)
	return m.Finalize(nil)
}

// TestStreamMacSequentialVsConcurrent is property P3 / scenario S4.
func TestStreamMacSequentialVsConcurrent(t *testing.T) {
	sizes := []int{117674, 69041, 65536}
	for _, size := range sizes {
		data := make([]byte, size)
		_, err := rand.Read(data)
		require.NoError(t, err)

		key := make([]byte, 32)
		_, err = rand.Read(key)
		require.NoError(t, err)

		wantMac, err := primitive.NewMac(primitive.HMACSHA256)
		require.NoError(t, err)
		require.NoError(t, wantMac.InitKey(key))
		wantMac.Update(data)
		want := wantMac.Finalize(nil)

		seqMac, err := primitive.NewMac(primitive.HMACSHA256)
		require.NoError(t, err)
		require.NoError(t, seqMac.InitKey(key))
		seqProc, err := New(Options{BufferSize: 8192, Concurrent: false})
		require.NoError(t, err)
		require.NoError(t, seqProc.Run(bytes.NewReader(data), int64(size), MacSink{Mac: seqMac}))
		require.Equal(t, want, seqMac.Finalize(nil))

		conMac, err := primitive.NewMac(primitive.HMACSHA256)
		require.NoError(t, err)
		require.NoError(t, conMac.InitKey(key))
		conProc, err := New(Options{BufferSize: 8192, Concurrent: true, QueueCapacity: 4})
		require.NoError(t, err)
		require.NoError(t, conProc.Run(bytes.NewReader(data), int64(size), MacSink{Mac: conMac}))
		require.Equal(t, want, conMac.Finalize(nil))
	}
}

func TestStreamProgressReportsCompletion(t *testing.T) {
	data := make([]byte, 4096)
	_, err := rand.Read(data)
	require.NoError(t, err)

	var lastDone, lastTotal int64
	calls := 0
	proc, err := New(Options{
		BufferSize: 1024,
		Progress: func(done, total int64) {
			calls++
			lastDone, lastTotal = done, total
		},
	})
	require.NoError(t, err)

	d, err := primitive.NewDigest(primitive.SHA256)
	require.NoError(t, err)
	require.NoError(t, proc.Run(bytes.NewReader(data), int64(len(data)), DigestSink{Digest: d}))

	require.Greater(t, calls, 0)
	require.Equal(t, int64(len(data)), lastDone)
	require.Equal(t, int64(len(data)), lastTotal)
}

func TestStreamQueueCapacityRejected(t *testing.T) {
	_, err := New(Options{QueueCapacity: 1})
	require.ErrorIs(t, err, ErrQueueCapacity)
}
