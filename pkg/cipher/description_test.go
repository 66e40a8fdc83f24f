package cipher

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/modulexcite/cex/pkg/primitive"
)

func TestDescriptionRoundTrip(t *testing.T) {
	d := Description{
		Engine:        primitive.AES,
		KeyBits:       256,
		IVBits:        128,
		Mode:          primitive.ModeCTR,
		Padding:       primitive.PaddingPKCS7,
		BlockBits:     128,
		Rounds:        14,
		KDFDigest:     primitive.SHA256,
		MacDigestSize: 32,
		MacDigest:     primitive.SHA256,
	}
	buf, err := d.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, buf, DescriptionSize)

	var got Description
	require.NoError(t, got.UnmarshalBinary(buf))
	require.True(t, d.Equal(got))
}

func TestDescriptionReservedBytesAreZero(t *testing.T) {
	d := Description{Engine: primitive.AES, KeyBits: 256, IVBits: 128, Mode: primitive.ModeCBC}
	buf, err := d.MarshalBinary()
	require.NoError(t, err)
	for _, b := range buf[16:32] {
		require.Zero(t, b)
	}
}
