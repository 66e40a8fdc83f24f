package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := Header{
		PayloadLen: 128,
		PacketType: PacketExchange,
		Sequence:   0xdeadbeef,
		PacketFlag: uint16(ExchangeAuthEx),
		OptionFlag: 0x0102030405060708,
	}
	buf, err := h.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, buf, HeaderSize)

	var got Header
	require.NoError(t, got.UnmarshalBinary(buf))
	require.Equal(t, h, got)
}

func TestHeaderBadMagic(t *testing.T) {
	h := Header{PacketType: PacketService}
	buf, err := h.MarshalBinary()
	require.NoError(t, err)
	buf[0] ^= 0xff

	var got Header
	require.ErrorIs(t, got.UnmarshalBinary(buf), ErrBadMagic)
}

func TestCodecRoundTrip(t *testing.T) {
	codec := NewCodec(1 << 20)
	payload := []byte("hello dtm")
	var buf bytes.Buffer
	p := Packet{
		Header: Header{
			PacketType: PacketMessage,
			Sequence:   7,
			PacketFlag: 0,
			OptionFlag: 42,
		},
		Payload: payload,
	}
	require.NoError(t, codec.Encode(&buf, p))

	got, err := codec.Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, p.Header.PacketType, got.Header.PacketType)
	require.Equal(t, p.Header.Sequence, got.Header.Sequence)
	require.Equal(t, p.Header.OptionFlag, got.Header.OptionFlag)
	require.Equal(t, payload, got.Payload)
}

func TestCodecRejectsOversizePayload(t *testing.T) {
	codec := NewCodec(4)
	var buf bytes.Buffer
	err := codec.Encode(&buf, Packet{Payload: []byte("toolong")})
	require.ErrorIs(t, err, ErrPayloadTooLarge)
}

func TestCodecTruncatedFrame(t *testing.T) {
	codec := NewCodec(1024)
	var buf bytes.Buffer
	require.NoError(t, codec.Encode(&buf, Packet{Payload: []byte("abc")}))
	truncated := bytes.NewReader(buf.Bytes()[:HeaderSize+1])
	_, err := codec.Decode(truncated)
	require.ErrorIs(t, err, ErrTruncatedFrame)
}

func TestSequenceTrackerInOrder(t *testing.T) {
	tr := NewSequenceTracker()
	for seq := uint32(0); seq < 5; seq++ {
		deliverable, ok := tr.Accept(Packet{Header: Header{Sequence: seq}})
		require.True(t, ok)
		require.Len(t, deliverable, 1)
		require.Equal(t, seq, deliverable[0].Header.Sequence)
	}
	require.Equal(t, uint32(5), tr.Expected())
}

func TestSequenceTrackerOutOfOrderBuffersThenFlushes(t *testing.T) {
	tr := NewSequenceTracker()

	deliverable, ok := tr.Accept(Packet{Header: Header{Sequence: 2}})
	require.True(t, ok)
	require.Empty(t, deliverable)

	deliverable, ok = tr.Accept(Packet{Header: Header{Sequence: 1}})
	require.True(t, ok)
	require.Empty(t, deliverable)

	deliverable, ok = tr.Accept(Packet{Header: Header{Sequence: 0}})
	require.True(t, ok)
	require.Len(t, deliverable, 3)
	require.Equal(t, []uint32{0, 1, 2}, []uint32{
		deliverable[0].Header.Sequence,
		deliverable[1].Header.Sequence,
		deliverable[2].Header.Sequence,
	})
	require.Equal(t, uint32(3), tr.Expected())
}

func TestSequenceTrackerRejectsBeyondWindow(t *testing.T) {
	tr := NewSequenceTracker()
	_, ok := tr.Accept(Packet{Header: Header{Sequence: Window}})
	require.False(t, ok)
}

func TestSequenceTrackerPendingGaps(t *testing.T) {
	tr := NewSequenceTracker()
	_, ok := tr.Accept(Packet{Header: Header{Sequence: 3}})
	require.True(t, ok)
	gaps := tr.PendingGaps(4)
	require.Equal(t, []uint32{0, 1, 2}, gaps)
}
