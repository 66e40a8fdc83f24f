package kex

import (
	"encoding/binary"
	"time"

	"github.com/modulexcite/cex/pkg/primitive"
)

// timing derives randomized transmit delays and padding lengths from a
// Prng, per spec.md §4.6 "Timing defenses": asymmetric-key and symmetric-key
// messages wait uniformly in [max/2, max]; post-exchange messages wait
// uniformly in [0, max]. Padding sizes are uniform in [0, bound].
type timing struct {
	rng primitive.Prng
}

func newTiming(kind primitive.PrngKind) (*timing, error) {
	rng, err := primitive.NewPrng(kind)
	if err != nil {
		return nil, err
	}
	return &timing{rng: rng}, nil
}

func (t *timing) uniform(n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	v, err := t.rng.NextUint32()
	if err != nil {
		return 0, err
	}
	return int(v % uint32(n+1)), nil
}

// delayHalfToFull returns a randomized duration in [maxMs/2, maxMs].
func (t *timing) delayHalfToFull(maxMs int) (time.Duration, error) {
	if maxMs <= 0 {
		return 0, nil
	}
	lo := maxMs / 2
	span := maxMs - lo
	offset, err := t.uniform(span)
	if err != nil {
		return 0, err
	}
	return time.Duration(lo+offset) * time.Millisecond, nil
}

// delayZeroToFull returns a randomized duration in [0, maxMs], used for
// post-exchange messages.
func (t *timing) delayZeroToFull(maxMs int) (time.Duration, error) {
	ms, err := t.uniform(maxMs)
	if err != nil {
		return 0, err
	}
	return time.Duration(ms) * time.Millisecond, nil
}

// pad returns a uniformly-sized random byte slice in [0, bound].
func (t *timing) pad(bound int) ([]byte, error) {
	n, err := t.uniform(bound)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, n)
	if n > 0 {
		if err := t.rng.Fill(buf); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// padMessage wraps payload as u16 pre-padding length || pre-padding ||
// u32 payload length || payload || post-padding. The pre-padding length
// is itself on the wire so the receiver can locate the payload without
// having negotiated padding sizes in advance (spec.md §4.6's padding_bounds
// only bound the sender's random choice, not fix it).
func padMessage(payload []byte, pre, post []byte) []byte {
	preLenBuf := make([]byte, 2)
	binary.LittleEndian.PutUint16(preLenBuf, uint16(len(pre)))
	lenBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBuf, uint32(len(payload)))

	out := make([]byte, 0, 2+len(pre)+4+len(payload)+len(post))
	out = append(out, preLenBuf...)
	out = append(out, pre...)
	out = append(out, lenBuf...)
	out = append(out, payload...)
	out = append(out, post...)
	return out
}

// unpadMessage reverses padMessage.
func unpadMessage(framed []byte) ([]byte, error) {
	if len(framed) < 2 {
		return nil, ErrProtocolError
	}
	preLen := int(binary.LittleEndian.Uint16(framed[0:2]))
	pos := 2 + preLen
	if len(framed) < pos+4 {
		return nil, ErrProtocolError
	}
	n := binary.LittleEndian.Uint32(framed[pos : pos+4])
	pos += 4
	if len(framed) < pos+int(n) {
		return nil, ErrProtocolError
	}
	return framed[pos : pos+int(n)], nil
}
