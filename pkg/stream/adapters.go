package stream

import (
	"github.com/modulexcite/cex/pkg/cipher"
	"github.com/modulexcite/cex/pkg/primitive"
)

// DigestSink feeds every chunk into a primitive.Digest. Process ignores
// out: digests have no per-chunk output, only a final Finalize.
type DigestSink struct {
	Digest primitive.Digest
}

func (s DigestSink) Process(chunk, _ []byte) error {
	s.Digest.Update(chunk)
	return nil
}

func (s DigestSink) BlockSize() int { return s.Digest.BlockSize() }

// MacSink feeds every chunk into a primitive.Mac. Process ignores out for
// the same reason as DigestSink.
type MacSink struct {
	Mac primitive.Mac
}

func (s MacSink) Process(chunk, _ []byte) error {
	s.Mac.Update(chunk)
	return nil
}

func (s MacSink) BlockSize() int { return s.Mac.BlockSize() }

// CipherSink drives a cipher-mode Engine, writing each chunk's transform
// into out.
type CipherSink struct {
	Engine cipher.Engine
}

func (s CipherSink) Process(chunk, out []byte) error {
	return s.Engine.Transform(chunk, out)
}

func (s CipherSink) BlockSize() int { return s.Engine.BlockSize() }
