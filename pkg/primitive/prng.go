package primitive

import (
	"crypto/rand"
	"encoding/binary"
	"io"

	ctrdrbg "github.com/sixafter/aes-ctr-drbg"
	chachaprng "github.com/sixafter/prng-chacha"
)

func init() {
	RegisterPrng(CSPRNG, func() Prng { return &readerPrng{source: rand.Reader} })
	RegisterPrng(CtrDrbg, func() Prng { return &readerPrng{source: ctrdrbg.Reader} })
	RegisterPrng(ChaChaPrng, func() Prng {
		r, err := chachaprng.NewReader()
		if err != nil {
			// The ChaCha20 CSPRNG only fails to construct if the host's
			// entropy source is broken; fall back to the stdlib source
			// rather than leaving the registry entry unusable.
			return &readerPrng{source: rand.Reader}
		}
		return &readerPrng{source: r}
	})
}

// readerPrng adapts any io.Reader-shaped CSPRNG (crypto/rand, the
// AES-CTR-DRBG pool, or the ChaCha20 PRNG) to the Prng interface, per
// spec.md §1's treatment of individual PRNGs as interchangeable primitives.
type readerPrng struct {
	source io.Reader
}

func (p *readerPrng) Fill(buf []byte) error {
	_, err := io.ReadFull(p.source, buf)
	return err
}

func (p *readerPrng) NextUint32() (uint32, error) {
	var b [4]byte
	if err := p.Fill(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}
