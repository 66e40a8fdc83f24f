package primitive

import (
	"crypto/sha256"
	"crypto/sha512"
	"hash"
)

func init() {
	RegisterDigest(SHA256, func() Digest { return newHashDigest(sha256.New(), sha256.BlockSize, sha256.Size) })
	RegisterDigest(SHA512, func() Digest { return newHashDigest(sha512.New(), sha512.BlockSize, sha512.Size) })
}

// hashDigest adapts a stdlib hash.Hash to the Digest interface. Individual
// digest round functions (Keccak/Blake/Skein/SHA2 variants) are out of
// scope per spec.md §1; crypto/sha256 and crypto/sha512 stand in as the
// concrete implementations the stream processor (C4) and MAC (C1) drive.
type hashDigest struct {
	h          hash.Hash
	blockSize  int
	digestSize int
}

func newHashDigest(h hash.Hash, blockSize, digestSize int) *hashDigest {
	return &hashDigest{h: h, blockSize: blockSize, digestSize: digestSize}
}

func (d *hashDigest) BlockSize() int  { return d.blockSize }
func (d *hashDigest) DigestSize() int { return d.digestSize }
func (d *hashDigest) Update(p []byte) { d.h.Write(p) }
func (d *hashDigest) Reset()          { d.h.Reset() }

func (d *hashDigest) Finalize(into []byte) []byte {
	sum := d.h.Sum(into[:0])
	d.h.Reset()
	return sum
}
