package primitive

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
)

func init() {
	RegisterMac(HMACSHA256, func() Mac { return &hmacMac{newHash: sha256.New, blockSize: sha256.BlockSize, digestSize: sha256.Size} })
	RegisterMac(HMACSHA512, func() Mac { return &hmacMac{newHash: sha512.New, blockSize: sha512.BlockSize, digestSize: sha512.Size} })
}

// hmacMac implements Mac over crypto/hmac, keyed by whichever digest the
// CipherDescription's mac_digest field names.
type hmacMac struct {
	newHash    func() hash.Hash
	blockSize  int
	digestSize int
	h          hash.Hash
}

func (m *hmacMac) BlockSize() int  { return m.blockSize }
func (m *hmacMac) DigestSize() int { return m.digestSize }
func (m *hmacMac) KeySize() int    { return m.blockSize }

func (m *hmacMac) InitKey(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("hmac: key must not be empty")
	}
	m.h = hmac.New(m.newHash, key)
	return nil
}

func (m *hmacMac) Update(p []byte) {
	if m.h != nil {
		m.h.Write(p)
	}
}

func (m *hmacMac) Reset() {
	if m.h != nil {
		m.h.Reset()
	}
}

func (m *hmacMac) Finalize(into []byte) []byte {
	if m.h == nil {
		return into
	}
	sum := m.h.Sum(into[:0])
	return sum
}
