package primitive

import (
	"fmt"

	"golang.org/x/crypto/chacha20"
)

func init() {
	RegisterStreamCipher(ChaCha20, func() StreamCipher { return &chacha20Stream{} })
}

// chacha20Stream backs EngineKind.ChaCha20, an interchangeable stream
// cipher per spec.md §1; it is driven directly (no mode engine needed,
// ChaCha20 is already a keystream cipher).
type chacha20Stream struct {
	cipher *chacha20.Cipher
}

func (c *chacha20Stream) Init(key KeyMaterial) error {
	nonce := key.IV()
	if len(nonce) != chacha20.NonceSize && len(nonce) != chacha20.NonceSizeX {
		return fmt.Errorf("chacha20: iv must be %d or %d bytes, got %d", chacha20.NonceSize, chacha20.NonceSizeX, len(nonce))
	}
	ciph, err := chacha20.NewUnauthenticatedCipher(key.Key(), nonce)
	if err != nil {
		return fmt.Errorf("chacha20: %w", err)
	}
	c.cipher = ciph
	return nil
}

func (c *chacha20Stream) Transform(input, output []byte) error {
	if c.cipher == nil {
		return fmt.Errorf("chacha20: not initialized")
	}
	if len(input) != len(output) {
		return fmt.Errorf("chacha20: input/output length mismatch")
	}
	c.cipher.XORKeyStream(output, input)
	return nil
}
