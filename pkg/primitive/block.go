package primitive

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

func init() {
	RegisterBlockCipher(AES, func() BlockCipher { return &aesBlock{} })
}

// aesBlock is the concrete BlockCipher backing EngineKind.AES. Rijndael's
// own round function is out of scope per spec.md §1; crypto/aes stands in
// as the one concrete implementation the mode engine (pkg/cipher) drives
// through the BlockCipher interface.
type aesBlock struct {
	block     cipher.Block
	encrypt   bool
	initDone  bool
}

func (a *aesBlock) BlockSize() int { return aes.BlockSize }

func (a *aesBlock) Init(isEncrypt bool, key KeyMaterial) error {
	block, err := aes.NewCipher(key.Key())
	if err != nil {
		return fmt.Errorf("aes: %w", err)
	}
	a.block = block
	a.encrypt = isEncrypt
	a.initDone = true
	return nil
}

func (a *aesBlock) TransformBlock(input, output []byte) error {
	if !a.initDone {
		return fmt.Errorf("aes: not initialized")
	}
	if len(input) != aes.BlockSize || len(output) != aes.BlockSize {
		return fmt.Errorf("aes: transform requires %d-byte blocks", aes.BlockSize)
	}
	if a.encrypt {
		a.block.Encrypt(output, input)
	} else {
		a.block.Decrypt(output, input)
	}
	return nil
}
