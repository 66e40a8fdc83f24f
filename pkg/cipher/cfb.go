package cipher

import (
	"golang.org/x/sync/errgroup"

	"github.com/modulexcite/cex/pkg/primitive"
)

// CFB is cipher feedback mode. The underlying block cipher is always run
// in its encrypt direction to generate keystream, for both CFB-encrypt and
// CFB-decrypt: c_i = E(c_{i-1}) XOR p_i, p_i = E(c_{i-1}) XOR c_i.
// Decryption only reads ciphertext to build its keystream chain, so it
// parallelizes; encryption is serial (spec.md §4.3).
type CFB struct {
	*base
	iv []byte
}

func NewCFB(engineKind primitive.EngineKind, threadCount int) (*CFB, error) {
	b, err := newBase(engineKind, threadCount)
	if err != nil {
		return nil, err
	}
	return &CFB{base: b}, nil
}

func (m *CFB) Init(isEncrypt bool, key primitive.KeyMaterial) error {
	// The block cipher always runs as an encrypter in CFB; isEncrypt only
	// selects which of the mode's two chaining rules TransformBlock uses.
	if err := m.cipher.Init(true, key); err != nil {
		return err
	}
	m.key = key
	m.isEncrypt = isEncrypt
	m.state = stateReady
	m.iv = append([]byte(nil), key.IV()...)
	return nil
}

func (m *CFB) TransformBlock(inBuf []byte, inOff int, outBuf []byte, outOff int) error {
	if m.state != stateReady {
		return ErrNotInitialized
	}
	bs := m.blockSize
	in := inBuf[inOff : inOff+bs]
	out := outBuf[outOff : outOff+bs]

	keystream := make([]byte, bs)
	if err := m.cipher.TransformBlock(m.iv, keystream); err != nil {
		return err
	}
	xorBytes(out, in, keystream)
	if m.isEncrypt {
		copy(m.iv, out)
	} else {
		copy(m.iv, in)
	}
	return nil
}

func (m *CFB) Transform(input, output []byte) error {
	if m.state != stateReady {
		return ErrNotInitialized
	}
	if len(input) != len(output) {
		return ErrInvalidLength
	}
	if m.isEncrypt {
		return m.serial(input, output)
	}

	pos := 0
	n := len(input)
	if m.isParallel {
		p := m.parallelBlockSize
		for n-pos >= p {
			if err := m.decryptParallelChunk(input[pos:pos+p], output[pos:pos+p]); err != nil {
				return err
			}
			pos += p
		}
	}
	return m.serial(input[pos:], output[pos:])
}

func (m *CFB) serial(input, output []byte) error {
	bs := m.blockSize
	if len(input)%bs != 0 {
		return ErrInvalidSize
	}
	for pos := 0; pos < len(input); pos += bs {
		if err := m.TransformBlock(input, pos, output, pos); err != nil {
			return err
		}
	}
	return nil
}

// decryptParallelChunk mirrors CBC's decrypt decomposition: every thread
// reads only from in/baseIV (never from another thread's output).
func (m *CFB) decryptParallelChunk(in, out []byte) error {
	bs := m.blockSize
	k := len(in) / bs
	threads := m.threadCount
	if threads > k {
		threads = k
	}
	baseIV := append([]byte(nil), m.iv...)

	if threads <= 1 {
		if err := m.decryptBlocksFrom(m.cipher, in, out, baseIV, 0, k); err != nil {
			return err
		}
		copy(m.iv, in[(k-1)*bs:k*bs])
		return nil
	}

	blocksPerChunk := k / threads
	var g errgroup.Group
	pos := 0
	for t := 0; t < threads; t++ {
		threadBlocks := blocksPerChunk
		if t == threads-1 {
			threadBlocks = k - blocksPerChunk*(threads-1)
		}
		lo, hi := pos, pos+threadBlocks
		g.Go(func() error {
			threadCipher, err := m.newThreadCipher()
			if err != nil {
				return err
			}
			return m.decryptBlocksFrom(threadCipher, in, out, baseIV, lo, hi)
		})
		pos += threadBlocks
	}
	if err := g.Wait(); err != nil {
		return err
	}
	copy(m.iv, in[(k-1)*bs:k*bs])
	return nil
}

func (m *CFB) decryptBlocksFrom(cipher primitive.BlockCipher, in, out, baseIV []byte, lo, hi int) error {
	bs := m.blockSize
	keystream := make([]byte, bs)
	for i := lo; i < hi; i++ {
		off := i * bs
		var prev []byte
		if i == 0 {
			prev = baseIV
		} else {
			prev = in[(i-1)*bs : i*bs]
		}
		if err := cipher.TransformBlock(prev, keystream); err != nil {
			return err
		}
		xorBytes(out[off:off+bs], in[off:off+bs], keystream)
	}
	return nil
}
