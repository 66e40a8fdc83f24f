package cipher

import (
	"golang.org/x/sync/errgroup"

	"github.com/modulexcite/cex/pkg/primitive"
)

// CBC is cipher block chaining. Encryption is inherently serial
// (c_i = E(p_i XOR c_{i-1})); decryption (p_i = D(c_i) XOR c_{i-1}) reads
// only ciphertext, so it parallelizes across threads (spec.md §4.3).
type CBC struct {
	*base
	iv []byte
}

func NewCBC(engineKind primitive.EngineKind, threadCount int) (*CBC, error) {
	b, err := newBase(engineKind, threadCount)
	if err != nil {
		return nil, err
	}
	return &CBC{base: b}, nil
}

func (m *CBC) Init(isEncrypt bool, key primitive.KeyMaterial) error {
	if err := m.base.init(isEncrypt, key); err != nil {
		return err
	}
	m.iv = append([]byte(nil), key.IV()...)
	return nil
}

func (m *CBC) TransformBlock(inBuf []byte, inOff int, outBuf []byte, outOff int) error {
	if m.state != stateReady {
		return ErrNotInitialized
	}
	bs := m.blockSize
	in := inBuf[inOff : inOff+bs]
	out := outBuf[outOff : outOff+bs]
	if m.isEncrypt {
		tmp := make([]byte, bs)
		xorBytes(tmp, in, m.iv)
		if err := m.cipher.TransformBlock(tmp, out); err != nil {
			return err
		}
		copy(m.iv, out)
	} else {
		tmp := make([]byte, bs)
		if err := m.cipher.TransformBlock(in, tmp); err != nil {
			return err
		}
		xorBytes(out, tmp, m.iv)
		copy(m.iv, in)
	}
	return nil
}

func (m *CBC) Transform(input, output []byte) error {
	if m.state != stateReady {
		return ErrNotInitialized
	}
	if len(input) != len(output) {
		return ErrInvalidLength
	}
	if m.isEncrypt {
		// No parallel path for CBC encryption, per spec.md §4.3.
		return m.encryptSerial(input, output)
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
	return m.decryptSerial(input[pos:], output[pos:])
}

func (m *CBC) encryptSerial(input, output []byte) error {
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

func (m *CBC) decryptSerial(input, output []byte) error {
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

// decryptParallelChunk decrypts exactly len(in)/blockSize blocks, each
// p_i = D(c_i) XOR c_{i-1} (or the running IV for the chunk's first
// block), across threadCount contiguous ranges. Every thread only reads
// from in/baseIV, so ranges never depend on each other's output.
func (m *CBC) decryptParallelChunk(in, out []byte) error {
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
		lo := pos
		hi := pos + threadBlocks
		g.Go(func() error {
			threadCipher, err := m.newThreadDecrypter()
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

// decryptBlocksFrom decrypts global block indices [lo, hi) of in/out,
// using baseIV as the predecessor ciphertext for block 0.
func (m *CBC) decryptBlocksFrom(cipher primitive.BlockCipher, in, out, baseIV []byte, lo, hi int) error {
	bs := m.blockSize
	tmp := make([]byte, bs)
	for i := lo; i < hi; i++ {
		off := i * bs
		if err := cipher.TransformBlock(in[off:off+bs], tmp); err != nil {
			return err
		}
		var prev []byte
		if i == 0 {
			prev = baseIV
		} else {
			prev = in[(i-1)*bs : i*bs]
		}
		xorBytes(out[off:off+bs], tmp, prev)
	}
	return nil
}

func (m *CBC) newThreadDecrypter() (primitive.BlockCipher, error) {
	bc, err := primitive.NewBlockCipher(m.engineKind)
	if err != nil {
		return nil, err
	}
	if err := bc.Init(false, m.key); err != nil {
		return nil, err
	}
	return bc, nil
}
