package cipher

import (
	"golang.org/x/sync/errgroup"

	"github.com/modulexcite/cex/pkg/primitive"
)

// CTR is counter mode: keystream_i = E(counter + i), ciphertext = plaintext
// XOR keystream. Encryption and decryption are the same operation.
type CTR struct {
	*base
	counter []byte
}

// NewCTR builds a CTR engine over the named block cipher engine, using
// threadCount goroutines for parallel transforms (0 = GOMAXPROCS).
func NewCTR(engineKind primitive.EngineKind, threadCount int) (*CTR, error) {
	b, err := newBase(engineKind, threadCount)
	if err != nil {
		return nil, err
	}
	return &CTR{base: b}, nil
}

func (c *CTR) Init(isEncrypt bool, key primitive.KeyMaterial) error {
	// CTR's keystream schedule does not depend on direction.
	if err := c.base.init(true, key); err != nil {
		return err
	}
	c.counter = append([]byte(nil), key.IV()...)
	return nil
}

// TransformBlock advances the engine's internal counter by one block.
func (c *CTR) TransformBlock(inBuf []byte, inOff int, outBuf []byte, outOff int) error {
	if c.state != stateReady {
		return ErrNotInitialized
	}
	keystream := make([]byte, c.blockSize)
	if err := c.cipher.TransformBlock(c.counter, keystream); err != nil {
		return err
	}
	xorBytes(outBuf[outOff:outOff+c.blockSize], inBuf[inOff:inOff+c.blockSize], keystream)
	incrementCounter(c.counter, 1)
	return nil
}

// Transform encrypts/decrypts input into output, continuing from wherever
// the engine's counter currently stands. When IsParallel is set and input
// is at least ParallelBlockSize, full ParallelBlockSize chunks are each
// fanned out across threadCount goroutines (spec.md §4.3); the remainder
// and any non-parallel input is processed serially. Both paths must and
// do produce byte-identical output (spec.md P1).
func (c *CTR) Transform(input, output []byte) error {
	if c.state != stateReady {
		return ErrNotInitialized
	}
	if len(input) != len(output) {
		return ErrInvalidLength
	}

	pos := 0
	n := len(input)
	if c.isParallel {
		p := c.parallelBlockSize
		for n-pos >= p {
			if err := c.transformParallelChunk(input[pos:pos+p], output[pos:pos+p]); err != nil {
				return err
			}
			pos += p
		}
	}
	return c.transformSerial(input[pos:], output[pos:])
}

// transformSerial processes an arbitrary (possibly non-block-aligned)
// remainder at the engine's current counter position, advancing it.
func (c *CTR) transformSerial(input, output []byte) error {
	keystream := make([]byte, c.blockSize)
	pos := 0
	for pos < len(input) {
		end := pos + c.blockSize
		if end > len(input) {
			end = len(input)
		}
		if err := c.cipher.TransformBlock(c.counter, keystream); err != nil {
			return err
		}
		xorBytes(output[pos:end], input[pos:end], keystream[:end-pos])
		incrementCounter(c.counter, 1)
		pos = end
	}
	return nil
}

// transformParallelChunk processes exactly len(in)/blockSize blocks (in
// must be block-aligned) by splitting them into threadCount contiguous,
// equal-sized ranges; the last thread absorbs any remainder blocks that
// don't divide evenly (spec.md §4.3's ordering/tie-break rule).
func (c *CTR) transformParallelChunk(in, out []byte) error {
	k := len(in) / c.blockSize
	threads := c.threadCount
	if threads > k {
		threads = k
	}
	if threads <= 1 {
		return c.transformBlocksFrom(c.cipher, in, out, c.counter, k)
	}

	blocksPerChunk := k / threads
	baseCounter := append([]byte(nil), c.counter...)

	var g errgroup.Group
	pos := 0
	for t := 0; t < threads; t++ {
		threadBlocks := blocksPerChunk
		if t == threads-1 {
			threadBlocks = k - blocksPerChunk*(threads-1)
		}
		start := pos * c.blockSize
		end := start + threadBlocks*c.blockSize
		threadCounter := addCounter(baseCounter, uint64(blocksPerChunk*t))
		inSlice, outSlice := in[start:end], out[start:end]

		g.Go(func() error {
			threadCipher, err := c.newThreadCipher()
			if err != nil {
				return err
			}
			return c.transformBlocksFrom(threadCipher, inSlice, outSlice, threadCounter, threadBlocks)
		})
		pos += threadBlocks
	}
	if err := g.Wait(); err != nil {
		return err
	}
	incrementCounter(c.counter, uint64(k))
	return nil
}

// transformBlocksFrom runs nBlocks counter-mode blocks starting at counter
// (which it mutates in place), using cipher as the keystream generator.
func (c *CTR) transformBlocksFrom(cipher primitive.BlockCipher, in, out []byte, counter []byte, nBlocks int) error {
	keystream := make([]byte, c.blockSize)
	for i := 0; i < nBlocks; i++ {
		off := i * c.blockSize
		if err := cipher.TransformBlock(counter, keystream); err != nil {
			return err
		}
		xorBytes(out[off:off+c.blockSize], in[off:off+c.blockSize], keystream)
		incrementCounter(counter, 1)
	}
	return nil
}
