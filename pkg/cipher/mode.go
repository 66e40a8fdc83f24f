// Package cipher implements CEX component C3: the CTR/CBC/CFB/OFB
// block-mode engine with a deterministic parallel decomposition that must
// produce byte-identical output to the serial path (spec.md §4.3, P1).
package cipher

import (
	"runtime"

	"github.com/modulexcite/cex/pkg/primitive"
)

const minParallelMaxSize = 100 * 1024 * 1024 // 100 MiB, spec.md §4.3

type engineState int

const (
	stateUninitialized engineState = iota
	stateReady
)

// Engine is the public contract of the C3 block-mode engine (spec.md §4.3).
type Engine interface {
	BlockSize() int
	Init(isEncrypt bool, key primitive.KeyMaterial) error
	TransformBlock(inBuf []byte, inOff int, outBuf []byte, outOff int) error
	Transform(input, output []byte) error

	ParallelMinSize() int
	ParallelMaxSize() int
	ParallelBlockSize() int
	SetParallelBlockSize(n int) error
	IsParallel() bool
	SetIsParallel(bool)
}

// base holds the state and sizing fields shared by every mode
// implementation; each mode embeds it and adds its own Transform/
// TransformBlock.
type base struct {
	engineKind  primitive.EngineKind
	threadCount int
	blockSize   int
	isEncrypt   bool
	key         primitive.KeyMaterial
	cipher      primitive.BlockCipher
	state       engineState

	parallelMinSize   int
	parallelMaxSize   int
	parallelBlockSize int
	isParallel        bool
}

func newBase(engineKind primitive.EngineKind, threadCount int) (*base, error) {
	if threadCount <= 0 {
		threadCount = runtime.GOMAXPROCS(0)
	}
	bc, err := primitive.NewBlockCipher(engineKind)
	if err != nil {
		return nil, err
	}
	blockSize := bc.BlockSize()
	minSize := blockSize * threadCount
	return &base{
		engineKind:        engineKind,
		threadCount:       threadCount,
		blockSize:         blockSize,
		cipher:            bc,
		parallelMinSize:   minSize,
		parallelMaxSize:   minParallelMaxSize,
		parallelBlockSize: nearestMultiple(defaultParallelBlockSize(blockSize, threadCount), minSize),
		isParallel:        true,
	}, nil
}

// defaultParallelBlockSize targets roughly 32 KiB of L2-resident working
// set per thread, per spec.md §4.3's sizing guidance.
func defaultParallelBlockSize(blockSize, threadCount int) int {
	const perThreadWorkingSet = 32 * 1024
	return perThreadWorkingSet * threadCount
}

func nearestMultiple(value, multiple int) int {
	if multiple <= 0 {
		return value
	}
	if value < multiple {
		return multiple
	}
	return (value / multiple) * multiple
}

func (b *base) init(isEncrypt bool, key primitive.KeyMaterial) error {
	if err := b.cipher.Init(isEncrypt, key); err != nil {
		return err
	}
	b.isEncrypt = isEncrypt
	b.key = key
	b.state = stateReady
	return nil
}

// newThreadCipher builds a fresh BlockCipher instance initialized with the
// same key, standing in for "clone the initialized master" (spec.md §5):
// each parallel thread gets its own instance rather than sharing one.
func (b *base) newThreadCipher() (primitive.BlockCipher, error) {
	bc, err := primitive.NewBlockCipher(b.engineKind)
	if err != nil {
		return nil, err
	}
	if err := bc.Init(true, b.key); err != nil {
		return nil, err
	}
	return bc, nil
}

func (b *base) BlockSize() int { return b.blockSize }

func (b *base) ParallelMinSize() int { return b.parallelMinSize }
func (b *base) ParallelMaxSize() int { return b.parallelMaxSize }
func (b *base) ParallelBlockSize() int {
	return b.parallelBlockSize
}

func (b *base) SetParallelBlockSize(n int) error {
	if n < b.parallelMinSize || n > b.parallelMaxSize || n%b.parallelMinSize != 0 {
		return ErrParallelBounds
	}
	b.parallelBlockSize = n
	return nil
}

func (b *base) IsParallel() bool     { return b.isParallel }
func (b *base) SetIsParallel(v bool) { b.isParallel = v }

func xorBytes(dst, a, b []byte) {
	for i := range dst {
		dst[i] = a[i] ^ b[i]
	}
}

// New builds the Engine for mode over engineKind, with threadCount
// goroutines for parallel transforms (0 = GOMAXPROCS).
func New(mode primitive.CipherMode, engineKind primitive.EngineKind, threadCount int) (Engine, error) {
	switch mode {
	case primitive.ModeCTR:
		return NewCTR(engineKind, threadCount)
	case primitive.ModeCBC:
		return NewCBC(engineKind, threadCount)
	case primitive.ModeCFB:
		return NewCFB(engineKind, threadCount)
	case primitive.ModeOFB:
		return NewOFB(engineKind, threadCount)
	default:
		return nil, ErrUnsupportedMode
	}
}
