package cipher

import "errors"

// Sentinel errors for the C3 block-mode engine, per spec.md §7.
var (
	ErrNotInitialized  = errors.New("cipher: engine used before Init")
	ErrInvalidSize     = errors.New("cipher: input is not a whole number of blocks")
	ErrInvalidLength   = errors.New("cipher: input and output length mismatch")
	ErrParallelBounds  = errors.New("cipher: parallel block size must be a multiple of parallel_min_size and within [min, max]")
	ErrUnsupportedMode = errors.New("cipher: unsupported mode")
)
