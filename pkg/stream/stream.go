// Package stream implements CEX component C4: a producer/consumer
// pipeline that drives a long sequence of bytes through a Digest, Mac, or
// cipher-mode engine, either sequentially or with a reader goroutine
// running ahead of the consumer across a bounded queue (spec.md §4.4).
package stream

import (
	"errors"
	"io"

	"github.com/modulexcite/cex/internal/signal"
)

// DefaultBufferSize is the fixed buffer size concurrent mode reads into,
// per spec.md §4.4.
const DefaultBufferSize = 64 * 1024

// MinQueueCapacity is the smallest bounded-queue depth concurrent mode
// will accept; anything less defeats the point of overlapping read and
// consume (spec.md's redesign flag calling out unbounded queue growth).
const MinQueueCapacity = 2

var (
	// ErrUnexpectedEOF is returned when a short read arrives before the
	// stream has delivered its declared total length.
	ErrUnexpectedEOF = errors.New("stream: short read before declared end of length")
	// ErrQueueCapacity is returned by New when QueueCapacity is configured
	// below MinQueueCapacity.
	ErrQueueCapacity = errors.New("stream: queue capacity must be >= 2")
)

// Sink is the thing a Processor feeds chunks to. Digest and Mac absorb
// with no output; cipher-mode engines transform chunk into out in place.
// Implementations for all three live in adapters.go.
type Sink interface {
	// Process consumes chunk and, for transforming sinks, writes the
	// result into out (len(out) == len(chunk)). Absorbing sinks ignore
	// out.
	Process(chunk, out []byte) error
	// BlockSize is the sink's natural block size — a Digest/Mac's
	// underlying hash block size, or a cipher Engine's block size. Used
	// to align progress reporting to a boundary the primitive actually
	// processes on (spec.md §4.4).
	BlockSize() int
}

// ProgressFunc is invoked each time at least progressStride bytes have been
// processed since the last report, and once more on completion, receiving
// bytes processed so far and the declared total.
type ProgressFunc func(done, total int64)

// Options configures a Processor. The zero value is usable and selects
// DefaultBufferSize, a queue capacity of MinQueueCapacity, and sequential
// mode.
type Options struct {
	BufferSize    int
	QueueCapacity int
	// Concurrent requests the reader/consumer split; it is still only
	// honored when the input is long enough and seekable (spec.md §4.4).
	Concurrent bool
	Progress   ProgressFunc
	// Cancel, when set, is checked at every buffer boundary in both
	// modes; a fired signal aborts the run with context.Canceled.
	Cancel *signal.Signal
}

// Processor drives an io.Reader of known total length through a Sink.
type Processor struct {
	opts Options
}

// New validates opts and returns a Processor.
func New(opts Options) (*Processor, error) {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = MinQueueCapacity
	}
	if opts.QueueCapacity < MinQueueCapacity {
		return nil, ErrQueueCapacity
	}
	return &Processor{opts: opts}, nil
}

// Run drives r (whose caller-declared length is total) through sink. It
// transparently falls back to the sequential path when concurrent mode
// was requested but the input is too short to benefit, or r is not
// seekable (spec.md §4.4's inhibition rule).
func (p *Processor) Run(r io.Reader, total int64, sink Sink) error {
	useConcurrent := p.opts.Concurrent && total >= int64(p.opts.BufferSize) && isSeekableFileLike(r)
	if useConcurrent {
		return p.runConcurrent(r, total, sink)
	}
	return p.runSequential(r, total, sink)
}

func isSeekableFileLike(r io.Reader) bool {
	_, ok := r.(io.Seeker)
	return ok
}

// progressStride is the byte interval at which progress fires:
// ceil(total/100), rounded down to a multiple of the sink's natural block
// size so every report lands on a boundary the primitive actually
// processes on (spec.md §4.4), not an arbitrary buffer-sized one.
func (p *Processor) progressStride(total int64, blockSize int) int64 {
	stride := (total + 99) / 100
	bs := int64(blockSize)
	if stride < bs {
		return bs
	}
	return (stride / bs) * bs
}

func (p *Processor) cancelled() bool {
	if p.opts.Cancel == nil {
		return false
	}
	select {
	case <-p.opts.Cancel.Wait():
		return true
	default:
		return false
	}
}
