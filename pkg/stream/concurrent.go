package stream

import (
	"context"
	"io"

	"golang.org/x/sync/errgroup"
)

// chunk is one buffer handed from the reader goroutine to the consumer
// goroutine across the bounded queue.
type chunk struct {
	data []byte
	last bool
}

// runConcurrent splits the work into a reader task that fills fixed-size
// buffers from r and a consumer task that drains them in order and feeds
// sink, per spec.md §4.4. The channel between them is the bounded queue:
// its capacity is QueueCapacity buffers, so a stalled consumer blocks the
// reader rather than letting buffered chunks grow without limit.
func (p *Processor) runConcurrent(r io.Reader, total int64, sink Sink) error {
	queue := make(chan chunk, p.opts.QueueCapacity)
	g, ctx := errgroup.WithContext(context.Background())

	g.Go(func() error {
		defer close(queue)
		return p.readLoop(ctx, r, total, queue)
	})
	g.Go(func() error {
		return p.consumeLoop(ctx, total, sink, queue)
	})
	return g.Wait()
}

func (p *Processor) readLoop(ctx context.Context, r io.Reader, total int64, queue chan<- chunk) error {
	var done int64
	for done < total {
		if p.cancelled() {
			return context.Canceled
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		buf := make([]byte, p.opts.BufferSize)
		want := len(buf)
		if remaining := total - done; remaining < int64(want) {
			want = int(remaining)
		}
		n, err := io.ReadFull(r, buf[:want])
		if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
			return err
		}
		if int64(n) < int64(want) && done+int64(n) < total {
			return ErrUnexpectedEOF
		}
		done += int64(n)

		select {
		case queue <- chunk{data: buf[:n], last: done >= total}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (p *Processor) consumeLoop(ctx context.Context, total int64, sink Sink, queue <-chan chunk) error {
	stride := p.progressStride(total, sink.BlockSize())
	var done, sinceReport int64
	for {
		select {
		case c, ok := <-queue:
			if !ok {
				p.report(total, total)
				return nil
			}
			out := make([]byte, len(c.data))
			if err := sink.Process(c.data, out); err != nil {
				return err
			}
			done += int64(len(c.data))
			sinceReport += int64(len(c.data))
			if sinceReport >= stride {
				p.report(done, total)
				sinceReport = 0
			}
			if c.last {
				p.report(total, total)
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
