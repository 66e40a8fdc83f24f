package stream

import (
	"context"
	"io"
)

// runSequential reads BufferSize chunks and feeds them to sink one at a
// time on the calling goroutine. A short read is only valid as the final
// read that reaches total; any earlier short read is ErrUnexpectedEOF.
func (p *Processor) runSequential(r io.Reader, total int64, sink Sink) error {
	buf := make([]byte, p.opts.BufferSize)
	out := make([]byte, p.opts.BufferSize)
	stride := p.progressStride(total, sink.BlockSize())

	var done int64
	var sinceReport int64
	for done < total {
		if p.cancelled() {
			return context.Canceled
		}
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
		if err := sink.Process(buf[:n], out[:n]); err != nil {
			return err
		}
		done += int64(n)
		sinceReport += int64(n)
		if sinceReport >= stride {
			p.report(done, total)
			sinceReport = 0
		}
		if n == 0 {
			break
		}
	}
	p.report(total, total)
	return nil
}

func (p *Processor) report(done, total int64) {
	if p.opts.Progress != nil {
		p.opts.Progress(done, total)
	}
}
