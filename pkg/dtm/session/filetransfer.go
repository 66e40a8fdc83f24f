package session

import (
	"crypto/subtle"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/modulexcite/cex/pkg/dtm/wire"
	"github.com/modulexcite/cex/pkg/primitive"
)

// incomingTransfer tracks one in-progress inbound file reassembly. Owned
// exclusively by the receive goroutine driving Run, so it needs no lock.
type incomingTransfer struct {
	name       string
	totalSize  int64
	acceptPath string
	tmp        *os.File
	mac        primitive.Mac
	received   int64
}

// SendFile splits the file at path into a leading metadata frame (name,
// total size) followed by chunked Transfer frames, each carrying the
// running transfer-integrity MAC over plaintext read so far; the last
// chunk's running tag is therefore automatically the full-file MAC
// (spec.md §4.7 send_file).
func (s *Session) SendFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening file for transfer")
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() > s.cfg.MaxAllocation {
		return ErrPayloadTooLarge
	}

	name := filepath.Base(path)
	meta := make([]byte, 2+len(name))
	meta[0], meta[1] = byte(len(name)), byte(len(name)>>8)
	copy(meta[2:], name)
	if err := s.writeEncrypted(wire.PacketTransfer, uint16(wire.TransferMetadata), uint64(info.Size()), meta); err != nil {
		return errors.Wrap(err, "sending transfer metadata")
	}

	mac, err := primitive.NewMac(s.cfg.MacKind)
	if err != nil {
		return err
	}
	if err := mac.InitKey(s.outMacKey.Key()); err != nil {
		return err
	}

	// Each ReadFull call maps to exactly one frame; a short read (or a
	// zero-length read when the file size is an exact multiple of
	// ChunkSize) marks the Final frame, so no chunk look-ahead is needed.
	buf := make([]byte, s.cfg.ChunkSize)
	for {
		n, readErr := io.ReadFull(f, buf)
		if readErr != nil && readErr != io.ErrUnexpectedEOF && readErr != io.EOF {
			return errors.Wrap(readErr, "reading file for transfer")
		}
		last := readErr == io.ErrUnexpectedEOF || readErr == io.EOF
		chunk := buf[:n]

		mac.Update(chunk)
		tag := mac.Finalize(nil)

		flag := wire.TransferChunk
		if last {
			flag = wire.TransferFinal
		}
		payload := make([]byte, 4+len(tag)+len(chunk))
		putU32(payload[0:4], uint32(len(tag)))
		copy(payload[4:], tag)
		copy(payload[4+len(tag):], chunk)
		if err := s.writeEncrypted(wire.PacketTransfer, uint16(flag), 0, payload); err != nil {
			return errors.Wrap(err, "sending transfer chunk")
		}
		if last {
			return nil
		}
	}
}

func putU32(dst []byte, v uint32) {
	dst[0], dst[1], dst[2], dst[3] = byte(v), byte(v>>8), byte(v>>16), byte(v>>24)
}

func getU32(src []byte) uint32 {
	return uint32(src[0]) | uint32(src[1])<<8 | uint32(src[2])<<16 | uint32(src[3])<<24
}

// handleTransferFrame advances inbound file reassembly. The first frame
// of a transfer (TransferMetadata) raises the FileRequest hook; a nil
// hook or a cancel answer silently refuses the transfer (subsequent
// Chunk/Final frames are then dropped with a Warning SessionError).
func (s *Session) handleTransferFrame(pkt wire.Packet, plain []byte) {
	flag := wire.TransferFlag(pkt.Header.PacketFlag)
	switch flag {
	case wire.TransferMetadata:
		s.beginTransfer(pkt, plain)
	case wire.TransferChunk, wire.TransferFinal:
		s.continueTransfer(pkt, plain, flag == wire.TransferFinal)
	}
}

func (s *Session) beginTransfer(pkt wire.Packet, plain []byte) {
	if len(plain) < 2 {
		s.emit(Event{Kind: EventSessionError, Err: ErrUnexpectedTransferFrame, Severity: SeverityWarning, Message: "truncated transfer metadata"})
		return
	}
	nameLen := int(plain[0]) | int(plain[1])<<8
	if len(plain) < 2+nameLen {
		s.emit(Event{Kind: EventSessionError, Err: ErrUnexpectedTransferFrame, Severity: SeverityWarning, Message: "truncated transfer metadata"})
		return
	}
	name := string(plain[2 : 2+nameLen])
	totalSize := int64(pkt.Header.OptionFlag)

	if totalSize > s.cfg.MaxAllocation {
		s.emit(Event{Kind: EventSessionError, Err: ErrPayloadTooLarge, Severity: SeverityError, Message: "incoming transfer exceeds MaxAllocation"})
		s.pending = nil
		return
	}
	if s.cfg.FileRequest == nil {
		s.pending = nil
		return
	}
	acceptedPath, cancel := s.cfg.FileRequest(name, totalSize)
	if cancel {
		s.pending = nil
		return
	}

	tmp, err := os.CreateTemp(filepath.Dir(acceptedPath), ".cex-transfer-*")
	if err != nil {
		s.emit(Event{Kind: EventSessionError, Err: err, Severity: SeverityError, Message: "creating reassembly file"})
		s.pending = nil
		return
	}
	mac, err := primitive.NewMac(s.cfg.MacKind)
	if err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		s.emit(Event{Kind: EventSessionError, Err: err, Severity: SeverityError, Message: "constructing transfer mac"})
		return
	}
	if err := mac.InitKey(s.inMacKey.Key()); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		s.emit(Event{Kind: EventSessionError, Err: err, Severity: SeverityError, Message: "keying transfer mac"})
		return
	}

	s.pending = &incomingTransfer{
		name:       name,
		totalSize:  totalSize,
		acceptPath: acceptedPath,
		tmp:        tmp,
		mac:        mac,
	}
}

func (s *Session) continueTransfer(_ wire.Packet, plain []byte, final bool) {
	p := s.pending
	if p == nil {
		s.emit(Event{Kind: EventSessionError, Err: ErrUnexpectedTransferFrame, Severity: SeverityWarning, Message: "transfer frame with no transfer pending"})
		return
	}
	if len(plain) < 4 {
		s.abortTransfer(ErrUnexpectedTransferFrame, "truncated transfer chunk")
		return
	}
	tagLen := int(getU32(plain[0:4]))
	if len(plain) < 4+tagLen {
		s.abortTransfer(ErrUnexpectedTransferFrame, "truncated transfer chunk")
		return
	}
	tag := plain[4 : 4+tagLen]
	chunk := plain[4+tagLen:]

	if p.received+int64(len(chunk)) > s.cfg.MaxAllocation {
		s.abortTransfer(ErrPayloadTooLarge, "transfer exceeded MaxAllocation")
		return
	}

	p.mac.Update(chunk)
	want := p.mac.Finalize(nil)
	if subtle.ConstantTimeCompare(want, tag) != 1 {
		s.abortTransfer(ErrIntegrityFailed, "transfer frame mac mismatch")
		return
	}
	if _, err := p.tmp.Write(chunk); err != nil {
		s.abortTransfer(err, "writing reassembly file")
		return
	}
	p.received += int64(len(chunk))

	if final {
		p.tmp.Close()
		if err := os.Rename(p.tmp.Name(), p.acceptPath); err != nil {
			s.emit(Event{Kind: EventSessionError, Err: err, Severity: SeverityError, Message: "renaming reassembled file"})
			os.Remove(p.tmp.Name())
			s.pending = nil
			return
		}
		s.emit(Event{Kind: EventFileReceived, Path: p.acceptPath})
		s.pending = nil
	}
}

func (s *Session) abortTransfer(err error, msg string) {
	if s.pending != nil {
		s.pending.tmp.Close()
		os.Remove(s.pending.tmp.Name())
		s.pending = nil
	}
	s.emit(Event{Kind: EventSessionError, Err: err, Severity: SeverityError, Message: msg})
}
