// Package session implements CEX component C7: the post-Established DTM
// session transport. It drives the forward/return primary ciphers a
// kex.Machine hands over, turning plaintext application payloads into
// encrypted Message frames and files into chunked, integrity-checked
// Transfer frames, with an idle keep-alive timer modeled on a bidirectional
// datagram-pipe lifecycle.
package session

import (
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/modulexcite/cex/internal/metrics"
	"github.com/modulexcite/cex/internal/retry"
	"github.com/modulexcite/cex/pkg/cipher"
	"github.com/modulexcite/cex/pkg/dtm/kex"
	"github.com/modulexcite/cex/pkg/dtm/wire"
	"github.com/modulexcite/cex/pkg/keymaterial"
	"github.com/modulexcite/cex/pkg/primitive"
)

const (
	// DefaultChunkSize bounds one Transfer/Chunk frame's plaintext
	// (spec.md §4.7 send_file, "bounded size (default 64 KiB)").
	DefaultChunkSize = 64 * 1024
	// DefaultKeepAliveInterval is the idle timer period absent an
	// explicit Config.KeepAliveInterval.
	DefaultKeepAliveInterval = 30 * time.Second
)

const macKeyInfo = "dtm-transfer-mac-v1"

// Config configures a Session. MaxAllocation has no default: per
// spec.md §9's redesign note, a hostile peer exhausting memory at a
// carried-forward default is the failure mode being designed out, so
// New refuses a zero value instead of silently applying 240 MiB.
type Config struct {
	// MaxAllocation bounds any single reassembly buffer (a Message
	// payload or an in-flight file transfer). Required; New returns
	// ErrMaxAllocationRequired if it is zero.
	MaxAllocation int64
	// ChunkSize bounds one Transfer/Chunk frame's plaintext. Zero
	// selects DefaultChunkSize.
	ChunkSize int
	// KeepAliveInterval is the idle-ticker period; zero selects
	// DefaultKeepAliveInterval. Negative disables keep-alive entirely.
	KeepAliveInterval time.Duration
	// MacKind selects the transfer-integrity MAC. Zero selects HMACSHA256.
	MacKind primitive.MacKind
	// ReadTimeout bounds each frame read. Zero selects 30s.
	ReadTimeout time.Duration
	// Dispatcher receives host-visible events. Nil disables event delivery.
	Dispatcher *Dispatcher
	// FileRequest is consulted for every inbound TransferMetadata frame.
	// Nil refuses every incoming file transfer.
	FileRequest FileRequestFunc
	// Metrics, if set, is incremented for bytes en/decrypted and completed
	// rekeys; frames sent/received are not counted.
	Metrics *metrics.Registry
}

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = DefaultChunkSize
	}
	if c.KeepAliveInterval == 0 {
		c.KeepAliveInterval = DefaultKeepAliveInterval
	}
	if c.MacKind == primitive.MacNone {
		c.MacKind = primitive.HMACSHA256
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 30 * time.Second
	}
	return c
}

// Session drives one endpoint's post-Established traffic over the
// connection a kex.Machine established (spec.md §4.7).
type Session struct {
	cfg   Config
	conn  io.ReadWriteCloser
	codec *wire.Codec

	// cipherMu guards fwd/ret/fwdMat/retMat against the concurrent swap a
	// completed Rekey performs (spec.md §4.6 "Rekey"): readDecrypted and
	// writeEncrypted take the read side, swapCiphers takes the write side.
	cipherMu sync.RWMutex
	fwd      cipher.Engine
	ret      cipher.Engine
	fwdMat   *keymaterial.Material
	retMat   *keymaterial.Material

	// params is retained (beyond the derived ciphers New already unpacks)
	// because Rekey must re-run the same asymmetric primary phase the
	// machine ran during the handshake, with the same PkeID/session
	// description/padding bounds.
	params *kex.Parameters

	messagePad     kex.PaddingBound
	messageDelayMs int
	tim            *timing

	outMacKey *keymaterial.Material
	inMacKey  *keymaterial.Material

	sendMu sync.Mutex
	seqOut uint32
	seqIn  uint32
	// resend bounds the "wait one retry cycle; second failure → Terminate"
	// ordering-violation handling of spec.md §4.5/§4.7, same as kex.Machine.
	resend *retry.Handler

	pending *incomingTransfer

	// rekeyMu/rekeyActive serialize Rekey/acceptRekey: only one rekey may
	// run at a time, initiated by either side but never both at once.
	rekeyMu       sync.Mutex
	rekeyActive   bool
	rekeyIncoming chan rekeyFrame

	activeAt  chan time.Time
	closeOnce sync.Once
	closed    chan struct{}
}

// New builds a Session over an Established machine. The machine's
// underlying connection and primary ciphers are handed to the Session;
// the caller must not continue driving machine directly afterward.
func New(machine *kex.Machine, cfg Config) (*Session, error) {
	if cfg.MaxAllocation <= 0 {
		return nil, ErrMaxAllocationRequired
	}
	if machine.Phase() != kex.Established {
		return nil, errors.New("session: machine is not Established")
	}
	cfg = cfg.withDefaults()

	outKey, err := keymaterial.DeriveFromSecret(machine.ForwardKey().Key(), []byte(macKeyInfo), 256, 0, primitive.SHA256)
	if err != nil {
		return nil, errors.Wrap(err, "deriving outbound transfer mac key")
	}
	inKey, err := keymaterial.DeriveFromSecret(machine.ReturnKey().Key(), []byte(macKeyInfo), 256, 0, primitive.SHA256)
	if err != nil {
		return nil, errors.Wrap(err, "deriving inbound transfer mac key")
	}

	tim, err := newTiming(machine.Params.RandomKind)
	if err != nil {
		return nil, err
	}

	return &Session{
		cfg:            cfg,
		conn:           machine.Conn(),
		codec:          machine.WireCodec(),
		fwd:            machine.ForwardCipher(),
		ret:            machine.ReturnCipher(),
		fwdMat:         machine.ForwardKey(),
		retMat:         machine.ReturnKey(),
		params:         machine.Params,
		messagePad:     machine.Params.PaddingBounds.Message,
		messageDelayMs: machine.Params.DelayBounds.MessageMs,
		tim:            tim,
		outMacKey:      outKey,
		inMacKey:       inKey,
		resend:         retry.New(1, false, 20*time.Millisecond),
		rekeyIncoming:  make(chan rekeyFrame, 4),
		activeAt:       make(chan time.Time, 1),
		closed:         make(chan struct{}),
	}, nil
}

func (s *Session) emit(ev Event) {
	if s.cfg.Dispatcher != nil {
		s.cfg.Dispatcher.Emit(ev)
	}
}

func (s *Session) markActive() {
	select {
	case s.activeAt <- time.Now():
	default:
	}
}

// Send encrypts payload under the forward cipher and writes it as a
// single Message frame, padded and delayed per the negotiated
// DtmParameters (spec.md §4.7).
func (s *Session) Send(payload []byte) error {
	delay, err := s.tim.delayZeroToFull(s.messageDelayMs)
	if err != nil {
		return err
	}
	time.Sleep(delay)

	pre, err := s.tim.pad(s.messagePad.Pre)
	if err != nil {
		return err
	}
	post, err := s.tim.pad(s.messagePad.Post)
	if err != nil {
		return err
	}
	framed := frameMessage(payload, pre, post)
	return s.writeEncrypted(wire.PacketMessage, 0, 0, framed)
}

// writeEncrypted pads framed to the forward cipher's block size,
// encrypts it, and writes one frame of packetType/flag/optionFlag.
// Serialized by sendMu: the forward cipher and seqOut counter are
// exclusively owned by the sending side (spec.md §5).
func (s *Session) writeEncrypted(packetType wire.PacketType, flag uint16, optionFlag uint64, plain []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	select {
	case <-s.closed:
		return ErrSessionClosed
	default:
	}

	s.cipherMu.RLock()
	fwd := s.fwd
	s.cipherMu.RUnlock()

	aligned, err := cipher.Pad(plain, fwd.BlockSize(), primitive.PaddingPKCS7)
	if err != nil {
		return err
	}
	out := make([]byte, len(aligned))
	if err := fwd.Transform(aligned, out); err != nil {
		return err
	}

	pkt := wire.Packet{
		Header: wire.Header{
			PacketType: packetType,
			Sequence:   s.seqOut,
			PacketFlag: flag,
			OptionFlag: optionFlag,
		},
		Payload: out,
	}
	s.seqOut++
	if err := s.codec.Encode(s.conn, pkt); err != nil {
		return errors.Wrap(err, "writing session frame")
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.BytesEncrypted.Add(float64(len(plain)))
	}
	s.markActive()
	s.emit(Event{Kind: EventPacketSent, PacketType: packetType, Length: len(out)})
	return nil
}

// readFrame decodes one raw frame off the connection, arming the
// configured read deadline first.
func (s *Session) readFrame() (wire.Packet, error) {
	if nc, ok := s.conn.(interface{ SetReadDeadline(time.Time) error }); ok && s.cfg.ReadTimeout > 0 {
		_ = nc.SetReadDeadline(time.Now().Add(s.cfg.ReadTimeout))
	}
	pkt, err := s.codec.Decode(s.conn)
	if err != nil {
		return wire.Packet{}, err
	}
	s.markActive()
	return pkt, nil
}

// readDecrypted reads and decrypts the next frame, enforcing strict
// per-direction sequence order (spec.md §5). A single ordering violation
// triggers a Service/Resend and one retry cycle before the session gives
// up (spec.md §4.5/§4.6), matching kex.Machine's handling of the same
// situation during the handshake.
func (s *Session) readDecrypted() (wire.Packet, []byte, error) {
	pkt, err := s.readFrame()
	if err != nil {
		return wire.Packet{}, nil, err
	}

	if pkt.Header.Sequence != s.seqIn {
		if err := s.sendService(wire.ServiceResend); err != nil {
			return wire.Packet{}, nil, err
		}
		timer := s.resend.Timer()
		if timer == nil {
			return wire.Packet{}, nil, errors.New("session: out-of-sequence frame")
		}
		<-timer
		pkt, err = s.readFrame()
		if err != nil {
			return wire.Packet{}, nil, err
		}
		if pkt.Header.Sequence != s.seqIn {
			return wire.Packet{}, nil, errors.New("session: out-of-sequence frame")
		}
	}
	// seqOut on the peer's side counts every frame it sends, Service
	// frames included (sendService shares the same counter/lock as
	// writeEncrypted), so seqIn must advance here too or the next
	// encrypted frame will appear out of order. wire.SequenceTracker
	// implements the same window-buffered contract (spec.md §4.5) for
	// transports where frames can genuinely arrive out of order; this
	// session runs DTM over a single reliable, in-order byte stream, so
	// the only "ordering violation" that can occur is a gap opened by a
	// dropped Resend reply, handled above without needing to buffer
	// ahead.
	s.seqIn++

	if pkt.Header.PacketType == wire.PacketService {
		return pkt, nil, nil
	}

	s.cipherMu.RLock()
	ret := s.ret
	s.cipherMu.RUnlock()

	plain := make([]byte, len(pkt.Payload))
	if err := ret.Transform(pkt.Payload, plain); err != nil {
		return wire.Packet{}, nil, errors.Wrap(err, "decrypting session frame")
	}
	unpadded, err := cipher.Unpad(plain, ret.BlockSize(), primitive.PaddingPKCS7)
	if err != nil {
		return wire.Packet{}, nil, errors.Wrap(err, "unpadding session frame")
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.BytesDecrypted.Add(float64(len(unpadded)))
	}
	s.emit(Event{Kind: EventPacketReceived, PacketType: pkt.Header.PacketType, Length: len(pkt.Payload)})
	return pkt, unpadded, nil
}

// frameMessage wraps payload as u16 pre-padding length || pre-padding ||
// u32 payload length || payload || post-padding, the same self-describing
// layout pkg/dtm/kex's padMessage uses: the pre-padding length travels on
// the wire so the receiver can locate the payload without having
// negotiated padding sizes in advance.
func frameMessage(payload, pre, post []byte) []byte {
	out := make([]byte, 0, 2+len(pre)+4+len(payload)+len(post))
	out = append(out, byte(len(pre)), byte(len(pre)>>8))
	out = append(out, pre...)
	out = append(out, byte(len(payload)), byte(len(payload)>>8), byte(len(payload)>>16), byte(len(payload)>>24))
	out = append(out, payload...)
	out = append(out, post...)
	return out
}

func unframeMessage(framed []byte) ([]byte, error) {
	if len(framed) < 2 {
		return nil, errors.New("session: message frame truncated")
	}
	preLen := int(framed[0]) | int(framed[1])<<8
	pos := 2 + preLen
	if len(framed) < pos+4 {
		return nil, errors.New("session: message frame truncated")
	}
	n := int(framed[pos]) | int(framed[pos+1])<<8 | int(framed[pos+2])<<16 | int(framed[pos+3])<<24
	pos += 4
	if n < 0 || len(framed) < pos+n {
		return nil, errors.New("session: message frame length out of range")
	}
	return framed[pos : pos+n], nil
}

// Disconnect stops the keep-alive loop, closes the connection, and
// zeroizes the derived MAC key material and the primary forward/return
// key material (spec.md §4.7, P7).
func (s *Session) Disconnect() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.outMacKey.Destroy()
		s.inMacKey.Destroy()
		s.cipherMu.Lock()
		s.fwdMat.Destroy()
		s.retMat.Destroy()
		s.cipherMu.Unlock()
	})
	return s.conn.Close()
}
