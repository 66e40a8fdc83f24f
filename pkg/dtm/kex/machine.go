package kex

import (
	"fmt"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"

	"github.com/modulexcite/cex/internal/retry"
	"github.com/modulexcite/cex/internal/signal"
	"github.com/modulexcite/cex/pkg/cipher"
	"github.com/modulexcite/cex/pkg/dtm/wire"
	"github.com/modulexcite/cex/pkg/keymaterial"
	"github.com/modulexcite/cex/pkg/primitive"
)

// Phase is the KEX connection's coarse state (spec.md §4.6 state diagram).
type Phase int

const (
	Closed Phase = iota
	Connecting
	AuthExchanging
	AuthEstablished
	PrimaryExchanging
	Established
	Rekeying
)

func (p Phase) String() string {
	switch p {
	case Closed:
		return "Closed"
	case Connecting:
		return "Connecting"
	case AuthExchanging:
		return "AuthExchanging"
	case AuthEstablished:
		return "AuthEstablished"
	case PrimaryExchanging:
		return "PrimaryExchanging"
	case Established:
		return "Established"
	case Rekeying:
		return "Rekeying"
	default:
		return "Unknown"
	}
}

// cipherPair holds one direction-split engine pair: Forward is
// Init(true, ...) over forward for frames this endpoint sends; Return is
// Init(false, ...) over ret for frames this endpoint receives. Only the
// pre-auth pair uses one key for both; the later pairs key each
// direction separately.
type cipherPair struct {
	forward *keymaterial.Material
	ret     *keymaterial.Material
	fwdEng  cipher.Engine
	retEng  cipher.Engine
}

func (p *cipherPair) destroy() {
	if p == nil {
		return
	}
	if p.forward != nil {
		p.forward.Destroy()
	}
	if p.ret != nil {
		p.ret.Destroy()
	}
}

// Machine drives one endpoint of a DTM-KEX session over conn. Role,
// Params, and MyIdentity must be set before Run.
type Machine struct {
	Role        Role
	Params      *Parameters
	MyIdentity  Identity
	Dispatcher  *Dispatcher
	ReadTimeout time.Duration
	// IdentityDecisionWindow bounds how long the machine waits for a host
	// handler to cancel an incoming identity before proceeding with the
	// exchange (spec.md §4.6 "Identity authentication hook").
	IdentityDecisionWindow time.Duration

	conn  io.ReadWriteCloser
	codec *wire.Codec
	tim   *timing
	// resend bounds the "wait one retry cycle; second failure → Terminate"
	// ordering-violation handling of spec.md §4.6/§4.5.
	resend *retry.Handler

	phase  Phase
	seqOut uint32
	seqIn  uint32

	preAuth   *cipherPair
	auth      *cipherPair
	primary   *cipherPair
	peerIdent Identity
}

const defaultMaxPayload = 1 << 20

// NewMachine builds a Machine for conn. maxPayload bounds codec frames
// (0 selects a 1 MiB default).
func NewMachine(role Role, params *Parameters, myIdentity Identity, conn io.ReadWriteCloser, maxPayload uint32, dispatcher *Dispatcher) (*Machine, error) {
	if maxPayload == 0 {
		maxPayload = defaultMaxPayload
	}
	tim, err := newTiming(params.RandomKind)
	if err != nil {
		return nil, err
	}
	return &Machine{
		Role:                   role,
		Params:                 params,
		MyIdentity:             myIdentity,
		Dispatcher:             dispatcher,
		ReadTimeout:            30 * time.Second,
		IdentityDecisionWindow: 50 * time.Millisecond,
		conn:                   conn,
		codec:                  wire.NewCodec(maxPayload),
		tim:                    tim,
		resend:                 retry.New(1, false, 20*time.Millisecond),
		phase:                  Closed,
	}, nil
}

func (m *Machine) emit(ev Event) {
	if m.Dispatcher != nil {
		m.Dispatcher.Emit(ev)
	}
}

// Phase returns the machine's current coarse state.
func (m *Machine) Phase() Phase { return m.phase }

// PeerIdentity returns the identity the peer presented during Connect.
func (m *Machine) PeerIdentity() Identity { return m.peerIdent }

// Run drives the machine from Closed through Established, or returns the
// failure per spec.md §4.6's failure semantics.
func (m *Machine) Run() (err error) {
	defer func() {
		if err != nil {
			m.fail(err)
		}
	}()

	m.phase = Connecting
	if err = m.derivePreAuth(); err != nil {
		return err
	}
	if err = m.exchangeIdentity(); err != nil {
		return err
	}

	m.phase = AuthExchanging
	if m.auth, err = m.asymmetricPhase(ExchangeAuthEx, m.Params.AuthPkeID, m.Params.AuthSession, m.Params.PaddingBounds.AsmKey, m.Params.PaddingBounds.SymKey, nil); err != nil {
		return err
	}
	m.preAuth.destroy()
	m.preAuth = nil
	m.phase = AuthEstablished

	m.phase = PrimaryExchanging
	if m.primary, err = m.asymmetricPhase(ExchangePrimeEx, m.Params.PrimaryPkeID, m.Params.PrimarySession, m.Params.PaddingBounds.AsmParams, m.Params.PaddingBounds.SymKey, m.auth); err != nil {
		return err
	}

	m.phase = Established
	m.auth.destroy()
	m.auth = nil

	m.emit(Event{
		Kind:               EventSessionEstablished,
		ForwardFingerprint: fingerprint(m.primary.forward),
		ReturnFingerprint:  fingerprint(m.primary.ret),
	})
	return nil
}

func fingerprint(mat *keymaterial.Material) []byte {
	d, err := primitive.NewDigest(primitive.SHA256)
	if err != nil {
		return nil
	}
	d.Update(mat.Key())
	return d.Finalize(nil)
}

func (m *Machine) fail(err error) {
	severity := SeverityError
	switch errors.Cause(err) {
	case ErrExchangeTimeout, ErrAuthenticationFailed:
		severity = SeverityFatal
	}
	// Best-effort: tell the peer we're tearing down, per spec.md §4.6
	// ("Timeout/Bad MAC/ordering violation → Service/Terminate"). A
	// peer that already sent Refusal, or a dead connection, just drops
	// this write; it is not on the critical error path.
	if errors.Cause(err) != ErrPeerRefused {
		_ = m.sendService(ServiceTerminate)
	}
	m.phase = Closed
	m.zeroizeAll()
	m.emit(Event{Kind: EventSessionError, Err: err, Severity: severity, Message: err.Error()})
}

func (m *Machine) zeroizeAll() {
	m.preAuth.destroy()
	m.auth.destroy()
	m.primary.destroy()
	m.preAuth, m.auth, m.primary = nil, nil, nil
}

// Disconnect tears the machine down and zeroizes all session keys
// (spec.md P7), regardless of current phase.
func (m *Machine) Disconnect() error {
	m.zeroizeAll()
	m.phase = Closed
	return m.conn.Close()
}

// ForwardCipher and ReturnCipher expose the established primary-phase
// engines to the session transport (pkg/dtm/session). Both are nil before
// Established.
func (m *Machine) ForwardCipher() cipher.Engine { return m.primary.fwdEng }
func (m *Machine) ReturnCipher() cipher.Engine  { return m.primary.retEng }

// ForwardKey and ReturnKey expose the established primary-phase key
// material so the session transport can derive its own subkeys (e.g. a
// transfer-integrity MAC key) without re-running the exchange.
func (m *Machine) ForwardKey() *keymaterial.Material { return m.primary.forward }
func (m *Machine) ReturnKey() *keymaterial.Material  { return m.primary.ret }

// Conn returns the underlying connection, for the session transport to
// drive directly once the machine reaches Established.
func (m *Machine) Conn() io.ReadWriteCloser { return m.conn }

// WireCodec returns the frame codec the machine was configured with, so
// the session transport encodes/decodes frames with the same
// MaxPayload bound.
func (m *Machine) WireCodec() *wire.Codec { return m.codec }

// derivePreAuth builds the deterministic pre-auth cipher pair both
// endpoints reach independently from DomainSharedSecret (spec.md §4.6
// step 1). Both directions share the same key; only the Init direction
// differs.
func (m *Machine) derivePreAuth() error {
	desc := m.Params.AuthSession
	mat, err := keymaterial.DeriveFromSecret(m.Params.DomainSharedSecret, []byte("dtm-preauth-v1"), desc.KeyBits, desc.IVBits, m.Params.PreAuthDigest)
	if err != nil {
		return errors.Wrap(err, "deriving pre-auth key")
	}
	fwdEng, err := cipher.New(desc.Mode, desc.Engine, 0)
	if err != nil {
		return err
	}
	if err := fwdEng.Init(true, mat); err != nil {
		return err
	}
	retEng, err := cipher.New(desc.Mode, desc.Engine, 0)
	if err != nil {
		return err
	}
	if err := retEng.Init(false, mat); err != nil {
		return err
	}
	m.preAuth = &cipherPair{forward: mat, ret: mat, fwdEng: fwdEng, retEng: retEng}
	return nil
}

// exchangeIdentity implements phase 1 (Connect/Init): both sides
// transmit DtmIdentity under the pre-auth cipher and raise
// IdentityReceived, honoring a host cancel.
func (m *Machine) exchangeIdentity() error {
	payload, err := m.MyIdentity.MarshalBinary()
	if err != nil {
		return err
	}
	if err := m.sendExchange(ExchangeConnect, payload, m.preAuth.fwdEng, PaddingBound{}); err != nil {
		return err
	}
	in, err := m.recvExchange(ExchangeConnect, m.preAuth.retEng)
	if err != nil {
		return err
	}
	var peer Identity
	if err := peer.UnmarshalBinary(in); err != nil {
		return errors.Wrap(ErrProtocolError, err.Error())
	}
	m.peerIdent = peer

	cancelCh := make(chan struct{})
	cancel := signal.New(cancelCh)
	m.emit(Event{Kind: EventIdentityReceived, PeerIdentity: peer, Cancel: cancel})
	select {
	case <-cancel.Wait():
		m.sendService(ServiceRefusal)
		return ErrPeerRefused
	case <-time.After(m.IdentityDecisionWindow):
	}
	return nil
}

// asymmetricPhase implements one of AuthEx/PrimeEx (spec.md §4.6 steps 2
// and 4): each side generates a keypair, exchanges public keys (padded
// per keyPad), generates a symmetric session seed, exchanges it sealed
// under the peer's public key (padded per seedPad), and derives the
// resulting forward/return cipher pair. When wrap is non-nil, every frame
// of this phase is additionally encrypted under wrap (primary phase runs
// inside the auth channel, per spec.md §4.6 step 4).
func (m *Machine) asymmetricPhase(flag ExchangeFlag, pkeKind primitive.PkeKind, session cipher.Description, keyPad, seedPad PaddingBound, wrap *cipherPair) (*cipherPair, error) {
	pke, err := primitive.NewPke(pkeKind)
	if err != nil {
		return nil, err
	}
	myPublic, myPrivate, err := pke.Keygen()
	if err != nil {
		return nil, err
	}

	if err := m.sendPhaseFrame(flag, myPublic, keyPad, wrap, true); err != nil {
		return nil, err
	}
	peerPublic, err := m.recvPhaseFrame(flag, wrap, true)
	if err != nil {
		return nil, err
	}

	gen, err := keymaterial.NewGenerator(m.Params.RandomKind, m.Params.PreAuthDigest)
	if err != nil {
		return nil, err
	}
	mySeed, err := gen.Derive([]byte("dtm-session-seed"), session.KeyBits, session.IVBits)
	if err != nil {
		return nil, err
	}
	seedBytes := append(append([]byte(nil), mySeed.Key()...), mySeed.IV()...)
	sealed, err := pke.Seal(peerPublic, seedBytes)
	if err != nil {
		return nil, errors.Wrap(ErrAuthenticationFailed, err.Error())
	}

	if err := m.sendPhaseFrame(flag, sealed, seedPad, wrap, false); err != nil {
		return nil, err
	}
	peerSealed, err := m.recvPhaseFrame(flag, wrap, false)
	if err != nil {
		return nil, err
	}
	peerSeedBytes, err := pke.Open(myPrivate, peerPublic, peerSealed)
	if err != nil {
		return nil, errors.Wrap(ErrAuthenticationFailed, err.Error())
	}
	keyBytes, ivBytes := int(session.KeyBits)/8, int(session.IVBits)/8
	if len(peerSeedBytes) != keyBytes+ivBytes {
		return nil, errors.Wrap(ErrProtocolError, "peer session seed has unexpected length")
	}
	peerMat, err := keymaterial.New(peerSeedBytes[:keyBytes], peerSeedBytes[keyBytes:], nil, session.KeyBits, session.IVBits)
	if err != nil {
		return nil, err
	}

	fwdEng, err := cipher.New(session.Mode, session.Engine, 0)
	if err != nil {
		return nil, err
	}
	if err := fwdEng.Init(true, mySeed); err != nil {
		return nil, err
	}
	retEng, err := cipher.New(session.Mode, session.Engine, 0)
	if err != nil {
		return nil, err
	}
	if err := retEng.Init(false, peerMat); err != nil {
		return nil, err
	}
	return &cipherPair{forward: mySeed, ret: peerMat, fwdEng: fwdEng, retEng: retEng}, nil
}

// sendPhaseFrame sends payload as an Exchange frame of flag, timing its
// transmission per spec.md §4.6 ("before transmitting the ... key, the
// sender waits a uniform random delay in [max/2, max]"), and encrypting
// it under wrap when the phase runs inside the auth channel.
func (m *Machine) sendPhaseFrame(flag ExchangeFlag, payload []byte, pad PaddingBound, wrap *cipherPair, isKey bool) error {
	maxDelay := m.Params.DelayBounds.SymKeyMs
	if isKey {
		maxDelay = m.Params.DelayBounds.AsmKeyMs
	}
	delay, err := m.tim.delayHalfToFull(maxDelay)
	if err != nil {
		return err
	}
	time.Sleep(delay)

	var enc cipher.Engine
	if wrap != nil {
		enc = wrap.fwdEng
	}
	return m.sendExchange(flag, payload, enc, pad)
}

func (m *Machine) recvPhaseFrame(flag ExchangeFlag, wrap *cipherPair, isKey bool) ([]byte, error) {
	var dec cipher.Engine
	if wrap != nil {
		dec = wrap.retEng
	}
	return m.recvExchange(flag, dec)
}

// sendExchange pads, optionally encrypts, and writes one Exchange frame.
func (m *Machine) sendExchange(flag ExchangeFlag, payload []byte, enc cipher.Engine, pad PaddingBound) error {
	pre, err := m.tim.pad(pad.Pre)
	if err != nil {
		return err
	}
	post, err := m.tim.pad(pad.Post)
	if err != nil {
		return err
	}
	framed := padMessage(payload, pre, post)

	wireBody := framed
	if enc != nil {
		aligned, err := cipher.Pad(framed, enc.BlockSize(), primitive.PaddingPKCS7)
		if err != nil {
			return err
		}
		out := make([]byte, len(aligned))
		if err := enc.Transform(aligned, out); err != nil {
			return err
		}
		wireBody = out
	}

	pkt := wire.Packet{
		Header: wire.Header{
			PacketType: wire.PacketExchange,
			Sequence:   m.seqOut,
			PacketFlag: uint16(flag),
		},
		Payload: wireBody,
	}
	m.seqOut++
	if err := m.codec.Encode(m.conn, pkt); err != nil {
		return errors.Wrap(err, "writing exchange frame")
	}
	m.emit(Event{Kind: EventPacketSent, ExchangeFlag: flag, Length: len(wireBody)})
	return nil
}

func (m *Machine) recvExchange(want ExchangeFlag, dec cipher.Engine) ([]byte, error) {
	pkt, err := m.recvFrame()
	if err != nil {
		return nil, err
	}
	if pkt.Header.PacketType == wire.PacketService && wire.ServiceFlag(pkt.Header.PacketFlag) == wire.ServiceRefusal {
		return nil, ErrPeerRefused
	}
	if pkt.Header.PacketType != wire.PacketExchange || ExchangeFlag(pkt.Header.PacketFlag) != want {
		return nil, errors.Wrap(ErrProtocolError, fmt.Sprintf("expected Exchange/%v, got %v/%v", want, pkt.Header.PacketType, pkt.Header.PacketFlag))
	}

	if pkt.Header.Sequence != m.seqIn {
		// spec.md §4.6: "Packet-ordering violation → Service/Resend,
		// wait one retry cycle; second failure → Terminate."
		if err := m.sendService(ServiceResend); err != nil {
			return nil, err
		}
		timer := m.resend.Timer()
		if timer == nil {
			return nil, errors.Wrap(ErrProtocolError, "out-of-sequence exchange frame")
		}
		<-timer
		pkt, err = m.recvFrame()
		if err != nil {
			return nil, err
		}
		if pkt.Header.Sequence != m.seqIn {
			return nil, errors.Wrap(ErrProtocolError, "out-of-sequence exchange frame")
		}
	}
	m.seqIn++
	m.emit(Event{Kind: EventPacketReceived, ExchangeFlag: want, Length: len(pkt.Payload)})

	wireBody := pkt.Payload
	if dec != nil {
		plain := make([]byte, len(wireBody))
		if err := dec.Transform(wireBody, plain); err != nil {
			return nil, errors.Wrap(ErrAuthenticationFailed, err.Error())
		}
		unpadded, err := cipher.Unpad(plain, dec.BlockSize(), primitive.PaddingPKCS7)
		if err != nil {
			return nil, errors.Wrap(ErrAuthenticationFailed, err.Error())
		}
		wireBody = unpadded
	}
	return unpadMessage(wireBody)
}

// recvFrame decodes one frame off the connection, translating codec and
// deadline errors into the kex error taxonomy (spec.md §7).
func (m *Machine) recvFrame() (wire.Packet, error) {
	m.setReadDeadline()
	pkt, err := m.codec.Decode(m.conn)
	if err != nil {
		if err == wire.ErrTruncatedFrame || err == wire.ErrBadMagic {
			return wire.Packet{}, errors.Wrap(ErrProtocolError, err.Error())
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return wire.Packet{}, ErrExchangeTimeout
		}
		return wire.Packet{}, err
	}
	return pkt, nil
}

// setReadDeadline arms ReadTimeout on the underlying connection when it
// supports deadlines (spec.md §5 "every network receive carries a
// timeout"); conn types that don't (e.g. io.Pipe) simply skip it.
func (m *Machine) setReadDeadline() {
	if m.ReadTimeout <= 0 {
		return
	}
	if nc, ok := m.conn.(net.Conn); ok {
		_ = nc.SetReadDeadline(time.Now().Add(m.ReadTimeout))
	}
}

func (m *Machine) sendService(flag wire.ServiceFlag) error {
	pkt := wire.Packet{
		Header: wire.Header{
			PacketType: wire.PacketService,
			Sequence:   m.seqOut,
			PacketFlag: uint16(flag),
		},
	}
	m.seqOut++
	return m.codec.Encode(m.conn, pkt)
}
