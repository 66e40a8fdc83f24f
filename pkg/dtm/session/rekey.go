package session

import (
	"time"

	"github.com/pkg/errors"

	"github.com/modulexcite/cex/pkg/cipher"
	"github.com/modulexcite/cex/pkg/dtm/kex"
	"github.com/modulexcite/cex/pkg/dtm/wire"
	"github.com/modulexcite/cex/pkg/keymaterial"
	"github.com/modulexcite/cex/pkg/primitive"
)

// rekeyTimeout bounds how long Rekey/acceptRekey wait for each leg of the
// exchange before giving up.
const rekeyTimeout = 30 * time.Second

// rekeyOptionKey/rekeyOptionSeed tag the two Exchange frames a rekey
// round trip exchanges, carried in Header.OptionFlag since both frames
// share the same PacketFlag (wire.ExchangePrimeEx, spec.md §4.6 "runs the
// primary phase again").
const (
	rekeyOptionKey uint64 = iota
	rekeyOptionSeed
)

// rekeyFrame is a decrypted Exchange frame routed from handleFrame to
// whichever of Rekey/acceptRekey is waiting on it.
type rekeyFrame struct {
	header wire.Header
	plain  []byte
}

// Rekey runs the primary asymmetric phase again over the live session,
// deriving a fresh forward/return cipher pair and atomically swapping it
// in (spec.md §4.6 "Rekey"). Unlike kex.Machine's original Resync, this
// runs entirely through the Session's own encrypted frame pipeline:
// Session.receiveLoop is the connection's sole reader once the session
// is Established, so a rekey that tried to read the connection directly
// would race it. Instead the Exchange frames this performs are
// encrypted under the *current* primary cipher just like any Message
// frame (writeEncrypted/readDecrypted), so receiveLoop decodes them
// transparently and routeRekeyFrame hands them off here.
//
// The peer's matching exchange is driven by acceptRekey, entered when
// handleFrame observes the inbound Service/Resync this call sends first.
func (s *Session) Rekey() error {
	if err := s.beginRekey(); err != nil {
		return err
	}
	defer s.endRekey()

	if err := s.sendService(wire.ServiceResync); err != nil {
		return err
	}
	return s.runRekeyExchange()
}

// acceptRekey is the passive side of Rekey, started on its own goroutine
// by handleFrame on an inbound Service/Resync. If a rekey we initiated
// ourselves is already in flight, the peer's request is dropped rather
// than risking two concurrent exchanges over the same rekeyIncoming
// channel.
func (s *Session) acceptRekey() {
	if err := s.beginRekey(); err != nil {
		return
	}
	defer s.endRekey()

	if err := s.runRekeyExchange(); err != nil {
		s.fail(err)
	}
}

func (s *Session) beginRekey() error {
	s.rekeyMu.Lock()
	defer s.rekeyMu.Unlock()
	if s.rekeyActive {
		return ErrRekeyInProgress
	}
	s.rekeyActive = true
	return nil
}

func (s *Session) endRekey() {
	s.rekeyMu.Lock()
	s.rekeyActive = false
	s.rekeyMu.Unlock()
}

// runRekeyExchange is the role-symmetric PKE exchange itself: both the
// initiating and accepting side run this identical sequence, the same
// shape as kex.Machine's asymmetricPhase (Keygen, exchange public keys,
// exchange a sealed session seed, derive the resulting cipher pair).
func (s *Session) runRekeyExchange() error {
	desc := s.params.PrimarySession

	pke, err := primitive.NewPke(s.params.PrimaryPkeID)
	if err != nil {
		return err
	}
	myPublic, myPrivate, err := pke.Keygen()
	if err != nil {
		return err
	}

	if err := s.writeEncrypted(wire.PacketExchange, uint16(wire.ExchangePrimeEx), rekeyOptionKey, myPublic); err != nil {
		return err
	}
	peerPublic, err := s.recvRekeyFrame(rekeyOptionKey)
	if err != nil {
		return err
	}

	gen, err := keymaterial.NewGenerator(s.params.RandomKind, s.params.PreAuthDigest)
	if err != nil {
		return err
	}
	mySeed, err := gen.Derive([]byte("dtm-rekey-seed"), desc.KeyBits, desc.IVBits)
	if err != nil {
		return err
	}
	seedBytes := append(append([]byte(nil), mySeed.Key()...), mySeed.IV()...)
	sealed, err := pke.Seal(peerPublic, seedBytes)
	if err != nil {
		return errors.Wrap(kex.ErrAuthenticationFailed, err.Error())
	}

	if err := s.writeEncrypted(wire.PacketExchange, uint16(wire.ExchangePrimeEx), rekeyOptionSeed, sealed); err != nil {
		return err
	}
	peerSealed, err := s.recvRekeyFrame(rekeyOptionSeed)
	if err != nil {
		return err
	}
	peerSeedBytes, err := pke.Open(myPrivate, peerPublic, peerSealed)
	if err != nil {
		return errors.Wrap(kex.ErrAuthenticationFailed, err.Error())
	}

	keyBytes, ivBytes := int(desc.KeyBits)/8, int(desc.IVBits)/8
	if len(peerSeedBytes) != keyBytes+ivBytes {
		return errors.Wrap(kex.ErrProtocolError, "peer rekey seed has unexpected length")
	}
	peerMat, err := keymaterial.New(peerSeedBytes[:keyBytes], peerSeedBytes[keyBytes:], nil, desc.KeyBits, desc.IVBits)
	if err != nil {
		return err
	}

	fwdEng, err := cipher.New(desc.Mode, desc.Engine, 0)
	if err != nil {
		return err
	}
	if err := fwdEng.Init(true, mySeed); err != nil {
		return err
	}
	retEng, err := cipher.New(desc.Mode, desc.Engine, 0)
	if err != nil {
		return err
	}
	if err := retEng.Init(false, peerMat); err != nil {
		return err
	}

	s.swapCiphers(fwdEng, retEng, mySeed, peerMat)
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.Rekeys.Inc()
	}
	s.emit(Event{Kind: EventRekeyed})
	return nil
}

// recvRekeyFrame waits for the Exchange frame tagged optionFlag, routed
// in by routeRekeyFrame off the single receive loop.
func (s *Session) recvRekeyFrame(optionFlag uint64) ([]byte, error) {
	select {
	case f := <-s.rekeyIncoming:
		if f.header.OptionFlag != optionFlag {
			return nil, errors.Wrap(kex.ErrProtocolError, "unexpected rekey exchange frame")
		}
		return f.plain, nil
	case <-time.After(rekeyTimeout):
		return nil, ErrRekeyTimeout
	case <-s.closed:
		return nil, ErrSessionClosed
	}
}

// swapCiphers atomically installs the freshly derived cipher pair and
// zeroizes the one it replaces.
func (s *Session) swapCiphers(fwdEng, retEng cipher.Engine, fwdMat, retMat *keymaterial.Material) {
	s.cipherMu.Lock()
	oldFwd, oldRet := s.fwdMat, s.retMat
	s.fwd, s.ret = fwdEng, retEng
	s.fwdMat, s.retMat = fwdMat, retMat
	s.cipherMu.Unlock()

	oldFwd.Destroy()
	oldRet.Destroy()
}
