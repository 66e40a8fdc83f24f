package session

import (
	"net"
	"time"

	"github.com/modulexcite/cex/pkg/dtm/wire"
)

type frameResult struct {
	pkt   wire.Packet
	plain []byte
	err   error
}

// Run drives the receive side until Disconnect is called or a fatal
// error occurs: it pumps decoded frames from a dedicated receive
// goroutine (spec.md §5 "each endpoint runs a dedicated receive thread
// and a dedicated send thread") and, when KeepAliveInterval >= 0, drives
// the idle keep-alive / silence-termination timer (spec.md §4.7).
func (s *Session) Run() error {
	frameCh := make(chan frameResult, 4)
	go s.receiveLoop(frameCh)

	if s.cfg.KeepAliveInterval < 0 {
		for {
			select {
			case <-s.closed:
				return nil
			case item := <-frameCh:
				if item.err != nil {
					s.fail(item.err)
					return item.err
				}
				s.handleFrame(item.pkt, item.plain)
			}
		}
	}

	interval := s.cfg.KeepAliveInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastActive := time.Now()
	lastReceived := time.Now()
	for {
		select {
		case <-s.closed:
			return nil
		case t := <-s.activeAt:
			if t.After(lastActive) {
				lastActive = t
			}
		case item := <-frameCh:
			if item.err != nil {
				s.fail(item.err)
				return item.err
			}
			now := time.Now()
			lastReceived = now
			lastActive = now
			s.handleFrame(item.pkt, item.plain)
		case now := <-ticker.C:
			if now.Sub(lastReceived) >= 3*interval {
				_ = s.sendService(wire.ServiceTerminate)
				s.fail(ErrPeerSilent)
				return ErrPeerSilent
			}
			if now.Sub(lastActive) >= interval {
				if err := s.sendService(wire.ServiceKeepAlive); err != nil {
					s.fail(err)
					return err
				}
				lastActive = now
			}
		}
	}
}

func (s *Session) fail(err error) {
	s.emit(Event{Kind: EventSessionError, Err: err, Severity: SeverityFatal, Message: err.Error()})
}

// receiveLoop decodes frames off the connection and posts them to out.
// Read-deadline timeouts are treated as idle polls, not errors, so the
// keep-alive ticker in Run keeps making progress even when the peer is
// quiet within the keep-alive window.
func (s *Session) receiveLoop(out chan<- frameResult) {
	for {
		select {
		case <-s.closed:
			return
		default:
		}
		pkt, plain, err := s.readDecrypted()
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case out <- frameResult{err: err}:
			case <-s.closed:
			}
			return
		}
		select {
		case out <- frameResult{pkt: pkt, plain: plain}:
		case <-s.closed:
			return
		}
	}
}

// sendService writes a Service frame with no payload, bypassing the
// forward cipher the way Service control frames do throughout this
// module (spec.md §4.5).
func (s *Session) sendService(flag wire.ServiceFlag) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	pkt := wire.Packet{
		Header: wire.Header{
			PacketType: wire.PacketService,
			Sequence:   s.seqOut,
			PacketFlag: uint16(flag),
		},
	}
	s.seqOut++
	return s.codec.Encode(s.conn, pkt)
}

// handleFrame dispatches one decoded, decrypted frame by packet type.
func (s *Session) handleFrame(pkt wire.Packet, plain []byte) {
	switch pkt.Header.PacketType {
	case wire.PacketService:
		switch wire.ServiceFlag(pkt.Header.PacketFlag) {
		case wire.ServiceTerminate:
			_ = s.Disconnect()
		case wire.ServiceResync:
			// The peer is initiating a rekey (spec.md §4.6 "Rekey"); drive
			// our side of it on its own goroutine so this receive loop
			// keeps pumping the Exchange frames the rekey itself needs.
			go s.acceptRekey()
		}
	case wire.PacketMessage:
		payload, err := unframeMessage(plain)
		if err != nil {
			s.fail(err)
			return
		}
		if int64(len(payload)) > s.cfg.MaxAllocation {
			s.emit(Event{Kind: EventSessionError, Err: ErrPayloadTooLarge, Severity: SeverityError, Message: "incoming message exceeds MaxAllocation"})
			return
		}
		s.emit(Event{Kind: EventDataReceived, Payload: payload})
	case wire.PacketTransfer:
		s.handleTransferFrame(pkt, plain)
	case wire.PacketExchange:
		s.routeRekeyFrame(pkt, plain)
	}
}

// routeRekeyFrame hands a decrypted Exchange frame to whichever Rekey or
// acceptRekey call is currently awaiting it. A frame arriving with no
// rekey in progress (a stray retransmit, or the peer having already
// given up) is dropped rather than blocking the receive loop.
func (s *Session) routeRekeyFrame(pkt wire.Packet, plain []byte) {
	select {
	case s.rekeyIncoming <- rekeyFrame{header: pkt.Header, plain: plain}:
	default:
	}
}
