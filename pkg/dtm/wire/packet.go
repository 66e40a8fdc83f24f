// Package wire implements CEX component C5: the fixed 23-byte DTM packet
// header (spec.md §4.5/§6.5) plus a standalone per-direction sequence
// window (SequenceTracker). The session transport and the KEX state
// machine track sequence numbers themselves and do not use it.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// HeaderSize is the fixed, little-endian wire size of a DtmPacket header:
// magic(4) + payload_len(4) + packet_type(1) + sequence(4) + packet_flag(2)
// + option_flag(8), per the §4.5 field table.
const HeaderSize = 23

// Magic identifies a DTM packet; any other value is ProtocolError.
const Magic uint32 = 0x43455801

// PacketType enumerates the top-level frame kinds (spec.md §4.5).
type PacketType uint8

const (
	PacketService PacketType = iota
	PacketMessage
	PacketCreate
	PacketPreRequest
	PacketExchange
	PacketTransfer
)

func (t PacketType) String() string {
	switch t {
	case PacketService:
		return "Service"
	case PacketMessage:
		return "Message"
	case PacketCreate:
		return "Create"
	case PacketPreRequest:
		return "PreRequest"
	case PacketExchange:
		return "Exchange"
	case PacketTransfer:
		return "Transfer"
	default:
		return "Unknown"
	}
}

// ExchangeFlag is packet_flag's meaning when packet_type == Exchange
// (spec.md §6.5).
type ExchangeFlag uint16

const (
	ExchangeConnect ExchangeFlag = iota
	ExchangeInit
	ExchangePreAuth
	ExchangeAuthEx
	ExchangeAuthEstablished
	ExchangePrePrimary
	ExchangePrimeEx
	ExchangePrimaryEstablished
	ExchangeEstablished
)

// ServiceFlag is packet_flag's meaning when packet_type == Service
// (spec.md §6.5).
type ServiceFlag uint16

const (
	ServiceInternal ServiceFlag = iota
	ServiceRefusal
	ServiceDisconnected
	ServiceResend
	ServiceOutOfSequence
	ServiceDataLost
	ServiceTerminate
	ServiceResync
	ServiceEcho
	ServiceKeepAlive
)

// TransferFlag is packet_flag's meaning when packet_type == Transfer
// (spec.md §4.7 send_file): one leading Metadata frame, N Chunk frames,
// and a final frame tagged Final.
type TransferFlag uint16

const (
	TransferMetadata TransferFlag = iota
	TransferChunk
	TransferFinal
)

// ErrTruncatedFrame is returned when a short read leaves a partial header
// or payload.
var ErrTruncatedFrame = errors.New("wire: truncated frame")

// ErrBadMagic is returned when a header's magic field does not match Magic.
var ErrBadMagic = errors.New("wire: bad magic")

// ErrPayloadTooLarge is returned when payload_len exceeds the codec's
// configured maximum.
var ErrPayloadTooLarge = errors.New("wire: payload exceeds configured maximum")

// Header is the DtmPacket frame header (spec.md §3, §4.5).
type Header struct {
	PayloadLen uint32
	PacketType PacketType
	Sequence   uint32
	PacketFlag uint16
	OptionFlag uint64
}

// MarshalBinary encodes h into the 23-byte little-endian layout of §4.5.
func (h Header) MarshalBinary() ([]byte, error) {
	buf := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(buf[0:4], Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.PayloadLen)
	buf[8] = byte(h.PacketType)
	binary.LittleEndian.PutUint32(buf[9:13], h.Sequence)
	binary.LittleEndian.PutUint16(buf[13:15], h.PacketFlag)
	binary.LittleEndian.PutUint64(buf[15:23], h.OptionFlag)
	return buf, nil
}

// UnmarshalBinary decodes a 23-byte header produced by MarshalBinary.
// ErrBadMagic is returned before any other field is validated.
func (h *Header) UnmarshalBinary(buf []byte) error {
	if len(buf) != HeaderSize {
		return fmt.Errorf("wire: header must be %d bytes, got %d", HeaderSize, len(buf))
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != Magic {
		return ErrBadMagic
	}
	h.PayloadLen = binary.LittleEndian.Uint32(buf[4:8])
	h.PacketType = PacketType(buf[8])
	h.Sequence = binary.LittleEndian.Uint32(buf[9:13])
	h.PacketFlag = binary.LittleEndian.Uint16(buf[13:15])
	h.OptionFlag = binary.LittleEndian.Uint64(buf[15:23])
	return nil
}

// Packet is a decoded header plus its payload.
type Packet struct {
	Header  Header
	Payload []byte
}

// Codec encodes and decodes Packets against an io.Writer/io.Reader,
// enforcing MaxPayload (spec.md §4.5's "payload_len ≤ configured MAX").
type Codec struct {
	MaxPayload uint32
}

// NewCodec builds a Codec bounding payload_len at maxPayload.
func NewCodec(maxPayload uint32) *Codec {
	return &Codec{MaxPayload: maxPayload}
}

// Encode writes p's header and payload to w.
func (c *Codec) Encode(w io.Writer, p Packet) error {
	if uint32(len(p.Payload)) > c.MaxPayload {
		return ErrPayloadTooLarge
	}
	p.Header.PayloadLen = uint32(len(p.Payload))
	buf, err := p.Header.MarshalBinary()
	if err != nil {
		return err
	}
	if _, err := w.Write(buf); err != nil {
		return err
	}
	if len(p.Payload) == 0 {
		return nil
	}
	_, err = w.Write(p.Payload)
	return err
}

// Decode reads one Packet from r. A short read anywhere in the header or
// payload surfaces ErrTruncatedFrame; a bad magic surfaces ErrBadMagic; a
// payload_len over MaxPayload surfaces ErrPayloadTooLarge before any
// payload bytes are read.
func (c *Codec) Decode(r io.Reader) (Packet, error) {
	hbuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, hbuf); err != nil {
		if err == io.ErrUnexpectedEOF || err == io.EOF {
			return Packet{}, ErrTruncatedFrame
		}
		return Packet{}, err
	}
	var h Header
	if err := h.UnmarshalBinary(hbuf); err != nil {
		return Packet{}, err
	}
	if h.PayloadLen > c.MaxPayload {
		return Packet{}, ErrPayloadTooLarge
	}
	payload := make([]byte, h.PayloadLen)
	if h.PayloadLen > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			if err == io.ErrUnexpectedEOF || err == io.EOF {
				return Packet{}, ErrTruncatedFrame
			}
			return Packet{}, err
		}
	}
	return Packet{Header: h, Payload: payload}, nil
}
