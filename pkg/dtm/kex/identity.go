package kex

import (
	"encoding/binary"
	"fmt"

	"github.com/modulexcite/cex/pkg/cipher"
)

// Identity is DtmIdentity (spec.md §3): an opaque application-defined
// token plus the asymmetric and session parameters the sender proposes.
type Identity struct {
	Identity   []byte
	PkeID      []byte
	Session    cipher.Description
	OptionFlag int64
}

// MarshalBinary encodes an Identity as: u32 len + identity bytes,
// u8 len + pke_id bytes, 32-byte session description, i64 option_flag.
func (id Identity) MarshalBinary() ([]byte, error) {
	if len(id.PkeID) > 255 {
		return nil, fmt.Errorf("kex: pke_id too long (%d bytes)", len(id.PkeID))
	}
	sessionBuf, err := id.Session.MarshalBinary()
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 0, 4+len(id.Identity)+1+len(id.PkeID)+len(sessionBuf)+8)

	lenBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBuf, uint32(len(id.Identity)))
	buf = append(buf, lenBuf...)
	buf = append(buf, id.Identity...)

	buf = append(buf, byte(len(id.PkeID)))
	buf = append(buf, id.PkeID...)

	buf = append(buf, sessionBuf...)

	optBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(optBuf, uint64(id.OptionFlag))
	buf = append(buf, optBuf...)
	return buf, nil
}

// UnmarshalBinary decodes an Identity from the layout MarshalBinary writes.
func (id *Identity) UnmarshalBinary(buf []byte) error {
	if len(buf) < 4 {
		return fmt.Errorf("kex: identity buffer too short")
	}
	n := binary.LittleEndian.Uint32(buf[0:4])
	pos := 4
	if len(buf) < pos+int(n) {
		return fmt.Errorf("kex: identity buffer truncated")
	}
	id.Identity = append([]byte(nil), buf[pos:pos+int(n)]...)
	pos += int(n)

	if len(buf) < pos+1 {
		return fmt.Errorf("kex: identity buffer truncated at pke_id length")
	}
	pkeLen := int(buf[pos])
	pos++
	if len(buf) < pos+pkeLen {
		return fmt.Errorf("kex: identity buffer truncated at pke_id")
	}
	id.PkeID = append([]byte(nil), buf[pos:pos+pkeLen]...)
	pos += pkeLen

	if len(buf) < pos+cipher.DescriptionSize+8 {
		return fmt.Errorf("kex: identity buffer truncated at session/option_flag")
	}
	if err := id.Session.UnmarshalBinary(buf[pos : pos+cipher.DescriptionSize]); err != nil {
		return err
	}
	pos += cipher.DescriptionSize
	id.OptionFlag = int64(binary.LittleEndian.Uint64(buf[pos : pos+8]))
	return nil
}
