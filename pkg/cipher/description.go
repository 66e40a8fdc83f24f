package cipher

import (
	"encoding/binary"
	"fmt"

	"github.com/modulexcite/cex/pkg/primitive"
)

// DescriptionSize is the fixed wire size of a CipherDescription (spec §6.3).
const DescriptionSize = 32

// Description is the CipherDescription record from spec.md §3: a
// fixed-size, byte-exact description of a cipher configuration. Two
// Descriptions are equal iff every field is equal.
type Description struct {
	Engine        primitive.EngineKind  `yaml:"engine"`
	KeyBits       uint16                `yaml:"key_bits"`
	IVBits        uint16                `yaml:"iv_bits"`
	Mode          primitive.CipherMode  `yaml:"mode"`
	Padding       primitive.PaddingMode `yaml:"padding"`
	BlockBits     uint16                `yaml:"block_bits"`
	Rounds        uint16                `yaml:"rounds"`
	KDFDigest     primitive.DigestKind  `yaml:"kdf_digest"`
	MacDigestSize uint16                `yaml:"mac_digest_size"`
	MacDigest     primitive.DigestKind  `yaml:"mac_digest"`
}

// Equal reports whether d and other describe the same cipher configuration.
func (d Description) Equal(other Description) bool {
	return d == other
}

// MarshalBinary encodes d into the 32-byte little-endian layout of §6.3.
func (d Description) MarshalBinary() ([]byte, error) {
	buf := make([]byte, DescriptionSize)
	binary.LittleEndian.PutUint16(buf[0:2], uint16(d.Engine))
	binary.LittleEndian.PutUint16(buf[2:4], d.KeyBits)
	binary.LittleEndian.PutUint16(buf[4:6], d.IVBits)
	buf[6] = byte(d.Mode)
	buf[7] = byte(d.Padding)
	binary.LittleEndian.PutUint16(buf[8:10], d.BlockBits)
	binary.LittleEndian.PutUint16(buf[10:12], d.Rounds)
	buf[12] = byte(d.KDFDigest)
	binary.LittleEndian.PutUint16(buf[13:15], d.MacDigestSize)
	buf[15] = byte(d.MacDigest)
	// buf[16:32] stays reserved-zero.
	return buf, nil
}

// UnmarshalBinary decodes a 32-byte CipherDescription produced by MarshalBinary.
func (d *Description) UnmarshalBinary(buf []byte) error {
	if len(buf) != DescriptionSize {
		return fmt.Errorf("cipher: description must be %d bytes, got %d", DescriptionSize, len(buf))
	}
	d.Engine = primitive.EngineKind(binary.LittleEndian.Uint16(buf[0:2]))
	d.KeyBits = binary.LittleEndian.Uint16(buf[2:4])
	d.IVBits = binary.LittleEndian.Uint16(buf[4:6])
	d.Mode = primitive.CipherMode(buf[6])
	d.Padding = primitive.PaddingMode(buf[7])
	d.BlockBits = binary.LittleEndian.Uint16(buf[8:10])
	d.Rounds = binary.LittleEndian.Uint16(buf[10:12])
	d.KDFDigest = primitive.DigestKind(buf[12])
	d.MacDigestSize = binary.LittleEndian.Uint16(buf[13:15])
	d.MacDigest = primitive.DigestKind(buf[15])
	return nil
}
