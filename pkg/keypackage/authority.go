package keypackage

import (
	"encoding/binary"
	"fmt"
)

// AuthoritySize is the on-disk width of a KeyAuthority record. spec.md §3
// lists domain_id[32] + origin_id[16] + target_id[16] + package_id[32] +
// package_tag[32] + policy_flags(u64) + option_flag(i64) = 144 bytes; the
// ASCII diagram in §6.4 labels the same field "authority: 136 B", 8 bytes
// short of the struct it is restating. The field list is authoritative
// here (DESIGN.md records this as a resolved discrepancy, not a dropped
// field): AuthoritySize is 144, and nothing KeyAuthority's struct
// definition names is trimmed to make the header a rounder number.
const AuthoritySize = 144

// AuthorityPolicy is KeyAuthority.PolicyFlags: package-level gates
// checked once per open/read, independent of any one subkey's Policy
// bits (spec.md §4.8 "Policy checks (PackageAuth / DomainAuth)").
type AuthorityPolicy uint64

const (
	// AuthorityPackageAuth requires the caller's presented package_tag to
	// match PackageTag exactly.
	AuthorityPackageAuth AuthorityPolicy = 1 << iota
	// AuthorityDomainAuth requires the caller's presented domain_id to
	// match DomainID exactly.
	AuthorityDomainAuth
)

// Has reports whether p sets every bit in flags.
func (p AuthorityPolicy) Has(flags AuthorityPolicy) bool { return p&flags == flags }

// KeyAuthority is the spec.md §3 KeyAuthority record: the package-level
// identity and policy header a caller presents credentials against
// before any subkey read is honored.
type KeyAuthority struct {
	DomainID    [32]byte
	OriginID    [16]byte
	TargetID    [16]byte
	PackageID   [32]byte
	PackageTag  [32]byte
	PolicyFlags AuthorityPolicy
	OptionFlag  int64
}

// MarshalBinary encodes a into the 144-byte little-endian layout above.
func (a KeyAuthority) MarshalBinary() ([]byte, error) {
	buf := make([]byte, AuthoritySize)
	off := 0
	off += copy(buf[off:], a.DomainID[:])
	off += copy(buf[off:], a.OriginID[:])
	off += copy(buf[off:], a.TargetID[:])
	off += copy(buf[off:], a.PackageID[:])
	off += copy(buf[off:], a.PackageTag[:])
	binary.LittleEndian.PutUint64(buf[off:off+8], uint64(a.PolicyFlags))
	off += 8
	binary.LittleEndian.PutUint64(buf[off:off+8], uint64(a.OptionFlag))
	return buf, nil
}

// UnmarshalBinary decodes a 144-byte KeyAuthority produced by MarshalBinary.
func (a *KeyAuthority) UnmarshalBinary(buf []byte) error {
	if len(buf) != AuthoritySize {
		return fmt.Errorf("keypackage: authority must be %d bytes, got %d", AuthoritySize, len(buf))
	}
	off := 0
	off += copy(a.DomainID[:], buf[off:off+32])
	off += copy(a.OriginID[:], buf[off:off+16])
	off += copy(a.TargetID[:], buf[off:off+16])
	off += copy(a.PackageID[:], buf[off:off+32])
	off += copy(a.PackageTag[:], buf[off:off+32])
	a.PolicyFlags = AuthorityPolicy(binary.LittleEndian.Uint64(buf[off : off+8]))
	off += 8
	a.OptionFlag = int64(binary.LittleEndian.Uint64(buf[off : off+8]))
	return nil
}
