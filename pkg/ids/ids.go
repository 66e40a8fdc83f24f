// Package ids generates the 16-byte identifiers CEX threads through
// KeyAuthority and subkey records (domain_id, origin_id, target_id,
// package_id, subkey ids), built on github.com/google/uuid rather than
// a bespoke ID scheme.
package ids

import "github.com/google/uuid"

// Size is the fixed byte width of an ID, matching the [u8;16] id fields
// in spec.md §3.
const Size = 16

// ID is a 16-byte random identifier.
type ID [Size]byte

// New generates a fresh random ID.
func New() (ID, error) {
	u, err := uuid.NewRandom()
	if err != nil {
		return ID{}, err
	}
	return ID(u), nil
}

// String renders id in standard UUID text form.
func (id ID) String() string {
	return uuid.UUID(id).String()
}

// IsZero reports whether id is the all-zero value.
func (id ID) IsZero() bool {
	return id == ID{}
}
