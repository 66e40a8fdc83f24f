package keypackage

import (
	"encoding/binary"
	"fmt"

	"github.com/modulexcite/cex/pkg/ids"
)

// entrySize is one subkey's {policy: u64, id: 16B, state: u8} triple
// (spec.md §6.4), packed tight with no padding.
const entrySize = 8 + ids.Size + 1

// Policy is a subkey's own lifecycle policy bits (spec.md §3's
// subkey-level "policy" field, distinct from KeyAuthority.PolicyFlags).
type Policy uint64

const (
	// PolicyPostOverwrite consumes a subkey on read: the on-disk blob is
	// zeroed and the subkey's state becomes Used (spec.md §4.8).
	PolicyPostOverwrite Policy = 1 << iota
	// PolicyVolatile rejects reads once OptionFlag (an expiry timestamp,
	// see KeyAuthority.OptionFlag) is in the past.
	PolicyVolatile
)

// Has reports whether p sets every bit in flags.
func (p Policy) Has(flags Policy) bool { return p&flags == flags }

// State is the subkey lifecycle bitfield over {Locked, Active, Expired,
// Used} (spec.md §3).
type State uint8

const (
	StateLocked State = 1 << iota
	StateActive
	StateExpired
	StateUsed
)

func (s State) Has(flags State) bool { return s&flags == flags }

func (s State) String() string {
	switch {
	case s.Has(StateUsed):
		return "Used"
	case s.Has(StateExpired):
		return "Expired"
	case s.Has(StateActive):
		return "Active"
	case s.Has(StateLocked):
		return "Locked"
	default:
		return "Unknown"
	}
}

// entry is one subkey's on-disk policy/id/state triple, held in memory;
// its blob offset is computed from the index by Package.blobOffset.
type entry struct {
	policy Policy
	id     ids.ID
	state  State
}

func (e entry) marshalBinary() []byte {
	buf := make([]byte, entrySize)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(e.policy))
	copy(buf[8:8+ids.Size], e.id[:])
	buf[8+ids.Size] = byte(e.state)
	return buf
}

func (e *entry) unmarshalBinary(buf []byte) error {
	if len(buf) != entrySize {
		return fmt.Errorf("keypackage: subkey entry must be %d bytes, got %d", entrySize, len(buf))
	}
	e.policy = Policy(binary.LittleEndian.Uint64(buf[0:8]))
	copy(e.id[:], buf[8:8+ids.Size])
	e.state = State(buf[8+ids.Size])
	return nil
}
