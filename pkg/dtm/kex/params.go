// Package kex implements CEX component C6: the DTM-KEX two-phase
// authenticated key exchange state machine — identity exchange, an
// asymmetric auth phase, an asymmetric primary phase wrapped inside the
// auth ciphers, and the established forward/return primary session
// ciphers the session transport (pkg/dtm/session) then drives.
package kex

import (
	"github.com/modulexcite/cex/internal/config"
	"github.com/modulexcite/cex/pkg/cipher"
	"github.com/modulexcite/cex/pkg/primitive"
)

// Role distinguishes the two symmetric-but-not-identical participants.
type Role int

const (
	Initiator Role = iota
	Responder
)

// PaddingBound is an inclusive upper bound pair on random prepend/append
// byte counts (spec.md §3 DtmParameters.padding_bounds).
type PaddingBound struct {
	Pre  int `yaml:"pre"`
	Post int `yaml:"post"`
}

// PaddingBounds groups the four message classes DTM-KEX pads.
type PaddingBounds struct {
	AsmKey    PaddingBound `yaml:"asm_key"`
	AsmParams PaddingBound `yaml:"asm_params"`
	SymKey    PaddingBound `yaml:"sym_key"`
	Message   PaddingBound `yaml:"message"`
}

// DelayBounds gives upper bounds (ms) on randomized transmit delays for
// the three timing-sensitive message classes (spec.md §4.6 "Timing
// defenses").
type DelayBounds struct {
	AsmKeyMs  int `yaml:"asm_key_ms"`
	SymKeyMs  int `yaml:"sym_key_ms"`
	MessageMs int `yaml:"message_ms"`
}

// Parameters is DtmParameters (spec.md §3): the full negotiated
// configuration both endpoints must agree on out of band before Connect.
type Parameters struct {
	OID            [16]byte             `yaml:"oid"`
	AuthPkeID      primitive.PkeKind    `yaml:"auth_pke_id"`
	PrimaryPkeID   primitive.PkeKind    `yaml:"primary_pke_id"`
	AuthSession    cipher.Description   `yaml:"auth_session"`
	PrimarySession cipher.Description   `yaml:"primary_session"`
	RandomKind     primitive.PrngKind   `yaml:"random_kind"`
	PaddingBounds  PaddingBounds        `yaml:"padding_bounds"`
	DelayBounds    DelayBounds          `yaml:"delays_ms"`

	// PreAuthDigest selects the KDF digest for the deterministic pre-auth
	// key derived from DomainSharedSecret. Not part of the wire DtmParameters
	// record but required by any concrete implementation of step 1.
	PreAuthDigest primitive.DigestKind `yaml:"pre_auth_digest"`
	// DomainSharedSecret is the out-of-band secret both endpoints already
	// share before Connect; it seeds the pre-auth key (spec.md §4.6 step 1).
	// Never serialized: operators provision it out of band, not via the
	// parameters file.
	DomainSharedSecret []byte `yaml:"-"`
}

// LoadParameters reads a Parameters value from a YAML file, the same
// serialization the rest of this stack uses for operator-facing config
// (internal/config, gopkg.in/yaml.v3). DomainSharedSecret is never
// persisted and must be supplied separately by the caller after loading.
func LoadParameters(path string) (*Parameters, error) {
	var p Parameters
	if err := config.Load(path, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SaveParameters writes p to path as YAML, omitting DomainSharedSecret.
func SaveParameters(path string, p *Parameters) error {
	return config.Save(path, p)
}
