package primitive

import (
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/nacl/box"
)

func init() {
	RegisterPke(X25519Box, func() Pke { return &x25519Box{} })
}

// x25519Box is the one concrete Pke this module ships, grounded on the
// NaCl-box keypair/seal/open shape used elsewhere in this dependency stack
// for end-to-end message encryption (token.Encrypter). Asymmetric schemes
// actually named in spec.md (NTRU/McEliece/Rainbow/GMSS) are out of scope
// and external per spec.md §1; DTM-KEX only ever calls the three Pke
// methods below.
//
// Seal uses the anonymous "sealed box" construction: a fresh ephemeral
// keypair is generated per call, the ephemeral public key is prefixed to
// the nonce+ciphertext, and Open recovers the shared secret from the
// recipient's static private key alone.
type x25519Box struct{}

func (x *x25519Box) Keygen() (public, private []byte, err error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("x25519box: keygen: %w", err)
	}
	return pub[:], priv[:], nil
}

func (x *x25519Box) Seal(peerPublic, seed []byte) ([]byte, error) {
	var recipientPub [32]byte
	if len(peerPublic) != 32 {
		return nil, fmt.Errorf("x25519box: public key must be 32 bytes, got %d", len(peerPublic))
	}
	copy(recipientPub[:], peerPublic)

	ephPub, ephPriv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("x25519box: ephemeral keygen: %w", err)
	}

	var nonce [24]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, fmt.Errorf("x25519box: nonce: %w", err)
	}

	out := make([]byte, 0, 32+24+len(seed)+box.Overhead)
	out = append(out, ephPub[:]...)
	out = append(out, nonce[:]...)
	out = box.Seal(out, seed, &nonce, &recipientPub, ephPriv)
	return out, nil
}

func (x *x25519Box) Open(ownPrivate, _, ciphertext []byte) ([]byte, error) {
	if len(ownPrivate) != 32 {
		return nil, fmt.Errorf("x25519box: private key must be 32 bytes")
	}
	if len(ciphertext) < 32+24 {
		return nil, fmt.Errorf("x25519box: ciphertext too short")
	}
	var priv [32]byte
	copy(priv[:], ownPrivate)

	var ephPub [32]byte
	copy(ephPub[:], ciphertext[:32])
	var nonce [24]byte
	copy(nonce[:], ciphertext[32:56])

	out, ok := box.Open(nil, ciphertext[56:], &nonce, &ephPub, &priv)
	if !ok {
		return nil, fmt.Errorf("x25519box: decryption failed")
	}
	return out, nil
}
