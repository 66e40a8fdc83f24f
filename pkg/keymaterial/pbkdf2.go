package keymaterial

import (
	"golang.org/x/crypto/pbkdf2"

	"github.com/modulexcite/cex/pkg/primitive"
)

// PBKDF2 derives dkLen bytes from password and salt using iterations
// rounds of the named digest as the PRF. This is the password-based KDF
// path (spec.md §8 P4/S5); Derive's HKDF path is used for PRNG-seeded
// ephemeral material instead.
func PBKDF2(password, salt []byte, iterations, dkLen int, digest primitive.DigestKind) ([]byte, error) {
	newHash, err := hashConstructor(digest)
	if err != nil {
		return nil, err
	}
	return pbkdf2.Key(password, salt, iterations, dkLen, newHash), nil
}
