package keymaterial

import (
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"

	"github.com/modulexcite/cex/pkg/primitive"
)

// hashConstructor maps a DigestKind to the hash.Hash constructor hkdf.New
// needs. Kept local to this package: hkdf wants a constructor, not the
// incremental primitive.Digest interface.
func hashConstructor(kind primitive.DigestKind) (func() hash.Hash, error) {
	switch kind {
	case primitive.SHA256:
		return sha256.New, nil
	case primitive.SHA512:
		return sha512.New, nil
	default:
		return nil, fmt.Errorf("keymaterial: unsupported KDF digest %v", kind)
	}
}
