// Package primitive is the registry described by CEX component C1: given a
// tagged kind, it returns a fresh instance of a block cipher, stream
// cipher, digest, MAC, PRNG, or asymmetric (Pke) primitive. Concrete
// primitives register themselves from their own file's init(), so adding
// one never touches this file or any caller.
package primitive

// EngineKind identifies a block or stream cipher. Block and stream kinds
// share one numeric space; a value's family is whichever registry
// (RegisterBlockCipher or RegisterStreamCipher) holds it.
type EngineKind uint16

const (
	EngineNone EngineKind = iota
	AES
	ChaCha20
)

func (k EngineKind) String() string {
	switch k {
	case AES:
		return "AES"
	case ChaCha20:
		return "ChaCha20"
	default:
		return "None"
	}
}

// DigestKind identifies a message digest.
type DigestKind uint8

const (
	DigestNone DigestKind = iota
	SHA256
	SHA512
)

func (k DigestKind) String() string {
	switch k {
	case SHA256:
		return "SHA256"
	case SHA512:
		return "SHA512"
	default:
		return "None"
	}
}

// MacKind identifies a message authentication code.
type MacKind uint8

const (
	MacNone MacKind = iota
	HMACSHA256
	HMACSHA512
)

func (k MacKind) String() string {
	switch k {
	case HMACSHA256:
		return "HMAC-SHA256"
	case HMACSHA512:
		return "HMAC-SHA512"
	default:
		return "None"
	}
}

// PrngKind identifies a pseudo-random number generator.
type PrngKind uint8

const (
	PrngNone PrngKind = iota
	// CSPRNG is the stdlib crypto/rand source.
	CSPRNG
	// CtrDrbg is a NIST SP 800-90A AES-CTR-DRBG, pool-backed for concurrency.
	CtrDrbg
	// ChaChaPrng is a ChaCha20-based CSPRNG.
	ChaChaPrng
)

func (k PrngKind) String() string {
	switch k {
	case CSPRNG:
		return "CSPRNG"
	case CtrDrbg:
		return "CtrDrbg"
	case ChaChaPrng:
		return "ChaChaPrng"
	default:
		return "None"
	}
}

// PkeKind identifies an asymmetric key-encapsulation scheme, treated
// opaquely per spec.md's scope: only Keygen/Seal/Open are ever called.
type PkeKind uint8

const (
	PkeNone PkeKind = iota
	X25519Box
)

func (k PkeKind) String() string {
	switch k {
	case X25519Box:
		return "X25519Box"
	default:
		return "None"
	}
}

// CipherMode is the block-mode used by the C3 engine.
type CipherMode uint8

const (
	ModeCTR CipherMode = iota
	ModeCBC
	ModeCFB
	ModeOFB
)

func (m CipherMode) String() string {
	switch m {
	case ModeCTR:
		return "CTR"
	case ModeCBC:
		return "CBC"
	case ModeCFB:
		return "CFB"
	case ModeOFB:
		return "OFB"
	default:
		return "Unknown"
	}
}

// PaddingMode pads a final partial block before a block-mode transform.
type PaddingMode uint8

const (
	PaddingPKCS7 PaddingMode = iota
	PaddingX923
	PaddingISO7816
	PaddingTBC
	PaddingNone
)

func (p PaddingMode) String() string {
	switch p {
	case PaddingPKCS7:
		return "PKCS7"
	case PaddingX923:
		return "X923"
	case PaddingISO7816:
		return "ISO7816"
	case PaddingTBC:
		return "TBC"
	case PaddingNone:
		return "None"
	default:
		return "Unknown"
	}
}
