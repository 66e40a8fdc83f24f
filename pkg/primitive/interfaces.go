package primitive

// KeyMaterial is the minimal view the primitive constructors need from
// pkg/keymaterial, kept here to avoid an import cycle; pkg/keymaterial.Material
// satisfies it.
type KeyMaterial interface {
	Key() []byte
	IV() []byte
	Info() []byte
}

// BlockCipher transforms exactly one block at a time. Mode engines in
// pkg/cipher drive it to build CTR/CBC/CFB/OFB.
type BlockCipher interface {
	BlockSize() int
	Init(isEncrypt bool, key KeyMaterial) error
	// TransformBlock encrypts or decrypts exactly one BlockSize block.
	TransformBlock(input, output []byte) error
}

// StreamCipher transforms an arbitrary-length buffer in one call.
type StreamCipher interface {
	Init(key KeyMaterial) error
	Transform(input, output []byte) error
}

// Digest is a resettable, incrementally-updatable hash function.
type Digest interface {
	BlockSize() int
	DigestSize() int
	Update(p []byte)
	Finalize(into []byte) []byte
	Reset()
}

// Mac is a keyed Digest.
type Mac interface {
	Digest
	KeySize() int
	InitKey(key []byte) error
}

// Prng fills buffers with cryptographically secure random bytes.
type Prng interface {
	Fill(p []byte) error
	NextUint32() (uint32, error)
}

// Pke is an opaque asymmetric key-encapsulation primitive. CEX only ever
// calls these three methods; the concrete scheme (NTRU, McEliece, X25519,
// ...) is never inspected by callers.
type Pke interface {
	// Keygen returns a fresh (public, private) keypair.
	Keygen() (public, private []byte, err error)
	// Seal encrypts seed under the peer's public key.
	Seal(peerPublic, seed []byte) (ciphertext []byte, err error)
	// Open decrypts a ciphertext produced by the peer's Seal using our
	// own private key and the peer's public key.
	Open(ownPrivate, peerPublic, ciphertext []byte) (seed []byte, err error)
}

// blockFactories, streamFactories, ... are populated by each concrete
// primitive's init(). The tagged-constructor map is the redesign called
// for by spec.md §9: adding a primitive never touches this registry.
var (
	blockFactories  = map[EngineKind]func() BlockCipher{}
	streamFactories = map[EngineKind]func() StreamCipher{}
	digestFactories = map[DigestKind]func() Digest{}
	macFactories    = map[MacKind]func() Mac{}
	prngFactories   = map[PrngKind]func() Prng{}
	pkeFactories    = map[PkeKind]func() Pke{}
)

// RegisterBlockCipher adds a constructor for kind. Intended to be called
// from a primitive implementation's init().
func RegisterBlockCipher(kind EngineKind, ctor func() BlockCipher) { blockFactories[kind] = ctor }

func RegisterStreamCipher(kind EngineKind, ctor func() StreamCipher) { streamFactories[kind] = ctor }

func RegisterDigest(kind DigestKind, ctor func() Digest) { digestFactories[kind] = ctor }

func RegisterMac(kind MacKind, ctor func() Mac) { macFactories[kind] = ctor }

func RegisterPrng(kind PrngKind, ctor func() Prng) { prngFactories[kind] = ctor }

func RegisterPke(kind PkeKind, ctor func() Pke) { pkeFactories[kind] = ctor }

// NewBlockCipher returns a fresh instance for kind.
func NewBlockCipher(kind EngineKind) (BlockCipher, error) {
	if ctor, ok := blockFactories[kind]; ok {
		return ctor(), nil
	}
	return nil, &ErrUnsupported{Family: "block cipher", Kind: kind}
}

func NewStreamCipher(kind EngineKind) (StreamCipher, error) {
	if ctor, ok := streamFactories[kind]; ok {
		return ctor(), nil
	}
	return nil, &ErrUnsupported{Family: "stream cipher", Kind: kind}
}

func NewDigest(kind DigestKind) (Digest, error) {
	if ctor, ok := digestFactories[kind]; ok {
		return ctor(), nil
	}
	return nil, &ErrUnsupported{Family: "digest", Kind: kind}
}

func NewMac(kind MacKind) (Mac, error) {
	if ctor, ok := macFactories[kind]; ok {
		return ctor(), nil
	}
	return nil, &ErrUnsupported{Family: "mac", Kind: kind}
}

func NewPrng(kind PrngKind) (Prng, error) {
	if ctor, ok := prngFactories[kind]; ok {
		return ctor(), nil
	}
	return nil, &ErrUnsupported{Family: "prng", Kind: kind}
}

func NewPke(kind PkeKind) (Pke, error) {
	if ctor, ok := pkeFactories[kind]; ok {
		return ctor(), nil
	}
	return nil, &ErrUnsupported{Family: "pke", Kind: kind}
}
