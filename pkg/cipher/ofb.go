package cipher

import "github.com/modulexcite/cex/pkg/primitive"

// OFB is output feedback mode: O_0 = E(IV), O_i = E(O_{i-1}), C_i = P_i
// XOR O_i. The keystream chain depends only on itself, not on plaintext
// or ciphertext, but each step still depends on the previous one, so OFB
// has no parallel decomposition (spec.md §4.3 only lists CTR, CBC-decrypt,
// and CFB-decrypt as parallelizable).
type OFB struct {
	*base
	feedback []byte
}

func NewOFB(engineKind primitive.EngineKind, threadCount int) (*OFB, error) {
	b, err := newBase(engineKind, threadCount)
	if err != nil {
		return nil, err
	}
	return &OFB{base: b}, nil
}

func (m *OFB) Init(isEncrypt bool, key primitive.KeyMaterial) error {
	if err := m.cipher.Init(true, key); err != nil {
		return err
	}
	m.key = key
	m.isEncrypt = isEncrypt
	m.state = stateReady
	m.feedback = append([]byte(nil), key.IV()...)
	return nil
}

func (m *OFB) TransformBlock(inBuf []byte, inOff int, outBuf []byte, outOff int) error {
	if m.state != stateReady {
		return ErrNotInitialized
	}
	bs := m.blockSize
	keystream := make([]byte, bs)
	if err := m.cipher.TransformBlock(m.feedback, keystream); err != nil {
		return err
	}
	copy(m.feedback, keystream)
	xorBytes(outBuf[outOff:outOff+bs], inBuf[inOff:inOff+bs], keystream)
	return nil
}

// Transform always runs serially; SetIsParallel has no effect on OFB.
func (m *OFB) Transform(input, output []byte) error {
	if m.state != stateReady {
		return ErrNotInitialized
	}
	if len(input) != len(output) {
		return ErrInvalidLength
	}
	bs := m.blockSize
	pos := 0
	keystream := make([]byte, bs)
	for pos < len(input) {
		end := pos + bs
		if end > len(input) {
			end = len(input)
		}
		if err := m.cipher.TransformBlock(m.feedback, keystream); err != nil {
			return err
		}
		copy(m.feedback, keystream)
		xorBytes(output[pos:end], input[pos:end], keystream[:end-pos])
		pos = end
	}
	return nil
}
