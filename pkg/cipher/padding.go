package cipher

import (
	"fmt"

	"github.com/modulexcite/cex/pkg/primitive"
)

// Pad appends padding to make data a multiple of blockSize, per the named
// PaddingMode. Pad is a no-op under PaddingNone (the caller must already
// supply block-aligned input).
func Pad(data []byte, blockSize int, mode primitive.PaddingMode) ([]byte, error) {
	padLen := blockSize - len(data)%blockSize
	if padLen == 0 {
		padLen = blockSize
	}
	switch mode {
	case primitive.PaddingNone:
		if len(data)%blockSize != 0 {
			return nil, fmt.Errorf("cipher: input is not block-aligned and PaddingNone was requested")
		}
		return data, nil
	case primitive.PaddingPKCS7:
		pad := make([]byte, padLen)
		for i := range pad {
			pad[i] = byte(padLen)
		}
		return append(data, pad...), nil
	case primitive.PaddingX923:
		pad := make([]byte, padLen)
		pad[padLen-1] = byte(padLen)
		return append(data, pad...), nil
	case primitive.PaddingISO7816:
		pad := make([]byte, padLen)
		pad[0] = 0x80
		return append(data, pad...), nil
	case primitive.PaddingTBC:
		// Trailing-Bit-Complement: pad with the complement of the last data
		// bit, repeated to fill the block.
		var fill byte
		if len(data) > 0 && data[len(data)-1]&0x01 == 1 {
			fill = 0x00
		} else {
			fill = 0xFF
		}
		pad := make([]byte, padLen)
		for i := range pad {
			pad[i] = fill
		}
		return append(data, pad...), nil
	default:
		return nil, fmt.Errorf("cipher: %w: padding kind %d", ErrUnsupportedMode, mode)
	}
}

// Unpad removes padding added by Pad and validates its shape.
func Unpad(data []byte, blockSize int, mode primitive.PaddingMode) ([]byte, error) {
	if mode == primitive.PaddingNone {
		return data, nil
	}
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("cipher: padded input is not block-aligned")
	}
	switch mode {
	case primitive.PaddingPKCS7, primitive.PaddingX923:
		padLen := int(data[len(data)-1])
		if padLen == 0 || padLen > blockSize || padLen > len(data) {
			return nil, fmt.Errorf("cipher: invalid padding length %d", padLen)
		}
		if mode == primitive.PaddingPKCS7 {
			for _, b := range data[len(data)-padLen:] {
				if int(b) != padLen {
					return nil, fmt.Errorf("cipher: invalid PKCS7 padding")
				}
			}
		}
		return data[:len(data)-padLen], nil
	case primitive.PaddingISO7816:
		i := len(data) - 1
		for i >= 0 && data[i] == 0x00 {
			i--
		}
		if i < 0 || data[i] != 0x80 {
			return nil, fmt.Errorf("cipher: invalid ISO7816 padding")
		}
		return data[:i], nil
	case primitive.PaddingTBC:
		fill := data[len(data)-1]
		i := len(data) - 1
		for i >= 0 && data[i] == fill {
			i--
		}
		return data[:i+1], nil
	default:
		return nil, fmt.Errorf("cipher: %w: padding kind %d", ErrUnsupportedMode, mode)
	}
}
